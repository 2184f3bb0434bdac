package refdata

import "testing"

func TestNormalizeCNPJ(t *testing.T) {
	if got := NormalizeCNPJ("12.345.678/0001-90"); got != "12345678000190" {
		t.Fatalf("got %q", got)
	}
}

func TestNormalizeMoney(t *testing.T) {
	cases := []struct {
		in   string
		want float64
		ok   bool
	}{
		{"R$ 1.234.567,89", 1234567.89, true},
		{"50000000", 50000000, true},
		{"50000000.50", 50000000.50, true},
		{"R$ 50.000.000,00", 50000000, true},
		{"not a number", 0, false},
		{"", 0, false},
	}
	for _, c := range cases {
		got, ok := NormalizeMoney(c.in)
		if ok != c.ok || got != c.want {
			t.Fatalf("NormalizeMoney(%q) = %v,%v want %v,%v", c.in, got, ok, c.want, c.ok)
		}
	}
}

func TestNormalizeOrdinal(t *testing.T) {
	cases := map[string]int{"1ª": 1, "2º": 2, "3.0": 3, " 12 ": 12}
	for in, want := range cases {
		got, ok := NormalizeOrdinal(in)
		if !ok || got != want {
			t.Fatalf("NormalizeOrdinal(%q) = %d,%v", in, got, ok)
		}
	}
	if _, ok := NormalizeOrdinal("primeira"); ok {
		t.Fatal("expected failure for non-numeric ordinal")
	}
}

func TestNormalizeProcess(t *testing.T) {
	cases := map[string]string{
		"CVM/SRE/AUT/CRI/PRI/2025/590": "SRE/0590/2025",
		"SRE/1/2023":                   "SRE/0001/2023",
		"SRE/0590/2025":                "SRE/0590/2025",
		"CRI/12/2024":                  "CRI/0012/2024",
		"":                             "",
	}
	for in, want := range cases {
		if got := NormalizeProcess(in, "SRE"); got != want {
			t.Fatalf("NormalizeProcess(%q) = %q want %q", in, got, want)
		}
	}
}

func TestNormalizeName(t *testing.T) {
	if got := NormalizeName("Título Securitizadora S.A."); got != "TITULO SECURITIZADORA" {
		t.Fatalf("got %q", got)
	}
	if NormalizeName("ABC Securitizadora LTDA") != NormalizeName("abc securitizadora") {
		t.Fatal("suffix/case folding mismatch")
	}
}

func TestNormalizeDate(t *testing.T) {
	if got := NormalizeDate("15/03/2023"); got != "2023-03-15" {
		t.Fatalf("got %q", got)
	}
	if got := NormalizeDate("2023-03-15 00:00:00"); got != "2023-03-15" {
		t.Fatalf("got %q", got)
	}
	if got := NormalizeDate("yesterday"); got != "" {
		t.Fatalf("got %q", got)
	}
}

func TestCompositeKeyDeterministic(t *testing.T) {
	a := CompositeKey("12.345.678/0001-90", "1ª", "CVM/SRE/AUT/CRI/PRI/2023/1", "SRE")
	b := CompositeKey("12345678000190", "1", "SRE/0001/2023", "SRE")
	if a == "" || a != b {
		t.Fatalf("equal triples produced different keys: %q vs %q", a, b)
	}
	c := CompositeKey("12345678000190", "2", "SRE/0001/2023", "SRE")
	if c == a {
		t.Fatal("different triples collided")
	}
	if CompositeKey("", "1", "SRE/0001/2023", "SRE") != "" {
		t.Fatal("missing component must yield empty key")
	}
}
