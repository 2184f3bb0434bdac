// Package refdata loads the authoritative CVM registry extract and
// answers exact composite-key lookups against it.
package refdata

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

var (
	nonDigitRe    = regexp.MustCompile(`[^\d]`)
	processLongRe = regexp.MustCompile(`/(\d{4})/(\d+)$`)
	processStdRe  = regexp.MustCompile(`^([A-Z]{2,4})/(\d+)/(\d{4})$`)
	ordinalRe     = regexp.MustCompile(`[ªº]`)
)

// NormalizeCNPJ strips everything but digits from a CNPJ.
func NormalizeCNPJ(cnpj string) string {
	return nonDigitRe.ReplaceAllString(strings.TrimSpace(cnpj), "")
}

// NormalizeMoney parses Brazilian-formatted currency strings
// ("R$ 1.234.567,89") and plain decimals into a value rounded to cents.
func NormalizeMoney(v string) (float64, bool) {
	s := strings.ToUpper(strings.TrimSpace(v))
	if s == "" {
		return 0, false
	}
	s = strings.TrimSpace(strings.TrimPrefix(s, "R$"))
	if strings.Contains(s, ",") {
		// Thousands dots, decimal comma.
		s = strings.ReplaceAll(s, ".", "")
		s = strings.ReplaceAll(s, ",", ".")
	} else if strings.Count(s, ".") > 1 {
		// "50.000.000" style with no decimal part.
		s = strings.ReplaceAll(s, ".", "")
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return float64(int64(f*100+0.5)) / 100, true
}

// NormalizeOrdinal turns issuance/request counters like "1ª" or "2.0"
// into their plain integer form.
func NormalizeOrdinal(v string) (int, bool) {
	s := ordinalRe.ReplaceAllString(strings.TrimSpace(v), "")
	if i := strings.IndexByte(s, '.'); i >= 0 {
		s = s[:i]
	}
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, false
	}
	return n, true
}

// NormalizeProcess canonicalizes a regulator process number into the
// GROUP/NNNN/AAAA shape used by the registry index. Long regulator forms
// such as "CVM/SRE/AUT/CRI/PRI/2025/590" become "SRE/0590/2025"; already
// standard short forms only get their sequence zero-padded. The canonical
// group for long forms is a business rule and therefore a parameter.
func NormalizeProcess(proc, canonicalGroup string) string {
	s := strings.ToUpper(strings.TrimSpace(proc))
	if s == "" {
		return ""
	}
	if canonicalGroup == "" {
		canonicalGroup = "SRE"
	}
	if m := processStdRe.FindStringSubmatch(s); m != nil {
		return m[1] + "/" + zeroPad(m[2]) + "/" + m[3]
	}
	if m := processLongRe.FindStringSubmatch(s); m != nil {
		return canonicalGroup + "/" + zeroPad(m[2]) + "/" + m[1]
	}
	return s
}

func zeroPad(n string) string {
	for len(n) < 4 {
		n = "0" + n
	}
	return n
}

var corporateSuffixRe = regexp.MustCompile(`\b(SA|LTDA|EIRELI|ME|EPP)\b`)

var diacritics = strings.NewReplacer(
	"Á", "A", "À", "A", "Â", "A", "Ã", "A",
	"É", "E", "È", "E", "Ê", "E",
	"Í", "I", "Ì", "I", "Î", "I",
	"Ó", "O", "Ò", "O", "Ô", "O", "Õ", "O",
	"Ú", "U", "Ù", "U", "Û", "U",
	"Ç", "C",
)

// NormalizeName uppercases, folds diacritics, drops punctuation and
// corporate suffixes, and collapses whitespace so extracted names compare
// against registry names.
func NormalizeName(name string) string {
	s := strings.ToUpper(strings.TrimSpace(name))
	if s == "" {
		return ""
	}
	s = diacritics.Replace(s)
	s = strings.Map(func(r rune) rune {
		switch r {
		case '.', ',', ';', '!', '?', '(', ')':
			return -1
		}
		return r
	}, s)
	s = corporateSuffixRe.ReplaceAllString(s, "")
	return strings.Join(strings.Fields(s), " ")
}

// NormalizeDate accepts "YYYY-MM-DD" and "DD/MM/YYYY" (with an optional
// time suffix) and returns the ISO date, or "" when unparseable.
func NormalizeDate(v string) string {
	s := strings.TrimSpace(v)
	if s == "" {
		return ""
	}
	if i := strings.IndexByte(s, ' '); i >= 0 {
		s = s[:i]
	}
	for _, layout := range []string{"2006-01-02", "02/01/2006"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Format("2006-01-02")
		}
	}
	return ""
}
