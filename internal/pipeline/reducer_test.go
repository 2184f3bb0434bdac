package pipeline

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/mgalindo/deedflow/internal/deed"
)

const minimalRecordJSON = `{
  "numero_emissao": "1",
  "numero_processo": "SRE/0123/2024",
  "securitizadora": {"nome": "Vert Securitizadora S.A.", "cnpj": "12.345.678/0001-90"},
  "volume_total": "50000000.00"
}`

func summariesOf(texts ...string) []deed.ChunkSummary {
	out := make([]deed.ChunkSummary, len(texts))
	for i, t := range texts {
		out[i] = deed.ChunkSummary{Index: i, Summary: t}
	}
	return out
}

func TestReducerExtractsRecord(t *testing.T) {
	var reducePrompt string
	llm := &keyedLLM{answer: func(prompt string) (string, error) {
		reducePrompt = prompt
		return minimalRecordJSON, nil
	}}
	r := NewReducer(newTestCaller(llm), DefaultPrompts(), 24000, 2048)

	rec, usage, err := r.Run(context.Background(), summariesOf("sumário A", "sumário B"))
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if rec.ProcessNumber != "SRE/0123/2024" {
		t.Fatalf("process number: %q", rec.ProcessNumber)
	}
	if rec.Issuer.Name != "Vert Securitizadora S.A." {
		t.Fatalf("issuer: %q", rec.Issuer.Name)
	}
	if usage.Input == 0 {
		t.Fatal("usage not accumulated")
	}
	// Both summaries reach the reduce context, in order, separated.
	if !strings.Contains(reducePrompt, "sumário A"+summarySeparator+"sumário B") {
		t.Fatalf("reduce prompt missing joined summaries:\n%s", reducePrompt)
	}
}

func TestReducerDropsDegradedAndIrrelevant(t *testing.T) {
	var reducePrompt string
	llm := &keyedLLM{answer: func(prompt string) (string, error) {
		reducePrompt = prompt
		return minimalRecordJSON, nil
	}}
	r := NewReducer(newTestCaller(llm), DefaultPrompts(), 24000, 2048)

	_, _, err := r.Run(context.Background(), summariesOf("sumário útil", "", "N/A", "  "))
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if strings.Contains(reducePrompt, "N/A") {
		t.Fatalf("irrelevant summary leaked into reduce context:\n%s", reducePrompt)
	}
	if !strings.Contains(reducePrompt, "sumário útil") {
		t.Fatalf("useful summary missing:\n%s", reducePrompt)
	}
}

func TestReducerFailsWithoutUsableSummaries(t *testing.T) {
	llm := &keyedLLM{answer: func(string) (string, error) {
		t.Fatal("no inference call expected")
		return "", nil
	}}
	r := NewReducer(newTestCaller(llm), DefaultPrompts(), 24000, 2048)

	_, _, err := r.Run(context.Background(), summariesOf("", "N/A", ""))
	var xerr *deed.ExtractionError
	if !errors.As(err, &xerr) {
		t.Fatalf("expected ExtractionError, got %v", err)
	}
}

func TestReducerRetriesInvalidJSON(t *testing.T) {
	call := 0
	var secondPrompt string
	llm := &keyedLLM{answer: func(prompt string) (string, error) {
		call++
		if call == 1 {
			return "não consegui gerar o JSON", nil
		}
		secondPrompt = prompt
		return "```json\n" + minimalRecordJSON + "\n```", nil
	}}
	r := NewReducer(newTestCaller(llm), DefaultPrompts(), 24000, 2048)

	rec, _, err := r.Run(context.Background(), summariesOf("sumário"))
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if rec.IssuanceNumber != "1" {
		t.Fatalf("issuance: %q", rec.IssuanceNumber)
	}
	if !strings.Contains(secondPrompt, "JSON válido") {
		t.Fatalf("corrective feedback missing from retry prompt:\n%s", secondPrompt)
	}
}

func TestReducerRejectsEmptyRecord(t *testing.T) {
	llm := &keyedLLM{answer: func(string) (string, error) {
		return `{"numero_processo": "não informado"}`, nil
	}}
	r := NewReducer(newTestCaller(llm), DefaultPrompts(), 24000, 2048)

	_, _, err := r.Run(context.Background(), summariesOf("sumário"))
	var xerr *deed.ExtractionError
	if !errors.As(err, &xerr) {
		t.Fatalf("expected ExtractionError for empty record, got %v", err)
	}
	if llm.calls != 3 {
		t.Fatalf("expected 3 content attempts, got %d", llm.calls)
	}
}

func TestReducerCondensesOverBudget(t *testing.T) {
	condenseCalls := 0
	llm := &keyedLLM{answer: func(prompt string) (string, error) {
		if strings.Contains(prompt, "<sumarios>") {
			condenseCalls++
			return "sumário condensado", nil
		}
		return minimalRecordJSON, nil
	}}
	// A budget below the joined length forces the three summaries
	// through condensation; the condensed parts then fit.
	r := NewReducer(newTestCaller(llm), DefaultPrompts(), 110, 2048)

	long := strings.Repeat("x", 40)
	rec, _, err := r.Run(context.Background(), summariesOf(long, long, long))
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if condenseCalls == 0 {
		t.Fatal("condensation never ran")
	}
	if rec.ProcessNumber == "" {
		t.Fatal("extraction lost after condensation")
	}
}

func TestReducerGivesUpWhenCondensationStalls(t *testing.T) {
	// One summary already larger than the budget cannot be regrouped.
	llm := &keyedLLM{answer: func(prompt string) (string, error) {
		return strings.Repeat("y", 200), nil
	}}
	r := NewReducer(newTestCaller(llm), DefaultPrompts(), 100, 2048)

	_, _, err := r.Run(context.Background(), summariesOf(strings.Repeat("x", 200)))
	var xerr *deed.ExtractionError
	if !errors.As(err, &xerr) {
		t.Fatalf("expected ExtractionError, got %v", err)
	}
}

func TestGroupWithinBudget(t *testing.T) {
	parts := []string{"aaaa", "bbbb", "cccc", "dddd"}
	groups := groupWithinBudget(parts, 10+len(summarySeparator))
	if len(groups) != 2 {
		t.Fatalf("groups: %v", groups)
	}
	for _, g := range groups {
		if !strings.Contains(g, summarySeparator) {
			t.Fatalf("group lost the separator: %q", g)
		}
	}
}
