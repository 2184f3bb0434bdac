package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"

	"github.com/mgalindo/deedflow/internal/deed"
)

// Reducer runs the reduce phase: concatenate the chunk summaries in
// original order into one super-summary and perform a single structured
// extraction against the record schema. When the super-summary itself
// exceeds the context budget it is condensed hierarchically first.
type Reducer struct {
	caller    *Caller
	prompts   Prompts
	budget    int
	maxTokens int
	// condenseTokens bounds the intermediate condensation calls.
	condenseTokens int
}

func NewReducer(caller *Caller, prompts Prompts, contextBudget, maxTokens int) *Reducer {
	if contextBudget <= 0 {
		contextBudget = 24000
	}
	if maxTokens <= 0 {
		maxTokens = 8192
	}
	return &Reducer{
		caller:         caller,
		prompts:        prompts,
		budget:         contextBudget,
		maxTokens:      maxTokens,
		condenseTokens: 1024,
	}
}

// Run produces the candidate record. It fails with deed.ExtractionError
// when no chunk contributed any signal, and retries structurally invalid
// model output with corrective feedback before giving up.
func (r *Reducer) Run(ctx context.Context, summaries []deed.ChunkSummary) (deed.Record, TokenUsage, error) {
	total := TokenUsage{}
	parts := usableSummaries(summaries)
	if len(parts) == 0 {
		return deed.Record{}, total, &deed.ExtractionError{Reason: "no chunk summary survived the map phase"}
	}

	super := strings.Join(parts, summarySeparator)
	depth := 0
	for len(super) > r.budget {
		depth++
		condensed, usage, err := r.condense(ctx, parts, depth)
		total.Add(usage)
		if err != nil {
			return deed.Record{}, total, err
		}
		parts = condensed
		super = strings.Join(parts, summarySeparator)
	}

	rec, usage, err := r.extract(ctx, super)
	total.Add(usage)
	if err != nil {
		return deed.Record{}, total, err
	}
	return rec, total, nil
}

// condense collapses ordered summary segments into fewer, shorter
// summaries while preserving order. Each call handles one budget-sized
// group; the loop in Run recurses until the joined result fits.
func (r *Reducer) condense(ctx context.Context, parts []string, depth int) ([]string, TokenUsage, error) {
	total := TokenUsage{}
	if depth > 6 {
		return nil, total, &deed.ExtractionError{Reason: "summary condensation did not converge"}
	}
	groups := groupWithinBudget(parts, r.budget)
	if len(groups) == len(parts) && len(groups) == 1 {
		// A single oversized summary cannot be re-split by grouping.
		return nil, total, &deed.ExtractionError{Reason: "summary exceeds context budget and cannot be condensed"}
	}
	log.Printf("deedflow reduce_condense depth=%d segments_in=%d segments_out=%d", depth, len(parts), len(groups))
	out := make([]string, 0, len(groups))
	for _, g := range groups {
		raw, usage, err := r.caller.Generate(ctx, fmt.Sprintf("condense_%d", depth), condenseSystem, buildCondensePrompt(g), r.condenseTokens)
		total.Add(usage)
		if err != nil {
			return nil, total, err
		}
		out = append(out, strings.TrimSpace(raw))
	}
	return out, total, nil
}

func (r *Reducer) extract(ctx context.Context, super string) (deed.Record, TokenUsage, error) {
	total := TokenUsage{}
	prompt := buildReducePrompt(super)
	feedback := ""
	const contentAttempts = 3
	for attempt := 1; attempt <= contentAttempts; attempt++ {
		fullPrompt := prompt
		if feedback != "" {
			fullPrompt += "\n\n" + feedback
		}
		raw, usage, err := r.caller.Generate(ctx, "reduce", r.prompts.ReduceSystem, fullPrompt, r.maxTokens)
		total.Add(usage)
		if err != nil {
			return deed.Record{}, total, err
		}
		var rec deed.Record
		clean := extractJSONObject(raw)
		if uerr := json.Unmarshal([]byte(clean), &rec); uerr != nil {
			log.Printf("deedflow reduce_json_error attempt=%d err=%q", attempt, uerr.Error())
			if attempt < contentAttempts {
				feedback = "Sua resposta anterior não era um JSON válido. Responda apenas com o JSON do schema."
				continue
			}
			return deed.Record{}, total, &deed.ExtractionError{Reason: "reduce output is not valid JSON: " + uerr.Error()}
		}
		rec.Normalize()
		if rec.IsEmpty() {
			log.Printf("deedflow reduce_empty_record attempt=%d", attempt)
			if attempt < contentAttempts {
				feedback = "Sua resposta anterior estava vazia. Preencha o schema com os dados do contexto."
				continue
			}
			return deed.Record{}, total, &deed.ExtractionError{Reason: "reduce produced an empty record"}
		}
		return rec, total, nil
	}
	return deed.Record{}, total, &deed.ExtractionError{Reason: "reduce retries exhausted"}
}

// usableSummaries drops degraded chunks and summaries the model marked
// irrelevant, preserving original chunk order.
func usableSummaries(summaries []deed.ChunkSummary) []string {
	var parts []string
	for _, s := range summaries {
		text := strings.TrimSpace(s.Summary)
		if text == "" || strings.Contains(text, IrrelevantMarker) {
			continue
		}
		parts = append(parts, text)
	}
	return parts
}

// groupWithinBudget packs consecutive summaries into segments not larger
// than the budget (a lone oversized summary forms its own segment).
func groupWithinBudget(parts []string, budget int) []string {
	var groups []string
	var cur strings.Builder
	for _, p := range parts {
		addition := len(p)
		if cur.Len() > 0 {
			addition += len(summarySeparator)
		}
		if cur.Len() > 0 && cur.Len()+addition > budget {
			groups = append(groups, cur.String())
			cur.Reset()
		}
		if cur.Len() > 0 {
			cur.WriteString(summarySeparator)
		}
		cur.WriteString(p)
	}
	if cur.Len() > 0 {
		groups = append(groups, cur.String())
	}
	return groups
}
