package pipeline

import (
	"context"
	"log"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/mgalindo/deedflow/internal/deed"
)

// Mapper runs the map phase: one hunting summarization call per chunk,
// fanned out over a bounded worker pool. A chunk whose retries are
// exhausted degrades to an empty summary instead of failing the document;
// identifiers tend to repeat across chunks, so losing one chunk's
// contribution is survivable.
type Mapper struct {
	caller    *Caller
	prompts   Prompts
	workers   int
	maxTokens int
}

func NewMapper(caller *Caller, prompts Prompts, workers, maxTokens int) *Mapper {
	if workers <= 0 {
		workers = 4
	}
	if maxTokens <= 0 {
		maxTokens = 256
	}
	return &Mapper{caller: caller, prompts: prompts, workers: workers, maxTokens: maxTokens}
}

// Run summarizes every chunk and returns the summaries in original chunk
// index order regardless of completion order. Only invocation
// cancellation aborts the phase.
func (m *Mapper) Run(ctx context.Context, chunks []deed.DocumentChunk) ([]deed.ChunkSummary, TokenUsage, error) {
	summaries := make([]deed.ChunkSummary, len(chunks))
	var mu sync.Mutex
	total := TokenUsage{}
	degraded := 0

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.workers)
	for _, chunk := range chunks {
		g.Go(func() error {
			raw, usage, err := m.caller.Generate(gctx, "map", m.prompts.MapSystem, buildMapPrompt(chunk), m.maxTokens)
			mu.Lock()
			total.Add(usage)
			mu.Unlock()
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				log.Printf("deedflow map_chunk_degraded chunk=%d err=%q", chunk.Index, err.Error())
				mu.Lock()
				degraded++
				mu.Unlock()
				summaries[chunk.Index] = deed.ChunkSummary{Index: chunk.Index}
				return nil
			}
			summaries[chunk.Index] = deed.ChunkSummary{Index: chunk.Index, Summary: strings.TrimSpace(raw)}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, total, err
	}
	log.Printf("deedflow map_done chunks=%d degraded=%d in_tokens=%d out_tokens=%d",
		len(chunks), degraded, total.Input, total.Output)
	return summaries, total, nil
}
