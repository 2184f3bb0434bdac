package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/mgalindo/deedflow/internal/deed"
)

// keyedLLM answers per prompt content; safe under the mapper's fan-out.
type keyedLLM struct {
	mu    sync.Mutex
	calls int
	// answer builds the response for one prompt; a returned error is
	// surfaced as an inference failure.
	answer func(prompt string) (string, error)
}

func (k *keyedLLM) ModelName() string { return "fake-model" }

func (k *keyedLLM) Generate(ctx context.Context, system, prompt string, maxTokens int) (string, TokenUsage, error) {
	if err := ctx.Err(); err != nil {
		return "", TokenUsage{}, err
	}
	k.mu.Lock()
	k.calls++
	k.mu.Unlock()
	out, err := k.answer(prompt)
	if err != nil {
		return "", TokenUsage{Input: 50}, err
	}
	return out, TokenUsage{Input: 50, Output: 20}, nil
}

func makeChunks(n int) []deed.DocumentChunk {
	chunks := make([]deed.DocumentChunk, n)
	for i := range chunks {
		chunks[i] = deed.DocumentChunk{Index: i, Text: fmt.Sprintf("trecho-%02d", i)}
	}
	return chunks
}

func TestMapperPreservesChunkOrder(t *testing.T) {
	llm := &keyedLLM{answer: func(prompt string) (string, error) {
		for i := 0; i < 10; i++ {
			if strings.Contains(prompt, fmt.Sprintf("trecho-%02d", i)) {
				return fmt.Sprintf("sumário do trecho %d", i), nil
			}
		}
		return "", errors.New("unknown chunk")
	}}
	m := NewMapper(newTestCaller(llm), DefaultPrompts(), 4, 256)

	summaries, usage, err := m.Run(context.Background(), makeChunks(10))
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(summaries) != 10 {
		t.Fatalf("summaries: %d", len(summaries))
	}
	for i, s := range summaries {
		if s.Index != i {
			t.Fatalf("summary %d has index %d", i, s.Index)
		}
		if s.Summary != fmt.Sprintf("sumário do trecho %d", i) {
			t.Fatalf("summary %d out of order: %q", i, s.Summary)
		}
	}
	if usage.Input != 500 || usage.Output != 200 {
		t.Fatalf("usage: %+v", usage)
	}
}

func TestMapperDegradesFailedChunks(t *testing.T) {
	// Chunks 3 and 7 fail fatally; the document must still complete with
	// empty summaries in their positions.
	llm := &keyedLLM{answer: func(prompt string) (string, error) {
		if strings.Contains(prompt, "trecho-03") || strings.Contains(prompt, "trecho-07") {
			return "", errors.New("api error: status 400 content rejected")
		}
		return "sumário ok", nil
	}}
	m := NewMapper(newTestCaller(llm), DefaultPrompts(), 4, 256)

	summaries, _, err := m.Run(context.Background(), makeChunks(10))
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	for i, s := range summaries {
		degraded := i == 3 || i == 7
		if degraded && s.Summary != "" {
			t.Fatalf("chunk %d should be degraded, got %q", i, s.Summary)
		}
		if !degraded && s.Summary != "sumário ok" {
			t.Fatalf("chunk %d lost its summary: %q", i, s.Summary)
		}
	}
}

func TestMapperAbortsOnCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	llm := &keyedLLM{answer: func(prompt string) (string, error) {
		cancel()
		return "sumário", nil
	}}
	m := NewMapper(NewCaller(llm, 1, time.Millisecond, time.Second), DefaultPrompts(), 1, 256)

	_, _, err := m.Run(ctx, makeChunks(5))
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
