// Package pipeline runs the extract-merge-validate cycle for one
// uploaded deed document: chunk the text, summarize chunks concurrently,
// reduce the summaries into a structured record, merge with the case's
// prior record, validate against the regulator reference table and
// persist the outcome.
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/mgalindo/deedflow/internal/deed"
	"github.com/mgalindo/deedflow/internal/report"
	"github.com/mgalindo/deedflow/internal/storage"
	"github.com/mgalindo/deedflow/internal/validate"
)

// Pipeline wires the stages for one document bucket. It is safe for
// sequential reuse across documents; a single Run is one invocation.
type Pipeline struct {
	store     storage.ObjectStore
	chunker   Chunker
	mapper    *Mapper
	reducer   *Reducer
	validator *validate.Validator
	reporter  *report.Reporter
	layout    report.Layout
	tracer    trace.Tracer
}

// Result describes one completed run.
type Result struct {
	Record        deed.Record
	RecordKey     string
	ReportKey     string
	ChunkTotal    int
	ChunkDegraded int
	Merged        bool
	Usage         TokenUsage
	Duration      time.Duration
}

func New(store storage.ObjectStore, chunker Chunker, mapper *Mapper, reducer *Reducer,
	validator *validate.Validator, reporter *report.Reporter, layout report.Layout) *Pipeline {
	return &Pipeline{
		store:     store,
		chunker:   chunker,
		mapper:    mapper,
		reducer:   reducer,
		validator: validator,
		reporter:  reporter,
		layout:    layout,
		tracer:    otel.Tracer("deedflow/pipeline"),
	}
}

// Run processes one uploaded document end to end. On any error the case's
// stored state is left untouched: nothing is written until the record has
// been extracted, merged and validated.
func (p *Pipeline) Run(ctx context.Context, event deed.TriggerEvent) (*Result, error) {
	started := time.Now()
	ctx, span := p.tracer.Start(ctx, "pipeline.run",
		trace.WithAttributes(attribute.String("doc.key", event.Key)))
	defer span.End()

	keys := p.layout.Keys(event.Key)
	res := &Result{RecordKey: keys.RecordKey}

	text, err := p.loadDocument(ctx, event.Key)
	if err != nil {
		return nil, err
	}

	chunks, err := p.chunker.Split(text)
	if err != nil {
		return nil, err
	}
	res.ChunkTotal = len(chunks)
	log.Printf("deedflow chunked key=%s chunks=%d", event.Key, len(chunks))

	summaries, mapUsage, err := p.runMap(ctx, chunks)
	res.Usage.Add(mapUsage)
	if err != nil {
		return nil, err
	}
	for _, s := range summaries {
		if s.Summary == "" {
			res.ChunkDegraded++
		}
	}

	candidate, reduceUsage, err := p.runReduce(ctx, summaries)
	res.Usage.Add(reduceUsage)
	if err != nil {
		return nil, err
	}

	merged, wasMerged, err := p.mergeWithPrior(ctx, keys, candidate)
	if err != nil {
		return nil, err
	}
	res.Merged = wasMerged

	p.runValidate(ctx, &merged)
	res.Record = merged

	reportKey, err := p.persist(ctx, keys, &merged)
	if err != nil {
		return nil, err
	}
	res.ReportKey = reportKey
	res.Duration = time.Since(started)

	span.SetAttributes(
		attribute.Int("chunks.total", res.ChunkTotal),
		attribute.Int("chunks.degraded", res.ChunkDegraded),
		attribute.Int("tokens.input", res.Usage.Input),
		attribute.Int("tokens.output", res.Usage.Output),
		attribute.String("validation.status", string(merged.Validation.Status)),
	)
	log.Printf("deedflow run_done key=%s status=%s chunks=%d degraded=%d tokens_in=%d tokens_out=%d elapsed=%s",
		event.Key, merged.Validation.Status, res.ChunkTotal, res.ChunkDegraded,
		res.Usage.Input, res.Usage.Output, res.Duration.Round(time.Millisecond))
	return res, nil
}

func (p *Pipeline) loadDocument(ctx context.Context, key string) (string, error) {
	ctx, span := p.tracer.Start(ctx, "pipeline.load")
	defer span.End()

	data, err := p.store.Get(ctx, key)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return "", &deed.InputError{Reason: fmt.Sprintf("document %s not found", key)}
		}
		return "", fmt.Errorf("load document %s: %w", key, err)
	}
	return string(data), nil
}

func (p *Pipeline) runMap(ctx context.Context, chunks []deed.DocumentChunk) ([]deed.ChunkSummary, TokenUsage, error) {
	ctx, span := p.tracer.Start(ctx, "pipeline.map",
		trace.WithAttributes(attribute.Int("chunks", len(chunks))))
	defer span.End()
	return p.mapper.Run(ctx, chunks)
}

func (p *Pipeline) runReduce(ctx context.Context, summaries []deed.ChunkSummary) (deed.Record, TokenUsage, error) {
	ctx, span := p.tracer.Start(ctx, "pipeline.reduce")
	defer span.End()
	return p.reducer.Run(ctx, summaries)
}

// mergeWithPrior folds the freshly extracted record into the newest
// stored record of the same case, if one exists. A prior record that no
// longer parses is skipped rather than poisoning the run.
func (p *Pipeline) mergeWithPrior(ctx context.Context, keys report.CaseKeys, candidate deed.Record) (deed.Record, bool, error) {
	ctx, span := p.tracer.Start(ctx, "pipeline.merge")
	defer span.End()

	priorKey, err := report.FindLatestRecord(ctx, p.store, keys.OutputDir)
	if err != nil {
		return deed.Record{}, false, fmt.Errorf("list prior records: %w", err)
	}
	if priorKey == "" {
		return deed.Merge(nil, candidate), false, nil
	}

	data, err := p.store.Get(ctx, priorKey)
	if err != nil {
		return deed.Record{}, false, fmt.Errorf("load prior record %s: %w", priorKey, err)
	}
	var prior deed.Record
	if err := json.Unmarshal(data, &prior); err != nil {
		log.Printf("deedflow prior_record_corrupt key=%s err=%q", priorKey, err.Error())
		return deed.Merge(nil, candidate), false, nil
	}
	log.Printf("deedflow merge_with_prior key=%s", priorKey)
	return deed.Merge(&prior, candidate), true, nil
}

func (p *Pipeline) runValidate(ctx context.Context, rec *deed.Record) {
	_, span := p.tracer.Start(ctx, "pipeline.validate")
	defer span.End()
	p.validator.Validate(rec)
	span.SetAttributes(attribute.String("status", string(rec.Validation.Status)))
}

func (p *Pipeline) persist(ctx context.Context, keys report.CaseKeys, rec *deed.Record) (string, error) {
	ctx, span := p.tracer.Start(ctx, "pipeline.persist")
	defer span.End()
	return p.reporter.Persist(ctx, keys, rec)
}
