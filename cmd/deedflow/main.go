// deedflow processes one uploaded securitization deed: extract a
// structured record, merge it with the case's prior record, validate it
// against the CVM registry extract and persist record plus divergence
// report.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"io"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/mgalindo/deedflow/internal/config"
	"github.com/mgalindo/deedflow/internal/deed"
	"github.com/mgalindo/deedflow/internal/journal"
	"github.com/mgalindo/deedflow/internal/pipeline"
	"github.com/mgalindo/deedflow/internal/refdata"
	"github.com/mgalindo/deedflow/internal/report"
	"github.com/mgalindo/deedflow/internal/storage"
	"github.com/mgalindo/deedflow/internal/telemetry"
	"github.com/mgalindo/deedflow/internal/validate"
)

func main() {
	var (
		configPath = flag.String("config", "", "Path to YAML config (defaults apply when empty)")
		eventPath  = flag.String("event", "", "Path to a trigger event JSON file ('-' for stdin)")
		bucket     = flag.String("bucket", "", "Bucket of the uploaded document (overrides the event)")
		key        = flag.String("key", "", "Object key of the uploaded document (overrides the event)")
	)
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	event, err := loadEvent(*eventPath, *bucket, *key)
	if err != nil {
		log.Fatalf("event: %v", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	shutdownTracing, err := telemetry.Setup(ctx, "deedflow", os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"))
	if err != nil {
		log.Fatalf("telemetry: %v", err)
	}
	defer func() {
		flushCtx, flushCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer flushCancel()
		if err := shutdownTracing(flushCtx); err != nil {
			log.Printf("deedflow tracing_shutdown err=%q", err.Error())
		}
	}()

	store, err := openStore(ctx, cfg.Storage, event.Bucket)
	if err != nil {
		log.Fatalf("storage: %v", err)
	}

	validator, err := loadValidator(ctx, cfg, store, event.Bucket)
	if err != nil {
		log.Fatalf("reference: %v", err)
	}

	llm, err := pipeline.NewAnthropicCallerFromEnv(cfg.LLM.Model)
	if err != nil {
		log.Fatalf("llm: %v", err)
	}
	caller := pipeline.NewCaller(llm, cfg.Pipeline.RetryAttempts, cfg.Pipeline.RetryBase(), cfg.Pipeline.CallTimeout())

	var pdf report.PDFRenderer
	if renderer, err := report.NewChromiumPDFRenderer(); err != nil {
		log.Printf("deedflow pdf_disabled err=%q", err.Error())
	} else {
		pdf = renderer
	}

	prompts := pipeline.DefaultPrompts()
	layout := report.Layout{OutputPrefix: cfg.Storage.OutputPrefix, ReportPrefix: cfg.Storage.ReportPrefix}
	p := pipeline.New(store,
		pipeline.Chunker{Size: cfg.Pipeline.ChunkSize, Overlap: cfg.Pipeline.ChunkOverlap},
		pipeline.NewMapper(caller, prompts, cfg.Pipeline.MapWorkers, cfg.LLM.MapMaxTokens),
		pipeline.NewReducer(caller, prompts, cfg.Pipeline.ContextBudget, cfg.LLM.ReduceMaxTokens),
		validator,
		report.NewReporter(store, cfg.Validation.ReportNotFound, pdf),
		layout,
	)

	started := time.Now()
	res, runErr := p.Run(ctx, event)

	recordRun(ctx, cfg.Journal.Path, llm.ModelName(), event, started, res, runErr)

	if runErr != nil {
		log.Fatalf("run failed for %s: %v", event.Key, runErr)
	}
	log.Printf("deedflow done key=%s record=%s status=%s", event.Key, res.RecordKey, res.Record.Validation.Status)
}

// loadEvent builds the trigger event from a JSON file, stdin, or the
// explicit flags. Flags win over the file.
func loadEvent(path, bucket, key string) (deed.TriggerEvent, error) {
	var event deed.TriggerEvent
	if path != "" {
		var data []byte
		var err error
		if path == "-" {
			data, err = io.ReadAll(os.Stdin)
		} else {
			data, err = os.ReadFile(path)
		}
		if err != nil {
			return event, err
		}
		if err := json.Unmarshal(data, &event); err != nil {
			return event, err
		}
	}
	if bucket != "" {
		event.Bucket = bucket
	}
	if key != "" {
		event.Key = key
	}
	if strings.TrimSpace(event.Key) == "" {
		return event, errors.New("no document key: pass --key or --event")
	}
	return event, nil
}

func openStore(ctx context.Context, cfg config.StorageConfig, bucket string) (storage.ObjectStore, error) {
	if cfg.LocalDir != "" {
		return storage.NewLocalStore(cfg.LocalDir)
	}
	if bucket == "" {
		return nil, errors.New("no bucket in the trigger event and no local_dir configured")
	}
	return storage.NewGCSStore(ctx, bucket, cfg.CredentialsFile)
}

// loadValidator reads the registry extract and builds the validator. The
// extract may live in a dedicated bucket or next to the documents.
func loadValidator(ctx context.Context, cfg config.Config, docStore storage.ObjectStore, docBucket string) (*validate.Validator, error) {
	if cfg.Storage.ReferenceKey == "" {
		return nil, errors.New("storage.reference_key not configured")
	}
	refStore := docStore
	if cfg.Storage.ReferenceBucket != "" && cfg.Storage.ReferenceBucket != docBucket && cfg.Storage.LocalDir == "" {
		var err error
		refStore, err = storage.NewGCSStore(ctx, cfg.Storage.ReferenceBucket, cfg.Storage.CredentialsFile)
		if err != nil {
			return nil, err
		}
	}
	data, err := refStore.Get(ctx, cfg.Storage.ReferenceKey)
	if err != nil {
		return nil, err
	}
	table, err := refdata.Load(data, cfg.Validation.ProcessCanonicalGroup)
	if err != nil {
		return nil, err
	}
	log.Printf("deedflow reference_loaded key=%s rows=%d", cfg.Storage.ReferenceKey, table.Len())
	return validate.New(table, cfg.Storage.ReferenceKey, cfg.Validation), nil
}

// recordRun appends the journal row. Journal problems are logged only;
// the pipeline outcome stands on its own.
func recordRun(ctx context.Context, path, model string, event deed.TriggerEvent, started time.Time, res *pipeline.Result, runErr error) {
	if path == "" {
		return
	}
	j, err := journal.Open(path)
	if err != nil {
		log.Printf("deedflow journal_open_failed path=%s err=%q", path, err.Error())
		return
	}
	defer j.Close()

	entry := journal.Entry{
		StartedAt:  started,
		FinishedAt: time.Now(),
		Bucket:     event.Bucket,
		DocKey:     event.Key,
		Model:      model,
		Status:     "ERRO",
	}
	if res != nil {
		entry.RecordKey = res.RecordKey
		entry.ReportKey = res.ReportKey
		entry.ChunkTotal = res.ChunkTotal
		entry.ChunkDegraded = res.ChunkDegraded
		entry.InputTokens = res.Usage.Input
		entry.OutputTokens = res.Usage.Output
		if runErr == nil {
			entry.Status = string(res.Record.Validation.Status)
		}
	}
	if runErr != nil {
		entry.Error = runErr.Error()
	}
	if err := j.Record(ctx, entry); err != nil {
		log.Printf("deedflow journal_write_failed err=%q", err.Error())
	}
}
