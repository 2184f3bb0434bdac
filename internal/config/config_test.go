package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadMissingPathUsesDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Pipeline.ChunkSize != 2000 || cfg.Pipeline.ChunkOverlap != 200 {
		t.Fatalf("unexpected defaults: %+v", cfg.Pipeline)
	}
	if cfg.Validation.ProcessCanonicalGroup != "SRE" {
		t.Fatalf("unexpected canonical group %q", cfg.Validation.ProcessCanonicalGroup)
	}
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cfg.yaml")
	body := `
pipeline:
  chunk_size: 4000
  map_workers: 8
  retry_base_sec: 1
validation:
  value_tolerance_rel: 0.01
  process_canonical_group: CRI
`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Pipeline.ChunkSize != 4000 || cfg.Pipeline.MapWorkers != 8 {
		t.Fatalf("overrides not applied: %+v", cfg.Pipeline)
	}
	if cfg.Pipeline.RetryBase() != time.Second {
		t.Fatalf("duration not parsed: %v", cfg.Pipeline.RetryBase())
	}
	if cfg.Pipeline.ChunkOverlap != 200 {
		t.Fatalf("unrelated default lost: %+v", cfg.Pipeline)
	}
	if cfg.Validation.ProcessCanonicalGroup != "CRI" {
		t.Fatalf("canonical group not applied: %+v", cfg.Validation)
	}
}

func TestLoadRejectsBadOverlap(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cfg.yaml")
	if err := os.WriteFile(path, []byte("pipeline:\n  chunk_size: 100\n  chunk_overlap: 100\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected validation error")
	}
}
