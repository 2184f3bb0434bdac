// Package config holds the invocation configuration. Business rules the
// source material leaves open (tolerances, process-number prefixes) live
// here instead of in code.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Pipeline   PipelineConfig   `yaml:"pipeline"`
	LLM        LLMConfig        `yaml:"llm"`
	Validation ValidationConfig `yaml:"validation"`
	Storage    StorageConfig    `yaml:"storage"`
	Journal    JournalConfig    `yaml:"journal"`
}

type PipelineConfig struct {
	ChunkSize      int `yaml:"chunk_size"`
	ChunkOverlap   int `yaml:"chunk_overlap"`
	ContextBudget  int `yaml:"context_budget"`
	MapWorkers     int `yaml:"map_workers"`
	RetryAttempts  int `yaml:"retry_attempts"`
	RetryBaseSec   int `yaml:"retry_base_sec"`
	CallTimeoutSec int `yaml:"call_timeout_sec"`
}

// RetryBase is the base delay for the linear retry backoff.
func (p PipelineConfig) RetryBase() time.Duration {
	return time.Duration(p.RetryBaseSec) * time.Second
}

// CallTimeout bounds a single inference call.
func (p PipelineConfig) CallTimeout() time.Duration {
	return time.Duration(p.CallTimeoutSec) * time.Second
}

type LLMConfig struct {
	Model           string `yaml:"model"`
	MapMaxTokens    int    `yaml:"map_max_tokens"`
	ReduceMaxTokens int    `yaml:"reduce_max_tokens"`
}

type ValidationConfig struct {
	// Absolute tolerance in currency units and relative tolerance as a
	// fraction; a numeric comparison passes when either is satisfied.
	ValueToleranceAbs float64 `yaml:"value_tolerance_abs"`
	ValueToleranceRel float64 `yaml:"value_tolerance_rel"`
	// Canonical group used when collapsing long regulator process
	// numbers, e.g. "CVM/SRE/AUT/CRI/PRI/2025/590" -> "SRE/0590/2025".
	ProcessCanonicalGroup string `yaml:"process_canonical_group"`
	// Also emit a divergence report when the filing is absent from the
	// reference table.
	ReportNotFound bool `yaml:"report_not_found"`
}

type StorageConfig struct {
	OutputPrefix    string `yaml:"output_prefix"`
	ReportPrefix    string `yaml:"report_prefix"`
	ReferenceBucket string `yaml:"reference_bucket"`
	ReferenceKey    string `yaml:"reference_key"`
	CredentialsFile string `yaml:"credentials_file"`
	// When set, a local directory store is used instead of GCS.
	LocalDir string `yaml:"local_dir"`
}

type JournalConfig struct {
	Path string `yaml:"path"`
}

// Default returns the configuration used when no file is given. Chunk
// sizes mirror the original ingestion settings for these deeds.
func Default() Config {
	return Config{
		Pipeline: PipelineConfig{
			ChunkSize:      2000,
			ChunkOverlap:   200,
			ContextBudget:  24000,
			MapWorkers:     4,
			RetryAttempts:  3,
			RetryBaseSec:   2,
			CallTimeoutSec: 60,
		},
		LLM: LLMConfig{
			Model:           "claude-3-5-haiku-latest",
			MapMaxTokens:    256,
			ReduceMaxTokens: 8192,
		},
		Validation: ValidationConfig{
			ValueToleranceAbs:     0.01,
			ValueToleranceRel:     0.001,
			ProcessCanonicalGroup: "SRE",
			ReportNotFound:        true,
		},
		Storage: StorageConfig{
			OutputPrefix: "output/",
			ReportPrefix: "reports/",
		},
		Journal: JournalConfig{
			Path: "deedflow-journal.db",
		},
	}
}

// Load reads a YAML file over the defaults. A missing path is not an
// error; the defaults apply.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	return cfg, cfg.validate()
}

func (c *Config) validate() error {
	if c.Pipeline.ChunkSize <= 0 {
		return fmt.Errorf("pipeline.chunk_size must be positive")
	}
	if c.Pipeline.ChunkOverlap < 0 || c.Pipeline.ChunkOverlap >= c.Pipeline.ChunkSize {
		return fmt.Errorf("pipeline.chunk_overlap must be in [0, chunk_size)")
	}
	if c.Pipeline.ContextBudget < c.Pipeline.ChunkSize {
		return fmt.Errorf("pipeline.context_budget must be at least chunk_size")
	}
	if c.Pipeline.MapWorkers <= 0 {
		return fmt.Errorf("pipeline.map_workers must be positive")
	}
	if c.Validation.ValueToleranceAbs < 0 || c.Validation.ValueToleranceRel < 0 {
		return fmt.Errorf("validation tolerances must be non-negative")
	}
	return nil
}
