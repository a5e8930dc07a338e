package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"murmur/internal/config"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	cfg, resolved, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if exists {
		t.Fatal("expected missing config to be reported as absent")
	}
	if resolved != path {
		t.Fatalf("expected resolved path %q, got %q", path, resolved)
	}
	if cfg.Transcription.OptimalChunkSeconds != 180 {
		t.Fatalf("unexpected default optimal chunk seconds: %d", cfg.Transcription.OptimalChunkSeconds)
	}
	if cfg.Queue.Backend != "sqlite" {
		t.Fatalf("unexpected default queue backend: %q", cfg.Queue.Backend)
	}
}

func TestLoadParsesOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	content := `
[paths]
work_dir = "` + filepath.Join(dir, "work") + `"
log_dir = "` + filepath.Join(dir, "logs") + `"

[transcription]
default_language = "en"
batch_size = 4

[queue]
backend = "memory"
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, _, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if !exists {
		t.Fatal("expected config file to be found")
	}
	if cfg.Transcription.DefaultLanguage != "en" {
		t.Fatalf("expected language override, got %q", cfg.Transcription.DefaultLanguage)
	}
	if cfg.Transcription.BatchSize != 4 {
		t.Fatalf("expected batch size 4, got %d", cfg.Transcription.BatchSize)
	}
	if cfg.Queue.Backend != "memory" {
		t.Fatalf("expected memory backend, got %q", cfg.Queue.Backend)
	}
	// Untouched sections keep defaults.
	if cfg.Transcription.OverlapSeconds != 5 {
		t.Fatalf("expected default overlap, got %d", cfg.Transcription.OverlapSeconds)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := []struct {
		name    string
		mutate  func(*config.Config)
		message string
	}{
		{
			name:    "bad backend",
			mutate:  func(c *config.Config) { c.Queue.Backend = "redis" },
			message: "queue.backend",
		},
		{
			name:    "overlap too large",
			mutate:  func(c *config.Config) { c.Transcription.OverlapSeconds = 90 },
			message: "overlap_seconds",
		},
		{
			name:    "max below optimal",
			mutate:  func(c *config.Config) { c.Transcription.MaxChunkSeconds = 100 },
			message: "max_chunk_seconds",
		},
		{
			name:    "threshold out of range",
			mutate:  func(c *config.Config) { c.Transcription.DuplicateThreshold = 1.5 },
			message: "duplicate_threshold",
		},
		{
			name:    "zero workers",
			mutate:  func(c *config.Config) { c.Workflow.Workers = 0 },
			message: "workflow.workers",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := config.Default()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tc.message) {
				t.Fatalf("expected error mentioning %q, got %v", tc.message, err)
			}
		})
	}
}

func TestCreateSampleRoundTrips(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.toml")
	if err := config.CreateSample(path); err != nil {
		t.Fatalf("CreateSample failed: %v", err)
	}
	cfg, _, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load of sample failed: %v", err)
	}
	if !exists {
		t.Fatal("expected sample config to exist")
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("sample config should validate: %v", err)
	}
}
