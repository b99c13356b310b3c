package config

import (
	"testing"
	"time"
)

func TestFromEnvDefaults(t *testing.T) {
	t.Setenv("SAMPLE_CAP", "")
	t.Setenv("IMAGE_WORKERS", "")
	cfg := FromEnv()
	if cfg.Engine.SampleCap != 15 {
		t.Errorf("SampleCap = %d, want 15", cfg.Engine.SampleCap)
	}
	if cfg.Engine.ImageWorkers != 3 || cfg.Engine.DocumentWorkers != 1 {
		t.Errorf("workers = %d/%d", cfg.Engine.DocumentWorkers, cfg.Engine.ImageWorkers)
	}
	if cfg.Status.PollInterval != 500*time.Millisecond {
		t.Errorf("PollInterval = %v", cfg.Status.PollInterval)
	}
}

func TestFromEnvOverrides(t *testing.T) {
	t.Setenv("PAGE_BATCH_SIZE", "8")
	t.Setenv("DOCUMENT_MAX_RETRIES", "9")
	t.Setenv("IMAGE_MAX_RETRIES", "0")
	t.Setenv("LOG_PRETTY", "yes")
	t.Setenv("AXIOM_DATASET", "prod")
	cfg := FromEnv()
	if cfg.Engine.PageBatchSize != 8 {
		t.Errorf("PageBatchSize = %d", cfg.Engine.PageBatchSize)
	}
	if cfg.Engine.DocumentMaxRetries != 2 || cfg.Engine.ImageMaxRetries != 1 {
		t.Errorf("retries = %d/%d, want clamped 2/1", cfg.Engine.DocumentMaxRetries, cfg.Engine.ImageMaxRetries)
	}
	if !cfg.Logging.Pretty {
		t.Error("LOG_PRETTY=yes should enable pretty logs")
	}
	if cfg.Axiom.Dataset != "prod_docshrink" {
		t.Errorf("Dataset = %q", cfg.Axiom.Dataset)
	}
}

func TestParseHelpers(t *testing.T) {
	if parseInt("x", 4) != 4 {
		t.Error("parseInt fallback")
	}
	if parseDuration("bogus", time.Second) != time.Second {
		t.Error("parseDuration fallback")
	}
	for _, s := range []string{"1", "true", "ON", " yes "} {
		if !parseBool(s) {
			t.Errorf("parseBool(%q) = false", s)
		}
	}
}
