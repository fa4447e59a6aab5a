package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load with defaults failed: %v", err)
	}
	if cfg.Aggregator.IdleTimeout != 30*time.Second {
		t.Errorf("idleTimeout = %v, want 30s", cfg.Aggregator.IdleTimeout)
	}
	if cfg.Aggregator.BatchSize != 10 {
		t.Errorf("batchSize = %d, want 10", cfg.Aggregator.BatchSize)
	}
	if cfg.Aggregator.ReindexBatchSize != 100 {
		t.Errorf("reindexBatchSize = %d, want 100", cfg.Aggregator.ReindexBatchSize)
	}
}

func TestLoadFileAndEnvOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cfg.yaml")
	data := []byte("aggregator:\n  batchSize: 25\n  idleTimeout: 45s\nredis:\n  addr: redis.internal:6379\n")
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatalf("writing temp config: %v", err)
	}
	t.Setenv("CS_BATCH_SIZE", "50")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.Aggregator.BatchSize != 50 {
		t.Errorf("env override lost: batchSize = %d, want 50", cfg.Aggregator.BatchSize)
	}
	if cfg.Aggregator.IdleTimeout != 45*time.Second {
		t.Errorf("file value lost: idleTimeout = %v, want 45s", cfg.Aggregator.IdleTimeout)
	}
	if cfg.Redis.Addr != "redis.internal:6379" {
		t.Errorf("redis addr = %q", cfg.Redis.Addr)
	}
}

func TestLoadRejectsInvalidAggregator(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cfg.yaml")
	if err := os.WriteFile(path, []byte("aggregator:\n  batchSize: 0\n"), 0o600); err != nil {
		t.Fatalf("writing temp config: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Error("expected validation error for batchSize 0")
	}
}

func TestLoadRejectsZeroPollInterval(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cfg.yaml")
	if err := os.WriteFile(path, []byte("aggregator:\n  pollInterval: 0s\n"), 0o600); err != nil {
		t.Fatalf("writing temp config: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Error("expected validation error for pollInterval 0")
	}
}
