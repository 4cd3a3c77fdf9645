package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults invalid: %v", err)
	}
	if cfg.Listen != "0.0.0.0:8900" {
		t.Errorf("listen: %s", cfg.Listen)
	}
	if cfg.WAL.SyncMode != "fsync" {
		t.Errorf("sync_mode: %s", cfg.WAL.SyncMode)
	}
	if cfg.WAL.MaxSegmentSize != 100*1024*1024 {
		t.Errorf("max_segment_size: %d", cfg.WAL.MaxSegmentSize)
	}
	if cfg.Archive.Enabled {
		t.Error("archive enabled by default")
	}
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	yaml := `
listen: "127.0.0.1:9000"
data_dir: "/var/lib/stockd"
wal:
  sync_mode: flush
  max_segment_size: 1048576
snapshot:
  interval: 30m
archive:
  enabled: true
  interval: 1h
  compression: snappy
  workers: 4
log:
  level: debug
  json: true
`
	if err := os.WriteFile(path, []byte(yaml), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Listen != "127.0.0.1:9000" {
		t.Errorf("listen: %s", cfg.Listen)
	}
	if cfg.WAL.SyncMode != "flush" || cfg.WAL.MaxSegmentSize != 1048576 {
		t.Errorf("wal: %+v", cfg.WAL)
	}
	if cfg.Snapshot.Interval != 30*time.Minute {
		t.Errorf("snapshot interval: %v", cfg.Snapshot.Interval)
	}
	if !cfg.Archive.Enabled || cfg.Archive.Compression != "snappy" || cfg.Archive.Workers != 4 {
		t.Errorf("archive: %+v", cfg.Archive)
	}
	if cfg.Log.Level != "debug" || !cfg.Log.JSON {
		t.Errorf("log: %+v", cfg.Log)
	}
	if cfg.ArchiveDir() != filepath.Join("/var/lib/stockd", "archive") {
		t.Errorf("archive dir: %s", cfg.ArchiveDir())
	}
}

func TestLoadPartialKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("listen: \":9100\"\n"), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Listen != ":9100" {
		t.Errorf("listen: %s", cfg.Listen)
	}
	if cfg.WAL.SyncMode != "fsync" {
		t.Errorf("default sync_mode lost: %s", cfg.WAL.SyncMode)
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty data_dir", func(c *Config) { c.DataDir = "" }},
		{"bad sync_mode", func(c *Config) { c.WAL.SyncMode = "sometimes" }},
		{"non-positive segment size", func(c *Config) { c.WAL.MaxSegmentSize = 0 }},
		{"archive workers", func(c *Config) { c.Archive.Enabled = true; c.Archive.Workers = 0 }},
		{"bad log level", func(c *Config) { c.Log.Level = "verbose" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}
