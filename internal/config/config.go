// Package config defines the stockd configuration and its YAML loader.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete stockd configuration.
type Config struct {
	// Listen is the HTTP listen address.
	Listen string `yaml:"listen"`

	// DataDir is the root directory for WAL segments, snapshots and archives.
	DataDir string `yaml:"data_dir"`

	// WAL configures the Write-Ahead Log.
	WAL WALConfig `yaml:"wal"`

	// Snapshot configures snapshot behavior.
	Snapshot SnapshotConfig `yaml:"snapshot"`

	// Archive configures the archival pass.
	Archive ArchiveConfig `yaml:"archive"`

	// Log configures logging output.
	Log LogConfig `yaml:"log"`
}

// WALConfig configures the Write-Ahead Log.
type WALConfig struct {
	// SyncMode is the durability mode: "flush" (buffered flush per append)
	// or "fsync" (flush + fsync per append).
	SyncMode string `yaml:"sync_mode"`

	// MaxSegmentSize is the maximum active segment size before rotation.
	MaxSegmentSize int64 `yaml:"max_segment_size"`
}

// SnapshotConfig configures snapshot behavior.
type SnapshotConfig struct {
	// Interval is how often a background snapshot is taken. Zero disables
	// the background snapshotter; a final snapshot is still attempted on
	// shutdown.
	Interval time.Duration `yaml:"interval"`
}

// ArchiveConfig configures the archival pass.
type ArchiveConfig struct {
	// Enabled enables the background archival pass.
	Enabled bool `yaml:"enabled"`

	// Interval is how often the archival pass runs.
	Interval time.Duration `yaml:"interval"`

	// Compression is the Parquet compression algorithm: zstd, snappy, lz4,
	// gzip or none.
	Compression string `yaml:"compression"`

	// Workers is the number of parallel segment compactions.
	Workers int `yaml:"workers"`
}

// LogConfig configures logging output.
type LogConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `yaml:"level"`

	// JSON switches output to JSON format.
	JSON bool `yaml:"json"`
}

// Load loads configuration from a YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	config := DefaultConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return config, nil
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Listen:  "0.0.0.0:8900",
		DataDir: "./data",
		WAL: WALConfig{
			SyncMode:       "fsync",
			MaxSegmentSize: 100 * 1024 * 1024, // 100MB
		},
		Snapshot: SnapshotConfig{
			Interval: time.Hour,
		},
		Archive: ArchiveConfig{
			Enabled:     false,
			Interval:    24 * time.Hour,
			Compression: "zstd",
			Workers:     2,
		},
		Log: LogConfig{
			Level: "info",
			JSON:  false,
		},
	}
}

// Validate checks the configuration for consistency.
func (c *Config) Validate() error {
	if c.DataDir == "" {
		return fmt.Errorf("data_dir is required")
	}

	switch c.WAL.SyncMode {
	case "flush", "fsync":
	default:
		return fmt.Errorf("wal.sync_mode must be flush or fsync, got %q", c.WAL.SyncMode)
	}

	if c.WAL.MaxSegmentSize <= 0 {
		return fmt.Errorf("wal.max_segment_size must be positive, got %d", c.WAL.MaxSegmentSize)
	}

	if c.Archive.Enabled && c.Archive.Workers <= 0 {
		return fmt.Errorf("archive.workers must be positive, got %d", c.Archive.Workers)
	}

	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level must be debug, info, warn or error, got %q", c.Log.Level)
	}

	return nil
}

// ArchiveDir returns the directory for Parquet archive files.
func (c *Config) ArchiveDir() string {
	return filepath.Join(c.DataDir, "archive")
}
