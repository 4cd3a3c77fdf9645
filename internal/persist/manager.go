// Package persist implements the durability layer of the ledger: a
// line-oriented write-ahead log with size-based segment rotation, replay
// recovery with integrity validation, point-in-time JSON snapshots with
// crash-safe replace, and an exclusive advisory lock on the data directory.
package persist

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

const (
	activeSegmentName = "current.wal"
	lockFileName      = ".lock"
)

// Options configures the persistence manager.
type Options struct {
	// SyncMode controls per-append durability: "flush" leaves flushing to
	// the OS, "fsync" fsyncs after every line.
	SyncMode string

	// MaxSegmentSize is the active segment size that triggers rotation.
	MaxSegmentSize int64
}

// DefaultOptions returns default persistence options.
func DefaultOptions() Options {
	return Options{
		SyncMode:       "fsync",
		MaxSegmentSize: 100 * 1024 * 1024, // 100MB
	}
}

// Manager owns the data directory: the active WAL segment, rotated segments,
// snapshot files and the advisory lock.
type Manager struct {
	mu sync.Mutex

	dataDir string
	opts    Options
	log     *slog.Logger

	lockFile   *os.File
	active     *os.File
	activeSize int64
	closed     bool

	lastSnapshot     string
	lastSnapshotTime time.Time

	// restoredLens holds the per-tenant event counts loaded from the latest
	// snapshot, marking where WAL replay begins in each recovered sequence.
	restoredLens map[string]int
}

// StorageInfo describes the state of the data directory.
type StorageInfo struct {
	DataDir          string    `json:"data_dir"`
	ActiveSegment    string    `json:"active_segment"`
	ActiveSize       int64     `json:"active_size"`
	RotatedSegments  int       `json:"rotated_segments"`
	LatestSnapshot   string    `json:"latest_snapshot"`
	LastSnapshotTime time.Time `json:"last_snapshot_time"`
}

// New creates a persistence manager: it creates the data directory, takes
// the exclusive advisory lock and opens the active WAL segment.
//
// A held lock is a distinct, fatal condition (errors.ErrLockHeld): a second
// process pointed at the same data directory must fail to start.
func New(dataDir string, opts Options, log *slog.Logger) (*Manager, error) {
	if opts.SyncMode == "" {
		opts.SyncMode = DefaultOptions().SyncMode
	}
	if opts.MaxSegmentSize <= 0 {
		opts.MaxSegmentSize = DefaultOptions().MaxSegmentSize
	}
	if log == nil {
		log = slog.Default()
	}

	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	lockFile, err := acquireLock(filepath.Join(dataDir, lockFileName))
	if err != nil {
		return nil, err
	}

	m := &Manager{
		dataDir:  dataDir,
		opts:     opts,
		log:      log,
		lockFile: lockFile,
	}

	if err := m.openActive(); err != nil {
		releaseLock(lockFile)
		return nil, err
	}

	log.Info("persistence manager ready",
		"data_dir", dataDir, "sync_mode", opts.SyncMode,
		"active_size", m.activeSize)

	return m, nil
}

// openActive opens (or creates) the active segment in append mode.
func (m *Manager) openActive() error {
	path := filepath.Join(m.dataDir, activeSegmentName)

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("open active segment: %w", err)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return fmt.Errorf("stat active segment: %w", err)
	}

	m.active = f
	m.activeSize = info.Size()
	return nil
}

// RotateActive closes the active segment, renames it to a rotated segment
// and opens a fresh one. An empty active segment is left in place.
func (m *Manager) RotateActive() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rotateLocked()
}

func (m *Manager) rotateLocked() error {
	if m.closed || m.active == nil {
		return nil
	}
	if m.activeSize == 0 {
		return nil
	}

	if err := m.active.Sync(); err != nil {
		return fmt.Errorf("sync before rotate: %w", err)
	}
	if err := m.active.Close(); err != nil {
		return fmt.Errorf("close active segment: %w", err)
	}
	m.active = nil

	src := filepath.Join(m.dataDir, activeSegmentName)
	dst := m.rotatedSegmentPath()
	if err := os.Rename(src, dst); err != nil {
		// Reopen so appends keep going to the old active segment.
		openErr := m.openActive()
		if openErr != nil {
			return fmt.Errorf("rename segment: %v; reopen active: %w", err, openErr)
		}
		return fmt.Errorf("rename segment: %w", err)
	}

	if err := m.openActive(); err != nil {
		return err
	}

	m.log.Info("wal segment rotated", "segment", filepath.Base(dst))
	return nil
}

// rotatedSegmentPath picks a fresh rotated segment name. Names encode the
// rotation time so a filename sort is chronological; a collision within one
// second gets a numeric suffix.
func (m *Manager) rotatedSegmentPath() string {
	ts := time.Now().UTC().Format("20060102_150405")
	path := filepath.Join(m.dataDir, fmt.Sprintf("wal_%s.log", ts))
	for i := 1; ; i++ {
		if _, err := os.Stat(path); os.IsNotExist(err) {
			return path
		}
		path = filepath.Join(m.dataDir, fmt.Sprintf("wal_%s_%d.log", ts, i))
	}
}

// RotatedSegments returns the rotated segment paths in filename-sorted
// (chronological) order. The active segment is not included.
func (m *Manager) RotatedSegments() ([]string, error) {
	entries, err := os.ReadDir(m.dataDir)
	if err != nil {
		return nil, fmt.Errorf("read data dir: %w", err)
	}

	var segments []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if strings.HasPrefix(name, "wal_") && strings.HasSuffix(name, ".log") {
			segments = append(segments, filepath.Join(m.dataDir, name))
		}
	}

	sort.Strings(segments)
	return segments, nil
}

// segmentPaths returns every WAL segment in replay order: rotated segments
// oldest-first, then the active segment.
func (m *Manager) segmentPaths() ([]string, error) {
	segments, err := m.RotatedSegments()
	if err != nil {
		return nil, err
	}

	active := filepath.Join(m.dataDir, activeSegmentName)
	if _, err := os.Stat(active); err == nil {
		segments = append(segments, active)
	}
	return segments, nil
}

// Info returns the state of the data directory.
func (m *Manager) Info() StorageInfo {
	m.mu.Lock()
	defer m.mu.Unlock()

	rotated, _ := m.RotatedSegments()

	return StorageInfo{
		DataDir:          m.dataDir,
		ActiveSegment:    filepath.Join(m.dataDir, activeSegmentName),
		ActiveSize:       m.activeSize,
		RotatedSegments:  len(rotated),
		LatestSnapshot:   m.lastSnapshot,
		LastSnapshotTime: m.lastSnapshotTime,
	}
}

// DataDir returns the data directory path.
func (m *Manager) DataDir() string {
	return m.dataDir
}

// Close flushes and closes the active segment and releases the advisory
// lock.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil
	}
	m.closed = true

	var firstErr error
	if m.active != nil {
		if err := m.active.Sync(); err != nil && firstErr == nil {
			firstErr = err
		}
		if err := m.active.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		m.active = nil
	}

	releaseLock(m.lockFile)
	m.lockFile = nil

	return firstErr
}
