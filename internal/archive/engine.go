package archive

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/tentenbyte/stockd/internal/errors"
	"github.com/tentenbyte/stockd/internal/persist"
)

// Source is the WAL side of an archival pass.
type Source interface {
	RotateActive() error
	RotatedSegments() ([]string, error)
}

// Snapshotter dumps the current in-memory state to a snapshot file.
type Snapshotter interface {
	CreateSnapshot() error
}

// Options configures the archive engine.
type Options struct {
	// Compression algorithm for output files.
	Compression string

	// Workers bounds concurrent segment compactions.
	Workers int
}

// DefaultOptions returns default archive options.
func DefaultOptions() Options {
	return Options{
		Compression: "zstd",
		Workers:     2,
	}
}

// Engine rewrites rotated WAL segments as Parquet files.
type Engine struct {
	archiveDir  string
	compression CompressionType
	workers     int
	log         *slog.Logger

	stats Stats
}

// Stats holds archive counters.
type Stats struct {
	PassesCompleted   atomic.Int64
	PassesFailed      atomic.Int64
	SegmentsCompacted atomic.Int64
	RowsWritten       atomic.Int64
}

// EngineStats is a point-in-time copy of the archive counters.
type EngineStats struct {
	PassesCompleted   int64 `json:"passes_completed"`
	PassesFailed      int64 `json:"passes_failed"`
	SegmentsCompacted int64 `json:"segments_compacted"`
	RowsWritten       int64 `json:"rows_written"`
}

// New creates an archive engine writing to archiveDir.
func New(archiveDir string, opts Options, log *slog.Logger) *Engine {
	if opts.Workers <= 0 {
		opts.Workers = DefaultOptions().Workers
	}
	if log == nil {
		log = slog.Default()
	}

	return &Engine{
		archiveDir:  archiveDir,
		compression: ParseCompressionType(opts.Compression),
		workers:     opts.Workers,
		log:         log,
	}
}

// Run executes one archival pass:
//
//  1. rotate the active WAL segment
//  2. snapshot the in-memory state
//  3. compact every rotated segment to Parquet
//  4. delete the compacted segments
//
// The snapshot must land before any segment is deleted: once a segment is
// gone its events survive only in the snapshot and the archive.
func (e *Engine) Run(ctx context.Context, src Source, snap Snapshotter) error {
	if err := e.run(ctx, src, snap); err != nil {
		e.stats.PassesFailed.Add(1)
		return err
	}
	e.stats.PassesCompleted.Add(1)
	return nil
}

func (e *Engine) run(ctx context.Context, src Source, snap Snapshotter) error {
	if err := src.RotateActive(); err != nil {
		return errors.Wrapf(errors.ErrArchiveFailed, "rotate active segment: %v", err)
	}

	segments, err := src.RotatedSegments()
	if err != nil {
		return errors.Wrapf(errors.ErrArchiveFailed, "list segments: %v", err)
	}
	if len(segments) == 0 {
		return nil
	}

	if err := snap.CreateSnapshot(); err != nil {
		return errors.Wrapf(errors.ErrArchiveFailed, "snapshot before compaction: %v", err)
	}

	n, err := e.CompactSegments(ctx, segments)
	if err != nil {
		return err
	}

	e.log.Info("archival pass complete", "segments", n, "archive_dir", e.archiveDir)
	return nil
}

// CompactSegments rewrites the given segments as Parquet files and deletes
// each segment once its output file is fully written. Segments compact in
// parallel, bounded by the worker limit; a failed segment stays in place and
// is retried by the next pass.
func (e *Engine) CompactSegments(ctx context.Context, segments []string) (int, error) {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(e.workers)

	var compacted atomic.Int64

	for _, segment := range segments {
		segment := segment
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := e.compactSegment(segment); err != nil {
				return errors.Wrapf(errors.ErrArchiveFailed, "%s: %v",
					filepath.Base(segment), err)
			}
			compacted.Add(1)
			return nil
		})
	}

	err := g.Wait()
	return int(compacted.Load()), err
}

// compactSegment rewrites one WAL segment as a Parquet file, then removes
// the segment. The output keeps the segment's base name so archive files
// sort chronologically too.
func (e *Engine) compactSegment(segment string) error {
	records, skipped, err := persist.ReadSegment(segment)
	if err != nil {
		return err
	}
	if skipped > 0 {
		e.log.Warn("malformed lines dropped during compaction",
			"segment", filepath.Base(segment), "count", skipped)
	}

	out := e.outputPath(segment)
	tmp := out + ".tmp"

	writer, err := NewEventWriter(tmp, e.compression)
	if err != nil {
		return err
	}

	rows := make([]EventRow, len(records))
	for i := range records {
		rows[i] = RecordToRow(&records[i])
	}

	if err := writer.Write(rows); err != nil {
		writer.Close()
		os.Remove(tmp)
		return err
	}
	if err := writer.Close(); err != nil {
		os.Remove(tmp)
		return err
	}

	if err := os.Rename(tmp, out); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("rename archive file: %w", err)
	}

	if err := os.Remove(segment); err != nil {
		return fmt.Errorf("remove compacted segment: %w", err)
	}

	e.stats.SegmentsCompacted.Add(1)
	e.stats.RowsWritten.Add(int64(len(rows)))

	e.log.Info("segment compacted",
		"segment", filepath.Base(segment),
		"archive", filepath.Base(out), "rows", len(rows))
	return nil
}

// outputPath maps a segment path to its archive file path.
func (e *Engine) outputPath(segment string) string {
	base := strings.TrimSuffix(filepath.Base(segment), ".log")
	return filepath.Join(e.archiveDir, base+".parquet")
}

// ArchiveFiles returns the archive file paths in filename-sorted order.
func (e *Engine) ArchiveFiles() ([]string, error) {
	entries, err := os.ReadDir(e.archiveDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read archive dir: %w", err)
	}

	var files []string
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".parquet" {
			continue
		}
		files = append(files, filepath.Join(e.archiveDir, entry.Name()))
	}
	return files, nil
}

// Stats returns current archive counters.
func (e *Engine) Stats() EngineStats {
	return EngineStats{
		PassesCompleted:   e.stats.PassesCompleted.Load(),
		PassesFailed:      e.stats.PassesFailed.Load(),
		SegmentsCompacted: e.stats.SegmentsCompacted.Load(),
		RowsWritten:       e.stats.RowsWritten.Load(),
	}
}
