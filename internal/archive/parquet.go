// Package archive compacts rotated WAL segments into Parquet files. An
// archival pass rotates the active segment, snapshots the in-memory state,
// rewrites every rotated segment as a columnar file and deletes the segments
// it covered. Archived events are no longer replayed at startup; the
// snapshot carries them instead.
package archive

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/parquet-go/parquet-go"
	"github.com/parquet-go/parquet-go/compress"

	"github.com/tentenbyte/stockd/internal/persist"
)

// CompressionType represents a Parquet compression algorithm.
type CompressionType int

const (
	CompressionNone CompressionType = iota
	CompressionSnappy
	CompressionZstd
	CompressionLZ4
	CompressionGzip
)

// ParseCompressionType parses a compression type string.
func ParseCompressionType(s string) CompressionType {
	switch s {
	case "snappy":
		return CompressionSnappy
	case "zstd":
		return CompressionZstd
	case "lz4":
		return CompressionLZ4
	case "gzip":
		return CompressionGzip
	case "none", "":
		return CompressionNone
	default:
		return CompressionZstd
	}
}

// getCompression returns the parquet-go compression codec.
func getCompression(ct CompressionType) compress.Codec {
	switch ct {
	case CompressionSnappy:
		return &parquet.Snappy
	case CompressionZstd:
		return &parquet.Zstd
	case CompressionLZ4:
		return &parquet.Lz4Raw
	case CompressionGzip:
		return &parquet.Gzip
	default:
		return &parquet.Uncompressed
	}
}

// EventRow represents one WAL record in Parquet format. The timestamp is the
// WAL receipt time, preserved verbatim from the segment line.
type EventRow struct {
	Timestamp   string  `parquet:"timestamp,zstd"`
	TenantID    string  `parquet:"tenant_id,zstd"`
	TransID     string  `parquet:"trans_id,zstd"`
	ItemID      string  `parquet:"item_id,zstd"`
	ItemName    string  `parquet:"item_name,zstd"`
	Type        string  `parquet:"type,zstd"`
	Quantity    int32   `parquet:"quantity"`
	UnitPrice   float64 `parquet:"unit_price"`
	Category    string  `parquet:"category,optional,zstd"`
	Model       string  `parquet:"model,optional,zstd"`
	Unit        string  `parquet:"unit,optional,zstd"`
	PartnerID   string  `parquet:"partner_id,optional,zstd"`
	PartnerName string  `parquet:"partner_name,optional,zstd"`
	WarehouseID string  `parquet:"warehouse_id,optional,zstd"`
	DocumentNo  string  `parquet:"document_no,optional,zstd"`
	Note        string  `parquet:"note,optional,zstd"`
}

// RecordToRow converts a WAL record to an EventRow.
func RecordToRow(r *persist.Record) EventRow {
	return EventRow{
		Timestamp:   r.Event.Timestamp,
		TenantID:    r.TenantID,
		TransID:     r.Event.TransID,
		ItemID:      r.Event.ItemID,
		ItemName:    r.Event.ItemName,
		Type:        r.Event.Type,
		Quantity:    int32(r.Event.Quantity),
		UnitPrice:   r.Event.UnitPrice,
		Category:    r.Event.Category,
		Model:       r.Event.Model,
		Unit:        r.Event.Unit,
		PartnerID:   r.Event.PartnerID,
		PartnerName: r.Event.PartnerName,
		WarehouseID: r.Event.WarehouseID,
		DocumentNo:  r.Event.DocumentNo,
		Note:        r.Event.Note,
	}
}

// EventWriter writes event rows to a Parquet file.
type EventWriter struct {
	mu       sync.Mutex
	path     string
	file     *os.File
	writer   *parquet.GenericWriter[EventRow]
	rowCount int64
	closed   bool
}

// ErrWriterClosed is returned when writing to a closed writer.
var ErrWriterClosed = fmt.Errorf("parquet writer is closed")

// NewEventWriter creates a new event Parquet writer.
func NewEventWriter(path string, compression CompressionType) (*EventWriter, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create directory: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create file: %w", err)
	}

	writer := parquet.NewGenericWriter[EventRow](f,
		parquet.Compression(getCompression(compression)))

	return &EventWriter{
		path:   path,
		file:   f,
		writer: writer,
	}, nil
}

// Write writes rows to the Parquet file.
func (w *EventWriter) Write(rows []EventRow) error {
	if len(rows) == 0 {
		return nil
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return ErrWriterClosed
	}

	n, err := w.writer.Write(rows)
	if err != nil {
		return fmt.Errorf("write rows: %w", err)
	}

	w.rowCount += int64(n)
	return nil
}

// Close closes the writer.
func (w *EventWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}
	w.closed = true

	if err := w.writer.Close(); err != nil {
		w.file.Close()
		return fmt.Errorf("close writer: %w", err)
	}

	return w.file.Close()
}

// RowCount returns the number of rows written.
func (w *EventWriter) RowCount() int64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.rowCount
}

// Path returns the file path.
func (w *EventWriter) Path() string {
	return w.path
}

// EventReader reads event rows from a Parquet file.
type EventReader struct {
	file   *os.File
	reader *parquet.GenericReader[EventRow]
	path   string
}

// NewEventReader creates a new event Parquet reader.
func NewEventReader(path string) (*EventReader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("stat file: %w", err)
	}

	pf, err := parquet.OpenFile(f, info.Size(), parquet.ReadBufferSize(1024*1024))
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("open parquet file: %w", err)
	}

	reader := parquet.NewGenericReader[EventRow](pf)

	return &EventReader{
		file:   f,
		reader: reader,
		path:   path,
	}, nil
}

// ReadAll reads all rows from the file.
func (r *EventReader) ReadAll() ([]EventRow, error) {
	numRows := r.reader.NumRows()
	rows := make([]EventRow, numRows)

	n, err := r.reader.Read(rows)
	if err != nil && err != io.EOF {
		return nil, err
	}

	return rows[:n], nil
}

// NumRows returns the total number of rows in the file.
func (r *EventReader) NumRows() int64 {
	return r.reader.NumRows()
}

// Close closes the reader.
func (r *EventReader) Close() error {
	if err := r.reader.Close(); err != nil {
		r.file.Close()
		return err
	}
	return r.file.Close()
}

// Path returns the file path.
func (r *EventReader) Path() string {
	return r.path
}
