package persist

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/tentenbyte/stockd/internal/errors"
	"github.com/tentenbyte/stockd/internal/ledger"
)

// walFieldCount is the exact number of pipe-delimited fields per WAL line:
//
//	timestamp|tenant_id|trans_id|item_id|item_name|type|quantity|unit_price|
//	category|model|unit|partner_id|partner_name|warehouse_id|document_no|note
//
// Field 0 is the WAL-assigned receipt time, not the caller-supplied event
// timestamp.
const walFieldCount = 16

// Record pairs a WAL line's tenant id with its decoded event.
type Record struct {
	TenantID string
	Event    ledger.Event
}

// receiptTimestamp returns the WAL receipt time: UTC ISO-8601 with
// millisecond precision, lexicographically comparable.
func receiptTimestamp() string {
	return time.Now().UTC().Format("2006-01-02T15:04:05.000Z")
}

// serializeEvent encodes one event as a WAL line without the trailing
// newline. unit_price carries exactly 2 fractional digits.
func serializeEvent(receipt, tenantID string, e ledger.Event) string {
	fields := [walFieldCount]string{
		receipt,
		tenantID,
		e.TransID,
		e.ItemID,
		e.ItemName,
		e.Type,
		strconv.Itoa(e.Quantity),
		strconv.FormatFloat(e.UnitPrice, 'f', 2, 64),
		e.Category,
		e.Model,
		e.Unit,
		e.PartnerID,
		e.PartnerName,
		e.WarehouseID,
		e.DocumentNo,
		e.Note,
	}
	return strings.Join(fields[:], "|")
}

// parseLine decodes one WAL line. The decoded event's timestamp is the WAL
// receipt time from field 0.
func parseLine(line string) (Record, error) {
	fields := strings.Split(line, "|")
	if len(fields) != walFieldCount {
		return Record{}, errors.Wrapf(errors.ErrMalformedLine,
			"expected %d fields, got %d", walFieldCount, len(fields))
	}

	quantity, err := strconv.Atoi(fields[6])
	if err != nil {
		return Record{}, errors.Wrapf(errors.ErrMalformedLine, "quantity %q", fields[6])
	}

	unitPrice, err := strconv.ParseFloat(fields[7], 64)
	if err != nil {
		return Record{}, errors.Wrapf(errors.ErrMalformedLine, "unit_price %q", fields[7])
	}

	return Record{
		TenantID: fields[1],
		Event: ledger.Event{
			Timestamp:   fields[0],
			TenantID:    fields[1],
			TransID:     fields[2],
			ItemID:      fields[3],
			ItemName:    fields[4],
			Type:        fields[5],
			Quantity:    quantity,
			UnitPrice:   unitPrice,
			Category:    fields[8],
			Model:       fields[9],
			Unit:        fields[10],
			PartnerID:   fields[11],
			PartnerName: fields[12],
			WarehouseID: fields[13],
			DocumentNo:  fields[14],
			Note:        fields[15],
		},
	}, nil
}

// WriteEvent serializes one event, appends it as a single line to the active
// segment and flushes it durably. It never retries: failure propagates to the
// ledger append, which aborts before any memory mutation.
func (m *Manager) WriteEvent(tenantID string, e ledger.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed || m.active == nil {
		return errors.ErrPersistenceClosed
	}

	line := serializeEvent(receiptTimestamp(), tenantID, e) + "\n"

	n, err := m.active.WriteString(line)
	if err != nil {
		return fmt.Errorf("write wal line: %w", err)
	}

	if m.opts.SyncMode == "fsync" {
		if err := m.active.Sync(); err != nil {
			return fmt.Errorf("sync wal: %w", err)
		}
	}

	m.activeSize += int64(n)

	// Size check runs after the durable write: the event is already safe,
	// so a rotation failure is logged but never fails the append.
	if m.activeSize > m.opts.MaxSegmentSize {
		if err := m.rotateLocked(); err != nil {
			m.log.Warn("wal rotation failed", "error", err)
		}
	}

	return nil
}
