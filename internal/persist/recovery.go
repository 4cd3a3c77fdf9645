package persist

import (
	"bufio"
	"fmt"
	"os"

	"github.com/tentenbyte/stockd/internal/errors"
	"github.com/tentenbyte/stockd/internal/ledger"
)

// maxLineSize bounds a single WAL line during replay.
const maxLineSize = 1 << 20

// ReadSegment parses one WAL segment file. Malformed lines are counted and
// skipped, never fatal: recovery keeps every well-formed line before and
// after them.
func ReadSegment(path string) ([]Record, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, fmt.Errorf("open segment: %w", err)
	}
	defer f.Close()

	var (
		records []Record
		skipped int
	)

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), maxLineSize)

	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}

		rec, err := parseLine(line)
		if err != nil {
			skipped++
			continue
		}
		records = append(records, rec)
	}

	if err := scanner.Err(); err != nil {
		return records, skipped, fmt.Errorf("scan segment %s: %w", path, err)
	}

	return records, skipped, nil
}

// Recover rebuilds all tenant event sequences: it loads the latest snapshot
// (if one exists), then replays every WAL segment in filename-sorted order,
// skipping events the snapshot already contains (matched by trans_id per
// tenant). With no snapshot present this is a plain WAL replay.
//
// Individual unreadable segments and malformed lines are logged and skipped;
// an unreadable snapshot fails the recovery as a whole, because WAL segments
// compacted into the archive are no longer replayable.
func (m *Manager) Recover() (map[string][]ledger.Event, error) {
	data, seen, err := m.loadLatestSnapshot()
	if err != nil {
		return nil, err
	}
	if data == nil {
		data = make(map[string][]ledger.Event)
	}

	segments, err := m.segmentPaths()
	if err != nil {
		return nil, err
	}

	for _, path := range segments {
		records, skipped, err := ReadSegment(path)
		if err != nil {
			m.log.Error("cannot replay wal segment", "segment", path, "error", err)
		}
		if skipped > 0 {
			m.log.Warn("skipped malformed wal lines", "segment", path, "count", skipped)
		}

		for _, rec := range records {
			if ids, ok := seen[rec.TenantID]; ok {
				if _, dup := ids[rec.Event.TransID]; dup {
					continue
				}
			}
			data[rec.TenantID] = append(data[rec.TenantID], rec.Event)
		}
	}

	return data, nil
}

// ValidateIntegrity checks every recovered tenant sequence: every event must
// satisfy the same field-validity rules as a live append, and events replayed
// from the WAL must carry non-decreasing timestamps.
//
// The ordering rule holds only for the WAL-replayed suffix, where the
// timestamp is the monotonic receipt time adopted from the segment line.
// Events restored from a snapshot keep their caller-supplied timestamps,
// which a live append accepts in any order, so they are exempt. Validation is
// all-or-nothing; any single violation fails the entire recovery and the
// caller falls back to an empty store.
func (m *Manager) ValidateIntegrity(data map[string][]ledger.Event) error {
	m.mu.Lock()
	restored := m.restoredLens
	m.mu.Unlock()

	for tenantID, events := range data {
		replayedFrom := restored[tenantID]
		for i := range events {
			if i > replayedFrom && events[i].Timestamp < events[i-1].Timestamp {
				return errors.Wrapf(errors.ErrDataIntegrity,
					"tenant %s: timestamp order violation at %s",
					tenantID, events[i].TransID)
			}
			if err := events[i].Validate(); err != nil {
				return errors.Wrapf(errors.ErrDataIntegrity,
					"tenant %s: invalid event %s: %v",
					tenantID, events[i].TransID, err)
			}
		}
	}
	return nil
}
