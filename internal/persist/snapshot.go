package persist

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/tentenbyte/stockd/internal/errors"
	"github.com/tentenbyte/stockd/internal/ledger"
)

// snapshotLine is one tenant's full event sequence, one JSON object per line.
type snapshotLine struct {
	ManagerID    string         `json:"manager_id"`
	Transactions []ledger.Event `json:"transactions"`
}

// CreateSnapshot writes a point-in-time dump of all tenant sequences: comment
// headers, then one JSON line per tenant in sorted tenant order. The file is
// written to a temp name and renamed into place, so readers only ever see a
// complete snapshot.
func (m *Manager) CreateSnapshot(data map[string][]ledger.Event) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return errors.ErrPersistenceClosed
	}
	m.mu.Unlock()

	path := m.snapshotPath()
	tmp := path + ".tmp"

	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return errors.Wrapf(errors.ErrSnapshotFailed, "create temp file: %v", err)
	}

	w := bufio.NewWriter(f)
	fmt.Fprintf(w, "# Snapshot created at: %s\n", receiptTimestamp())
	fmt.Fprintln(w, "# Format: JSON lines, one tenant per line")

	tenants := make([]string, 0, len(data))
	for tenantID := range data {
		tenants = append(tenants, tenantID)
	}
	sort.Strings(tenants)

	for _, tenantID := range tenants {
		events := data[tenantID]
		if events == nil {
			events = []ledger.Event{}
		}

		line, err := json.Marshal(snapshotLine{
			ManagerID:    tenantID,
			Transactions: events,
		})
		if err != nil {
			f.Close()
			os.Remove(tmp)
			return errors.Wrapf(errors.ErrSnapshotFailed, "marshal tenant %s: %v", tenantID, err)
		}

		w.Write(line)
		w.WriteByte('\n')
	}

	if err := w.Flush(); err != nil {
		f.Close()
		os.Remove(tmp)
		return errors.Wrapf(errors.ErrSnapshotFailed, "flush: %v", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return errors.Wrapf(errors.ErrSnapshotFailed, "sync: %v", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return errors.Wrapf(errors.ErrSnapshotFailed, "close: %v", err)
	}

	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return errors.Wrapf(errors.ErrSnapshotFailed, "rename: %v", err)
	}

	m.mu.Lock()
	m.lastSnapshot = path
	m.lastSnapshotTime = time.Now().UTC()
	m.mu.Unlock()

	m.log.Info("snapshot created", "snapshot", filepath.Base(path), "tenants", len(tenants))
	return nil
}

// snapshotPath picks a fresh snapshot file name. Like rotated segments, names
// encode the creation time so a filename sort is chronological.
func (m *Manager) snapshotPath() string {
	ts := time.Now().UTC().Format("20060102_150405")
	path := filepath.Join(m.dataDir, fmt.Sprintf("snapshot_%s.json", ts))
	for i := 1; ; i++ {
		if _, err := os.Stat(path); os.IsNotExist(err) {
			return path
		}
		path = filepath.Join(m.dataDir, fmt.Sprintf("snapshot_%s_%d.json", ts, i))
	}
}

// snapshotFiles returns all snapshot paths in filename-sorted (chronological)
// order.
func (m *Manager) snapshotFiles() ([]string, error) {
	entries, err := os.ReadDir(m.dataDir)
	if err != nil {
		return nil, fmt.Errorf("read data dir: %w", err)
	}

	var snapshots []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if strings.HasPrefix(name, "snapshot_") && strings.HasSuffix(name, ".json") {
			snapshots = append(snapshots, filepath.Join(m.dataDir, name))
		}
	}

	sort.Strings(snapshots)
	return snapshots, nil
}

// loadLatestSnapshot reads the most recent snapshot, if any. It returns the
// per-tenant event sequences and the per-tenant trans_id sets used to
// deduplicate WAL replay. A missing snapshot returns nil maps and no error;
// an unreadable one is an error, since losing snapshot contents silently
// would lose every event already compacted out of the WAL.
func (m *Manager) loadLatestSnapshot() (map[string][]ledger.Event, map[string]map[string]struct{}, error) {
	snapshots, err := m.snapshotFiles()
	if err != nil {
		return nil, nil, err
	}
	if len(snapshots) == 0 {
		return nil, nil, nil
	}

	path := snapshots[len(snapshots)-1]
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, errors.Wrapf(errors.ErrDataIntegrity, "open snapshot %s: %v", path, err)
	}
	defer f.Close()

	data := make(map[string][]ledger.Event)
	seen := make(map[string]map[string]struct{})

	// One tenant's line can exceed any fixed scanner buffer, so read with
	// ReadString instead of a Scanner.
	r := bufio.NewReader(f)
	for {
		line, err := r.ReadString('\n')
		if err != nil && err != io.EOF {
			return nil, nil, errors.Wrapf(errors.ErrDataIntegrity, "read snapshot %s: %v", path, err)
		}

		line = strings.TrimRight(line, "\n")
		if line != "" && !strings.HasPrefix(line, "#") {
			var sl snapshotLine
			if uerr := json.Unmarshal([]byte(line), &sl); uerr != nil {
				return nil, nil, errors.Wrapf(errors.ErrDataIntegrity,
					"parse snapshot %s: %v", path, uerr)
			}

			ids := make(map[string]struct{}, len(sl.Transactions))
			for i := range sl.Transactions {
				sl.Transactions[i].TenantID = sl.ManagerID
				ids[sl.Transactions[i].TransID] = struct{}{}
			}
			data[sl.ManagerID] = sl.Transactions
			seen[sl.ManagerID] = ids
		}

		if err == io.EOF {
			break
		}
	}

	restored := make(map[string]int, len(data))
	for tenantID, events := range data {
		restored[tenantID] = len(events)
	}

	m.mu.Lock()
	m.lastSnapshot = path
	m.restoredLens = restored
	m.mu.Unlock()

	m.log.Info("snapshot loaded", "snapshot", filepath.Base(path), "tenants", len(data))
	return data, seen, nil
}
