package persist

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/tentenbyte/stockd/internal/errors"
	"github.com/tentenbyte/stockd/internal/ledger"
)

func testEvent(transID string) ledger.Event {
	return ledger.Event{
		TransID:     transID,
		ItemID:      "ITEM001",
		ItemName:    "ThinkPad X1",
		Type:        ledger.TypeIn,
		Quantity:    5,
		UnitPrice:   1299.99,
		Category:    "laptop",
		Model:       "X1-G11",
		Unit:        "pcs",
		PartnerID:   "SUP001",
		PartnerName: "Lenovo Distribution",
		WarehouseID: "WH01",
		DocumentNo:  "PO-2024-001",
		Note:        "restock",
	}
}

func newTestManager(t *testing.T, dir string) *Manager {
	t.Helper()
	m, err := New(dir, DefaultOptions(), nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { m.Close() })
	return m
}

func TestSerializeParseRoundTrip(t *testing.T) {
	e := testEvent("TXN001")
	line := serializeEvent(receiptTimestamp(), "tenant1", e)

	if n := strings.Count(line, "|"); n != walFieldCount-1 {
		t.Fatalf("field separators: got %d, want %d", n, walFieldCount-1)
	}

	rec, err := parseLine(line)
	if err != nil {
		t.Fatalf("parseLine: %v", err)
	}

	if rec.TenantID != "tenant1" {
		t.Errorf("tenant: %q", rec.TenantID)
	}

	got := rec.Event
	if got.TransID != e.TransID || got.ItemID != e.ItemID || got.ItemName != e.ItemName ||
		got.Type != e.Type || got.Quantity != e.Quantity || got.UnitPrice != e.UnitPrice ||
		got.Category != e.Category || got.Model != e.Model || got.Unit != e.Unit ||
		got.PartnerID != e.PartnerID || got.PartnerName != e.PartnerName ||
		got.WarehouseID != e.WarehouseID || got.DocumentNo != e.DocumentNo ||
		got.Note != e.Note {
		t.Errorf("round trip mismatch:\n got %+v\nwant %+v", got, e)
	}

	// The decoded timestamp is the WAL receipt time from field 0.
	if got.Timestamp == "" || !strings.HasSuffix(got.Timestamp, "Z") {
		t.Errorf("receipt timestamp: %q", got.Timestamp)
	}
}

func TestSerializePriceFormat(t *testing.T) {
	e := testEvent("TXN001")
	e.UnitPrice = 3

	line := serializeEvent(receiptTimestamp(), "t", e)
	fields := strings.Split(line, "|")
	if fields[7] != "3.00" {
		t.Errorf("unit_price field: got %q, want 3.00", fields[7])
	}
}

func TestParseLineMalformed(t *testing.T) {
	cases := []string{
		"too|few|fields",
		strings.Repeat("x|", 16) + "x", // too many
	}
	for _, line := range cases {
		if _, err := parseLine(line); !errors.Is(err, errors.ErrMalformedLine) {
			t.Errorf("line %q: got %v", line, err)
		}
	}

	e := testEvent("TXN001")
	good := serializeEvent(receiptTimestamp(), "t", e)

	bad := strings.Replace(good, "|5|", "|five|", 1)
	if _, err := parseLine(bad); !errors.Is(err, errors.ErrMalformedLine) {
		t.Errorf("bad quantity: got %v", err)
	}
}

func TestWriteAndRecover(t *testing.T) {
	dir := t.TempDir()
	m := newTestManager(t, dir)

	for i := 0; i < 3; i++ {
		if err := m.WriteEvent("t1", testEvent(fmt.Sprintf("TXN%03d", i))); err != nil {
			t.Fatalf("WriteEvent %d: %v", i, err)
		}
	}
	if err := m.WriteEvent("t2", testEvent("TXN100")); err != nil {
		t.Fatalf("WriteEvent: %v", err)
	}

	data, err := m.Recover()
	if err != nil {
		t.Fatalf("Recover: %v", err)
	}

	if len(data["t1"]) != 3 || len(data["t2"]) != 1 {
		t.Fatalf("recovered: t1=%d t2=%d", len(data["t1"]), len(data["t2"]))
	}
	for i, e := range data["t1"] {
		want := fmt.Sprintf("TXN%03d", i)
		if e.TransID != want {
			t.Errorf("t1[%d]: got %s, want %s (order broken)", i, e.TransID, want)
		}
	}

	if err := m.ValidateIntegrity(data); err != nil {
		t.Errorf("ValidateIntegrity: %v", err)
	}
}

// A truncated trailing line (torn write) must not poison replay: well-formed
// lines before it survive.
func TestRecoverSkipsMalformedTail(t *testing.T) {
	dir := t.TempDir()
	m := newTestManager(t, dir)

	if err := m.WriteEvent("t", testEvent("TXN001")); err != nil {
		t.Fatalf("WriteEvent: %v", err)
	}
	m.Close()

	active := filepath.Join(dir, activeSegmentName)
	f, err := os.OpenFile(active, os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		t.Fatal(err)
	}
	f.WriteString("2024-01-01T00:00:00.000Z|t|TXN002|truncated")
	f.Close()

	m2 := newTestManager(t, dir)
	data, err := m2.Recover()
	if err != nil {
		t.Fatalf("Recover: %v", err)
	}
	if len(data["t"]) != 1 || data["t"][0].TransID != "TXN001" {
		t.Fatalf("recovered: %+v", data["t"])
	}
}

func TestRotationAndReplayOrder(t *testing.T) {
	dir := t.TempDir()
	m := newTestManager(t, dir)

	if err := m.WriteEvent("t", testEvent("TXN001")); err != nil {
		t.Fatal(err)
	}
	if err := m.RotateActive(); err != nil {
		t.Fatalf("RotateActive: %v", err)
	}
	if err := m.WriteEvent("t", testEvent("TXN002")); err != nil {
		t.Fatal(err)
	}

	rotated, err := m.RotatedSegments()
	if err != nil {
		t.Fatal(err)
	}
	if len(rotated) != 1 {
		t.Fatalf("rotated segments: %d", len(rotated))
	}

	// Replay must see the rotated segment's event before the active one's.
	data, err := m.Recover()
	if err != nil {
		t.Fatalf("Recover: %v", err)
	}
	if len(data["t"]) != 2 || data["t"][0].TransID != "TXN001" || data["t"][1].TransID != "TXN002" {
		t.Fatalf("replay order: %+v", data["t"])
	}
}

func TestRotateEmptySegmentIsNoop(t *testing.T) {
	dir := t.TempDir()
	m := newTestManager(t, dir)

	if err := m.RotateActive(); err != nil {
		t.Fatalf("RotateActive: %v", err)
	}
	rotated, _ := m.RotatedSegments()
	if len(rotated) != 0 {
		t.Errorf("empty rotation produced a segment")
	}
}

func TestSizeTriggeredRotation(t *testing.T) {
	dir := t.TempDir()
	opts := DefaultOptions()
	opts.MaxSegmentSize = 64 // tiny, every write rotates
	m, err := New(dir, opts, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer m.Close()

	for i := 0; i < 3; i++ {
		if err := m.WriteEvent("t", testEvent(fmt.Sprintf("TXN%03d", i))); err != nil {
			t.Fatalf("WriteEvent: %v", err)
		}
	}

	rotated, _ := m.RotatedSegments()
	if len(rotated) == 0 {
		t.Fatal("no rotation despite exceeding segment size")
	}

	data, err := m.Recover()
	if err != nil {
		t.Fatalf("Recover: %v", err)
	}
	if len(data["t"]) != 3 {
		t.Fatalf("recovered %d events across segments, want 3", len(data["t"]))
	}
}

func TestSnapshotRoundTrip(t *testing.T) {
	dir := t.TempDir()
	m := newTestManager(t, dir)

	data := map[string][]ledger.Event{
		"t1": {testEvent("TXN001"), testEvent("TXN002")},
		"t2": {},
	}
	for i := range data["t1"] {
		data["t1"][i].Timestamp = fmt.Sprintf("2024-01-0%dT00:00:00.000Z", i+1)
	}

	if err := m.CreateSnapshot(data); err != nil {
		t.Fatalf("CreateSnapshot: %v", err)
	}

	loaded, seen, err := m.loadLatestSnapshot()
	if err != nil {
		t.Fatalf("loadLatestSnapshot: %v", err)
	}

	if len(loaded["t1"]) != 2 {
		t.Fatalf("loaded t1: %d events", len(loaded["t1"]))
	}
	if loaded["t1"][0].TenantID != "t1" {
		t.Errorf("tenant not restored on events")
	}
	if _, ok := loaded["t2"]; !ok {
		t.Errorf("empty tenant dropped from snapshot")
	}
	if _, ok := seen["t1"]["TXN002"]; !ok {
		t.Errorf("trans_id set incomplete")
	}
}

func TestSnapshotFileFormat(t *testing.T) {
	dir := t.TempDir()
	m := newTestManager(t, dir)

	if err := m.CreateSnapshot(map[string][]ledger.Event{"t": {testEvent("TXN001")}}); err != nil {
		t.Fatalf("CreateSnapshot: %v", err)
	}

	snapshots, err := m.snapshotFiles()
	if err != nil || len(snapshots) != 1 {
		t.Fatalf("snapshot files: %v %v", snapshots, err)
	}

	raw, err := os.ReadFile(snapshots[0])
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimRight(string(raw), "\n"), "\n")
	if len(lines) != 3 {
		t.Fatalf("snapshot lines: %d", len(lines))
	}
	if !strings.HasPrefix(lines[0], "# Snapshot created at: ") {
		t.Errorf("header 0: %q", lines[0])
	}
	if !strings.HasPrefix(lines[1], "# Format: JSON lines") {
		t.Errorf("header 1: %q", lines[1])
	}
	if !strings.HasPrefix(lines[2], `{"manager_id":"t",`) {
		t.Errorf("tenant line: %q", lines[2])
	}
}

// Recovery with a snapshot replays the remaining WAL and drops events the
// snapshot already contains.
func TestRecoverDeduplicatesAgainstSnapshot(t *testing.T) {
	dir := t.TempDir()
	m := newTestManager(t, dir)

	if err := m.WriteEvent("t", testEvent("TXN001")); err != nil {
		t.Fatal(err)
	}
	if err := m.WriteEvent("t", testEvent("TXN002")); err != nil {
		t.Fatal(err)
	}

	// Snapshot covers TXN001 only; the WAL still holds both.
	snap := map[string][]ledger.Event{"t": {testEvent("TXN001")}}
	snap["t"][0].Timestamp = "2024-01-01T00:00:00.000Z"
	if err := m.CreateSnapshot(snap); err != nil {
		t.Fatalf("CreateSnapshot: %v", err)
	}

	data, err := m.Recover()
	if err != nil {
		t.Fatalf("Recover: %v", err)
	}
	if len(data["t"]) != 2 {
		t.Fatalf("recovered %d events, want 2 (snapshot + deduped replay)", len(data["t"]))
	}
	if data["t"][0].TransID != "TXN001" || data["t"][1].TransID != "TXN002" {
		t.Fatalf("recovered order: %+v", data["t"])
	}
}

// Live appends accept caller-supplied timestamps in any order, so a snapshot
// of such events must survive a restart intact instead of tripping the
// receipt-timestamp ordering check and emptying the store.
func TestRecoverSnapshotWithOutOfOrderCallerTimestamps(t *testing.T) {
	dir := t.TempDir()
	m := newTestManager(t, dir)

	first := testEvent("TXN001")
	first.Timestamp = "2024-02-01T10:00:00Z"
	second := testEvent("TXN002")
	second.Timestamp = "2024-01-01T10:00:00Z"

	if err := m.WriteEvent("t", first); err != nil {
		t.Fatal(err)
	}
	if err := m.WriteEvent("t", second); err != nil {
		t.Fatal(err)
	}
	if err := m.CreateSnapshot(map[string][]ledger.Event{"t": {first, second}}); err != nil {
		t.Fatalf("CreateSnapshot: %v", err)
	}
	m.Close()

	m2 := newTestManager(t, dir)
	data, err := m2.Recover()
	if err != nil {
		t.Fatalf("Recover: %v", err)
	}
	if len(data["t"]) != 2 {
		t.Fatalf("recovered %d events, want 2", len(data["t"]))
	}
	if data["t"][0].Timestamp != first.Timestamp || data["t"][1].Timestamp != second.Timestamp {
		t.Fatalf("caller timestamps not preserved: %+v", data["t"])
	}

	if err := m2.ValidateIntegrity(data); err != nil {
		t.Fatalf("snapshot-restored events rejected: %v", err)
	}

	// Events replayed from the WAL after the snapshot boundary still have
	// their receipt-timestamp order enforced.
	tail1 := testEvent("TXN003")
	tail1.Timestamp = "2024-03-02T00:00:00.000Z"
	tail2 := testEvent("TXN004")
	tail2.Timestamp = "2024-03-01T00:00:00.000Z"
	mixed := map[string][]ledger.Event{
		"t": append(append([]ledger.Event{}, data["t"]...), tail1, tail2),
	}
	if err := m2.ValidateIntegrity(mixed); !errors.Is(err, errors.ErrDataIntegrity) {
		t.Errorf("replayed timestamp regression: got %v", err)
	}
}

func TestValidateIntegrity(t *testing.T) {
	m := newTestManager(t, t.TempDir())

	good := testEvent("TXN001")
	good.Timestamp = "2024-01-01T00:00:00.000Z"
	later := testEvent("TXN002")
	later.Timestamp = "2024-01-02T00:00:00.000Z"

	if err := m.ValidateIntegrity(map[string][]ledger.Event{"t": {good, later}}); err != nil {
		t.Errorf("valid data rejected: %v", err)
	}

	// Timestamp regression.
	if err := m.ValidateIntegrity(map[string][]ledger.Event{"t": {later, good}}); !errors.Is(err, errors.ErrDataIntegrity) {
		t.Errorf("timestamp regression: got %v", err)
	}

	// Field violation.
	bad := testEvent("TXN003")
	bad.Quantity = 0
	if err := m.ValidateIntegrity(map[string][]ledger.Event{"t": {bad}}); !errors.Is(err, errors.ErrDataIntegrity) {
		t.Errorf("invalid event: got %v", err)
	}
}

func TestLockConflict(t *testing.T) {
	dir := t.TempDir()
	m := newTestManager(t, dir)
	_ = m

	_, err := New(dir, DefaultOptions(), nil)
	if !errors.Is(err, errors.ErrLockHeld) {
		t.Fatalf("second manager: got %v, want ErrLockHeld", err)
	}
}

func TestLockReleasedOnClose(t *testing.T) {
	dir := t.TempDir()
	m, err := New(dir, DefaultOptions(), nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := m.Close(); err != nil {
		t.Fatal(err)
	}

	m2, err := New(dir, DefaultOptions(), nil)
	if err != nil {
		t.Fatalf("reacquire after close: %v", err)
	}
	m2.Close()
}

func TestWriteAfterClose(t *testing.T) {
	m, err := New(t.TempDir(), DefaultOptions(), nil)
	if err != nil {
		t.Fatal(err)
	}
	m.Close()

	if err := m.WriteEvent("t", testEvent("TXN001")); !errors.Is(err, errors.ErrPersistenceClosed) {
		t.Fatalf("write after close: got %v", err)
	}
}
