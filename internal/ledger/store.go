package ledger

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/tentenbyte/stockd/internal/errors"
	"github.com/tentenbyte/stockd/internal/monitor"
)

// Persister is the durability layer consumed by the Store: a write-ahead log
// with replay, integrity validation and snapshots.
type Persister interface {
	// WriteEvent durably appends one event to the WAL. It must not return
	// until the record is flushed; a failure must leave no partial
	// observable effect on future recoveries beyond a possibly truncated
	// trailing line, which replay skips.
	WriteEvent(tenantID string, e Event) error

	// Recover replays the persisted log and returns the per-tenant event
	// sequences in append order.
	Recover() (map[string][]Event, error)

	// ValidateIntegrity checks recovered data as a whole. Any violation
	// fails the entire recovery.
	ValidateIntegrity(data map[string][]Event) error

	// CreateSnapshot writes a point-in-time dump of every tenant's full
	// event sequence.
	CreateSnapshot(data map[string][]Event) error
}

// Store owns the tenant→Ledger map, orchestrates write-ahead durability
// before publication and exposes the query surface.
//
// Writes to different tenants proceed fully concurrently; writes to the same
// tenant serialize on that tenant's ledger. Reads are lock-free against the
// published region; the store mutex guards only the tenant map itself, with
// the exclusive lock taken solely on the first write for a new tenant.
type Store struct {
	mu      sync.RWMutex
	tenants map[string]*Ledger

	persister          Persister
	persistenceEnabled bool

	mon *monitor.Metrics
	log *slog.Logger
}

// SystemStatus reports aggregate store state.
type SystemStatus struct {
	TotalTenants  int   `json:"total_tenants"`
	TotalEvents   int   `json:"total_events"`
	MemoryUsageKB int64 `json:"memory_usage_kb"`
}

// NewStore creates a store and recovers all tenant ledgers from the
// persister. A nil persister yields a memory-only store.
//
// Recovery is fail-closed: if integrity validation rejects the recovered
// data, the store starts empty and logs a critical event instead of
// partially adopting it.
func NewStore(p Persister, mon *monitor.Metrics, log *slog.Logger) *Store {
	if log == nil {
		log = slog.Default()
	}

	s := &Store{
		tenants:            make(map[string]*Ledger),
		persister:          p,
		persistenceEnabled: p != nil,
		mon:                mon,
		log:                log,
	}

	if p == nil {
		log.Info("persistence disabled, starting memory-only")
		return s
	}

	recovered, err := p.Recover()
	if err != nil {
		log.Error("recovery failed, starting with empty state", "error", err)
		return s
	}

	if len(recovered) == 0 {
		log.Info("no existing data found, starting with empty ledger")
		return s
	}

	if err := p.ValidateIntegrity(recovered); err != nil {
		// Fail closed: never partially adopt recovered data.
		log.Error("data integrity validation failed, starting with empty state",
			"error", err)
		return s
	}

	total := 0
	for tenantID, events := range recovered {
		l := NewLedger()
		l.Load(events)
		s.tenants[tenantID] = l
		total += len(events)
		log.Debug("restored tenant", "tenant_id", tenantID, "events", len(events))
	}

	s.mon.SetTenants(int64(len(recovered)))
	s.mon.SetEvents(int64(total))
	log.Info("recovery completed", "tenants", len(recovered), "events", total)

	return s
}

// EnablePersistence toggles the durability barrier. Disabling it is only
// meaningful for tests and demos; appends are then memory-only.
func (s *Store) EnablePersistence(enable bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.persistenceEnabled = enable && s.persister != nil
}

// Append validates the event, durably logs it, then publishes it into the
// tenant's ledger. On any failure the tenant's sequence and count are
// unchanged.
func (s *Store) Append(tenantID string, e Event) error {
	start := time.Now()
	err := s.append(tenantID, e)
	s.mon.RecordAppend(time.Since(start), err)
	return err
}

func (s *Store) append(tenantID string, e Event) error {
	if tenantID == "" {
		return errors.NewInvalidParameter("tenant_id", "cannot be empty")
	}
	if err := e.Validate(); err != nil {
		return err
	}
	e.TenantID = tenantID

	l := s.ledgerForWrite(tenantID)

	var durable func(Event) error
	s.mu.RLock()
	enabled := s.persistenceEnabled
	s.mu.RUnlock()
	if enabled {
		durable = func(ev Event) error {
			walStart := time.Now()
			err := s.persister.WriteEvent(tenantID, ev)
			s.mon.RecordWALWrite(time.Since(walStart), err == nil)
			return err
		}
	}

	if err := l.Append(e, durable); err != nil {
		s.log.Warn("append rejected",
			"tenant_id", tenantID, "trans_id", e.TransID, "error", err)
		return err
	}

	s.log.Debug("transaction appended",
		"tenant_id", tenantID, "trans_id", e.TransID,
		"type", e.Type, "quantity", e.Quantity)
	return nil
}

// ledgerForWrite returns the tenant's ledger, creating it on the first write
// for a previously unseen tenant. Creation is the only path that takes the
// exclusive map lock.
func (s *Store) ledgerForWrite(tenantID string) *Ledger {
	s.mu.RLock()
	l, ok := s.tenants[tenantID]
	s.mu.RUnlock()
	if ok {
		return l
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if l, ok = s.tenants[tenantID]; ok {
		return l
	}
	l = NewLedger()
	s.tenants[tenantID] = l
	s.mon.SetTenants(int64(len(s.tenants)))
	return l
}

// ledger returns the tenant's ledger or nil.
func (s *Store) ledger(tenantID string) *Ledger {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tenants[tenantID]
}

// ========== Query surface ==========
//
// Every query is an O(n) fold over the tenant's published events; there is
// no secondary indexing. An unknown tenant yields empty results.

// Transactions returns a copy of the tenant's published events in append
// order.
func (s *Store) Transactions(tenantID string) []Event {
	l := s.ledger(tenantID)
	if l == nil {
		return nil
	}
	return l.Snapshot()
}

// TransactionCount returns the tenant's published event count.
func (s *Store) TransactionCount(tenantID string) int {
	l := s.ledger(tenantID)
	if l == nil {
		return 0
	}
	return l.Len()
}

// TransactionsByTimeRange returns events whose timestamp falls within
// [start, end], compared lexicographically (ISO-8601 timestamps).
func (s *Store) TransactionsByTimeRange(tenantID, start, end string) []Event {
	return s.filter(tenantID, func(e *Event) bool {
		return e.Timestamp >= start && e.Timestamp <= end
	})
}

// TransactionsByItem returns events for one item.
func (s *Store) TransactionsByItem(tenantID, itemID string) []Event {
	return s.filter(tenantID, func(e *Event) bool { return e.ItemID == itemID })
}

// TransactionsByDocument returns events sharing one document number.
func (s *Store) TransactionsByDocument(tenantID, documentNo string) []Event {
	return s.filter(tenantID, func(e *Event) bool { return e.DocumentNo == documentNo })
}

// TransactionsByPartner returns events for one supplier or customer.
func (s *Store) TransactionsByPartner(tenantID, partnerID string) []Event {
	return s.filter(tenantID, func(e *Event) bool { return e.PartnerID == partnerID })
}

func (s *Store) filter(tenantID string, keep func(*Event) bool) []Event {
	events := s.Transactions(tenantID)
	var out []Event
	for i := range events {
		if keep(&events[i]) {
			out = append(out, events[i])
		}
	}
	return out
}

// Inventory returns current stock positions grouped by warehouse.
func (s *Store) Inventory(tenantID string) map[string][]InventoryRecord {
	return CalculateInventory(s.Transactions(tenantID))
}

// CurrentItems returns the item catalog restricted to items with positive
// stock, sorted by item id.
func (s *Store) CurrentItems(tenantID string) []ItemSummary {
	items := BuildItemSummaries(s.Transactions(tenantID))

	var out []ItemSummary
	for _, it := range items {
		if it.TotalQuantity > 0 {
			out = append(out, it)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ItemID < out[j].ItemID })
	return out
}

// Documents returns per-document summaries sorted by document number.
func (s *Store) Documents(tenantID string) []DocumentSummary {
	docs := BuildDocumentSummaries(s.Transactions(tenantID))

	out := make([]DocumentSummary, 0, len(docs))
	for _, d := range docs {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DocumentNo < out[j].DocumentNo })
	return out
}

// ItemTypeCount returns the number of distinct items with positive stock.
func (s *Store) ItemTypeCount(tenantID string) int {
	count := 0
	for _, it := range BuildItemSummaries(s.Transactions(tenantID)) {
		if it.TotalQuantity > 0 {
			count++
		}
	}
	return count
}

// InOut totals inbound and outbound quantity and amount over a time range.
func (s *Store) InOut(tenantID, start, end string) InOutSummary {
	var sum InOutSummary
	for _, e := range s.TransactionsByTimeRange(tenantID, start, end) {
		if e.IsInbound() {
			sum.InQuantity += e.Quantity
			sum.InAmount += e.TotalAmount()
		} else {
			sum.OutQuantity += e.Quantity
			sum.OutAmount += e.TotalAmount()
		}
	}
	return sum
}

// InventoryByCategory totals positive stock per category.
func (s *Store) InventoryByCategory(tenantID string) map[string]int {
	out := make(map[string]int)
	for _, it := range BuildItemSummaries(s.Transactions(tenantID)) {
		if it.TotalQuantity > 0 {
			out[it.Category] += it.TotalQuantity
		}
	}
	return out
}

// TenantIDs returns the known tenant ids, sorted.
func (s *Store) TenantIDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]string, 0, len(s.tenants))
	for id := range s.tenants {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// HasTenant reports whether the tenant has a ledger.
func (s *Store) HasTenant(tenantID string) bool {
	return s.ledger(tenantID) != nil
}

// GenerateTransactionID returns a timestamp-based transaction id. Ids
// generated concurrently within the same millisecond can collide; callers
// needing uniqueness under concurrent generation must supply their own ids.
func (s *Store) GenerateTransactionID() string {
	now := time.Now()
	return fmt.Sprintf("TXN%s%03d", now.Format("20060102150405"), now.Nanosecond()/1e6)
}

// Status returns aggregate counts and a rough memory estimate
// (≈500 bytes per event).
func (s *Store) Status() SystemStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()

	status := SystemStatus{TotalTenants: len(s.tenants)}
	for _, l := range s.tenants {
		status.TotalEvents += l.Len()
	}
	status.MemoryUsageKB = int64(status.TotalEvents) * 500 / 1024
	return status
}

// dump copies every tenant's full published sequence.
func (s *Store) dump() map[string][]Event {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string][]Event, len(s.tenants))
	for id, l := range s.tenants {
		out[id] = l.Snapshot()
	}
	return out
}

// CreateSnapshot writes a point-in-time dump of all tenants through the
// persister.
func (s *Store) CreateSnapshot() error {
	s.mu.RLock()
	enabled := s.persistenceEnabled
	s.mu.RUnlock()
	if !enabled {
		return errors.Wrap(errors.ErrSnapshotFailed, "persistence disabled")
	}

	if err := s.persister.CreateSnapshot(s.dump()); err != nil {
		return errors.Wrap(errors.ErrSnapshotFailed, err.Error())
	}
	return nil
}

// Close attempts one final snapshot. Failure is logged, never propagated.
func (s *Store) Close() {
	s.mu.RLock()
	enabled := s.persistenceEnabled
	s.mu.RUnlock()
	if !enabled {
		return
	}

	if err := s.persister.CreateSnapshot(s.dump()); err != nil {
		s.log.Error("final snapshot failed", "error", err)
		return
	}
	s.log.Info("final snapshot created")
}
