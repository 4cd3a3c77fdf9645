// Package monitor collects operational metrics for the ledger: counters for
// appends and WAL writes, gauges for tenant and event totals, and DDSketch
// latency quantiles for the write path.
package monitor

import (
	"sync"
	"time"

	"github.com/DataDog/sketches-go/ddsketch"
)

// Metrics holds the process metrics. All methods are safe for concurrent use
// and safe on a nil receiver, so components can run unmonitored.
type Metrics struct {
	mu sync.Mutex

	appendsOK     int64
	appendsFailed int64
	walWritesOK   int64
	walWritesFail int64

	tenants int64
	events  int64

	appendLatency *ddsketch.DDSketch
	walLatency    *ddsketch.DDSketch
}

// Snapshot is a point-in-time copy of the metrics.
type Snapshot struct {
	AppendsOK     int64 `json:"appends_ok"`
	AppendsFailed int64 `json:"appends_failed"`
	WALWritesOK   int64 `json:"wal_writes_ok"`
	WALWritesFail int64 `json:"wal_writes_failed"`

	Tenants int64 `json:"tenants"`
	Events  int64 `json:"events"`

	AppendLatency LatencyQuantiles `json:"append_latency_ms"`
	WALLatency    LatencyQuantiles `json:"wal_latency_ms"`
}

// LatencyQuantiles holds latency quantiles in milliseconds.
type LatencyQuantiles struct {
	Count int64   `json:"count"`
	P50   float64 `json:"p50"`
	P95   float64 `json:"p95"`
	P99   float64 `json:"p99"`
	Max   float64 `json:"max"`
}

// New creates a metrics collector. Accuracy is the DDSketch relative
// accuracy (0.01 = 1% error).
func New(accuracy float64) *Metrics {
	if accuracy <= 0 {
		accuracy = 0.01
	}

	m := &Metrics{}
	if s, err := ddsketch.NewDefaultDDSketch(accuracy); err == nil {
		m.appendLatency = s
	}
	if s, err := ddsketch.NewDefaultDDSketch(accuracy); err == nil {
		m.walLatency = s
	}
	return m
}

// RecordAppend records the outcome and duration of one append call.
func (m *Metrics) RecordAppend(d time.Duration, err error) {
	if m == nil {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if err != nil {
		m.appendsFailed++
		return
	}

	m.appendsOK++
	m.events++
	if m.appendLatency != nil {
		m.appendLatency.Add(float64(d) / float64(time.Millisecond))
	}
}

// RecordWALWrite records the outcome and duration of one WAL write.
func (m *Metrics) RecordWALWrite(d time.Duration, ok bool) {
	if m == nil {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if !ok {
		m.walWritesFail++
		return
	}

	m.walWritesOK++
	if m.walLatency != nil {
		m.walLatency.Add(float64(d) / float64(time.Millisecond))
	}
}

// SetTenants sets the tenant count gauge.
func (m *Metrics) SetTenants(n int64) {
	if m == nil {
		return
	}
	m.mu.Lock()
	m.tenants = n
	m.mu.Unlock()
}

// SetEvents sets the event count gauge.
func (m *Metrics) SetEvents(n int64) {
	if m == nil {
		return
	}
	m.mu.Lock()
	m.events = n
	m.mu.Unlock()
}

// Snapshot returns a point-in-time copy of the metrics.
func (m *Metrics) Snapshot() Snapshot {
	if m == nil {
		return Snapshot{}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	return Snapshot{
		AppendsOK:     m.appendsOK,
		AppendsFailed: m.appendsFailed,
		WALWritesOK:   m.walWritesOK,
		WALWritesFail: m.walWritesFail,
		Tenants:       m.tenants,
		Events:        m.events,
		AppendLatency: quantiles(m.appendLatency),
		WALLatency:    quantiles(m.walLatency),
	}
}

func quantiles(s *ddsketch.DDSketch) LatencyQuantiles {
	if s == nil {
		return LatencyQuantiles{}
	}

	q := LatencyQuantiles{Count: int64(s.GetCount())}
	if q.Count == 0 {
		return q
	}

	if v, err := s.GetValueAtQuantile(0.50); err == nil {
		q.P50 = v
	}
	if v, err := s.GetValueAtQuantile(0.95); err == nil {
		q.P95 = v
	}
	if v, err := s.GetValueAtQuantile(0.99); err == nil {
		q.P99 = v
	}
	if v, err := s.GetMaxValue(); err == nil {
		q.Max = v
	}
	return q
}
