// Package ledger implements the in-memory event-sourced inventory ledger.
//
// Every inventory movement is an immutable Event appended to a per-tenant
// Ledger. All derived state (stock positions, item catalog, document totals)
// is recomputed on demand by folding over the published event sequence; no
// derived state is stored independently.
package ledger

import (
	"github.com/tentenbyte/stockd/internal/errors"
)

// Transaction types.
const (
	TypeIn  = "in"
	TypeOut = "out"
)

// Event represents one inventory movement. Once durably appended it is never
// mutated or removed.
type Event struct {
	TransID     string  `json:"trans_id"`
	ItemID      string  `json:"item_id"`
	ItemName    string  `json:"item_name"`
	Type        string  `json:"type"`
	Quantity    int     `json:"quantity"`
	UnitPrice   float64 `json:"unit_price"`
	Category    string  `json:"category"`
	Model       string  `json:"model"`
	Unit        string  `json:"unit"`
	PartnerID   string  `json:"partner_id"`
	PartnerName string  `json:"partner_name"`
	WarehouseID string  `json:"warehouse_id"`
	DocumentNo  string  `json:"document_no"`
	Timestamp   string  `json:"timestamp"`
	Note        string  `json:"note"`

	// TenantID scopes the event to its owner. It is carried as a separate
	// WAL field and as the snapshot line key, never inside the event JSON.
	TenantID string `json:"-"`
}

// TotalAmount returns quantity * unit price.
func (e *Event) TotalAmount() float64 {
	return float64(e.Quantity) * e.UnitPrice
}

// IsInbound reports whether the event moves stock in.
func (e *Event) IsInbound() bool {
	return e.Type == TypeIn
}

// IsOutbound reports whether the event moves stock out.
func (e *Event) IsOutbound() bool {
	return e.Type == TypeOut
}

// Validate checks the field-validity rules shared by live appends and
// recovery integrity validation.
func (e *Event) Validate() error {
	if e.TransID == "" {
		return errors.NewInvalidParameter("trans_id", "cannot be empty")
	}
	if e.ItemID == "" {
		return errors.NewInvalidParameter("item_id", "cannot be empty")
	}
	if e.Type != TypeIn && e.Type != TypeOut {
		return errors.ErrInvalidTransactionType
	}
	if e.Quantity <= 0 {
		return errors.NewInvalidParameter("quantity", "must be positive")
	}
	return nil
}
