package ledger

import (
	"testing"

	"github.com/tentenbyte/stockd/internal/errors"
)

func validEvent() Event {
	return Event{
		TransID:     "TXN001",
		ItemID:      "ITEM001",
		ItemName:    "ThinkPad X1",
		Type:        TypeIn,
		Quantity:    5,
		UnitPrice:   1299.99,
		WarehouseID: "WH01",
		Timestamp:   "2024-01-15T10:30:00Z",
	}
}

func TestEventValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Event)
		wantErr error
	}{
		{"valid in", func(e *Event) {}, nil},
		{"valid out", func(e *Event) { e.Type = TypeOut }, nil},
		{"empty trans_id", func(e *Event) { e.TransID = "" }, errors.ErrInvalidParameter},
		{"empty item_id", func(e *Event) { e.ItemID = "" }, errors.ErrInvalidParameter},
		{"bad type", func(e *Event) { e.Type = "transfer" }, errors.ErrInvalidTransactionType},
		{"empty type", func(e *Event) { e.Type = "" }, errors.ErrInvalidTransactionType},
		{"zero quantity", func(e *Event) { e.Quantity = 0 }, errors.ErrInvalidParameter},
		{"negative quantity", func(e *Event) { e.Quantity = -3 }, errors.ErrInvalidParameter},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := validEvent()
			tt.mutate(&e)

			err := e.Validate()
			if tt.wantErr == nil {
				if err != nil {
					t.Fatalf("Validate: %v", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Validate: got %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestEventTotalAmount(t *testing.T) {
	e := Event{Quantity: 4, UnitPrice: 2.5}
	if got := e.TotalAmount(); got != 10.0 {
		t.Fatalf("TotalAmount: got %v, want 10.0", got)
	}
}

func TestEventDirection(t *testing.T) {
	in := Event{Type: TypeIn}
	out := Event{Type: TypeOut}

	if !in.IsInbound() || in.IsOutbound() {
		t.Error("in event misclassified")
	}
	if !out.IsOutbound() || out.IsInbound() {
		t.Error("out event misclassified")
	}
}
