package ledger

import "sort"

// Derived views are computed fresh on every call by folding over a fully
// published event slice. Nothing here is materialized or cached.

// ItemSummary aggregates the running stock and latest catalog attributes of
// one item.
type ItemSummary struct {
	ItemID        string  `json:"item_id"`
	ItemName      string  `json:"item_name"`
	Category      string  `json:"category"`
	Model         string  `json:"model"`
	Unit          string  `json:"unit"`
	LatestPrice   float64 `json:"latest_price"`
	TotalQuantity int     `json:"total_quantity"`
	LastUpdated   string  `json:"last_updated"`
}

// InventoryRecord is the stock position of one item in one warehouse.
type InventoryRecord struct {
	ItemID      string  `json:"item_id"`
	WarehouseID string  `json:"warehouse_id"`
	Quantity    int     `json:"quantity"`
	AvgPrice    float64 `json:"avg_price"`
}

// DocumentSummary aggregates the events sharing one document number.
type DocumentSummary struct {
	DocumentNo  string  `json:"document_no"`
	Type        string  `json:"type"`
	PartnerID   string  `json:"partner_id"`
	PartnerName string  `json:"partner_name"`
	TenantID    string  `json:"tenant_id"`
	Timestamp   string  `json:"timestamp"`
	TotalAmount float64 `json:"total_amount"`
	ItemCount   int     `json:"item_count"`
}

// InOutSummary totals inbound and outbound movement over a time range.
type InOutSummary struct {
	InQuantity  int     `json:"in_quantity"`
	OutQuantity int     `json:"out_quantity"`
	InAmount    float64 `json:"in_amount"`
	OutAmount   float64 `json:"out_amount"`
}

// BuildItemSummaries folds events into per-item summaries. The "latest"
// catalog attributes follow strict timestamp ordering: an event with a
// timestamp equal to the stored one leaves the stored attributes untouched,
// so the first-seen event wins on ties. Entries with non-positive quantity
// are included; callers presenting "current items" filter them out.
func BuildItemSummaries(events []Event) map[string]ItemSummary {
	items := make(map[string]ItemSummary)

	for i := range events {
		e := &events[i]

		s, ok := items[e.ItemID]
		if !ok {
			s = ItemSummary{
				ItemID:      e.ItemID,
				ItemName:    e.ItemName,
				Category:    e.Category,
				Model:       e.Model,
				Unit:        e.Unit,
				LatestPrice: e.UnitPrice,
				LastUpdated: e.Timestamp,
			}
		}

		if e.IsInbound() {
			s.TotalQuantity += e.Quantity
		} else {
			s.TotalQuantity -= e.Quantity
		}

		if e.Timestamp > s.LastUpdated {
			s.ItemName = e.ItemName
			s.Category = e.Category
			s.Model = e.Model
			s.Unit = e.Unit
			s.LatestPrice = e.UnitPrice
			s.LastUpdated = e.Timestamp
		}

		items[e.ItemID] = s
	}

	return items
}

// BuildDocumentSummaries folds events into per-document summaries. Events
// with an empty document number are skipped. The summary keeps the minimum
// timestamp seen, sums quantity*unit_price and counts events.
func BuildDocumentSummaries(events []Event) map[string]DocumentSummary {
	docs := make(map[string]DocumentSummary)

	for i := range events {
		e := &events[i]
		if e.DocumentNo == "" {
			continue
		}

		s, ok := docs[e.DocumentNo]
		if !ok {
			s = DocumentSummary{
				DocumentNo:  e.DocumentNo,
				Type:        e.Type,
				PartnerID:   e.PartnerID,
				PartnerName: e.PartnerName,
				TenantID:    e.TenantID,
				Timestamp:   e.Timestamp,
			}
		}

		s.TotalAmount += e.TotalAmount()
		s.ItemCount++
		if e.Timestamp < s.Timestamp {
			s.Timestamp = e.Timestamp
		}

		docs[e.DocumentNo] = s
	}

	return docs
}

// CalculateInventory folds events into stock positions grouped by
// (warehouse_id, item_id). Inbound events fold the weighted-average price:
//
//	new_avg = (old_qty*old_avg + qty*unit_price) / (old_qty+qty)
//
// applied only when the resulting quantity is positive, which guards the
// division. Outbound events reduce quantity and leave the price unchanged.
// The result contains only positions with positive quantity, grouped by
// warehouse and sorted by item id.
func CalculateInventory(events []Event) map[string][]InventoryRecord {
	type key struct {
		warehouse string
		item      string
	}

	positions := make(map[key]InventoryRecord)

	for i := range events {
		e := &events[i]
		k := key{e.WarehouseID, e.ItemID}

		rec, ok := positions[k]
		if !ok {
			rec = InventoryRecord{ItemID: e.ItemID, WarehouseID: e.WarehouseID}
		}

		if e.IsInbound() {
			totalValue := float64(rec.Quantity)*rec.AvgPrice + e.TotalAmount()
			rec.Quantity += e.Quantity
			if rec.Quantity > 0 {
				rec.AvgPrice = totalValue / float64(rec.Quantity)
			}
		} else {
			rec.Quantity -= e.Quantity
		}

		positions[k] = rec
	}

	result := make(map[string][]InventoryRecord)
	for k, rec := range positions {
		if rec.Quantity > 0 {
			result[k.warehouse] = append(result[k.warehouse], rec)
		}
	}

	for _, recs := range result {
		sort.Slice(recs, func(i, j int) bool { return recs[i].ItemID < recs[j].ItemID })
	}

	return result
}
