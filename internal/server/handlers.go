package server

import (
	"encoding/json"
	"net/http"
	"sort"
	"time"

	"github.com/gorilla/mux"

	"github.com/tentenbyte/stockd/internal/errors"
	"github.com/tentenbyte/stockd/internal/ledger"
	"github.com/tentenbyte/stockd/internal/logging"
)

// response is the uniform JSON envelope.
type response struct {
	Success bool       `json:"success"`
	Data    any        `json:"data,omitempty"`
	Error   *errorBody `json:"error,omitempty"`
}

// errorBody carries the wire error code alongside the message.
type errorBody struct {
	Code    int32  `json:"code"`
	Name    string `json:"name"`
	Message string `json:"message"`
}

func respondJSON(w http.ResponseWriter, status int, resp response) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(resp)
}

func respondData(w http.ResponseWriter, status int, data any) {
	respondJSON(w, status, response{Success: true, Data: data})
}

func respondError(w http.ResponseWriter, err error) {
	code := errors.ErrorToCode(err)
	respondJSON(w, httpStatus(err), response{
		Success: false,
		Error: &errorBody{
			Code:    code,
			Name:    errors.CodeName(code),
			Message: err.Error(),
		},
	})
}

// httpStatus maps an error to its HTTP status.
func httpStatus(err error) int {
	switch {
	case errors.Is(err, errors.ErrDuplicateTransactionID):
		return http.StatusConflict
	case errors.IsValidation(err):
		return http.StatusBadRequest
	case errors.Is(err, errors.ErrTenantNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondData(w, http.StatusOK, map[string]string{"status": "healthy"})
}

// handleAppendTransaction handles POST /api/v1/tenants/{tenant}/transactions.
// A missing trans_id is generated server-side, a missing timestamp is set to
// the current time.
func (s *Server) handleAppendTransaction(w http.ResponseWriter, r *http.Request) {
	tenantID := mux.Vars(r)["tenant"]

	var e ledger.Event
	if err := json.NewDecoder(r.Body).Decode(&e); err != nil {
		respondError(w, errors.NewInvalidParameter("body", "invalid JSON"))
		return
	}

	if e.TransID == "" {
		e.TransID = s.store.GenerateTransactionID()
	}
	if e.Timestamp == "" {
		e.Timestamp = time.Now().UTC().Format("2006-01-02T15:04:05Z")
	}

	if err := s.store.Append(tenantID, e); err != nil {
		logging.WithContext(r.Context()).Warn("append rejected",
			"tenant_id", tenantID, "trans_id", e.TransID, "error", err)
		respondError(w, err)
		return
	}

	respondData(w, http.StatusCreated, map[string]string{"transaction_id": e.TransID})
}

// handleGetTransactions handles GET /api/v1/tenants/{tenant}/transactions.
// Optional query parameters narrow the result: item, document, partner, or
// start+end (inclusive timestamp range). Filters are mutually exclusive; the
// first recognized one wins. A time range must carry both bounds.
func (s *Server) handleGetTransactions(w http.ResponseWriter, r *http.Request) {
	tenantID := mux.Vars(r)["tenant"]
	q := r.URL.Query()

	var events []ledger.Event
	switch {
	case q.Get("item") != "":
		events = s.store.TransactionsByItem(tenantID, q.Get("item"))
	case q.Get("document") != "":
		events = s.store.TransactionsByDocument(tenantID, q.Get("document"))
	case q.Get("partner") != "":
		events = s.store.TransactionsByPartner(tenantID, q.Get("partner"))
	case q.Get("start") != "" || q.Get("end") != "":
		start, end := q.Get("start"), q.Get("end")
		if start == "" || end == "" {
			respondError(w, errors.NewInvalidParameter("start/end",
				"a time range requires both start and end"))
			return
		}
		events = s.store.TransactionsByTimeRange(tenantID, start, end)
	default:
		events = s.store.Transactions(tenantID)
	}

	if events == nil {
		events = []ledger.Event{}
	}

	respondData(w, http.StatusOK, map[string]any{
		"tenant_id":    tenantID,
		"transactions": events,
		"count":        len(events),
	})
}

// handleGetInventory handles GET /api/v1/tenants/{tenant}/inventory.
func (s *Server) handleGetInventory(w http.ResponseWriter, r *http.Request) {
	tenantID := mux.Vars(r)["tenant"]

	inventory := s.store.Inventory(tenantID)

	type warehouse struct {
		WarehouseID string                   `json:"warehouse_id"`
		Items       []ledger.InventoryRecord `json:"items"`
	}

	warehouses := []warehouse{}
	for _, id := range sortedKeys(inventory) {
		warehouses = append(warehouses, warehouse{WarehouseID: id, Items: inventory[id]})
	}

	respondData(w, http.StatusOK, map[string]any{
		"tenant_id":  tenantID,
		"warehouses": warehouses,
	})
}

// handleGetItems handles GET /api/v1/tenants/{tenant}/items.
func (s *Server) handleGetItems(w http.ResponseWriter, r *http.Request) {
	tenantID := mux.Vars(r)["tenant"]

	items := s.store.CurrentItems(tenantID)
	if items == nil {
		items = []ledger.ItemSummary{}
	}

	respondData(w, http.StatusOK, map[string]any{
		"tenant_id": tenantID,
		"items":     items,
		"count":     len(items),
	})
}

// handleGetDocuments handles GET /api/v1/tenants/{tenant}/documents.
func (s *Server) handleGetDocuments(w http.ResponseWriter, r *http.Request) {
	tenantID := mux.Vars(r)["tenant"]

	docs := s.store.Documents(tenantID)

	respondData(w, http.StatusOK, map[string]any{
		"tenant_id": tenantID,
		"documents": docs,
		"count":     len(docs),
	})
}

// handleGetStatistics handles GET /api/v1/tenants/{tenant}/statistics.
// Optional start+end query parameters add inbound/outbound totals over the
// range.
func (s *Server) handleGetStatistics(w http.ResponseWriter, r *http.Request) {
	tenantID := mux.Vars(r)["tenant"]
	q := r.URL.Query()

	stats := map[string]any{
		"tenant_id":             tenantID,
		"total_transactions":    s.store.TransactionCount(tenantID),
		"item_types":            s.store.ItemTypeCount(tenantID),
		"inventory_by_category": s.store.InventoryByCategory(tenantID),
	}

	if start, end := q.Get("start"), q.Get("end"); start != "" || end != "" {
		if start == "" || end == "" {
			respondError(w, errors.NewInvalidParameter("start/end",
				"a time range requires both start and end"))
			return
		}
		stats["in_out"] = s.store.InOut(tenantID, start, end)
	}

	respondData(w, http.StatusOK, stats)
}

// handleListTenants handles GET /api/v1/tenants.
func (s *Server) handleListTenants(w http.ResponseWriter, r *http.Request) {
	ids := s.store.TenantIDs()
	respondData(w, http.StatusOK, map[string]any{
		"tenants": ids,
		"count":   len(ids),
	})
}

// handleSystemStatus handles GET /api/v1/system/status.
func (s *Server) handleSystemStatus(w http.ResponseWriter, r *http.Request) {
	status := map[string]any{
		"status":    "healthy",
		"store":     s.store.Status(),
		"metrics":   s.mon.Snapshot(),
		"timestamp": time.Now().UTC().Format("2006-01-02T15:04:05Z"),
	}

	if s.pm != nil {
		status["storage"] = s.pm.Info()
	}
	if s.archiver != nil {
		status["archive"] = s.archiver.Stats()
	}

	respondData(w, http.StatusOK, status)
}

// handleCreateSnapshot handles POST /api/v1/system/snapshot.
func (s *Server) handleCreateSnapshot(w http.ResponseWriter, r *http.Request) {
	if err := s.store.CreateSnapshot(); err != nil {
		respondError(w, err)
		return
	}
	respondData(w, http.StatusOK, map[string]string{"message": "snapshot created"})
}

// handleRunArchive handles POST /api/v1/system/archive.
func (s *Server) handleRunArchive(w http.ResponseWriter, r *http.Request) {
	if s.archiver == nil || s.pm == nil {
		respondError(w, errors.Wrap(errors.ErrArchiveFailed, "archiving disabled"))
		return
	}

	if err := s.archiver.Run(r.Context(), s.pm, s.store); err != nil {
		respondError(w, err)
		return
	}
	respondData(w, http.StatusOK, map[string]any{
		"message": "archival pass complete",
		"stats":   s.archiver.Stats(),
	})
}

func sortedKeys(m map[string][]ledger.InventoryRecord) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
