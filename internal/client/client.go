// Package client is a thin HTTP client for the stockd API, used by the
// stockctl console.
package client

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tentenbyte/stockd/internal/ledger"
)

// Client talks to one stockd instance.
type Client struct {
	baseURL string
	http    *http.Client
}

// New creates a client for the given base URL (e.g., "http://localhost:8900").
func New(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 30 * time.Second},
	}
}

// envelope mirrors the server's response wrapper.
type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code    int32  `json:"code"`
		Name    string `json:"name"`
		Message string `json:"message"`
	} `json:"error"`
}

// APIError is a structured error returned by the server.
type APIError struct {
	Code    int32
	Name    string
	Message string
	Status  int
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s (code %d): %s", e.Name, e.Code, e.Message)
}

func (c *Client) do(method, path string, body, out any) error {
	var reqBody io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reqBody = bytes.NewReader(buf)
	}

	req, err := http.NewRequest(method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("request %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}

	if !env.Success {
		apiErr := &APIError{Status: resp.StatusCode}
		if env.Error != nil {
			apiErr.Code = env.Error.Code
			apiErr.Name = env.Error.Name
			apiErr.Message = env.Error.Message
		}
		return apiErr
	}

	if out != nil && env.Data != nil {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return fmt.Errorf("decode data: %w", err)
		}
	}
	return nil
}

// AppendTransaction appends one transaction and returns its id.
func (c *Client) AppendTransaction(tenantID string, e ledger.Event) (string, error) {
	var out struct {
		TransactionID string `json:"transaction_id"`
	}
	path := fmt.Sprintf("/api/v1/tenants/%s/transactions", url.PathEscape(tenantID))
	if err := c.do(http.MethodPost, path, e, &out); err != nil {
		return "", err
	}
	return out.TransactionID, nil
}

// TransactionsResult is the transactions query response.
type TransactionsResult struct {
	TenantID     string         `json:"tenant_id"`
	Transactions []ledger.Event `json:"transactions"`
	Count        int            `json:"count"`
}

// Transactions fetches a tenant's transactions, optionally filtered. Filters
// use the server's query parameters: item, document, partner, start, end.
func (c *Client) Transactions(tenantID string, filters map[string]string) (*TransactionsResult, error) {
	q := url.Values{}
	for k, v := range filters {
		q.Set(k, v)
	}

	path := fmt.Sprintf("/api/v1/tenants/%s/transactions", url.PathEscape(tenantID))
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	var out TransactionsResult
	if err := c.do(http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Warehouse is one warehouse's stock positions.
type Warehouse struct {
	WarehouseID string                   `json:"warehouse_id"`
	Items       []ledger.InventoryRecord `json:"items"`
}

// InventoryResult is the inventory query response.
type InventoryResult struct {
	TenantID   string      `json:"tenant_id"`
	Warehouses []Warehouse `json:"warehouses"`
}

// Inventory fetches a tenant's current stock grouped by warehouse.
func (c *Client) Inventory(tenantID string) (*InventoryResult, error) {
	var out InventoryResult
	path := fmt.Sprintf("/api/v1/tenants/%s/inventory", url.PathEscape(tenantID))
	if err := c.do(http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ItemsResult is the items query response.
type ItemsResult struct {
	TenantID string               `json:"tenant_id"`
	Items    []ledger.ItemSummary `json:"items"`
	Count    int                  `json:"count"`
}

// Items fetches a tenant's item catalog (positive stock only).
func (c *Client) Items(tenantID string) (*ItemsResult, error) {
	var out ItemsResult
	path := fmt.Sprintf("/api/v1/tenants/%s/items", url.PathEscape(tenantID))
	if err := c.do(http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DocumentsResult is the documents query response.
type DocumentsResult struct {
	TenantID  string                   `json:"tenant_id"`
	Documents []ledger.DocumentSummary `json:"documents"`
	Count     int                      `json:"count"`
}

// Documents fetches a tenant's per-document summaries.
func (c *Client) Documents(tenantID string) (*DocumentsResult, error) {
	var out DocumentsResult
	path := fmt.Sprintf("/api/v1/tenants/%s/documents", url.PathEscape(tenantID))
	if err := c.do(http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Statistics fetches a tenant's statistics as raw JSON for display.
func (c *Client) Statistics(tenantID string) (map[string]any, error) {
	var out map[string]any
	path := fmt.Sprintf("/api/v1/tenants/%s/statistics", url.PathEscape(tenantID))
	if err := c.do(http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Tenants lists the known tenant ids.
func (c *Client) Tenants() ([]string, error) {
	var out struct {
		Tenants []string `json:"tenants"`
	}
	if err := c.do(http.MethodGet, "/api/v1/tenants", nil, &out); err != nil {
		return nil, err
	}
	return out.Tenants, nil
}

// SystemStatus fetches the system status as raw JSON for display.
func (c *Client) SystemStatus() (map[string]any, error) {
	var out map[string]any
	if err := c.do(http.MethodGet, "/api/v1/system/status", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// CreateSnapshot asks the server to write a snapshot now.
func (c *Client) CreateSnapshot() error {
	return c.do(http.MethodPost, "/api/v1/system/snapshot", nil, nil)
}

// RunArchive asks the server to run one archival pass now.
func (c *Client) RunArchive() error {
	return c.do(http.MethodPost, "/api/v1/system/archive", nil, nil)
}
