package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/safar/go-sales-ledger/internal/database"
	"github.com/safar/go-sales-ledger/internal/ids"
	"github.com/safar/go-sales-ledger/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingNotifier struct {
	levels []models.StockLevel
	err    error
}

func (n *recordingNotifier) Notify(_ context.Context, level models.StockLevel) error {
	n.levels = append(n.levels, level)
	return n.err
}

func newTestServer() (*Server, *recordingNotifier) {
	n := &recordingNotifier{}
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewServer(nil, ids.NewTimestamped(), n, log, 5), n
}

func do(t *testing.T, h http.Handler, method, path, body string, role models.Role) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if role != "" {
		req.Header.Set(HeaderUserID, "7")
		req.Header.Set(HeaderUserRole, string(role))
	}

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestHealth(t *testing.T) {
	s, _ := newTestServer()

	rec := do(t, s.Routes(), http.MethodGet, "/healthz", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", decodeBody(t, rec)["status"])
}

func TestRoleGates(t *testing.T) {
	s, _ := newTestServer()
	h := s.Routes()

	tests := []struct {
		name   string
		method string
		path   string
		role   models.Role
		want   int
	}{
		{"sale without identity", http.MethodPost, "/sales", "", http.StatusUnauthorized},
		{"sale as reader", http.MethodPost, "/sales", models.RoleOther, http.StatusForbidden},
		{"sale as cashier-in", http.MethodPost, "/sales", models.RoleCashierIn, http.StatusForbidden},
		{"product as cashier", http.MethodPost, "/products", models.RoleCashierOut, http.StatusForbidden},
		{"user as cashier", http.MethodPost, "/users", models.RoleCashierIn, http.StatusForbidden},
		{"sale edit as cashier", http.MethodPatch, "/sales/1", models.RoleCashierOut, http.StatusForbidden},
		{"sale delete as cashier", http.MethodDelete, "/sales/1", models.RoleCashierOut, http.StatusForbidden},
		{"order as reader", http.MethodPost, "/orders", models.RoleOther, http.StatusForbidden},
		{"order status without identity", http.MethodPut, "/orders/1/status", "", http.StatusUnauthorized},
		{"user list without identity", http.MethodGet, "/users", "", http.StatusUnauthorized},
		{"product list without identity", http.MethodGet, "/products", "", http.StatusUnauthorized},
		{"top performing without identity", http.MethodGet, "/products/top-performing", "", http.StatusUnauthorized},
		{"sale read without identity", http.MethodGet, "/sales/1", "", http.StatusUnauthorized},
		{"sale list without identity", http.MethodGet, "/sales", "", http.StatusUnauthorized},
		{"order list without identity", http.MethodGet, "/orders", "", http.StatusUnauthorized},
		{"order read without identity", http.MethodGet, "/orders/1", "", http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, h, tt.method, tt.path, `{}`, tt.role)
			assert.Equal(t, tt.want, rec.Code)
		})
	}
}

func TestIdentityRejectsMalformedHeaders(t *testing.T) {
	s, _ := newTestServer()

	req := httptest.NewRequest(http.MethodPost, "/sales", strings.NewReader(`{}`))
	req.Header.Set(HeaderUserID, "abc")
	req.Header.Set(HeaderUserRole, "admin")
	rec := httptest.NewRecorder()
	s.Routes().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req = httptest.NewRequest(http.MethodPost, "/sales", strings.NewReader(`{}`))
	req.Header.Set(HeaderUserID, "3")
	req.Header.Set(HeaderUserRole, "superuser")
	rec = httptest.NewRecorder()
	s.Routes().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestCreateSaleValidation(t *testing.T) {
	s, _ := newTestServer()
	h := s.Routes()

	tests := []struct {
		name  string
		body  string
		field string
	}{
		{"no items", `{"payment_method":"cash","items":[]}`, "items"},
		{"zero quantity", `{"payment_method":"cash","items":[{"product_id":1,"quantity":0}]}`, "items[0].quantity"},
		{"bad product id", `{"payment_method":"cash","items":[{"product_id":0,"quantity":1}]}`, "items[0].product_id"},
		{"unknown payment", `{"payment_method":"cheque","items":[{"product_id":1,"quantity":1}]}`, "payment_method"},
		{"negative cost", `{"payment_method":"cash","items":[{"product_id":1,"quantity":1,"labor_cost":"-1"}]}`, "items[0].labor"},
		{"sub-cent cost", `{"payment_method":"cash","items":[{"product_id":1,"quantity":1,"overhead_cost":"0.005"}]}`, "items[0].overhead"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, h, http.MethodPost, "/sales", tt.body, models.RoleCashierOut)
			require.Equal(t, http.StatusBadRequest, rec.Code)

			body := decodeBody(t, rec)
			assert.Equal(t, "validation_failed", body["code"])
			assert.Equal(t, tt.field, body["field"])
		})
	}
}

func TestMalformedRequests(t *testing.T) {
	s, _ := newTestServer()
	h := s.Routes()

	tests := []struct {
		name   string
		method string
		path   string
		body   string
	}{
		{"sale body", http.MethodPost, "/sales", `{"items":`},
		{"product id", http.MethodGet, "/products/abc", ""},
		{"negative sale id", http.MethodGet, "/sales/-4", ""},
		{"order status", http.MethodPut, "/orders/1/status", `{"status":"shipped"}`},
		{"sale cursor", http.MethodGet, "/sales?cursor=notbase64!", ""},
		{"order cursor", http.MethodGet, "/orders?cursor=not-base64!", ""},
		{"low stock threshold", http.MethodGet, "/products/low-stock?threshold=-1", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, h, tt.method, tt.path, tt.body, models.RoleAdmin)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}

func TestRespondStoreError(t *testing.T) {
	s, _ := newTestServer()

	tests := []struct {
		name          string
		err           error
		productStatus int
		want          int
		code          string
	}{
		{
			name: "insufficient stock",
			err: fmt.Errorf("commit: %w", &database.InsufficientStockError{
				ProductID: 3, ProductName: "Mug", Requested: 7, Available: 6,
			}),
			productStatus: http.StatusBadRequest,
			want:          http.StatusBadRequest,
			code:          "insufficient_stock",
		},
		{"product missing in body", &database.ProductNotFoundError{ProductID: 9}, http.StatusBadRequest, http.StatusBadRequest, "product_not_found"},
		{"product missing in path", &database.ProductNotFoundError{ProductID: 9}, http.StatusNotFound, http.StatusNotFound, "product_not_found"},
		{"product missing on completion", fmt.Errorf("complete order: %w", &database.ProductNotFoundError{ProductID: 9}), http.StatusNotFound, http.StatusNotFound, "product_not_found"},
		{"validation", database.Invalid("sku", "is required"), http.StatusNotFound, http.StatusBadRequest, "validation_failed"},
		{"sale missing", database.ErrSaleNotFound, http.StatusNotFound, http.StatusNotFound, ""},
		{"bad transition", fmt.Errorf("%w: pending to completed", database.ErrInvalidTransition), http.StatusBadRequest, http.StatusConflict, ""},
		{"stale version", database.ErrOptimisticLockFailed, http.StatusNotFound, http.StatusConflict, ""},
		{"lock timeout", fmt.Errorf("max retries (3) exceeded: %w", database.ErrLockTimeout), http.StatusBadRequest, http.StatusServiceUnavailable, ""},
		{"unknown", errors.New("connection reset"), http.StatusNotFound, http.StatusInternalServerError, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			s.respondStoreError(rec, httptest.NewRequest(http.MethodPost, "/sales", nil), tt.err, tt.productStatus)

			assert.Equal(t, tt.want, rec.Code)
			body := decodeBody(t, rec)
			if tt.code != "" {
				assert.Equal(t, tt.code, body["code"])
			}
			assert.NotEmpty(t, body["error"])
		})
	}
}

func TestInsufficientStockBody(t *testing.T) {
	s, _ := newTestServer()

	rec := httptest.NewRecorder()
	s.respondStoreError(rec, httptest.NewRequest(http.MethodPost, "/sales", nil),
		&database.InsufficientStockError{ProductID: 3, ProductName: "Mug", Requested: 7, Available: 6},
		http.StatusBadRequest)

	body := decodeBody(t, rec)
	assert.Equal(t, float64(3), body["product_id"])
	assert.Equal(t, "Mug", body["product_name"])
	assert.Equal(t, float64(7), body["requested"])
	assert.Equal(t, float64(6), body["available"])
}

func TestEmitLowStock(t *testing.T) {
	s, n := newTestServer()
	n.err = errors.New("redis down")

	req := httptest.NewRequest(http.MethodPost, "/sales", nil)
	s.emitLowStock(req, []models.StockLevel{
		{ProductID: 1, Stock: 5},
		{ProductID: 2, Stock: 6},
		{ProductID: 3, Stock: 0},
	})

	require.Len(t, n.levels, 2)
	assert.Equal(t, int64(1), n.levels[0].ProductID)
	assert.Equal(t, int64(3), n.levels[1].ProductID)
}
