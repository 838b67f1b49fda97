package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/safar/go-sales-ledger/internal/database"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("encode json response", "err", err)
	}
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

type insufficientStockBody struct {
	Error       string `json:"error"`
	Code        string `json:"code"`
	ProductID   int64  `json:"product_id"`
	ProductName string `json:"product_name"`
	Requested   int    `json:"requested"`
	Available   int    `json:"available"`
}

type productNotFoundBody struct {
	Error     string `json:"error"`
	Code      string `json:"code"`
	ProductID int64  `json:"product_id"`
}

type validationBody struct {
	Error string `json:"error"`
	Code  string `json:"code"`
	Field string `json:"field,omitempty"`
}

// respondStoreError maps a store error onto a status and body. A missing
// product is the caller's fault when it was named in the request body, so
// productStatus lets the handler choose between 400 and 404.
func (s *Server) respondStoreError(w http.ResponseWriter, r *http.Request, err error, productStatus int) {
	var short *database.InsufficientStockError
	var missing *database.ProductNotFoundError
	var invalid *database.ValidationError

	switch {
	case errors.As(err, &short):
		respondJSON(w, http.StatusBadRequest, insufficientStockBody{
			Error:       short.Error(),
			Code:        "insufficient_stock",
			ProductID:   short.ProductID,
			ProductName: short.ProductName,
			Requested:   short.Requested,
			Available:   short.Available,
		})
	case errors.As(err, &missing):
		respondJSON(w, productStatus, productNotFoundBody{
			Error:     missing.Error(),
			Code:      "product_not_found",
			ProductID: missing.ProductID,
		})
	case errors.As(err, &invalid):
		respondJSON(w, http.StatusBadRequest, validationBody{
			Error: invalid.Error(),
			Code:  "validation_failed",
			Field: invalid.Field,
		})
	case errors.Is(err, database.ErrProductNotFound):
		respondError(w, productStatus, err.Error())
	case errors.Is(err, database.ErrUserNotFound),
		errors.Is(err, database.ErrOrderNotFound),
		errors.Is(err, database.ErrSaleNotFound):
		respondError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, database.ErrInvalidTransition),
		errors.Is(err, database.ErrOptimisticLockFailed):
		respondError(w, http.StatusConflict, err.Error())
	case errors.Is(err, database.ErrLockTimeout):
		respondError(w, http.StatusServiceUnavailable, "resource busy, retry later")
	default:
		s.log.Error("request failed", "method", r.Method, "path", r.URL.Path, "err", err)
		respondError(w, http.StatusInternalServerError, "internal error")
	}
}

// decodeJSON ignores unknown fields, so client-computed totals are dropped
// rather than rejected.
func decodeJSON(r *http.Request, dst any) error {
	return json.NewDecoder(r.Body).Decode(dst)
}

func pathID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(chi.URLParam(r, "id")), 10, 64)
	if err != nil || id <= 0 {
		return 0, errors.New("invalid id")
	}
	return id, nil
}

func pageParams(r *http.Request) (page, pageSize int) {
	page, _ = strconv.Atoi(r.URL.Query().Get("page"))
	if page < 1 {
		page = 1
	}
	pageSize, _ = strconv.Atoi(r.URL.Query().Get("page_size"))
	if pageSize < 1 || pageSize > maxPageSize {
		pageSize = defaultPageSize
	}
	return page, pageSize
}

func limitParam(r *http.Request) int {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit < 1 || limit > maxPageSize {
		limit = defaultPageSize
	}
	return limit
}
