package api

import (
	"net/http"
	"strconv"

	"github.com/safar/go-sales-ledger/internal/store"
	"github.com/shopspring/decimal"
)

type createProductRequest struct {
	SKU         string          `json:"sku"`
	Name        string          `json:"name"`
	Category    string          `json:"category"`
	Description string          `json:"description"`
	Price       decimal.Decimal `json:"price"`
	Cost        decimal.Decimal `json:"cost"`
	Stock       int             `json:"stock"`
}

type patchProductRequest struct {
	Name          *string          `json:"name"`
	Category      *string          `json:"category"`
	Description   *string          `json:"description"`
	Price         *decimal.Decimal `json:"price"`
	Cost          *decimal.Decimal `json:"cost"`
	StockQuantity *int             `json:"stock_quantity"`
	Version       *int             `json:"version"`
}

func (s *Server) createProduct(w http.ResponseWriter, r *http.Request) {
	var req createProductRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	product, err := store.CreateProduct(r.Context(), s.db, store.ProductInput{
		SKU:         req.SKU,
		Name:        req.Name,
		Category:    req.Category,
		Description: req.Description,
		Price:       req.Price,
		Cost:        req.Cost,
		Stock:       req.Stock,
	})
	if err != nil {
		s.respondStoreError(w, r, err, http.StatusNotFound)
		return
	}

	respondJSON(w, http.StatusCreated, product)
}

func (s *Server) listProducts(w http.ResponseWriter, r *http.Request) {
	page, pageSize := pageParams(r)

	result, err := store.ListProducts(r.Context(), s.db, page, pageSize)
	if err != nil {
		s.respondStoreError(w, r, err, http.StatusNotFound)
		return
	}

	respondJSON(w, http.StatusOK, result)
}

func (s *Server) getProduct(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid product ID")
		return
	}

	product, err := store.GetProduct(r.Context(), s.db, id)
	if err != nil {
		s.respondStoreError(w, r, err, http.StatusNotFound)
		return
	}

	respondJSON(w, http.StatusOK, product)
}

func (s *Server) patchProduct(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid product ID")
		return
	}

	var req patchProductRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	product, err := store.AdjustProduct(r.Context(), s.db, id, store.ProductPatch{
		Name:          req.Name,
		Category:      req.Category,
		Description:   req.Description,
		Price:         req.Price,
		Cost:          req.Cost,
		StockQuantity: req.StockQuantity,
		Version:       req.Version,
	})
	if err != nil {
		s.respondStoreError(w, r, err, http.StatusNotFound)
		return
	}

	respondJSON(w, http.StatusOK, product)
}

// lowStock lists products at or below ?threshold, defaulting to the
// configured low-stock threshold.
func (s *Server) lowStock(w http.ResponseWriter, r *http.Request) {
	threshold := s.lowStockThreshold
	if raw := r.URL.Query().Get("threshold"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v < 0 {
			respondError(w, http.StatusBadRequest, "Invalid threshold")
			return
		}
		threshold = v
	}

	levels, err := store.ListProductsBelow(r.Context(), s.db, threshold)
	if err != nil {
		s.respondStoreError(w, r, err, http.StatusNotFound)
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{"threshold": threshold, "items": levels})
}

func (s *Server) topPerforming(w http.ResponseWriter, r *http.Request) {
	ranked, err := store.TopPerforming(r.Context(), s.db, s.now(), limitParam(r))
	if err != nil {
		s.respondStoreError(w, r, err, http.StatusNotFound)
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{"items": ranked})
}
