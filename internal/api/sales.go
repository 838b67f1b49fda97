package api

import (
	"net/http"

	"github.com/safar/go-sales-ledger/internal/models"
	"github.com/safar/go-sales-ledger/internal/store"
	"github.com/shopspring/decimal"
)

type saleItemRequest struct {
	ProductID    int64           `json:"product_id"`
	Quantity     int             `json:"quantity"`
	ShippingCost decimal.Decimal `json:"shipping_cost"`
	StorageCost  decimal.Decimal `json:"storage_cost"`
	LaborCost    decimal.Decimal `json:"labor_cost"`
	OverheadCost decimal.Decimal `json:"overhead_cost"`
}

type createSaleRequest struct {
	CustomerName  string               `json:"customer_name"`
	PaymentMethod models.PaymentMethod `json:"payment_method"`
	Notes         string               `json:"notes"`
	Items         []saleItemRequest    `json:"items"`
}

type patchSaleRequest struct {
	CustomerName  *string               `json:"customer_name"`
	Notes         *string               `json:"notes"`
	PaymentMethod *models.PaymentMethod `json:"payment_method"`
}

func (req createSaleRequest) toStore(caller Caller) store.CreateSaleRequest {
	items := make([]store.SaleItemRequest, 0, len(req.Items))
	for _, item := range req.Items {
		items = append(items, store.SaleItemRequest{
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
			Shipping:  item.ShippingCost,
			Storage:   item.StorageCost,
			Labor:     item.LaborCost,
			Overhead:  item.OverheadCost,
		})
	}

	salesPersonID := caller.UserID
	return store.CreateSaleRequest{
		CustomerName:  req.CustomerName,
		PaymentMethod: req.PaymentMethod,
		SalesPersonID: &salesPersonID,
		Notes:         req.Notes,
		Items:         items,
	}
}

func (s *Server) createSale(w http.ResponseWriter, r *http.Request) {
	var body createSaleRequest
	if err := decodeJSON(r, &body); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	caller, _ := CallerFrom(r.Context())
	req := body.toStore(caller)
	if err := store.ValidateDraft(req.SaleDraft()); err != nil {
		s.respondStoreError(w, r, err, http.StatusBadRequest)
		return
	}

	result, err := store.CreateSale(r.Context(), s.db, s.gen, req)
	if err != nil {
		s.respondStoreError(w, r, err, http.StatusBadRequest)
		return
	}

	s.log.Info("sale recorded",
		"sale_id", result.Sale.ID,
		"sale_number", result.Sale.SaleNumber,
		"total", result.Sale.TotalAmount.String(),
		"salesperson_id", caller.UserID,
	)
	s.emitLowStock(r, result.StockLevels)

	respondJSON(w, http.StatusCreated, result.Sale)
}

func (s *Server) listSales(w http.ResponseWriter, r *http.Request) {
	cursor := r.URL.Query().Get("cursor")
	if _, err := store.DecodeCursor(cursor); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid cursor")
		return
	}

	result, err := store.ListSalesCursor(r.Context(), s.db, cursor, limitParam(r))
	if err != nil {
		s.respondStoreError(w, r, err, http.StatusNotFound)
		return
	}

	respondJSON(w, http.StatusOK, result)
}

func (s *Server) getSale(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid sale ID")
		return
	}

	sale, err := store.GetSale(r.Context(), s.db, id)
	if err != nil {
		s.respondStoreError(w, r, err, http.StatusNotFound)
		return
	}

	respondJSON(w, http.StatusOK, sale)
}

func (s *Server) patchSale(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid sale ID")
		return
	}

	var req patchSaleRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	sale, err := store.UpdateSaleDetails(r.Context(), s.db, id, store.SalePatch{
		CustomerName:  req.CustomerName,
		Notes:         req.Notes,
		PaymentMethod: req.PaymentMethod,
	})
	if err != nil {
		s.respondStoreError(w, r, err, http.StatusNotFound)
		return
	}

	respondJSON(w, http.StatusOK, sale)
}

func (s *Server) deleteSale(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid sale ID")
		return
	}

	levels, err := store.DeleteSale(r.Context(), s.db, id)
	if err != nil {
		s.respondStoreError(w, r, err, http.StatusNotFound)
		return
	}

	s.log.Info("sale deleted", "sale_id", id, "restored_products", len(levels))
	w.WriteHeader(http.StatusNoContent)
}
