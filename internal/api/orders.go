package api

import (
	"net/http"

	"github.com/safar/go-sales-ledger/internal/models"
	"github.com/safar/go-sales-ledger/internal/store"
)

type createOrderRequest struct {
	CustomerName    string               `json:"customer_name"`
	CustomerEmail   string               `json:"customer_email"`
	ShippingAddress string               `json:"shipping_address"`
	PaymentMethod   models.PaymentMethod `json:"payment_method"`
	ProductID       int64                `json:"product_id"`
	Quantity        int                  `json:"quantity"`
}

type updateOrderStatusRequest struct {
	Status models.OrderStatus `json:"status"`
}

func (s *Server) createOrder(w http.ResponseWriter, r *http.Request) {
	var req createOrderRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	order, err := store.CreateOrder(r.Context(), s.db, s.gen, store.CreateOrderRequest{
		CustomerName:    req.CustomerName,
		CustomerEmail:   req.CustomerEmail,
		ShippingAddress: req.ShippingAddress,
		PaymentMethod:   req.PaymentMethod,
		ProductID:       req.ProductID,
		Quantity:        req.Quantity,
	})
	if err != nil {
		s.respondStoreError(w, r, err, http.StatusNotFound)
		return
	}

	respondJSON(w, http.StatusCreated, order)
}

func (s *Server) listOrders(w http.ResponseWriter, r *http.Request) {
	cursor := r.URL.Query().Get("cursor")
	if _, err := store.DecodeCursor(cursor); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid cursor")
		return
	}

	status := models.OrderStatus(r.URL.Query().Get("status"))
	result, err := store.ListOrdersCursor(r.Context(), s.db, status, cursor, limitParam(r))
	if err != nil {
		s.respondStoreError(w, r, err, http.StatusNotFound)
		return
	}

	respondJSON(w, http.StatusOK, result)
}

func (s *Server) getOrder(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid order ID")
		return
	}

	order, err := store.GetOrder(r.Context(), s.db, id)
	if err != nil {
		s.respondStoreError(w, r, err, http.StatusNotFound)
		return
	}

	respondJSON(w, http.StatusOK, order)
}

func (s *Server) updateOrderStatus(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid order ID")
		return
	}

	var req updateOrderStatusRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if !req.Status.Valid() {
		respondError(w, http.StatusBadRequest, "Invalid order status")
		return
	}

	caller, _ := CallerFrom(r.Context())
	actorID := caller.UserID

	result, err := store.UpdateOrderStatus(r.Context(), s.db, s.gen, id, req.Status, &actorID)
	if err != nil {
		s.respondStoreError(w, r, err, http.StatusNotFound)
		return
	}

	if result.Sale != nil {
		s.log.Info("order promoted to sale",
			"order_id", result.Order.ID,
			"sale_id", result.Sale.ID,
			"sale_number", result.Sale.SaleNumber,
		)
		s.emitLowStock(r, result.StockLevels)
	}

	respondJSON(w, http.StatusOK, result)
}
