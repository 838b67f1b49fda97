// Package api exposes the sales ledger over HTTP.
package api

import (
	"context"
	"database/sql"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/safar/go-sales-ledger/internal/ids"
	"github.com/safar/go-sales-ledger/internal/models"
	"github.com/safar/go-sales-ledger/internal/notify"
)

const (
	requestTimeout = 30 * time.Second
	notifyTimeout  = 5 * time.Second
)

type Server struct {
	db                *sql.DB
	gen               ids.Generator
	notifier          notify.Notifier
	log               *slog.Logger
	lowStockThreshold int
	now               func() time.Time
}

func NewServer(db *sql.DB, gen ids.Generator, notifier notify.Notifier, log *slog.Logger, lowStockThreshold int) *Server {
	return &Server{
		db:                db,
		gen:               gen,
		notifier:          notifier,
		log:               log,
		lowStockThreshold: lowStockThreshold,
		now:               time.Now,
	}
}

func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(RequestLogger(s.log))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(requestTimeout))
	r.Use(Identity)

	r.Get("/healthz", s.health)

	r.Group(func(r chi.Router) {
		r.Use(RequireRole(models.RoleCashierIn, models.RoleCashierOut, models.RoleOther))

		r.Route("/users", func(r chi.Router) {
			r.With(RequireRole(models.RoleAdmin)).Post("/", s.createUser)
			r.Get("/", s.listUsers)
			r.Get("/{id}", s.getUser)
		})

		r.Route("/products", func(r chi.Router) {
			r.With(RequireRole(models.RoleAdmin)).Post("/", s.createProduct)
			r.Get("/", s.listProducts)
			r.Get("/low-stock", s.lowStock)
			r.Get("/top-performing", s.topPerforming)
			r.Get("/{id}", s.getProduct)
			r.With(RequireRole(models.RoleAdmin)).Patch("/{id}", s.patchProduct)
		})

		r.Route("/sales", func(r chi.Router) {
			r.With(RequireRole(models.RoleAdmin, models.RoleCashierOut)).Post("/", s.createSale)
			r.Get("/", s.listSales)
			r.Get("/{id}", s.getSale)
			r.With(RequireRole(models.RoleAdmin)).Patch("/{id}", s.patchSale)
			r.With(RequireRole(models.RoleAdmin)).Delete("/{id}", s.deleteSale)
		})

		r.Route("/orders", func(r chi.Router) {
			writers := RequireRole(models.RoleAdmin, models.RoleCashierIn, models.RoleCashierOut)
			r.With(writers).Post("/", s.createOrder)
			r.Get("/", s.listOrders)
			r.Get("/{id}", s.getOrder)
			r.With(writers).Put("/{id}/status", s.updateOrderStatus)
		})
	})

	return r
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	if s.db != nil {
		if err := s.db.PingContext(r.Context()); err != nil {
			respondError(w, http.StatusServiceUnavailable, "database unavailable")
			return
		}
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// emitLowStock signals every touched product that fell to the threshold.
// The sale is already committed, so a client disconnect must not cancel it.
func (s *Server) emitLowStock(r *http.Request, levels []models.StockLevel) {
	if s.notifier == nil || len(levels) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), notifyTimeout)
	defer cancel()
	notify.Emit(ctx, s.log, s.notifier, levels, s.lowStockThreshold)
}
