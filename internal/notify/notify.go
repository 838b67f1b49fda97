// Package notify emits low-stock signals after a sale commits. Delivery is
// best effort: a failed signal never fails the sale that produced it.
package notify

import (
	"context"
	"errors"
	"log/slog"

	"github.com/safar/go-sales-ledger/internal/models"
)

type Notifier interface {
	Notify(ctx context.Context, level models.StockLevel) error
}

// LowStock returns the levels at or below threshold.
func LowStock(levels []models.StockLevel, threshold int) []models.StockLevel {
	var low []models.StockLevel
	for _, l := range levels {
		if l.Stock <= threshold {
			low = append(low, l)
		}
	}
	return low
}

// Emit sends every low level through n and logs failures.
func Emit(ctx context.Context, log *slog.Logger, n Notifier, levels []models.StockLevel, threshold int) {
	for _, l := range LowStock(levels, threshold) {
		if err := n.Notify(ctx, l); err != nil {
			log.Error("low stock notify failed", "product_id", l.ProductID, "stock", l.Stock, "err", err)
		}
	}
}

type LogNotifier struct {
	log *slog.Logger
}

func NewLogNotifier(log *slog.Logger) *LogNotifier {
	return &LogNotifier{log: log}
}

func (n *LogNotifier) Notify(_ context.Context, level models.StockLevel) error {
	n.log.Warn("stock low",
		"product_id", level.ProductID,
		"sku", level.SKU,
		"product_name", level.ProductName,
		"stock", level.Stock,
	)
	return nil
}

// Multi fans a signal out to every notifier and joins their errors.
type Multi []Notifier

func (m Multi) Notify(ctx context.Context, level models.StockLevel) error {
	var errs []error
	for _, n := range m {
		if err := n.Notify(ctx, level); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
