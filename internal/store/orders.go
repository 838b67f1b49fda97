package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/safar/go-sales-ledger/internal/database"
	"github.com/safar/go-sales-ledger/internal/ids"
	"github.com/safar/go-sales-ledger/internal/models"
)

const orderColumns = `id, order_number, customer_name, customer_email, status, product_id, quantity, items,
	unit_price, total_amount, shipping_address, payment_method, sale_id, created_at, updated_at, version`

type CreateOrderRequest struct {
	CustomerName    string
	CustomerEmail   string
	ShippingAddress string
	PaymentMethod   models.PaymentMethod
	ProductID       int64
	Quantity        int
}

func (r CreateOrderRequest) validate() error {
	if strings.TrimSpace(r.CustomerName) == "" {
		return database.Invalid("customer_name", "is required")
	}
	if !r.PaymentMethod.Valid() {
		return database.Invalid("payment_method", "unsupported payment method %q", r.PaymentMethod)
	}
	if r.ProductID <= 0 {
		return database.Invalid("product_id", "must be a positive id")
	}
	if r.Quantity < 1 {
		return database.Invalid("quantity", "must be at least 1")
	}
	if r.Quantity > math.MaxInt32 {
		return database.Invalid("quantity", "must not exceed %d", math.MaxInt32)
	}
	return nil
}

// OrderTransition is the outcome of a status change. Sale is set only when
// the change completed the order.
type OrderTransition struct {
	Order       *models.Order       `json:"order"`
	Sale        *models.Sale        `json:"sale,omitempty"`
	StockLevels []models.StockLevel `json:"-"`
}

// orderDraft turns a completed order into a one-line sale at the order's
// price snapshot.
type orderDraft struct {
	order   *models.Order
	actorID *int64
}

func (d orderDraft) SaleDraft() SaleDraft {
	price := d.order.UnitPrice
	orderID := d.order.ID
	return SaleDraft{
		CustomerName:  d.order.CustomerName,
		PaymentMethod: d.order.PaymentMethod,
		SalesPersonID: d.actorID,
		OrderID:       &orderID,
		Notes:         "order " + d.order.OrderNumber,
		Lines: []SaleLine{{
			ProductID: d.order.ProductID,
			Quantity:  d.order.Quantity,
			UnitPrice: &price,
		}},
	}
}

func scanOrder(row rowScanner) (*models.Order, error) {
	order := &models.Order{}
	var saleID sql.NullInt64
	err := row.Scan(
		&order.ID,
		&order.OrderNumber,
		&order.CustomerName,
		&order.CustomerEmail,
		&order.Status,
		&order.ProductID,
		&order.Quantity,
		&order.Items,
		&order.UnitPrice,
		&order.TotalAmount,
		&order.ShippingAddress,
		&order.PaymentMethod,
		&saleID,
		&order.CreatedAt,
		&order.UpdatedAt,
		&order.Version,
	)
	if err != nil {
		return nil, err
	}
	if saleID.Valid {
		order.SaleID = &saleID.Int64
	}
	return order, nil
}

// CreateOrder records a pending order for one product at its current price.
// Stock is not touched until the order completes.
func CreateOrder(ctx context.Context, db *sql.DB, gen ids.Generator, req CreateOrderRequest) (*models.Order, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}

	query := `
		INSERT INTO orders (order_number, customer_name, customer_email, status, product_id, quantity, items,
		                    unit_price, total_amount, shipping_address, payment_method, created_at, updated_at, version)
		SELECT $1::text, $2::text, $3::text, 'pending', p.id, $5::int, $5::int, p.price, p.price * $5::int,
		       $6::text, $7::text, NOW(), NOW(), 1
		FROM products p
		WHERE p.id = $4
		RETURNING ` + orderColumns

	for attempt := 0; ; attempt++ {
		order, err := scanOrder(db.QueryRowContext(ctx, query,
			gen.OrderNumber(), strings.TrimSpace(req.CustomerName), req.CustomerEmail,
			req.ProductID, req.Quantity, req.ShippingAddress, req.PaymentMethod))
		if err == nil {
			return order, nil
		}
		if errors.Is(err, sql.ErrNoRows) {
			return nil, &database.ProductNotFoundError{ProductID: req.ProductID}
		}
		if database.IsUniqueViolation(err, "orders_order_number_key") && attempt < saleNumberAttempts-1 {
			continue
		}
		return nil, fmt.Errorf("create order: %w", err)
	}
}

func GetOrder(ctx context.Context, db DBTX, id int64) (*models.Order, error) {
	order, err := scanOrder(db.QueryRowContext(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, database.ErrOrderNotFound
		}
		return nil, fmt.Errorf("get order: %w", err)
	}
	return order, nil
}

// ListOrdersCursor pages orders newest first. An empty status lists every order.
func ListOrdersCursor(ctx context.Context, db *sql.DB, status models.OrderStatus, cursor string, limit int) (*CursorPage, error) {
	if status != "" && !status.Valid() {
		return nil, database.Invalid("status", "unknown order status %q", status)
	}

	cursorData, err := DecodeCursor(cursor)
	if err != nil {
		return nil, fmt.Errorf("decode cursor: %w", err)
	}

	query := `
		SELECT ` + orderColumns + `
		FROM orders
		WHERE (created_at, id) < ($1, $2)
		  AND ($3::text = '' OR status = $3::text)
		ORDER BY created_at DESC, id DESC
		LIMIT $4`

	rows, err := db.QueryContext(ctx, query, cursorData.At, cursorData.ID, string(status), limit+1)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()

	orders := []models.Order{}
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		orders = append(orders, *order)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	orders, hasMore := trimPage(orders, limit)

	var nextCursor string
	if hasMore && len(orders) > 0 {
		last := orders[len(orders)-1]
		nextCursor = EncodeCursor(Cursor{At: last.CreatedAt, ID: last.ID})
	}

	return &CursorPage{
		Items:      orders,
		NextCursor: nextCursor,
		HasMore:    hasMore,
	}, nil
}

// UpdateOrderStatus moves an order through its state machine. Completing an
// order records its sale and decrements stock in the same transaction, so
// an order is promoted at most once. Repeating the current status is a
// no-op.
func UpdateOrderStatus(ctx context.Context, db *sql.DB, gen ids.Generator, id int64, next models.OrderStatus, actorID *int64) (*OrderTransition, error) {
	if !next.Valid() {
		return nil, database.Invalid("status", "unknown order status %q", next)
	}

	var result *OrderTransition

	err := retrySaleNumber(func() error {
		return database.WithRetry(ctx, db, database.DefaultTxOptions(), func(tx *sql.Tx) error {
			order, err := scanOrder(tx.QueryRowContext(ctx,
				`SELECT `+orderColumns+` FROM orders WHERE id = $1 FOR UPDATE NOWAIT`, id))
			if err != nil {
				if errors.Is(err, sql.ErrNoRows) {
					return database.ErrOrderNotFound
				}
				return fmt.Errorf("lock order: %w", err)
			}

			if order.Status == next {
				result = &OrderTransition{Order: order}
				return nil
			}

			if !order.Status.CanTransitionTo(next) {
				return fmt.Errorf("%w: %s to %s", database.ErrInvalidTransition, order.Status, next)
			}

			transition := &OrderTransition{}
			saleID := order.SaleID
			if next == models.OrderStatusCompleted {
				committed, err := commitSale(ctx, tx, gen, orderDraft{order: order, actorID: actorID})
				if err != nil {
					return err
				}
				transition.Sale = committed.Sale
				transition.StockLevels = committed.StockLevels
				saleID = &committed.Sale.ID
			}

			updated, err := scanOrder(tx.QueryRowContext(ctx,
				`UPDATE orders
				 SET status = $2,
				     sale_id = $3,
				     version = version + 1,
				     updated_at = NOW()
				 WHERE id = $1
				 RETURNING `+orderColumns,
				id, next, saleID))
			if err != nil {
				return fmt.Errorf("update order status: %w", err)
			}
			transition.Order = updated

			result = transition
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	return result, nil
}
