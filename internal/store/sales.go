package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"

	"github.com/safar/go-sales-ledger/internal/database"
	"github.com/safar/go-sales-ledger/internal/ids"
	"github.com/safar/go-sales-ledger/internal/models"
	"github.com/shopspring/decimal"
)

const (
	saleColumns = `id, sale_number, customer_name, payment_method, salesperson_id, order_id,
		total_amount, profit, notes, sold_at, created_at, updated_at, version`

	saleNumberAttempts = 3
)

// SaleLine is one product and quantity to commit. A nil UnitPrice sells at
// the product's current price.
type SaleLine struct {
	ProductID int64
	Quantity  int
	UnitPrice *decimal.Decimal
	Shipping  decimal.Decimal
	Storage   decimal.Decimal
	Labor     decimal.Decimal
	Overhead  decimal.Decimal
}

type SaleDraft struct {
	CustomerName  string
	PaymentMethod models.PaymentMethod
	SalesPersonID *int64
	OrderID       *int64
	Notes         string
	Lines         []SaleLine
}

// DraftSource is anything that can be committed as a sale. Direct sale
// requests and completed orders both go through commitSale via this.
type DraftSource interface {
	SaleDraft() SaleDraft
}

type SaleItemRequest struct {
	ProductID int64
	Quantity  int
	Shipping  decimal.Decimal
	Storage   decimal.Decimal
	Labor     decimal.Decimal
	Overhead  decimal.Decimal
}

type CreateSaleRequest struct {
	CustomerName  string
	PaymentMethod models.PaymentMethod
	SalesPersonID *int64
	Notes         string
	Items         []SaleItemRequest
}

func (r CreateSaleRequest) SaleDraft() SaleDraft {
	lines := make([]SaleLine, 0, len(r.Items))
	for _, item := range r.Items {
		lines = append(lines, SaleLine{
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
			Shipping:  item.Shipping,
			Storage:   item.Storage,
			Labor:     item.Labor,
			Overhead:  item.Overhead,
		})
	}

	return SaleDraft{
		CustomerName:  r.CustomerName,
		PaymentMethod: r.PaymentMethod,
		SalesPersonID: r.SalesPersonID,
		Notes:         r.Notes,
		Lines:         lines,
	}
}

// SaleResult is a committed sale plus the stock left on every product it touched.
type SaleResult struct {
	Sale        *models.Sale
	StockLevels []models.StockLevel
}

type SalePatch struct {
	CustomerName  *string
	Notes         *string
	PaymentMethod *models.PaymentMethod
}

func ValidateDraft(d SaleDraft) error {
	if len(d.Lines) == 0 {
		return database.Invalid("items", "at least one item is required")
	}
	if !d.PaymentMethod.Valid() {
		return database.Invalid("payment_method", "unsupported payment method %q", d.PaymentMethod)
	}

	for i, line := range d.Lines {
		field := fmt.Sprintf("items[%d]", i)
		if line.ProductID <= 0 {
			return database.Invalid(field+".product_id", "must be a positive id")
		}
		if line.Quantity < 1 {
			return database.Invalid(field+".quantity", "must be at least 1")
		}
		if line.Quantity > math.MaxInt32 {
			return database.Invalid(field+".quantity", "must not exceed %d", math.MaxInt32)
		}
		if line.UnitPrice != nil {
			if err := checkMoney(field+".unit_price", *line.UnitPrice); err != nil {
				return err
			}
		}
		for _, part := range []struct {
			name  string
			value decimal.Decimal
		}{
			{"shipping", line.Shipping},
			{"storage", line.Storage},
			{"labor", line.Labor},
			{"overhead", line.Overhead},
		} {
			if err := checkMoney(field+"."+part.name, part.value); err != nil {
				return err
			}
		}
	}

	return nil
}

// CreateSale validates every line against current stock, then decrements
// stock and records the sale in one transaction. Either the whole sale
// commits or nothing changes.
func CreateSale(ctx context.Context, db *sql.DB, gen ids.Generator, req CreateSaleRequest) (*SaleResult, error) {
	var result *SaleResult

	err := retrySaleNumber(func() error {
		return database.WithRetry(ctx, db, database.DefaultTxOptions(), func(tx *sql.Tx) error {
			var err error
			result, err = commitSale(ctx, tx, gen, req)
			return err
		})
	})
	if err != nil {
		return nil, err
	}

	return result, nil
}

// retrySaleNumber reruns fn when the generated sale number collided with an
// existing one.
func retrySaleNumber(fn func() error) error {
	var err error
	for attempt := 0; attempt < saleNumberAttempts; attempt++ {
		err = fn()
		if !database.IsUniqueViolation(err, "sales_sale_number_key") {
			return err
		}
	}
	return fmt.Errorf("generate unique sale number: %w", err)
}

func commitSale(ctx context.Context, tx *sql.Tx, gen ids.Generator, src DraftSource) (*SaleResult, error) {
	draft := src.SaleDraft()
	if err := ValidateDraft(draft); err != nil {
		return nil, err
	}

	if draft.SalesPersonID != nil {
		var exists bool
		err := tx.QueryRowContext(ctx,
			"SELECT EXISTS(SELECT 1 FROM users WHERE id = $1)",
			*draft.SalesPersonID).Scan(&exists)
		if err != nil {
			return nil, fmt.Errorf("check salesperson exists: %w", err)
		}
		if !exists {
			return nil, database.ErrUserNotFound
		}
	}

	// Quantities are summed per product so repeated lines are checked
	// against stock together.
	var productIDs []int64
	needed := make(map[int64]int)
	for _, line := range draft.Lines {
		if _, seen := needed[line.ProductID]; !seen {
			productIDs = append(productIDs, line.ProductID)
		}
		needed[line.ProductID] += line.Quantity
	}

	products, err := LockProducts(ctx, tx, productIDs)
	if err != nil {
		return nil, err
	}

	for _, id := range productIDs {
		p := products[id]
		if needed[id] > p.StockQuantity {
			return nil, &database.InsufficientStockError{
				ProductID:   id,
				ProductName: p.Name,
				Requested:   needed[id],
				Available:   p.StockQuantity,
			}
		}
	}

	items := make([]models.SaleItem, 0, len(draft.Lines))
	for _, line := range draft.Lines {
		p := products[line.ProductID]
		price := p.Price
		if line.UnitPrice != nil {
			price = *line.UnitPrice
		}
		cost := models.NewCostBreakdown(p.Cost, line.Shipping, line.Storage, line.Labor, line.Overhead)
		items = append(items, models.NewSaleItem(p, line.Quantity, price, cost))
	}

	total, profit := models.ComputeTotals(items)

	levels := make([]models.StockLevel, 0, len(productIDs))
	for _, id := range productIDs {
		remaining, err := DecrementStock(ctx, tx, id, needed[id])
		if err != nil {
			return nil, err
		}
		p := products[id]
		levels = append(levels, models.StockLevel{ProductID: id, ProductName: p.Name, SKU: p.SKU, Stock: remaining})
	}

	query := `
		INSERT INTO sales (sale_number, customer_name, payment_method, salesperson_id, order_id,
		                   total_amount, profit, notes, sold_at, created_at, updated_at, version)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW(), NOW(), NOW(), 1)
		RETURNING ` + saleColumns

	sale, err := scanSale(tx.QueryRowContext(ctx, query,
		gen.SaleNumber(), draft.CustomerName, draft.PaymentMethod, draft.SalesPersonID, draft.OrderID,
		total, profit, draft.Notes))
	if err != nil {
		return nil, fmt.Errorf("insert sale: %w", err)
	}

	for i := range items {
		item := &items[i]
		item.SaleID = sale.ID
		err := tx.QueryRowContext(ctx,
			`INSERT INTO sale_items (sale_id, product_id, product_name, category, quantity, unit_price, cost_price,
			                         base_cost, shipping_cost, storage_cost, labor_cost, overhead_cost,
			                         line_total, line_profit, created_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, NOW())
			 RETURNING id, created_at`,
			sale.ID, item.ProductID, item.ProductName, item.Category, item.Quantity, item.UnitPrice, item.CostPrice,
			item.Cost.Base, item.Cost.Shipping, item.Cost.Storage, item.Cost.Labor, item.Cost.Overhead,
			item.LineTotal, item.LineProfit).Scan(&item.ID, &item.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("insert sale item: %w", err)
		}
	}
	sale.Items = items

	return &SaleResult{Sale: sale, StockLevels: levels}, nil
}

func scanSale(row rowScanner) (*models.Sale, error) {
	sale := &models.Sale{}
	var salesPersonID, orderID sql.NullInt64
	err := row.Scan(
		&sale.ID,
		&sale.SaleNumber,
		&sale.CustomerName,
		&sale.PaymentMethod,
		&salesPersonID,
		&orderID,
		&sale.TotalAmount,
		&sale.Profit,
		&sale.Notes,
		&sale.SoldAt,
		&sale.CreatedAt,
		&sale.UpdatedAt,
		&sale.Version,
	)
	if err != nil {
		return nil, err
	}
	if salesPersonID.Valid {
		sale.SalesPersonID = &salesPersonID.Int64
	}
	if orderID.Valid {
		sale.OrderID = &orderID.Int64
	}
	return sale, nil
}

func GetSale(ctx context.Context, db DBTX, id int64) (*models.Sale, error) {
	sale, err := scanSale(db.QueryRowContext(ctx, `SELECT `+saleColumns+` FROM sales WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, database.ErrSaleNotFound
		}
		return nil, fmt.Errorf("get sale: %w", err)
	}

	items, err := getSaleItems(ctx, db, id)
	if err != nil {
		return nil, err
	}
	sale.Items = items

	return sale, nil
}

func getSaleItems(ctx context.Context, db DBTX, saleID int64) ([]models.SaleItem, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT id, sale_id, product_id, product_name, category, quantity, unit_price, cost_price,
		        base_cost, shipping_cost, storage_cost, labor_cost, overhead_cost,
		        line_total, line_profit, created_at
		 FROM sale_items
		 WHERE sale_id = $1
		 ORDER BY id`,
		saleID)
	if err != nil {
		return nil, fmt.Errorf("get sale items: %w", err)
	}
	defer rows.Close()

	var items []models.SaleItem
	for rows.Next() {
		var item models.SaleItem
		err := rows.Scan(
			&item.ID,
			&item.SaleID,
			&item.ProductID,
			&item.ProductName,
			&item.Category,
			&item.Quantity,
			&item.UnitPrice,
			&item.CostPrice,
			&item.Cost.Base,
			&item.Cost.Shipping,
			&item.Cost.Storage,
			&item.Cost.Labor,
			&item.Cost.Overhead,
			&item.LineTotal,
			&item.LineProfit,
			&item.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan sale item: %w", err)
		}
		item.Cost.Total = item.CostPrice
		items = append(items, item)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return items, nil
}

func ListSalesCursor(ctx context.Context, db *sql.DB, cursor string, limit int) (*CursorPage, error) {
	cursorData, err := DecodeCursor(cursor)
	if err != nil {
		return nil, fmt.Errorf("decode cursor: %w", err)
	}

	query := `
		SELECT ` + saleColumns + `
		FROM sales
		WHERE (sold_at, id) < ($1, $2)
		ORDER BY sold_at DESC, id DESC
		LIMIT $3`

	rows, err := db.QueryContext(ctx, query, cursorData.At, cursorData.ID, limit+1)
	if err != nil {
		return nil, fmt.Errorf("list sales: %w", err)
	}
	defer rows.Close()

	sales := []models.Sale{}
	for rows.Next() {
		sale, err := scanSale(rows)
		if err != nil {
			return nil, fmt.Errorf("scan sale: %w", err)
		}
		sales = append(sales, *sale)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	sales, hasMore := trimPage(sales, limit)

	var nextCursor string
	if hasMore && len(sales) > 0 {
		last := sales[len(sales)-1]
		nextCursor = EncodeCursor(Cursor{At: last.SoldAt, ID: last.ID})
	}

	return &CursorPage{
		Items:      sales,
		NextCursor: nextCursor,
		HasMore:    hasMore,
	}, nil
}

// UpdateSaleDetails edits the descriptive fields of a sale. Line items,
// totals and stock are never touched here.
func UpdateSaleDetails(ctx context.Context, db *sql.DB, id int64, patch SalePatch) (*models.Sale, error) {
	if patch.PaymentMethod != nil && !patch.PaymentMethod.Valid() {
		return nil, database.Invalid("payment_method", "unsupported payment method %q", *patch.PaymentMethod)
	}

	var method *string
	if patch.PaymentMethod != nil {
		m := string(*patch.PaymentMethod)
		method = &m
	}

	result, err := db.ExecContext(ctx,
		`UPDATE sales
		 SET customer_name = COALESCE($2, customer_name),
		     notes = COALESCE($3, notes),
		     payment_method = COALESCE($4, payment_method),
		     version = version + 1,
		     updated_at = NOW()
		 WHERE id = $1`,
		id, patch.CustomerName, patch.Notes, method)
	if err != nil {
		return nil, fmt.Errorf("update sale: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return nil, database.ErrSaleNotFound
	}

	return GetSale(ctx, db, id)
}

// DeleteSale removes a sale and puts its units back on the shelf. A sale
// promoted from an order is unlinked from that order.
func DeleteSale(ctx context.Context, db *sql.DB, id int64) ([]models.StockLevel, error) {
	var levels []models.StockLevel

	err := database.WithRetry(ctx, db, database.DefaultTxOptions(), func(tx *sql.Tx) error {
		levels = nil

		var locked int64
		err := tx.QueryRowContext(ctx, `SELECT id FROM sales WHERE id = $1 FOR UPDATE`, id).Scan(&locked)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return database.ErrSaleNotFound
			}
			return fmt.Errorf("lock sale: %w", err)
		}

		rows, err := tx.QueryContext(ctx,
			`SELECT si.product_id, p.name, p.sku, SUM(si.quantity)
			 FROM sale_items si
			 JOIN products p ON p.id = si.product_id
			 WHERE si.sale_id = $1
			 GROUP BY si.product_id, p.name, p.sku
			 ORDER BY si.product_id`,
			id)
		if err != nil {
			return fmt.Errorf("sum sale items: %w", err)
		}

		var restore []models.StockLevel
		for rows.Next() {
			var l models.StockLevel
			if err := rows.Scan(&l.ProductID, &l.ProductName, &l.SKU, &l.Stock); err != nil {
				rows.Close()
				return fmt.Errorf("scan sale item: %w", err)
			}
			restore = append(restore, l)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return fmt.Errorf("rows error: %w", err)
		}

		for _, l := range restore {
			stock, err := RestoreStock(ctx, tx, l.ProductID, l.Stock)
			if err != nil {
				return err
			}
			l.Stock = stock
			levels = append(levels, l)
		}

		if _, err := tx.ExecContext(ctx, `DELETE FROM sales WHERE id = $1`, id); err != nil {
			return fmt.Errorf("delete sale: %w", err)
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	return levels, nil
}
