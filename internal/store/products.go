package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/lib/pq"
	"github.com/safar/go-sales-ledger/internal/database"
	"github.com/safar/go-sales-ledger/internal/models"
	"github.com/shopspring/decimal"
)

const productColumns = `id, sku, name, category, description, price, cost, stock_quantity, created_at, updated_at, version`

type ProductInput struct {
	SKU         string
	Name        string
	Category    string
	Description string
	Price       decimal.Decimal
	Cost        decimal.Decimal
	Stock       int
}

func (in ProductInput) validate() error {
	if strings.TrimSpace(in.SKU) == "" {
		return database.Invalid("sku", "is required")
	}
	if strings.TrimSpace(in.Name) == "" {
		return database.Invalid("name", "is required")
	}
	if err := checkMoney("price", in.Price); err != nil {
		return err
	}
	if err := checkMoney("cost", in.Cost); err != nil {
		return err
	}
	if in.Stock < 0 {
		return database.Invalid("stock", "must not be negative")
	}
	return nil
}

// ProductPatch is an administrative edit. Nil fields are left unchanged. A
// non-nil Version turns the edit into a compare-and-set on the row version.
type ProductPatch struct {
	Name          *string
	Category      *string
	Description   *string
	Price         *decimal.Decimal
	Cost          *decimal.Decimal
	StockQuantity *int
	Version       *int
}

func (p ProductPatch) validate() error {
	if p.Name != nil && strings.TrimSpace(*p.Name) == "" {
		return database.Invalid("name", "must not be empty")
	}
	if p.Price != nil {
		if err := checkMoney("price", *p.Price); err != nil {
			return err
		}
	}
	if p.Cost != nil {
		if err := checkMoney("cost", *p.Cost); err != nil {
			return err
		}
	}
	if p.StockQuantity != nil && *p.StockQuantity < 0 {
		return database.Invalid("stock_quantity", "must not be negative")
	}
	return nil
}

// checkMoney rejects amounts the NUMERIC(12,2) columns would round, so stored
// totals always re-derive from stored parts.
func checkMoney(field string, v decimal.Decimal) error {
	if v.IsNegative() {
		return database.Invalid(field, "must not be negative")
	}
	if !v.Equal(v.Round(2)) {
		return database.Invalid(field, "must have at most 2 decimal places")
	}
	return nil
}

func scanProduct(row rowScanner) (*models.Product, error) {
	product := &models.Product{}
	err := row.Scan(
		&product.ID,
		&product.SKU,
		&product.Name,
		&product.Category,
		&product.Description,
		&product.Price,
		&product.Cost,
		&product.StockQuantity,
		&product.CreatedAt,
		&product.UpdatedAt,
		&product.Version,
	)
	if err != nil {
		return nil, err
	}
	return product, nil
}

func CreateProduct(ctx context.Context, db DBTX, in ProductInput) (*models.Product, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}

	query := `
		INSERT INTO products (sku, name, category, description, price, cost, stock_quantity, created_at, updated_at, version)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW(), NOW(), 1)
		RETURNING ` + productColumns

	product, err := scanProduct(db.QueryRowContext(ctx, query,
		strings.TrimSpace(in.SKU), strings.TrimSpace(in.Name), in.Category, in.Description, in.Price, in.Cost, in.Stock))
	if err != nil {
		if database.IsUniqueViolation(err, "products_sku_key") {
			return nil, database.Invalid("sku", "%q already exists", in.SKU)
		}
		return nil, fmt.Errorf("create product: %w", err)
	}

	return product, nil
}

func GetProduct(ctx context.Context, db DBTX, id int64) (*models.Product, error) {
	query := `SELECT ` + productColumns + ` FROM products WHERE id = $1`

	product, err := scanProduct(db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, &database.ProductNotFoundError{ProductID: id}
		}
		return nil, fmt.Errorf("get product: %w", err)
	}

	return product, nil
}

// LockProducts row-locks the given products in ascending id order, which
// keeps concurrent multi-line sales from deadlocking each other. The first
// missing id, in argument order, is reported as ProductNotFoundError.
func LockProducts(ctx context.Context, tx *sql.Tx, ids []int64) (map[int64]*models.Product, error) {
	sorted := append([]int64(nil), ids...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	query := `
		SELECT ` + productColumns + `
		FROM products
		WHERE id = ANY($1)
		ORDER BY id
		FOR UPDATE`

	rows, err := tx.QueryContext(ctx, query, pq.Array(sorted))
	if err != nil {
		return nil, fmt.Errorf("lock products: %w", err)
	}
	defer rows.Close()

	locked := make(map[int64]*models.Product, len(ids))
	for rows.Next() {
		product, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		locked[product.ID] = product
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	for _, id := range ids {
		if _, ok := locked[id]; !ok {
			return nil, &database.ProductNotFoundError{ProductID: id}
		}
	}

	return locked, nil
}

// DecrementStock takes quantity units off a product in one conditional
// update and returns the remaining stock. It never lets stock go negative:
// if the row does not hold enough units nothing changes and an
// InsufficientStockError describes the shortfall.
func DecrementStock(ctx context.Context, tx *sql.Tx, productID int64, quantity int) (int, error) {
	var remaining int
	err := tx.QueryRowContext(ctx,
		`UPDATE products
		 SET stock_quantity = stock_quantity - $1,
		     updated_at = NOW()
		 WHERE id = $2
		   AND stock_quantity >= $1
		 RETURNING stock_quantity`,
		quantity, productID).Scan(&remaining)
	if err == nil {
		return remaining, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("decrement stock: %w", err)
	}

	product, err := GetProduct(ctx, tx, productID)
	if err != nil {
		return 0, err
	}
	return 0, &database.InsufficientStockError{
		ProductID:   productID,
		ProductName: product.Name,
		Requested:   quantity,
		Available:   product.StockQuantity,
	}
}

func RestoreStock(ctx context.Context, tx *sql.Tx, productID int64, quantity int) (int, error) {
	var stock int
	err := tx.QueryRowContext(ctx,
		`UPDATE products
		 SET stock_quantity = stock_quantity + $1,
		     updated_at = NOW()
		 WHERE id = $2
		 RETURNING stock_quantity`,
		quantity, productID).Scan(&stock)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, &database.ProductNotFoundError{ProductID: productID}
		}
		return 0, fmt.Errorf("restore stock: %w", err)
	}
	return stock, nil
}

// AdjustProduct applies an administrative edit. Stock may be set to any
// non-negative level here.
func AdjustProduct(ctx context.Context, db DBTX, id int64, patch ProductPatch) (*models.Product, error) {
	if err := patch.validate(); err != nil {
		return nil, err
	}

	query := `
		UPDATE products
		SET name = COALESCE($2, name),
		    category = COALESCE($3, category),
		    description = COALESCE($4, description),
		    price = COALESCE($5, price),
		    cost = COALESCE($6, cost),
		    stock_quantity = COALESCE($7, stock_quantity),
		    version = version + 1,
		    updated_at = NOW()
		WHERE id = $1
		  AND ($8::int IS NULL OR version = $8)
		RETURNING ` + productColumns

	product, err := scanProduct(db.QueryRowContext(ctx, query,
		id, patch.Name, patch.Category, patch.Description, patch.Price, patch.Cost, patch.StockQuantity, patch.Version))
	if err == nil {
		return product, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("adjust product: %w", err)
	}

	if _, err := GetProduct(ctx, db, id); err != nil {
		return nil, err
	}
	return nil, database.ErrOptimisticLockFailed
}

func ListProducts(ctx context.Context, db *sql.DB, page, pageSize int) (*OffsetPage, error) {
	var total int64
	err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM products`).Scan(&total)
	if err != nil {
		return nil, fmt.Errorf("count products: %w", err)
	}

	offset := (page - 1) * pageSize
	query := `
		SELECT ` + productColumns + `
		FROM products
		ORDER BY created_at DESC, id DESC
		LIMIT $1 OFFSET $2`

	products, err := queryProducts(ctx, db, query, pageSize, offset)
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}

	return newOffsetPage(products, total, page, pageSize), nil
}

func ListAllProducts(ctx context.Context, db DBTX) ([]models.Product, error) {
	products, err := queryProducts(ctx, db, `SELECT `+productColumns+` FROM products ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list all products: %w", err)
	}
	return products, nil
}

// ListProductsBelow returns products whose stock is at or below threshold,
// emptiest first.
func ListProductsBelow(ctx context.Context, db DBTX, threshold int) ([]models.StockLevel, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT id, name, sku, stock_quantity
		 FROM products
		 WHERE stock_quantity <= $1
		 ORDER BY stock_quantity, id`,
		threshold)
	if err != nil {
		return nil, fmt.Errorf("list low stock: %w", err)
	}
	defer rows.Close()

	levels := []models.StockLevel{}
	for rows.Next() {
		var l models.StockLevel
		if err := rows.Scan(&l.ProductID, &l.ProductName, &l.SKU, &l.Stock); err != nil {
			return nil, fmt.Errorf("scan stock level: %w", err)
		}
		levels = append(levels, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return levels, nil
}

func queryProducts(ctx context.Context, db DBTX, query string, args ...any) ([]models.Product, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	products := []models.Product{}
	for rows.Next() {
		product, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		products = append(products, *product)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return products, nil
}
