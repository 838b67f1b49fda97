package store

import (
	"context"
	"fmt"
	"time"

	"github.com/safar/go-sales-ledger/internal/analytics"
)

// ListSaleEventsSince returns one event per sale and product sold at or
// after since, grouped by product and oldest first. Repeated lines of a
// product within one sale are summed into a single event.
func ListSaleEventsSince(ctx context.Context, db DBTX, since time.Time) (map[int64][]analytics.SaleEvent, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT si.product_id, s.sold_at, SUM(si.quantity)
		 FROM sale_items si
		 JOIN sales s ON s.id = si.sale_id
		 WHERE s.sold_at >= $1
		 GROUP BY s.id, si.product_id, s.sold_at
		 ORDER BY s.sold_at, s.id`,
		since)
	if err != nil {
		return nil, fmt.Errorf("list sale events: %w", err)
	}
	defer rows.Close()

	events := make(map[int64][]analytics.SaleEvent)
	for rows.Next() {
		var productID int64
		var e analytics.SaleEvent
		if err := rows.Scan(&productID, &e.SoldAt, &e.Quantity); err != nil {
			return nil, fmt.Errorf("scan sale event: %w", err)
		}
		events[productID] = append(events[productID], e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return events, nil
}

// TopPerforming ranks all products by their trailing sale history.
func TopPerforming(ctx context.Context, db DBTX, now time.Time, limit int) ([]analytics.ProductPerformance, error) {
	products, err := ListAllProducts(ctx, db)
	if err != nil {
		return nil, err
	}

	history, err := ListSaleEventsSince(ctx, db, analytics.HistoryStart(now))
	if err != nil {
		return nil, err
	}

	return analytics.Rank(products, history, now, limit), nil
}
