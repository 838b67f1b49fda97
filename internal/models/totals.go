package models

import "github.com/shopspring/decimal"

// CostBreakdown is the per-unit cost of a sale line. Base is the product's
// cost at sale time; the remaining components default to zero.
type CostBreakdown struct {
	Base     decimal.Decimal `json:"base"`
	Shipping decimal.Decimal `json:"shipping"`
	Storage  decimal.Decimal `json:"storage"`
	Labor    decimal.Decimal `json:"labor"`
	Overhead decimal.Decimal `json:"overhead"`
	Total    decimal.Decimal `json:"total"`
}

func NewCostBreakdown(base, shipping, storage, labor, overhead decimal.Decimal) CostBreakdown {
	return CostBreakdown{
		Base:     base,
		Shipping: shipping,
		Storage:  storage,
		Labor:    labor,
		Overhead: overhead,
		Total:    base.Add(shipping).Add(storage).Add(labor).Add(overhead),
	}
}

// NewSaleItem fills in CostPrice, LineTotal and LineProfit from the price,
// quantity and breakdown.
func NewSaleItem(product *Product, quantity int, unitPrice decimal.Decimal, cost CostBreakdown) SaleItem {
	qty := decimal.NewFromInt(int64(quantity))
	return SaleItem{
		ProductID:   product.ID,
		ProductName: product.Name,
		Category:    product.Category,
		Quantity:    quantity,
		UnitPrice:   unitPrice,
		CostPrice:   cost.Total,
		Cost:        cost,
		LineTotal:   unitPrice.Mul(qty),
		LineProfit:  unitPrice.Sub(cost.Total).Mul(qty),
	}
}

// ComputeTotals returns Σ quantity×unitPrice and Σ quantity×(unitPrice−costPrice).
// It recomputes from the item fields and ignores any cached line totals.
func ComputeTotals(items []SaleItem) (total, profit decimal.Decimal) {
	for _, item := range items {
		qty := decimal.NewFromInt(int64(item.Quantity))
		total = total.Add(item.UnitPrice.Mul(qty))
		profit = profit.Add(item.UnitPrice.Sub(item.CostPrice).Mul(qty))
	}
	return total, profit
}
