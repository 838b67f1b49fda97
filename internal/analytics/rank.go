package analytics

import (
	"sort"
	"time"

	"github.com/safar/go-sales-ledger/internal/models"
)

type ProductPerformance struct {
	Product        models.Product `json:"product"`
	Score          float64        `json:"score"`
	Forecast       Forecast       `json:"forecast"`
	TurnoverDays   float64        `json:"turnover_days"`
	Recommendation Recommendation `json:"recommendation"`
}

// Rank scores every product against its history and returns the best limit
// of them, highest score first. Ties go to the lower product id. A limit of
// zero or less returns all products.
func Rank(products []models.Product, history map[int64][]SaleEvent, now time.Time, limit int) []ProductPerformance {
	out := make([]ProductPerformance, 0, len(products))
	for _, p := range products {
		events := history[p.ID]
		f := BuildForecast(events, now)
		out = append(out, ProductPerformance{
			Product:        p,
			Score:          Score(events, now),
			Forecast:       f,
			TurnoverDays:   TurnoverDays(p.StockQuantity, f),
			Recommendation: Recommend(p.StockQuantity, f),
		})
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].Product.ID < out[j].Product.ID
	})

	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}
