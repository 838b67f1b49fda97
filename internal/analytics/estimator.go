// Package analytics scores products and forecasts daily sales from their
// trailing sale history.
package analytics

import (
	"math"
	"time"
)

const (
	HistoryDays  = 90
	ForecastDays = 30

	day = 24 * time.Hour
)

type Recommendation string

const (
	IncreaseStock Recommendation = "INCREASE_STOCK"
	ReduceStock   Recommendation = "REDUCE_STOCK"
	Maintain      Recommendation = "MAINTAIN"
)

// SaleEvent is one sale of a product, with the units summed over its lines.
type SaleEvent struct {
	SoldAt   time.Time
	Quantity int
}

type Forecast struct {
	DailySales          []float64 `json:"daily_sales"`
	MovingAverage       float64   `json:"moving_average"`
	Trend               float64   `json:"trend"`
	PredictedDailySales float64   `json:"predicted_daily_sales"`
	Confidence          float64   `json:"confidence"`
}

// HistoryStart is the earliest sale time that Score and Forecast look at.
func HistoryStart(now time.Time) time.Time {
	return now.Add(-HistoryDays * day)
}

// Score is 0.5×units sold + 30×(distinct sale days/90) + 1.5×min(sales in
// the last 30 days, 30), all over the trailing 90 days.
func Score(events []SaleEvent, now time.Time) float64 {
	start := HistoryStart(now)
	recentStart := now.Add(-ForecastDays * day)

	var totalQty, recent int
	days := make(map[string]struct{})
	for _, e := range events {
		if e.SoldAt.Before(start) || e.SoldAt.After(now) {
			continue
		}
		totalQty += e.Quantity
		days[e.SoldAt.UTC().Format("2006-01-02")] = struct{}{}
		if !e.SoldAt.Before(recentStart) {
			recent++
		}
	}

	return 0.5*float64(totalQty) +
		30*(float64(len(days))/HistoryDays) +
		1.5*float64(min(recent, ForecastDays))
}

// BuildForecast buckets the last 30 days of units sold per day, oldest
// first, and projects the next day's sales from the mean plus trend.
func BuildForecast(events []SaleEvent, now time.Time) Forecast {
	buckets := make([]float64, ForecastDays)
	for _, e := range events {
		if e.SoldAt.After(now) {
			continue
		}
		age := int(now.Sub(e.SoldAt) / day)
		if age >= ForecastDays {
			continue
		}
		buckets[ForecastDays-1-age] += float64(e.Quantity)
	}

	f := Forecast{DailySales: buckets}

	avg := mean(buckets)
	if avg == 0 {
		return f
	}

	half := ForecastDays / 2
	f.MovingAverage = avg
	f.Trend = mean(buckets[half:]) - mean(buckets[:half])
	f.PredictedDailySales = math.Max(0, avg+f.Trend)
	f.Confidence = clamp(100*(1-stddev(buckets, avg)/avg), 0, 100)

	return f
}

// TurnoverDays is stock divided by average daily sales, or 0 when nothing
// has sold.
func TurnoverDays(stock int, f Forecast) float64 {
	if f.MovingAverage == 0 {
		return 0
	}
	return float64(stock) / f.MovingAverage
}

func Recommend(stock int, f Forecast) Recommendation {
	if f.PredictedDailySales > 1.2*f.MovingAverage {
		return IncreaseStock
	}
	if TurnoverDays(stock, f) > ForecastDays {
		return ReduceStock
	}
	return Maintain
}

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

// population standard deviation
func stddev(xs []float64, mu float64) float64 {
	var sum float64
	for _, x := range xs {
		sum += (x - mu) * (x - mu)
	}
	return math.Sqrt(sum / float64(len(xs)))
}

func clamp(v, lo, hi float64) float64 {
	return math.Min(hi, math.Max(lo, v))
}
