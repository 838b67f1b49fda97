package analytics

import (
	"testing"
	"time"

	"github.com/safar/go-sales-ledger/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2026, 6, 15, 18, 0, 0, 0, time.UTC)

func ago(days int, hours int) time.Time {
	return now.Add(-time.Duration(days)*24*time.Hour - time.Duration(hours)*time.Hour)
}

// dailyEvents returns qty units sold once per day for each day offset in [from, to].
func dailyEvents(from, to, qty int) []SaleEvent {
	var events []SaleEvent
	for i := from; i <= to; i++ {
		events = append(events, SaleEvent{SoldAt: ago(i, 1), Quantity: qty})
	}
	return events
}

func TestNoHistoryIsZero(t *testing.T) {
	assert.Zero(t, Score(nil, now))

	f := BuildForecast(nil, now)
	assert.Len(t, f.DailySales, ForecastDays)
	assert.Zero(t, f.MovingAverage)
	assert.Zero(t, f.Trend)
	assert.Zero(t, f.PredictedDailySales)
	assert.Zero(t, f.Confidence)

	assert.Zero(t, TurnoverDays(25, f))
	assert.Equal(t, Maintain, Recommend(25, f))
}

func TestScore(t *testing.T) {
	tests := []struct {
		name   string
		events []SaleEvent
		want   float64
	}{
		{
			name:   "single recent sale",
			events: []SaleEvent{{SoldAt: ago(0, 1), Quantity: 10}},
			want:   5 + 30.0/90 + 1.5,
		},
		{
			name:   "older than the recent window",
			events: []SaleEvent{{SoldAt: ago(60, 0), Quantity: 4}},
			want:   2 + 30.0/90,
		},
		{
			name:   "outside history is ignored",
			events: []SaleEvent{{SoldAt: ago(100, 0), Quantity: 50}},
			want:   0,
		},
		{
			name:   "future sales are ignored",
			events: []SaleEvent{{SoldAt: now.Add(time.Hour), Quantity: 50}},
			want:   0,
		},
		{
			name:   "distinct days",
			events: dailyEvents(0, 2, 1),
			want:   1.5 + 30*(3.0/90) + 4.5,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, Score(tt.events, now), 1e-9)
		})
	}
}

func TestScoreCapsRecentSaleCount(t *testing.T) {
	var events []SaleEvent
	for i := 0; i < 40; i++ {
		events = append(events, SaleEvent{SoldAt: ago(0, 1), Quantity: 1})
	}

	assert.InDelta(t, 20+30.0/90+45, Score(events, now), 1e-9)
}

func TestForecastSteadySales(t *testing.T) {
	f := BuildForecast(dailyEvents(0, 29, 2), now)

	for i, v := range f.DailySales {
		require.Equal(t, 2.0, v, "bucket %d", i)
	}
	assert.InDelta(t, 2, f.MovingAverage, 1e-9)
	assert.InDelta(t, 0, f.Trend, 1e-9)
	assert.InDelta(t, 2, f.PredictedDailySales, 1e-9)
	assert.InDelta(t, 100, f.Confidence, 1e-9)

	assert.Equal(t, Maintain, Recommend(10, f))
	assert.InDelta(t, 50, TurnoverDays(100, f), 1e-9)
	assert.Equal(t, ReduceStock, Recommend(100, f))
}

func TestForecastRisingTrend(t *testing.T) {
	f := BuildForecast(dailyEvents(0, 14, 2), now)

	assert.Equal(t, 0.0, f.DailySales[0])
	assert.Equal(t, 2.0, f.DailySales[ForecastDays-1])
	assert.InDelta(t, 1, f.MovingAverage, 1e-9)
	assert.InDelta(t, 2, f.Trend, 1e-9)
	assert.InDelta(t, 3, f.PredictedDailySales, 1e-9)
	assert.InDelta(t, 0, f.Confidence, 1e-9)

	assert.Equal(t, IncreaseStock, Recommend(500, f))
}

func TestForecastFallingTrendIsNotNegative(t *testing.T) {
	f := BuildForecast(dailyEvents(15, 29, 2), now)

	assert.InDelta(t, 1, f.MovingAverage, 1e-9)
	assert.InDelta(t, -2, f.Trend, 1e-9)
	assert.Zero(t, f.PredictedDailySales)

	assert.Equal(t, Maintain, Recommend(0, f))
	assert.Equal(t, ReduceStock, Recommend(50, f))
}

func TestForecastIgnoresOlderThanWindow(t *testing.T) {
	f := BuildForecast([]SaleEvent{{SoldAt: ago(30, 1), Quantity: 9}}, now)
	assert.Zero(t, f.MovingAverage)
}

func TestRank(t *testing.T) {
	products := []models.Product{
		{ID: 1, Name: "idle", StockQuantity: 40},
		{ID: 2, Name: "busy", StockQuantity: 5},
		{ID: 3, Name: "also idle", StockQuantity: 0},
	}
	history := map[int64][]SaleEvent{
		2: dailyEvents(0, 14, 2),
	}

	ranked := Rank(products, history, now, 0)
	require.Len(t, ranked, 3)
	assert.Equal(t, int64(2), ranked[0].Product.ID)
	assert.Equal(t, IncreaseStock, ranked[0].Recommendation)
	assert.InDelta(t, 5, ranked[0].TurnoverDays, 1e-9)
	assert.Equal(t, int64(1), ranked[1].Product.ID)
	assert.Equal(t, int64(3), ranked[2].Product.ID)
	assert.Zero(t, ranked[1].Score)

	top := Rank(products, history, now, 1)
	require.Len(t, top, 1)
	assert.Equal(t, "busy", top[0].Product.Name)
}
