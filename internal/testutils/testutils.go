// Package testutils provides synthetic market data generators and
// assertion helpers shared by the package tests.
package testutils

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"qde/internal/market"
)

// BaseTime is the fixed start timestamp for generated series.
var BaseTime = time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC)

// FlatBars generates n bars hovering around price with a tiny
// deterministic wiggle: low volatility, no trend.
func FlatBars(symbol string, n int, price float64) []*market.Bar {
	bars := make([]*market.Bar, n)
	for i := 0; i < n; i++ {
		wiggle := price * 0.0005 * math.Sin(float64(i))
		close := price + wiggle
		bars[i] = &market.Bar{
			Symbol:    symbol,
			Timestamp: BaseTime.Add(time.Duration(i) * 24 * time.Hour),
			Open:      price,
			High:      close + price*0.0005,
			Low:       close - price*0.0005,
			Close:     close,
			Volume:    10000,
		}
	}
	return bars
}

// TrendingBars generates n bars drifting by drift (fractional, per bar)
// from start. Positive drift trends up, negative down.
func TrendingBars(symbol string, n int, start, drift float64) []*market.Bar {
	bars := make([]*market.Bar, n)
	price := start
	for i := 0; i < n; i++ {
		next := price * (1 + drift)
		high := math.Max(price, next) * 1.001
		low := math.Min(price, next) * 0.999
		bars[i] = &market.Bar{
			Symbol:    symbol,
			Timestamp: BaseTime.Add(time.Duration(i) * 24 * time.Hour),
			Open:      price,
			High:      high,
			Low:       low,
			Close:     next,
			Volume:    10000 + float64(i)*50,
		}
		price = next
	}
	return bars
}

// VolatileBars generates n bars whipsawing around start with the given
// fractional amplitude: wide ranges, no sustained direction.
func VolatileBars(symbol string, n int, start, amplitude float64) []*market.Bar {
	bars := make([]*market.Bar, n)
	for i := 0; i < n; i++ {
		swing := start * amplitude * math.Sin(float64(i)*2.4)
		close := start + swing
		bars[i] = &market.Bar{
			Symbol:    symbol,
			Timestamp: BaseTime.Add(time.Duration(i) * 24 * time.Hour),
			Open:      start,
			High:      start + start*amplitude,
			Low:       start - start*amplitude,
			Close:     close,
			Volume:    20000,
		}
	}
	return bars
}

// WindowFrom fills a window sized to hold every bar.
func WindowFrom(symbol string, bars []*market.Bar) *market.Window {
	w := market.NewWindow(symbol, len(bars))
	for _, b := range bars {
		w.Push(b)
	}
	return w
}

// RequireWeightsSum asserts the weight distribution sums to 1 within
// floating-point tolerance.
func RequireWeightsSum(t *testing.T, weights map[string]float64) {
	t.Helper()
	var sum float64
	for _, w := range weights {
		sum += w
	}
	require.InDelta(t, 1.0, sum, 1e-9, "weights must sum to 1, got %v", weights)
}
