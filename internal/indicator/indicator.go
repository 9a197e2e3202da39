// Package indicator provides pure, deterministic technical indicator
// functions over bar windows. No I/O, no side effects.
package indicator

import (
	"math"

	"qde/internal/market"
)

// SMA returns the simple moving average of the last period values.
// Returns 0 when fewer than period values are available.
func SMA(values []float64, period int) float64 {
	if period <= 0 || len(values) < period {
		return 0
	}
	var sum float64
	for _, v := range values[len(values)-period:] {
		sum += v
	}
	return sum / float64(period)
}

// EMA returns the exponential moving average over the last period values.
func EMA(values []float64, period int) float64 {
	if period <= 0 || len(values) < period {
		return 0
	}
	alpha := 2.0 / (float64(period) + 1)
	ema := values[len(values)-period]
	for _, v := range values[len(values)-period+1:] {
		ema = alpha*v + (1-alpha)*ema
	}
	return ema
}

// TrueRange returns the true range of bar given the previous close.
func TrueRange(bar *market.Bar, prevClose float64) float64 {
	tr := bar.High - bar.Low
	if prevClose > 0 {
		tr = math.Max(tr, math.Abs(bar.High-prevClose))
		tr = math.Max(tr, math.Abs(bar.Low-prevClose))
	}
	return tr
}

// ATR returns the average true range over the last period bars.
func ATR(bars []*market.Bar, period int) float64 {
	if period <= 0 || len(bars) < period+1 {
		return 0
	}
	recent := bars[len(bars)-period-1:]
	var sum float64
	for i := 1; i < len(recent); i++ {
		sum += TrueRange(recent[i], recent[i-1].Close)
	}
	return sum / float64(period)
}

// LogReturns returns the log return series of consecutive closes.
func LogReturns(closes []float64) []float64 {
	if len(closes) < 2 {
		return nil
	}
	returns := make([]float64, 0, len(closes)-1)
	for i := 1; i < len(closes); i++ {
		if closes[i-1] <= 0 || closes[i] <= 0 {
			returns = append(returns, 0)
			continue
		}
		returns = append(returns, math.Log(closes[i]/closes[i-1]))
	}
	return returns
}

// Mean returns the arithmetic mean.
func Mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// StdDev returns the sample standard deviation.
func StdDev(values []float64) float64 {
	if len(values) < 2 {
		return 0
	}
	mean := Mean(values)
	var variance float64
	for _, v := range values {
		variance += (v - mean) * (v - mean)
	}
	variance /= float64(len(values) - 1)
	return math.Sqrt(variance)
}

// Correlation returns the Pearson correlation of two equal-length
// series. Returns 0 (and degenerate=true) when either series has zero
// variance or the lengths differ.
func Correlation(a, b []float64) (corr float64, degenerate bool) {
	n := len(a)
	if n < 2 || len(b) != n {
		return 0, true
	}
	meanA := Mean(a)
	meanB := Mean(b)
	var cov, varA, varB float64
	for i := 0; i < n; i++ {
		da := a[i] - meanA
		db := b[i] - meanB
		cov += da * db
		varA += da * da
		varB += db * db
	}
	if varA == 0 || varB == 0 {
		return 0, true
	}
	return cov / math.Sqrt(varA*varB), false
}

// RegressionSlope fits a least-squares line over log prices and
// returns the per-step slope with its R² fit quality.
func RegressionSlope(closes []float64) (slope, r2 float64) {
	n := len(closes)
	if n < 2 {
		return 0, 0
	}

	var sumX, sumY, sumXY, sumX2 float64
	for i, c := range closes {
		x := float64(i)
		y := math.Log(c)
		sumX += x
		sumY += y
		sumXY += x * y
		sumX2 += x * x
	}

	fn := float64(n)
	denom := fn*sumX2 - sumX*sumX
	if denom == 0 {
		return 0, 0
	}
	slope = (fn*sumXY - sumX*sumY) / denom

	avgX := sumX / fn
	avgY := sumY / fn
	var ssRes, ssTot float64
	for i, c := range closes {
		x := float64(i)
		y := math.Log(c)
		predicted := slope*x + (avgY - slope*avgX)
		ssRes += (y - predicted) * (y - predicted)
		ssTot += (y - avgY) * (y - avgY)
	}
	if ssTot == 0 {
		return slope, 0
	}
	return slope, 1 - ssRes/ssTot
}

// ZScore returns how many standard deviations the last value sits from
// the mean of the last period values.
func ZScore(values []float64, period int) float64 {
	if period <= 1 || len(values) < period {
		return 0
	}
	recent := values[len(values)-period:]
	sd := StdDev(recent)
	if sd == 0 {
		return 0
	}
	return (recent[len(recent)-1] - Mean(recent)) / sd
}

// Momentum returns the fractional price change over lookback steps.
func Momentum(closes []float64, lookback int) float64 {
	n := len(closes)
	if lookback <= 0 || n <= lookback {
		return 0
	}
	base := closes[n-1-lookback]
	if base == 0 {
		return 0
	}
	return (closes[n-1] - base) / base
}

// HighLowChannel returns the highest high and lowest low of the last
// period bars, excluding the most recent bar.
func HighLowChannel(bars []*market.Bar, period int) (high, low float64) {
	n := len(bars)
	if period <= 0 || n < period+1 {
		return 0, 0
	}
	window := bars[n-1-period : n-1]
	high = window[0].High
	low = window[0].Low
	for _, b := range window[1:] {
		if b.High > high {
			high = b.High
		}
		if b.Low < low {
			low = b.Low
		}
	}
	return high, low
}
