package regime

import (
	"math"

	"qde/internal/errors"
	"qde/internal/indicator"
	"qde/internal/market"
)

// DetectorConfig holds the classification thresholds.
type DetectorConfig struct {
	Lookback         int     `yaml:"lookback"`           // bars required for a classification
	ATRPeriod        int     `yaml:"atr_period"`         // true-range averaging period
	TrendThreshold   float64 `yaml:"trend_threshold"`    // |slope x R²| marking a full-strength trend
	HighVolThreshold float64 `yaml:"high_vol_threshold"` // relative ATR marking full volatility
}

// DefaultDetectorConfig returns the calibrated defaults.
func DefaultDetectorConfig() DetectorConfig {
	return DetectorConfig{
		Lookback:         30,
		ATRPeriod:        14,
		TrendThreshold:   0.002,
		HighVolThreshold: 0.03,
	}
}

// Detector classifies recent price/volatility behavior into one of the
// five regimes with a confidence score. Stateless and deterministic.
type Detector struct {
	config DetectorConfig
}

// NewDetector creates a detector, validating thresholds.
func NewDetector(config DetectorConfig) (*Detector, error) {
	if config.Lookback < 2 {
		return nil, errors.NewAppError(errors.ErrCodeConfigInvalid,
			"regime lookback must be at least 2 bars", nil)
	}
	if config.ATRPeriod < 1 || config.ATRPeriod >= config.Lookback {
		return nil, errors.NewAppError(errors.ErrCodeConfigInvalid,
			"ATR period must be positive and below the lookback", nil)
	}
	if config.TrendThreshold <= 0 || config.HighVolThreshold <= 0 {
		return nil, errors.NewAppError(errors.ErrCodeConfigInvalid,
			"regime thresholds must be positive", nil)
	}
	return &Detector{config: config}, nil
}

// Classify scores each candidate regime against the window's trend and
// volatility measurements and picks the best. Confidence is the
// relative margin between the winning and runner-up score. A window
// shorter than the lookback always yields InsufficientData at
// confidence 0.
func (d *Detector) Classify(w *market.Window) Classification {
	if w == nil || w.Len() < d.config.Lookback {
		bars := 0
		if w != nil {
			bars = w.Len()
		}
		return Classification{
			Regime:  InsufficientData,
			Metrics: Metrics{Bars: bars},
		}
	}

	metrics := d.measure(w)

	trendRatio := math.Abs(metrics.TrendStrength) / d.config.TrendThreshold
	volRatio := metrics.Volatility / d.config.HighVolThreshold

	scores := map[Regime]float64{
		Volatile: math.Min(volRatio, 1),
		Ranging:  math.Max(0, 1-math.Min(trendRatio, 1)) * math.Max(0, 1-math.Min(volRatio, 1)),
	}
	if metrics.TrendStrength > 0 {
		scores[TrendingUp] = math.Min(trendRatio, 1)
		scores[TrendingDown] = 0
	} else {
		scores[TrendingUp] = 0
		scores[TrendingDown] = math.Min(trendRatio, 1)
	}

	winner, confidence := pickWinner(scores)
	return Classification{
		Regime:     winner,
		Confidence: confidence,
		Metrics:    metrics,
	}
}

// measure computes the metric snapshot for the window.
func (d *Detector) measure(w *market.Window) Metrics {
	closes := w.Closes()
	slope, r2 := indicator.RegressionSlope(closes)
	atr := indicator.ATR(w.Bars(), d.config.ATRPeriod)

	last := closes[len(closes)-1]
	relVol := 0.0
	if last > 0 {
		relVol = atr / last
	}

	return Metrics{
		TrendStrength: slope * r2,
		Slope:         slope,
		R2:            r2,
		Volatility:    relVol,
		ATR:           atr,
		Bars:          w.Len(),
	}
}

// pickWinner returns the best-scoring regime and the normalized margin
// over the runner-up. Iterates the fixed regime order so ties resolve
// deterministically.
func pickWinner(scores map[Regime]float64) (Regime, float64) {
	winner := Ranging
	best, second := -1.0, -1.0
	for _, r := range All {
		score, ok := scores[r]
		if !ok {
			continue
		}
		if score > best {
			second = best
			best = score
			winner = r
		} else if score > second {
			second = score
		}
	}
	if best <= 0 {
		// Nothing scored: flat dead market reads as ranging, low confidence.
		return Ranging, 0
	}
	if second < 0 {
		second = 0
	}
	return winner, (best - second) / best
}
