package ensemble

import (
	"math"

	"qde/internal/indicator"
	"qde/internal/market"
)

// Default expert identifiers.
const (
	ExpertMomentum      = "momentum"
	ExpertMeanReversion = "mean_reversion"
	ExpertBreakout      = "breakout"
	ExpertVolume        = "volume"
)

// DefaultExperts returns the built-in expert set with default
// parameters. Each signal is a pure function of the bar window.
func DefaultExperts() []*Expert {
	return []*Expert{
		NewMomentumExpert(),
		NewMeanReversionExpert(),
		NewBreakoutExpert(),
		NewVolumeExpert(),
	}
}

// NewMomentumExpert votes with the spread between a fast and a slow
// moving average, scaled and squashed into [-1,1].
func NewMomentumExpert() *Expert {
	return NewExpert(ExpertMomentum,
		map[string]float64{"fast_period": 10, "slow_period": 30, "scale": 25},
		map[string][2]float64{
			"fast_period": {5, 20},
			"slow_period": {20, 60},
			"scale":       {10, 50},
		},
		func(e *Expert, w *market.Window) float64 {
			fast := int(e.Param("fast_period", 10))
			slow := int(e.Param("slow_period", 30))
			closes := w.Closes()
			if len(closes) < slow {
				return 0
			}
			fastMA := indicator.SMA(closes, fast)
			slowMA := indicator.SMA(closes, slow)
			if slowMA == 0 {
				return 0
			}
			return math.Tanh(e.Param("scale", 25) * (fastMA/slowMA - 1))
		})
}

// NewMeanReversionExpert votes against stretched prices: a high
// z-score of the last close produces a sell conviction.
func NewMeanReversionExpert() *Expert {
	return NewExpert(ExpertMeanReversion,
		map[string]float64{"period": 20, "scale": 0.5},
		map[string][2]float64{
			"period": {10, 40},
			"scale":  {0.25, 1.0},
		},
		func(e *Expert, w *market.Window) float64 {
			period := int(e.Param("period", 20))
			closes := w.Closes()
			if len(closes) < period {
				return 0
			}
			z := indicator.ZScore(closes, period)
			return -math.Tanh(e.Param("scale", 0.5) * z)
		})
}

// NewBreakoutExpert votes with closes pushing through the recent
// high/low channel.
func NewBreakoutExpert() *Expert {
	return NewExpert(ExpertBreakout,
		map[string]float64{"period": 20},
		map[string][2]float64{
			"period": {10, 50},
		},
		func(e *Expert, w *market.Window) float64 {
			period := int(e.Param("period", 20))
			bars := w.Bars()
			if len(bars) < period+1 {
				return 0
			}
			high, low := indicator.HighLowChannel(bars, period)
			last := bars[len(bars)-1].Close
			if high == low {
				return 0
			}
			switch {
			case last > high:
				return 1
			case last < low:
				return -1
			default:
				// Position within the channel, mapped to (-1,1).
				return 2*(last-low)/(high-low) - 1
			}
		})
}

// NewVolumeExpert votes with the price trend when volume confirms it:
// expanding volume amplifies the slope signal, shrinking volume mutes it.
func NewVolumeExpert() *Expert {
	return NewExpert(ExpertVolume,
		map[string]float64{"period": 20, "scale": 80},
		map[string][2]float64{
			"period": {10, 40},
			"scale":  {40, 160},
		},
		func(e *Expert, w *market.Window) float64 {
			period := int(e.Param("period", 20))
			closes := w.Closes()
			volumes := w.Volumes()
			if len(closes) < period || len(volumes) < period {
				return 0
			}
			slope, r2 := indicator.RegressionSlope(closes[len(closes)-period:])
			avgVol := indicator.SMA(volumes, period)
			if avgVol == 0 {
				return 0
			}
			volRatio := volumes[len(volumes)-1] / avgVol
			confirm := math.Min(volRatio, 2.0)
			return math.Tanh(e.Param("scale", 80) * slope * r2 * confirm)
		})
}
