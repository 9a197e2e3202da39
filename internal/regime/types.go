package regime

// Regime is a closed classification of current market behavior. The
// five values are mutually exclusive and exhaustive for any step.
type Regime string

const (
	TrendingUp       Regime = "TRENDING_UP"
	TrendingDown     Regime = "TRENDING_DOWN"
	Ranging          Regime = "RANGING"
	Volatile         Regime = "VOLATILE"
	InsufficientData Regime = "INSUFFICIENT_DATA"
)

// All lists the regimes in fixed order.
var All = []Regime{TrendingUp, TrendingDown, Ranging, Volatile, InsufficientData}

// Metrics is the measurement snapshot that produced a classification.
type Metrics struct {
	TrendStrength float64 `json:"trend_strength"` // signed slope x R² over log closes
	Slope         float64 `json:"slope"`
	R2            float64 `json:"r2"`
	Volatility    float64 `json:"volatility"` // ATR relative to last close
	ATR           float64 `json:"atr"`
	Bars          int     `json:"bars"`
}

// Classification is the detector output for one window.
type Classification struct {
	Regime     Regime  `json:"regime"`
	Confidence float64 `json:"confidence"` // [0,1], margin of winner over runner-up
	Metrics    Metrics `json:"metrics"`
}
