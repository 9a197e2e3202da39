package market

import (
	"context"
	"errors"
	"time"
)

// ErrNoData signals that no bar exists for a symbol at a step. The
// engine treats it as a local data gap, not a failure.
var ErrNoData = errors.New("no market data")

// Bar represents one OHLCV candlestick.
type Bar struct {
	Symbol    string    `json:"symbol"`
	Timestamp time.Time `json:"timestamp"`
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
	Volume    float64   `json:"volume"`
}

// Valid reports whether the bar carries usable prices.
func (b *Bar) Valid() bool {
	return b.Open > 0 && b.High > 0 && b.Low > 0 && b.Close > 0 &&
		b.High >= b.Low && !b.Timestamp.IsZero()
}

// DataSource supplies bars to the engine. Bars for a symbol must be
// monotonically ordered by timestamp. Implementations return ErrNoData
// when a symbol has no bar at the requested step.
type DataSource interface {
	// Bar returns the bar for symbol at exactly ts.
	Bar(ctx context.Context, symbol string, ts time.Time) (*Bar, error)
	// Steps returns the ordered distinct timestamps the source covers.
	Steps() []time.Time
	// Symbols returns the symbols the source covers, in fixed order.
	Symbols() []string
}
