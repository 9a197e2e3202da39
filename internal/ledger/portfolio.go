package ledger

import (
	"time"
)

// Position is one holding: share count and weighted-average cost basis.
type Position struct {
	Symbol   string  `json:"symbol"`
	Quantity int64   `json:"quantity"`
	AvgCost  float64 `json:"avg_cost"`
}

// EquityPoint is one mark-to-market observation.
type EquityPoint struct {
	Timestamp time.Time `json:"timestamp"`
	Equity    float64   `json:"equity"`
	Cash      float64   `json:"cash"`
	Drawdown  float64   `json:"drawdown"`
}

// State is the simulated portfolio. Owned exclusively by the Ledger
// and mutated once per step; all other components read snapshots.
type State struct {
	Cash       float64              `json:"cash"`
	Positions  map[string]*Position `json:"positions"`
	Equity     float64              `json:"equity"`
	PeakEquity float64              `json:"peak_equity"`
	History    []EquityPoint        `json:"history"`
}

// newState creates a portfolio holding only cash.
func newState(initialCapital float64) *State {
	return &State{
		Cash:       initialCapital,
		Positions:  make(map[string]*Position),
		Equity:     initialCapital,
		PeakEquity: initialCapital,
	}
}

// position returns the holding for symbol, or nil.
func (s *State) position(symbol string) *Position {
	return s.Positions[symbol]
}

// exposure returns the mark-to-market value of open positions.
func (s *State) exposure(prices map[string]float64) float64 {
	var total float64
	for symbol, pos := range s.Positions {
		price, ok := prices[symbol]
		if !ok {
			price = pos.AvgCost
		}
		total += float64(pos.Quantity) * price
	}
	return total
}

// Snapshot returns a deep copy safe to hand to other components.
func (s *State) Snapshot() *State {
	copied := &State{
		Cash:       s.Cash,
		Equity:     s.Equity,
		PeakEquity: s.PeakEquity,
		Positions:  make(map[string]*Position, len(s.Positions)),
		History:    make([]EquityPoint, len(s.History)),
	}
	for symbol, pos := range s.Positions {
		p := *pos
		copied.Positions[symbol] = &p
	}
	copy(copied.History, s.History)
	return copied
}
