// Package ledger simulates order execution and settlement against a
// portfolio and produces the realized reward signal fed back to the
// ensemble learner.
package ledger

import (
	"math"
	"sort"
	"time"

	"qde/internal/errors"
)

// Side is the order direction.
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// Config holds the fill model parameters.
type Config struct {
	InitialCapital  float64 `yaml:"initial_capital"`
	FeePct          float64 `yaml:"fee_pct"`          // fixed percentage transaction cost
	SlippageCoeff   float64 `yaml:"slippage_coeff"`   // slippage per unit of order/avg-volume
	MaxSlippagePct  float64 `yaml:"max_slippage_pct"` // slippage cap
	RewardScale     float64 `yaml:"reward_scale"`     // squash steepness for expert rewards
	RecoveryDepth   float64 `yaml:"recovery_depth"`   // drawdown depth that arms trough tracking
	RecoveryRebound float64 `yaml:"recovery_rebound"` // rebound above the trough marking recovery
}

// DefaultConfig returns the calibrated defaults.
func DefaultConfig() Config {
	return Config{
		InitialCapital:  100000,
		FeePct:          0.001,
		SlippageCoeff:   0.1,
		MaxSlippagePct:  0.01,
		RewardScale:     100,
		RecoveryDepth:   0.05,
		RecoveryRebound: 0.03,
	}
}

// Validate rejects out-of-range fill parameters.
func (c Config) Validate() error {
	if c.InitialCapital <= 0 {
		return errors.NewAppError(errors.ErrCodeConfigInvalid,
			"initial capital must be positive", nil)
	}
	if c.FeePct < 0 || c.FeePct >= 0.1 {
		return errors.NewAppError(errors.ErrCodeConfigInvalid,
			"fee pct must lie in [0,0.1)", nil)
	}
	if c.SlippageCoeff < 0 || c.MaxSlippagePct < 0 {
		return errors.NewAppError(errors.ErrCodeConfigInvalid,
			"slippage parameters must be non-negative", nil)
	}
	if c.RewardScale <= 0 {
		return errors.NewAppError(errors.ErrCodeConfigInvalid,
			"reward scale must be positive", nil)
	}
	return nil
}

// Order is a sized instruction for the fill model.
type Order struct {
	Symbol    string
	Side      Side
	Shares    int64
	RefPrice  float64 // reference price, typically the step close
	AvgVolume float64 // recent average volume for the slippage term
}

// Fill records a simulated execution. All-or-nothing at the sized
// quantity, or truncated to what cash affords; no partial-fill model.
type Fill struct {
	Symbol      string  `json:"symbol"`
	Side        Side    `json:"side"`
	Shares      int64   `json:"shares"`
	Price       float64 `json:"price"`
	Slippage    float64 `json:"slippage"`
	Fee         float64 `json:"fee"`
	RealizedPnL float64 `json:"realized_pnl"` // non-zero on closes
}

// Ledger executes sized decisions against the simulated portfolio.
// Single-threaded by contract: one step fully settles before the next.
type Ledger struct {
	config Config
	state  *State

	winStreak  int
	lossStreak int

	trough     float64
	inDrawdown bool
	recovered  bool

	lastEquity float64
}

// New creates a ledger with a fresh all-cash portfolio.
func New(config Config) (*Ledger, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &Ledger{
		config:     config,
		state:      newState(config.InitialCapital),
		lastEquity: config.InitialCapital,
	}, nil
}

// State returns a deep-copied snapshot of the portfolio.
func (l *Ledger) State() *State {
	return l.state.Snapshot()
}

// Cash returns available cash.
func (l *Ledger) Cash() float64 { return l.state.Cash }

// Equity returns the last settled equity.
func (l *Ledger) Equity() float64 { return l.state.Equity }

// PeakEquity returns the all-time equity high.
func (l *Ledger) PeakEquity() float64 { return l.state.PeakEquity }

// OpenPositions returns the number of open positions.
func (l *Ledger) OpenPositions() int { return len(l.state.Positions) }

// Exposure returns the mark-to-market value of open positions.
func (l *Ledger) Exposure(prices map[string]float64) float64 {
	return l.state.exposure(prices)
}

// Holds reports whether the symbol is currently held.
func (l *Ledger) Holds(symbol string) bool {
	return l.state.position(symbol) != nil
}

// HeldSymbols returns the held symbols in sorted order.
func (l *Ledger) HeldSymbols() []string {
	symbols := make([]string, 0, len(l.state.Positions))
	for symbol := range l.state.Positions {
		symbols = append(symbols, symbol)
	}
	sort.Strings(symbols)
	return symbols
}

// PositionQuantity returns the held share count for symbol.
func (l *Ledger) PositionQuantity(symbol string) int64 {
	if pos := l.state.position(symbol); pos != nil {
		return pos.Quantity
	}
	return 0
}

// WinStreak returns the current consecutive winning settle count.
func (l *Ledger) WinStreak() int { return l.winStreak }

// LossStreak returns the current consecutive losing settle count.
func (l *Ledger) LossStreak() int { return l.lossStreak }

// RecoveredFromTrough reports whether equity just rebounded above a
// prior drawdown trough. The flag holds for one step.
func (l *Ledger) RecoveredFromTrough() bool { return l.recovered }

// Execute applies the fill model to an order and mutates cash and
// positions. Buys are truncated to what cash affords after slippage
// and fees; sells are truncated to the held quantity. A zero-share
// outcome returns a nil fill.
func (l *Ledger) Execute(order *Order) *Fill {
	if order == nil || order.Shares <= 0 || order.RefPrice <= 0 {
		return nil
	}

	slippage := l.slippage(order)
	var fillPrice float64
	if order.Side == SideBuy {
		fillPrice = order.RefPrice * (1 + slippage)
	} else {
		fillPrice = order.RefPrice * (1 - slippage)
	}

	shares := order.Shares
	switch order.Side {
	case SideBuy:
		perShare := fillPrice * (1 + l.config.FeePct)
		affordable := int64(math.Floor(l.state.Cash / perShare))
		if shares > affordable {
			shares = affordable
		}
		if shares <= 0 {
			return nil
		}
		return l.applyBuy(order.Symbol, shares, fillPrice, slippage)
	case SideSell:
		pos := l.state.position(order.Symbol)
		if pos == nil {
			return nil
		}
		if shares > pos.Quantity {
			shares = pos.Quantity
		}
		if shares <= 0 {
			return nil
		}
		return l.applySell(pos, shares, fillPrice, slippage)
	}
	return nil
}

// slippage derives the order's price impact from its size relative to
// recent average volume.
func (l *Ledger) slippage(order *Order) float64 {
	if order.AvgVolume <= 0 {
		return l.config.MaxSlippagePct
	}
	impact := l.config.SlippageCoeff * float64(order.Shares) / order.AvgVolume
	return math.Min(impact, l.config.MaxSlippagePct)
}

func (l *Ledger) applyBuy(symbol string, shares int64, price, slippage float64) *Fill {
	cost := price * float64(shares)
	fee := cost * l.config.FeePct
	l.state.Cash -= cost + fee

	pos := l.state.position(symbol)
	if pos == nil {
		pos = &Position{Symbol: symbol}
		l.state.Positions[symbol] = pos
	}
	// Weighted-average cost basis.
	total := float64(pos.Quantity) + float64(shares)
	pos.AvgCost = (pos.AvgCost*float64(pos.Quantity) + price*float64(shares)) / total
	pos.Quantity += shares

	return &Fill{
		Symbol:   symbol,
		Side:     SideBuy,
		Shares:   shares,
		Price:    price,
		Slippage: slippage,
		Fee:      fee,
	}
}

func (l *Ledger) applySell(pos *Position, shares int64, price, slippage float64) *Fill {
	proceeds := price * float64(shares)
	fee := proceeds * l.config.FeePct
	realized := (price-pos.AvgCost)*float64(shares) - fee

	l.state.Cash += proceeds - fee
	pos.Quantity -= shares
	if pos.Quantity == 0 {
		delete(l.state.Positions, pos.Symbol)
	}

	return &Fill{
		Symbol:      pos.Symbol,
		Side:        SideSell,
		Shares:      shares,
		Price:       price,
		Slippage:    slippage,
		Fee:         fee,
		RealizedPnL: realized,
	}
}

// Settle marks the portfolio to market, advances peak equity (which
// only ever rises or holds), records the equity history point, and
// updates streak and trough-recovery tracking.
func (l *Ledger) Settle(ts time.Time, prices map[string]float64) EquityPoint {
	equity := l.state.Cash + l.state.exposure(prices)
	l.state.Equity = equity
	if equity > l.state.PeakEquity {
		l.state.PeakEquity = equity
	}

	drawdown := 0.0
	if l.state.PeakEquity > 0 {
		drawdown = (l.state.PeakEquity - equity) / l.state.PeakEquity
	}

	point := EquityPoint{
		Timestamp: ts,
		Equity:    equity,
		Cash:      l.state.Cash,
		Drawdown:  drawdown,
	}
	l.state.History = append(l.state.History, point)

	l.updateStreaks(equity)
	l.updateRecovery(equity, drawdown)
	l.lastEquity = equity

	return point
}

// updateStreaks counts consecutive winning/losing settles while
// exposure is live; flat steps leave the streaks unchanged.
func (l *Ledger) updateStreaks(equity float64) {
	if len(l.state.Positions) == 0 {
		return
	}
	switch {
	case equity > l.lastEquity:
		l.winStreak++
		l.lossStreak = 0
	case equity < l.lastEquity:
		l.lossStreak++
		l.winStreak = 0
	}
}

// updateRecovery arms trough tracking once drawdown exceeds the
// configured depth and flags a single-step recovery boost when equity
// rebounds above the trough by the rebound margin.
func (l *Ledger) updateRecovery(equity, drawdown float64) {
	l.recovered = false

	if !l.inDrawdown {
		if drawdown >= l.config.RecoveryDepth {
			l.inDrawdown = true
			l.trough = equity
		}
		return
	}

	if equity < l.trough {
		l.trough = equity
		return
	}
	if l.trough > 0 && equity >= l.trough*(1+l.config.RecoveryRebound) {
		l.recovered = true
		l.inDrawdown = false
	}
}

// Rewards converts the subsequent price moves into per-expert rewards:
// the signed agreement between each expert's prior signal and the
// realized move, squashed through tanh into [-1,1] to cap outlier
// influence. Deterministic.
func (l *Ledger) Rewards(prevSignals map[string]float64, pctMove float64) map[string]float64 {
	rewards := make(map[string]float64, len(prevSignals))
	for id, signal := range prevSignals {
		rewards[id] = math.Tanh(l.config.RewardScale * signal * pctMove)
	}
	return rewards
}
