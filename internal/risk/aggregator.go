// Package risk implements the sequential admission gate a candidate
// trade must clear before sizing: drawdown, correlation, exposure and
// position-count checks in that fixed order, short-circuiting on the
// first failure. A rejection is a normal "no trade" outcome, never an
// error.
package risk

import (
	"fmt"
	"math"

	"qde/internal/errors"
	"qde/internal/indicator"
)

// Check identifies one gate in the admission sequence.
type Check string

const (
	CheckDrawdown      Check = "drawdown"
	CheckCorrelation   Check = "correlation"
	CheckExposure      Check = "exposure"
	CheckPositionCount Check = "position_count"
)

// checkOrder is the fixed evaluation order.
var checkOrder = []Check{CheckDrawdown, CheckCorrelation, CheckExposure, CheckPositionCount}

// Limits defines the portfolio-level risk limits for one run.
// Immutable after validation.
type Limits struct {
	MaxDrawdownPct float64 `yaml:"max_drawdown_pct"`
	MaxCorrelation float64 `yaml:"max_correlation"`
	MaxExposurePct float64 `yaml:"max_exposure_pct"`
	MaxPositions   int     `yaml:"max_positions"`
}

// DefaultLimits returns conservative defaults.
func DefaultLimits() Limits {
	return Limits{
		MaxDrawdownPct: 0.20,
		MaxCorrelation: 0.80,
		MaxExposurePct: 0.90,
		MaxPositions:   5,
	}
}

// Validate rejects contradictory or out-of-range limits.
func (l Limits) Validate() error {
	if l.MaxDrawdownPct <= 0 || l.MaxDrawdownPct >= 1 {
		return errors.NewAppError(errors.ErrCodeConfigInvalid,
			"max drawdown must lie in (0,1)", nil)
	}
	if l.MaxCorrelation <= 0 || l.MaxCorrelation > 1 {
		return errors.NewAppError(errors.ErrCodeConfigInvalid,
			"max correlation must lie in (0,1]", nil)
	}
	if l.MaxExposurePct <= 0 {
		return errors.NewAppError(errors.ErrCodeConfigInvalid,
			"max exposure must be positive", nil)
	}
	if l.MaxPositions < 1 {
		return errors.NewAppError(errors.ErrCodeConfigInvalid,
			"max positions must be at least 1", nil)
	}
	return nil
}

// Candidate describes a proposed entry before sizing.
type Candidate struct {
	Symbol   string
	Notional float64   // estimated order value
	Returns  []float64 // candidate's recent return series
}

// PortfolioView is the read-only portfolio snapshot the gate checks
// against. Owned by the ledger; the gate never mutates it.
type PortfolioView struct {
	Equity        float64
	PeakEquity    float64
	Exposure      float64 // mark-to-market value of open positions
	OpenPositions int
	HeldReturns   map[string][]float64 // return windows of held symbols
	HoldsCandidate bool                 // candidate symbol already held
}

// Verdict is the gate's decision with the reason trail.
type Verdict struct {
	Allowed   bool     `json:"allowed"`
	Failed    Check    `json:"failed,omitempty"`
	Reason    string   `json:"reason"`
	ScaleHint float64  `json:"scale_hint"` // sizing downscale suggested near the correlation limit
	Warnings  []string `json:"warnings,omitempty"`
}

// Aggregator runs the admission checks.
type Aggregator struct {
	limits Limits
}

// NewAggregator validates the limits and builds the gate.
func NewAggregator(limits Limits) (*Aggregator, error) {
	if err := limits.Validate(); err != nil {
		return nil, err
	}
	return &Aggregator{limits: limits}, nil
}

// Limits returns the configured limits.
func (a *Aggregator) Limits() Limits {
	return a.limits
}

// Evaluate runs the checks in fixed order and short-circuits on the
// first failure. A degenerate correlation input (constant series,
// missing data) skips that check for the cycle with a warning rather
// than blocking the run.
func (a *Aggregator) Evaluate(c *Candidate, view *PortfolioView) Verdict {
	verdict := Verdict{Allowed: true, ScaleHint: 1.0}

	for _, check := range checkOrder {
		var failed bool
		var reason string
		switch check {
		case CheckDrawdown:
			failed, reason = a.checkDrawdown(view)
		case CheckCorrelation:
			failed, reason = a.checkCorrelation(c, view, &verdict)
		case CheckExposure:
			failed, reason = a.checkExposure(c, view)
		case CheckPositionCount:
			failed, reason = a.checkPositionCount(view)
		}
		if failed {
			return Verdict{
				Allowed:   false,
				Failed:    check,
				Reason:    reason,
				ScaleHint: 1.0,
				Warnings:  verdict.Warnings,
			}
		}
	}

	return verdict
}

func (a *Aggregator) checkDrawdown(view *PortfolioView) (bool, string) {
	if view.PeakEquity <= 0 {
		return false, ""
	}
	dd := (view.PeakEquity - view.Equity) / view.PeakEquity
	if dd > a.limits.MaxDrawdownPct {
		return true, fmt.Sprintf("drawdown %.4f exceeds limit %.4f", dd, a.limits.MaxDrawdownPct)
	}
	return false, ""
}

// checkCorrelation computes the average pairwise return correlation
// across held symbols plus the candidate and rejects above the limit.
// Within 10% below the limit it suggests a sizing downscale instead.
func (a *Aggregator) checkCorrelation(c *Candidate, view *PortfolioView, verdict *Verdict) (bool, string) {
	if len(view.HeldReturns) == 0 || view.HoldsCandidate {
		return false, ""
	}

	var sum float64
	var pairs, degenerate int
	for symbol, held := range view.HeldReturns {
		if symbol == c.Symbol {
			continue
		}
		corr, bad := pairCorrelation(c.Returns, held)
		if bad {
			degenerate++
			continue
		}
		sum += math.Abs(corr)
		pairs++
	}

	if pairs == 0 {
		if degenerate > 0 {
			verdict.Warnings = append(verdict.Warnings,
				"correlation check skipped: degenerate return series")
		}
		return false, ""
	}
	if degenerate > 0 {
		verdict.Warnings = append(verdict.Warnings,
			fmt.Sprintf("correlation check ignored %d degenerate pair(s)", degenerate))
	}

	avg := sum / float64(pairs)
	if avg > a.limits.MaxCorrelation {
		return true, fmt.Sprintf("portfolio correlation %.4f exceeds limit %.4f", avg, a.limits.MaxCorrelation)
	}
	if avg > a.limits.MaxCorrelation*0.9 {
		verdict.ScaleHint = 0.5
		verdict.Warnings = append(verdict.Warnings,
			fmt.Sprintf("correlation %.4f near limit %.4f, sizing scaled down", avg, a.limits.MaxCorrelation))
	}
	return false, ""
}

func (a *Aggregator) checkExposure(c *Candidate, view *PortfolioView) (bool, string) {
	if view.Equity <= 0 {
		return true, "equity exhausted"
	}
	exposure := (view.Exposure + c.Notional) / view.Equity
	if exposure > a.limits.MaxExposurePct {
		return true, fmt.Sprintf("exposure %.4f exceeds limit %.4f", exposure, a.limits.MaxExposurePct)
	}
	return false, ""
}

func (a *Aggregator) checkPositionCount(view *PortfolioView) (bool, string) {
	if view.HoldsCandidate {
		// Adding to an existing position does not open a new slot.
		return false, ""
	}
	if view.OpenPositions >= a.limits.MaxPositions {
		return true, fmt.Sprintf("open positions %d at limit %d", view.OpenPositions, a.limits.MaxPositions)
	}
	return false, ""
}

// pairCorrelation aligns two return series on their shared tail and
// correlates them.
func pairCorrelation(a, b []float64) (float64, bool) {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	if n < 2 {
		return 0, true
	}
	return indicator.Correlation(a[len(a)-n:], b[len(b)-n:])
}
