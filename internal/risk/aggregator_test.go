package risk

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestAggregator(t *testing.T, limits Limits) *Aggregator {
	t.Helper()
	a, err := NewAggregator(limits)
	require.NoError(t, err)
	return a
}

func healthyView() *PortfolioView {
	return &PortfolioView{
		Equity:        100000,
		PeakEquity:    100000,
		Exposure:      0,
		OpenPositions: 0,
	}
}

func TestLimitsValidation(t *testing.T) {
	bad := DefaultLimits()
	bad.MaxDrawdownPct = 1.5
	assert.Error(t, bad.Validate())

	bad = DefaultLimits()
	bad.MaxCorrelation = 0
	assert.Error(t, bad.Validate())

	bad = DefaultLimits()
	bad.MaxPositions = 0
	assert.Error(t, bad.Validate())

	assert.NoError(t, DefaultLimits().Validate())
}

func TestDrawdownBoundary(t *testing.T) {
	limits := DefaultLimits()
	limits.MaxDrawdownPct = 0.25
	a := newTestAggregator(t, limits)
	candidate := &Candidate{Symbol: "AAPL", Notional: 1000}

	// 20% drawdown: under the limit, admitted.
	view := healthyView()
	view.Equity = 80000
	verdict := a.Evaluate(candidate, view)
	assert.True(t, verdict.Allowed)

	// 30% drawdown: over the limit, rejected at the drawdown check.
	view = healthyView()
	view.Equity = 70000
	verdict = a.Evaluate(candidate, view)
	assert.False(t, verdict.Allowed)
	assert.Equal(t, CheckDrawdown, verdict.Failed)
	assert.NotEmpty(t, verdict.Reason)
}

func TestDrawdownLimitSidesOfSameState(t *testing.T) {
	// Peak 100000, equity 75000: a 25% drawdown rejects under a 0.20
	// limit and passes under a 0.30 limit.
	view := healthyView()
	view.Equity = 75000
	candidate := &Candidate{Symbol: "AAPL", Notional: 1000}

	tight := DefaultLimits()
	tight.MaxDrawdownPct = 0.20
	verdict := newTestAggregator(t, tight).Evaluate(candidate, view)
	assert.False(t, verdict.Allowed)
	assert.Equal(t, CheckDrawdown, verdict.Failed)

	loose := DefaultLimits()
	loose.MaxDrawdownPct = 0.30
	verdict = newTestAggregator(t, loose).Evaluate(candidate, view)
	assert.True(t, verdict.Allowed)
}

func TestRejectionShortCircuitsInFixedOrder(t *testing.T) {
	a := newTestAggregator(t, DefaultLimits())

	// Everything is wrong at once; the drawdown check fires first
	// because the order is fixed.
	view := &PortfolioView{
		Equity:        50000,
		PeakEquity:    100000,
		Exposure:      200000,
		OpenPositions: 99,
	}
	verdict := a.Evaluate(&Candidate{Symbol: "AAPL", Notional: 1000}, view)
	assert.False(t, verdict.Allowed)
	assert.Equal(t, CheckDrawdown, verdict.Failed)
}

func TestExposureRejection(t *testing.T) {
	a := newTestAggregator(t, DefaultLimits())

	view := healthyView()
	view.Exposure = 85000
	verdict := a.Evaluate(&Candidate{Symbol: "AAPL", Notional: 10000}, view)
	assert.False(t, verdict.Allowed)
	assert.Equal(t, CheckExposure, verdict.Failed)

	verdict = a.Evaluate(&Candidate{Symbol: "AAPL", Notional: 1000}, view)
	assert.True(t, verdict.Allowed)
}

func TestPositionCountRejection(t *testing.T) {
	limits := DefaultLimits()
	limits.MaxPositions = 2
	a := newTestAggregator(t, limits)

	view := healthyView()
	view.OpenPositions = 2
	verdict := a.Evaluate(&Candidate{Symbol: "AAPL", Notional: 1000}, view)
	assert.False(t, verdict.Allowed)
	assert.Equal(t, CheckPositionCount, verdict.Failed)

	// Adding to an existing holding does not open a new slot.
	view.HoldsCandidate = true
	verdict = a.Evaluate(&Candidate{Symbol: "AAPL", Notional: 1000}, view)
	assert.True(t, verdict.Allowed)
}

func TestCorrelationRejection(t *testing.T) {
	limits := DefaultLimits()
	limits.MaxCorrelation = 0.8
	a := newTestAggregator(t, limits)

	series := make([]float64, 30)
	for i := range series {
		series[i] = math.Sin(float64(i) * 0.7)
	}

	view := healthyView()
	view.OpenPositions = 1
	view.HeldReturns = map[string][]float64{"MSFT": series}

	// Identical return series: correlation 1, over the limit.
	verdict := a.Evaluate(&Candidate{Symbol: "AAPL", Notional: 1000, Returns: series}, view)
	assert.False(t, verdict.Allowed)
	assert.Equal(t, CheckCorrelation, verdict.Failed)

	// Anti-correlated series still has |corr| 1.
	inverted := make([]float64, len(series))
	for i, v := range series {
		inverted[i] = -v
	}
	verdict = a.Evaluate(&Candidate{Symbol: "AAPL", Notional: 1000, Returns: inverted}, view)
	assert.False(t, verdict.Allowed)
}

func TestCorrelationDegenerateSkipsWithWarning(t *testing.T) {
	a := newTestAggregator(t, DefaultLimits())

	constant := make([]float64, 30) // zero variance: correlation undefined
	varying := make([]float64, 30)
	for i := range varying {
		varying[i] = math.Sin(float64(i))
	}

	view := healthyView()
	view.OpenPositions = 1
	view.HeldReturns = map[string][]float64{"MSFT": constant}

	verdict := a.Evaluate(&Candidate{Symbol: "AAPL", Notional: 1000, Returns: varying}, view)
	assert.True(t, verdict.Allowed, "degenerate input must not block the trade")
	assert.NotEmpty(t, verdict.Warnings)
}

func TestCorrelationNearLimitSuggestsDownscale(t *testing.T) {
	a := newTestAggregator(t, DefaultLimits()) // limit 0.80

	// Two balanced ±1 series with 6 of 50 signs flipped: means are
	// exactly zero and the correlation is exactly 38/50 = 0.76, inside
	// the warning band (0.72, 0.80) below the limit.
	base := make([]float64, 50)
	near := make([]float64, 50)
	for i := range base {
		if i%2 == 0 {
			base[i] = 1
		} else {
			base[i] = -1
		}
		near[i] = base[i]
	}
	near[0], near[2], near[4] = -1, -1, -1 // flip three +1s
	near[1], near[3], near[5] = 1, 1, 1    // flip three -1s

	view := healthyView()
	view.OpenPositions = 1
	view.HeldReturns = map[string][]float64{"MSFT": base}

	verdict := a.Evaluate(&Candidate{Symbol: "AAPL", Notional: 1000, Returns: near}, view)
	assert.True(t, verdict.Allowed)
	assert.Equal(t, 0.5, verdict.ScaleHint)
	assert.NotEmpty(t, verdict.Warnings)
}

func TestHeldCandidateSkipsCorrelation(t *testing.T) {
	a := newTestAggregator(t, DefaultLimits())

	series := make([]float64, 30)
	for i := range series {
		series[i] = math.Sin(float64(i))
	}

	view := healthyView()
	view.OpenPositions = 1
	view.HoldsCandidate = true
	view.HeldReturns = map[string][]float64{"AAPL": series}

	verdict := a.Evaluate(&Candidate{Symbol: "AAPL", Notional: 1000, Returns: series}, view)
	assert.True(t, verdict.Allowed)
}
