package sizing

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSizer(t *testing.T) *Sizer {
	t.Helper()
	s, err := NewSizer(DefaultConfig())
	require.NoError(t, err)
	return s
}

func baseInput() Input {
	return Input{
		Symbol:    "AAPL",
		Vote:      0.4, // moderate tier, multiplier 1.0
		Entry:     100,
		ATR:       2,
		VolFactor: 1,
		Equity:    100000,
		Cash:      100000,
		ScaleHint: 1,
	}
}

func TestConfigValidation(t *testing.T) {
	bad := DefaultConfig()
	bad.RiskFraction = 0
	assert.Error(t, bad.Validate())

	bad = DefaultConfig()
	bad.MaxMultiplier = 0.1 // below min
	assert.Error(t, bad.Validate())

	bad = DefaultConfig()
	bad.StrongVote = 0.2 // below moderate
	assert.Error(t, bad.Validate())

	assert.NoError(t, DefaultConfig().Validate())
}

func TestFixedFractionalBase(t *testing.T) {
	s := newTestSizer(t)

	// risk 1% of 100k = 1000, stop distance 2*2 = 4: base 250 shares.
	result := s.Size(baseInput())
	assert.InDelta(t, 250, result.BaseShares, 1e-9)
	assert.Equal(t, int64(250), result.Shares)
	assert.InDelta(t, 96, result.StopPrice, 1e-9) // 100 - 4*1.0
}

func TestDoubledVolatilityHalvesShares(t *testing.T) {
	s := newTestSizer(t)

	normal := s.Size(baseInput())

	doubled := baseInput()
	doubled.VolFactor = 2
	halved := s.Size(doubled)

	require.Positive(t, normal.Shares)
	assert.Equal(t, normal.Shares/2, halved.Shares,
		"doubling the volatility factor must exactly halve the share count")

	// The protective stop widens with the factor.
	assert.Less(t, halved.StopPrice, normal.StopPrice)
	assert.InDelta(t, 92, halved.StopPrice, 1e-9) // 100 - 4*2.0
}

func TestVoteTiers(t *testing.T) {
	s := newTestSizer(t)

	strong := baseInput()
	strong.Vote = 0.7
	sized := s.Size(strong)
	assert.InDelta(t, 1.2, sized.Components["vote_tier"], 1e-12)

	moderate := baseInput()
	moderate.Vote = 0.4
	assert.InDelta(t, 1.0, s.Size(moderate).Components["vote_tier"], 1e-12)

	weak := baseInput()
	weak.Vote = 0.1
	assert.InDelta(t, 0.7, s.Size(weak).Components["vote_tier"], 1e-12)

	// A short conviction sizes by magnitude.
	short := baseInput()
	short.Vote = -0.7
	assert.InDelta(t, 1.2, s.Size(short).Components["vote_tier"], 1e-12)

	// Tiers order the share counts.
	assert.Greater(t, s.Size(strong).Shares, s.Size(weak).Shares)
}

func TestStreakAdjustment(t *testing.T) {
	s := newTestSizer(t)

	wins := baseInput()
	wins.WinStreak = 3
	assert.InDelta(t, 1.15, s.Size(wins).Components["streak"], 1e-12)

	losses := baseInput()
	losses.LossStreak = 2
	assert.InDelta(t, 0.90, s.Size(losses).Components["streak"], 1e-12)

	// Streaks past the cap count as the cap.
	capped := baseInput()
	capped.WinStreak = 50
	assert.InDelta(t, 1.25, s.Size(capped).Components["streak"], 1e-12)
}

func TestRecoveryBoost(t *testing.T) {
	s := newTestSizer(t)

	recovered := baseInput()
	recovered.Recovered = true
	result := s.Size(recovered)
	assert.InDelta(t, 1.15, result.Components["recovery"], 1e-12)
	assert.Equal(t, int64(287), result.Shares) // floor(250 * 1.15)
}

func TestMultiplierClampedToBand(t *testing.T) {
	s := newTestSizer(t)

	// Everything boosted at once: 1.2 * 1.25 * 1.15 = 1.725, inside the
	// band; push further with low volatility.
	in := baseInput()
	in.Vote = 0.9
	in.WinStreak = 5
	in.Recovered = true
	in.VolFactor = 0.5 // dampener 2.0
	result := s.Size(in)
	assert.InDelta(t, 2.0, result.Multiplier, 1e-12, "multiplier must clamp at the band ceiling")

	// Everything dampened at once clamps at the floor.
	in = baseInput()
	in.Vote = 0.1
	in.LossStreak = 5
	in.VolFactor = 4
	result = s.Size(in)
	assert.InDelta(t, 0.2, result.Multiplier, 1e-12, "multiplier must clamp at the band floor")
}

func TestScaleHintAppliedAfterClamp(t *testing.T) {
	s := newTestSizer(t)

	in := baseInput()
	in.ScaleHint = 0.5
	result := s.Size(in)
	assert.InDelta(t, 0.5, result.Multiplier, 1e-12)
	assert.Equal(t, int64(125), result.Shares)
}

func TestCashTruncation(t *testing.T) {
	s := newTestSizer(t)

	in := baseInput()
	in.Cash = 5000 // affords 50 shares at 100
	result := s.Size(in)
	assert.Equal(t, int64(50), result.Shares)
}

func TestDegenerateInputsSizeToZero(t *testing.T) {
	s := newTestSizer(t)

	noATR := baseInput()
	noATR.ATR = 0
	assert.Zero(t, s.Size(noATR).Shares)

	noEquity := baseInput()
	noEquity.Equity = 0
	assert.Zero(t, s.Size(noEquity).Shares)

	noCash := baseInput()
	noCash.Cash = 0
	assert.Zero(t, s.Size(noCash).Shares)
}
