// Package sizing converts a blended vote plus risk context into a
// concrete share quantity using a fixed-fractional-risk base adjusted
// by a bounded composed multiplier.
package sizing

import (
	"math"

	"qde/internal/errors"
)

// Config holds the sizing parameters.
type Config struct {
	RiskFraction  float64 `yaml:"risk_fraction"`  // fraction of equity risked per trade
	ATRMultiple   float64 `yaml:"atr_multiple"`   // reference stop distance in ATRs
	MinMultiplier float64 `yaml:"min_multiplier"` // composed multiplier lower clamp
	MaxMultiplier float64 `yaml:"max_multiplier"` // composed multiplier upper clamp
	StrongVote    float64 `yaml:"strong_vote"`    // |vote| at or above: strong tier
	ModerateVote  float64 `yaml:"moderate_vote"`  // |vote| at or above: moderate tier
	StreakStep    float64 `yaml:"streak_step"`    // multiplier delta per consecutive win/loss
	StreakCap     int     `yaml:"streak_cap"`     // streak length counted at most
	RecoveryBoost float64 `yaml:"recovery_boost"` // temporary boost after trough recovery
}

// DefaultConfig returns the calibrated defaults.
func DefaultConfig() Config {
	return Config{
		RiskFraction:  0.01,
		ATRMultiple:   2.0,
		MinMultiplier: 0.2,
		MaxMultiplier: 2.0,
		StrongVote:    0.6,
		ModerateVote:  0.3,
		StreakStep:    0.05,
		StreakCap:     5,
		RecoveryBoost: 1.15,
	}
}

// Validate rejects out-of-range sizing parameters.
func (c Config) Validate() error {
	if c.RiskFraction <= 0 || c.RiskFraction >= 1 {
		return errors.NewAppError(errors.ErrCodeConfigInvalid,
			"risk fraction must lie in (0,1)", nil)
	}
	if c.ATRMultiple <= 0 {
		return errors.NewAppError(errors.ErrCodeConfigInvalid,
			"ATR multiple must be positive", nil)
	}
	if c.MinMultiplier <= 0 || c.MaxMultiplier < c.MinMultiplier {
		return errors.NewAppError(errors.ErrCodeConfigInvalid,
			"multiplier band must satisfy 0 < min <= max", nil)
	}
	if c.ModerateVote <= 0 || c.StrongVote <= c.ModerateVote || c.StrongVote > 1 {
		return errors.NewAppError(errors.ErrCodeConfigInvalid,
			"vote tiers must satisfy 0 < moderate < strong <= 1", nil)
	}
	return nil
}

// Input carries everything the sizer needs for one decision.
type Input struct {
	Symbol    string
	Vote      float64 // blended conviction, [-1,1]; magnitude drives the tier
	Entry     float64 // reference entry price
	ATR       float64 // current average true range
	VolFactor float64 // volatility relative to baseline, 1.0 = normal
	Equity    float64
	Cash      float64
	ScaleHint float64 // risk-gate downscale suggestion, 1.0 = none
	WinStreak int     // consecutive winning settlements
	LossStreak int    // consecutive losing settlements
	Recovered bool    // equity just recovered above a prior trough
}

// Result is the sizing outcome with its component breakdown for the
// audit trail.
type Result struct {
	Shares     int64              `json:"shares"`
	StopPrice  float64            `json:"stop_price"`
	BaseShares float64            `json:"base_shares"`
	Multiplier float64            `json:"multiplier"`
	Components map[string]float64 `json:"components"`
}

// Sizer computes share quantities.
type Sizer struct {
	config Config
}

// NewSizer validates the configuration and builds a sizer.
func NewSizer(config Config) (*Sizer, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &Sizer{config: config}, nil
}

// Size computes the share quantity for in. The base follows the
// fixed-fractional formula over the reference ATR stop distance; the
// volatility factor then enters the final size exactly once, through
// the inverse dampener, so doubling the factor halves the count. The
// protective stop itself widens with the factor. Size is floored at
// zero and truncated to what available cash affords.
func (s *Sizer) Size(in Input) Result {
	result := Result{
		Components: make(map[string]float64, 4),
	}

	volFactor := in.VolFactor
	if volFactor <= 0 {
		volFactor = 1
	}

	refStop := in.ATR * s.config.ATRMultiple
	result.StopPrice = math.Max(0, in.Entry-refStop*volFactor)
	if refStop <= 0 || in.Entry <= 0 || in.Equity <= 0 {
		return result
	}

	result.BaseShares = in.Equity * s.config.RiskFraction / refStop

	dampener := 1 / volFactor
	tier := s.voteTier(in.Vote)
	streak := s.streakAdjustment(in.WinStreak, in.LossStreak)
	recovery := 1.0
	if in.Recovered {
		recovery = s.config.RecoveryBoost
	}

	result.Components["vol_dampener"] = dampener
	result.Components["vote_tier"] = tier
	result.Components["streak"] = streak
	result.Components["recovery"] = recovery

	multiplier := dampener * tier * streak * recovery
	multiplier = math.Max(s.config.MinMultiplier, math.Min(s.config.MaxMultiplier, multiplier))
	if in.ScaleHint > 0 && in.ScaleHint < 1 {
		multiplier *= in.ScaleHint
		result.Components["risk_scale"] = in.ScaleHint
	}
	result.Multiplier = multiplier

	shares := math.Floor(result.BaseShares * multiplier)
	if shares < 0 {
		shares = 0
	}

	// Truncate to what cash affords at the entry price.
	if in.Entry > 0 {
		affordable := math.Floor(in.Cash / in.Entry)
		if shares > affordable {
			shares = math.Max(0, affordable)
		}
	}

	result.Shares = int64(shares)
	return result
}

// voteTier maps vote magnitude to the three-band size multiplier.
func (s *Sizer) voteTier(vote float64) float64 {
	magnitude := math.Abs(vote)
	switch {
	case magnitude >= s.config.StrongVote:
		return 1.2
	case magnitude >= s.config.ModerateVote:
		return 1.0
	default:
		return 0.7
	}
}

// streakAdjustment boosts size on recent wins and dampens on recent
// losses, capped at StreakCap consecutive outcomes.
func (s *Sizer) streakAdjustment(wins, losses int) float64 {
	if wins > 0 {
		if wins > s.config.StreakCap {
			wins = s.config.StreakCap
		}
		return 1 + float64(wins)*s.config.StreakStep
	}
	if losses > 0 {
		if losses > s.config.StreakCap {
			losses = s.config.StreakCap
		}
		return 1 - float64(losses)*s.config.StreakStep
	}
	return 1
}
