package regime

import (
	"fmt"

	"qde/internal/ensemble"
	"qde/internal/errors"
)

// AffinityTable maps each regime to a static prior over experts: the
// configured belief about which expert should dominate in that regime.
// Static configuration, never learned.
type AffinityTable map[Regime]map[string]float64

// DefaultAffinityTable returns the built-in priors for the default
// expert set.
func DefaultAffinityTable() AffinityTable {
	return AffinityTable{
		TrendingUp: {
			ensemble.ExpertMomentum:      0.45,
			ensemble.ExpertBreakout:      0.30,
			ensemble.ExpertVolume:        0.15,
			ensemble.ExpertMeanReversion: 0.10,
		},
		TrendingDown: {
			ensemble.ExpertMomentum:      0.45,
			ensemble.ExpertBreakout:      0.30,
			ensemble.ExpertVolume:        0.15,
			ensemble.ExpertMeanReversion: 0.10,
		},
		Ranging: {
			ensemble.ExpertMeanReversion: 0.55,
			ensemble.ExpertVolume:        0.20,
			ensemble.ExpertBreakout:      0.15,
			ensemble.ExpertMomentum:      0.10,
		},
		Volatile: {
			ensemble.ExpertMeanReversion: 0.30,
			ensemble.ExpertBreakout:      0.30,
			ensemble.ExpertVolume:        0.25,
			ensemble.ExpertMomentum:      0.15,
		},
		InsufficientData: {
			ensemble.ExpertMomentum:      0.25,
			ensemble.ExpertMeanReversion: 0.25,
			ensemble.ExpertBreakout:      0.25,
			ensemble.ExpertVolume:        0.25,
		},
	}
}

// Validate checks that every regime has a prior covering every expert
// and normalizes each prior to sum 1.
func (t AffinityTable) Validate(experts []*ensemble.Expert) error {
	for _, r := range All {
		prior, ok := t[r]
		if !ok {
			return errors.NewAppErrorWithDetails(errors.ErrCodeConfigInvalid,
				"affinity table missing regime", string(r), nil)
		}
		var sum float64
		for _, e := range experts {
			w, ok := prior[e.ID]
			if !ok {
				return errors.NewAppErrorWithDetails(errors.ErrCodeConfigInvalid,
					"affinity prior missing expert",
					fmt.Sprintf("regime %s expert %s", r, e.ID), nil)
			}
			if w < 0 {
				return errors.NewAppErrorWithDetails(errors.ErrCodeConfigInvalid,
					"negative affinity weight",
					fmt.Sprintf("regime %s expert %s", r, e.ID), nil)
			}
			sum += w
		}
		if sum <= 0 {
			return errors.NewAppErrorWithDetails(errors.ErrCodeConfigInvalid,
				"affinity prior has zero mass", string(r), nil)
		}
		for id := range prior {
			prior[id] /= sum
		}
	}
	return nil
}

// Prior returns the expert prior for a regime. Unknown regimes get the
// InsufficientData prior so blending always has a defined input.
func (t AffinityTable) Prior(r Regime) map[string]float64 {
	if prior, ok := t[r]; ok {
		return prior
	}
	return t[InsufficientData]
}
