package ensemble

import (
	"fmt"
	"math"
	"sync"

	"qde/internal/errors"
)

// Vote is the combined conviction for one symbol at one step, with the
// per-expert contributions that produced it.
type Vote struct {
	Symbol        string             `json:"symbol"`
	Combined      float64            `json:"combined"`
	Signals       map[string]float64 `json:"signals"`
	Contributions map[string]float64 `json:"contributions"`
	Weights       map[string]float64 `json:"weights"`
}

// Voter combines expert signals through exponential ("Hedge"-style)
// multiplicative weights. Weights always sum to 1 and each stays at or
// above the configured floor, so no expert is ever permanently
// silenced. The whole process is deterministic.
type Voter struct {
	experts  []*Expert
	weights  map[string]float64
	eta      float64
	floor    float64
	learning bool
	mu       sync.RWMutex
}

// NewVoter creates a voter with uniform initial weights. The floor
// must leave room for a valid distribution: floor × len(experts) < 1.
func NewVoter(experts []*Expert, eta, floor float64) (*Voter, error) {
	if len(experts) == 0 {
		return nil, errors.NewAppError(errors.ErrCodeConfigInvalid, "at least one expert required", nil)
	}
	if eta <= 0 {
		return nil, errors.NewAppError(errors.ErrCodeConfigInvalid, "learning rate must be positive", nil)
	}
	if floor <= 0 || floor*float64(len(experts)) >= 1 {
		return nil, errors.NewAppErrorWithDetails(errors.ErrCodeConfigInvalid,
			"invalid weight floor",
			fmt.Sprintf("floor %.4f x %d experts must stay below 1", floor, len(experts)), nil)
	}

	weights := make(map[string]float64, len(experts))
	uniform := 1.0 / float64(len(experts))
	for _, e := range experts {
		if _, exists := weights[e.ID]; exists {
			return nil, errors.NewAppErrorWithDetails(errors.ErrCodeConfigInvalid,
				"duplicate expert id", e.ID, nil)
		}
		weights[e.ID] = uniform
	}

	return &Voter{
		experts:  experts,
		weights:  weights,
		eta:      eta,
		floor:    floor,
		learning: true,
	}, nil
}

// Experts returns the expert set in fixed order.
func (v *Voter) Experts() []*Expert {
	return v.experts
}

// SetLearning toggles weight updates. With learning disabled the
// weights freeze at their last value and Update becomes a no-op.
func (v *Voter) SetLearning(enabled bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.learning = enabled
}

// LearningEnabled reports whether updates mutate weights.
func (v *Voter) LearningEnabled() bool {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.learning
}

// Vote combines the current signals into one weighted conviction.
// The combined value uses current signals and current weights only.
func (v *Voter) Vote(symbol string, signals map[string]float64) *Vote {
	v.mu.RLock()
	defer v.mu.RUnlock()

	vote := &Vote{
		Symbol:        symbol,
		Signals:       make(map[string]float64, len(v.experts)),
		Contributions: make(map[string]float64, len(v.experts)),
		Weights:       make(map[string]float64, len(v.experts)),
	}

	for _, e := range v.experts {
		signal := clampSignal(signals[e.ID])
		weight := v.weights[e.ID]
		contribution := weight * signal

		vote.Signals[e.ID] = signal
		vote.Weights[e.ID] = weight
		vote.Contributions[e.ID] = contribution
		vote.Combined += contribution
	}

	vote.Combined = clampSignal(vote.Combined)
	return vote
}

// Update applies the multiplicative weight rule w_i <- w_i*exp(eta*r_i)
// for rewards in [-1,1], clamps each weight to the floor and
// renormalizes to sum 1. It returns true when the update degenerated
// (all weights collapsed to the floor) and uniform weights were
// restored, a recoverable condition the caller must audit.
func (v *Voter) Update(rewards map[string]float64) (degenerate bool) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if !v.learning {
		return false
	}

	var sum float64
	for _, e := range v.experts {
		r := math.Max(-1, math.Min(1, rewards[e.ID]))
		w := v.weights[e.ID] * math.Exp(v.eta*r)
		v.weights[e.ID] = w
		sum += w
	}

	if sum <= 0 || math.IsNaN(sum) || math.IsInf(sum, 0) {
		v.resetUniformLocked()
		return true
	}

	for _, e := range v.experts {
		v.weights[e.ID] /= sum
	}
	return v.clampToFloorLocked()
}

// clampToFloorLocked pins every weight below the floor to the floor
// and rescales the remaining mass so the distribution still sums to 1.
// Rescaling can push further weights under the floor, so the pass
// repeats until stable (at most one pass per expert). Returns true
// when every weight collapsed to the floor and uniform weights were
// restored instead.
func (v *Voter) clampToFloorLocked() bool {
	floored := make(map[string]bool, len(v.experts))
	for {
		var freeMass float64
		for _, e := range v.experts {
			w := v.weights[e.ID]
			if !floored[e.ID] && w < v.floor {
				floored[e.ID] = true
			}
			if !floored[e.ID] {
				freeMass += w
			}
		}

		if len(floored) == len(v.experts) {
			v.resetUniformLocked()
			return true
		}

		target := 1 - float64(len(floored))*v.floor
		if target <= 0 || freeMass <= 0 {
			v.resetUniformLocked()
			return true
		}

		changed := false
		for _, e := range v.experts {
			if floored[e.ID] {
				v.weights[e.ID] = v.floor
				continue
			}
			scaled := v.weights[e.ID] * target / freeMass
			if scaled < v.floor {
				changed = true
			}
			v.weights[e.ID] = scaled
		}
		if !changed {
			return false
		}
	}
}

// resetUniformLocked restores uniform weights. Callers hold the lock.
func (v *Voter) resetUniformLocked() {
	uniform := 1.0 / float64(len(v.experts))
	for _, e := range v.experts {
		v.weights[e.ID] = uniform
	}
}

// Weights returns a copy of the current weight distribution.
func (v *Voter) Weights() map[string]float64 {
	v.mu.RLock()
	defer v.mu.RUnlock()
	out := make(map[string]float64, len(v.weights))
	for k, w := range v.weights {
		out[k] = w
	}
	return out
}

// Restore replaces the weights from a checkpoint snapshot. The
// snapshot must cover exactly the configured experts and sum to 1.
func (v *Voter) Restore(weights map[string]float64) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	var sum float64
	for _, e := range v.experts {
		w, ok := weights[e.ID]
		if !ok {
			return errors.NewAppErrorWithDetails(errors.ErrCodeCheckpoint,
				"checkpoint missing expert weight", e.ID, nil)
		}
		if w < 0 {
			return errors.NewAppErrorWithDetails(errors.ErrCodeCheckpoint,
				"negative weight in checkpoint", e.ID, nil)
		}
		sum += w
	}
	if math.Abs(sum-1) > 1e-6 {
		return errors.NewAppErrorWithDetails(errors.ErrCodeCheckpoint,
			"checkpoint weights do not sum to 1", fmt.Sprintf("sum=%.8f", sum), nil)
	}

	for _, e := range v.experts {
		v.weights[e.ID] = weights[e.ID]
	}
	return nil
}
