package ensemble

import (
	"qde/internal/errors"
)

// Blender merges learned ensemble weights with a static regime prior.
// The learned side carries long-run calibration; the prior injects an
// immediate reaction when the regime flips. Pure function over weight
// snapshots so blended outputs are exactly reproducible.
type Blender struct {
	alpha float64
}

// NewBlender creates a blender. alpha is the learned-weight share and
// must lie in [0,1]; 0.7 is the calibrated default.
func NewBlender(alpha float64) (*Blender, error) {
	if alpha < 0 || alpha > 1 {
		return nil, errors.NewAppError(errors.ErrCodeConfigInvalid,
			"blend ratio must lie in [0,1]", nil)
	}
	return &Blender{alpha: alpha}, nil
}

// Alpha returns the learned-weight share.
func (b *Blender) Alpha() float64 {
	return b.alpha
}

// Blend combines learned weights with the regime affinity prior and
// renormalizes to sum 1. Experts absent from the prior keep only
// their learned share. A degenerate combination (zero total mass)
// falls back to the learned weights unchanged.
func (b *Blender) Blend(learned, prior map[string]float64) map[string]float64 {
	blended := make(map[string]float64, len(learned))
	var sum float64
	for id, lw := range learned {
		w := b.alpha*lw + (1-b.alpha)*prior[id]
		blended[id] = w
		sum += w
	}

	if sum <= 0 {
		for id, lw := range learned {
			blended[id] = lw
		}
		return blended
	}

	for id := range blended {
		blended[id] /= sum
	}
	return blended
}

// BlendVote recomputes the combined vote under blended weights using
// the vote's recorded per-expert signals.
func (b *Blender) BlendVote(vote *Vote, blended map[string]float64) *Vote {
	out := &Vote{
		Symbol:        vote.Symbol,
		Signals:       vote.Signals,
		Contributions: make(map[string]float64, len(blended)),
		Weights:       blended,
	}
	for id, signal := range vote.Signals {
		contribution := blended[id] * signal
		out.Contributions[id] = contribution
		out.Combined += contribution
	}
	out.Combined = clampSignal(out.Combined)
	return out
}
