package ensemble

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewBlenderValidation(t *testing.T) {
	_, err := NewBlender(-0.1)
	assert.Error(t, err)
	_, err = NewBlender(1.1)
	assert.Error(t, err)

	b, err := NewBlender(0.7)
	require.NoError(t, err)
	assert.Equal(t, 0.7, b.Alpha())
}

func TestBlendMixesLearnedAndPrior(t *testing.T) {
	b, err := NewBlender(0.7)
	require.NoError(t, err)

	learned := map[string]float64{"a": 0.6, "b": 0.4}
	prior := map[string]float64{"a": 0.2, "b": 0.8}

	blended := b.Blend(learned, prior)

	// 0.7*0.6 + 0.3*0.2 = 0.48, 0.7*0.4 + 0.3*0.8 = 0.52.
	assert.InDelta(t, 0.48, blended["a"], 1e-12)
	assert.InDelta(t, 0.52, blended["b"], 1e-12)
}

func TestBlendAlphaExtremes(t *testing.T) {
	learned := map[string]float64{"a": 0.9, "b": 0.1}
	prior := map[string]float64{"a": 0.5, "b": 0.5}

	pureLearned, err := NewBlender(1.0)
	require.NoError(t, err)
	out := pureLearned.Blend(learned, prior)
	assert.InDelta(t, 0.9, out["a"], 1e-12)

	purePrior, err := NewBlender(0.0)
	require.NoError(t, err)
	out = purePrior.Blend(learned, prior)
	assert.InDelta(t, 0.5, out["a"], 1e-12)
}

func TestBlendZeroMassFallsBackToLearned(t *testing.T) {
	b, err := NewBlender(0.0)
	require.NoError(t, err)

	learned := map[string]float64{"a": 0.7, "b": 0.3}
	out := b.Blend(learned, map[string]float64{}) // prior contributes nothing

	assert.InDelta(t, 0.7, out["a"], 1e-12)
	assert.InDelta(t, 0.3, out["b"], 1e-12)
}

func TestBlendVoteRecomputesCombined(t *testing.T) {
	b, err := NewBlender(0.7)
	require.NoError(t, err)

	vote := &Vote{
		Symbol:  "AAPL",
		Signals: map[string]float64{"a": 1.0, "b": -1.0},
	}
	blended := b.BlendVote(vote, map[string]float64{"a": 0.8, "b": 0.2})

	assert.InDelta(t, 0.6, blended.Combined, 1e-12)
	assert.Equal(t, "AAPL", blended.Symbol)
	assert.InDelta(t, 0.8, blended.Contributions["a"], 1e-12)
	assert.InDelta(t, -0.2, blended.Contributions["b"], 1e-12)
}
