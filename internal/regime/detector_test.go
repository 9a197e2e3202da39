package regime

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"qde/internal/testutils"
)

func newTestDetector(t *testing.T) *Detector {
	t.Helper()
	d, err := NewDetector(DefaultDetectorConfig())
	require.NoError(t, err)
	return d
}

func TestNewDetectorValidation(t *testing.T) {
	cfg := DefaultDetectorConfig()
	cfg.Lookback = 1
	_, err := NewDetector(cfg)
	assert.Error(t, err)

	cfg = DefaultDetectorConfig()
	cfg.ATRPeriod = cfg.Lookback
	_, err = NewDetector(cfg)
	assert.Error(t, err)

	cfg = DefaultDetectorConfig()
	cfg.TrendThreshold = 0
	_, err = NewDetector(cfg)
	assert.Error(t, err)
}

func TestClassifyShortWindowIsInsufficientData(t *testing.T) {
	d := newTestDetector(t)

	w := testutils.WindowFrom("X", testutils.FlatBars("X", 10, 100))
	c := d.Classify(w)

	assert.Equal(t, InsufficientData, c.Regime)
	assert.Zero(t, c.Confidence)
	assert.Equal(t, 10, c.Metrics.Bars)

	c = d.Classify(nil)
	assert.Equal(t, InsufficientData, c.Regime)
}

func TestClassifyFlatLowVolIsRanging(t *testing.T) {
	d := newTestDetector(t)

	w := testutils.WindowFrom("X", testutils.FlatBars("X", 60, 100))
	c := d.Classify(w)

	assert.Equal(t, Ranging, c.Regime)
	assert.Greater(t, c.Confidence, 0.5)
}

func TestClassifyTrendingUp(t *testing.T) {
	d := newTestDetector(t)

	w := testutils.WindowFrom("X", testutils.TrendingBars("X", 60, 100, 0.005))
	c := d.Classify(w)

	assert.Equal(t, TrendingUp, c.Regime)
	assert.Greater(t, c.Confidence, 0.0)
	assert.Greater(t, c.Metrics.TrendStrength, 0.0)
}

func TestClassifyTrendingDown(t *testing.T) {
	d := newTestDetector(t)

	w := testutils.WindowFrom("X", testutils.TrendingBars("X", 60, 100, -0.005))
	c := d.Classify(w)

	assert.Equal(t, TrendingDown, c.Regime)
	assert.Less(t, c.Metrics.TrendStrength, 0.0)
}

func TestClassifyVolatile(t *testing.T) {
	d := newTestDetector(t)

	w := testutils.WindowFrom("X", testutils.VolatileBars("X", 60, 100, 0.05))
	c := d.Classify(w)

	assert.Equal(t, Volatile, c.Regime)
}

func TestClassifyDeterministic(t *testing.T) {
	d := newTestDetector(t)
	w := testutils.WindowFrom("X", testutils.TrendingBars("X", 60, 100, 0.003))

	first := d.Classify(w)
	for i := 0; i < 10; i++ {
		again := d.Classify(w)
		assert.Equal(t, first, again)
	}
}
