package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"qde/internal/audit"
	"qde/internal/config"
	"qde/internal/logger"
	"qde/internal/market"
	"qde/internal/store"
	"qde/internal/testutils"
)

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Run.ID = "11111111-2222-3333-4444-555555555555"
	cfg.Run.WindowSize = 40
	cfg.Regime.Lookback = 30
	cfg.API.Enabled = false
	cfg.Store.Checkpoint.Enabled = false
	return cfg
}

func testSource() *market.ReplaySource {
	bars := append(
		testutils.TrendingBars("AAPL", 120, 100, 0.004),
		testutils.TrendingBars("MSFT", 120, 300, -0.002)...,
	)
	return market.NewReplaySource(bars)
}

func runOnce(t *testing.T, learning bool) (*Engine, *store.MemoryStore) {
	t.Helper()
	cfg := testConfig()
	cfg.Ensemble.Learning = learning

	sink := store.NewMemoryStore()
	eng, err := New(cfg, testSource(), sink, nil, logger.NewNopLogger())
	require.NoError(t, err)
	require.NoError(t, eng.Run(context.Background()))
	return eng, sink
}

func TestNewValidatesComponents(t *testing.T) {
	cfg := testConfig()
	cfg.Ensemble.Floor = 0.5 // floor x 4 experts >= 1
	_, err := New(cfg, testSource(), store.NewMemoryStore(), nil, logger.NewNopLogger())
	assert.Error(t, err)
}

func TestRunProcessesEveryStep(t *testing.T) {
	eng, _ := runOnce(t, true)

	status := eng.Status()
	assert.Equal(t, 120, status.StepsDone)
	assert.Equal(t, 120, status.StepsTotal)
	assert.Positive(t, status.Equity)
	assert.GreaterOrEqual(t, status.PeakEquity, status.Equity)
	testutils.RequireWeightsSum(t, status.Weights)
}

func TestReplayWithLearningOffIsBitIdentical(t *testing.T) {
	first, sink1 := runOnce(t, false)
	second, sink2 := runOnce(t, false)

	assert.Equal(t, first.Status().Equity, second.Status().Equity)
	assert.Equal(t, first.Status().Weights, second.Status().Weights)

	d1 := first.Decisions(0)
	d2 := second.Decisions(0)
	require.Equal(t, len(d1), len(d2))
	for i := range d1 {
		assert.Equal(t, *d1[i], *d2[i], "decision %d diverged between identical replays", i)
	}

	r1 := sink1.Records()
	r2 := sink2.Records()
	require.Equal(t, len(r1), len(r2))
	for i := range r1 {
		assert.Equal(t, *r1[i], *r2[i], "audit record %d diverged between identical replays", i)
	}
}

func TestNewRejectsInvalidRunSettings(t *testing.T) {
	cfg := testConfig()
	cfg.Run.Workers = 0
	_, err := New(cfg, testSource(), store.NewMemoryStore(), nil, logger.NewNopLogger())
	assert.Error(t, err)
}

func TestDecisionRecordsCarryParameterSnapshot(t *testing.T) {
	_, sink := runOnce(t, true)

	var found bool
	for _, r := range sink.Records() {
		if r.Kind != audit.KindDecision {
			continue
		}
		found = true
		params, ok := r.Details["params"].(map[string]map[string]float64)
		require.True(t, ok, "decision details must carry the active parameters")
		require.Contains(t, params, "momentum")
		assert.NotEmpty(t, params["momentum"])
	}
	assert.True(t, found, "a full run must produce decision records")
}

func TestCancelledFetchIsNotADataGap(t *testing.T) {
	cfg := testConfig()
	source := testSource().WithRateLimit(1, 1)
	sink := store.NewMemoryStore()
	eng, err := New(cfg, source, sink, nil, logger.NewNopLogger())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	active, _ := eng.fetch(ctx, source.Steps()[0])
	assert.Empty(t, active)
	for _, r := range sink.Records() {
		assert.NotEqual(t, "data gap, symbol skipped this cycle", r.Summary,
			"cancellation must not be attributed to missing data")
	}
}

func TestLearningShiftsWeights(t *testing.T) {
	eng, _ := runOnce(t, true)

	weights := eng.Status().Weights
	testutils.RequireWeightsSum(t, weights)

	uniform := true
	for _, w := range weights {
		if w != weights["momentum"] {
			uniform = false
		}
	}
	assert.False(t, uniform, "a long directional run must move the weights off uniform")
}

func TestDataGapSkipsSymbolOnly(t *testing.T) {
	aapl := testutils.TrendingBars("AAPL", 80, 100, 0.003)
	msft := testutils.TrendingBars("MSFT", 80, 300, 0.003)
	// Knock a hole in the middle of MSFT's series.
	msft = append(msft[:40], msft[45:]...)

	cfg := testConfig()
	sink := store.NewMemoryStore()
	eng, err := New(cfg, market.NewReplaySource(append(aapl, msft...)), sink, nil, logger.NewNopLogger())
	require.NoError(t, err)
	require.NoError(t, eng.Run(context.Background()))

	assert.Equal(t, 80, eng.Status().StepsDone, "a gap must not stall the run")

	var gaps int
	for _, r := range sink.Records() {
		if r.Kind == audit.KindWarning && r.Symbol == "MSFT" && r.Summary == "data gap, symbol skipped this cycle" {
			gaps++
		}
	}
	assert.Equal(t, 5, gaps, "each missing bar leaves one warning")
}

func TestCancellationStopsAtStepBoundary(t *testing.T) {
	cfg := testConfig()
	eng, err := New(cfg, testSource(), store.NewMemoryStore(), nil, logger.NewNopLogger())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err = eng.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, eng.Status().StepsDone)
}

func TestRestoreSeedsLearnedState(t *testing.T) {
	cfg := testConfig()
	eng, err := New(cfg, testSource(), store.NewMemoryStore(), nil, logger.NewNopLogger())
	require.NoError(t, err)

	cp := &store.Checkpoint{
		RunID:   cfg.Run.ID,
		SavedAt: time.Now().UTC(),
		Weights: map[string]float64{
			"momentum":       0.40,
			"mean_reversion": 0.30,
			"breakout":       0.20,
			"volume":         0.10,
		},
		Params:    map[string]map[string]float64{"momentum": {"fast_period": 12}},
		LastTuned: 202410,
	}
	require.NoError(t, eng.Restore(cp))

	saved := eng.checkpoint()
	assert.InDelta(t, 0.40, saved.Weights["momentum"], 1e-12)
	assert.InDelta(t, 12, saved.Params["momentum"]["fast_period"], 1e-12)
	assert.Equal(t, 202410, saved.LastTuned)

	bad := &store.Checkpoint{Weights: map[string]float64{"momentum": 1}}
	assert.Error(t, eng.Restore(bad))
}
