package market

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testBar(symbol string, day int, close float64) *Bar {
	return &Bar{
		Symbol:    symbol,
		Timestamp: time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC).Add(time.Duration(day) * 24 * time.Hour),
		Open:      close,
		High:      close * 1.01,
		Low:       close * 0.99,
		Close:     close,
		Volume:    1000,
	}
}

func TestBarValid(t *testing.T) {
	assert.True(t, testBar("X", 0, 100).Valid())

	bad := testBar("X", 0, 100)
	bad.Low = 0
	assert.False(t, bad.Valid())

	bad = testBar("X", 0, 100)
	bad.High, bad.Low = 90, 110 // inverted range
	assert.False(t, bad.Valid())

	bad = testBar("X", 0, 100)
	bad.Timestamp = time.Time{}
	assert.False(t, bad.Valid())
}

func TestWindowEvictsOldest(t *testing.T) {
	w := NewWindow("X", 3)
	for i := 0; i < 5; i++ {
		w.Push(testBar("X", i, float64(100+i)))
	}

	assert.Equal(t, 3, w.Len())
	assert.True(t, w.Full())
	assert.Equal(t, []float64{102, 103, 104}, w.Closes())
	assert.InDelta(t, 104, w.Last().Close, 1e-12)
}

func TestWindowCloneIsIndependent(t *testing.T) {
	w := NewWindow("X", 5)
	for i := 0; i < 3; i++ {
		w.Push(testBar("X", i, float64(100+i)))
	}

	clone := w.Clone()
	w.Push(testBar("X", 3, 200))

	assert.Equal(t, 3, clone.Len())
	assert.Equal(t, 4, w.Len())
	assert.InDelta(t, 102, clone.Last().Close, 1e-12)
}

func TestReplaySourceOrdering(t *testing.T) {
	bars := []*Bar{
		testBar("MSFT", 1, 200),
		testBar("AAPL", 0, 100),
		testBar("AAPL", 1, 101),
		testBar("MSFT", 0, 199),
	}
	s := NewReplaySource(bars)

	steps := s.Steps()
	require.Len(t, steps, 2)
	assert.True(t, steps[0].Before(steps[1]), "steps must be time-ordered")
	assert.Equal(t, []string{"MSFT", "AAPL"}, s.Symbols(), "symbols keep first-seen order")
}

func TestReplaySourceBarLookup(t *testing.T) {
	s := NewReplaySource([]*Bar{testBar("AAPL", 0, 100)})
	ctx := context.Background()

	bar, err := s.Bar(ctx, "AAPL", s.Steps()[0])
	require.NoError(t, err)
	assert.InDelta(t, 100, bar.Close, 1e-12)

	_, err = s.Bar(ctx, "MSFT", s.Steps()[0])
	assert.ErrorIs(t, err, ErrNoData)

	_, err = s.Bar(ctx, "AAPL", s.Steps()[0].Add(time.Hour))
	assert.ErrorIs(t, err, ErrNoData)
}

func TestReplaySourceInvalidBarIsGap(t *testing.T) {
	bad := testBar("AAPL", 0, 100)
	bad.Low = -1
	s := NewReplaySource([]*Bar{bad})

	_, err := s.Bar(context.Background(), "AAPL", bad.Timestamp)
	assert.ErrorIs(t, err, ErrNoData)
}

func TestReplaySourceRateLimitHonorsCancel(t *testing.T) {
	s := NewReplaySource([]*Bar{testBar("AAPL", 0, 100)}).WithRateLimit(0.0001, 1)

	ctx, cancel := context.WithCancel(context.Background())
	ts := s.Steps()[0]

	// First call consumes the burst token.
	_, err := s.Bar(ctx, "AAPL", ts)
	require.NoError(t, err)

	cancel()
	_, err = s.Bar(ctx, "AAPL", ts)
	assert.Error(t, err)
}
