package market

import (
	"context"
	"sort"
	"time"

	"golang.org/x/time/rate"
)

// ReplaySource serves pre-loaded bars in timestamp order. It stands in
// for a live data collaborator during simulation; an optional rate
// limiter paces requests the way a real upstream would enforce.
type ReplaySource struct {
	symbols []string
	steps   []time.Time
	bars    map[string]map[int64]*Bar
	limiter *rate.Limiter
}

// NewReplaySource builds a replay source from bars. Symbols keep their
// first-seen order so step iteration stays deterministic.
func NewReplaySource(bars []*Bar) *ReplaySource {
	s := &ReplaySource{
		bars: make(map[string]map[int64]*Bar),
	}

	seenSteps := make(map[int64]bool)
	for _, bar := range bars {
		bySymbol, ok := s.bars[bar.Symbol]
		if !ok {
			bySymbol = make(map[int64]*Bar)
			s.bars[bar.Symbol] = bySymbol
			s.symbols = append(s.symbols, bar.Symbol)
		}
		key := bar.Timestamp.UnixNano()
		bySymbol[key] = bar
		if !seenSteps[key] {
			seenSteps[key] = true
			s.steps = append(s.steps, bar.Timestamp)
		}
	}

	sort.Slice(s.steps, func(i, j int) bool {
		return s.steps[i].Before(s.steps[j])
	})
	return s
}

// WithRateLimit paces Bar calls to n requests per second.
func (s *ReplaySource) WithRateLimit(perSecond float64, burst int) *ReplaySource {
	s.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
	return s
}

// Bar returns the bar for symbol at ts, or ErrNoData.
func (s *ReplaySource) Bar(ctx context.Context, symbol string, ts time.Time) (*Bar, error) {
	if s.limiter != nil {
		if err := s.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	bySymbol, ok := s.bars[symbol]
	if !ok {
		return nil, ErrNoData
	}
	bar, ok := bySymbol[ts.UnixNano()]
	if !ok {
		return nil, ErrNoData
	}
	if !bar.Valid() {
		return nil, ErrNoData
	}
	return bar, nil
}

// Steps returns the ordered distinct timestamps the source covers.
func (s *ReplaySource) Steps() []time.Time {
	return s.steps
}

// Symbols returns the symbols in fixed order.
func (s *ReplaySource) Symbols() []string {
	return s.symbols
}
