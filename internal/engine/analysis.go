package engine

import (
	"sync"

	"qde/internal/indicator"
	"qde/internal/regime"
)

// analysis is the per-symbol read-only stage output: expert signals and
// regime classification plus the window-derived measures the portfolio
// stage needs. Computed concurrently, consumed in fixed symbol order.
type analysis struct {
	signals        map[string]float64
	classification regime.Classification
	atr            float64
	avgVolume      float64
	returns        []float64
}

// analyze fans the active symbols out across the worker pool. The
// read-only stage touches no shared portfolio state, so concurrency
// here cannot affect determinism; results are keyed by symbol and the
// caller iterates them in sorted order.
func (e *Engine) analyze(active []string) map[string]*analysis {
	results := make(map[string]*analysis, len(active))
	if len(active) == 0 {
		return results
	}

	workers := e.cfg.Run.Workers
	if workers > len(active) {
		workers = len(active)
	}

	jobs := make(chan string, len(active))
	var mu sync.Mutex
	var wg sync.WaitGroup

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for symbol := range jobs {
				res := e.analyzeSymbol(symbol)
				mu.Lock()
				results[symbol] = res
				mu.Unlock()
			}
		}()
	}

	for _, symbol := range active {
		jobs <- symbol
	}
	close(jobs)
	wg.Wait()

	return results
}

// analyzeSymbol evaluates every expert and the regime detector against
// the symbol's current window.
func (e *Engine) analyzeSymbol(symbol string) *analysis {
	w := e.windows[symbol]

	signals := make(map[string]float64, len(e.voter.Experts()))
	for _, expert := range e.voter.Experts() {
		signals[expert.ID] = expert.Signal(w)
	}

	return &analysis{
		signals:        signals,
		classification: e.detector.Classify(w),
		atr:            indicator.ATR(w.Bars(), e.cfg.Regime.ATRPeriod),
		avgVolume:      indicator.Mean(w.Volumes()),
		returns:        indicator.LogReturns(w.Closes()),
	}
}
