package engine

import (
	"sync"
	"time"

	"qde/internal/ledger"
)

// maxDecisionTail bounds the recent-decision ring served by the API.
const maxDecisionTail = 500

// Status is a point-in-time view of the run for the HTTP surface.
type Status struct {
	RunID         string             `json:"run_id"`
	CurrentStep   time.Time          `json:"current_step"`
	StepsDone     int                `json:"steps_done"`
	StepsTotal    int                `json:"steps_total"`
	Equity        float64            `json:"equity"`
	Cash          float64            `json:"cash"`
	PeakEquity    float64            `json:"peak_equity"`
	Drawdown      float64            `json:"drawdown"`
	OpenPositions int                `json:"open_positions"`
	Weights       map[string]float64 `json:"weights"`
	Learning      bool               `json:"learning"`
}

// statusBoard is the mutex-guarded run state shared with the API.
type statusBoard struct {
	status Status
	recent []*Decision
	mu     sync.RWMutex
}

func newStatusBoard(runID string, stepsTotal int) *statusBoard {
	return &statusBoard{
		status: Status{RunID: runID, StepsTotal: stepsTotal},
	}
}

// advance publishes the settled step.
func (b *statusBoard) advance(ts time.Time, point ledger.EquityPoint, positions int, weights map[string]float64, learning bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.status.CurrentStep = ts
	b.status.StepsDone++
	b.status.Equity = point.Equity
	b.status.Cash = point.Cash
	b.status.Drawdown = point.Drawdown
	if point.Equity > b.status.PeakEquity {
		b.status.PeakEquity = point.Equity
	}
	b.status.OpenPositions = positions
	b.status.Weights = weights
	b.status.Learning = learning
}

// record appends a decision to the bounded recent ring.
func (b *statusBoard) record(d *Decision) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.recent = append(b.recent, d)
	if len(b.recent) > maxDecisionTail {
		b.recent = b.recent[len(b.recent)-maxDecisionTail:]
	}
}

// snapshot returns a copy of the current status.
func (b *statusBoard) snapshot() Status {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := b.status
	if b.status.Weights != nil {
		out.Weights = make(map[string]float64, len(b.status.Weights))
		for k, v := range b.status.Weights {
			out.Weights[k] = v
		}
	}
	return out
}

// decisions returns up to limit most recent decisions, newest last.
func (b *statusBoard) decisions(limit int) []*Decision {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if limit <= 0 || limit > len(b.recent) {
		limit = len(b.recent)
	}
	out := make([]*Decision, limit)
	copy(out, b.recent[len(b.recent)-limit:])
	return out
}
