// Package tuner recalibrates expert parameters once per ISO week with a
// bounded coordinate grid search over each parameter's declared range.
package tuner

import (
	"fmt"
	"math"
	"time"

	"qde/internal/audit"
	"qde/internal/ensemble"
	"qde/internal/errors"
	"qde/internal/logger"
	"qde/internal/market"
)

// Config bounds the search effort.
type Config struct {
	GridSteps  int `yaml:"grid_steps"`  // evaluation points per parameter
	MinSamples int `yaml:"min_samples"` // samples required before tuning runs
}

// DefaultConfig returns the calibrated defaults.
func DefaultConfig() Config {
	return Config{
		GridSteps:  5,
		MinSamples: 20,
	}
}

// Validate rejects a degenerate search grid.
func (c Config) Validate() error {
	if c.GridSteps < 2 {
		return errors.NewAppError(errors.ErrCodeConfigInvalid,
			"grid steps must be at least 2", nil)
	}
	if c.MinSamples < 1 {
		return errors.NewAppError(errors.ErrCodeConfigInvalid,
			"min samples must be at least 1", nil)
	}
	return nil
}

// Sample pairs a historical window with the price move that followed
// it. The tuner scores candidate parameters against these.
type Sample struct {
	Window   *market.Window
	NextMove float64 // pct move over the step after the window
}

// Tuner owns the weekly recalibration schedule and the grid search.
type Tuner struct {
	config   Config
	lastWeek int // ISO week marker of the last completed search
	auditLog *audit.Log
	log      logger.Logger
}

// New creates a tuner. The audit log is required: every adjustment must
// leave a before/after trail.
func New(config Config, auditLog *audit.Log, log logger.Logger) (*Tuner, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = logger.NewNopLogger()
	}
	return &Tuner{config: config, auditLog: auditLog, log: log}, nil
}

// weekMarker collapses a timestamp to a comparable ISO year-week value.
func weekMarker(ts time.Time) int {
	year, week := ts.ISOWeek()
	return year*100 + week
}

// LastTunedWeek returns the marker of the last completed search, for
// checkpointing. Zero means never tuned.
func (t *Tuner) LastTunedWeek() int {
	return t.lastWeek
}

// RestoreLastTunedWeek seeds the marker from a checkpoint.
func (t *Tuner) RestoreLastTunedWeek(marker int) {
	t.lastWeek = marker
}

// MaybeTune runs the search when ts falls in a new ISO week and enough
// samples exist. A second call within the same week is a no-op. Returns
// true when a search actually ran.
func (t *Tuner) MaybeTune(ts time.Time, experts []*ensemble.Expert, samples []Sample) bool {
	marker := weekMarker(ts)
	if marker == t.lastWeek {
		return false
	}
	if len(samples) < t.config.MinSamples {
		t.log.Debug("skipping recalibration, not enough samples",
			"have", len(samples), "need", t.config.MinSamples)
		return false
	}

	t.lastWeek = marker
	for _, expert := range experts {
		t.tuneExpert(ts, expert, samples)
	}
	return true
}

// tuneExpert searches each parameter's bounded range one at a time,
// holding the others fixed, and adopts the best-scoring value. The
// search order is the sorted parameter list so runs are reproducible.
func (t *Tuner) tuneExpert(ts time.Time, expert *ensemble.Expert, samples []Sample) {
	before := expert.Params()
	bounds := expert.Bounds()

	for _, name := range expert.ParamNames() {
		b, ok := bounds[name]
		if !ok || b[1] <= b[0] {
			continue
		}

		current := expert.Param(name, b[0])
		bestValue := current
		bestScore := t.score(expert, samples)

		step := (b[1] - b[0]) / float64(t.config.GridSteps-1)
		for i := 0; i < t.config.GridSteps; i++ {
			candidate := b[0] + float64(i)*step
			expert.SetParam(name, candidate)
			if score := t.score(expert, samples); score > bestScore {
				bestScore = score
				bestValue = candidate
			}
		}
		expert.SetParam(name, bestValue)
	}

	after := expert.Params()
	if paramsEqual(before, after) {
		return
	}

	t.log.Info("expert recalibrated", "expert", expert.ID)
	t.auditLog.Append(ts, audit.KindTuning, "",
		fmt.Sprintf("weekly recalibration adjusted %s", expert.ID),
		map[string]interface{}{
			"expert": expert.ID,
			"before": before,
			"after":  after,
		})
}

// score measures how well the expert's signals agreed with the moves
// that followed: the mean of signal x move across the sample set.
func (t *Tuner) score(expert *ensemble.Expert, samples []Sample) float64 {
	var sum float64
	var count int
	for _, s := range samples {
		if s.Window == nil {
			continue
		}
		sum += expert.Signal(s.Window) * s.NextMove
		count++
	}
	if count == 0 {
		return math.Inf(-1)
	}
	return sum / float64(count)
}

func paramsEqual(a, b map[string]float64) bool {
	if len(a) != len(b) {
		return false
	}
	for k, v := range a {
		if math.Abs(b[k]-v) > 1e-12 {
			return false
		}
	}
	return true
}
