// Package engine runs the decision loop: fetch, vote, classify, blend,
// gate, size, execute, settle, learn, audit. One step settles fully
// before the next begins; cancellation is honored only at step
// boundaries so no step is left half-applied.
package engine

import (
	"context"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/robfig/cron/v3"

	"qde/internal/audit"
	"qde/internal/config"
	"qde/internal/ensemble"
	"qde/internal/ledger"
	"qde/internal/logger"
	"qde/internal/market"
	"qde/internal/regime"
	"qde/internal/risk"
	"qde/internal/sizing"
	"qde/internal/store"
	"qde/internal/tuner"
)

// maxTunerSamples bounds the scoring history kept for recalibration.
const maxTunerSamples = 512

// Engine owns every component of one simulation run.
type Engine struct {
	cfg    *config.Config
	runID  string
	source market.DataSource

	symbols  []string
	windows  map[string]*market.Window
	voter    *ensemble.Voter
	detector *regime.Detector
	affinity regime.AffinityTable
	blender  *ensemble.Blender
	gate     *risk.Aggregator
	sizer    *sizing.Sizer
	book     *ledger.Ledger
	tuner    *tuner.Tuner
	auditLog *audit.Log
	ckpt     *store.CheckpointStore
	log      logger.Logger
	cron     *cron.Cron

	// carried between steps for the learning stage
	prevSignals map[string]map[string]float64
	prevCloses  map[string]float64
	prevWindows map[string]*market.Window
	samples     []tuner.Sample

	status *statusBoard
}

// New wires a complete engine from configuration. Any component
// rejecting its settings fails construction.
func New(cfg *config.Config, source market.DataSource, sink store.EventStore, ckpt *store.CheckpointStore, log logger.Logger) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	runID := cfg.Run.ID
	if runID == "" {
		runID = uuid.New().String()
	}
	if log == nil {
		log = logger.NewNopLogger()
	}
	log = log.WithField("run_id", runID)

	experts := ensemble.DefaultExperts()
	voter, err := ensemble.NewVoter(experts, cfg.Ensemble.Eta, cfg.Ensemble.Floor)
	if err != nil {
		return nil, err
	}
	voter.SetLearning(cfg.Ensemble.Learning)

	detector, err := regime.NewDetector(cfg.Regime)
	if err != nil {
		return nil, err
	}

	affinity := regime.DefaultAffinityTable()
	if err := affinity.Validate(experts); err != nil {
		return nil, err
	}

	blender, err := ensemble.NewBlender(cfg.Ensemble.BlendAlpha)
	if err != nil {
		return nil, err
	}

	gate, err := risk.NewAggregator(cfg.Risk)
	if err != nil {
		return nil, err
	}

	sizer, err := sizing.NewSizer(cfg.Sizing)
	if err != nil {
		return nil, err
	}

	book, err := ledger.New(cfg.Ledger)
	if err != nil {
		return nil, err
	}

	auditLog := audit.NewLog(runID, cfg.Audit.MaxRecords, sink, log)

	tn, err := tuner.New(cfg.Tuner, auditLog, log)
	if err != nil {
		return nil, err
	}

	symbols := append([]string(nil), source.Symbols()...)
	sort.Strings(symbols)

	windows := make(map[string]*market.Window, len(symbols))
	for _, s := range symbols {
		windows[s] = market.NewWindow(s, cfg.Run.WindowSize)
	}

	return &Engine{
		cfg:         cfg,
		runID:       runID,
		source:      source,
		symbols:     symbols,
		windows:     windows,
		voter:       voter,
		detector:    detector,
		affinity:    affinity,
		blender:     blender,
		gate:        gate,
		sizer:       sizer,
		book:        book,
		tuner:       tn,
		auditLog:    auditLog,
		ckpt:        ckpt,
		log:         log,
		prevSignals: make(map[string]map[string]float64),
		prevCloses:  make(map[string]float64),
		prevWindows: make(map[string]*market.Window),
		status:      newStatusBoard(runID, len(source.Steps())),
	}, nil
}

// RunID returns the run identifier.
func (e *Engine) RunID() string { return e.runID }

// AuditLog exposes the audit trail for the status API.
func (e *Engine) AuditLog() *audit.Log { return e.auditLog }

// Status returns the current status snapshot.
func (e *Engine) Status() Status { return e.status.snapshot() }

// Decisions returns up to limit most recent decisions.
func (e *Engine) Decisions(limit int) []*Decision { return e.status.decisions(limit) }

// Restore seeds learned state from a checkpoint.
func (e *Engine) Restore(cp *store.Checkpoint) error {
	if cp == nil {
		return nil
	}
	if err := e.voter.Restore(cp.Weights); err != nil {
		return err
	}
	for _, expert := range e.voter.Experts() {
		params, ok := cp.Params[expert.ID]
		if !ok {
			continue
		}
		for name, value := range params {
			expert.SetParam(name, value)
		}
	}
	e.tuner.RestoreLastTunedWeek(cp.LastTuned)
	e.log.Info("restored checkpoint", "saved_at", cp.SavedAt)
	return nil
}

// checkpoint builds the restorable learned-state snapshot.
func (e *Engine) checkpoint() *store.Checkpoint {
	params := make(map[string]map[string]float64)
	for _, expert := range e.voter.Experts() {
		params[expert.ID] = expert.Params()
	}
	return &store.Checkpoint{
		RunID:     e.runID,
		SavedAt:   time.Now().UTC(),
		Weights:   e.voter.Weights(),
		Params:    params,
		LastTuned: e.tuner.LastTunedWeek(),
	}
}

// Run drives the step loop over every timestamp the source covers.
// Cancellation is checked between steps only.
func (e *Engine) Run(ctx context.Context) error {
	ctx = context.WithValue(ctx, logger.ContextKeyRunID, e.runID)
	e.log.Info("run starting", "symbols", len(e.symbols), "steps", len(e.source.Steps()))

	if e.ckpt != nil && e.cfg.Store.Checkpoint.Enabled && e.cfg.Run.StepPace > 0 {
		e.cron = cron.New()
		interval := e.cfg.Store.Checkpoint.Interval
		if interval <= 0 {
			interval = 5 * time.Minute
		}
		e.cron.Schedule(cron.Every(interval), cron.FuncJob(func() {
			cp := e.checkpoint()
			if err := e.ckpt.Save(context.Background(), cp); err != nil {
				e.log.Error("scheduled checkpoint failed", "error", err)
				return
			}
			e.auditLog.Append(cp.SavedAt, audit.KindCheckpoint, "", "learned state checkpointed",
				map[string]interface{}{"weights": cp.Weights})
		}))
		e.cron.Start()
		defer e.cron.Stop()
	}

	for _, ts := range e.source.Steps() {
		select {
		case <-ctx.Done():
			e.log.Warn("run cancelled", "at", ts)
			return ctx.Err()
		default:
		}

		e.step(ctx, ts)

		if e.cfg.Run.StepPace > 0 {
			timer := time.NewTimer(e.cfg.Run.StepPace)
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
		}
	}

	if e.ckpt != nil && e.cfg.Store.Checkpoint.Enabled {
		cp := e.checkpoint()
		if err := e.ckpt.Save(ctx, cp); err != nil {
			e.log.Error("final checkpoint failed", "error", err)
		} else {
			e.auditLog.Append(cp.SavedAt, audit.KindCheckpoint, "", "final checkpoint saved",
				map[string]interface{}{"weights": cp.Weights})
		}
	}

	e.log.Info("run complete",
		"equity", e.book.Equity(),
		"peak", e.book.PeakEquity(),
		"positions", e.book.OpenPositions())
	return nil
}

// step executes one full decision cycle at ts.
func (e *Engine) step(ctx context.Context, ts time.Time) {
	timer := prometheus.NewTimer(audit.DecisionDuration)
	defer timer.ObserveDuration()

	active, prices := e.fetch(ctx, ts)
	results := e.analyze(active)

	for _, symbol := range active {
		res, ok := results[symbol]
		if !ok {
			continue
		}
		e.decide(ts, symbol, res, prices)
	}

	point := e.book.Settle(ts, prices)
	audit.EquityGauge.Set(point.Equity)
	audit.DrawdownGauge.Set(point.Drawdown)

	e.learn(ts, active, prices)

	if e.tuner.MaybeTune(ts, e.voter.Experts(), e.samples) {
		e.log.Info("weekly recalibration completed", "at", ts)
	}

	e.rememberStep(active, results, prices)
	e.status.advance(ts, point, e.book.OpenPositions(), e.voter.Weights(), e.voter.LearningEnabled())
}

// fetch pulls the step's bar for every symbol. A data gap skips only
// that symbol for this cycle, with a warning in the audit trail.
// Cancellation mid-fetch stops the remaining lookups without recording
// them as gaps; the run loop surfaces the cancellation itself.
func (e *Engine) fetch(ctx context.Context, ts time.Time) (active []string, prices map[string]float64) {
	prices = make(map[string]float64, len(e.symbols))
	for _, symbol := range e.symbols {
		bar, err := e.source.Bar(ctx, symbol, ts)
		if err != nil {
			if ctx.Err() != nil {
				e.log.Warn("bar fetch interrupted", "symbol", symbol, "at", ts)
				break
			}
			e.auditLog.Warn(ts, symbol, "data gap, symbol skipped this cycle",
				map[string]interface{}{"error": err.Error()})
			continue
		}
		e.windows[symbol].Push(bar)
		prices[symbol] = bar.Close
		active = append(active, symbol)
	}
	return active, prices
}

// learn converts the step's realized moves into expert rewards and
// applies the multiplicative weight update. Rewards are averaged over
// the symbols that had both a prior signal and a prior close.
func (e *Engine) learn(ts time.Time, active []string, prices map[string]float64) {
	combined := make(map[string]float64)
	var scored int

	for _, symbol := range active {
		prev, ok := e.prevSignals[symbol]
		if !ok {
			continue
		}
		prevClose, ok := e.prevCloses[symbol]
		if !ok || prevClose <= 0 {
			continue
		}
		move := (prices[symbol] - prevClose) / prevClose
		for id, r := range e.book.Rewards(prev, move) {
			combined[id] += r
		}
		scored++

		if w := e.prevWindows[symbol]; w != nil {
			e.samples = append(e.samples, tuner.Sample{Window: w, NextMove: move})
		}
	}
	if len(e.samples) > maxTunerSamples {
		e.samples = e.samples[len(e.samples)-maxTunerSamples:]
	}
	if scored == 0 {
		return
	}

	for id := range combined {
		combined[id] /= float64(scored)
	}

	if degenerate := e.voter.Update(combined); degenerate {
		e.auditLog.Warn(ts, "", "weight update degenerated, uniform weights restored",
			map[string]interface{}{"rewards": combined})
	}

	weights := e.voter.Weights()
	for id, w := range weights {
		audit.ExpertWeight.WithLabelValues(id).Set(w)
	}
	e.auditLog.Append(ts, audit.KindWeightUpdate, "", "ensemble weights updated",
		map[string]interface{}{"weights": weights})
}

// rememberStep freezes this cycle's signals, closes and windows for the
// next cycle's learning stage.
func (e *Engine) rememberStep(active []string, results map[string]*analysis, prices map[string]float64) {
	for _, symbol := range active {
		res, ok := results[symbol]
		if !ok {
			continue
		}
		e.prevSignals[symbol] = res.signals
		e.prevCloses[symbol] = prices[symbol]
		e.prevWindows[symbol] = e.windows[symbol].Clone()
	}
}

// volFactor expresses the window's relative volatility against the
// midpoint of the high-volatility threshold, clamped to a sane band.
func (e *Engine) volFactor(relVol float64) float64 {
	baseline := e.cfg.Regime.HighVolThreshold / 2
	if baseline <= 0 || relVol <= 0 {
		return 1
	}
	factor := relVol / baseline
	return math.Max(0.25, math.Min(4, factor))
}
