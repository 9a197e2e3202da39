package engine

import (
	"fmt"
	"time"

	"qde/internal/audit"
	"qde/internal/indicator"
	"qde/internal/ledger"
	"qde/internal/regime"
	"qde/internal/risk"
	"qde/internal/sizing"
)

// Action is the outcome of one symbol's decision cycle.
type Action string

const (
	ActionBuy      Action = "buy"
	ActionSell     Action = "sell"
	ActionHold     Action = "hold"
	ActionRejected Action = "rejected"
	ActionSkipped  Action = "skipped"
)

// Decision is the per-symbol cycle outcome surfaced by the status API
// and the audit trail.
type Decision struct {
	Timestamp  time.Time     `json:"timestamp"`
	Symbol     string        `json:"symbol"`
	Action     Action        `json:"action"`
	Vote       float64       `json:"vote"`
	Regime     regime.Regime `json:"regime"`
	Confidence float64       `json:"confidence"`
	Shares     int64         `json:"shares,omitempty"`
	FillPrice  float64       `json:"fill_price,omitempty"`
	Reason     string        `json:"reason,omitempty"`
}

// decide runs the serialized portfolio stage for one symbol: blend the
// learned weights with the regime prior, then gate, size and execute.
func (e *Engine) decide(ts time.Time, symbol string, res *analysis, prices map[string]float64) {
	vote := e.voter.Vote(symbol, res.signals)
	prior := e.affinity.Prior(res.classification.Regime)
	blended := e.blender.BlendVote(vote, e.blender.Blend(vote.Weights, prior))

	decision := &Decision{
		Timestamp:  ts,
		Symbol:     symbol,
		Action:     ActionHold,
		Vote:       blended.Combined,
		Regime:     res.classification.Regime,
		Confidence: res.classification.Confidence,
	}

	switch {
	case e.book.Holds(symbol) && blended.Combined <= e.cfg.Run.ExitVote:
		e.closePosition(ts, symbol, res, prices, decision)
	case blended.Combined >= e.cfg.Run.EntryVote:
		e.openPosition(ts, symbol, res, prices, blended.Combined, decision)
	}

	params := make(map[string]map[string]float64, len(e.voter.Experts()))
	for _, expert := range e.voter.Experts() {
		params[expert.ID] = expert.Params()
	}

	e.auditLog.Append(ts, audit.KindDecision, symbol, string(decision.Action),
		map[string]interface{}{
			"vote":          blended.Combined,
			"regime":        string(res.classification.Regime),
			"confidence":    res.classification.Confidence,
			"signals":       vote.Signals,
			"weights":       blended.Weights,
			"contributions": blended.Contributions,
			"params":        params,
			"shares":        decision.Shares,
			"reason":        decision.Reason,
		})
	e.status.record(decision)
}

// closePosition liquidates the full holding at the step price.
func (e *Engine) closePosition(ts time.Time, symbol string, res *analysis, prices map[string]float64, decision *Decision) {
	fill := e.book.Execute(&ledger.Order{
		Symbol:    symbol,
		Side:      ledger.SideSell,
		Shares:    e.book.PositionQuantity(symbol),
		RefPrice:  prices[symbol],
		AvgVolume: res.avgVolume,
	})
	if fill == nil {
		decision.Reason = "sell produced no fill"
		return
	}

	decision.Action = ActionSell
	decision.Shares = fill.Shares
	decision.FillPrice = fill.Price
	e.auditLog.Append(ts, audit.KindFill, symbol, "position closed",
		map[string]interface{}{
			"shares":       fill.Shares,
			"price":        fill.Price,
			"slippage":     fill.Slippage,
			"fee":          fill.Fee,
			"realized_pnl": fill.RealizedPnL,
		})
}

// openPosition runs the risk gate and, if admitted, sizes and executes
// the entry. A gate rejection is a normal outcome, recorded and done.
func (e *Engine) openPosition(ts time.Time, symbol string, res *analysis, prices map[string]float64, combined float64, decision *Decision) {
	entry := prices[symbol]
	if res.atr <= 0 || entry <= 0 {
		decision.Action = ActionSkipped
		decision.Reason = "degenerate ATR, entry skipped"
		e.auditLog.Warn(ts, symbol, "ATR degenerate, entry skipped this cycle",
			map[string]interface{}{"atr": res.atr, "entry": entry})
		return
	}

	refStop := res.atr * e.cfg.Sizing.ATRMultiple
	baseShares := e.book.Equity() * e.cfg.Sizing.RiskFraction / refStop

	verdict := e.gate.Evaluate(
		&risk.Candidate{
			Symbol:   symbol,
			Notional: baseShares * entry,
			Returns:  res.returns,
		},
		e.portfolioView(symbol, prices),
	)
	for _, warning := range verdict.Warnings {
		e.auditLog.Warn(ts, symbol, warning, nil)
	}
	if !verdict.Allowed {
		decision.Action = ActionRejected
		decision.Reason = verdict.Reason
		audit.RiskRejections.WithLabelValues(string(verdict.Failed)).Inc()
		e.auditLog.Append(ts, audit.KindRiskRejection, symbol, verdict.Reason,
			map[string]interface{}{"check": string(verdict.Failed)})
		return
	}

	sized := e.sizer.Size(sizing.Input{
		Symbol:     symbol,
		Vote:       combined,
		Entry:      entry,
		ATR:        res.atr,
		VolFactor:  e.volFactor(res.classification.Metrics.Volatility),
		Equity:     e.book.Equity(),
		Cash:       e.book.Cash(),
		ScaleHint:  verdict.ScaleHint,
		WinStreak:  e.book.WinStreak(),
		LossStreak: e.book.LossStreak(),
		Recovered:  e.book.RecoveredFromTrough(),
	})
	if sized.Shares <= 0 {
		decision.Reason = "sized to zero shares"
		return
	}

	fill := e.book.Execute(&ledger.Order{
		Symbol:    symbol,
		Side:      ledger.SideBuy,
		Shares:    sized.Shares,
		RefPrice:  entry,
		AvgVolume: res.avgVolume,
	})
	if fill == nil {
		decision.Reason = "insufficient cash for entry"
		return
	}

	decision.Action = ActionBuy
	decision.Shares = fill.Shares
	decision.FillPrice = fill.Price
	e.auditLog.Append(ts, audit.KindFill, symbol, "position opened",
		map[string]interface{}{
			"shares":     fill.Shares,
			"price":      fill.Price,
			"slippage":   fill.Slippage,
			"fee":        fill.Fee,
			"stop_price": sized.StopPrice,
			"multiplier": sized.Multiplier,
			"components": sized.Components,
		})
}

// portfolioView assembles the read-only snapshot the risk gate checks
// against.
func (e *Engine) portfolioView(candidate string, prices map[string]float64) *risk.PortfolioView {
	held := e.book.HeldSymbols()
	heldReturns := make(map[string][]float64, len(held))
	for _, symbol := range held {
		if w, ok := e.windows[symbol]; ok {
			heldReturns[symbol] = indicator.LogReturns(w.Closes())
		}
	}

	return &risk.PortfolioView{
		Equity:         e.book.Equity(),
		PeakEquity:     e.book.PeakEquity(),
		Exposure:       e.book.Exposure(prices),
		OpenPositions:  e.book.OpenPositions(),
		HeldReturns:    heldReturns,
		HoldsCandidate: e.book.Holds(candidate),
	}
}

// String implements fmt.Stringer for log readability.
func (d *Decision) String() string {
	return fmt.Sprintf("%s %s vote=%.4f regime=%s shares=%d",
		d.Symbol, d.Action, d.Vote, d.Regime, d.Shares)
}
