package audit

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	recordsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "qde_audit_records_total",
		Help: "Audit records appended, by kind",
	}, []string{"kind"})

	sinkErrorsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "qde_audit_sink_errors_total",
		Help: "Audit sink write failures",
	})

	// DecisionDuration observes wall time of one full decision cycle.
	DecisionDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "qde_decision_cycle_seconds",
		Help:    "Duration of one decision cycle",
		Buckets: prometheus.DefBuckets,
	})

	// RiskRejections counts gate rejections by failed check.
	RiskRejections = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "qde_risk_rejections_total",
		Help: "Risk gate rejections, by failed check",
	}, []string{"check"})

	// EquityGauge tracks settled portfolio equity.
	EquityGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "qde_portfolio_equity",
		Help: "Settled portfolio equity",
	})

	// DrawdownGauge tracks current drawdown from peak.
	DrawdownGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "qde_portfolio_drawdown",
		Help: "Current drawdown from peak equity",
	})

	// ExpertWeight tracks the ensemble weight per expert.
	ExpertWeight = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "qde_expert_weight",
		Help: "Current ensemble weight, by expert",
	}, []string{"expert"})
)
