// Package audit provides the append-only decision trail. Every cycle
// outcome, weight change, risk rejection and tuning adjustment is
// recorded; nothing is ever rewritten or deleted in place.
package audit

import (
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"qde/internal/logger"
)

// Kind classifies an audit record.
type Kind string

const (
	KindDecision      Kind = "decision"
	KindFill          Kind = "fill"
	KindRiskRejection Kind = "risk_rejection"
	KindWeightUpdate  Kind = "weight_update"
	KindTuning        Kind = "tuning"
	KindWarning       Kind = "warning"
	KindCheckpoint    Kind = "checkpoint"
)

// Record is one immutable audit entry.
type Record struct {
	ID        string                 `json:"id"`
	RunID     string                 `json:"run_id"`
	Timestamp time.Time              `json:"timestamp"`
	Step      time.Time              `json:"step"`
	Kind      Kind                   `json:"kind"`
	Symbol    string                 `json:"symbol,omitempty"`
	Summary   string                 `json:"summary"`
	Details   map[string]interface{} `json:"details,omitempty"`
}

// Sink receives every appended record, typically for durable storage.
// Sink errors are logged and never fail the append.
type Sink interface {
	Write(record *Record) error
}

// Log is the in-memory audit trail. It keeps the most recent maxRecords
// entries and forwards every append to the optional sink.
type Log struct {
	runID      string
	records    []*Record
	maxRecords int
	seq        uint64
	sink       Sink
	log        logger.Logger
	mu         sync.RWMutex
}

// NewLog creates an audit log for one run. maxRecords bounds the
// in-memory tail; zero or negative falls back to 10000.
func NewLog(runID string, maxRecords int, sink Sink, log logger.Logger) *Log {
	if maxRecords <= 0 {
		maxRecords = 10000
	}
	if log == nil {
		log = logger.NewNopLogger()
	}
	return &Log{
		runID:      runID,
		records:    make([]*Record, 0, maxRecords),
		maxRecords: maxRecords,
		sink:       sink,
		log:        log,
	}
}

// RunID returns the run this log belongs to.
func (l *Log) RunID() string {
	return l.runID
}

// Append records an entry. Identity is deterministic: the ID is a
// name-based UUID over the run and a sequence number, and the record
// carries the step time, so replaying identical inputs reproduces the
// trail byte for byte.
func (l *Log) Append(step time.Time, kind Kind, symbol, summary string, details map[string]interface{}) *Record {
	l.mu.Lock()
	l.seq++
	record := &Record{
		ID:        uuid.NewSHA1(uuid.NameSpaceOID, []byte(l.runID+":"+strconv.FormatUint(l.seq, 10))).String(),
		RunID:     l.runID,
		Timestamp: step,
		Step:      step,
		Kind:      kind,
		Symbol:    symbol,
		Summary:   summary,
		Details:   details,
	}

	l.records = append(l.records, record)
	if len(l.records) > l.maxRecords {
		l.records = l.records[len(l.records)-l.maxRecords:]
	}
	l.mu.Unlock()

	recordsTotal.WithLabelValues(string(kind)).Inc()

	if l.sink != nil {
		if err := l.sink.Write(record); err != nil {
			sinkErrorsTotal.Inc()
			l.log.Error("audit sink write failed", "error", err, "kind", string(kind))
		}
	}
	return record
}

// Warn appends a warning record and mirrors it to the logger.
func (l *Log) Warn(step time.Time, symbol, summary string, details map[string]interface{}) *Record {
	l.log.Warn(summary, "symbol", symbol)
	return l.Append(step, KindWarning, symbol, summary, details)
}

// Recent returns up to limit most recent records, newest last.
func (l *Log) Recent(limit int) []*Record {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if limit <= 0 || limit > len(l.records) {
		limit = len(l.records)
	}
	out := make([]*Record, limit)
	copy(out, l.records[len(l.records)-limit:])
	return out
}

// Len returns the number of retained records.
func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.records)
}
