package ensemble

import (
	"math"
	"sort"

	"qde/internal/market"
)

// SignalFunc produces an expert's conviction in [-1,1] for the current
// window. Pure and deterministic: same window, same value.
type SignalFunc func(w *market.Window) float64

// Expert is one independent signal-producing strategy consulted by the
// ensemble. Parameters are the knobs the weekly recalibration may move
// within their declared bounds.
type Expert struct {
	ID     string
	signal SignalFunc
	params map[string]float64
	bounds map[string][2]float64
}

// NewExpert creates an expert with its tunable parameters and bounds.
func NewExpert(id string, params map[string]float64, bounds map[string][2]float64, signal func(e *Expert, w *market.Window) float64) *Expert {
	e := &Expert{
		ID:     id,
		params: make(map[string]float64, len(params)),
		bounds: make(map[string][2]float64, len(bounds)),
	}
	for k, v := range params {
		e.params[k] = v
	}
	for k, v := range bounds {
		e.bounds[k] = v
	}
	e.signal = func(w *market.Window) float64 {
		return clampSignal(signal(e, w))
	}
	return e
}

// Signal evaluates the expert against the window.
func (e *Expert) Signal(w *market.Window) float64 {
	return e.signal(w)
}

// Param returns the named parameter value, or fallback when absent.
func (e *Expert) Param(name string, fallback float64) float64 {
	if v, ok := e.params[name]; ok {
		return v
	}
	return fallback
}

// SetParam updates a parameter, clamped into its declared bounds.
func (e *Expert) SetParam(name string, value float64) {
	if b, ok := e.bounds[name]; ok {
		value = math.Max(b[0], math.Min(b[1], value))
	}
	e.params[name] = value
}

// Params returns a copy of the current parameter values.
func (e *Expert) Params() map[string]float64 {
	out := make(map[string]float64, len(e.params))
	for k, v := range e.params {
		out[k] = v
	}
	return out
}

// Bounds returns a copy of the parameter bounds.
func (e *Expert) Bounds() map[string][2]float64 {
	out := make(map[string][2]float64, len(e.bounds))
	for k, v := range e.bounds {
		out[k] = v
	}
	return out
}

// ParamNames returns parameter names in sorted order for deterministic
// iteration.
func (e *Expert) ParamNames() []string {
	names := make([]string, 0, len(e.params))
	for k := range e.params {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

func clampSignal(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return math.Max(-1, math.Min(1, v))
}
