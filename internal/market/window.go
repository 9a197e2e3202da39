package market

// Window is a fixed-capacity rolling window of bars for one symbol.
// Oldest bars are evicted as new ones arrive.
type Window struct {
	symbol string
	bars   []*Bar
	size   int
}

// NewWindow creates a rolling window holding up to size bars.
func NewWindow(symbol string, size int) *Window {
	if size <= 0 {
		size = 1
	}
	return &Window{
		symbol: symbol,
		bars:   make([]*Bar, 0, size),
		size:   size,
	}
}

// Push appends a bar, evicting the oldest when full.
func (w *Window) Push(bar *Bar) {
	if len(w.bars) == w.size {
		copy(w.bars, w.bars[1:])
		w.bars[len(w.bars)-1] = bar
		return
	}
	w.bars = append(w.bars, bar)
}

// Symbol returns the symbol the window tracks.
func (w *Window) Symbol() string {
	return w.symbol
}

// Len returns the number of bars currently held.
func (w *Window) Len() int {
	return len(w.bars)
}

// Full reports whether the window holds its capacity of bars.
func (w *Window) Full() bool {
	return len(w.bars) == w.size
}

// Bars returns the bars oldest-first. The slice is shared; callers
// must not mutate it.
func (w *Window) Bars() []*Bar {
	return w.bars
}

// Clone returns an independent copy of the window. Bars are shared
// (they are immutable once published); the backing slice is not.
func (w *Window) Clone() *Window {
	c := &Window{
		symbol: w.symbol,
		bars:   make([]*Bar, len(w.bars), w.size),
		size:   w.size,
	}
	copy(c.bars, w.bars)
	return c
}

// Last returns the most recent bar, or nil when empty.
func (w *Window) Last() *Bar {
	if len(w.bars) == 0 {
		return nil
	}
	return w.bars[len(w.bars)-1]
}

// Closes returns the close prices oldest-first.
func (w *Window) Closes() []float64 {
	closes := make([]float64, len(w.bars))
	for i, b := range w.bars {
		closes[i] = b.Close
	}
	return closes
}

// Volumes returns the volumes oldest-first.
func (w *Window) Volumes() []float64 {
	volumes := make([]float64, len(w.bars))
	for i, b := range w.bars {
		volumes[i] = b.Volume
	}
	return volumes
}
