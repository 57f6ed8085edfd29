package anomaly

import "sync"

// window is a fixed-capacity ring of the most recent power values of one
// source. mu serializes the append-and-score step.
type window struct {
	mu     sync.Mutex
	values []float64
	pos    int // next write index
	n      int // values held, <= len(values)
}

func newWindow(capacity int) *window {
	return &window{values: make([]float64, capacity)}
}

// push appends v, evicting the oldest value when full.
func (w *window) push(v float64) {
	w.values[w.pos] = v
	w.pos = (w.pos + 1) % len(w.values)
	if w.n < len(w.values) {
		w.n++
	}
}

func (w *window) full() bool {
	return w.n == len(w.values)
}

// snapshot returns the held values, oldest first.
func (w *window) snapshot() []float64 {
	out := make([]float64, 0, w.n)
	start := (w.pos - w.n + len(w.values)) % len(w.values)
	for i := 0; i < w.n; i++ {
		out = append(out, w.values[(start+i)%len(w.values)])
	}
	return out
}
