package stream

// Window keeps the most recent prices of one symbol, oldest first.
type Window struct {
	size   int
	prices []float64
}

// NewWindow creates a window holding at most size prices.
func NewWindow(size int) *Window {
	return &Window{size: size, prices: make([]float64, 0, size)}
}

// Push appends a price, evicting the oldest when full.
func (w *Window) Push(p float64) {
	if len(w.prices) == w.size {
		copy(w.prices, w.prices[1:])
		w.prices = w.prices[:w.size-1]
	}
	w.prices = append(w.prices, p)
}

// Values returns a copy of the prices.
func (w *Window) Values() []float64 {
	out := make([]float64, len(w.prices))
	copy(out, w.prices)
	return out
}

// Len returns the number of stored prices.
func (w *Window) Len() int { return len(w.prices) }
