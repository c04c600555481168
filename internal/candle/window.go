package candle

import "realtime-chart-engine/internal/types"

// window is a fixed-capacity ring holding the most recent 1m bars.
type window struct {
	buf     []types.Bar
	head    int
	count   int
	scratch []types.Bar
}

func newWindow(size int) *window {
	return &window{
		buf:     make([]types.Bar, size),
		scratch: make([]types.Bar, 0, size),
	}
}

func (w *window) push(b types.Bar) {
	size := len(w.buf)
	if w.count < size {
		w.buf[(w.head+w.count)%size] = b
		w.count++
		return
	}
	w.buf[w.head] = b
	w.head = (w.head + 1) % size
}

func (w *window) full() bool {
	return w.count == len(w.buf)
}

func (w *window) len() int {
	return w.count
}

// ordered returns the window contents oldest first. The slice is reused by the next call.
func (w *window) ordered() []types.Bar {
	w.scratch = w.scratch[:0]
	for i := 0; i < w.count; i++ {
		w.scratch = append(w.scratch, w.buf[(w.head+i)%len(w.buf)])
	}
	return w.scratch
}
