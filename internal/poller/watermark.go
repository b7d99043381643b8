package poller

import "sync/atomic"

// Watermark is the highest order id already notified. It only moves forward.
type Watermark struct {
	v atomic.Int64
}

func NewWatermark(start int64) *Watermark {
	w := &Watermark{}
	w.v.Store(start)
	return w
}

func (w *Watermark) Get() int64 { return w.v.Load() }

// Advance raises the watermark to id. Lower values are ignored.
// It reports whether the watermark moved.
func (w *Watermark) Advance(id int64) bool {
	for {
		cur := w.v.Load()
		if id <= cur {
			return false
		}
		if w.v.CompareAndSwap(cur, id) {
			return true
		}
	}
}
