package stats

import (
	"sync"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"
)

// SafeHistogram is a thread-safe wrapper around hdrhistogram.
// Values are transfer times in milliseconds.
type SafeHistogram struct {
	hist *hdrhistogram.Histogram
	mu   sync.Mutex
}

func NewSafeHistogram() *SafeHistogram {
	// 1ms to 2h, 3 significant figures
	h := hdrhistogram.New(1, int64(2*time.Hour/time.Millisecond), 3)
	return &SafeHistogram{hist: h}
}

// Record records a duration, clamped into the histogram range.
func (h *SafeHistogram) Record(d time.Duration) {
	v := d.Milliseconds()
	if v < 1 {
		v = 1
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.hist.RecordValue(v); err != nil {
		h.hist.RecordValue(h.hist.HighestTrackableValue())
	}
}

// QuantileMs returns the value at quantile q (0-100) in milliseconds.
func (h *SafeHistogram) QuantileMs(q float64) int64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.hist.ValueAtQuantile(q)
}

func (h *SafeHistogram) Min() int64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.hist.Min()
}

func (h *SafeHistogram) Max() int64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.hist.Max()
}

func (h *SafeHistogram) TotalCount() int64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.hist.TotalCount()
}
