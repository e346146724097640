package stats

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLevelSummary(t *testing.T) {
	l := NewLevel("PROXY", 4)
	l.Add(true, 100*time.Millisecond, 10, 2.0)
	l.Add(true, 200*time.Millisecond, 20, 2.5)
	l.Add(true, 300*time.Millisecond, 5, 1.0)
	l.Add(false, 5*time.Second, 10, 0)

	s := l.Summary()

	assert.Equal(t, "PROXY", s.Strategy)
	assert.Equal(t, 4, s.Concurrency)
	assert.Equal(t, uint64(4), s.Emitted)
	assert.Equal(t, uint64(3), s.Success)
	assert.Equal(t, uint64(1), s.Fail)
	assert.Equal(t, 35.0, s.TotalMB)
	assert.Equal(t, 1.833, s.MeanThroughputMBs)
	assert.Equal(t, 25.0, s.ErrorRate())
	assert.InDelta(t, 200, s.P50Ms, 1)
	assert.InDelta(t, 300, s.P99Ms, 1)
	assert.InDelta(t, 300, s.MaxMs, 1)
	assert.Equal(t, int64(3), l.Elapsed.TotalCount())
}

func TestLevelSummaryAllFailed(t *testing.T) {
	l := NewLevel("SAS", 1)
	l.Add(false, time.Second, 1, 0)

	s := l.Summary()

	assert.Equal(t, uint64(1), s.Fail)
	assert.Zero(t, s.MeanThroughputMBs)
	assert.Zero(t, s.P50Ms)
	assert.Equal(t, 100.0, s.ErrorRate())
}

func TestErrorRateEmpty(t *testing.T) {
	assert.Zero(t, LevelSummary{}.ErrorRate())
}

func TestHistogramClampsOutOfRange(t *testing.T) {
	h := NewSafeHistogram()
	h.Record(0)
	h.Record(10 * time.Hour)

	assert.Equal(t, int64(2), h.TotalCount())
	assert.Equal(t, int64(1), h.Min())
	assert.Equal(t, int64(1), h.QuantileMs(50))
	assert.GreaterOrEqual(t, h.Max(), int64(2*time.Hour/time.Millisecond))
}
