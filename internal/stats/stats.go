// Package stats aggregates per-level diagnostics. Nothing here feeds back
// into the samples written to the result sink.
package stats

import (
	"math"
	"sync/atomic"
	"time"
)

// Level accumulates the samples of one concurrency level.
type Level struct {
	Strategy    string
	Concurrency int

	Emitted uint64
	Success uint64
	Fail    uint64

	// Transfer times of successful samples only.
	Elapsed *SafeHistogram

	mbMilli         uint64 // MB * 1000 of successful transfers
	throughputMilli uint64 // sum of MB/s * 1000 of successful transfers
	start           time.Time
}

func NewLevel(strategy string, concurrency int) *Level {
	return &Level{
		Strategy:    strategy,
		Concurrency: concurrency,
		Elapsed:     NewSafeHistogram(),
		start:       time.Now(),
	}
}

func (l *Level) Add(ok bool, elapsed time.Duration, sizeMB, throughput float64) {
	atomic.AddUint64(&l.Emitted, 1)
	if !ok {
		atomic.AddUint64(&l.Fail, 1)
		return
	}
	atomic.AddUint64(&l.Success, 1)
	atomic.AddUint64(&l.mbMilli, uint64(math.Round(sizeMB*1000)))
	atomic.AddUint64(&l.throughputMilli, uint64(math.Round(throughput*1000)))
	l.Elapsed.Record(elapsed)
}

// LevelSummary is the display-only digest of a finished level.
type LevelSummary struct {
	Strategy          string        `json:"strategy"`
	Concurrency       int           `json:"concurrency"`
	Emitted           uint64        `json:"emitted"`
	Success           uint64        `json:"success"`
	Fail              uint64        `json:"fail"`
	TotalMB           float64       `json:"total_mb"`
	MeanThroughputMBs float64       `json:"mean_throughput_mbps"`
	P50Ms             int64         `json:"p50_ms"`
	P99Ms             int64         `json:"p99_ms"`
	MaxMs             int64         `json:"max_ms"`
	WallTime          time.Duration `json:"wall_time"`
}

// ErrorRate returns failed samples as a percentage of emitted ones.
func (s LevelSummary) ErrorRate() float64 {
	if s.Emitted == 0 {
		return 0
	}
	return float64(s.Fail) / float64(s.Emitted) * 100
}

func (l *Level) Summary() LevelSummary {
	s := LevelSummary{
		Strategy:    l.Strategy,
		Concurrency: l.Concurrency,
		Emitted:     atomic.LoadUint64(&l.Emitted),
		Success:     atomic.LoadUint64(&l.Success),
		Fail:        atomic.LoadUint64(&l.Fail),
		TotalMB:     float64(atomic.LoadUint64(&l.mbMilli)) / 1000,
		WallTime:    time.Since(l.start),
	}
	if s.Success > 0 {
		s.MeanThroughputMBs = math.Round(float64(atomic.LoadUint64(&l.throughputMilli))/float64(s.Success)) / 1000
		s.P50Ms = l.Elapsed.QuantileMs(50)
		s.P99Ms = l.Elapsed.QuantileMs(99)
		s.MaxMs = l.Elapsed.Max()
	}
	return s
}
