package runner

import (
	"math"
	"time"
)

const (
	CodeOK     = 0
	CodeFailed = 1

	bytesPerMB = 1024 * 1024
)

// Sample is the immutable record produced for every (level, file) pair.
type Sample struct {
	Strategy       string         `json:"strategy"`
	ElapsedSec     float64        `json:"elapsed_s"`
	SizeMB         float64        `json:"size_mb"`
	ThroughputMBps float64        `json:"throughput_mbps"`
	File           string         `json:"file"`
	Concurrency    int            `json:"concurrency"`
	Code           int            `json:"code"`
	Client         *ClientUsage   `json:"client,omitempty"`
	Server         *ServerMetrics `json:"server,omitempty"`
	Error          string         `json:"error,omitempty"`
}

// OK reports whether the transfer succeeded.
func (s Sample) OK() bool { return s.Code == CodeOK }

// NewSample builds the sample for one finished transfer attempt.
func NewSample(strategy string, concurrency int, f FileRef, o Outcome, client *ClientUsage) Sample {
	elapsed := o.Elapsed
	if elapsed < 0 {
		elapsed = 0
	}
	sizeMB := float64(f.Size) / bytesPerMB

	s := Sample{
		Strategy:       strategy,
		ElapsedSec:     round2(elapsed.Seconds()),
		SizeMB:         round2(sizeMB),
		ThroughputMBps: Throughput(sizeMB, elapsed),
		File:           f.Name,
		Concurrency:    concurrency,
		Code:           CodeOK,
		Client:         client,
	}
	if !o.Server.Empty() {
		s.Server = o.Server
	}
	if !o.Success {
		s.Code = CodeFailed
	}
	if o.Err != nil {
		s.Error = o.Err.Error()
	}
	return s
}

// Throughput returns sizeMB/elapsed rounded to two decimals, or 0 when no
// time elapsed.
func Throughput(sizeMB float64, elapsed time.Duration) float64 {
	secs := elapsed.Seconds()
	if secs <= 0 {
		return 0
	}
	v := sizeMB / secs
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return round2(v)
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
