package runner

import (
	"context"
	"time"
)

// Credential is the opaque session token every strategy authenticates with.
// It is acquired once before a run and never refreshed.
type Credential string

// FileRef is one file of the benchmark set. Size is read once when the set
// is loaded and reused by every concurrency level.
type FileRef struct {
	Path string
	Name string
	Size int64
}

// ServerMetrics holds what the remote side reported about a transfer.
// Each field is nil when the response did not carry it.
type ServerMetrics struct {
	TimeSec    *float64 `json:"time_s,omitempty"`
	CPUPercent *float64 `json:"cpu_pct,omitempty"`
	MemoryMB   *float64 `json:"memory_mb,omitempty"`
}

// Empty reports whether no metric was reported at all.
func (m *ServerMetrics) Empty() bool {
	return m == nil || (m.TimeSec == nil && m.CPUPercent == nil && m.MemoryMB == nil)
}

// ClientUsage is a whole-system CPU/memory reading taken around a transfer.
// With more than one transfer in flight it cannot be attributed to a single
// transfer; treat it as a coarse approximation.
type ClientUsage struct {
	CPUPercent float64 `json:"cpu_pct"`
	MemoryMB   float64 `json:"memory_mb"`
}

// Outcome is what a Strategy reports for one transfer attempt.
type Outcome struct {
	Elapsed    time.Duration
	Success    bool
	StatusCode int
	Err        error
	Server     *ServerMetrics
}

// Strategy uploads a single file. Execute never returns an error: every
// failure is reported through Outcome.Success and Outcome.Err.
type Strategy interface {
	// Name is the label written to the Type column.
	Name() string
	Execute(ctx context.Context, cred Credential, f FileRef) Outcome
}

// Sink receives samples. It is only ever called from one goroutine.
type Sink interface {
	Write(s Sample) error
	Flush() error
}

// ResourceSampler takes a whole-system usage snapshot.
type ResourceSampler interface {
	Snapshot() (ClientUsage, error)
}
