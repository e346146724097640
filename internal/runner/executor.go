package runner

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"valetbench/internal/metrics"
)

// Executor runs one Strategy over a file set with bounded parallelism.
type Executor struct {
	Strategy   Strategy
	Credential Credential

	// Sampler is optional. When set, a whole-system usage snapshot is taken
	// before and after each transfer and the two are averaged.
	Sampler ResourceSampler

	inflight int64
	peak     int64
}

func NewExecutor(s Strategy, cred Credential, sampler ResourceSampler) *Executor {
	return &Executor{
		Strategy:   s,
		Credential: cred,
		Sampler:    sampler,
	}
}

// Run executes the strategy once per file with at most concurrency
// invocations in flight. Samples are delivered in completion order and the
// channel is closed after exactly len(files) samples. The caller must drain
// the channel.
//
// Cancelling ctx never interrupts a transfer in flight. Files not yet
// started when ctx is done are reported as failed samples with zero
// elapsed time, so the sample count holds for interrupted levels too.
func (e *Executor) Run(ctx context.Context, files []FileRef, concurrency int) <-chan Sample {
	if concurrency < 1 {
		concurrency = 1
	}
	workers := concurrency
	if workers > len(files) {
		workers = len(files)
	}
	atomic.StoreInt64(&e.peak, 0)

	jobs := make(chan FileRef, len(files))
	for _, f := range files {
		jobs <- f
	}
	close(jobs)

	out := make(chan Sample, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for f := range jobs {
				if err := ctx.Err(); err != nil {
					out <- NewSample(e.Strategy.Name(), concurrency, f, Outcome{Err: err}, nil)
					continue
				}
				out <- e.execute(context.WithoutCancel(ctx), f, concurrency)
			}
		}()
	}
	go func() {
		wg.Wait()
		close(out)
	}()
	return out
}

func (e *Executor) execute(ctx context.Context, f FileRef, concurrency int) Sample {
	name := e.Strategy.Name()

	var before ClientUsage
	sampled := false
	if e.Sampler != nil {
		if u, err := e.Sampler.Snapshot(); err == nil {
			before, sampled = u, true
		}
	}

	e.enter()
	metrics.Inflight.WithLabelValues(name).Inc()
	o := e.invoke(ctx, f)
	metrics.Inflight.WithLabelValues(name).Dec()
	e.leave()

	var client *ClientUsage
	if sampled {
		if after, err := e.Sampler.Snapshot(); err == nil {
			client = &ClientUsage{
				CPUPercent: round1((before.CPUPercent + after.CPUPercent) / 2),
				MemoryMB:   round1((before.MemoryMB + after.MemoryMB) / 2),
			}
		}
	}

	metrics.ObserveTransfer(name, o.Success, o.Elapsed, f.Size)
	return NewSample(name, concurrency, f, o, client)
}

// invoke calls the strategy and turns a panic into a failed outcome so the
// sample count stays intact.
func (e *Executor) invoke(ctx context.Context, f FileRef) (o Outcome) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			o = Outcome{
				Elapsed: time.Since(start),
				Err:     fmt.Errorf("strategy %s panicked: %v", e.Strategy.Name(), r),
			}
		}
	}()
	return e.Strategy.Execute(ctx, e.Credential, f)
}

func (e *Executor) enter() {
	n := atomic.AddInt64(&e.inflight, 1)
	for {
		p := atomic.LoadInt64(&e.peak)
		if n <= p || atomic.CompareAndSwapInt64(&e.peak, p, n) {
			return
		}
	}
}

func (e *Executor) leave() {
	atomic.AddInt64(&e.inflight, -1)
}

// Inflight returns the number of strategy invocations currently running.
func (e *Executor) Inflight() int64 {
	return atomic.LoadInt64(&e.inflight)
}

// Peak returns the highest in-flight count observed during the last Run.
func (e *Executor) Peak() int64 {
	return atomic.LoadInt64(&e.peak)
}
