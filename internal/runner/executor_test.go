package runner

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeStrategy sleeps for delay, fails the files in fail and panics on the
// files in panics. It tracks its own in-flight peak.
type fakeStrategy struct {
	delay  time.Duration
	fail   map[string]bool
	panics map[string]bool

	calls    int64
	inflight int64
	peak     int64

	mu   sync.Mutex
	seen map[string]int
}

func (f *fakeStrategy) Name() string { return "FAKE" }

func (f *fakeStrategy) Execute(_ context.Context, cred Credential, file FileRef) Outcome {
	atomic.AddInt64(&f.calls, 1)
	n := atomic.AddInt64(&f.inflight, 1)
	defer atomic.AddInt64(&f.inflight, -1)
	for {
		p := atomic.LoadInt64(&f.peak)
		if n <= p || atomic.CompareAndSwapInt64(&f.peak, p, n) {
			break
		}
	}

	f.mu.Lock()
	if f.seen == nil {
		f.seen = make(map[string]int)
	}
	f.seen[file.Name]++
	f.mu.Unlock()

	if f.panics[file.Name] {
		panic("boom")
	}
	time.Sleep(f.delay)
	if f.fail[file.Name] {
		return Outcome{Elapsed: f.delay, StatusCode: 500, Err: errors.New("server said no")}
	}
	return Outcome{Elapsed: f.delay, Success: true, StatusCode: 200}
}

func makeFiles(n int) []FileRef {
	files := make([]FileRef, n)
	for i := range files {
		name := fmt.Sprintf("f%02d.bin", i)
		files[i] = FileRef{Path: "/tmp/" + name, Name: name, Size: 1024 * 1024}
	}
	return files
}

func collect(ch <-chan Sample) []Sample {
	var out []Sample
	for s := range ch {
		out = append(out, s)
	}
	return out
}

func TestExecutorEmitsOneSamplePerFile(t *testing.T) {
	files := makeFiles(10)
	strat := &fakeStrategy{
		delay: 5 * time.Millisecond,
		fail:  map[string]bool{"f01.bin": true, "f04.bin": true, "f07.bin": true},
	}
	exec := NewExecutor(strat, "cred", nil)

	samples := collect(exec.Run(context.Background(), files, 4))

	require.Len(t, samples, len(files))
	names := make(map[string]int)
	failed := 0
	for _, s := range samples {
		names[s.File]++
		assert.Equal(t, 4, s.Concurrency)
		assert.Equal(t, "FAKE", s.Strategy)
		if !s.OK() {
			failed++
			assert.Equal(t, CodeFailed, s.Code)
			assert.Equal(t, "server said no", s.Error)
		}
	}
	assert.Equal(t, 3, failed)
	for _, f := range files {
		assert.Equal(t, 1, names[f.Name], "file %s", f.Name)
		assert.Equal(t, 1, strat.seen[f.Name], "file %s", f.Name)
	}
}

func TestExecutorBoundsInflight(t *testing.T) {
	for _, concurrency := range []int{1, 3, 8} {
		t.Run(fmt.Sprintf("c=%d", concurrency), func(t *testing.T) {
			strat := &fakeStrategy{delay: 10 * time.Millisecond}
			exec := NewExecutor(strat, "cred", nil)

			samples := collect(exec.Run(context.Background(), makeFiles(16), concurrency))

			require.Len(t, samples, 16)
			assert.LessOrEqual(t, atomic.LoadInt64(&strat.peak), int64(concurrency))
			assert.LessOrEqual(t, exec.Peak(), int64(concurrency))
			assert.GreaterOrEqual(t, exec.Peak(), int64(1))
			assert.Zero(t, exec.Inflight())
		})
	}
}

func TestExecutorFewerFilesThanConcurrency(t *testing.T) {
	strat := &fakeStrategy{delay: time.Millisecond}
	exec := NewExecutor(strat, "cred", nil)

	samples := collect(exec.Run(context.Background(), makeFiles(2), 8))

	require.Len(t, samples, 2)
	assert.LessOrEqual(t, exec.Peak(), int64(2))
	for _, s := range samples {
		assert.Equal(t, 8, s.Concurrency)
	}
}

func TestExecutorClampsConcurrencyBelowOne(t *testing.T) {
	strat := &fakeStrategy{delay: time.Millisecond}
	exec := NewExecutor(strat, "cred", nil)

	samples := collect(exec.Run(context.Background(), makeFiles(3), 0))

	require.Len(t, samples, 3)
	assert.Equal(t, int64(1), exec.Peak())
}

func TestExecutorRecoversPanic(t *testing.T) {
	strat := &fakeStrategy{panics: map[string]bool{"f02.bin": true}}
	exec := NewExecutor(strat, "cred", nil)

	samples := collect(exec.Run(context.Background(), makeFiles(4), 2))

	require.Len(t, samples, 4)
	var panicked *Sample
	for i := range samples {
		if samples[i].File == "f02.bin" {
			panicked = &samples[i]
		}
	}
	require.NotNil(t, panicked)
	assert.False(t, panicked.OK())
	assert.Contains(t, panicked.Error, "panicked")
	assert.Zero(t, exec.Inflight())
}

func TestExecutorCanceledBeforeStart(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	strat := &fakeStrategy{}
	exec := NewExecutor(strat, "cred", nil)

	samples := collect(exec.Run(ctx, makeFiles(5), 2))

	require.Len(t, samples, 5)
	for _, s := range samples {
		assert.False(t, s.OK())
		assert.Zero(t, s.ElapsedSec)
		assert.Zero(t, s.ThroughputMBps)
		assert.Contains(t, s.Error, context.Canceled.Error())
	}
	assert.Zero(t, atomic.LoadInt64(&strat.calls))
}

func TestExecutorIsReusableAcrossRuns(t *testing.T) {
	strat := &fakeStrategy{delay: time.Millisecond}
	exec := NewExecutor(strat, "cred", nil)
	files := makeFiles(6)

	first := collect(exec.Run(context.Background(), files, 3))
	second := collect(exec.Run(context.Background(), files, 1))

	assert.Len(t, first, 6)
	assert.Len(t, second, 6)
	assert.Equal(t, int64(1), exec.Peak())
	assert.Equal(t, int64(12), atomic.LoadInt64(&strat.calls))
}

type seqSampler struct {
	mu    sync.Mutex
	usage []ClientUsage
	i     int
}

func (s *seqSampler) Snapshot() (ClientUsage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.i >= len(s.usage) {
		return ClientUsage{}, errors.New("exhausted")
	}
	u := s.usage[s.i]
	s.i++
	return u, nil
}

func TestExecutorAveragesClientUsage(t *testing.T) {
	sampler := &seqSampler{usage: []ClientUsage{
		{CPUPercent: 10, MemoryMB: 100},
		{CPUPercent: 25, MemoryMB: 201},
	}}
	exec := NewExecutor(&fakeStrategy{}, "cred", sampler)

	samples := collect(exec.Run(context.Background(), makeFiles(1), 1))

	require.Len(t, samples, 1)
	require.NotNil(t, samples[0].Client)
	assert.Equal(t, 17.5, samples[0].Client.CPUPercent)
	assert.Equal(t, 150.5, samples[0].Client.MemoryMB)
}

func TestExecutorOmitsClientUsageWhenSamplerFails(t *testing.T) {
	exec := NewExecutor(&fakeStrategy{}, "cred", &seqSampler{})

	samples := collect(exec.Run(context.Background(), makeFiles(2), 1))

	require.Len(t, samples, 2)
	for _, s := range samples {
		assert.Nil(t, s.Client)
	}
}
