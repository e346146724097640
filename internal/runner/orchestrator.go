package runner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/charmbracelet/log"

	"valetbench/internal/stats"
)

var (
	ErrNoFiles  = errors.New("file set is empty")
	ErrNoLevels = errors.New("no concurrency levels configured")
)

// Observer is notified of run progress. All calls come from the
// orchestrator goroutine.
type Observer interface {
	LevelStarted(concurrency, files int)
	SampleRecorded(s Sample)
	LevelFinished(sum stats.LevelSummary)
}

// Plan is the fixed input of a run.
type Plan struct {
	Levels []int
	Files  []FileRef
}

// Orchestrator runs the executor once per level, strictly in order, and
// hands every sample to the sink before the next level starts.
type Orchestrator struct {
	exec     *Executor
	plan     Plan
	sink     Sink
	log      *log.Logger
	observer Observer
}

func NewOrchestrator(exec *Executor, plan Plan, sink Sink, logger *log.Logger, observer Observer) *Orchestrator {
	if logger == nil {
		logger = log.New(io.Discard)
	}
	if observer == nil {
		observer = nopObserver{}
	}
	return &Orchestrator{
		exec:     exec,
		plan:     plan,
		sink:     sink,
		log:      logger,
		observer: observer,
	}
}

// Run executes every configured level. Failed transfers never stop the run;
// only sink errors and cancellation between levels do.
func (o *Orchestrator) Run(ctx context.Context) ([]stats.LevelSummary, error) {
	if len(o.plan.Files) == 0 {
		return nil, ErrNoFiles
	}
	if len(o.plan.Levels) == 0 {
		return nil, ErrNoLevels
	}

	summaries := make([]stats.LevelSummary, 0, len(o.plan.Levels))
	for _, level := range o.plan.Levels {
		if err := ctx.Err(); err != nil {
			return summaries, err
		}
		sum, err := o.runLevel(ctx, level)
		summaries = append(summaries, sum)
		if err != nil {
			return summaries, err
		}
	}
	return summaries, nil
}

func (o *Orchestrator) runLevel(ctx context.Context, level int) (stats.LevelSummary, error) {
	name := o.exec.Strategy.Name()
	o.log.Info("starting level", "strategy", name, "concurrency", level, "files", len(o.plan.Files))
	o.observer.LevelStarted(level, len(o.plan.Files))

	agg := stats.NewLevel(name, level)
	var sinkErr error
	for s := range o.exec.Run(ctx, o.plan.Files, level) {
		agg.Add(s.OK(), time.Duration(s.ElapsedSec*float64(time.Second)), s.SizeMB, s.ThroughputMBps)
		o.observer.SampleRecorded(s)
		if s.OK() {
			o.log.Debug("transfer done", "concurrency", level, "file", s.File, "mbps", s.ThroughputMBps)
		} else {
			o.log.Warn("transfer failed", "concurrency", level, "file", s.File, "err", s.Error)
		}
		if sinkErr != nil {
			// keep draining so no worker is left blocked
			continue
		}
		if err := o.sink.Write(s); err != nil {
			sinkErr = fmt.Errorf("write sample for %s: %w", s.File, err)
		}
	}
	if sinkErr == nil {
		if err := o.sink.Flush(); err != nil {
			sinkErr = fmt.Errorf("flush level %d: %w", level, err)
		}
	}

	sum := agg.Summary()
	o.log.Info("level complete", "concurrency", level, "emitted", sum.Emitted,
		"ok", sum.Success, "failed", sum.Fail, "peak_inflight", o.exec.Peak())
	o.observer.LevelFinished(sum)
	return sum, sinkErr
}

type nopObserver struct{}

func (nopObserver) LevelStarted(int, int)             {}
func (nopObserver) SampleRecorded(Sample)             {}
func (nopObserver) LevelFinished(stats.LevelSummary) {}
