package cli

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"valetbench/internal/runner"
	"valetbench/internal/stats"
	"valetbench/internal/storage"
)

func TestPrinterProgress(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf)

	p.LevelStarted(4, 2)
	p.SampleRecorded(runner.Sample{Concurrency: 4, Code: runner.CodeOK})
	p.SampleRecorded(runner.Sample{Concurrency: 4, Code: runner.CodeFailed})
	p.LevelFinished(stats.LevelSummary{Concurrency: 4, Emitted: 2, Success: 1, Fail: 1, WallTime: 1500 * time.Millisecond})

	out := buf.String()
	assert.Contains(t, out, "C=4")
	assert.Contains(t, out, "2/2 | OK: 1 | Err: 1")
	assert.Contains(t, out, "[████████████████████]")
	assert.Contains(t, out, "1.5s\n")
	assert.Len(t, p.finished, 1)
}

func TestPrinterResetsBetweenLevels(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf)

	p.LevelStarted(1, 1)
	p.SampleRecorded(runner.Sample{Concurrency: 1, Code: runner.CodeFailed})
	p.LevelFinished(stats.LevelSummary{Concurrency: 1})
	buf.Reset()
	p.LevelStarted(2, 1)

	assert.Contains(t, buf.String(), "0/1 | OK: 0 | Err: 0")
}

func TestProgressBar(t *testing.T) {
	assert.Equal(t, "[----]", progressBar(0, 4))
	assert.Equal(t, "[██--]", progressBar(0.5, 4))
	assert.Equal(t, "[████]", progressBar(1.7, 4))
	assert.Equal(t, "[----]", progressBar(-1, 4))
}

func TestSummaryTable(t *testing.T) {
	out := SummaryTable([]stats.LevelSummary{
		{Concurrency: 1, Emitted: 5, Success: 5, TotalMB: 50, MeanThroughputMBs: 2.5, P50Ms: 400, P99Ms: 900, MaxMs: 950},
		{Concurrency: 8, Emitted: 5, Success: 3, Fail: 2, TotalMB: 30, MeanThroughputMBs: 1.25},
	})

	assert.Contains(t, out, "LEVEL")
	assert.Contains(t, out, "MEAN MB/s")
	assert.Contains(t, out, "2.50")
	assert.Contains(t, out, "40.0")
	assert.Contains(t, out, "950")
}

func TestPrintSummaryReportsAbort(t *testing.T) {
	var buf bytes.Buffer
	NewPrinter(&buf).PrintSummary(storage.RunRecord{
		ResultsPath: "results_proxy.csv.partial",
		Error:       "write sample for a.bin: disk full",
	})

	assert.Contains(t, buf.String(), "results_proxy.csv.partial")
	assert.Contains(t, buf.String(), "disk full")
}
