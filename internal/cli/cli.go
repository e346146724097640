// Package cli renders headless run progress on a terminal.
package cli

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"valetbench/internal/runner"
	"valetbench/internal/stats"
	"valetbench/internal/storage"
	"valetbench/internal/tui/styles"
)

// Printer is a runner.Observer that prints a progress line per level and a
// summary table when the run ends.
type Printer struct {
	out io.Writer

	files    int
	done     uint64
	ok       uint64
	fail     uint64
	started  time.Time
	finished []stats.LevelSummary
}

func NewPrinter(out io.Writer) *Printer {
	return &Printer{out: out}
}

// Header describes the run about to start.
type Header struct {
	Strategy string
	Transfer string
	BaseURL  string
	Levels   []int
	Files    int
	TotalMB  float64
	Results  string
}

func (p *Printer) PrintHeader(h Header) {
	fmt.Fprintf(p.out, "\n%s\n", styles.Title.Render("VALETBENCH UPLOAD BENCHMARK"))
	fmt.Fprintf(p.out, "Target     : %s\n", h.BaseURL)
	if h.Transfer != "" {
		fmt.Fprintf(p.out, "Strategy   : %s (%s)\n", h.Strategy, h.Transfer)
	} else {
		fmt.Fprintf(p.out, "Strategy   : %s\n", h.Strategy)
	}
	fmt.Fprintf(p.out, "Levels     : %s\n", joinInts(h.Levels))
	fmt.Fprintf(p.out, "Files      : %d (%.2f MB per level)\n", h.Files, h.TotalMB)
	fmt.Fprintf(p.out, "Results    : %s\n\n", h.Results)
}

func (p *Printer) LevelStarted(concurrency, files int) {
	p.files = files
	atomic.StoreUint64(&p.done, 0)
	atomic.StoreUint64(&p.ok, 0)
	atomic.StoreUint64(&p.fail, 0)
	p.started = time.Now()
	p.progress(concurrency)
}

func (p *Printer) SampleRecorded(s runner.Sample) {
	atomic.AddUint64(&p.done, 1)
	if s.OK() {
		atomic.AddUint64(&p.ok, 1)
	} else {
		atomic.AddUint64(&p.fail, 1)
	}
	p.progress(s.Concurrency)
}

func (p *Printer) LevelFinished(sum stats.LevelSummary) {
	p.progress(sum.Concurrency)
	fmt.Fprintf(p.out, " | %s\n", sum.WallTime.Round(time.Millisecond))
	p.finished = append(p.finished, sum)
}

func (p *Printer) progress(concurrency int) {
	done := atomic.LoadUint64(&p.done)
	pct := 1.0
	if p.files > 0 {
		pct = float64(done) / float64(p.files)
	}
	fmt.Fprintf(p.out, "\rC=%-3d %s %3.0f%% | %d/%d | OK: %d | Err: %d",
		concurrency,
		progressBar(pct, 20), pct*100,
		done, p.files,
		atomic.LoadUint64(&p.ok),
		atomic.LoadUint64(&p.fail),
	)
}

func progressBar(pct float64, width int) string {
	filled := int(pct * float64(width))
	if filled > width {
		filled = width
	}
	if filled < 0 {
		filled = 0
	}
	return "[" + strings.Repeat("█", filled) + strings.Repeat("-", width-filled) + "]"
}

// PrintSummary prints the per-level table and where the results went.
func (p *Printer) PrintSummary(rec storage.RunRecord) {
	fmt.Fprintf(p.out, "\n%s\n", styles.Title.Render("RESULTS"))
	fmt.Fprintln(p.out, SummaryTable(rec.Summaries))
	fmt.Fprintf(p.out, "Total Duration : %s\n", rec.Duration.Round(time.Second))
	fmt.Fprintf(p.out, "Results File   : %s\n", rec.ResultsPath)
	if rec.Error != "" {
		fmt.Fprintf(p.out, "%s %s\n", styles.Error.Render("Run aborted:"), rec.Error)
	}
}

// SummaryTable renders level summaries as a bordered table.
func SummaryTable(sums []stats.LevelSummary) string {
	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(styles.ColorBorder)).
		Headers("LEVEL", "OK", "FAIL", "ERR %", "MB", "MEAN MB/s", "P50 ms", "P99 ms", "MAX ms", "WALL").
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return styles.Header
			}
			if col == 3 && row >= 0 && row < len(sums) {
				return styles.ErrorRate(sums[row].ErrorRate()).Padding(0, 1)
			}
			return styles.Cell
		})
	for _, s := range sums {
		t.Row(
			strconv.Itoa(s.Concurrency),
			strconv.FormatUint(s.Success, 10),
			strconv.FormatUint(s.Fail, 10),
			fmt.Sprintf("%.1f", s.ErrorRate()),
			fmt.Sprintf("%.2f", s.TotalMB),
			fmt.Sprintf("%.2f", s.MeanThroughputMBs),
			strconv.FormatInt(s.P50Ms, 10),
			strconv.FormatInt(s.P99Ms, 10),
			strconv.FormatInt(s.MaxMs, 10),
			s.WallTime.Round(time.Millisecond).String(),
		)
	}
	return t.Render()
}

func joinInts(xs []int) string {
	parts := make([]string, len(xs))
	for i, x := range xs {
		parts[i] = strconv.Itoa(x)
	}
	return strings.Join(parts, ", ")
}

var _ runner.Observer = &Printer{}
