package live

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"valetbench/internal/runner"
	"valetbench/internal/stats"
	"valetbench/internal/tui/components"
	"valetbench/internal/tui/styles"
)

// Messages fed by the run observer.
type (
	LevelStartedMsg struct {
		Concurrency int
		Files       int
	}
	SampleMsg        runner.Sample
	LevelFinishedMsg stats.LevelSummary
)

// Model shows the level in progress and the levels already completed.
type Model struct {
	Progress   progress.Model
	Throughput components.Sparkline
	Elapsed    components.Sparkline

	Levels    []int
	Level     int
	Files     int
	Done      int
	OK        int
	Fail      int
	LastError string
	Completed []stats.LevelSummary

	LevelStart time.Time
	Width      int
}

func NewModel(levels []int) Model {
	return Model{
		Progress:   progress.New(progress.WithDefaultGradient()),
		Throughput: components.NewSparkline(40, "Throughput (MB/s)", styles.Active),
		Elapsed:    components.NewSparkline(40, "Transfer time (s)", styles.Warn),
		Levels:     levels,
	}
}

func (m Model) Init() tea.Cmd {
	return nil
}

func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	switch msg := msg.(type) {
	case LevelStartedMsg:
		m.Level = msg.Concurrency
		m.Files = msg.Files
		m.Done, m.OK, m.Fail = 0, 0, 0
		m.LevelStart = time.Now()
		return m, m.Progress.SetPercent(0)

	case SampleMsg:
		m.Done++
		if runner.Sample(msg).OK() {
			m.OK++
			m.Throughput.Add(msg.ThroughputMBps)
			m.Elapsed.Add(msg.ElapsedSec)
		} else {
			m.Fail++
			m.LastError = fmt.Sprintf("%s: %s", msg.File, msg.Error)
		}
		return m, m.Progress.SetPercent(m.fraction())

	case LevelFinishedMsg:
		m.Completed = append(m.Completed, stats.LevelSummary(msg))
		return m, m.Progress.SetPercent(1)

	case tea.WindowSizeMsg:
		m.Width = msg.Width
		m.Progress.Width = msg.Width - 4

		half := (msg.Width / 2) - 6
		if half < 10 {
			half = 10
		}
		m.Throughput.Resize(half)
		m.Elapsed.Resize(half)
		return m, nil

	case progress.FrameMsg:
		prog, cmd := m.Progress.Update(msg)
		m.Progress = prog.(progress.Model)
		return m, cmd
	}

	return m, nil
}

func (m Model) fraction() float64 {
	if m.Files == 0 {
		return 0
	}
	return float64(m.Done) / float64(m.Files)
}

// Position is the 1-based index of the current level, 0 before the first.
func (m Model) Position() int {
	for i, l := range m.Levels {
		if l == m.Level && i >= len(m.Completed) {
			return i + 1
		}
	}
	return len(m.Completed)
}

func (m Model) View() string {
	s := strings.Builder{}

	errRate := 0.0
	if m.Done > 0 {
		errRate = float64(m.Fail) / float64(m.Done) * 100
	}

	col1 := fmt.Sprintf("LEVEL: %d (%d/%d)\nFILES: %d/%d", m.Level, m.Position(), len(m.Levels), m.Done, m.Files)
	col2 := fmt.Sprintf("OK: %d\nFAIL: %d", m.OK, m.Fail)
	col3 := fmt.Sprintf("ERR: %.1f%%\nTIME: %s", errRate, time.Since(m.LevelStart).Round(time.Second))
	if m.LevelStart.IsZero() {
		col3 = fmt.Sprintf("ERR: %.1f%%\nTIME: -", errRate)
	}

	s.WriteString(lipgloss.JoinHorizontal(lipgloss.Top,
		styles.Box.Render(col1),
		styles.Box.Render(styles.ErrorRate(errRate).Render(col2)),
		styles.Box.Render(col3),
	))
	s.WriteString("\n\n")

	s.WriteString(lipgloss.JoinHorizontal(lipgloss.Top,
		styles.Box.Render(m.Throughput.View()),
		styles.Box.Render(m.Elapsed.View()),
	))
	s.WriteString("\n\n")

	s.WriteString(m.Progress.View())
	s.WriteString("\n")

	if m.LastError != "" {
		s.WriteString("\n" + styles.Error.Render("last error: "+truncate(m.LastError, 120)) + "\n")
	}

	if len(m.Completed) > 0 {
		s.WriteString("\n" + styles.Subtle.Render("completed levels") + "\n")
		for _, c := range m.Completed {
			s.WriteString(fmt.Sprintf("  C=%-3d ok %-4d fail %-4d mean %.2f MB/s  p50 %d ms  p99 %d ms\n",
				c.Concurrency, c.Success, c.Fail, c.MeanThroughputMBs, c.P50Ms, c.P99Ms))
		}
	}

	return s.String()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
