// Package tui is the interactive front end of a benchmark run.
package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"valetbench/internal/bench"
	"valetbench/internal/cli"
	"valetbench/internal/runner"
	"valetbench/internal/stats"
	"valetbench/internal/storage"
	"valetbench/internal/tui/live"
	"valetbench/internal/tui/styles"
)

const tickInterval = 500 * time.Millisecond

type tickMsg time.Time

// doneMsg carries the result of the background run.
type doneMsg struct {
	rec storage.RunRecord
	err error
}

type Model struct {
	Live     live.Model
	Header   cli.Header
	Stopping bool
	Finished bool
	Record   storage.RunRecord
	Err      error

	cancel context.CancelFunc
}

func NewModel(h cli.Header, cancel context.CancelFunc) Model {
	return Model{
		Live:   live.NewModel(h.Levels),
		Header: h,
		cancel: cancel,
	}
}

func (m Model) Init() tea.Cmd {
	return tickCmd()
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q", "esc":
			if m.Finished {
				return m, tea.Quit
			}
			if !m.Stopping {
				// The run drains the level in flight and reports back
				// through doneMsg.
				m.Stopping = true
				m.cancel()
			}
			return m, nil
		}
		return m, nil

	case doneMsg:
		m.Finished = true
		m.Record = msg.rec
		m.Err = msg.err
		return m, nil

	case tickMsg:
		if m.Finished {
			return m, nil
		}
		return m, tickCmd()
	}

	var cmd tea.Cmd
	m.Live, cmd = m.Live.Update(msg)
	return m, cmd
}

func (m Model) View() string {
	s := strings.Builder{}

	s.WriteString(styles.Title.Render("VALETBENCH"))
	s.WriteString("\n")
	strategy := m.Header.Strategy
	if m.Header.Transfer != "" {
		strategy += " (" + m.Header.Transfer + ")"
	}
	s.WriteString(fmt.Sprintf("Strategy: %s | Files: %d | %.2f MB per level\n", strategy, m.Header.Files, m.Header.TotalMB))
	s.WriteString(fmt.Sprintf("Target: %s\n", m.Header.BaseURL))
	s.WriteString(styles.Subtle.Render("Results: " + m.Header.Results))
	s.WriteString("\n\n")

	if m.Finished {
		s.WriteString(cli.SummaryTable(m.Record.Summaries))
		s.WriteString("\n")
		switch {
		case m.Err != nil:
			s.WriteString(styles.Error.Render("Run aborted: "+m.Err.Error()) + "\n")
			s.WriteString(styles.Subtle.Render("Partial results: "+m.Record.ResultsPath) + "\n")
		default:
			s.WriteString(styles.Success.Render("Run complete") + " " + styles.Subtle.Render(m.Record.ResultsPath) + "\n")
		}
		s.WriteString("\n" + styles.RenderKey("q", "quit"))
		return s.String()
	}

	s.WriteString(m.Live.View())
	s.WriteString("\n")
	if m.Stopping {
		s.WriteString(styles.Warn.Render("Stopping: waiting for transfers in flight..."))
	} else {
		s.WriteString(styles.RenderKey("q", "stop run"))
	}
	return s.String()
}

func tickCmd() tea.Cmd {
	return tea.Tick(tickInterval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// Observer forwards run events to a running program.
type Observer struct {
	p *tea.Program
}

func (o Observer) LevelStarted(concurrency, files int) {
	o.p.Send(live.LevelStartedMsg{Concurrency: concurrency, Files: files})
}

func (o Observer) SampleRecorded(s runner.Sample) {
	o.p.Send(live.SampleMsg(s))
}

func (o Observer) LevelFinished(sum stats.LevelSummary) {
	o.p.Send(live.LevelFinishedMsg(sum))
}

// Run drives b inside a full-screen program and returns once the user
// leaves the final screen.
func Run(ctx context.Context, b *bench.Bench, h cli.Header) (storage.RunRecord, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	p := tea.NewProgram(NewModel(h, cancel), tea.WithAltScreen())

	go func() {
		rec, err := b.Run(ctx, Observer{p: p})
		p.Send(doneMsg{rec: rec, err: err})
	}()

	final, err := p.Run()
	if err != nil {
		return storage.RunRecord{}, fmt.Errorf("tui: %w", err)
	}
	m := final.(Model)
	return m.Record, m.Err
}

var _ runner.Observer = Observer{}
