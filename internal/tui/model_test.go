package tui

import (
	"errors"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"valetbench/internal/cli"
	"valetbench/internal/stats"
	"valetbench/internal/storage"
)

func TestQuitStopsRunFirst(t *testing.T) {
	canceled := 0
	var m tea.Model = NewModel(cli.Header{Strategy: "PROXY", Levels: []int{1}}, func() { canceled++ })

	m, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	assert.Nil(t, cmd)
	assert.True(t, m.(Model).Stopping)
	assert.Equal(t, 1, canceled)

	// a second press while draining does not cancel again
	m, _ = m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	assert.Equal(t, 1, canceled)
	assert.Contains(t, m.View(), "Stopping")

	m, _ = m.Update(doneMsg{
		rec: storage.RunRecord{ResultsPath: "r.csv.partial", Summaries: []stats.LevelSummary{{Concurrency: 1}}},
		err: errors.New("context canceled"),
	})
	require.True(t, m.(Model).Finished)
	assert.Contains(t, m.View(), "Run aborted")

	_, cmd = m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	require.NotNil(t, cmd)
	assert.IsType(t, tea.QuitMsg{}, cmd())
}
