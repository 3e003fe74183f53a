package cli

import (
	"context"
	"fmt"
	"slices"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/matzehuels/forcelayout/pkg/graph"
	"github.com/matzehuels/forcelayout/pkg/layout"
	"github.com/matzehuels/forcelayout/pkg/pipeline"
)

// Watch view styles
var (
	watchBarStyle   = lipgloss.NewStyle().Foreground(colorCyan)
	watchTrackStyle = lipgloss.NewStyle().Foreground(colorDim)
	watchDimStyle   = lipgloss.NewStyle().Foreground(colorDim)
	watchHeadStyle  = lipgloss.NewStyle().Foreground(colorGray).Bold(true)
)

const (
	watchBarWidth = 40
	watchMaxRows  = 8
)

// =============================================================================
// WatchModel - live view of a running layout
// =============================================================================

type progressMsg layout.Progress

type doneMsg struct {
	res *pipeline.Result
	err error
}

// WatchModel is the bubbletea model behind layout --watch. It shows the
// iteration count, temperature and the current positions of the first few
// nodes, and cancels the run on q or ctrl+c.
type WatchModel struct {
	Total    int // iteration budget
	Progress layout.Progress
	Result   *pipeline.Result
	Err      error

	updates <-chan layout.Progress
	done    <-chan doneMsg
	cancel  context.CancelFunc
	stopped bool
}

// newWatchModel creates a model fed by updates. done delivers the outcome of
// the run; cancel stops it.
func newWatchModel(total int, updates <-chan layout.Progress, done <-chan doneMsg, cancel context.CancelFunc) WatchModel {
	return WatchModel{Total: total, updates: updates, done: done, cancel: cancel}
}

func waitProgress(ch <-chan layout.Progress) tea.Cmd {
	return func() tea.Msg {
		p, ok := <-ch
		if !ok {
			return nil
		}
		return progressMsg(p)
	}
}

func waitDone(ch <-chan doneMsg) tea.Cmd {
	return func() tea.Msg { return <-ch }
}

func (m WatchModel) Init() tea.Cmd {
	return tea.Batch(waitProgress(m.updates), waitDone(m.done))
}

func (m WatchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			// Keep running until the engine reports the cancelled result.
			if !m.stopped {
				m.stopped = true
				m.cancel()
			}
		}
	case progressMsg:
		m.Progress = layout.Progress(msg)
		return m, waitProgress(m.updates)
	case doneMsg:
		m.Result, m.Err = msg.res, msg.err
		return m, tea.Quit
	}
	return m, nil
}

func (m WatchModel) View() string {
	var b strings.Builder

	b.WriteString(StyleTitle.Render("Force layout"))
	if m.Progress.RunID != "" {
		b.WriteString(" " + watchDimStyle.Render(m.Progress.RunID))
	}
	b.WriteString("\n")
	b.WriteString(watchDimStyle.Render("q cancel"))
	b.WriteString("\n\n")

	b.WriteString(progressBar(m.Progress.Iteration, m.Total))
	b.WriteString(fmt.Sprintf("  %s %s\n",
		StyleNumber.Render(fmt.Sprintf("%d/%d", m.Progress.Iteration, m.Total)),
		watchDimStyle.Render(fmt.Sprintf("temp %.2f", m.Progress.Temperature))))

	if len(m.Progress.Positions) > 0 {
		b.WriteString("\n")
		b.WriteString(positionTable(m.Progress.Positions, watchMaxRows))
		b.WriteString("\n")
	}
	if m.stopped {
		b.WriteString("\n" + StyleWarning.Render("cancelling..."))
	}
	return b.String()
}

func progressBar(done, total int) string {
	filled := 0
	if total > 0 {
		filled = min(watchBarWidth, done*watchBarWidth/total)
	}
	return watchBarStyle.Render(strings.Repeat("█", filled)) +
		watchTrackStyle.Render(strings.Repeat("░", watchBarWidth-filled))
}

// positionTable renders up to limit positions, sorted by node id.
func positionTable(positions map[string]graph.Position, limit int) string {
	ids := make([]string, 0, len(positions))
	for id := range positions {
		ids = append(ids, id)
	}
	slices.Sort(ids)

	rows := make([][]string, 0, min(limit, len(ids)))
	for _, id := range ids[:min(limit, len(ids))] {
		p := positions[id]
		rows = append(rows, []string{id, fmt.Sprintf("%.1f", p.X), fmt.Sprintf("%.1f", p.Y)})
	}

	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(colorDim)).
		Headers("Node", "X", "Y").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == -1 {
				return watchHeadStyle
			}
			if col == 0 {
				return lipgloss.NewStyle().Foreground(colorWhite)
			}
			return lipgloss.NewStyle().Foreground(colorCyan)
		})

	out := t.Render()
	if extra := len(ids) - len(rows); extra > 0 {
		out += "\n" + watchDimStyle.Render(fmt.Sprintf("  +%d more", extra))
	}
	return out
}
