package cli

import (
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/matzehuels/forcelayout/pkg/graph"
	"github.com/matzehuels/forcelayout/pkg/layout"
	"github.com/matzehuels/forcelayout/pkg/pipeline"
)

func TestWatchModelUpdate(t *testing.T) {
	cancelled := 0
	m := newWatchModel(100, nil, nil, func() { cancelled++ })

	next, cmd := m.Update(progressMsg{
		RunID:       "run-1",
		Iteration:   40,
		Temperature: 12.5,
		Positions:   map[string]graph.Position{"b": {X: 1, Y: 2}, "a": {X: 3, Y: 4}},
	})
	m = next.(WatchModel)
	if m.Progress.Iteration != 40 || cmd == nil {
		t.Fatalf("progress not applied: %+v", m.Progress)
	}
	view := m.View()
	for _, want := range []string{"run-1", "40/100", "temp 12.50", "Node"} {
		if !strings.Contains(view, want) {
			t.Errorf("view missing %q:\n%s", want, view)
		}
	}
	if a, b := strings.Index(view, "│a"), strings.Index(view, "│b"); a < 0 || b < a {
		t.Errorf("positions not sorted by id:\n%s", view)
	}

	next, _ = m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	next, _ = next.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	m = next.(WatchModel)
	if cancelled != 1 || !strings.Contains(m.View(), "cancelling") {
		t.Errorf("cancel calls = %d", cancelled)
	}

	res := &pipeline.Result{Layout: &layout.Result{Reason: layout.ReasonCancelled}}
	next, cmd = m.Update(doneMsg{res: res})
	m = next.(WatchModel)
	if m.Result != res || cmd == nil {
		t.Errorf("done not applied")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("done should quit the program")
	}
}

func TestPositionTableLimit(t *testing.T) {
	positions := map[string]graph.Position{}
	for _, id := range []string{"a", "b", "c", "d"} {
		positions[id] = graph.Position{}
	}
	out := positionTable(positions, 2)
	if !strings.Contains(out, "+2 more") || strings.Contains(out, "│c") {
		t.Errorf("table:\n%s", out)
	}
}

func TestProgressBar(t *testing.T) {
	tests := []struct {
		done, total int
		filled      int
	}{
		{0, 100, 0},
		{50, 100, watchBarWidth / 2},
		{200, 100, watchBarWidth},
		{5, 0, 0},
	}
	for _, tt := range tests {
		bar := progressBar(tt.done, tt.total)
		if got := strings.Count(bar, "█"); got != tt.filled {
			t.Errorf("progressBar(%d, %d) filled = %d, want %d", tt.done, tt.total, got, tt.filled)
		}
	}
}
