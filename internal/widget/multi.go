package widget

import (
	"slices"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/gokatarajesh/clinic-assessments/internal/assessment"
)

// MultiChoice renders independently toggleable options. Each toggle emits the
// full selection; the runner applies the exclusive option and the player feeds
// the normalized set back through SetSelected.
type MultiChoice struct {
	question assessment.Question
	cursor   int
	selected []string
	styles   Styles
}

func NewMultiChoice(q assessment.Question, selected []string, styles Styles) *MultiChoice {
	return &MultiChoice{question: q, selected: slices.Clone(selected), styles: styles}
}

func (w *MultiChoice) QuestionID() string { return w.question.ID }

// Selected returns a copy of the current selection.
func (w *MultiChoice) Selected() []string { return slices.Clone(w.selected) }

// SetSelected replaces the local selection.
func (w *MultiChoice) SetSelected(ids []string) { w.selected = slices.Clone(ids) }

func (w *MultiChoice) Update(msg tea.Msg) (Widget, tea.Cmd) {
	km, ok := msg.(tea.KeyMsg)
	if !ok || len(w.question.Options) == 0 {
		return w, nil
	}
	switch {
	case key.Matches(km, keys.Up):
		w.cursor = (w.cursor - 1 + len(w.question.Options)) % len(w.question.Options)
	case key.Matches(km, keys.Down):
		w.cursor = (w.cursor + 1) % len(w.question.Options)
	case key.Matches(km, keys.Toggle):
		id := w.question.Options[w.cursor].ID
		if i := slices.Index(w.selected, id); i >= 0 {
			w.selected = slices.Delete(w.selected, i, i+1)
		} else {
			w.selected = append(w.selected, id)
		}
		return w, emit(SelectionMsg{QuestionID: w.question.ID, IDs: slices.Clone(w.selected)})
	}
	return w, nil
}

func (w *MultiChoice) View() string {
	var b strings.Builder
	for i, opt := range w.question.Options {
		b.WriteString(optionLine(i == w.cursor, slices.Contains(w.selected, opt.ID), "[x]", "[ ]", opt, w.styles))
		b.WriteByte('\n')
	}
	return lipgloss.JoinVertical(lipgloss.Left, header(w.question, w.styles), "", b.String(), footer(w.question, w.styles))
}
