package widget

import (
	"strings"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/gokatarajesh/clinic-assessments/internal/assessment"
)

// SingleChoice renders options as a list with a cursor. Choosing emits exactly
// one option id.
type SingleChoice struct {
	question assessment.Question
	cursor   int
	selected string
	styles   Styles
}

func NewSingleChoice(q assessment.Question, selected string, styles Styles) *SingleChoice {
	w := &SingleChoice{question: q, selected: selected, styles: styles}
	for i, opt := range q.Options {
		if opt.ID == selected {
			w.cursor = i
		}
	}
	return w
}

func (w *SingleChoice) QuestionID() string { return w.question.ID }

// Selected returns the chosen option id, or "" before the first choice.
func (w *SingleChoice) Selected() string { return w.selected }

func (w *SingleChoice) Update(msg tea.Msg) (Widget, tea.Cmd) {
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
		w.selected = w.question.Options[w.cursor].ID
		return w, emit(ChoiceMsg{QuestionID: w.question.ID, OptionID: w.selected})
	}
	return w, nil
}

func (w *SingleChoice) View() string {
	var b strings.Builder
	for i, opt := range w.question.Options {
		b.WriteString(optionLine(i == w.cursor, opt.ID == w.selected, "(•)", "( )", opt, w.styles))
		b.WriteByte('\n')
	}
	return lipgloss.JoinVertical(lipgloss.Left, header(w.question, w.styles), "", b.String(), footer(w.question, w.styles))
}

func optionLine(atCursor, chosen bool, on, off string, opt assessment.Option, styles Styles) string {
	cursor := "  "
	if atCursor {
		cursor = styles.Cursor.Render("> ")
	}
	mark := off
	label := opt.Label
	if chosen {
		mark = on
		label = styles.Selected.Render(label)
	}
	line := cursor + mark + " " + label
	if opt.Description != "" {
		line += " " + styles.Subtle.Render(opt.Description)
	}
	return line
}
