// Package widget holds the terminal input widgets for each question kind and a
// player that drives a runner with them.
package widget

import (
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/gokatarajesh/clinic-assessments/internal/assessment"
)

// Widget collects the answer to one question and emits it upward as a message.
type Widget interface {
	Update(msg tea.Msg) (Widget, tea.Cmd)
	View() string
	QuestionID() string
}

// ChoiceMsg is emitted by SingleChoice with the chosen option.
type ChoiceMsg struct {
	QuestionID string
	OptionID   string
}

// SelectionMsg is emitted by MultiChoice with the full selection after a toggle.
type SelectionMsg struct {
	QuestionID string
	IDs        []string
}

// ValueMsg is emitted by Slider on every change.
type ValueMsg struct {
	QuestionID string
	Value      float64
}

// For builds the widget matching the question kind, seeded with any stored answer.
func For(q assessment.Question, ans assessment.Answer, styles Styles) Widget {
	switch q.Kind {
	case assessment.KindMultiChoice:
		return NewMultiChoice(q, ans.Choices, styles)
	case assessment.KindSlider:
		return NewSlider(q, ans.Value, styles)
	default:
		return NewSingleChoice(q, ans.Choice, styles)
	}
}

func emit(msg tea.Msg) tea.Cmd {
	return func() tea.Msg { return msg }
}

// Styles are the lipgloss styles shared by the widgets and the player.
type Styles struct {
	Title    lipgloss.Style
	Prompt   lipgloss.Style
	Subtle   lipgloss.Style
	Cursor   lipgloss.Style
	Selected lipgloss.Style
	Error    lipgloss.Style
}

// DefaultStyles returns colored styles, or plain ones when noColor is set.
func DefaultStyles(noColor bool) Styles {
	if noColor {
		plain := lipgloss.NewStyle()
		return Styles{
			Title:    plain.Bold(true),
			Prompt:   plain,
			Subtle:   plain,
			Cursor:   plain,
			Selected: plain,
			Error:    plain,
		}
	}
	return Styles{
		Title:    lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("33")),
		Prompt:   lipgloss.NewStyle().Bold(true),
		Subtle:   lipgloss.NewStyle().Foreground(lipgloss.Color("242")),
		Cursor:   lipgloss.NewStyle().Foreground(lipgloss.Color("212")),
		Selected: lipgloss.NewStyle().Foreground(lipgloss.Color("42")),
		Error:    lipgloss.NewStyle().Foreground(lipgloss.Color("196")),
	}
}

func header(q assessment.Question, styles Styles) string {
	lines := []string{styles.Prompt.Render(q.Prompt)}
	if q.Subtitle != "" {
		lines = append(lines, styles.Subtle.Render(q.Subtitle))
	}
	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}

func footer(q assessment.Question, styles Styles) string {
	if q.HelperText == "" {
		return ""
	}
	return styles.Subtle.Render(q.HelperText)
}
