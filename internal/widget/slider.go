package widget

import (
	"math"
	"strconv"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/gokatarajesh/clinic-assessments/internal/assessment"
)

// Slider is a bounded numeric control. It echoes the live value locally and
// emits every change.
type Slider struct {
	question assessment.Question
	value    float64
	touched  bool
	step     float64
	bar      progress.Model
	styles   Styles
}

func NewSlider(q assessment.Question, value *float64, styles Styles) *Slider {
	w := &Slider{
		question: q,
		styles:   styles,
		bar:      progress.New(progress.WithDefaultGradient(), progress.WithoutPercentage(), progress.WithWidth(40)),
	}
	if q.Range == nil {
		return w
	}
	w.value = q.Range.Min
	w.step = q.Range.Step
	if w.step <= 0 {
		w.step = 1
	}
	if value != nil {
		w.value = *value
		w.touched = true
	}
	return w
}

func (w *Slider) QuestionID() string { return w.question.ID }

// Value returns the current value and whether it was set explicitly.
func (w *Slider) Value() (float64, bool) { return w.value, w.touched }

func (w *Slider) Update(msg tea.Msg) (Widget, tea.Cmd) {
	km, ok := msg.(tea.KeyMsg)
	if !ok || w.question.Range == nil {
		return w, nil
	}
	next := w.value
	switch {
	case key.Matches(km, keys.Left):
		next -= w.step
	case key.Matches(km, keys.Right):
		next += w.step
	default:
		return w, nil
	}
	next = w.snap(next)
	if next == w.value && w.touched {
		return w, nil
	}
	w.value, w.touched = next, true
	return w, emit(ValueMsg{QuestionID: w.question.ID, Value: w.value})
}

// snap rounds to the step grid from Min and clamps to the range.
func (w *Slider) snap(v float64) float64 {
	r := w.question.Range
	steps := math.Round((v - r.Min) / w.step)
	v = r.Min + steps*w.step
	return math.Min(math.Max(v, r.Min), r.Max)
}

func (w *Slider) View() string {
	r := w.question.Range
	if r == nil {
		return header(w.question, w.styles)
	}
	pct := (w.value - r.Min) / (r.Max - r.Min)
	readout := formatValue(w.value, r.Unit)
	if !w.touched {
		readout = w.styles.Subtle.Render(readout)
	} else {
		readout = w.styles.Selected.Render(readout)
	}
	scale := w.styles.Subtle.Render(formatValue(r.Min, "") + " … " + formatValue(r.Max, r.Unit))
	return lipgloss.JoinVertical(lipgloss.Left,
		header(w.question, w.styles),
		"",
		w.bar.ViewAs(pct)+"  "+readout,
		scale,
		footer(w.question, w.styles),
	)
}

func formatValue(v float64, unit string) string {
	s := strconv.FormatFloat(v, 'f', -1, 64)
	if unit != "" {
		s += " " + unit
	}
	return s
}
