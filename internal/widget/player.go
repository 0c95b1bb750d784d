package widget

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/gokatarajesh/clinic-assessments/internal/assessment"
	"github.com/gokatarajesh/clinic-assessments/internal/runner"
	"github.com/gokatarajesh/clinic-assessments/internal/scoring"
)

// Outcome is how a player session ended.
type Outcome int

const (
	OutcomeInProgress Outcome = iota
	OutcomeCompleted
	OutcomeBack
	OutcomeQuit
)

func (o Outcome) String() string {
	switch o {
	case OutcomeCompleted:
		return "completed"
	case OutcomeBack:
		return "back"
	case OutcomeQuit:
		return "quit"
	}
	return "in_progress"
}

// PlayerConfig configures a Player.
type PlayerConfig struct {
	Definition *assessment.Definition
	// Engine derives metrics for the results screen; nil shows answers only.
	Engine *scoring.Engine
	// AutoAdvanceDelay pauses after a single-choice answer before moving on. Zero disables it.
	AutoAdvanceDelay time.Duration
	SliderPolicy     runner.SliderPolicy
	// OnComplete runs once with the final answers, after labels and metrics are derived.
	OnComplete func(assessment.AnswerSet, []assessment.LabeledAnswer, scoring.Metrics)
	NoColor    bool
}

// autoAdvanceMsg fires the pending auto-advance identified by seq.
type autoAdvanceMsg struct {
	seq uint64
}

// Player runs one assessment in the terminal. The runner owns all state; the
// player only renders it and translates widget messages into runner calls.
// Auto-advance is a tea.Tick rather than the runner's timer, so every state
// change happens on the Bubble Tea update loop.
type Player struct {
	cfg    PlayerConfig
	runner *runner.Runner
	widget Widget
	index  int
	seq    uint64

	outcome Outcome
	labels  []assessment.LabeledAnswer
	metrics scoring.Metrics
	problem string

	styles Styles
	help   help.Model
}

// NewPlayer builds a player. A definition that cannot run yields an error.
func NewPlayer(cfg PlayerConfig) (*Player, error) {
	p := &Player{
		cfg:    cfg,
		styles: DefaultStyles(cfg.NoColor),
		help:   help.New(),
	}
	p.runner = runner.New(cfg.Definition, runner.Hooks{
		OnComplete: p.onComplete,
		OnBack:     func() { p.outcome = OutcomeBack },
	}, runner.Options{SliderPolicy: cfg.SliderPolicy})
	if err := p.runner.Err(); err != nil {
		return nil, err
	}
	p.rebuild()
	return p, nil
}

// Outcome reports how the session ended.
func (p *Player) Outcome() Outcome { return p.outcome }

// Labels returns the resolved answers once completed.
func (p *Player) Labels() []assessment.LabeledAnswer { return p.labels }

// Metrics returns the derived metrics once completed.
func (p *Player) Metrics() scoring.Metrics { return p.metrics }

// State exposes the runner state.
func (p *Player) State() runner.State { return p.runner.State() }

func (p *Player) Init() tea.Cmd { return nil }

func (p *Player) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		p.help.Width = msg.Width
		return p, nil

	case tea.KeyMsg:
		return p.handleKey(msg)

	case ChoiceMsg:
		if !p.apply(p.runner.Select(msg.QuestionID, msg.OptionID)) {
			return p, nil
		}
		if p.cfg.AutoAdvanceDelay <= 0 || msg.QuestionID != p.widget.QuestionID() {
			return p, nil
		}
		p.seq++
		seq := p.seq
		return p, tea.Tick(p.cfg.AutoAdvanceDelay, func(time.Time) tea.Msg { return autoAdvanceMsg{seq: seq} })

	case SelectionMsg:
		if p.apply(p.runner.SetSelection(msg.QuestionID, msg.IDs)) {
			if mc, ok := p.widget.(*MultiChoice); ok && mc.QuestionID() == msg.QuestionID {
				mc.SetSelected(p.runner.State().Answers[msg.QuestionID].Choices)
			}
		}
		return p, nil

	case ValueMsg:
		p.apply(p.runner.SetValue(msg.QuestionID, msg.Value))
		return p, nil

	case autoAdvanceMsg:
		if msg.seq != p.seq {
			return p, nil
		}
		return p.advance()
	}
	return p, nil
}

func (p *Player) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if p.outcome == OutcomeCompleted {
		if key.Matches(msg, keys.Restart) {
			return p.restart()
		}
		return p, tea.Quit
	}
	switch {
	case key.Matches(msg, keys.Quit):
		p.seq++
		p.outcome = OutcomeQuit
		p.runner.Close()
		return p, tea.Quit
	case key.Matches(msg, keys.Advance):
		return p.advance()
	case key.Matches(msg, keys.Back):
		p.seq++
		if p.runner.Retreat() {
			p.rebuild()
			return p, nil
		}
		if p.outcome == OutcomeBack {
			p.runner.Close()
			return p, tea.Quit
		}
		return p, nil
	case key.Matches(msg, keys.Restart):
		return p.restart()
	}
	var cmd tea.Cmd
	p.widget, cmd = p.widget.Update(msg)
	return p, cmd
}

func (p *Player) advance() (tea.Model, tea.Cmd) {
	p.seq++
	if !p.runner.Advance() {
		p.problem = "Answer this question to continue."
		return p, nil
	}
	p.problem = ""
	if p.outcome != OutcomeCompleted {
		p.rebuild()
	}
	return p, nil
}

func (p *Player) restart() (tea.Model, tea.Cmd) {
	p.seq++
	p.runner.Restart()
	p.outcome = OutcomeInProgress
	p.labels, p.metrics, p.problem = nil, nil, ""
	p.rebuild()
	return p, nil
}

// apply records a runner error for display and reports success.
func (p *Player) apply(err error) bool {
	if err != nil {
		p.problem = err.Error()
		return false
	}
	p.problem = ""
	return true
}

func (p *Player) rebuild() {
	q, ans, ok := p.runner.Current()
	if !ok {
		return
	}
	p.index = p.runner.State().CurrentIndex
	p.widget = For(q, ans, p.styles)
}

func (p *Player) onComplete(answers assessment.AnswerSet) {
	p.outcome = OutcomeCompleted
	p.labels = assessment.ResolveLabels(p.cfg.Definition, answers)
	if p.cfg.Engine != nil {
		p.metrics = p.cfg.Engine.Derive(answers)
	}
	if p.cfg.OnComplete != nil {
		p.cfg.OnComplete(answers, p.labels, p.metrics)
	}
}

func (p *Player) View() string {
	def := p.cfg.Definition
	title := p.styles.Title.Render(def.Title)
	if p.outcome == OutcomeCompleted {
		return lipgloss.JoinVertical(lipgloss.Left, title, "", p.resultsView(), "",
			p.styles.Subtle.Render("ctrl+r restart • any key to exit"))
	}
	if p.widget == nil {
		return title
	}
	progress := p.styles.Subtle.Render(fmt.Sprintf("Question %d of %d", p.index+1, def.Len()))
	parts := []string{title, progress, "", p.widget.View()}
	if p.problem != "" {
		parts = append(parts, p.styles.Error.Render(p.problem))
	}
	parts = append(parts, p.help.View(keys))
	return lipgloss.JoinVertical(lipgloss.Left, parts...)
}

func (p *Player) resultsView() string {
	var b strings.Builder
	for _, l := range p.labels {
		b.WriteString(p.styles.Prompt.Render(l.Question))
		b.WriteString("\n  ")
		b.WriteString(p.styles.Selected.Render(l.Answer))
		b.WriteByte('\n')
	}
	if len(p.metrics) > 0 {
		b.WriteByte('\n')
		for _, m := range p.metrics {
			name := m.Label
			if name == "" {
				name = m.Name
			}
			value := strconv.FormatFloat(m.Value, 'f', -1, 64) + " / " + strconv.FormatFloat(m.Max, 'f', -1, 64)
			if m.Unit != "" {
				value += " " + m.Unit
			}
			b.WriteString(fmt.Sprintf("%-28s %s\n", name, value))
		}
	}
	return b.String()
}
