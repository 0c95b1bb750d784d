package scoring

import (
	"errors"
	"fmt"
	"math"

	"github.com/gokatarajesh/clinic-assessments/internal/assessment"
)

// MetricSpec declares one derived output: where it starts and where it caps.
type MetricSpec struct {
	Name  string  `json:"name" yaml:"name"`
	Label string  `json:"label,omitempty" yaml:"label,omitempty"`
	Unit  string  `json:"unit,omitempty" yaml:"unit,omitempty"`
	Base  float64 `json:"base" yaml:"base"`
	Max   float64 `json:"max" yaml:"max"`
}

// Rule adds Delta to Metric when its condition matches the answers.
type Rule struct {
	Name   string    `json:"name,omitempty" yaml:"name,omitempty"`
	When   Condition `json:"when" yaml:"when"`
	Metric string    `json:"metric" yaml:"metric"`
	Delta  float64   `json:"delta" yaml:"delta"`
}

// Table is a complete rule set for one assessment.
type Table struct {
	Metrics []MetricSpec `json:"metrics" yaml:"metrics"`
	Rules   []Rule       `json:"rules" yaml:"rules"`
}

// Metric is one derived value.
type Metric struct {
	Name  string  `json:"name"`
	Label string  `json:"label,omitempty"`
	Unit  string  `json:"unit,omitempty"`
	Value float64 `json:"value"`
	Max   float64 `json:"max"`
}

// Metrics holds derived values in table order.
type Metrics []Metric

// Get returns a metric value by name.
func (m Metrics) Get(name string) (float64, bool) {
	for _, metric := range m {
		if metric.Name == name {
			return metric.Value, true
		}
	}
	return 0, false
}

var ErrInvalidTable = errors.New("invalid scoring table")

// Validate checks that metrics are well-formed and rules reference them.
func (t *Table) Validate() error {
	names := make(map[string]struct{}, len(t.Metrics))
	for _, m := range t.Metrics {
		if m.Name == "" {
			return fmt.Errorf("%w: metric name is required", ErrInvalidTable)
		}
		if _, dup := names[m.Name]; dup {
			return fmt.Errorf("%w: duplicate metric %q", ErrInvalidTable, m.Name)
		}
		if m.Max < m.Base {
			return fmt.Errorf("%w: metric %q max %g is below base %g", ErrInvalidTable, m.Name, m.Max, m.Base)
		}
		names[m.Name] = struct{}{}
	}
	for i, r := range t.Rules {
		if _, ok := names[r.Metric]; !ok {
			return fmt.Errorf("%w: rule %d references unknown metric %q", ErrInvalidTable, i, r.Metric)
		}
		if err := r.When.validate(); err != nil {
			return fmt.Errorf("%w: rule %d: %v", ErrInvalidTable, i, err)
		}
	}
	return nil
}

// CheckAgainst verifies that every rule references a question of the
// definition, with a condition that fits the question kind: equals on single
// choice, includes on either choice kind, at_least and below on sliders.
func (t *Table) CheckAgainst(def *assessment.Definition) error {
	for i, r := range t.Rules {
		q, _, ok := def.Question(r.When.Question)
		if !ok {
			return fmt.Errorf("%w: rule %d references unknown question %q", ErrInvalidTable, i, r.When.Question)
		}
		if r.When.validate() == nil && !r.When.fits(q.Kind) {
			return fmt.Errorf("%w: rule %d uses %s on %s question %q", ErrInvalidTable, i, r.When.kind(), q.Kind, q.ID)
		}
		for _, id := range append([]string{r.When.Equals}, r.When.Includes...) {
			if id == "" {
				continue
			}
			if _, ok := q.Option(id); !ok {
				return fmt.Errorf("%w: rule %d references unknown option %q", ErrInvalidTable, i, id)
			}
		}
	}
	return nil
}

// Engine derives metrics from answers. It holds no mutable state.
type Engine struct {
	metrics []MetricSpec
	rules   []compiledRule
}

type compiledRule struct {
	Rule
	match Predicate
}

// NewEngine compiles a table. The table must be valid.
func NewEngine(t Table) (*Engine, error) {
	if err := t.Validate(); err != nil {
		return nil, err
	}
	e := &Engine{metrics: append([]MetricSpec(nil), t.Metrics...)}
	for _, r := range t.Rules {
		e.rules = append(e.rules, compiledRule{Rule: r, match: r.When.Predicate()})
	}
	return e, nil
}

// Derive starts every metric at its base, adds the delta of each matching rule
// in table order, then clamps to [0, max]. Absent answers match no rule.
func (e *Engine) Derive(answers assessment.AnswerSet) Metrics {
	values := make(map[string]float64, len(e.metrics))
	for _, m := range e.metrics {
		values[m.Name] = m.Base
	}
	for _, r := range e.rules {
		if r.match(answers) {
			values[r.Metric] += r.Delta
		}
	}

	out := make(Metrics, 0, len(e.metrics))
	for _, m := range e.metrics {
		out = append(out, Metric{
			Name:  m.Name,
			Label: m.Label,
			Unit:  m.Unit,
			Value: clamp(values[m.Name], 0, m.Max),
			Max:   m.Max,
		})
	}
	return out
}

// Fired lists the names (or indexes) of rules that match, for explanations.
func (e *Engine) Fired(answers assessment.AnswerSet) []string {
	var fired []string
	for i, r := range e.rules {
		if !r.match(answers) {
			continue
		}
		name := r.Name
		if name == "" {
			name = fmt.Sprintf("rule-%d", i)
		}
		fired = append(fired, name)
	}
	return fired
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(v, hi))
}
