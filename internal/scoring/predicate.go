package scoring

import (
	"errors"

	"github.com/gokatarajesh/clinic-assessments/internal/assessment"
)

// Predicate tests an answer set.
type Predicate func(assessment.AnswerSet) bool

// Condition is the declarative form of a predicate. Exactly one of Equals,
// Includes, AtLeast or Below is set; Includes matches if any listed id is chosen.
type Condition struct {
	Question string   `json:"question" yaml:"question"`
	Equals   string   `json:"equals,omitempty" yaml:"equals,omitempty"`
	Includes []string `json:"includes,omitempty" yaml:"includes,omitempty"`
	AtLeast  *float64 `json:"at_least,omitempty" yaml:"at_least,omitempty"`
	Below    *float64 `json:"below,omitempty" yaml:"below,omitempty"`
}

func (c Condition) validate() error {
	if c.Question == "" {
		return errors.New("condition question is required")
	}
	set := 0
	if c.Equals != "" {
		set++
	}
	if len(c.Includes) > 0 {
		set++
	}
	if c.AtLeast != nil {
		set++
	}
	if c.Below != nil {
		set++
	}
	if set != 1 {
		return errors.New("condition needs exactly one of equals, includes, at_least, below")
	}
	return nil
}

func (c Condition) kind() string {
	switch {
	case c.Equals != "":
		return "equals"
	case len(c.Includes) > 0:
		return "includes"
	case c.AtLeast != nil:
		return "at_least"
	case c.Below != nil:
		return "below"
	}
	return "no condition"
}

func (c Condition) fits(kind assessment.Kind) bool {
	switch c.kind() {
	case "equals":
		return kind == assessment.KindSingleChoice
	case "includes":
		return kind == assessment.KindSingleChoice || kind == assessment.KindMultiChoice
	case "at_least", "below":
		return kind == assessment.KindSlider
	}
	return false
}

// Predicate compiles the condition.
func (c Condition) Predicate() Predicate {
	switch {
	case c.Equals != "":
		return AnswerIs(c.Question, c.Equals)
	case len(c.Includes) > 0:
		return AnswerIncludesAny(c.Question, c.Includes...)
	case c.AtLeast != nil:
		return ValueAtLeast(c.Question, *c.AtLeast)
	case c.Below != nil:
		return ValueBelow(c.Question, *c.Below)
	}
	return func(assessment.AnswerSet) bool { return false }
}

// AnswerIs matches a single-choice answer.
func AnswerIs(questionID, optionID string) Predicate {
	return func(a assessment.AnswerSet) bool {
		got, ok := a.Choice(questionID)
		return ok && got == optionID
	}
}

// AnswerIncludesAny matches when any of the ids was chosen (single or multi choice).
func AnswerIncludesAny(questionID string, optionIDs ...string) Predicate {
	return func(a assessment.AnswerSet) bool {
		ans, ok := a[questionID]
		if !ok {
			return false
		}
		for _, id := range optionIDs {
			if ans.Has(id) {
				return true
			}
		}
		return false
	}
}

// ValueAtLeast matches a slider value >= min.
func ValueAtLeast(questionID string, min float64) Predicate {
	return func(a assessment.AnswerSet) bool {
		v, ok := a.Value(questionID)
		return ok && v >= min
	}
}

// ValueBelow matches a slider value < max.
func ValueBelow(questionID string, max float64) Predicate {
	return func(a assessment.AnswerSet) bool {
		v, ok := a.Value(questionID)
		return ok && v < max
	}
}
