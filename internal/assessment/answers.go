package assessment

import (
	"bytes"
	"encoding/json"
	"fmt"
	"slices"
)

// Answer is the stored response to one question. Exactly one representation is
// used, matching the question kind.
type Answer struct {
	Choice  string   // single choice option id
	Choices []string // multi choice option ids in selection order
	Value   *float64 // slider value
	kind    Kind
}

// SingleAnswer builds a single-choice answer.
func SingleAnswer(optionID string) Answer {
	return Answer{Choice: optionID, kind: KindSingleChoice}
}

// MultiAnswer builds a multi-choice answer. The slice is copied.
func MultiAnswer(optionIDs ...string) Answer {
	return Answer{Choices: slices.Clone(optionIDs), kind: KindMultiChoice}
}

// SliderAnswer builds a slider answer.
func SliderAnswer(v float64) Answer {
	return Answer{Value: &v, kind: KindSlider}
}

// Kind reports which representation the answer holds.
func (a Answer) Kind() Kind {
	if a.kind != "" {
		return a.kind
	}
	switch {
	case a.Value != nil:
		return KindSlider
	case a.Choices != nil:
		return KindMultiChoice
	default:
		return KindSingleChoice
	}
}

// Empty reports whether the answer carries no selection at all.
func (a Answer) Empty() bool {
	switch a.Kind() {
	case KindSlider:
		return a.Value == nil
	case KindMultiChoice:
		return len(a.Choices) == 0
	default:
		return a.Choice == ""
	}
}

// Has reports whether the option id is part of the answer.
func (a Answer) Has(optionID string) bool {
	if a.Kind() == KindMultiChoice {
		return slices.Contains(a.Choices, optionID)
	}
	return a.Choice == optionID
}

// Equal compares two answers by content.
func (a Answer) Equal(b Answer) bool {
	if a.Kind() != b.Kind() {
		return false
	}
	switch a.Kind() {
	case KindSlider:
		if a.Value == nil || b.Value == nil {
			return a.Value == b.Value
		}
		return *a.Value == *b.Value
	case KindMultiChoice:
		return slices.Equal(a.Choices, b.Choices)
	default:
		return a.Choice == b.Choice
	}
}

func (a Answer) clone() Answer {
	out := a
	if a.Choices != nil {
		out.Choices = slices.Clone(a.Choices)
	}
	if a.Value != nil {
		v := *a.Value
		out.Value = &v
	}
	return out
}

// MarshalJSON renders a string, an array of strings, or a number.
func (a Answer) MarshalJSON() ([]byte, error) {
	switch a.Kind() {
	case KindSlider:
		if a.Value == nil {
			return []byte("null"), nil
		}
		return json.Marshal(*a.Value)
	case KindMultiChoice:
		if a.Choices == nil {
			return []byte("[]"), nil
		}
		return json.Marshal(a.Choices)
	default:
		return json.Marshal(a.Choice)
	}
}

// UnmarshalJSON accepts the three shapes produced by MarshalJSON.
func (a *Answer) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return fmt.Errorf("empty answer")
	}
	switch data[0] {
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*a = SingleAnswer(s)
	case '[':
		var ids []string
		if err := json.Unmarshal(data, &ids); err != nil {
			return err
		}
		*a = MultiAnswer(ids...)
	case 'n':
		*a = Answer{kind: KindSlider}
	default:
		var v float64
		if err := json.Unmarshal(data, &v); err != nil {
			return fmt.Errorf("decode answer: %w", err)
		}
		*a = SliderAnswer(v)
	}
	return nil
}

// AnswerSet maps question ids to stored answers for one attempt.
type AnswerSet map[string]Answer

// Clone returns a deep copy so callers cannot mutate runner-owned state.
func (s AnswerSet) Clone() AnswerSet {
	out := make(AnswerSet, len(s))
	for k, v := range s {
		out[k] = v.clone()
	}
	return out
}

// Choice returns the single-choice option id for a question, if any.
func (s AnswerSet) Choice(questionID string) (string, bool) {
	a, ok := s[questionID]
	if !ok || a.Kind() != KindSingleChoice || a.Choice == "" {
		return "", false
	}
	return a.Choice, true
}

// Value returns the slider value for a question, if any.
func (s AnswerSet) Value(questionID string) (float64, bool) {
	a, ok := s[questionID]
	if !ok || a.Value == nil {
		return 0, false
	}
	return *a.Value, true
}
