package assessment

import (
	"errors"
	"fmt"
	"strings"
)

// ErrEmptyDefinition is reported for a definition with no questions.
var ErrEmptyDefinition = errors.New("definition has no questions")

// Violation describes one broken structural invariant.
type Violation struct {
	QuestionID string
	Message    string
	Err        error
}

func (v Violation) String() string {
	if v.QuestionID == "" {
		return v.Message
	}
	return fmt.Sprintf("question %q: %s", v.QuestionID, v.Message)
}

// DefinitionError aggregates every violation found in a definition.
type DefinitionError struct {
	DefinitionID string
	Violations   []Violation
}

func (e *DefinitionError) Error() string {
	parts := make([]string, len(e.Violations))
	for i, v := range e.Violations {
		parts[i] = v.String()
	}
	return fmt.Sprintf("invalid definition %q: %s", e.DefinitionID, strings.Join(parts, "; "))
}

// Unwrap exposes sentinel errors carried by violations to errors.Is.
func (e *DefinitionError) Unwrap() []error {
	var errs []error
	for _, v := range e.Violations {
		if v.Err != nil {
			errs = append(errs, v.Err)
		}
	}
	return errs
}

// Validate checks the structural invariants of a definition and returns a
// *DefinitionError listing all of them, or nil.
func (d *Definition) Validate() error {
	var violations []Violation
	add := func(qid, format string, args ...any) {
		violations = append(violations, Violation{QuestionID: qid, Message: fmt.Sprintf(format, args...)})
	}

	if strings.TrimSpace(d.ID) == "" {
		add("", "id is required")
	}
	if len(d.Questions) == 0 {
		violations = append(violations, Violation{Message: ErrEmptyDefinition.Error(), Err: ErrEmptyDefinition})
	}

	seen := make(map[string]struct{}, len(d.Questions))
	for i, q := range d.Questions {
		qid := q.ID
		if strings.TrimSpace(qid) == "" {
			add(fmt.Sprintf("#%d", i), "id is required")
		} else if _, dup := seen[qid]; dup {
			add(qid, "duplicate question id")
		}
		seen[qid] = struct{}{}

		if strings.TrimSpace(q.Prompt) == "" {
			add(qid, "prompt is required")
		}

		switch q.Kind {
		case KindSingleChoice, KindMultiChoice:
			if len(q.Options) == 0 {
				add(qid, "choice question needs at least one option")
			}
			optIDs := make(map[string]struct{}, len(q.Options))
			for _, opt := range q.Options {
				if opt.ID == "" {
					add(qid, "option id is required")
					continue
				}
				if _, dup := optIDs[opt.ID]; dup {
					add(qid, "duplicate option id %q", opt.ID)
				}
				optIDs[opt.ID] = struct{}{}
			}
			if q.Exclusive != "" {
				if q.Kind != KindMultiChoice {
					add(qid, "exclusive option only applies to multi choice")
				} else if _, ok := optIDs[q.Exclusive]; !ok {
					add(qid, "exclusive option %q is not an option", q.Exclusive)
				}
			}
			if q.Range != nil {
				add(qid, "choice question cannot define a range")
			}
		case KindSlider:
			if q.Range == nil {
				add(qid, "slider needs a range")
				continue
			}
			if q.Range.Min >= q.Range.Max {
				add(qid, "slider range min %g must be below max %g", q.Range.Min, q.Range.Max)
			}
			if q.Range.Step < 0 {
				add(qid, "slider step cannot be negative")
			}
			if len(q.Options) > 0 {
				add(qid, "slider cannot define options")
			}
		default:
			add(qid, "unknown kind %q", q.Kind)
		}
	}

	if len(violations) == 0 {
		return nil
	}
	return &DefinitionError{DefinitionID: d.ID, Violations: violations}
}
