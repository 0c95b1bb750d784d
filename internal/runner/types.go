package runner

import (
	"errors"
	"time"

	"github.com/gokatarajesh/clinic-assessments/internal/assessment"
)

// Status is the runner lifecycle state.
type Status string

// Runner states.
const (
	StatusInProgress Status = "in_progress"
	StatusComplete   Status = "complete"
	StatusInvalid    Status = "invalid"
)

// SliderPolicy decides when a slider question counts as answered.
type SliderPolicy string

const (
	// SliderDefaultAnswered treats an untouched slider as set to its minimum.
	SliderDefaultAnswered SliderPolicy = "default_answered"
	// SliderRequireTouch requires an explicit value before advancing.
	SliderRequireTouch SliderPolicy = "require_touch"
)

// DefaultAutoAdvanceDelay is the pause before a single-choice answer advances.
const DefaultAutoAdvanceDelay = 300 * time.Millisecond

var (
	ErrUnknownQuestion = errors.New("unknown question")
	ErrUnknownOption   = errors.New("unknown option")
	ErrOutOfRange      = errors.New("value outside slider range")
	ErrKindMismatch    = errors.New("answer does not match question kind")
	ErrComplete        = errors.New("assessment already complete")
	ErrInvalid         = errors.New("assessment cannot be run")
	ErrIndexOutOfRange = errors.New("current question index out of range")
	ErrClosed          = errors.New("runner closed")
)

// Hooks are the runner's only channel to the outside world.
// They may read the runner but must not call its mutating methods.
type Hooks struct {
	// OnComplete receives a copy of the answers once, on the final advance.
	OnComplete func(assessment.AnswerSet)
	// OnBack is called when retreating from the first question.
	OnBack func()
	// OnChange observes every state transition, including timer-driven ones.
	OnChange func(State)
}

// Options tune runner behavior.
type Options struct {
	// AutoAdvanceDelay is the single-choice auto-advance pause. Zero disables it.
	AutoAdvanceDelay time.Duration
	SliderPolicy     SliderPolicy
	Clock            Clock
}

// DefaultOptions returns the interactive defaults.
func DefaultOptions() Options {
	return Options{
		AutoAdvanceDelay: DefaultAutoAdvanceDelay,
		SliderPolicy:     SliderDefaultAnswered,
		Clock:            SystemClock,
	}
}

// State is the serializable runner state for one attempt.
type State struct {
	Status       Status               `json:"status"`
	CurrentIndex int                  `json:"current_index"`
	Answers      assessment.AnswerSet `json:"answers"`
	IsComplete   bool                 `json:"is_complete"`
}
