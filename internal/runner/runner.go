package runner

import (
	"fmt"
	"math"
	"slices"
	"sync"

	"github.com/gokatarajesh/clinic-assessments/internal/assessment"
)

// Runner walks one attempt through a definition. Transitions are serialized by
// an internal mutex because the auto-advance timer fires on its own goroutine.
// Hooks are always invoked after the lock is released, one transition at a
// time and in the order the transitions happened.
type Runner struct {
	mu    sync.Mutex
	def   *assessment.Definition
	hooks Hooks
	opts  Options

	status  Status
	index   int
	answers assessment.AnswerSet
	err     error

	timer    Timer
	timerSeq uint64
	closed   bool

	// hook delivery tickets; issued under mu, delivered under hookMu
	hookMu    sync.Mutex
	hookTurn  *sync.Cond
	issued    uint64
	delivered uint64
}

// New starts a fresh attempt. A definition that fails validation yields a
// runner in the invalid state; Err reports why.
func New(def *assessment.Definition, hooks Hooks, opts Options) *Runner {
	r := newRunner(def, hooks, opts)
	r.reset()
	return r
}

// Restore rebuilds a runner from a saved state. An index that no longer fits
// the definition restores into the invalid state.
func Restore(def *assessment.Definition, st State, hooks Hooks, opts Options) *Runner {
	r := newRunner(def, hooks, opts)
	if r.err != nil {
		return r
	}
	r.index = st.CurrentIndex
	r.answers = st.Answers.Clone()
	switch {
	case st.IsComplete || st.Status == StatusComplete:
		r.status = StatusComplete
		r.index = def.Len() - 1
	case st.CurrentIndex < 0 || st.CurrentIndex >= def.Len():
		r.status = StatusInvalid
		r.err = fmt.Errorf("%w: %d of %d", ErrIndexOutOfRange, st.CurrentIndex, def.Len())
	default:
		r.status = StatusInProgress
	}
	return r
}

func newRunner(def *assessment.Definition, hooks Hooks, opts Options) *Runner {
	if opts.Clock == nil {
		opts.Clock = SystemClock
	}
	if opts.SliderPolicy == "" {
		opts.SliderPolicy = SliderDefaultAnswered
	}
	r := &Runner{def: def, hooks: hooks, opts: opts, answers: assessment.AnswerSet{}}
	r.hookTurn = sync.NewCond(&r.hookMu)
	if def == nil {
		r.status = StatusInvalid
		r.err = fmt.Errorf("%w: %w", ErrInvalid, assessment.ErrEmptyDefinition)
		return r
	}
	if err := def.Validate(); err != nil {
		r.status = StatusInvalid
		r.err = fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	return r
}

// Definition returns the definition being run.
func (r *Runner) Definition() *assessment.Definition {
	return r.def
}

// State returns a copy of the current state.
func (r *Runner) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snapshot()
}

// Err explains the invalid state, or returns nil.
func (r *Runner) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.status != StatusInvalid {
		return nil
	}
	return r.err
}

// Current returns the current question together with its recorded answer.
// The answer is whatever was entered before, so retreating restores it.
func (r *Runner) Current() (assessment.Question, assessment.Answer, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.status != StatusInProgress {
		return assessment.Question{}, assessment.Answer{}, false
	}
	q := r.def.Questions[r.index]
	ans, ok := r.answers[q.ID]
	if !ok {
		return q, assessment.Answer{}, true
	}
	return q, ans, true
}

// CanAdvance reports whether the current question satisfies its completion rule.
func (r *Runner) CanAdvance() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.status == StatusInProgress && r.answered(r.def.Questions[r.index])
}

// Pending reports whether an auto-advance is armed.
func (r *Runner) Pending() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.timer != nil
}

// Select records an option. Single choice overwrites; multi choice toggles,
// honoring the exclusive option. A single-choice answer to the current question
// schedules an auto-advance.
func (r *Runner) Select(questionID, optionID string) error {
	r.mu.Lock()
	q, idx, err := r.lookup(questionID)
	if err != nil {
		r.mu.Unlock()
		return err
	}
	if _, ok := q.Option(optionID); !ok {
		r.mu.Unlock()
		return fmt.Errorf("%w: %q on question %q", ErrUnknownOption, optionID, questionID)
	}

	r.cancelTimer()
	switch q.Kind {
	case assessment.KindSingleChoice:
		r.answers[q.ID] = assessment.SingleAnswer(optionID)
		if idx == r.index {
			r.scheduleAdvance()
		}
	case assessment.KindMultiChoice:
		current := r.answers[q.ID].Choices
		var next []string
		if slices.Contains(current, optionID) {
			next = slices.DeleteFunc(slices.Clone(current), func(id string) bool { return id == optionID })
		} else {
			next = append(slices.Clone(current), optionID)
		}
		r.answers[q.ID] = assessment.MultiAnswer(normalizeSelection(q, current, next)...)
	default:
		r.mu.Unlock()
		return fmt.Errorf("%w: %q is a %s question", ErrKindMismatch, questionID, q.Kind)
	}
	r.finish(nil)
	return nil
}

// SetSelection replaces the full multi-choice selection, as emitted by the
// multi-choice widget. Exclusivity is applied against the stored selection.
func (r *Runner) SetSelection(questionID string, optionIDs []string) error {
	r.mu.Lock()
	q, _, err := r.lookup(questionID)
	if err != nil {
		r.mu.Unlock()
		return err
	}
	if q.Kind != assessment.KindMultiChoice {
		r.mu.Unlock()
		return fmt.Errorf("%w: %q is a %s question", ErrKindMismatch, questionID, q.Kind)
	}
	for _, id := range optionIDs {
		if _, ok := q.Option(id); !ok {
			r.mu.Unlock()
			return fmt.Errorf("%w: %q on question %q", ErrUnknownOption, id, questionID)
		}
	}

	r.cancelTimer()
	current := r.answers[q.ID].Choices
	r.answers[q.ID] = assessment.MultiAnswer(normalizeSelection(q, current, optionIDs)...)
	r.finish(nil)
	return nil
}

// SetValue records a slider value, which must lie within the question range.
func (r *Runner) SetValue(questionID string, value float64) error {
	r.mu.Lock()
	q, _, err := r.lookup(questionID)
	if err != nil {
		r.mu.Unlock()
		return err
	}
	if q.Kind != assessment.KindSlider {
		r.mu.Unlock()
		return fmt.Errorf("%w: %q is a %s question", ErrKindMismatch, questionID, q.Kind)
	}
	if math.IsNaN(value) || value < q.Range.Min || value > q.Range.Max {
		r.mu.Unlock()
		return fmt.Errorf("%w: %g not in [%g, %g]", ErrOutOfRange, value, q.Range.Min, q.Range.Max)
	}

	r.cancelTimer()
	r.answers[q.ID] = assessment.SliderAnswer(value)
	r.finish(nil)
	return nil
}

// Advance moves to the next question, or completes on the last one. It is a
// no-op returning false when the current question is not answered.
func (r *Runner) Advance() bool {
	r.mu.Lock()
	r.cancelTimer()
	moved, completed := r.advance()
	if !moved {
		r.mu.Unlock()
		return false
	}
	r.finish(completed)
	return true
}

// Retreat moves back one question. On the first question it calls OnBack
// instead and returns false.
func (r *Runner) Retreat() bool {
	r.mu.Lock()
	if r.status != StatusInProgress || r.closed {
		r.mu.Unlock()
		return false
	}
	r.cancelTimer()
	if r.index == 0 {
		onBack := r.hooks.OnBack
		ticket := r.ticket()
		r.mu.Unlock()
		r.deliver(ticket, func() {
			if onBack != nil {
				onBack()
			}
		})
		return false
	}
	r.index--
	r.finish(nil)
	return true
}

// Restart discards all answers and returns to the first question. It is also
// the recovery action for a runner restored with a bad index.
func (r *Runner) Restart() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.cancelTimer()
	r.reset()
	r.finish(nil)
}

// Close disposes the runner. A pending auto-advance never fires afterwards.
func (r *Runner) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	r.cancelTimer()
}

func (r *Runner) reset() {
	r.index = 0
	r.answers = assessment.AnswerSet{}
	if r.def != nil && r.def.Validate() == nil {
		r.status = StatusInProgress
		r.err = nil
	}
}

// lookup resolves a question for an answer mutation. Caller holds the lock.
func (r *Runner) lookup(questionID string) (assessment.Question, int, error) {
	switch {
	case r.closed:
		return assessment.Question{}, -1, ErrClosed
	case r.status == StatusInvalid:
		return assessment.Question{}, -1, r.err
	case r.status == StatusComplete:
		return assessment.Question{}, -1, ErrComplete
	}
	q, idx, ok := r.def.Question(questionID)
	if !ok {
		return assessment.Question{}, -1, fmt.Errorf("%w: %q", ErrUnknownQuestion, questionID)
	}
	return q, idx, nil
}

// advance performs the forward transition. Caller holds the lock.
func (r *Runner) advance() (moved bool, completed assessment.AnswerSet) {
	if r.closed || r.status != StatusInProgress {
		return false, nil
	}
	q := r.def.Questions[r.index]
	if !r.answered(q) {
		return false, nil
	}
	if q.Kind == assessment.KindSlider {
		if _, ok := r.answers[q.ID]; !ok {
			r.answers[q.ID] = assessment.SliderAnswer(q.Range.Min)
		}
	}
	if r.index < r.def.Len()-1 {
		r.index++
		return true, nil
	}
	r.status = StatusComplete
	return true, r.answers.Clone()
}

func (r *Runner) answered(q assessment.Question) bool {
	ans, ok := r.answers[q.ID]
	switch q.Kind {
	case assessment.KindSingleChoice:
		return ok && ans.Choice != ""
	case assessment.KindMultiChoice:
		return ok && len(ans.Choices) > 0
	case assessment.KindSlider:
		if ok && ans.Value != nil {
			return true
		}
		return r.opts.SliderPolicy == SliderDefaultAnswered
	}
	return false
}

// scheduleAdvance arms the auto-advance timer. Caller holds the lock and has
// cancelled any previous timer.
func (r *Runner) scheduleAdvance() {
	if r.opts.AutoAdvanceDelay <= 0 || r.closed {
		return
	}
	r.timerSeq++
	seq := r.timerSeq
	r.timer = r.opts.Clock.AfterFunc(r.opts.AutoAdvanceDelay, func() {
		r.fireAutoAdvance(seq)
	})
}

func (r *Runner) fireAutoAdvance(seq uint64) {
	r.mu.Lock()
	if r.closed || seq != r.timerSeq || r.timer == nil {
		r.mu.Unlock()
		return
	}
	r.timer = nil
	moved, completed := r.advance()
	if !moved {
		r.mu.Unlock()
		return
	}
	r.finish(completed)
}

func (r *Runner) cancelTimer() {
	if r.timer != nil {
		r.timer.Stop()
		r.timer = nil
	}
	r.timerSeq++
}

// finish releases the lock and notifies observers. completed is non-nil only
// on the transition into the complete state, so OnComplete fires once.
func (r *Runner) finish(completed assessment.AnswerSet) {
	st := r.snapshot()
	onChange, onComplete := r.hooks.OnChange, r.hooks.OnComplete
	ticket := r.ticket()
	r.mu.Unlock()

	r.deliver(ticket, func() {
		if onChange != nil {
			onChange(st)
		}
		if completed != nil && onComplete != nil {
			onComplete(completed)
		}
	})
}

// ticket reserves the next hook delivery slot. Caller holds the lock.
func (r *Runner) ticket() uint64 {
	t := r.issued
	r.issued++
	return t
}

// deliver runs notify once the hooks of every earlier ticket have returned.
func (r *Runner) deliver(ticket uint64, notify func()) {
	r.hookMu.Lock()
	for r.delivered != ticket {
		r.hookTurn.Wait()
	}
	r.hookMu.Unlock()

	defer func() {
		r.hookMu.Lock()
		r.delivered++
		r.hookTurn.Broadcast()
		r.hookMu.Unlock()
	}()
	notify()
}

func (r *Runner) snapshot() State {
	return State{
		Status:       r.status,
		CurrentIndex: r.index,
		Answers:      r.answers.Clone(),
		IsComplete:   r.status == StatusComplete,
	}
}

// normalizeSelection deduplicates a multi-choice selection and enforces the
// exclusive option: newly choosing it clears the rest, and choosing anything
// else clears it.
func normalizeSelection(q assessment.Question, current, next []string) []string {
	out := make([]string, 0, len(next))
	for _, id := range next {
		if !slices.Contains(out, id) {
			out = append(out, id)
		}
	}
	sentinel := q.ExclusiveOption()
	if sentinel == "" || !slices.Contains(out, sentinel) {
		return out
	}
	if !slices.Contains(current, sentinel) || len(out) == 1 {
		return []string{sentinel}
	}
	return slices.DeleteFunc(out, func(id string) bool { return id == sentinel })
}
