package runner

import (
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gokatarajesh/clinic-assessments/internal/assessment"
)

// manualClock fires timers only when the test moves time forward.
type manualClock struct {
	mu     sync.Mutex
	now    time.Duration
	timers []*manualTimer
}

type manualTimer struct {
	clock   *manualClock
	at      time.Duration
	fn      func()
	stopped bool
	fired   bool
}

func (c *manualClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &manualTimer{clock: c, at: c.now + d, fn: f}
	c.timers = append(c.timers, t)
	return t
}

func (t *manualTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	wasActive := !t.stopped && !t.fired
	t.stopped = true
	return wasActive
}

func (c *manualClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now += d
	var due []*manualTimer
	for _, t := range c.timers {
		if !t.stopped && !t.fired && t.at <= c.now {
			t.fired = true
			due = append(due, t)
		}
	}
	c.mu.Unlock()
	for _, t := range due {
		t.fn()
	}
}

func (c *manualClock) pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, t := range c.timers {
		if !t.stopped && !t.fired {
			n++
		}
	}
	return n
}

type recorder struct {
	completions []assessment.AnswerSet
	backs       int
	changes     []State
}

func (r *recorder) hooks() Hooks {
	return Hooks{
		OnComplete: func(a assessment.AnswerSet) { r.completions = append(r.completions, a) },
		OnBack:     func() { r.backs++ },
		OnChange:   func(s State) { r.changes = append(r.changes, s) },
	}
}

func twoQuestionDefinition() *assessment.Definition {
	return &assessment.Definition{
		ID:    "example",
		Title: "Example",
		Questions: []assessment.Question{
			{
				ID: "a", Kind: assessment.KindSingleChoice, Prompt: "Q1",
				Options: []assessment.Option{{ID: "yes", Label: "Yes"}, {ID: "no", Label: "No"}},
			},
			{
				ID: "b", Kind: assessment.KindMultiChoice, Prompt: "Q2",
				Options: []assessment.Option{{ID: "x", Label: "X"}, {ID: "y", Label: "Y"}, {ID: "none", Label: "None"}},
			},
		},
	}
}

func threeQuestionDefinition() *assessment.Definition {
	def := twoQuestionDefinition()
	def.Questions = append(def.Questions, assessment.Question{
		ID: "age", Kind: assessment.KindSlider, Prompt: "Age",
		Range: &assessment.Range{Min: 18, Max: 80, Unit: "years"},
	})
	return def
}

func newTestRunner(t *testing.T, def *assessment.Definition, opts Options) (*Runner, *recorder, *manualClock) {
	t.Helper()
	clock := &manualClock{}
	rec := &recorder{}
	opts.Clock = clock
	r := New(def, rec.hooks(), opts)
	t.Cleanup(r.Close)
	return r, rec, clock
}

func TestExampleScenario(t *testing.T) {
	r, rec, clock := newTestRunner(t, twoQuestionDefinition(), Options{AutoAdvanceDelay: DefaultAutoAdvanceDelay})

	require.NoError(t, r.Select("a", "yes"))
	assert.Equal(t, 0, r.State().CurrentIndex, "auto-advance waits for the delay")

	clock.Advance(DefaultAutoAdvanceDelay)
	assert.Equal(t, 1, r.State().CurrentIndex)

	require.NoError(t, r.SetSelection("b", []string{"x"}))
	require.NoError(t, r.SetSelection("b", []string{"x", "y"}))
	require.NoError(t, r.SetSelection("b", []string{"x", "y", "none"}))
	assert.Equal(t, []string{"none"}, r.State().Answers["b"].Choices)

	assert.True(t, r.Advance())
	st := r.State()
	assert.Equal(t, StatusComplete, st.Status)
	assert.True(t, st.IsComplete)

	require.Len(t, rec.completions, 1)
	got := rec.completions[0]
	assert.Equal(t, "yes", got["a"].Choice)
	assert.Equal(t, []string{"none"}, got["b"].Choices)
}

func TestProgressMonotonicity(t *testing.T) {
	def := threeQuestionDefinition()
	r, rec, _ := newTestRunner(t, def, Options{})

	answer := []func() error{
		func() error { return r.Select("a", "no") },
		func() error { return r.Select("b", "x") },
		func() error { return r.SetValue("age", 40) },
	}
	for i, fn := range answer {
		assert.Equal(t, i, r.State().CurrentIndex)
		require.NoError(t, fn())
		assert.True(t, r.Advance())
	}

	assert.True(t, r.State().IsComplete)
	assert.Len(t, rec.completions, 1)

	assert.False(t, r.Advance(), "complete is terminal")
	assert.Len(t, rec.completions, 1, "OnComplete fires exactly once")
}

func TestAdvanceRequiresAnswer(t *testing.T) {
	r, _, _ := newTestRunner(t, twoQuestionDefinition(), Options{})

	assert.False(t, r.CanAdvance())
	assert.False(t, r.Advance())
	assert.Equal(t, 0, r.State().CurrentIndex)

	require.NoError(t, r.Select("a", "yes"))
	require.True(t, r.Advance())

	assert.False(t, r.Advance(), "multi choice needs at least one selection")
	require.NoError(t, r.Select("b", "x"))
	require.NoError(t, r.Select("b", "x"))
	assert.Empty(t, r.State().Answers["b"].Choices, "second select toggles off")
	assert.False(t, r.Advance())
}

func TestRetreatRestoresPreviousAnswer(t *testing.T) {
	r, rec, _ := newTestRunner(t, threeQuestionDefinition(), Options{})

	require.NoError(t, r.Select("a", "no"))
	require.True(t, r.Advance())
	require.NoError(t, r.SetSelection("b", []string{"x", "y"}))
	require.True(t, r.Advance())

	assert.True(t, r.Retreat())
	q, ans, ok := r.Current()
	require.True(t, ok)
	assert.Equal(t, "b", q.ID)
	assert.Equal(t, []string{"x", "y"}, ans.Choices)

	assert.True(t, r.Retreat())
	q, ans, ok = r.Current()
	require.True(t, ok)
	assert.Equal(t, "a", q.ID)
	assert.Equal(t, "no", ans.Choice)

	assert.False(t, r.Retreat())
	assert.Equal(t, 1, rec.backs)
	assert.Equal(t, 0, r.State().CurrentIndex)
}

func TestMultiChoiceExclusivity(t *testing.T) {
	r, _, _ := newTestRunner(t, twoQuestionDefinition(), Options{})

	require.NoError(t, r.Select("b", "x"))
	require.NoError(t, r.Select("b", "y"))
	require.NoError(t, r.Select("b", "none"))
	assert.Equal(t, []string{"none"}, r.State().Answers["b"].Choices)

	require.NoError(t, r.Select("b", "y"))
	assert.Equal(t, []string{"y"}, r.State().Answers["b"].Choices)

	require.NoError(t, r.SetSelection("b", []string{"y", "none"}))
	assert.Equal(t, []string{"none"}, r.State().Answers["b"].Choices)

	require.NoError(t, r.SetSelection("b", []string{"none", "x"}))
	assert.Equal(t, []string{"x"}, r.State().Answers["b"].Choices)

	require.NoError(t, r.SetSelection("b", []string{"x", "x", "y"}))
	assert.Equal(t, []string{"x", "y"}, r.State().Answers["b"].Choices)
}

func TestRestartFromAnyState(t *testing.T) {
	r, _, _ := newTestRunner(t, twoQuestionDefinition(), Options{})

	require.NoError(t, r.Select("a", "yes"))
	require.True(t, r.Advance())
	require.NoError(t, r.Select("b", "x"))
	require.True(t, r.Advance())
	require.True(t, r.State().IsComplete)

	want := State{Status: StatusInProgress, CurrentIndex: 0, Answers: assessment.AnswerSet{}, IsComplete: false}
	r.Restart()
	assert.Equal(t, want, r.State())
	r.Restart()
	assert.Equal(t, want, r.State())
}

func TestAutoAdvanceDebounce(t *testing.T) {
	r, _, clock := newTestRunner(t, twoQuestionDefinition(), Options{AutoAdvanceDelay: 300 * time.Millisecond})

	require.NoError(t, r.Select("a", "yes"))
	clock.Advance(200 * time.Millisecond)
	require.NoError(t, r.Select("a", "no"))
	assert.Equal(t, 1, clock.pending(), "second selection replaces the first timer")
	assert.True(t, r.Pending())

	clock.Advance(200 * time.Millisecond)
	assert.Equal(t, 0, r.State().CurrentIndex)

	clock.Advance(100 * time.Millisecond)
	assert.Equal(t, 1, r.State().CurrentIndex)
	assert.Equal(t, "no", r.State().Answers["a"].Choice)
	assert.False(t, r.Pending())
}

func TestAutoAdvanceCancelledByManualAdvance(t *testing.T) {
	r, _, clock := newTestRunner(t, threeQuestionDefinition(), Options{AutoAdvanceDelay: 300 * time.Millisecond})

	require.NoError(t, r.Select("a", "yes"))
	require.True(t, r.Advance())
	assert.False(t, r.Pending())
	clock.Advance(time.Second)
	assert.Equal(t, 1, r.State().CurrentIndex, "pending timer must not advance twice")
}

func TestAutoAdvanceCancelledOnClose(t *testing.T) {
	clock := &manualClock{}
	rec := &recorder{}
	r := New(twoQuestionDefinition(), rec.hooks(), Options{AutoAdvanceDelay: 300 * time.Millisecond, Clock: clock})

	require.NoError(t, r.Select("a", "yes"))
	changes := len(rec.changes)
	r.Close()
	clock.Advance(time.Second)

	assert.Equal(t, 0, r.State().CurrentIndex)
	assert.Len(t, rec.changes, changes, "no state change after disposal")
	assert.ErrorIs(t, r.Select("a", "no"), ErrClosed)
}

func TestAutoAdvanceOnlyForCurrentSingleChoice(t *testing.T) {
	r, _, clock := newTestRunner(t, twoQuestionDefinition(), Options{AutoAdvanceDelay: 300 * time.Millisecond})

	require.NoError(t, r.Select("b", "x"))
	assert.Equal(t, 0, clock.pending())

	require.NoError(t, r.Select("a", "yes"))
	clock.Advance(300 * time.Millisecond)
	require.Equal(t, 1, r.State().CurrentIndex)

	require.NoError(t, r.Select("a", "no"))
	assert.Equal(t, 0, clock.pending(), "answering a past question does not auto-advance")
}

func TestAutoAdvanceCompletesLastQuestion(t *testing.T) {
	def := &assessment.Definition{
		ID: "one",
		Questions: []assessment.Question{{
			ID: "only", Kind: assessment.KindSingleChoice, Prompt: "Only",
			Options: []assessment.Option{{ID: "ok", Label: "OK"}},
		}},
	}
	r, rec, clock := newTestRunner(t, def, Options{AutoAdvanceDelay: 300 * time.Millisecond})

	require.NoError(t, r.Select("only", "ok"))
	clock.Advance(300 * time.Millisecond)

	assert.True(t, r.State().IsComplete)
	assert.Len(t, rec.completions, 1)
}

func TestHooksDeliveredInTransitionOrder(t *testing.T) {
	var (
		mu      sync.Mutex
		calls   int
		indexes []int
	)
	entered := make(chan struct{})
	release := make(chan struct{})
	r := New(twoQuestionDefinition(), Hooks{
		OnChange: func(st State) {
			mu.Lock()
			calls++
			first := calls == 1
			mu.Unlock()
			if first {
				close(entered)
				<-release
			}
			mu.Lock()
			indexes = append(indexes, st.CurrentIndex)
			mu.Unlock()
		},
	}, Options{Clock: &manualClock{}})
	t.Cleanup(r.Close)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		assert.NoError(t, r.Select("a", "yes"))
	}()
	<-entered
	go func() {
		defer wg.Done()
		assert.True(t, r.Advance())
	}()

	require.Eventually(t, func() bool { return r.State().CurrentIndex == 1 }, time.Second, time.Millisecond)
	mu.Lock()
	assert.Empty(t, indexes, "the advance waits for the select hook to return")
	mu.Unlock()

	close(release)
	wg.Wait()
	assert.Equal(t, []int{0, 1}, indexes)
}

func TestSliderPolicies(t *testing.T) {
	def := &assessment.Definition{
		ID: "slider",
		Questions: []assessment.Question{{
			ID: "age", Kind: assessment.KindSlider, Prompt: "Age",
			Range: &assessment.Range{Min: 18, Max: 80},
		}},
	}

	t.Run("default answered", func(t *testing.T) {
		r, rec, _ := newTestRunner(t, def, Options{SliderPolicy: SliderDefaultAnswered})
		assert.True(t, r.Advance())
		require.Len(t, rec.completions, 1)
		v, ok := rec.completions[0].Value("age")
		assert.True(t, ok)
		assert.Equal(t, 18.0, v)
	})

	t.Run("require touch", func(t *testing.T) {
		r, _, _ := newTestRunner(t, def, Options{SliderPolicy: SliderRequireTouch})
		assert.False(t, r.Advance())
		require.NoError(t, r.SetValue("age", 18))
		assert.True(t, r.Advance())
	})

	t.Run("out of range", func(t *testing.T) {
		r, _, _ := newTestRunner(t, def, Options{})
		assert.ErrorIs(t, r.SetValue("age", 81), ErrOutOfRange)
		assert.ErrorIs(t, r.SetValue("age", 17.5), ErrOutOfRange)
		assert.ErrorIs(t, r.SetValue("age", math.NaN()), ErrOutOfRange)
		_, answered := r.State().Answers["age"]
		assert.False(t, answered)
	})
}

func TestSelectErrors(t *testing.T) {
	r, _, _ := newTestRunner(t, threeQuestionDefinition(), Options{})

	assert.ErrorIs(t, r.Select("missing", "yes"), ErrUnknownQuestion)
	assert.ErrorIs(t, r.Select("a", "maybe"), ErrUnknownOption)
	assert.ErrorIs(t, r.Select("age", "x"), ErrUnknownOption)
	assert.ErrorIs(t, r.SetValue("a", 3), ErrKindMismatch)
	assert.ErrorIs(t, r.SetSelection("a", []string{"yes"}), ErrKindMismatch)
	assert.ErrorIs(t, r.SetSelection("b", []string{"zzz"}), ErrUnknownOption)
}

func TestInvalidDefinition(t *testing.T) {
	r, _, _ := newTestRunner(t, &assessment.Definition{ID: "empty"}, Options{})

	assert.Equal(t, StatusInvalid, r.State().Status)
	assert.ErrorIs(t, r.Err(), ErrInvalid)
	assert.ErrorIs(t, r.Err(), assessment.ErrEmptyDefinition)
	assert.False(t, r.Advance())
	assert.False(t, r.Retreat())
	_, _, ok := r.Current()
	assert.False(t, ok)
	assert.Error(t, r.Select("a", "yes"))

	r.Restart()
	assert.Equal(t, StatusInvalid, r.State().Status, "restart cannot repair the definition")

	nilRunner := New(nil, Hooks{}, Options{})
	assert.Equal(t, StatusInvalid, nilRunner.State().Status)
}

func TestRestoreOutOfRangeIndexRecoversOnRestart(t *testing.T) {
	def := twoQuestionDefinition()
	r := Restore(def, State{Status: StatusInProgress, CurrentIndex: 7}, Hooks{}, Options{})

	assert.Equal(t, StatusInvalid, r.State().Status)
	assert.ErrorIs(t, r.Err(), ErrIndexOutOfRange)

	r.Restart()
	assert.Equal(t, StatusInProgress, r.State().Status)
	assert.NoError(t, r.Err())
}

func TestRestoreRoundTrip(t *testing.T) {
	def := threeQuestionDefinition()
	r, _, _ := newTestRunner(t, def, Options{})
	require.NoError(t, r.Select("a", "yes"))
	require.True(t, r.Advance())
	require.NoError(t, r.Select("b", "y"))

	saved := r.State()
	restored := Restore(def, saved, Hooks{}, Options{})
	assert.Equal(t, saved, restored.State())

	require.True(t, restored.Advance())
	assert.Equal(t, 2, restored.State().CurrentIndex)
	assert.Equal(t, 1, r.State().CurrentIndex, "restored runner does not share state")
}

func TestStateIsACopy(t *testing.T) {
	r, _, _ := newTestRunner(t, twoQuestionDefinition(), Options{})
	require.NoError(t, r.Select("b", "x"))

	st := r.State()
	st.Answers["b"].Choices[0] = "y"
	delete(st.Answers, "b")

	assert.Equal(t, []string{"x"}, r.State().Answers["b"].Choices)
}
