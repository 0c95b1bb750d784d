package attempt

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/gokatarajesh/clinic-assessments/internal/assessment"
	"github.com/gokatarajesh/clinic-assessments/internal/catalog"
	"github.com/gokatarajesh/clinic-assessments/internal/db/repository"
	"github.com/gokatarajesh/clinic-assessments/internal/logging"
	"github.com/gokatarajesh/clinic-assessments/internal/metrics"
	"github.com/gokatarajesh/clinic-assessments/internal/navigation"
	"github.com/gokatarajesh/clinic-assessments/internal/runner"
)

// ServiceOptions tune how attempts are run.
type ServiceOptions struct {
	// AutoAdvanceDelay applies to live sessions and is echoed to HTTP clients as a hint.
	AutoAdvanceDelay time.Duration
	SliderPolicy     runner.SliderPolicy
	// LockWait bounds how long a transition waits for a concurrent one on the same attempt.
	LockWait time.Duration
	Clock    runner.Clock
	Metrics  *metrics.Recorder
}

// Service hosts runners for attempts. HTTP transitions hydrate a runner from
// the stored snapshot, apply one operation and persist the result; live
// sessions keep a runner in memory.
type Service struct {
	catalog     Catalog
	store       Store
	submissions SubmissionSaver
	routes      navigation.Routes
	opts        ServiceOptions
	metrics     *metrics.Recorder
	logger      zerolog.Logger
	now         func() time.Time
}

// NewService creates an attempt service.
func NewService(cat Catalog, store Store, submissions SubmissionSaver, routes navigation.Routes, opts ServiceOptions, logger zerolog.Logger) *Service {
	if opts.SliderPolicy == "" {
		opts.SliderPolicy = runner.SliderDefaultAnswered
	}
	if opts.LockWait <= 0 {
		opts.LockWait = 2 * time.Second
	}
	if opts.Clock == nil {
		opts.Clock = runner.SystemClock
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.Nop()
	}
	if routes == nil {
		routes = navigation.DefaultRoutes()
	}
	return &Service{
		catalog:     cat,
		store:       store,
		submissions: submissions,
		routes:      routes,
		opts:        opts,
		metrics:     opts.Metrics,
		logger:      logger.With().Str("component", "attempt_service").Logger(),
		now:         time.Now,
	}
}

// Start creates a new attempt at the first question.
func (s *Service) Start(ctx context.Context, assessmentID, subject string) (View, error) {
	entry, err := s.catalog.Get(assessmentID)
	if err != nil {
		return View{}, err
	}
	r := runner.New(&entry.Definition, runner.Hooks{}, s.runnerOptions(0))
	defer r.Close()
	if err := r.Err(); err != nil {
		return View{}, err
	}

	now := s.now().UTC()
	snap := Snapshot{
		ID:           uuid.New(),
		AssessmentID: entry.ID,
		Subject:      subject,
		State:        r.State(),
		StartedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.store.Save(ctx, snap); err != nil {
		return View{}, fmt.Errorf("save attempt: %w", err)
	}

	s.metrics.AttemptStarted(entry.ID)
	s.log(ctx).Info().
		Str("attempt_id", snap.ID.String()).
		Str("assessment", entry.ID).
		Msg("attempt started")
	return buildView(snap, entry, r), nil
}

// Get returns the current view of an attempt.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (View, error) {
	snap, err := s.store.Load(ctx, id)
	if err != nil {
		return View{}, err
	}
	entry, err := s.catalog.Get(snap.AssessmentID)
	if err != nil {
		return View{}, err
	}
	r := runner.Restore(&entry.Definition, snap.State, runner.Hooks{}, s.runnerOptions(0))
	defer r.Close()
	return buildView(*snap, entry, r), nil
}

// Select records an option. A single-choice answer to the current question
// returns an auto-advance hint instead of advancing server-side.
func (s *Service) Select(ctx context.Context, id uuid.UUID, questionID, optionID string) (View, error) {
	var hint bool
	view, err := s.transition(ctx, id, "select", func(r *runner.Runner) (bool, error) {
		q, _, current := r.Current()
		if err := r.Select(questionID, optionID); err != nil {
			return false, err
		}
		hint = current && q.ID == questionID && q.Kind == assessment.KindSingleChoice
		return false, nil
	})
	if err == nil && hint && s.opts.AutoAdvanceDelay > 0 {
		view.AutoAdvanceMS = s.opts.AutoAdvanceDelay.Milliseconds()
	}
	return view, err
}

// SetSelection replaces a multi-choice selection.
func (s *Service) SetSelection(ctx context.Context, id uuid.UUID, questionID string, optionIDs []string) (View, error) {
	return s.transition(ctx, id, "set_selection", func(r *runner.Runner) (bool, error) {
		return false, r.SetSelection(questionID, optionIDs)
	})
}

// SetValue records a slider value.
func (s *Service) SetValue(ctx context.Context, id uuid.UUID, questionID string, value float64) (View, error) {
	return s.transition(ctx, id, "set_value", func(r *runner.Runner) (bool, error) {
		return false, r.SetValue(questionID, value)
	})
}

// Advance moves forward, completing the attempt on the last question.
func (s *Service) Advance(ctx context.Context, id uuid.UUID) (View, error) {
	return s.transition(ctx, id, "advance", func(r *runner.Runner) (bool, error) {
		return r.Advance(), nil
	})
}

// Retreat moves back; on the first question the view carries the back redirect.
func (s *Service) Retreat(ctx context.Context, id uuid.UUID) (View, error) {
	return s.transition(ctx, id, "retreat", func(r *runner.Runner) (bool, error) {
		return r.Retreat(), nil
	})
}

// Restart clears every answer and returns to the first question.
func (s *Service) Restart(ctx context.Context, id uuid.UUID) (View, error) {
	return s.transition(ctx, id, "restart", func(r *runner.Runner) (bool, error) {
		r.Restart()
		return true, nil
	})
}

// Results derives labels and metrics for a completed attempt.
func (s *Service) Results(ctx context.Context, id uuid.UUID) (Results, error) {
	snap, err := s.store.Load(ctx, id)
	if err != nil {
		return Results{}, err
	}
	if !snap.State.IsComplete {
		return Results{}, ErrNotComplete
	}
	entry, err := s.catalog.Get(snap.AssessmentID)
	if err != nil {
		return Results{}, err
	}
	res := Results{
		AttemptID:    snap.ID.String(),
		AssessmentID: snap.AssessmentID,
		Labels:       assessment.ResolveLabels(&entry.Definition, snap.State.Answers),
		CompletedAt:  snap.CompletedAt,
	}
	if engine := entry.Engine(); engine != nil {
		res.Metrics = engine.Derive(snap.State.Answers)
		res.Fired = engine.Fired(snap.State.Answers)
	}
	return res, nil
}

type operation func(r *runner.Runner) (moved bool, err error)

func (s *Service) transition(ctx context.Context, id uuid.UUID, op string, apply operation) (View, error) {
	unlock, err := s.lock(ctx, id)
	if err != nil {
		s.metrics.Transition(op, "error")
		return View{}, err
	}
	defer func() {
		if err := unlock(); err != nil {
			s.log(ctx).Warn().Err(err).Str("attempt_id", id.String()).Msg("release attempt lock")
		}
	}()

	snap, err := s.store.Load(ctx, id)
	if err != nil {
		s.metrics.Transition(op, "error")
		return View{}, err
	}
	entry, err := s.catalog.Get(snap.AssessmentID)
	if err != nil {
		s.metrics.Transition(op, "error")
		return View{}, err
	}

	nav := navigation.NewRecorder(s.routes)
	hooks := runner.Hooks{
		OnComplete: func(answers assessment.AnswerSet) {
			completedAt := s.now().UTC()
			snap.CompletedAt = &completedAt
			s.complete(ctx, snap, entry, answers, nav)
		},
		OnBack: func() {
			s.navigate(ctx, nav, entry.BackRoute, snap.ID)
		},
	}
	r := runner.Restore(&entry.Definition, snap.State, hooks, s.runnerOptions(0))
	defer r.Close()

	moved, err := apply(r)
	if err != nil {
		s.metrics.Transition(op, "error")
		return View{}, err
	}

	snap.State = r.State()
	if !snap.State.IsComplete {
		snap.CompletedAt = nil
	}
	snap.UpdatedAt = s.now().UTC()
	if err := s.store.Save(ctx, *snap); err != nil {
		s.metrics.Transition(op, "error")
		return View{}, fmt.Errorf("save attempt: %w", err)
	}

	result := "ok"
	if !moved && (op == "advance" || op == "retreat") {
		result = "rejected"
	}
	s.metrics.Transition(op, result)

	view := buildView(*snap, entry, r)
	view.Moved = moved
	view.Redirect = nav.Target()
	return view, nil
}

// complete handles a finished attempt. Nothing here can fail the transition:
// a submission error is logged and counted, and the attempt stays complete.
func (s *Service) complete(ctx context.Context, snap *Snapshot, entry *catalog.Entry, answers assessment.AnswerSet, nav navigation.Navigator) {
	sub := repository.Submission{
		AttemptID:    snap.ID,
		AssessmentID: entry.ID,
		Subject:      snap.Subject,
		Answers:      answers,
		Labels:       assessment.ResolveLabels(&entry.Definition, answers),
	}
	if snap.CompletedAt != nil {
		sub.CompletedAt = *snap.CompletedAt
	}
	if engine := entry.Engine(); engine != nil {
		sub.Metrics = engine.Derive(answers)
	}

	logger := s.log(ctx).With().Str("attempt_id", snap.ID.String()).Str("assessment", entry.ID).Logger()
	if s.submissions != nil {
		if err := s.submissions.Save(ctx, &sub); err != nil {
			s.metrics.SubmissionFailed(entry.ID)
			logger.Error().Err(err).Msg("store submission")
		}
	}

	s.metrics.AttemptCompleted(entry.ID, s.now().Sub(snap.StartedAt).Seconds())
	logger.Info().Int("answers", len(answers)).Msg("attempt completed")
	s.navigate(ctx, nav, entry.CompleteRoute, snap.ID)
}

func (s *Service) navigate(ctx context.Context, nav navigation.Navigator, routeID string, attemptID uuid.UUID) {
	if routeID == "" {
		return
	}
	if err := nav.Navigate(ctx, routeID); err != nil {
		s.log(ctx).Warn().Err(err).Str("attempt_id", attemptID.String()).Str("route", routeID).Msg("navigation failed")
	}
}

// lock retries until LockWait elapses, since a client may fire select and
// advance back to back.
func (s *Service) lock(ctx context.Context, id uuid.UUID) (func() error, error) {
	deadline := time.Now().Add(s.opts.LockWait)
	backoff := 10 * time.Millisecond
	for {
		unlock, err := s.store.Lock(ctx, id)
		if !errors.Is(err, ErrBusy) {
			return unlock, err
		}
		if time.Now().Add(backoff).After(deadline) {
			return nil, ErrBusy
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff):
		}
		if backoff < 100*time.Millisecond {
			backoff *= 2
		}
	}
}

func (s *Service) runnerOptions(delay time.Duration) runner.Options {
	return runner.Options{
		AutoAdvanceDelay: delay,
		SliderPolicy:     s.opts.SliderPolicy,
		Clock:            s.opts.Clock,
	}
}

func (s *Service) log(ctx context.Context) *zerolog.Logger {
	if logger := logging.FromContext(ctx); logger.GetLevel() != zerolog.Disabled {
		return &logger
	}
	return &s.logger
}

func buildView(snap Snapshot, entry *catalog.Entry, r *runner.Runner) View {
	st := r.State()
	view := View{
		AttemptID:    snap.ID.String(),
		AssessmentID: entry.ID,
		Title:        entry.Title,
		Status:       st.Status,
		CurrentIndex: st.CurrentIndex,
		Total:        entry.Len(),
		CanAdvance:   r.CanAdvance(),
		Answers:      st.Answers,
		IsComplete:   st.IsComplete,
	}
	if q, ans, ok := r.Current(); ok {
		view.Question = &q
		if !ans.Empty() {
			view.Answer = &ans
		}
	}
	if err := r.Err(); err != nil {
		view.Problem = err.Error()
	}
	return view
}
