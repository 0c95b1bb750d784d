package attempt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/gokatarajesh/clinic-assessments/internal/assessment"
	"github.com/gokatarajesh/clinic-assessments/internal/catalog"
	"github.com/gokatarajesh/clinic-assessments/internal/navigation"
	"github.com/gokatarajesh/clinic-assessments/internal/runner"
	httperrors "github.com/gokatarajesh/clinic-assessments/pkg/http/errors"
	ws "github.com/gokatarajesh/clinic-assessments/pkg/http/ws"
)

// LiveSession drives one attempt over a persistent connection. The runner
// lives in memory with auto-advance enabled, and every state change is pushed
// to the client and mirrored into the store.
type LiveSession struct {
	svc   *Service
	entry *catalog.Entry
	send  func(ws.Message) error
	ctx   context.Context

	mu     sync.Mutex // guards snap
	snap   Snapshot
	runner *runner.Runner
	nav    navigation.Navigator
}

// OpenLive starts a new attempt driven by the given send function.
func (s *Service) OpenLive(ctx context.Context, assessmentID, subject string, send func(ws.Message) error) (*LiveSession, error) {
	entry, err := s.catalog.Get(assessmentID)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	sess := &LiveSession{
		svc:   s,
		entry: entry,
		send:  send,
		ctx:   ctx,
		snap: Snapshot{
			ID:           uuid.New(),
			AssessmentID: entry.ID,
			Subject:      subject,
			StartedAt:    now,
			UpdatedAt:    now,
		},
		nav: navigation.NewWSNavigator(s.routes, send),
	}
	sess.runner = runner.New(&entry.Definition, runner.Hooks{
		OnChange:   sess.onChange,
		OnComplete: sess.onComplete,
		OnBack:     sess.onBack,
	}, s.runnerOptions(s.opts.AutoAdvanceDelay))
	if err := sess.runner.Err(); err != nil {
		sess.runner.Close()
		return nil, err
	}

	sess.snap.State = sess.runner.State()
	if err := s.store.Save(ctx, sess.snap); err != nil {
		sess.runner.Close()
		return nil, fmt.Errorf("save attempt: %w", err)
	}
	s.metrics.AttemptStarted(entry.ID)
	s.metrics.SessionOpened()
	s.log(ctx).Info().
		Str("attempt_id", sess.snap.ID.String()).
		Str("assessment", entry.ID).
		Msg("live session opened")

	sess.pushState(sess.snap.State)
	return sess, nil
}

// ID returns the attempt id backing the session.
func (l *LiveSession) ID() uuid.UUID {
	return l.snap.ID
}

// Close disposes the runner; a pending auto-advance is dropped.
func (l *LiveSession) Close() {
	l.runner.Close()
	l.svc.metrics.SessionClosed()
}

// Handle applies one client message.
func (l *LiveSession) Handle(msg ws.Message) error {
	var (
		op  = msg.Type
		err error
	)
	switch msg.Type {
	case ws.TypeSelect:
		var p ws.SelectPayload
		if err := json.Unmarshal(msg.Payload, &p); err != nil {
			return l.sendError(httperrors.ErrCodeInvalidPayload, "Invalid select payload")
		}
		err = l.runner.Select(p.QuestionID, p.OptionID)
	case ws.TypeSetSelection:
		var p ws.SetSelectionPayload
		if err := json.Unmarshal(msg.Payload, &p); err != nil {
			return l.sendError(httperrors.ErrCodeInvalidPayload, "Invalid set_selection payload")
		}
		err = l.runner.SetSelection(p.QuestionID, p.OptionIDs)
	case ws.TypeSetValue:
		var p ws.SetValuePayload
		if err := json.Unmarshal(msg.Payload, &p); err != nil {
			return l.sendError(httperrors.ErrCodeInvalidPayload, "Invalid set_value payload")
		}
		err = l.runner.SetValue(p.QuestionID, p.Value)
	case ws.TypeAdvance:
		if !l.runner.Advance() {
			l.svc.metrics.Transition(op, "rejected")
			if l.runner.State().IsComplete {
				return l.sendError(httperrors.ErrCodeAttemptComplete, runner.ErrComplete.Error())
			}
			return l.sendError(httperrors.ErrCodeAnswerRequired, "Answer the current question to continue")
		}
	case ws.TypeRetreat:
		if !l.runner.Retreat() {
			l.svc.metrics.Transition(op, "rejected")
			return nil
		}
	case ws.TypeRestart:
		l.runner.Restart()
	default:
		return l.sendError(httperrors.ErrCodeUnknownMessageType, fmt.Sprintf("Unknown message type: %s", msg.Type))
	}

	if err != nil {
		l.svc.metrics.Transition(op, "error")
		code, _ := classify(err)
		return l.sendError(code, err.Error())
	}
	l.svc.metrics.Transition(op, "ok")
	return nil
}

func (l *LiveSession) onChange(st runner.State) {
	l.mu.Lock()
	l.snap.State = st
	l.snap.UpdatedAt = l.svc.now().UTC()
	snap := l.snap
	l.mu.Unlock()

	if err := l.svc.store.Save(l.ctx, snap); err != nil {
		l.svc.log(l.ctx).Warn().Err(err).Str("attempt_id", snap.ID.String()).Msg("mirror live attempt")
	}
	l.pushState(st)
}

func (l *LiveSession) onComplete(answers assessment.AnswerSet) {
	l.mu.Lock()
	completedAt := l.svc.now().UTC()
	l.snap.CompletedAt = &completedAt
	snap := l.snap
	l.mu.Unlock()

	// keep CompletedAt in the mirrored snapshot
	if err := l.svc.store.Save(l.ctx, snap); err != nil {
		l.svc.log(l.ctx).Warn().Err(err).Str("attempt_id", snap.ID.String()).Msg("mirror live attempt")
	}
	l.svc.complete(l.ctx, &snap, l.entry, answers, l.nav)
}

func (l *LiveSession) onBack() {
	l.svc.navigate(l.ctx, l.nav, l.entry.BackRoute, l.snap.ID)
}

func (l *LiveSession) pushState(st runner.State) {
	l.mu.Lock()
	snap := l.snap
	l.mu.Unlock()
	snap.State = st

	view := buildView(snap, l.entry, l.runner)
	view.Status, view.CurrentIndex, view.Answers, view.IsComplete = st.Status, st.CurrentIndex, st.Answers, st.IsComplete
	if l.runner.Pending() {
		view.AutoAdvanceMS = l.svc.opts.AutoAdvanceDelay.Milliseconds()
	}
	msg, err := ws.NewMessage(ws.TypeState, view)
	if err != nil {
		return
	}
	if err := l.send(msg); err != nil && !gone(err) {
		l.svc.log(l.ctx).Warn().Err(err).Str("attempt_id", snap.ID.String()).Msg("push state")
	}
}

func (l *LiveSession) sendError(code, message string) error {
	msg, err := ws.NewMessage(ws.TypeError, ws.ErrorPayload{Code: code, Message: message})
	if err != nil {
		return err
	}
	return l.send(msg)
}

// gone reports a send that failed because the client already disconnected.
func gone(err error) bool {
	return errors.Is(err, ws.ErrConnectionClosed) || errors.Is(err, ws.ErrConnectionNotFound)
}
