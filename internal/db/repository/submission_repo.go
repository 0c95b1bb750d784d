package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/gokatarajesh/clinic-assessments/internal/assessment"
	"github.com/gokatarajesh/clinic-assessments/internal/scoring"
)

var ErrSubmissionNotFound = errors.New("submission not found")

// Submission is a completed attempt: raw answers plus what was derived from them.
type Submission struct {
	ID           uuid.UUID                  `json:"id"`
	AttemptID    uuid.UUID                  `json:"attempt_id"`
	AssessmentID string                     `json:"assessment_id"`
	Subject      string                     `json:"subject,omitempty"`
	Answers      assessment.AnswerSet       `json:"answers"`
	Labels       []assessment.LabeledAnswer `json:"labels"`
	Metrics      scoring.Metrics            `json:"metrics,omitempty"`
	CompletedAt  time.Time                  `json:"completed_at"`
}

// SubmissionRow is the storage shape of a Submission; JSON columns stay encoded.
type SubmissionRow struct {
	ID           uuid.UUID
	AttemptID    uuid.UUID
	AssessmentID string
	Subject      string
	Answers      []byte
	Labels       []byte
	Metrics      []byte
	CompletedAt  time.Time
}

type submissionStore interface {
	// UpsertSubmission stores the row keyed by attempt and returns the stored submission id.
	UpsertSubmission(ctx context.Context, row SubmissionRow) (uuid.UUID, error)
	GetSubmissionByAttempt(ctx context.Context, attemptID uuid.UUID) (SubmissionRow, error)
	ListSubmissionsByAssessment(ctx context.Context, assessmentID string, limit int) ([]SubmissionRow, error)
}

// SubmissionRepository persists completed attempts on top of a SQL store.
type SubmissionRepository struct {
	store submissionStore
	now   func() time.Time
}

// NewSubmissionRepository constructs a repository over a Postgres or SQLite store.
func NewSubmissionRepository(store submissionStore) *SubmissionRepository {
	return &SubmissionRepository{store: store, now: time.Now}
}

// Save stores a submission, assigning an id and completion time when missing.
// Saving again for the same attempt replaces the earlier answers and keeps its id.
func (r *SubmissionRepository) Save(ctx context.Context, sub *Submission) error {
	if sub.AttemptID == uuid.Nil {
		return errors.New("submission attempt id is required")
	}
	if sub.ID == uuid.Nil {
		sub.ID = uuid.New()
	}
	if sub.CompletedAt.IsZero() {
		sub.CompletedAt = r.now().UTC()
	}
	row, err := encodeSubmission(*sub)
	if err != nil {
		return err
	}
	id, err := r.store.UpsertSubmission(ctx, row)
	if err != nil {
		return fmt.Errorf("upsert submission: %w", err)
	}
	sub.ID = id
	return nil
}

// GetByAttempt returns the submission recorded for an attempt.
func (r *SubmissionRepository) GetByAttempt(ctx context.Context, attemptID uuid.UUID) (*Submission, error) {
	row, err := r.store.GetSubmissionByAttempt(ctx, attemptID)
	if err != nil {
		return nil, err
	}
	sub, err := decodeSubmission(row)
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

// ListByAssessment returns the newest submissions for an assessment. limit <= 0 means all.
func (r *SubmissionRepository) ListByAssessment(ctx context.Context, assessmentID string, limit int) ([]Submission, error) {
	rows, err := r.store.ListSubmissionsByAssessment(ctx, assessmentID, limit)
	if err != nil {
		return nil, fmt.Errorf("list submissions: %w", err)
	}
	out := make([]Submission, 0, len(rows))
	for _, row := range rows {
		sub, err := decodeSubmission(row)
		if err != nil {
			return nil, err
		}
		out = append(out, sub)
	}
	return out, nil
}

func encodeSubmission(sub Submission) (SubmissionRow, error) {
	answers := sub.Answers
	if answers == nil {
		answers = assessment.AnswerSet{}
	}
	answersJSON, err := json.Marshal(answers)
	if err != nil {
		return SubmissionRow{}, fmt.Errorf("marshal answers: %w", err)
	}
	labels := sub.Labels
	if labels == nil {
		labels = []assessment.LabeledAnswer{}
	}
	labelsJSON, err := json.Marshal(labels)
	if err != nil {
		return SubmissionRow{}, fmt.Errorf("marshal labels: %w", err)
	}
	metrics := sub.Metrics
	if metrics == nil {
		metrics = scoring.Metrics{}
	}
	metricsJSON, err := json.Marshal(metrics)
	if err != nil {
		return SubmissionRow{}, fmt.Errorf("marshal metrics: %w", err)
	}
	return SubmissionRow{
		ID:           sub.ID,
		AttemptID:    sub.AttemptID,
		AssessmentID: sub.AssessmentID,
		Subject:      sub.Subject,
		Answers:      answersJSON,
		Labels:       labelsJSON,
		Metrics:      metricsJSON,
		CompletedAt:  sub.CompletedAt,
	}, nil
}

func decodeSubmission(row SubmissionRow) (Submission, error) {
	sub := Submission{
		ID:           row.ID,
		AttemptID:    row.AttemptID,
		AssessmentID: row.AssessmentID,
		Subject:      row.Subject,
		CompletedAt:  row.CompletedAt,
	}
	if err := json.Unmarshal(row.Answers, &sub.Answers); err != nil {
		return Submission{}, fmt.Errorf("unmarshal answers: %w", err)
	}
	if len(row.Labels) > 0 {
		if err := json.Unmarshal(row.Labels, &sub.Labels); err != nil {
			return Submission{}, fmt.Errorf("unmarshal labels: %w", err)
		}
	}
	if len(row.Metrics) > 0 {
		if err := json.Unmarshal(row.Metrics, &sub.Metrics); err != nil {
			return Submission{}, fmt.Errorf("unmarshal metrics: %w", err)
		}
	}
	return sub, nil
}
