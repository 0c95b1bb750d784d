package attempt

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/gokatarajesh/clinic-assessments/internal/assessment"
	"github.com/gokatarajesh/clinic-assessments/internal/catalog"
	"github.com/gokatarajesh/clinic-assessments/internal/db/repository"
	"github.com/gokatarajesh/clinic-assessments/internal/navigation"
	"github.com/gokatarajesh/clinic-assessments/internal/runner"
	"github.com/gokatarajesh/clinic-assessments/internal/scoring"
)

var (
	ErrAttemptNotFound = errors.New("attempt not found")
	ErrNotComplete     = errors.New("attempt is not complete")
	ErrBusy            = errors.New("attempt is being updated")
)

// Snapshot is the persisted form of one attempt.
type Snapshot struct {
	ID           uuid.UUID    `json:"id"`
	AssessmentID string       `json:"assessment_id"`
	Subject      string       `json:"subject,omitempty"`
	State        runner.State `json:"state"`
	StartedAt    time.Time    `json:"started_at"`
	UpdatedAt    time.Time    `json:"updated_at"`
	CompletedAt  *time.Time   `json:"completed_at,omitempty"`
}

// Store keeps attempt snapshots for the duration of a session.
type Store interface {
	Save(ctx context.Context, snap Snapshot) error
	Load(ctx context.Context, id uuid.UUID) (*Snapshot, error)
	// Lock serializes transitions on one attempt across API instances.
	Lock(ctx context.Context, id uuid.UUID) (unlock func() error, err error)
}

// Catalog resolves assessment ids.
type Catalog interface {
	Get(id string) (*catalog.Entry, error)
}

// SubmissionSaver persists completed attempts.
type SubmissionSaver interface {
	Save(ctx context.Context, sub *repository.Submission) error
}

// View is what clients render for an attempt.
type View struct {
	AttemptID    string               `json:"attempt_id"`
	AssessmentID string               `json:"assessment_id"`
	Title        string               `json:"title"`
	Status       runner.Status        `json:"status"`
	CurrentIndex int                  `json:"current_index"`
	Total        int                  `json:"total"`
	Question     *assessment.Question `json:"question,omitempty"`
	Answer       *assessment.Answer   `json:"answer,omitempty"`
	CanAdvance   bool                 `json:"can_advance"`
	Answers      assessment.AnswerSet `json:"answers"`
	IsComplete   bool                 `json:"is_complete"`
	Moved        bool                 `json:"moved"`

	// AutoAdvanceMS tells a stateless client to call advance after this many
	// milliseconds, unless the user acts first.
	AutoAdvanceMS int64              `json:"auto_advance_ms,omitempty"`
	Redirect      *navigation.Target `json:"redirect,omitempty"`
	Problem       string             `json:"problem,omitempty"`
}

// Results is the derived outcome of a completed attempt.
type Results struct {
	AttemptID    string                     `json:"attempt_id"`
	AssessmentID string                     `json:"assessment_id"`
	Labels       []assessment.LabeledAnswer `json:"labels"`
	Metrics      scoring.Metrics            `json:"metrics,omitempty"`
	Fired        []string                   `json:"fired,omitempty"`
	CompletedAt  *time.Time                 `json:"completed_at,omitempty"`
}
