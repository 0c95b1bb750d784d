package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS submissions (
    submission_id TEXT PRIMARY KEY,
    attempt_id    TEXT NOT NULL UNIQUE,
    assessment_id TEXT NOT NULL,
    subject       TEXT NOT NULL DEFAULT '',
    answers       TEXT NOT NULL,
    labels        TEXT NOT NULL DEFAULT '[]',
    metrics       TEXT NOT NULL DEFAULT '[]',
    completed_at  TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS submissions_assessment_completed_idx
    ON submissions (assessment_id, completed_at DESC);
`

// fixed width so TEXT ordering matches time ordering
const sqliteTimeLayout = "2006-01-02T15:04:05.000000000Z"

// SQLiteSubmissions is the local-development submission store.
type SQLiteSubmissions struct {
	db *sql.DB
}

// OpenSQLite opens (or creates) a SQLite database and applies the schema.
// Use ":memory:" for an ephemeral store.
func OpenSQLite(ctx context.Context, path string) (*SQLiteSubmissions, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("sqlite open: %w", err)
	}
	// single writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite ping: %w", err)
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL;",
		"PRAGMA synchronous = NORMAL;",
		"PRAGMA busy_timeout = 5000;",
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("sqlite pragma %q: %w", pragma, err)
		}
	}
	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite schema: %w", err)
	}
	return &SQLiteSubmissions{db: db}, nil
}

func (s *SQLiteSubmissions) Close() error {
	return s.db.Close()
}

func (s *SQLiteSubmissions) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLiteSubmissions) UpsertSubmission(ctx context.Context, row SubmissionRow) (uuid.UUID, error) {
	var id string
	err := s.db.QueryRowContext(ctx, `
INSERT INTO submissions (submission_id, attempt_id, assessment_id, subject, answers, labels, metrics, completed_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (attempt_id) DO UPDATE SET
    subject      = excluded.subject,
    answers      = excluded.answers,
    labels       = excluded.labels,
    metrics      = excluded.metrics,
    completed_at = excluded.completed_at
RETURNING submission_id`,
		row.ID.String(), row.AttemptID.String(), row.AssessmentID, row.Subject,
		string(row.Answers), string(row.Labels), string(row.Metrics),
		row.CompletedAt.UTC().Format(sqliteTimeLayout),
	).Scan(&id)
	if err != nil {
		return uuid.Nil, err
	}
	return uuid.Parse(id)
}

const selectSubmissionColumnsSQLite = `
SELECT submission_id, attempt_id, assessment_id, subject, answers, labels, metrics, completed_at
FROM submissions`

func (s *SQLiteSubmissions) GetSubmissionByAttempt(ctx context.Context, attemptID uuid.UUID) (SubmissionRow, error) {
	row, err := scanSubmissionSQLite(s.db.QueryRowContext(ctx, selectSubmissionColumnsSQLite+` WHERE attempt_id = ?`, attemptID.String()))
	if errors.Is(err, sql.ErrNoRows) {
		return SubmissionRow{}, ErrSubmissionNotFound
	}
	return row, err
}

func (s *SQLiteSubmissions) ListSubmissionsByAssessment(ctx context.Context, assessmentID string, limit int) ([]SubmissionRow, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx,
		selectSubmissionColumnsSQLite+` WHERE assessment_id = ? ORDER BY completed_at DESC LIMIT ?`,
		assessmentID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []SubmissionRow
	for rows.Next() {
		row, err := scanSubmissionSQLite(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSubmissionSQLite(row rowScanner) (SubmissionRow, error) {
	var (
		id, attemptID, completedAt string
		answers, labels, metrics   string
		out                        SubmissionRow
	)
	if err := row.Scan(&id, &attemptID, &out.AssessmentID, &out.Subject, &answers, &labels, &metrics, &completedAt); err != nil {
		return SubmissionRow{}, err
	}
	var err error
	if out.ID, err = uuid.Parse(id); err != nil {
		return SubmissionRow{}, fmt.Errorf("submission id: %w", err)
	}
	if out.AttemptID, err = uuid.Parse(attemptID); err != nil {
		return SubmissionRow{}, fmt.Errorf("attempt id: %w", err)
	}
	if out.CompletedAt, err = time.Parse(sqliteTimeLayout, completedAt); err != nil {
		return SubmissionRow{}, fmt.Errorf("completed_at: %w", err)
	}
	out.Answers, out.Labels, out.Metrics = []byte(answers), []byte(labels), []byte(metrics)
	return out, nil
}
