package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresSubmissions is the pgx-backed submission store. The schema lives in db/migrations.
type PostgresSubmissions struct {
	pool *pgxpool.Pool
}

func NewPostgresSubmissions(pool *pgxpool.Pool) *PostgresSubmissions {
	return &PostgresSubmissions{pool: pool}
}

// a restarted attempt completes again under the same attempt id; the latest answers win
const upsertSubmissionPG = `
INSERT INTO submissions (submission_id, attempt_id, assessment_id, subject, answers, labels, metrics, completed_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
ON CONFLICT (attempt_id) DO UPDATE SET
    subject      = EXCLUDED.subject,
    answers      = EXCLUDED.answers,
    labels       = EXCLUDED.labels,
    metrics      = EXCLUDED.metrics,
    completed_at = EXCLUDED.completed_at
RETURNING submission_id`

const selectSubmissionColumnsPG = `
SELECT submission_id, attempt_id, assessment_id, subject, answers, labels, metrics, completed_at
FROM submissions`

func (s *PostgresSubmissions) UpsertSubmission(ctx context.Context, row SubmissionRow) (uuid.UUID, error) {
	var id pgtype.UUID
	err := s.pool.QueryRow(ctx, upsertSubmissionPG,
		pgUUID(row.ID), pgUUID(row.AttemptID), row.AssessmentID, row.Subject,
		row.Answers, row.Labels, row.Metrics, row.CompletedAt,
	).Scan(&id)
	if err != nil {
		return uuid.Nil, err
	}
	return uuid.UUID(id.Bytes), nil
}

func (s *PostgresSubmissions) GetSubmissionByAttempt(ctx context.Context, attemptID uuid.UUID) (SubmissionRow, error) {
	row, err := scanSubmissionPG(s.pool.QueryRow(ctx, selectSubmissionColumnsPG+` WHERE attempt_id = $1`, pgUUID(attemptID)))
	if errors.Is(err, pgx.ErrNoRows) {
		return SubmissionRow{}, ErrSubmissionNotFound
	}
	return row, err
}

func (s *PostgresSubmissions) ListSubmissionsByAssessment(ctx context.Context, assessmentID string, limit int) ([]SubmissionRow, error) {
	query := selectSubmissionColumnsPG + ` WHERE assessment_id = $1 ORDER BY completed_at DESC`
	args := []any{assessmentID}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []SubmissionRow
	for rows.Next() {
		row, err := scanSubmissionPG(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

func scanSubmissionPG(row pgx.Row) (SubmissionRow, error) {
	var (
		id, attemptID pgtype.UUID
		out           SubmissionRow
	)
	if err := row.Scan(&id, &attemptID, &out.AssessmentID, &out.Subject, &out.Answers, &out.Labels, &out.Metrics, &out.CompletedAt); err != nil {
		return SubmissionRow{}, err
	}
	out.ID = uuid.UUID(id.Bytes)
	out.AttemptID = uuid.UUID(attemptID.Bytes)
	return out, nil
}

func pgUUID(id uuid.UUID) pgtype.UUID {
	return pgtype.UUID{Bytes: id, Valid: true}
}
