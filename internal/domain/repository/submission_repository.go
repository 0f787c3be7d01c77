package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"seminar_standings/internal/common"
	"seminar_standings/internal/domain/model"
)

type SubmissionRepository interface {
	CreateSubmission(ctx context.Context, tx *sql.Tx, sub *model.Submission) error
	UpdateScore(ctx context.Context, submissionID string, score *float64, scoredBy *string) error
	// ListRoundSubmissions returns every submission to the round's problems created at or before deadline.
	ListRoundSubmissions(ctx context.Context, roundID string, deadline time.Time) ([]model.Submission, error)
	CountSubmissions(ctx context.Context, enrollmentID, problemID string, kind model.SubmissionKind) (int, error)
}

type sqlSubmissionRepository struct {
	db *sql.DB
}

func NewSQLSubmissionRepository(db *sql.DB) SubmissionRepository {
	return &sqlSubmissionRepository{db: db}
}

func (r *sqlSubmissionRepository) CreateSubmission(ctx context.Context, tx *sql.Tx, s *model.Submission) error {
	query := `INSERT INTO submissions (id, enrollment_id, problem_id, kind, score, scored_by, comment, created_at)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	_, err := pick(r.db, tx).ExecContext(ctx, query, s.ID, s.EnrollmentID, s.ProblemID, string(s.Kind), s.Score, s.ScoredByID, s.Comment, toMicros(s.CreatedAt))
	if err != nil {
		if common.IsUniqueViolation(err) {
			return fmt.Errorf("submission %s already exists: %w", s.ID, common.ErrConflict)
		}
		return fmt.Errorf("sqlSubmissionRepository.CreateSubmission: %w", err)
	}
	return nil
}

// UpdateScore is last-write-wins; concurrent graders are not coordinated.
func (r *sqlSubmissionRepository) UpdateScore(ctx context.Context, submissionID string, score *float64, scoredBy *string) error {
	res, err := r.db.ExecContext(ctx, `UPDATE submissions SET score = $1, scored_by = $2 WHERE id = $3`, score, scoredBy, submissionID)
	if err != nil {
		return fmt.Errorf("sqlSubmissionRepository.UpdateScore: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return common.ErrNotFound
	}
	return nil
}

func (r *sqlSubmissionRepository) ListRoundSubmissions(ctx context.Context, roundID string, deadline time.Time) ([]model.Submission, error) {
	query := `SELECT s.id, s.enrollment_id, s.problem_id, s.kind, s.score, s.scored_by, s.comment, s.created_at
	          FROM submissions s JOIN problems p ON p.id = s.problem_id
	          WHERE p.round_id = $1 AND s.created_at <= $2
	          ORDER BY s.enrollment_id, s.problem_id, s.kind`
	rows, err := r.db.QueryContext(ctx, query, roundID, toMicros(deadline))
	if err != nil {
		return nil, fmt.Errorf("sqlSubmissionRepository.ListRoundSubmissions: %w", err)
	}
	defer rows.Close()

	var submissions []model.Submission
	for rows.Next() {
		var (
			s       model.Submission
			kind    string
			created int64
		)
		if err := rows.Scan(&s.ID, &s.EnrollmentID, &s.ProblemID, &kind, &s.Score, &s.ScoredByID, &s.Comment, &created); err != nil {
			return nil, fmt.Errorf("sqlSubmissionRepository.ListRoundSubmissions scan: %w", err)
		}
		s.Kind = model.SubmissionKind(kind)
		s.CreatedAt = fromMicros(created)
		submissions = append(submissions, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlSubmissionRepository.ListRoundSubmissions rows: %w", err)
	}
	return submissions, nil
}

func (r *sqlSubmissionRepository) CountSubmissions(ctx context.Context, enrollmentID, problemID string, kind model.SubmissionKind) (int, error) {
	query := `SELECT COUNT(*) FROM submissions WHERE enrollment_id = $1 AND problem_id = $2 AND kind = $3`
	var n int
	if err := r.db.QueryRowContext(ctx, query, enrollmentID, problemID, string(kind)).Scan(&n); err != nil {
		return 0, fmt.Errorf("sqlSubmissionRepository.CountSubmissions: %w", err)
	}
	return n, nil
}
