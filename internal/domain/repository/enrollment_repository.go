package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"seminar_standings/internal/common"
	"seminar_standings/internal/domain/model"
)

type EnrollmentRepository interface {
	CreateEnrollment(ctx context.Context, tx *sql.Tx, e *model.Enrollment) error
	FindEnrollment(ctx context.Context, roundID, userID string) (*model.Enrollment, error)
	// ListEnrollments returns enrollments in registration order, which is the tie order of every table.
	ListEnrollments(ctx context.Context, roundID string) ([]model.Enrollment, error)
}

type sqlEnrollmentRepository struct {
	db *sql.DB
}

func NewSQLEnrollmentRepository(db *sql.DB) EnrollmentRepository {
	return &sqlEnrollmentRepository{db: db}
}

func (r *sqlEnrollmentRepository) CreateEnrollment(ctx context.Context, tx *sql.Tx, e *model.Enrollment) error {
	query := `INSERT INTO enrollments (id, round_id, user_id, grade, school_id, school_name, created_at)
	          VALUES ($1, $2, $3, $4, $5, $6, $7)`
	_, err := pick(r.db, tx).ExecContext(ctx, query, e.ID, e.RoundID, e.UserID, string(e.Grade), e.SchoolID, e.SchoolName, toMicros(e.CreatedAt))
	if err != nil {
		if common.IsUniqueViolation(err) {
			return fmt.Errorf("user %s already enrolled in round %s: %w", e.UserID, e.RoundID, common.ErrConflict)
		}
		return fmt.Errorf("sqlEnrollmentRepository.CreateEnrollment: %w", err)
	}
	return nil
}

const enrollmentSelect = `SELECT e.id, e.round_id, e.user_id, u.username, e.grade, e.school_id, e.school_name, e.created_at
	FROM enrollments e JOIN users u ON u.id = e.user_id`

func scanEnrollment(row interface{ Scan(dest ...any) error }) (*model.Enrollment, error) {
	var (
		e       model.Enrollment
		grade   string
		created int64
	)
	if err := row.Scan(&e.ID, &e.RoundID, &e.UserID, &e.Username, &grade, &e.SchoolID, &e.SchoolName, &created); err != nil {
		return nil, err
	}
	e.Grade = model.Grade(grade)
	e.CreatedAt = fromMicros(created)
	return &e, nil
}

func (r *sqlEnrollmentRepository) FindEnrollment(ctx context.Context, roundID, userID string) (*model.Enrollment, error) {
	query := enrollmentSelect + ` WHERE e.round_id = $1 AND e.user_id = $2`
	e, err := scanEnrollment(r.db.QueryRowContext(ctx, query, roundID, userID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("sqlEnrollmentRepository.FindEnrollment: %w", err)
	}
	return e, nil
}

func (r *sqlEnrollmentRepository) ListEnrollments(ctx context.Context, roundID string) ([]model.Enrollment, error) {
	query := enrollmentSelect + ` WHERE e.round_id = $1 ORDER BY e.created_at, e.id`
	rows, err := r.db.QueryContext(ctx, query, roundID)
	if err != nil {
		return nil, fmt.Errorf("sqlEnrollmentRepository.ListEnrollments: %w", err)
	}
	defer rows.Close()

	var enrollments []model.Enrollment
	for rows.Next() {
		e, err := scanEnrollment(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlEnrollmentRepository.ListEnrollments scan: %w", err)
		}
		enrollments = append(enrollments, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlEnrollmentRepository.ListEnrollments rows: %w", err)
	}
	return enrollments, nil
}
