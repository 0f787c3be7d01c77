package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"seminar_standings/internal/common"
	"seminar_standings/internal/domain/model"
)

type RoundRepository interface {
	CreateRound(ctx context.Context, tx *sql.Tx, round *model.Round) error
	FindRoundByID(ctx context.Context, id string) (*model.Round, error)
	FindRoundBySlug(ctx context.Context, contestID, slug string) (*model.Round, error)
	ListRounds(ctx context.Context, contestID string) ([]model.Round, error)
	// MarkFinalized flips the flag only if it is still false; ErrConflict otherwise.
	MarkFinalized(ctx context.Context, tx *sql.Tx, roundID string) error

	CreateProblem(ctx context.Context, tx *sql.Tx, problem *model.Problem) error
	ListProblems(ctx context.Context, roundID string) ([]model.Problem, error)
}

type sqlRoundRepository struct {
	db *sql.DB
}

func NewSQLRoundRepository(db *sql.DB) RoundRepository {
	return &sqlRoundRepository{db: db}
}

const roundColumns = `id, contest_id, slug, name, start_date, end_date, is_public, is_finalized, policy_id, policy_options, created_at`

func (r *sqlRoundRepository) CreateRound(ctx context.Context, tx *sql.Tx, round *model.Round) error {
	query := `INSERT INTO rounds (` + roundColumns + `)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	options := string(round.PolicyOptions)
	if options == "" {
		options = "{}"
	}
	_, err := pick(r.db, tx).ExecContext(ctx, query,
		round.ID, round.ContestID, round.Slug, round.Name,
		toMicros(round.StartDate), toMicros(round.EndDate),
		round.IsPublic, round.IsFinalized, round.PolicyID, options, toMicros(round.CreatedAt),
	)
	if err != nil {
		if common.IsUniqueViolation(err) {
			return fmt.Errorf("round with slug %q already exists: %w", round.Slug, common.ErrConflict)
		}
		return fmt.Errorf("sqlRoundRepository.CreateRound: %w", err)
	}
	return nil
}

func scanRound(row interface{ Scan(dest ...any) error }) (*model.Round, error) {
	var (
		round              model.Round
		start, end, create int64
		options            string
	)
	err := row.Scan(
		&round.ID, &round.ContestID, &round.Slug, &round.Name,
		&start, &end, &round.IsPublic, &round.IsFinalized,
		&round.PolicyID, &options, &create,
	)
	if err != nil {
		return nil, err
	}
	round.StartDate = fromMicros(start)
	round.EndDate = fromMicros(end)
	round.CreatedAt = fromMicros(create)
	round.PolicyOptions = json.RawMessage(options)
	return &round, nil
}

func (r *sqlRoundRepository) FindRoundByID(ctx context.Context, id string) (*model.Round, error) {
	query := `SELECT ` + roundColumns + ` FROM rounds WHERE id = $1`
	round, err := scanRound(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("round %s: %w", id, common.ErrNotFound)
		}
		return nil, fmt.Errorf("sqlRoundRepository.FindRoundByID: %w", err)
	}
	return round, nil
}

func (r *sqlRoundRepository) FindRoundBySlug(ctx context.Context, contestID, slug string) (*model.Round, error) {
	query := `SELECT ` + roundColumns + ` FROM rounds WHERE contest_id = $1 AND slug = $2`
	round, err := scanRound(r.db.QueryRowContext(ctx, query, contestID, slug))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("round %q: %w", slug, common.ErrNotFound)
		}
		return nil, fmt.Errorf("sqlRoundRepository.FindRoundBySlug: %w", err)
	}
	return round, nil
}

func (r *sqlRoundRepository) ListRounds(ctx context.Context, contestID string) ([]model.Round, error) {
	query := `SELECT ` + roundColumns + ` FROM rounds WHERE contest_id = $1 ORDER BY start_date, slug`
	rows, err := r.db.QueryContext(ctx, query, contestID)
	if err != nil {
		return nil, fmt.Errorf("sqlRoundRepository.ListRounds: %w", err)
	}
	defer rows.Close()

	var rounds []model.Round
	for rows.Next() {
		round, err := scanRound(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlRoundRepository.ListRounds scan: %w", err)
		}
		rounds = append(rounds, *round)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlRoundRepository.ListRounds rows: %w", err)
	}
	return rounds, nil
}

func (r *sqlRoundRepository) MarkFinalized(ctx context.Context, tx *sql.Tx, roundID string) error {
	query := `UPDATE rounds SET is_finalized = $1 WHERE id = $2 AND is_finalized = $3`
	res, err := pick(r.db, tx).ExecContext(ctx, query, true, roundID, false)
	if err != nil {
		return fmt.Errorf("sqlRoundRepository.MarkFinalized: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlRoundRepository.MarkFinalized rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("round %s already finalized or missing: %w", roundID, common.ErrConflict)
	}
	return nil
}

func (r *sqlRoundRepository) CreateProblem(ctx context.Context, tx *sql.Tx, p *model.Problem) error {
	query := `INSERT INTO problems (id, round_id, number, name, file_points, judge_points, text_points)
	          VALUES ($1, $2, $3, $4, $5, $6, $7)`
	_, err := pick(r.db, tx).ExecContext(ctx, query, p.ID, p.RoundID, p.Number, p.Name, p.FilePoints, p.JudgePoints, p.TextPoints)
	if err != nil {
		if common.IsUniqueViolation(err) {
			return fmt.Errorf("problem number %d already exists in round: %w", p.Number, common.ErrConflict)
		}
		return fmt.Errorf("sqlRoundRepository.CreateProblem: %w", err)
	}
	return nil
}

func (r *sqlRoundRepository) ListProblems(ctx context.Context, roundID string) ([]model.Problem, error) {
	query := `SELECT id, round_id, number, name, file_points, judge_points, text_points
	          FROM problems WHERE round_id = $1 ORDER BY number`
	rows, err := r.db.QueryContext(ctx, query, roundID)
	if err != nil {
		return nil, fmt.Errorf("sqlRoundRepository.ListProblems: %w", err)
	}
	defer rows.Close()

	var problems []model.Problem
	for rows.Next() {
		var p model.Problem
		if err := rows.Scan(&p.ID, &p.RoundID, &p.Number, &p.Name, &p.FilePoints, &p.JudgePoints, &p.TextPoints); err != nil {
			return nil, fmt.Errorf("sqlRoundRepository.ListProblems scan: %w", err)
		}
		problems = append(problems, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlRoundRepository.ListProblems rows: %w", err)
	}
	return problems, nil
}
