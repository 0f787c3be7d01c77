package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"seminar_standings/internal/common"
	"seminar_standings/internal/domain/model"
)

type PolicyDataRepository interface {
	// LatestPolicyData returns, per user, the newest matching datum. Users without one are absent.
	LatestPolicyData(ctx context.Context, q model.PolicyDataQuery) (map[string]model.PolicyDatum, error)
	// InsertPolicyData appends facts; existing rows are never updated.
	InsertPolicyData(ctx context.Context, tx *sql.Tx, data []model.PolicyDatum) error
}

type sqlPolicyDataRepository struct {
	db *sql.DB
}

func NewSQLPolicyDataRepository(db *sql.DB) PolicyDataRepository {
	return &sqlPolicyDataRepository{db: db}
}

func (r *sqlPolicyDataRepository) LatestPolicyData(ctx context.Context, q model.PolicyDataQuery) (map[string]model.PolicyDatum, error) {
	latest := make(map[string]model.PolicyDatum)
	if len(q.UserIDs) == 0 || len(q.PolicyIDs) == 0 {
		return latest, nil
	}

	args := []any{q.ContestID, q.Key, toMicros(q.EffectiveDate)}
	policyFrom := len(args) + 1
	args = append(args, stringArgs(q.PolicyIDs)...)
	userFrom := len(args) + 1
	args = append(args, stringArgs(q.UserIDs)...)

	query := `SELECT id, contest_id, user_id, key, policy_id, data, created_at
	          FROM policy_data
	          WHERE contest_id = $1 AND key = $2 AND created_at <= $3
	            AND policy_id IN (` + placeholders(policyFrom, len(q.PolicyIDs)) + `)
	            AND user_id IN (` + placeholders(userFrom, len(q.UserIDs)) + `)
	          ORDER BY user_id, created_at DESC, id DESC`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlPolicyDataRepository.LatestPolicyData: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			d       model.PolicyDatum
			data    string
			created int64
		)
		if err := rows.Scan(&d.ID, &d.ContestID, &d.UserID, &d.Key, &d.PolicyID, &data, &created); err != nil {
			return nil, fmt.Errorf("sqlPolicyDataRepository.LatestPolicyData scan: %w", err)
		}
		if _, seen := latest[d.UserID]; seen {
			continue
		}
		d.Data = json.RawMessage(data)
		d.CreatedAt = fromMicros(created)
		latest[d.UserID] = d
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlPolicyDataRepository.LatestPolicyData rows: %w", err)
	}
	return latest, nil
}

func (r *sqlPolicyDataRepository) InsertPolicyData(ctx context.Context, tx *sql.Tx, data []model.PolicyDatum) error {
	query := `INSERT INTO policy_data (id, contest_id, user_id, key, policy_id, data, created_at)
	          VALUES ($1, $2, $3, $4, $5, $6, $7)`
	ex := pick(r.db, tx)
	for _, d := range data {
		if _, err := ex.ExecContext(ctx, query, d.ID, d.ContestID, d.UserID, d.Key, d.PolicyID, string(d.Data), toMicros(d.CreatedAt)); err != nil {
			if common.IsUniqueViolation(err) {
				return fmt.Errorf("policy datum %s already exists: %w", d.ID, common.ErrConflict)
			}
			return fmt.Errorf("sqlPolicyDataRepository.InsertPolicyData: %w", err)
		}
	}
	return nil
}
