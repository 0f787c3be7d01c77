package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"seminar_standings/internal/common"
	"seminar_standings/internal/domain/model"
)

type FrozenTableRepository interface {
	GetFrozenTable(ctx context.Context, roundID, tableID string) (*model.FrozenTable, error)
	// SaveFrozenTable writes a snapshot once; a second write for the same key is ErrConflict.
	SaveFrozenTable(ctx context.Context, tx *sql.Tx, table *model.FrozenTable) error
}

type sqlFrozenTableRepository struct {
	db *sql.DB
}

func NewSQLFrozenTableRepository(db *sql.DB) FrozenTableRepository {
	return &sqlFrozenTableRepository{db: db}
}

func (r *sqlFrozenTableRepository) GetFrozenTable(ctx context.Context, roundID, tableID string) (*model.FrozenTable, error) {
	query := `SELECT round_id, table_id, payload, created_at FROM frozen_tables WHERE round_id = $1 AND table_id = $2`
	ft := &model.FrozenTable{}
	var created int64
	err := r.db.QueryRowContext(ctx, query, roundID, tableID).Scan(&ft.RoundID, &ft.TableID, &ft.Payload, &created)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("sqlFrozenTableRepository.GetFrozenTable: %w", err)
	}
	ft.CreatedAt = fromMicros(created)
	return ft, nil
}

func (r *sqlFrozenTableRepository) SaveFrozenTable(ctx context.Context, tx *sql.Tx, ft *model.FrozenTable) error {
	query := `INSERT INTO frozen_tables (round_id, table_id, payload, created_at) VALUES ($1, $2, $3, $4)`
	if _, err := pick(r.db, tx).ExecContext(ctx, query, ft.RoundID, ft.TableID, ft.Payload, toMicros(ft.CreatedAt)); err != nil {
		if common.IsUniqueViolation(err) {
			return fmt.Errorf("table %s of round %s already frozen: %w", ft.TableID, ft.RoundID, common.ErrConflict)
		}
		return fmt.Errorf("sqlFrozenTableRepository.SaveFrozenTable: %w", err)
	}
	return nil
}
