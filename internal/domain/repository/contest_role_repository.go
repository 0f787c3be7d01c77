package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"seminar_standings/internal/common"
	"seminar_standings/internal/domain/model"
)

type ContestRoleRepository interface {
	CreateUser(ctx context.Context, user *model.User) error
	FindUserByID(ctx context.Context, id string) (*model.User, error)
	GrantContestRole(ctx context.Context, role model.ContestRole) error
	IsOrganizer(ctx context.Context, contestID, userID string) (bool, error)
	// OrganizersAmong returns the subset of userIDs holding the organizer role in the contest.
	OrganizersAmong(ctx context.Context, contestID string, userIDs []string) (map[string]bool, error)
}

type sqlContestRoleRepository struct {
	db *sql.DB
}

func NewSQLContestRoleRepository(db *sql.DB) ContestRoleRepository {
	return &sqlContestRoleRepository{db: db}
}

func (r *sqlContestRoleRepository) CreateUser(ctx context.Context, user *model.User) error {
	query := `INSERT INTO users (id, username, role, created_at) VALUES ($1, $2, $3, $4)`
	role := user.Role
	if role == "" {
		role = model.RoleUser
	}
	_, err := r.db.ExecContext(ctx, query, user.ID, user.Username, role, toMicros(user.CreatedAt))
	if err != nil {
		if common.IsUniqueViolation(err) {
			return fmt.Errorf("user with given username already exists: %w", common.ErrConflict)
		}
		return fmt.Errorf("sqlContestRoleRepository.CreateUser: %w", err)
	}
	return nil
}

func (r *sqlContestRoleRepository) FindUserByID(ctx context.Context, id string) (*model.User, error) {
	query := `SELECT id, username, role, created_at FROM users WHERE id = $1`
	user := &model.User{}
	var created int64
	err := r.db.QueryRowContext(ctx, query, id).Scan(&user.ID, &user.Username, &user.Role, &created)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("sqlContestRoleRepository.FindUserByID: %w", err)
	}
	user.CreatedAt = fromMicros(created)
	return user, nil
}

func (r *sqlContestRoleRepository) GrantContestRole(ctx context.Context, role model.ContestRole) error {
	query := `INSERT INTO contest_roles (contest_id, user_id, role) VALUES ($1, $2, $3)`
	if _, err := r.db.ExecContext(ctx, query, role.ContestID, role.UserID, role.Role); err != nil {
		if common.IsUniqueViolation(err) {
			return nil
		}
		return fmt.Errorf("sqlContestRoleRepository.GrantContestRole: %w", err)
	}
	return nil
}

func (r *sqlContestRoleRepository) IsOrganizer(ctx context.Context, contestID, userID string) (bool, error) {
	if userID == "" {
		return false, nil
	}
	query := `SELECT COUNT(*) FROM contest_roles WHERE contest_id = $1 AND user_id = $2 AND role = $3`
	var n int
	if err := r.db.QueryRowContext(ctx, query, contestID, userID, model.ContestRoleOrganizer).Scan(&n); err != nil {
		return false, fmt.Errorf("sqlContestRoleRepository.IsOrganizer: %w", err)
	}
	return n > 0, nil
}

func (r *sqlContestRoleRepository) OrganizersAmong(ctx context.Context, contestID string, userIDs []string) (map[string]bool, error) {
	organizers := make(map[string]bool)
	if len(userIDs) == 0 {
		return organizers, nil
	}
	query := `SELECT DISTINCT user_id FROM contest_roles
	          WHERE contest_id = $1 AND role = $2 AND user_id IN (` + placeholders(3, len(userIDs)) + `)`
	args := append([]any{contestID, model.ContestRoleOrganizer}, stringArgs(userIDs)...)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlContestRoleRepository.OrganizersAmong: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("sqlContestRoleRepository.OrganizersAmong scan: %w", err)
		}
		organizers[id] = true
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlContestRoleRepository.OrganizersAmong rows: %w", err)
	}
	return organizers, nil
}
