package database

import (
	"context"
	"database/sql"
	"fmt"
)

// Timestamps are stored as unix milliseconds so both dialects share the same queries.

// EnsureSchema creates every table the engine reads or writes. It is safe to run repeatedly.
func EnsureSchema(ctx context.Context, db *sql.DB, driver Driver) error {
	schema := schemaPostgres
	if driver == DriverSQLite {
		schema = schemaSQLite
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("database.EnsureSchema: %w", err)
	}
	return nil
}

const schemaPostgres = `
CREATE TABLE IF NOT EXISTS users (
	id TEXT PRIMARY KEY,
	username TEXT NOT NULL UNIQUE,
	role TEXT NOT NULL DEFAULT 'user',
	created_at BIGINT NOT NULL
);

CREATE TABLE IF NOT EXISTS contest_roles (
	contest_id TEXT NOT NULL,
	user_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	role TEXT NOT NULL,
	PRIMARY KEY (contest_id, user_id, role)
);

CREATE TABLE IF NOT EXISTS rounds (
	id TEXT PRIMARY KEY,
	contest_id TEXT NOT NULL,
	slug TEXT NOT NULL,
	name TEXT NOT NULL DEFAULT '',
	start_date BIGINT NOT NULL,
	end_date BIGINT NOT NULL,
	is_public BOOLEAN NOT NULL DEFAULT FALSE,
	is_finalized BOOLEAN NOT NULL DEFAULT FALSE,
	policy_id TEXT NOT NULL DEFAULT 'default',
	policy_options TEXT NOT NULL DEFAULT '{}',
	created_at BIGINT NOT NULL,
	UNIQUE (contest_id, slug)
);

CREATE TABLE IF NOT EXISTS problems (
	id TEXT PRIMARY KEY,
	round_id TEXT NOT NULL REFERENCES rounds(id) ON DELETE CASCADE,
	number INTEGER NOT NULL,
	name TEXT NOT NULL DEFAULT '',
	file_points INTEGER NOT NULL DEFAULT 0,
	judge_points INTEGER NOT NULL DEFAULT 0,
	text_points INTEGER NOT NULL DEFAULT 0,
	UNIQUE (round_id, number)
);

CREATE TABLE IF NOT EXISTS enrollments (
	id TEXT PRIMARY KEY,
	round_id TEXT NOT NULL REFERENCES rounds(id) ON DELETE CASCADE,
	user_id TEXT NOT NULL REFERENCES users(id),
	grade TEXT NOT NULL,
	school_id TEXT,
	school_name TEXT NOT NULL DEFAULT '',
	created_at BIGINT NOT NULL,
	UNIQUE (round_id, user_id)
);

CREATE TABLE IF NOT EXISTS submissions (
	id TEXT PRIMARY KEY,
	enrollment_id TEXT NOT NULL REFERENCES enrollments(id) ON DELETE CASCADE,
	problem_id TEXT NOT NULL REFERENCES problems(id) ON DELETE CASCADE,
	kind TEXT NOT NULL,
	score DOUBLE PRECISION,
	scored_by TEXT,
	comment TEXT NOT NULL DEFAULT '',
	created_at BIGINT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_submissions_problem ON submissions(problem_id, created_at);
CREATE INDEX IF NOT EXISTS idx_submissions_enrollment ON submissions(enrollment_id, problem_id, kind);

CREATE TABLE IF NOT EXISTS policy_data (
	id TEXT PRIMARY KEY,
	contest_id TEXT NOT NULL,
	user_id TEXT NOT NULL,
	key TEXT NOT NULL,
	policy_id TEXT NOT NULL,
	data TEXT NOT NULL,
	created_at BIGINT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_policy_data_lookup ON policy_data(contest_id, key, user_id, created_at);

CREATE TABLE IF NOT EXISTS frozen_tables (
	round_id TEXT NOT NULL REFERENCES rounds(id) ON DELETE CASCADE,
	table_id TEXT NOT NULL,
	payload BYTEA NOT NULL,
	created_at BIGINT NOT NULL,
	PRIMARY KEY (round_id, table_id)
);
`

const schemaSQLite = `
PRAGMA foreign_keys=ON;

CREATE TABLE IF NOT EXISTS users (
	id TEXT PRIMARY KEY,
	username TEXT NOT NULL UNIQUE,
	role TEXT NOT NULL DEFAULT 'user',
	created_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS contest_roles (
	contest_id TEXT NOT NULL,
	user_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	role TEXT NOT NULL,
	PRIMARY KEY (contest_id, user_id, role)
);

CREATE TABLE IF NOT EXISTS rounds (
	id TEXT PRIMARY KEY,
	contest_id TEXT NOT NULL,
	slug TEXT NOT NULL,
	name TEXT NOT NULL DEFAULT '',
	start_date INTEGER NOT NULL,
	end_date INTEGER NOT NULL,
	is_public INTEGER NOT NULL DEFAULT 0,
	is_finalized INTEGER NOT NULL DEFAULT 0,
	policy_id TEXT NOT NULL DEFAULT 'default',
	policy_options TEXT NOT NULL DEFAULT '{}',
	created_at INTEGER NOT NULL,
	UNIQUE (contest_id, slug)
);

CREATE TABLE IF NOT EXISTS problems (
	id TEXT PRIMARY KEY,
	round_id TEXT NOT NULL REFERENCES rounds(id) ON DELETE CASCADE,
	number INTEGER NOT NULL,
	name TEXT NOT NULL DEFAULT '',
	file_points INTEGER NOT NULL DEFAULT 0,
	judge_points INTEGER NOT NULL DEFAULT 0,
	text_points INTEGER NOT NULL DEFAULT 0,
	UNIQUE (round_id, number)
);

CREATE TABLE IF NOT EXISTS enrollments (
	id TEXT PRIMARY KEY,
	round_id TEXT NOT NULL REFERENCES rounds(id) ON DELETE CASCADE,
	user_id TEXT NOT NULL REFERENCES users(id),
	grade TEXT NOT NULL,
	school_id TEXT,
	school_name TEXT NOT NULL DEFAULT '',
	created_at INTEGER NOT NULL,
	UNIQUE (round_id, user_id)
);

CREATE TABLE IF NOT EXISTS submissions (
	id TEXT PRIMARY KEY,
	enrollment_id TEXT NOT NULL REFERENCES enrollments(id) ON DELETE CASCADE,
	problem_id TEXT NOT NULL REFERENCES problems(id) ON DELETE CASCADE,
	kind TEXT NOT NULL,
	score REAL,
	scored_by TEXT,
	comment TEXT NOT NULL DEFAULT '',
	created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_submissions_problem ON submissions(problem_id, created_at);
CREATE INDEX IF NOT EXISTS idx_submissions_enrollment ON submissions(enrollment_id, problem_id, kind);

CREATE TABLE IF NOT EXISTS policy_data (
	id TEXT PRIMARY KEY,
	contest_id TEXT NOT NULL,
	user_id TEXT NOT NULL,
	key TEXT NOT NULL,
	policy_id TEXT NOT NULL,
	data TEXT NOT NULL,
	created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_policy_data_lookup ON policy_data(contest_id, key, user_id, created_at);

CREATE TABLE IF NOT EXISTS frozen_tables (
	round_id TEXT NOT NULL REFERENCES rounds(id) ON DELETE CASCADE,
	table_id TEXT NOT NULL,
	payload BLOB NOT NULL,
	created_at INTEGER NOT NULL,
	PRIMARY KEY (round_id, table_id)
);
`
