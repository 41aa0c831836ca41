package db

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id            UUID PRIMARY KEY,
		email         TEXT NOT NULL UNIQUE,
		password_hash TEXT NOT NULL,
		created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS professions (
		id                     BIGSERIAL PRIMARY KEY,
		name                   TEXT NOT NULL UNIQUE,
		description            TEXT NOT NULL DEFAULT '',
		salary_cents           BIGINT NOT NULL CHECK (salary_cents >= 0),
		tax_rate_bps           INT NOT NULL CHECK (tax_rate_bps BETWEEN 0 AND 10000),
		other_expenses_cents   BIGINT NOT NULL DEFAULT 0 CHECK (other_expenses_cents >= 0),
		child_expense_cents    BIGINT NOT NULL DEFAULT 0 CHECK (child_expense_cents >= 0),
		starting_cash_cents    BIGINT NOT NULL DEFAULT 0,
		starting_savings_cents BIGINT NOT NULL DEFAULT 0 CHECK (starting_savings_cents >= 0),
		liabilities            JSONB NOT NULL DEFAULT '[]'
	)`,
	`CREATE TABLE IF NOT EXISTS sessions (
		id             UUID PRIMARY KEY,
		owner_identity TEXT NOT NULL,
		status         TEXT NOT NULL DEFAULT 'active',
		created_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at     TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS sessions_owner_idx ON sessions (owner_identity)`,
	`CREATE TABLE IF NOT EXISTS players (
		id                     UUID PRIMARY KEY,
		session_id             UUID NOT NULL REFERENCES sessions (id) ON DELETE CASCADE,
		identity               TEXT NOT NULL,
		profession_id          BIGINT NOT NULL,
		profession_name        TEXT NOT NULL,
		salary_cents           BIGINT NOT NULL,
		tax_rate_bps           INT NOT NULL,
		other_expenses_cents   BIGINT NOT NULL,
		child_expense_cents    BIGINT NOT NULL,
		turn                   INT NOT NULL DEFAULT 0 CHECK (turn >= 0),
		cash_cents             BIGINT NOT NULL,
		savings_cents          BIGINT NOT NULL CHECK (savings_cents >= 0),
		passive_income_cents   BIGINT NOT NULL DEFAULT 0,
		liabilities            JSONB NOT NULL DEFAULT '[]',
		starting_cash_cents    BIGINT NOT NULL DEFAULT 0,
		starting_savings_cents BIGINT NOT NULL DEFAULT 0,
		starting_liabilities   JSONB NOT NULL DEFAULT '[]',
		created_at             TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at             TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS players_session_idx ON players (session_id)`,
	`CREATE TABLE IF NOT EXISTS market_events (
		id         BIGSERIAL PRIMARY KEY,
		session_id UUID NOT NULL REFERENCES sessions (id) ON DELETE CASCADE,
		player_id  UUID NOT NULL REFERENCES players (id) ON DELETE CASCADE,
		turn       INT NOT NULL,
		seq        INT NOT NULL,
		event_type TEXT NOT NULL,
		payload    JSONB NOT NULL,
		applied_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		UNIQUE (player_id, turn, seq)
	)`,
	`CREATE TABLE IF NOT EXISTS progress_records (
		owner_key     TEXT NOT NULL,
		lesson_key    TEXT NOT NULL,
		visited_pages JSONB NOT NULL DEFAULT '[]',
		quiz_score    INT,
		stars         INT NOT NULL DEFAULT 0,
		completed_at  TIMESTAMPTZ,
		updated_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
		PRIMARY KEY (owner_key, lesson_key)
	)`,
	`CREATE TABLE IF NOT EXISTS guest_merges (
		guest_token TEXT PRIMARY KEY,
		identity    TEXT NOT NULL,
		merged_at   TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS idempotency_keys (
		identity   TEXT NOT NULL,
		key        TEXT NOT NULL,
		action     TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		PRIMARY KEY (identity, key)
	)`,
}

// EnsureSchema bootstraps the tables on startup. Every statement is
// idempotent, so running it against an existing database is safe.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	for _, stmt := range schemaStatements {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}
