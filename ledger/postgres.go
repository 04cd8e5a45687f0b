package ledger

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"
)

var Postgres = Dialect{
	Name:     "postgres",
	numbered: true,
	schema: []string{
		`CREATE TABLE IF NOT EXISTS accounts (
			id                  TEXT PRIMARY KEY,
			email               TEXT,
			credits             INTEGER NOT NULL CHECK (credits >= 0),
			subscription_status TEXT NOT NULL DEFAULT 'none',
			stripe_customer_id  TEXT,
			created_at          TIMESTAMPTZ NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS transactions (
			id          TEXT PRIMARY KEY,
			account_id  TEXT NOT NULL REFERENCES accounts (id),
			kind        TEXT NOT NULL CHECK (kind IN ('debit', 'credit')),
			amount      INTEGER NOT NULL,
			description TEXT NOT NULL,
			payment_ref TEXT UNIQUE,
			created_at  TIMESTAMPTZ NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS transactions_account_created_idx
			ON transactions (account_id, created_at DESC);`,
		`CREATE TABLE IF NOT EXISTS documents (
			id              TEXT PRIMARY KEY,
			account_id      TEXT NOT NULL REFERENCES accounts (id),
			transaction_id  TEXT NOT NULL UNIQUE REFERENCES transactions (id),
			file_ref        TEXT NOT NULL,
			original_name   TEXT NOT NULL,
			result          JSONB NOT NULL,
			fallback        BOOLEAN NOT NULL DEFAULT FALSE,
			credits_charged INTEGER NOT NULL,
			created_at      TIMESTAMPTZ NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS documents_account_created_idx
			ON documents (account_id, created_at DESC);`,
	},
}

// OpenPostgres connects with lib/pq and verifies the connection.
func OpenPostgres(ctx context.Context, dsn string, opts ...Option) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("sql.Open: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("db.Ping: %w", err)
	}
	return New(db, Postgres, opts...), nil
}
