package ledger

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

var SQLite = Dialect{
	Name: "sqlite",
	schema: []string{
		`CREATE TABLE IF NOT EXISTS accounts (
			id                  TEXT PRIMARY KEY,
			email               TEXT,
			credits             INTEGER NOT NULL CHECK (credits >= 0),
			subscription_status TEXT NOT NULL DEFAULT 'none',
			stripe_customer_id  TEXT,
			created_at          TIMESTAMP NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS transactions (
			id          TEXT PRIMARY KEY,
			account_id  TEXT NOT NULL REFERENCES accounts (id),
			kind        TEXT NOT NULL CHECK (kind IN ('debit', 'credit')),
			amount      INTEGER NOT NULL,
			description TEXT NOT NULL,
			payment_ref TEXT UNIQUE,
			created_at  TIMESTAMP NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS transactions_account_created_idx
			ON transactions (account_id, created_at DESC);`,
		`CREATE TABLE IF NOT EXISTS documents (
			id              TEXT PRIMARY KEY,
			account_id      TEXT NOT NULL REFERENCES accounts (id),
			transaction_id  TEXT NOT NULL UNIQUE REFERENCES transactions (id),
			file_ref        TEXT NOT NULL,
			original_name   TEXT NOT NULL,
			result          TEXT NOT NULL,
			fallback        BOOLEAN NOT NULL DEFAULT 0,
			credits_charged INTEGER NOT NULL,
			created_at      TIMESTAMP NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS documents_account_created_idx
			ON documents (account_id, created_at DESC);`,
	},
}

// OpenSQLite opens a file-backed SQLite ledger. Writers are serialized on a
// single connection and every transaction takes the write lock up front.
func OpenSQLite(ctx context.Context, path string, opts ...Option) (*Store, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_txlock=immediate", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sql.Open: %w", err)
	}
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("db.Ping: %w", err)
	}
	return New(db, SQLite, opts...), nil
}
