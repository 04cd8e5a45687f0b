package ledger

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
)

const documentColumns = `id, account_id, transaction_id, file_ref, original_name, result, fallback, credits_charged, created_at`

// ListDocuments returns the account's documents, newest first.
func (s *Store) ListDocuments(ctx context.Context, accountID string) ([]Document, error) {
	rows, err := s.db.QueryContext(ctx, s.q(`
		SELECT `+documentColumns+`
		FROM documents
		WHERE account_id = ?
		ORDER BY created_at DESC, id DESC;
	`), accountID)
	if err != nil {
		return nil, fmt.Errorf("ledger: list documents: %w", err)
	}
	defer rows.Close()

	out := []Document{}
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ledger: list documents: %w", err)
	}
	return out, nil
}

// GetDocument loads one document owned by accountID.
func (s *Store) GetDocument(ctx context.Context, accountID, documentID string) (Document, error) {
	row := s.db.QueryRowContext(ctx, s.q(`
		SELECT `+documentColumns+`
		FROM documents
		WHERE account_id = ? AND id = ?;
	`), accountID, documentID)
	d, err := scanDocument(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Document{}, ErrNotFound
	}
	return d, err
}

// ListTransactions returns the account's ledger entries, newest first.
func (s *Store) ListTransactions(ctx context.Context, accountID string) ([]Transaction, error) {
	rows, err := s.db.QueryContext(ctx, s.q(`
		SELECT id, account_id, kind, amount, description, payment_ref, created_at
		FROM transactions
		WHERE account_id = ?
		ORDER BY created_at DESC, id DESC;
	`), accountID)
	if err != nil {
		return nil, fmt.Errorf("ledger: list transactions: %w", err)
	}
	defer rows.Close()

	out := []Transaction{}
	for rows.Next() {
		var (
			t   Transaction
			ref sql.NullString
		)
		if err := rows.Scan(&t.ID, &t.AccountID, &t.Kind, &t.Amount, &t.Description, &ref, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("ledger: scan transaction: %w", err)
		}
		t.PaymentRef = ref.String
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ledger: list transactions: %w", err)
	}
	return out, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanDocument(row scanner) (Document, error) {
	var (
		d      Document
		result []byte
	)
	err := row.Scan(
		&d.ID,
		&d.AccountID,
		&d.TransactionID,
		&d.FileRef,
		&d.OriginalName,
		&result,
		&d.Fallback,
		&d.CreditsCharged,
		&d.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Document{}, err
		}
		return Document{}, fmt.Errorf("ledger: scan document: %w", err)
	}
	d.Result = json.RawMessage(result)
	return d, nil
}
