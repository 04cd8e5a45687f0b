package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// TryDebit charges amount credits and records the paid-for document. The
// balance check, the balance update, the ledger entry and the document record
// commit together or not at all. The conditional UPDATE is what serializes
// concurrent debits of the same account: the loser sees zero matching rows.
func (s *Store) TryDebit(ctx context.Context, accountID string, amount int, doc DocumentPayload) (DebitResult, error) {
	if amount <= 0 {
		return DebitResult{}, ErrInvalidAmount
	}
	if len(doc.Result) == 0 {
		return DebitResult{}, fmt.Errorf("%w: empty document result", ErrInvalidInput)
	}

	out := DebitResult{
		TransactionID: s.newID(),
		DocumentID:    s.newID(),
	}
	now := s.timestamp()

	err := s.withTx(ctx, func(tx *sql.Tx) error {
		err := tx.QueryRowContext(ctx, s.q(`
			UPDATE accounts
			SET credits = credits - ?
			WHERE id = ? AND credits >= ?
			RETURNING credits;
		`), amount, accountID, amount).Scan(&out.NewBalance)
		if errors.Is(err, sql.ErrNoRows) {
			return s.refusal(ctx, tx, accountID)
		}
		if err != nil {
			return fmt.Errorf("ledger: debit balance: %w", err)
		}

		if _, err := tx.ExecContext(ctx, s.q(`
			INSERT INTO transactions (id, account_id, kind, amount, description, payment_ref, created_at)
			VALUES (?, ?, ?, ?, ?, NULL, ?);
		`), out.TransactionID, accountID, KindDebit, -amount, debitDescription(doc.OriginalName), now); err != nil {
			return fmt.Errorf("ledger: insert debit entry: %w", err)
		}

		if _, err := tx.ExecContext(ctx, s.q(`
			INSERT INTO documents (id, account_id, transaction_id, file_ref, original_name, result, fallback, credits_charged, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?);
		`), out.DocumentID, accountID, out.TransactionID, doc.FileRef, doc.OriginalName, string(doc.Result), doc.Fallback, amount, now); err != nil {
			return fmt.Errorf("ledger: insert document: %w", err)
		}
		return nil
	})
	if err != nil {
		return DebitResult{}, err
	}

	s.log.Infow("ledger.debit.ok",
		"account_id", accountID,
		"amount", amount,
		"new_balance", out.NewBalance,
		"document_id", out.DocumentID,
	)
	return out, nil
}

// refusal tells a missing account apart from an insufficient balance after
// the conditional update matched nothing.
func (s *Store) refusal(ctx context.Context, tx *sql.Tx, accountID string) error {
	var exists int
	err := tx.QueryRowContext(ctx, s.q(`SELECT 1 FROM accounts WHERE id = ?;`), accountID).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("ledger: load account: %w", err)
	}
	return ErrInsufficientCredits
}

func debitDescription(name string) string {
	if name == "" {
		return "Document analysis"
	}
	return "Document analysis: " + name
}
