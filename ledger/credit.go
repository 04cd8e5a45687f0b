package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

// CreditPurchase adds amount credits for a confirmed external payment. The
// unique payment reference makes the operation idempotent: a second call with
// the same reference returns ErrDuplicatePayment and changes nothing.
func (s *Store) CreditPurchase(ctx context.Context, accountID string, amount int, paymentRef, description string) (CreditResult, error) {
	if amount <= 0 {
		return CreditResult{}, ErrInvalidAmount
	}
	paymentRef = strings.TrimSpace(paymentRef)
	if paymentRef == "" {
		return CreditResult{}, fmt.Errorf("%w: missing payment reference", ErrInvalidInput)
	}
	if description == "" {
		description = fmt.Sprintf("Purchased %d credits", amount)
	}

	out := CreditResult{TransactionID: s.newID()}
	now := s.timestamp()

	err := s.withTx(ctx, func(tx *sql.Tx) error {
		err := tx.QueryRowContext(ctx, s.q(`
			UPDATE accounts
			SET credits = credits + ?
			WHERE id = ?
			RETURNING credits;
		`), amount, accountID).Scan(&out.NewBalance)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("ledger: credit balance: %w", err)
		}

		res, err := tx.ExecContext(ctx, s.q(`
			INSERT INTO transactions (id, account_id, kind, amount, description, payment_ref, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT (payment_ref) DO NOTHING;
		`), out.TransactionID, accountID, KindCredit, amount, description, paymentRef, now)
		if err != nil {
			return fmt.Errorf("ledger: insert credit entry: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("ledger: insert credit entry: %w", err)
		}
		if n == 0 {
			// rolls back the balance update above
			return ErrDuplicatePayment
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrDuplicatePayment) {
			s.log.Infow("ledger.credit.duplicate", "account_id", accountID, "payment_ref", paymentRef)
		}
		return CreditResult{}, err
	}

	s.log.Infow("ledger.credit.ok",
		"account_id", accountID,
		"amount", amount,
		"new_balance", out.NewBalance,
		"payment_ref", paymentRef,
	)
	return out, nil
}
