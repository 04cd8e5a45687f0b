package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

// EnsureAccount registers an account with the starting balance if it does not
// exist yet. An existing account is returned as-is; its balance is never reset.
func (s *Store) EnsureAccount(ctx context.Context, id, email string, startingCredits int) (Account, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return Account{}, fmt.Errorf("%w: missing account id", ErrInvalidInput)
	}
	if startingCredits < 0 {
		return Account{}, fmt.Errorf("%w: negative starting balance", ErrInvalidInput)
	}

	res, err := s.db.ExecContext(ctx, s.q(`
		INSERT INTO accounts (id, email, credits, subscription_status, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (id) DO NOTHING;
	`), id, nullIfEmpty(email), startingCredits, SubscriptionNone, s.timestamp())
	if err != nil {
		return Account{}, fmt.Errorf("ledger: insert account: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n > 0 {
		s.log.Infow("ledger.account.registered", "account_id", id, "credits", startingCredits)
	}

	return s.GetAccount(ctx, id)
}

func (s *Store) GetAccount(ctx context.Context, id string) (Account, error) {
	var (
		acct     Account
		email    sql.NullString
		customer sql.NullString
	)
	err := s.db.QueryRowContext(ctx, s.q(`
		SELECT id, email, credits, subscription_status, stripe_customer_id, created_at
		FROM accounts
		WHERE id = ?;
	`), id).Scan(&acct.ID, &email, &acct.Credits, &acct.SubscriptionStatus, &customer, &acct.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Account{}, ErrNotFound
		}
		return Account{}, fmt.Errorf("ledger: load account: %w", err)
	}
	acct.Email = email.String
	acct.StripeCustomerID = customer.String
	return acct, nil
}

// GetBalance returns the current credit balance. ErrNotFound if the account
// does not exist.
func (s *Store) GetBalance(ctx context.Context, id string) (int, error) {
	var credits int
	err := s.db.QueryRowContext(ctx, s.q(`
		SELECT credits FROM accounts WHERE id = ?;
	`), id).Scan(&credits)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, ErrNotFound
		}
		return 0, fmt.Errorf("ledger: load balance: %w", err)
	}
	return credits, nil
}

// SetStripeCustomer stores the external payment customer reference unless
// the account already has one, and returns the reference that is stored.
func (s *Store) SetStripeCustomer(ctx context.Context, id, customerID string) (string, error) {
	if customerID == "" {
		return "", fmt.Errorf("%w: missing customer id", ErrInvalidInput)
	}
	_, err := s.db.ExecContext(ctx, s.q(`
		UPDATE accounts SET stripe_customer_id = ?
		WHERE id = ? AND (stripe_customer_id IS NULL OR stripe_customer_id = '');
	`), customerID, id)
	if err != nil {
		return "", fmt.Errorf("ledger: update account: %w", err)
	}

	acct, err := s.GetAccount(ctx, id)
	if err != nil {
		return "", err
	}
	return acct.StripeCustomerID, nil
}

func (s *Store) SetSubscriptionStatus(ctx context.Context, id string, status SubscriptionStatus) error {
	return s.updateAccount(ctx, `
		UPDATE accounts SET subscription_status = ? WHERE id = ?;
	`, status, id)
}

// SetSubscriptionStatusByCustomer is used by webhooks, which only know the
// processor's customer id.
func (s *Store) SetSubscriptionStatusByCustomer(ctx context.Context, customerID string, status SubscriptionStatus) error {
	if customerID == "" {
		return fmt.Errorf("%w: missing customer id", ErrInvalidInput)
	}
	return s.updateAccount(ctx, `
		UPDATE accounts SET subscription_status = ? WHERE stripe_customer_id = ?;
	`, status, customerID)
}

func (s *Store) updateAccount(ctx context.Context, query string, args ...any) error {
	res, err := s.db.ExecContext(ctx, s.q(query), args...)
	if err != nil {
		return fmt.Errorf("ledger: update account: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}
