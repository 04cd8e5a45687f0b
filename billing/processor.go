// Package billing turns confirmed external payments into ledger credits,
// exactly once per payment.
package billing

import (
	"context"
	"errors"
)

var (
	ErrPaymentNotComplete = errors.New("billing: payment not complete")
	// ErrPaymentMismatch means the payment exists but was made for a
	// different account, credit count or amount than the caller claims.
	ErrPaymentMismatch = errors.New("billing: payment does not match request")
	ErrProcessor       = errors.New("billing: payment processor unavailable")
	ErrStorage         = errors.New("billing: storage failed")
	ErrInvalidRequest  = errors.New("billing: invalid purchase request")
	// ErrNotPurchase marks a payment this service did not open, such as a
	// subscription invoice. It is never credited.
	ErrNotPurchase = errors.New("billing: payment is not a credit purchase")
)

const StatusSucceeded = "succeeded"

// Metadata keys stamped on every payment this service creates.
const (
	MetaAccountID = "account_id"
	MetaCredits   = "credits"
)

type Payment struct {
	ID       string
	Status   string
	Amount   int64
	Currency string
	Metadata map[string]string
}

type PaymentRequest struct {
	Amount      int64
	Currency    string
	CustomerRef string
	Metadata    map[string]string
}

type Intent struct {
	ID           string
	ClientSecret string
	Amount       int64
	Currency     string
}

// PaymentProcessor is the external payment service.
type PaymentProcessor interface {
	GetPayment(ctx context.Context, id string) (Payment, error)
	CreatePayment(ctx context.Context, req PaymentRequest) (Intent, error)
	EnsureCustomer(ctx context.Context, accountID, email string) (string, error)
}
