// Package ledger keeps account credit balances together with the append-only
// history of balance changes and the documents that were paid for.
package ledger

import (
	"encoding/json"
	"time"
)

// Kind tags a ledger entry as a debit or a credit.
type Kind string

const (
	KindDebit  Kind = "debit"
	KindCredit Kind = "credit"
)

// SubscriptionStatus is an opaque tag mirrored from the payment processor.
type SubscriptionStatus string

const (
	SubscriptionNone     SubscriptionStatus = "none"
	SubscriptionActive   SubscriptionStatus = "active"
	SubscriptionCanceled SubscriptionStatus = "canceled"
)

// DocumentCharge is the number of credits one analysis costs.
const DocumentCharge = 1

type Account struct {
	ID                 string             `json:"id"`
	Email              string             `json:"email,omitempty"`
	Credits            int                `json:"credits"`
	SubscriptionStatus SubscriptionStatus `json:"subscriptionStatus"`
	StripeCustomerID   string             `json:"-"`
	CreatedAt          time.Time          `json:"createdAt"`
}

// Transaction is one immutable balance change. Amount is signed: debits are
// negative, credits positive.
type Transaction struct {
	ID          string    `json:"id"`
	AccountID   string    `json:"accountId"`
	Kind        Kind      `json:"kind"`
	Amount      int       `json:"amount"`
	Description string    `json:"description"`
	PaymentRef  string    `json:"paymentRef,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
}

// Document is the persisted result of one paid analysis.
type Document struct {
	ID             string          `json:"id"`
	AccountID      string          `json:"accountId"`
	TransactionID  string          `json:"transactionId"`
	FileRef        string          `json:"fileRef"`
	OriginalName   string          `json:"originalName"`
	Result         json.RawMessage `json:"result"`
	Fallback       bool            `json:"fallback"`
	CreditsCharged int             `json:"creditsCharged"`
	CreatedAt      time.Time       `json:"createdAt"`
}

// DocumentPayload is what TryDebit records alongside the debit.
type DocumentPayload struct {
	FileRef      string
	OriginalName string
	Result       json.RawMessage
	Fallback     bool
}

type DebitResult struct {
	NewBalance    int
	DocumentID    string
	TransactionID string
}

type CreditResult struct {
	NewBalance    int
	TransactionID string
}
