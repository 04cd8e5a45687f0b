package ledger

import "errors"

// Sentinel errors returned by the Store.
var (
	ErrNotFound            = errors.New("ledger: not found")
	ErrInsufficientCredits = errors.New("ledger: insufficient credits")
	ErrDuplicatePayment    = errors.New("ledger: payment already credited")
	ErrInvalidAmount       = errors.New("ledger: amount must be positive")
	ErrInvalidInput        = errors.New("ledger: invalid input")
	ErrTransactionFailed   = errors.New("ledger: transaction failed")
)

// IsRetryable reports whether the caller may retry the operation. The store
// itself never retries.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrTransactionFailed)
}
