package billing

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"example/docanalysis-api/ledger"

	"go.uber.org/zap"
)

const (
	DefaultTimeout    = 15 * time.Second
	DefaultCurrency   = "usd"
	DefaultPriceCents = 100
	DefaultMaxCredits = 500
)

// Ledger is the part of the ledger store the reconciler needs.
type Ledger interface {
	GetAccount(ctx context.Context, id string) (ledger.Account, error)
	GetBalance(ctx context.Context, id string) (int, error)
	CreditPurchase(ctx context.Context, accountID string, amount int, paymentRef, description string) (ledger.CreditResult, error)
	SetStripeCustomer(ctx context.Context, id, customerID string) (string, error)
	SetSubscriptionStatusByCustomer(ctx context.Context, customerID string, status ledger.SubscriptionStatus) error
}

type Config struct {
	Currency   string
	PriceCents int64
	MaxCredits int
	// Timeout bounds every call to the payment processor.
	Timeout time.Duration
}

// Confirmation is the result of a successful ConfirmPurchase. Replayed is
// set when the payment had already been credited earlier.
type Confirmation struct {
	NewBalance int
	Replayed   bool
}

type Reconciler struct {
	ledger    Ledger
	processor PaymentProcessor
	cfg       Config
	log       *zap.SugaredLogger
}

func NewReconciler(l Ledger, p PaymentProcessor, cfg Config, log *zap.SugaredLogger) *Reconciler {
	if cfg.Currency == "" {
		cfg.Currency = DefaultCurrency
	}
	if cfg.PriceCents <= 0 {
		cfg.PriceCents = DefaultPriceCents
	}
	if cfg.MaxCredits <= 0 {
		cfg.MaxCredits = DefaultMaxCredits
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Reconciler{ledger: l, processor: p, cfg: cfg, log: log}
}

// CreatePurchase prices credits and opens a payment for the account. The
// payment carries the account and credit count so confirmation can check
// them.
func (r *Reconciler) CreatePurchase(ctx context.Context, accountID string, credits int) (Intent, error) {
	if credits <= 0 || credits > r.cfg.MaxCredits {
		return Intent{}, fmt.Errorf("%w: credits must be between 1 and %d", ErrInvalidRequest, r.cfg.MaxCredits)
	}

	acct, err := r.ledger.GetAccount(ctx, accountID)
	if err != nil {
		return Intent{}, storageErr(err)
	}

	ctx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)
	defer cancel()

	customerRef := acct.StripeCustomerID
	if customerRef == "" {
		created, err := r.processor.EnsureCustomer(ctx, accountID, acct.Email)
		if err != nil {
			return Intent{}, processorErr(err)
		}
		// a concurrent purchase may have stored its customer first
		customerRef, err = r.ledger.SetStripeCustomer(ctx, accountID, created)
		if err != nil {
			return Intent{}, storageErr(err)
		}
		if customerRef != created {
			r.log.Warnw("billing.customer.orphaned", "account_id", accountID, "customer", created, "kept", customerRef)
		}
	}

	intent, err := r.processor.CreatePayment(ctx, PaymentRequest{
		Amount:      int64(credits) * r.cfg.PriceCents,
		Currency:    r.cfg.Currency,
		CustomerRef: customerRef,
		Metadata: map[string]string{
			MetaAccountID: accountID,
			MetaCredits:   strconv.Itoa(credits),
		},
	})
	if err != nil {
		return Intent{}, processorErr(err)
	}

	r.log.Infow("billing.purchase.created",
		"account_id", accountID,
		"payment_id", intent.ID,
		"credits", credits,
		"amount", intent.Amount,
	)
	return intent, nil
}

// ConfirmPurchase verifies the payment with the processor and credits the
// account. Confirming the same payment again reports the current balance
// without crediting twice.
func (r *Reconciler) ConfirmPurchase(ctx context.Context, accountID, paymentID string, credits int) (Confirmation, error) {
	if paymentID == "" || credits <= 0 {
		return Confirmation{}, fmt.Errorf("%w: payment id and a positive credit count are required", ErrInvalidRequest)
	}

	payment, err := r.fetch(ctx, paymentID)
	if err != nil {
		return Confirmation{}, err
	}
	return r.apply(ctx, accountID, credits, payment)
}

// ReconcilePayment credits a payment delivered by the processor itself, for
// example through a signed webhook. The account and credit count come from
// the payment's metadata; payments without it are ErrNotPurchase.
func (r *Reconciler) ReconcilePayment(ctx context.Context, payment Payment) (Confirmation, error) {
	accountID, rawCredits := payment.Metadata[MetaAccountID], payment.Metadata[MetaCredits]
	if accountID == "" || rawCredits == "" {
		return Confirmation{}, fmt.Errorf("%w: payment %s", ErrNotPurchase, payment.ID)
	}
	credits, err := strconv.Atoi(rawCredits)
	if err != nil || credits <= 0 {
		return Confirmation{}, fmt.Errorf("%w: payment %s has credits %q", ErrPaymentMismatch, payment.ID, rawCredits)
	}
	return r.apply(ctx, accountID, credits, payment)
}

// UpdateSubscription records a subscription status change reported for a
// processor customer.
func (r *Reconciler) UpdateSubscription(ctx context.Context, customerRef string, status ledger.SubscriptionStatus) error {
	if err := r.ledger.SetSubscriptionStatusByCustomer(ctx, customerRef, status); err != nil {
		return storageErr(err)
	}
	r.log.Infow("billing.subscription.updated", "customer", customerRef, "status", status)
	return nil
}

func (r *Reconciler) fetch(ctx context.Context, paymentID string) (Payment, error) {
	ctx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)
	defer cancel()

	payment, err := r.processor.GetPayment(ctx, paymentID)
	if err != nil {
		r.log.Warnw("billing.payment.lookup.error", "payment_id", paymentID, "error", err)
		return Payment{}, processorErr(err)
	}
	return payment, nil
}

func (r *Reconciler) apply(ctx context.Context, accountID string, credits int, payment Payment) (Confirmation, error) {
	log := r.log.With("account_id", accountID, "payment_id", payment.ID)

	if payment.Status != StatusSucceeded {
		log.Infow("billing.payment.incomplete", "status", payment.Status)
		return Confirmation{}, fmt.Errorf("%w: status %q", ErrPaymentNotComplete, payment.Status)
	}
	if err := r.matches(accountID, credits, payment); err != nil {
		log.Warnw("billing.payment.mismatch", "error", err)
		return Confirmation{}, err
	}

	desc := fmt.Sprintf("Purchased %d credits", credits)
	res, err := r.ledger.CreditPurchase(ctx, accountID, credits, payment.ID, desc)
	if errors.Is(err, ledger.ErrDuplicatePayment) {
		balance, err := r.ledger.GetBalance(ctx, accountID)
		if err != nil {
			return Confirmation{}, storageErr(err)
		}
		log.Infow("billing.payment.replayed", "balance", balance)
		return Confirmation{NewBalance: balance, Replayed: true}, nil
	}
	if err != nil {
		log.Errorw("billing.credit.error", "error", err)
		return Confirmation{}, storageErr(err)
	}

	log.Infow("billing.payment.credited", "credits", credits, "balance", res.NewBalance)
	return Confirmation{NewBalance: res.NewBalance}, nil
}

// matches rejects a payment whose metadata, currency or amount disagrees
// with the request. Payments without metadata are checked on currency and
// amount only.
func (r *Reconciler) matches(accountID string, credits int, payment Payment) error {
	if owner := payment.Metadata[MetaAccountID]; owner != "" && owner != accountID {
		return fmt.Errorf("%w: payment belongs to another account", ErrPaymentMismatch)
	}
	if n := payment.Metadata[MetaCredits]; n != "" && n != strconv.Itoa(credits) {
		return fmt.Errorf("%w: payment was for %s credits, not %d", ErrPaymentMismatch, n, credits)
	}
	if !strings.EqualFold(payment.Currency, r.cfg.Currency) {
		return fmt.Errorf("%w: paid in %q, purchases are in %q", ErrPaymentMismatch, payment.Currency, r.cfg.Currency)
	}
	if want := int64(credits) * r.cfg.PriceCents; payment.Amount < want {
		return fmt.Errorf("%w: paid %d, %d credits cost %d", ErrPaymentMismatch, payment.Amount, credits, want)
	}
	return nil
}

func processorErr(err error) error {
	if errors.Is(err, ErrProcessor) || errors.Is(err, ErrPaymentNotComplete) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrProcessor, err)
}

func storageErr(err error) error {
	if errors.Is(err, ledger.ErrNotFound) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrStorage, err)
}
