package billing

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/customer"
	"github.com/stripe/stripe-go/v79/paymentintent"
	"go.uber.org/zap"
)

// StripeProcessor implements PaymentProcessor with Stripe PaymentIntents.
type StripeProcessor struct {
	log *zap.SugaredLogger
}

// NewStripeProcessor sets the process-wide Stripe key.
func NewStripeProcessor(secretKey string, log *zap.SugaredLogger) *StripeProcessor {
	stripe.Key = secretKey
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &StripeProcessor{log: log}
}

func (p *StripeProcessor) GetPayment(ctx context.Context, id string) (Payment, error) {
	params := &stripe.PaymentIntentParams{}
	params.Context = ctx

	pi, err := paymentintent.Get(id, params)
	if err != nil {
		if isNotFound(err) {
			return Payment{}, fmt.Errorf("%w: unknown payment %s", ErrPaymentNotComplete, id)
		}
		p.log.Warnw("stripe.payment_intent.get.error", "payment_id", id, "error", err)
		return Payment{}, fmt.Errorf("%w: %w", ErrProcessor, err)
	}
	return PaymentFromIntent(pi), nil
}

func (p *StripeProcessor) CreatePayment(ctx context.Context, req PaymentRequest) (Intent, error) {
	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(req.Amount),
		Currency: stripe.String(strings.ToLower(req.Currency)),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	if req.CustomerRef != "" {
		params.Customer = stripe.String(req.CustomerRef)
	}
	for k, v := range req.Metadata {
		params.AddMetadata(k, v)
	}
	params.Context = ctx

	pi, err := paymentintent.New(params)
	if err != nil {
		p.log.Warnw("stripe.payment_intent.create.error", "amount", req.Amount, "error", err)
		return Intent{}, fmt.Errorf("%w: %w", ErrProcessor, err)
	}
	return Intent{
		ID:           pi.ID,
		ClientSecret: pi.ClientSecret,
		Amount:       pi.Amount,
		Currency:     string(pi.Currency),
	}, nil
}

func (p *StripeProcessor) EnsureCustomer(ctx context.Context, accountID, email string) (string, error) {
	params := &stripe.CustomerParams{
		Metadata: map[string]string{
			MetaAccountID: accountID,
		},
	}
	if email != "" {
		params.Email = stripe.String(email)
	}
	params.Context = ctx

	cust, err := customer.New(params)
	if err != nil {
		p.log.Warnw("stripe.customer.create.error", "account_id", accountID, "error", err)
		return "", fmt.Errorf("%w: %w", ErrProcessor, err)
	}
	return cust.ID, nil
}

// PaymentFromIntent converts a Stripe PaymentIntent, typically one decoded
// from a webhook event.
func PaymentFromIntent(pi *stripe.PaymentIntent) Payment {
	return Payment{
		ID:       pi.ID,
		Status:   string(pi.Status),
		Amount:   pi.Amount,
		Currency: string(pi.Currency),
		Metadata: pi.Metadata,
	}
}

func isNotFound(err error) bool {
	var serr *stripe.Error
	return errors.As(err, &serr) && serr.HTTPStatusCode == 404
}
