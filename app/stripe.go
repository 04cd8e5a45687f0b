package app

import (
	"example/docanalysis-api/app/config"
	"example/docanalysis-api/billing"

	"go.uber.org/zap"
)

// newReconciler wires the Stripe key and purchase pricing into a reconciler.
func newReconciler(cfg *config.Config, l billing.Ledger, log *zap.SugaredLogger) *billing.Reconciler {
	if cfg.Stripe.SecretKey == "" {
		log.Warnw("stripe.unconfigured", "hint", "set STRIPE_SECRET_KEY to enable purchases")
	}
	processor := billing.NewStripeProcessor(cfg.Stripe.SecretKey, log)
	return billing.NewReconciler(l, processor, billing.Config{
		Currency:   cfg.Stripe.Currency,
		PriceCents: cfg.Stripe.PriceCents,
		MaxCredits: cfg.Stripe.MaxCredits,
		Timeout:    cfg.Stripe.Timeout,
	}, log)
}
