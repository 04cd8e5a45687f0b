package app

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"example/docanalysis-api/app/models"
	"example/docanalysis-api/billing"
	"example/docanalysis-api/ledger"

	"github.com/gin-gonic/gin"
	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/webhook"
)

// CreatePaymentIntent opens a payment for a number of credits.
func (s *Server) CreatePaymentIntent(c *gin.Context) {
	id, ok := accountID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing auth context"})
		return
	}
	var req models.PaymentIntentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	intent, err := s.purchases.CreatePurchase(c.Request.Context(), id, req.Credits)
	if err != nil {
		s.respondError(c, "http.billing.intent.error", err)
		return
	}
	c.JSON(http.StatusOK, models.PaymentIntentResponse{
		PaymentIntentID: intent.ID,
		ClientSecret:    intent.ClientSecret,
		Amount:          intent.Amount,
		Currency:        intent.Currency,
	})
}

// ConfirmPurchase credits a succeeded payment. Repeating the call for the
// same payment reports the current balance again.
func (s *Server) ConfirmPurchase(c *gin.Context) {
	id, ok := accountID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing auth context"})
		return
	}
	var req models.ConfirmPurchaseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	conf, err := s.purchases.ConfirmPurchase(c.Request.Context(), id, req.PaymentIntentID, req.Credits)
	if err != nil {
		s.respondError(c, "http.billing.confirm.error", err)
		return
	}
	c.JSON(http.StatusOK, models.ConfirmPurchaseResponse{
		CreditsAdded: true,
		NewBalance:   conf.NewBalance,
	})
}

// StripeWebhook credits succeeded payments and mirrors subscription status.
// Redelivered events are harmless because crediting is idempotent.
func (s *Server) StripeWebhook(c *gin.Context) {
	const maxBodyBytes = int64(65536)
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxBodyBytes))
	if err != nil {
		s.log.Warnw("stripe.webhook.read.error", "error", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}

	if s.webhookSecret == "" {
		s.log.Errorw("stripe.webhook.unconfigured")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "webhook not configured"})
		return
	}

	event, err := webhook.ConstructEventWithOptions(
		body,
		c.GetHeader("Stripe-Signature"),
		s.webhookSecret,
		webhook.ConstructEventOptions{
			IgnoreAPIVersionMismatch: true,
		},
	)
	if err != nil {
		s.log.Warnw("stripe.webhook.signature.error", "error", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "signature verification failed"})
		return
	}

	ctx := c.Request.Context()
	switch event.Type {
	case "payment_intent.succeeded":
		var pi stripe.PaymentIntent
		if err := json.Unmarshal(event.Data.Raw, &pi); err != nil {
			s.log.Warnw("stripe.webhook.decode.error", "event", event.Type, "error", err)
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payment intent payload"})
			return
		}
		conf, err := s.purchases.ReconcilePayment(ctx, billing.PaymentFromIntent(&pi))
		if errors.Is(err, billing.ErrNotPurchase) {
			s.log.Infow("stripe.webhook.ignored", "payment_id", pi.ID, "reason", "not a credit purchase")
			break
		}
		if err != nil {
			s.respondError(c, "stripe.webhook.credit.error", err)
			return
		}
		s.log.Infow("stripe.webhook.credited", "payment_id", pi.ID, "balance", conf.NewBalance, "replayed", conf.Replayed)

	case "customer.subscription.updated", "customer.subscription.deleted":
		var sub stripe.Subscription
		if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
			s.log.Warnw("stripe.webhook.decode.error", "event", event.Type, "error", err)
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid subscription payload"})
			return
		}
		if sub.Customer == nil || sub.Customer.ID == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "missing customer id"})
			return
		}
		if err := s.purchases.UpdateSubscription(ctx, sub.Customer.ID, subscriptionStatus(event.Type, sub.Status)); err != nil {
			s.respondError(c, "stripe.webhook.subscription.error", err)
			return
		}

	default:
		// ignore unhandled events
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func subscriptionStatus(eventType stripe.EventType, status stripe.SubscriptionStatus) ledger.SubscriptionStatus {
	if eventType == "customer.subscription.deleted" {
		return ledger.SubscriptionCanceled
	}
	switch status {
	case stripe.SubscriptionStatusActive, stripe.SubscriptionStatusTrialing:
		return ledger.SubscriptionActive
	case stripe.SubscriptionStatusCanceled, stripe.SubscriptionStatusIncompleteExpired, stripe.SubscriptionStatusUnpaid:
		return ledger.SubscriptionCanceled
	default:
		return ledger.SubscriptionNone
	}
}
