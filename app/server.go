// Package app is the HTTP layer shared by the local server and the Lambda
// entrypoint.
package app

import (
	"context"
	"mime/multipart"

	"example/docanalysis-api/analysis"
	"example/docanalysis-api/billing"
	"example/docanalysis-api/ledger"
	"example/docanalysis-api/upload"

	"go.uber.org/zap"
)

// Accounts is the read side of the ledger plus registration.
type Accounts interface {
	EnsureAccount(ctx context.Context, id, email string, startingCredits int) (ledger.Account, error)
	GetAccount(ctx context.Context, id string) (ledger.Account, error)
	ListDocuments(ctx context.Context, accountID string) ([]ledger.Document, error)
	GetDocument(ctx context.Context, accountID, documentID string) (ledger.Document, error)
	ListTransactions(ctx context.Context, accountID string) ([]ledger.Transaction, error)
}

type Analyzer interface {
	Analyze(ctx context.Context, accountID string, file upload.File) (analysis.Outcome, error)
}

type Purchases interface {
	CreatePurchase(ctx context.Context, accountID string, credits int) (billing.Intent, error)
	ConfirmPurchase(ctx context.Context, accountID, paymentID string, credits int) (billing.Confirmation, error)
	ReconcilePayment(ctx context.Context, payment billing.Payment) (billing.Confirmation, error)
	UpdateSubscription(ctx context.Context, customerRef string, status ledger.SubscriptionStatus) error
}

type Uploads interface {
	SaveMultipart(fh *multipart.FileHeader) (upload.File, error)
	Release(ref string) error
	MaxBytes() int64
}

// Server holds the collaborators every handler needs.
type Server struct {
	accounts        Accounts
	analyzer        Analyzer
	purchases       Purchases
	uploads         Uploads
	startingCredits int
	webhookSecret   string
	log             *zap.SugaredLogger
}

type ServerConfig struct {
	Accounts        Accounts
	Analyzer        Analyzer
	Purchases       Purchases
	Uploads         Uploads
	StartingCredits int
	WebhookSecret   string
	Logger          *zap.SugaredLogger
}

func NewServer(cfg ServerConfig) *Server {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop().Sugar()
	}
	return &Server{
		accounts:        cfg.Accounts,
		analyzer:        cfg.Analyzer,
		purchases:       cfg.Purchases,
		uploads:         cfg.Uploads,
		startingCredits: cfg.StartingCredits,
		webhookSecret:   cfg.WebhookSecret,
		log:             cfg.Logger,
	}
}
