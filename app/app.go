package app

import (
	"context"
	"fmt"

	"example/docanalysis-api/analysis"
	"example/docanalysis-api/app/config"
	"example/docanalysis-api/auth"
	"example/docanalysis-api/extract"
	"example/docanalysis-api/upload"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Build wires every component from cfg and returns the router plus a
// cleanup function that closes the ledger.
func Build(ctx context.Context, cfg *config.Config, log *zap.SugaredLogger) (*gin.Engine, func() error, error) {
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	store, err := OpenLedger(ctx, cfg, log)
	if err != nil {
		return nil, nil, err
	}

	uploads, err := upload.NewStore(cfg.Upload.Dir, cfg.Upload.MaxBytes, log)
	if err != nil {
		_ = store.Close()
		return nil, nil, err
	}

	var verifier *auth.Verifier
	if !cfg.Auth.Disabled {
		verifier, err = auth.NewVerifier(ctx, cfg.Auth.Issuer, cfg.Auth.Audience, "")
		if err != nil {
			_ = store.Close()
			return nil, nil, fmt.Errorf("auth verifier: %w", err)
		}
	}

	orchestrator := NewOrchestrator(cfg, store, uploads, log)

	server := NewServer(ServerConfig{
		Accounts:        store,
		Analyzer:        orchestrator,
		Purchases:       newReconciler(cfg, store, log),
		Uploads:         uploads,
		StartingCredits: cfg.Ledger.StartingCredits,
		WebhookSecret:   cfg.Stripe.WebhookSecret,
		Logger:          log,
	})

	router := NewRouter(server, verifier, RouterConfig{
		CORSOrigins: cfg.CORS,
		DisableAuth: cfg.Auth.Disabled,
	})
	return router, store.Close, nil
}

// NewOrchestrator wires PDF text extraction and the OpenAI extractor into an
// analysis pipeline charging l.
func NewOrchestrator(cfg *config.Config, l analysis.Ledger, r analysis.Releaser, log *zap.SugaredLogger) *analysis.Orchestrator {
	extractor := extract.NewOpenAIClient(extract.Config{
		APIKey:      cfg.OpenAI.APIKey,
		BaseURL:     cfg.OpenAI.BaseURL,
		Model:       cfg.OpenAI.Model,
		Temperature: float32(cfg.OpenAI.Temperature),
		Timeout:     cfg.OpenAI.ExtractTimeout,
		MaxChars:    cfg.OpenAI.MaxChars,
	}, log)

	return analysis.New(analysis.Config{
		Ledger:         l,
		Text:           extract.PDFText{},
		Extractor:      extractor,
		Releaser:       r,
		ExtractTimeout: cfg.OpenAI.ExtractTimeout,
		Logger:         log,
	})
}
