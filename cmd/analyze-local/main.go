package main

import (
	"context"
	"encoding/json"
	"flag"
	"log"
	"os"
	"path/filepath"
	"time"

	"example/docanalysis-api/app"
	"example/docanalysis-api/app/config"
	"example/docanalysis-api/logging"
	"example/docanalysis-api/upload"
)

// analyze-local runs one PDF through the same pipeline the API uses,
// charging the given account in the configured ledger.
func main() {
	account := flag.String("account", "local-dev", "ledger account to charge")
	flag.Parse()
	if flag.NArg() != 1 {
		log.Fatalf("usage: analyze-local [-account id] file.pdf")
	}
	path := flag.Arg(0)

	start := time.Now()
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	logger, err := logging.New(cfg.Logs.Level, cfg.Logs.Style)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	store, err := app.OpenLedger(ctx, cfg, logger)
	if err != nil {
		logger.Fatalf("open ledger: %v", err)
	}
	defer store.Close()

	if _, err := store.EnsureAccount(ctx, *account, "", cfg.Ledger.StartingCredits); err != nil {
		logger.Fatalf("ensure account: %v", err)
	}

	uploads, err := upload.NewStore(cfg.Upload.Dir, cfg.Upload.MaxBytes, logger)
	if err != nil {
		logger.Fatalf("upload store: %v", err)
	}
	f, err := os.Open(path)
	if err != nil {
		logger.Fatalf("open %s: %v", path, err)
	}
	file, err := uploads.Save(filepath.Base(path), f)
	f.Close()
	if err != nil {
		logger.Fatalf("read %s: %v", path, err)
	}

	orchestrator := app.NewOrchestrator(cfg, store, uploads, logger)

	out, err := orchestrator.Analyze(ctx, *account, file)
	if err != nil {
		logger.Fatalf("analyze: %v", err)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(map[string]any{
		"documentId":       out.DocumentID,
		"creditsRemaining": out.CreditsRemaining,
		"result":           out.Record,
	})
	logger.Infow("analyze_local.done", "took", time.Since(start).String())
}
