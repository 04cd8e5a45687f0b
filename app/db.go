package app

import (
	"context"
	"fmt"

	"example/docanalysis-api/app/config"
	"example/docanalysis-api/ledger"

	"go.uber.org/zap"
)

// OpenLedger connects to the configured database and applies the schema.
func OpenLedger(ctx context.Context, cfg *config.Config, log *zap.SugaredLogger) (*ledger.Store, error) {
	var (
		store *ledger.Store
		err   error
	)
	switch cfg.DB.Driver {
	case "sqlite":
		store, err = ledger.OpenSQLite(ctx, cfg.DB.SQLitePath, ledger.WithLogger(log))
	case "postgres":
		store, err = ledger.OpenPostgres(ctx, cfg.PostgresDSN(), ledger.WithLogger(log))
	default:
		return nil, fmt.Errorf("unsupported DB_DRIVER %q", cfg.DB.Driver)
	}
	if err != nil {
		return nil, fmt.Errorf("open %s ledger: %w", cfg.DB.Driver, err)
	}

	if err := store.Migrate(ctx); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("migrate ledger: %w", err)
	}
	log.Infow("ledger.connected", "driver", cfg.DB.Driver)
	return store, nil
}
