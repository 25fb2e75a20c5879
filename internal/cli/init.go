// Package cli holds the start-up steps shared by cmd/smartbudget and
// cmd/smartbudget-worker.
package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"smartbudget/internal/backend"
	"smartbudget/internal/backup"
	"smartbudget/internal/config"
	"smartbudget/internal/export/sheets"
	"smartbudget/internal/identity"
	"smartbudget/internal/log"
	"smartbudget/internal/netcheck"
	"smartbudget/internal/storage"

	"github.com/joho/godotenv"
)

// SetupLogger builds the process logger at LOG_LEVEL and makes it the slog
// default.
func SetupLogger(level string) *log.Logger {
	cfg := log.DefaultConfig()
	cfg.Level = log.ParseLevel(level)
	logger := log.New(cfg)
	log.SetDefault(logger)
	return logger
}

// LoadEnvFile loads .env for local development. A missing file is fine.
func LoadEnvFile() {
	_ = godotenv.Load()
}

// LoadAndValidateConfig loads configuration and exits on validation failure.
func LoadAndValidateConfig(logger *log.Logger) *config.Config {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration validation failed", "error", err)
		os.Exit(1)
	}
	return cfg
}

// InitSQLite opens the ledger database and seeds the shared categories on
// first run. It exits on failure.
func InitSQLite(ctx context.Context, logger *log.Logger, dbPath string) *storage.SQLiteRepository {
	repo, err := storage.NewSQLiteRepository(dbPath)
	if err != nil {
		logger.Error("Failed to initialize SQLite repository", "error", err, "path", dbPath)
		os.Exit(1)
	}
	seeded, err := repo.SeedDefaultCategories(ctx)
	if err != nil {
		logger.Error("Failed to seed default categories", "error", err)
		_ = repo.Close()
		os.Exit(1)
	}
	if seeded {
		logger.Info("Seeded default categories", "path", dbPath)
	}
	return repo
}

// Connectivity returns the reachability probe described by cfg.
func Connectivity(cfg *config.Config) netcheck.Checker {
	if !cfg.ConnectivityCheck {
		return netcheck.Static(true)
	}
	return netcheck.NewDialer(cfg.ConnectivityTimeout, cfg.ConnectivityAddrs...)
}

// NewBackupService builds the backup service over the configured document
// store. Close the returned result on shutdown.
func NewBackupService(ctx context.Context, logger *log.Logger, cfg *config.Config, repo *storage.SQLiteRepository, opts ...backup.Option) (*backup.Service, *backend.Result, error) {
	storeCfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		return nil, nil, err
	}
	store, err := backend.NewFactory(logger.WithComponent(log.ComponentBackend).Logger).Create(ctx, storeCfg)
	if err != nil {
		return nil, nil, err
	}
	policy, err := backup.ParseRestorePolicy(cfg.RestorePolicy)
	if err != nil {
		_ = store.Close()
		return nil, nil, fmt.Errorf("restore policy: %w", err)
	}

	opts = append([]backup.Option{
		backup.WithCollection(cfg.BackupCollection),
		backup.WithConnectivity(Connectivity(cfg)),
		backup.WithRestorePolicy(policy),
	}, opts...)
	return backup.NewService(store.Store, repo, identity.ContextProvider{}, opts...), store, nil
}

// SheetsConfig extracts the spreadsheet export settings.
func SheetsConfig(cfg *config.Config) sheets.Config {
	return sheets.Config{
		SpreadsheetID:      cfg.GoogleSpreadsheetID,
		SheetName:          cfg.GoogleSheetName,
		ServiceAccountFile: cfg.GoogleServiceAccountFile,
		OAuthClientFile:    cfg.GoogleOAuthClientFile,
		OAuthClientJSON:    cfg.GoogleOAuthClientJSON,
		OAuthTokenFile:     cfg.GoogleOAuthTokenFile,
		OAuthTokenJSON:     cfg.GoogleOAuthTokenJSON,
	}
}

// GracefulShutdown cancels the returned context on SIGINT or SIGTERM, then
// runs cleanup with a context bounded by timeout. done is closed once cleanup
// returns.
func GracefulShutdown(logger *log.Logger, timeout time.Duration, cleanup func(ctx context.Context)) (context.Context, <-chan struct{}) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		defer close(done)
		defer signal.Stop(sigChan)

		select {
		case sig := <-sigChan:
			logger.Info("Shutdown signal received", "signal", sig.String())
		case <-ctx.Done():
		}
		cancel()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), timeout)
		defer shutdownCancel()
		if cleanup != nil {
			cleanup(shutdownCtx)
		}
		if shutdownCtx.Err() != nil {
			logger.Warn("Shutdown timeout reached")
			return
		}
		logger.Info("Shutdown complete")
	}()

	return ctx, done
}
