package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"smartbudget/internal/amqp"
	"smartbudget/internal/backup"
	"smartbudget/internal/cache"
	"smartbudget/internal/cli"
	"smartbudget/internal/config"
	"smartbudget/internal/core"
	"smartbudget/internal/export/sheets"
	apphttp "smartbudget/internal/http"
	"smartbudget/internal/identity"
	"smartbudget/internal/metrics"
	"smartbudget/internal/netcheck"
	"smartbudget/internal/services"
	"smartbudget/internal/update"
)

// version is stamped at build time with -ldflags "-X main.version=...".
var version string

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(os.Getenv("LOG_LEVEL"))
	cfg := cli.LoadAndValidateConfig(logger)
	if version != "" {
		cfg.AppVersion = version
	}

	var srv *apphttp.Server
	sweeper := cache.NewSweeper()
	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func(ctx context.Context) {
		if srv != nil {
			if err := srv.Shutdown(ctx); err != nil {
				logger.Error("Server shutdown error", "error", err)
			}
		}
		sweeper.Stop()
	})

	repo := cli.InitSQLite(ctx, logger, cfg.SQLiteDBPath)
	defer repo.Close()

	m := metrics.New()
	network := cli.Connectivity(cfg)

	releases := cache.NewLRUCache[update.ReleaseInfo](16, cfg.UpdateCacheTTL)
	categories := cache.NewLRUCache[[]core.Category](256, 10*time.Minute)
	sweeper.Register("releases", releases)
	sweeper.Register("categories", categories)
	sweeper.Start(ctx, time.Minute)

	var queue *amqp.Client
	if cfg.AMQPURL != "" {
		var err error
		queue, err = amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue, amqp.WithMessageRecorder(m))
		if err != nil {
			logger.Error("Failed to initialize AMQP client", "error", err)
			os.Exit(1)
		}
		defer queue.Close()
	} else {
		logger.Info("AMQP disabled - ledger writes will not queue backups")
	}

	backupOpts := []backup.Option{backup.WithRecorder(m)}
	ledgerOpts := []services.Option{services.WithRecorder(m), services.WithCategoryCache(categories)}
	if queue != nil {
		backupOpts = append(backupOpts, backup.WithNotifier(queue))
		ledgerOpts = append(ledgerOpts, services.WithPublisher(queue))
	}

	backups, store, err := cli.NewBackupService(ctx, logger, cfg, repo, backupOpts...)
	if err != nil {
		logger.Error("Failed to initialize backup store", "error", err, "backend", cfg.BackupBackend)
		os.Exit(1)
	}
	defer store.Close()

	checker, manager, err := newUpdater(cfg, network, releases, m)
	if err != nil {
		logger.Error("Failed to initialize updater", "error", err)
		os.Exit(1)
	}

	verifier, err := identity.NewGoogleVerifier(ctx, cfg.GoogleClientID)
	if err != nil {
		logger.Error("Failed to initialize token verifier", "error", err)
		os.Exit(1)
	}

	deps := apphttp.Deps{
		Ledger:             services.NewLedgerService(repo, identity.ContextProvider{}, ledgerOpts...),
		Backups:            backups,
		Checker:            checker,
		Updates:            manager,
		Verifier:           verifier,
		Ready:              repo,
		Metrics:            m,
		Logger:             logger,
		RequireAuth:        cfg.RequireAuth,
		RateLimitPerMinute: cfg.RateLimitPerMinute,
	}

	switch {
	case cfg.SheetsEnabled():
		exporter, err := sheets.New(ctx, cli.SheetsConfig(cfg), repo)
		if err != nil {
			logger.Error("Failed to initialize Google Sheets exporter", "error", err)
			os.Exit(1)
		}
		deps.Exporter = exporter
		logger.Info("Google Sheets export enabled", "spreadsheet_id", cfg.GoogleSpreadsheetID)
	case queue != nil:
		deps.Queue = queue
		logger.Info("Google Sheets export delegated to the worker")
	default:
		logger.Info("Google Sheets export disabled - no GOOGLE_SPREADSHEET_ID provided")
	}

	go func() {
		if _, err := manager.Check(ctx); err != nil {
			logger.Warn("Startup update check failed", "error", err, "version", cfg.AppVersion)
		}
	}()

	srv = apphttp.NewServer(":"+cfg.Port, deps)
	logger.Info("Starting smartbudget server",
		"port", cfg.Port,
		"version", cfg.AppVersion,
		"backup_backend", store.Type.String())
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Server error", "error", err, "port", cfg.Port)
		os.Exit(1)
	}

	<-done
	logger.Info("Server stopped gracefully")
}

func newUpdater(cfg *config.Config, network netcheck.Checker, releases cache.Cache[update.ReleaseInfo], m *metrics.Metrics) (*update.Checker, *update.Manager, error) {
	checker := update.NewChecker(cfg.UpdateRepoOwner, cfg.UpdateRepoName,
		update.WithBaseURL(cfg.UpdateBaseURL),
		update.WithTimeout(cfg.UpdateTimeout),
		update.WithAssetSuffix(cfg.UpdateAssetSuffix),
		update.WithConnectivity(network),
		update.WithReleaseCache(releases),
		update.WithRecorder(m))

	var installer update.Installer = update.LogInstaller{}
	if cfg.UpdateInstallCommand != "" {
		cmd, err := update.ParseCommand(cfg.UpdateInstallCommand)
		if err != nil {
			return nil, nil, err
		}
		installer = cmd
	}

	downloader := update.NewDownloader(cfg.UpdateDownloadDir,
		update.WithDownloadConnectivity(network),
		update.WithPermissions(update.StaticPermissions{InstallAllowed: cfg.UpdateAllowInstall, StorageAllowed: true}),
		update.WithInstaller(installer),
		update.WithDownloadRecorder(m))

	return checker, update.NewManager(checker, downloader, cfg.AppVersion), nil
}
