package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"smartbudget/internal/amqp"
	"smartbudget/internal/backup"
	"smartbudget/internal/cli"
	"smartbudget/internal/export/sheets"
	"smartbudget/internal/metrics"
	"smartbudget/internal/worker"

	"golang.org/x/sync/errgroup"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(os.Getenv("LOG_LEVEL"))
	logger.Info("Starting smartbudget-worker")

	cfg := cli.LoadAndValidateConfig(logger)
	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, nil)

	repo := cli.InitSQLite(ctx, logger, cfg.SQLiteDBPath)
	defer repo.Close()

	m := metrics.New()

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
		logger.Info("AMQP disabled - running auto-backup only")
	}

	backupOpts := []backup.Option{backup.WithRecorder(m)}
	if queue != nil {
		backupOpts = append(backupOpts, backup.WithNotifier(queue))
	}
	backups, store, err := cli.NewBackupService(ctx, logger, cfg, repo, backupOpts...)
	if err != nil {
		logger.Error("Failed to initialize backup store", "error", err, "backend", cfg.BackupBackend)
		os.Exit(1)
	}
	defer store.Close()

	var exporter worker.Exporter
	if cfg.SheetsEnabled() {
		sheetsExporter, err := sheets.New(ctx, cli.SheetsConfig(cfg), repo)
		if err != nil {
			logger.Error("Failed to initialize Google Sheets exporter", "error", err)
			os.Exit(1)
		}
		exporter = sheetsExporter
		logger.Info("Google Sheets export enabled", "spreadsheet_id", cfg.GoogleSpreadsheetID)
	} else {
		logger.Info("Google Sheets disabled - export requests will be skipped")
	}

	backupWorker := worker.NewBackupWorker(backups, repo, exporter)

	// On startup, back up everyone once so a restart never skips a cycle.
	if n, err := backupWorker.AutoBackup(ctx); err != nil {
		logger.Warn("Startup auto-backup incomplete", "error", err, "count", n)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return backupWorker.RunAutoBackup(gctx, cfg.AutoBackupInterval)
	})
	if queue != nil {
		g.Go(func() error {
			return queue.ConsumeBackupRequests(gctx, backupWorker.HandleMessage)
		})
	}
	if cfg.WorkerMetricsAddr != "" {
		metricsSrv := &http.Server{
			Addr:              cfg.WorkerMetricsAddr,
			Handler:           m.Handler(),
			ReadHeaderTimeout: 5 * time.Second,
		}
		g.Go(func() error {
			logger.Info("Serving worker metrics", "addr", cfg.WorkerMetricsAddr)
			if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return metricsSrv.Shutdown(shutdownCtx)
		})
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Worker stopped with error", "error", err)
		os.Exit(1)
	}

	<-done
	logger.Info("Worker stopped gracefully")
}
