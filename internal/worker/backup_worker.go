package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"smartbudget/internal/amqp"
	"smartbudget/internal/backup"
	"smartbudget/internal/identity"
	"smartbudget/internal/netcheck"
)

// Backups runs backup operations for the user found on the context.
type Backups interface {
	Upload(ctx context.Context) error
	Download(ctx context.Context) error
}

// Exporter copies a user's transactions to an external sheet.
type Exporter interface {
	Export(ctx context.Context, userID string) (int, error)
}

// UserLister enumerates local users for the auto-backup sweep.
type UserLister interface {
	ListUserIDs(ctx context.Context) ([]string, error)
}

// BackupWorker executes queued backup requests and the periodic auto-backup.
type BackupWorker struct {
	backups  Backups
	users    UserLister
	exporter Exporter
}

// NewBackupWorker builds a worker. exporter may be nil when Sheets export is
// not configured; export requests are then dropped.
func NewBackupWorker(backups Backups, users UserLister, exporter Exporter) *BackupWorker {
	return &BackupWorker{
		backups:  backups,
		users:    users,
		exporter: exporter,
	}
}

// HandleMessage runs one request as msg.UserID. Errors that retrying cannot
// fix are logged and swallowed so the message is acked instead of requeued.
func (w *BackupWorker) HandleMessage(ctx context.Context, msg *amqp.BackupRequestMessage) error {
	ctx = identity.WithIdentity(ctx, identity.Identity{Subject: msg.UserID})

	slog.InfoContext(ctx, "Processing backup request",
		"component", "worker",
		"user_id", msg.UserID,
		"operation", msg.Operation,
		"queued_at", msg.Timestamp)

	var err error
	switch msg.Operation {
	case amqp.OpUpload:
		err = w.backups.Upload(ctx)
	case amqp.OpDownload:
		err = w.backups.Download(ctx)
		if errors.Is(err, backup.ErrNotFound) {
			slog.WarnContext(ctx, "No backup to restore",
				"component", "worker",
				"user_id", msg.UserID)
			return nil
		}
	case amqp.OpExport:
		if w.exporter == nil {
			slog.WarnContext(ctx, "Sheets export not configured, skipping request",
				"component", "worker",
				"user_id", msg.UserID)
			return nil
		}
		_, err = w.exporter.Export(ctx, msg.UserID)
	default:
		slog.WarnContext(ctx, "Unknown operation, skipping request",
			"component", "worker",
			"operation", msg.Operation)
		return nil
	}

	if err != nil {
		return fmt.Errorf("%s for %s: %w", msg.Operation, msg.UserID, err)
	}
	return nil
}

// AutoBackup uploads every local user's data and returns how many uploads
// succeeded. It stops early when the network is gone.
func (w *BackupWorker) AutoBackup(ctx context.Context) (int, error) {
	ids, err := w.users.ListUserIDs(ctx)
	if err != nil {
		return 0, fmt.Errorf("list users: %w", err)
	}

	start := time.Now()
	uploaded, failed := 0, 0
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return uploaded, err
		}
		userCtx := identity.WithIdentity(ctx, identity.Identity{Subject: id})
		err := w.backups.Upload(userCtx)
		switch {
		case errors.Is(err, netcheck.ErrNoConnectivity):
			slog.WarnContext(ctx, "Auto-backup stopped: offline",
				"component", "worker",
				"uploaded", uploaded,
				"remaining", len(ids)-uploaded-failed)
			return uploaded, err
		case err != nil:
			failed++
			slog.ErrorContext(ctx, "Auto-backup failed for user",
				"component", "worker",
				"user_id", id,
				"error", err)
		default:
			uploaded++
		}
	}

	slog.InfoContext(ctx, "Auto-backup completed",
		"component", "worker",
		"total", len(ids),
		"uploaded", uploaded,
		"errors", failed,
		"duration_ms", time.Since(start).Milliseconds())
	return uploaded, nil
}

// RunAutoBackup calls AutoBackup every interval until ctx is done.
func (w *BackupWorker) RunAutoBackup(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if _, err := w.AutoBackup(ctx); err != nil && ctx.Err() == nil {
				slog.WarnContext(ctx, "Auto-backup run incomplete",
					"component", "worker",
					"error", err)
			}
		}
	}
}
