package backup

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"smartbudget/internal/core"
	"smartbudget/internal/identity"
	"smartbudget/internal/netcheck"

	"golang.org/x/sync/singleflight"
)

// DefaultCollection is the top-level collection holding one document per user.
const DefaultCollection = "backups"

// DefaultTimeout bounds one upload or restore once it has started.
const DefaultTimeout = 2 * time.Minute

type Operation string

const (
	OpUpload        Operation = "upload"
	OpDownload      Operation = "download"
	OpUploadProfile Operation = "upload_profile"
)

// RestorePolicy decides what happens to local rows on restore.
type RestorePolicy int

const (
	// RestoreOverwrite upserts every transaction in the backup.
	RestoreOverwrite RestorePolicy = iota
	// RestoreSkipNewerLocal keeps local rows edited after the backup was taken.
	RestoreSkipNewerLocal
)

func ParseRestorePolicy(s string) (RestorePolicy, error) {
	switch s {
	case "", "overwrite":
		return RestoreOverwrite, nil
	case "skip-newer-local":
		return RestoreSkipNewerLocal, nil
	}
	return 0, fmt.Errorf("unknown restore policy %q", s)
}

// Event describes a finished operation.
type Event struct {
	Operation    Operation
	UserID       string
	Transactions int
	Defaulted    int
	Err          error
	At           time.Time
}

// Service uploads and restores one user's data.
type Service struct {
	store      DocumentStore
	local      LocalStore
	identities identity.Provider
	network    netcheck.Checker
	collection string
	policy     RestorePolicy
	notifier   Notifier
	recorder   Recorder
	timeout    time.Duration
	now        func() time.Time

	group singleflight.Group
}

type Option func(*Service)

func WithCollection(name string) Option {
	return func(s *Service) {
		s.collection = name
	}
}

func WithConnectivity(n netcheck.Checker) Option {
	return func(s *Service) {
		s.network = n
	}
}

func WithRestorePolicy(p RestorePolicy) Option {
	return func(s *Service) {
		s.policy = p
	}
}

func WithNotifier(n Notifier) Option {
	return func(s *Service) {
		s.notifier = n
	}
}

func WithRecorder(r Recorder) Option {
	return func(s *Service) {
		s.recorder = r
	}
}

func WithTimeout(d time.Duration) Option {
	return func(s *Service) {
		s.timeout = d
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

func NewService(store DocumentStore, local LocalStore, ids identity.Provider, opts ...Option) *Service {
	s := &Service{
		store:      store,
		local:      local,
		identities: ids,
		network:    netcheck.Static(true),
		collection: DefaultCollection,
		policy:     RestoreOverwrite,
		recorder:   nopRecorder{},
		timeout:    DefaultTimeout,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Upload replaces the remote document with the current profile and every
// local transaction.
func (s *Service) Upload(ctx context.Context) error {
	return s.run(ctx, OpUpload, s.upload)
}

// Download restores the remote document into local storage. It never deletes
// local rows.
func (s *Service) Download(ctx context.Context) error {
	return s.run(ctx, OpDownload, s.download)
}

// UploadProfile refreshes only the profile in the remote document, keeping
// any transactions already there.
func (s *Service) UploadProfile(ctx context.Context) error {
	return s.run(ctx, OpUploadProfile, s.uploadProfile)
}

type opFunc func(ctx context.Context, subject string) (Event, error)

func (s *Service) run(ctx context.Context, op Operation, fn opFunc) error {
	if !s.network.Online(ctx) {
		s.recorder.ObserveBackup(string(op), "offline", 0)
		return netcheck.ErrNoConnectivity
	}

	subject, err := identity.Subject(ctx, s.identities)
	if err != nil {
		return fmt.Errorf("resolve user: %w", err)
	}

	// The shared work outlives the caller that started it.
	ch := s.group.DoChan(string(op)+":"+subject, func() (any, error) {
		opCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
		defer cancel()

		start := s.now()
		ev, err := fn(opCtx, subject)
		ev.Operation, ev.UserID, ev.Err, ev.At = op, subject, err, s.now()
		s.finish(opCtx, ev, s.now().Sub(start))
		return nil, err
	})

	select {
	case res := <-ch:
		if res.Shared {
			slog.DebugContext(ctx, "Joined in-flight backup operation",
				"component", "backup",
				"operation", string(op),
				"user_id", subject)
		}
		return res.Err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Service) finish(ctx context.Context, ev Event, elapsed time.Duration) {
	outcome := "success"
	switch {
	case errors.Is(ev.Err, ErrNotFound):
		outcome = "not_found"
	case ev.Err != nil:
		outcome = "failure"
	}
	s.recorder.ObserveBackup(string(ev.Operation), outcome, elapsed)

	if ev.Err != nil {
		slog.ErrorContext(ctx, "Backup operation failed",
			"component", "backup",
			"operation", string(ev.Operation),
			"user_id", ev.UserID,
			"error", ev.Err)
	} else {
		slog.InfoContext(ctx, "Backup operation completed",
			"component", "backup",
			"operation", string(ev.Operation),
			"user_id", ev.UserID,
			"count", ev.Transactions,
			"duration_ms", elapsed.Milliseconds())
	}

	if s.notifier != nil {
		s.notifier.BackupCompleted(ctx, ev)
	}
}

func (s *Service) profile(ctx context.Context, subject string, now time.Time) (core.UserProfile, error) {
	u, err := s.local.GetUser(ctx, subject)
	if errors.Is(err, core.ErrNotFound) {
		return core.DefaultProfile(subject, now), nil
	}
	if err != nil {
		return core.UserProfile{}, fmt.Errorf("read profile: %w", err)
	}
	return u, nil
}

func (s *Service) upload(ctx context.Context, subject string) (Event, error) {
	now := s.now()
	u, err := s.profile(ctx, subject, now)
	if err != nil {
		return Event{}, err
	}
	txs, err := s.local.ListTransactions(ctx, subject)
	if err != nil {
		return Event{}, fmt.Errorf("read transactions: %w", err)
	}

	doc := Encode(Snapshot{
		SchemaVersion:   SchemaVersion,
		User:            &u,
		Transactions:    txs,
		HasTransactions: true,
		LastBackup:      now,
	})
	if err := s.store.Put(ctx, s.collection, subject, doc); err != nil {
		return Event{}, fmt.Errorf("write backup: %w", err)
	}
	return Event{Transactions: len(txs)}, nil
}

func (s *Service) uploadProfile(ctx context.Context, subject string) (Event, error) {
	now := s.now()
	u, err := s.profile(ctx, subject, now)
	if err != nil {
		return Event{}, err
	}
	fields := Encode(Snapshot{User: &u, LastBackup: now})
	if err := s.store.Merge(ctx, s.collection, subject, fields); err != nil {
		return Event{}, fmt.Errorf("write profile: %w", err)
	}
	return Event{}, nil
}

func (s *Service) download(ctx context.Context, subject string) (Event, error) {
	doc, err := s.store.Get(ctx, s.collection, subject)
	if errors.Is(err, ErrNotFound) {
		return Event{}, ErrNotFound
	}
	if err != nil {
		return Event{}, fmt.Errorf("read backup: %w", err)
	}

	snap, defaulted, err := Decode(doc, subject, s.now())
	if err != nil {
		return Event{}, err
	}
	if len(defaulted) > 0 {
		slog.WarnContext(ctx, "Backup fields defaulted",
			"component", "backup",
			"user_id", subject,
			"count", len(defaulted),
			"fields", defaulted)
	}

	// A document only ever restores into the account that asked for it.
	if snap.User != nil {
		snap.User.ID = subject
	}
	for i := range snap.Transactions {
		snap.Transactions[i].UserID = subject
	}

	ev := Event{Defaulted: len(defaulted)}
	if snap.User != nil {
		if err := s.local.UpsertUser(ctx, *snap.User); err != nil {
			return ev, fmt.Errorf("restore profile: %w", err)
		}
	}
	if !snap.HasTransactions {
		return ev, nil
	}

	var keepNewerThan time.Time
	if s.policy == RestoreSkipNewerLocal {
		keepNewerThan = snap.LastBackup
	}
	n, err := s.local.UpsertTransactions(ctx, snap.Transactions, keepNewerThan)
	if err != nil {
		return ev, fmt.Errorf("restore transactions: %w", err)
	}
	ev.Transactions = n
	return ev, nil
}

// Status strings shown after an operation.
const (
	StatusBackupOK  = "Backup Successful"
	StatusRestoreOK = "Restore Successful"
	StatusOffline   = "No Internet Connection. Please connect to Wi-Fi or data."
)

// StatusMessage renders the short line for an operation result.
func StatusMessage(op Operation, err error) string {
	if errors.Is(err, netcheck.ErrNoConnectivity) {
		return StatusOffline
	}
	if op == OpDownload {
		if err != nil {
			return "Restore Failed: " + err.Error()
		}
		return StatusRestoreOK
	}
	if err != nil {
		return "Backup Failed: " + err.Error()
	}
	return StatusBackupOK
}
