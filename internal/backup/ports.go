package backup

import (
	"context"
	"errors"
	"time"

	"smartbudget/internal/core"
)

var (
	// ErrNotFound means no backup document exists for the user.
	ErrNotFound = errors.New("backup not found")
	// ErrUnsupportedSchema means the document was written by a newer build.
	ErrUnsupportedSchema = errors.New("unsupported backup schema version")
)

// Document is a loosely typed remote document. Values are whatever the store
// hands back: strings, bools, numbers of any width, nested maps and slices.
type Document map[string]any

// DocumentStore persists one document per key inside a collection.
type DocumentStore interface {
	// Put replaces the whole document.
	Put(ctx context.Context, collection, key string, doc Document) error
	// Merge overwrites only the top-level fields present in fields,
	// creating the document if needed.
	Merge(ctx context.Context, collection, key string, fields Document) error
	// Get returns ErrNotFound when the document does not exist.
	Get(ctx context.Context, collection, key string) (Document, error)
}

// LocalStore is the slice of local storage the backup flow reads and writes.
type LocalStore interface {
	GetUser(ctx context.Context, userID string) (core.UserProfile, error)
	UpsertUser(ctx context.Context, u core.UserProfile) error
	ListTransactions(ctx context.Context, userID string) ([]core.Transaction, error)
	UpsertTransactions(ctx context.Context, txs []core.Transaction, keepNewerThan time.Time) (int, error)
}

// Notifier is told about every finished operation, successful or not.
type Notifier interface {
	BackupCompleted(ctx context.Context, e Event)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, e Event)

func (f NotifierFunc) BackupCompleted(ctx context.Context, e Event) { f(ctx, e) }

// Recorder receives operation outcomes. *metrics.Metrics satisfies it.
type Recorder interface {
	ObserveBackup(operation, outcome string, elapsed time.Duration)
}

type nopRecorder struct{}

func (nopRecorder) ObserveBackup(string, string, time.Duration) {}
