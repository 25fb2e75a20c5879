// Package firestore keeps backup documents in Cloud Firestore, one document
// per user under the backup collection.
package firestore

import (
	"context"
	"fmt"

	"smartbudget/internal/backup"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

type Store struct {
	client *firestore.Client
}

var _ backup.DocumentStore = (*Store)(nil)

// New connects to projectID. Credentials come from opts or the environment
// (GOOGLE_APPLICATION_CREDENTIALS, FIRESTORE_EMULATOR_HOST).
func New(ctx context.Context, projectID string, opts ...option.ClientOption) (*Store, error) {
	client, err := firestore.NewClient(ctx, projectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("create firestore client: %w", err)
	}
	return &Store{client: client}, nil
}

func (s *Store) Close() error {
	return s.client.Close()
}

func (s *Store) Put(ctx context.Context, collection, key string, doc backup.Document) error {
	if _, err := s.client.Collection(collection).Doc(key).Set(ctx, map[string]any(doc)); err != nil {
		return fmt.Errorf("set document: %w", err)
	}
	return nil
}

func (s *Store) Merge(ctx context.Context, collection, key string, fields backup.Document) error {
	_, err := s.client.Collection(collection).Doc(key).Set(ctx, map[string]any(fields), firestore.MergeAll)
	if err != nil {
		return fmt.Errorf("merge document: %w", err)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, collection, key string) (backup.Document, error) {
	snap, err := s.client.Collection(collection).Doc(key).Get(ctx)
	if status.Code(err) == codes.NotFound {
		return nil, backup.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get document: %w", err)
	}
	if !snap.Exists() {
		return nil, backup.ErrNotFound
	}
	return backup.Document(snap.Data()), nil
}
