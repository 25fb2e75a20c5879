// Package backend builds the backup document store selected by configuration.
package backend

import (
	"context"
	"fmt"
	"log/slog"

	"smartbudget/internal/backup"
	"smartbudget/internal/backup/firestore"
	"smartbudget/internal/backup/memory"
	"smartbudget/internal/backup/s3"
	"smartbudget/internal/config"

	"google.golang.org/api/option"
)

// Type names a document store implementation.
type Type string

const (
	Memory    Type = config.BackupMemory
	Firestore Type = config.BackupFirestore
	S3        Type = config.BackupS3
)

func (t Type) String() string {
	return string(t)
}

func (t Type) IsValid() bool {
	switch t {
	case Memory, Firestore, S3:
		return true
	default:
		return false
	}
}

// Types returns every valid store type.
func Types() []Type {
	return []Type{Memory, Firestore, S3}
}

// CleanupFunc releases resources held by a store.
type CleanupFunc func() error

// Result is a ready store plus its cleanup.
type Result struct {
	Type    Type
	Store   backup.DocumentStore
	Cleanup CleanupFunc
}

// Config holds what the factory needs from the application config.
type Config struct {
	Type Type

	FirestoreProjectID string
	FirestoreCredsFile string

	S3 s3.Config
}

// FromAppConfig converts the application config to store config.
func FromAppConfig(appConfig *config.Config) (Config, error) {
	if appConfig == nil {
		return Config{}, fmt.Errorf("app config is nil")
	}
	t := Type(appConfig.BackupBackend)
	if !t.IsValid() {
		return Config{}, fmt.Errorf("invalid backup backend in config: %s", appConfig.BackupBackend)
	}
	return Config{
		Type:               t,
		FirestoreProjectID: appConfig.FirestoreProjectID,
		FirestoreCredsFile: appConfig.FirestoreCredsFile,
		S3: s3.Config{
			Bucket:          appConfig.S3Bucket,
			Region:          appConfig.S3Region,
			Endpoint:        appConfig.S3Endpoint,
			AccessKeyID:     appConfig.S3AccessKeyID,
			SecretAccessKey: appConfig.S3SecretAccessKey,
		},
	}, nil
}

// Validate checks the settings the chosen type needs.
func (c Config) Validate() error {
	if !c.Type.IsValid() {
		return fmt.Errorf("invalid backup backend: %s", c.Type)
	}
	switch c.Type {
	case Firestore:
		if c.FirestoreProjectID == "" {
			return fmt.Errorf("Firestore project ID is required for firestore backend")
		}
	case S3:
		if c.S3.Bucket == "" {
			return fmt.Errorf("bucket is required for s3 backend")
		}
	}
	return nil
}

// Factory creates document stores.
type Factory struct {
	logger *slog.Logger
}

func NewFactory(logger *slog.Logger) *Factory {
	if logger == nil {
		logger = slog.Default()
	}
	return &Factory{logger: logger}
}

// Create builds the store described by cfg.
func (f *Factory) Create(ctx context.Context, cfg Config) (*Result, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	switch cfg.Type {
	case Firestore:
		var opts []option.ClientOption
		if cfg.FirestoreCredsFile != "" {
			opts = append(opts, option.WithCredentialsFile(cfg.FirestoreCredsFile))
		}
		store, err := firestore.New(ctx, cfg.FirestoreProjectID, opts...)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize Firestore store: %w", err)
		}
		f.logger.Info("Initialized Firestore backup store", "component", "backend", "project", cfg.FirestoreProjectID)
		return &Result{Type: Firestore, Store: store, Cleanup: store.Close}, nil

	case S3:
		store, err := s3.NewFromConfig(ctx, cfg.S3)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize S3 store: %w", err)
		}
		f.logger.Info("Initialized S3 backup store",
			"component", "backend",
			"bucket", cfg.S3.Bucket,
			"custom_endpoint", cfg.S3.Endpoint != "")
		return &Result{Type: S3, Store: store}, nil

	default:
		f.logger.Warn("Using in-memory backup store, backups are lost on restart", "component", "backend")
		return &Result{Type: Memory, Store: memory.NewStore()}, nil
	}
}

// Close runs the cleanup if there is one.
func (r *Result) Close() error {
	if r == nil || r.Cleanup == nil {
		return nil
	}
	return r.Cleanup()
}
