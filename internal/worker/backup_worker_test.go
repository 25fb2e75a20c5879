package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"smartbudget/internal/amqp"
	"smartbudget/internal/backup"
	"smartbudget/internal/identity"
	"smartbudget/internal/netcheck"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeBackups struct {
	mu        sync.Mutex
	uploads   []string
	downloads []string
	uploadErr map[string]error
	downErr   error
}

func subject(ctx context.Context) string {
	s, _ := identity.Subject(ctx, identity.ContextProvider{})
	return s
}

func (f *fakeBackups) Upload(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := subject(ctx)
	f.uploads = append(f.uploads, id)
	return f.uploadErr[id]
}

func (f *fakeBackups) Download(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.downloads = append(f.downloads, subject(ctx))
	return f.downErr
}

type fakeUsers []string

func (f fakeUsers) ListUserIDs(context.Context) ([]string, error) { return f, nil }

type fakeExporter struct{ users []string }

func (f *fakeExporter) Export(_ context.Context, userID string) (int, error) {
	f.users = append(f.users, userID)
	return 3, nil
}

func TestHandleMessage(t *testing.T) {
	ctx := context.Background()
	b := &fakeBackups{}
	exp := &fakeExporter{}
	w := NewBackupWorker(b, fakeUsers{}, exp)

	require.NoError(t, w.HandleMessage(ctx, amqp.NewBackupRequestMessage("alice", amqp.OpUpload)))
	require.NoError(t, w.HandleMessage(ctx, amqp.NewBackupRequestMessage("bob", amqp.OpDownload)))
	require.NoError(t, w.HandleMessage(ctx, amqp.NewBackupRequestMessage("carol", amqp.OpExport)))

	assert.Equal(t, []string{"alice"}, b.uploads)
	assert.Equal(t, []string{"bob"}, b.downloads)
	assert.Equal(t, []string{"carol"}, exp.users)
}

func TestHandleMessage_Errors(t *testing.T) {
	ctx := context.Background()

	t.Run("missing backup is not retried", func(t *testing.T) {
		w := NewBackupWorker(&fakeBackups{downErr: backup.ErrNotFound}, fakeUsers{}, nil)
		assert.NoError(t, w.HandleMessage(ctx, amqp.NewBackupRequestMessage("u1", amqp.OpDownload)))
	})

	t.Run("offline is retried", func(t *testing.T) {
		w := NewBackupWorker(&fakeBackups{downErr: netcheck.ErrNoConnectivity}, fakeUsers{}, nil)
		err := w.HandleMessage(ctx, amqp.NewBackupRequestMessage("u1", amqp.OpDownload))
		assert.ErrorIs(t, err, netcheck.ErrNoConnectivity)
	})

	t.Run("export without exporter is skipped", func(t *testing.T) {
		w := NewBackupWorker(&fakeBackups{}, fakeUsers{}, nil)
		assert.NoError(t, w.HandleMessage(ctx, amqp.NewBackupRequestMessage("u1", amqp.OpExport)))
	})
}

func TestAutoBackup(t *testing.T) {
	b := &fakeBackups{uploadErr: map[string]error{"bob": errors.New("store down")}}
	w := NewBackupWorker(b, fakeUsers{"alice", "bob", "carol"}, nil)

	n, err := w.AutoBackup(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, []string{"alice", "bob", "carol"}, b.uploads)
}

func TestAutoBackup_StopsWhenOffline(t *testing.T) {
	b := &fakeBackups{uploadErr: map[string]error{"bob": netcheck.ErrNoConnectivity}}
	w := NewBackupWorker(b, fakeUsers{"alice", "bob", "carol"}, nil)

	n, err := w.AutoBackup(context.Background())
	assert.ErrorIs(t, err, netcheck.ErrNoConnectivity)
	assert.Equal(t, 1, n)
	assert.Equal(t, []string{"alice", "bob"}, b.uploads)
}

func TestRunAutoBackup(t *testing.T) {
	b := &fakeBackups{}
	w := NewBackupWorker(b, fakeUsers{"alice"}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.RunAutoBackup(ctx, 5*time.Millisecond) }()

	require.Eventually(t, func() bool {
		b.mu.Lock()
		defer b.mu.Unlock()
		return len(b.uploads) >= 2
	}, time.Second, 5*time.Millisecond)

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}
