package memory

import (
	"context"
	"encoding/json"
	"testing"

	"smartbudget/internal/backup"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_PutGetMerge(t *testing.T) {
	ctx := context.Background()
	s := NewStore()

	_, err := s.Get(ctx, "backups", "u1")
	assert.ErrorIs(t, err, backup.ErrNotFound)

	require.NoError(t, s.Put(ctx, "backups", "u1", backup.Document{
		"transactions": []any{map[string]any{"amount": 12.5}},
		"last_backup":  int64(1000),
	}))

	doc, err := s.Get(ctx, "backups", "u1")
	require.NoError(t, err)
	assert.Equal(t, json.Number("1000"), doc["last_backup"])

	require.NoError(t, s.Merge(ctx, "backups", "u1", backup.Document{"last_backup": int64(2000)}))
	doc, err = s.Get(ctx, "backups", "u1")
	require.NoError(t, err)
	assert.Equal(t, json.Number("2000"), doc["last_backup"])
	assert.Len(t, doc["transactions"], 1, "merge keeps other fields")

	require.NoError(t, s.Merge(ctx, "backups", "u2", backup.Document{"user": map[string]any{"name": "x"}}))
	assert.Equal(t, 2, s.Len())

	_, err = s.Get(ctx, "other", "u1")
	assert.ErrorIs(t, err, backup.ErrNotFound)
}

func TestStore_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, NewStore().Put(ctx, "c", "k", backup.Document{}), context.Canceled)
}
