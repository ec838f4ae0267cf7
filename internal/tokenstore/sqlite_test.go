package tokenstore

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMemoryStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSQLiteStore_SetGetDelete(t *testing.T) {
	s := newMemoryStore(t)
	ctx := context.Background()

	_, err := s.Get(ctx, TokenKey)
	require.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, s.Set(ctx, TokenKey, "abc", time.Hour))
	got, err := s.Get(ctx, TokenKey)
	require.NoError(t, err)
	assert.Equal(t, "abc", got)

	require.NoError(t, s.Set(ctx, TokenKey, "def", time.Hour))
	got, err = s.Get(ctx, TokenKey)
	require.NoError(t, err)
	assert.Equal(t, "def", got)

	require.NoError(t, s.Delete(ctx, TokenKey))
	require.NoError(t, s.Delete(ctx, TokenKey), "deleting twice is fine")
	_, err = s.Get(ctx, TokenKey)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSQLiteStore_Expiry(t *testing.T) {
	s := newMemoryStore(t)
	ctx := context.Background()
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	require.NoError(t, s.Set(ctx, TokenKey, "abc", 7*24*time.Hour))
	require.NoError(t, s.Set(ctx, "other", "x", time.Minute))

	now = now.Add(time.Hour)
	n, err := s.PurgeExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	got, err := s.Get(ctx, TokenKey)
	require.NoError(t, err)
	assert.Equal(t, "abc", got)

	now = now.Add(7 * 24 * time.Hour)
	_, err = s.Get(ctx, TokenKey)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSQLiteStore_PersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "mailsync.db")
	ctx := context.Background()

	s, err := NewSQLiteStore(ctx, path)
	require.NoError(t, err)
	require.NoError(t, s.Set(ctx, TokenKey, "abc", time.Hour))
	require.NoError(t, s.Close())

	s, err = NewSQLiteStore(ctx, path)
	require.NoError(t, err)
	defer s.Close()

	got, err := s.Get(ctx, TokenKey)
	require.NoError(t, err)
	assert.Equal(t, "abc", got)
}

func TestSQLiteStore_OpenDropsExpiredRows(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mailsync.db")
	ctx := context.Background()

	s, err := NewSQLiteStore(ctx, path)
	require.NoError(t, err)
	require.NoError(t, s.Set(ctx, TokenKey, "abc", time.Hour))
	require.NoError(t, s.Set(ctx, "stale", "x", -time.Minute))
	require.NoError(t, s.Close())

	s, err = NewSQLiteStore(ctx, path)
	require.NoError(t, err)
	defer s.Close()

	var keys []string
	require.NoError(t, s.db.SelectContext(ctx, &keys, `SELECT key FROM kv ORDER BY key`))
	assert.Equal(t, []string{TokenKey}, keys)
}
