package contentstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridian-dev/meridian/internal/merrors"
	"github.com/meridian-dev/meridian/internal/storage"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	pool, err := storage.Open(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = pool.Close() })

	s, err := New(pool, 16)
	require.NoError(t, err)
	return s
}

func TestPutGetRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	hash, err := s.Put(ctx, []byte("package main\n"))
	require.NoError(t, err)
	assert.Len(t, string(hash), 64)

	got, err := s.Get(ctx, hash)
	require.NoError(t, err)
	assert.Equal(t, "package main\n", string(got))
}

func TestPutDeduplicates(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	h1, err := s.Put(ctx, []byte("same content"))
	require.NoError(t, err)
	h2, err := s.Put(ctx, []byte("same content"))
	require.NoError(t, err)
	assert.Equal(t, h1, h2)
}

func TestGetMissingReturnsNotFound(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Get(context.Background(), Hash("deadbeef"))
	require.Error(t, err)
	assert.True(t, merrors.IsKind(err, merrors.KindNotFound))
}

func TestReleaseDropsAtZeroRefCount(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	hash, err := s.Put(ctx, []byte("ephemeral"))
	require.NoError(t, err)

	require.NoError(t, s.Release(ctx, hash))

	_, err = s.Get(ctx, hash)
	require.Error(t, err)
}

func TestContains(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	ok, err := s.Contains(ctx, Hash("nope"))
	require.NoError(t, err)
	assert.False(t, ok)

	hash, err := s.Put(ctx, []byte("present"))
	require.NoError(t, err)

	ok, err = s.Contains(ctx, hash)
	require.NoError(t, err)
	assert.True(t, ok)
}
