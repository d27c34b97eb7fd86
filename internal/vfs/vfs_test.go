package vfs

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridian-dev/meridian/internal/contentstore"
	"github.com/meridian-dev/meridian/internal/merrors"
	"github.com/meridian-dev/meridian/internal/storage"
)

func newTestVFS(t *testing.T) (*VFS, string) {
	t.Helper()
	pool, err := storage.Open(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = pool.Close() })

	cs, err := contentstore.New(pool, 16)
	require.NoError(t, err)

	v := New(pool, cs)
	ws, err := v.CreateWorkspace(context.Background(), "test", WorkspaceTypeCode, false)
	require.NoError(t, err)
	return v, ws.ID
}

func TestWriteReadRoundTrip(t *testing.T) {
	v, wsID := newTestVFS(t)
	ctx := context.Background()
	require.NoError(t, v.CreateDirectory(ctx, wsID, "/a/b", true))

	vn, err := v.WriteFile(ctx, wsID, "/a/b/c.go", []byte("package main\n"))
	require.NoError(t, err)
	assert.Equal(t, "/a/b/c.go", vn.Path)
	assert.Equal(t, 1, vn.Version)

	got, err := v.ReadFile(ctx, wsID, "/a//b/./c.go")
	require.NoError(t, err)
	assert.Equal(t, "package main\n", string(got))
}

func TestWriteSameContentTwiceSharesBlob(t *testing.T) {
	v, wsID := newTestVFS(t)
	ctx := context.Background()

	vn1, err := v.WriteFile(ctx, wsID, "/x.txt", []byte("same"))
	require.NoError(t, err)
	vn2, err := v.WriteFile(ctx, wsID, "/y.txt", []byte("same"))
	require.NoError(t, err)
	assert.Equal(t, vn1.ContentHash, vn2.ContentHash)
}

func TestWriteBumpsVersionOnOverwrite(t *testing.T) {
	v, wsID := newTestVFS(t)
	ctx := context.Background()

	_, err := v.WriteFile(ctx, wsID, "/f.txt", []byte("v1"))
	require.NoError(t, err)
	vn2, err := v.WriteFile(ctx, wsID, "/f.txt", []byte("v2"))
	require.NoError(t, err)
	assert.Equal(t, 2, vn2.Version)

	got, err := v.ReadFile(ctx, wsID, "/f.txt")
	require.NoError(t, err)
	assert.Equal(t, "v2", string(got))
}

func TestReadMissingReturnsNotFound(t *testing.T) {
	v, wsID := newTestVFS(t)
	_, err := v.ReadFile(context.Background(), wsID, "/nope.txt")
	require.Error(t, err)
	assert.True(t, merrors.IsKind(err, merrors.KindNotFound))
}

func TestWriteToReadOnlyWorkspaceFails(t *testing.T) {
	ctx := context.Background()
	pool, err := storage.Open(ctx, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = pool.Close() })
	cs, err := contentstore.New(pool, 16)
	require.NoError(t, err)
	v := New(pool, cs)

	ws, err := v.CreateWorkspace(ctx, "ro", WorkspaceTypeCode, true)
	require.NoError(t, err)

	_, err = v.WriteFile(ctx, ws.ID, "/a.txt", []byte("data"))
	require.Error(t, err)
	assert.True(t, merrors.IsKind(err, merrors.KindReadOnly))
}

func TestWriteRejectsDotDot(t *testing.T) {
	v, wsID := newTestVFS(t)
	_, err := v.WriteFile(context.Background(), wsID, "/a/../../etc/passwd", []byte("x"))
	require.Error(t, err)
	assert.True(t, merrors.IsKind(err, merrors.KindInvalidInput))
}

func TestCreateDirectoryNonRecursiveFailsOnMissingAncestor(t *testing.T) {
	v, wsID := newTestVFS(t)
	ctx := context.Background()
	err := v.CreateDirectory(ctx, wsID, "/a/b/c", false)
	require.Error(t, err)
}

func TestCreateDirectoryRecursiveCreatesAncestors(t *testing.T) {
	v, wsID := newTestVFS(t)
	ctx := context.Background()
	require.NoError(t, v.CreateDirectory(ctx, wsID, "/a/b/c", true))

	exists, err := v.Exists(ctx, wsID, "/a/b")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestFileCannotShadowDirectory(t *testing.T) {
	v, wsID := newTestVFS(t)
	ctx := context.Background()
	require.NoError(t, v.CreateDirectory(ctx, wsID, "/dir", true))

	_, err := v.WriteFile(ctx, wsID, "/dir", []byte("x"))
	require.Error(t, err)
	assert.True(t, merrors.IsKind(err, merrors.KindAlreadyExists))
}

func TestListDirectoryLexicographicOrder(t *testing.T) {
	v, wsID := newTestVFS(t)
	ctx := context.Background()

	_, err := v.WriteFile(ctx, wsID, "/b.txt", []byte("b"))
	require.NoError(t, err)
	_, err = v.WriteFile(ctx, wsID, "/a.txt", []byte("a"))
	require.NoError(t, err)
	require.NoError(t, v.CreateDirectory(ctx, wsID, "/sub", false))
	_, err = v.WriteFile(ctx, wsID, "/sub/c.txt", []byte("c"))
	require.NoError(t, err)

	entries, err := v.ListDirectory(ctx, wsID, "/", true)
	require.NoError(t, err)
	require.Len(t, entries, 4) // a.txt, b.txt, sub, sub/c.txt
	assert.Equal(t, "/a.txt", entries[0].Path)
	assert.Equal(t, "/b.txt", entries[1].Path)
}

func TestDeleteNonEmptyDirectoryRequiresRecursive(t *testing.T) {
	v, wsID := newTestVFS(t)
	ctx := context.Background()
	require.NoError(t, v.CreateDirectory(ctx, wsID, "/d", false))
	_, err := v.WriteFile(ctx, wsID, "/d/f.txt", []byte("x"))
	require.NoError(t, err)

	err = v.Delete(ctx, wsID, "/d", false)
	require.Error(t, err)

	require.NoError(t, v.Delete(ctx, wsID, "/d", true))
	exists, err := v.Exists(ctx, wsID, "/d/f.txt")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestDeleteWorkspaceRefusesWhenForksExist(t *testing.T) {
	v, wsID := newTestVFS(t)
	ctx := context.Background()

	fork := &Workspace{ID: "fork-1", Name: "fork", ParentWorkspace: wsID, Type: WorkspaceTypeCode}
	require.NoError(t, v.PersistWorkspace(ctx, fork))

	err := v.DeleteWorkspace(ctx, wsID)
	require.Error(t, err)
	assert.True(t, merrors.IsKind(err, merrors.KindAlreadyExists))
}

func TestChangesSinceRecordsWrites(t *testing.T) {
	v, wsID := newTestVFS(t)
	ctx := context.Background()
	before := time.Now().UTC().Add(-time.Minute)

	_, err := v.WriteFile(ctx, wsID, "/n.txt", []byte("x"))
	require.NoError(t, err)

	changes, err := v.ChangesSince(ctx, wsID, before)
	require.NoError(t, err)
	require.Len(t, changes, 1)
	assert.Equal(t, ChangeCreated, changes[0].Type)
}

func TestGetWorkspaceByNameFindsCreatedWorkspace(t *testing.T) {
	v, wsID := newTestVFS(t)
	ctx := context.Background()

	ws, err := v.GetWorkspaceByName(ctx, "test")
	require.NoError(t, err)
	assert.Equal(t, wsID, ws.ID)
}

func TestGetWorkspaceByNameNotFound(t *testing.T) {
	v, _ := newTestVFS(t)
	_, err := v.GetWorkspaceByName(context.Background(), "does-not-exist")
	require.Error(t, err)
	assert.True(t, merrors.IsKind(err, merrors.KindNotFound))
}
