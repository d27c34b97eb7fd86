package ingest

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridian-dev/meridian/internal/contentstore"
	"github.com/meridian-dev/meridian/internal/embedding"
	"github.com/meridian-dev/meridian/internal/semantic"
	"github.com/meridian-dev/meridian/internal/storage"
	"github.com/meridian-dev/meridian/internal/vectorindex"
	"github.com/meridian-dev/meridian/internal/vfs"
)

func newTestPipeline(t *testing.T) (*Pipeline, *vfs.VFS, *semantic.Store, string) {
	t.Helper()
	pool, err := storage.Open(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = pool.Close() })

	cs, err := contentstore.New(pool, 16)
	require.NoError(t, err)
	v := vfs.New(pool, cs)
	ws, err := v.CreateWorkspace(context.Background(), "test", vfs.WorkspaceTypeCode, false)
	require.NoError(t, err)

	store := semantic.New(pool)
	emb := embedding.NewStaticEmbedder()
	idx := vectorindex.New(vectorindex.DefaultConfig(embedding.StaticDimensions))

	p := New(v, store, emb, idx)
	t.Cleanup(p.Close)
	return p, v, store, ws.ID
}

func TestPipelineIngestsGoFile(t *testing.T) {
	p, v, store, wsID := newTestPipeline(t)
	root := t.TempDir()
	src := "package main\n\n// Add returns the sum of a and b.\nfunc Add(a, b int) int {\n\tif a < 0 {\n\t\treturn b\n\t}\n\treturn a + b\n}\n"
	require.NoError(t, os.WriteFile(filepath.Join(root, "main.go"), []byte(src), 0o644))

	stats, err := p.Run(context.Background(), wsID, Config{Roots: []string{root}})
	require.NoError(t, err)
	assert.Equal(t, 1, stats.FilesDiscovered)
	assert.Equal(t, 1, stats.FilesProcessed)
	assert.Zero(t, stats.FilesFailed)
	assert.Equal(t, 1.0, stats.SuccessRate())

	units, err := store.GetUnitsInFile(context.Background(), wsID, "/main.go")
	require.NoError(t, err)
	require.Len(t, units, 1)
	assert.Equal(t, "Add", units[0].Name)
	assert.True(t, units[0].IsExported)

	content, err := v.ReadFile(context.Background(), wsID, "/main.go")
	require.NoError(t, err)
	assert.Equal(t, src, string(content))

	meta, err := v.Metadata(context.Background(), wsID, "/main.go")
	require.NoError(t, err)
	assert.Equal(t, int64(len(src)), meta.SizeBytes)
}

func TestPipelineUpdatesVNodeIndexMetadata(t *testing.T) {
	p, v, _, wsID := newTestPipeline(t)
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "a.go"), []byte("package a\n\nfunc F() {}\n\nfunc G() {}\n"), 0o644))

	_, err := p.Run(context.Background(), wsID, Config{Roots: []string{root}})
	require.NoError(t, err)

	vn, err := v.VNodeByID(context.Background(), wsID, firstVNodeID(t, v, wsID, "/a.go"))
	require.NoError(t, err)
	assert.Equal(t, 2, vn.UnitsCount)
	require.NotNil(t, vn.LastIndexedAt)
}

func firstVNodeID(t *testing.T, v *vfs.VFS, wsID, path string) string {
	t.Helper()
	nodes, err := v.AllVNodes(context.Background(), wsID)
	require.NoError(t, err)
	for _, n := range nodes {
		if n.Path == path {
			return n.ID
		}
	}
	t.Fatalf("vnode not found: %s", path)
	return ""
}

func TestPipelineSkipsUnrecognizedLanguageWithoutFailure(t *testing.T) {
	p, _, _, wsID := newTestPipeline(t)
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "notes.txt"), []byte("just some notes"), 0o644))

	stats, err := p.Run(context.Background(), wsID, Config{Roots: []string{root}})
	require.NoError(t, err)
	assert.Equal(t, 1, stats.FilesProcessed)
	assert.Zero(t, stats.FilesFailed)
}

func TestPipelineRetriesFailedReadsUpToMaxRetries(t *testing.T) {
	p, _, _, wsID := newTestPipeline(t)
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "main.go"), []byte("package main\n"), 0o644))

	attempts := 0
	orig := readFile
	readFile = func(path string) ([]byte, error) {
		attempts++
		return nil, assert.AnError
	}
	defer func() { readFile = orig }()

	stats, err := p.Run(context.Background(), wsID, Config{Roots: []string{root}, MaxRetries: 2, RetryDelay: 0})
	require.NoError(t, err)
	assert.Equal(t, 1, stats.FilesFailed)
	assert.Equal(t, 3, attempts) // initial attempt + 2 retries
}

func TestPipelineDisableRetrySkipsRetries(t *testing.T) {
	p, _, _, wsID := newTestPipeline(t)
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "main.go"), []byte("package main\n"), 0o644))

	attempts := 0
	orig := readFile
	readFile = func(path string) ([]byte, error) {
		attempts++
		return nil, assert.AnError
	}
	defer func() { readFile = orig }()

	stats, err := p.Run(context.Background(), wsID, Config{Roots: []string{root}, DisableRetry: true})
	require.NoError(t, err)
	assert.Equal(t, 1, stats.FilesFailed)
	assert.Equal(t, 1, attempts)
}
