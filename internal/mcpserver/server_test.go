package mcpserver

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridian-dev/meridian/internal/contentstore"
	"github.com/meridian-dev/meridian/internal/embedding"
	"github.com/meridian-dev/meridian/internal/fork"
	"github.com/meridian-dev/meridian/internal/ingest"
	"github.com/meridian-dev/meridian/internal/semantic"
	"github.com/meridian-dev/meridian/internal/storage"
	"github.com/meridian-dev/meridian/internal/vectorindex"
	"github.com/meridian-dev/meridian/internal/vfs"
)

func newTestServer(t *testing.T) (*Server, *vfs.VFS, string) {
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
	require.NoError(t, store.EnableFullText())
	emb := embedding.NewStaticEmbedder()
	idx := vectorindex.New(vectorindex.DefaultConfig(embedding.StaticDimensions))
	pipeline := ingest.New(v, store, emb, idx)
	t.Cleanup(pipeline.Close)
	forkMgr := fork.New(v)

	s := New(v, store, idx, emb, pipeline, forkMgr)
	return s, v, ws.ID
}

func TestHandleGetSymbolsRequiresArgs(t *testing.T) {
	s, _, _ := newTestServer(t)
	_, _, err := s.handleGetSymbols(context.Background(), nil, GetSymbolsInput{})
	require.Error(t, err)
}

func TestHandleGetSymbolsReturnsIngestedUnits(t *testing.T) {
	s, _, wsID := newTestServer(t)
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "main.go"), []byte("package main\nfunc Add(a, b int) int { return a + b }\n"), 0o644))

	_, ingestOut, err := s.handleIngestWorkspace(context.Background(), nil, IngestWorkspaceInput{WorkspaceID: wsID, Roots: []string{root}})
	require.NoError(t, err)
	require.Equal(t, 1, ingestOut.FilesProcessed)

	_, out, err := s.handleGetSymbols(context.Background(), nil, GetSymbolsInput{WorkspaceID: wsID, FilePath: "/main.go"})
	require.NoError(t, err)
	require.Len(t, out.Symbols, 1)
	assert.Equal(t, "Add", out.Symbols[0].Name)
}

func TestHandleFindSimilarReturnsMatches(t *testing.T) {
	s, _, wsID := newTestServer(t)
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "main.go"), []byte("package main\nfunc Add(a, b int) int { return a + b }\n"), 0o644))

	_, _, err := s.handleIngestWorkspace(context.Background(), nil, IngestWorkspaceInput{WorkspaceID: wsID, Roots: []string{root}})
	require.NoError(t, err)

	_, out, err := s.handleFindSimilar(context.Background(), nil, FindSimilarInput{Query: "add two numbers", Limit: 5})
	require.NoError(t, err)
	assert.NotEmpty(t, out.Matches)
}

func TestHandleFindSimilarRequiresQuery(t *testing.T) {
	s, _, _ := newTestServer(t)
	_, _, err := s.handleFindSimilar(context.Background(), nil, FindSimilarInput{})
	require.Error(t, err)
}

func TestHandleForkAndMergeWorkspace(t *testing.T) {
	s, v, wsID := newTestServer(t)
	_, err := v.WriteFile(context.Background(), wsID, "/a.go", []byte("package main\n"))
	require.NoError(t, err)

	_, forkOut, err := s.handleForkWorkspace(context.Background(), nil, ForkWorkspaceInput{SourceWorkspaceID: wsID, ForkName: "feature"})
	require.NoError(t, err)
	require.NotEmpty(t, forkOut.ForkWorkspaceID)

	_, err = v.WriteFile(context.Background(), forkOut.ForkWorkspaceID, "/b.go", []byte("package main\n"))
	require.NoError(t, err)

	_, mergeOut, err := s.handleMergeFork(context.Background(), nil, MergeForkInput{
		ForkWorkspaceID:   forkOut.ForkWorkspaceID,
		TargetWorkspaceID: wsID,
		Strategy:          "auto",
	})
	require.NoError(t, err)
	assert.Equal(t, 1, mergeOut.ChangesApplied)
	assert.Zero(t, mergeOut.ConflictsCount)
}

func TestHandleFindReferencesRequiresUnitID(t *testing.T) {
	s, _, _ := newTestServer(t)
	_, _, err := s.handleFindReferences(context.Background(), nil, FindReferencesInput{})
	require.Error(t, err)
}

func TestHandleIngestWorkspaceRequiresRoots(t *testing.T) {
	s, _, wsID := newTestServer(t)
	_, _, err := s.handleIngestWorkspace(context.Background(), nil, IngestWorkspaceInput{WorkspaceID: wsID})
	require.Error(t, err)
}

func TestHandleSearchTextReturnsMatches(t *testing.T) {
	s, _, wsID := newTestServer(t)
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "main.go"), []byte("package main\nfunc ParseHTTPRequest() {}\n"), 0o644))

	_, _, err := s.handleIngestWorkspace(context.Background(), nil, IngestWorkspaceInput{WorkspaceID: wsID, Roots: []string{root}})
	require.NoError(t, err)

	_, out, err := s.handleSearchText(context.Background(), nil, SearchTextInput{WorkspaceID: wsID, Query: "parse"})
	require.NoError(t, err)
	require.NotEmpty(t, out.Matches)
	assert.Equal(t, "ParseHTTPRequest", out.Matches[0].QualifiedName)
}

func TestHandleSearchTextRequiresArgs(t *testing.T) {
	s, _, _ := newTestServer(t)
	_, _, err := s.handleSearchText(context.Background(), nil, SearchTextInput{})
	require.Error(t, err)
}
