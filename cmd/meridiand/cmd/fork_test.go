package cmd

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridian-dev/meridian/internal/daemon"
	"github.com/meridian-dev/meridian/internal/embedding"
	"github.com/meridian-dev/meridian/internal/vfs"
)

func TestRunForkCreateAndMerge(t *testing.T) {
	dataDir = t.TempDir()
	ctx := context.Background()

	engine, err := daemon.NewEngine(ctx, daemon.EngineOptions{DataDir: dataDir, EmbeddingProvider: embedding.ProviderStatic})
	require.NoError(t, err)
	ws, err := engine.VFS.CreateWorkspace(ctx, "base", vfs.WorkspaceTypeCode, false)
	require.NoError(t, err)
	_, err = engine.VFS.WriteFile(ctx, ws.ID, "/a.txt", []byte("hello"))
	require.NoError(t, err)
	require.NoError(t, engine.Close())

	require.NoError(t, runForkCreate(ctx, ws.ID, "feature"))

	engine2, err := daemon.NewEngine(ctx, daemon.EngineOptions{DataDir: dataDir, EmbeddingProvider: embedding.ProviderStatic})
	require.NoError(t, err)
	forkWS, err := engine2.VFS.GetWorkspaceByName(ctx, "feature")
	require.NoError(t, err)
	_, err = engine2.VFS.WriteFile(ctx, forkWS.ID, "/b.txt", []byte("world"))
	require.NoError(t, err)
	require.NoError(t, engine2.Close())

	require.NoError(t, runForkMerge(ctx, forkWS.ID, ws.ID, "auto"))

	engine3, err := daemon.NewEngine(ctx, daemon.EngineOptions{DataDir: dataDir, EmbeddingProvider: embedding.ProviderStatic})
	require.NoError(t, err)
	defer engine3.Close()
	exists, err := engine3.VFS.Exists(ctx, ws.ID, "/b.txt")
	require.NoError(t, err)
	assert.True(t, exists)
}
