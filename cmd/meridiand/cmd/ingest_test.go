package cmd

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridian-dev/meridian/internal/daemon"
	"github.com/meridian-dev/meridian/internal/embedding"
)

func TestRunIngestCreatesWorkspaceAndIndexesFiles(t *testing.T) {
	dataDir = t.TempDir()
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "a.go"), []byte("package main\nfunc F() {}\n"), 0o644))

	err := runIngest(context.Background(), []string{root}, "static", "", "default")
	require.NoError(t, err)

	engine, err := daemon.NewEngine(context.Background(), daemon.EngineOptions{
		DataDir:           dataDir,
		EmbeddingProvider: embedding.ProviderStatic,
	})
	require.NoError(t, err)
	defer engine.Close()

	ws, err := engine.VFS.GetWorkspaceByName(context.Background(), "default")
	require.NoError(t, err)
	assert.NotEmpty(t, ws.ID)
}
