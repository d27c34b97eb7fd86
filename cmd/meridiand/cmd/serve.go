package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/meridian-dev/meridian/internal/daemon"
	"github.com/meridian-dev/meridian/internal/embedding"
	"github.com/meridian-dev/meridian/internal/vfs"
)

func newServeCmd() *cobra.Command {
	var embedProvider string
	var embedModel string
	var workspaceName string
	var roots []string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the MCP server over stdio",
		Long: `Start meridiand's MCP server, bridging an AI assistant to the code
graph, vector index, and forkable workspaces backed by --data-dir.

If --root is given, meridiand ingests those directories into a workspace
before the server starts serving, and keeps watching them for changes.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), runServeOptions{
				embedProvider: embedProvider,
				embedModel:    embedModel,
				workspaceName: workspaceName,
				roots:         roots,
			})
		},
	}

	cmd.Flags().StringVar(&embedProvider, "embedder", "ollama", "embedding provider: ollama or static")
	cmd.Flags().StringVar(&embedModel, "embedding-model", "", "embedding model name override")
	cmd.Flags().StringVar(&workspaceName, "workspace", "default", "workspace to create/reuse for --root ingestion")
	cmd.Flags().StringSliceVar(&roots, "root", nil, "host directories to ingest and watch on startup")

	return cmd
}

type runServeOptions struct {
	embedProvider string
	embedModel    string
	workspaceName string
	roots         []string
}

func runServe(ctx context.Context, opts runServeOptions) error {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return fmt.Errorf("creating data dir: %w", err)
	}

	engine, err := daemon.NewEngine(ctx, daemon.EngineOptions{
		DataDir:           dataDir,
		EmbeddingProvider: embedding.ParseProvider(opts.embedProvider),
		EmbeddingModel:    opts.embedModel,
	})
	if err != nil {
		return fmt.Errorf("starting engine: %w", err)
	}
	defer engine.Close()

	if len(opts.roots) > 0 {
		ws, err := resolveWorkspace(ctx, engine, opts.workspaceName)
		if err != nil {
			return err
		}

		slog.Info("ingesting startup roots", slog.Any("roots", opts.roots), slog.String("workspace", ws.ID))
		stats, err := engine.Pipeline.Run(ctx, ws.ID, ingestConfigForRoots(opts.roots))
		if err != nil {
			slog.Error("startup ingestion had failures", slog.String("error", err.Error()))
		}
		slog.Info("startup ingestion complete",
			slog.Int("processed", stats.FilesProcessed),
			slog.Int("failed", stats.FilesFailed))

		engine.Sync.WatchRoots(ws.ID, opts.roots)
		engine.Sync.StartPeriodicSync(ctx, ws.ID)
	}

	return engine.MCP.Serve(ctx)
}

func resolveWorkspace(ctx context.Context, engine *daemon.Engine, name string) (*vfs.Workspace, error) {
	ws, err := engine.VFS.GetWorkspaceByName(ctx, name)
	if err == nil {
		return ws, nil
	}
	return engine.VFS.CreateWorkspace(ctx, name, vfs.WorkspaceTypeCode, false)
}
