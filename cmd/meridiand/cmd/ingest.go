package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/meridian-dev/meridian/internal/daemon"
	"github.com/meridian-dev/meridian/internal/embedding"
	"github.com/meridian-dev/meridian/internal/ingest"
)

func newIngestCmd() *cobra.Command {
	var embedProvider string
	var embedModel string
	var workspaceName string

	cmd := &cobra.Command{
		Use:   "ingest [roots...]",
		Short: "Walk host directories into a workspace and build its index",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runIngest(cmd.Context(), args, embedProvider, embedModel, workspaceName)
		},
	}

	cmd.Flags().StringVar(&embedProvider, "embedder", "ollama", "embedding provider: ollama or static")
	cmd.Flags().StringVar(&embedModel, "embedding-model", "", "embedding model name override")
	cmd.Flags().StringVar(&workspaceName, "workspace", "default", "workspace to create/reuse")

	return cmd
}

func runIngest(ctx context.Context, roots []string, embedProvider, embedModel, workspaceName string) error {
	engine, err := daemon.NewEngine(ctx, daemon.EngineOptions{
		DataDir:           dataDir,
		EmbeddingProvider: embedding.ParseProvider(embedProvider),
		EmbeddingModel:    embedModel,
	})
	if err != nil {
		return fmt.Errorf("starting engine: %w", err)
	}
	defer engine.Close()

	ws, err := resolveWorkspace(ctx, engine, workspaceName)
	if err != nil {
		return fmt.Errorf("resolving workspace: %w", err)
	}

	stats, err := engine.Pipeline.Run(ctx, ws.ID, ingestConfigForRoots(roots))
	fmt.Printf("ingested %d/%d files (%d failed) into workspace %s in %s\n",
		stats.FilesProcessed, stats.FilesDiscovered, stats.FilesFailed, ws.ID, stats.Duration)
	if err != nil {
		return fmt.Errorf("ingestion completed with errors: %w", err)
	}
	return nil
}

func ingestConfigForRoots(roots []string) ingest.Config {
	return ingest.Config{
		Roots:            roots,
		RespectGitignore: true,
	}
}
