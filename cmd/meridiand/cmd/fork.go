package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/meridian-dev/meridian/internal/daemon"
	"github.com/meridian-dev/meridian/internal/embedding"
	"github.com/meridian-dev/meridian/internal/fork"
)

func newForkCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fork",
		Short: "Manage workspace forks",
	}
	cmd.AddCommand(newForkCreateCmd())
	cmd.AddCommand(newForkMergeCmd())
	return cmd
}

func newForkCreateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "create <source-workspace-id> <fork-name>",
		Short: "Create an editable copy of a workspace",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runForkCreate(cmd.Context(), args[0], args[1])
		},
	}
	return cmd
}

func newForkMergeCmd() *cobra.Command {
	var strategy string

	cmd := &cobra.Command{
		Use:   "merge <fork-workspace-id> <target-workspace-id>",
		Short: "Merge a fork's changes back into its target",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runForkMerge(cmd.Context(), args[0], args[1], strategy)
		},
	}
	cmd.Flags().StringVar(&strategy, "strategy", string(fork.StrategyManual), "manual, auto, prefer_fork, or prefer_target")
	return cmd
}

func runForkCreate(ctx context.Context, sourceWorkspaceID, forkName string) error {
	engine, err := daemon.NewEngine(ctx, daemon.EngineOptions{DataDir: dataDir, EmbeddingProvider: embedding.ProviderStatic})
	if err != nil {
		return fmt.Errorf("starting engine: %w", err)
	}
	defer engine.Close()

	ws, err := engine.ForkMgr.CreateFork(ctx, sourceWorkspaceID, forkName)
	if err != nil {
		return fmt.Errorf("creating fork: %w", err)
	}
	fmt.Printf("created fork %s (%s)\n", ws.ID, ws.Name)
	return nil
}

func runForkMerge(ctx context.Context, forkID, targetID, strategy string) error {
	engine, err := daemon.NewEngine(ctx, daemon.EngineOptions{DataDir: dataDir, EmbeddingProvider: embedding.ProviderStatic})
	if err != nil {
		return fmt.Errorf("starting engine: %w", err)
	}
	defer engine.Close()

	report, err := engine.ForkMgr.Merge(ctx, forkID, targetID, fork.Strategy(strategy))
	if err != nil {
		return fmt.Errorf("merging fork: %w", err)
	}
	fmt.Printf("applied %d changes, %d conflicts (%d auto-resolved)\n",
		report.ChangesApplied, report.ConflictsCount, report.AutoResolved)
	return nil
}
