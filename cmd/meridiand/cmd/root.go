// Package cmd provides the CLI commands for meridiand.
package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/meridian-dev/meridian/internal/logging"
	"github.com/meridian-dev/meridian/pkg/version"
)

var (
	dataDir   string
	debugMode bool

	loggingCleanup func()
)

// NewRootCmd creates the root command for the meridiand CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "meridiand",
		Short: "Persistent code-intelligence engine for AI coding assistants",
		Long: `meridiand ingests a codebase into a typed semantic graph and vector
index, serves it to an assistant over MCP, and supports forking a workspace
for speculative edits without touching the original.

Run 'meridiand serve' to start the MCP server against a data directory.`,
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	cmd.SetVersionTemplate("meridiand version {{.Version}}\n")

	cmd.PersistentFlags().StringVar(&dataDir, "data-dir", defaultDataDir(), "directory holding the database and vector index")
	cmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "enable debug logging to ~/.meridian/logs/")

	cmd.PersistentPreRunE = startLogging
	cmd.PersistentPostRunE = stopLogging

	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newIngestCmd())
	cmd.AddCommand(newForkCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// Execute runs the root command.
func Execute() error {
	return NewRootCmd().Execute()
}

func startLogging(_ *cobra.Command, _ []string) error {
	if !debugMode {
		return nil
	}
	logger, cleanup, err := logging.Setup(logging.DebugConfig())
	if err != nil {
		return fmt.Errorf("failed to setup debug logging: %w", err)
	}
	loggingCleanup = cleanup
	slog.SetDefault(logger)
	return nil
}

func stopLogging(_ *cobra.Command, _ []string) error {
	if loggingCleanup != nil {
		loggingCleanup()
		loggingCleanup = nil
	}
	return nil
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".meridian")
	}
	return filepath.Join(home, ".meridian")
}
