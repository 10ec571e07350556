// Package cmd provides the CLI commands for notedex.
package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/notedex/notedex/internal/config"
	"github.com/notedex/notedex/internal/errors"
	"github.com/notedex/notedex/internal/logging"
	"github.com/notedex/notedex/internal/service"
	"github.com/notedex/notedex/pkg/version"
)

var (
	debugMode      bool
	rootDir        string
	loggingCleanup func()
)

// NewRootCmd creates the root command for the notedex CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "notedex",
		Short: "Incremental similarity-search index for a note directory",
		Long: `notedex maintains a local similarity-search index over a directory
of markdown notes. Notes are embedded (via Ollama, or an offline hash
embedder) and stored in a single SQLite file; searches are ranked by
cosine similarity.

Typical usage:
  notedex index              build or refresh the index
  notedex search "query"     find notes by meaning
  notedex similar note.md    find notes related to a note
  notedex watch              keep the index in sync while you edit`,
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.SetVersionTemplate("notedex version {{.Version}}\n")

	cmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "Enable debug logging to ~/.notedex/logs/")
	cmd.PersistentFlags().StringVarP(&rootDir, "root", "r", "", "Note root directory (default: current directory)")

	cmd.PersistentPreRunE = setupLogging
	cmd.PersistentPostRun = teardownLogging

	cmd.AddCommand(newIndexCmd())
	cmd.AddCommand(newSearchCmd())
	cmd.AddCommand(newSimilarCmd())
	cmd.AddCommand(newStatusCmd())
	cmd.AddCommand(newWatchCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

func setupLogging(_ *cobra.Command, _ []string) error {
	cfg := logging.DefaultConfig()
	if debugMode {
		cfg = logging.DebugConfig()
	}

	logger, cleanup, err := logging.Setup(cfg)
	if err != nil {
		return fmt.Errorf("failed to set up logging: %w", err)
	}
	loggingCleanup = cleanup
	slog.SetDefault(logger)

	if debugMode {
		slog.Info("debug logging enabled",
			slog.String("log_file", logging.DefaultLogPath()),
			slog.String("version", version.Version))
	}
	return nil
}

func teardownLogging(_ *cobra.Command, _ []string) {
	if loggingCleanup != nil {
		loggingCleanup()
		loggingCleanup = nil
	}
}

// noteRoot resolves the effective note root.
func noteRoot() (string, error) {
	if rootDir != "" {
		return rootDir, nil
	}
	return os.Getwd()
}

// openService loads configuration for the note root and opens the
// service. The caller owns Close.
func openService(ctx context.Context) (*service.Service, *config.Config, error) {
	root, err := noteRoot()
	if err != nil {
		return nil, nil, err
	}

	cfg, err := config.Load(root)
	if err != nil {
		return nil, nil, err
	}

	svc, err := service.New(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	return svc, cfg, nil
}

// Execute runs the root command.
func Execute() error {
	cmd := NewRootCmd()
	if err := cmd.Execute(); err != nil {
		fmt.Fprint(os.Stderr, errors.FormatForCLI(err))
		return err
	}
	return nil
}
