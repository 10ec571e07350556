package cmd

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/notedex/notedex/internal/output"
)

func newWatchCmd() *cobra.Command {
	var initialIndex bool

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Keep the index synchronized while notes change",
		Long: `Watch the note root for changes and update the index as notes are
created, edited, and deleted. Rapid event bursts (editor saves, file
moves) are coalesced before indexing. Runs until interrupted.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			out := output.New(cmd.OutOrStdout())

			svc, cfg, err := openService(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = svc.Close() }()

			if initialIndex {
				result, err := svc.RebuildIndex(ctx, false)
				if err != nil {
					return err
				}
				out.Successf("initial index: %d notes (%d unchanged)", result.Processed, result.Skipped)
			}

			out.Successf("watching %s (Ctrl-C to stop)", cfg.Paths.Root)
			if err := svc.Watch(ctx); err != nil && ctx.Err() == nil {
				return err
			}

			// Drain whatever the watcher enqueued before the signal.
			svc.ProcessPending(context.Background())
			out.Println("stopped")
			return nil
		},
	}

	cmd.Flags().BoolVar(&initialIndex, "index", true, "Run an incremental index before watching")
	return cmd
}
