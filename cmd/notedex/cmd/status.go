package cmd

import (
	"github.com/spf13/cobra"

	"github.com/notedex/notedex/internal/output"
)

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show index state and queue statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			out := output.New(cmd.OutOrStdout())

			svc, _, err := openService(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = svc.Close() }()

			st, err := svc.Status(ctx)
			if err != nil {
				return err
			}

			out.Println("Index")
			out.Field("root", st.Root)
			out.Field("database", st.IndexPath)
			out.Field("exists", st.IndexExists)
			out.Field("notes", st.IndexedFiles)
			out.Field("vectors", st.VectorCount)
			out.Field("dimension", st.Dimension)
			if st.Model != "" {
				out.Field("model", st.Model)
			}
			out.Newline()

			out.Println("Queue")
			out.Field("strategy", st.Strategy)
			out.Field("queued", st.QueueStats.TasksQueued)
			out.Field("processed", st.QueueStats.TasksProcessed)
			out.Field("batches", st.QueueStats.BatchesProcessed)
			out.Field("errors", st.QueueStats.Errors)
			return nil
		},
	}
}
