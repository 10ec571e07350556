package cmd

import (
	"github.com/spf13/cobra"

	"github.com/notedex/notedex/internal/output"
)

func newIndexCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "index",
		Short: "Build or refresh the note index",
		Long: `Scan the note root and index every matching note.

The default run is incremental: notes whose modification time and
content hash are unchanged are skipped. Use --force to drop the index
and re-embed everything, for example after switching embedding models.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			out := output.New(cmd.OutOrStdout())

			svc, _, err := openService(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = svc.Close() }()

			result, err := svc.RebuildIndex(ctx, force)
			if err != nil {
				return err
			}

			out.Successf("indexed %d notes (%d unchanged)", result.Processed, result.Skipped)
			for _, fe := range result.Errors {
				out.Warningf("%s: %v", fe.Path, fe.Err)
			}
			return nil
		},
	}

	cmd.Flags().BoolVarP(&force, "force", "f", false, "Drop the index and re-embed every note")
	return cmd
}
