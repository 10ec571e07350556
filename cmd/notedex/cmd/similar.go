package cmd

import (
	"encoding/json"

	"github.com/spf13/cobra"

	"github.com/notedex/notedex/internal/output"
)

func newSimilarCmd() *cobra.Command {
	var limit int
	var includeSelf bool
	var format string

	cmd := &cobra.Command{
		Use:   "similar <note>",
		Short: "Find notes similar to an indexed note",
		Long: `Rank indexed notes by similarity to the given note.

The note must already be indexed; run 'notedex index' first if it is
new. By itself the note is excluded from its own results.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			out := output.New(cmd.OutOrStdout())

			svc, _, err := openService(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = svc.Close() }()

			results, err := svc.FindSimilar(ctx, args[0], limit, !includeSelf)
			if err != nil {
				return err
			}

			if format == "json" {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(results)
			}

			if len(results) == 0 {
				out.Println("no similar notes")
				return nil
			}
			for i, r := range results {
				out.Result(i+1, r.FilePath, r.Score)
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "Maximum number of results (default from config)")
	cmd.Flags().BoolVar(&includeSelf, "include-self", false, "Keep the note itself in the results")
	cmd.Flags().StringVarP(&format, "format", "f", "text", "Output format: text, json")
	return cmd
}
