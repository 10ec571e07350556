package cmd

import (
	"encoding/json"
	"strings"

	"github.com/spf13/cobra"

	"github.com/notedex/notedex/internal/output"
)

type searchOptions struct {
	limit     int
	threshold float64
	format    string
}

func newSearchCmd() *cobra.Command {
	var opts searchOptions

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search notes by meaning",
		Long: `Embed the query and rank indexed notes by cosine similarity.

Examples:
  notedex search "kubernetes ingress debugging"
  notedex search "meeting notes about hiring" --limit 5
  notedex search "raft consensus" --threshold 0.4 --format json`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			query := strings.Join(args, " ")
			out := output.New(cmd.OutOrStdout())

			svc, _, err := openService(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = svc.Close() }()

			results, err := svc.Search(ctx, query, opts.limit, float32(opts.threshold))
			if err != nil {
				return err
			}

			if opts.format == "json" {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(results)
			}

			if len(results) == 0 {
				out.Println("no matching notes")
				return nil
			}
			for i, r := range results {
				out.Result(i+1, r.FilePath, r.Score)
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&opts.limit, "limit", "n", 0, "Maximum number of results (default from config)")
	cmd.Flags().Float64VarP(&opts.threshold, "threshold", "t", 0, "Minimum cosine similarity in [0,1]")
	cmd.Flags().StringVarP(&opts.format, "format", "f", "text", "Output format: text, json")
	return cmd
}
