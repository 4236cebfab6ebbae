package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/wyfcoding/optiongreeks/logging"
	"github.com/wyfcoding/optiongreeks/pnl"
	"github.com/wyfcoding/optiongreeks/service"
)

func newExplainCmd(opts *rootOptions) *cobra.Command {
	var (
		workers int
		format  string
	)
	cmd := &cobra.Command{
		Use:   "explain FILE...",
		Short: "attribute the P&L of positions described by JSON files and print the reports",
		Long: `Each FILE holds one position: {"underlying", "trades", "snapshots", "premium_on_expiry"}.
The first trade opens the position. Reports are printed in input order as CSV (default) or JSON.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			reqs := make([]service.ExplainRequest, len(args))
			for i, path := range args {
				if err := readJSON(path, &reqs[i]); err != nil {
					return err
				}
			}

			svc := service.New(opts.cfg, mustToday(), service.Deps{Logger: logging.Default()})
			reports := make([]pnl.Explain, len(reqs))
			g, ctx := errgroup.WithContext(cmd.Context())
			if workers > 0 {
				g.SetLimit(workers)
			}
			for i := range reqs {
				g.Go(func() error {
					r, err := svc.Explain(ctx, reqs[i])
					if err != nil {
						return fmt.Errorf("%s: %w", args[i], err)
					}
					reports[i] = r
					return nil
				})
			}
			if err := g.Wait(); err != nil {
				return err
			}
			return writeReports(cmd, format, reports)
		},
	}
	cmd.Flags().IntVarP(&workers, "workers", "w", 4, "maximum number of files attributed concurrently")
	cmd.Flags().StringVarP(&format, "format", "f", "csv", "output format: csv or json")
	return cmd
}

func writeReports(cmd *cobra.Command, format string, reports []pnl.Explain) error {
	switch format {
	case "csv":
		w := pnl.NewCSVWriter(cmd.OutOrStdout())
		for _, r := range reports {
			if err := w.Write(r); err != nil {
				return err
			}
		}
		return nil
	case "json":
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(reports)
	default:
		return fmt.Errorf("unknown output format %q", format)
	}
}

func readJSON(path string, v any) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(b, v); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	return nil
}

func mustToday() (d time.Time) {
	d, _ = parseAsOf("")
	return d
}
