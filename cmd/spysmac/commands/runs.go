package commands

import (
	"errors"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/spysmac/spysmac/pkg/scenario"
	"github.com/spysmac/spysmac/pkg/stores"
)

func newRunsCommand() *cobra.Command {
	var (
		storePath string
		limit     int
		offset    int
	)

	cmd := &cobra.Command{
		Use:   "runs [run-id]",
		Short: "List stored runs",
		Long: `List the configuration runs recorded in a store, newest first. With a
run ID, print that run with its evaluation count and incumbent.`,
		Example: `  spysmac runs
  spysmac runs --store results/spysmac.db --limit 5
  spysmac runs 6f1c2d9e-...`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := os.Stat(storePath); err != nil {
				return fmt.Errorf("store %s: %w", storePath, err)
			}

			ctx := cmd.Context()
			store, err := stores.NewSQLiteStore(stores.Config{Path: storePath})
			if err != nil {
				return err
			}
			if err := store.Init(ctx); err != nil {
				return err
			}
			defer store.Close()
			if err := store.Migrate(ctx); err != nil {
				return err
			}

			out := cmd.OutOrStdout()

			if len(args) == 1 {
				run, err := store.GetRun(ctx, args[0])
				if errors.Is(err, stores.ErrNotFound) {
					return fmt.Errorf("no run %s in %s", args[0], storePath)
				}
				if err != nil {
					return err
				}
				n, err := store.CountEvaluations(ctx, run.ID)
				if err != nil {
					return err
				}
				if jsonOutput {
					return writeJSON(out, struct {
						*stores.Run
						Evaluations int `json:"evaluations"`
					}{run, n})
				}
				fmt.Fprintf(out, "run:         %s\n", run.ID)
				fmt.Fprintf(out, "scenario:    %s (seed %d)\n", run.Scenario, run.Seed)
				fmt.Fprintf(out, "status:      %s\n", run.Status)
				fmt.Fprintf(out, "started:     %s\n", run.StartedAt.Local().Format(time.RFC3339))
				fmt.Fprintf(out, "evaluations: %d over %d configurations\n", n, run.Iterations)
				if run.DefaultCost != nil && run.IncumbentCost != nil {
					fmt.Fprintf(out, "PAR10:       %.3f -> %.3f\n", *run.DefaultCost, *run.IncumbentCost)
				}
				if run.Incumbent != nil {
					fmt.Fprintf(out, "incumbent:   %s\n", *run.Incumbent)
				}
				if run.Error != nil {
					fmt.Fprintf(out, "error:       %s\n", *run.Error)
				}
				return nil
			}

			runs, err := store.ListRuns(ctx, limit, offset)
			if err != nil {
				return err
			}
			if jsonOutput {
				return writeJSON(out, runs)
			}

			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tSCENARIO\tSEED\tSTATUS\tSTARTED\tDEFAULT\tINCUMBENT")
			for _, r := range runs {
				fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\t%s\t%s\n",
					r.ID, r.Scenario, r.Seed, r.Status,
					r.StartedAt.Local().Format(time.DateTime),
					formatCost(r.DefaultCost), formatCost(r.IncumbentCost))
			}
			return tw.Flush()
		},
	}

	cmd.Flags().StringVar(&storePath, "store", scenario.DefaultStore, "SQLite store to read")
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum number of runs")
	cmd.Flags().IntVar(&offset, "offset", 0, "number of runs to skip")

	return cmd
}

func formatCost(c *float64) string {
	if c == nil {
		return "-"
	}
	return fmt.Sprintf("%.3f", *c)
}
