package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/nerrad567/chimp-relay/internal/history"
)

const defaultHistoryLimit = 20

func newHistoryCmd(opts *options) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recent runs from the delivery history",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.load(cmd.Flags())
			if err != nil {
				return err
			}
			if cfg.History.Path == "" {
				return fmt.Errorf("history.path is not configured")
			}

			db, err := openHistory(cmd.Context(), cfg.History)
			if err != nil {
				return fmt.Errorf("opening history: %w", err)
			}
			defer db.Close() //nolint:errcheck // read-only listing

			runs, err := history.NewSQLiteRepository(db.DB).ListRuns(cmd.Context(), limit)
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 3, ' ', 0)
			fmt.Fprintln(w, "RUN\tSTARTED\tTOPIC\tPOLICY\tMESSAGES\tSTATUS")
			for _, r := range runs {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%s\n",
					r.ID,
					r.StartedAt.Local().Format(time.DateTime),
					r.Topic,
					r.Policy,
					r.MessageCount,
					runStatus(r),
				)
			}
			return w.Flush()
		},
	}

	cmd.Flags().IntVar(&limit, "limit", defaultHistoryLimit, "number of runs to show")
	return cmd
}

// runStatus summarises how a run ended.
func runStatus(r history.Run) string {
	switch {
	case r.FinishedAt.IsZero():
		return "running"
	case r.Error != "":
		return "failed: " + r.Error
	case r.Completed:
		return "completed"
	default:
		return "incomplete"
	}
}
