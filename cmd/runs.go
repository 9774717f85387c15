package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/comfe-salud/rips-cli/internal/journal"
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List recorded load runs",
	Long:  "Shows the run journal: when each load ran, what it inserted, and how it ended.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		jnl, err := journal.Open(cfg.Journal.Path)
		if err != nil {
			return eris.Wrap(err, "runs: open journal")
		}
		defer jnl.Close() //nolint:errcheck
		if err := jnl.Migrate(ctx); err != nil {
			return err
		}

		entries, err := jnl.List(ctx)
		if err != nil {
			return eris.Wrap(err, "runs: list")
		}

		if len(entries) == 0 {
			fmt.Fprintln(os.Stderr, "No runs recorded.")
			return nil
		}

		formatRuns(os.Stdout, entries)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(runsCmd)
}

// formatRuns writes a tabular run history to w, most recent first.
func formatRuns(out io.Writer, entries []journal.Entry) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tSTATUS\tSTARTED\tDURATION\tARCHIVES\tFACTS\tIDENTITIES\tASSETS\tERROR")
	_, _ = fmt.Fprintln(w, "--\t------\t-------\t--------\t--------\t-----\t----------\t------\t-----")

	for _, e := range entries {
		dur := ""
		if e.CompletedAt != nil {
			dur = e.CompletedAt.Sub(e.StartedAt).Round(time.Second).String()
		}

		errMsg := e.Error
		if len(errMsg) > 40 {
			errMsg = errMsg[:37] + "..."
		}

		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%d\t%d\t%d\t%s\n",
			truncateID(e.ID),
			e.Status,
			e.StartedAt.Format("2006-01-02 15:04"),
			dur,
			e.Stats.Archives,
			e.Stats.FactRows,
			e.Stats.IdentityRows,
			e.Stats.AssetsInserted,
			errMsg,
		)
	}
	_ = w.Flush()
}

// truncateID returns the first 8 characters of a UUID for compact display.
func truncateID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
