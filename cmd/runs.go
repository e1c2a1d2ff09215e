package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/lionlai1989/sat-bundleadjust/internal/store"
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Inspect adjustment run history",
	Long:  "Commands for listing and viewing past bundle adjustment runs.",
}

// -- runs list --

var runsListLimit int

var runsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List adjustment runs",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		runs, err := st.ListRuns(ctx, runsListLimit)
		if err != nil {
			return eris.Wrap(err, "runs list")
		}

		if len(runs) == 0 {
			fmt.Fprintln(os.Stderr, "No runs found.")
			return nil
		}

		formatRunsList(os.Stdout, runs)
		return nil
	},
}

// -- runs show --

var runsShowJSON bool

var runsShowCmd = &cobra.Command{
	Use:   "show <run-id>",
	Short: "Show one run with its per-date statistics",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		run, err := st.GetRun(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "runs show")
		}
		dates, err := st.ListDateStats(ctx, run.ID)
		if err != nil {
			return eris.Wrap(err, "runs show")
		}

		if runsShowJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(struct {
				Run   *store.Run       `json:"run"`
				Dates []store.DateStat `json:"dates"`
			}{run, dates})
		}

		formatRun(os.Stdout, run, dates)
		return nil
	},
}

// formatRunsList writes a tabular list of runs to out.
func formatRunsList(out io.Writer, runs []store.Run) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tSTRATEGY\tDATES\tIMAGES\tSTARTED\tDURATION\tERR")
	_, _ = fmt.Fprintln(w, "--\t--------\t-----\t------\t-------\t--------\t---")

	for _, r := range runs {
		dur, errs := "-", "-"
		if r.FinishedAt != nil {
			dur = r.FinishedAt.Sub(r.StartedAt).Round(time.Second).String()
			errs = fmt.Sprintf("%.3f > %.3f", r.ErrBefore, r.ErrAfter)
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%s\t%s\t%s\n",
			truncateID(r.ID),
			r.Strategy,
			r.Dates,
			r.Images,
			r.StartedAt.Format("2006-01-02 15:04"),
			dur,
			errs,
		)
	}
	_ = w.Flush()
}

// formatRun writes one run and its per-date breakdown to out.
func formatRun(out io.Writer, run *store.Run, dates []store.DateStat) {
	fmt.Fprintf(out, "Run %s\n", run.ID)
	fmt.Fprintf(out, "  strategy: %s\n", run.Strategy)
	fmt.Fprintf(out, "  dates:    %d\n", run.Dates)
	fmt.Fprintf(out, "  images:   %d\n", run.Images)
	fmt.Fprintf(out, "  started:  %s\n", run.StartedAt.Format(time.RFC3339))
	if run.FinishedAt != nil {
		fmt.Fprintf(out, "  finished: %s\n", run.FinishedAt.Format(time.RFC3339))
		fmt.Fprintf(out, "  error:    %.3f --> %.3f px\n", run.ErrBefore, run.ErrAfter)
	} else {
		fmt.Fprintln(out, "  finished: (still running or aborted)")
	}
	if len(dates) == 0 {
		return
	}

	fmt.Fprintln(out)
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "DATE\tIMAGES\tTRACKS\tELAPSED\tERR")
	for _, d := range dates {
		_, _ = fmt.Fprintf(w, "%s\t%d\t%d\t%.2fs\t%.3f > %.3f\n",
			d.DateID, d.Images, d.Tracks, d.Elapsed, d.ErrBefore, d.ErrAfter)
	}
	_ = w.Flush()
}

// truncateID shortens a uuid for table display.
func truncateID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func init() {
	runsListCmd.Flags().IntVar(&runsListLimit, "limit", 50, "maximum runs to list")
	runsShowCmd.Flags().BoolVar(&runsShowJSON, "json", false, "emit json instead of a table")
	runsCmd.AddCommand(runsListCmd)
	runsCmd.AddCommand(runsShowCmd)
	rootCmd.AddCommand(runsCmd)
}
