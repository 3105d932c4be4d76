package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"dreamnet/internal/journal"
)

var runsCmd = &cobra.Command{
	Use:   "runs [RUN_ID]",
	Short: "List journaled runs, or the iterations of one run",
	Args:  cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		if cfg.Journal.DSN == "" {
			die("No run journal configured", nil, "set journal.dsn or pass --journal")
		}
		ctx := cmd.Context()
		j, err := journal.Open(ctx, cfg.Journal.DSN)
		if err != nil {
			die("Failed to open run journal", err, "")
		}
		defer j.Close()

		if len(args) == 1 {
			err = listSteps(ctx, os.Stdout, j, args[0])
		} else {
			err = listRuns(ctx, os.Stdout, j)
		}
		if err != nil {
			die("Failed to read run journal", err, "")
		}
	},
}

func init() {
	rootCmd.AddCommand(runsCmd)
}

func listRuns(ctx context.Context, out io.Writer, j *journal.Journal) error {
	runs, err := j.Runs(ctx)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Fprintln(out, "No runs journaled.")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "ID\tTARGET\tPREDICTED\tLOSS\tFRAMES\tSTARTED")
	fmt.Fprintln(w, "--\t------\t---------\t----\t------\t-------")
	for _, r := range runs {
		predicted, loss, count := "-", "-", "-"
		if r.Predicted != nil {
			predicted = fmt.Sprint(*r.Predicted)
		}
		if r.FinalLoss != nil {
			loss = fmt.Sprintf("%.4f", *r.FinalLoss)
		}
		if r.Frames != nil {
			count = fmt.Sprint(*r.Frames)
		}
		fmt.Fprintf(w, "%s\t%d\t%s\t%s\t%s\t%s\n", r.ID, r.Target, predicted, loss, count, r.StartedAt.Local().Format("2006-01-02 15:04"))
	}
	return w.Flush()
}

func listSteps(ctx context.Context, out io.Writer, j *journal.Journal, runID string) error {
	steps, err := j.Steps(ctx, runID)
	if err != nil {
		return err
	}
	if len(steps) == 0 {
		return fmt.Errorf("no iterations recorded for run %s", runID)
	}

	w := tabwriter.NewWriter(out, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "ITER\tLOSS\tPREDICTED\tMODEL RATE\tFRAME")
	fmt.Fprintln(w, "----\t----\t---------\t----------\t-----")
	for _, s := range steps {
		fmt.Fprintf(w, "%d\t%.4f\t%d\t%.3f\t%s\n", s.Iteration, s.Loss, s.Predicted, s.ModelRate, s.FramePath)
	}
	return w.Flush()
}
