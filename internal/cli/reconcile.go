package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/vietddude/chainmetrics/internal/control"
	"github.com/vietddude/chainmetrics/internal/core/domain"
	"github.com/vietddude/chainmetrics/internal/indexing/backfill"
	"github.com/vietddude/chainmetrics/internal/indexing/reconcile"
)

var reconcileBackfill bool

var reconcileCmd = &cobra.Command{
	Use:   "reconcile [date]",
	Short: "Find blocks a date is missing between its neighbouring committed days",
	Args:  cobra.ExactArgs(1),
	Run:   runReconcile,
}

var backfillCmd = &cobra.Command{
	Use:   "backfill [from_block] [to_block]",
	Short: "Fetch an inclusive block range from the node and ingest it",
	Args:  cobra.ExactArgs(2),
	Run:   runBackfill,
}

func init() {
	reconcileCmd.Flags().BoolVar(&reconcileBackfill, "backfill", false, "fetch and ingest the missing blocks from rpc.url")
	rootCmd.AddCommand(reconcileCmd, backfillCmd)
}

// reconcileOutput is printed by the reconcile command.
type reconcileOutput struct {
	*reconcile.Report
	Backfill *backfill.Summary `json:"backfill,omitempty"`
}

func runReconcile(cmd *cobra.Command, args []string) {
	ctx := context.Background()
	app := openApp(ctx, control.Overrides{})
	defer app.Close()

	var processor *backfill.Processor
	if reconcileBackfill {
		var err error
		processor, err = app.Backfiller()
		exitOnError(app.Chain(), err)
	}
	exitOnError(app.Chain(), reconcileDate(ctx, app, processor, args[0], os.Stdout))
}

// reconcileDate prints the reconcile report of date. With a processor the
// missing blocks are ingested first.
func reconcileDate(ctx context.Context, app *control.App, processor *backfill.Processor, date string, w io.Writer) error {
	missing, report, err := app.Detector().Missing(ctx, date)
	if err != nil {
		return err
	}
	out := reconcileOutput{Report: report}

	if processor != nil && len(missing) > 0 {
		summary, err := processor.Backfill(ctx, missing)
		if err != nil {
			return err
		}
		out.Backfill = summary
	}
	return printJSON(w, out)
}

func runBackfill(cmd *cobra.Command, args []string) {
	ctx := context.Background()
	app := openApp(ctx, control.Overrides{})
	defer app.Close()

	r, err := parseRange(args[0], args[1])
	exitOnError(app.Chain(), err)

	processor, err := app.Backfiller()
	exitOnError(app.Chain(), err)

	summary, err := processor.Backfill(ctx, r.Blocks())
	exitOnError(app.Chain(), err)
	exitOnError(app.Chain(), printJSON(os.Stdout, summary))
}

func parseRange(from, to string) (reconcile.Range, error) {
	start, err := strconv.ParseUint(from, 10, 64)
	if err != nil {
		return reconcile.Range{}, &domain.ValidationError{Field: "from_block", Reason: fmt.Sprintf("not a block number: %q", from)}
	}
	end, err := strconv.ParseUint(to, 10, 64)
	if err != nil {
		return reconcile.Range{}, &domain.ValidationError{Field: "to_block", Reason: fmt.Sprintf("not a block number: %q", to)}
	}
	if end < start {
		return reconcile.Range{}, &domain.ValidationError{Field: "to_block", Reason: "must not be below from_block"}
	}
	return reconcile.Range{Start: start, End: end}, nil
}
