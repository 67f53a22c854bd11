package cli

import (
	"context"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/vietddude/chainmetrics/internal/control"
)

var (
	rollupSimulate  bool
	rollupStrict    bool
	rollupNoCleanup bool
)

var rollupCmd = &cobra.Command{
	Use:   "rollup [date]",
	Short: "Roll a UTC date (YYYY-MM-DD) up into its daily metric",
	Args:  cobra.ExactArgs(1),
	Run:   runRollup,
}

var cleanupCmd = &cobra.Command{
	Use:   "cleanup [date]",
	Short: "Delete the transient records of a committed date",
	Args:  cobra.ExactArgs(1),
	Run:   runCleanup,
}

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Run one sweeper pass over every open date",
	Args:  cobra.NoArgs,
	Run:   runSweep,
}

func init() {
	rollupCmd.Flags().BoolVar(&rollupSimulate, "simulate", false, "compute without writing or cleaning up")
	rollupCmd.Flags().BoolVar(&rollupStrict, "strict", false, "fail when any block metric is missing")
	rollupCmd.Flags().BoolVar(&rollupNoCleanup, "no-cleanup", false, "keep transient records after the rollup")
	rootCmd.AddCommand(rollupCmd, cleanupCmd, sweepCmd)
}

func runRollup(cmd *cobra.Command, args []string) {
	ctx := context.Background()
	app := openApp(ctx, control.Overrides{
		SimulateOnly:        rollupSimulate,
		StrictMissingBlocks: rollupStrict,
		DisableCleanup:      rollupNoCleanup,
	})
	defer app.Close()

	exitOnError(app.Chain(), rollupDate(ctx, app, args[0], os.Stdout))
}

func rollupDate(ctx context.Context, app *control.App, date string, w io.Writer) error {
	dm, err := app.Aggregator.RollupDate(ctx, date)
	if err != nil {
		return err
	}
	return printJSON(w, dm)
}

func runCleanup(cmd *cobra.Command, args []string) {
	ctx := context.Background()
	app := openApp(ctx, control.Overrides{})
	defer app.Close()

	exitOnError(app.Chain(), cleanupDate(ctx, app, args[0], os.Stdout))
}

func cleanupDate(ctx context.Context, app *control.App, date string, w io.Writer) error {
	if err := app.Cleaner.CleanupDate(ctx, date); err != nil {
		return err
	}
	return printJSON(w, map[string]any{"date": date, "cleanupPerformed": true})
}

func runSweep(cmd *cobra.Command, args []string) {
	ctx := context.Background()
	app := openApp(ctx, control.Overrides{})
	defer app.Close()

	exitOnError(app.Chain(), printJSON(os.Stdout, app.Sweeper.Sweep(ctx)))
}
