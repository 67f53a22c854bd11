package cli

import (
	"context"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/vietddude/chainmetrics/internal/control"
	"github.com/vietddude/chainmetrics/internal/indexing/status"
)

var (
	statusFrom   string
	statusTo     string
	statusOffset int
	statusLimit  int
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the day being ingested and the state of committed days",
	Args:  cobra.NoArgs,
	Run:   runStatus,
}

func init() {
	statusCmd.Flags().StringVar(&statusFrom, "from", "", "first date of the window (default oldest committed)")
	statusCmd.Flags().StringVar(&statusTo, "to", "", "last date of the window (default newest committed)")
	statusCmd.Flags().IntVar(&statusOffset, "offset", 0, "calendar days to skip from the start of the window")
	statusCmd.Flags().IntVar(&statusLimit, "limit", 0, "calendar days per page (default 366)")
	rootCmd.AddCommand(statusCmd)
}

type statusOutput struct {
	Processing *status.Processing `json:"processing"`
	Days       *status.DaysReport `json:"days"`
}

func runStatus(cmd *cobra.Command, args []string) {
	ctx := context.Background()
	app := openApp(ctx, control.Overrides{})
	defer app.Close()

	q := status.DaysQuery{From: statusFrom, To: statusTo, Offset: statusOffset, Limit: statusLimit}
	exitOnError(app.Chain(), showStatus(ctx, app, q, os.Stdout))
}

func showStatus(ctx context.Context, app *control.App, q status.DaysQuery, w io.Writer) error {
	processing, err := app.Inspector.Processing(ctx)
	if err != nil {
		return err
	}
	days, err := app.Inspector.Days(ctx, q)
	if err != nil {
		return err
	}
	return printJSON(w, statusOutput{Processing: processing, Days: days})
}
