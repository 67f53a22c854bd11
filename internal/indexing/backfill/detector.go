package backfill

import (
	"context"

	"github.com/vietddude/chainmetrics/internal/indexing/reconcile"
)

// Detector turns a reconcile report into the list of blocks to fetch.
type Detector struct {
	finder MissingFinder
}

// Missing returns the blocks date is missing, ascending, with the report
// they came from. Nothing is returned when the day has no index yet. At most
// reconcile.MaxListedBlocks are returned; the rest are picked up by a later run.
func (d *Detector) Missing(ctx context.Context, date string) ([]uint64, *reconcile.Report, error) {
	report, err := d.finder.Check(ctx, date)
	if err != nil {
		return nil, nil, err
	}
	if !report.IndexFound {
		return nil, report, nil
	}
	return report.MissingBlocks, report, nil
}
