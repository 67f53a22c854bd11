// Package backfill re-fetches blocks the stream never delivered and feeds
// them through the ingestor.
//
// # Usage
//
//	detector := backfill.NewDetector(reconciler)
//	processor := backfill.NewProcessor(backfill.DefaultConfig(), adapter, ingestor, logger)
//
//	missing, _, err := detector.Missing(ctx, "2024-10-09")
//	summary, err := processor.Backfill(ctx, missing)
package backfill

import (
	"context"

	"github.com/vietddude/chainmetrics/internal/core/domain"
	"github.com/vietddude/chainmetrics/internal/indexing/ingest"
	"github.com/vietddude/chainmetrics/internal/indexing/reconcile"
)

// BlockIngestor records a single delivered block.
type BlockIngestor interface {
	Ingest(ctx context.Context, event *domain.StreamEvent) (*ingest.Result, error)
}

// MissingFinder reports the blocks a day is missing.
type MissingFinder interface {
	Check(ctx context.Context, date string) (*reconcile.Report, error)
}

// NewDetector creates a new gap detector.
func NewDetector(finder MissingFinder) *Detector {
	return &Detector{finder: finder}
}
