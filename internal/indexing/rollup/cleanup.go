package rollup

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/vietddude/chainmetrics/internal/core/domain"
	"github.com/vietddude/chainmetrics/internal/indexing/metrics"
	"github.com/vietddude/chainmetrics/internal/infra/storage"
)

const cleanupChunk = 1000

var (
	// ErrNotCommitted is returned when cleanup is requested for a day
	// without a stored DailyMetric.
	ErrNotCommitted = errors.New("daily metric not committed")
)

// Cleaner removes the transient records of committed days.
type Cleaner struct {
	repo   *storage.MetricsRepo
	chain  domain.Chain
	logger *slog.Logger
}

// NewCleaner creates a cleaner.
func NewCleaner(repo *storage.MetricsRepo, chain domain.Chain, logger *slog.Logger) *Cleaner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Cleaner{
		repo:   repo,
		chain:  chain,
		logger: logger.With("component", "cleanup", "chain", chain.Label()),
	}
}

// CleanupDate cleans date using its stored block index.
func (c *Cleaner) CleanupDate(ctx context.Context, date string) error {
	blocks, err := c.repo.DayBlocks(ctx, date)
	if err != nil {
		return err
	}
	return c.Cleanup(ctx, date, blocks)
}

// Cleanup deletes the day index, address index, boundary and the BlockMetrics
// of blockNumbers. It refuses to run before the day is committed.
func (c *Cleaner) Cleanup(ctx context.Context, date string, blockNumbers []uint64) error {
	if _, err := domain.ParseDate(date); err != nil {
		return err
	}

	committed, err := c.repo.HasDailyMetric(ctx, date)
	if err != nil {
		return fmt.Errorf("failed to check daily metric: %w", err)
	}
	if !committed {
		return fmt.Errorf("%w: %s", ErrNotCommitted, date)
	}

	// The day index goes last so an interrupted cleanup is still visible
	// to the sweeper.
	keys := c.repo.Keys()
	toDelete := make([]string, 0, len(blockNumbers)+3)
	for _, n := range blockNumbers {
		toDelete = append(toDelete, keys.BlockMetric(n))
	}
	toDelete = append(toDelete,
		keys.DailyAddresses(date),
		keys.DailyBoundary(date),
		keys.DailyBlocks(date),
	)

	store := c.repo.Store()
	for start := 0; start < len(toDelete); start += cleanupChunk {
		end := min(start+cleanupChunk, len(toDelete))
		if err := store.BulkDelete(ctx, toDelete[start:end]); err != nil {
			metrics.CleanupTotal.WithLabelValues(c.chain.Label(), "error").Inc()
			return fmt.Errorf("failed to delete transient records of %s: %w", date, err)
		}
	}

	metrics.CleanupTotal.WithLabelValues(c.chain.Label(), "success").Inc()
	c.logger.Info("Cleaned up day", "date", date, "keys", len(toDelete))
	return nil
}
