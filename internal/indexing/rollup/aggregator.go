// Package rollup aggregates the BlockMetrics of a closed day into its
// write-once DailyMetric and removes the day's transient records.
package rollup

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/ratelimit"
	"golang.org/x/sync/errgroup"

	"github.com/vietddude/chainmetrics/internal/core/domain"
	"github.com/vietddude/chainmetrics/internal/indexing/metrics"
	"github.com/vietddude/chainmetrics/internal/infra/storage"
)

const (
	defaultConcurrency = 16
	reasonMissing      = "Missing block metrics"
)

// Config holds aggregator settings.
type Config struct {
	Chain domain.Chain
	// Concurrency bounds parallel BlockMetric reads.
	Concurrency int
	// FetchRateLimit caps BlockMetric reads per second; 0 disables it.
	FetchRateLimit int
	// StrictMissingBlocks aborts the rollup when any block cannot be read.
	StrictMissingBlocks bool
	CleanupEnabled      bool
	SimulateOnly        bool
}

// Aggregator computes and commits DailyMetrics.
type Aggregator struct {
	cfg     Config
	repo    *storage.MetricsRepo
	cleaner *Cleaner
	limiter ratelimit.Limiter
	logger  *slog.Logger
	now     func() time.Time
}

// NewAggregator creates an aggregator.
func NewAggregator(cfg Config, repo *storage.MetricsRepo, cleaner *Cleaner, logger *slog.Logger) *Aggregator {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = defaultConcurrency
	}
	if logger == nil {
		logger = slog.Default()
	}

	limiter := ratelimit.NewUnlimited()
	if cfg.FetchRateLimit > 0 {
		limiter = ratelimit.New(cfg.FetchRateLimit)
	}

	return &Aggregator{
		cfg:     cfg,
		repo:    repo,
		cleaner: cleaner,
		limiter: limiter,
		logger:  logger.With("component", "rollup", "chain", cfg.Chain.Label()),
		now:     time.Now,
	}
}

// RollupDate rolls date up from its stored block index.
func (a *Aggregator) RollupDate(ctx context.Context, date string) (*domain.DailyMetric, error) {
	if _, err := domain.ParseDate(date); err != nil {
		return nil, err
	}
	blocks, err := a.repo.DayBlocks(ctx, date)
	if err != nil {
		return nil, err
	}
	return a.Rollup(ctx, date, blocks)
}

// Rollup aggregates blockNumbers into the DailyMetric of date and commits it
// unless one already exists.
func (a *Aggregator) Rollup(ctx context.Context, date string, blockNumbers []uint64) (*domain.DailyMetric, error) {
	start := time.Now()
	dm, err := a.rollup(ctx, date, blockNumbers)

	result := "success"
	var exists *domain.RollupExistsError
	switch {
	case errors.As(err, &exists):
		result = "exists"
	case err != nil:
		result = "error"
	case a.cfg.SimulateOnly:
		result = "simulated"
	}
	metrics.RollupsTotal.WithLabelValues(a.cfg.Chain.Label(), result).Inc()
	metrics.RollupDuration.WithLabelValues(a.cfg.Chain.Label()).Observe(time.Since(start).Seconds())
	return dm, err
}

func (a *Aggregator) rollup(ctx context.Context, date string, blockNumbers []uint64) (*domain.DailyMetric, error) {
	if _, err := domain.ParseDate(date); err != nil {
		return nil, err
	}

	existing, err := a.repo.DailyMetric(ctx, date)
	if err == nil {
		return nil, &domain.RollupExistsError{Date: date, Existing: existing}
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("failed to check existing rollup: %w", err)
	}

	blocks := normalize(blockNumbers)
	if len(blocks) == 0 {
		return nil, fmt.Errorf("%w: %s", domain.ErrDayIndexMissing, date)
	}

	fetched, err := a.fetch(ctx, blocks)
	if err != nil {
		return nil, err
	}

	failed := []domain.FailedBlock{}
	for i, f := range fetched {
		if f.metric == nil {
			failed = append(failed, domain.FailedBlock{Block: blocks[i], Reason: f.reason})
		}
	}
	if len(failed) > 0 {
		metrics.RollupFailedBlocks.WithLabelValues(a.cfg.Chain.Label()).Add(float64(len(failed)))
		if a.cfg.StrictMissingBlocks {
			return nil, &domain.MissingBlocksError{Date: date, Failed: failed}
		}
		a.logger.Warn("Rolling up with missing block metrics", "date", date, "failed", len(failed))
	}

	dm := a.aggregate(date, blocks, fetched, failed)
	dm.Metrics.NumActiveAddresses = a.activeAddresses(ctx, date)

	if a.cfg.SimulateOnly {
		a.logger.Info("Simulated rollup", "date", date, "blocks", dm.Metadata.NumBlocks)
		return dm, nil
	}

	created, err := a.repo.CreateDailyMetric(ctx, dm)
	if err != nil {
		return nil, err
	}
	if !created {
		winner, err := a.repo.DailyMetric(ctx, date)
		if err != nil {
			return nil, fmt.Errorf("failed to load concurrent rollup: %w", err)
		}
		return nil, &domain.RollupExistsError{Date: date, Existing: winner}
	}

	a.logger.Info("Daily metrics committed",
		"date", date,
		"blocks", dm.Metadata.NumBlocks,
		"processed", dm.Metadata.NumProcessedBlocks,
		"failed", dm.Metadata.NumFailedBlocks,
		"complete", dm.Metadata.IsComplete,
		"rollup_id", dm.Metadata.RollupID,
	)

	if a.cfg.CleanupEnabled && a.cleaner != nil {
		if err := a.cleaner.Cleanup(ctx, date, blocks); err != nil {
			a.logger.Error("Cleanup failed, leaving it to the sweeper", "date", date, "error", err)
		}
	}
	return dm, nil
}

type fetchResult struct {
	metric *domain.BlockMetric
	reason string
}

// fetch reads every BlockMetric into its own slot. Store failures abort;
// missing or unreadable records are reported per slot.
func (a *Aggregator) fetch(ctx context.Context, blocks []uint64) ([]fetchResult, error) {
	results := make([]fetchResult, len(blocks))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(a.cfg.Concurrency)

	for i, n := range blocks {
		g.Go(func() error {
			a.limiter.Take()
			m, err := a.repo.BlockMetric(ctx, n)
			switch {
			case err == nil:
				results[i].metric = m
			case errors.Is(err, storage.ErrNotFound):
				results[i].reason = reasonMissing
			case errors.Is(err, storage.ErrMalformedRecord):
				results[i].reason = err.Error()
			default:
				return fmt.Errorf("failed to read block metric %d: %w", n, err)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func (a *Aggregator) aggregate(
	date string,
	blocks []uint64,
	fetched []fetchResult,
	failed []domain.FailedBlock,
) *domain.DailyMetric {
	var (
		numTx, deployments, processed int
		totalFees                     = decimal.Zero
		first, last                   *domain.BlockMetric
		latencies                     []int64
	)

	// blocks is ascending, so the first and last fetched metrics are the
	// numeric min and max.
	for i, f := range fetched {
		m := f.metric
		if m == nil {
			continue
		}
		if m.BlockNumber == 0 {
			m.BlockNumber = blocks[i]
		}
		if first == nil {
			first = m
		}
		last = m

		numTx += m.NumTransactions
		totalFees = totalFees.Add(m.TotalFees)
		deployments += m.NumContractDeployments
		processed++

		if lat, ok := latencyMillis(m); ok {
			latencies = append(latencies, lat)
		}
	}

	gaps := sequenceGaps(blocks)
	dm := &domain.DailyMetric{
		Metrics: domain.DailyMetrics{
			NumTransactions:            numTx,
			AvgTxFee:                   a.divide(totalFees, numTx),
			TotalFees:                  totalFees,
			AvgBlockFees:               a.divide(totalFees, processed),
			NumContractDeployments:     deployments,
			ContractDeploymentCoverage: domain.CoverageUnknown,
		},
		Metadata: domain.DailyMetadata{
			Date:                      date,
			NumBlocks:                 len(blocks),
			NumProcessedBlocks:        processed,
			NumFailedBlocks:           len(failed),
			FailedBlocks:              failed,
			IsSequential:              len(gaps) == 0,
			SequenceErrors:            gaps,
			IsComplete:                len(failed) == 0 && len(gaps) == 0,
			MedianBlockProcessingTime: median(latencies),
			LastUpdated:               domain.FormatTimestamp(a.now()),
			CleanupPerformed:          !a.cfg.SimulateOnly && a.cfg.CleanupEnabled,
			RollupID:                  uuid.New().String(),
		},
	}

	if first != nil {
		dm.Metadata.FirstBlock = first.BlockNumber
		dm.Metadata.FirstBlockTimestamp = first.Timestamp
		dm.Metadata.LastBlock = last.BlockNumber
		dm.Metadata.LastBlockTimestamp = last.Timestamp
		if first.ContractDeploymentCoverage != "" {
			dm.Metrics.ContractDeploymentCoverage = first.ContractDeploymentCoverage
		}
		if last.BlockNumber > first.BlockNumber {
			elapsed := float64(int64(last.Timestamp) - int64(first.Timestamp))
			dm.Metrics.AvgBlockTime = elapsed / float64(last.BlockNumber-first.BlockNumber)
		}
	}
	return dm
}

func (a *Aggregator) divide(total decimal.Decimal, n int) decimal.Decimal {
	if n == 0 {
		return decimal.Zero
	}
	return total.DivRound(decimal.NewFromInt(int64(n)), a.cfg.Chain.Decimals)
}

func (a *Aggregator) activeAddresses(ctx context.Context, date string) int {
	n, err := a.repo.CountDayAddresses(ctx, date)
	if err != nil {
		a.logger.Warn("Failed to get active addresses", "date", date, "error", err)
		return 0
	}
	return n
}

// latencyMillis is the delay between block time and BlockMetric creation.
func latencyMillis(m *domain.BlockMetric) (int64, bool) {
	if m.LastUpdated == "" || m.Timestamp == 0 || m.Timestamp > domain.MaxBlockTimestamp {
		return 0, false
	}
	processedAt, err := domain.ParseTimestamp(m.LastUpdated)
	if err != nil {
		return 0, false
	}
	return processedAt.UnixMilli() - int64(m.Timestamp)*1000, true
}
