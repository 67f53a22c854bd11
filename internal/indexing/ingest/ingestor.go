// Package ingest turns stream deliveries into BlockMetrics and detects when
// a calendar day is closed so it can be rolled up.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/vietddude/chainmetrics/internal/core/domain"
	"github.com/vietddude/chainmetrics/internal/indexing/metrics"
	"github.com/vietddude/chainmetrics/internal/infra/storage"
)

// Roller commits the DailyMetric of a closed day.
type Roller interface {
	Rollup(ctx context.Context, date string, blockNumbers []uint64) (*domain.DailyMetric, error)
}

// Config holds ingestor settings.
type Config struct {
	Chain        domain.Chain
	SimulateOnly bool
}

// Result reports what a single Ingest call did.
type Result struct {
	BlockNumber uint64              `json:"blockNumber"`
	Date        string              `json:"date"`
	Duplicate   bool                `json:"duplicate"`
	FeeErrors   int                 `json:"feeErrors"`
	Metric      *domain.BlockMetric `json:"metric,omitempty"`
	// RolledUp lists dates committed as a consequence of this block.
	RolledUp []string `json:"rolledUp,omitempty"`
	// PendingBoundary is set when a closed day is still waiting for blocks.
	PendingBoundary string `json:"pendingBoundary,omitempty"`
}

// Ingestor records one block per call and triggers day rollups.
type Ingestor struct {
	cfg    Config
	repo   *storage.MetricsRepo
	roller Roller
	logger *slog.Logger
	now    func() time.Time
}

// NewIngestor creates an ingestor. roller may be nil, in which case closed
// days are only recorded as pending boundaries.
func NewIngestor(cfg Config, repo *storage.MetricsRepo, roller Roller, logger *slog.Logger) *Ingestor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Ingestor{
		cfg:    cfg,
		repo:   repo,
		roller: roller,
		logger: logger.With("component", "ingestor", "chain", cfg.Chain.Label()),
		now:    time.Now,
	}
}

// Ingest processes the first block of event.
func (i *Ingestor) Ingest(ctx context.Context, event *domain.StreamEvent) (*Result, error) {
	data, number, ts, err := i.validate(event)
	if err != nil {
		return nil, err
	}
	date := domain.DateOf(ts)
	res := &Result{BlockNumber: number, Date: date}

	seen, err := i.repo.HasDayBlock(ctx, date, number)
	if err != nil {
		return nil, fmt.Errorf("failed to check block index: %w", err)
	}
	if seen {
		metrics.DuplicateDeliveries.WithLabelValues(i.cfg.Chain.Label()).Inc()
		i.logger.Debug("Block already processed", "block", number, "date", date)
		res.Duplicate = true
		return res, nil
	}

	// The index of a committed day is deleted by cleanup, so a redelivery
	// has to be caught by the DailyMetric itself.
	committed, err := i.repo.HasDailyMetric(ctx, date)
	if err != nil {
		return nil, fmt.Errorf("failed to check daily metric: %w", err)
	}
	if committed {
		metrics.DuplicateDeliveries.WithLabelValues(i.cfg.Chain.Label()).Inc()
		i.logger.Debug("Block belongs to a committed day", "block", number, "date", date)
		res.Duplicate = true
		return res, nil
	}

	metric, senders, feeErrs := i.buildMetric(data, number, ts, date)
	res.Metric = metric
	res.FeeErrors = len(feeErrs)

	if !i.cfg.SimulateOnly {
		added, err := i.record(ctx, metric, senders)
		if err != nil {
			return nil, err
		}
		if !added {
			// A concurrent delivery of the same block won the index append.
			metrics.DuplicateDeliveries.WithLabelValues(i.cfg.Chain.Label()).Inc()
			res.Duplicate = true
			return res, nil
		}
	}

	metrics.BlocksIngested.WithLabelValues(i.cfg.Chain.Label()).Inc()
	metrics.LatestIngestedBlock.WithLabelValues(i.cfg.Chain.Label()).Set(float64(number))
	i.logger.Debug("Block ingested",
		"block", number,
		"date", date,
		"txs", metric.NumTransactions,
		"fees", metric.TotalFees.String(),
		"deployments", metric.NumContractDeployments,
	)

	i.detectBoundaries(ctx, res)
	return res, nil
}

func (i *Ingestor) validate(event *domain.StreamEvent) (*domain.BlockData, uint64, uint64, error) {
	if event == nil {
		return nil, 0, 0, &domain.ValidationError{Field: "body", Reason: "empty event"}
	}
	if ds := event.Metadata.Dataset; ds != "" && ds != i.cfg.Chain.ExpectedDataset() {
		return nil, 0, 0, &domain.ValidationError{
			Field:  "metadata.dataset",
			Reason: fmt.Sprintf("unexpected dataset %q, expected %s", ds, i.cfg.Chain.ExpectedDataset()),
		}
	}
	if len(event.Data) == 0 || event.Data[0].Block == nil {
		return nil, 0, 0, &domain.ValidationError{Field: "data", Reason: "no block in payload"}
	}

	data := &event.Data[0]
	number, err := data.Block.BlockNumber()
	if err != nil {
		return nil, 0, 0, &domain.ValidationError{Field: "block.number", Reason: err.Error()}
	}
	ts, err := data.Block.BlockTimestamp()
	if err != nil {
		return nil, 0, 0, &domain.ValidationError{Field: "block.timestamp", Reason: err.Error()}
	}
	if ts > domain.MaxBlockTimestamp {
		return nil, 0, 0, &domain.ValidationError{
			Field:  "block.timestamp",
			Reason: fmt.Sprintf("timestamp %d is past year 9999", ts),
		}
	}
	return data, number, ts, nil
}

func (i *Ingestor) buildMetric(data *domain.BlockData, number, ts uint64, date string) (*domain.BlockMetric, []string, []*FeeError) {
	wei, feeErrs := blockFees(data.Block, data.Receipts)
	for _, fe := range feeErrs {
		metrics.FeeErrors.WithLabelValues(i.cfg.Chain.Label()).Inc()
		i.logger.Error("Error calculating fees", "block", number, "tx", fe.TxHash, "error", fe.Err)
	}

	deployments, coverage := countDeployments(data, i.cfg.Chain.HasDebugTrace)

	return &domain.BlockMetric{
		BlockNumber:                number,
		Timestamp:                  ts,
		Date:                       date,
		NumTransactions:            len(data.Block.Transactions),
		TotalFees:                  toDisplayUnits(wei, i.cfg.Chain.Decimals),
		NumContractDeployments:     deployments,
		ContractDeploymentCoverage: coverage,
		LastUpdated:                domain.FormatTimestamp(i.now()),
	}, activeSenders(data.Block), feeErrs
}

// record writes addresses, the BlockMetric and finally the index entry, so a
// block is only visible in the index once its metric exists.
func (i *Ingestor) record(ctx context.Context, m *domain.BlockMetric, senders []string) (bool, error) {
	if _, err := i.repo.AddDayAddresses(ctx, m.Date, senders); err != nil {
		return false, err
	}
	if _, err := i.repo.CreateBlockMetric(ctx, m); err != nil {
		return false, err
	}
	return i.repo.AddDayBlock(ctx, m.Date, m.BlockNumber)
}

// detectBoundaries closes the previous day, the current day, or a pending
// day depending on which neighbours are already known. Failures are logged;
// the sweeper retries recorded boundaries.
func (i *Ingestor) detectBoundaries(ctx context.Context, res *Result) {
	n, date := res.BlockNumber, res.Date

	if n > 0 {
		if prev := i.neighbour(ctx, n-1); prev != nil && prev.Date < date {
			i.closeDay(ctx, res, prev.Date, n-1)
		}
	}

	if next := i.neighbour(ctx, n+1); next != nil && next.Date > date {
		i.closeDay(ctx, res, date, n)
		return
	}

	last, ok, err := i.repo.Boundary(ctx, date)
	if err != nil {
		i.logger.Warn("Failed to read day boundary", "date", date, "error", err)
		return
	}
	if ok {
		i.closeDay(ctx, res, date, last)
	}
}

func (i *Ingestor) neighbour(ctx context.Context, n uint64) *domain.BlockMetric {
	m, err := i.repo.BlockMetric(ctx, n)
	if errors.Is(err, storage.ErrNotFound) {
		return nil
	}
	if err != nil {
		i.logger.Warn("Failed to load neighbouring block metric", "block", n, "error", err)
		return nil
	}
	return m
}

func (i *Ingestor) closeDay(ctx context.Context, res *Result, date string, lastBlock uint64) {
	state, err := CloseDay(ctx, i.repo, i.roller, date, lastBlock, i.cfg.SimulateOnly)
	if err != nil {
		i.logger.Error("Failed to close day", "date", date, "last_block", lastBlock, "error", err)
		return
	}
	switch state {
	case DayRolledUp:
		res.RolledUp = append(res.RolledUp, date)
		i.logger.Info("Day rolled up", "date", date, "last_block", lastBlock)
	case DayPending:
		res.PendingBoundary = date
		i.logger.Info("Day boundary pending", "date", date, "last_block", lastBlock)
	}
}
