// Package reconcile finds blocks a day is missing relative to the committed
// summaries of its neighbouring days.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"

	"github.com/vietddude/chainmetrics/internal/core/domain"
	"github.com/vietddude/chainmetrics/internal/indexing/metrics"
	"github.com/vietddude/chainmetrics/internal/infra/storage"
)

// Boundaries are the committed edges surrounding a day.
type Boundaries struct {
	PrevDayLastBlock  uint64 `json:"prevDayLastBlock"`
	NextDayFirstBlock uint64 `json:"nextDayFirstBlock"`
}

// ProcessingState shows which transient records of the day still exist.
type ProcessingState struct {
	DailyBlocksPresent    bool     `json:"dailyBlocksPresent"`
	DailyAddressesPresent bool     `json:"dailyAddressesPresent"`
	BlockMetricsPresent   []uint64 `json:"temporaryBlockMetricsPresent"`
}

// Validation summarises the observed sequence against the expected edges.
type Validation struct {
	HasGaps       bool   `json:"hasGaps"`
	FirstBlock    uint64 `json:"firstBlock"`
	LastBlock     uint64 `json:"lastBlock"`
	ExpectedFirst uint64 `json:"expectedFirst"`
	ExpectedLast  uint64 `json:"expectedLast"`
}

// Report is the result of a reconcile check.
type Report struct {
	Date       string     `json:"date"`
	Boundaries Boundaries `json:"boundaries"`
	// MissingDailyMetric is true while the day itself is not committed.
	MissingDailyMetric bool     `json:"missingDailyMetrics"`
	IndexFound         bool     `json:"indexFound"`
	MissingBlocks      []uint64 `json:"missingBlocks"`
	// MissingBlocksTruncated is set when MissingBlocks stops at MaxListedBlocks.
	MissingBlocksTruncated bool             `json:"missingBlocksTruncated,omitempty"`
	MissingRanges          []Range          `json:"missingRanges"`
	TotalMissing           int              `json:"totalMissing"`
	ProcessingState        *ProcessingState `json:"processingState,omitempty"`
	Validation             *Validation      `json:"sequenceValidation,omitempty"`
}

// MaxListedBlocks caps Report.MissingBlocks. MissingRanges and TotalMissing
// always cover every missing block.
const MaxListedBlocks = 10000

// Reconciler runs on-demand gap analysis for a day.
type Reconciler struct {
	repo   *storage.MetricsRepo
	chain  domain.Chain
	logger *slog.Logger
}

// NewReconciler creates a reconciler.
func NewReconciler(repo *storage.MetricsRepo, chain domain.Chain, logger *slog.Logger) *Reconciler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reconciler{
		repo:   repo,
		chain:  chain,
		logger: logger.With("component", "reconcile", "chain", chain.Label()),
	}
}

// Check compares the block index of date with the last block of the
// previous day and the first block of the next day.
func (r *Reconciler) Check(ctx context.Context, date string) (*Report, error) {
	prevDate, err := domain.AddDays(date, -1)
	if err != nil {
		return nil, err
	}
	nextDate, _ := domain.AddDays(date, 1)

	prev, err := r.dailyMetric(ctx, prevDate)
	if err != nil {
		return nil, err
	}
	next, err := r.dailyMetric(ctx, nextDate)
	if err != nil {
		return nil, err
	}

	var missingEdges []string
	if prev == nil || prev.Metadata.LastBlock == 0 {
		missingEdges = append(missingEdges, "prevDay")
	}
	if next == nil || next.Metadata.FirstBlock == 0 {
		missingEdges = append(missingEdges, "nextDay")
	}
	if len(missingEdges) > 0 {
		return nil, &domain.BoundaryError{Date: date, Missing: missingEdges}
	}

	committed, err := r.repo.HasDailyMetric(ctx, date)
	if err != nil {
		return nil, err
	}

	report := &Report{
		Date: date,
		Boundaries: Boundaries{
			PrevDayLastBlock:  prev.Metadata.LastBlock,
			NextDayFirstBlock: next.Metadata.FirstBlock,
		},
		MissingDailyMetric: !committed,
		MissingBlocks:      []uint64{},
		MissingRanges:      []Range{},
	}

	blocks, err := r.repo.DayBlocks(ctx, date)
	if err != nil {
		return nil, err
	}
	if len(blocks) == 0 {
		r.logger.Info("Daily blocks list not found", "date", date)
		return report, nil
	}
	report.IndexFound = true

	report.MissingRanges = missingRanges(blocks, report.Boundaries)
	report.TotalMissing = totalSize(report.MissingRanges)
	report.MissingBlocks, report.MissingBlocksTruncated = listBlocks(report.MissingRanges, MaxListedBlocks)
	report.Validation = validate(blocks, report.Boundaries)

	state, err := r.processingState(ctx, date, blocks)
	if err != nil {
		return nil, err
	}
	report.ProcessingState = state

	metrics.ReconcileMissingBlocks.WithLabelValues(r.chain.Label()).Set(float64(report.TotalMissing))
	r.logger.Info("Reconcile finished",
		"date", date,
		"missing", report.TotalMissing,
		"ranges", len(report.MissingRanges),
	)
	return report, nil
}

func (r *Reconciler) dailyMetric(ctx context.Context, date string) (*domain.DailyMetric, error) {
	dm, err := r.repo.DailyMetric(ctx, date)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load daily metric %s: %w", date, err)
	}
	return dm, nil
}

func (r *Reconciler) processingState(ctx context.Context, date string, blocks []uint64) (*ProcessingState, error) {
	addresses, err := r.repo.CountDayAddresses(ctx, date)
	if err != nil {
		return nil, fmt.Errorf("failed to count addresses: %w", err)
	}
	stored, err := r.repo.StoredBlockMetrics(ctx)
	if err != nil {
		return nil, err
	}

	present := []uint64{}
	for _, n := range blocks {
		if _, ok := stored[n]; ok {
			present = append(present, n)
		}
	}
	return &ProcessingState{
		DailyBlocksPresent:    len(blocks) > 0,
		DailyAddressesPresent: addresses > 0,
		BlockMetricsPresent:   present,
	}, nil
}

// missingRanges returns, in ascending order, the span between the previous
// day's last block and the first indexed block, the gaps inside the index,
// and the span between the last indexed block and the next day's first block.
func missingRanges(blocks []uint64, b Boundaries) []Range {
	ranges := []Range{}
	first, last := blocks[0], blocks[len(blocks)-1]

	if first > b.PrevDayLastBlock+1 {
		ranges = append(ranges, Range{Start: b.PrevDayLastBlock + 1, End: first - 1})
	}
	for i := 1; i < len(blocks); i++ {
		if blocks[i] > blocks[i-1]+1 {
			ranges = append(ranges, Range{Start: blocks[i-1] + 1, End: blocks[i] - 1})
		}
	}
	if b.NextDayFirstBlock > last+1 {
		ranges = append(ranges, Range{Start: last + 1, End: b.NextDayFirstBlock - 1})
	}
	return ranges
}

func totalSize(ranges []Range) int {
	var total uint64
	for _, r := range ranges {
		total += r.Size()
	}
	return int(min(total, math.MaxInt))
}

// listBlocks expands ranges into at most limit block numbers.
func listBlocks(ranges []Range, limit int) ([]uint64, bool) {
	out := []uint64{}
	for _, r := range ranges {
		for n := r.Start; ; n++ {
			if len(out) == limit {
				return out, true
			}
			out = append(out, n)
			if n == r.End {
				break
			}
		}
	}
	return out, false
}

func validate(blocks []uint64, b Boundaries) *Validation {
	v := &Validation{
		FirstBlock:    blocks[0],
		LastBlock:     blocks[len(blocks)-1],
		ExpectedFirst: b.PrevDayLastBlock + 1,
	}
	if b.NextDayFirstBlock > 0 {
		v.ExpectedLast = b.NextDayFirstBlock - 1
	}
	for i := 1; i < len(blocks); i++ {
		if blocks[i] != blocks[i-1]+1 {
			v.HasGaps = true
			break
		}
	}
	return v
}
