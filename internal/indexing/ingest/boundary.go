package ingest

import (
	"context"
	"errors"
	"fmt"

	"github.com/vietddude/chainmetrics/internal/core/domain"
	"github.com/vietddude/chainmetrics/internal/infra/storage"
)

// SequenceComplete reports whether sorted, de-duplicated blocks form an
// unbroken run ending at lastBlock.
func SequenceComplete(blocks []uint64, lastBlock uint64) bool {
	if len(blocks) == 0 || blocks[len(blocks)-1] != lastBlock {
		return false
	}
	return blocks[len(blocks)-1]-blocks[0] == uint64(len(blocks)-1)
}

// DayState is the outcome of CloseDay.
type DayState int

const (
	// DayPending means the day is closed but blocks are still missing.
	DayPending DayState = iota
	// DayRolledUp means this call committed the day.
	DayRolledUp
	// DayCommitted means a DailyMetric already existed.
	DayCommitted
)

// CloseDay rolls date up when its index is complete up to lastBlock.
// Otherwise it records lastBlock as the day's boundary so later blocks or the
// sweeper can retry.
func CloseDay(
	ctx context.Context,
	repo *storage.MetricsRepo,
	roller Roller,
	date string,
	lastBlock uint64,
	simulateOnly bool,
) (DayState, error) {
	committed, err := repo.HasDailyMetric(ctx, date)
	if err != nil {
		return DayPending, fmt.Errorf("failed to check daily metric: %w", err)
	}
	if committed {
		return DayCommitted, nil
	}

	blocks, err := repo.DayBlocks(ctx, date)
	if err != nil {
		return DayPending, err
	}

	if !SequenceComplete(blocks, lastBlock) || roller == nil {
		if simulateOnly {
			return DayPending, nil
		}
		if err := repo.SetBoundary(ctx, date, lastBlock); err != nil {
			return DayPending, fmt.Errorf("failed to record day boundary: %w", err)
		}
		return DayPending, nil
	}

	if _, err := roller.Rollup(ctx, date, blocks); err != nil {
		var exists *domain.RollupExistsError
		if errors.As(err, &exists) {
			return DayCommitted, nil
		}
		return DayPending, err
	}
	return DayRolledUp, nil
}
