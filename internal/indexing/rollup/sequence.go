package rollup

import (
	"slices"

	"github.com/vietddude/chainmetrics/internal/core/domain"
)

// normalize sorts block numbers and drops duplicates.
func normalize(blocks []uint64) []uint64 {
	out := slices.Clone(blocks)
	slices.Sort(out)
	return slices.Compact(out)
}

// sequenceGaps returns one gap for every pair of consecutive numbers that
// are not adjacent. blocks must be sorted and unique.
func sequenceGaps(blocks []uint64) []domain.SequenceGap {
	gaps := []domain.SequenceGap{}
	for i := 1; i < len(blocks); i++ {
		prev, next := blocks[i-1], blocks[i]
		if next != prev+1 {
			gaps = append(gaps, domain.SequenceGap{
				Start:   prev,
				End:     next,
				Missing: next - prev - 1,
			})
		}
	}
	return gaps
}

// median of latencies in milliseconds; an even count averages the two
// middle values with integer division.
func median(values []int64) int64 {
	if len(values) == 0 {
		return 0
	}
	sorted := slices.Clone(values)
	slices.Sort(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 1 {
		return sorted[mid]
	}
	return (sorted[mid-1] + sorted[mid]) / 2
}
