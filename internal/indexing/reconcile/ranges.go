package reconcile

import (
	"fmt"
	"slices"
)

// Range is an inclusive block range.
type Range struct {
	Start uint64 `json:"start"`
	End   uint64 `json:"end"`
}

// String returns the range in "start-end" format.
func (r Range) String() string {
	return fmt.Sprintf("%d-%d", r.Start, r.End)
}

// Size returns the number of blocks in the range.
func (r Range) Size() uint64 {
	return r.End - r.Start + 1
}

// Blocks expands the range into its block numbers.
func (r Range) Blocks() []uint64 {
	out := make([]uint64, 0, r.Size())
	for n := r.Start; n <= r.End; n++ {
		out = append(out, n)
	}
	return out
}

// Split splits the range into chunks of maxSize.
func (r Range) Split(maxSize uint64) []Range {
	if maxSize == 0 || r.Size() <= maxSize {
		return []Range{r}
	}

	var chunks []Range
	current := r.Start
	for current <= r.End {
		chunkEnd := min(current+maxSize-1, r.End)
		chunks = append(chunks, Range{Start: current, End: chunkEnd})
		current = chunkEnd + 1
	}
	return chunks
}

// Overlaps checks if two ranges overlap or are adjacent.
func (r Range) Overlaps(other Range) bool {
	return r.Start <= other.End+1 && other.Start <= r.End+1
}

// Merge merges two overlapping or adjacent ranges.
func (r Range) Merge(other Range) Range {
	return Range{Start: min(r.Start, other.Start), End: max(r.End, other.End)}
}

// MergeRanges merges overlapping and adjacent ranges, sorted by start.
func MergeRanges(ranges []Range) []Range {
	if len(ranges) <= 1 {
		return ranges
	}

	sorted := slices.Clone(ranges)
	slices.SortFunc(sorted, func(a, b Range) int {
		switch {
		case a.Start < b.Start:
			return -1
		case a.Start > b.Start:
			return 1
		}
		return 0
	})

	merged := []Range{sorted[0]}
	for _, current := range sorted[1:] {
		last := &merged[len(merged)-1]
		if last.Overlaps(current) {
			*last = last.Merge(current)
		} else {
			merged = append(merged, current)
		}
	}
	return merged
}

// RangesFromBlocks collapses sorted block numbers into merged ranges.
func RangesFromBlocks(blocks []uint64) []Range {
	ranges := make([]Range, 0, len(blocks))
	for _, n := range blocks {
		ranges = append(ranges, Range{Start: n, End: n})
	}
	return MergeRanges(ranges)
}
