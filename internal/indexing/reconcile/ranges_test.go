package reconcile

import (
	"reflect"
	"testing"
)

func TestMergeRanges(t *testing.T) {
	tests := []struct {
		name   string
		ranges []Range
		want   []Range
	}{
		{"empty", nil, nil},
		{"adjacent", []Range{{1, 3}, {4, 6}}, []Range{{1, 6}}},
		{"overlapping unsorted", []Range{{10, 20}, {1, 5}, {4, 12}}, []Range{{1, 20}}},
		{"disjoint", []Range{{1, 2}, {5, 6}}, []Range{{1, 2}, {5, 6}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := MergeRanges(tt.ranges); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("MergeRanges = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestRange_Split(t *testing.T) {
	chunks := Range{Start: 1, End: 250}.Split(100)
	want := []Range{{1, 100}, {101, 200}, {201, 250}}
	if !reflect.DeepEqual(chunks, want) {
		t.Errorf("Split = %v", chunks)
	}
	if (Range{Start: 5, End: 5}).String() != "5-5" {
		t.Error("unexpected String")
	}
}

func TestRangesFromBlocks(t *testing.T) {
	got := RangesFromBlocks([]uint64{1, 2, 3, 7, 9, 10})
	want := []Range{{1, 3}, {7, 7}, {9, 10}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("RangesFromBlocks = %v", got)
	}
}
