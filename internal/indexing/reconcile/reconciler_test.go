package reconcile

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/vietddude/chainmetrics/internal/core/domain"
	"github.com/vietddude/chainmetrics/internal/infra/storage"
	"github.com/vietddude/chainmetrics/internal/infra/storage/memory"
)

var base = domain.Chain{Name: "BASE", Decimals: 18}

func commit(t *testing.T, repo *storage.MetricsRepo, date string, first, last uint64) {
	t.Helper()
	_, err := repo.CreateDailyMetric(context.Background(), &domain.DailyMetric{
		Metadata: domain.DailyMetadata{Date: date, FirstBlock: first, LastBlock: last},
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestReconciler_FindsMissingBlock(t *testing.T) {
	ctx := context.Background()
	repo := storage.NewMetricsRepo(memory.NewMemoryStorage(), base)

	commit(t, repo, "2024-10-08", 1, 999)
	commit(t, repo, "2024-10-10", 2000, 3000)
	for n := uint64(1000); n <= 1999; n++ {
		if n == 1501 {
			continue
		}
		if _, err := repo.AddDayBlock(ctx, "2024-10-09", n); err != nil {
			t.Fatal(err)
		}
	}
	_, _ = repo.CreateBlockMetric(ctx, &domain.BlockMetric{BlockNumber: 1000})
	_, _ = repo.AddDayAddresses(ctx, "2024-10-09", []string{"0xa"})

	report, err := NewReconciler(repo, base, nil).Check(ctx, "2024-10-09")
	if err != nil {
		t.Fatalf("Check failed: %v", err)
	}

	if !report.IndexFound || !report.MissingDailyMetric {
		t.Errorf("unexpected flags %+v", report)
	}
	if !reflect.DeepEqual(report.MissingBlocks, []uint64{1501}) || report.TotalMissing != 1 {
		t.Errorf("expected [1501], got %v", report.MissingBlocks)
	}
	if !reflect.DeepEqual(report.MissingRanges, []Range{{Start: 1501, End: 1501}}) {
		t.Errorf("unexpected ranges %v", report.MissingRanges)
	}
	if report.Boundaries.PrevDayLastBlock != 999 || report.Boundaries.NextDayFirstBlock != 2000 {
		t.Errorf("unexpected boundaries %+v", report.Boundaries)
	}

	v := report.Validation
	if !v.HasGaps || v.FirstBlock != 1000 || v.LastBlock != 1999 || v.ExpectedFirst != 1000 || v.ExpectedLast != 1999 {
		t.Errorf("unexpected validation %+v", v)
	}

	ps := report.ProcessingState
	if !ps.DailyBlocksPresent || !ps.DailyAddressesPresent || !reflect.DeepEqual(ps.BlockMetricsPresent, []uint64{1000}) {
		t.Errorf("unexpected processing state %+v", ps)
	}
}

func TestReconciler_EdgeGaps(t *testing.T) {
	ctx := context.Background()
	repo := storage.NewMetricsRepo(memory.NewMemoryStorage(), base)

	commit(t, repo, "2024-10-08", 1, 99)
	commit(t, repo, "2024-10-10", 110, 200)
	for _, n := range []uint64{102, 103, 105, 107} {
		_, _ = repo.AddDayBlock(ctx, "2024-10-09", n)
	}

	report, err := NewReconciler(repo, base, nil).Check(ctx, "2024-10-09")
	if err != nil {
		t.Fatal(err)
	}

	want := []uint64{100, 101, 104, 106, 108, 109}
	if !reflect.DeepEqual(report.MissingBlocks, want) {
		t.Errorf("expected %v, got %v", want, report.MissingBlocks)
	}
	wantRanges := []Range{{100, 101}, {104, 104}, {106, 106}, {108, 109}}
	if !reflect.DeepEqual(report.MissingRanges, wantRanges) {
		t.Errorf("expected %v, got %v", wantRanges, report.MissingRanges)
	}
}

func TestReconciler_FarNextDayIsReportedAsRange(t *testing.T) {
	ctx := context.Background()
	repo := storage.NewMetricsRepo(memory.NewMemoryStorage(), base)

	commit(t, repo, "2024-10-08", 1, 99)
	commit(t, repo, "2024-10-10", 5_000_000_000, 5_000_000_100)
	for _, n := range []uint64{100, 102} {
		_, _ = repo.AddDayBlock(ctx, "2024-10-09", n)
	}

	report, err := NewReconciler(repo, base, nil).Check(ctx, "2024-10-09")
	if err != nil {
		t.Fatal(err)
	}

	wantRanges := []Range{{101, 101}, {103, 4_999_999_999}}
	if !reflect.DeepEqual(report.MissingRanges, wantRanges) {
		t.Errorf("expected %v, got %v", wantRanges, report.MissingRanges)
	}
	if report.TotalMissing != 1+4_999_999_897 {
		t.Errorf("unexpected total %d", report.TotalMissing)
	}
	if len(report.MissingBlocks) != MaxListedBlocks || !report.MissingBlocksTruncated {
		t.Fatalf("expected %d listed blocks and truncation, got %d %v",
			MaxListedBlocks, len(report.MissingBlocks), report.MissingBlocksTruncated)
	}
	if report.MissingBlocks[0] != 101 || report.MissingBlocks[1] != 103 {
		t.Errorf("listed blocks must be ascending from the first gap, got %v", report.MissingBlocks[:2])
	}
}

func TestListBlocks(t *testing.T) {
	ranges := []Range{{1, 2}, {5, 5}, {9, 10}}

	got, truncated := listBlocks(ranges, 10)
	if !reflect.DeepEqual(got, []uint64{1, 2, 5, 9, 10}) || truncated {
		t.Errorf("listBlocks = %v, %v", got, truncated)
	}

	got, truncated = listBlocks(ranges, 3)
	if !reflect.DeepEqual(got, []uint64{1, 2, 5}) || !truncated {
		t.Errorf("listBlocks capped = %v, %v", got, truncated)
	}

	got, truncated = listBlocks([]Range{{^uint64(0), ^uint64(0)}}, 10)
	if !reflect.DeepEqual(got, []uint64{^uint64(0)}) || truncated {
		t.Errorf("listBlocks at max uint64 = %v, %v", got, truncated)
	}
}

func TestReconciler_MissingBoundaries(t *testing.T) {
	ctx := context.Background()
	repo := storage.NewMetricsRepo(memory.NewMemoryStorage(), base)
	commit(t, repo, "2024-10-10", 2000, 3000)

	_, err := NewReconciler(repo, base, nil).Check(ctx, "2024-10-09")
	var berr *domain.BoundaryError
	if !errors.As(err, &berr) {
		t.Fatalf("expected BoundaryError, got %v", err)
	}
	if !reflect.DeepEqual(berr.Missing, []string{"prevDay"}) {
		t.Errorf("unexpected missing edges %v", berr.Missing)
	}

	_, err = NewReconciler(repo, base, nil).Check(ctx, "2024-10-11")
	if !errors.As(err, &berr) || !reflect.DeepEqual(berr.Missing, []string{"nextDay"}) {
		t.Errorf("expected nextDay missing, got %v", err)
	}
}

func TestReconciler_IndexNotFound(t *testing.T) {
	ctx := context.Background()
	repo := storage.NewMetricsRepo(memory.NewMemoryStorage(), base)
	commit(t, repo, "2024-10-08", 1, 999)
	commit(t, repo, "2024-10-09", 1000, 1999)
	commit(t, repo, "2024-10-10", 2000, 3000)

	report, err := NewReconciler(repo, base, nil).Check(ctx, "2024-10-09")
	if err != nil {
		t.Fatal(err)
	}
	if report.IndexFound || report.MissingDailyMetric || len(report.MissingBlocks) != 0 {
		t.Errorf("unexpected report %+v", report)
	}
	if report.Validation != nil || report.ProcessingState != nil {
		t.Error("no sequence data without an index")
	}
}

func TestReconciler_InvalidDate(t *testing.T) {
	repo := storage.NewMetricsRepo(memory.NewMemoryStorage(), base)
	_, err := NewReconciler(repo, base, nil).Check(context.Background(), "yesterday")
	var verr *domain.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
}
