package storage_test

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/vietddude/chainmetrics/internal/core/domain"
	"github.com/vietddude/chainmetrics/internal/infra/storage"
	"github.com/vietddude/chainmetrics/internal/infra/storage/memory"
)

var eth = domain.Chain{Name: "ETH", Decimals: 18}

func TestMetricsRepo_BlockMetricIsWriteOnce(t *testing.T) {
	ctx := context.Background()
	repo := storage.NewMetricsRepo(memory.NewMemoryStorage(), eth)

	m := &domain.BlockMetric{
		BlockNumber:     100,
		Timestamp:       1704067200,
		Date:            "2024-01-01",
		NumTransactions: 2,
		TotalFees:       decimal.RequireFromString("0.00042"),
	}
	created, err := repo.CreateBlockMetric(ctx, m)
	if err != nil || !created {
		t.Fatalf("CreateBlockMetric = %v, %v", created, err)
	}

	m2 := *m
	m2.NumTransactions = 99
	created, err = repo.CreateBlockMetric(ctx, &m2)
	if err != nil || created {
		t.Fatalf("second CreateBlockMetric = %v, %v", created, err)
	}

	got, err := repo.BlockMetric(ctx, 100)
	if err != nil {
		t.Fatal(err)
	}
	if got.NumTransactions != 2 || !got.TotalFees.Equal(m.TotalFees) {
		t.Errorf("unexpected stored metric %+v", got)
	}

	if _, err := repo.BlockMetric(ctx, 101); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestMetricsRepo_DayBlocksSortedAndDeduped(t *testing.T) {
	ctx := context.Background()
	store := memory.NewMemoryStorage()
	repo := storage.NewMetricsRepo(store, eth)

	for _, n := range []uint64{105, 101, 103, 101} {
		if _, err := repo.AddDayBlock(ctx, "2024-01-01", n); err != nil {
			t.Fatal(err)
		}
	}

	blocks, err := repo.DayBlocks(ctx, "2024-01-01")
	if err != nil {
		t.Fatal(err)
	}
	if len(blocks) != 3 || blocks[0] != 101 || blocks[2] != 105 {
		t.Errorf("unexpected blocks %v", blocks)
	}

	empty, err := repo.DayBlocks(ctx, "2024-01-02")
	if err != nil || len(empty) != 0 {
		t.Errorf("expected empty index, got %v, %v", empty, err)
	}

	_, _ = store.ListAppend(ctx, repo.Keys().DailyBlocks("2024-01-03"), "abc")
	if _, err := repo.DayBlocks(ctx, "2024-01-03"); !errors.Is(err, storage.ErrMalformedRecord) {
		t.Errorf("expected ErrMalformedRecord, got %v", err)
	}
}

func TestMetricsRepo_Enumeration(t *testing.T) {
	ctx := context.Background()
	store := memory.NewMemoryStorage()
	repo := storage.NewMetricsRepo(store, eth)
	other := storage.NewMetricsRepo(store, domain.Chain{Name: "BASE"})

	_, _ = repo.AddDayBlock(ctx, "2024-01-02", 1)
	_, _ = repo.AddDayBlock(ctx, "2024-01-01", 1)
	_, _ = other.AddDayBlock(ctx, "2024-01-05", 1)
	_, _ = repo.CreateDailyMetric(ctx, &domain.DailyMetric{Metadata: domain.DailyMetadata{Date: "2023-12-31"}})
	_, _ = repo.CreateBlockMetric(ctx, &domain.BlockMetric{BlockNumber: 7})

	open, err := repo.OpenDates(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(open) != 2 || open[0] != "2024-01-01" {
		t.Errorf("unexpected open dates %v", open)
	}

	committed, _ := repo.CommittedDates(ctx)
	if len(committed) != 1 || committed[0] != "2023-12-31" {
		t.Errorf("unexpected committed dates %v", committed)
	}

	stored, _ := repo.StoredBlockMetrics(ctx)
	if _, ok := stored[7]; !ok || len(stored) != 1 {
		t.Errorf("unexpected stored block metrics %v", stored)
	}
}

func TestMetricsRepo_Boundary(t *testing.T) {
	ctx := context.Background()
	repo := storage.NewMetricsRepo(memory.NewMemoryStorage(), eth)

	if _, ok, err := repo.Boundary(ctx, "2024-01-01"); ok || err != nil {
		t.Fatalf("expected no boundary, got %v, %v", ok, err)
	}
	if err := repo.SetBoundary(ctx, "2024-01-01", 7199); err != nil {
		t.Fatal(err)
	}
	last, ok, err := repo.Boundary(ctx, "2024-01-01")
	if err != nil || !ok || last != 7199 {
		t.Errorf("Boundary = %d, %v, %v", last, ok, err)
	}
}
