package backfill

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"testing"

	"github.com/vietddude/chainmetrics/internal/core/domain"
	"github.com/vietddude/chainmetrics/internal/indexing/ingest"
	"github.com/vietddude/chainmetrics/internal/indexing/reconcile"
	"github.com/vietddude/chainmetrics/internal/infra/storage"
	"github.com/vietddude/chainmetrics/internal/infra/storage/memory"
)

var base = domain.Chain{Name: "BASE", Decimals: 18}

// fakeAdapter serves blocks with one transaction each. Blocks listed in
// errs fail, blocks in absent are unknown to the node.
type fakeAdapter struct {
	timestamps map[uint64]uint64
	errs       map[uint64]error
	absent     map[uint64]bool
	fetched    []uint64
}

func (a *fakeAdapter) GetLatestBlock(ctx context.Context) (uint64, error) {
	var latest uint64
	for n := range a.timestamps {
		latest = max(latest, n)
	}
	return latest, nil
}

func (a *fakeAdapter) GetBlockData(ctx context.Context, n uint64) (*domain.BlockData, error) {
	a.fetched = append(a.fetched, n)
	if err := a.errs[n]; err != nil {
		return nil, err
	}
	if a.absent[n] {
		return nil, nil
	}
	return &domain.BlockData{
		Block: &domain.BlockHeader{
			Number:    fmt.Sprintf("0x%x", n),
			Timestamp: fmt.Sprintf("0x%x", a.timestamps[n]),
			Transactions: []domain.Transaction{
				{Hash: fmt.Sprintf("0x%x", n), From: "0xabc", GasPrice: "0x1"},
			},
		},
		Receipts: []domain.Receipt{{TransactionHash: fmt.Sprintf("0x%x", n), GasUsed: "0x5208"}},
	}, nil
}

func (a *fakeAdapter) Dataset() string {
	return domain.DatasetBlockWithReceipts
}

func newProcessor(cfg ProcessorConfig, adapter *fakeAdapter) (*Processor, *storage.MetricsRepo) {
	repo := storage.NewMetricsRepo(memory.NewMemoryStorage(), base)
	ing := ingest.NewIngestor(ingest.Config{Chain: base}, repo, nil, nil)
	return NewProcessor(cfg, adapter, ing, nil), repo
}

func TestBackfill_IngestsBlocks(t *testing.T) {
	ctx := context.Background()
	adapter := &fakeAdapter{timestamps: map[uint64]uint64{10: 1704067200, 11: 1704067212}}
	p, repo := newProcessor(ProcessorConfig{}, adapter)

	summary, err := p.Backfill(ctx, []uint64{10, 11})
	if err != nil {
		t.Fatalf("Backfill failed: %v", err)
	}
	if summary.Requested != 2 || summary.Ingested != 2 || len(summary.Failed) != 0 {
		t.Errorf("unexpected summary %+v", summary)
	}

	blocks, err := repo.DayBlocks(ctx, "2024-01-01")
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(blocks, []uint64{10, 11}) {
		t.Errorf("expected blocks [10 11], got %v", blocks)
	}
}

func TestBackfill_CollectsFailuresAndContinues(t *testing.T) {
	adapter := &fakeAdapter{
		timestamps: map[uint64]uint64{1: 1704067200, 2: 1704067212, 3: 1704067224},
		errs:       map[uint64]error{1: errors.New("node unavailable")},
		absent:     map[uint64]bool{2: true},
	}
	p, _ := newProcessor(ProcessorConfig{}, adapter)

	summary, err := p.Backfill(context.Background(), []uint64{1, 2, 3})
	if err != nil {
		t.Fatalf("Backfill failed: %v", err)
	}
	if summary.Ingested != 1 {
		t.Errorf("expected 1 ingested block, got %d", summary.Ingested)
	}
	if len(summary.Failed) != 2 {
		t.Fatalf("expected 2 failures, got %+v", summary.Failed)
	}
	if summary.Failed[0].Block != 1 || summary.Failed[1].Block != 2 {
		t.Errorf("unexpected failures %+v", summary.Failed)
	}
	if summary.Failed[1].Error != ErrBlockNotFound.Error() {
		t.Errorf("unexpected reason %q", summary.Failed[1].Error)
	}
}

func TestBackfill_CountsDuplicates(t *testing.T) {
	adapter := &fakeAdapter{timestamps: map[uint64]uint64{5: 1704067200}}
	p, _ := newProcessor(ProcessorConfig{}, adapter)

	if _, err := p.Backfill(context.Background(), []uint64{5}); err != nil {
		t.Fatal(err)
	}
	summary, err := p.Backfill(context.Background(), []uint64{5})
	if err != nil {
		t.Fatal(err)
	}
	if summary.Duplicates != 1 || summary.Ingested != 0 {
		t.Errorf("expected one duplicate, got %+v", summary)
	}
}

func TestBackfill_MaxBlocks(t *testing.T) {
	adapter := &fakeAdapter{timestamps: map[uint64]uint64{1: 1704067200, 2: 1704067201, 3: 1704067202}}
	p, _ := newProcessor(ProcessorConfig{MaxBlocks: 2}, adapter)

	summary, err := p.Backfill(context.Background(), []uint64{1, 2, 3})
	if err != nil {
		t.Fatal(err)
	}
	if summary.Skipped != 1 || !reflect.DeepEqual(adapter.fetched, []uint64{1, 2}) {
		t.Errorf("expected cap at 2 blocks, got summary %+v fetched %v", summary, adapter.fetched)
	}
}

func TestBackfill_StopsOnCancel(t *testing.T) {
	adapter := &fakeAdapter{timestamps: map[uint64]uint64{1: 1704067200}}
	p, _ := newProcessor(ProcessorConfig{}, adapter)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := p.Backfill(ctx, []uint64{1})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if len(adapter.fetched) != 0 {
		t.Errorf("no block should be fetched after cancel, got %v", adapter.fetched)
	}
}

func TestDetector_FillsReconcileGap(t *testing.T) {
	ctx := context.Background()
	adapter := &fakeAdapter{timestamps: map[uint64]uint64{}}
	p, repo := newProcessor(ProcessorConfig{}, adapter)

	for _, dm := range []domain.DailyMetric{
		{Metadata: domain.DailyMetadata{Date: "2024-01-01", FirstBlock: 1, LastBlock: 9}},
		{Metadata: domain.DailyMetadata{Date: "2024-01-03", FirstBlock: 15, LastBlock: 20}},
	} {
		if _, err := repo.CreateDailyMetric(ctx, &dm); err != nil {
			t.Fatal(err)
		}
	}
	for _, n := range []uint64{10, 11, 13, 14} {
		if _, err := repo.AddDayBlock(ctx, "2024-01-02", n); err != nil {
			t.Fatal(err)
		}
	}
	adapter.timestamps[12] = 1704153600 + 100

	detector := NewDetector(reconcile.NewReconciler(repo, base, nil))
	missing, report, err := detector.Missing(ctx, "2024-01-02")
	if err != nil {
		t.Fatalf("Missing failed: %v", err)
	}
	if !reflect.DeepEqual(missing, []uint64{12}) || report.TotalMissing != 1 {
		t.Fatalf("expected [12], got %v", missing)
	}

	if _, err := p.Backfill(ctx, missing); err != nil {
		t.Fatal(err)
	}

	missing, _, err = detector.Missing(ctx, "2024-01-02")
	if err != nil {
		t.Fatal(err)
	}
	if len(missing) != 0 {
		t.Errorf("expected no missing blocks after backfill, got %v", missing)
	}
}

func TestDetector_NoIndex(t *testing.T) {
	ctx := context.Background()
	repo := storage.NewMetricsRepo(memory.NewMemoryStorage(), base)
	for _, dm := range []domain.DailyMetric{
		{Metadata: domain.DailyMetadata{Date: "2024-01-01", FirstBlock: 1, LastBlock: 9}},
		{Metadata: domain.DailyMetadata{Date: "2024-01-03", FirstBlock: 15, LastBlock: 20}},
	} {
		if _, err := repo.CreateDailyMetric(ctx, &dm); err != nil {
			t.Fatal(err)
		}
	}

	missing, report, err := NewDetector(reconcile.NewReconciler(repo, base, nil)).Missing(ctx, "2024-01-02")
	if err != nil {
		t.Fatal(err)
	}
	if missing != nil || report.IndexFound {
		t.Errorf("expected nothing to backfill without an index, got %v", missing)
	}
}
