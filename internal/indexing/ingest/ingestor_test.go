package ingest

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/vietddude/chainmetrics/internal/core/domain"
	"github.com/vietddude/chainmetrics/internal/indexing/rollup"
	"github.com/vietddude/chainmetrics/internal/infra/storage"
	"github.com/vietddude/chainmetrics/internal/infra/storage/memory"
)

const (
	day1      = "2024-01-01"
	day2      = "2024-01-02"
	day1Start = uint64(1704067200)
	day2Start = uint64(1704153600)
)

var eth = domain.Chain{Name: "ETH", Decimals: 18, HasDebugTrace: true}

type harness struct {
	store    *memory.MemoryStorage
	repo     *storage.MetricsRepo
	ingestor *Ingestor
}

func newHarness(cfg Config) *harness {
	if cfg.Chain.Name == "" {
		cfg.Chain = eth
	}
	store := memory.NewMemoryStorage()
	repo := storage.NewMetricsRepo(store, cfg.Chain)
	agg := rollup.NewAggregator(rollup.Config{
		Chain:          cfg.Chain,
		CleanupEnabled: true,
		SimulateOnly:   cfg.SimulateOnly,
	}, repo, rollup.NewCleaner(repo, cfg.Chain, nil), nil)

	ing := NewIngestor(cfg, repo, agg, nil)
	ing.now = func() time.Time { return time.Date(2024, 1, 2, 12, 0, 0, 0, time.UTC) }
	return &harness{store: store, repo: repo, ingestor: ing}
}

// event builds a delivery for block n at ts with one 21000-gas transfer at 1 gwei.
func event(n, ts uint64) *domain.StreamEvent {
	return &domain.StreamEvent{
		Metadata: domain.StreamMetadata{Dataset: domain.DatasetBlockWithReceiptsDebugTrace},
		Data: []domain.BlockData{{
			Block: &domain.BlockHeader{
				Number:    fmt.Sprintf("0x%x", n),
				Timestamp: fmt.Sprintf("0x%x", ts),
				Transactions: []domain.Transaction{
					{Hash: fmt.Sprintf("0x%x01", n), From: "0xSender", GasPrice: "0x3b9aca00"},
				},
			},
			Receipts: []domain.Receipt{{TransactionHash: fmt.Sprintf("0x%x01", n), GasUsed: "0x5208"}},
			Trace:    []domain.TraceEntry{},
		}},
	}
}

func (h *harness) ingest(t *testing.T, n, ts uint64) *Result {
	t.Helper()
	res, err := h.ingestor.Ingest(context.Background(), event(n, ts))
	if err != nil {
		t.Fatalf("Ingest(%d) failed: %v", n, err)
	}
	return res
}

func TestIngest_RecordsBlockMetric(t *testing.T) {
	ctx := context.Background()
	h := newHarness(Config{})

	res := h.ingest(t, 100, day1Start+5)
	if res.Duplicate || res.Date != day1 || res.BlockNumber != 100 {
		t.Fatalf("unexpected result %+v", res)
	}

	m, err := h.repo.BlockMetric(ctx, 100)
	if err != nil {
		t.Fatal(err)
	}
	if m.NumTransactions != 1 || m.TotalFees.String() != "0.000021" {
		t.Errorf("unexpected metric %+v", m)
	}
	if m.ContractDeploymentCoverage != domain.CoverageFull || m.Date != day1 {
		t.Errorf("unexpected coverage/date %s %s", m.ContractDeploymentCoverage, m.Date)
	}
	if m.LastUpdated != "2024-01-02T12:00:00.000Z" {
		t.Errorf("unexpected lastUpdated %s", m.LastUpdated)
	}

	if ok, _ := h.repo.HasDayBlock(ctx, day1, 100); !ok {
		t.Error("block not indexed")
	}
	if n, _ := h.repo.CountDayAddresses(ctx, day1); n != 1 {
		t.Errorf("expected 1 address, got %d", n)
	}
	addrs, _ := h.store.ListGet(ctx, h.repo.Keys().DailyAddresses(day1))
	if addrs[0] != "0xsender" {
		t.Errorf("addresses must be lower-case, got %v", addrs)
	}
}

func TestIngest_DuplicateDeliveryIsNoop(t *testing.T) {
	ctx := context.Background()
	h := newHarness(Config{})

	h.ingest(t, 100, day1Start)
	before, _ := h.store.Get(ctx, h.repo.Keys().BlockMetric(100))

	h.ingestor.now = func() time.Time { return time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC) }
	res := h.ingest(t, 100, day1Start)
	if !res.Duplicate {
		t.Fatal("expected duplicate")
	}

	after, _ := h.store.Get(ctx, h.repo.Keys().BlockMetric(100))
	if before != after {
		t.Error("duplicate delivery rewrote the block metric")
	}
	if n, _ := h.store.ListLen(ctx, h.repo.Keys().DailyBlocks(day1)); n != 1 {
		t.Errorf("expected one index entry, got %d", n)
	}
}

func TestIngest_ValidationBeforeStoreAccess(t *testing.T) {
	ctx := context.Background()
	h := newHarness(Config{})

	wrongDataset := event(100, day1Start)
	wrongDataset.Metadata.Dataset = domain.DatasetBlockWithReceipts

	badNumber := event(100, day1Start)
	badNumber.Data[0].Block.Number = "0xnope"

	maxTimestamp := event(100, day1Start)
	maxTimestamp.Data[0].Block.Timestamp = "0xffffffffffffffff"

	int64Timestamp := event(100, day1Start)
	int64Timestamp.Data[0].Block.Timestamp = "0x7fffffffffffffff"

	pastYear9999 := event(100, domain.MaxBlockTimestamp+1)

	tests := []struct {
		name  string
		event *domain.StreamEvent
		field string
	}{
		{"dataset mismatch", wrongDataset, "metadata.dataset"},
		{"no data", &domain.StreamEvent{}, "data"},
		{"bad number", badNumber, "block.number"},
		{"uint64 max timestamp", maxTimestamp, "block.timestamp"},
		{"int64 max timestamp", int64Timestamp, "block.timestamp"},
		{"timestamp past year 9999", pastYear9999, "block.timestamp"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := h.ingestor.Ingest(ctx, tt.event)
			var verr *domain.ValidationError
			if !errors.As(err, &verr) || verr.Field != tt.field {
				t.Fatalf("expected ValidationError on %s, got %v", tt.field, err)
			}
		})
	}

	if keys, _ := h.store.KeysByPrefix(ctx, ""); len(keys) != 0 {
		t.Errorf("validation failures must not touch the store, got %v", keys)
	}
}

func TestIngest_LastSecondOfYear9999IsAccepted(t *testing.T) {
	h := newHarness(Config{})
	res := h.ingest(t, 100, domain.MaxBlockTimestamp)
	if res.Date != "9999-12-31" {
		t.Errorf("expected 9999-12-31, got %s", res.Date)
	}
}

func TestIngest_MissingDatasetIsAccepted(t *testing.T) {
	h := newHarness(Config{})
	ev := event(100, day1Start)
	ev.Metadata.Dataset = ""
	if _, err := h.ingestor.Ingest(context.Background(), ev); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestIngest_FeeErrorsAreCounted(t *testing.T) {
	ctx := context.Background()
	h := newHarness(Config{})

	ev := event(100, day1Start)
	ev.Data[0].Block.Transactions = append(ev.Data[0].Block.Transactions,
		domain.Transaction{Hash: "0xbad", From: "0xother", GasPrice: "garbage"})
	ev.Data[0].Receipts = append(ev.Data[0].Receipts, domain.Receipt{TransactionHash: "0xbad", GasUsed: "0x1"})

	res, err := h.ingestor.Ingest(ctx, ev)
	if err != nil {
		t.Fatal(err)
	}
	if res.FeeErrors != 1 {
		t.Errorf("expected 1 fee error, got %d", res.FeeErrors)
	}
	if res.Metric.NumTransactions != 2 || res.Metric.TotalFees.String() != "0.000021" {
		t.Errorf("unexpected metric %+v", res.Metric)
	}
}

func TestIngest_DayBoundaryTriggersRollup(t *testing.T) {
	ctx := context.Background()
	h := newHarness(Config{})

	h.ingest(t, 100, day1Start+10)
	h.ingest(t, 101, day2Start-12)
	res := h.ingest(t, 102, day2Start+1)

	if len(res.RolledUp) != 1 || res.RolledUp[0] != day1 {
		t.Fatalf("expected %s rolled up, got %+v", day1, res)
	}

	dm, err := h.repo.DailyMetric(ctx, day1)
	if err != nil {
		t.Fatal(err)
	}
	if dm.Metadata.FirstBlock != 100 || dm.Metadata.LastBlock != 101 || !dm.Metadata.IsComplete {
		t.Errorf("unexpected metadata %+v", dm.Metadata)
	}
	if dm.Metrics.TotalFees.String() != "0.000042" {
		t.Errorf("sum of block fees expected, got %s", dm.Metrics.TotalFees)
	}

	if _, err := h.repo.BlockMetric(ctx, 100); !errors.Is(err, storage.ErrNotFound) {
		t.Error("day 1 block metrics should be cleaned up")
	}
	if _, err := h.repo.BlockMetric(ctx, 102); err != nil {
		t.Error("day 2 block metric must survive")
	}
}

func TestIngest_RedeliveryIntoCommittedDayIsDuplicate(t *testing.T) {
	ctx := context.Background()
	h := newHarness(Config{})

	h.ingest(t, 100, day1Start+10)
	h.ingest(t, 101, day2Start-12)
	if res := h.ingest(t, 102, day2Start+1); len(res.RolledUp) != 1 {
		t.Fatalf("expected %s rolled up, got %+v", day1, res)
	}
	before, _ := h.store.KeysByPrefix(ctx, "")

	res := h.ingest(t, 101, day2Start-12)
	if !res.Duplicate || res.Metric != nil || len(res.RolledUp) != 0 {
		t.Fatalf("expected duplicate without side effects, got %+v", res)
	}

	after, _ := h.store.KeysByPrefix(ctx, "")
	if len(after) != len(before) {
		t.Errorf("redelivery changed the keyspace: before %v, after %v", before, after)
	}
	if _, err := h.repo.BlockMetric(ctx, 101); !errors.Is(err, storage.ErrNotFound) {
		t.Error("redelivery re-created the block metric")
	}
	if n, _ := h.store.ListLen(ctx, h.repo.Keys().DailyBlocks(day1)); n != 0 {
		t.Errorf("redelivery re-created the day index with %d entries", n)
	}
}

func TestIngest_OutOfOrderLastBlockClosesDay(t *testing.T) {
	ctx := context.Background()
	h := newHarness(Config{})

	h.ingest(t, 100, day1Start+10)
	h.ingest(t, 102, day2Start+1)
	res := h.ingest(t, 101, day2Start-12)

	if len(res.RolledUp) != 1 || res.RolledUp[0] != day1 {
		t.Fatalf("expected forward boundary to roll up %s, got %+v", day1, res)
	}
	if ok, _ := h.repo.HasDailyMetric(ctx, day1); !ok {
		t.Error("day 1 not committed")
	}
}

func TestIngest_PendingBoundaryCompletesLater(t *testing.T) {
	ctx := context.Background()
	h := newHarness(Config{})

	h.ingest(t, 100, day1Start+10)
	h.ingest(t, 102, day2Start-12)
	res := h.ingest(t, 103, day2Start+1)

	if res.PendingBoundary != day1 || len(res.RolledUp) != 0 {
		t.Fatalf("expected pending boundary for %s, got %+v", day1, res)
	}
	if last, ok, _ := h.repo.Boundary(ctx, day1); !ok || last != 102 {
		t.Fatalf("expected boundary 102, got %d %v", last, ok)
	}

	res = h.ingest(t, 101, day1Start+20)
	if len(res.RolledUp) != 1 || res.RolledUp[0] != day1 {
		t.Fatalf("late block should complete %s, got %+v", day1, res)
	}
	if _, ok, _ := h.repo.Boundary(ctx, day1); ok {
		t.Error("boundary should be cleaned up with the day")
	}
}

func TestIngest_SimulateOnlyWritesNothing(t *testing.T) {
	ctx := context.Background()
	h := newHarness(Config{SimulateOnly: true})

	res := h.ingest(t, 100, day1Start)
	if res.Metric == nil || res.Metric.NumTransactions != 1 {
		t.Fatalf("simulation should still compute the metric: %+v", res)
	}
	if keys, _ := h.store.KeysByPrefix(ctx, ""); len(keys) != 0 {
		t.Errorf("simulation wrote %v", keys)
	}
}

func TestIngest_ReceiptModeCountsContractAddresses(t *testing.T) {
	h := newHarness(Config{Chain: domain.Chain{Name: "BASE", Decimals: 18}})

	ev := event(100, day1Start)
	ev.Metadata.Dataset = domain.DatasetBlockWithReceipts
	ev.Data[0].Trace = nil
	ev.Data[0].Receipts[0].ContractAddress = "0xnew"

	res, err := h.ingestor.Ingest(context.Background(), ev)
	if err != nil {
		t.Fatal(err)
	}
	if res.Metric.NumContractDeployments != 1 || res.Metric.ContractDeploymentCoverage != domain.CoveragePartial {
		t.Errorf("unexpected deployments %+v", res.Metric)
	}
}

func TestSequenceComplete(t *testing.T) {
	tests := []struct {
		blocks []uint64
		last   uint64
		want   bool
	}{
		{nil, 5, false},
		{[]uint64{3, 4, 5}, 5, true},
		{[]uint64{3, 5}, 5, false},
		{[]uint64{3, 4}, 5, false},
	}
	for _, tt := range tests {
		if got := SequenceComplete(tt.blocks, tt.last); got != tt.want {
			t.Errorf("SequenceComplete(%v, %d) = %v", tt.blocks, tt.last, got)
		}
	}
}
