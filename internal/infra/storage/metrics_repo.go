package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strconv"

	"github.com/vietddude/chainmetrics/internal/core/domain"
)

var (
	// ErrMalformedRecord is returned when a stored value cannot be decoded.
	ErrMalformedRecord = errors.New("malformed record")
)

// MetricsRepo gives typed access to the aggregation records of one chain.
type MetricsRepo struct {
	store Store
	keys  Keys
}

// NewMetricsRepo creates a repository over store for chain.
func NewMetricsRepo(store Store, chain domain.Chain) *MetricsRepo {
	return &MetricsRepo{
		store: store,
		keys:  NewKeys(chain),
	}
}

// Keys returns the key builder used by the repository.
func (r *MetricsRepo) Keys() Keys {
	return r.keys
}

// Store returns the underlying store.
func (r *MetricsRepo) Store() Store {
	return r.store
}

// BlockMetric loads the metric of a block. Returns ErrNotFound when absent.
func (r *MetricsRepo) BlockMetric(ctx context.Context, blockNumber uint64) (*domain.BlockMetric, error) {
	raw, err := r.store.Get(ctx, r.keys.BlockMetric(blockNumber))
	if err != nil {
		return nil, err
	}

	var m domain.BlockMetric
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		return nil, fmt.Errorf("%w: block metric %d: %v", ErrMalformedRecord, blockNumber, err)
	}
	if m.BlockNumber == 0 {
		m.BlockNumber = blockNumber
	}
	return &m, nil
}

// CreateBlockMetric stores m unless the block already has a metric.
func (r *MetricsRepo) CreateBlockMetric(ctx context.Context, m *domain.BlockMetric) (bool, error) {
	data, err := json.Marshal(m)
	if err != nil {
		return false, fmt.Errorf("failed to marshal block metric: %w", err)
	}
	created, err := r.store.SetIfAbsent(ctx, r.keys.BlockMetric(m.BlockNumber), string(data))
	if err != nil {
		return false, fmt.Errorf("failed to store block metric %d: %w", m.BlockNumber, err)
	}
	return created, nil
}

// DailyMetric loads the committed summary of date. Returns ErrNotFound when absent.
func (r *MetricsRepo) DailyMetric(ctx context.Context, date string) (*domain.DailyMetric, error) {
	raw, err := r.store.Get(ctx, r.keys.DailyMetric(date))
	if err != nil {
		return nil, err
	}

	var m domain.DailyMetric
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		return nil, fmt.Errorf("%w: daily metric %s: %v", ErrMalformedRecord, date, err)
	}
	return &m, nil
}

// CreateDailyMetric commits m for its date unless one already exists.
func (r *MetricsRepo) CreateDailyMetric(ctx context.Context, m *domain.DailyMetric) (bool, error) {
	data, err := json.Marshal(m)
	if err != nil {
		return false, fmt.Errorf("failed to marshal daily metric: %w", err)
	}
	created, err := r.store.SetIfAbsent(ctx, r.keys.DailyMetric(m.Metadata.Date), string(data))
	if err != nil {
		return false, fmt.Errorf("failed to store daily metric %s: %w", m.Metadata.Date, err)
	}
	return created, nil
}

// HasDailyMetric reports whether date is committed.
func (r *MetricsRepo) HasDailyMetric(ctx context.Context, date string) (bool, error) {
	_, err := r.store.Get(ctx, r.keys.DailyMetric(date))
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// DayBlocks returns the block numbers indexed for date, sorted and de-duplicated.
// A missing index yields an empty slice.
func (r *MetricsRepo) DayBlocks(ctx context.Context, date string) ([]uint64, error) {
	items, err := r.store.ListGet(ctx, r.keys.DailyBlocks(date))
	if err != nil {
		return nil, fmt.Errorf("failed to read block index for %s: %w", date, err)
	}
	return parseBlockNumbers(items)
}

// HasDayBlock reports whether blockNumber is already indexed for date.
func (r *MetricsRepo) HasDayBlock(ctx context.Context, date string, blockNumber uint64) (bool, error) {
	return r.store.ListContains(ctx, r.keys.DailyBlocks(date), strconv.FormatUint(blockNumber, 10))
}

// AddDayBlock appends blockNumber to the index of date; false means it was already there.
func (r *MetricsRepo) AddDayBlock(ctx context.Context, date string, blockNumber uint64) (bool, error) {
	added, err := r.store.ListAppend(ctx, r.keys.DailyBlocks(date), strconv.FormatUint(blockNumber, 10))
	if err != nil {
		return false, fmt.Errorf("failed to index block %d for %s: %w", blockNumber, date, err)
	}
	return added, nil
}

// AddDayAddresses upserts sender addresses into the address index of date.
func (r *MetricsRepo) AddDayAddresses(ctx context.Context, date string, addresses []string) (int, error) {
	if len(addresses) == 0 {
		return 0, nil
	}
	added, err := r.store.ListUpsert(ctx, r.keys.DailyAddresses(date), addresses)
	if err != nil {
		return 0, fmt.Errorf("failed to upsert addresses for %s: %w", date, err)
	}
	return added, nil
}

// CountDayAddresses returns the number of distinct senders seen on date.
func (r *MetricsRepo) CountDayAddresses(ctx context.Context, date string) (int, error) {
	return r.store.ListLen(ctx, r.keys.DailyAddresses(date))
}

// Boundary returns the recorded last block of date, if any.
func (r *MetricsRepo) Boundary(ctx context.Context, date string) (uint64, bool, error) {
	raw, err := r.store.Get(ctx, r.keys.DailyBoundary(date))
	if errors.Is(err, ErrNotFound) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	n, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, false, fmt.Errorf("%w: boundary %s: %v", ErrMalformedRecord, date, err)
	}
	return n, true, nil
}

// SetBoundary records lastBlock as the final block of date.
func (r *MetricsRepo) SetBoundary(ctx context.Context, date string, lastBlock uint64) error {
	return r.store.Set(ctx, r.keys.DailyBoundary(date), strconv.FormatUint(lastBlock, 10))
}

// OpenDates lists dates that still have a block index, ascending.
func (r *MetricsRepo) OpenDates(ctx context.Context) ([]string, error) {
	return r.identifiers(ctx, DomainDailyBlocks)
}

// CommittedDates lists dates with a DailyMetric, ascending.
func (r *MetricsRepo) CommittedDates(ctx context.Context) ([]string, error) {
	return r.identifiers(ctx, DomainDailyMetrics)
}

// StoredBlockMetrics returns the block numbers that currently have a BlockMetric.
func (r *MetricsRepo) StoredBlockMetrics(ctx context.Context) (map[uint64]struct{}, error) {
	ids, err := r.identifiers(ctx, DomainBlockMetrics)
	if err != nil {
		return nil, err
	}
	stored := make(map[uint64]struct{}, len(ids))
	for _, id := range ids {
		n, err := strconv.ParseUint(id, 10, 64)
		if err != nil {
			continue
		}
		stored[n] = struct{}{}
	}
	return stored, nil
}

func (r *MetricsRepo) identifiers(ctx context.Context, keyDomain string) ([]string, error) {
	keys, err := r.store.KeysByPrefix(ctx, r.keys.Prefix(keyDomain))
	if err != nil {
		return nil, fmt.Errorf("failed to list %s keys: %w", keyDomain, err)
	}

	ids := make([]string, 0, len(keys))
	for _, key := range keys {
		if id, ok := r.keys.Identifier(keyDomain, key); ok && id != "" {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)
	return slices.Compact(ids), nil
}

func parseBlockNumbers(items []string) ([]uint64, error) {
	numbers := make([]uint64, 0, len(items))
	for _, item := range items {
		n, err := strconv.ParseUint(item, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: block index entry %q", ErrMalformedRecord, item)
		}
		numbers = append(numbers, n)
	}
	slices.Sort(numbers)
	return slices.Compact(numbers), nil
}
