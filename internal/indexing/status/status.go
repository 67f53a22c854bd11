// Package status reports ingestion progress and the state of committed days.
package status

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/vietddude/chainmetrics/internal/core/domain"
	"github.com/vietddude/chainmetrics/internal/infra/storage"
)

// MaxDays bounds the page size of Days and is the default limit.
const MaxDays = 366

// fetchConcurrency bounds parallel BlockMetric reads in Processing.
const fetchConcurrency = 16

// Processing describes the day currently being ingested.
type Processing struct {
	Chain  string `json:"chain"`
	Active bool   `json:"active"`
	Date   string `json:"date,omitempty"`
	// OpenDays counts dates that still hold transient records.
	OpenDays             int    `json:"openDays"`
	NumBlocks            int    `json:"numBlocks"`
	LatestBlock          uint64 `json:"latestBlock,omitempty"`
	LatestBlockTimestamp uint64 `json:"latestBlockTimestamp,omitempty"`
	LastUpdated          string `json:"lastUpdated,omitempty"`
	PendingBoundary      bool   `json:"pendingBoundary"`
	// BlocksProcessed counts indexed blocks whose metric carries a lastUpdated.
	BlocksProcessed int `json:"blocksProcessed"`
	// MedianSecBetweenBlocks is the median gap between consecutive metric
	// writes, in seconds.
	MedianSecBetweenBlocks float64 `json:"medianSecBetweenBlocks"`
}

// Day summarises one committed DailyMetric.
type Day struct {
	Date               string `json:"date"`
	FirstBlock         uint64 `json:"firstBlock"`
	LastBlock          uint64 `json:"lastBlock"`
	NumBlocks          int    `json:"numBlocks"`
	NumProcessedBlocks int    `json:"numProcessedBlocks"`
	NumFailedBlocks    int    `json:"numFailedBlocks"`
	IsComplete         bool   `json:"isComplete"`
	LastUpdated        string `json:"lastUpdated"`
	// IsSequentialWithNextDay is nil when the following day is not committed.
	IsSequentialWithNextDay *bool `json:"isSequentialWithNextDay"`
}

// DaysQuery selects a page of the window between From and To. Offset skips
// calendar days from From and Limit is the number of calendar days examined;
// zero means MaxDays.
type DaysQuery struct {
	From   string
	To     string
	Offset int
	Limit  int
}

// Pagination locates a DaysReport page inside its window.
type Pagination struct {
	Offset     int  `json:"offset"`
	Limit      int  `json:"limit"`
	HasMore    bool `json:"hasMore"`
	NextOffset int  `json:"nextOffset,omitempty"`
}

// DaysReport is the result of Days.
type DaysReport struct {
	Chain       string   `json:"chain"`
	From        string   `json:"from"`
	To          string   `json:"to"`
	Days        []Day    `json:"days"`
	MissingDays []string `json:"missingDays"`
	// LatestProcessedDay is the newest committed date on the page.
	LatestProcessedDay string `json:"latestProcessedDay,omitempty"`
	// AvgDayProcessingTime is the mean delay, in hours, between the start of
	// a day and the commit of its DailyMetric.
	AvgDayProcessingTime float64    `json:"avgDayProcessingTime"`
	Pagination           Pagination `json:"pagination"`
}

// Inspector reads status from the store without modifying it.
type Inspector struct {
	repo  *storage.MetricsRepo
	chain domain.Chain
}

// NewInspector creates a status inspector.
func NewInspector(repo *storage.MetricsRepo, chain domain.Chain) *Inspector {
	return &Inspector{repo: repo, chain: chain}
}

// Processing reports on the newest date that still has a block index.
func (i *Inspector) Processing(ctx context.Context) (*Processing, error) {
	p := &Processing{Chain: i.chain.Label()}

	open, err := i.repo.OpenDates(ctx)
	if err != nil {
		return nil, err
	}
	p.OpenDays = len(open)
	if len(open) == 0 {
		return p, nil
	}

	p.Active = true
	p.Date = open[len(open)-1]

	blocks, err := i.repo.DayBlocks(ctx, p.Date)
	if err != nil {
		return nil, err
	}
	p.NumBlocks = len(blocks)

	_, p.PendingBoundary, err = i.repo.Boundary(ctx, p.Date)
	if err != nil {
		return nil, err
	}

	if len(blocks) == 0 {
		return p, nil
	}
	p.LatestBlock = blocks[len(blocks)-1]

	loaded, err := i.blockMetrics(ctx, blocks)
	if err != nil {
		return nil, err
	}
	if m := loaded[len(loaded)-1]; m != nil {
		p.LatestBlockTimestamp = m.Timestamp
		p.LastUpdated = m.LastUpdated
	}

	var written []time.Time
	for _, m := range loaded {
		if m == nil || m.LastUpdated == "" {
			continue
		}
		t, err := domain.ParseTimestamp(m.LastUpdated)
		if err != nil {
			continue
		}
		written = append(written, t)
	}
	p.BlocksProcessed = len(written)
	p.MedianSecBetweenBlocks = medianGapSeconds(written)
	return p, nil
}

// blockMetrics loads the metric of every block into the matching slot.
// Cleaned or unreadable records leave a nil slot.
func (i *Inspector) blockMetrics(ctx context.Context, blocks []uint64) ([]*domain.BlockMetric, error) {
	out := make([]*domain.BlockMetric, len(blocks))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(fetchConcurrency)
	for idx, n := range blocks {
		g.Go(func() error {
			m, err := i.repo.BlockMetric(ctx, n)
			switch {
			case err == nil:
				out[idx] = m
			case errors.Is(err, storage.ErrNotFound), errors.Is(err, storage.ErrMalformedRecord):
			default:
				return fmt.Errorf("failed to load block metric %d: %w", n, err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// medianGapSeconds sorts the write times and returns the median gap between
// neighbours. An even number of gaps averages the two middle ones.
func medianGapSeconds(written []time.Time) float64 {
	if len(written) < 2 {
		return 0
	}
	sorted := slices.Clone(written)
	slices.SortFunc(sorted, func(a, b time.Time) int { return a.Compare(b) })

	gaps := make([]int64, 0, len(sorted)-1)
	for k := 1; k < len(sorted); k++ {
		gaps = append(gaps, sorted[k].Sub(sorted[k-1]).Milliseconds())
	}
	slices.Sort(gaps)

	mid := len(gaps) / 2
	if len(gaps)%2 == 0 {
		return float64(gaps[mid-1]+gaps[mid]) / 2 / 1000
	}
	return float64(gaps[mid]) / 1000
}

// Days reports one page of committed days between q.From and q.To
// inclusive. Empty bounds default to the oldest and newest committed dates.
func (i *Inspector) Days(ctx context.Context, q DaysQuery) (*DaysReport, error) {
	if q.Offset < 0 {
		return nil, &domain.ValidationError{Field: "offset", Reason: "must not be negative"}
	}
	limit := q.Limit
	switch {
	case limit < 0:
		return nil, &domain.ValidationError{Field: "limit", Reason: "must not be negative"}
	case limit == 0:
		limit = MaxDays
	case limit > MaxDays:
		return nil, &domain.ValidationError{Field: "limit", Reason: fmt.Sprintf("%d exceeds %d", limit, MaxDays)}
	}

	from, to := q.From, q.To
	report := &DaysReport{
		Chain:       i.chain.Label(),
		Days:        []Day{},
		MissingDays: []string{},
		Pagination:  Pagination{Offset: q.Offset, Limit: limit},
	}

	if from == "" || to == "" {
		committed, err := i.repo.CommittedDates(ctx)
		if err != nil {
			return nil, err
		}
		if len(committed) == 0 {
			report.From, report.To = from, to
			return report, nil
		}
		if from == "" {
			from = committed[0]
		}
		if to == "" {
			to = committed[len(committed)-1]
		}
	}
	report.From, report.To = from, to

	start, err := domain.ParseDate(from)
	if err != nil {
		return nil, &domain.ValidationError{Field: "from", Reason: fmt.Sprintf("expected YYYY-MM-DD, got %q", from)}
	}
	end, err := domain.ParseDate(to)
	if err != nil {
		return nil, &domain.ValidationError{Field: "to", Reason: fmt.Sprintf("expected YYYY-MM-DD, got %q", to)}
	}
	if end.Before(start) {
		return nil, &domain.ValidationError{Field: "to", Reason: "must not be before from"}
	}

	span := int(end.Sub(start)/(24*time.Hour)) + 1
	if q.Offset >= span {
		return report, nil
	}
	pageStart := start.AddDate(0, 0, q.Offset)
	pageEnd := pageStart.AddDate(0, 0, limit-1)
	if pageEnd.After(end) {
		pageEnd = end
	}
	if pageEnd.Before(end) {
		report.Pagination.HasMore = true
		report.Pagination.NextOffset = q.Offset + limit
	}

	// One lookup past the page so its last day can be compared with its successor.
	var next *domain.DailyMetric
	for d := pageEnd.AddDate(0, 0, 1); !d.Before(pageStart); d = d.AddDate(0, 0, -1) {
		date := d.Format(domain.DateLayout)
		dm, err := i.repo.DailyMetric(ctx, date)
		if err != nil && !errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("failed to load daily metric %s: %w", date, err)
		}
		if d.After(pageEnd) {
			next = dm
			continue
		}
		if dm == nil {
			report.MissingDays = append(report.MissingDays, date)
			next = nil
			continue
		}
		report.Days = append(report.Days, summarize(dm, next))
		next = dm
	}

	slices.Reverse(report.Days)
	slices.Reverse(report.MissingDays)

	if n := len(report.Days); n > 0 {
		report.LatestProcessedDay = report.Days[n-1].Date
	}
	report.AvgDayProcessingTime = avgProcessingHours(report.Days)
	return report, nil
}

// avgProcessingHours is the mean time from midnight of each day to its
// lastUpdated. Days without a readable lastUpdated are skipped.
func avgProcessingHours(days []Day) float64 {
	var total time.Duration
	var n int
	for _, d := range days {
		if d.LastUpdated == "" {
			continue
		}
		committedAt, err := domain.ParseTimestamp(d.LastUpdated)
		if err != nil {
			continue
		}
		midnight, err := domain.ParseDate(d.Date)
		if err != nil {
			continue
		}
		total += committedAt.Sub(midnight)
		n++
	}
	if n == 0 {
		return 0
	}
	return total.Hours() / float64(n)
}

func summarize(dm, next *domain.DailyMetric) Day {
	md := dm.Metadata
	day := Day{
		Date:               md.Date,
		FirstBlock:         md.FirstBlock,
		LastBlock:          md.LastBlock,
		NumBlocks:          md.NumBlocks,
		NumProcessedBlocks: md.NumProcessedBlocks,
		NumFailedBlocks:    md.NumFailedBlocks,
		IsComplete:         md.IsComplete,
		LastUpdated:        md.LastUpdated,
	}
	if next != nil {
		seq := next.Metadata.FirstBlock == md.LastBlock+1
		day.IsSequentialWithNextDay = &seq
	}
	return day
}
