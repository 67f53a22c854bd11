package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/vietddude/chainmetrics/internal/core/domain"
	"github.com/vietddude/chainmetrics/internal/indexing/ingest"
	"github.com/vietddude/chainmetrics/internal/infra/storage"
)

// DateCleaner removes the transient records of a committed day.
type DateCleaner interface {
	CleanupDate(ctx context.Context, date string) error
}

// SweeperConfig holds sweeper settings.
type SweeperConfig struct {
	Chain          domain.Chain
	Interval       time.Duration
	CleanupEnabled bool
	SimulateOnly   bool
}

// SweepResult reports what one pass did.
type SweepResult struct {
	Cleaned  []string `json:"cleaned"`
	RolledUp []string `json:"rolledUp"`
	Pending  []string `json:"pending"`
	Failed   []string `json:"failed"`
}

// Sweeper finishes work that ingestion left behind: cleanup interrupted
// after a commit and closed days still waiting for late blocks.
type Sweeper struct {
	cfg     SweeperConfig
	repo    *storage.MetricsRepo
	roller  ingest.Roller
	cleaner DateCleaner
	logger  *slog.Logger
}

// NewSweeper creates a new Sweeper worker.
func NewSweeper(
	cfg SweeperConfig,
	repo *storage.MetricsRepo,
	roller ingest.Roller,
	cleaner DateCleaner,
	logger *slog.Logger,
) *Sweeper {
	if logger == nil {
		logger = slog.Default()
	}
	return &Sweeper{
		cfg:     cfg,
		repo:    repo,
		roller:  roller,
		cleaner: cleaner,
		logger:  logger.With("component", "sweeper", "chain", cfg.Chain.Label()),
	}
}

// Start runs the sweep loop until ctx is done.
func (s *Sweeper) Start(ctx context.Context) {
	if s.cfg.Interval <= 0 {
		return // Sweeping disabled
	}

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	// Initial sweep
	s.Sweep(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}

// Sweep walks every date that still has a block index.
func (s *Sweeper) Sweep(ctx context.Context) SweepResult {
	res := SweepResult{Cleaned: []string{}, RolledUp: []string{}, Pending: []string{}, Failed: []string{}}

	dates, err := s.repo.OpenDates(ctx)
	if err != nil {
		s.logger.Error("Failed to list open dates", "error", err)
		return res
	}

	for _, date := range dates {
		if ctx.Err() != nil {
			return res
		}
		if err := s.sweepDate(ctx, date, &res); err != nil {
			s.logger.Error("Sweep failed for date", "date", date, "error", err)
			res.Failed = append(res.Failed, date)
		}
	}

	if len(res.Cleaned)+len(res.RolledUp)+len(res.Failed) > 0 {
		s.logger.Info("Sweep finished",
			"cleaned", len(res.Cleaned),
			"rolled_up", len(res.RolledUp),
			"pending", len(res.Pending),
			"failed", len(res.Failed),
		)
	}
	return res
}

func (s *Sweeper) sweepDate(ctx context.Context, date string, res *SweepResult) error {
	committed, err := s.repo.HasDailyMetric(ctx, date)
	if err != nil {
		return err
	}
	if committed {
		if !s.cfg.CleanupEnabled || s.cfg.SimulateOnly {
			return nil
		}
		if err := s.cleaner.CleanupDate(ctx, date); err != nil {
			return err
		}
		res.Cleaned = append(res.Cleaned, date)
		return nil
	}

	lastBlock, ok, err := s.repo.Boundary(ctx, date)
	if err != nil || !ok {
		// Days without a boundary are still being ingested
		return err
	}

	state, err := ingest.CloseDay(ctx, s.repo, s.roller, date, lastBlock, s.cfg.SimulateOnly)
	if err != nil {
		return err
	}
	switch state {
	case ingest.DayRolledUp:
		res.RolledUp = append(res.RolledUp, date)
	case ingest.DayPending:
		res.Pending = append(res.Pending, date)
	}
	return nil
}
