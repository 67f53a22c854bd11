package health

import (
	"context"
	"sync"
	"time"

	"github.com/vietddude/chainmetrics/internal/core/domain"
	"github.com/vietddude/chainmetrics/internal/indexing/status"
)

// Pinger checks store connectivity.
type Pinger interface {
	Ping(ctx context.Context) error
}

// ProcessingReader reports on the day being ingested.
type ProcessingReader interface {
	Processing(ctx context.Context) (*status.Processing, error)
}

// Thresholds on open days before the chain is reported degraded or critical.
const (
	DegradedOpenDays = 2
	CriticalOpenDays = 5
)

// Monitor aggregates health status from the store and the ingestion state.
type Monitor struct {
	chain      domain.Chain
	store      Pinger
	processing ProcessingReader
	cacheTTL   time.Duration
	lastCheck  time.Time
	lastReport *ChainHealth
	mu         sync.Mutex
}

// NewMonitor creates a new health monitor.
func NewMonitor(chain domain.Chain, store Pinger, processing ProcessingReader) *Monitor {
	return &Monitor{
		chain:      chain,
		store:      store,
		processing: processing,
		cacheTTL:   10 * time.Second,
	}
}

// CheckHealth performs a health check, reusing a recent report when one exists.
func (m *Monitor) CheckHealth(ctx context.Context) ChainHealth {
	m.mu.Lock()
	defer m.mu.Unlock()

	// Avoid hammering the store when probes are frequent
	if m.lastReport != nil && time.Since(m.lastCheck) < m.cacheTTL {
		return *m.lastReport
	}

	health := ChainHealth{
		Chain:          m.chain.Label(),
		Status:         StatusHealthy,
		StoreReachable: true,
	}

	if err := m.store.Ping(ctx); err != nil {
		health.Status = StatusCritical
		health.StoreReachable = false
		health.StoreError = err.Error()
		m.remember(health)
		return health
	}

	p, err := m.processing.Processing(ctx)
	if err != nil {
		health.Status = StatusDegraded
		m.remember(health)
		return health
	}
	health.OpenDays = p.OpenDays
	health.ProcessingDate = p.Date
	health.LatestBlock = p.LatestBlock
	health.PendingBoundary = p.PendingBoundary

	// Days pile up when rollups are not committing
	if health.OpenDays > CriticalOpenDays {
		health.Status = StatusCritical
	} else if health.OpenDays > DegradedOpenDays {
		health.Status = StatusDegraded
	}

	m.remember(health)
	return health
}

func (m *Monitor) remember(h ChainHealth) {
	m.lastCheck = time.Now()
	m.lastReport = &h
}
