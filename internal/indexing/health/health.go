// Package health serves the ingestion webhook together with health, status
// and metrics endpoints.
package health

// SystemStatus represents the overall health state of the system or a component.
type SystemStatus string

const (
	StatusHealthy  SystemStatus = "healthy"
	StatusDegraded SystemStatus = "degraded"
	StatusCritical SystemStatus = "critical"
)

// ChainHealth contains health metrics for the aggregated chain.
type ChainHealth struct {
	Chain          string       `json:"chain"`
	Status         SystemStatus `json:"status"`
	StoreReachable bool         `json:"store_reachable"`
	StoreError     string       `json:"store_error,omitempty"`
	// OpenDays counts dates whose transient records are still present.
	OpenDays        int    `json:"open_days"`
	ProcessingDate  string `json:"processing_date,omitempty"`
	LatestBlock     uint64 `json:"latest_block"`
	PendingBoundary bool   `json:"pending_boundary"`
}
