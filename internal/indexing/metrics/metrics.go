package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// BlocksIngested tracks blocks that produced a new BlockMetric
	BlocksIngested = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chainmetrics_blocks_ingested_total",
			Help: "Total number of blocks ingested",
		},
		[]string{"chain"},
	)

	// DuplicateDeliveries tracks blocks delivered more than once
	DuplicateDeliveries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chainmetrics_duplicate_deliveries_total",
			Help: "Total number of duplicate block deliveries",
		},
		[]string{"chain"},
	)

	// FeeErrors tracks transactions whose fee could not be computed
	FeeErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chainmetrics_fee_errors_total",
			Help: "Total number of transactions skipped in fee computation",
		},
		[]string{"chain"},
	)

	// RollupsTotal tracks rollup attempts by outcome
	RollupsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chainmetrics_rollups_total",
			Help: "Total number of daily rollups by result",
		},
		[]string{"chain", "result"},
	)

	// RollupDuration tracks how long a daily rollup takes
	RollupDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "chainmetrics_rollup_duration_seconds",
			Help:    "Daily rollup duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"chain"},
	)

	// RollupFailedBlocks tracks blocks that could not be aggregated
	RollupFailedBlocks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chainmetrics_rollup_failed_blocks_total",
			Help: "Total number of blocks missing or unreadable during rollup",
		},
		[]string{"chain"},
	)

	// CleanupTotal tracks cleanup runs by outcome
	CleanupTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chainmetrics_cleanup_total",
			Help: "Total number of day cleanups by result",
		},
		[]string{"chain", "result"},
	)

	// LatestIngestedBlock tracks the highest block ingested
	LatestIngestedBlock = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "chainmetrics_latest_ingested_block",
			Help: "Highest block number ingested",
		},
		[]string{"chain"},
	)

	// ReconcileMissingBlocks tracks the missing blocks found by the last reconcile of a chain
	ReconcileMissingBlocks = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "chainmetrics_reconcile_missing_blocks",
			Help: "Missing blocks found by the last reconcile run",
		},
		[]string{"chain"},
	)

	// RPCCallsTotal tracks backfill RPC calls
	RPCCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chainmetrics_rpc_calls_total",
			Help: "Total number of RPC calls",
		},
		[]string{"chain", "method"},
	)

	// RPCErrorsTotal tracks backfill RPC errors
	RPCErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chainmetrics_rpc_errors_total",
			Help: "Total number of RPC errors",
		},
		[]string{"chain", "error_type"},
	)

	// RPCLatency tracks RPC call latency
	RPCLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "chainmetrics_rpc_latency_seconds",
			Help:    "RPC call latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"chain", "method"},
	)

	// DBConnectionPoolUsage tracks open connections as a percentage of the pool
	DBConnectionPoolUsage = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "chainmetrics_db_connection_pool_usage_percent",
			Help: "Open database connections as a percentage of the pool size",
		},
	)
)
