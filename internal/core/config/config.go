package config

import (
	"time"

	"github.com/vietddude/chainmetrics/internal/core/domain"
	redisclient "github.com/vietddude/chainmetrics/internal/infra/redis"
	"github.com/vietddude/chainmetrics/internal/infra/storage/postgres"
)

// Store backends.
const (
	StoreMemory   = "memory"
	StoreRedis    = "redis"
	StorePostgres = "postgres"
)

// AppConfig represents the top-level configuration.
type AppConfig struct {
	Server   ServerConfig       `yaml:"server"`
	Chain    ChainConfig        `yaml:"chain"`
	Ingest   IngestConfig       `yaml:"ingest"`
	Rollup   RollupConfig       `yaml:"rollup"`
	Store    StoreConfig        `yaml:"store"`
	Redis    redisclient.Config `yaml:"redis"`
	Database postgres.Config    `yaml:"database"`
	RPC      RPCConfig          `yaml:"rpc"`
	Sweeper  SweeperConfig      `yaml:"sweeper"`
	Logging  LoggingConfig      `yaml:"logging"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port int `yaml:"port"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
}

// ChainConfig identifies the chain being aggregated.
type ChainConfig struct {
	Name          string `yaml:"name"`
	Decimals      int32  `yaml:"decimals"`
	HasDebugTrace bool   `yaml:"has_debug_trace"`
}

// Domain converts the config into the record passed to components.
func (c ChainConfig) Domain() domain.Chain {
	return domain.Chain{
		Name:          c.Name,
		Decimals:      c.Decimals,
		HasDebugTrace: c.HasDebugTrace,
	}
}

// IngestConfig holds ingestion settings.
type IngestConfig struct {
	SimulateOnly bool `yaml:"simulate_only"`
	// MaxBodyBytes bounds webhook payloads.
	MaxBodyBytes int64 `yaml:"max_body_bytes"`
}

// RollupConfig holds aggregation settings.
type RollupConfig struct {
	Concurrency         int  `yaml:"concurrency"`
	FetchRateLimit      int  `yaml:"fetch_rate_limit"` // reads per second, 0 = unlimited
	StrictMissingBlocks bool `yaml:"strict_missing_blocks"`
	CleanupEnabled      bool `yaml:"cleanup_enabled"`
}

// StoreConfig selects the store backend.
type StoreConfig struct {
	Backend string `yaml:"backend"` // memory, redis, postgres
}

// RPCConfig holds the JSON-RPC node used for backfill.
type RPCConfig struct {
	URL        string        `yaml:"url"`
	Timeout    time.Duration `yaml:"timeout"`
	RateLimit  int           `yaml:"rate_limit"` // requests per second, 0 = unlimited
	MaxRetries int           `yaml:"max_retries"`
}

// SweeperConfig holds background maintenance settings.
type SweeperConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Interval time.Duration `yaml:"interval"`
}
