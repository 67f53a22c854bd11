package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v2"
)

const (
	defaultPort          = 8080
	defaultDecimals      = 18
	defaultConcurrency   = 16
	defaultMaxBodyBytes  = 32 << 20
	defaultRPCTimeout    = 30 * time.Second
	defaultRPCMaxRetries = 3
	defaultSweepInterval = 10 * time.Minute
)

// Load reads configuration from a YAML file.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML content, expanding environment variables first.
func Parse(data []byte) (*AppConfig, error) {
	cfg := AppConfig{
		Rollup: RollupConfig{CleanupEnabled: true},
	}
	expandedData := os.ExpandEnv(string(data))
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	applyDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyDefaults(cfg *AppConfig) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = defaultPort
	}
	if cfg.Chain.Decimals == 0 {
		cfg.Chain.Decimals = defaultDecimals
	}
	if cfg.Ingest.MaxBodyBytes == 0 {
		cfg.Ingest.MaxBodyBytes = defaultMaxBodyBytes
	}
	if cfg.Rollup.Concurrency <= 0 {
		cfg.Rollup.Concurrency = defaultConcurrency
	}
	if cfg.Store.Backend == "" {
		switch {
		case cfg.Redis.URL != "":
			cfg.Store.Backend = StoreRedis
		case cfg.Database.URL != "":
			cfg.Store.Backend = StorePostgres
		default:
			cfg.Store.Backend = StoreMemory
		}
	}
	if cfg.RPC.Timeout == 0 {
		cfg.RPC.Timeout = defaultRPCTimeout
	}
	if cfg.RPC.MaxRetries == 0 {
		cfg.RPC.MaxRetries = defaultRPCMaxRetries
	}
	if cfg.Sweeper.Interval == 0 {
		cfg.Sweeper.Interval = defaultSweepInterval
	}
}

// Validate checks settings that have no sensible default.
func (c *AppConfig) Validate() error {
	if strings.TrimSpace(c.Chain.Name) == "" {
		return fmt.Errorf("chain.name is required")
	}
	if c.Chain.Decimals < 0 {
		return fmt.Errorf("chain.decimals must not be negative")
	}
	switch c.Store.Backend {
	case StoreMemory:
	case StoreRedis:
		if c.Redis.URL == "" {
			return fmt.Errorf("redis.url is required for the redis store")
		}
	case StorePostgres:
		if c.Database.URL == "" {
			return fmt.Errorf("database.url is required for the postgres store")
		}
	default:
		return fmt.Errorf("unknown store backend %q", c.Store.Backend)
	}
	return nil
}
