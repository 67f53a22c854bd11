package backfill

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/vietddude/chainmetrics/internal/core/domain"
	"github.com/vietddude/chainmetrics/internal/indexing/ingest"
	"github.com/vietddude/chainmetrics/internal/infra/chain"
)

var (
	// ErrBlockNotFound is recorded when the node does not have a block.
	ErrBlockNotFound = errors.New("block not found on node")
)

// ProcessorConfig bounds a backfill run.
type ProcessorConfig struct {
	// MaxBlocks caps the blocks fetched in one run; 0 means no cap.
	MaxBlocks int
}

// DefaultConfig returns the defaults used by the CLI.
func DefaultConfig() ProcessorConfig {
	return ProcessorConfig{MaxBlocks: 10000}
}

// Failure is a block that could not be backfilled.
type Failure struct {
	Block uint64 `json:"block"`
	Error string `json:"error"`
}

// Summary reports the outcome of a backfill run.
type Summary struct {
	Requested  int       `json:"requested"`
	Ingested   int       `json:"ingested"`
	Duplicates int       `json:"duplicates"`
	Skipped    int       `json:"skipped"`
	Failed     []Failure `json:"failed"`
	RolledUp   []string  `json:"rolledUp,omitempty"`
}

// Processor fetches blocks from a node and ingests them one at a time.
type Processor struct {
	config   ProcessorConfig
	adapter  chain.Adapter
	ingestor BlockIngestor
	log      *slog.Logger
}

// NewProcessor creates a new processor with the given configuration.
func NewProcessor(config ProcessorConfig, adapter chain.Adapter, ingestor BlockIngestor, logger *slog.Logger) *Processor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Processor{
		config:   config,
		adapter:  adapter,
		ingestor: ingestor,
		log:      logger.With("component", "backfill"),
	}
}

// Backfill ingests blockNumbers in order. Per-block failures are collected
// and the run continues; only context cancellation stops it early.
func (p *Processor) Backfill(ctx context.Context, blockNumbers []uint64) (*Summary, error) {
	summary := &Summary{Requested: len(blockNumbers), Failed: []Failure{}}

	blocks := blockNumbers
	if p.config.MaxBlocks > 0 && len(blocks) > p.config.MaxBlocks {
		summary.Skipped = len(blocks) - p.config.MaxBlocks
		blocks = blocks[:p.config.MaxBlocks]
		p.log.Warn("Backfill capped", "requested", len(blockNumbers), "max", p.config.MaxBlocks)
	}

	for _, n := range blocks {
		if err := ctx.Err(); err != nil {
			return summary, err
		}

		res, err := p.processBlock(ctx, n)
		if err != nil {
			if ctx.Err() != nil {
				return summary, ctx.Err()
			}
			p.log.Warn("Backfill failed for block", "block", n, "error", err)
			summary.Failed = append(summary.Failed, Failure{Block: n, Error: err.Error()})
			continue
		}

		if res.Duplicate {
			summary.Duplicates++
		} else {
			summary.Ingested++
		}
		summary.RolledUp = append(summary.RolledUp, res.RolledUp...)
	}

	p.log.Info("Backfill finished",
		"requested", summary.Requested,
		"ingested", summary.Ingested,
		"duplicates", summary.Duplicates,
		"failed", len(summary.Failed),
	)
	return summary, nil
}

func (p *Processor) processBlock(ctx context.Context, n uint64) (*ingest.Result, error) {
	data, err := p.adapter.GetBlockData(ctx, n)
	if err != nil {
		return nil, fmt.Errorf("fetch: %w", err)
	}
	if data == nil {
		return nil, ErrBlockNotFound
	}

	event := &domain.StreamEvent{
		Metadata: domain.StreamMetadata{Dataset: p.adapter.Dataset()},
		Data:     []domain.BlockData{*data},
	}
	return p.ingestor.Ingest(ctx, event)
}
