package chain

import (
	"context"

	"github.com/vietddude/chainmetrics/internal/core/domain"
)

// Adapter fetches block payloads from a chain node in the same shape the
// stream delivers them.
type Adapter interface {
	// GetLatestBlock returns the latest block number on the chain
	GetLatestBlock(ctx context.Context) (uint64, error)

	// GetBlockData fetches a block with full transactions, its receipts and,
	// when the chain supports it, its call trace. A nil result means the
	// node does not have the block yet.
	GetBlockData(ctx context.Context, blockNumber uint64) (*domain.BlockData, error)

	// Dataset returns the dataset name matching the payloads produced.
	Dataset() string
}
