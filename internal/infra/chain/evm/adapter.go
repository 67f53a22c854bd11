package evm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/vietddude/chainmetrics/internal/core/domain"
	"github.com/vietddude/chainmetrics/internal/infra/rpc/provider"
	"github.com/vietddude/chainmetrics/internal/infra/rpc/routing"
)

// EVMAdapter fetches blocks from an EVM JSON-RPC node.
type EVMAdapter struct {
	chain    domain.Chain
	client   provider.RPCProvider
	retryCfg routing.RetryConfig
}

func NewEVMAdapter(chain domain.Chain, client provider.RPCProvider, retryCfg routing.RetryConfig) *EVMAdapter {
	return &EVMAdapter{
		chain:    chain,
		client:   client,
		retryCfg: retryCfg,
	}
}

func (a *EVMAdapter) Dataset() string {
	return a.chain.ExpectedDataset()
}

func (a *EVMAdapter) GetLatestBlock(ctx context.Context) (uint64, error) {
	var blockHex string
	if err := a.call(ctx, "eth_blockNumber", nil, &blockHex); err != nil {
		return 0, err
	}
	return domain.ParseHexUint64(blockHex)
}

// GetBlockData fetches the block, its receipts and the callTracer trace
// concurrently.
func (a *EVMAdapter) GetBlockData(ctx context.Context, blockNumber uint64) (*domain.BlockData, error) {
	blockHex := fmt.Sprintf("0x%x", blockNumber)

	var (
		block    *domain.BlockHeader
		receipts []domain.Receipt
		trace    []domain.TraceEntry
	)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return a.call(ctx, "eth_getBlockByNumber", []any{blockHex, true}, &block)
	})
	g.Go(func() error {
		return a.call(ctx, "eth_getBlockReceipts", []any{blockHex}, &receipts)
	})
	if a.chain.HasDebugTrace {
		g.Go(func() error {
			return a.call(ctx, "debug_traceBlockByNumber",
				[]any{blockHex, map[string]any{"tracer": "callTracer"}}, &trace)
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if block == nil {
		return nil, nil
	}
	if a.chain.HasDebugTrace && trace == nil {
		trace = []domain.TraceEntry{}
	}
	return &domain.BlockData{Block: block, Receipts: receipts, Trace: trace}, nil
}

func (a *EVMAdapter) call(ctx context.Context, method string, params []any, out any) error {
	raw, err := routing.CallWithRetry(ctx, a.client, method, params, a.retryCfg)
	if err != nil {
		return fmt.Errorf("%s failed: %w", method, err)
	}
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode %s result: %w", method, err)
	}
	return nil
}
