package domain

import "strings"

// Coverage tells how contract deployments were counted.
type Coverage string

const (
	// CoverageFull means deployments came from an execution trace.
	CoverageFull Coverage = "full"
	// CoveragePartial means deployments were inferred from receipts.
	CoveragePartial Coverage = "partial"
	CoverageUnknown Coverage = "unknown"
)

// Chain is the per-chain configuration record passed into every component.
type Chain struct {
	// Name is the short chain code, e.g. "ETH" or "BASE".
	Name string
	// Decimals of the native unit (18 for ETH).
	Decimals int32
	// HasDebugTrace selects the trace-capable dataset.
	HasDebugTrace bool
}

// ExpectedDataset returns the dataset name deliveries must declare.
func (c Chain) ExpectedDataset() string {
	if c.HasDebugTrace {
		return DatasetBlockWithReceiptsDebugTrace
	}
	return DatasetBlockWithReceipts
}

// KeyPrefix returns the store namespace prefix for the chain.
func (c Chain) KeyPrefix() string {
	return "MA_" + strings.ToUpper(c.Name) + "_"
}

// Label is the lower-case chain name used in metrics and responses.
func (c Chain) Label() string {
	return strings.ToLower(c.Name)
}
