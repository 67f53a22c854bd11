package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// TimestampLayout matches the millisecond ISO-8601 form used for lastUpdated.
const TimestampLayout = "2006-01-02T15:04:05.000Z07:00"

// FormatTimestamp renders t in UTC using TimestampLayout.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}

// ParseTimestamp parses a lastUpdated value.
func ParseTimestamp(s string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, s)
}

// BlockMetric is the per-block record written by the ingestor.
type BlockMetric struct {
	BlockNumber                uint64          `json:"blockNumber"`
	Timestamp                  uint64          `json:"timestamp"`
	Date                       string          `json:"date"`
	NumTransactions            int             `json:"numTransactions"`
	TotalFees                  decimal.Decimal `json:"totalFees"`
	NumContractDeployments     int             `json:"numContractDeployments"`
	ContractDeploymentCoverage Coverage        `json:"contractDeploymentCoverage"`
	LastUpdated                string          `json:"lastUpdated"`
}

// DailyMetric is the terminal summary of one calendar date.
type DailyMetric struct {
	Metrics  DailyMetrics  `json:"metrics"`
	Metadata DailyMetadata `json:"metadata"`
}

// DailyMetrics holds the aggregate figures of a day.
type DailyMetrics struct {
	NumTransactions            int             `json:"numTransactions"`
	AvgTxFee                   decimal.Decimal `json:"avgTxFee"`
	TotalFees                  decimal.Decimal `json:"totalFees"`
	AvgBlockFees               decimal.Decimal `json:"avgBlockFees"`
	NumContractDeployments     int             `json:"numContractDeployments"`
	ContractDeploymentCoverage Coverage        `json:"contractDeploymentCoverage"`
	NumActiveAddresses         int             `json:"numActiveAddresses"`
	// AvgBlockTime is in seconds.
	AvgBlockTime float64 `json:"avgBlockTime"`
}

// DailyMetadata describes how a DailyMetric was produced.
type DailyMetadata struct {
	Date                string        `json:"date"`
	FirstBlock          uint64        `json:"firstBlock"`
	LastBlock           uint64        `json:"lastBlock"`
	FirstBlockTimestamp uint64        `json:"firstBlockTimestamp"`
	LastBlockTimestamp  uint64        `json:"lastBlockTimestamp"`
	NumBlocks           int           `json:"numBlocks"`
	NumProcessedBlocks  int           `json:"numProcessedBlocks"`
	NumFailedBlocks     int           `json:"numFailedBlocks"`
	FailedBlocks        []FailedBlock `json:"failedBlocks"`
	IsSequential        bool          `json:"isSequential"`
	SequenceErrors      []SequenceGap `json:"sequenceErrors"`
	IsComplete          bool          `json:"isComplete"`
	// MedianBlockProcessingTime is in milliseconds.
	MedianBlockProcessingTime int64  `json:"medianBlockProcessingTime"`
	LastUpdated               string `json:"lastUpdated"`
	CleanupPerformed          bool   `json:"cleanupPerformed"`
	RollupID                  string `json:"rollupId,omitempty"`
}

// FailedBlock is a block whose metric could not be used in a rollup.
type FailedBlock struct {
	Block  uint64 `json:"block"`
	Reason string `json:"reason"`
}

// SequenceGap marks a hole between two consecutive observed block numbers.
type SequenceGap struct {
	Start   uint64 `json:"start"`
	End     uint64 `json:"end"`
	Missing uint64 `json:"missing"`
}
