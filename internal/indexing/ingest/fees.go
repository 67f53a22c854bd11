package ingest

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/vietddude/chainmetrics/internal/core/domain"
)

// FeeError describes a transaction left out of the fee total.
type FeeError struct {
	TxHash string
	Index  int
	Err    error
}

func (e *FeeError) Error() string {
	return fmt.Sprintf("fee for tx %d (%s): %v", e.Index, e.TxHash, e.Err)
}

func (e *FeeError) Unwrap() error { return e.Err }

// blockFees sums gasUsed x gasPrice over the block's transactions in wei.
// Receipts are matched by transaction hash, falling back to position.
func blockFees(block *domain.BlockHeader, receipts []domain.Receipt) (*big.Int, []*FeeError) {
	byHash := make(map[string]*domain.Receipt, len(receipts))
	for i := range receipts {
		if h := receipts[i].TransactionHash; h != "" {
			byHash[strings.ToLower(h)] = &receipts[i]
		}
	}

	total := new(big.Int)
	var errs []*FeeError
	for i, tx := range block.Transactions {
		receipt := byHash[strings.ToLower(tx.Hash)]
		if receipt == nil && i < len(receipts) {
			receipt = &receipts[i]
		}

		fee, err := txFee(tx, receipt)
		if err != nil {
			errs = append(errs, &FeeError{TxHash: tx.Hash, Index: i, Err: err})
			continue
		}
		total.Add(total, fee)
	}
	return total, errs
}

func txFee(tx domain.Transaction, receipt *domain.Receipt) (*big.Int, error) {
	if receipt == nil {
		return nil, fmt.Errorf("no receipt")
	}
	gasUsed, err := domain.ParseHexBig(receipt.GasUsed)
	if err != nil {
		return nil, fmt.Errorf("gasUsed: %w", err)
	}

	priceHex := tx.GasPrice
	if priceHex == "" {
		priceHex = receipt.EffectiveGasPrice
	}
	gasPrice, err := domain.ParseHexBig(priceHex)
	if err != nil {
		return nil, fmt.Errorf("gasPrice: %w", err)
	}
	return gasUsed.Mul(gasUsed, gasPrice), nil
}

// toDisplayUnits scales a wei amount by 10^-decimals without rounding.
func toDisplayUnits(wei *big.Int, decimals int32) decimal.Decimal {
	return decimal.NewFromBigInt(wei, -decimals)
}

// activeSenders returns the distinct lower-case senders of the block.
func activeSenders(block *domain.BlockHeader) []string {
	seen := make(map[string]struct{}, len(block.Transactions))
	senders := make([]string, 0, len(block.Transactions))
	for _, tx := range block.Transactions {
		if tx.From == "" {
			continue
		}
		from := strings.ToLower(tx.From)
		if _, ok := seen[from]; ok {
			continue
		}
		seen[from] = struct{}{}
		senders = append(senders, from)
	}
	return senders
}
