package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math/big"
	"strings"
)

// Dataset names declared by the stream in event metadata.
const (
	DatasetBlockWithReceipts           = "block_with_receipts"
	DatasetBlockWithReceiptsDebugTrace = "block_with_receipts_debug_trace"
)

// StreamEvent is a single delivery from the block stream.
type StreamEvent struct {
	Metadata StreamMetadata `json:"metadata"`
	Data     []BlockData    `json:"data"`
}

// StreamMetadata describes the delivery. All fields are optional.
type StreamMetadata struct {
	Dataset string `json:"dataset,omitempty"`
	Network string `json:"network,omitempty"`
}

// BlockData is one block together with its receipts and optional call trace.
type BlockData struct {
	Block    *BlockHeader `json:"block"`
	Receipts []Receipt    `json:"receipts"`
	Trace    []TraceEntry `json:"trace,omitempty"`
}

// BlockHeader carries the hex-encoded header fields and the full transactions.
type BlockHeader struct {
	Number       string        `json:"number"`
	Hash         string        `json:"hash,omitempty"`
	ParentHash   string        `json:"parentHash,omitempty"`
	Timestamp    string        `json:"timestamp"`
	Transactions []Transaction `json:"transactions"`
}

// Transaction holds the transaction fields the metrics depend on.
type Transaction struct {
	Hash     string `json:"hash"`
	From     string `json:"from"`
	To       string `json:"to,omitempty"`
	GasPrice string `json:"gasPrice,omitempty"`
}

// Receipt holds the receipt fields the metrics depend on.
type Receipt struct {
	TransactionHash   string `json:"transactionHash,omitempty"`
	GasUsed           string `json:"gasUsed"`
	EffectiveGasPrice string `json:"effectiveGasPrice,omitempty"`
	ContractAddress   string `json:"contractAddress,omitempty"`
}

// CallFrame is a callTracer frame. Frames nest through Calls.
type CallFrame struct {
	Type  string      `json:"type"`
	From  string      `json:"from,omitempty"`
	To    string      `json:"to,omitempty"`
	Calls []CallFrame `json:"calls,omitempty"`
}

// TraceEntry is one element of a block trace. Nodes return either
// {"txHash", "result": frame} or the frame itself.
type TraceEntry struct {
	TxHash string     `json:"txHash,omitempty"`
	Result *CallFrame `json:"result,omitempty"`
	CallFrame
}

// Frame returns the root call frame of the entry.
func (e *TraceEntry) Frame() *CallFrame {
	if e.Result != nil {
		return e.Result
	}
	return &e.CallFrame
}

// BlockNumber parses the hex block number.
func (h *BlockHeader) BlockNumber() (uint64, error) {
	return ParseHexUint64(h.Number)
}

// BlockTimestamp parses the hex unix timestamp.
func (h *BlockHeader) BlockTimestamp() (uint64, error) {
	return ParseHexUint64(h.Timestamp)
}

// DecodeStreamEvent decodes a delivery that is either the full envelope
// ({"metadata": ..., "data": [...]}) or a bare array of block data.
func DecodeStreamEvent(raw []byte) (*StreamEvent, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return nil, &ValidationError{Field: "body", Reason: "empty payload"}
	}

	if trimmed[0] == '[' {
		var data []BlockData
		if err := json.Unmarshal(trimmed, &data); err != nil {
			return nil, &ValidationError{Field: "body", Reason: fmt.Sprintf("invalid block array: %v", err)}
		}
		return &StreamEvent{Data: data}, nil
	}

	var event StreamEvent
	if err := json.Unmarshal(trimmed, &event); err != nil {
		return nil, &ValidationError{Field: "body", Reason: fmt.Sprintf("invalid stream event: %v", err)}
	}
	return &event, nil
}

// ParseHexBig parses a 0x-prefixed (or bare) hex quantity.
func ParseHexBig(s string) (*big.Int, error) {
	clean := strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	if clean == "" {
		return nil, fmt.Errorf("invalid hex: %q", s)
	}
	n := new(big.Int)
	if _, ok := n.SetString(clean, 16); !ok {
		return nil, fmt.Errorf("invalid hex: %q", s)
	}
	return n, nil
}

// ParseHexUint64 parses a hex quantity that must fit into uint64.
func ParseHexUint64(s string) (uint64, error) {
	n, err := ParseHexBig(s)
	if err != nil {
		return 0, err
	}
	if n.Sign() < 0 || !n.IsUint64() {
		return 0, fmt.Errorf("hex out of range: %q", s)
	}
	return n.Uint64(), nil
}
