package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrDayIndexMissing is returned when a date has no block index to roll up.
	ErrDayIndexMissing = errors.New("day block index missing or empty")
)

// ValidationError rejects input before any store access.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// RollupExistsError is returned when a date already has a committed DailyMetric.
type RollupExistsError struct {
	Date     string
	Existing *DailyMetric
}

func (e *RollupExistsError) Error() string {
	return fmt.Sprintf("rollup already exists for %s", e.Date)
}

// MissingBlocksError aborts a strict rollup that could not fetch every block.
type MissingBlocksError struct {
	Date   string
	Failed []FailedBlock
}

func (e *MissingBlocksError) Error() string {
	return fmt.Sprintf("%d block metrics missing for %s", len(e.Failed), e.Date)
}

// BoundaryError is returned by the reconciler when a neighbouring day has no
// committed DailyMetric.
type BoundaryError struct {
	Date    string
	Missing []string
}

func (e *BoundaryError) Error() string {
	return fmt.Sprintf("missing boundary daily metrics for %s: %s", e.Date, strings.Join(e.Missing, ", "))
}

// ErrorResponse is the structured failure object returned to callers.
type ErrorResponse struct {
	Error  string         `json:"error"`
	Chain  string         `json:"chain,omitempty"`
	Date   string         `json:"date,omitempty"`
	Counts map[string]int `json:"counts,omitempty"`
	// Existing is the committed record a repeated rollup collided with.
	Existing *DailyMetric `json:"existing,omitempty"`
}

// NewErrorResponse builds an ErrorResponse, filling context from typed errors.
func NewErrorResponse(chain Chain, err error) ErrorResponse {
	resp := ErrorResponse{Error: err.Error(), Chain: chain.Label()}

	var exists *RollupExistsError
	var missing *MissingBlocksError
	var boundary *BoundaryError
	switch {
	case errors.As(err, &exists):
		resp.Date = exists.Date
		resp.Existing = exists.Existing
		if exists.Existing != nil {
			resp.Counts = map[string]int{
				"numBlocks":          exists.Existing.Metadata.NumBlocks,
				"numProcessedBlocks": exists.Existing.Metadata.NumProcessedBlocks,
			}
		}
	case errors.As(err, &missing):
		resp.Date = missing.Date
		resp.Counts = map[string]int{"numFailedBlocks": len(missing.Failed)}
	case errors.As(err, &boundary):
		resp.Date = boundary.Date
	}
	return resp
}
