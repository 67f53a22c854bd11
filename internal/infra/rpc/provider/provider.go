// Package provider implements the JSON-RPC transport used to fetch blocks
// from an EVM node.
package provider

import (
	"context"
	"encoding/json"
	"fmt"
)

// RPCProvider makes JSON-RPC calls against a single endpoint.
type RPCProvider interface {
	// GetName returns the provider identifier.
	GetName() string

	// Call makes a single RPC request and returns the raw result.
	Call(ctx context.Context, method string, params []any) (json.RawMessage, error)
}

// RPCError is a JSON-RPC error object returned by the node.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// HTTPError is a non-200 HTTP response.
type HTTPError struct {
	StatusCode int
	Body       string
	RetryAfter string
}

func (e *HTTPError) Error() string {
	if e.RetryAfter != "" {
		return fmt.Sprintf("http %d, retry after: %s", e.StatusCode, e.RetryAfter)
	}
	return fmt.Sprintf("http %d: %s", e.StatusCode, e.Body)
}
