package provider

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestHTTPProvider_Call(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req map[string]any
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("failed to decode body: %v", err)
			return
		}
		if req["jsonrpc"] != "2.0" || req["method"] != "eth_getBlockByNumber" {
			t.Errorf("unexpected request %v", req)
		}
		params := req["params"].([]any)
		if params[0] != "0x64" || params[1] != true {
			t.Errorf("unexpected params %v", params)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"jsonrpc": "2.0",
			"id":      req["id"],
			"result":  map[string]any{"number": "0x64"},
		})
	}))
	defer server.Close()

	p := NewHTTPProvider("node", server.URL, 5*time.Second, WithChain("eth"), WithRateLimit(100))
	raw, err := p.Call(context.Background(), "eth_getBlockByNumber", []any{"0x64", true})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var block struct {
		Number string `json:"number"`
	}
	if err := json.Unmarshal(raw, &block); err != nil || block.Number != "0x64" {
		t.Errorf("unexpected result %s", raw)
	}
}

func TestHTTPProvider_Errors(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
		check   func(t *testing.T, err error)
	}{
		{
			name: "rpc error",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(`{"jsonrpc":"2.0","id":1,"error":{"code":-32601,"message":"the method does not exist"}}`))
			},
			check: func(t *testing.T, err error) {
				var rpcErr *RPCError
				if !errors.As(err, &rpcErr) || rpcErr.Code != -32601 {
					t.Errorf("expected RPCError -32601, got %v", err)
				}
			},
		},
		{
			name: "rate limited",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Retry-After", "2")
				w.WriteHeader(http.StatusTooManyRequests)
			},
			check: func(t *testing.T, err error) {
				var httpErr *HTTPError
				if !errors.As(err, &httpErr) || httpErr.StatusCode != 429 || httpErr.RetryAfter != "2" {
					t.Errorf("expected 429 HTTPError, got %v", err)
				}
			},
		},
		{
			name: "bad json",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(`not json`))
			},
			check: func(t *testing.T, err error) {
				if err == nil {
					t.Error("expected parse error")
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(tt.handler)
			defer server.Close()

			p := NewHTTPProvider("node", server.URL, 5*time.Second)
			_, err := p.Call(context.Background(), "eth_blockNumber", nil)
			tt.check(t, err)
		})
	}
}
