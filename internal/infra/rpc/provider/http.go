package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	"go.uber.org/ratelimit"

	"github.com/vietddude/chainmetrics/internal/indexing/metrics"
)

const maxErrorBody = 512

// HTTPProvider implements RPCProvider for JSON-RPC 2.0 over HTTP.
type HTTPProvider struct {
	name       string
	chain      string
	endpoint   string
	httpClient *http.Client
	limiter    ratelimit.Limiter
	nextID     atomic.Uint64
}

// Option configures an HTTPProvider.
type Option func(*HTTPProvider)

// WithRateLimit caps requests per second.
func WithRateLimit(perSecond int) Option {
	return func(p *HTTPProvider) {
		if perSecond > 0 {
			p.limiter = ratelimit.New(perSecond)
		}
	}
}

// WithChain sets the chain label used in metrics.
func WithChain(chain string) Option {
	return func(p *HTTPProvider) {
		p.chain = chain
	}
}

// NewHTTPProvider creates a new HTTP-based RPC provider.
func NewHTTPProvider(name, endpoint string, timeout time.Duration, opts ...Option) *HTTPProvider {
	p := &HTTPProvider{
		name:     name,
		endpoint: endpoint,
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		limiter: ratelimit.NewUnlimited(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *HTTPProvider) GetName() string {
	return p.name
}

// Call makes a single JSON-RPC call.
func (p *HTTPProvider) Call(ctx context.Context, method string, params []any) (json.RawMessage, error) {
	p.limiter.Take()
	start := time.Now()
	metrics.RPCCallsTotal.WithLabelValues(p.chain, method).Inc()

	result, err := p.call(ctx, method, params)

	metrics.RPCLatency.WithLabelValues(p.chain, method).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.RPCErrorsTotal.WithLabelValues(p.chain, errorType(err)).Inc()
	}
	return result, err
}

func (p *HTTPProvider) call(ctx context.Context, method string, params []any) (json.RawMessage, error) {
	if params == nil {
		params = []any{}
	}
	reqBody := map[string]any{
		"jsonrpc": "2.0",
		"method":  method,
		"params":  params,
		"id":      p.nextID.Add(1),
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("rpc call: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		if len(body) > maxErrorBody {
			body = body[:maxErrorBody]
		}
		return nil, &HTTPError{
			StatusCode: resp.StatusCode,
			Body:       string(body),
			RetryAfter: resp.Header.Get("Retry-After"),
		}
	}

	var rpcResp struct {
		Result json.RawMessage `json:"result"`
		Error  *RPCError       `json:"error"`
	}
	if err := json.Unmarshal(body, &rpcResp); err != nil {
		return nil, fmt.Errorf("parse response: %w", err)
	}
	if rpcResp.Error != nil {
		return nil, rpcResp.Error
	}
	return rpcResp.Result, nil
}

func errorType(err error) string {
	switch e := err.(type) {
	case *RPCError:
		return "rpc"
	case *HTTPError:
		if e.StatusCode == http.StatusTooManyRequests {
			return "rate_limited"
		}
		return "http"
	default:
		return "transport"
	}
}
