package wait

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
)

const (
	// DefaultRPCURL is where the chain node serves JSON-RPC on the host.
	DefaultRPCURL = "http://127.0.0.1:8545"
	// DefaultRPCInterval is the constant pause between readiness probes.
	DefaultRPCInterval = time.Second

	healthCheckMethod = "web3_clientVersion"
)

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
	ID      int    `json:"id"`
}

// RPCProbe sends a minimal JSON-RPC status query and treats an HTTP 200 as ready.
type RPCProbe struct {
	URL    string
	Client *http.Client
}

// NewRPCProbe returns a probe for url using the default HTTP client.
func NewRPCProbe(url string) *RPCProbe {
	return &RPCProbe{URL: url, Client: http.DefaultClient}
}

// Probe performs a single readiness check.
func (p *RPCProbe) Probe(ctx context.Context) (bool, error) {
	body, err := json.Marshal(rpcRequest{JSONRPC: "2.0", Method: healthCheckMethod, Params: []any{}, ID: 1})
	if err != nil {
		return false, Permanent(fmt.Errorf("encoding health check: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.URL, bytes.NewReader(body))
	if err != nil {
		return false, Permanent(fmt.Errorf("building request for %s: %w", p.URL, err))
	}
	req.Header.Set("Content-Type", "application/json")

	client := p.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return false, err
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("rpc http %d", resp.StatusCode)
	}
	return true, nil
}

// RPCOption customises WaitForRPC.
type RPCOption func(*rpcWaitConfig)

type rpcWaitConfig struct {
	interval time.Duration
	client   *http.Client
	logger   *zap.Logger
}

// WithInterval overrides the pause between probes.
func WithInterval(d time.Duration) RPCOption {
	return func(c *rpcWaitConfig) { c.interval = d }
}

// WithHTTPClient overrides the HTTP client used for probes.
func WithHTTPClient(client *http.Client) RPCOption {
	return func(c *rpcWaitConfig) { c.client = client }
}

// WithLogger sets the logger for probe failures.
func WithLogger(logger *zap.Logger) RPCOption {
	return func(c *rpcWaitConfig) { c.logger = logger }
}

// WaitForRPC probes url once per interval until it answers with HTTP 200 or
// timeout elapses. Transport errors and non-200 responses count as not ready.
// A false result is accompanied by a *types.TimeoutError.
func WaitForRPC(ctx context.Context, url string, timeout time.Duration, opts ...RPCOption) (bool, error) {
	cfg := rpcWaitConfig{interval: DefaultRPCInterval, client: http.DefaultClient, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(&cfg)
	}

	probe := &RPCProbe{URL: url, Client: cfg.client}
	cfg.logger.Info("waiting for rpc", zap.String("url", url), zap.Duration("timeout", timeout))

	ready, err := Poll(ctx, "rpc readiness", probe.Probe, Policy{
		Strategy:    FixedInterval{Interval: cfg.interval},
		MaxDuration: timeout,
		OnRetry: func(attempt uint, err error) {
			cfg.logger.Debug("rpc not ready", zap.Uint("attempt", attempt), zap.Error(err))
		},
	})
	if ready {
		cfg.logger.Info("rpc is ready", zap.String("url", url))
	}
	return ready, err
}
