package health

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/mcpgateway/registry/pkg/registry"
	"github.com/mcpgateway/registry/pkg/retry"
)

// probeAttempts and probeBackoffBase implement §4.7's retry policy for the
// idempotent health ping: up to 3 attempts, exponential backoff from 1s.
const (
	probeAttempts    = 3
	probeBackoffBase = time.Second
)

// Prober issues the actual liveness check against one server's upstream.
// Kept as an interface so tests can substitute a fake without opening real
// sockets.
type Prober interface {
	Probe(ctx context.Context, rec registry.ServerRecord) (registry.HealthStatus, error)
}

// jsonRPCRequest is the minimal envelope §4.6's "lightweight MCP ping"
// needs; a full client session (initialize, capability negotiation) is
// unnecessary just to classify reachability.
type jsonRPCRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int    `json:"id"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

// HTTPProber probes a server's proxy_pass_url with a bare JSON-RPC "ping",
// classifying the result per §4.6 step 3.
type HTTPProber struct {
	Client *http.Client
}

// NewHTTPProber returns a prober using client, or http.DefaultClient's
// settings with the caller's timeout applied via context.
func NewHTTPProber(client *http.Client) *HTTPProber {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPProber{Client: client}
}

// Probe implements Prober. The request is idempotent (a bare ping), so a
// transport-level failure to reach the upstream at all is retried with
// exponential backoff before being classified unhealthy; a response that
// did arrive is classified on its first try regardless of status code.
func (p *HTTPProber) Probe(ctx context.Context, rec registry.ServerRecord) (registry.HealthStatus, error) {
	body, err := json.Marshal(jsonRPCRequest{JSONRPC: "2.0", ID: 1, Method: "ping"})
	if err != nil {
		return registry.HealthUnhealthy, err
	}

	var resp *http.Response
	sendErr := retry.Backoff(probeAttempts, probeBackoffBase, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, rec.ProxyPassURL, bytes.NewReader(body))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept", "application/json, text/event-stream")

		resp, err = p.Client.Do(req)
		return err
	})
	if sendErr != nil {
		return registry.HealthUnhealthy, sendErr
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return registry.HealthHealthy, nil
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return registry.HealthHealthyAuthExpired, nil
	default:
		return registry.HealthUnhealthy, nil
	}
}
