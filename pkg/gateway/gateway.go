// Package gateway implements the reverse proxy / request router (C7):
// authenticate, authorize, and forward MCP/JSON-RPC traffic to the
// upstream named by the URL's server-path, preserving session semantics
// and streaming SSE responses without buffering (§4.7).
package gateway

import (
	"context"
	"net/http"
	"time"

	"github.com/mcpgateway/registry/pkg/audit"
	"github.com/mcpgateway/registry/pkg/authn"
	"github.com/mcpgateway/registry/pkg/authz"
	"github.com/mcpgateway/registry/pkg/repo"
	"github.com/mcpgateway/registry/pkg/scopepolicy"
	"github.com/mcpgateway/registry/pkg/telemetry"
)

// Config configures a Gateway. Zero values fall back to the §4.7/§5
// defaults.
type Config struct {
	// SessionHeader is the upstream session-id header the gateway surfaces
	// on the first response and replays on subsequent client requests
	// (§4.7 Session handling; §9 flags the exact header as deployment
	// configuration rather than a spec-fixed name).
	SessionHeader string

	RequestTimeout  time.Duration // default 60s, total for calls whose client does not accept text/event-stream
	IdleReadTimeout time.Duration // default 60s; not applied: the SSE copy loop sets no idle-read deadline

	MaxConnsPerHost     int           // default 32
	UpstreamIdleTimeout time.Duration // default 90s
}

func (c *Config) applyDefaults() {
	if c.SessionHeader == "" {
		c.SessionHeader = "mcp-session-id"
	}
	if c.RequestTimeout == 0 {
		c.RequestTimeout = 60 * time.Second
	}
	if c.IdleReadTimeout == 0 {
		c.IdleReadTimeout = 60 * time.Second
	}
	if c.MaxConnsPerHost == 0 {
		c.MaxConnsPerHost = 32
	}
	if c.UpstreamIdleTimeout == 0 {
		c.UpstreamIdleTimeout = 90 * time.Second
	}
}

// Gateway holds everything the per-request pipeline needs: a read-only
// repository handle (C3), the token validator (C2), the authorization
// engine (C4) plus the live scope-policy snapshot (C1), the audit logger
// (C9), and the bounded upstream HTTP client (§5).
type Gateway struct {
	Servers   repo.ServerRepository
	Validator *authn.Validator
	Authz     *authz.Engine
	Policy    *scopepolicy.Loader
	Audit     audit.Logger
	Telemetry *telemetry.Telemetry

	cfg    Config
	client *http.Client
}

// New constructs a Gateway. Telemetry may be nil, in which case spans and
// counters are skipped.
func New(servers repo.ServerRepository, validator *authn.Validator, engine *authz.Engine, policy *scopepolicy.Loader, auditLog audit.Logger, tel *telemetry.Telemetry, cfg Config) *Gateway {
	cfg.applyDefaults()
	transport := &http.Transport{
		MaxConnsPerHost:     cfg.MaxConnsPerHost,
		IdleConnTimeout:     cfg.UpstreamIdleTimeout,
		MaxIdleConnsPerHost: cfg.MaxConnsPerHost,
	}
	return &Gateway{
		Servers:   servers,
		Validator: validator,
		Authz:     engine,
		Policy:    policy,
		Audit:     auditLog,
		Telemetry: tel,
		cfg:       cfg,
		client:    &http.Client{Transport: transport},
	}
}

// requestContext bounds an upstream call to cfg.RequestTimeout. forward
// applies it only when the client does not accept text/event-stream, so a
// streamed response is never cut off by this deadline (§4.7 Timeouts).
func (g *Gateway) requestContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, g.cfg.RequestTimeout)
}
