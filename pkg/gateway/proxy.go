package gateway

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/mcpgateway/registry/pkg/audit"
	"github.com/mcpgateway/registry/pkg/authn"
	"github.com/mcpgateway/registry/pkg/authz"
	"github.com/mcpgateway/registry/pkg/httperr"
	"github.com/mcpgateway/registry/pkg/log"
	"github.com/mcpgateway/registry/pkg/registry"
	"github.com/mcpgateway/registry/pkg/repo"
)

const maxBufferedBody = 4 << 20 // 4 MiB; a larger body is cut at this size when read and then fails envelope parsing (400)

// ServeHTTP implements §4.7's eight-step pipeline for one forwarded MCP
// call: resolve the server, authenticate, parse the envelope, authorize,
// forward to proxy_pass_url, stream or buffer the response, and audit.
func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request, serverPath string) {
	requestID := requestIDFor(r)
	ctx := r.Context()

	rec, err := g.Servers.Get(ctx, serverPath)
	if errors.Is(err, repo.ErrNotFound) {
		httperr.Write(w, http.StatusNotFound, httperr.CodeServerNotFound, "no server registered at this path", requestID)
		return
	}
	if err != nil {
		log.Errorf("gateway: lookup failed for %s: %v", serverPath, err)
		httperr.Write(w, http.StatusInternalServerError, httperr.CodeInternal, "server lookup failed", requestID)
		return
	}
	if !rec.Enabled {
		httperr.Write(w, http.StatusServiceUnavailable, httperr.CodeServerDisabledReason, "server is disabled", requestID)
		return
	}

	id, err := g.authenticate(ctx, r)
	if err != nil {
		status, code := classifyAuthError(err)
		httperr.Write(w, status, code, err.Error(), requestID)
		return
	}
	ctx = authn.WithIdentity(ctx, id)

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBufferedBody+1))
	if err != nil {
		httperr.Write(w, http.StatusBadRequest, httperr.CodeValidation, "failed to read request body", requestID)
		return
	}

	method, toolName, err := parseEnvelope(body)
	if err != nil {
		httperr.Write(w, http.StatusBadRequest, httperr.CodeValidation, "malformed JSON-RPC envelope", requestID)
		return
	}

	decision := g.Authz.DecideMCPCall(g.Policy.Current(), id, authz.MCPCallRequest{
		ServerPath: serverPath,
		Method:     method,
		ToolName:   toolName,
	})
	g.recordDecisionEntry(ctx, requestID, id, rec, method, toolName, decision)
	if !decision.Allowed {
		httperr.Write(w, http.StatusForbidden, httperr.Code(decision.Reason), "request denied by scope policy", requestID)
		return
	}

	ctxWithSpan := ctx
	if g.Telemetry != nil {
		var end func()
		ctxWithSpan, end = g.startSpan(ctx, serverPath, method)
		defer end()
	}

	g.forward(ctxWithSpan, w, r, rec, body, requestID, serverPath, method)
}

// startSpan wraps Telemetry.StartProxySpan so ServeHTTP doesn't need to
// import the trace package directly.
func (g *Gateway) startSpan(ctx context.Context, serverPath, method string) (context.Context, func()) {
	spanCtx, span := g.Telemetry.StartProxySpan(ctx, serverPath, method)
	return spanCtx, func() { span.End() }
}

func (g *Gateway) authenticate(ctx context.Context, r *http.Request) (authn.Identity, error) {
	header := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return authn.Identity{}, errors.New("missing bearer token")
	}
	return g.Validator.Validate(ctx, strings.TrimPrefix(header, prefix))
}

func classifyAuthError(err error) (int, httperr.Code) {
	if authErr, ok := authn.IsAuthError(err); ok && authErr.Code == authn.CodeExpiredToken {
		return http.StatusUnauthorized, httperr.CodeTokenExpired
	}
	return http.StatusUnauthorized, httperr.CodeUnauthorized
}

func (g *Gateway) forward(ctx context.Context, w http.ResponseWriter, r *http.Request, rec registry.ServerRecord, body []byte, requestID, serverPath, method string) {
	start := time.Now()

	wantsStream := strings.Contains(r.Header.Get("Accept"), "text/event-stream")
	upCtx := ctx
	if !wantsStream {
		var cancel context.CancelFunc
		upCtx, cancel = g.requestContext(ctx)
		defer cancel()
	}

	upReq, err := http.NewRequestWithContext(upCtx, r.Method, rec.ProxyPassURL, bytes.NewReader(body))
	if err != nil {
		httperr.Write(w, http.StatusInternalServerError, httperr.CodeInternal, "failed to build upstream request", requestID)
		return
	}
	upReq.Header = buildUpstreamHeaders(r.Header, rec, g.cfg.SessionHeader)

	resp, err := g.client.Do(upReq)
	if err != nil {
		g.recordMetric(serverPath, method, "error", time.Since(start))
		httperr.Write(w, http.StatusBadGateway, httperr.CodeUpstream, "upstream request failed", requestID)
		g.auditMCPCall(ctx, requestID, serverPath, method, audit.DecisionAllow, "", http.StatusBadGateway)
		return
	}
	defer resp.Body.Close()

	g.recordMetric(serverPath, method, "ok", time.Since(start))

	if wantsStream && strings.Contains(resp.Header.Get("Content-Type"), "text/event-stream") {
		if sid := resp.Header.Get(g.cfg.SessionHeader); sid != "" {
			w.Header().Set(g.cfg.SessionHeader, sid)
		}
		streamSSE(w, resp, requestID)
		g.auditMCPCall(ctx, requestID, serverPath, method, audit.DecisionAllow, "", http.StatusOK)
		return
	}

	for k, vv := range resp.Header {
		for _, v := range vv {
			w.Header().Add(k, v)
		}
	}
	w.WriteHeader(resp.StatusCode)
	if _, err := io.Copy(w, resp.Body); err != nil {
		log.Warnf("gateway: copying upstream response for %s failed: %v", serverPath, err)
	}
	g.auditMCPCall(ctx, requestID, serverPath, method, audit.DecisionAllow, "", resp.StatusCode)
}

func (g *Gateway) recordMetric(serverPath, method, outcome string, d time.Duration) {
	if g.Telemetry == nil {
		return
	}
	g.Telemetry.ProxyDuration.WithLabelValues(serverPath, method).Observe(d.Seconds())
	g.Telemetry.ProxyCalls.WithLabelValues(serverPath, method, outcome).Inc()
	if outcome == "error" {
		g.Telemetry.ProxyErrors.WithLabelValues(serverPath, "upstream").Inc()
	}
}

func (g *Gateway) recordDecisionEntry(ctx context.Context, requestID string, id authn.Identity, rec registry.ServerRecord, method, toolName string, decision authz.Decision) {
	if decision.Allowed {
		return // the terminal entry written in forward() already covers the allow case
	}
	target := rec.Path
	if toolName != "" {
		target = rec.Path + "#" + toolName
	}
	g.auditMCPCallAs(ctx, requestID, id.Subject, target, audit.DecisionDeny, string(decision.Reason), http.StatusForbidden)
}

func (g *Gateway) auditMCPCall(ctx context.Context, requestID, serverPath, method string, decision audit.Decision, denyReason string, status int) {
	id, _ := authn.FromContext(ctx)
	g.auditMCPCallAs(ctx, requestID, id.Subject, serverPath+"#"+method, decision, denyReason, status)
}

func (g *Gateway) auditMCPCallAs(ctx context.Context, requestID, subject, target string, decision audit.Decision, denyReason string, status int) {
	if g.Audit == nil {
		return
	}
	entry := audit.Entry{
		RequestID:  requestID,
		Subject:    subject,
		Action:     audit.ActionMCPCall,
		Target:     target,
		Decision:   decision,
		DenyReason: denyReason,
		HTTPStatus: status,
	}
	if err := g.Audit.Append(ctx, entry); err != nil {
		log.Errorf("gateway: audit append failed: %v", err)
	}
}

func requestIDFor(r *http.Request) string {
	if v := r.Header.Get("X-Request-Id"); v != "" {
		return v
	}
	return uuid.NewString()
}
