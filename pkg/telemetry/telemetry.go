// Package telemetry wires the reverse proxy's (C7) per-call spans and
// counters, grounded on the teacher's own pkg/telemetry shape (OpenTelemetry
// tracer + meter) but scoped down to what the core registry gateway needs —
// the teacher's MCP-client-based telemetry-collection sidecar is explicitly
// out of scope (spec §1) and is not reproduced here.
package telemetry

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

const (
	tracerName = "github.com/mcpgateway/registry"
	serviceKey = "mcp.gateway.service"
)

// Telemetry bundles the tracer and the registry-gateway's Prometheus
// counters. A zero-exporter TracerProvider is used: spans are created and
// propagated through context (so handlers downstream can add attributes
// and record errors) without requiring a configured trace backend for the
// core to function, matching §1's "metrics-collection sidecar is out of
// scope" boundary.
type Telemetry struct {
	tracer trace.Tracer
	reg    *prometheus.Registry

	ProxyCalls    *prometheus.CounterVec
	ProxyErrors   *prometheus.CounterVec
	ProxyDuration *prometheus.HistogramVec
	HealthProbes  *prometheus.CounterVec
}

// New constructs a Telemetry instance with its own Prometheus registry
// (so tests never collide with the process-global default registerer).
func New() *Telemetry {
	tp := sdktrace.NewTracerProvider()
	otel.SetTracerProvider(tp)

	reg := prometheus.NewRegistry()

	t := &Telemetry{
		tracer: tp.Tracer(tracerName),
		reg:    reg,
		ProxyCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mcp_gateway_proxy_calls_total",
			Help: "Total forwarded MCP calls by server, method, and upstream outcome (ok or error).",
		}, []string{"server", "method", "decision"}),
		ProxyErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mcp_gateway_proxy_errors_total",
			Help: "Total forwarded MCP calls that ended in an upstream or internal error.",
		}, []string{"server", "kind"}),
		ProxyDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "mcp_gateway_proxy_call_duration_seconds",
			Help:    "Forwarded MCP call duration.",
			Buckets: prometheus.DefBuckets,
		}, []string{"server", "method"}),
		HealthProbes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mcp_gateway_health_probes_total",
			Help: "Total health probes by server and resulting status.",
		}, []string{"server", "status"}),
	}

	reg.MustRegister(t.ProxyCalls, t.ProxyErrors, t.ProxyDuration, t.HealthProbes)
	return t
}

// StartProxySpan starts a span for one forwarded MCP call.
func (t *Telemetry) StartProxySpan(ctx context.Context, serverPath, method string) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, "mcp.gateway.proxy_call", trace.WithAttributes(
		attribute.String("mcp.server.path", serverPath),
		attribute.String("mcp.method", method),
	))
}

// MetricsHandler exposes the Prometheus registry over /metrics.
func (t *Telemetry) MetricsHandler() http.Handler {
	return promhttp.HandlerFor(t.reg, promhttp.HandlerOpts{})
}
