package gateway

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// NewRouter builds the public chi mux for the reverse proxy: one route per
// MCP transport suffix under a server's path, plus the operational
// endpoints every deployment needs regardless of registered servers
// (§4.7, SUPPLEMENTED FEATURES: liveness probe and Prometheus scrape).
func NewRouter(g *Gateway) chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", handleHealthz)
	if g.Telemetry != nil {
		r.Handle("/metrics", g.Telemetry.MetricsHandler())
	}

	r.Route("/{serverPath}", func(sr chi.Router) {
		sr.HandleFunc("/mcp", func(w http.ResponseWriter, req *http.Request) {
			g.ServeHTTP(w, req, "/"+chi.URLParam(req, "serverPath"))
		})
		sr.HandleFunc("/sse", func(w http.ResponseWriter, req *http.Request) {
			g.ServeHTTP(w, req, "/"+chi.URLParam(req, "serverPath"))
		})
	})

	return r
}

func handleHealthz(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}
