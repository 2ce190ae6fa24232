package adminapi

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// NewRouter builds the chi mux for the REST surface described in §6's
// administrative-API table, plus the §4.8 SUPPLEMENTED tools/skills
// listing endpoints and the audit view.
func NewRouter(a *API) chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Route("/api", func(api chi.Router) {
		api.Get("/search", a.Search)
		api.Get("/audit", a.ViewAudit)
		api.Post("/scope/reload", a.ReloadScopePolicy)

		api.Post("/servers/register", a.RegisterServer)
		api.Get("/servers", a.ListServers)
		api.Get("/servers/{path}", a.GetServer)
		api.Put("/servers/{path}", a.EditServer)
		api.Delete("/servers/{path}", a.DeleteServer)
		api.Post("/servers/{path}/toggle", a.ToggleServer)
		api.Post("/servers/{path}/rescan", a.RescanServer)
		api.Get("/servers/{path}/tools", a.ServerTools)
		api.Post("/refresh/{path}", a.RefreshServer)
		api.Post("/servers/{path}/rate", a.RateServer)

		api.Post("/agents/register", a.RegisterAgent)
		api.Get("/agents", a.ListAgents)
		api.Get("/agents/{path}", a.GetAgent)
		api.Put("/agents/{path}", a.EditAgent)
		api.Delete("/agents/{path}", a.DeleteAgent)
		api.Post("/agents/{path}/toggle", a.ToggleAgent)
		api.Get("/agents/{path}/skills", a.AgentSkills)
		api.Post("/agents/{path}/rate", a.RateAgent)
	})

	return r
}

// middlewareRequestID reads the chi request-id middleware's generated ID,
// so every audit entry and error body correlates with the same value a
// deployment's access logs show (§6 "request-id propagated via header").
func middlewareRequestID(r *http.Request) string {
	if v := middleware.GetReqID(r.Context()); v != "" {
		return v
	}
	return r.Header.Get("X-Request-Id")
}

// decodeAndValidate JSON-decodes r.Body into dst and runs go-playground
// struct validation over it, returning the first problem as a single error.
func decodeAndValidate(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return err
	}
	return validate.Struct(dst)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
