package adminapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/mcpgateway/registry/pkg/audit"
	"github.com/mcpgateway/registry/pkg/authn"
	"github.com/mcpgateway/registry/pkg/authz"
	"github.com/mcpgateway/registry/pkg/httperr"
	"github.com/mcpgateway/registry/pkg/registry"
	"github.com/mcpgateway/registry/pkg/repo"
)

// RegisterServer handles POST /api/servers/register (§6, §4.8).
func (a *API) RegisterServer(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middlewareRequestID(r)

	id, ok := a.requireAdmin(w, r, authz.ActionRegisterServer, "")
	if !ok {
		return
	}

	var req RegisterServerRequest
	if err := decodeAndValidate(r, &req); err != nil {
		httperr.Write(w, http.StatusBadRequest, httperr.CodeValidation, err.Error(), requestID)
		return
	}
	if err := validateToolSchemas(req.ToolList); err != nil {
		httperr.Write(w, http.StatusBadRequest, httperr.CodeValidation, err.Error(), requestID)
		return
	}

	rec := req.toRecord()
	if err := a.Servers.Put(ctx, rec, repo.RequireAbsent()); err != nil {
		if errors.Is(err, repo.ErrConflict) {
			httperr.Write(w, http.StatusConflict, httperr.CodeConflict, "a server is already registered at this path", requestID)
			return
		}
		httperr.Write(w, http.StatusInternalServerError, httperr.CodeInternal, "failed to persist server", requestID)
		return
	}
	_ = a.reindexServer(rec)

	a.auditAppend(ctx, requestID, id, audit.ActionRegisterServer, rec.Path, audit.DecisionAllow, "", rec, http.StatusCreated)
	writeJSON(w, http.StatusCreated, rec)
}

// ListServers handles GET /api/servers, filtered to the caller's visible
// set per §4.4.
func (a *API) ListServers(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middlewareRequestID(r)

	id, err := a.authenticate(ctx, r)
	if err != nil {
		httperr.Write(w, http.StatusUnauthorized, httperr.CodeUnauthorized, err.Error(), requestID)
		return
	}

	all, err := a.Servers.List(ctx)
	if err != nil {
		httperr.Write(w, http.StatusInternalServerError, httperr.CodeInternal, "failed to list servers", requestID)
		return
	}
	allPaths := make([]string, len(all))
	byPath := make(map[string]registry.ServerRecord, len(all))
	for i, rec := range all {
		allPaths[i] = rec.Path
		byPath[rec.Path] = rec
	}
	visible := a.Authz.VisibleServers(a.Policy.Current(), id, allPaths)
	out := make([]registry.ServerRecord, 0, len(visible))
	for _, p := range visible {
		out = append(out, byPath[p])
	}
	writeJSON(w, http.StatusOK, out)
}

// GetServer handles GET /api/servers/{path}.
func (a *API) GetServer(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middlewareRequestID(r)
	path := chi.URLParam(r, "path")

	id, err := a.authenticate(ctx, r)
	if err != nil {
		httperr.Write(w, http.StatusUnauthorized, httperr.CodeUnauthorized, err.Error(), requestID)
		return
	}
	if !a.Authz.CanViewServer(a.Policy.Current(), id, path) {
		httperr.Write(w, http.StatusNotFound, httperr.CodeNotFound, "no server registered at this path", requestID)
		return
	}

	rec, err := a.Servers.Get(ctx, path)
	if errors.Is(err, repo.ErrNotFound) {
		httperr.Write(w, http.StatusNotFound, httperr.CodeNotFound, "no server registered at this path", requestID)
		return
	}
	if err != nil {
		httperr.Write(w, http.StatusInternalServerError, httperr.CodeInternal, "failed to look up server", requestID)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// EditServer handles PUT /api/servers/{path}.
func (a *API) EditServer(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middlewareRequestID(r)
	path := chi.URLParam(r, "path")

	id, ok := a.requireAdmin(w, r, authz.ActionEditServer, path)
	if !ok {
		return
	}

	existing, err := a.Servers.Get(ctx, path)
	if errors.Is(err, repo.ErrNotFound) {
		httperr.Write(w, http.StatusNotFound, httperr.CodeNotFound, "no server registered at this path", requestID)
		return
	}
	if err != nil {
		httperr.Write(w, http.StatusInternalServerError, httperr.CodeInternal, "failed to look up server", requestID)
		return
	}

	var req EditServerRequest
	if err := decodeAndValidate(r, &req); err != nil {
		httperr.Write(w, http.StatusBadRequest, httperr.CodeValidation, err.Error(), requestID)
		return
	}
	if err := validateToolSchemas(req.ToolList); err != nil {
		httperr.Write(w, http.StatusBadRequest, httperr.CodeValidation, err.Error(), requestID)
		return
	}

	updated := req.applyTo(existing)
	if err := a.Servers.Put(ctx, updated); err != nil {
		httperr.Write(w, http.StatusInternalServerError, httperr.CodeInternal, "failed to persist server", requestID)
		return
	}
	_ = a.reindexServer(updated)

	a.auditAppend(ctx, requestID, id, audit.ActionEditServer, path, audit.DecisionAllow, "", updated, http.StatusOK)
	writeJSON(w, http.StatusOK, updated)
}

// DeleteServer handles DELETE /api/servers/{path}.
func (a *API) DeleteServer(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middlewareRequestID(r)
	path := chi.URLParam(r, "path")

	id, ok := a.requireAdmin(w, r, authz.ActionDeleteServer, path)
	if !ok {
		return
	}

	if err := a.Servers.Delete(ctx, path); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			httperr.Write(w, http.StatusNotFound, httperr.CodeNotFound, "no server registered at this path", requestID)
			return
		}
		httperr.Write(w, http.StatusInternalServerError, httperr.CodeInternal, "failed to delete server", requestID)
		return
	}
	if a.Index != nil {
		_ = a.Index.DeleteServer(path)
	}

	a.auditAppend(ctx, requestID, id, audit.ActionDeleteServer, path, audit.DecisionAllow, "", nil, http.StatusNoContent)
	w.WriteHeader(http.StatusNoContent)
}

// ToggleServer handles POST /api/servers/{path}/toggle.
func (a *API) ToggleServer(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middlewareRequestID(r)
	path := chi.URLParam(r, "path")

	id, ok := a.requireAdmin(w, r, authz.ActionToggleServer, path)
	if !ok {
		return
	}

	var req ToggleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httperr.Write(w, http.StatusBadRequest, httperr.CodeValidation, "malformed JSON body", requestID)
		return
	}

	if err := a.Servers.Toggle(ctx, path, req.Enabled); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			httperr.Write(w, http.StatusNotFound, httperr.CodeNotFound, "no server registered at this path", requestID)
			return
		}
		httperr.Write(w, http.StatusInternalServerError, httperr.CodeInternal, "failed to toggle server", requestID)
		return
	}
	if a.Index != nil {
		_ = a.Index.SetServerEnabled(path, req.Enabled)
	}

	a.auditAppend(ctx, requestID, id, audit.ActionToggleServer, path, audit.DecisionAllow, "", req, http.StatusOK)
	writeJSON(w, http.StatusOK, req)
}

// RefreshServer handles POST /api/refresh/{path}: an on-demand, synchronous
// health probe independent of the scheduled monitor loop (§4.6 Refresh).
func (a *API) RefreshServer(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middlewareRequestID(r)
	path := chi.URLParam(r, "path")

	if _, err := a.authenticate(ctx, r); err != nil {
		httperr.Write(w, http.StatusUnauthorized, httperr.CodeUnauthorized, err.Error(), requestID)
		return
	}
	if a.Health == nil {
		httperr.Write(w, http.StatusInternalServerError, httperr.CodeInternal, "health monitor unavailable", requestID)
		return
	}

	status, err := a.Health.Refresh(ctx, path)
	if errors.Is(err, repo.ErrNotFound) {
		httperr.Write(w, http.StatusNotFound, httperr.CodeNotFound, "no server registered at this path", requestID)
		return
	}
	if err != nil {
		httperr.Write(w, http.StatusInternalServerError, httperr.CodeInternal, "health refresh failed", requestID)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": status})
}

// RescanServer handles POST /api/servers/{path}/rescan: a supplemented
// endpoint surfacing a best-effort security-posture summary derived from
// the stored record (§4.8 Non-goal: no execution of upstream tools, so the
// scan never calls the upstream itself — it re-validates the record's own
// declared transport, headers, and schemas).
func (a *API) RescanServer(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middlewareRequestID(r)
	path := chi.URLParam(r, "path")

	id, ok := a.requireAdmin(w, r, authz.ActionRescanServer, path)
	if !ok {
		return
	}

	rec, err := a.Servers.Get(ctx, path)
	if errors.Is(err, repo.ErrNotFound) {
		httperr.Write(w, http.StatusNotFound, httperr.CodeNotFound, "no server registered at this path", requestID)
		return
	}
	if err != nil {
		httperr.Write(w, http.StatusInternalServerError, httperr.CodeInternal, "failed to look up server", requestID)
		return
	}

	result := rescan(rec)
	a.auditAppend(ctx, requestID, id, audit.ActionRescanServer, path, audit.DecisionAllow, "", result, http.StatusOK)
	writeJSON(w, http.StatusOK, result)
}

// ServerTools handles GET /api/servers/{path}/tools: a supplemented
// endpoint returning just the tool list, for clients that want to populate
// a tool picker without fetching the full record (§4.8 supplement).
func (a *API) ServerTools(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middlewareRequestID(r)
	path := chi.URLParam(r, "path")

	id, err := a.authenticate(ctx, r)
	if err != nil {
		httperr.Write(w, http.StatusUnauthorized, httperr.CodeUnauthorized, err.Error(), requestID)
		return
	}
	if !a.Authz.CanViewServer(a.Policy.Current(), id, path) {
		httperr.Write(w, http.StatusNotFound, httperr.CodeNotFound, "no server registered at this path", requestID)
		return
	}

	rec, err := a.Servers.Get(ctx, path)
	if errors.Is(err, repo.ErrNotFound) {
		httperr.Write(w, http.StatusNotFound, httperr.CodeNotFound, "no server registered at this path", requestID)
		return
	}
	if err != nil {
		httperr.Write(w, http.StatusInternalServerError, httperr.CodeInternal, "failed to look up server", requestID)
		return
	}
	writeJSON(w, http.StatusOK, rec.ToolList)
}

// RateServer handles POST /api/servers/{path}/rate. Rating bypasses the
// admin check (§4.8): any authenticated identity may rate a visible server.
func (a *API) RateServer(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middlewareRequestID(r)
	path := chi.URLParam(r, "path")

	id, err := a.authenticate(ctx, r)
	if err != nil {
		httperr.Write(w, http.StatusUnauthorized, httperr.CodeUnauthorized, err.Error(), requestID)
		return
	}
	if !a.Authz.CanViewServer(a.Policy.Current(), id, path) {
		httperr.Write(w, http.StatusNotFound, httperr.CodeNotFound, "no server registered at this path", requestID)
		return
	}

	var req RateRequest
	if err := decodeAndValidate(r, &req); err != nil {
		httperr.Write(w, http.StatusBadRequest, httperr.CodeValidation, err.Error(), requestID)
		return
	}

	rec, err := a.Servers.Get(ctx, path)
	if errors.Is(err, repo.ErrNotFound) {
		httperr.Write(w, http.StatusNotFound, httperr.CodeNotFound, "no server registered at this path", requestID)
		return
	}
	if err != nil {
		httperr.Write(w, http.StatusInternalServerError, httperr.CodeInternal, "failed to look up server", requestID)
		return
	}

	rec.NumStars, rec.NumRatings = registry.ApplyRating(rec.NumStars, rec.NumRatings, req.Rating)
	if err := a.Servers.Put(ctx, rec); err != nil {
		httperr.Write(w, http.StatusInternalServerError, httperr.CodeInternal, "failed to persist rating", requestID)
		return
	}

	a.auditAppend(ctx, requestID, id, audit.ActionRateServer, path, audit.DecisionAllow, "", req, http.StatusOK)
	writeJSON(w, http.StatusOK, map[string]any{"num_stars": rec.NumStars, "num_ratings": rec.NumRatings})
}

type rescanResult struct {
	Path     string   `json:"path"`
	Findings []string `json:"findings"`
	Clean    bool     `json:"clean"`
}

func rescan(rec registry.ServerRecord) rescanResult {
	var findings []string
	if !strings.HasPrefix(rec.ProxyPassURL, "https://") && !strings.HasPrefix(rec.ProxyPassURL, "http://") {
		findings = append(findings, "proxy_pass_url has no recognizable scheme")
	}
	for _, h := range rec.Headers {
		if h.Name == "Authorization" && h.Value == "" {
			findings = append(findings, "Authorization header template is empty")
		}
	}
	for _, t := range rec.ToolList {
		if t.Schema == nil {
			findings = append(findings, "tool \""+t.Name+"\" has no input schema")
		}
	}
	return rescanResult{Path: rec.Path, Findings: findings, Clean: len(findings) == 0}
}

// requireAdmin authenticates the caller and evaluates the admin action
// against §4.4's DecideAdminAction; on denial it writes the response and
// records a deny audit entry, returning ok=false so the caller stops.
func (a *API) requireAdmin(w http.ResponseWriter, r *http.Request, action authz.AdminAction, targetPath string) (authn.Identity, bool) {
	ctx := r.Context()
	requestID := middlewareRequestID(r)

	id, err := a.authenticate(ctx, r)
	if err != nil {
		httperr.Write(w, http.StatusUnauthorized, httperr.CodeUnauthorized, err.Error(), requestID)
		return authn.Identity{}, false
	}

	decision := a.Authz.DecideAdminAction(a.Policy.Current(), id, authz.AdminActionRequest{Action: action, TargetPath: targetPath})
	if !decision.Allowed {
		a.auditAppend(ctx, requestID, id, auditActionFor(action), targetPath, audit.DecisionDeny, string(decision.Reason), nil, http.StatusForbidden)
		httperr.Write(w, http.StatusForbidden, httperr.Code(decision.Reason), "request denied by scope policy", requestID)
		return authn.Identity{}, false
	}
	return id, true
}

func auditActionFor(action authz.AdminAction) audit.Action {
	switch action {
	case authz.ActionRegisterServer:
		return audit.ActionRegisterServer
	case authz.ActionEditServer:
		return audit.ActionEditServer
	case authz.ActionDeleteServer:
		return audit.ActionDeleteServer
	case authz.ActionToggleServer:
		return audit.ActionToggleServer
	case authz.ActionRescanServer:
		return audit.ActionRescanServer
	case authz.ActionRegisterAgent:
		return audit.ActionRegisterAgent
	case authz.ActionEditAgent:
		return audit.ActionEditAgent
	case authz.ActionDeleteAgent:
		return audit.ActionDeleteAgent
	case authz.ActionToggleAgent:
		return audit.ActionToggleAgent
	case authz.ActionViewAudit:
		return audit.ActionViewAudit
	case authz.ActionReloadScope:
		return audit.ActionReloadScope
	default:
		return audit.ActionMCPCall
	}
}
