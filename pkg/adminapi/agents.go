package adminapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/mcpgateway/registry/pkg/audit"
	"github.com/mcpgateway/registry/pkg/authz"
	"github.com/mcpgateway/registry/pkg/httperr"
	"github.com/mcpgateway/registry/pkg/registry"
	"github.com/mcpgateway/registry/pkg/repo"
)

// RegisterAgent handles POST /api/agents/register, the A2A-agent analogue
// of RegisterServer (§6 "analogous /api/agents/...").
func (a *API) RegisterAgent(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middlewareRequestID(r)

	id, ok := a.requireAdmin(w, r, authz.ActionRegisterAgent, "")
	if !ok {
		return
	}

	var req RegisterAgentRequest
	if err := decodeAndValidate(r, &req); err != nil {
		httperr.Write(w, http.StatusBadRequest, httperr.CodeValidation, err.Error(), requestID)
		return
	}

	rec := req.toRecord()
	if err := a.Agents.Put(ctx, rec, repo.RequireAbsent()); err != nil {
		if errors.Is(err, repo.ErrConflict) {
			httperr.Write(w, http.StatusConflict, httperr.CodeConflict, "an agent is already registered at this path", requestID)
			return
		}
		httperr.Write(w, http.StatusInternalServerError, httperr.CodeInternal, "failed to persist agent", requestID)
		return
	}
	_ = a.reindexAgent(rec)

	a.auditAppend(ctx, requestID, id, audit.ActionRegisterAgent, rec.Path, audit.DecisionAllow, "", rec, http.StatusCreated)
	writeJSON(w, http.StatusCreated, rec)
}

// ListAgents handles GET /api/agents, filtered to the caller's visible set.
func (a *API) ListAgents(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middlewareRequestID(r)

	id, err := a.authenticate(ctx, r)
	if err != nil {
		httperr.Write(w, http.StatusUnauthorized, httperr.CodeUnauthorized, err.Error(), requestID)
		return
	}

	all, err := a.Agents.List(ctx)
	if err != nil {
		httperr.Write(w, http.StatusInternalServerError, httperr.CodeInternal, "failed to list agents", requestID)
		return
	}
	allPaths := make([]string, len(all))
	byPath := make(map[string]registry.AgentRecord, len(all))
	for i, rec := range all {
		allPaths[i] = rec.Path
		byPath[rec.Path] = rec
	}
	visible := a.Authz.VisibleAgents(a.Policy.Current(), id, allPaths)
	out := make([]registry.AgentRecord, 0, len(visible))
	for _, p := range visible {
		out = append(out, byPath[p])
	}
	writeJSON(w, http.StatusOK, out)
}

// GetAgent handles GET /api/agents/{path}.
func (a *API) GetAgent(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middlewareRequestID(r)
	path := chi.URLParam(r, "path")

	id, err := a.authenticate(ctx, r)
	if err != nil {
		httperr.Write(w, http.StatusUnauthorized, httperr.CodeUnauthorized, err.Error(), requestID)
		return
	}
	if !a.Authz.CanViewAgent(a.Policy.Current(), id, path) {
		httperr.Write(w, http.StatusNotFound, httperr.CodeNotFound, "no agent registered at this path", requestID)
		return
	}

	rec, err := a.Agents.Get(ctx, path)
	if errors.Is(err, repo.ErrNotFound) {
		httperr.Write(w, http.StatusNotFound, httperr.CodeNotFound, "no agent registered at this path", requestID)
		return
	}
	if err != nil {
		httperr.Write(w, http.StatusInternalServerError, httperr.CodeInternal, "failed to look up agent", requestID)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// EditAgent handles PUT /api/agents/{path}.
func (a *API) EditAgent(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middlewareRequestID(r)
	path := chi.URLParam(r, "path")

	id, ok := a.requireAdmin(w, r, authz.ActionEditAgent, path)
	if !ok {
		return
	}

	existing, err := a.Agents.Get(ctx, path)
	if errors.Is(err, repo.ErrNotFound) {
		httperr.Write(w, http.StatusNotFound, httperr.CodeNotFound, "no agent registered at this path", requestID)
		return
	}
	if err != nil {
		httperr.Write(w, http.StatusInternalServerError, httperr.CodeInternal, "failed to look up agent", requestID)
		return
	}

	var req EditAgentRequest
	if err := decodeAndValidate(r, &req); err != nil {
		httperr.Write(w, http.StatusBadRequest, httperr.CodeValidation, err.Error(), requestID)
		return
	}

	updated := req.applyTo(existing)
	if err := a.Agents.Put(ctx, updated); err != nil {
		httperr.Write(w, http.StatusInternalServerError, httperr.CodeInternal, "failed to persist agent", requestID)
		return
	}
	_ = a.reindexAgent(updated)

	a.auditAppend(ctx, requestID, id, audit.ActionEditAgent, path, audit.DecisionAllow, "", updated, http.StatusOK)
	writeJSON(w, http.StatusOK, updated)
}

// DeleteAgent handles DELETE /api/agents/{path}.
func (a *API) DeleteAgent(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middlewareRequestID(r)
	path := chi.URLParam(r, "path")

	id, ok := a.requireAdmin(w, r, authz.ActionDeleteAgent, path)
	if !ok {
		return
	}

	if err := a.Agents.Delete(ctx, path); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			httperr.Write(w, http.StatusNotFound, httperr.CodeNotFound, "no agent registered at this path", requestID)
			return
		}
		httperr.Write(w, http.StatusInternalServerError, httperr.CodeInternal, "failed to delete agent", requestID)
		return
	}
	if a.Index != nil {
		_ = a.Index.DeleteServer(path)
	}

	a.auditAppend(ctx, requestID, id, audit.ActionDeleteAgent, path, audit.DecisionAllow, "", nil, http.StatusNoContent)
	w.WriteHeader(http.StatusNoContent)
}

// ToggleAgent handles POST /api/agents/{path}/toggle.
func (a *API) ToggleAgent(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middlewareRequestID(r)
	path := chi.URLParam(r, "path")

	id, ok := a.requireAdmin(w, r, authz.ActionToggleAgent, path)
	if !ok {
		return
	}

	var req ToggleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httperr.Write(w, http.StatusBadRequest, httperr.CodeValidation, "malformed JSON body", requestID)
		return
	}

	if err := a.Agents.Toggle(ctx, path, req.Enabled); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			httperr.Write(w, http.StatusNotFound, httperr.CodeNotFound, "no agent registered at this path", requestID)
			return
		}
		httperr.Write(w, http.StatusInternalServerError, httperr.CodeInternal, "failed to toggle agent", requestID)
		return
	}
	if a.Index != nil {
		_ = a.Index.SetServerEnabled(path, req.Enabled)
	}

	a.auditAppend(ctx, requestID, id, audit.ActionToggleAgent, path, audit.DecisionAllow, "", req, http.StatusOK)
	writeJSON(w, http.StatusOK, req)
}

// AgentSkills handles GET /api/agents/{path}/skills (§4.8 supplement,
// mirroring ServerTools).
func (a *API) AgentSkills(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middlewareRequestID(r)
	path := chi.URLParam(r, "path")

	id, err := a.authenticate(ctx, r)
	if err != nil {
		httperr.Write(w, http.StatusUnauthorized, httperr.CodeUnauthorized, err.Error(), requestID)
		return
	}
	if !a.Authz.CanViewAgent(a.Policy.Current(), id, path) {
		httperr.Write(w, http.StatusNotFound, httperr.CodeNotFound, "no agent registered at this path", requestID)
		return
	}

	rec, err := a.Agents.Get(ctx, path)
	if errors.Is(err, repo.ErrNotFound) {
		httperr.Write(w, http.StatusNotFound, httperr.CodeNotFound, "no agent registered at this path", requestID)
		return
	}
	if err != nil {
		httperr.Write(w, http.StatusInternalServerError, httperr.CodeInternal, "failed to look up agent", requestID)
		return
	}
	writeJSON(w, http.StatusOK, rec.Skills)
}

// RateAgent handles POST /api/agents/{path}/rate.
func (a *API) RateAgent(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middlewareRequestID(r)
	path := chi.URLParam(r, "path")

	id, err := a.authenticate(ctx, r)
	if err != nil {
		httperr.Write(w, http.StatusUnauthorized, httperr.CodeUnauthorized, err.Error(), requestID)
		return
	}
	if !a.Authz.CanViewAgent(a.Policy.Current(), id, path) {
		httperr.Write(w, http.StatusNotFound, httperr.CodeNotFound, "no agent registered at this path", requestID)
		return
	}

	var req RateRequest
	if err := decodeAndValidate(r, &req); err != nil {
		httperr.Write(w, http.StatusBadRequest, httperr.CodeValidation, err.Error(), requestID)
		return
	}

	rec, err := a.Agents.Get(ctx, path)
	if errors.Is(err, repo.ErrNotFound) {
		httperr.Write(w, http.StatusNotFound, httperr.CodeNotFound, "no agent registered at this path", requestID)
		return
	}
	if err != nil {
		httperr.Write(w, http.StatusInternalServerError, httperr.CodeInternal, "failed to look up agent", requestID)
		return
	}

	rec.NumStars, rec.NumRatings = registry.ApplyRating(rec.NumStars, rec.NumRatings, req.Rating)
	if err := a.Agents.Put(ctx, rec); err != nil {
		httperr.Write(w, http.StatusInternalServerError, httperr.CodeInternal, "failed to persist rating", requestID)
		return
	}

	a.auditAppend(ctx, requestID, id, audit.ActionRateAgent, path, audit.DecisionAllow, "", req, http.StatusOK)
	writeJSON(w, http.StatusOK, map[string]any{"num_stars": rec.NumStars, "num_ratings": rec.NumRatings})
}
