package adminapi

import (
	"net/http"

	"github.com/mcpgateway/registry/pkg/audit"
	"github.com/mcpgateway/registry/pkg/authz"
	"github.com/mcpgateway/registry/pkg/httperr"
)

// ViewAudit handles GET /api/audit?limit=, gated behind the registry-admins
// scope like every other non-rate admin action (§4.4, §4.9).
func (a *API) ViewAudit(w http.ResponseWriter, r *http.Request) {
	requestID := middlewareRequestID(r)

	id, ok := a.requireAdmin(w, r, authz.ActionViewAudit, "")
	if !ok {
		return
	}
	if a.Audit == nil {
		httperr.Write(w, http.StatusInternalServerError, httperr.CodeInternal, "audit log unavailable", requestID)
		return
	}

	limit := atoiDefault(r.URL.Query().Get("limit"), 100)
	entries, err := a.Audit.Tail(r.Context(), limit)
	if err != nil {
		httperr.Write(w, http.StatusInternalServerError, httperr.CodeInternal, "failed to read audit log", requestID)
		return
	}

	a.auditAppend(r.Context(), requestID, id, audit.ActionViewAudit, "", audit.DecisionAllow, "", nil, http.StatusOK)
	writeJSON(w, http.StatusOK, entries)
}
