package adminapi

import (
	"net/http"

	"github.com/mcpgateway/registry/pkg/audit"
	"github.com/mcpgateway/registry/pkg/authz"
	"github.com/mcpgateway/registry/pkg/httperr"
)

// ReloadScopePolicy handles POST /api/scope/reload: the explicit-admin-
// request half of §4.1's "hot-reloaded on explicit admin request or file
// change" (the other half, the file-watch path, runs unconditionally via
// scopepolicy.Loader.WatchForChanges and needs no endpoint). A validation
// failure leaves the previous snapshot live and is reported as 500 with
// the structured reasons (§4.1, §7 "Policy-reload failures preserve the
// previous policy").
func (a *API) ReloadScopePolicy(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middlewareRequestID(r)

	id, ok := a.requireAdmin(w, r, authz.ActionReloadScope, "")
	if !ok {
		return
	}

	if err := a.Policy.Reload(); err != nil {
		a.auditAppend(ctx, requestID, id, audit.ActionReloadScope, "", audit.DecisionDeny, "reload_failed", nil, http.StatusInternalServerError)
		httperr.Write(w, http.StatusInternalServerError, httperr.CodeInternal, err.Error(), requestID)
		return
	}

	a.auditAppend(ctx, requestID, id, audit.ActionReloadScope, "", audit.DecisionAllow, "", nil, http.StatusOK)
	writeJSON(w, http.StatusOK, map[string]string{"status": "reloaded"})
}
