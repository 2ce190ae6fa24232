package adminapi

import (
	"net/http"
	"strconv"

	"github.com/mcpgateway/registry/pkg/discovery"
	"github.com/mcpgateway/registry/pkg/httperr"
)

// Search handles GET /api/search?q=&top_k_services=&top_n_tools= (§4.5
// query-time, §6). Results are filtered to servers visible to the caller
// before being grouped, so a hidden server's tools never leak into a
// search response even as a byproduct of scoring.
func (a *API) Search(w http.ResponseWriter, r *http.Request) {
	requestID := middlewareRequestID(r)
	ctx := r.Context()

	id, err := a.authenticate(ctx, r)
	if err != nil {
		httperr.Write(w, http.StatusUnauthorized, httperr.CodeUnauthorized, err.Error(), requestID)
		return
	}
	if a.Index == nil {
		httperr.Write(w, http.StatusInternalServerError, httperr.CodeInternal, "search index unavailable", requestID)
		return
	}

	q := discovery.Query{
		Text:         r.URL.Query().Get("q"),
		TopKServices: atoiDefault(r.URL.Query().Get("top_k_services"), 5),
		TopNTools:    atoiDefault(r.URL.Query().Get("top_n_tools"), 5),
		VisibleServer: func(serverPath string) bool {
			return a.Authz.CanViewServer(a.Policy.Current(), id, serverPath) ||
				a.Authz.CanViewAgent(a.Policy.Current(), id, serverPath)
		},
	}

	result, err := a.Index.Search(q)
	if err != nil {
		httperr.Write(w, http.StatusInternalServerError, httperr.CodeInternal, "search failed", requestID)
		return
	}
	if result.Degraded {
		w.Header().Set("X-Search-Degraded", "true")
	}
	writeJSON(w, http.StatusOK, result)
}

func atoiDefault(s string, def int) int {
	if s == "" {
		return def
	}
	v, err := strconv.Atoi(s)
	if err != nil || v <= 0 {
		return def
	}
	return v
}
