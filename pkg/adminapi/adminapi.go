// Package adminapi implements the administrative REST surface (C8): CRUD
// over servers and agents, on-demand health refresh, rating, and search,
// each going through C4 authorization, C3 persistence, and C9 audit in the
// order §4.8 specifies: admin check, validate, persist, notify C5/C6,
// audit.
package adminapi

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/mcpgateway/registry/pkg/audit"
	"github.com/mcpgateway/registry/pkg/authn"
	"github.com/mcpgateway/registry/pkg/authz"
	"github.com/mcpgateway/registry/pkg/discovery"
	"github.com/mcpgateway/registry/pkg/health"
	"github.com/mcpgateway/registry/pkg/repo"
	"github.com/mcpgateway/registry/pkg/scopepolicy"
)

var validate = validator.New()

// API bundles every collaborator an admin handler needs. None of these are
// owned by API; callers construct and share them with the proxy and CLI.
type API struct {
	Servers   repo.ServerRepository
	Agents    repo.AgentRepository
	Validator *authn.Validator
	Authz     *authz.Engine
	Policy    *scopepolicy.Loader
	Index     *discovery.Index
	Health    *health.Monitor
	Audit     audit.Logger
}

// New constructs an API. Index and Health may be nil in tests that only
// exercise CRUD.
func New(servers repo.ServerRepository, agents repo.AgentRepository, validator *authn.Validator, engine *authz.Engine, policy *scopepolicy.Loader, index *discovery.Index, monitor *health.Monitor, auditLog audit.Logger) *API {
	return &API{
		Servers:   servers,
		Agents:    agents,
		Validator: validator,
		Authz:     engine,
		Policy:    policy,
		Index:     index,
		Health:    monitor,
		Audit:     auditLog,
	}
}

// authenticate validates the caller's bearer token the same way the
// reverse proxy does (§4.2); the admin API has no anonymous endpoints, not
// even GETs, since visibility filtering still needs an identity's scopes.
func (a *API) authenticate(ctx context.Context, r *http.Request) (authn.Identity, error) {
	header := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return authn.Identity{}, errMissingToken
	}
	return a.Validator.Validate(ctx, strings.TrimPrefix(header, prefix))
}

var errMissingToken = &missingTokenError{}

type missingTokenError struct{}

func (*missingTokenError) Error() string { return "missing bearer token" }

func (a *API) auditAppend(ctx context.Context, requestID string, id authn.Identity, action audit.Action, target string, decision audit.Decision, denyReason string, delta any, status int) {
	if a.Audit == nil {
		return
	}
	entry := audit.Entry{
		RequestID:  requestID,
		Subject:    id.Subject,
		Action:     action,
		Target:     target,
		Decision:   decision,
		DenyReason: denyReason,
		Delta:      delta,
		HTTPStatus: status,
	}
	_ = a.Audit.Append(ctx, entry)
}
