// Package authz implements the authorization engine (C4): a pure function
// of (Identity, Request) evaluated against the current scope-policy
// snapshot. It never touches storage or the network.
package authz

import (
	"github.com/mcpgateway/registry/pkg/authn"
	"github.com/mcpgateway/registry/pkg/log"
	"github.com/mcpgateway/registry/pkg/scopepolicy"
)

// Reason is the machine-readable deny cause from §4.4.
type Reason string

const (
	ReasonNone               Reason = ""
	ReasonNoMatchingRule     Reason = "no_matching_rule"
	ReasonServerNotFound     Reason = "server_not_found"
	ReasonServerDisabled     Reason = "server_disabled"
	ReasonTokenExpired       Reason = "token_expired"
	ReasonMethodNotPermitted Reason = "method_not_permitted"
	ReasonToolNotPermitted   Reason = "tool_not_permitted"
)

// Decision is the engine's ALLOW/DENY verdict.
type Decision struct {
	Allowed bool
	Reason  Reason
}

// Allow is the zero-reason ALLOW decision.
func Allow() Decision { return Decision{Allowed: true} }

// Deny builds a DENY decision carrying reason.
func Deny(reason Reason) Decision { return Decision{Allowed: false, Reason: reason} }

// MCPCallRequest is an MCP call evaluation request: (server_path, method,
// tool_name?). ToolName is only meaningful when Method == "tools/call".
type MCPCallRequest struct {
	ServerPath string
	Method     string
	ToolName   string
}

// AdminAction names the admin operations §4.4 gates behind the
// registry-admins scope, except ActionRate which any authenticated caller
// may perform.
type AdminAction string

const (
	ActionRegisterServer AdminAction = "register_server"
	ActionEditServer     AdminAction = "edit_server"
	ActionDeleteServer   AdminAction = "delete_server"
	ActionToggleServer   AdminAction = "toggle_server"
	ActionRescanServer   AdminAction = "rescan_server"
	ActionRegisterAgent  AdminAction = "register_agent"
	ActionEditAgent      AdminAction = "edit_agent"
	ActionDeleteAgent    AdminAction = "delete_agent"
	ActionToggleAgent    AdminAction = "toggle_agent"
	ActionViewAudit      AdminAction = "view_audit"
	ActionRate           AdminAction = "rate"
	ActionReloadScope    AdminAction = "reload_scope_policy"
)

// AdminActionRequest is an admin-action evaluation request.
type AdminActionRequest struct {
	Action     AdminAction
	TargetPath string
}

// Engine evaluates authorization decisions against a scope-policy document.
// It holds no state of its own; callers supply the current policy snapshot
// (typically scopepolicy.Loader.Current()) on every call so a hot reload
// never leaves a stale Engine around.
type Engine struct{}

// New returns a stateless Engine.
func New() *Engine { return &Engine{} }

// scopesFor translates groups to internal scopes via doc, logging unknown
// groups rather than failing the request (§4.4 step 1).
func scopesFor(doc *scopepolicy.Document, groups []string) []string {
	scopes, unknown := doc.ScopesFor(groups)
	for _, g := range unknown {
		log.Warnf("authz: group %q has no scope mapping", g)
	}
	return scopes
}

// DecideMCPCall evaluates an MCP call request per §4.4's algorithm: union
// semantics across all rules attached to the caller's scopes, first match
// grants, deny-by-default. When nothing matches, the Reason escalates from
// ReasonNoMatchingRule as rules get closer to granting: a rule matching the
// server but not the method yields ReasonMethodNotPermitted, and a rule
// matching the server and method but not the tool yields
// ReasonToolNotPermitted, overriding any weaker reason already found.
func (e *Engine) DecideMCPCall(doc *scopepolicy.Document, id authn.Identity, req MCPCallRequest) Decision {
	reason := ReasonNoMatchingRule
	for _, scope := range scopesFor(doc, id.Groups) {
		for _, rule := range doc.MCPServerScopes[scope] {
			if !matches(rule.Server, req.ServerPath) {
				continue
			}
			if !matchesAny(rule.Methods, req.Method) {
				if reason == ReasonNoMatchingRule {
					reason = ReasonMethodNotPermitted
				}
				continue
			}
			if req.Method == "tools/call" && !matchesAny(rule.Tools, req.ToolName) {
				reason = ReasonToolNotPermitted
				continue
			}
			return Allow()
		}
	}
	return Deny(reason)
}

// DecideAdminAction evaluates an admin action: "rate" is open to any
// authenticated identity; every other action requires either the dedicated
// registry-admins scope, or — for agent actions — an agent_scopes rule
// granting that specific action on the target path (additive union, same
// tie-break as DecideMCPCall).
func (e *Engine) DecideAdminAction(doc *scopepolicy.Document, id authn.Identity, req AdminActionRequest) Decision {
	if req.Action == ActionRate {
		return Allow()
	}
	scopes := scopesFor(doc, id.Groups)
	for _, scope := range scopes {
		if scope == scopepolicy.AdminScope {
			return Allow()
		}
	}
	if paths := agentActionPaths(doc, scopes, req.Action); paths != nil {
		for _, p := range paths {
			if isWildcard(p) || p == req.TargetPath {
				return Allow()
			}
		}
	}
	return Deny(ReasonNoMatchingRule)
}

// agentActionPaths returns nil when req.Action isn't an agent_scopes-gated
// action, so callers can tell "no such rule category" apart from "rule
// category present but empty".
func agentActionPaths(doc *scopepolicy.Document, scopes []string, action AdminAction) []string {
	var paths []string
	found := false
	for _, scope := range scopes {
		rule, ok := doc.AgentScopes[scope]
		if !ok {
			continue
		}
		var field []string
		switch action {
		case ActionRegisterAgent:
			field = rule.PublishAgent
		case ActionEditAgent, ActionToggleAgent:
			field = rule.ModifyAgent
		case ActionDeleteAgent:
			field = rule.DeleteAgent
		default:
			continue
		}
		found = true
		paths = append(paths, field...)
	}
	if !found {
		return nil
	}
	return paths
}

// VisibleServers returns the subset of all known server paths visible to
// id, per §4.4's filtered-listing semantics (union across the caller's
// scopes; "*"/"all" means every path).
func (e *Engine) VisibleServers(doc *scopepolicy.Document, id authn.Identity, allPaths []string) []string {
	return filterVisible(doc, id, allPaths, func(v scopepolicy.VisibilityRule) []string { return v.VisibleServers })
}

// VisibleAgents returns the subset of all known agent paths visible to id.
func (e *Engine) VisibleAgents(doc *scopepolicy.Document, id authn.Identity, allPaths []string) []string {
	return filterVisible(doc, id, allPaths, func(v scopepolicy.VisibilityRule) []string { return v.VisibleAgents })
}

func filterVisible(doc *scopepolicy.Document, id authn.Identity, allPaths []string, pick func(scopepolicy.VisibilityRule) []string) []string {
	allowed := make(map[string]bool)
	wildcard := false
	for _, scope := range scopesFor(doc, id.Groups) {
		rule, ok := doc.UIScopes[scope]
		if !ok {
			continue
		}
		for _, p := range pick(rule) {
			if isWildcard(p) {
				wildcard = true
				continue
			}
			allowed[p] = true
		}
	}
	if wildcard {
		return allPaths
	}
	out := make([]string, 0, len(allowed))
	for _, p := range allPaths {
		if allowed[p] {
			out = append(out, p)
		}
	}
	return out
}

// CanViewServer reports whether id's scopes make path visible, used by the
// admin API's single-server handlers and its search filter to check one
// path without building a full listing.
func (e *Engine) CanViewServer(doc *scopepolicy.Document, id authn.Identity, path string) bool {
	return canView(doc, id, path, func(v scopepolicy.VisibilityRule) []string { return v.VisibleServers })
}

// CanViewAgent is the agent analogue of CanViewServer.
func (e *Engine) CanViewAgent(doc *scopepolicy.Document, id authn.Identity, path string) bool {
	return canView(doc, id, path, func(v scopepolicy.VisibilityRule) []string { return v.VisibleAgents })
}

func canView(doc *scopepolicy.Document, id authn.Identity, path string, pick func(scopepolicy.VisibilityRule) []string) bool {
	for _, scope := range scopesFor(doc, id.Groups) {
		rule, ok := doc.UIScopes[scope]
		if !ok {
			continue
		}
		for _, p := range pick(rule) {
			if isWildcard(p) || p == path {
				return true
			}
		}
	}
	return false
}

func isWildcard(s string) bool { return s == "*" || s == "all" }

func matches(pattern, value string) bool {
	return pattern == "*" || pattern == value
}

func matchesAny(patterns []string, value string) bool {
	for _, p := range patterns {
		if matches(p, value) {
			return true
		}
	}
	return false
}
