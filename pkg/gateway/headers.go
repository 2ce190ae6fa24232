package gateway

import (
	"net/http"
	"os"
	"strings"

	"github.com/mcpgateway/registry/pkg/registry"
)

// passthroughHeaders is the §6 client-header allowlist. Authorization and
// Host are always stripped/rewritten, never copied.
var passthroughHeaders = []string{"Accept", "Content-Type"}

// buildUpstreamHeaders assembles the outbound header set for one forwarded
// call: the allowlisted client headers, the client's session-id header (if
// present), and the ServerRecord's own header templates with ${ENV_VAR}
// references resolved against the process environment (§3 ServerRecord
// Headers, §4.7 step 5).
func buildUpstreamHeaders(clientHeaders http.Header, rec registry.ServerRecord, sessionHeader string) http.Header {
	out := make(http.Header)

	for _, name := range passthroughHeaders {
		if v := clientHeaders.Get(name); v != "" {
			out.Set(name, v)
		}
	}
	if v := clientHeaders.Get(sessionHeader); v != "" {
		out.Set(sessionHeader, v)
	}

	for _, h := range rec.Headers {
		out.Set(h.Name, expandEnv(h.Value))
	}

	return out
}

// expandEnv resolves "${ENV_VAR}" references in a header value template.
// Unset variables expand to the empty string, matching os.Expand/ShellExpand
// semantics rather than failing the call — an operator misconfiguration
// surfaces as an upstream auth failure, not a gateway crash.
func expandEnv(template string) string {
	return os.Expand(template, func(key string) string {
		return os.Getenv(strings.TrimSpace(key))
	})
}
