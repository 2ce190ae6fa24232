package gateway_test

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"io"
	"math/big"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"

	"github.com/mcpgateway/registry/pkg/authn"
	"github.com/mcpgateway/registry/pkg/authz"
	"github.com/mcpgateway/registry/pkg/gateway"
	"github.com/mcpgateway/registry/pkg/registry"
	"github.com/mcpgateway/registry/pkg/repo/fsrepo"
	"github.com/mcpgateway/registry/pkg/scopepolicy"
)

// End-to-end scenarios S1/S2/S6 from §8: a forwarded MCP call that's
// permitted, one that's forbidden, and an SSE stream forwarded frame by
// frame without buffering.

type jwk struct {
	Kty string `json:"kty"`
	Kid string `json:"kid"`
	Use string `json:"use"`
	Alg string `json:"alg"`
	N   string `json:"n"`
	E   string `json:"e"`
}

func startJWKSServer(t *testing.T, key *rsa.PrivateKey, kid string) *httptest.Server {
	t.Helper()
	set := map[string][]jwk{
		"keys": {{
			Kty: "RSA", Kid: kid, Use: "sig", Alg: "RS256",
			N: base64.RawURLEncoding.EncodeToString(key.PublicKey.N.Bytes()),
			E: base64.RawURLEncoding.EncodeToString(big.NewInt(int64(key.PublicKey.E)).Bytes()),
		}},
	}
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(set)
	}))
}

func signToken(t *testing.T, key *rsa.PrivateKey, kid string, groups []string) string {
	t.Helper()
	claims := authn.Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "user-1",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
		Groups: groups,
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	tok.Header["kid"] = kid
	s, err := tok.SignedString(key)
	require.NoError(t, err)
	return s
}

const scopeDoc = `
group_mappings:
  lob1:
    - lob1-ro
ui_scopes:
  lob1-ro:
    visible_servers: ["/currenttime"]
    visible_agents: []
mcp_server_scopes:
  lob1-ro:
    - server: "/currenttime"
      methods: ["*"]
      tools: ["*"]
`

func newTestGateway(t *testing.T, upstreamURL string) (*gateway.Gateway, string) {
	t.Helper()

	dir := t.TempDir()
	scopePath := filepath.Join(dir, "scope-policy.yml")
	require.NoError(t, os.WriteFile(scopePath, []byte(scopeDoc), 0o644))
	policy, err := scopepolicy.NewLoader(scopePath)
	require.NoError(t, err)

	servers, err := fsrepo.NewServerStore(dir, "default")
	require.NoError(t, err)
	require.NoError(t, servers.Put(context.Background(), registry.ServerRecord{
		Path:         "/currenttime",
		ServerName:   "currenttime",
		ProxyPassURL: upstreamURL,
		Enabled:      true,
		HealthStatus: registry.HealthUnknown,
	}))

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	jwks := startJWKSServer(t, key, "key-1")
	t.Cleanup(jwks.Close)
	validator, err := authn.NewValidator(authn.Config{JWKSURL: jwks.URL})
	require.NoError(t, err)
	t.Cleanup(validator.Close)

	gw := gateway.New(servers, validator, authz.New(), policy, nil, nil, gateway.Config{})
	token := signToken(t, key, "key-1", []string{"lob1"})
	return gw, token
}

// S1 — permitted tool call, JSON response.
func TestGateway_S1_PermittedToolCall(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		var env struct {
			Method string `json:"method"`
		}
		_ = json.Unmarshal(body, &env)
		require.Equal(t, "tools/call", env.Method)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"jsonrpc":"2.0","id":1,"result":{"time":"2025-01-01T00:00:00Z"}}`))
	}))
	defer upstream.Close()

	gw, token := newTestGateway(t, upstream.URL)

	body := `{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"current_time_by_timezone","arguments":{"tz_name":"UTC"}}}`
	req := httptest.NewRequest(http.MethodPost, "/currenttime/mcp", io.NopCloser(strings.NewReader(body)))
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()

	gw.ServeHTTP(rec, req, "/currenttime")

	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"time":"2025-01-01T00:00:00Z"`)
}

// scopeDocS2 gives lob2 a rule that matches /currenttime but permits only
// initialize/ping, so a tools/call from lob2 is denied for matching the
// server without matching the method, rather than matching no rule at all.
const scopeDocS2 = `
group_mappings:
  lob2:
    - lob2-readonly
ui_scopes:
  lob2-readonly:
    visible_servers: ["/currenttime"]
    visible_agents: []
mcp_server_scopes:
  lob2-readonly:
    - server: "/currenttime"
      methods: ["initialize", "ping"]
      tools: []
`

// S2 — forbidden tool call: a group whose rule matches the server but not
// the tools/call method gets 403 with method_not_permitted, and no upstream
// request is issued.
func TestGateway_S2_ForbiddenToolCall(t *testing.T) {
	upstreamCalled := false
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		upstreamCalled = true
		w.WriteHeader(http.StatusOK)
	}))
	defer upstream.Close()

	dir := t.TempDir()
	scopePath := filepath.Join(dir, "scope-policy.yml")
	require.NoError(t, os.WriteFile(scopePath, []byte(scopeDocS2), 0o644))
	policy, err := scopepolicy.NewLoader(scopePath)
	require.NoError(t, err)

	servers, err := fsrepo.NewServerStore(dir, "default")
	require.NoError(t, err)
	require.NoError(t, servers.Put(context.Background(), registry.ServerRecord{
		Path: "/currenttime", ServerName: "currenttime", ProxyPassURL: upstream.URL,
		Enabled: true, HealthStatus: registry.HealthUnknown,
	}))

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	jwks := startJWKSServer(t, key, "key-1")
	defer jwks.Close()
	validator, err := authn.NewValidator(authn.Config{JWKSURL: jwks.URL})
	require.NoError(t, err)
	defer validator.Close()

	gw := gateway.New(servers, validator, authz.New(), policy, nil, nil, gateway.Config{})
	token := signToken(t, key, "key-1", []string{"lob2"}) // rule matches server, not tools/call method

	body := `{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"current_time_by_timezone"}}`
	req := httptest.NewRequest(http.MethodPost, "/currenttime/mcp", io.NopCloser(strings.NewReader(body)))
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()

	gw.ServeHTTP(rec, req, "/currenttime")

	require.Equal(t, http.StatusForbidden, rec.Code)
	require.False(t, upstreamCalled, "upstream must not be called on a denied request")
	require.Contains(t, rec.Body.String(), "method_not_permitted")
}

// S6 — SSE streaming: frames forwarded in order with blank-line boundaries
// preserved, no buffering beyond one frame.
func TestGateway_S6_SSEStreaming(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		flusher := w.(http.Flusher)
		_, _ = w.Write([]byte("data: {\"seq\":1}\n\n"))
		flusher.Flush()
		_, _ = w.Write([]byte("data: {\"seq\":2}\n\n"))
		flusher.Flush()
	}))
	defer upstream.Close()

	gw, token := newTestGateway(t, upstream.URL)

	body := `{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"x"}}`
	req := httptest.NewRequest(http.MethodPost, "/currenttime/sse", io.NopCloser(strings.NewReader(body)))
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "text/event-stream")
	rec := httptest.NewRecorder()

	gw.ServeHTTP(rec, req, "/currenttime")

	require.Equal(t, http.StatusOK, rec.Code)
	out := rec.Body.String()
	require.Contains(t, out, `data: {"seq":1}`)
	require.Contains(t, out, `data: {"seq":2}`)
	require.True(t, indexOf(out, `"seq":1`) < indexOf(out, `"seq":2`), "frames must arrive in order")
}

func indexOf(haystack, needle string) int {
	for i := 0; i+len(needle) <= len(haystack); i++ {
		if haystack[i:i+len(needle)] == needle {
			return i
		}
	}
	return -1
}

