package adminapi_test

import (
	"bytes"
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"

	"github.com/mcpgateway/registry/pkg/adminapi"
	"github.com/mcpgateway/registry/pkg/authn"
	"github.com/mcpgateway/registry/pkg/authz"
	"github.com/mcpgateway/registry/pkg/discovery"
	"github.com/mcpgateway/registry/pkg/registry"
	"github.com/mcpgateway/registry/pkg/repo/fsrepo"
	"github.com/mcpgateway/registry/pkg/scopepolicy"
)

type jwk struct {
	Kty string `json:"kty"`
	Kid string `json:"kid"`
	Use string `json:"use"`
	Alg string `json:"alg"`
	N   string `json:"n"`
	E   string `json:"e"`
}

const scopeDoc = `
group_mappings:
  lob1:
    - lob1-full
    - registry-admins
  lob2:
    - lob2-partial
ui_scopes:
  lob1-full:
    visible_servers: ["*"]
    visible_agents: []
  registry-admins:
    visible_servers: ["*"]
    visible_agents: []
  lob2-partial:
    visible_servers: ["/weather"]
    visible_agents: []
mcp_server_scopes:
  lob1-full:
    - server: "*"
      methods: ["*"]
      tools: ["*"]
`

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

func newTestAPI(t *testing.T) (*adminapi.API, *rsa.PrivateKey, string) {
	t.Helper()

	dir := t.TempDir()
	scopePath := filepath.Join(dir, "scope-policy.yml")
	require.NoError(t, os.WriteFile(scopePath, []byte(scopeDoc), 0o644))
	policy, err := scopepolicy.NewLoader(scopePath)
	require.NoError(t, err)

	servers, err := fsrepo.NewServerStore(dir, "default")
	require.NoError(t, err)

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	set := map[string][]jwk{
		"keys": {{
			Kty: "RSA", Kid: "key-1", Use: "sig", Alg: "RS256",
			N: base64.RawURLEncoding.EncodeToString(key.PublicKey.N.Bytes()),
			E: base64.RawURLEncoding.EncodeToString(big.NewInt(int64(key.PublicKey.E)).Bytes()),
		}},
	}
	jwks := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(set)
	}))
	t.Cleanup(jwks.Close)
	validator, err := authn.NewValidator(authn.Config{JWKSURL: jwks.URL})
	require.NoError(t, err)
	t.Cleanup(validator.Close)

	indexPath := filepath.Join(dir, "index.bleve")
	index, err := discovery.NewIndex(indexPath, discovery.HashEmbedder{}, discovery.DefaultWeights())
	require.NoError(t, err)
	t.Cleanup(func() { _ = index.Close() })

	api := adminapi.New(servers, nil, validator, authz.New(), policy, index, nil, nil)
	return api, key, jwks.URL
}

func doJSON(t *testing.T, router http.Handler, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

// S3 — listing filter: lob2's visible_servers is scoped to /weather only,
// even though /currenttime is also registered.
func TestListServers_S3_FiltersToVisibleSet(t *testing.T) {
	api, key, _ := newTestAPI(t)
	router := adminapi.NewRouter(api)
	ctx := context.Background()

	require.NoError(t, api.Servers.Put(ctx, registry.ServerRecord{Path: "/weather", ServerName: "weather", ProxyPassURL: "http://weather.local", Enabled: true}))
	require.NoError(t, api.Servers.Put(ctx, registry.ServerRecord{Path: "/currenttime", ServerName: "currenttime", ProxyPassURL: "http://ct.local", Enabled: true}))

	token := signToken(t, key, "key-1", []string{"lob2"})
	rec := doJSON(t, router, http.MethodGet, "/api/servers", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var out []registry.ServerRecord
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	require.Len(t, out, 1)
	require.Equal(t, "/weather", out[0].Path)
}

// S4 — toggling a server off removes it from discovery search results
// without needing a reindex; toggling back on restores it.
func TestToggleServer_S4_UpdatesDiscoveryVisibility(t *testing.T) {
	api, key, _ := newTestAPI(t)
	router := adminapi.NewRouter(api)
	ctx := context.Background()

	rec := registry.ServerRecord{
		Path: "/weather", ServerName: "weather", ProxyPassURL: "http://weather.local", Enabled: true,
		ToolList: []registry.ToolDescriptor{{Name: "get_forecast", ParsedDescription: registry.ParsedDoc{Main: "weather forecast lookup"}}},
	}
	require.NoError(t, api.Servers.Put(ctx, rec))
	require.NoError(t, api.Index.IndexDocument(discovery.Document{
		EntityID: "/weather::get_forecast", EntityType: discovery.EntityTool,
		Text: "weather forecast lookup", ServerPath: "/weather", Enabled: true,
	}))

	search := func() discovery.SearchResult {
		result, err := api.Index.Search(discovery.Query{Text: "weather forecast", TopKServices: 5, TopNTools: 5})
		require.NoError(t, err)
		return result
	}

	before := search()
	require.Len(t, before.Services, 1)

	token := signToken(t, key, "key-1", []string{"lob1"})
	toggleResp := doJSON(t, router, http.MethodPost, "/api/servers/%2Fweather/toggle", token, map[string]bool{"enabled": false})
	require.Equal(t, http.StatusOK, toggleResp.Code)

	after := search()
	require.Empty(t, after.Services, "disabled server's tools must drop out of search results")

	reEnable := doJSON(t, router, http.MethodPost, "/api/servers/%2Fweather/toggle", token, map[string]bool{"enabled": true})
	require.Equal(t, http.StatusOK, reEnable.Code)

	restored := search()
	require.Len(t, restored.Services, 1, "re-enabling must restore the server in search results")
}
