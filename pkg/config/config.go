// Package config assembles the runtime configuration the
// registry-gateway binary needs to construct every component: the
// storage-backend selector, the OIDC/JWKS settings, the namespace, the
// hybrid-search weights, and the health-probe interval/timeout (§6
// "Environment variables the runtime reads"). It is read once at process
// startup; nothing here is reloaded at runtime except through the
// scopepolicy.Loader's own watch (owned separately).
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/mcpgateway/registry/pkg/discovery"
)

// Backend selects which repo.ServerRepository/repo.AgentRepository
// implementation the gateway constructs (§4.3).
type Backend string

const (
	BackendFilesystem Backend = "filesystem"
	BackendSearchIndex Backend = "search-index"
)

// Config is the fully-resolved runtime configuration.
type Config struct {
	// Storage.
	Backend   Backend
	DataDir   string // filesystem backend root, or the bleve-cluster data root
	Namespace string

	// Policy.
	ScopePolicyPath string

	// Token validation (C2).
	OIDCIssuer  string
	OIDCJWKSURL string
	OIDCAudience string
	GroupsClaim string

	// Discovery (C5).
	DiscoveryIndexPath string
	HybridBM25Weight   float64
	HybridKNNWeight    float64

	// Health monitor (C6).
	HealthInterval     time.Duration
	HealthProbeTimeout time.Duration

	// Audit (C9).
	AuditLogPath   string
	AuditSeqDBPath string

	// HTTP.
	ProxyAddr string // reverse proxy / public MCP surface
	AdminAddr string // admin REST API surface

	// Session-cookie signing secret (§6), opaque to this gateway beyond
	// being threaded to whatever admin-session signing a deployment layers
	// on top; the core spec never defines a session mechanism of its own.
	SessionSecret string
}

// FromEnv resolves a Config from environment variables, applying the
// defaults named throughout spec §4 and §6. Flags set on the `serve`
// command (cmd/registry-gateway) override the corresponding env var.
func FromEnv() (Config, error) {
	cfg := Config{
		Backend:            Backend(getEnv("REGISTRY_GATEWAY_BACKEND", string(BackendFilesystem))),
		DataDir:            getEnv("REGISTRY_GATEWAY_DATA_DIR", "./data"),
		Namespace:          getEnv("REGISTRY_GATEWAY_NAMESPACE", "default"),
		ScopePolicyPath:    getEnv("REGISTRY_GATEWAY_SCOPE_POLICY", "./scope-policy.yml"),
		OIDCIssuer:         os.Getenv("REGISTRY_GATEWAY_OIDC_ISSUER"),
		OIDCJWKSURL:        os.Getenv("REGISTRY_GATEWAY_OIDC_JWKS_URL"),
		OIDCAudience:       os.Getenv("REGISTRY_GATEWAY_OIDC_AUDIENCE"),
		GroupsClaim:        getEnv("REGISTRY_GATEWAY_GROUPS_CLAIM", "groups"),
		DiscoveryIndexPath: getEnv("REGISTRY_GATEWAY_DISCOVERY_INDEX", "./data/discovery.bleve"),
		AuditLogPath:       getEnv("REGISTRY_GATEWAY_AUDIT_LOG", "./data/audit.log"),
		AuditSeqDBPath:     getEnv("REGISTRY_GATEWAY_AUDIT_SEQDB", "./data/audit-sequence.db"),
		ProxyAddr:          getEnv("REGISTRY_GATEWAY_PROXY_ADDR", ":8811"),
		AdminAddr:          getEnv("REGISTRY_GATEWAY_ADMIN_ADDR", ":8812"),
		SessionSecret:      os.Getenv("REGISTRY_GATEWAY_SESSION_SECRET"),
	}

	var err error
	if cfg.HybridBM25Weight, err = getEnvFloat("REGISTRY_GATEWAY_HYBRID_BM25_WEIGHT", discovery.DefaultWeights().BM25); err != nil {
		return Config{}, err
	}
	if cfg.HybridKNNWeight, err = getEnvFloat("REGISTRY_GATEWAY_HYBRID_KNN_WEIGHT", discovery.DefaultWeights().KNN); err != nil {
		return Config{}, err
	}
	if cfg.HealthInterval, err = getEnvDuration("REGISTRY_GATEWAY_HEALTH_INTERVAL", 5*time.Minute); err != nil {
		return Config{}, err
	}
	if cfg.HealthProbeTimeout, err = getEnvDuration("REGISTRY_GATEWAY_HEALTH_PROBE_TIMEOUT", 10*time.Second); err != nil {
		return Config{}, err
	}

	if cfg.Backend != BackendFilesystem && cfg.Backend != BackendSearchIndex {
		return Config{}, fmt.Errorf("REGISTRY_GATEWAY_BACKEND must be %q or %q, got %q", BackendFilesystem, BackendSearchIndex, cfg.Backend)
	}
	if cfg.OIDCJWKSURL == "" {
		return Config{}, fmt.Errorf("REGISTRY_GATEWAY_OIDC_JWKS_URL is required")
	}
	return cfg, nil
}

// Weights returns the configured hybrid-search fusion weights (§4.5 step 4).
func (c Config) Weights() discovery.Weights {
	return discovery.Weights{BM25: c.HybridBM25Weight, KNN: c.HybridKNNWeight}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("parsing %s: %w", key, err)
	}
	return f, nil
}

func getEnvDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("parsing %s: %w", key, err)
	}
	return d, nil
}
