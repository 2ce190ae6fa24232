package commands

import (
	"fmt"

	"github.com/mcpgateway/registry/pkg/adminapi"
	"github.com/mcpgateway/registry/pkg/audit"
	"github.com/mcpgateway/registry/pkg/authn"
	"github.com/mcpgateway/registry/pkg/authz"
	"github.com/mcpgateway/registry/pkg/config"
	"github.com/mcpgateway/registry/pkg/discovery"
	"github.com/mcpgateway/registry/pkg/gateway"
	"github.com/mcpgateway/registry/pkg/health"
	"github.com/mcpgateway/registry/pkg/log"
	"github.com/mcpgateway/registry/pkg/registry"
	"github.com/mcpgateway/registry/pkg/repo"
	"github.com/mcpgateway/registry/pkg/repo/bleverepo"
	"github.com/mcpgateway/registry/pkg/repo/fsrepo"
	"github.com/mcpgateway/registry/pkg/scopepolicy"
	"github.com/mcpgateway/registry/pkg/telemetry"
)

// system bundles every constructed collaborator, the shape a test harness
// or another command (reindex, scope) needs without re-deriving the wiring
// serve() does.
type system struct {
	cfg config.Config

	servers repo.ServerRepository
	agents  repo.AgentRepository

	policy    *scopepolicy.Loader
	validator *authn.Validator
	authzEng  *authz.Engine
	index     *discovery.Index
	monitor   *health.Monitor
	auditLog  audit.Logger
	seqStore  *audit.SequenceStore
	tel       *telemetry.Telemetry

	api *adminapi.API
	gw  *gateway.Gateway

	closers []func() error
}

func (s *system) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			log.Warnf("shutdown: %v", err)
		}
	}
}

// buildSystem constructs C1-C9 from cfg in one pass; there is no narrower
// constructor for callers that need only a subset.
func buildSystem(cfg config.Config) (*system, error) {
	s := &system{cfg: cfg}

	policy, err := scopepolicy.NewLoader(cfg.ScopePolicyPath)
	if err != nil {
		return nil, fmt.Errorf("loading scope policy: %w", err)
	}
	s.policy = policy
	if stop, err := policy.WatchForChanges(); err != nil {
		log.Warnf("scope policy hot-reload watch not started: %v", err)
	} else {
		s.closers = append(s.closers, stop)
	}

	switch cfg.Backend {
	case config.BackendFilesystem:
		servers, err := fsrepo.NewServerStore(cfg.DataDir, cfg.Namespace)
		if err != nil {
			return nil, fmt.Errorf("opening filesystem server store: %w", err)
		}
		agents, err := fsrepo.NewAgentStore(cfg.DataDir, cfg.Namespace)
		if err != nil {
			return nil, fmt.Errorf("opening filesystem agent store: %w", err)
		}
		s.servers, s.agents = servers, agents
	case config.BackendSearchIndex:
		servers, err := bleverepo.NewServerStore(cfg.DataDir, cfg.Namespace)
		if err != nil {
			return nil, fmt.Errorf("opening search-index server store: %w", err)
		}
		agents, err := bleverepo.NewAgentStore(cfg.DataDir, cfg.Namespace)
		if err != nil {
			return nil, fmt.Errorf("opening search-index agent store: %w", err)
		}
		s.servers, s.agents = servers, agents
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}

	validator, err := authn.NewValidator(authn.Config{
		JWKSURL:     cfg.OIDCJWKSURL,
		Issuer:      cfg.OIDCIssuer,
		Audience:    cfg.OIDCAudience,
		GroupsClaim: cfg.GroupsClaim,
	})
	if err != nil {
		return nil, fmt.Errorf("starting token validator: %w", err)
	}
	s.validator = validator
	s.closers = append(s.closers, func() error { validator.Close(); return nil })

	s.authzEng = authz.New()

	index, err := discovery.NewIndex(cfg.DiscoveryIndexPath, discovery.HashEmbedder{}, cfg.Weights())
	if err != nil {
		return nil, fmt.Errorf("opening discovery index: %w", err)
	}
	s.index = index
	s.closers = append(s.closers, index.Close)

	auditLog := audit.NewFileLogger(audit.Config{Path: cfg.AuditLogPath})
	s.auditLog = auditLog
	s.closers = append(s.closers, auditLog.Close)

	seqStore, err := audit.OpenSequenceStore(cfg.AuditSeqDBPath)
	if err != nil {
		return nil, fmt.Errorf("opening audit sequence store: %w", err)
	}
	s.seqStore = seqStore
	s.closers = append(s.closers, seqStore.Close)

	prober := health.NewHTTPProber(nil)
	s.monitor = health.NewMonitor(s.servers, prober, health.Config{
		Interval:     cfg.HealthInterval,
		ProbeTimeout: cfg.HealthProbeTimeout,
	}, func(path string, status registry.HealthStatus) {
		log.Infof("health: %s -> %s", path, status)
		if status != registry.HealthHealthy {
			if _, err := s.index.DocCount(); err != nil {
				log.Warnf("discovery index unavailable after health transition: %v", err)
			}
		}
	})

	s.tel = telemetry.New()

	s.api = adminapi.New(s.servers, s.agents, s.validator, s.authzEng, s.policy, s.index, s.monitor, s.auditLog)
	s.gw = gateway.New(s.servers, s.validator, s.authzEng, s.policy, s.auditLog, s.tel, gateway.Config{})

	return s, nil
}
