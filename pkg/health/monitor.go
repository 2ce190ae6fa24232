// Package health implements the background health monitor (C6): a
// scheduled probe loop, bounded in-flight concurrency via
// golang.org/x/sync/semaphore (the teacher's own choice for bounded
// fan-out), per-server backoff on repeated failure, and an on-demand
// synchronous refresh.
package health

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/mcpgateway/registry/pkg/log"
	"github.com/mcpgateway/registry/pkg/registry"
	"github.com/mcpgateway/registry/pkg/repo"
)

// Config configures a Monitor. Zero values fall back to the §4.6 defaults.
type Config struct {
	Interval      time.Duration // default 5 minutes
	ProbeTimeout  time.Duration // default 10s
	MaxInFlight   int64         // default 32
	BackoffCeiling time.Duration // default 1h
}

func (c *Config) applyDefaults() {
	if c.Interval == 0 {
		c.Interval = 5 * time.Minute
	}
	if c.ProbeTimeout == 0 {
		c.ProbeTimeout = 10 * time.Second
	}
	if c.MaxInFlight == 0 {
		c.MaxInFlight = 32
	}
	if c.BackoffCeiling == 0 {
		c.BackoffCeiling = time.Hour
	}
}

// OnStatusChange is invoked whenever a probe changes a server's recorded
// health status, so C5 and audit subscribers can react without polling C3.
type OnStatusChange func(path string, status registry.HealthStatus)

// Monitor runs the periodic probe loop described in §4.6.
type Monitor struct {
	repo   repo.ServerRepository
	prober Prober
	cfg    Config
	onChange OnStatusChange

	sem *semaphore.Weighted

	mu      sync.Mutex
	backoff map[string]*backoffState
}

type backoffState struct {
	consecutiveFailures int
	nextDue             time.Time
	interval            time.Duration
}

// NewMonitor constructs a Monitor. onChange may be nil.
func NewMonitor(r repo.ServerRepository, prober Prober, cfg Config, onChange OnStatusChange) *Monitor {
	cfg.applyDefaults()
	return &Monitor{
		repo:     r,
		prober:   prober,
		cfg:      cfg,
		onChange: onChange,
		sem:      semaphore.NewWeighted(cfg.MaxInFlight),
		backoff:  make(map[string]*backoffState),
	}
}

// Run blocks, ticking every cfg.Interval until ctx is cancelled. Each tick
// snapshots the enabled servers and probes those whose backoff has elapsed.
func (m *Monitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.tick(ctx)
		}
	}
}

func (m *Monitor) tick(ctx context.Context) {
	servers, err := m.repo.List(ctx)
	if err != nil {
		log.Errorf("health: listing servers failed: %v", err)
		return
	}

	var wg sync.WaitGroup
	now := time.Now()
	for _, rec := range servers {
		if !rec.Enabled {
			continue
		}
		if !m.due(rec.Path, now) {
			continue
		}
		if err := m.sem.Acquire(ctx, 1); err != nil {
			return // context cancelled
		}
		wg.Add(1)
		go func(rec registry.ServerRecord) {
			defer wg.Done()
			defer m.sem.Release(1)
			m.probeOne(ctx, rec)
		}(rec)
	}
	wg.Wait()
}

func (m *Monitor) due(path string, now time.Time) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.backoff[path]
	if !ok {
		return true
	}
	return !now.Before(st.nextDue)
}

func (m *Monitor) probeOne(ctx context.Context, rec registry.ServerRecord) {
	probeCtx, cancel := context.WithTimeout(ctx, m.cfg.ProbeTimeout)
	defer cancel()

	status, err := m.prober.Probe(probeCtx, rec)
	if err != nil {
		log.Warnf("health: probe of %s failed: %v", rec.Path, err)
		status = registry.HealthUnhealthy
	}

	m.recordBackoff(rec.Path, status)
	m.writeStatus(ctx, rec.Path, status)
}

// recordBackoff implements §4.6's "after three consecutive failures a
// server's probe interval doubles up to a ceiling; resets to base on first
// success."
func (m *Monitor) recordBackoff(path string, status registry.HealthStatus) {
	m.mu.Lock()
	defer m.mu.Unlock()

	st, ok := m.backoff[path]
	if !ok {
		st = &backoffState{interval: m.cfg.Interval}
		m.backoff[path] = st
	}

	if status == registry.HealthHealthy {
		st.consecutiveFailures = 0
		st.interval = m.cfg.Interval
		st.nextDue = time.Now().Add(st.interval)
		return
	}

	st.consecutiveFailures++
	if st.consecutiveFailures >= 3 {
		st.interval *= 2
		if st.interval > m.cfg.BackoffCeiling {
			st.interval = m.cfg.BackoffCeiling
		}
	}
	st.nextDue = time.Now().Add(st.interval)
}

func (m *Monitor) writeStatus(ctx context.Context, path string, status registry.HealthStatus) {
	rec, err := m.repo.Get(ctx, path)
	if err != nil {
		log.Warnf("health: writing status for %s: %v", path, err)
		return
	}
	if rec.HealthStatus == status {
		rec.LastCheckedTime = time.Now()
		_ = m.repo.Put(ctx, rec)
		return
	}

	rec.HealthStatus = status
	rec.LastCheckedTime = time.Now()
	if err := m.repo.Put(ctx, rec); err != nil {
		log.Warnf("health: persisting status for %s: %v", path, err)
		return
	}
	if m.onChange != nil {
		m.onChange(path, status)
	}
}

// Refresh synchronously probes a single server and returns the classified
// status, outside the scheduled loop's timing; its result updates the
// server's backoff state the same way a scheduled probe does.
func (m *Monitor) Refresh(ctx context.Context, path string) (registry.HealthStatus, error) {
	rec, err := m.repo.Get(ctx, path)
	if err != nil {
		return registry.HealthUnknown, err
	}

	probeCtx, cancel := context.WithTimeout(ctx, m.cfg.ProbeTimeout)
	defer cancel()

	status, err := m.prober.Probe(probeCtx, rec)
	if err != nil {
		status = registry.HealthUnhealthy
	}
	m.recordBackoff(path, status)
	m.writeStatus(ctx, path, status)
	return status, nil
}
