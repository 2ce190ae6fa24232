package health

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/mcpgateway/registry/pkg/registry"
	"github.com/mcpgateway/registry/pkg/repo"
)

type fakeRepo struct {
	mu      sync.Mutex
	records map[string]registry.ServerRecord
}

func newFakeRepo(recs ...registry.ServerRecord) *fakeRepo {
	r := &fakeRepo{records: make(map[string]registry.ServerRecord)}
	for _, rec := range recs {
		r.records[rec.Path] = rec
	}
	return r
}

func (r *fakeRepo) Get(_ context.Context, path string) (registry.ServerRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[path]
	if !ok {
		return registry.ServerRecord{}, repo.ErrNotFound
	}
	return rec, nil
}

func (r *fakeRepo) List(_ context.Context) ([]registry.ServerRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]registry.ServerRecord, 0, len(r.records))
	for _, rec := range r.records {
		out = append(out, rec)
	}
	return out, nil
}

func (r *fakeRepo) Put(_ context.Context, rec registry.ServerRecord, _ ...repo.PutOption) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records[rec.Path] = rec
	return nil
}

func (r *fakeRepo) Delete(_ context.Context, path string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.records, path)
	return nil
}

func (r *fakeRepo) Toggle(_ context.Context, path string, enabled bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec := r.records[path]
	rec.Enabled = enabled
	r.records[path] = rec
	return nil
}

type fakeProber struct {
	status registry.HealthStatus
	err    error
}

func (p *fakeProber) Probe(_ context.Context, _ registry.ServerRecord) (registry.HealthStatus, error) {
	return p.status, p.err
}

func TestMonitor_RefreshWritesStatusThroughRepo(t *testing.T) {
	r := newFakeRepo(registry.ServerRecord{Path: "/weather", Enabled: true, HealthStatus: registry.HealthUnknown})
	prober := &fakeProber{status: registry.HealthHealthy}
	var notified []registry.HealthStatus
	m := NewMonitor(r, prober, Config{}, func(_ string, status registry.HealthStatus) {
		notified = append(notified, status)
	})

	status, err := m.Refresh(context.Background(), "/weather")
	require.NoError(t, err)
	require.Equal(t, registry.HealthHealthy, status)

	rec, err := r.Get(context.Background(), "/weather")
	require.NoError(t, err)
	require.Equal(t, registry.HealthHealthy, rec.HealthStatus)
	require.Equal(t, []registry.HealthStatus{registry.HealthHealthy}, notified)
}

func TestMonitor_BackoffDoublesAfterThreeFailures(t *testing.T) {
	r := newFakeRepo(registry.ServerRecord{Path: "/weather", Enabled: true})
	prober := &fakeProber{status: registry.HealthUnhealthy}
	m := NewMonitor(r, prober, Config{Interval: time.Second, BackoffCeiling: 100 * time.Second}, nil)

	for i := 0; i < 3; i++ {
		_, err := m.Refresh(context.Background(), "/weather")
		require.NoError(t, err)
	}

	m.mu.Lock()
	interval := m.backoff["/weather"].interval
	m.mu.Unlock()
	require.Equal(t, 2*time.Second, interval)
}

func TestMonitor_BackoffResetsOnSuccess(t *testing.T) {
	r := newFakeRepo(registry.ServerRecord{Path: "/weather", Enabled: true})
	prober := &fakeProber{status: registry.HealthUnhealthy}
	m := NewMonitor(r, prober, Config{Interval: time.Second, BackoffCeiling: 100 * time.Second}, nil)

	for i := 0; i < 3; i++ {
		_, _ = m.Refresh(context.Background(), "/weather")
	}
	prober.status = registry.HealthHealthy
	_, err := m.Refresh(context.Background(), "/weather")
	require.NoError(t, err)

	m.mu.Lock()
	st := m.backoff["/weather"]
	m.mu.Unlock()
	require.Equal(t, 0, st.consecutiveFailures)
	require.Equal(t, time.Second, st.interval)
}

func TestMonitor_AuthExpiredClassification(t *testing.T) {
	r := newFakeRepo(registry.ServerRecord{Path: "/weather", Enabled: true})
	prober := &fakeProber{status: registry.HealthHealthyAuthExpired}
	m := NewMonitor(r, prober, Config{}, nil)

	status, err := m.Refresh(context.Background(), "/weather")
	require.NoError(t, err)
	require.Equal(t, registry.HealthHealthyAuthExpired, status)
}
