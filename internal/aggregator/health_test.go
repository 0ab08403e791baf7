package aggregator

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"mcpgateway/internal/api"
	"mcpgateway/internal/mcpserver"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type healthFixture struct {
	registry  *ServerRegistry
	sessions  *SessionManager
	monitor   *HealthMonitor
	mu        sync.Mutex
	unhealthy []string
}

func newHealthFixture() *healthFixture {
	f := &healthFixture{
		registry: NewServerRegistry(nil),
		sessions: NewSessionManager(time.Second),
	}
	f.monitor = NewHealthMonitor(f.registry, f.sessions, HealthConfig{
		Interval:     time.Hour,
		ProbeTimeout: 200 * time.Millisecond,
		OnUnhealthy: func(rec *api.ServerRecord) {
			f.mu.Lock()
			defer f.mu.Unlock()
			f.unhealthy = append(f.unhealthy, rec.Name)
		},
	})
	return f
}

// statusServer answers health checks with the next status in codes,
// repeating the last one.
func statusServer(t *testing.T, codes ...int) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := int(hits.Add(1)) - 1
		if n >= len(codes) {
			n = len(codes) - 1
		}
		w.WriteHeader(codes[n])
	}))
	t.Cleanup(srv.Close)
	return srv, &hits
}

func registerWithHealthURL(t *testing.T, f *healthFixture, name, url string, c *fakeClient) *api.ServerRecord {
	t.Helper()
	rec := registerConnected(t, f.registry, f.sessions, name, c)
	rec, err := f.registry.Update(context.Background(), rec.ID, func(r *api.ServerRecord) error {
		r.HealthCheckURL = url
		return nil
	})
	require.NoError(t, err)
	return rec
}

func TestHealthMonitor_FailureProgression(t *testing.T) {
	f := newHealthFixture()
	srv, _ := statusServer(t, http.StatusInternalServerError)
	rec := registerWithHealthURL(t, f, "flaky", srv.URL, newFakeClient("x"))
	ctx := context.Background()

	want := []struct {
		status   api.ServerStatus
		failures int
	}{
		{api.StatusConnected, 1},
		{api.StatusDegraded, 2},
		{api.StatusError, 3},
	}
	for i, w := range want {
		f.monitor.Sweep(ctx)
		cur := f.registry.Get(rec.ID)
		assert.Equal(t, w.status, cur.Status, "sweep %d", i+1)
		assert.Equal(t, w.failures, cur.ConsecutiveHealthFailures, "sweep %d", i+1)
		assert.NotNil(t, cur.LastHealthCheck)
	}
	assert.Contains(t, f.registry.Get(rec.ID).ErrorMessage, "500")
	assert.Equal(t, []string{"flaky"}, f.unhealthy)

	// ERROR servers are no longer probed
	f.monitor.Sweep(ctx)
	assert.Equal(t, 3, f.registry.Get(rec.ID).ConsecutiveHealthFailures)
}

func TestHealthMonitor_SuccessRecovers(t *testing.T) {
	f := newHealthFixture()
	srv, _ := statusServer(t, http.StatusBadGateway, http.StatusBadGateway, http.StatusOK)
	rec := registerWithHealthURL(t, f, "flaky", srv.URL, newFakeClient("x"))
	ctx := context.Background()

	f.monitor.Sweep(ctx)
	f.monitor.Sweep(ctx)
	require.Equal(t, api.StatusDegraded, f.registry.Get(rec.ID).Status)

	f.monitor.Sweep(ctx)
	cur := f.registry.Get(rec.ID)
	assert.Equal(t, api.StatusConnected, cur.Status)
	assert.Equal(t, 0, cur.ConsecutiveHealthFailures)
	assert.Empty(t, cur.ErrorMessage)
}

func TestHealthMonitor_ClientErrorIsNeutral(t *testing.T) {
	f := newHealthFixture()
	srv, hits := statusServer(t, http.StatusInternalServerError, http.StatusNotFound, http.StatusNotFound)
	rec := registerWithHealthURL(t, f, "api", srv.URL, newFakeClient("x"))
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		f.monitor.Sweep(ctx)
	}
	assert.Equal(t, int32(3), hits.Load())
	cur := f.registry.Get(rec.ID)
	assert.Equal(t, api.StatusConnected, cur.Status)
	assert.Equal(t, 1, cur.ConsecutiveHealthFailures)
}

func TestHealthMonitor_TimeoutIsFailure(t *testing.T) {
	f := newHealthFixture()
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	rec := registerWithHealthURL(t, f, "slow", srv.URL, newFakeClient("x"))
	f.monitor.Sweep(context.Background())
	assert.Equal(t, 1, f.registry.Get(rec.ID).ConsecutiveHealthFailures)
}

func TestHealthMonitor_ListToolsProbe(t *testing.T) {
	f := newHealthFixture()
	c := newFakeClient("x")
	rec := registerConnected(t, f.registry, f.sessions, "stdio", c)
	ctx := context.Background()

	f.monitor.Sweep(ctx)
	assert.Equal(t, int32(1), c.lists.Load())
	assert.Equal(t, 0, f.registry.Get(rec.ID).ConsecutiveHealthFailures)

	c.setListErr(assert.AnError)
	f.monitor.Sweep(ctx)
	assert.Equal(t, 1, f.registry.Get(rec.ID).ConsecutiveHealthFailures)
}

func TestHealthMonitor_CounterIsMonotonicUntilSuccess(t *testing.T) {
	f := newHealthFixture()
	rec := registerConnected(t, f.registry, f.sessions, "s", newFakeClient("x"))
	ctx := context.Background()

	results := []probeResult{probeFailure, probeWarning, probeFailure, probeHealthy, probeFailure}
	wantFailures := []int{1, 1, 2, 0, 1}
	wantStatus := []api.ServerStatus{api.StatusConnected, api.StatusConnected, api.StatusDegraded, api.StatusConnected, api.StatusConnected}

	for i, r := range results {
		f.monitor.apply(ctx, rec.ID, r, assert.AnError)
		cur := f.registry.Get(rec.ID)
		assert.Equal(t, wantFailures[i], cur.ConsecutiveHealthFailures, "step %d", i)
		assert.Equal(t, wantStatus[i], cur.Status, "step %d", i)
	}
}

func TestHealthMonitor_IgnoresServersThatLeftAvailable(t *testing.T) {
	f := newHealthFixture()
	rec := registerConnected(t, f.registry, f.sessions, "s", newFakeClient("x"))
	ctx := context.Background()

	_, err := f.registry.Transition(ctx, rec.ID, api.StatusDisconnected, nil)
	require.NoError(t, err)

	f.monitor.apply(ctx, rec.ID, probeFailure, assert.AnError)
	cur := f.registry.Get(rec.ID)
	assert.Equal(t, api.StatusDisconnected, cur.Status)
	assert.Equal(t, 0, cur.ConsecutiveHealthFailures)
}

func TestHealthMonitor_CancelProbeDiscardsResult(t *testing.T) {
	f := newHealthFixture()
	f.monitor.cfg.ProbeTimeout = 5 * time.Second

	entered := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		close(entered)
		<-r.Context().Done()
	}))
	defer srv.Close()

	rec := registerWithHealthURL(t, f, "s", srv.URL, newFakeClient("x"))

	done := make(chan struct{})
	go func() {
		f.monitor.Sweep(context.Background())
		close(done)
	}()
	<-entered
	f.monitor.CancelProbe(rec.ID)
	<-done

	cur := f.registry.Get(rec.ID)
	assert.Equal(t, 0, cur.ConsecutiveHealthFailures)
	assert.Nil(t, cur.LastHealthCheck)
}

func TestHealthMonitor_StartStop(t *testing.T) {
	f := newHealthFixture()
	f.monitor.cfg.Interval = 10 * time.Millisecond
	c := newFakeClient("x")
	registerConnected(t, f.registry, f.sessions, "s", c)

	f.monitor.Start(context.Background())
	require.Eventually(t, func() bool { return c.lists.Load() >= 2 }, 2*time.Second, 5*time.Millisecond)
	f.monitor.Stop()

	n := c.lists.Load()
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, n, c.lists.Load())
}

func TestHealthMonitor_RendersHealthURL(t *testing.T) {
	srv, hits := statusServer(t, http.StatusOK)
	u, err := url.Parse(srv.URL)
	require.NoError(t, err)

	f := newHealthFixture()
	f.monitor.cfg.Renderer = mcpserver.NewRenderer(func(key string) (string, bool) {
		if key == "HEALTH_PORT" {
			return u.Port(), true
		}
		return "", false
	})
	rec := registerWithHealthURL(t, f, "docs", "http://127.0.0.1:${HEALTH_PORT}/health", newFakeClient("x"))

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		f.monitor.Sweep(ctx)
	}
	assert.Equal(t, int32(3), hits.Load())
	cur := f.registry.Get(rec.ID)
	assert.Equal(t, api.StatusConnected, cur.Status)
	assert.Equal(t, 0, cur.ConsecutiveHealthFailures)
}

func TestHealthMonitor_FailureMessageOmitsSecrets(t *testing.T) {
	const secret = "hk-secret-value"
	f := newHealthFixture()
	f.monitor.cfg.Renderer = mcpserver.NewRenderer(func(key string) (string, bool) {
		return secret, key == "HEALTH_KEY"
	})
	rec := registerWithHealthURL(t, f, "docs", "http://127.0.0.1:1/health?key=${HEALTH_KEY}", newFakeClient("x"))

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		f.monitor.Sweep(ctx)
	}
	cur := f.registry.Get(rec.ID)
	require.Equal(t, api.StatusError, cur.Status)
	assert.NotEmpty(t, cur.ErrorMessage)
	assert.NotContains(t, cur.ErrorMessage, secret)
}

func TestHealthMonitor_UnsetHealthURLVariableIsFailure(t *testing.T) {
	f := newHealthFixture()
	f.monitor.cfg.Renderer = mcpserver.NewRenderer(func(string) (string, bool) { return "", false })
	rec := registerWithHealthURL(t, f, "docs", "http://127.0.0.1:${MISSING_PORT}/health", newFakeClient("x"))

	f.monitor.Sweep(context.Background())
	assert.Equal(t, 1, f.registry.Get(rec.ID).ConsecutiveHealthFailures)
}
