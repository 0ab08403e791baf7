package aggregator

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"mcpgateway/internal/api"
	"mcpgateway/internal/mcpserver"
	"mcpgateway/internal/metrics"
	"mcpgateway/pkg/logging"
	gwstrings "mcpgateway/pkg/strings"

	"golang.org/x/sync/errgroup"
)

const (
	DefaultHealthInterval     = 30 * time.Second
	DefaultHealthProbeTimeout = 5 * time.Second
	DefaultHealthConcurrency  = 10

	// degradedAfter and errorAfter are consecutive failure counts.
	degradedAfter = 2
	errorAfter    = 3
)

type probeResult int

const (
	probeHealthy probeResult = iota
	// probeWarning is a 4xx answer: logged, counter unchanged.
	probeWarning
	probeFailure
)

func (r probeResult) String() string {
	switch r {
	case probeHealthy:
		return "healthy"
	case probeWarning:
		return "warning"
	default:
		return "failure"
	}
}

// UnhealthyFunc is called after a server was moved to ERROR by the monitor.
type UnhealthyFunc func(rec *api.ServerRecord)

// HealthConfig configures a HealthMonitor.
type HealthConfig struct {
	Interval     time.Duration
	ProbeTimeout time.Duration
	Concurrency  int
	HTTPClient   *http.Client
	// Renderer resolves secret references in health_check_url. Defaults to
	// the process environment.
	Renderer *mcpserver.Renderer
	Metrics  *metrics.Metrics
	Clock        Clock
	// OnUnhealthy runs after a transition to ERROR.
	OnUnhealthy UnhealthyFunc
}

// HealthMonitor probes CONNECTED and DEGRADED servers on a fixed interval.
//
// A server with a health_check_url is probed with an HTTP GET: 200 is
// healthy, 4xx is logged as a warning and leaves the failure counter alone,
// anything else (including timeouts) is a failure. Without a URL the
// session's tool listing is the probe. The second consecutive failure
// moves CONNECTED to DEGRADED, the third moves to ERROR; one success zeroes
// the counter and moves DEGRADED back to CONNECTED.
type HealthMonitor struct {
	registry *ServerRegistry
	sessions *SessionManager
	cfg      HealthConfig

	mu     sync.Mutex
	probes map[string]context.CancelFunc

	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

// NewHealthMonitor creates a monitor. Call Start to run the sweep loop or
// Sweep to run a single pass.
func NewHealthMonitor(registry *ServerRegistry, sessions *SessionManager, cfg HealthConfig) *HealthMonitor {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultHealthInterval
	}
	if cfg.ProbeTimeout <= 0 {
		cfg.ProbeTimeout = DefaultHealthProbeTimeout
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = DefaultHealthConcurrency
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{}
	}
	if cfg.Renderer == nil {
		cfg.Renderer = mcpserver.NewRenderer(nil)
	}
	if cfg.Clock == nil {
		cfg.Clock = realClock{}
	}
	return &HealthMonitor{
		registry: registry,
		sessions: sessions,
		cfg:      cfg,
		probes:   make(map[string]context.CancelFunc),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Interval returns the sweep interval.
func (h *HealthMonitor) Interval() time.Duration {
	return h.cfg.Interval
}

// Start runs sweeps until Stop is called or ctx ends.
func (h *HealthMonitor) Start(ctx context.Context) {
	go func() {
		defer close(h.done)

		ticker := time.NewTicker(h.cfg.Interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-h.stop:
				return
			case <-ticker.C:
				h.Sweep(ctx)
			}
		}
	}()
	logging.Info("HealthMonitor", "Started with interval %s", h.cfg.Interval)
}

// Stop ends the loop, cancels in-flight probes and waits for the loop to
// exit. It must only be called after Start.
func (h *HealthMonitor) Stop() {
	h.stopOnce.Do(func() {
		close(h.stop)
		h.mu.Lock()
		for _, cancel := range h.probes {
			cancel()
		}
		h.mu.Unlock()
		<-h.done
	})
}

// CancelProbe aborts the in-flight probe of one server, if any. Its result
// is discarded.
func (h *HealthMonitor) CancelProbe(serverID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if cancel, ok := h.probes[serverID]; ok {
		cancel()
		delete(h.probes, serverID)
	}
}

// Sweep probes every available server once, at most Concurrency at a time,
// and returns when all probes have been applied.
func (h *HealthMonitor) Sweep(ctx context.Context) {
	targets := h.registry.List(func(r *api.ServerRecord) bool { return r.Status.Available() })
	if len(targets) == 0 {
		return
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(h.cfg.Concurrency)
	for _, rec := range targets {
		g.Go(func() error {
			h.check(gctx, rec)
			return nil
		})
	}
	_ = g.Wait()
}

// check probes one server and applies the outcome unless the probe was
// cancelled.
func (h *HealthMonitor) check(ctx context.Context, rec *api.ServerRecord) {
	probeCtx, cancel := context.WithTimeout(ctx, h.cfg.ProbeTimeout)
	h.mu.Lock()
	h.probes[rec.ID] = cancel
	h.mu.Unlock()

	result, err := h.probe(probeCtx, rec)

	h.mu.Lock()
	cancelled := errors.Is(probeCtx.Err(), context.Canceled)
	delete(h.probes, rec.ID)
	h.mu.Unlock()
	cancel()

	if cancelled {
		logging.Debug("HealthMonitor", "Probe of %s cancelled", rec.Name)
		return
	}

	h.cfg.Metrics.RecordHealthCheck(rec.Name, result.String())
	h.apply(ctx, rec.ID, result, err)
}

func (h *HealthMonitor) probe(ctx context.Context, rec *api.ServerRecord) (probeResult, error) {
	if rec.HealthCheckURL == "" {
		if _, err := h.sessions.ListTools(ctx, rec.ID); err != nil {
			return probeFailure, err
		}
		return probeHealthy, nil
	}

	target, secrets, err := h.cfg.Renderer.RenderString("health_check_url", rec.HealthCheckURL)
	if err != nil {
		return probeFailure, secrets.Scrub(err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return probeFailure, secrets.Scrub(err)
	}
	resp, err := h.cfg.HTTPClient.Do(req)
	if err != nil {
		return probeFailure, secrets.Scrub(err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
		return probeHealthy, nil
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return probeWarning, fmt.Errorf("health check returned %s", resp.Status)
	default:
		return probeFailure, fmt.Errorf("health check returned %s", resp.Status)
	}
}

// apply updates the failure counter and status. A server that stopped being
// available while it was probed is left alone.
func (h *HealthMonitor) apply(ctx context.Context, serverID string, result probeResult, probeErr error) {
	var becameError bool

	rec, err := h.registry.Update(ctx, serverID, func(r *api.ServerRecord) error {
		if !r.Status.Available() {
			return errNoChange
		}
		now := h.cfg.Clock.Now()
		r.LastHealthCheck = &now
		becameError = false

		switch result {
		case probeHealthy:
			r.ConsecutiveHealthFailures = 0
			r.ErrorMessage = ""
			if r.Status == api.StatusDegraded {
				r.Status = api.StatusConnected
			}
		case probeWarning:
			logging.Warn("HealthMonitor", "Server %s: %v", r.Name, probeErr)
		case probeFailure:
			r.ConsecutiveHealthFailures++
			r.ErrorMessage = gwstrings.ErrorMessage(api.ErrHealthCheckFailed(r.Name, probeErr))
			switch {
			case r.ConsecutiveHealthFailures >= errorAfter:
				r.Status = api.StatusError
				becameError = true
			case r.ConsecutiveHealthFailures >= degradedAfter && r.Status == api.StatusConnected:
				r.Status = api.StatusDegraded
			}
			logging.Warn("HealthMonitor", "Server %s failed health check (%d consecutive): %v",
				r.Name, r.ConsecutiveHealthFailures, probeErr)
		}
		return nil
	})
	if err != nil {
		if !api.IsCode(err, api.CodeServerNotFound) {
			logging.Error("HealthMonitor", err, "Failed to record health of %s", serverID)
		}
		return
	}

	if becameError && h.cfg.OnUnhealthy != nil {
		h.cfg.OnUnhealthy(rec)
	}
}
