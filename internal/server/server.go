package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"mcpgateway/internal/api"
	"mcpgateway/pkg/logging"
)

const (
	// DefaultReadHeaderTimeout is the default timeout for reading request headers.
	DefaultReadHeaderTimeout = 10 * time.Second
	// DefaultIdleTimeout is the default idle timeout for keepalive connections.
	DefaultIdleTimeout = 120 * time.Second
	// DefaultShutdownTimeout bounds Shutdown when the caller's context has
	// no deadline.
	DefaultShutdownTimeout = 10 * time.Second

	maxBodyBytes = 1 << 20
)

// Aggregator is the gateway behaviour the HTTP layer serves.
type Aggregator interface {
	Register(ctx context.Context, req api.RegisterServerRequest) (*api.ServerRecord, error)
	GetServer(ref string) (*api.ServerRecord, error)
	ListServers(status api.ServerStatus) []*api.ServerRecord
	Connect(ctx context.Context, ref string) (*api.ServerRecord, error)
	Disconnect(ctx context.Context, ref string, force bool) (*api.ServerRecord, error)
	Remove(ctx context.Context, ref string) error
	ListServerTools(ref string) ([]*api.ToolRecord, error)
	RefreshTools(ctx context.Context, ref string) (*api.RefreshResult, error)

	Call(ctx context.Context, req api.CallToolRequest) (*api.CallToolResponse, error)
	Search(req api.SearchRequest) []api.SearchResult
	Catalog() []*api.ToolRecord

	State() *api.AggregatorState
	Health() *api.HealthReport
}

// Config configures the HTTP server.
type Config struct {
	// Addr is the listen address, host:port.
	Addr string
	// Gatherer serves /metrics. Defaults to prometheus.DefaultGatherer.
	Gatherer prometheus.Gatherer
	// Version is reported by the MCP endpoint.
	Version string
}

// Server is the gateway's HTTP front end.
type Server struct {
	cfg     Config
	agg     Aggregator
	mcp     *MCPFrontend
	handler http.Handler

	mu         sync.Mutex
	httpServer *http.Server
	listener   net.Listener
	done       chan struct{}
}

// New builds the router. Call Start to begin serving.
func New(agg Aggregator, cfg Config) *Server {
	if cfg.Gatherer == nil {
		cfg.Gatherer = prometheus.DefaultGatherer
	}
	s := &Server{
		cfg: cfg,
		agg: agg,
		mcp: NewMCPFrontend(agg, cfg.Version),
	}
	s.handler = s.routes()
	return s
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/aggregator", func(r chi.Router) {
			r.Post("/servers", s.handleRegister)
			r.Get("/servers", s.handleListServers)
			r.Route("/servers/{id}", func(r chi.Router) {
				r.Get("/", s.handleGetServer)
				r.Delete("/", s.handleRemoveServer)
				r.Post("/connect", s.handleConnect)
				r.Post("/disconnect", s.handleDisconnect)
				r.Get("/tools", s.handleServerTools)
				r.Post("/tools/refresh", s.handleRefreshTools)
			})
			r.Get("/state", s.handleState)
			r.Get("/health", s.handleHealth)
		})
		r.Post("/tools/call", s.handleCallTool)
		r.Get("/tools/search", s.handleSearch)
	})

	r.Handle("/metrics", promhttp.HandlerFor(s.cfg.Gatherer, promhttp.HandlerOpts{}))
	r.Handle("/mcp", s.mcp.Handler())
	return r
}

// Handler returns the router, for tests and embedding.
func (s *Server) Handler() http.Handler { return s.handler }

// Start listens on the configured address and serves in the background.
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.httpServer != nil {
		return fmt.Errorf("server already started")
	}

	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.cfg.Addr, err)
	}

	s.listener = ln
	s.done = make(chan struct{})
	s.httpServer = &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: DefaultReadHeaderTimeout,
		IdleTimeout:       DefaultIdleTimeout,
	}

	httpServer, done := s.httpServer, s.done
	go func() {
		defer close(done)
		if err := httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.Error("HTTPServer", err, "HTTP server error")
		}
	}()

	logging.Info("HTTPServer", "Listening on %s", ln.Addr())
	return nil
}

// Addr returns the bound address once started.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return s.cfg.Addr
	}
	return s.listener.Addr().String()
}

// Shutdown stops accepting requests and waits for active ones.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	httpServer, done := s.httpServer, s.done
	s.httpServer = nil
	s.listener = nil
	s.mu.Unlock()
	if httpServer == nil {
		return nil
	}

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, DefaultShutdownTimeout)
		defer cancel()
	}

	err := httpServer.Shutdown(ctx)
	if err != nil {
		httpServer.Close()
	}
	<-done
	logging.Info("HTTPServer", "HTTP server stopped")
	return err
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		logging.Debug("HTTPServer", "%s %s -> %d (%s) [%s]",
			r.Method, r.URL.Path, ww.Status(), time.Since(start).Round(time.Microsecond), middleware.GetReqID(r.Context()))
	})
}
