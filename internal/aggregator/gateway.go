package aggregator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"mcpgateway/internal/api"
	"mcpgateway/internal/metrics"
	"mcpgateway/pkg/logging"

	"github.com/mark3labs/mcp-go/mcp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// DefaultRequestTimeout bounds a single tool call.
const DefaultRequestTimeout = 60 * time.Second

// SessionRecoverer opens a replacement session for a server that is
// CONNECTED but has none. It is attempted once per call.
type SessionRecoverer func(ctx context.Context, serverID string) error

// Gateway executes tool calls against the owning server.
type Gateway struct {
	resolver       *Resolver
	registry       *ServerRegistry
	sessions       *SessionManager
	reopen         SessionRecoverer
	requestTimeout time.Duration
	metrics        *metrics.Metrics
	tracer         trace.Tracer
}

// NewGateway creates a gateway. reopen may be nil, in which case a missing
// session is reported as SERVER_UNAVAILABLE straight away.
func NewGateway(resolver *Resolver, registry *ServerRegistry, sessions *SessionManager,
	reopen SessionRecoverer, requestTimeout time.Duration, m *metrics.Metrics) *Gateway {
	if requestTimeout <= 0 {
		requestTimeout = DefaultRequestTimeout
	}
	return &Gateway{
		resolver:       resolver,
		registry:       registry,
		sessions:       sessions,
		reopen:         reopen,
		requestTimeout: requestTimeout,
		metrics:        m,
		tracer:         otel.Tracer("mcpgateway/aggregator"),
	}
}

// Call resolves and executes one tool call.
//
// A tool that reports an error (isError) is returned as a normal response
// and never retried. Errors returned by Call are always *api.Error.
func (g *Gateway) Call(ctx context.Context, req api.CallToolRequest) (*api.CallToolResponse, error) {
	start := time.Now()

	ctx, span := g.tracer.Start(ctx, "gateway.call", trace.WithAttributes(
		attribute.String("mcp.tool.requested", req.Name),
	))
	defer span.End()

	rc, err := g.resolver.Resolve(req.Name, req.ServerID)
	routingTime := time.Since(start)
	if err != nil {
		return nil, g.fail(span, "", "", start, err)
	}
	span.SetAttributes(
		attribute.String("mcp.server.name", rc.ServerName),
		attribute.String("mcp.tool.original", rc.OriginalToolName),
		attribute.String("mcp.routing.strategy", string(rc.Strategy)),
	)

	md := api.CallMetadata{
		RoutedTo:         rc.ServerName,
		ServerID:         rc.ResolvedServerID,
		OriginalToolName: rc.OriginalToolName,
		Strategy:         rc.Strategy,
		RoutingTimeMs:    millis(routingTime),
	}

	rec := g.registry.Get(rc.ResolvedServerID)
	if rec == nil {
		err := api.ErrRoutingFailed(req.Name, fmt.Sprintf("server %s is no longer registered", rc.ServerName))
		return nil, g.fail(span, rc.ServerName, rc.Strategy, start, withRouting(err, md, start, 0))
	}
	if !rec.Status.Available() {
		err := api.ErrServerUnavailable(rec.Name, rec.Status)
		return nil, g.fail(span, rec.Name, rc.Strategy, start, withRouting(err, md, start, 0))
	}

	callCtx, cancel := context.WithTimeout(ctx, g.requestTimeout)
	defer cancel()

	execStart := time.Now()
	result, err := g.sessions.CallTool(callCtx, rec.ID, rc.OriginalToolName, req.Arguments)
	if api.IsCode(err, api.CodeSessionNotFound) {
		result, err = g.retryWithNewSession(callCtx, rec, rc, req.Arguments, err)
	}
	execTime := time.Since(execStart)

	if err != nil {
		return nil, g.fail(span, rec.Name, rc.Strategy, start, withRouting(g.mapCallError(callCtx, rc, err), md, start, execTime))
	}

	resp := &api.CallToolResponse{
		Content: result.Content,
		IsError: result.IsError,
		Metadata: api.CallMetadata{
			RoutedTo:         rec.Name,
			ServerID:         rec.ID,
			OriginalToolName: rc.OriginalToolName,
			Strategy:         rc.Strategy,
			RoutingTimeMs:    millis(routingTime),
			ExecutionTimeMs:  millis(execTime),
			TotalTimeMs:      millis(time.Since(start)),
		},
	}
	if resp.Content == nil {
		resp.Content = []mcp.Content{}
	}
	if rec.Status == api.StatusDegraded {
		resp.Metadata.Warning = fmt.Sprintf("server %s is degraded; results may be unreliable", rec.Name)
	}

	outcome := "ok"
	if result.IsError {
		outcome = "tool_error"
		span.SetAttributes(attribute.Bool("mcp.tool.is_error", true))
	}
	g.metrics.RecordToolCall(rec.Name, string(rc.Strategy), outcome, time.Since(start))

	logging.Debug("Gateway", "Routed %s to %s.%s (%s) in %.1fms",
		req.Name, rec.Name, rc.OriginalToolName, rc.Strategy, resp.Metadata.TotalTimeMs)
	return resp, nil
}

// retryWithNewSession makes the single reconnect attempt allowed when a
// CONNECTED server has no session.
func (g *Gateway) retryWithNewSession(ctx context.Context, rec *api.ServerRecord, rc api.RoutingContext,
	args map[string]interface{}, cause error) (*mcp.CallToolResult, error) {
	unavailable := func(err error) error {
		status := rec.Status
		if cur := g.registry.Get(rec.ID); cur != nil {
			status = cur.Status
		}
		return api.ErrServerUnavailable(rec.Name, status).WithCause(err)
	}

	if g.reopen == nil {
		return nil, unavailable(cause)
	}

	logging.Warn("Gateway", "No session for connected server %s, reconnecting once", rec.Name)
	if err := g.reopen(ctx, rec.ID); err != nil {
		return nil, unavailable(err)
	}

	result, err := g.sessions.CallTool(ctx, rec.ID, rc.OriginalToolName, args)
	if api.IsCode(err, api.CodeSessionNotFound) {
		return nil, unavailable(err)
	}
	return result, err
}

// mapCallError converts a session error into the public error codes.
func (g *Gateway) mapCallError(ctx context.Context, rc api.RoutingContext, err error) error {
	if apiErr, ok := api.AsError(err); ok && apiErr.Code == api.CodeServerUnavailable {
		return apiErr
	}
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return api.ErrExecutionFailed(rc.OriginalToolName, err).
			WithDetail("no response from %s within %s", rc.ServerName, g.requestTimeout)
	}
	return api.ErrExecutionFailed(rc.OriginalToolName, err)
}

func (g *Gateway) fail(span trace.Span, server string, strategy api.RoutingStrategy, start time.Time, err error) error {
	code := api.CodeOf(err)
	span.RecordError(err)
	span.SetStatus(codes.Error, string(code))
	g.metrics.RecordToolCall(server, string(strategy), string(code), time.Since(start))
	return err
}

// withRouting attaches the call's routing metadata to a typed error.
func withRouting(err error, md api.CallMetadata, start time.Time, execTime time.Duration) error {
	apiErr, ok := api.AsError(err)
	if !ok {
		return err
	}
	md.ExecutionTimeMs = millis(execTime)
	md.TotalTimeMs = millis(time.Since(start))
	return apiErr.WithRouting(md)
}

func millis(d time.Duration) float64 {
	return float64(d.Microseconds()) / 1000
}
