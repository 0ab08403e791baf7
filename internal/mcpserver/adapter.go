package mcpserver

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"mcpgateway/internal/api"
	"mcpgateway/pkg/logging"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

// Adapter opens sessions to external servers. Implementations must return
// an initialized client or an error; a half-open client is never returned.
type Adapter interface {
	Open(ctx context.Context, server *api.ServerRecord) (MCPClient, error)
}

// TransportAdapter is the production Adapter covering STDIO, SSE and HTTP.
type TransportAdapter struct {
	renderer      *Renderer
	allowInsecure bool
	httpClient    *http.Client
}

// AdapterOption configures a TransportAdapter.
type AdapterOption func(*TransportAdapter)

// WithAllowInsecure permits plain http:// URLs for remote transports.
func WithAllowInsecure(allow bool) AdapterOption {
	return func(a *TransportAdapter) { a.allowInsecure = allow }
}

// WithHTTPClient sets the base HTTP client used for remote transports and
// OAuth token requests.
func WithHTTPClient(c *http.Client) AdapterOption {
	return func(a *TransportAdapter) { a.httpClient = c }
}

// WithLookup overrides how secret references are resolved.
func WithLookup(lookup LookupFunc) AdapterOption {
	return func(a *TransportAdapter) { a.renderer = NewRenderer(lookup) }
}

// NewTransportAdapter creates the production adapter.
func NewTransportAdapter(opts ...AdapterOption) *TransportAdapter {
	a := &TransportAdapter{renderer: NewRenderer(nil)}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

var _ Adapter = (*TransportAdapter)(nil)

// Open renders the connection config, builds the transport client and runs
// the MCP handshake within ctx. Returned errors never carry substituted
// secret values.
func (a *TransportAdapter) Open(ctx context.Context, server *api.ServerRecord) (MCPClient, error) {
	cfg, secrets, err := a.renderer.RenderSecrets(server.ConnectionConfig)
	if err != nil {
		return nil, secrets.Scrub(fmt.Errorf("failed to resolve connection config: %w", err))
	}

	c, err := a.open(ctx, server, cfg)
	if err != nil {
		return nil, secrets.Scrub(err)
	}

	logging.Debug("TransportAdapter", "Opened %s session to %s", server.TransportType, server.Name)
	return c, nil
}

func (a *TransportAdapter) open(ctx context.Context, server *api.ServerRecord, cfg api.ConnectionConfig) (MCPClient, error) {
	clientCfg := MCPClientConfig{
		Command: cfg.Command,
		Args:    cfg.Args,
		Env:     cfg.Env,
		Headers: cfg.Headers,
	}

	if server.TransportType.Remote() {
		endpoint := cfg.Endpoint(server.TransportType)
		if err := CheckRemoteURL(endpoint, a.allowInsecure); err != nil {
			// name the endpoint as configured, before substitution
			return nil, fmt.Errorf("endpoint %s: %w", RedactURL(server.ConnectionConfig.Endpoint(server.TransportType)), err)
		}
		clientCfg.URL = endpoint
		clientCfg.HTTPClient = a.remoteHTTPClient(ctx, cfg.OAuth)
	}

	c, err := NewMCPClientFromType(server.TransportType, clientCfg)
	if err != nil {
		return nil, err
	}

	if err := c.Initialize(ctx); err != nil {
		_ = c.Close()
		return nil, err
	}
	return c, nil
}

// remoteHTTPClient returns the HTTP client for a remote transport, wrapping
// it with a client-credentials token source when OAuth is configured.
func (a *TransportAdapter) remoteHTTPClient(ctx context.Context, oauth *api.OAuthConfig) *http.Client {
	if oauth == nil || oauth.TokenURL == "" {
		return a.httpClient
	}

	cc := clientcredentials.Config{
		ClientID:     oauth.ClientID,
		ClientSecret: oauth.ClientSecret,
		TokenURL:     oauth.TokenURL,
		Scopes:       oauth.Scopes,
	}

	// the token source refreshes for the lifetime of the session, so it
	// must not inherit the connect deadline
	tokenCtx := context.WithoutCancel(ctx)
	if a.httpClient != nil {
		tokenCtx = context.WithValue(tokenCtx, oauth2.HTTPClient, a.httpClient)
	}
	return cc.Client(tokenCtx)
}

// CheckRemoteURL validates a remote endpoint. https is required unless
// allowInsecure is set. Errors do not quote the URL.
func CheckRemoteURL(raw string, allowInsecure bool) error {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return errors.New("invalid url")
	}
	switch u.Scheme {
	case "https":
		return nil
	case "http":
		if allowInsecure {
			return nil
		}
		return errors.New("url must use https (set transports.allow_insecure to permit http)")
	default:
		return fmt.Errorf("unsupported url scheme %q", u.Scheme)
	}
}

// RedactURL drops user info, query and fragment from a URL for use in
// logs and error messages.
func RedactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return api.RedactedValue
	}
	u.User = nil
	if u.RawQuery != "" {
		u.RawQuery = api.RedactedValue
	}
	u.Fragment = ""
	u.RawFragment = ""
	return u.String()
}
