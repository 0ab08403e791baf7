package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"mcpgateway/internal/api"
)

// DefaultTimeout bounds each API request. Connect and call requests can
// legitimately take as long as the gateway's own timeouts.
const DefaultTimeout = 2 * time.Minute

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets the HTTP client used for requests.
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) { cl.http = c }
}

// Client talks to a running gateway.
type Client struct {
	endpoint string
	http     *http.Client
}

// New creates a client for endpoint, e.g. http://127.0.0.1:8090.
func New(endpoint string, opts ...Option) *Client {
	c := &Client{
		endpoint: strings.TrimSuffix(endpoint, "/"),
		http:     &http.Client{Timeout: DefaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Endpoint returns the base URL.
func (c *Client) Endpoint() string { return c.endpoint }

// CallResult is the decoded response of a tool call. Content items are kept
// raw because their shape depends on the content type.
type CallResult struct {
	Content  []json.RawMessage `json:"content"`
	IsError  bool              `json:"isError"`
	Metadata api.CallMetadata  `json:"metadata"`
}

// SearchOptions are the optional parameters of Search.
type SearchOptions struct {
	// IncludeExternal defaults to true when nil.
	IncludeExternal    *bool
	ServerFilter       []string
	IncludeUnavailable bool
	Limit              int
}

func (c *Client) RegisterServer(ctx context.Context, req api.RegisterServerRequest) (*api.ServerRecord, error) {
	var rec api.ServerRecord
	if err := c.do(ctx, http.MethodPost, "/api/v1/aggregator/servers", nil, req, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

func (c *Client) ListServers(ctx context.Context, status string) (*api.ServerList, error) {
	q := url.Values{}
	if status != "" {
		q.Set("status", status)
	}
	var list api.ServerList
	if err := c.do(ctx, http.MethodGet, "/api/v1/aggregator/servers", q, nil, &list); err != nil {
		return nil, err
	}
	return &list, nil
}

func (c *Client) GetServer(ctx context.Context, ref string) (*api.ServerRecord, error) {
	var rec api.ServerRecord
	if err := c.do(ctx, http.MethodGet, serverPath(ref, ""), nil, nil, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

func (c *Client) ConnectServer(ctx context.Context, ref string) (*api.ServerRecord, error) {
	var rec api.ServerRecord
	if err := c.do(ctx, http.MethodPost, serverPath(ref, "/connect"), nil, nil, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

func (c *Client) DisconnectServer(ctx context.Context, ref string, force bool) (*api.ServerRecord, error) {
	var rec api.ServerRecord
	if err := c.do(ctx, http.MethodPost, serverPath(ref, "/disconnect"), nil, api.DisconnectRequest{Force: force}, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

func (c *Client) RemoveServer(ctx context.Context, ref string) error {
	return c.do(ctx, http.MethodDelete, serverPath(ref, ""), nil, nil, nil)
}

func (c *Client) ServerTools(ctx context.Context, ref string) (*api.ToolList, error) {
	var list api.ToolList
	if err := c.do(ctx, http.MethodGet, serverPath(ref, "/tools"), nil, nil, &list); err != nil {
		return nil, err
	}
	return &list, nil
}

func (c *Client) RefreshTools(ctx context.Context, ref string) (*api.RefreshResult, error) {
	var res api.RefreshResult
	if err := c.do(ctx, http.MethodPost, serverPath(ref, "/tools/refresh"), nil, nil, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

func (c *Client) State(ctx context.Context) (*api.AggregatorState, error) {
	var state api.AggregatorState
	if err := c.do(ctx, http.MethodGet, "/api/v1/aggregator/state", nil, nil, &state); err != nil {
		return nil, err
	}
	return &state, nil
}

// Health returns the report. An unhealthy gateway answers 503 with a
// report body, which is returned without error.
func (c *Client) Health(ctx context.Context) (*api.HealthReport, error) {
	var report api.HealthReport
	err := c.do(ctx, http.MethodGet, "/api/v1/aggregator/health", nil, nil, &report, http.StatusServiceUnavailable)
	if err != nil {
		return nil, err
	}
	return &report, nil
}

func (c *Client) CallTool(ctx context.Context, req api.CallToolRequest) (*CallResult, error) {
	var res CallResult
	if err := c.do(ctx, http.MethodPost, "/api/v1/tools/call", nil, req, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

func (c *Client) Search(ctx context.Context, query string, opts SearchOptions) (*api.SearchResponse, error) {
	q := url.Values{}
	q.Set("q", query)
	if opts.IncludeExternal != nil {
		q.Set("include_external", strconv.FormatBool(*opts.IncludeExternal))
	}
	if len(opts.ServerFilter) > 0 {
		q.Set("server_filter", strings.Join(opts.ServerFilter, ","))
	}
	if opts.IncludeUnavailable {
		q.Set("include_unavailable", "true")
	}
	if opts.Limit > 0 {
		q.Set("limit", strconv.Itoa(opts.Limit))
	}
	var res api.SearchResponse
	if err := c.do(ctx, http.MethodGet, "/api/v1/tools/search", q, nil, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

func serverPath(ref, suffix string) string {
	return "/api/v1/aggregator/servers/" + url.PathEscape(ref) + suffix
}

// do sends a request and decodes a 2xx body into out. Statuses listed in
// okStatus are decoded into out as well.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out interface{}, okStatus ...int) error {
	u := c.endpoint + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	ok := resp.StatusCode >= 200 && resp.StatusCode < 300
	for _, s := range okStatus {
		ok = ok || resp.StatusCode == s
	}
	if !ok {
		return decodeError(resp)
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func decodeError(resp *http.Response) error {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	var body api.ErrorBody
	if err := json.Unmarshal(data, &body); err == nil && body.Error.Code != "" {
		return api.FromBody(body)
	}
	return fmt.Errorf("unexpected status %s: %s", resp.Status, strings.TrimSpace(string(data)))
}
