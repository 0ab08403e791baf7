package collab

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// DefaultHTTPTimeout bounds every collaborator request.
const DefaultHTTPTimeout = 30 * time.Second

// maxErrorBody caps how much of an error response is read into the error.
const maxErrorBody = 4 << 10

// Option configures a collaborator client.
type Option func(*httpClient)

// WithHTTPClient sets the HTTP client used for requests.
func WithHTTPClient(c *http.Client) Option {
	return func(h *httpClient) { h.client = c }
}

// WithHeader adds a header sent with every request, such as an API key.
func WithHeader(key, value string) Option {
	return func(h *httpClient) { h.headers.Set(key, value) }
}

// httpClient is the JSON transport shared by the classifier and the index.
type httpClient struct {
	baseURL string
	client  *http.Client
	headers http.Header
}

func newHTTPClient(baseURL string, opts ...Option) *httpClient {
	h := &httpClient{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		client:  &http.Client{Timeout: DefaultHTTPTimeout},
		headers: make(http.Header),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// do sends body as JSON and decodes a JSON response into out when out is
// not nil. Any non-2xx status is an error.
func (h *httpClient) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, h.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	for k, v := range h.headers {
		req.Header[k] = v
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := h.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return fmt.Errorf("%s %s: unexpected status %s: %s", method, path, resp.Status, strings.TrimSpace(string(msg)))
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
