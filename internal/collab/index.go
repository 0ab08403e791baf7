package collab

import (
	"context"
	"net/http"
	"net/url"

	"mcpgateway/internal/api"
)

// HTTPIndex maintains tool documents in a search index service:
//
//	PUT  {endpoint}/tools/{id}      body: the tool record
//	POST {endpoint}/tools/delete    body: {"ids": [...]}
type HTTPIndex struct {
	http *httpClient
}

var _ api.SearchIndex = (*HTTPIndex)(nil)

// NewHTTPIndex creates an index client for endpoint.
func NewHTTPIndex(endpoint string, opts ...Option) *HTTPIndex {
	return &HTTPIndex{http: newHTTPClient(endpoint, opts...)}
}

func (x *HTTPIndex) Upsert(ctx context.Context, tool *api.ToolRecord) error {
	return x.http.do(ctx, http.MethodPut, "/tools/"+url.PathEscape(tool.ID), tool, nil)
}

type deleteRequest struct {
	IDs []string `json:"ids"`
}

func (x *HTTPIndex) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	return x.http.do(ctx, http.MethodPost, "/tools/delete", deleteRequest{IDs: ids}, nil)
}

// NoopIndex discards every write.
type NoopIndex struct{}

var _ api.SearchIndex = NoopIndex{}

func (NoopIndex) Upsert(ctx context.Context, tool *api.ToolRecord) error { return nil }

func (NoopIndex) Delete(ctx context.Context, ids []string) error { return nil }
