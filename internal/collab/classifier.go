package collab

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"mcpgateway/internal/api"
)

// HTTPClassifier calls a classification service:
//
//	POST {endpoint}/classify
//	{"name": ..., "description": ..., "input_schema": {...}}
//	-> {"skill_ids": [...], "primary_skill_id": "...", "confidence": 0.9}
type HTTPClassifier struct {
	http *httpClient
}

var _ api.Classifier = (*HTTPClassifier)(nil)

// NewHTTPClassifier creates a classifier for endpoint.
func NewHTTPClassifier(endpoint string, opts ...Option) *HTTPClassifier {
	return &HTTPClassifier{http: newHTTPClient(endpoint, opts...)}
}

type classifyRequest struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	InputSchema json.RawMessage `json:"input_schema,omitempty"`
}

func (c *HTTPClassifier) Classify(ctx context.Context, name, description string, schema json.RawMessage) (api.Classification, error) {
	var out api.Classification
	err := c.http.do(ctx, http.MethodPost, "/classify", classifyRequest{
		Name:        name,
		Description: description,
		InputSchema: schema,
	}, &out)
	if err != nil {
		return api.Classification{}, err
	}
	if len(out.SkillIDs) == 0 && out.PrimarySkillID == "" {
		return api.Classification{}, fmt.Errorf("classifier returned no skills for %s", name)
	}
	return out, nil
}
