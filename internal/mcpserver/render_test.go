package mcpserver

import (
	"errors"
	"testing"

	"mcpgateway/internal/api"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func lookupFrom(m map[string]string) LookupFunc {
	return func(key string) (string, bool) {
		v, ok := m[key]
		return v, ok
	}
}

func TestRenderer_Render(t *testing.T) {
	r := NewRenderer(lookupFrom(map[string]string{
		"GITHUB_TOKEN": "ghp_123",
		"HOST":         "api.example.com",
		"CLIENT_ID":    "  gateway  ",
	}))

	cfg := api.ConnectionConfig{
		URL:     "https://${HOST}/sse",
		Headers: map[string]string{"Authorization": "Bearer ${GITHUB_TOKEN}", "X-Static": "plain"},
		OAuth: &api.OAuthConfig{
			TokenURL: "https://$HOST/token",
			ClientID: `{{ env "CLIENT_ID" | trim }}`,
		},
	}

	out, err := r.Render(cfg)
	require.NoError(t, err)

	assert.Equal(t, "https://api.example.com/sse", out.URL)
	assert.Equal(t, "Bearer ghp_123", out.Headers["Authorization"])
	assert.Equal(t, "plain", out.Headers["X-Static"])
	assert.Equal(t, "https://api.example.com/token", out.OAuth.TokenURL)
	assert.Equal(t, "gateway", out.OAuth.ClientID)

	// input untouched, secrets are only resolved in the copy
	assert.Equal(t, "Bearer ${GITHUB_TOKEN}", cfg.Headers["Authorization"])
}

func TestRenderer_MissingVariable(t *testing.T) {
	r := NewRenderer(lookupFrom(nil))

	_, err := r.Render(api.ConnectionConfig{Env: map[string]string{"TOKEN": "${NOPE}"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "NOPE")

	_, err = r.Render(api.ConnectionConfig{Command: `{{ env "NOPE" }}`})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "NOPE")
}

func TestCheckRemoteURL(t *testing.T) {
	tests := []struct {
		name          string
		url           string
		allowInsecure bool
		wantErr       bool
	}{
		{"https", "https://example.com/mcp", false, false},
		{"http rejected", "http://example.com/mcp", false, true},
		{"http allowed", "http://127.0.0.1:8080/mcp", true, false},
		{"no host", "https:///mcp", false, true},
		{"bad scheme", "ftp://example.com", true, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := CheckRemoteURL(tt.url, tt.allowInsecure)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestRenderer_RenderSecrets(t *testing.T) {
	r := NewRenderer(lookupFrom(map[string]string{"TOKEN": "tok-abc123", "PORT": "9090"}))

	out, secrets, err := r.RenderSecrets(api.ConnectionConfig{
		BaseURL: "https://api.example.com:${PORT}/mcp",
		Headers: map[string]string{"Authorization": `Bearer {{ env "TOKEN" }}`},
	})
	require.NoError(t, err)
	assert.Equal(t, "https://api.example.com:9090/mcp", out.BaseURL)
	assert.ElementsMatch(t, Secrets{"9090", "tok-abc123"}, secrets)

	url, secrets, err := r.RenderString("health_check_url", "http://127.0.0.1:${PORT}/health")
	require.NoError(t, err)
	assert.Equal(t, "http://127.0.0.1:9090/health", url)
	assert.Equal(t, Secrets{"9090"}, secrets)
}

func TestSecrets_Scrub(t *testing.T) {
	cause := errors.New(`Post "https://h/mcp?k=a%2Fb+secret": dial: token a/b secret rejected`)
	secrets := Secrets{"a/b secret", "ab"}

	err := secrets.Scrub(cause)
	assert.Equal(t, `Post "https://h/mcp?k=[REDACTED]": dial: token [REDACTED] rejected`, err.Error())
	assert.ErrorIs(t, err, cause)

	untouched := errors.New("connection refused")
	assert.Same(t, untouched, secrets.Scrub(untouched))
	assert.NoError(t, secrets.Scrub(nil))
}
