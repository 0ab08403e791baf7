package cmd

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mcpgateway/internal/api"
	"mcpgateway/internal/cli"
)

// fakeGateway answers API requests with canned responses and records the
// last request.
type fakeGateway struct {
	mu       sync.Mutex
	method   string
	path     string
	query    string
	body     []byte
	status   int
	response interface{}
}

func (f *fakeGateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	data, _ := io.ReadAll(r.Body)
	f.mu.Lock()
	f.method, f.path, f.query, f.body = r.Method, r.URL.Path, r.URL.RawQuery, data
	status, response := f.status, f.response
	f.mu.Unlock()

	if status == 0 {
		status = http.StatusOK
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if response != nil {
		_ = json.NewEncoder(w).Encode(response)
	}
}

func (f *fakeGateway) lastBody(t *testing.T) map[string]interface{} {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(f.body, &out))
	return out
}

func runCLI(t *testing.T, fake *fakeGateway, args ...string) (string, error) {
	t.Helper()
	ts := httptest.NewServer(fake)
	t.Cleanup(ts.Close)

	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(append(args, "--endpoint", ts.URL))
	err := root.Execute()
	return out.String(), err
}

func TestRootCommand(t *testing.T) {
	root := newRootCmd()
	assert.Equal(t, "mcpgateway", root.Use)
	assert.True(t, root.SilenceUsage)

	var names []string
	for _, c := range root.Commands() {
		names = append(names, c.Name())
	}
	for _, want := range []string{"serve", "servers", "tools", "call", "state", "health", "profile", "version"} {
		assert.Contains(t, names, want)
	}
}

func TestVersionCommand(t *testing.T) {
	original := version
	defer SetVersion(original)
	SetVersion("1.2.3-test")

	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetArgs([]string{"version"})
	require.NoError(t, root.Execute())
	assert.Equal(t, "mcpgateway version 1.2.3-test\n", out.String())
}

func TestServersList(t *testing.T) {
	fake := &fakeGateway{response: api.ServerList{
		Servers: []*api.ServerRecord{{ID: "srv-1", Name: "github", TransportType: api.TransportSSE, Status: api.StatusConnected}},
		Total:   1,
	}}

	out, err := runCLI(t, fake, "servers", "list", "--status", "connected")
	require.NoError(t, err)
	assert.Contains(t, out, "github")
	assert.Equal(t, "/api/v1/aggregator/servers", fake.path)
	assert.Equal(t, "status=connected", fake.query)
}

func TestServersRegisterFromFileWithOverrides(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "github.yaml")
	require.NoError(t, os.WriteFile(file, []byte(`transport_type: http
connection_config:
  base_url: https://gh.example.com/mcp
  headers:
    Accept: application/json
`), 0o600))

	fake := &fakeGateway{status: http.StatusCreated, response: api.ServerRecord{ID: "srv-1", Name: "github"}}
	_, err := runCLI(t, fake, "servers", "register", "-f", file, "--header", "Authorization=Bearer x", "--auto-connect", "-o", "json")
	require.NoError(t, err)

	body := fake.lastBody(t)
	assert.Equal(t, "github", body["name"])
	assert.Equal(t, "http", body["transport_type"])
	assert.Equal(t, true, body["auto_connect"])
	conn := body["connection_config"].(map[string]interface{})
	assert.Equal(t, "https://gh.example.com/mcp", conn["base_url"])
	headers := conn["headers"].(map[string]interface{})
	assert.Equal(t, "Bearer x", headers["Authorization"])
	assert.Equal(t, "application/json", headers["Accept"])
}

func TestServersRegisterRequiresNameAndTransport(t *testing.T) {
	fake := &fakeGateway{}
	_, err := runCLI(t, fake, "servers", "register", "--transport", "stdio", "--command", "x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "name")
	assert.Empty(t, fake.path)
}

func TestServersDisconnectForce(t *testing.T) {
	fake := &fakeGateway{response: api.ServerRecord{ID: "srv-1", Name: "github", Status: api.StatusDisconnected}}
	out, err := runCLI(t, fake, "servers", "disconnect", "github", "--force")
	require.NoError(t, err)
	assert.Equal(t, "/api/v1/aggregator/servers/github/disconnect", fake.path)
	assert.Equal(t, true, fake.lastBody(t)["force"])
	assert.Contains(t, out, "DISCONNECTED")
}

func TestServersRemove(t *testing.T) {
	fake := &fakeGateway{status: http.StatusNoContent}
	out, err := runCLI(t, fake, "servers", "rm", "github")
	require.NoError(t, err)
	assert.Equal(t, http.MethodDelete, fake.method)
	assert.Contains(t, out, "Server github removed")
}

func TestCallBuildsArguments(t *testing.T) {
	fake := &fakeGateway{response: map[string]interface{}{
		"content":  []map[string]string{{"type": "text", "text": "issue #7"}},
		"isError":  false,
		"metadata": map[string]string{"routed_to": "github"},
	}}

	out, err := runCLI(t, fake, "call", "create_issue", "--server", "github",
		"--args", `{"title":"from json","draft":true}`,
		"--arg", "title=Broken build", "--arg", `labels=["ci"]`)
	require.NoError(t, err)
	assert.Equal(t, "issue #7\n", out)

	body := fake.lastBody(t)
	assert.Equal(t, "create_issue", body["name"])
	assert.Equal(t, "github", body["server_id"])
	arguments := body["arguments"].(map[string]interface{})
	assert.Equal(t, "Broken build", arguments["title"])
	assert.Equal(t, true, arguments["draft"])
	assert.Equal(t, []interface{}{"ci"}, arguments["labels"])
}

func TestCallSurfacesGatewayErrors(t *testing.T) {
	fake := &fakeGateway{
		status:   http.StatusConflict,
		response: api.ToBody(api.ErrToolAmbiguous("search", []string{"srv-1", "srv-2"})),
	}
	_, err := runCLI(t, fake, "call", "search")
	require.Error(t, err)
	assert.True(t, api.IsCode(err, api.CodeToolAmbiguous))
	assert.Equal(t, ExitCodeError, getExitCode(err))
}

func TestToolsSearchFlags(t *testing.T) {
	fake := &fakeGateway{response: api.SearchResponse{}}
	out, err := runCLI(t, fake, "tools", "search", "issue", "--server", "a,b", "--include-unavailable", "--limit", "3")
	require.NoError(t, err)
	assert.Equal(t, "/api/v1/tools/search", fake.path)
	assert.Contains(t, fake.query, "q=issue")
	assert.Contains(t, fake.query, "server_filter=a%2Cb")
	assert.Contains(t, fake.query, "include_unavailable=true")
	assert.Contains(t, fake.query, "limit=3")
	assert.Contains(t, out, "No matching tools")
}

func TestHealthExitCode(t *testing.T) {
	fake := &fakeGateway{status: http.StatusServiceUnavailable, response: api.HealthReport{Status: api.HealthUnhealthy}}
	out, err := runCLI(t, fake, "health")
	require.Error(t, err)
	assert.Contains(t, out, "unhealthy")
	assert.Equal(t, ExitCodeUnhealthy, getExitCode(err))

	fake = &fakeGateway{response: api.HealthReport{Status: api.HealthHealthy}}
	_, err = runCLI(t, fake, "health")
	assert.NoError(t, err)
}

func TestUnreachableGateway(t *testing.T) {
	ts := httptest.NewServer(http.NotFoundHandler())
	endpoint := ts.URL
	ts.Close()

	root := newRootCmd()
	root.SetOut(io.Discard)
	root.SetArgs([]string{"state", "--endpoint", endpoint})
	err := root.Execute()
	require.Error(t, err)

	var connErr *cli.ConnectionError
	require.True(t, errors.As(err, &connErr))
	assert.Equal(t, ExitCodeUnreachable, getExitCode(err))
}

func TestInvalidOutputFormat(t *testing.T) {
	_, err := runCLI(t, &fakeGateway{}, "state", "-o", "xml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported output format")
}

func TestParseKeyValues(t *testing.T) {
	got, err := parseKeyValues("--env", []string{"A=1", "B=x=y"})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"A": "1", "B": "x=y"}, got)

	_, err = parseKeyValues("--env", []string{"novalue"})
	assert.Error(t, err)
}

func TestProfileSelectsEndpoint(t *testing.T) {
	dir := t.TempDir()
	original := profileDir
	profileDir = func() (string, error) { return dir, nil }
	defer func() { profileDir = original }()
	t.Setenv("MCPGATEWAY_PROFILE", "")

	fake := &fakeGateway{response: api.AggregatorState{TotalServers: 4}}
	ts := httptest.NewServer(fake)
	defer ts.Close()

	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetArgs([]string{"profile", "set", "local", ts.URL, "--default-output", "json"})
	require.NoError(t, root.Execute())

	out.Reset()
	root = newRootCmd()
	root.SetOut(&out)
	root.SetArgs([]string{"state"})
	require.NoError(t, root.Execute())

	assert.Equal(t, "/api/v1/aggregator/state", fake.path)
	var state api.AggregatorState
	require.NoError(t, json.Unmarshal(out.Bytes(), &state), "profile default output is json")
	assert.Equal(t, 4, state.TotalServers)

	root = newRootCmd()
	root.SetOut(io.Discard)
	root.SetArgs([]string{"state", "--profile", "missing"})
	assert.Error(t, root.Execute())
}
