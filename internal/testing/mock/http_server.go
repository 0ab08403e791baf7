package mock

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/mark3labs/mcp-go/server"
)

// HTTPTransportType selects how an HTTPServer exposes the mock.
type HTTPTransportType string

const (
	HTTPTransportSSE            HTTPTransportType = "sse"
	HTTPTransportStreamableHTTP HTTPTransportType = "streamable-http"
)

// HTTPServer serves a mock Server over an httptest listener.
type HTTPServer struct {
	transport HTTPTransportType
	ts        *httptest.Server
	sseServer *server.SSEServer
}

// StartHTTPServer starts srv on a random local port. The server is shut
// down when the test ends.
func StartHTTPServer(t testing.TB, srv *Server, transport HTTPTransportType) *HTTPServer {
	t.Helper()

	ts := httptest.NewUnstartedServer(nil)
	hs := &HTTPServer{transport: transport, ts: ts}

	var handler http.Handler
	switch transport {
	case HTTPTransportSSE:
		hs.sseServer = server.NewSSEServer(
			srv.MCPServer(),
			server.WithBaseURL("http://"+ts.Listener.Addr().String()),
			server.WithSSEEndpoint("/sse"),
			server.WithMessageEndpoint("/message"),
		)
		handler = hs.sseServer
	default:
		handler = server.NewStreamableHTTPServer(srv.MCPServer())
	}

	ts.Config.Handler = handler
	ts.Start()

	t.Cleanup(hs.Stop)
	return hs
}

// Endpoint returns the URL a client should connect to.
func (s *HTTPServer) Endpoint() string {
	switch s.transport {
	case HTTPTransportSSE:
		return s.ts.URL + "/sse"
	default:
		return s.ts.URL + "/mcp"
	}
}

// Stop shuts the listener down. Open SSE streams are closed first so that
// httptest does not wait on them.
func (s *HTTPServer) Stop() {
	s.ts.CloseClientConnections()
	s.ts.Close()
}
