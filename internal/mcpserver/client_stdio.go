package mcpserver

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"sort"

	"mcpgateway/pkg/logging"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"
)

// StdioClient runs an MCP server as a subprocess and talks to it over
// stdin/stdout. The subprocess lives until Close.
type StdioClient struct {
	baseMCPClient
	command string
	args    []string
	env     map[string]string
}

// NewStdioClient creates a stdio client. env is added on top of the
// gateway's own environment.
func NewStdioClient(command string, args []string, env map[string]string) *StdioClient {
	return &StdioClient{
		command: command,
		args:    args,
		env:     env,
	}
}

// Initialize starts the subprocess and performs the handshake. The context
// bounds the handshake only; the process is not tied to it.
func (c *StdioClient) Initialize(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.connected {
		return nil
	}

	// env values may hold secrets, log the keys only
	logging.Debug("StdioClient", "Starting %s %v (env keys: %v)", c.command, c.args, envKeys(c.env))

	envStrings := make([]string, 0, len(c.env))
	for k, v := range c.env {
		envStrings = append(envStrings, fmt.Sprintf("%s=%s", k, v))
	}

	mcpClient, err := client.NewStdioMCPClient(c.command, envStrings, c.args...)
	if err != nil {
		return fmt.Errorf("failed to start stdio server: %w", err)
	}

	if stderr, ok := client.GetStderr(mcpClient); ok {
		go drainStderr(c.command, stderr)
	}

	initResult, err := handshake(ctx, mcpClient)
	if err != nil {
		if closeErr := mcpClient.Close(); closeErr != nil {
			logging.Debug("StdioClient", "Error closing failed client for %s: %v", c.command, closeErr)
		}
		return fmt.Errorf("failed to initialize MCP protocol: %w", err)
	}

	c.client = mcpClient
	c.connected = true

	logging.Debug("StdioClient", "Initialized %s (server %s %s)", c.command,
		initResult.ServerInfo.Name, initResult.ServerInfo.Version)

	return nil
}

func (c *StdioClient) Close() error {
	return c.closeClient()
}

func (c *StdioClient) ListTools(ctx context.Context) ([]mcp.Tool, error) {
	return c.listTools(ctx)
}

func (c *StdioClient) CallTool(ctx context.Context, name string, args map[string]interface{}) (*mcp.CallToolResult, error) {
	return c.callTool(ctx, name, args)
}

func (c *StdioClient) Ping(ctx context.Context) error {
	return c.ping(ctx)
}

// drainStderr forwards the subprocess's stderr to the debug log so that a
// chatty server can never block on a full pipe.
func drainStderr(command string, r io.Reader) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		logging.Debug("StdioClient", "[%s] %s", command, scanner.Text())
	}
}

func envKeys(env map[string]string) []string {
	keys := make([]string, 0, len(env))
	for k := range env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
