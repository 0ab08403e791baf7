package cmd

import (
	"fmt"
	"maps"
	"strings"

	"github.com/spf13/cobra"

	"mcpgateway/internal/api"
	"mcpgateway/internal/cli"
	"mcpgateway/internal/loader"
)

func newServersCmd(flags *cli.CommandFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "servers",
		Aliases: []string{"server"},
		Short:   "Manage registered MCP servers",
	}
	cmd.AddCommand(
		newServersListCmd(flags),
		newServersGetCmd(flags),
		newServersRegisterCmd(flags),
		newServersConnectCmd(flags),
		newServersDisconnectCmd(flags),
		newServersRemoveCmd(flags),
		newServersToolsCmd(flags),
		newServersRefreshCmd(flags),
	)
	return cmd
}

func newServersListCmd(flags *cli.CommandFlags) *cobra.Command {
	var status string
	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List registered servers",
		Args:    cobra.NoArgs,
		RunE: withEnv(flags, func(env *commandEnv, args []string) error {
			list, err := env.client.ListServers(env.ctx, status)
			if err != nil {
				return err
			}
			return env.printer.Servers(list)
		}),
	}
	cmd.Flags().StringVar(&status, "status", "", "Only list servers in this status (DISCONNECTED, CONNECTING, CONNECTED, DEGRADED, ERROR)")
	return cmd
}

func newServersGetCmd(flags *cli.CommandFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "get <id-or-name>",
		Short: "Show one server",
		Args:  cobra.ExactArgs(1),
		RunE: withEnv(flags, func(env *commandEnv, args []string) error {
			rec, err := env.client.GetServer(env.ctx, args[0])
			if err != nil {
				return err
			}
			return env.printer.Server(rec)
		}),
	}
}

// registerOptions are the flag inputs of servers register. Flags override
// the values read from --file.
type registerOptions struct {
	file        string
	name        string
	transport   string
	command     string
	args        []string
	env         []string
	url         string
	baseURL     string
	headers     []string
	healthURL   string
	autoConnect bool
}

func (o *registerOptions) request(cmd *cobra.Command) (api.RegisterServerRequest, error) {
	var req api.RegisterServerRequest
	if o.file != "" {
		parsed, err := loader.ParseFile(o.file)
		if err != nil {
			return req, err
		}
		req = parsed
	}

	set := cmd.Flags().Changed
	if set("name") {
		req.Name = o.name
	}
	if set("transport") {
		req.TransportType = o.transport
	}
	if set("command") {
		req.ConnectionConfig.Command = o.command
	}
	if set("arg") {
		req.ConnectionConfig.Args = o.args
	}
	if set("url") {
		req.ConnectionConfig.URL = o.url
	}
	if set("base-url") {
		req.ConnectionConfig.BaseURL = o.baseURL
	}
	if set("health-url") {
		req.HealthCheckURL = o.healthURL
	}
	if set("auto-connect") {
		req.AutoConnect = o.autoConnect
	}

	env, err := parseKeyValues("--env", o.env)
	if err != nil {
		return req, err
	}
	if len(env) > 0 {
		req.ConnectionConfig.Env = mergeMap(req.ConnectionConfig.Env, env)
	}
	headers, err := parseKeyValues("--header", o.headers)
	if err != nil {
		return req, err
	}
	if len(headers) > 0 {
		req.ConnectionConfig.Headers = mergeMap(req.ConnectionConfig.Headers, headers)
	}

	if req.Name == "" {
		return req, fmt.Errorf("a server name is required (--name or name: in --file)")
	}
	if req.TransportType == "" {
		return req, fmt.Errorf("a transport is required (--transport or transport_type: in --file)")
	}
	return req, nil
}

func newServersRegisterCmd(flags *cli.CommandFlags) *cobra.Command {
	opts := &registerOptions{}
	cmd := &cobra.Command{
		Use:   "register",
		Short: "Register an MCP server",
		Long: `Registers an MCP server with the gateway, either from a YAML definition
(the same format as files in the servers directory) or from flags. Flags
override values from the file.

Examples:
  mcpgateway servers register -f github.yaml
  mcpgateway servers register --name files --transport stdio --command mcp-files --arg /srv --auto-connect
  mcpgateway servers register --name search --transport http --base-url https://search.example.com/mcp --header "Authorization=Bearer \${SEARCH_TOKEN}"`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := opts.request(cmd)
			if err != nil {
				return err
			}
			return withEnv(flags, func(env *commandEnv, _ []string) error {
				rec, err := env.client.RegisterServer(env.ctx, req)
				if err != nil {
					return err
				}
				return env.printer.Server(rec)
			})(cmd, args)
		},
	}

	cmd.Flags().StringVarP(&opts.file, "file", "f", "", "YAML server definition")
	cmd.Flags().StringVar(&opts.name, "name", "", "Unique server name")
	cmd.Flags().StringVar(&opts.transport, "transport", "", "Transport: stdio, sse or http")
	cmd.Flags().StringVar(&opts.command, "command", "", "Command to launch (stdio)")
	cmd.Flags().StringArrayVar(&opts.args, "arg", nil, "Command argument (stdio, repeatable)")
	cmd.Flags().StringArrayVar(&opts.env, "env", nil, "Environment variable KEY=VALUE (stdio, repeatable)")
	cmd.Flags().StringVar(&opts.url, "url", "", "SSE endpoint URL (sse)")
	cmd.Flags().StringVar(&opts.baseURL, "base-url", "", "Streamable HTTP endpoint URL (http)")
	cmd.Flags().StringArrayVar(&opts.headers, "header", nil, "Request header KEY=VALUE (sse, http, repeatable)")
	cmd.Flags().StringVar(&opts.healthURL, "health-url", "", "Optional HTTP health check URL")
	cmd.Flags().BoolVar(&opts.autoConnect, "auto-connect", false, "Connect immediately and after restarts")
	return cmd
}

func newServersConnectCmd(flags *cli.CommandFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "connect <id-or-name>",
		Short: "Connect a server and discover its tools",
		Args:  cobra.ExactArgs(1),
		RunE: withEnv(flags, func(env *commandEnv, args []string) error {
			rec, err := env.client.ConnectServer(env.ctx, args[0])
			if err != nil {
				return err
			}
			return env.printer.Server(rec)
		}),
	}
}

func newServersDisconnectCmd(flags *cli.CommandFlags) *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "disconnect <id-or-name>",
		Short: "Disconnect a server",
		Long: `Disconnects a server. Without --force the gateway waits for in-flight
calls to finish before closing the session.`,
		Args: cobra.ExactArgs(1),
		RunE: withEnv(flags, func(env *commandEnv, args []string) error {
			rec, err := env.client.DisconnectServer(env.ctx, args[0], force)
			if err != nil {
				return err
			}
			return env.printer.Server(rec)
		}),
	}
	cmd.Flags().BoolVar(&force, "force", false, "Close the session without waiting for in-flight calls")
	return cmd
}

func newServersRemoveCmd(flags *cli.CommandFlags) *cobra.Command {
	return &cobra.Command{
		Use:     "remove <id-or-name>",
		Aliases: []string{"rm", "delete"},
		Short:   "Disconnect and unregister a server, dropping its tools",
		Args:    cobra.ExactArgs(1),
		RunE: withEnv(flags, func(env *commandEnv, args []string) error {
			if err := env.client.RemoveServer(env.ctx, args[0]); err != nil {
				return err
			}
			return env.printer.Removed(args[0])
		}),
	}
}

func newServersToolsCmd(flags *cli.CommandFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "tools <id-or-name>",
		Short: "List the tools discovered on a server",
		Args:  cobra.ExactArgs(1),
		RunE: withEnv(flags, func(env *commandEnv, args []string) error {
			list, err := env.client.ServerTools(env.ctx, args[0])
			if err != nil {
				return err
			}
			return env.printer.Tools(list)
		}),
	}
}

func newServersRefreshCmd(flags *cli.CommandFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "refresh <id-or-name>",
		Short: "Re-run tool discovery on a connected server",
		Args:  cobra.ExactArgs(1),
		RunE: withEnv(flags, func(env *commandEnv, args []string) error {
			res, err := env.client.RefreshTools(env.ctx, args[0])
			if err != nil {
				return err
			}
			return env.printer.Refresh(res)
		}),
	}
}

// parseKeyValues parses repeated KEY=VALUE flags.
func parseKeyValues(flag string, values []string) (map[string]string, error) {
	if len(values) == 0 {
		return nil, nil
	}
	out := make(map[string]string, len(values))
	for _, kv := range values {
		k, v, ok := strings.Cut(kv, "=")
		if !ok || strings.TrimSpace(k) == "" {
			return nil, fmt.Errorf("%s %q: expected KEY=VALUE", flag, kv)
		}
		out[strings.TrimSpace(k)] = v
	}
	return out, nil
}

func mergeMap(base, overrides map[string]string) map[string]string {
	out := maps.Clone(base)
	if out == nil {
		out = make(map[string]string, len(overrides))
	}
	maps.Copy(out, overrides)
	return out
}
