package cmd

import (
	"encoding/json"
	"fmt"
	"maps"

	"github.com/spf13/cobra"

	"mcpgateway/internal/api"
	"mcpgateway/internal/cli"
)

func newCallCmd(flags *cli.CommandFlags) *cobra.Command {
	var (
		serverID string
		argsJSON string
		argPairs []string
	)
	cmd := &cobra.Command{
		Use:   "call <tool>",
		Short: "Call a tool through the gateway",
		Long: `Calls a tool by namespaced name (server.tool), by bare name when exactly
one available server exposes it, or on an explicit server with --server.

Arguments come from --args (a JSON object) and repeated --arg KEY=VALUE
flags, which win over --args. A VALUE that parses as JSON is sent as that
JSON value, anything else as a string.

Examples:
  mcpgateway call github.create_issue --arg title="Broken build" --arg labels='["ci"]'
  mcpgateway call search --server docs --args '{"query": "retry policy"}'`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			arguments, err := buildArguments(argsJSON, argPairs)
			if err != nil {
				return err
			}
			return withEnv(flags, func(env *commandEnv, args []string) error {
				res, err := env.client.CallTool(env.ctx, api.CallToolRequest{
					Name:      args[0],
					Arguments: arguments,
					ServerID:  serverID,
				})
				if err != nil {
					return err
				}
				return env.printer.CallResult(res)
			})(cmd, args)
		},
	}
	cmd.Flags().StringVar(&serverID, "server", "", "Server ID or name to route to")
	cmd.Flags().StringVar(&argsJSON, "args", "", "Tool arguments as a JSON object")
	cmd.Flags().StringArrayVar(&argPairs, "arg", nil, "Tool argument KEY=VALUE (repeatable)")
	return cmd
}

func buildArguments(argsJSON string, pairs []string) (map[string]interface{}, error) {
	arguments := map[string]interface{}{}
	if argsJSON != "" {
		if err := json.Unmarshal([]byte(argsJSON), &arguments); err != nil {
			return nil, fmt.Errorf("--args must be a JSON object: %w", err)
		}
	}

	kv, err := parseKeyValues("--arg", pairs)
	if err != nil {
		return nil, err
	}
	parsed := make(map[string]interface{}, len(kv))
	for k, raw := range kv {
		var v interface{}
		if err := json.Unmarshal([]byte(raw), &v); err != nil {
			v = raw
		}
		parsed[k] = v
	}
	maps.Copy(arguments, parsed)

	if len(arguments) == 0 {
		return nil, nil
	}
	return arguments, nil
}
