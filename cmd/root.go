package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"mcpgateway/internal/cli"
	"mcpgateway/internal/client"
)

// Exit codes for CLI commands.
const (
	// ExitCodeSuccess indicates successful execution.
	ExitCodeSuccess = 0
	// ExitCodeError indicates a general error (command failed, invalid arguments).
	ExitCodeError = 1
	// ExitCodeUnreachable indicates the gateway could not be reached.
	ExitCodeUnreachable = 2
	// ExitCodeUnhealthy is returned by the health command when the gateway
	// reports degraded or unhealthy.
	ExitCodeUnhealthy = 3
)

var version = "dev"

// SetVersion sets the version reported by the version command, the
// --version flag and the MCP endpoint.
func SetVersion(v string) {
	version = v
}

// GetVersion returns the current version of the application.
func GetVersion() string {
	return version
}

// newRootCmd builds the command tree. Every call returns fresh flag state.
func newRootCmd() *cobra.Command {
	flags := &cli.CommandFlags{}

	root := &cobra.Command{
		Use:   "mcpgateway",
		Short: "Aggregate many MCP servers behind one gateway",
		Long: `mcpgateway runs a gateway that connects to external MCP servers over
stdio, SSE or streamable HTTP, merges their tools into one namespaced
catalog and routes tool calls to the server that owns them.

Run 'mcpgateway serve' to start the gateway. The other commands talk to a
running gateway over its HTTP API (see --endpoint).`,
		Version: version,
		// Errors are printed by Execute; usage is only useful for flag errors.
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetVersionTemplate(`{{printf "mcpgateway version %s\n" .Version}}`)

	cli.RegisterCommonFlags(root, flags)

	root.AddCommand(
		newServeCmd(),
		newServersCmd(flags),
		newToolsCmd(flags),
		newCallCmd(flags),
		newStateCmd(flags),
		newHealthCmd(flags),
		newProfileCmd(),
		newVersionCmd(),
	)
	return root
}

// Execute runs the CLI and exits with a code matching the error.
func Execute() {
	root := newRootCmd()
	if err := root.Execute(); err != nil {
		fmt.Fprintln(root.ErrOrStderr(), "Error:", err)
		os.Exit(getExitCode(err))
	}
}

// getExitCode maps errors onto exit codes for scripting.
func getExitCode(err error) int {
	var connErr *cli.ConnectionError
	if errors.As(err, &connErr) {
		return ExitCodeUnreachable
	}
	if errors.Is(err, errNotHealthy) {
		return ExitCodeUnhealthy
	}
	return ExitCodeError
}

// commandEnv is what a client command needs to run.
type commandEnv struct {
	ctx     context.Context
	client  *client.Client
	printer *cli.Printer
}

// withEnv adapts fn into a cobra RunE: it applies the selected profile,
// validates the shared flags, bounds the command with --timeout and turns transport failures into
// classified connection errors.
func withEnv(flags *cli.CommandFlags, fn func(env *commandEnv, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		if err := applyProfile(cmd, flags); err != nil {
			return err
		}
		if err := flags.Validate(); err != nil {
			return err
		}

		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		ctx, cancel := context.WithTimeout(ctx, flags.Timeout)
		defer cancel()

		out := cmd.OutOrStdout()
		env := &commandEnv{
			ctx:     ctx,
			client:  client.New(flags.Endpoint),
			printer: cli.NewPrinter(out, flags.OutputFormat, flags.NoHeaders, !flags.NoColor && isTerminal(out)),
		}

		err := fn(env, args)
		if err != nil && cli.IsTransportError(err) {
			return cli.ClassifyConnectionError(err, flags.Endpoint)
		}
		return err
	}
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && isatty.IsTerminal(f.Fd())
}
