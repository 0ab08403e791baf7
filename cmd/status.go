package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"mcpgateway/internal/api"
	"mcpgateway/internal/cli"
)

var errNotHealthy = errors.New("gateway is not healthy")

func newStateCmd(flags *cli.CommandFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "state",
		Short: "Show a snapshot of servers, tools and sessions",
		Args:  cobra.NoArgs,
		RunE: withEnv(flags, func(env *commandEnv, args []string) error {
			state, err := env.client.State(env.ctx)
			if err != nil {
				return err
			}
			return env.printer.State(state)
		}),
	}
}

func newHealthCmd(flags *cli.CommandFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Show gateway health",
		Long: `Shows gateway health. Exits with code 3 when the gateway reports
degraded or unhealthy, so the command can back scripts and probes.`,
		Args: cobra.NoArgs,
		RunE: withEnv(flags, func(env *commandEnv, args []string) error {
			report, err := env.client.Health(env.ctx)
			if err != nil {
				return err
			}
			if err := env.printer.Health(report); err != nil {
				return err
			}
			if report.Status != api.HealthHealthy {
				return fmt.Errorf("%w: %s", errNotHealthy, report.Status)
			}
			return nil
		}),
	}
}
