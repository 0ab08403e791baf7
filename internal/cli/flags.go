package cli

import (
	"os"
	"time"

	"github.com/spf13/cobra"
)

const (
	// EndpointEnvVar overrides the default gateway endpoint.
	EndpointEnvVar = "MCPGATEWAY_ENDPOINT"
	// DefaultEndpoint matches the gateway's default listen address.
	DefaultEndpoint = "http://127.0.0.1:8090"
	// DefaultTimeout bounds a single CLI command.
	DefaultTimeout = 2 * time.Minute
)

// GetDefaultEndpoint returns the endpoint from MCPGATEWAY_ENDPOINT, falling
// back to DefaultEndpoint.
func GetDefaultEndpoint() string {
	if ep := os.Getenv(EndpointEnvVar); ep != "" {
		return ep
	}
	return DefaultEndpoint
}

// CommandFlags holds the flag values shared by every client command.
type CommandFlags struct {
	// OutputFormat is one of table, wide, json or yaml.
	OutputFormat string
	// NoHeaders suppresses the header row in table output.
	NoHeaders bool
	// NoColor disables colored status cells.
	NoColor bool
	// Endpoint is the base URL of the gateway API.
	Endpoint string
	// Profile names a stored gateway profile.
	Profile string
	// Timeout bounds the whole command.
	Timeout time.Duration
}

// RegisterCommonFlags registers the shared flags as persistent flags on cmd:
//   - --output/-o: table, wide, json or yaml (default table)
//   - --no-headers: suppress the header row
//   - --no-color: disable colored output
//   - --endpoint: gateway URL (env: MCPGATEWAY_ENDPOINT)
//   - --profile: named gateway profile (env: MCPGATEWAY_PROFILE)
//   - --timeout: per-command timeout
func RegisterCommonFlags(cmd *cobra.Command, flags *CommandFlags) {
	cmd.PersistentFlags().StringVarP(&flags.OutputFormat, "output", "o", string(OutputFormatTable), "Output format (table, wide, json, yaml)")
	cmd.PersistentFlags().BoolVar(&flags.NoHeaders, "no-headers", false, "Suppress header row in table output")
	cmd.PersistentFlags().BoolVar(&flags.NoColor, "no-color", false, "Disable colored output")
	cmd.PersistentFlags().StringVar(&flags.Endpoint, "endpoint", GetDefaultEndpoint(), "Gateway endpoint URL (env: "+EndpointEnvVar+")")
	cmd.PersistentFlags().StringVar(&flags.Profile, "profile", "", "Use a stored gateway profile (env: MCPGATEWAY_PROFILE)")
	cmd.PersistentFlags().DurationVar(&flags.Timeout, "timeout", DefaultTimeout, "Timeout for the whole command")
}

// Validate checks flag values that cobra cannot check on its own.
func (f *CommandFlags) Validate() error {
	if _, err := ValidateOutputFormat(f.OutputFormat); err != nil {
		return err
	}
	if f.Endpoint == "" {
		return errEmptyEndpoint
	}
	return nil
}
