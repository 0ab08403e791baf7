package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"mcpgateway/internal/app"
	"mcpgateway/internal/config"
)

func newServeCmd() *cobra.Command {
	cfg := &app.Config{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the gateway",
		Long: `Starts the gateway: restores registered servers from the store,
registers the definitions found in the servers directory (and watches it for
new files), then serves the HTTP API, the MCP endpoint and metrics.

Configuration is read from config.yaml in --config-path. The credential key
used to seal stored connection configs must be set in config.yaml or via
MCPGATEWAY_CREDENTIAL_KEY.

The process runs until SIGINT or SIGTERM. Under systemd (Type=notify) the
service reports readiness once the HTTP listener is up.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			cfg.Version = version

			application, err := app.NewApplication(ctx, cfg)
			if err != nil {
				return fmt.Errorf("failed to initialize gateway: %w", err)
			}
			return application.Run(ctx)
		},
	}

	defaultPath, err := config.DefaultConfigPath()
	if err != nil {
		defaultPath = "."
	}
	cmd.Flags().StringVar(&cfg.ConfigPath, "config-path", defaultPath, "Configuration directory containing config.yaml")
	cmd.Flags().StringVar(&cfg.Listen, "listen", "", "Listen address, host:port (overrides config)")
	cmd.Flags().StringVar(&cfg.LogLevel, "log-level", "", "Log level: debug, info, warn, error (overrides config)")
	cmd.Flags().StringVar(&cfg.LogFormat, "log-format", "", "Log format: text or json (overrides config)")
	cmd.Flags().BoolVar(&cfg.Debug, "debug", false, "Enable debug logging")
	return cmd
}
