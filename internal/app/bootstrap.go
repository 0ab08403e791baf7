package app

import (
	"context"
	"fmt"
	"strings"

	"mcpgateway/internal/config"
	"mcpgateway/pkg/logging"
)

// Application is the bootstrapped gateway process.
//
// Example usage:
//
//	cfg := app.NewConfig(configPath, "", "", false)
//	application, err := app.NewApplication(ctx, cfg)
//	if err != nil {
//	    return fmt.Errorf("failed to create application: %w", err)
//	}
//	return application.Run(ctx)
type Application struct {
	config   *Config
	services *Services
}

// NewApplication loads the configuration, initializes logging and wires
// every service. Nothing is started until Run.
func NewApplication(ctx context.Context, cfg *Config) (*Application, error) {
	if cfg.GatewayConfig == nil {
		gc, err := config.LoadConfig(cfg.ConfigPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load configuration from %s: %w", cfg.ConfigPath, err)
		}
		cfg.GatewayConfig = &gc
	}
	cfg.applyOverrides(cfg.GatewayConfig)

	if err := cfg.GatewayConfig.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	level, err := logging.ParseLevel(cfg.GatewayConfig.Logging.Level)
	if err != nil {
		return nil, err
	}
	logging.Init(logging.Options{
		Level:  level,
		Format: logging.Format(strings.ToLower(cfg.GatewayConfig.Logging.Format)),
	})

	services, err := InitializeServices(ctx, cfg)
	if err != nil {
		logging.Error("Bootstrap", err, "Failed to initialize services")
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}

	return &Application{config: cfg, services: services}, nil
}

// Services exposes the wired services.
func (a *Application) Services() *Services { return a.services }

// Run starts the gateway and blocks until ctx is cancelled or the process
// receives SIGINT or SIGTERM.
func (a *Application) Run(ctx context.Context) error {
	return runGateway(ctx, a.config.GatewayConfig, a.services)
}
