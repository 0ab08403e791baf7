package app

import (
	"github.com/prometheus/client_golang/prometheus"

	"mcpgateway/internal/config"
)

// Config holds the command-line inputs of the serve command. Non-empty
// fields override the values loaded from config.yaml.
type Config struct {
	// ConfigPath is the directory holding config.yaml.
	ConfigPath string
	// Listen overrides the listen address.
	Listen string
	// LogLevel overrides logging.level.
	LogLevel string
	// LogFormat overrides logging.format.
	LogFormat string
	// Debug forces debug logging.
	Debug bool
	// Version is reported by the MCP endpoint.
	Version string

	// Registerer receives the gateway metrics. Defaults to the prometheus
	// default registry; tests pass a fresh one.
	Registerer prometheus.Registerer

	// GatewayConfig is filled in by NewApplication. When set beforehand it
	// is used instead of loading config.yaml.
	GatewayConfig *config.GatewayConfig
}

// NewConfig creates the serve configuration.
func NewConfig(configPath, listen, logLevel string, debug bool) *Config {
	return &Config{
		ConfigPath: configPath,
		Listen:     listen,
		LogLevel:   logLevel,
		Debug:      debug,
	}
}

func (c *Config) applyOverrides(gc *config.GatewayConfig) {
	if c.Listen != "" {
		gc.Listen = c.Listen
	}
	if c.LogLevel != "" {
		gc.Logging.Level = c.LogLevel
	}
	if c.LogFormat != "" {
		gc.Logging.Format = c.LogFormat
	}
	if c.Debug {
		gc.Logging.Level = "debug"
	}
}
