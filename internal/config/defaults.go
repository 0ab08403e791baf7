package config

import "time"

const (
	DefaultListen      = "127.0.0.1:8090"
	DefaultServersDir  = "servers"
	DefaultStoragePath = "gateway.db"
)

// GetDefaultConfig returns the configuration used when config.yaml is
// absent. Loaded files are layered on top of it.
func GetDefaultConfig() GatewayConfig {
	return GatewayConfig{
		Listen: DefaultListen,
		Limits: LimitsConfig{MaxServers: 50},
		Timeouts: TimeoutsConfig{
			Connection:  30 * time.Second,
			Request:     60 * time.Second,
			HealthProbe: 5 * time.Second,
			Drain:       30 * time.Second,
		},
		Health: HealthConfig{
			Interval:    30 * time.Second,
			Concurrency: 10,
		},
		Retry: RetryConfig{
			MaxAttempts: 3,
			BaseDelay:   time.Second,
			Multiplier:  2,
			MaxDelay:    4 * time.Second,
		},
		Classification: ClassificationConfig{
			Concurrency: 5,
			QueueSize:   1000,
		},
		Storage: StorageConfig{
			Driver: StorageDriverSQLite,
			Path:   DefaultStoragePath,
		},
		ServersDir: DefaultServersDir,
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}
