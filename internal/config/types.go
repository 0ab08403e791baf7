package config

import "time"

// GatewayConfig is the top-level configuration of the gateway.
type GatewayConfig struct {
	Listen         string               `yaml:"listen,omitempty"`
	Limits         LimitsConfig         `yaml:"limits,omitempty"`
	Timeouts       TimeoutsConfig       `yaml:"timeouts,omitempty"`
	Health         HealthConfig         `yaml:"health,omitempty"`
	Retry          RetryConfig          `yaml:"retry,omitempty"`
	Classification ClassificationConfig `yaml:"classification,omitempty"`
	Index          IndexConfig          `yaml:"index,omitempty"`
	Storage        StorageConfig        `yaml:"storage,omitempty"`
	Transports     TransportsConfig     `yaml:"transports,omitempty"`
	// ServersDir holds declarative server definitions. Relative paths are
	// resolved against the config directory.
	ServersDir    string        `yaml:"servers_dir,omitempty"`
	CredentialKey string        `yaml:"credential_key,omitempty"`
	Logging       LoggingConfig `yaml:"logging,omitempty"`
}

type LimitsConfig struct {
	MaxServers int `yaml:"max_servers,omitempty"`
}

type TimeoutsConfig struct {
	Connection  time.Duration `yaml:"connection,omitempty"`
	Request     time.Duration `yaml:"request,omitempty"`
	HealthProbe time.Duration `yaml:"health_probe,omitempty"`
	Drain       time.Duration `yaml:"drain,omitempty"`
}

type HealthConfig struct {
	Interval      time.Duration `yaml:"interval,omitempty"`
	Concurrency   int           `yaml:"concurrency,omitempty"`
	AutoReconnect *bool         `yaml:"auto_reconnect,omitempty"`
}

// AutoReconnectEnabled reports the effective auto_reconnect setting.
func (h HealthConfig) AutoReconnectEnabled() bool {
	return h.AutoReconnect == nil || *h.AutoReconnect
}

type RetryConfig struct {
	MaxAttempts int           `yaml:"max_attempts,omitempty"`
	BaseDelay   time.Duration `yaml:"base_delay,omitempty"`
	Multiplier  float64       `yaml:"multiplier,omitempty"`
	MaxDelay    time.Duration `yaml:"max_delay,omitempty"`
}

// ClassificationConfig points at the skill classifier. An empty endpoint
// disables classification.
type ClassificationConfig struct {
	Endpoint    string `yaml:"endpoint,omitempty"`
	Concurrency int    `yaml:"concurrency,omitempty"`
	QueueSize   int    `yaml:"queue_size,omitempty"`
}

// IndexConfig points at the semantic search index. An empty endpoint
// disables indexing.
type IndexConfig struct {
	Endpoint string `yaml:"endpoint,omitempty"`
}

const (
	StorageDriverMemory = "memory"
	StorageDriverSQLite = "sqlite"
)

type StorageConfig struct {
	Driver string `yaml:"driver,omitempty"`
	// Path of the SQLite database. Relative paths are resolved against the
	// config directory.
	Path string `yaml:"path,omitempty"`
}

type TransportsConfig struct {
	// AllowInsecure permits plain http:// endpoints for sse and http servers.
	AllowInsecure bool `yaml:"allow_insecure,omitempty"`
}

type LoggingConfig struct {
	Level  string `yaml:"level,omitempty"`
	Format string `yaml:"format,omitempty"`
}
