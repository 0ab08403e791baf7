package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"mcpgateway/pkg/logging"

	"gopkg.in/yaml.v3"
)

const (
	userConfigDir  = ".config/mcpgateway"
	configFileName = "config.yaml"

	// CredentialKeyEnv overrides credential_key from the file.
	CredentialKeyEnv = "MCPGATEWAY_CREDENTIAL_KEY"
)

// osUserHomeDir is replaced in tests.
var osUserHomeDir = os.UserHomeDir

// DefaultConfigPath returns ~/.config/mcpgateway.
func DefaultConfigPath() (string, error) {
	homeDir, err := osUserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine user config directory: %w", err)
	}
	return filepath.Join(homeDir, userConfigDir), nil
}

// LoadConfig reads config.yaml from configPath, layers it over the
// defaults, applies environment overrides and resolves relative paths.
// The result is not validated; call Validate once flags are applied.
func LoadConfig(configPath string) (GatewayConfig, error) {
	config := GetDefaultConfig()
	configFilePath := filepath.Join(configPath, configFileName)

	data, err := os.ReadFile(configFilePath)
	switch {
	case errors.Is(err, os.ErrNotExist):
		logging.Info("ConfigLoader", "No config.yaml found at %s, using defaults", configFilePath)
	case err != nil:
		return GatewayConfig{}, fmt.Errorf("error reading %s: %w", configFilePath, err)
	default:
		if err := yaml.Unmarshal(data, &config); err != nil {
			return GatewayConfig{}, fmt.Errorf("error loading config from %s: %w", configFilePath, err)
		}
		logging.Info("ConfigLoader", "Loaded configuration from %s", configFilePath)
	}

	if key := os.Getenv(CredentialKeyEnv); key != "" {
		config.CredentialKey = key
	}

	config.ServersDir = resolvePath(configPath, config.ServersDir)
	config.Storage.Path = resolvePath(configPath, config.Storage.Path)
	return config, nil
}

func resolvePath(base, p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(base, p)
}
