package config

import (
	"fmt"
	"net"
	"net/url"
	"sort"
	"strings"

	"mcpgateway/pkg/logging"
)

// MinCredentialKeyLen matches the minimum the store accepts.
const MinCredentialKeyLen = 16

// ValidationError represents a validation error with context
type ValidationError struct {
	Field   string
	Message string
}

func (ve ValidationError) Error() string {
	if ve.Field == "" {
		return ve.Message
	}
	return fmt.Sprintf("field '%s': %s", ve.Field, ve.Message)
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

func (ve ValidationErrors) Error() string {
	if len(ve) == 0 {
		return "no validation errors"
	}
	if len(ve) == 1 {
		return ve[0].Error()
	}

	var messages []string
	for _, err := range ve {
		messages = append(messages, err.Error())
	}
	return fmt.Sprintf("validation failed: %s", strings.Join(messages, "; "))
}

// Add adds a new validation error
func (ve *ValidationErrors) Add(field, format string, args ...interface{}) {
	*ve = append(*ve, ValidationError{Field: field, Message: fmt.Sprintf(format, args...)})
}

// Validate checks the configuration needed by the serve command. It returns
// ValidationErrors listing every problem found.
func (c GatewayConfig) Validate() error {
	var errs ValidationErrors

	if _, _, err := net.SplitHostPort(c.Listen); err != nil {
		errs.Add("listen", "must be host:port: %v", err)
	}
	if c.Limits.MaxServers <= 0 {
		errs.Add("limits.max_servers", "must be positive")
	}

	for field, d := range map[string]int64{
		"timeouts.connection":   int64(c.Timeouts.Connection),
		"timeouts.request":      int64(c.Timeouts.Request),
		"timeouts.health_probe": int64(c.Timeouts.HealthProbe),
		"timeouts.drain":        int64(c.Timeouts.Drain),
		"health.interval":       int64(c.Health.Interval),
		"retry.base_delay":      int64(c.Retry.BaseDelay),
		"retry.max_delay":       int64(c.Retry.MaxDelay),
	} {
		if d <= 0 {
			errs.Add(field, "must be a positive duration")
		}
	}
	if c.Health.Concurrency <= 0 {
		errs.Add("health.concurrency", "must be positive")
	}
	if c.Retry.MaxAttempts <= 0 {
		errs.Add("retry.max_attempts", "must be positive")
	}
	if c.Retry.Multiplier < 1 {
		errs.Add("retry.multiplier", "must be at least 1")
	}
	if c.Retry.MaxDelay < c.Retry.BaseDelay {
		errs.Add("retry.max_delay", "must not be less than retry.base_delay")
	}
	if c.Classification.Concurrency <= 0 {
		errs.Add("classification.concurrency", "must be positive")
	}
	if c.Classification.QueueSize <= 0 {
		errs.Add("classification.queue_size", "must be positive")
	}

	validateEndpoint(&errs, "classification.endpoint", c.Classification.Endpoint)
	validateEndpoint(&errs, "index.endpoint", c.Index.Endpoint)

	switch c.Storage.Driver {
	case StorageDriverMemory:
	case StorageDriverSQLite:
		if c.Storage.Path == "" {
			errs.Add("storage.path", "is required for the sqlite driver")
		}
	default:
		errs.Add("storage.driver", "must be one of: %s, %s", StorageDriverMemory, StorageDriverSQLite)
	}

	if len(c.CredentialKey) < MinCredentialKeyLen {
		errs.Add("credential_key", "must be at least %d bytes (set %s)", MinCredentialKeyLen, CredentialKeyEnv)
	}

	if _, err := logging.ParseLevel(c.Logging.Level); err != nil {
		errs.Add("logging.level", "must be one of: debug, info, warn, error")
	}
	switch logging.Format(strings.ToLower(c.Logging.Format)) {
	case logging.FormatText, logging.FormatJSON:
	default:
		errs.Add("logging.format", "must be one of: text, json")
	}

	if len(errs) > 0 {
		sortErrors(errs)
		return errs
	}
	return nil
}

func validateEndpoint(errs *ValidationErrors, field, endpoint string) {
	if endpoint == "" {
		return
	}
	u, err := url.Parse(endpoint)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		errs.Add(field, "must be an http or https URL")
	}
}

// sortErrors orders errors by field so map iteration does not leak into
// the message.
func sortErrors(errs ValidationErrors) {
	sort.SliceStable(errs, func(i, j int) bool { return errs[i].Field < errs[j].Field })
}
