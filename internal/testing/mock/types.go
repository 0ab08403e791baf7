package mock

import "time"

// ToolConfig defines a mock tool and how it responds.
type ToolConfig struct {
	// Name is the unique identifier for the tool
	Name string `yaml:"name"`
	// Description describes what the tool does
	Description string `yaml:"description"`
	// InputSchema is an optional raw JSON schema
	InputSchema string `yaml:"input_schema,omitempty"`
	// Response is the text returned on success
	Response string `yaml:"response,omitempty"`
	// Error, when set, is returned as a tool-level error (isError: true)
	Error string `yaml:"error,omitempty"`
	// Delay simulates response latency
	Delay time.Duration `yaml:"delay,omitempty"`
	// Block makes the call wait until Server.Release or the call context ends
	Block bool `yaml:"block,omitempty"`
}
