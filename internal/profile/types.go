package profile

import (
	"fmt"
	"net/url"
	"regexp"
)

// EnvVar selects a profile for one invocation.
const EnvVar = "MCPGATEWAY_PROFILE"

const maxNameLength = 63

var namePattern = regexp.MustCompile(`^[a-z0-9][a-z0-9-]*[a-z0-9]$|^[a-z0-9]$`)

// Profile is a named gateway endpoint.
type Profile struct {
	Name     string `yaml:"name" json:"name"`
	Endpoint string `yaml:"endpoint" json:"endpoint"`
	// Output is the default output format for this profile.
	Output string `yaml:"output,omitempty" json:"output,omitempty"`
}

// Config is the content of profiles.yaml.
type Config struct {
	Current  string    `yaml:"current,omitempty"`
	Profiles []Profile `yaml:"profiles,omitempty"`
}

// ValidateName checks that name is DNS-label-like.
func ValidateName(name string) error {
	if name == "" {
		return fmt.Errorf("profile name cannot be empty")
	}
	if len(name) > maxNameLength {
		return fmt.Errorf("profile name cannot exceed %d characters", maxNameLength)
	}
	if !namePattern.MatchString(name) {
		return fmt.Errorf("profile name must contain only lowercase letters, numbers and hyphens, and must start and end with an alphanumeric character")
	}
	return nil
}

// ValidateEndpoint checks that endpoint is an absolute http(s) URL.
func ValidateEndpoint(endpoint string) error {
	u, err := url.Parse(endpoint)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("endpoint %q must be an http or https URL", endpoint)
	}
	return nil
}

// Get returns the named profile or nil.
func (c *Config) Get(name string) *Profile {
	for i := range c.Profiles {
		if c.Profiles[i].Name == name {
			return &c.Profiles[i]
		}
	}
	return nil
}

// Put adds p or replaces the profile with the same name.
func (c *Config) Put(p Profile) {
	for i := range c.Profiles {
		if c.Profiles[i].Name == p.Name {
			c.Profiles[i] = p
			return
		}
	}
	c.Profiles = append(c.Profiles, p)
}

// Remove deletes the named profile, clearing Current if it pointed there.
func (c *Config) Remove(name string) bool {
	for i := range c.Profiles {
		if c.Profiles[i].Name == name {
			c.Profiles = append(c.Profiles[:i], c.Profiles[i+1:]...)
			if c.Current == name {
				c.Current = ""
			}
			return true
		}
	}
	return false
}
