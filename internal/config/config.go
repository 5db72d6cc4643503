package config

import (
	"fmt"
	"time"
)

// Config is the root configuration structure for tokend
type Config struct {
	// Server configuration (HTTP status port)
	Server ServerConfig `koanf:"server"`

	// PrimaryEndpoint is the token URL for the registry's own default
	// endpoint. Optional: without it the registry runs with no default
	// token and consumers that do not name an endpoint get an absent token
	PrimaryEndpoint string `koanf:"primary_endpoint" usage:"token URL for the registry's default endpoint"`

	// Endpoints are additional named token endpoints registered at startup
	Endpoints []EndpointConfig `koanf:"endpoints"`

	// Refresh tunes the background credential renewal policy
	Refresh RefreshConfig `koanf:"refresh"`

	// Transport configures how URL endpoints are fetched
	Transport TransportConfig `koanf:"transport"`
}

// ServerConfig contains network-level server settings
type ServerConfig struct {
	// HTTPPort is the port for the token status API
	HTTPPort int `koanf:"http_port" usage:"HTTP status server port"`
}

// EndpointConfig declares one named token endpoint
type EndpointConfig struct {
	// Name uniquely identifies this endpoint for lookups and logging
	Name string `koanf:"name"`

	// URL is the token endpoint; the raw response body is the credential
	URL string `koanf:"url"`
}

// RefreshConfig tunes background credential renewal
type RefreshConfig struct {
	// DefaultInterval applies when a credential carries no expiry claim
	DefaultInterval time.Duration `koanf:"default_interval" usage:"renewal interval for credentials without an expiry"`

	// RetryInterval applies after a failed renewal
	RetryInterval time.Duration `koanf:"retry_interval" usage:"delay before retrying a failed renewal"`

	// ExpiryFraction is the fraction of a credential's remaining lifetime
	// after which it is renewed (0 < f <= 1)
	ExpiryFraction float64 `koanf:"expiry_fraction" usage:"fraction of remaining credential lifetime before renewal"`
}

// TransportConfig configures the credential fetcher
type TransportConfig struct {
	// Type selects the fetcher implementation
	// Options: "http" (default), "fixture"
	Type string `koanf:"type" usage:"fetcher implementation (http, fixture)"`

	// Timeout bounds a single credential fetch (http)
	Timeout time.Duration `koanf:"timeout" usage:"timeout for a single credential fetch"`

	// FixtureFile is a YAML file of canned responses (fixture)
	FixtureFile string `koanf:"fixture_file" usage:"YAML file of canned token responses"`
}

// Default returns a config with the default values filled in
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			HTTPPort: 8080,
		},
		Refresh: RefreshConfig{
			DefaultInterval: 1 * time.Hour,
			RetryInterval:   10 * time.Second,
			ExpiryFraction:  0.5,
		},
		Transport: TransportConfig{
			Type:    "http",
			Timeout: 30 * time.Second,
		},
	}
}

// Validate checks the configuration for inconsistencies
func (c *Config) Validate() error {
	if c.Server.HTTPPort <= 0 || c.Server.HTTPPort > 65535 {
		return fmt.Errorf("server.http_port must be in (0, 65535], got %d", c.Server.HTTPPort)
	}

	if c.Refresh.ExpiryFraction <= 0 || c.Refresh.ExpiryFraction > 1 {
		return fmt.Errorf("refresh.expiry_fraction must be in (0, 1], got %v", c.Refresh.ExpiryFraction)
	}

	switch c.Transport.Type {
	case "http":
	case "fixture":
		if c.Transport.FixtureFile == "" {
			return fmt.Errorf("transport.fixture_file is required for the fixture transport")
		}
	default:
		return fmt.Errorf("unknown transport type: %s (supported: http, fixture)", c.Transport.Type)
	}

	seen := make(map[string]bool, len(c.Endpoints))
	for i, ep := range c.Endpoints {
		if ep.Name == "" {
			return fmt.Errorf("endpoint %d is missing a name", i)
		}
		if ep.Name == PrimaryName {
			return fmt.Errorf("endpoint name %q is reserved for the primary endpoint", PrimaryName)
		}
		if ep.URL == "" {
			return fmt.Errorf("endpoint %q is missing a url", ep.Name)
		}
		if seen[ep.Name] {
			return fmt.Errorf("duplicate endpoint name: %s", ep.Name)
		}
		seen[ep.Name] = true
	}

	return nil
}
