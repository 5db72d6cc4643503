package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tokend.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoader_Get(t *testing.T) {
	t.Run("defaults apply without any sources", func(t *testing.T) {
		loader, err := NewLoader("")
		require.NoError(t, err)

		cfg, err := loader.Get()
		require.NoError(t, err)

		assert.Equal(t, 8080, cfg.Server.HTTPPort)
		assert.Equal(t, 1*time.Hour, cfg.Refresh.DefaultInterval)
		assert.Equal(t, 10*time.Second, cfg.Refresh.RetryInterval)
		assert.Equal(t, 0.5, cfg.Refresh.ExpiryFraction)
		assert.Equal(t, "http", cfg.Transport.Type)
		assert.Empty(t, cfg.PrimaryEndpoint)
	})

	t.Run("loads values from a YAML file", func(t *testing.T) {
		path := writeConfigFile(t, `
server:
  http_port: 9000
primary_endpoint: https://ex/token
endpoints:
  - name: uploads
    url: https://ex/uploads/token
  - name: collab
    url: https://ex/collab/token
refresh:
  default_interval: 30m
  expiry_fraction: 0.75
`)
		loader, err := NewLoader(path)
		require.NoError(t, err)

		cfg, err := loader.Get()
		require.NoError(t, err)

		assert.Equal(t, 9000, cfg.Server.HTTPPort)
		assert.Equal(t, "https://ex/token", cfg.PrimaryEndpoint)
		require.Len(t, cfg.Endpoints, 2)
		assert.Equal(t, "uploads", cfg.Endpoints[0].Name)
		assert.Equal(t, "https://ex/uploads/token", cfg.Endpoints[0].URL)
		assert.Equal(t, 30*time.Minute, cfg.Refresh.DefaultInterval)
		assert.Equal(t, 0.75, cfg.Refresh.ExpiryFraction)

		// Values the file does not set keep their defaults
		assert.Equal(t, 10*time.Second, cfg.Refresh.RetryInterval)
	})

	t.Run("environment variables override the file", func(t *testing.T) {
		path := writeConfigFile(t, "server:\n  http_port: 9000\n")
		t.Setenv("TOKEND_SERVER__HTTP_PORT", "9001")
		t.Setenv("TOKEND_PRIMARY_ENDPOINT", "https://env/token")

		loader, err := NewLoader(path)
		require.NoError(t, err)

		cfg, err := loader.Get()
		require.NoError(t, err)

		assert.Equal(t, 9001, cfg.Server.HTTPPort)
		assert.Equal(t, "https://env/token", cfg.PrimaryEndpoint)
	})

	t.Run("explicitly-set flags override everything", func(t *testing.T) {
		path := writeConfigFile(t, "server:\n  http_port: 9000\n")
		t.Setenv("TOKEND_SERVER__HTTP_PORT", "9001")

		flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
		RegisterFlags(flags)
		require.NoError(t, flags.Parse([]string{"--server-http-port", "9002"}))

		loader, err := NewLoaderWithFlags(path, flags)
		require.NoError(t, err)

		cfg, err := loader.Get()
		require.NoError(t, err)

		assert.Equal(t, 9002, cfg.Server.HTTPPort)
	})

	t.Run("unset flags do not clobber other sources", func(t *testing.T) {
		path := writeConfigFile(t, "server:\n  http_port: 9000\n")

		flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
		RegisterFlags(flags)
		require.NoError(t, flags.Parse(nil))

		loader, err := NewLoaderWithFlags(path, flags)
		require.NoError(t, err)

		cfg, err := loader.Get()
		require.NoError(t, err)

		assert.Equal(t, 9000, cfg.Server.HTTPPort)
	})

	t.Run("a missing config file is not an error", func(t *testing.T) {
		loader, err := NewLoader(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
		require.NoError(t, err)

		cfg, err := loader.Get()
		require.NoError(t, err)
		assert.Equal(t, 8080, cfg.Server.HTTPPort)
	})
}

func TestConfig_Validate(t *testing.T) {
	t.Run("accepts the defaults", func(t *testing.T) {
		assert.NoError(t, Default().Validate())
	})

	t.Run("rejects a bad expiry fraction", func(t *testing.T) {
		cfg := Default()
		cfg.Refresh.ExpiryFraction = 1.5
		assert.Error(t, cfg.Validate())
	})

	t.Run("rejects an unknown transport", func(t *testing.T) {
		cfg := Default()
		cfg.Transport.Type = "carrier-pigeon"
		assert.Error(t, cfg.Validate())
	})

	t.Run("requires a fixture file for the fixture transport", func(t *testing.T) {
		cfg := Default()
		cfg.Transport.Type = "fixture"
		assert.Error(t, cfg.Validate())

		cfg.Transport.FixtureFile = "fixtures.yaml"
		assert.NoError(t, cfg.Validate())
	})

	t.Run("rejects duplicate endpoint names", func(t *testing.T) {
		cfg := Default()
		cfg.Endpoints = []EndpointConfig{
			{Name: "uploads", URL: "https://ex/a"},
			{Name: "uploads", URL: "https://ex/b"},
		}
		assert.Error(t, cfg.Validate())
	})

	t.Run("rejects the reserved primary name", func(t *testing.T) {
		cfg := Default()
		cfg.Endpoints = []EndpointConfig{
			{Name: PrimaryName, URL: "https://ex/a"},
		}
		assert.Error(t, cfg.Validate())
	})

	t.Run("rejects endpoints without a url", func(t *testing.T) {
		cfg := Default()
		cfg.Endpoints = []EndpointConfig{{Name: "uploads"}}
		assert.Error(t, cfg.Validate())
	})
}
