package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"
)

// envPrefix is the prefix for environment variable overrides.
// A double underscore separates nesting levels, so
// TOKEND_SERVER__HTTP_PORT maps to server.http_port.
const envPrefix = "TOKEND_"

// Loader loads configuration from a file, environment variables, and
// command-line flags, in increasing order of precedence
type Loader struct {
	k *koanf.Koanf
}

// NewLoader creates a loader without flag overrides
func NewLoader(path string) (*Loader, error) {
	return NewLoaderWithFlags(path, nil)
}

// NewLoaderWithFlags creates a loader that also applies explicitly-set
// command-line flags on top of file and environment values. A missing
// config file is not an error; the other sources still apply.
func NewLoaderWithFlags(path string, flags *pflag.FlagSet) (*Loader, error) {
	k := koanf.New(".")

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
				return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
			}
		}
	}

	if err := k.Load(env.Provider(envPrefix, ".", func(s string) string {
		s = strings.ToLower(strings.TrimPrefix(s, envPrefix))
		return strings.ReplaceAll(s, "__", ".")
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if flags != nil {
		mapping := GetFlagMapping()
		provider := posflag.ProviderWithValue(flags, ".", k, func(key, value string) (string, interface{}) {
			// Only explicitly-set flags override; flag defaults would
			// otherwise shadow file and environment values
			if !flags.Changed(key) {
				return "", nil
			}
			if configPath, ok := mapping[key]; ok {
				return configPath, value
			}
			return key, value
		})
		if err := k.Load(provider, nil); err != nil {
			return nil, fmt.Errorf("failed to load flags: %w", err)
		}
	}

	return &Loader{k: k}, nil
}

// Get unmarshals and validates the merged configuration. Values not set by
// any source keep their defaults.
func (l *Loader) Get() (*Config, error) {
	cfg := Default()
	if err := l.k.UnmarshalWithConf("", cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}
