package config

import (
	"context"
	"fmt"

	"github.com/cloudbind/tokend/internal/endpoint"
	"github.com/cloudbind/tokend/internal/registry"
	"github.com/cloudbind/tokend/internal/transport"
)

// PrimaryName is the directory name under which the primary endpoint's
// token is indexed
const PrimaryName = "primary"

// Provider builds runtime components from configuration
type Provider struct {
	cfg *Config
}

// NewProvider creates a provider for the given config
func NewProvider(cfg *Config) *Provider {
	return &Provider{cfg: cfg}
}

// Fetcher creates the credential fetcher from configuration
func (p *Provider) Fetcher() (endpoint.Fetcher, error) {
	switch p.cfg.Transport.Type {
	case "", "http":
		return transport.NewHTTPFetcher(p.cfg.Transport.Timeout), nil
	case "fixture":
		fetcher, err := transport.LoadFixtures(p.cfg.Transport.FixtureFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load transport fixtures: %w", err)
		}
		return fetcher, nil
	default:
		return nil, fmt.Errorf("unknown transport type: %s (supported: http, fixture)", p.cfg.Transport.Type)
	}
}

// Registry creates the token registry from configuration
func (p *Provider) Registry(fetcher endpoint.Fetcher, observer registry.Observer) *registry.Registry {
	return registry.New(registry.Config{
		Fetcher:         fetcher,
		Observer:        observer,
		RefreshInterval: p.cfg.Refresh.DefaultInterval,
		RetryInterval:   p.cfg.Refresh.RetryInterval,
		ExpiryFraction:  p.cfg.Refresh.ExpiryFraction,
	})
}

// RegisterEndpoints registers the primary endpoint (if configured) and all
// named endpoints, and returns a directory indexing the resulting tokens
// by name. A failed registration aborts startup: a feature that was
// configured with a token endpoint must not silently run without one.
func (p *Provider) RegisterEndpoints(ctx context.Context, reg *registry.Registry) (*Directory, error) {
	dir := NewDirectory()

	if p.cfg.PrimaryEndpoint != "" {
		tok, err := reg.SetPrimary(ctx, endpoint.URL(p.cfg.PrimaryEndpoint))
		if err != nil {
			return nil, fmt.Errorf("failed to register primary endpoint: %w", err)
		}
		dir.Add(PrimaryName, tok)
	}

	for _, ep := range p.cfg.Endpoints {
		tok, err := reg.Register(ctx, endpoint.URL(ep.URL))
		if err != nil {
			return nil, fmt.Errorf("failed to register endpoint %s: %w", ep.Name, err)
		}
		dir.Add(ep.Name, tok)
	}

	return dir, nil
}
