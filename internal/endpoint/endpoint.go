// Package endpoint models the identity of a token source. An identity is
// either a token URL, compared by value, or a caller-supplied credential
// provider, compared by instance. Identities are used directly as map keys
// by the registry.
package endpoint

import "context"

// Fetcher retrieves the raw credential served at a URL
// The response body is the credential; no envelope is assumed
type Fetcher interface {
	Fetch(ctx context.Context, url string) (string, error)
}

// Identity identifies a token source
// Implementations must be comparable: URL compares by string value,
// *Provider compares by pointer, so two distinct provider instances are
// never the same identity even when backed by the same function
type Identity interface {
	// Describe returns a short, loggable description of the identity
	// It never contains credential material
	Describe() string

	// Credential resolves the identity to a credential value
	// URL identities use the fetcher; provider identities ignore it
	Credential(ctx context.Context, fetcher Fetcher) (string, error)
}

// URL is an endpoint identity addressed by a token URL
type URL string

// Describe returns the URL itself
func (u URL) Describe() string {
	return string(u)
}

// Credential fetches the credential from the URL
func (u URL) Credential(ctx context.Context, fetcher Fetcher) (string, error) {
	return fetcher.Fetch(ctx, string(u))
}

// Provider is an endpoint identity backed by a caller-supplied credential
// function, for callers that mint or broker credentials themselves
type Provider struct {
	name string
	fn   func(ctx context.Context) (string, error)
}

// NewProvider creates a provider identity. The name is only used in logs
// and may be empty.
func NewProvider(name string, fn func(ctx context.Context) (string, error)) *Provider {
	return &Provider{name: name, fn: fn}
}

// Describe returns "provider" or "provider:<name>"
func (p *Provider) Describe() string {
	if p.name != "" {
		return "provider:" + p.name
	}
	return "provider"
}

// Credential invokes the provider function
func (p *Provider) Credential(ctx context.Context, _ Fetcher) (string, error) {
	return p.fn(ctx)
}
