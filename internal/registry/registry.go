// Package registry maintains at most one shared token per endpoint
// identity. Consumers request a token for an identity; the registry either
// hands back the cached instance, joins an initialization already in
// flight, or creates and initializes a new token. The registry is the sole
// destroyer of the tokens it caches.
package registry

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/cloudbind/tokend/internal/clock"
	"github.com/cloudbind/tokend/internal/endpoint"
	"github.com/cloudbind/tokend/internal/token"
)

// ErrClosed is returned from Register after the registry has been torn down
var ErrClosed = errors.New("token registry is closed")

// Observer receives registry lifecycle events
// All methods may be called concurrently
type Observer interface {
	// TokenRegistered fires after a token is initialized and cached
	TokenRegistered(ctx context.Context, identity endpoint.Identity, tokenID string)

	// RegistrationFailed fires when a first initialization fails; nothing
	// is cached for the identity
	RegistrationFailed(ctx context.Context, identity endpoint.Identity, err error)

	// TornDown fires once per effective teardown with the number of tokens
	// destroyed
	TornDown(destroyed int)

	// TokenProbe returns a probe observing the lifecycle of the token being
	// created for identity
	TokenProbe(identity endpoint.Identity) token.Probe
}

// Config configures a Registry
type Config struct {
	// Fetcher retrieves credentials for URL endpoint identities (required
	// unless every identity is a provider)
	Fetcher endpoint.Fetcher

	// Observer receives lifecycle events (optional)
	Observer Observer

	// Clock is an optional clock for testing (defaults to system clock)
	Clock clock.Clock

	// Renewal policy applied to every token created by this registry
	// (zero values use the token defaults)
	RefreshInterval time.Duration
	RetryInterval   time.Duration
	ExpiryFraction  float64
}

// Registry maps endpoint identities to shared, lazily created tokens
type Registry struct {
	fetcher  endpoint.Fetcher
	observer Observer
	clock    clock.Clock

	refreshInterval time.Duration
	retryInterval   time.Duration
	expiryFraction  float64

	mu         sync.Mutex
	tokens     map[endpoint.Identity]*entry
	primary    endpoint.Identity
	primarySet bool
	closed     bool
}

// entry is the per-identity slot. It is inserted before the asynchronous
// initialization starts so that concurrent requesters attach to the same
// eventual result instead of racing.
type entry struct {
	ready chan struct{} // closed when the first registration settles
	tok   *token.Token  // set on success, before ready is closed
	err   error         // set on failure, before ready is closed
}

// New creates an empty registry
func New(cfg Config) *Registry {
	clk := cfg.Clock
	if clk == nil {
		clk = clock.NewSystemClock()
	}

	observer := cfg.Observer
	if observer == nil {
		observer = nopObserver{}
	}

	return &Registry{
		fetcher:         cfg.Fetcher,
		observer:        observer,
		clock:           clk,
		refreshInterval: cfg.RefreshInterval,
		retryInterval:   cfg.RetryInterval,
		expiryFraction:  cfg.ExpiryFraction,
		tokens:          make(map[endpoint.Identity]*entry),
	}
}

// Register returns the token for identity, creating and initializing it on
// first use. Concurrent calls for the same identity share a single
// underlying initialization and resolve to the same instance. A failed
// initialization is never cached; the caller may retry.
func (r *Registry) Register(ctx context.Context, identity endpoint.Identity) (*token.Token, error) {
	if identity == nil {
		return nil, errors.New("endpoint identity must not be nil")
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil, ErrClosed
	}
	if e, ok := r.tokens[identity]; ok {
		r.mu.Unlock()
		return await(ctx, e)
	}

	e := &entry{ready: make(chan struct{})}
	r.tokens[identity] = e
	r.mu.Unlock()

	tok := token.New(token.Config{
		Identity:        identity,
		Fetcher:         r.fetcher,
		Probe:           r.observer.TokenProbe(identity),
		Clock:           r.clock,
		RefreshInterval: r.refreshInterval,
		RetryInterval:   r.retryInterval,
		ExpiryFraction:  r.expiryFraction,
	})
	err := tok.Init(ctx)

	r.mu.Lock()
	if err == nil && r.closed {
		// Torn down while the initialization was in flight; the token must
		// not outlive the registry
		tok.Destroy()
		err = ErrClosed
	}
	if err != nil {
		e.err = err
		delete(r.tokens, identity)
		close(e.ready)
		r.mu.Unlock()
		r.observer.RegistrationFailed(ctx, identity, err)
		return nil, err
	}

	e.tok = tok
	close(e.ready)
	r.mu.Unlock()

	r.observer.TokenRegistered(ctx, identity, tok.ID())
	return tok, nil
}

// await blocks until the in-flight registration held by e settles
func await(ctx context.Context, e *entry) (*token.Token, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-e.ready:
	}
	if e.err != nil {
		return nil, e.err
	}
	return e.tok, nil
}

// Token returns the already-registered token for identity. It never creates
// a token: an identity that was not successfully registered yields a
// *NotRegisteredError, including while a first registration is still in
// flight.
func (r *Registry) Token(identity endpoint.Identity) (*token.Token, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.tokens[identity]
	if !ok || e.tok == nil {
		return nil, &NotRegisteredError{Identity: identity}
	}
	return e.tok, nil
}

// SetPrimary registers identity as the registry's own default endpoint. It
// may be set at most once; a failed registration leaves it unset so the
// caller can retry. A registry without a primary endpoint operates with no
// default token.
func (r *Registry) SetPrimary(ctx context.Context, identity endpoint.Identity) (*token.Token, error) {
	r.mu.Lock()
	if r.primarySet {
		r.mu.Unlock()
		return nil, errors.New("primary endpoint is already set")
	}
	r.primarySet = true
	r.primary = identity
	r.mu.Unlock()

	tok, err := r.Register(ctx, identity)
	if err != nil {
		r.mu.Lock()
		r.primarySet = false
		r.primary = nil
		r.mu.Unlock()
		return nil, err
	}
	return tok, nil
}

// Primary returns the default token, or nil when no primary endpoint was
// configured or the registry was torn down. Absence is a degraded mode,
// not an error: consumers that need a token without naming an endpoint
// observe an absent token.
func (r *Registry) Primary() *token.Token {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.primarySet {
		return nil
	}
	e, ok := r.tokens[r.primary]
	if !ok {
		return nil
	}
	return e.tok
}

// Close destroys every cached token, the primary included. Lookups made
// after Close fail as unregistered. Calling Close again has no further
// effect.
func (r *Registry) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true

	var tokens []*token.Token
	for _, e := range r.tokens {
		if e.tok != nil {
			tokens = append(tokens, e.tok)
		}
	}
	r.tokens = make(map[endpoint.Identity]*entry)
	r.mu.Unlock()

	for _, tok := range tokens {
		tok.Destroy()
	}
	r.observer.TornDown(len(tokens))
}

type nopObserver struct{}

func (nopObserver) TokenRegistered(context.Context, endpoint.Identity, string)   {}
func (nopObserver) RegistrationFailed(context.Context, endpoint.Identity, error) {}
func (nopObserver) TornDown(int)                                                 {}
func (nopObserver) TokenProbe(endpoint.Identity) token.Probe                     { return nil }
