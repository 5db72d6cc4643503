// Package token implements a self-renewing holder for a single endpoint
// credential. A token is created, asynchronously initialized once, then
// keeps its credential fresh in the background until it is destroyed by
// its owner.
package token

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/cloudbind/tokend/internal/clock"
	"github.com/cloudbind/tokend/internal/endpoint"
)

// State identifies a token's position in its lifecycle
type State string

const (
	// StateCreated means the token exists but holds no credential yet
	StateCreated State = "created"

	// StateInitializing means the first credential resolution is in flight
	StateInitializing State = "initializing"

	// StateValid means a credential is present and usable
	StateValid State = "valid"

	// StateRefreshing means a renewal is in flight; the previous credential
	// stays readable until the renewal lands
	StateRefreshing State = "refreshing"

	// StateDestroyed is terminal; the credential is released and no further
	// renewal happens
	StateDestroyed State = "destroyed"
)

const (
	// Fallback renewal interval for credentials without an expiry claim
	defaultRefreshInterval = 1 * time.Hour

	// Delay before retrying after a failed renewal
	defaultRetryInterval = 10 * time.Second

	// Fraction of a credential's remaining lifetime after which it is renewed
	defaultExpiryFraction = 0.5

	// Lower bound on any scheduled renewal delay
	minRefreshDelay = 1 * time.Second

	// Bound on a single background renewal attempt
	refreshTimeout = 30 * time.Second
)

// ErrDestroyed is returned when an operation races with Destroy
var ErrDestroyed = errors.New("token is destroyed")

// InitError reports a failed first initialization. The registry never
// caches a token whose initialization failed; the caller decides whether
// to retry the registration.
type InitError struct {
	Identity endpoint.Identity
	Err      error
}

func (e *InitError) Error() string {
	return fmt.Sprintf("failed to initialize token for %s: %v", e.Identity.Describe(), e.Err)
}

func (e *InitError) Unwrap() error {
	return e.Err
}

// Probe observes the lifecycle of a single token
// All methods may be called from background goroutines
type Probe interface {
	Initialized(expiresAt time.Time, hasExpiry bool)
	RefreshScheduled(at time.Time)
	Refreshed(expiresAt time.Time, hasExpiry bool)
	RefreshFailed(err error)
	Destroyed()
}

// Config configures a Token
type Config struct {
	// Identity is the endpoint identity the token is bound to (required)
	Identity endpoint.Identity

	// Fetcher retrieves credentials for URL identities
	Fetcher endpoint.Fetcher

	// Probe observes lifecycle events (optional)
	Probe Probe

	// Clock is an optional clock for testing (defaults to system clock)
	Clock clock.Clock

	// Optional renewal policy overrides (defaults are used if not set)
	RefreshInterval time.Duration
	RetryInterval   time.Duration
	ExpiryFraction  float64
}

// Token holds the current credential for one endpoint identity and renews
// it proactively so that holders observe an unbroken chain of valid values.
// The value is written only by the token's own initialization and refresh
// paths; holders only read it.
type Token struct {
	id       string
	identity endpoint.Identity
	fetcher  endpoint.Fetcher
	probe    Probe
	clock    clock.Clock

	refreshInterval time.Duration
	retryInterval   time.Duration
	expiryFraction  float64

	mu        sync.RWMutex
	state     State
	value     string
	expiresAt time.Time // zero when the credential carries no expiry
	timer     clock.Timer
}

// New creates a token in the created state. It holds no credential until
// Init succeeds.
func New(cfg Config) *Token {
	clk := cfg.Clock
	if clk == nil {
		clk = clock.NewSystemClock()
	}

	probe := cfg.Probe
	if probe == nil {
		probe = nopProbe{}
	}

	refreshInterval := cfg.RefreshInterval
	if refreshInterval == 0 {
		refreshInterval = defaultRefreshInterval
	}

	retryInterval := cfg.RetryInterval
	if retryInterval == 0 {
		retryInterval = defaultRetryInterval
	}

	expiryFraction := cfg.ExpiryFraction
	if expiryFraction <= 0 || expiryFraction > 1 {
		expiryFraction = defaultExpiryFraction
	}

	return &Token{
		id:              uuid.NewString(),
		identity:        cfg.Identity,
		fetcher:         cfg.Fetcher,
		probe:           probe,
		clock:           clk,
		refreshInterval: refreshInterval,
		retryInterval:   retryInterval,
		expiryFraction:  expiryFraction,
		state:           StateCreated,
	}
}

// ID returns a unique identifier for this token instance, for logging and
// status reporting
func (t *Token) ID() string {
	return t.id
}

// Identity returns the endpoint identity the token is bound to
func (t *Token) Identity() endpoint.Identity {
	return t.identity
}

// Init resolves the first credential. It is only valid on a token that has
// never been initialized; renewal is an internal path, not a second Init.
// On failure the token holds no credential and the error is an *InitError.
func (t *Token) Init(ctx context.Context) error {
	t.mu.Lock()
	if t.state != StateCreated {
		state := t.state
		t.mu.Unlock()
		return fmt.Errorf("init is only valid on a new token, token is %s", state)
	}
	t.state = StateInitializing
	t.mu.Unlock()

	value, err := t.identity.Credential(ctx, t.fetcher)

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.state == StateDestroyed {
		// Destroyed while the resolution was in flight; the result is
		// discarded
		return ErrDestroyed
	}

	if err != nil {
		t.state = StateCreated
		return &InitError{Identity: t.identity, Err: err}
	}

	t.value = value
	t.state = StateValid
	t.expiresAt, _ = credentialExpiry(value)

	_, hasExpiry := t.expiry()
	t.probe.Initialized(t.expiresAt, hasExpiry)
	t.scheduleRefreshLocked(t.refreshDelayLocked())

	return nil
}

// Value returns the last successfully resolved credential. The second
// return is false before the first successful initialization and after
// Destroy. During a renewal the previous credential remains readable.
func (t *Token) Value() (string, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if t.state != StateValid && t.state != StateRefreshing {
		return "", false
	}
	return t.value, true
}

// State returns the token's current lifecycle state
func (t *Token) State() State {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.state
}

// ExpiresAt returns the credential's expiry, if it carries one
func (t *Token) ExpiresAt() (time.Time, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.expiry()
}

func (t *Token) expiry() (time.Time, bool) {
	if t.expiresAt.IsZero() {
		return time.Time{}, false
	}
	return t.expiresAt, true
}

// Destroy releases the credential and cancels any scheduled renewal. It is
// valid from any state and calling it more than once has no further effect.
// A resolution in flight at destroy time has its result discarded.
func (t *Token) Destroy() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.state == StateDestroyed {
		return
	}

	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
	t.state = StateDestroyed
	t.value = ""
	t.expiresAt = time.Time{}
	t.probe.Destroyed()
}

// refresh renews the credential in the background. A renewal failure keeps
// the last known-valid value; availability of a possibly-stale credential
// is preferred over hard failure.
func (t *Token) refresh() {
	t.mu.Lock()
	if t.state != StateValid {
		// Destroyed, or a renewal is already in flight
		t.mu.Unlock()
		return
	}
	t.state = StateRefreshing
	t.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), refreshTimeout)
	defer cancel()
	value, err := t.identity.Credential(ctx, t.fetcher)

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.state == StateDestroyed {
		return
	}

	if err != nil {
		t.state = StateValid
		t.probe.RefreshFailed(err)
		t.scheduleRefreshLocked(t.retryInterval)
		return
	}

	t.value = value
	t.state = StateValid
	t.expiresAt, _ = credentialExpiry(value)

	_, hasExpiry := t.expiry()
	t.probe.Refreshed(t.expiresAt, hasExpiry)
	t.scheduleRefreshLocked(t.refreshDelayLocked())
}

func (t *Token) scheduleRefreshLocked(d time.Duration) {
	t.timer = t.clock.AfterFunc(d, t.refresh)
	t.probe.RefreshScheduled(t.clock.Now().Add(d))
}

// refreshDelayLocked derives the next renewal delay from the credential's
// remaining lifetime, falling back to a fixed interval when the credential
// carries no expiry
func (t *Token) refreshDelayLocked() time.Duration {
	if t.expiresAt.IsZero() {
		return t.refreshInterval
	}

	remaining := t.expiresAt.Sub(t.clock.Now())
	d := time.Duration(float64(remaining) * t.expiryFraction)
	if d < minRefreshDelay {
		d = minRefreshDelay
	}
	return d
}

type nopProbe struct{}

func (nopProbe) Initialized(time.Time, bool) {}
func (nopProbe) RefreshScheduled(time.Time)  {}
func (nopProbe) Refreshed(time.Time, bool)   {}
func (nopProbe) RefreshFailed(error)         {}
func (nopProbe) Destroyed()                  {}
