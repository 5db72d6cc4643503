// Package probe provides observers that log token lifecycle events using
// structured logging with slog. Credential material is never logged.
package probe

import (
	"context"
	"log/slog"
	"time"

	"github.com/cloudbind/tokend/internal/endpoint"
	"github.com/cloudbind/tokend/internal/token"
)

// LoggingObserver logs registry lifecycle events and hands out per-token
// probes. It implements registry.Observer.
type LoggingObserver struct {
	logger *slog.Logger
}

// NewLoggingObserver creates an observer that logs registry and token
// events using structured logging with slog.
func NewLoggingObserver(logger *slog.Logger) *LoggingObserver {
	if logger == nil {
		logger = slog.Default()
	}
	return &LoggingObserver{
		logger: logger,
	}
}

func (o *LoggingObserver) TokenRegistered(ctx context.Context, identity endpoint.Identity, tokenID string) {
	o.logger.LogAttrs(ctx, slog.LevelInfo, "Token registered",
		slog.String("endpoint", identity.Describe()),
		slog.String("token_id", tokenID),
	)
}

func (o *LoggingObserver) RegistrationFailed(ctx context.Context, identity endpoint.Identity, err error) {
	o.logger.LogAttrs(ctx, slog.LevelError, "Token registration failed",
		slog.String("endpoint", identity.Describe()),
		slog.String("error", err.Error()),
	)
}

func (o *LoggingObserver) TornDown(destroyed int) {
	o.logger.LogAttrs(context.Background(), slog.LevelInfo, "Token registry torn down",
		slog.Int("tokens_destroyed", destroyed),
	)
}

func (o *LoggingObserver) TokenProbe(identity endpoint.Identity) token.Probe {
	// Return a token-scoped probe that captures the identity
	return &loggingProbe{
		logger: o.logger.With(slog.String("endpoint", identity.Describe())),
	}
}

// loggingProbe is a token-scoped probe that logs events for a single token
type loggingProbe struct {
	logger *slog.Logger
}

func (p *loggingProbe) Initialized(expiresAt time.Time, hasExpiry bool) {
	attrs := []slog.Attr{}
	if hasExpiry {
		attrs = append(attrs, slog.Time("expires_at", expiresAt))
	}
	p.logger.LogAttrs(context.Background(), slog.LevelDebug, "Token initialized", attrs...)
}

func (p *loggingProbe) RefreshScheduled(at time.Time) {
	p.logger.LogAttrs(context.Background(), slog.LevelDebug, "Token refresh scheduled",
		slog.Time("at", at),
	)
}

func (p *loggingProbe) Refreshed(expiresAt time.Time, hasExpiry bool) {
	attrs := []slog.Attr{}
	if hasExpiry {
		attrs = append(attrs, slog.Time("expires_at", expiresAt))
	}
	p.logger.LogAttrs(context.Background(), slog.LevelDebug, "Token refreshed", attrs...)
}

func (p *loggingProbe) RefreshFailed(err error) {
	// Renewal failures are availability events, not errors: the previous
	// credential stays in use
	p.logger.LogAttrs(context.Background(), slog.LevelWarn, "Token refresh failed, keeping previous value",
		slog.String("error", err.Error()),
	)
}

func (p *loggingProbe) Destroyed() {
	p.logger.LogAttrs(context.Background(), slog.LevelDebug, "Token destroyed")
}
