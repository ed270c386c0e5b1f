// Package auth manages the bearer token lifecycle for token-authenticated
// NiFi instances: initial acquisition, expiry tracking and proactive renewal.
package auth

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/abnoel121571/NiFi-Rest-API-Monitor-And-Analyzer/pkg/common/logger"
	"github.com/abnoel121571/NiFi-Rest-API-Monitor-And-Analyzer/pkg/common/timeutil"
)

// RenewalMargin is how long before expiry a token is renewed.
const RenewalMargin = 600 * time.Second

// Fetcher exchanges credentials for a new token.
type Fetcher interface {
	FetchToken(ctx context.Context, tokenURL, username, password string) (string, error)
}

// Token is an issued bearer token. Values are never modified after issue.
type Token struct {
	Value    string
	IssuedAt time.Time
}

// Manager owns the current token. It satisfies nifi.TokenSource so REST
// calls always read the latest token.
type Manager struct {
	fetcher  Fetcher
	username string
	password string

	current atomic.Pointer[Token]

	timeProvider timeutil.Provider
	logger       *logger.Logger
	tracer       trace.Tracer
}

// NewManager creates a Manager that fetches tokens with the given
// credentials. No token is held until Acquire succeeds.
func NewManager(
	fetcher Fetcher,
	username, password string,
	timeProvider timeutil.Provider,
	logger *logger.Logger,
	tracer trace.Tracer,
) *Manager {
	return &Manager{
		fetcher:      fetcher,
		username:     username,
		password:     password,
		timeProvider: timeProvider,
		logger:       logger.With("component", "token_manager"),
		tracer:       tracer,
	}
}

// Acquire fetches a new token from tokenURL and replaces the current one.
func (m *Manager) Acquire(ctx context.Context, tokenURL string) error {
	ctx, span := m.tracer.Start(ctx, "token_manager.acquire",
		trace.WithAttributes(attribute.String("token_url", tokenURL)))
	defer span.End()

	value, err := m.fetcher.FetchToken(ctx, tokenURL, m.username, m.password)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to fetch token")
		return fmt.Errorf("failed to acquire token: %w", err)
	}

	m.current.Store(&Token{Value: value, IssuedAt: m.timeProvider.Now()})
	span.SetStatus(codes.Ok, "token acquired")
	return nil
}

// NeedsRenewal reports whether the current token is within RenewalMargin of
// lifetime at now. A manager without a token always needs renewal.
func (m *Manager) NeedsRenewal(now time.Time, lifetime time.Duration) bool {
	tok := m.current.Load()
	if tok == nil {
		return true
	}
	return now.Sub(tok.IssuedAt) >= lifetime-RenewalMargin
}

// RenewIfNeeded renews the token when NeedsRenewal reports true at now. It
// reports whether a renewal happened. On failure the previous token is kept.
func (m *Manager) RenewIfNeeded(ctx context.Context, now time.Time, tokenURL string, lifetime time.Duration) (bool, error) {
	if !m.NeedsRenewal(now, lifetime) {
		return false, nil
	}

	if err := m.Acquire(ctx, tokenURL); err != nil {
		return false, fmt.Errorf("token renewal failed: %w", err)
	}
	m.logger.Info(ctx, "renewed token")
	return true, nil
}

// Token returns the current token value, or "" before the first acquisition.
func (m *Manager) Token() string {
	if tok := m.current.Load(); tok != nil {
		return tok.Value
	}
	return ""
}

// Current returns a copy of the current token and whether one is held.
func (m *Manager) Current() (Token, bool) {
	if tok := m.current.Load(); tok != nil {
		return *tok, true
	}
	return Token{}, false
}
