// Package authority runs the edge side of the session lifecycle. The
// session cache alone decides whether a token is usable; the durable
// ledger is reached only through Identity.
package authority

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sentinelhive/svh/internal/models"
	"github.com/sentinelhive/svh/internal/pkg/metrics"
	"github.com/sentinelhive/svh/internal/pkg/sessioncache"
	"github.com/sentinelhive/svh/internal/pkg/token"
	"github.com/sentinelhive/svh/internal/store"
	"go.uber.org/zap"
)

const (
	defaultTTL = time.Hour
	maxTTL     = 7 * 24 * time.Hour
)

// Deps wires an Authority. Metrics is optional.
type Deps struct {
	Identity   Identity
	Accounts   store.AccountReader
	Cache      *sessioncache.Cache
	Codec      *token.Codec
	Logger     *zap.Logger
	Metrics    *metrics.Metrics
	DefaultTTL time.Duration
	MaxTTL     time.Duration
}

type Authority struct {
	identity   Identity
	accounts   store.AccountReader
	cache      *sessioncache.Cache
	codec      *token.Codec
	logger     *zap.Logger
	metrics    *metrics.Metrics
	defaultTTL time.Duration
	maxTTL     time.Duration
}

func New(d Deps) *Authority {
	a := &Authority{
		identity:   d.Identity,
		accounts:   d.Accounts,
		cache:      d.Cache,
		codec:      d.Codec,
		logger:     d.Logger,
		metrics:    d.Metrics,
		defaultTTL: d.DefaultTTL,
		maxTTL:     d.MaxTTL,
	}
	if a.logger == nil {
		a.logger = zap.NewNop()
	}
	if a.defaultTTL <= 0 {
		a.defaultTTL = defaultTTL
	}
	if a.maxTTL <= 0 {
		a.maxTTL = maxTTL
	}
	if a.maxTTL < a.defaultTTL {
		a.maxTTL = a.defaultTTL
	}
	return a
}

// TTL maps a requested lifetime onto the configured bounds. Non-positive
// requests get the default.
func (a *Authority) TTL(requested time.Duration) time.Duration {
	if requested <= 0 {
		return a.defaultTTL
	}
	if requested > a.maxTTL {
		return a.maxTTL
	}
	return requested
}

// Login authenticates through Identity and makes the new token the only
// cached token of its account.
func (a *Authority) Login(ctx context.Context, externalID, password string, ttl time.Duration) (*Session, error) {
	ttl = a.TTL(ttl)
	res, err := a.identity.Login(ctx, LoginRequest{
		ExternalID: externalID,
		Password:   password,
		TTLSeconds: int(ttl / time.Second),
	})
	if err != nil {
		a.countLogin(err)
		return nil, err
	}

	evicted := a.cache.DeleteSubject(res.ExternalID)
	a.cache.Set(res.Token, res.ExternalID, ttl)
	a.countLogin(nil)
	a.logger.Info("login",
		zap.String("external_id", res.ExternalID),
		zap.Int("evicted", evicted),
		zap.Duration("ttl", ttl),
	)
	return &Session{LoginResult: *res, ExpiresIn: ttl}, nil
}

// Logout evicts tok and asks Identity to revoke it. Upstream failures are
// logged, never returned: once a token was supplied the call succeeds.
func (a *Authority) Logout(ctx context.Context, tok string) error {
	if tok == "" {
		return ErrTokenMissing
	}
	a.cache.Delete(tok)
	if a.metrics != nil {
		a.metrics.Logouts.Inc()
	}
	if err := a.identity.Logout(ctx, tok); err != nil {
		a.logger.Warn("logout: identity revoke failed, token evicted locally", zap.Error(err))
	}
	return nil
}

// Check reports the cache-only status of tok. Tokens with a bad signature
// are revoked by definition.
func (a *Authority) Check(tok string) Status {
	if _, err := a.codec.Verify(tok); err != nil {
		return StatusRevoked
	}
	if _, ok := a.lookup(tok); !ok {
		return StatusRevoked
	}
	return StatusActive
}

// CurrentUser resolves the account behind tok. The signature is checked
// before the cache so a forged subject never reaches the lookup.
func (a *Authority) CurrentUser(ctx context.Context, tok string) (*models.Account, error) {
	if tok == "" {
		return nil, ErrUnauthenticated
	}
	claims, err := a.codec.Verify(tok)
	if err != nil {
		if errors.Is(err, token.ErrTokenMalformed) {
			return nil, ErrTokenMalformed
		}
		return nil, ErrTokenInvalidOrRevoked
	}

	entry, ok := a.lookup(tok)
	if !ok {
		return nil, ErrSessionExpired
	}
	if entry.Subject() != claims.Subject {
		a.cache.Delete(tok)
		return nil, ErrTokenInvalidOrRevoked
	}

	acc, err := a.accounts.ByExternalID(ctx, entry.Subject())
	if errors.Is(err, store.ErrNotFound) {
		a.cache.DeleteSubject(entry.Subject())
		return nil, ErrTokenInvalidOrRevoked
	}
	if err != nil {
		return nil, fmt.Errorf("resolve account: %w", err)
	}
	return acc, nil
}

// accountReloader is implemented by account readers that cache; RequireAdmin
// uses it to read privileges fresh.
type accountReloader interface {
	Reload(ctx context.Context, externalID string) (*models.Account, error)
}

// RequireAdmin is CurrentUser restricted to privileged accounts. The
// privilege flag is re-read on every call, never taken from a cached account.
func (a *Authority) RequireAdmin(ctx context.Context, tok string) (*models.Account, error) {
	acc, err := a.CurrentUser(ctx, tok)
	if err != nil {
		return nil, err
	}
	if r, ok := a.accounts.(accountReloader); ok {
		subject := acc.ExternalID
		acc, err = r.Reload(ctx, subject)
		if errors.Is(err, store.ErrNotFound) {
			a.cache.DeleteSubject(subject)
			return nil, ErrTokenInvalidOrRevoked
		}
		if err != nil {
			return nil, fmt.Errorf("resolve account: %w", err)
		}
	}
	if !acc.IsPrivileged {
		return nil, ErrAdminRequired
	}
	return acc, nil
}

// Refresh swaps oldToken for a new token of acc. Identity mints it when
// reachable; otherwise the codec does, and that token has no ledger row.
func (a *Authority) Refresh(ctx context.Context, acc *models.Account, oldToken string, ttl time.Duration) (*Session, error) {
	entry, ok := a.lookup(oldToken)
	if !ok || entry.Subject() != acc.ExternalID {
		a.countRefresh(metrics.OutcomeRejected)
		return nil, ErrTokenInvalidOrRevoked
	}
	ttl = a.TTL(ttl)

	outcome := metrics.OutcomeOK
	res, err := a.identity.Rotate(ctx, oldToken)
	switch {
	case err == nil:
	case errors.Is(err, ErrUpstreamUnavailable):
		minted, mintErr := a.codec.Make(acc.ExternalID)
		if mintErr != nil {
			return nil, fmt.Errorf("mint fallback token: %w", mintErr)
		}
		a.logger.Warn("refresh: identity unreachable, minted token locally",
			zap.String("external_id", acc.ExternalID),
			zap.Error(err),
		)
		res = &LoginResult{Token: minted, ExternalID: acc.ExternalID, IsPrivileged: acc.IsPrivileged}
		outcome = metrics.OutcomeFallback
	case errors.Is(err, ErrTokenInvalidOrRevoked):
		a.cache.Delete(oldToken)
		a.countRefresh(metrics.OutcomeRejected)
		return nil, err
	default:
		a.countRefresh(metrics.OutcomeError)
		return nil, err
	}

	a.cache.Delete(oldToken)
	a.cache.Set(res.Token, res.ExternalID, ttl)
	a.countRefresh(outcome)
	return &Session{LoginResult: *res, ExpiresIn: ttl}, nil
}

// Sessions lists the live cache entries.
func (a *Authority) Sessions() []sessioncache.Item {
	return a.cache.Snapshot()
}

// Evict drops every cached token of externalID, forcing a fresh login.
func (a *Authority) Evict(externalID string) int {
	n := a.cache.DeleteSubject(externalID)
	if inv, ok := a.accounts.(interface{ Invalidate(string) }); ok {
		inv.Invalidate(externalID)
	}
	a.logger.Info("evicted sessions", zap.String("external_id", externalID), zap.Int("count", n))
	return n
}

// SweepLedger asks Identity to revoke every active row. The edge calls it
// on boot because its cache starts empty.
func (a *Authority) SweepLedger(ctx context.Context) (store.SweepResult, error) {
	res, err := a.identity.Sweep(ctx)
	if a.metrics != nil {
		outcome := metrics.OutcomeOK
		if err != nil {
			outcome = metrics.OutcomeError
		}
		a.metrics.Sweeps.WithLabelValues(outcome).Inc()
		a.metrics.SweepRevoked.Add(float64(res.Revoked))
	}
	return res, err
}

func (a *Authority) lookup(tok string) (sessioncache.Entry, bool) {
	entry, ok := a.cache.Lookup(tok)
	if a.metrics != nil {
		result := metrics.ResultHit
		if !ok {
			result = metrics.ResultMiss
		}
		a.metrics.CacheLookups.WithLabelValues(result).Inc()
	}
	return entry, ok
}

func (a *Authority) countLogin(err error) {
	if a.metrics == nil {
		return
	}
	outcome := metrics.OutcomeOK
	switch {
	case errors.Is(err, ErrInvalidCredentials):
		outcome = metrics.OutcomeRejected
	case err != nil:
		outcome = metrics.OutcomeError
	}
	a.metrics.Logins.WithLabelValues(outcome).Inc()
}

func (a *Authority) countRefresh(outcome string) {
	if a.metrics != nil {
		a.metrics.Refreshes.WithLabelValues(outcome).Inc()
	}
}
