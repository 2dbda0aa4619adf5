// Package identity is the internal tier: the only code that verifies
// passwords and writes the session ledger.
package identity

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sentinelhive/svh/internal/authority"
	"github.com/sentinelhive/svh/internal/models"
	"github.com/sentinelhive/svh/internal/pkg/metrics"
	"github.com/sentinelhive/svh/internal/pkg/token"
	"github.com/sentinelhive/svh/internal/pkg/vault"
	"github.com/sentinelhive/svh/internal/store"
	"go.uber.org/zap"
)

const (
	// mintAttempts bounds how often a colliding issue time is bumped.
	mintAttempts = 5
	// rotateAttempts bounds replays of a login transaction that hit a
	// transient store failure.
	rotateAttempts = 3
)

// Compared against when the account does not exist so both failure paths
// do the same amount of work.
const (
	decoySalt   = "00000000000000000000000000000000"
	decoyDigest = "0000000000000000000000000000000000000000000000000000000000000000"
)

type Service struct {
	accounts store.AccountReader
	sessions *store.SessionStore
	codec    *token.Codec
	logger   *zap.Logger
	metrics  *metrics.Metrics
	now      func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithClock overrides the time source used for issue times.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithMetrics records login and sweep outcomes.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func NewService(accounts store.AccountReader, sessions *store.SessionStore, codec *token.Codec, logger *zap.Logger, opts ...Option) *Service {
	s := &Service{
		accounts: accounts,
		sessions: sessions,
		codec:    codec,
		logger:   logger,
		now:      time.Now,
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

var _ authority.Identity = (*Service)(nil)

// Login verifies the password and rotates the account onto a new token.
func (s *Service) Login(ctx context.Context, req authority.LoginRequest) (*authority.LoginResult, error) {
	acc, err := s.accounts.ByExternalID(ctx, req.ExternalID)
	if errors.Is(err, store.ErrNotFound) {
		vault.Verify(req.Password, decoySalt, decoyDigest)
		s.countLogin(metrics.OutcomeRejected)
		return nil, authority.ErrInvalidCredentials
	}
	if err != nil {
		s.countLogin(metrics.OutcomeError)
		return nil, fmt.Errorf("load account: %w", err)
	}
	if !vault.Verify(req.Password, acc.Salt, acc.PasswordDigest) {
		s.countLogin(metrics.OutcomeRejected)
		return nil, authority.ErrInvalidCredentials
	}

	tok, err := s.rotateWithRetry(ctx, acc)
	if err != nil {
		s.countLogin(metrics.OutcomeError)
		return nil, fmt.Errorf("rotate session: %w", err)
	}

	s.countLogin(metrics.OutcomeOK)
	s.logger.Info("login", zap.String("external_id", acc.ExternalID))
	return resultFor(acc, tok), nil
}

// Logout revokes tok and prunes its account. Unknown tokens are a no-op.
func (s *Service) Logout(ctx context.Context, tok string) error {
	if tok == "" {
		return authority.ErrTokenMissing
	}
	found, err := s.sessions.RevokeAndPrune(ctx, tok)
	if err != nil {
		return fmt.Errorf("revoke session: %w", err)
	}
	if s.metrics != nil {
		s.metrics.Logouts.Inc()
	}
	s.logger.Info("logout", zap.Bool("found", found))
	return nil
}

// Rotate replaces an active tok with a new token for the same account.
// Revoked, unknown or forged tokens are refused.
func (s *Service) Rotate(ctx context.Context, tok string) (*authority.LoginResult, error) {
	if tok == "" {
		return nil, authority.ErrTokenMissing
	}
	if _, err := s.codec.Verify(tok); err != nil {
		return nil, authority.ErrTokenInvalidOrRevoked
	}

	row, err := s.sessions.Find(ctx, tok)
	if errors.Is(err, store.ErrNotFound) {
		return nil, authority.ErrTokenInvalidOrRevoked
	}
	if err != nil {
		return nil, err
	}
	if !row.Active() {
		return nil, authority.ErrTokenInvalidOrRevoked
	}
	acc, err := s.accounts.ByID(ctx, row.AccountID)
	if err != nil {
		return nil, fmt.Errorf("load account: %w", err)
	}

	var next string
	err = s.sessions.WithTx(ctx, func(tx *store.SessionStore) error {
		// A concurrent login or logout may have revoked it since the read above.
		current, err := tx.Find(ctx, tok)
		if errors.Is(err, store.ErrNotFound) {
			return authority.ErrTokenInvalidOrRevoked
		}
		if err != nil {
			return err
		}
		if !current.Active() {
			return authority.ErrTokenInvalidOrRevoked
		}

		minted, issuedAt, err := s.mint(ctx, tx, acc.ExternalID)
		if err != nil {
			return err
		}
		if _, err := tx.RevokeActive(ctx, acc.ID); err != nil {
			return err
		}
		if _, err := tx.Prune(ctx, acc.ID); err != nil {
			return err
		}
		if _, err := tx.Create(ctx, acc.ID, minted, issuedAt); err != nil {
			return err
		}
		next = minted
		return nil
	})
	if err != nil {
		return nil, err
	}
	result := resultFor(acc, next)
	s.logger.Info("rotate", zap.String("external_id", result.ExternalID))
	return result, nil
}

// Sweep revokes every active ledger row.
func (s *Service) Sweep(ctx context.Context) (store.SweepResult, error) {
	res, err := s.sessions.RevokeAllActive(ctx)
	if s.metrics != nil {
		outcome := metrics.OutcomeOK
		if err != nil {
			outcome = metrics.OutcomeError
		}
		s.metrics.Sweeps.WithLabelValues(outcome).Inc()
		s.metrics.SweepRevoked.Add(float64(res.Revoked))
	}
	if err != nil {
		return store.SweepResult{}, fmt.Errorf("sweep: %w", err)
	}
	s.logger.Info("sweep",
		zap.Int64("revoked", res.Revoked),
		zap.Int64("pruned", res.Pruned),
		zap.Int("accounts", res.Accounts),
	)
	return res, nil
}

// rotateWithRetry mints and rotates acc onto a new token. Deadlocks and
// lock waits roll the whole transaction back, so it is replayed a bounded
// number of times.
func (s *Service) rotateWithRetry(ctx context.Context, acc *models.Account) (string, error) {
	for attempt := 1; ; attempt++ {
		tok, issuedAt, err := s.mint(ctx, s.sessions, acc.ExternalID)
		if err == nil {
			_, err = s.sessions.Rotate(ctx, acc.ID, tok, issuedAt)
		}
		if err == nil {
			return tok, nil
		}
		if !errors.Is(err, store.ErrTransient) || attempt >= rotateAttempts || ctx.Err() != nil {
			return "", err
		}
		s.logger.Warn("login: transient store failure, retrying",
			zap.String("external_id", acc.ExternalID),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
	}
}

// mint returns a token whose string is not yet in the ledger, bumping the
// issue time by a millisecond on collision.
func (s *Service) mint(ctx context.Context, tx *store.SessionStore, subject string) (string, time.Time, error) {
	issuedAt := s.now()
	for i := 0; i < mintAttempts; i++ {
		tok, err := s.codec.MakeAt(subject, issuedAt)
		if err != nil {
			return "", time.Time{}, err
		}
		exists, err := tx.Exists(ctx, tok)
		if err != nil {
			return "", time.Time{}, err
		}
		if !exists {
			return tok, issuedAt, nil
		}
		issuedAt = issuedAt.Add(time.Millisecond)
	}
	return "", time.Time{}, fmt.Errorf("mint token for %q: issue time collided %d times", subject, mintAttempts)
}

func (s *Service) countLogin(outcome string) {
	if s.metrics != nil {
		s.metrics.Logins.WithLabelValues(outcome).Inc()
	}
}

func resultFor(acc *models.Account, tok string) *authority.LoginResult {
	return &authority.LoginResult{
		Token:        tok,
		ExternalID:   acc.ExternalID,
		IsPrivileged: acc.IsPrivileged,
	}
}
