package store

import (
	"context"
	"errors"
	"time"

	"github.com/sentinelhive/svh/internal/models"
	"gorm.io/gorm"
)

// SweepResult summarizes a bulk revocation.
type SweepResult struct {
	Revoked  int64 `json:"revoked"`
	Pruned   int64 `json:"pruned"`
	Accounts int   `json:"accounts"`
}

// SessionStore is the durable token ledger. Every exported method runs
// against the handle it was built with; composites open one transaction.
type SessionStore struct {
	db  *gorm.DB
	now func() time.Time
}

// Option configures a SessionStore.
type Option func(*SessionStore)

// WithClock overrides the time source used for revoked_at.
func WithClock(now func() time.Time) Option {
	return func(s *SessionStore) {
		if now != nil {
			s.now = now
		}
	}
}

func NewSessionStore(db *gorm.DB, opts ...Option) *SessionStore {
	s := &SessionStore{db: db, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// WithTx runs fn in a transaction. fn receives a store bound to it; the
// transaction commits when fn returns nil and rolls back otherwise,
// including on context cancellation.
func (s *SessionStore) WithTx(ctx context.Context, fn func(tx *SessionStore) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&SessionStore{db: tx, now: s.now})
	})
}

func (s *SessionStore) stamp() time.Time { return s.now().UTC() }

// Create appends an active row.
func (s *SessionStore) Create(ctx context.Context, accountID uint, token string, issuedAt time.Time) (*models.SessionToken, error) {
	row := &models.SessionToken{
		AccountID: accountID,
		Token:     token,
		IssuedAt:  issuedAt.UTC(),
	}
	if err := s.db.WithContext(ctx).Create(row).Error; err != nil {
		return nil, wrap("create session token", err)
	}
	return row, nil
}

// Find returns the row for token or ErrNotFound.
func (s *SessionStore) Find(ctx context.Context, token string) (*models.SessionToken, error) {
	var row models.SessionToken
	if err := s.db.WithContext(ctx).Where("token = ?", token).First(&row).Error; err != nil {
		return nil, wrap("find session token", err)
	}
	return &row, nil
}

// Exists reports whether any row, active or revoked, holds token.
func (s *SessionStore) Exists(ctx context.Context, token string) (bool, error) {
	var n int64
	if err := s.db.WithContext(ctx).Model(&models.SessionToken{}).Where("token = ?", token).Count(&n).Error; err != nil {
		return false, wrap("count session token", err)
	}
	return n > 0, nil
}

// ListForAccount returns every row of accountID, newest first.
func (s *SessionStore) ListForAccount(ctx context.Context, accountID uint) ([]models.SessionToken, error) {
	var rows []models.SessionToken
	err := s.db.WithContext(ctx).
		Where("account_id = ?", accountID).
		Order("id DESC").
		Find(&rows).Error
	if err != nil {
		return nil, wrap("list session tokens", err)
	}
	return rows, nil
}

// RevokeActive stamps revoked_at on every active row of accountID.
func (s *SessionStore) RevokeActive(ctx context.Context, accountID uint) (int64, error) {
	res := s.db.WithContext(ctx).Model(&models.SessionToken{}).
		Where("account_id = ? AND revoked_at IS NULL", accountID).
		Update("revoked_at", s.stamp())
	if res.Error != nil {
		return 0, wrap("revoke active session tokens", res.Error)
	}
	return res.RowsAffected, nil
}

// Revoke stamps revoked_at on token if it is still active. found reports
// whether a row exists at all; revoking twice is not an error.
func (s *SessionStore) Revoke(ctx context.Context, token string) (accountID uint, found bool, err error) {
	row, err := s.Find(ctx, token)
	if errors.Is(err, ErrNotFound) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	if row.Active() {
		err := s.db.WithContext(ctx).Model(&models.SessionToken{}).
			Where("id = ? AND revoked_at IS NULL", row.ID).
			Update("revoked_at", s.stamp()).Error
		if err != nil {
			return 0, true, wrap("revoke session token", err)
		}
	}
	return row.AccountID, true, nil
}

// Prune deletes all revoked rows of accountID except the most recently
// revoked one (ties broken by highest id).
func (s *SessionStore) Prune(ctx context.Context, accountID uint) (int64, error) {
	var ids []uint
	err := s.db.WithContext(ctx).Model(&models.SessionToken{}).
		Where("account_id = ? AND revoked_at IS NOT NULL", accountID).
		Order("revoked_at DESC").
		Order("id DESC").
		Pluck("id", &ids).Error
	if err != nil {
		return 0, wrap("list revoked session tokens", err)
	}
	if len(ids) <= 1 {
		return 0, nil
	}

	res := s.db.WithContext(ctx).Where("id IN ?", ids[1:]).Delete(&models.SessionToken{})
	if res.Error != nil {
		return 0, wrap("prune session tokens", res.Error)
	}
	return res.RowsAffected, nil
}

// Rotate revokes every active token of accountID, prunes, and records
// token as the single active one, all in one transaction.
func (s *SessionStore) Rotate(ctx context.Context, accountID uint, token string, issuedAt time.Time) (*models.SessionToken, error) {
	var created *models.SessionToken
	err := s.WithTx(ctx, func(tx *SessionStore) error {
		if _, err := tx.RevokeActive(ctx, accountID); err != nil {
			return err
		}
		if _, err := tx.Prune(ctx, accountID); err != nil {
			return err
		}
		row, err := tx.Create(ctx, accountID, token, issuedAt)
		if err != nil {
			return err
		}
		created = row
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// RevokeAndPrune revokes token and prunes its account in one transaction.
// Unknown tokens are a no-op reported through found.
func (s *SessionStore) RevokeAndPrune(ctx context.Context, token string) (found bool, err error) {
	err = s.WithTx(ctx, func(tx *SessionStore) error {
		accountID, ok, err := tx.Revoke(ctx, token)
		if err != nil || !ok {
			return err
		}
		found = true
		_, err = tx.Prune(ctx, accountID)
		return err
	})
	return found, err
}

// RevokeAllActive revokes every active token in one UPDATE and prunes each
// affected account.
func (s *SessionStore) RevokeAllActive(ctx context.Context) (SweepResult, error) {
	var result SweepResult
	err := s.WithTx(ctx, func(tx *SessionStore) error {
		var accountIDs []uint
		err := tx.db.WithContext(ctx).Model(&models.SessionToken{}).
			Where("revoked_at IS NULL").
			Distinct("account_id").
			Pluck("account_id", &accountIDs).Error
		if err != nil {
			return wrap("list active accounts", err)
		}
		if len(accountIDs) == 0 {
			return nil
		}

		res := tx.db.WithContext(ctx).Model(&models.SessionToken{}).
			Where("revoked_at IS NULL").
			Update("revoked_at", tx.stamp())
		if res.Error != nil {
			return wrap("revoke all active session tokens", res.Error)
		}
		result.Revoked = res.RowsAffected
		result.Accounts = len(accountIDs)

		for _, id := range accountIDs {
			n, err := tx.Prune(ctx, id)
			if err != nil {
				return err
			}
			result.Pruned += n
		}
		return nil
	})
	if err != nil {
		return SweepResult{}, err
	}
	return result, nil
}
