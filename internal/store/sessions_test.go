package store

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/sentinelhive/svh/internal/models"
	"github.com/sentinelhive/svh/internal/store/storetest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type tickClock struct {
	mu  sync.Mutex
	now time.Time
}

// Now advances one second per call so every stamp is distinct.
func (c *tickClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Second)
	return c.now
}

func newStore(t *testing.T) (*SessionStore, *gorm.DB, *models.Account) {
	t.Helper()
	db := storetest.Open(t)
	acc := storetest.SeedAccount(t, db, "alice", "pw", false)
	clock := &tickClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	return NewSessionStore(db, WithClock(clock.Now)), db, acc
}

func activeCount(rows []models.SessionToken) int {
	n := 0
	for _, r := range rows {
		if r.Active() {
			n++
		}
	}
	return n
}

func TestRotateKeepsOneActiveAndOneRevoked(t *testing.T) {
	s, _, acc := newStore(t)
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	for i, tok := range []string{"t1", "t2", "t3", "t4"} {
		_, err := s.Rotate(ctx, acc.ID, tok, base.Add(time.Duration(i)*time.Minute))
		require.NoError(t, err)

		rows, err := s.ListForAccount(ctx, acc.ID)
		require.NoError(t, err)
		assert.Equal(t, 1, activeCount(rows), "after rotate %d", i)
		assert.LessOrEqual(t, len(rows)-activeCount(rows), 1, "after rotate %d", i)
	}

	rows, err := s.ListForAccount(ctx, acc.ID)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "t4", rows[0].Token)
	assert.True(t, rows[0].Active())
	assert.Equal(t, "t3", rows[1].Token)
	assert.False(t, rows[1].Active())
}

func TestRevokeIsIdempotent(t *testing.T) {
	s, _, acc := newStore(t)
	ctx := context.Background()
	_, err := s.Create(ctx, acc.ID, "t1", time.Now())
	require.NoError(t, err)

	accountID, found, err := s.Revoke(ctx, "t1")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, acc.ID, accountID)

	first, err := s.Find(ctx, "t1")
	require.NoError(t, err)
	require.NotNil(t, first.RevokedAt)

	_, found, err = s.Revoke(ctx, "t1")
	require.NoError(t, err)
	assert.True(t, found)

	second, err := s.Find(ctx, "t1")
	require.NoError(t, err)
	assert.True(t, first.RevokedAt.Equal(*second.RevokedAt), "revoked_at must not move")

	_, found, err = s.Revoke(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestPruneKeepsMostRecentlyRevoked(t *testing.T) {
	s, db, acc := newStore(t)
	ctx := context.Background()
	at := func(min int) *time.Time {
		v := time.Date(2026, 1, 1, 0, min, 0, 0, time.UTC)
		return &v
	}
	rows := []models.SessionToken{
		{AccountID: acc.ID, Token: "old", IssuedAt: *at(0), RevokedAt: at(5)},
		{AccountID: acc.ID, Token: "newest-a", IssuedAt: *at(1), RevokedAt: at(9)},
		{AccountID: acc.ID, Token: "newest-b", IssuedAt: *at(2), RevokedAt: at(9)},
		{AccountID: acc.ID, Token: "mid", IssuedAt: *at(3), RevokedAt: at(7)},
		{AccountID: acc.ID, Token: "live", IssuedAt: *at(4)},
	}
	require.NoError(t, db.Create(&rows).Error)

	deleted, err := s.Prune(ctx, acc.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(3), deleted)

	left, err := s.ListForAccount(ctx, acc.ID)
	require.NoError(t, err)
	require.Len(t, left, 2)
	assert.Equal(t, "live", left[0].Token)
	assert.Equal(t, "newest-b", left[1].Token, "ties on revoked_at keep the highest id")

	deleted, err = s.Prune(ctx, acc.ID)
	require.NoError(t, err)
	assert.Zero(t, deleted)
}

func TestRevokeAndPrune(t *testing.T) {
	s, _, acc := newStore(t)
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	_, err := s.Rotate(ctx, acc.ID, "t1", base)
	require.NoError(t, err)
	_, err = s.Rotate(ctx, acc.ID, "t2", base.Add(time.Minute))
	require.NoError(t, err)

	found, err := s.RevokeAndPrune(ctx, "t2")
	require.NoError(t, err)
	assert.True(t, found)

	rows, err := s.ListForAccount(ctx, acc.ID)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "t2", rows[0].Token)
	assert.False(t, rows[0].Active())

	found, err = s.RevokeAndPrune(ctx, "t2")
	require.NoError(t, err)
	assert.True(t, found)

	found, err = s.RevokeAndPrune(ctx, "never-issued")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestRevokeAllActive(t *testing.T) {
	s, db, alice := newStore(t)
	bob := storetest.SeedAccount(t, db, "bob", "pw", true)
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	for i, tok := range []string{"a1", "a2"} {
		_, err := s.Rotate(ctx, alice.ID, tok, base.Add(time.Duration(i)*time.Minute))
		require.NoError(t, err)
	}
	_, err := s.Rotate(ctx, bob.ID, "b1", base)
	require.NoError(t, err)

	result, err := s.RevokeAllActive(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), result.Revoked)
	assert.Equal(t, int64(1), result.Pruned)
	assert.Equal(t, 2, result.Accounts)

	for _, acc := range []*models.Account{alice, bob} {
		rows, err := s.ListForAccount(ctx, acc.ID)
		require.NoError(t, err)
		require.Len(t, rows, 1)
		assert.False(t, rows[0].Active())
	}

	result, err = s.RevokeAllActive(ctx)
	require.NoError(t, err)
	assert.Equal(t, SweepResult{}, result)
}

func TestFindAndExists(t *testing.T) {
	s, _, acc := newStore(t)
	ctx := context.Background()

	_, err := s.Find(ctx, "nope")
	assert.ErrorIs(t, err, ErrNotFound)

	ok, err := s.Exists(ctx, "t1")
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = s.Create(ctx, acc.ID, "t1", time.Now())
	require.NoError(t, err)
	ok, err = s.Exists(ctx, "t1")
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = s.Create(ctx, acc.ID, "t1", time.Now())
	assert.Error(t, err, "token column is unique")
}

func TestWithTxRollsBack(t *testing.T) {
	s, _, acc := newStore(t)
	ctx := context.Background()
	boom := errors.New("boom")

	err := s.WithTx(ctx, func(tx *SessionStore) error {
		if _, err := tx.Create(ctx, acc.ID, "t1", time.Now()); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	ok, err := s.Exists(ctx, "t1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestConcurrentRotateKeepsSingleActive(t *testing.T) {
	s, _, acc := newStore(t)
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := s.Rotate(ctx, acc.ID, "t"+string(rune('a'+i)), base.Add(time.Duration(i)*time.Millisecond))
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	rows, err := s.ListForAccount(ctx, acc.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, activeCount(rows))
	assert.Len(t, rows, 2)
}
