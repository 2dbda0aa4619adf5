package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	mysqldriver "github.com/go-sql-driver/mysql"
	"github.com/sentinelhive/svh/internal/models"
	"github.com/sentinelhive/svh/internal/store/storetest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type countingReader struct {
	AccountReader
	calls int
}

func (r *countingReader) ByExternalID(ctx context.Context, externalID string) (*models.Account, error) {
	r.calls++
	return r.AccountReader.ByExternalID(ctx, externalID)
}

func TestAccountsLookup(t *testing.T) {
	db := storetest.Open(t)
	seeded := storetest.SeedAccount(t, db, "alice", "pw", true)
	accounts := NewAccounts(db)
	ctx := context.Background()

	acc, err := accounts.ByExternalID(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, seeded.ID, acc.ID)
	assert.True(t, acc.IsPrivileged)

	acc, err = accounts.ByID(ctx, seeded.ID)
	require.NoError(t, err)
	assert.Equal(t, "alice", acc.ExternalID)

	_, err = accounts.ByExternalID(ctx, "nobody")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = accounts.ByID(ctx, 9999)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCachedAccounts(t *testing.T) {
	db := storetest.Open(t)
	storetest.SeedAccount(t, db, "alice", "pw", false)
	inner := &countingReader{AccountReader: NewAccounts(db)}
	cached := NewCachedAccounts(inner, 16, time.Minute)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		acc, err := cached.ByExternalID(ctx, "alice")
		require.NoError(t, err)
		assert.Equal(t, "alice", acc.ExternalID)
	}
	assert.Equal(t, 1, inner.calls)
	assert.Equal(t, 1, cached.Len())

	acc, err := cached.ByID(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "alice", acc.ExternalID)

	cached.Invalidate("alice")
	_, err = cached.ByExternalID(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, 2, inner.calls)

	for i := 0; i < 2; i++ {
		_, err = cached.ByExternalID(ctx, "ghost")
		assert.ErrorIs(t, err, ErrNotFound)
	}
	assert.Equal(t, 4, inner.calls, "misses are not cached")
}

func TestCachedAccountsReload(t *testing.T) {
	db := storetest.Open(t)
	seeded := storetest.SeedAccount(t, db, "root", "pw", true)
	inner := &countingReader{AccountReader: NewAccounts(db)}
	cached := NewCachedAccounts(inner, 16, time.Minute)
	ctx := context.Background()

	acc, err := cached.ByExternalID(ctx, "root")
	require.NoError(t, err)
	require.True(t, acc.IsPrivileged)

	require.NoError(t, db.Model(&models.Account{}).Where("id = ?", seeded.ID).Update("is_privileged", false).Error)

	acc, err = cached.ByExternalID(ctx, "root")
	require.NoError(t, err)
	assert.True(t, acc.IsPrivileged, "cached copy is still served")

	acc, err = cached.Reload(ctx, "root")
	require.NoError(t, err)
	assert.False(t, acc.IsPrivileged)
	assert.Equal(t, 2, inner.calls)

	acc, err = cached.ByExternalID(ctx, "root")
	require.NoError(t, err)
	assert.False(t, acc.IsPrivileged, "reload refreshes the cache")

	require.NoError(t, db.Delete(&models.Account{}, seeded.ID).Error)
	_, err = cached.Reload(ctx, "root")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, 0, cached.Len())
}

func TestCachedAccountsExpire(t *testing.T) {
	db := storetest.Open(t)
	storetest.SeedAccount(t, db, "alice", "pw", false)
	inner := &countingReader{AccountReader: NewAccounts(db)}
	cached := NewCachedAccounts(inner, 16, 20*time.Millisecond)
	ctx := context.Background()

	_, err := cached.ByExternalID(ctx, "alice")
	require.NoError(t, err)
	time.Sleep(60 * time.Millisecond)
	_, err = cached.ByExternalID(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, 2, inner.calls)
}

// gatedReader blocks every load until gate is closed.
type gatedReader struct {
	AccountReader
	gate  chan struct{}
	calls atomic.Int32
}

func (r *gatedReader) ByExternalID(_ context.Context, externalID string) (*models.Account, error) {
	r.calls.Add(1)
	<-r.gate
	return &models.Account{ID: 7, ExternalID: externalID}, nil
}

func TestCachedAccountsShareLoads(t *testing.T) {
	inner := &gatedReader{gate: make(chan struct{})}
	cached := NewCachedAccounts(inner, 16, time.Minute)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			acc, err := cached.ByExternalID(context.Background(), "alice")
			if assert.NoError(t, err) {
				assert.Equal(t, "alice", acc.ExternalID)
			}
		}()
	}
	require.Eventually(t, func() bool { return inner.calls.Load() == 1 }, time.Second, time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	close(inner.gate)
	wg.Wait()

	assert.Equal(t, int32(1), inner.calls.Load())
	acc, err := cached.ByID(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, "alice", acc.ExternalID)
}

func TestWrapClassifiesErrors(t *testing.T) {
	assert.NoError(t, wrap("op", nil))
	assert.ErrorIs(t, wrap("op", gorm.ErrRecordNotFound), ErrNotFound)

	deadlock := &mysqldriver.MySQLError{Number: 1213, Message: "Deadlock found"}
	err := wrap("op", fmt.Errorf("exec: %w", deadlock))
	assert.ErrorIs(t, err, ErrTransient)
	var me *mysqldriver.MySQLError
	assert.True(t, errors.As(err, &me))

	assert.ErrorIs(t, wrap("op", context.DeadlineExceeded), ErrTransient)

	dup := &mysqldriver.MySQLError{Number: 1062, Message: "Duplicate entry"}
	err = wrap("op", dup)
	assert.NotErrorIs(t, err, ErrTransient)
	assert.NotErrorIs(t, err, ErrNotFound)
}
