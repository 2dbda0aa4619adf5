package store

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/sentinelhive/svh/internal/models"
	"golang.org/x/sync/singleflight"
	"gorm.io/gorm"
)

// AccountReader resolves accounts. Accounts are provisioned elsewhere;
// nothing here writes them.
type AccountReader interface {
	ByExternalID(ctx context.Context, externalID string) (*models.Account, error)
	ByID(ctx context.Context, id uint) (*models.Account, error)
}

// Accounts reads the accounts table.
type Accounts struct {
	db *gorm.DB
}

func NewAccounts(db *gorm.DB) *Accounts {
	return &Accounts{db: db}
}

func (a *Accounts) ByExternalID(ctx context.Context, externalID string) (*models.Account, error) {
	var acc models.Account
	if err := a.db.WithContext(ctx).Where("external_id = ?", externalID).First(&acc).Error; err != nil {
		return nil, wrap("find account", err)
	}
	return &acc, nil
}

func (a *Accounts) ByID(ctx context.Context, id uint) (*models.Account, error) {
	var acc models.Account
	if err := a.db.WithContext(ctx).First(&acc, id).Error; err != nil {
		return nil, wrap("find account", err)
	}
	return &acc, nil
}

// CachedAccounts keeps recently resolved accounts for a short TTL so that
// per-request privilege checks do not hit the database. Misses and errors
// are never cached. Concurrent misses for one account share a single load.
type CachedAccounts struct {
	next  AccountReader
	byExt *expirable.LRU[string, *models.Account]
	byID  *expirable.LRU[uint, *models.Account]
	group singleflight.Group
}

func NewCachedAccounts(next AccountReader, size int, ttl time.Duration) *CachedAccounts {
	return &CachedAccounts{
		next:  next,
		byExt: expirable.NewLRU[string, *models.Account](size, nil, ttl),
		byID:  expirable.NewLRU[uint, *models.Account](size, nil, ttl),
	}
}

func (c *CachedAccounts) ByExternalID(ctx context.Context, externalID string) (*models.Account, error) {
	if acc, ok := c.byExt.Get(externalID); ok {
		return acc, nil
	}
	return c.load(ctx, "ext:"+externalID, func(ctx context.Context) (*models.Account, error) {
		return c.next.ByExternalID(ctx, externalID)
	})
}

func (c *CachedAccounts) ByID(ctx context.Context, id uint) (*models.Account, error) {
	if acc, ok := c.byID.Get(id); ok {
		return acc, nil
	}
	return c.load(ctx, "id:"+strconv.FormatUint(uint64(id), 10), func(ctx context.Context) (*models.Account, error) {
		return c.next.ByID(ctx, id)
	})
}

// Invalidate drops externalID from the cache.
func (c *CachedAccounts) Invalidate(externalID string) {
	if acc, ok := c.byExt.Peek(externalID); ok {
		c.byID.Remove(acc.ID)
	}
	c.byExt.Remove(externalID)
}

// Reload reads externalID from the underlying reader, bypassing the cache,
// and stores the result. Privilege checks use it so a demotion takes
// effect on the next request.
func (c *CachedAccounts) Reload(ctx context.Context, externalID string) (*models.Account, error) {
	acc, err := c.next.ByExternalID(ctx, externalID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			c.Invalidate(externalID)
		}
		return nil, err
	}
	c.remember(acc)
	return acc, nil
}

// Len returns the number of cached accounts.
func (c *CachedAccounts) Len() int { return c.byExt.Len() }

func (c *CachedAccounts) load(ctx context.Context, key string, fetch func(context.Context) (*models.Account, error)) (*models.Account, error) {
	v, err, _ := c.group.Do(key, func() (any, error) {
		acc, err := fetch(ctx)
		if err != nil {
			return nil, err
		}
		c.remember(acc)
		return acc, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*models.Account), nil
}

func (c *CachedAccounts) remember(acc *models.Account) {
	c.byExt.Add(acc.ExternalID, acc)
	c.byID.Add(acc.ID, acc)
}
