// Package sessioncache holds the edge tier's view of which tokens are
// currently usable. An absent entry means "not active", whatever the
// durable ledger says.
package sessioncache

import (
	"sort"
	"sync"
	"time"
)

// Entry is the cached state of one token.
type Entry struct {
	subject   string
	expiresAt time.Time
}

// Subject returns the account external id the token was issued to.
func (e Entry) Subject() string { return e.subject }

// ExpiresAt returns the instant from which the entry is no longer usable.
func (e Entry) ExpiresAt() time.Time { return e.expiresAt }

func (e Entry) expired(now time.Time) bool { return !now.Before(e.expiresAt) }

// Cache is a mutex-guarded token -> Entry map with lazy expiry on read.
type Cache struct {
	mu        sync.Mutex
	entries   map[string]Entry
	bySubject map[string]map[string]struct{}
	now       func() time.Time
}

// Option configures a Cache.
type Option func(*Cache)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) {
		if now != nil {
			c.now = now
		}
	}
}

// New creates an empty cache.
func New(opts ...Option) *Cache {
	c := &Cache{
		entries:   make(map[string]Entry),
		bySubject: make(map[string]map[string]struct{}),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Set stores token for subject, usable until now+ttl.
func (c *Cache) Set(token, subject string, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if old, ok := c.entries[token]; ok && old.subject != subject {
		c.unindex(token, old.subject)
	}
	c.entries[token] = Entry{subject: subject, expiresAt: c.now().Add(ttl)}
	tokens, ok := c.bySubject[subject]
	if !ok {
		tokens = make(map[string]struct{})
		c.bySubject[subject] = tokens
	}
	tokens[token] = struct{}{}
}

// Get returns the subject for token if it has not expired. Expired
// entries are evicted on the way out.
func (c *Cache) Get(token string) (string, bool) {
	entry, ok := c.Lookup(token)
	if !ok {
		return "", false
	}
	return entry.subject, true
}

// Lookup is Get returning the whole entry.
func (c *Cache) Lookup(token string) (Entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[token]
	if !ok {
		return Entry{}, false
	}
	if entry.expired(c.now()) {
		c.remove(token, entry)
		return Entry{}, false
	}
	return entry, true
}

// Delete removes token. Missing tokens are ignored.
func (c *Cache) Delete(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if entry, ok := c.entries[token]; ok {
		c.remove(token, entry)
	}
}

// DeleteSubject removes every token cached for subject and returns how many
// were removed, expired ones included.
func (c *Cache) DeleteSubject(subject string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	tokens := c.bySubject[subject]
	for token := range tokens {
		delete(c.entries, token)
	}
	delete(c.bySubject, subject)
	return len(tokens)
}

// Item is one live cache entry as returned by Snapshot.
type Item struct {
	Token     string
	Subject   string
	ExpiresAt time.Time
}

// Snapshot returns the unexpired entries ordered by expiry. Expired entries
// are skipped but not evicted.
func (c *Cache) Snapshot() []Item {
	c.mu.Lock()
	now := c.now()
	items := make([]Item, 0, len(c.entries))
	for token, entry := range c.entries {
		if !entry.expired(now) {
			items = append(items, Item{Token: token, Subject: entry.subject, ExpiresAt: entry.expiresAt})
		}
	}
	c.mu.Unlock()

	sort.Slice(items, func(i, j int) bool {
		if items[i].ExpiresAt.Equal(items[j].ExpiresAt) {
			return items[i].Token < items[j].Token
		}
		return items[i].ExpiresAt.Before(items[j].ExpiresAt)
	})
	return items
}

// Len returns the number of stored entries, including expired entries not
// yet evicted.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *Cache) remove(token string, entry Entry) {
	delete(c.entries, token)
	c.unindex(token, entry.subject)
}

func (c *Cache) unindex(token, subject string) {
	tokens, ok := c.bySubject[subject]
	if !ok {
		return
	}
	delete(tokens, token)
	if len(tokens) == 0 {
		delete(c.bySubject, subject)
	}
}
