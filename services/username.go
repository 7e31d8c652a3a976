package services

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"sync"
	"time"

	"pattibytes-express/db"

	"github.com/jackc/pgx/v5"
)

var (
	ErrUsernameTaken   = errors.New("username is already taken")
	ErrUsernameInvalid = errors.New("username must be 3-20 characters of a-z, 0-9, '.' or '_'")
)

var usernamePattern = regexp.MustCompile(`^[a-z0-9._]{3,20}$`)

// NormalizeUsername lowercases and trims a requested username, dropping a
// leading '@'.
func NormalizeUsername(s string) (string, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.TrimPrefix(s, "@")
	if !usernamePattern.MatchString(s) || strings.HasPrefix(s, ".") || strings.HasSuffix(s, ".") {
		return "", ErrUsernameInvalid
	}
	return s, nil
}

type usernameEntry struct {
	available  bool
	insertedAt time.Time
}

// UsernameCache remembers availability lookups for ttl. Writes must call
// Invalidate for the affected names.
type UsernameCache struct {
	ttl time.Duration
	now func() time.Time

	mu      sync.Mutex
	entries map[string]usernameEntry
}

func NewUsernameCache(ttl time.Duration, now func() time.Time) *UsernameCache {
	if now == nil {
		now = time.Now
	}
	return &UsernameCache{ttl: ttl, now: now, entries: make(map[string]usernameEntry)}
}

// Get returns the cached availability for a normalized name.
func (c *UsernameCache) Get(name string) (available, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, found := c.entries[name]
	if !found {
		return false, false
	}
	if c.now().Sub(e.insertedAt) >= c.ttl {
		delete(c.entries, name)
		return false, false
	}
	return e.available, true
}

func (c *UsernameCache) Put(name string, available bool) {
	c.mu.Lock()
	c.entries[name] = usernameEntry{available: available, insertedAt: c.now()}
	c.mu.Unlock()
}

func (c *UsernameCache) Invalidate(name string) {
	c.mu.Lock()
	delete(c.entries, name)
	c.mu.Unlock()
}

// UsernameStore is the persistence behind username claims.
type UsernameStore interface {
	// IsAvailable reports whether no other user holds name.
	IsAvailable(ctx context.Context, name string, userID int64) (bool, error)
	// Claim assigns name to userID and returns the user's previous username
	// ("" if none). ErrUsernameTaken when another user holds it.
	Claim(ctx context.Context, userID int64, name string) (previous string, err error)
}

// UsernameAvailable answers availability checks through the cache.
func UsernameAvailable(ctx context.Context, store UsernameStore, cache *UsernameCache, userID int64, raw string) (bool, error) {
	name, err := NormalizeUsername(raw)
	if err != nil {
		return false, err
	}
	if cache != nil {
		if avail, ok := cache.Get(name); ok {
			return avail, nil
		}
	}
	avail, err := store.IsAvailable(ctx, name, userID)
	if err != nil {
		return false, err
	}
	if cache != nil {
		cache.Put(name, avail)
	}
	return avail, nil
}

// ClaimUsername assigns a username to a user. Transient conflicts (concurrent
// claims aborting the transaction) are retried under policy; a name held by
// someone else fails immediately with ErrUsernameTaken.
func ClaimUsername(ctx context.Context, store UsernameStore, cache *UsernameCache, policy RetryPolicy, sleep Sleeper, userID int64, raw string) (string, error) {
	name, err := NormalizeUsername(raw)
	if err != nil {
		return "", err
	}
	var previous string
	err = policy.Do(ctx, sleep, IsRetryableTxError, func(ctx context.Context) error {
		var claimErr error
		previous, claimErr = store.Claim(ctx, userID, name)
		return claimErr
	})
	if cache != nil {
		cache.Invalidate(name)
		if previous != "" {
			cache.Invalidate(previous)
		}
	}
	if err != nil {
		return "", err
	}
	return name, nil
}

// PgUsernameStore keeps usernames in profiles.username (unique index).
type PgUsernameStore struct{}

func (PgUsernameStore) IsAvailable(ctx context.Context, name string, userID int64) (bool, error) {
	var holder int64
	err := db.Pool.QueryRow(ctx, `SELECT user_id FROM profiles WHERE username = $1`, name).Scan(&holder)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return true, nil
		}
		return false, err
	}
	return holder == userID, nil
}

func (PgUsernameStore) Claim(ctx context.Context, userID int64, name string) (string, error) {
	tx, err := db.Pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		return "", err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var previous *string
	err = tx.QueryRow(ctx, `SELECT username FROM profiles WHERE user_id = $1 FOR UPDATE`, userID).Scan(&previous)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", ErrProfileNotFound
		}
		return "", err
	}
	if previous != nil && *previous == name {
		return "", tx.Commit(ctx)
	}
	_, err = tx.Exec(ctx, `UPDATE profiles SET username = $1, updated_at = now() WHERE user_id = $2`, name, userID)
	if err != nil {
		if isUniqueViolation(err) {
			return "", ErrUsernameTaken
		}
		return "", err
	}
	if err := tx.Commit(ctx); err != nil {
		return "", err
	}
	if previous == nil {
		return "", nil
	}
	return *previous, nil
}
