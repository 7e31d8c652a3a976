package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"pattibytes-express/db"

	"github.com/jackc/pgx/v5/pgconn"
)

func TestNormalizeUsername(t *testing.T) {
	tests := []struct {
		in   string
		want string
		err  bool
	}{
		{"  @Patti_Foodie ", "patti_foodie", false},
		{"abc", "abc", false},
		{"a.b.c", "a.b.c", false},
		{"ab", "", true},
		{"this_name_is_far_too_long", "", true},
		{"bad name", "", true},
		{".dot", "", true},
		{"dot.", "", true},
		{"émile", "", true},
	}
	for _, tt := range tests {
		got, err := NormalizeUsername(tt.in)
		if (err != nil) != tt.err || got != tt.want {
			t.Errorf("NormalizeUsername(%q) = (%q, %v), want %q err=%v", tt.in, got, err, tt.want, tt.err)
		}
		if err != nil && !errors.Is(err, ErrUsernameInvalid) {
			t.Errorf("NormalizeUsername(%q) err = %v, want ErrUsernameInvalid", tt.in, err)
		}
	}
}

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time { return c.t }

func TestUsernameCache_TTL(t *testing.T) {
	clk := &fakeClock{t: time.Date(2026, 5, 2, 12, 0, 0, 0, time.UTC)}
	c := NewUsernameCache(time.Minute, clk.now)

	if _, ok := c.Get("patti"); ok {
		t.Fatal("empty cache hit")
	}
	c.Put("patti", true)
	if avail, ok := c.Get("patti"); !ok || !avail {
		t.Fatalf("Get = (%v, %v)", avail, ok)
	}
	clk.t = clk.t.Add(59 * time.Second)
	if _, ok := c.Get("patti"); !ok {
		t.Error("entry expired early")
	}
	clk.t = clk.t.Add(time.Second)
	if _, ok := c.Get("patti"); ok {
		t.Error("entry should expire at ttl")
	}

	c.Put("bytes", false)
	c.Invalidate("bytes")
	if _, ok := c.Get("bytes"); ok {
		t.Error("invalidated entry still cached")
	}
}

type fakeUsernameStore struct {
	mu        sync.Mutex
	holders   map[string]int64
	lookups   int
	claims    int
	failFirst int // claims failing with a serialization error before succeeding
	noProfile bool
}

func (s *fakeUsernameStore) IsAvailable(_ context.Context, name string, userID int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lookups++
	holder, ok := s.holders[name]
	return !ok || holder == userID, nil
}

func (s *fakeUsernameStore) Claim(_ context.Context, userID int64, name string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.claims++
	if s.noProfile {
		return "", ErrProfileNotFound
	}
	if s.claims <= s.failFirst {
		return "", &pgconn.PgError{Code: "40001"}
	}
	if holder, ok := s.holders[name]; ok && holder != userID {
		return "", ErrUsernameTaken
	}
	previous := ""
	for n, id := range s.holders {
		if id == userID {
			previous = n
			delete(s.holders, n)
		}
	}
	s.holders[name] = userID
	return previous, nil
}

func noSleep(ctx context.Context, _ time.Duration) error { return ctx.Err() }

func TestUsernameAvailable_UsesCache(t *testing.T) {
	store := &fakeUsernameStore{holders: map[string]int64{"taken": 2}}
	cache := NewUsernameCache(time.Minute, nil)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		avail, err := UsernameAvailable(ctx, store, cache, 1, "Taken")
		if err != nil || avail {
			t.Fatalf("UsernameAvailable = (%v, %v)", avail, err)
		}
	}
	if store.lookups != 1 {
		t.Errorf("store lookups = %d, want 1", store.lookups)
	}
	if _, err := UsernameAvailable(ctx, store, cache, 1, "x"); !errors.Is(err, ErrUsernameInvalid) {
		t.Errorf("invalid name: err = %v", err)
	}
}

func TestClaimUsername(t *testing.T) {
	ctx := context.Background()
	policy := RetryPolicy{MaxAttempts: 4, BaseDelay: time.Millisecond, MaxDelay: 10 * time.Millisecond}

	t.Run("retries transient conflicts and invalidates cache", func(t *testing.T) {
		store := &fakeUsernameStore{holders: map[string]int64{"old_name": 1}, failFirst: 2}
		cache := NewUsernameCache(time.Minute, nil)
		cache.Put("new_name", true)
		cache.Put("old_name", false)

		name, err := ClaimUsername(ctx, store, cache, policy, noSleep, 1, "New_Name")
		if err != nil || name != "new_name" {
			t.Fatalf("ClaimUsername = (%q, %v)", name, err)
		}
		if store.claims != 3 {
			t.Errorf("claims = %d, want 3", store.claims)
		}
		if _, ok := cache.Get("new_name"); ok {
			t.Error("claimed name still cached")
		}
		if _, ok := cache.Get("old_name"); ok {
			t.Error("released name still cached")
		}
	})

	t.Run("taken fails without retry", func(t *testing.T) {
		store := &fakeUsernameStore{holders: map[string]int64{"patti": 9}}
		_, err := ClaimUsername(ctx, store, nil, policy, noSleep, 1, "patti")
		if !errors.Is(err, ErrUsernameTaken) || store.claims != 1 {
			t.Errorf("err=%v claims=%d", err, store.claims)
		}
	})

	t.Run("missing profile fails without retry", func(t *testing.T) {
		store := &fakeUsernameStore{holders: map[string]int64{}, noProfile: true}
		_, err := ClaimUsername(ctx, store, nil, policy, noSleep, 1, "patti")
		if !errors.Is(err, ErrProfileNotFound) || store.claims != 1 {
			t.Errorf("err=%v claims=%d", err, store.claims)
		}
	})

	t.Run("persistent conflict surfaces", func(t *testing.T) {
		store := &fakeUsernameStore{holders: map[string]int64{}, failFirst: 10}
		_, err := ClaimUsername(ctx, store, nil, policy, noSleep, 1, "patti")
		if !IsRetryableTxError(err) || store.claims != 4 {
			t.Errorf("err=%v claims=%d", err, store.claims)
		}
	})
}

func TestPgUsernameStore_Claim(t *testing.T) {
	requireDB(t)
	ctx := context.Background()
	store := PgUsernameStore{}
	userID := -(time.Now().UnixNano() % 1_000_000_000)

	if _, err := store.Claim(ctx, userID, "ghost_user"); !errors.Is(err, ErrProfileNotFound) {
		t.Fatalf("claim without profile: err = %v, want ErrProfileNotFound", err)
	}

	if _, err := db.Pool.Exec(ctx, `INSERT INTO profiles (user_id) VALUES ($1)`, userID); err != nil {
		t.Fatalf("insert profile: %v", err)
	}
	t.Cleanup(func() { _, _ = db.Pool.Exec(context.Background(), `DELETE FROM profiles WHERE user_id = $1`, userID) })

	name := fmt.Sprintf("u%d", -userID)
	previous, err := store.Claim(ctx, userID, name)
	if err != nil || previous != "" {
		t.Fatalf("first claim = (%q, %v)", previous, err)
	}
	avail, err := store.IsAvailable(ctx, name, userID+1)
	if err != nil || avail {
		t.Errorf("IsAvailable for another user = (%v, %v), want false", avail, err)
	}
}
