package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"golang.org/x/sync/errgroup"
)

// setupStoreTest creates a miniredis instance and returns the store and a cleanup function.
func setupStoreTest(t *testing.T) (*RedisStore, *miniredis.Miniredis, func()) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("Failed to start miniredis: %v", err)
	}

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	store := NewRedisStoreFromClient(client)

	cleanup := func() {
		client.Close()
		mr.Close()
	}

	return store, mr, cleanup
}

func TestNewRedisStore_InvalidURL(t *testing.T) {
	_, err := NewRedisStore(RedisConfig{URL: "invalid://url"})
	if err == nil {
		t.Fatal("Expected error for invalid Redis URL")
	}
}

func TestNewRedisStore_ConnectionFailure(t *testing.T) {
	_, err := NewRedisStore(RedisConfig{URL: "redis://localhost:1"})
	if err == nil {
		t.Fatal("Expected error when Redis is unreachable")
	}
}

func TestRedisStore_PutGet(t *testing.T) {
	store, _, cleanup := setupStoreTest(t)
	defer cleanup()

	ctx := context.Background()
	token, err := NewToken()
	if err != nil {
		t.Fatalf("NewToken failed: %v", err)
	}

	want := Identity{Name: "alice", Role: "user"}
	if err := store.Put(ctx, token, want, time.Minute); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	got, err := store.Get(ctx, token)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Name != want.Name || got.Role != want.Role {
		t.Errorf("Got identity %+v, want %+v", got, want)
	}
}

func TestRedisStore_Put_Validation(t *testing.T) {
	store, _, cleanup := setupStoreTest(t)
	defer cleanup()

	ctx := context.Background()

	if err := store.Put(ctx, "", Identity{Name: "alice"}, time.Minute); err == nil {
		t.Error("Expected error for empty token")
	}
	if err := store.Put(ctx, "gh_abc", Identity{Name: "alice"}, 0); err == nil {
		t.Error("Expected error for zero TTL")
	}
	if err := store.Put(ctx, "gh_abc", Identity{Name: "alice"}, -time.Second); err == nil {
		t.Error("Expected error for negative TTL")
	}
}

func TestRedisStore_Get_NeverIssued(t *testing.T) {
	store, _, cleanup := setupStoreTest(t)
	defer cleanup()

	_, err := store.Get(context.Background(), "gh_neverIssuedToken")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound for unknown token, got %v", err)
	}
}

func TestRedisStore_Get_Expired(t *testing.T) {
	store, mr, cleanup := setupStoreTest(t)
	defer cleanup()

	ctx := context.Background()
	token, _ := NewToken()
	if err := store.Put(ctx, token, Identity{Name: "bob", Role: "user"}, time.Minute); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	mr.FastForward(2 * time.Minute)

	// Expired and never-issued must be indistinguishable to callers.
	_, err := store.Get(ctx, token)
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound for expired token, got %v", err)
	}
}

func TestRedisStore_Get_DoesNotExtendTTL(t *testing.T) {
	store, mr, cleanup := setupStoreTest(t)
	defer cleanup()

	ctx := context.Background()
	token, _ := NewToken()
	if err := store.Put(ctx, token, Identity{Name: "carol", Role: "user"}, time.Minute); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	mr.FastForward(40 * time.Second)
	if _, err := store.Get(ctx, token); err != nil {
		t.Fatalf("Get before expiry failed: %v", err)
	}

	// Reads must not restart the expiry clock.
	mr.FastForward(30 * time.Second)
	_, err := store.Get(ctx, token)
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound after TTL elapsed, got %v", err)
	}
}

func TestRedisStore_Put_Overwrite(t *testing.T) {
	store, mr, cleanup := setupStoreTest(t)
	defer cleanup()

	ctx := context.Background()
	token, _ := NewToken()

	if err := store.Put(ctx, token, Identity{Name: "dave", Role: "user"}, time.Minute); err != nil {
		t.Fatalf("first Put failed: %v", err)
	}
	mr.FastForward(50 * time.Second)

	// A second Put restarts the expiry clock.
	if err := store.Put(ctx, token, Identity{Name: "dave", Role: "admin"}, time.Minute); err != nil {
		t.Fatalf("second Put failed: %v", err)
	}
	mr.FastForward(30 * time.Second)

	got, err := store.Get(ctx, token)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Role != "admin" {
		t.Errorf("Expected overwritten role admin, got %q", got.Role)
	}
}

func TestRedisStore_Get_CorruptRecord(t *testing.T) {
	store, mr, cleanup := setupStoreTest(t)
	defer cleanup()

	ctx := context.Background()
	mr.Set(key("gh_corrupt"), "{not json")

	_, err := store.Get(ctx, "gh_corrupt")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound for corrupt record, got %v", err)
	}

	// The corrupt record is dropped so it cannot keep failing.
	if mr.Exists(key("gh_corrupt")) {
		t.Error("Expected corrupt record to be deleted")
	}
}

func TestRedisStore_Unavailable(t *testing.T) {
	store, mr, cleanup := setupStoreTest(t)
	defer cleanup()

	ctx := context.Background()
	token, _ := NewToken()
	if err := store.Put(ctx, token, Identity{Name: "erin", Role: "user"}, time.Minute); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	mr.Close()

	if _, err := store.Get(ctx, token); !errors.Is(err, ErrUnavailable) {
		t.Errorf("Expected ErrUnavailable from Get, got %v", err)
	}
	if err := store.Put(ctx, token, Identity{Name: "erin"}, time.Minute); !errors.Is(err, ErrUnavailable) {
		t.Errorf("Expected ErrUnavailable from Put, got %v", err)
	}
	if _, err := store.CountActive(ctx); !errors.Is(err, ErrUnavailable) {
		t.Errorf("Expected ErrUnavailable from CountActive, got %v", err)
	}
	if err := store.Ping(ctx); !errors.Is(err, ErrUnavailable) {
		t.Errorf("Expected ErrUnavailable from Ping, got %v", err)
	}
}

func TestRedisStore_CountActive(t *testing.T) {
	store, mr, cleanup := setupStoreTest(t)
	defer cleanup()

	ctx := context.Background()

	count, err := store.CountActive(ctx)
	if err != nil {
		t.Fatalf("CountActive failed: %v", err)
	}
	if count != 0 {
		t.Errorf("Expected 0 sessions, got %d", count)
	}

	for i := 0; i < 150; i++ {
		token, _ := NewToken()
		if err := store.Put(ctx, token, Identity{Name: "user", Role: "user"}, time.Minute); err != nil {
			t.Fatalf("Put failed: %v", err)
		}
	}

	// Keys outside the session namespace are not counted.
	mr.Set("other:key", "value")

	count, err = store.CountActive(ctx)
	if err != nil {
		t.Fatalf("CountActive failed: %v", err)
	}
	if count != 150 {
		t.Errorf("Expected 150 sessions, got %d", count)
	}
}

func TestRedisStore_CountActive_ExcludesExpired(t *testing.T) {
	store, mr, cleanup := setupStoreTest(t)
	defer cleanup()

	ctx := context.Background()

	shortToken, _ := NewToken()
	longToken, _ := NewToken()
	if err := store.Put(ctx, shortToken, Identity{Name: "a"}, 10*time.Second); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if err := store.Put(ctx, longToken, Identity{Name: "b"}, time.Hour); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	mr.FastForward(30 * time.Second)

	count, err := store.CountActive(ctx)
	if err != nil {
		t.Fatalf("CountActive failed: %v", err)
	}
	if count != 1 {
		t.Errorf("Expected 1 live session, got %d", count)
	}
}

func TestRedisStore_ConcurrentIssuance(t *testing.T) {
	store, _, cleanup := setupStoreTest(t)
	defer cleanup()

	ctx := context.Background()
	tokens := make([]string, 50)

	var g errgroup.Group
	for i := range tokens {
		i := i
		g.Go(func() error {
			token, err := NewToken()
			if err != nil {
				return err
			}
			tokens[i] = token
			return store.Put(ctx, token, Identity{Name: "user", Role: "user"}, time.Minute)
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatalf("concurrent Put failed: %v", err)
	}

	seen := make(map[string]bool, len(tokens))
	for _, token := range tokens {
		if seen[token] {
			t.Fatalf("duplicate token issued: %s", token)
		}
		seen[token] = true

		if _, err := store.Get(ctx, token); err != nil {
			t.Errorf("Get(%s) failed: %v", token, err)
		}
	}

	count, err := store.CountActive(ctx)
	if err != nil {
		t.Fatalf("CountActive failed: %v", err)
	}
	if count != len(tokens) {
		t.Errorf("Expected %d sessions, got %d", len(tokens), count)
	}
}
