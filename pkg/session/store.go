package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// KeyPrefix is the Redis namespace for session records.
const KeyPrefix = "session:"

// ErrNotFound is returned when a token has no live session. A token that
// expired and a token that never existed report the same miss.
var ErrNotFound = errors.New("session not found")

// ErrUnavailable is returned when the session store cannot be reached.
// Callers must treat it as an infrastructure failure, never as "no session".
var ErrUnavailable = errors.New("session store unavailable")

// Identity is the minimal authenticated-user record carried by a session.
// The schema is fixed: validation responses are built from these two fields
// and nothing else.
type Identity struct {
	Name string `json:"name"`
	Role string `json:"role"`
}

// Store defines how session records are persisted and retrieved.
type Store interface {
	// Put creates or overwrites the session for token, restarting the
	// expiry clock.
	Put(ctx context.Context, token string, identity Identity, ttl time.Duration) error
	// Get returns the live session for token, ErrNotFound if there is
	// none, or ErrUnavailable if the store cannot answer.
	Get(ctx context.Context, token string) (*Identity, error)
	// CountActive reports the number of live sessions. Only the monitor
	// calls this; it must never block concurrent writers.
	CountActive(ctx context.Context) (int, error)
}

// RedisStore is the Redis-backed session store used in production.
type RedisStore struct {
	client *redis.Client
}

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	URL        string
	Password   string
	DB         int
	MaxRetries int
	PoolSize   int
}

// NewRedisStore connects to Redis and returns a session store.
// The connection is verified with a bounded Ping before use.
func NewRedisStore(cfg RedisConfig) (*RedisStore, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}

	if cfg.Password != "" {
		opts.Password = cfg.Password
	}
	if cfg.DB >= 0 {
		opts.DB = cfg.DB
	}
	if cfg.MaxRetries > 0 {
		opts.MaxRetries = cfg.MaxRetries
	}
	if cfg.PoolSize > 0 {
		opts.PoolSize = cfg.PoolSize
	}

	// Every store call is bounded; a slow Redis is an unavailable Redis.
	opts.DialTimeout = 5 * time.Second
	opts.ReadTimeout = 3 * time.Second
	opts.WriteTimeout = 3 * time.Second
	opts.PoolTimeout = 4 * time.Second

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &RedisStore{client: client}, nil
}

// NewRedisStoreFromClient wraps an existing client. Used by tests.
func NewRedisStoreFromClient(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func key(token string) string {
	return KeyPrefix + token
}

// Put stores the identity under session:<token> with the given TTL.
// Redis owns the expiry clock from this point on.
func (s *RedisStore) Put(ctx context.Context, token string, identity Identity, ttl time.Duration) error {
	if token == "" {
		return fmt.Errorf("session: token must not be empty")
	}
	if ttl <= 0 {
		return fmt.Errorf("session: ttl must be positive")
	}

	data, err := json.Marshal(identity)
	if err != nil {
		return fmt.Errorf("failed to marshal identity: %w", err)
	}

	if err := s.client.Set(ctx, key(token), data, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	return nil
}

// Get looks up the session for token. redis.Nil covers both "never issued"
// and "expired": the two cases collapse into ErrNotFound so no caller can
// probe for past sessions.
func (s *RedisStore) Get(ctx context.Context, token string) (*Identity, error) {
	data, err := s.client.Get(ctx, key(token)).Result()
	if err == redis.Nil {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	var identity Identity
	if err := json.Unmarshal([]byte(data), &identity); err != nil {
		// Corrupt blob: drop it and report a miss rather than leaking
		// the failure shape to callers.
		s.client.Del(ctx, key(token))
		return nil, ErrNotFound
	}

	return &identity, nil
}

// CountActive counts live session keys with a cursor SCAN. SCAN holds no
// lock across iterations, so issuance and validation traffic proceed while
// the monitor counts.
func (s *RedisStore) CountActive(ctx context.Context) (int, error) {
	var total int
	iter := s.client.Scan(ctx, 0, KeyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		total++
	}
	if err := iter.Err(); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	return total, nil
}

// Ping reports point-in-time Redis availability. Used by readiness probes.
func (s *RedisStore) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// Client exposes the underlying redis client for health checks.
func (s *RedisStore) Client() *redis.Client {
	return s.client
}

// Close releases the Redis connection pool.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
