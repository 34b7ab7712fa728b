package favorites

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultRedisKey is where RedisBackend stores the favorites blob.
const DefaultRedisKey = "unsplash:favorite_authors"

// DefaultQueryTimeout bounds a single Redis round trip.
const DefaultQueryTimeout = 5 * time.Second

// Backend persists the encoded favorites list as one blob.
type Backend interface {
	// Load returns the stored blob, or nil if nothing was stored yet.
	Load(ctx context.Context) ([]byte, error)

	// Save replaces the stored blob.
	Save(ctx context.Context, data []byte) error
}

// MemoryBackend keeps the blob in process memory.
type MemoryBackend struct {
	mu    sync.Mutex
	data  []byte
	saves int
}

var _ Backend = (*MemoryBackend)(nil)

// NewMemoryBackend returns an empty in-memory backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{}
}

// Load implements Backend.
func (m *MemoryBackend) Load(ctx context.Context) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.data == nil {
		return nil, nil
	}
	return append([]byte(nil), m.data...), nil
}

// Save implements Backend.
func (m *MemoryBackend) Save(ctx context.Context, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data = append([]byte(nil), data...)
	m.saves++
	return nil
}

// Saves returns how many times Save succeeded.
func (m *MemoryBackend) Saves() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saves
}

// RedisBackend stores the blob under a single Redis key.
// The caller owns the redis.Client lifecycle.
type RedisBackend struct {
	client       *redis.Client
	key          string
	queryTimeout time.Duration
}

var _ Backend = (*RedisBackend)(nil)

// NewRedisBackend returns a backend using key (DefaultRedisKey if empty).
func NewRedisBackend(client *redis.Client, key string) *RedisBackend {
	if key == "" {
		key = DefaultRedisKey
	}
	return &RedisBackend{
		client:       client,
		key:          key,
		queryTimeout: DefaultQueryTimeout,
	}
}

// Load implements Backend.
func (r *RedisBackend) Load(ctx context.Context) ([]byte, error) {
	qctx, cancel := context.WithTimeout(ctx, r.queryTimeout)
	defer cancel()

	data, err := r.client.Get(qctx, r.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis get %s: %w", r.key, err)
	}
	return data, nil
}

// Save implements Backend.
func (r *RedisBackend) Save(ctx context.Context, data []byte) error {
	qctx, cancel := context.WithTimeout(ctx, r.queryTimeout)
	defer cancel()

	if err := r.client.Set(qctx, r.key, data, 0).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", r.key, err)
	}
	return nil
}
