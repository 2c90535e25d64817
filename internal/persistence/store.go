// Package persistence implements the backing key/value interface and
// the two concrete stores: a simple whole-value get/set/delete
// contract with no range scans or transactions, backed by either an
// in-process map or Redis.
package persistence

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"fluxflag/pkg/errors"
)

// KVStore is the backing store contract.
type KVStore interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
}

// Key builds a namespaced persistence key from (company, tenant, env)
// and a kind tag. Everything except the cross-tenant first-open flag
// and device-id is namespaced this way.
func Key(company, tenant, env, kind string) string {
	return "fluxflag:" + company + ":" + tenant + ":" + env + ":" + kind
}

// GlobalKey builds a persistence key for the two cross-tenant values:
// the first-open flag and the stable device id.
func GlobalKey(kind string) string {
	return "fluxflag:global:" + kind
}

// MemoryStore is an in-process KVStore, used for tests and for
// deployments with persistence.backend=memory.
type MemoryStore struct {
	mu     sync.RWMutex
	values map[string][]byte
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{values: make(map[string][]byte)}
}

func (m *MemoryStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.values[key]
	if !ok {
		return nil, false, nil
	}
	out := make([]byte, len(v))
	copy(out, v)
	return out, true, nil
}

func (m *MemoryStore) Set(_ context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make([]byte, len(value))
	copy(cp, value)
	m.values[key] = cp
	return nil
}

func (m *MemoryStore) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.values, key)
	return nil
}

// RedisStore backs the KVStore contract with a Redis client.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, ttl: ttl}
}

func (r *RedisStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	v, err := r.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, errors.Wrap(err, errors.ErrPersistence)
	}
	return v, true, nil
}

func (r *RedisStore) Set(ctx context.Context, key string, value []byte) error {
	if err := r.client.Set(ctx, key, value, r.ttl).Err(); err != nil {
		return errors.Wrap(err, errors.ErrPersistence)
	}
	return nil
}

func (r *RedisStore) Delete(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, key).Err(); err != nil {
		return errors.Wrap(err, errors.ErrPersistence)
	}
	return nil
}
