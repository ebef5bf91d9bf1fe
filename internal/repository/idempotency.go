package repository

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shenikar/safesteps/internal/apperr"
)

const (
	idempotencyPrefix = "sos:idempotency:"
	pendingMarker     = "pending"
)

// RedisIdempotency хранит ключи идемпотентности SOS-запросов
type RedisIdempotency struct {
	client *redis.Client
}

func NewRedisIdempotency(client *redis.Client) *RedisIdempotency {
	return &RedisIdempotency{client: client}
}

// Reserve занимает ключ. Если ключ уже занят, возвращает id тревоги ("" пока рассылка идет).
func (r *RedisIdempotency) Reserve(ctx context.Context, key string, ttl time.Duration) (string, bool, error) {
	ok, err := r.client.SetNX(ctx, idempotencyPrefix+key, pendingMarker, ttl).Result()
	if err != nil {
		return "", false, apperr.Transient("idempotency.reserve", err)
	}
	if ok {
		return "", true, nil
	}
	val, err := r.client.Get(ctx, idempotencyPrefix+key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			// ключ истек между SETNX и GET
			return r.Reserve(ctx, key, ttl)
		}
		return "", false, apperr.Transient("idempotency.reserve", err)
	}
	if val == pendingMarker {
		return "", false, nil
	}
	return val, false, nil
}

func (r *RedisIdempotency) Complete(ctx context.Context, key, alertID string, ttl time.Duration) error {
	if err := r.client.Set(ctx, idempotencyPrefix+key, alertID, ttl).Err(); err != nil {
		return apperr.Transient("idempotency.complete", err)
	}
	return nil
}

func (r *RedisIdempotency) Release(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, idempotencyPrefix+key).Err(); err != nil {
		return apperr.Transient("idempotency.release", err)
	}
	return nil
}

// MemoryIdempotency - ключи идемпотентности в памяти процесса
type MemoryIdempotency struct {
	mu   sync.Mutex
	keys map[string]idempotencyEntry
	now  func() time.Time
}

type idempotencyEntry struct {
	alertID string
	expires time.Time
}

func NewMemoryIdempotency() *MemoryIdempotency {
	return &MemoryIdempotency{keys: make(map[string]idempotencyEntry), now: time.Now}
}

func (m *MemoryIdempotency) Reserve(_ context.Context, key string, ttl time.Duration) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.keys[key]; ok && m.now().Before(e.expires) {
		return e.alertID, false, nil
	}
	m.keys[key] = idempotencyEntry{expires: m.now().Add(ttl)}
	return "", true, nil
}

func (m *MemoryIdempotency) Complete(_ context.Context, key, alertID string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.keys[key] = idempotencyEntry{alertID: alertID, expires: m.now().Add(ttl)}
	return nil
}

func (m *MemoryIdempotency) Release(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.keys, key)
	return nil
}
