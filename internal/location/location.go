// Package location хранит последнее местоположение пользователя для SOS-тревог.
package location

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shenikar/safesteps/internal/apperr"
	"github.com/shenikar/safesteps/internal/models"
)

var (
	// ErrPermissionDenied - пользователь запретил доступ к геолокации; не повторяется
	ErrPermissionDenied = &apperr.Error{Kind: apperr.KindPermanentDependency, Msg: "location permission denied"}

	// ErrLocationUnavailable - свежей координаты нет
	ErrLocationUnavailable = &apperr.Error{Kind: apperr.KindTransientDependency, Msg: "location unavailable"}
)

const keyPrefix = "location:"

// RedisProvider хранит последний фикс в Redis с TTL
type RedisProvider struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisProvider(client *redis.Client, ttl time.Duration) *RedisProvider {
	return &RedisProvider{client: client, ttl: ttl}
}

func (p *RedisProvider) Record(ctx context.Context, fix models.LocationFix) error {
	data, err := json.Marshal(fix)
	if err != nil {
		return fmt.Errorf("location: marshal fix: %w", err)
	}
	if err := p.client.Set(ctx, keyPrefix+fix.UserID, data, p.ttl).Err(); err != nil {
		return apperr.Transient("location.record", err)
	}
	return nil
}

// Current возвращает последнюю координату пользователя
func (p *RedisProvider) Current(ctx context.Context, userID string) (models.Coordinate, error) {
	data, err := p.client.Get(ctx, keyPrefix+userID).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return models.Coordinate{}, ErrLocationUnavailable
		}
		return models.Coordinate{}, apperr.Transient("location.current", err)
	}
	var fix models.LocationFix
	if err := json.Unmarshal(data, &fix); err != nil {
		return models.Coordinate{}, fmt.Errorf("location: unmarshal fix: %w", err)
	}
	return fromFix(fix)
}

// MemoryProvider - хранение в памяти процесса
type MemoryProvider struct {
	mu    sync.RWMutex
	fixes map[string]memoryFix
	ttl   time.Duration
	now   func() time.Time
}

type memoryFix struct {
	fix     models.LocationFix
	expires time.Time
}

func NewMemoryProvider(ttl time.Duration) *MemoryProvider {
	return &MemoryProvider{fixes: make(map[string]memoryFix), ttl: ttl, now: time.Now}
}

func (p *MemoryProvider) Record(_ context.Context, fix models.LocationFix) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.fixes[fix.UserID] = memoryFix{fix: fix, expires: p.now().Add(p.ttl)}
	return nil
}

func (p *MemoryProvider) Current(_ context.Context, userID string) (models.Coordinate, error) {
	p.mu.RLock()
	f, ok := p.fixes[userID]
	p.mu.RUnlock()
	if !ok || (p.ttl > 0 && p.now().After(f.expires)) {
		return models.Coordinate{}, ErrLocationUnavailable
	}
	return fromFix(f.fix)
}

func fromFix(fix models.LocationFix) (models.Coordinate, error) {
	if fix.Permission == models.PermissionDenied {
		return models.Coordinate{}, ErrPermissionDenied
	}
	if fix.Coordinate == nil {
		return models.Coordinate{}, ErrLocationUnavailable
	}
	return *fix.Coordinate, nil
}
