// Package lock keeps two sweep processes from running the same job at once.
package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"pix-settlement-go/internal/models"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

var ErrHeld = errors.New("lock is held by another process")

const keyPrefix = "pix-settlement:lock:"

// Locker acquires a named lock; the returned func releases it.
type Locker interface {
	Acquire(ctx context.Context, name string) (release func(), err error)
}

// New returns a Redis locker, or a no-op one when no address is configured.
func New(cfg models.RedisConfig) Locker {
	if cfg.Addr == "" {
		zap.L().Info("Redis not configured, sweep locking disabled")
		return Noop{}
	}
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     4,
	})
	return NewRedisLocker(client, cfg.LockTTL)
}

type Noop struct{}

func (Noop) Acquire(context.Context, string) (func(), error) {
	return func() {}, nil
}

type RedisLocker struct {
	client redis.Cmdable
	ttl    time.Duration
}

func NewRedisLocker(client redis.Cmdable, ttl time.Duration) *RedisLocker {
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &RedisLocker{client: client, ttl: ttl}
}

// releaseScript deletes the key only while it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

func Key(name string) string {
	return keyPrefix + name
}

func (l *RedisLocker) Acquire(ctx context.Context, name string) (func(), error) {
	key := Key(name)
	token := uuid.New().String()

	ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("unable to acquire lock %s: %w", name, err)
	}
	if !ok {
		holder, _ := l.client.Get(ctx, key).Result()
		zap.L().Warn("Sweep lock already held", zap.String("lock", name), zap.String("holder", holder))
		return nil, fmt.Errorf("%w: %s", ErrHeld, name)
	}

	zap.L().Debug("Sweep lock acquired", zap.String("lock", name), zap.Duration("ttl", l.ttl))
	return func() {
		// the caller's context may already be cancelled
		releaseCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		if err := releaseScript.Run(releaseCtx, l.client, []string{key}, token).Err(); err != nil {
			zap.L().Warn("Failed to release sweep lock", zap.String("lock", name), zap.Error(err))
		}
	}, nil
}
