package synclock

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gomodule/redigo/redis"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// ErrLockUnavailable is returned when Redis cannot be reached to take a lock.
var ErrLockUnavailable = errors.New("sync lock unavailable")

// releaseScript deletes the key only if it still holds our token, so a lock
// that expired and was taken by another worker is never released by us.
var releaseScript = redis.NewScript(1, `
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// ConnSource hands out Redis connections. *redis.Pool satisfies it.
type ConnSource interface {
	GetContext(ctx context.Context) (redis.Conn, error)
}

// RedisConfig holds configuration for the Redis locker.
type RedisConfig struct {
	// Pool provides connections (required).
	Pool ConnSource

	// Prefix is prepended to every key (default: "shutterspot:sync:").
	Prefix string

	// TTL bounds how long a crashed holder keeps the lock (default: 2 minutes).
	TTL time.Duration

	// RetryInterval is the pause between acquisition attempts (default: 100ms).
	RetryInterval time.Duration

	// Logger for lock operations.
	Logger zerolog.Logger
}

// RedisLocker is a distributed lock using SET NX PX with a random token.
type RedisLocker struct {
	pool   ConnSource
	prefix string
	ttl    time.Duration
	retry  time.Duration
	logger zerolog.Logger
}

// NewRedisLocker creates a Redis-backed locker.
func NewRedisLocker(cfg RedisConfig) *RedisLocker {
	prefix := cfg.Prefix
	if prefix == "" {
		prefix = "shutterspot:sync:"
	}

	ttl := cfg.TTL
	if ttl == 0 {
		ttl = 2 * time.Minute
	}

	retry := cfg.RetryInterval
	if retry == 0 {
		retry = 100 * time.Millisecond
	}

	return &RedisLocker{
		pool:   cfg.Pool,
		prefix: prefix,
		ttl:    ttl,
		retry:  retry,
		logger: cfg.Logger,
	}
}

// NewPool creates a redigo pool for addr ("host:port" or a redis:// URL),
// verifying it with PING.
func NewPool(ctx context.Context, addr string) (*redis.Pool, error) {
	if addr == "" {
		addr = "localhost:6379"
	}
	dial := func(ctx context.Context) (redis.Conn, error) {
		return redis.DialContext(ctx, "tcp", addr)
	}
	if strings.HasPrefix(addr, "redis://") || strings.HasPrefix(addr, "rediss://") {
		dial = func(context.Context) (redis.Conn, error) {
			return redis.DialURL(addr)
		}
	}

	pool := &redis.Pool{
		MaxIdle:     16,
		MaxActive:   64,
		Wait:        true,
		IdleTimeout: 5 * time.Minute,
		DialContext: dial,
		TestOnBorrow: func(c redis.Conn, t time.Time) error {
			if time.Since(t) < time.Minute {
				return nil
			}
			_, err := c.Do("PING")
			return err
		},
	}

	conn, err := pool.GetContext(ctx)
	if err != nil {
		_ = pool.Close()
		return nil, fmt.Errorf("connecting to redis: %w", err)
	}
	defer conn.Close()

	if _, err := conn.Do("PING"); err != nil {
		_ = pool.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return pool, nil
}

// Lock polls until the key is acquired or ctx is done.
func (l *RedisLocker) Lock(ctx context.Context, key string) (func(), error) {
	redisKey := l.prefix + key
	token := uuid.NewString()

	for {
		acquired, err := l.tryAcquire(ctx, redisKey, token)
		if err != nil {
			return nil, err
		}
		if acquired {
			return func() { l.release(redisKey, token) }, nil
		}

		timer := time.NewTimer(l.retry)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
}

func (l *RedisLocker) tryAcquire(ctx context.Context, redisKey, token string) (bool, error) {
	conn, err := l.pool.GetContext(ctx)
	if err != nil {
		return false, fmt.Errorf("%w: %w", ErrLockUnavailable, err)
	}
	defer conn.Close()

	_, err = redis.String(conn.Do("SET", redisKey, token, "NX", "PX", l.ttl.Milliseconds()))
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, redis.ErrNil):
		return false, nil
	default:
		return false, fmt.Errorf("%w: %w", ErrLockUnavailable, err)
	}
}

func (l *RedisLocker) release(redisKey, token string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, err := l.pool.GetContext(ctx)
	if err != nil {
		l.logger.Warn().Err(err).Str("key", redisKey).Msg("failed to get connection to release sync lock")
		return
	}
	defer conn.Close()

	if _, err := releaseScript.Do(conn, redisKey, token); err != nil {
		l.logger.Warn().Err(err).Str("key", redisKey).Msg("failed to release sync lock")
	}
}
