// Package joblock provides the Redis-backed per-video lock that fences
// duplicate event deliveries. Only one worker processes a given video at a
// time; a redelivered event that finds the lock held is skipped and committed.
//
// The lock is best-effort: if Redis is unavailable the router proceeds
// without fencing, trading possible duplicate work (harmless, writes are
// keyed by job and step) for availability.
package joblock

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// Locker is the lock contract the router depends on.
type Locker interface {
	// Acquire tries to take the lock for videoID. ok=false means another
	// holder exists; err signals a Redis failure the caller treats as
	// best-effort.
	Acquire(ctx context.Context, videoID string) (ok bool, err error)

	// Release drops the lock for videoID.
	Release(ctx context.Context, videoID string) error

	// Extend pushes the lock TTL out for long-running steps.
	Extend(ctx context.Context, videoID string) error
}

// RedisLock implements Locker with SET NX EX.
type RedisLock struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
	logger *slog.Logger
}

// New connects to Redis and verifies the connection.
func New(ctx context.Context, url, prefix string, ttl time.Duration, logger *slog.Logger) (*RedisLock, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parsing redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connecting to redis: %w", err)
	}
	return &RedisLock{client: client, prefix: prefix, ttl: ttl, logger: logger}, nil
}

// Acquire implements Locker.
func (l *RedisLock) Acquire(ctx context.Context, videoID string) (bool, error) {
	ok, err := l.client.SetNX(ctx, l.key(videoID), "locked", l.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("acquiring lock for %s: %w", videoID, err)
	}
	if ok {
		l.logger.Debug("job lock acquired", slog.String("video_id", videoID))
	} else {
		l.logger.Warn("job lock already held", slog.String("video_id", videoID))
	}
	return ok, nil
}

// Release implements Locker.
func (l *RedisLock) Release(ctx context.Context, videoID string) error {
	if err := l.client.Del(ctx, l.key(videoID)).Err(); err != nil {
		return fmt.Errorf("releasing lock for %s: %w", videoID, err)
	}
	return nil
}

// Extend implements Locker.
func (l *RedisLock) Extend(ctx context.Context, videoID string) error {
	if err := l.client.Expire(ctx, l.key(videoID), l.ttl).Err(); err != nil {
		return fmt.Errorf("extending lock for %s: %w", videoID, err)
	}
	return nil
}

// Close releases the Redis connection.
func (l *RedisLock) Close() error {
	return l.client.Close()
}

func (l *RedisLock) key(videoID string) string {
	return l.prefix + ":" + videoID
}

// Noop is the Locker used when Redis is not configured; it always grants.
type Noop struct{}

func (Noop) Acquire(context.Context, string) (bool, error) { return true, nil }
func (Noop) Release(context.Context, string) error         { return nil }
func (Noop) Extend(context.Context, string) error          { return nil }
