// Package dedup provides a short-lived duplicate-signal lock on Redis SetNX.
// The key is the trade setup (user, instrument, direction); while a lock is
// held, a second identical signal is refused. Falls back to an in-process map
// when redis is unavailable.
package dedup

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// ErrDuplicate means an identical setup was signalled inside the lock window.
var ErrDuplicate = errors.New("duplicate signal within dedup window")

const keyPrefix = "dedup:signal"

// Lock acquires per-setup dedup locks with a TTL.
type Lock struct {
	client *redis.Client
	ttl    time.Duration
	logger zerolog.Logger

	redisAvailable atomic.Bool

	mu       sync.Mutex
	fallback map[string]time.Time // key -> expiry
}

// NewLock builds the lock. ttl is the window inside which a repeat setup is
// treated as a duplicate.
func NewLock(client *redis.Client, ttl time.Duration, logger zerolog.Logger) *Lock {
	l := &Lock{
		client:   client,
		ttl:      ttl,
		logger:   logger.With().Str("component", "dedup").Logger(),
		fallback: make(map[string]time.Time),
	}

	if client != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := client.Ping(ctx).Err(); err == nil {
			l.redisAvailable.Store(true)
		} else {
			l.logger.Warn().Err(err).Msg("redis unavailable, dedup using in-memory fallback")
		}
	} else {
		l.logger.Warn().Msg("no redis client, dedup using in-memory fallback")
	}
	return l
}

func lockKey(userID, instrument, direction string) string {
	return fmt.Sprintf("%s:%s:%s:%s", keyPrefix, userID, instrument, direction)
}

// Acquire takes the lock for one setup. Returns ErrDuplicate when the lock is
// already held.
func (l *Lock) Acquire(ctx context.Context, userID, instrument, direction string) error {
	key := lockKey(userID, instrument, direction)

	if l.redisAvailable.Load() {
		ok, err := l.client.SetNX(ctx, key, time.Now().UTC().Format(time.RFC3339), l.ttl).Result()
		if err != nil {
			l.markRedisDown(err)
		} else {
			if !ok {
				return ErrDuplicate
			}
			return nil
		}
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	now := time.Now()
	if expiry, held := l.fallback[key]; held && now.Before(expiry) {
		return ErrDuplicate
	}
	l.fallback[key] = now.Add(l.ttl)
	return nil
}

// Release drops the lock early, e.g. after a signal is rejected so the user
// can resubmit a corrected one.
func (l *Lock) Release(ctx context.Context, userID, instrument, direction string) error {
	key := lockKey(userID, instrument, direction)

	if l.redisAvailable.Load() {
		if err := l.client.Del(ctx, key).Err(); err != nil {
			l.markRedisDown(err)
		} else {
			return nil
		}
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.fallback, key)
	return nil
}

func (l *Lock) markRedisDown(err error) {
	if l.redisAvailable.CompareAndSwap(true, false) {
		l.logger.Warn().Err(err).Msg("redis error, dedup switching to in-memory fallback")
	}
}
