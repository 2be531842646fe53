package risk

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"trendline-trading-bot/internal/events"
)

// BreakerState is the circuit breaker state for one user.
type BreakerState string

const (
	BreakerNormal  BreakerState = "NORMAL"
	BreakerTripped BreakerState = "TRIPPED"
)

// breakerKeyPrefix is the Redis hash per user.
// Format: risk:breaker:{userID} with fields state, consecutive_losses,
// tripped_at, threshold.
const breakerKeyPrefix = "risk:breaker"

// breakerTTL keeps stale breaker state from accumulating for users who stop
// trading. A trip always rewrites the key, refreshing the TTL.
const breakerTTL = 30 * 24 * time.Hour

// recordLossScript increments the loss counter and trips the breaker in one
// round trip, so two concurrent closes cannot both observe a pre-threshold
// count.
var recordLossScript = redis.NewScript(`
local losses = redis.call('HINCRBY', KEYS[1], 'consecutive_losses', 1)
local threshold = tonumber(ARGV[1])
if losses >= threshold then
	redis.call('HSET', KEYS[1], 'state', 'TRIPPED', 'tripped_at', ARGV[2], 'threshold', ARGV[1])
end
redis.call('EXPIRE', KEYS[1], ARGV[3])
if losses >= threshold then
	return 1
end
return 0
`)

type breakerEntry struct {
	state             BreakerState
	consecutiveLosses int
	trippedAt         time.Time
}

// CircuitBreaker tracks consecutive losing trades per user and blocks new
// entries once the threshold is hit. State lives in Redis so every process
// sees the same counter; when Redis is unavailable it falls back to an
// in-memory map so trading halts still work within a single process.
type CircuitBreaker struct {
	client         *redis.Client
	bus            *events.Bus
	logger         zerolog.Logger
	redisAvailable atomic.Bool

	mu       sync.Mutex
	fallback map[string]*breakerEntry
}

// NewCircuitBreaker creates a breaker backed by the given Redis client. A nil
// client runs memory-only.
func NewCircuitBreaker(client *redis.Client, bus *events.Bus, logger zerolog.Logger) *CircuitBreaker {
	cb := &CircuitBreaker{
		client:   client,
		bus:      bus,
		logger:   logger.With().Str("component", "circuit_breaker").Logger(),
		fallback: make(map[string]*breakerEntry),
	}
	if client != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := client.Ping(ctx).Err(); err != nil {
			cb.logger.Warn().Err(err).Msg("redis unavailable, breaker running in-memory")
		} else {
			cb.redisAvailable.Store(true)
		}
	}
	return cb
}

func breakerKey(userID string) string {
	return fmt.Sprintf("%s:%s", breakerKeyPrefix, userID)
}

func (cb *CircuitBreaker) useRedis() bool {
	return cb.client != nil && cb.redisAvailable.Load()
}

func (cb *CircuitBreaker) markRedisDown(err error) {
	if cb.redisAvailable.CompareAndSwap(true, false) {
		cb.logger.Error().Err(err).Msg("redis error, breaker falling back to in-memory state")
	}
}

// State returns the breaker state and current loss streak for a user.
func (cb *CircuitBreaker) State(ctx context.Context, userID string) (BreakerState, int, error) {
	if cb.useRedis() {
		vals, err := cb.client.HGetAll(ctx, breakerKey(userID)).Result()
		if err != nil {
			cb.markRedisDown(err)
		} else {
			state := BreakerNormal
			if vals["state"] == string(BreakerTripped) {
				state = BreakerTripped
			}
			losses := 0
			fmt.Sscanf(vals["consecutive_losses"], "%d", &losses)
			return state, losses, nil
		}
	}

	cb.mu.Lock()
	defer cb.mu.Unlock()
	e, ok := cb.fallback[userID]
	if !ok {
		return BreakerNormal, 0, nil
	}
	return e.state, e.consecutiveLosses, nil
}

// Allow reports whether new entries are permitted for the user.
func (cb *CircuitBreaker) Allow(ctx context.Context, userID string) (bool, error) {
	state, _, err := cb.State(ctx, userID)
	if err != nil {
		return false, err
	}
	return state != BreakerTripped, nil
}

// RecordLoss registers a losing position close and trips the breaker when the
// streak reaches threshold. Returns true when this call tripped it.
func (cb *CircuitBreaker) RecordLoss(ctx context.Context, userID string, threshold int) (bool, error) {
	if threshold <= 0 {
		return false, nil
	}
	now := time.Now().UTC()

	if cb.useRedis() {
		res, err := recordLossScript.Run(ctx, cb.client,
			[]string{breakerKey(userID)},
			threshold, now.Format(time.RFC3339), int(breakerTTL.Seconds())).Int()
		if err != nil {
			cb.markRedisDown(err)
		} else {
			if res == 1 {
				cb.publishTrip(userID, threshold, now)
				return true, nil
			}
			return false, nil
		}
	}

	cb.mu.Lock()
	e, ok := cb.fallback[userID]
	if !ok {
		e = &breakerEntry{state: BreakerNormal}
		cb.fallback[userID] = e
	}
	e.consecutiveLosses++
	tripped := false
	if e.consecutiveLosses >= threshold && e.state != BreakerTripped {
		e.state = BreakerTripped
		e.trippedAt = now
		tripped = true
	}
	cb.mu.Unlock()

	if tripped {
		cb.publishTrip(userID, threshold, now)
	}
	return tripped, nil
}

// RecordWin resets the loss streak. A tripped breaker stays tripped: wins can
// only happen on positions opened before the trip, and recovery is an
// explicit operator action.
func (cb *CircuitBreaker) RecordWin(ctx context.Context, userID string) error {
	if cb.useRedis() {
		err := cb.client.HSet(ctx, breakerKey(userID), "consecutive_losses", 0).Err()
		if err != nil {
			cb.markRedisDown(err)
		} else {
			return nil
		}
	}

	cb.mu.Lock()
	defer cb.mu.Unlock()
	if e, ok := cb.fallback[userID]; ok {
		e.consecutiveLosses = 0
	}
	return nil
}

// Reset clears the trip and the streak. Exposed through the API for manual
// recovery.
func (cb *CircuitBreaker) Reset(ctx context.Context, userID string) error {
	if cb.useRedis() {
		err := cb.client.Del(ctx, breakerKey(userID)).Err()
		if err != nil {
			cb.markRedisDown(err)
		}
	}

	cb.mu.Lock()
	delete(cb.fallback, userID)
	cb.mu.Unlock()

	cb.logger.Info().Str("user_id", userID).Msg("circuit breaker reset")
	if cb.bus != nil {
		cb.bus.Publish(events.Event{
			Type:      events.EventCircuitBreakerReset,
			UserID:    userID,
			Timestamp: time.Now().UTC(),
		})
	}
	return nil
}

func (cb *CircuitBreaker) publishTrip(userID string, threshold int, at time.Time) {
	cb.logger.Warn().
		Str("user_id", userID).
		Int("threshold", threshold).
		Msg("circuit breaker tripped, new entries blocked")
	if cb.bus != nil {
		cb.bus.Publish(events.Event{
			Type:      events.EventCircuitBreakerTripped,
			UserID:    userID,
			Timestamp: at,
			Payload:   map[string]interface{}{"threshold": threshold},
		})
	}
}
