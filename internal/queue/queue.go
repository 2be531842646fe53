// Package queue is a redis-backed task queue with priority lanes. Producers
// enqueue JSON tasks; a worker pool pops lanes in priority order and dispatches
// to registered handlers. When redis is unreachable the queue degrades to an
// in-process memory queue, same as the other redis-backed components.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Lane is a priority bucket. Workers always drain high before normal and
// normal before low.
type Lane string

const (
	LaneHigh   Lane = "tasks:high"
	LaneNormal Lane = "tasks:normal"
	LaneLow    Lane = "tasks:low"

	deadLane = "tasks:dead"
)

var lanesByPriority = []Lane{LaneHigh, LaneNormal, LaneLow}

// Task is one unit of work. Kind selects the handler; Payload is opaque to
// the queue.
type Task struct {
	ID         string          `json:"id"`
	Kind       string          `json:"kind"`
	Payload    json.RawMessage `json:"payload"`
	EnqueuedAt time.Time       `json:"enqueued_at"`
	LastError  string          `json:"last_error,omitempty"`
}

// Handler processes one task. A non-nil error triggers the retry policy.
type Handler func(ctx context.Context, task *Task) error

// Queue is both the producer and consumer side.
type Queue struct {
	client *redis.Client
	logger zerolog.Logger

	redisAvailable atomic.Bool

	mu       sync.Mutex
	memory   map[Lane][]*Task
	memDead  []*Task
	handlers map[string]Handler

	maxRetries uint64
	newBackOff func() backoff.BackOff

	wg sync.WaitGroup
}

// NewQueue builds a queue on the given redis client. A nil or unreachable
// client selects the in-memory fallback.
func NewQueue(client *redis.Client, maxRetries uint64, logger zerolog.Logger) *Queue {
	q := &Queue{
		client:     client,
		logger:     logger.With().Str("component", "queue").Logger(),
		memory:     make(map[Lane][]*Task),
		handlers:   make(map[string]Handler),
		maxRetries: maxRetries,
		newBackOff: func() backoff.BackOff { return backoff.NewExponentialBackOff() },
	}

	if client != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := client.Ping(ctx).Err(); err == nil {
			q.redisAvailable.Store(true)
			q.logger.Info().Msg("task queue using redis")
		} else {
			q.logger.Warn().Err(err).Msg("redis unavailable, task queue using in-memory fallback")
		}
	} else {
		q.logger.Warn().Msg("no redis client, task queue using in-memory fallback")
	}
	return q
}

// Register binds a handler to a task kind. Call before Start.
func (q *Queue) Register(kind string, h Handler) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.handlers[kind] = h
}

// Enqueue pushes a task onto the given lane. The payload is marshalled to
// JSON and carried opaquely.
func (q *Queue) Enqueue(ctx context.Context, lane Lane, kind string, payload interface{}) (string, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal task payload: %w", err)
	}
	task := &Task{
		ID:         uuid.New().String(),
		Kind:       kind,
		Payload:    body,
		EnqueuedAt: time.Now().UTC(),
	}

	if q.redisAvailable.Load() {
		raw, err := json.Marshal(task)
		if err != nil {
			return "", fmt.Errorf("marshal task: %w", err)
		}
		if err := q.client.LPush(ctx, string(lane), raw).Err(); err != nil {
			q.markRedisDown(err)
		} else {
			return task.ID, nil
		}
	}

	q.mu.Lock()
	q.memory[lane] = append(q.memory[lane], task)
	q.mu.Unlock()
	return task.ID, nil
}

// Depth reports how many tasks are waiting in a lane.
func (q *Queue) Depth(ctx context.Context, lane Lane) (int64, error) {
	if q.redisAvailable.Load() {
		n, err := q.client.LLen(ctx, string(lane)).Result()
		if err == nil {
			return n, nil
		}
		q.markRedisDown(err)
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	return int64(len(q.memory[lane])), nil
}

// DeadTasks returns the dead-letter backlog without consuming it.
func (q *Queue) DeadTasks(ctx context.Context) ([]*Task, error) {
	if q.redisAvailable.Load() {
		raws, err := q.client.LRange(ctx, deadLane, 0, -1).Result()
		if err != nil {
			q.markRedisDown(err)
		} else {
			out := make([]*Task, 0, len(raws))
			for _, raw := range raws {
				var t Task
				if err := json.Unmarshal([]byte(raw), &t); err != nil {
					return nil, fmt.Errorf("unmarshal dead task: %w", err)
				}
				out = append(out, &t)
			}
			return out, nil
		}
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]*Task, len(q.memDead))
	copy(out, q.memDead)
	return out, nil
}

// Start launches the worker pool. Workers exit when ctx is cancelled; Wait
// blocks until they are all gone.
func (q *Queue) Start(ctx context.Context, workers int) {
	if workers <= 0 {
		workers = 1
	}
	q.logger.Info().Int("workers", workers).Msg("starting queue workers")
	for i := 0; i < workers; i++ {
		q.wg.Add(1)
		go func(id int) {
			defer q.wg.Done()
			q.workerLoop(ctx, id)
		}(i)
	}
}

// Wait blocks until all workers have exited.
func (q *Queue) Wait() {
	q.wg.Wait()
}

func (q *Queue) workerLoop(ctx context.Context, id int) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		task, ok := q.pop(ctx)
		if !ok {
			continue
		}
		q.dispatch(ctx, task)
	}
}

// pop takes the next task, honoring lane priority. Blocks briefly so workers
// notice ctx cancellation.
func (q *Queue) pop(ctx context.Context) (*Task, bool) {
	if q.redisAvailable.Load() {
		keys := make([]string, len(lanesByPriority))
		for i, lane := range lanesByPriority {
			keys[i] = string(lane)
		}
		res, err := q.client.BRPop(ctx, time.Second, keys...).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) || ctx.Err() != nil {
				return nil, false
			}
			q.markRedisDown(err)
			return nil, false
		}
		// BRPop returns [key, value].
		var t Task
		if err := json.Unmarshal([]byte(res[1]), &t); err != nil {
			q.logger.Error().Err(err).Msg("dropping undecodable task")
			return nil, false
		}
		return &t, true
	}

	q.mu.Lock()
	for _, lane := range lanesByPriority {
		if items := q.memory[lane]; len(items) > 0 {
			task := items[len(items)-1]
			q.memory[lane] = items[:len(items)-1]
			q.mu.Unlock()
			return task, true
		}
	}
	q.mu.Unlock()

	select {
	case <-ctx.Done():
	case <-time.After(20 * time.Millisecond):
	}
	return nil, false
}

// dispatch runs the handler with bounded retries. Tasks that exhaust their
// retries go to the dead-letter lane.
func (q *Queue) dispatch(ctx context.Context, task *Task) {
	q.mu.Lock()
	handler, ok := q.handlers[task.Kind]
	q.mu.Unlock()
	if !ok {
		q.logger.Error().Str("kind", task.Kind).Str("task_id", task.ID).Msg("no handler registered")
		task.LastError = "no handler registered"
		q.pushDead(ctx, task)
		return
	}

	operation := func() error {
		return q.runSafely(ctx, handler, task)
	}
	policy := backoff.WithContext(backoff.WithMaxRetries(q.newBackOff(), q.maxRetries), ctx)
	if err := backoff.Retry(operation, policy); err != nil {
		q.logger.Error().Err(err).Str("kind", task.Kind).Str("task_id", task.ID).
			Msg("task failed after retries, moving to dead letter")
		task.LastError = err.Error()
		q.pushDead(ctx, task)
	}
}

// runSafely converts a handler panic into an error so one bad task cannot
// take a worker down.
func (q *Queue) runSafely(ctx context.Context, handler Handler, task *Task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("task panic: %v", r)
		}
	}()
	return handler(ctx, task)
}

func (q *Queue) pushDead(ctx context.Context, task *Task) {
	if q.redisAvailable.Load() {
		if raw, merr := json.Marshal(task); merr == nil {
			err := q.client.LPush(ctx, deadLane, raw).Err()
			if err == nil {
				return
			}
			q.markRedisDown(err)
		}
	}
	q.mu.Lock()
	q.memDead = append(q.memDead, task)
	q.mu.Unlock()
}

func (q *Queue) markRedisDown(err error) {
	if q.redisAvailable.CompareAndSwap(true, false) {
		q.logger.Warn().Err(err).Msg("redis error, task queue switching to in-memory fallback")
	}
}
