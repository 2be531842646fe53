package queue

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestQueue(t *testing.T) *Queue {
	t.Helper()
	q := NewQueue(nil, 2, zerolog.Nop())
	q.newBackOff = func() backoff.BackOff { return &backoff.ZeroBackOff{} }
	return q
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

func TestEnqueueDispatchesToHandler(t *testing.T) {
	q := newTestQueue(t)

	var got atomic.Value
	q.Register("echo", func(ctx context.Context, task *Task) error {
		var payload map[string]string
		if err := json.Unmarshal(task.Payload, &payload); err != nil {
			return err
		}
		got.Store(payload["msg"])
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	q.Start(ctx, 1)

	id, err := q.Enqueue(ctx, LaneNormal, "echo", map[string]string{"msg": "hello"})
	require.NoError(t, err)
	require.NotEmpty(t, id)

	waitFor(t, func() bool { return got.Load() != nil })
	assert.Equal(t, "hello", got.Load())

	cancel()
	q.Wait()
}

func TestHighLaneDrainsFirst(t *testing.T) {
	q := newTestQueue(t)

	var order []string
	done := make(chan struct{})
	q.Register("record", func(ctx context.Context, task *Task) error {
		var payload map[string]string
		_ = json.Unmarshal(task.Payload, &payload)
		order = append(order, payload["lane"])
		if len(order) == 3 {
			close(done)
		}
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Enqueue before starting the worker so priority decides the order.
	_, err := q.Enqueue(ctx, LaneLow, "record", map[string]string{"lane": "low"})
	require.NoError(t, err)
	_, err = q.Enqueue(ctx, LaneNormal, "record", map[string]string{"lane": "normal"})
	require.NoError(t, err)
	_, err = q.Enqueue(ctx, LaneHigh, "record", map[string]string{"lane": "high"})
	require.NoError(t, err)

	q.Start(ctx, 1)
	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("tasks not processed in time")
	}
	cancel()
	q.Wait()

	assert.Equal(t, []string{"high", "normal", "low"}, order)
}

func TestFailingTaskGoesToDeadLetter(t *testing.T) {
	q := newTestQueue(t)

	var attempts atomic.Int32
	q.Register("flaky", func(ctx context.Context, task *Task) error {
		attempts.Add(1)
		return assert.AnError
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	q.Start(ctx, 1)

	_, err := q.Enqueue(ctx, LaneHigh, "flaky", map[string]string{})
	require.NoError(t, err)

	waitFor(t, func() bool {
		dead, derr := q.DeadTasks(ctx)
		return derr == nil && len(dead) == 1
	})
	cancel()
	q.Wait()

	// maxRetries 2 means one initial attempt plus two retries.
	assert.Equal(t, int32(3), attempts.Load())

	dead, err := q.DeadTasks(ctx)
	require.NoError(t, err)
	require.Len(t, dead, 1)
	assert.Equal(t, "flaky", dead[0].Kind)
	assert.Contains(t, dead[0].LastError, assert.AnError.Error())
}

func TestPanickingHandlerIsIsolated(t *testing.T) {
	q := newTestQueue(t)

	var okRan atomic.Bool
	q.Register("boom", func(ctx context.Context, task *Task) error {
		panic("exploded")
	})
	q.Register("ok", func(ctx context.Context, task *Task) error {
		okRan.Store(true)
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	q.Start(ctx, 1)

	_, err := q.Enqueue(ctx, LaneHigh, "boom", map[string]string{})
	require.NoError(t, err)
	_, err = q.Enqueue(ctx, LaneHigh, "ok", map[string]string{})
	require.NoError(t, err)

	waitFor(t, func() bool { return okRan.Load() })
	cancel()
	q.Wait()

	dead, err := q.DeadTasks(ctx)
	require.NoError(t, err)
	require.Len(t, dead, 1)
	assert.Contains(t, dead[0].LastError, "task panic")
}

func TestUnknownKindGoesToDeadLetter(t *testing.T) {
	q := newTestQueue(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	q.Start(ctx, 1)

	_, err := q.Enqueue(ctx, LaneNormal, "nobody-home", map[string]string{})
	require.NoError(t, err)

	waitFor(t, func() bool {
		dead, derr := q.DeadTasks(ctx)
		return derr == nil && len(dead) == 1
	})
	cancel()
	q.Wait()
}

func TestDepthCountsWaitingTasks(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := q.Enqueue(ctx, LaneLow, "any", map[string]string{})
		require.NoError(t, err)
	}
	n, err := q.Depth(ctx, LaneLow)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
}
