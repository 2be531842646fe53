package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trendline-trading-bot/internal/detect"
	"trendline-trading-bot/internal/execution"
	"trendline-trading-bot/internal/queue"
	"trendline-trading-bot/internal/risk"
)

type enqueued struct {
	lane queue.Lane
	kind string
}

type fakeQueue struct {
	tasks []enqueued
	dead  []*queue.Task
}

func (f *fakeQueue) Enqueue(ctx context.Context, lane queue.Lane, kind string, payload interface{}) (string, error) {
	f.tasks = append(f.tasks, enqueued{lane: lane, kind: kind})
	return "task-1", nil
}

func (f *fakeQueue) Depth(ctx context.Context, lane queue.Lane) (int64, error) { return 0, nil }

func (f *fakeQueue) DeadTasks(ctx context.Context) ([]*queue.Task, error) { return f.dead, nil }

type fakeReaders struct {
	trendlines []*detect.Trendline
	alerts     []*detect.Alert
	positions  []*execution.Position
}

func (f *fakeReaders) LiveTrendlines(ctx context.Context, userID, instrument string) ([]*detect.Trendline, error) {
	return f.trendlines, nil
}

func (f *fakeReaders) RecentAlerts(ctx context.Context, userID string, limit int) ([]*detect.Alert, error) {
	return f.alerts, nil
}

func (f *fakeReaders) OpenPositions(ctx context.Context, userID string) ([]*execution.Position, error) {
	return f.positions, nil
}

type fakeBreaker struct {
	state  risk.BreakerState
	losses int
	resets []string
}

func (f *fakeBreaker) State(ctx context.Context, userID string) (risk.BreakerState, int, error) {
	return f.state, f.losses, nil
}

func (f *fakeBreaker) Reset(ctx context.Context, userID string) error {
	f.resets = append(f.resets, userID)
	return nil
}

func newTestServer() (*Server, *fakeQueue, *fakeReaders, *fakeBreaker) {
	q := &fakeQueue{}
	readers := &fakeReaders{}
	breaker := &fakeBreaker{state: risk.BreakerNormal}
	s := NewServer(ServerConfig{Host: "127.0.0.1", Port: 0, ProductionMode: true},
		q, readers, readers, readers, breaker, nil, zerolog.Nop())
	return s, q, readers, breaker
}

func postJSON(t *testing.T, s *Server, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, req)
	return w
}

func get(t *testing.T, s *Server, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, req)
	return w
}

func TestHealth(t *testing.T) {
	s, _, _, _ := newTestServer()
	w := get(t, s, "/health")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestCreateSignalEnqueuesHighLane(t *testing.T) {
	s, q, _, _ := newTestServer()

	w := postJSON(t, s, "/api/signals", queue.CreateSignalTask{
		UserID:     "user-1",
		Instrument: "MNQ",
		Direction:  "LONG",
		EntryType:  "MARKET",
		EntryPrice: "18500",
		StopPrice:  "18480",
	})

	require.Equal(t, http.StatusAccepted, w.Code)
	require.Len(t, q.tasks, 1)
	assert.Equal(t, queue.LaneHigh, q.tasks[0].lane)
	assert.Equal(t, queue.TaskCreateSignal, q.tasks[0].kind)

	var resp map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "task-1", resp["task_id"])
}

func TestCreateSignalRejectsMissingFields(t *testing.T) {
	s, q, _, _ := newTestServer()

	w := postJSON(t, s, "/api/signals", queue.CreateSignalTask{UserID: "user-1"})

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Empty(t, q.tasks)
}

func TestCandleUpsertValidatesTimestamp(t *testing.T) {
	s, q, _, _ := newTestServer()

	w := postJSON(t, s, "/api/candles", queue.CandleUpsertTask{
		Instrument: "MNQ",
		Timeframe:  "1d",
		Timestamp:  "not-a-time",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = postJSON(t, s, "/api/candles", queue.CandleUpsertTask{
		Instrument: "MNQ",
		Timeframe:  "1d",
		Timestamp:  "2026-08-28T13:30:00Z",
		Open:       18500, High: 18520, Low: 18480, Close: 18510,
	})
	require.Equal(t, http.StatusAccepted, w.Code)
	require.Len(t, q.tasks, 1)
	assert.Equal(t, queue.LaneNormal, q.tasks[0].lane)
}

func TestDetectRequiresUserAndInstrument(t *testing.T) {
	s, q, _, _ := newTestServer()

	w := postJSON(t, s, "/api/detect", queue.DetectTask{Instrument: "MNQ"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = postJSON(t, s, "/api/detect", queue.DetectTask{UserID: "user-1", Instrument: "MNQ", Timeframe: "1d"})
	assert.Equal(t, http.StatusAccepted, w.Code)
	require.Len(t, q.tasks, 1)
	assert.Equal(t, queue.TaskDetect, q.tasks[0].kind)
}

func TestFlattenEnqueuesHighLane(t *testing.T) {
	s, q, _, _ := newTestServer()

	w := postJSON(t, s, "/api/flatten", queue.FlattenTask{UserID: "user-1"})
	require.Equal(t, http.StatusAccepted, w.Code)
	require.Len(t, q.tasks, 1)
	assert.Equal(t, queue.LaneHigh, q.tasks[0].lane)
	assert.Equal(t, queue.TaskFlatten, q.tasks[0].kind)
}

func TestListPositions(t *testing.T) {
	s, _, readers, _ := newTestServer()
	readers.positions = []*execution.Position{{
		UserID:     "user-1",
		Instrument: "MNQ",
		Direction:  execution.DirectionLong,
		Quantity:   2,
		EntryPrice: decimal.RequireFromString("18500"),
		Status:     execution.PositionOpen,
	}}

	w := get(t, s, "/api/positions?user_id=user-1")
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Positions []*execution.Position `json:"positions"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Positions, 1)
	assert.Equal(t, "MNQ", resp.Positions[0].Instrument)
}

func TestListPositionsRequiresUser(t *testing.T) {
	s, _, _, _ := newTestServer()
	w := get(t, s, "/api/positions")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestBreakerStateAndReset(t *testing.T) {
	s, _, _, breaker := newTestServer()
	breaker.state = risk.BreakerTripped
	breaker.losses = 3

	w := get(t, s, "/api/breaker?user_id=user-1")
	require.Equal(t, http.StatusOK, w.Code)

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, string(risk.BreakerTripped), resp["state"])
	assert.Equal(t, float64(3), resp["consecutive_losses"])

	w = postJSON(t, s, "/api/breaker/reset", map[string]string{"user_id": "user-1"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []string{"user-1"}, breaker.resets)
}

func TestDeadTasksEndpoint(t *testing.T) {
	s, q, _, _ := newTestServer()
	q.dead = []*queue.Task{{ID: "t1", Kind: "flaky", LastError: "boom"}}

	w := get(t, s, "/api/queue/dead")
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Tasks []*queue.Task `json:"tasks"`
		Count int           `json:"count"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 1, resp.Count)
	assert.Equal(t, "flaky", resp.Tasks[0].Kind)
}
