package detect

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"trendline-trading-bot/internal/market"
)

// memStore is an in-memory TrendlineStore + AlertStore + CandleSource for
// orchestrator tests.
type memStore struct {
	pivots     []Pivot
	trendlines map[int64]*Trendline
	eventLog   []*TrendlineEvent
	alertRows  []*Alert
	series     market.Series
	nextID     int64
}

func newMemStore(series market.Series) *memStore {
	return &memStore{trendlines: make(map[int64]*Trendline), series: series}
}

func (m *memStore) SavePivot(ctx context.Context, p *Pivot) error {
	m.nextID++
	p.ID = m.nextID
	m.pivots = append(m.pivots, *p)
	return nil
}

func (m *memStore) SaveTrendline(ctx context.Context, tl *Trendline) error {
	if tl.ID == 0 {
		m.nextID++
		tl.ID = m.nextID
	}
	cp := *tl
	m.trendlines[tl.ID] = &cp
	return nil
}

func (m *memStore) LiveTrendlines(ctx context.Context, userID, instrument string) ([]*Trendline, error) {
	var out []*Trendline
	for _, tl := range m.trendlines {
		if tl.UserID == userID && tl.Instrument == instrument &&
			(tl.Status == StatusActive || tl.Status == StatusQualifying) {
			cp := *tl
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *memStore) TrendlineByID(ctx context.Context, userID string, id int64) (*Trendline, error) {
	tl, ok := m.trendlines[id]
	if !ok || tl.UserID != userID {
		return nil, fmt.Errorf("trendline %d not found", id)
	}
	cp := *tl
	return &cp, nil
}

func (m *memStore) AppendEvent(ctx context.Context, evt *TrendlineEvent) error {
	m.eventLog = append(m.eventLog, evt)
	return nil
}

func (m *memStore) HasAlert(ctx context.Context, trendlineID int64, typ AlertType) (bool, error) {
	for _, a := range m.alertRows {
		if a.TrendlineID == trendlineID && a.Type == typ {
			return true, nil
		}
	}
	return false, nil
}

func (m *memStore) HasTouchAlert(ctx context.Context, trendlineID int64, candleTime time.Time) (bool, error) {
	for _, a := range m.alertRows {
		if a.TrendlineID == trendlineID && a.Type == AlertTouch && a.CandleTime.Equal(candleTime) {
			return true, nil
		}
	}
	return false, nil
}

func (m *memStore) CreateAlert(ctx context.Context, a *Alert) error {
	m.nextID++
	a.ID = m.nextID
	m.alertRows = append(m.alertRows, a)
	return nil
}

func (m *memStore) Series(ctx context.Context, instrument string, tf market.Timeframe) (market.Series, error) {
	return m.series, nil
}

// touchSeries builds a flat market with support at 100: the low dips to the
// line every 10 candles, all closes stay above it.
func touchSeries(n int) market.Series {
	candles := flatSeries(n, 100)
	for i := 0; i < n; i += 10 {
		candles[i].Low = 100
	}
	market.ComputeATR(candles, market.DefaultATRPeriod)
	return candles
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.PivotLookback = 2
	cfg.TouchToleranceATR = 0.25
	return cfg
}

func newTestOrchestrator(store *memStore) *Orchestrator {
	return NewOrchestrator(store, store, store, nil, testConfig(), DefaultRubric(), zerolog.Nop())
}

func supportLine(t *testing.T, store *memStore) *Trendline {
	t.Helper()
	for _, tl := range store.trendlines {
		if tl.Direction == DirectionSupport {
			return tl
		}
	}
	t.Fatal("no support trendline stored")
	return nil
}

func TestDetectForInstrumentCreatesGradedLines(t *testing.T) {
	store := newMemStore(touchSeries(120))
	o := newTestOrchestrator(store)

	if err := o.DetectForInstrument(context.Background(), "user1", "MNQ"); err != nil {
		t.Fatalf("DetectForInstrument failed: %v", err)
	}

	if len(store.trendlines) == 0 {
		t.Fatal("expected at least one stored trendline")
	}
	tl := supportLine(t, store)
	if tl.Grade == GradeNone {
		t.Error("stored trendline must carry a grade")
	}
	if tl.TouchCount < 2 {
		t.Errorf("expected multiple touches, got %d", tl.TouchCount)
	}
	if tl.Status != StatusQualifying && tl.Status != StatusActive {
		t.Errorf("fresh line should be qualifying or active, got %s", tl.Status)
	}
	if len(store.eventLog) == 0 {
		t.Error("state transitions must append audit events")
	}
	if len(store.pivots) == 0 {
		t.Error("confirmed pivots must be persisted")
	}

	// The line enters at detected and the move to qualifying is audited.
	qualified := false
	for _, evt := range store.eventLog {
		if evt.TrendlineID == tl.ID && evt.OldValue == string(StatusDetected) && evt.NewValue == string(StatusQualifying) {
			qualified = true
		}
	}
	if !qualified {
		t.Error("detected -> qualifying transition must be logged")
	}
}

func TestBreakInvalidatesAndAlertsOnce(t *testing.T) {
	series := touchSeries(120)
	store := newMemStore(series)
	o := newTestOrchestrator(store)

	if err := o.DetectForInstrument(context.Background(), "user1", "MNQ"); err != nil {
		t.Fatalf("DetectForInstrument failed: %v", err)
	}
	tl := supportLine(t, store)

	breaker := market.Candle{
		Instrument: "MNQ",
		Timestamp:  series[len(series)-1].Timestamp.Add(24 * time.Hour),
		Timeframe:  market.Timeframe1d,
		Open:       101, High: 102, Low: 94, Close: 95,
		ATR: 6,
	}

	if err := o.EvaluateAlertsForCandle(context.Background(), "user1", "MNQ", breaker, len(series)); err != nil {
		t.Fatalf("EvaluateAlertsForCandle failed: %v", err)
	}

	got := store.trendlines[tl.ID]
	if got.Status != StatusInvalidated {
		t.Errorf("break should invalidate line, status = %s", got.Status)
	}
	if got.InvalidationReason == "" {
		t.Error("invalidation reason must be recorded")
	}
	if got.SafetyPrice == 0 {
		t.Error("break must compute the safety line price")
	}

	breaks := 0
	for _, a := range store.alertRows {
		if a.TrendlineID == tl.ID && a.Type == AlertBreak {
			breaks++
		}
	}
	if breaks != 1 {
		t.Errorf("expected exactly 1 break alert, got %d", breaks)
	}

	// Re-evaluating must not produce a second break alert: the line is no
	// longer live and the alert is deduplicated per (trendline, type).
	if err := o.EvaluateAlertsForCandle(context.Background(), "user1", "MNQ", breaker, len(series)); err != nil {
		t.Fatalf("second evaluation failed: %v", err)
	}
	breaks = 0
	for _, a := range store.alertRows {
		if a.TrendlineID == tl.ID && a.Type == AlertBreak {
			breaks++
		}
	}
	if breaks != 1 {
		t.Errorf("break alert duplicated: got %d", breaks)
	}
}

func TestTouchAlertDedupPerCandle(t *testing.T) {
	series := touchSeries(120)
	store := newMemStore(series)
	o := newTestOrchestrator(store)

	if err := o.DetectForInstrument(context.Background(), "user1", "MNQ"); err != nil {
		t.Fatalf("DetectForInstrument failed: %v", err)
	}
	tl := supportLine(t, store)

	toucher := market.Candle{
		Instrument: "MNQ",
		Timestamp:  series[len(series)-1].Timestamp.Add(24 * time.Hour),
		Timeframe:  market.Timeframe1d,
		Open:       103, High: 109, Low: 100.5, Close: 104,
		ATR: 6,
	}

	countBefore := store.trendlines[tl.ID].TouchCount

	for i := 0; i < 2; i++ {
		if err := o.EvaluateAlertsForCandle(context.Background(), "user1", "MNQ", toucher, len(series)); err != nil {
			t.Fatalf("evaluation %d failed: %v", i, err)
		}
	}

	touches := 0
	for _, a := range store.alertRows {
		if a.TrendlineID == tl.ID && a.Type == AlertTouch {
			touches++
		}
	}
	if touches != 1 {
		t.Errorf("expected 1 touch alert per (trendline, candle), got %d", touches)
	}

	// Replaying the candle must not double count the touch.
	got := store.trendlines[tl.ID]
	if got.TouchCount != countBefore+1 {
		t.Errorf("TouchCount = %d after replay, want %d", got.TouchCount, countBefore+1)
	}
	last := got.Touches[len(got.Touches)-1]
	if last.Index != len(series) {
		t.Errorf("touch point index = %d, want %d", last.Index, len(series))
	}
}

func TestMarkTraded(t *testing.T) {
	store := newMemStore(touchSeries(120))
	o := newTestOrchestrator(store)

	if err := o.DetectForInstrument(context.Background(), "user1", "MNQ"); err != nil {
		t.Fatalf("DetectForInstrument failed: %v", err)
	}
	tl := supportLine(t, store)

	if err := o.MarkTraded(context.Background(), "user1", tl.ID); err != nil {
		t.Fatalf("MarkTraded failed: %v", err)
	}
	if got := store.trendlines[tl.ID].Status; got != StatusTraded {
		t.Errorf("status = %s, want traded", got)
	}

	// traded -> traded is not a legal transition source.
	if err := o.MarkTraded(context.Background(), "user1", tl.ID); err == nil {
		t.Error("second MarkTraded should fail")
	}

	// Wrong owner must not see the line at all.
	if err := o.MarkTraded(context.Background(), "someone-else", tl.ID); err == nil {
		t.Error("cross-user MarkTraded should fail")
	}
}

func TestExpiryAfterStalePeriod(t *testing.T) {
	series := touchSeries(120)
	store := newMemStore(series)
	o := newTestOrchestrator(store)

	if err := o.DetectForInstrument(context.Background(), "user1", "MNQ"); err != nil {
		t.Fatalf("DetectForInstrument failed: %v", err)
	}
	tl := supportLine(t, store)

	// Age the last touch past the expiry window and re-run detection.
	stored := store.trendlines[tl.ID]
	stored.LastTouchAt = series[len(series)-1].Timestamp.Add(-200 * 24 * time.Hour)

	if err := o.DetectForInstrument(context.Background(), "user1", "MNQ"); err != nil {
		t.Fatalf("second detection pass failed: %v", err)
	}
	if got := store.trendlines[tl.ID].Status; got != StatusExpired {
		t.Errorf("stale line status = %s, want expired", got)
	}
}
