package database

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
)

// recordingQuerier captures the SQL and bound arguments of the last call so
// query construction can be checked without a live database.
type recordingQuerier struct {
	sql  string
	args []interface{}
	scan func(dest ...interface{}) error
}

func (q *recordingQuerier) Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error) {
	q.sql, q.args = sql, args
	return pgconn.CommandTag{}, nil
}

func (q *recordingQuerier) Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error) {
	q.sql, q.args = sql, args
	return nil, errors.New("not supported")
}

func (q *recordingQuerier) QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row {
	q.sql, q.args = sql, args
	return rowFunc(q.scan)
}

type rowFunc func(dest ...interface{}) error

func (f rowFunc) Scan(dest ...interface{}) error { return f(dest...) }

func TestRealizedPnLTodayWindowStartsAtMidnight(t *testing.T) {
	q := &recordingQuerier{scan: func(dest ...interface{}) error {
		*dest[0].(*decimal.Decimal) = decimal.RequireFromString("-120.5")
		return nil
	}}
	s := &ExecutionStore{q: q}

	now := time.Date(2026, 8, 28, 15, 42, 7, 0, time.UTC)
	total, err := s.RealizedPnLToday(context.Background(), "user1", now)
	if err != nil {
		t.Fatalf("RealizedPnLToday failed: %v", err)
	}
	if !total.Equal(decimal.RequireFromString("-120.5")) {
		t.Errorf("total = %s, want -120.5", total)
	}

	if len(q.args) != 2 {
		t.Fatalf("expected 2 bound args, got %d", len(q.args))
	}
	bound, ok := q.args[1].(time.Time)
	if !ok {
		t.Fatalf("second arg is %T, want time.Time", q.args[1])
	}
	want := time.Date(2026, 8, 28, 0, 0, 0, 0, time.UTC)
	if !bound.Equal(want) {
		t.Errorf("window start = %v, want midnight UTC %v", bound, want)
	}
	if !strings.Contains(q.sql, "closed_at >=") {
		t.Errorf("query must filter on closed_at, got %q", q.sql)
	}
}

func TestStartOfDay(t *testing.T) {
	cases := []struct {
		name string
		in   time.Time
		want time.Time
	}{
		{"midday utc", time.Date(2026, 8, 28, 15, 42, 7, 12, time.UTC), time.Date(2026, 8, 28, 0, 0, 0, 0, time.UTC)},
		{"already midnight", time.Date(2026, 8, 28, 0, 0, 0, 0, time.UTC), time.Date(2026, 8, 28, 0, 0, 0, 0, time.UTC)},
		{"zoned maps to utc day", time.Date(2026, 8, 28, 1, 0, 0, 0, time.FixedZone("UTC+5", 5*3600)), time.Date(2026, 8, 27, 0, 0, 0, 0, time.UTC)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := startOfDay(tc.in); !got.Equal(tc.want) {
				t.Errorf("startOfDay(%v) = %v, want %v", tc.in, got, tc.want)
			}
		})
	}
}
