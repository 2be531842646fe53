package database

import (
	"context"
	"fmt"
	"time"

	"trendline-trading-bot/internal/detect"
)

// AlertRepository persists alert rows and answers the dedup existence
// queries the detection engine runs before emitting.
type AlertRepository struct {
	q Querier
}

func NewAlertRepository(q Querier) *AlertRepository {
	return &AlertRepository{q: q}
}

func (r *AlertRepository) HasAlert(ctx context.Context, trendlineID int64, typ detect.AlertType) (bool, error) {
	var exists bool
	err := r.q.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM alerts WHERE trendline_id = $1 AND alert_type = $2)`,
		trendlineID, string(typ),
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("alert exists: %w", err)
	}
	return exists, nil
}

func (r *AlertRepository) HasTouchAlert(ctx context.Context, trendlineID int64, candleTime time.Time) (bool, error) {
	var exists bool
	err := r.q.QueryRow(ctx,
		`SELECT EXISTS (
			SELECT 1 FROM alerts
			WHERE trendline_id = $1 AND alert_type = $2 AND candle_ts = $3)`,
		trendlineID, string(detect.AlertTouch), candleTime,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("touch alert exists: %w", err)
	}
	return exists, nil
}

func (r *AlertRepository) CreateAlert(ctx context.Context, a *detect.Alert) error {
	query := `
		INSERT INTO alerts (user_id, trendline_id, instrument, alert_type, direction, price, message, candle_ts)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at`
	err := r.q.QueryRow(ctx, query,
		a.UserID, a.TrendlineID, a.Instrument, string(a.Type), string(a.Direction),
		a.Price, a.Message, nullTime(a.CandleTime),
	).Scan(&a.ID, &a.CreatedAt)
	if err != nil {
		return fmt.Errorf("create alert: %w", err)
	}
	return nil
}

// RecentAlerts lists a user's latest alerts for the API.
func (r *AlertRepository) RecentAlerts(ctx context.Context, userID string, limit int) ([]*detect.Alert, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `
		SELECT id, user_id, trendline_id, instrument, alert_type, direction, price, message, candle_ts, created_at
		FROM alerts
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2`
	rows, err := r.q.Query(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("query alerts: %w", err)
	}
	defer rows.Close()

	var out []*detect.Alert
	for rows.Next() {
		var a detect.Alert
		var typ, direction string
		var candleTS *time.Time
		if err := rows.Scan(&a.ID, &a.UserID, &a.TrendlineID, &a.Instrument,
			&typ, &direction, &a.Price, &a.Message, &candleTS, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan alert: %w", err)
		}
		a.Type = detect.AlertType(typ)
		a.Direction = detect.Direction(direction)
		if candleTS != nil {
			a.CandleTime = *candleTS
		}
		out = append(out, &a)
	}
	return out, rows.Err()
}
