package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"trendline-trading-bot/internal/detect"
)

var ErrTrendlineNotFound = errors.New("trendline not found")

// TrendlineRepository persists pivots, trendlines and the append-only event
// trail. Anchors and touch points go to JSONB columns; the queryable scalars
// stay relational.
type TrendlineRepository struct {
	q Querier
}

func NewTrendlineRepository(q Querier) *TrendlineRepository {
	return &TrendlineRepository{q: q}
}

func (r *TrendlineRepository) SavePivot(ctx context.Context, p *detect.Pivot) error {
	query := `
		INSERT INTO pivots (instrument, candle_index, candle_ts, price, pivot_type, lookback)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id`

	err := r.q.QueryRow(ctx, query,
		p.Instrument, p.CandleIndex, p.Timestamp, p.Price, string(p.Type), p.Lookback,
	).Scan(&p.ID)
	if err != nil {
		return fmt.Errorf("save pivot: %w", err)
	}
	return nil
}

func (r *TrendlineRepository) SaveTrendline(ctx context.Context, tl *detect.Trendline) error {
	anchor1, err := json.Marshal(tl.Anchor1)
	if err != nil {
		return fmt.Errorf("marshal anchor1: %w", err)
	}
	anchor2, err := json.Marshal(tl.Anchor2)
	if err != nil {
		return fmt.Errorf("marshal anchor2: %w", err)
	}
	touches, err := json.Marshal(tl.Touches)
	if err != nil {
		return fmt.Errorf("marshal touches: %w", err)
	}

	now := time.Now().UTC()
	tl.UpdatedAt = now

	if tl.ID == 0 {
		tl.CreatedAt = now
		query := `
			INSERT INTO trendlines (
				user_id, instrument, direction, anchor1, anchor2,
				slope, slope_degrees, touch_count, touches, spacing_quality,
				score, duration_days, projected_price, safety_price, grade,
				status, invalidation_reason, last_touch_at, created_at, updated_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10,
				$11, $12, $13, $14, $15, $16, $17, $18, $19, $20)
			RETURNING id`
		return r.q.QueryRow(ctx, query,
			tl.UserID, tl.Instrument, string(tl.Direction), anchor1, anchor2,
			tl.Slope, tl.SlopeDegrees, tl.TouchCount, touches, tl.SpacingQuality,
			tl.Score, tl.DurationDays, tl.ProjectedPrice, tl.SafetyPrice, string(tl.Grade),
			string(tl.Status), tl.InvalidationReason, nullTime(tl.LastTouchAt), tl.CreatedAt, tl.UpdatedAt,
		).Scan(&tl.ID)
	}

	query := `
		UPDATE trendlines SET
			slope = $1, slope_degrees = $2, touch_count = $3, touches = $4,
			spacing_quality = $5, score = $6, duration_days = $7,
			projected_price = $8, safety_price = $9, grade = $10, status = $11,
			invalidation_reason = $12, last_touch_at = $13, updated_at = $14
		WHERE id = $15 AND user_id = $16`
	tag, err := r.q.Exec(ctx, query,
		tl.Slope, tl.SlopeDegrees, tl.TouchCount, touches,
		tl.SpacingQuality, tl.Score, tl.DurationDays,
		tl.ProjectedPrice, tl.SafetyPrice, string(tl.Grade), string(tl.Status),
		tl.InvalidationReason, nullTime(tl.LastTouchAt), tl.UpdatedAt,
		tl.ID, tl.UserID)
	if err != nil {
		return fmt.Errorf("update trendline %d: %w", tl.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrTrendlineNotFound
	}
	return nil
}

func (r *TrendlineRepository) LiveTrendlines(ctx context.Context, userID, instrument string) ([]*detect.Trendline, error) {
	query := trendlineSelect + `
		WHERE user_id = $1 AND instrument = $2 AND status IN ('active', 'qualifying')
		ORDER BY score DESC`
	rows, err := r.q.Query(ctx, query, userID, instrument)
	if err != nil {
		return nil, fmt.Errorf("query live trendlines: %w", err)
	}
	defer rows.Close()
	return scanTrendlines(rows)
}

func (r *TrendlineRepository) TrendlineByID(ctx context.Context, userID string, id int64) (*detect.Trendline, error) {
	query := trendlineSelect + ` WHERE id = $1 AND user_id = $2`
	rows, err := r.q.Query(ctx, query, id, userID)
	if err != nil {
		return nil, fmt.Errorf("query trendline %d: %w", id, err)
	}
	defer rows.Close()

	lines, err := scanTrendlines(rows)
	if err != nil {
		return nil, err
	}
	if len(lines) == 0 {
		return nil, ErrTrendlineNotFound
	}
	return lines[0], nil
}

func (r *TrendlineRepository) AppendEvent(ctx context.Context, evt *detect.TrendlineEvent) error {
	query := `
		INSERT INTO trendline_events (trendline_id, field, old_value, new_value, reason)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at`
	err := r.q.QueryRow(ctx, query,
		evt.TrendlineID, evt.Field, evt.OldValue, evt.NewValue, evt.Reason,
	).Scan(&evt.ID, &evt.CreatedAt)
	if err != nil {
		return fmt.Errorf("append trendline event: %w", err)
	}
	return nil
}

const trendlineSelect = `
	SELECT id, user_id, instrument, direction, anchor1, anchor2,
		slope, slope_degrees, touch_count, touches, spacing_quality,
		score, duration_days, projected_price, safety_price, grade,
		status, invalidation_reason, last_touch_at, created_at, updated_at
	FROM trendlines`

func scanTrendlines(rows pgx.Rows) ([]*detect.Trendline, error) {
	var out []*detect.Trendline
	for rows.Next() {
		var tl detect.Trendline
		var direction, grade, status string
		var anchor1, anchor2, touches []byte
		var lastTouch *time.Time

		if err := rows.Scan(&tl.ID, &tl.UserID, &tl.Instrument, &direction, &anchor1, &anchor2,
			&tl.Slope, &tl.SlopeDegrees, &tl.TouchCount, &touches, &tl.SpacingQuality,
			&tl.Score, &tl.DurationDays, &tl.ProjectedPrice, &tl.SafetyPrice, &grade,
			&status, &tl.InvalidationReason, &lastTouch, &tl.CreatedAt, &tl.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan trendline: %w", err)
		}
		tl.Direction = detect.Direction(direction)
		tl.Grade = detect.Grade(grade)
		tl.Status = detect.TrendlineStatus(status)
		if lastTouch != nil {
			tl.LastTouchAt = *lastTouch
		}
		if err := json.Unmarshal(anchor1, &tl.Anchor1); err != nil {
			return nil, fmt.Errorf("unmarshal anchor1: %w", err)
		}
		if err := json.Unmarshal(anchor2, &tl.Anchor2); err != nil {
			return nil, fmt.Errorf("unmarshal anchor2: %w", err)
		}
		if len(touches) > 0 {
			if err := json.Unmarshal(touches, &tl.Touches); err != nil {
				return nil, fmt.Errorf("unmarshal touches: %w", err)
			}
		}
		out = append(out, &tl)
	}
	return out, rows.Err()
}

// nullTime maps the zero time to NULL.
func nullTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
