package database

import (
	"context"
	"fmt"

	"trendline-trading-bot/internal/market"
)

// CandleRepository stores OHLCV candles. The upsert is keyed on
// (instrument, ts, timeframe) so feeding the same bar twice is harmless.
type CandleRepository struct {
	q Querier
}

func NewCandleRepository(q Querier) *CandleRepository {
	return &CandleRepository{q: q}
}

// Upsert inserts or refreshes one candle.
func (r *CandleRepository) Upsert(ctx context.Context, c *market.Candle) error {
	query := `
		INSERT INTO candles (instrument, ts, timeframe, open, high, low, close, volume, atr)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (instrument, ts, timeframe) DO UPDATE SET
			open = EXCLUDED.open,
			high = EXCLUDED.high,
			low = EXCLUDED.low,
			close = EXCLUDED.close,
			volume = EXCLUDED.volume,
			atr = EXCLUDED.atr`

	_, err := r.q.Exec(ctx, query,
		c.Instrument, c.Timestamp, string(c.Timeframe),
		c.Open, c.High, c.Low, c.Close, c.Volume, c.ATR)
	if err != nil {
		return fmt.Errorf("upsert candle: %w", err)
	}
	return nil
}

// Series loads the full candle history for one instrument and timeframe in
// ascending time order. Implements the detection engine's CandleSource.
func (r *CandleRepository) Series(ctx context.Context, instrument string, tf market.Timeframe) (market.Series, error) {
	query := `
		SELECT instrument, ts, timeframe, open, high, low, close, volume, atr
		FROM candles
		WHERE instrument = $1 AND timeframe = $2
		ORDER BY ts ASC`

	rows, err := r.q.Query(ctx, query, instrument, string(tf))
	if err != nil {
		return nil, fmt.Errorf("query candles: %w", err)
	}
	defer rows.Close()

	var series market.Series
	for rows.Next() {
		var c market.Candle
		var timeframe string
		if err := rows.Scan(&c.Instrument, &c.Timestamp, &timeframe,
			&c.Open, &c.High, &c.Low, &c.Close, &c.Volume, &c.ATR); err != nil {
			return nil, fmt.Errorf("scan candle: %w", err)
		}
		c.Timeframe = market.Timeframe(timeframe)
		series = append(series, c)
	}
	return series, rows.Err()
}
