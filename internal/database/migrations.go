package database

import (
	"context"
	"fmt"
)

// RunMigrations creates the schema. Statements are idempotent so startup can
// always run the full list.
func (db *DB) RunMigrations(ctx context.Context) error {
	db.logger.Info().Msg("running database migrations")

	migrations := []string{
		`CREATE TABLE IF NOT EXISTS candles (
			id BIGSERIAL PRIMARY KEY,
			instrument VARCHAR(20) NOT NULL,
			ts TIMESTAMPTZ NOT NULL,
			timeframe VARCHAR(8) NOT NULL,
			open DOUBLE PRECISION NOT NULL,
			high DOUBLE PRECISION NOT NULL,
			low DOUBLE PRECISION NOT NULL,
			close DOUBLE PRECISION NOT NULL,
			volume DOUBLE PRECISION NOT NULL DEFAULT 0,
			atr DOUBLE PRECISION NOT NULL DEFAULT 0,
			UNIQUE (instrument, ts, timeframe)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_candles_lookup ON candles (instrument, timeframe, ts)`,

		`CREATE TABLE IF NOT EXISTS pivots (
			id BIGSERIAL PRIMARY KEY,
			instrument VARCHAR(20) NOT NULL,
			candle_index INT NOT NULL,
			candle_ts TIMESTAMPTZ,
			price DOUBLE PRECISION NOT NULL,
			pivot_type VARCHAR(8) NOT NULL,
			lookback INT NOT NULL DEFAULT 0,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,

		`CREATE TABLE IF NOT EXISTS trendlines (
			id BIGSERIAL PRIMARY KEY,
			user_id VARCHAR(64) NOT NULL,
			instrument VARCHAR(20) NOT NULL,
			direction VARCHAR(12) NOT NULL,
			anchor1 JSONB NOT NULL,
			anchor2 JSONB NOT NULL,
			slope DOUBLE PRECISION NOT NULL,
			slope_degrees DOUBLE PRECISION NOT NULL,
			touch_count INT NOT NULL DEFAULT 0,
			touches JSONB NOT NULL DEFAULT '[]',
			spacing_quality DOUBLE PRECISION NOT NULL DEFAULT 0,
			score DOUBLE PRECISION NOT NULL DEFAULT 0,
			duration_days INT NOT NULL DEFAULT 0,
			projected_price DOUBLE PRECISION NOT NULL DEFAULT 0,
			safety_price DOUBLE PRECISION NOT NULL DEFAULT 0,
			grade VARCHAR(4) NOT NULL DEFAULT '',
			status VARCHAR(16) NOT NULL,
			invalidation_reason TEXT NOT NULL DEFAULT '',
			last_touch_at TIMESTAMPTZ,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_trendlines_live
			ON trendlines (user_id, instrument, status)`,

		`CREATE TABLE IF NOT EXISTS trendline_events (
			id BIGSERIAL PRIMARY KEY,
			trendline_id BIGINT NOT NULL REFERENCES trendlines(id),
			field VARCHAR(32) NOT NULL,
			old_value TEXT NOT NULL DEFAULT '',
			new_value TEXT NOT NULL DEFAULT '',
			reason TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,

		`CREATE TABLE IF NOT EXISTS alerts (
			id BIGSERIAL PRIMARY KEY,
			user_id VARCHAR(64) NOT NULL,
			trendline_id BIGINT NOT NULL,
			instrument VARCHAR(20) NOT NULL,
			alert_type VARCHAR(16) NOT NULL,
			direction VARCHAR(12) NOT NULL DEFAULT '',
			price DOUBLE PRECISION NOT NULL DEFAULT 0,
			message TEXT NOT NULL DEFAULT '',
			candle_ts TIMESTAMPTZ,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_alerts_dedup
			ON alerts (trendline_id, alert_type)`,

		`CREATE TABLE IF NOT EXISTS signals (
			id BIGSERIAL PRIMARY KEY,
			user_id VARCHAR(64) NOT NULL,
			instrument VARCHAR(20) NOT NULL,
			direction VARCHAR(8) NOT NULL,
			entry_type VARCHAR(8) NOT NULL,
			entry_price DECIMAL(20, 8) NOT NULL,
			stop_price DECIMAL(20, 8) NOT NULL DEFAULT 0,
			target_price DECIMAL(20, 8) NOT NULL DEFAULT 0,
			quantity INT NOT NULL DEFAULT 0,
			trendline_id BIGINT NOT NULL DEFAULT 0,
			risk_distance DECIMAL(20, 8) NOT NULL DEFAULT 0,
			risk_reward DOUBLE PRECISION NOT NULL DEFAULT 0,
			status VARCHAR(16) NOT NULL,
			reject_reason TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_signals_user_status ON signals (user_id, status)`,

		`CREATE TABLE IF NOT EXISTS risk_check_audits (
			id BIGSERIAL PRIMARY KEY,
			signal_id BIGINT NOT NULL,
			user_id VARCHAR(64) NOT NULL,
			check_name VARCHAR(40) NOT NULL,
			result VARCHAR(8) NOT NULL,
			actual_value TEXT NOT NULL DEFAULT '',
			threshold_value TEXT NOT NULL DEFAULT '',
			details JSONB,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_risk_audits_signal ON risk_check_audits (signal_id)`,

		`CREATE TABLE IF NOT EXISTS orders (
			id BIGSERIAL PRIMARY KEY,
			user_id VARCHAR(64) NOT NULL,
			signal_id BIGINT NOT NULL,
			bracket_group_id VARCHAR(64) NOT NULL,
			broker_order_id VARCHAR(64) NOT NULL DEFAULT '',
			instrument VARCHAR(20) NOT NULL,
			role VARCHAR(16) NOT NULL,
			side VARCHAR(4) NOT NULL,
			order_type VARCHAR(8) NOT NULL,
			price DECIMAL(20, 8) NOT NULL DEFAULT 0,
			quantity INT NOT NULL,
			filled_quantity INT NOT NULL DEFAULT 0,
			avg_fill_price DECIMAL(20, 8) NOT NULL DEFAULT 0,
			status VARCHAR(16) NOT NULL,
			reason TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_orders_broker ON orders (broker_order_id)`,
		`CREATE INDEX IF NOT EXISTS idx_orders_group ON orders (bracket_group_id)`,
		`CREATE INDEX IF NOT EXISTS idx_orders_user_status ON orders (user_id, status)`,

		`CREATE TABLE IF NOT EXISTS order_events (
			id BIGSERIAL PRIMARY KEY,
			order_id BIGINT NOT NULL,
			from_status VARCHAR(16) NOT NULL,
			to_status VARCHAR(16) NOT NULL,
			reason TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,

		`CREATE TABLE IF NOT EXISTS positions (
			id BIGSERIAL PRIMARY KEY,
			user_id VARCHAR(64) NOT NULL,
			signal_id BIGINT NOT NULL,
			instrument VARCHAR(20) NOT NULL,
			direction VARCHAR(8) NOT NULL,
			quantity INT NOT NULL,
			entry_price DECIMAL(20, 8) NOT NULL,
			stop_price DECIMAL(20, 8) NOT NULL DEFAULT 0,
			target_price DECIMAL(20, 8) NOT NULL DEFAULT 0,
			current_price DECIMAL(20, 8) NOT NULL DEFAULT 0,
			exit_price DECIMAL(20, 8) NOT NULL DEFAULT 0,
			unrealized_pnl DECIMAL(20, 8) NOT NULL DEFAULT 0,
			realized_pnl DECIMAL(20, 8) NOT NULL DEFAULT 0,
			r_multiple DECIMAL(20, 8) NOT NULL DEFAULT 0,
			mae_price DECIMAL(20, 8) NOT NULL DEFAULT 0,
			mfe_price DECIMAL(20, 8) NOT NULL DEFAULT 0,
			mae_r DECIMAL(20, 8) NOT NULL DEFAULT 0,
			mfe_r DECIMAL(20, 8) NOT NULL DEFAULT 0,
			status VARCHAR(8) NOT NULL,
			exit_reason VARCHAR(16) NOT NULL DEFAULT '',
			opened_at TIMESTAMPTZ NOT NULL,
			closed_at TIMESTAMPTZ
		)`,
		`CREATE INDEX IF NOT EXISTS idx_positions_user_status ON positions (user_id, status)`,
		`CREATE INDEX IF NOT EXISTS idx_positions_signal ON positions (signal_id)`,
	}

	for i, stmt := range migrations {
		if _, err := db.Pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migration %d failed: %w", i, err)
		}
	}

	db.logger.Info().Int("statements", len(migrations)).Msg("migrations complete")
	return nil
}
