package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"trendline-trading-bot/internal/execution"
)

var (
	ErrSignalNotFound   = errors.New("signal not found")
	ErrOrderNotFound    = errors.New("order not found")
	ErrPositionNotFound = errors.New("position not found")
)

// ExecutionStore implements the execution pipeline's persistence contract on
// pgx. A store built from the pool hands out tx-bound copies via InTx, so the
// same queries run inside or outside a transaction.
type ExecutionStore struct {
	q  Querier
	db *DB // nil for tx-bound copies
}

func NewExecutionStore(db *DB) *ExecutionStore {
	return &ExecutionStore{q: db.Pool, db: db}
}

// InTx runs fn against a transactional copy of the store. Nested calls reuse
// the surrounding transaction.
func (s *ExecutionStore) InTx(ctx context.Context, fn func(execution.Store) error) error {
	if s.db == nil {
		return fn(s)
	}
	return s.db.WithTx(ctx, func(tx pgx.Tx) error {
		return fn(&ExecutionStore{q: tx})
	})
}

// --- signals ---

func (s *ExecutionStore) CreateSignal(ctx context.Context, sig *execution.Signal) error {
	now := time.Now().UTC()
	sig.CreatedAt = now
	sig.UpdatedAt = now
	query := `
		INSERT INTO signals (
			user_id, instrument, direction, entry_type, entry_price,
			stop_price, target_price, quantity, trendline_id,
			risk_distance, risk_reward, status, reject_reason, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		RETURNING id`
	err := s.q.QueryRow(ctx, query,
		sig.UserID, sig.Instrument, string(sig.Direction), string(sig.EntryType), sig.EntryPrice,
		sig.StopPrice, sig.TargetPrice, sig.Quantity, sig.TrendlineID,
		sig.RiskDistance, sig.RiskReward, string(sig.Status), sig.RejectReason, sig.CreatedAt, sig.UpdatedAt,
	).Scan(&sig.ID)
	if err != nil {
		return fmt.Errorf("create signal: %w", err)
	}
	return nil
}

func (s *ExecutionStore) UpdateSignal(ctx context.Context, sig *execution.Signal) error {
	sig.UpdatedAt = time.Now().UTC()
	query := `
		UPDATE signals SET
			entry_price = $1, stop_price = $2, target_price = $3, quantity = $4,
			risk_distance = $5, risk_reward = $6, status = $7, reject_reason = $8,
			updated_at = $9
		WHERE id = $10 AND user_id = $11`
	tag, err := s.q.Exec(ctx, query,
		sig.EntryPrice, sig.StopPrice, sig.TargetPrice, sig.Quantity,
		sig.RiskDistance, sig.RiskReward, string(sig.Status), sig.RejectReason,
		sig.UpdatedAt, sig.ID, sig.UserID)
	if err != nil {
		return fmt.Errorf("update signal %d: %w", sig.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrSignalNotFound
	}
	return nil
}

func (s *ExecutionStore) SignalByID(ctx context.Context, userID string, id int64) (*execution.Signal, error) {
	query := `
		SELECT id, user_id, instrument, direction, entry_type, entry_price,
			stop_price, target_price, quantity, trendline_id,
			risk_distance, risk_reward, status, reject_reason, created_at, updated_at
		FROM signals
		WHERE id = $1 AND user_id = $2`
	var sig execution.Signal
	var direction, entryType, status string
	err := s.q.QueryRow(ctx, query, id, userID).Scan(
		&sig.ID, &sig.UserID, &sig.Instrument, &direction, &entryType, &sig.EntryPrice,
		&sig.StopPrice, &sig.TargetPrice, &sig.Quantity, &sig.TrendlineID,
		&sig.RiskDistance, &sig.RiskReward, &status, &sig.RejectReason, &sig.CreatedAt, &sig.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSignalNotFound
		}
		return nil, fmt.Errorf("query signal %d: %w", id, err)
	}
	sig.Direction = execution.Direction(direction)
	sig.EntryType = execution.EntryType(entryType)
	sig.Status = execution.SignalStatus(status)
	return &sig, nil
}

// --- orders ---

const orderSelect = `
	SELECT id, user_id, signal_id, bracket_group_id, broker_order_id, instrument,
		role, side, order_type, price, quantity, filled_quantity, avg_fill_price,
		status, reason, created_at, updated_at
	FROM orders`

func (s *ExecutionStore) CreateOrder(ctx context.Context, o *execution.Order) error {
	now := time.Now().UTC()
	o.CreatedAt = now
	o.UpdatedAt = now
	query := `
		INSERT INTO orders (
			user_id, signal_id, bracket_group_id, broker_order_id, instrument,
			role, side, order_type, price, quantity, filled_quantity, avg_fill_price,
			status, reason, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		RETURNING id`
	err := s.q.QueryRow(ctx, query,
		o.UserID, o.SignalID, o.BracketGroupID, o.BrokerOrderID, o.Instrument,
		string(o.Role), string(o.Side), string(o.Type), o.Price, o.Quantity,
		o.FilledQuantity, o.AvgFillPrice, string(o.Status), o.Reason, o.CreatedAt, o.UpdatedAt,
	).Scan(&o.ID)
	if err != nil {
		return fmt.Errorf("create order: %w", err)
	}
	return nil
}

func (s *ExecutionStore) UpdateOrder(ctx context.Context, o *execution.Order) error {
	o.UpdatedAt = time.Now().UTC()
	query := `
		UPDATE orders SET
			broker_order_id = $1, price = $2, quantity = $3,
			filled_quantity = $4, avg_fill_price = $5, status = $6, reason = $7,
			updated_at = $8
		WHERE id = $9`
	tag, err := s.q.Exec(ctx, query,
		o.BrokerOrderID, o.Price, o.Quantity,
		o.FilledQuantity, o.AvgFillPrice, string(o.Status), o.Reason,
		o.UpdatedAt, o.ID)
	if err != nil {
		return fmt.Errorf("update order %d: %w", o.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrOrderNotFound
	}
	return nil
}

func (s *ExecutionStore) OrderByBrokerID(ctx context.Context, brokerOrderID string) (*execution.Order, error) {
	rows, err := s.q.Query(ctx, orderSelect+` WHERE broker_order_id = $1`, brokerOrderID)
	if err != nil {
		return nil, fmt.Errorf("query order by broker id: %w", err)
	}
	defer rows.Close()

	orders, err := scanOrders(rows)
	if err != nil {
		return nil, err
	}
	if len(orders) == 0 {
		return nil, ErrOrderNotFound
	}
	return orders[0], nil
}

func (s *ExecutionStore) OrdersByBracketGroup(ctx context.Context, bracketGroupID string) ([]*execution.Order, error) {
	rows, err := s.q.Query(ctx, orderSelect+` WHERE bracket_group_id = $1 ORDER BY id`, bracketGroupID)
	if err != nil {
		return nil, fmt.Errorf("query bracket orders: %w", err)
	}
	defer rows.Close()
	return scanOrders(rows)
}

func (s *ExecutionStore) OrdersByStatus(ctx context.Context, userID string, status execution.OrderStatus) ([]*execution.Order, error) {
	rows, err := s.q.Query(ctx, orderSelect+` WHERE user_id = $1 AND status = $2 ORDER BY id`, userID, string(status))
	if err != nil {
		return nil, fmt.Errorf("query orders by status: %w", err)
	}
	defer rows.Close()
	return scanOrders(rows)
}

func (s *ExecutionStore) AppendOrderEvent(ctx context.Context, evt *execution.OrderEvent) error {
	query := `
		INSERT INTO order_events (order_id, from_status, to_status, reason)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at`
	err := s.q.QueryRow(ctx, query,
		evt.OrderID, string(evt.FromStatus), string(evt.ToStatus), evt.Reason,
	).Scan(&evt.ID, &evt.CreatedAt)
	if err != nil {
		return fmt.Errorf("append order event: %w", err)
	}
	return nil
}

func scanOrders(rows pgx.Rows) ([]*execution.Order, error) {
	var out []*execution.Order
	for rows.Next() {
		var o execution.Order
		var role, side, otype, status string
		if err := rows.Scan(&o.ID, &o.UserID, &o.SignalID, &o.BracketGroupID, &o.BrokerOrderID,
			&o.Instrument, &role, &side, &otype, &o.Price, &o.Quantity,
			&o.FilledQuantity, &o.AvgFillPrice, &status, &o.Reason, &o.CreatedAt, &o.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		o.Role = execution.OrderRole(role)
		o.Side = execution.OrderSide(side)
		o.Type = execution.OrderType(otype)
		o.Status = execution.OrderStatus(status)
		out = append(out, &o)
	}
	return out, rows.Err()
}

// --- positions ---

const positionSelect = `
	SELECT id, user_id, signal_id, instrument, direction, quantity,
		entry_price, stop_price, target_price, current_price, exit_price,
		unrealized_pnl, realized_pnl, r_multiple,
		mae_price, mfe_price, mae_r, mfe_r,
		status, exit_reason, opened_at, closed_at
	FROM positions`

func (s *ExecutionStore) CreatePosition(ctx context.Context, p *execution.Position) error {
	query := `
		INSERT INTO positions (
			user_id, signal_id, instrument, direction, quantity,
			entry_price, stop_price, target_price, current_price, exit_price,
			unrealized_pnl, realized_pnl, r_multiple,
			mae_price, mfe_price, mae_r, mfe_r,
			status, exit_reason, opened_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10,
			$11, $12, $13, $14, $15, $16, $17, $18, $19, $20)
		RETURNING id`
	err := s.q.QueryRow(ctx, query,
		p.UserID, p.SignalID, p.Instrument, string(p.Direction), p.Quantity,
		p.EntryPrice, p.StopPrice, p.TargetPrice, p.CurrentPrice, p.ExitPrice,
		p.UnrealizedPnL, p.RealizedPnL, p.RMultiple,
		p.MAEPrice, p.MFEPrice, p.MAER, p.MFER,
		string(p.Status), string(p.ExitReason), p.OpenedAt,
	).Scan(&p.ID)
	if err != nil {
		return fmt.Errorf("create position: %w", err)
	}
	return nil
}

func (s *ExecutionStore) UpdatePosition(ctx context.Context, p *execution.Position) error {
	query := `
		UPDATE positions SET
			quantity = $1, stop_price = $2, target_price = $3,
			current_price = $4, exit_price = $5,
			unrealized_pnl = $6, realized_pnl = $7, r_multiple = $8,
			mae_price = $9, mfe_price = $10, mae_r = $11, mfe_r = $12,
			status = $13, exit_reason = $14, closed_at = $15
		WHERE id = $16`
	tag, err := s.q.Exec(ctx, query,
		p.Quantity, p.StopPrice, p.TargetPrice,
		p.CurrentPrice, p.ExitPrice,
		p.UnrealizedPnL, p.RealizedPnL, p.RMultiple,
		p.MAEPrice, p.MFEPrice, p.MAER, p.MFER,
		string(p.Status), string(p.ExitReason), nullTime(p.ClosedAt),
		p.ID)
	if err != nil {
		return fmt.Errorf("update position %d: %w", p.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrPositionNotFound
	}
	return nil
}

func (s *ExecutionStore) OpenPositions(ctx context.Context, userID string) ([]*execution.Position, error) {
	rows, err := s.q.Query(ctx, positionSelect+` WHERE user_id = $1 AND status = 'OPEN' ORDER BY opened_at`, userID)
	if err != nil {
		return nil, fmt.Errorf("query open positions: %w", err)
	}
	defer rows.Close()
	return scanPositions(rows)
}

func (s *ExecutionStore) PositionBySignal(ctx context.Context, signalID int64) (*execution.Position, error) {
	rows, err := s.q.Query(ctx, positionSelect+` WHERE signal_id = $1 ORDER BY id DESC LIMIT 1`, signalID)
	if err != nil {
		return nil, fmt.Errorf("query position by signal: %w", err)
	}
	defer rows.Close()

	positions, err := scanPositions(rows)
	if err != nil {
		return nil, err
	}
	if len(positions) == 0 {
		return nil, ErrPositionNotFound
	}
	return positions[0], nil
}

func (s *ExecutionStore) RealizedPnLToday(ctx context.Context, userID string, day time.Time) (decimal.Decimal, error) {
	var total decimal.Decimal
	err := s.q.QueryRow(ctx,
		`SELECT COALESCE(SUM(realized_pnl), 0)
		 FROM positions
		 WHERE user_id = $1 AND status = 'CLOSED' AND closed_at >= $2`,
		userID, startOfDay(day),
	).Scan(&total)
	if err != nil {
		return decimal.Zero, fmt.Errorf("sum realized pnl: %w", err)
	}
	return total, nil
}

// startOfDay truncates to midnight UTC, the trading-day boundary the realized
// P&L window runs from.
func startOfDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func scanPositions(rows pgx.Rows) ([]*execution.Position, error) {
	var out []*execution.Position
	for rows.Next() {
		var p execution.Position
		var direction, status, exitReason string
		var closedAt *time.Time
		if err := rows.Scan(&p.ID, &p.UserID, &p.SignalID, &p.Instrument, &direction, &p.Quantity,
			&p.EntryPrice, &p.StopPrice, &p.TargetPrice, &p.CurrentPrice, &p.ExitPrice,
			&p.UnrealizedPnL, &p.RealizedPnL, &p.RMultiple,
			&p.MAEPrice, &p.MFEPrice, &p.MAER, &p.MFER,
			&status, &exitReason, &p.OpenedAt, &closedAt); err != nil {
			return nil, fmt.Errorf("scan position: %w", err)
		}
		p.Direction = execution.Direction(direction)
		p.Status = execution.PositionStatus(status)
		p.ExitReason = execution.ExitReason(exitReason)
		if closedAt != nil {
			p.ClosedAt = *closedAt
		}
		out = append(out, &p)
	}
	return out, rows.Err()
}
