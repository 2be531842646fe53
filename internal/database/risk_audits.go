package database

import (
	"context"
	"encoding/json"
	"fmt"

	"trendline-trading-bot/internal/risk"
)

// RiskAuditRepository writes the per-check audit trail the risk engine emits
// while evaluating a signal. Typed detail payloads land in a JSONB column.
type RiskAuditRepository struct {
	q Querier
}

func NewRiskAuditRepository(q Querier) *RiskAuditRepository {
	return &RiskAuditRepository{q: q}
}

func (r *RiskAuditRepository) SaveAudit(ctx context.Context, audit *risk.CheckAudit) error {
	var details []byte
	if audit.Details != nil {
		var err error
		details, err = json.Marshal(audit.Details)
		if err != nil {
			return fmt.Errorf("marshal audit details: %w", err)
		}
	}

	query := `
		INSERT INTO risk_check_audits (signal_id, user_id, check_name, result, actual_value, threshold_value, details)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at`
	err := r.q.QueryRow(ctx, query,
		audit.SignalID, audit.UserID, audit.CheckName, string(audit.Result),
		audit.Actual, audit.Threshold, details,
	).Scan(&audit.ID, &audit.CreatedAt)
	if err != nil {
		return fmt.Errorf("save risk audit: %w", err)
	}
	return nil
}

// AuditsBySignal returns the trail for one signal in evaluation order.
func (r *RiskAuditRepository) AuditsBySignal(ctx context.Context, userID string, signalID int64) ([]*risk.CheckAudit, error) {
	query := `
		SELECT id, signal_id, user_id, check_name, result, actual_value, threshold_value, details, created_at
		FROM risk_check_audits
		WHERE signal_id = $1 AND user_id = $2
		ORDER BY id`
	rows, err := r.q.Query(ctx, query, signalID, userID)
	if err != nil {
		return nil, fmt.Errorf("query risk audits: %w", err)
	}
	defer rows.Close()

	var out []*risk.CheckAudit
	for rows.Next() {
		var a risk.CheckAudit
		var result string
		var details []byte
		if err := rows.Scan(&a.ID, &a.SignalID, &a.UserID, &a.CheckName, &result,
			&a.Actual, &a.Threshold, &details, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan risk audit: %w", err)
		}
		a.Result = risk.CheckResult(result)
		if len(details) > 0 {
			var decoded map[string]interface{}
			if err := json.Unmarshal(details, &decoded); err != nil {
				return nil, fmt.Errorf("unmarshal audit details: %w", err)
			}
			a.Details = decoded
		}
		out = append(out, &a)
	}
	return out, rows.Err()
}
