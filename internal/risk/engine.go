package risk

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"trendline-trading-bot/internal/market"
)

// AuditSink persists risk check audit rows. Every executed check writes one
// row whether it passed or not.
type AuditSink interface {
	SaveAudit(ctx context.Context, audit *CheckAudit) error
}

// Engine runs the fixed check sequence against an assembled snapshot.
type Engine struct {
	sink   AuditSink
	specs  market.SpecSource
	corr   *market.CorrelationTable
	logger zerolog.Logger
}

func NewEngine(sink AuditSink, specs market.SpecSource, corr *market.CorrelationTable, logger zerolog.Logger) *Engine {
	return &Engine{
		sink:   sink,
		specs:  specs,
		corr:   corr,
		logger: logger.With().Str("component", "risk").Logger(),
	}
}

var orderedChecks = []struct {
	name string
	fn   checkFunc
}{
	{CheckPositionSize, checkPositionSize},
	{CheckDailyLoss, checkDailyLoss},
	{CheckMaxPositions, checkMaxPositions},
	{CheckMinRiskReward, checkMinRiskReward},
	{CheckCorrelation, checkCorrelation},
	{CheckMaxTradeRisk, checkMaxTradeRisk},
	{CheckTradingHours, checkTradingHours},
	{CheckStaleness, checkStaleness},
}

// Evaluate runs the checks in order, persisting one audit row per executed
// check, and stops at the first FAIL. WARN and SKIP never block. The returned
// Decision lists every audit produced, so a failure at check N yields exactly
// N rows.
func (e *Engine) Evaluate(ctx context.Context, sig SignalInfo, settings Settings, snap Snapshot) (*Decision, error) {
	spec, err := e.specs.Spec(sig.Instrument)
	if err != nil {
		return nil, fmt.Errorf("risk evaluate: %w", err)
	}

	in := CheckInput{
		Signal:   sig,
		Settings: settings,
		Snapshot: snap,
		Spec:     spec,
		Corr:     e.corr,
		Specs:    e.specs,
	}

	decision := &Decision{Passed: true}
	for _, c := range orderedChecks {
		audit := c.fn(in)
		if err := e.sink.SaveAudit(ctx, audit); err != nil {
			return nil, fmt.Errorf("persist audit for %s: %w", c.name, err)
		}
		decision.Audits = append(decision.Audits, audit)

		switch audit.Result {
		case ResultWarn:
			decision.Warnings = append(decision.Warnings, c.name)
			e.logger.Warn().
				Int64("signal_id", sig.ID).
				Str("check", c.name).
				Str("actual", audit.Actual).
				Msg("risk check warning")
		case ResultFail:
			decision.Passed = false
			decision.FailedChecks = append(decision.FailedChecks, c.name)
			e.logger.Info().
				Int64("signal_id", sig.ID).
				Str("check", c.name).
				Str("actual", audit.Actual).
				Str("threshold", audit.Threshold).
				Msg("risk check failed, signal rejected")
			return decision, nil
		}
	}

	e.logger.Debug().
		Int64("signal_id", sig.ID).
		Int("checks", len(decision.Audits)).
		Msg("risk evaluation passed")
	return decision, nil
}
