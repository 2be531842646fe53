package risk

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"trendline-trading-bot/internal/market"
)

// CheckInput bundles everything a single check may read.
type CheckInput struct {
	Signal   SignalInfo
	Settings Settings
	Snapshot Snapshot
	Spec     market.ContractSpec
	Corr     *market.CorrelationTable
	Specs    market.SpecSource
}

type checkFunc func(in CheckInput) *CheckAudit

func newAudit(in CheckInput, name string, result CheckResult, actual, threshold string, details interface{}) *CheckAudit {
	return &CheckAudit{
		SignalID:  in.Signal.ID,
		UserID:    in.Signal.UserID,
		CheckName: name,
		Result:    result,
		Actual:    actual,
		Threshold: threshold,
		Details:   details,
		CreatedAt: in.Snapshot.Now,
	}
}

// riskPerContract is the dollar loss of one contract moving from entry to
// stop. Returns zero when the signal has no stop.
func riskPerContract(sig SignalInfo, spec market.ContractSpec) decimal.Decimal {
	if !sig.HasStop() || spec.TickSize.IsZero() {
		return decimal.Zero
	}
	dist := sig.EntryPrice.Sub(sig.StopPrice).Abs()
	return dist.Div(spec.TickSize).Mul(spec.TickValue)
}

// checkPositionSize caps total contracts per instrument, with separate limits
// for micro and full-size contracts.
func checkPositionSize(in CheckInput) *CheckAudit {
	limit := in.Settings.MaxPositionSizeFull
	if in.Spec.IsMicro {
		limit = in.Settings.MaxPositionSizeMicro
	}

	existing := 0
	for _, p := range in.Snapshot.OpenPositions {
		if p.Instrument == in.Signal.Instrument {
			existing += p.Quantity
		}
	}
	total := existing + in.Signal.Quantity

	result := ResultPass
	if total > limit {
		result = ResultFail
	}
	return newAudit(in, CheckPositionSize, result,
		fmt.Sprintf("%d", total), fmt.Sprintf("%d", limit),
		PositionSizeDetails{ExistingQuantity: existing, RequestedQty: in.Signal.Quantity, IsMicro: in.Spec.IsMicro})
}

// checkDailyLoss projects the worst case: today's realized losses plus open
// unrealized losses plus the new signal's full stop-out, against the cap.
func checkDailyLoss(in CheckInput) *CheckAudit {
	unrealizedLoss := decimal.Zero
	for _, p := range in.Snapshot.OpenPositions {
		if p.UnrealizedPnL.IsNegative() {
			unrealizedLoss = unrealizedLoss.Add(p.UnrealizedPnL)
		}
	}
	realizedLoss := decimal.Zero
	if in.Snapshot.RealizedPnLToday.IsNegative() {
		realizedLoss = in.Snapshot.RealizedPnLToday
	}
	worstCase := riskPerContract(in.Signal, in.Spec).Mul(decimal.NewFromInt(int64(in.Signal.Quantity)))

	projected := realizedLoss.Add(unrealizedLoss).Sub(worstCase).Abs()

	result := ResultPass
	if projected.GreaterThan(in.Settings.DailyLossLimit) {
		result = ResultFail
	}
	return newAudit(in, CheckDailyLoss, result,
		projected.String(), in.Settings.DailyLossLimit.String(),
		DailyLossDetails{
			RealizedToday:   realizedLoss.String(),
			UnrealizedOpen:  unrealizedLoss.String(),
			WorstCaseSignal: worstCase.Neg().String(),
		})
}

func checkMaxPositions(in CheckInput) *CheckAudit {
	open := len(in.Snapshot.OpenPositions)
	result := ResultPass
	if open+1 > in.Settings.MaxConcurrentPositions {
		result = ResultFail
	}
	return newAudit(in, CheckMaxPositions, result,
		fmt.Sprintf("%d", open+1), fmt.Sprintf("%d", in.Settings.MaxConcurrentPositions), nil)
}

// checkMinRiskReward skips when disabled, warns when the ratio cannot be
// computed, and fails only on a known ratio below the floor.
func checkMinRiskReward(in CheckInput) *CheckAudit {
	if in.Settings.MinRiskReward <= 0 {
		return newAudit(in, CheckMinRiskReward, ResultSkip, "", "disabled", nil)
	}

	rr, ok := in.Signal.RiskReward()
	threshold := fmt.Sprintf("%.2f", in.Settings.MinRiskReward)
	if !ok {
		return newAudit(in, CheckMinRiskReward, ResultWarn, "unknown", threshold,
			RiskRewardDetails{})
	}

	details := RiskRewardDetails{
		RiskDistance:   in.Signal.EntryPrice.Sub(in.Signal.StopPrice).Abs().String(),
		RewardDistance: in.Signal.TargetPrice.Sub(in.Signal.EntryPrice).Abs().String(),
	}
	result := ResultPass
	if rr < in.Settings.MinRiskReward {
		result = ResultFail
	}
	return newAudit(in, CheckMinRiskReward, result, fmt.Sprintf("%.2f", rr), threshold, details)
}

// checkCorrelation normalizes micro contracts to their full-size symbol and
// counts open positions correlated above the threshold. One correlated
// position warns, two or more fail. Positions in the signal's own instrument
// are excluded here; the position-size check already caps those.
func checkCorrelation(in CheckInput) *CheckAudit {
	sigFull := fullSizeOf(in.Specs, in.Signal.Instrument)

	var correlated []string
	for _, p := range in.Snapshot.OpenPositions {
		if p.Instrument == in.Signal.Instrument {
			continue
		}
		posFull := fullSizeOf(in.Specs, p.Instrument)
		if in.Corr.Correlation(sigFull, posFull) >= in.Settings.CorrelationThreshold {
			correlated = append(correlated, p.Instrument)
		}
	}

	result := ResultPass
	switch {
	case len(correlated) >= 2:
		result = ResultFail
	case len(correlated) == 1:
		result = ResultWarn
	}
	return newAudit(in, CheckCorrelation, result,
		fmt.Sprintf("%d", len(correlated)), fmt.Sprintf("%.2f", in.Settings.CorrelationThreshold),
		CorrelationDetails{SignalFullSize: sigFull, CorrelatedPositions: correlated})
}

func fullSizeOf(specs market.SpecSource, instrument string) string {
	if specs == nil {
		return instrument
	}
	spec, err := specs.Spec(instrument)
	if err != nil {
		return instrument
	}
	if spec.IsMicro && spec.FullSizeSymbol != "" {
		return spec.FullSizeSymbol
	}
	return instrument
}

func checkMaxTradeRisk(in CheckInput) *CheckAudit {
	perContract := riskPerContract(in.Signal, in.Spec)
	threshold := in.Settings.MaxTradeRisk.String()

	if !in.Signal.HasStop() {
		return newAudit(in, CheckMaxTradeRisk, ResultWarn, "no stop", threshold,
			TradeRiskDetails{Quantity: in.Signal.Quantity})
	}

	total := perContract.Mul(decimal.NewFromInt(int64(in.Signal.Quantity)))
	result := ResultPass
	if total.GreaterThan(in.Settings.MaxTradeRisk) {
		result = ResultFail
	}
	return newAudit(in, CheckMaxTradeRisk, result, total.String(), threshold,
		TradeRiskDetails{RiskPerContract: perContract.String(), Quantity: in.Signal.Quantity})
}

func checkTradingHours(in CheckInput) *CheckAudit {
	session := in.Settings.TradingHours
	if session == "" {
		session = Hours24H
	}
	local := in.Snapshot.Now.In(exchangeTZ())
	allowed := sessionOpen(session, local)

	result := ResultPass
	if !allowed {
		result = ResultFail
	}
	return newAudit(in, CheckTradingHours, result,
		local.Format("Mon 15:04"), string(session),
		TradingHoursDetails{Session: session, LocalTime: local.Format(time.RFC3339)})
}

func checkStaleness(in CheckInput) *CheckAudit {
	age := in.Snapshot.Now.Sub(in.Signal.CreatedAt)
	result := ResultPass
	if age > in.Settings.MaxSignalAge {
		result = ResultFail
	}
	return newAudit(in, CheckStaleness, result,
		age.Round(time.Second).String(), in.Settings.MaxSignalAge.String(),
		StalenessDetails{SignalAge: age.Round(time.Millisecond).String()})
}
