// Package risk implements the sequential risk rubric that gates trade
// signals, the per-user circuit breaker, and position sizing.
package risk

import (
	"time"

	"github.com/shopspring/decimal"
)

// CheckResult is the outcome of one risk check.
type CheckResult string

const (
	ResultPass CheckResult = "PASS"
	ResultFail CheckResult = "FAIL"
	ResultWarn CheckResult = "WARN"
	ResultSkip CheckResult = "SKIP"
)

// Check names, in their fixed execution order. The sequence is never
// reordered or parallelized: later checks assume earlier audit rows exist.
const (
	CheckPositionSize    = "max_position_size"
	CheckDailyLoss       = "daily_loss_limit"
	CheckMaxPositions    = "max_concurrent_positions"
	CheckMinRiskReward   = "min_risk_reward"
	CheckCorrelation     = "correlation_exposure"
	CheckMaxTradeRisk    = "max_trade_risk"
	CheckTradingHours    = "trading_hours"
	CheckStaleness       = "signal_staleness"
)

// CheckOrder is the canonical sequence of checks.
var CheckOrder = []string{
	CheckPositionSize,
	CheckDailyLoss,
	CheckMaxPositions,
	CheckMinRiskReward,
	CheckCorrelation,
	CheckMaxTradeRisk,
	CheckTradingHours,
	CheckStaleness,
}

// TradingHours selects the allowed session window.
type TradingHours string

const (
	HoursRTH TradingHours = "RTH"
	Hours24H TradingHours = "24H"
	HoursETH TradingHours = "ETH"
)

// Settings are the per-user risk limits the rubric evaluates against.
type Settings struct {
	MaxPositionSizeMicro    int             `json:"max_position_size_micro"`
	MaxPositionSizeFull     int             `json:"max_position_size_full"`
	DailyLossLimit          decimal.Decimal `json:"daily_loss_limit"`
	MaxConcurrentPositions  int             `json:"max_concurrent_positions"`
	MinRiskReward           float64         `json:"min_risk_reward"` // 0 disables the check
	CorrelationThreshold    float64         `json:"correlation_threshold"`
	MaxTradeRisk            decimal.Decimal `json:"max_trade_risk"`
	TradingHours            TradingHours    `json:"trading_hours"`
	MaxSignalAge            time.Duration   `json:"max_signal_age"`
	CircuitBreakerThreshold int             `json:"circuit_breaker_threshold"`
}

// DefaultSettings returns conservative stock limits.
func DefaultSettings() Settings {
	return Settings{
		MaxPositionSizeMicro:    10,
		MaxPositionSizeFull:     2,
		DailyLossLimit:          decimal.NewFromInt(1000),
		MaxConcurrentPositions:  3,
		MinRiskReward:           1.5,
		CorrelationThreshold:    0.7,
		MaxTradeRisk:            decimal.NewFromInt(250),
		TradingHours:            Hours24H,
		MaxSignalAge:            5 * time.Minute,
		CircuitBreakerThreshold: 3,
	}
}

// SignalDirection mirrors the execution-side direction without importing it.
type SignalDirection string

const (
	DirectionLong  SignalDirection = "LONG"
	DirectionShort SignalDirection = "SHORT"
)

// SignalInfo is the view of a trade signal the rubric needs. The execution
// processor maps its Signal aggregate into this before calling Evaluate.
type SignalInfo struct {
	ID          int64
	UserID      string
	Instrument  string
	Direction   SignalDirection
	EntryPrice  decimal.Decimal
	StopPrice   decimal.Decimal // zero when the signal has no stop
	TargetPrice decimal.Decimal // zero when the signal has no target
	Quantity    int
	CreatedAt   time.Time
}

// HasStop reports whether the signal carries a stop price.
func (s SignalInfo) HasStop() bool { return !s.StopPrice.IsZero() }

// HasTarget reports whether the signal carries a target price.
func (s SignalInfo) HasTarget() bool { return !s.TargetPrice.IsZero() }

// RiskReward returns the signal's R:R ratio, or false when either leg is
// missing or the risk distance is zero.
func (s SignalInfo) RiskReward() (float64, bool) {
	if !s.HasStop() || !s.HasTarget() {
		return 0, false
	}
	riskDist := s.EntryPrice.Sub(s.StopPrice).Abs()
	if riskDist.IsZero() {
		return 0, false
	}
	rewardDist := s.TargetPrice.Sub(s.EntryPrice).Abs()
	rr, _ := rewardDist.Div(riskDist).Float64()
	return rr, true
}

// OpenPosition is the snapshot view of one open position.
type OpenPosition struct {
	Instrument    string
	Direction     SignalDirection
	Quantity      int
	UnrealizedPnL decimal.Decimal
}

// Snapshot is the point-in-time account state the checks read. The caller
// assembles it before Evaluate so the checks themselves stay synchronous and
// free of I/O.
type Snapshot struct {
	OpenPositions    []OpenPosition
	RealizedPnLToday decimal.Decimal // negative when the day is down
	Now              time.Time
}

// CheckAudit is one append-only audit row per (signal, check).
type CheckAudit struct {
	ID        int64       `json:"id"`
	SignalID  int64       `json:"signal_id"`
	UserID    string      `json:"user_id"`
	CheckName string      `json:"check_name"`
	Result    CheckResult `json:"result"`
	Actual    string      `json:"actual_value"`
	Threshold string      `json:"threshold_value"`
	Details   interface{} `json:"details,omitempty"` // typed per-check struct, serialized at the boundary
	CreatedAt time.Time   `json:"created_at"`
}

// Typed detail payloads, one per check kind.

type PositionSizeDetails struct {
	ExistingQuantity int  `json:"existing_quantity"`
	RequestedQty     int  `json:"requested_quantity"`
	IsMicro          bool `json:"is_micro"`
}

type DailyLossDetails struct {
	RealizedToday   string `json:"realized_today"`
	UnrealizedOpen  string `json:"unrealized_open"`
	WorstCaseSignal string `json:"worst_case_signal"`
}

type RiskRewardDetails struct {
	RiskDistance   string `json:"risk_distance,omitempty"`
	RewardDistance string `json:"reward_distance,omitempty"`
}

type CorrelationDetails struct {
	SignalFullSize      string   `json:"signal_full_size"`
	CorrelatedPositions []string `json:"correlated_positions"`
}

type TradeRiskDetails struct {
	RiskPerContract string `json:"risk_per_contract"`
	Quantity        int    `json:"quantity"`
}

type TradingHoursDetails struct {
	Session   TradingHours `json:"session"`
	LocalTime string       `json:"local_time"`
}

type StalenessDetails struct {
	SignalAge string `json:"signal_age"`
}

// Decision is the overall outcome of a rubric run.
type Decision struct {
	Passed       bool
	FailedChecks []string
	Warnings     []string
	Audits       []*CheckAudit
}
