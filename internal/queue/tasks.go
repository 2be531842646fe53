package queue

// Task kinds understood by the worker pool. The API enqueues these; main
// registers the handlers. Payload structs carry only primitives so both sides
// agree on the JSON without sharing domain types.
const (
	TaskCandleUpsert   = "candle.upsert"
	TaskDetect         = "detect.run"
	TaskRecalculate    = "detect.recalculate"
	TaskEvaluateAlerts = "alerts.evaluate"
	TaskCreateSignal   = "signal.create"
	TaskPriceUpdate    = "price.update"
	TaskReconcile      = "orders.reconcile"
	TaskFlatten        = "positions.flatten"
)

type CandleUpsertTask struct {
	Instrument string  `json:"instrument"`
	Timeframe  string  `json:"timeframe"`
	Timestamp  string  `json:"timestamp"` // RFC3339
	Open       float64 `json:"open"`
	High       float64 `json:"high"`
	Low        float64 `json:"low"`
	Close      float64 `json:"close"`
	Volume     float64 `json:"volume"`
}

type DetectTask struct {
	UserID     string `json:"user_id"`
	Instrument string `json:"instrument"`
	Timeframe  string `json:"timeframe"`
}

type EvaluateAlertsTask struct {
	UserID     string `json:"user_id"`
	Instrument string `json:"instrument"`
	Timeframe  string `json:"timeframe"`
}

type CreateSignalTask struct {
	UserID      string `json:"user_id"`
	Instrument  string `json:"instrument"`
	Direction   string `json:"direction"`
	EntryType   string `json:"entry_type"`
	EntryPrice  string `json:"entry_price"`
	StopPrice   string `json:"stop_price,omitempty"`
	TargetPrice string `json:"target_price,omitempty"`
	Quantity    int    `json:"quantity,omitempty"`
	TrendlineID int64  `json:"trendline_id,omitempty"`
}

type PriceUpdateTask struct {
	UserID     string  `json:"user_id"`
	Instrument string  `json:"instrument"`
	Price      float64 `json:"price"`
}

type ReconcileTask struct {
	UserID string `json:"user_id"`
}

type FlattenTask struct {
	UserID string `json:"user_id"`
}
