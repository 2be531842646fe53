package market

import "time"

// maxCalendarGapDays is the largest hole between consecutive daily candles
// that is still considered normal (weekends plus one holiday).
const maxCalendarGapDays = 3

// Gap describes a reportable hole in a daily candle series.
type Gap struct {
	Instrument string    `json:"instrument"`
	From       time.Time `json:"from"`
	To         time.Time `json:"to"`
	Days       int       `json:"days"`
}

// DetectGaps scans a daily series in timestamp order and reports every hole
// wider than three calendar days between consecutive candles. Non-daily
// series return nil.
func DetectGaps(candles Series) []Gap {
	if len(candles) < 2 || candles[0].Timeframe != Timeframe1d {
		return nil
	}

	var gaps []Gap
	for i := 1; i < len(candles); i++ {
		prev := candles[i-1]
		cur := candles[i]
		days := int(cur.Timestamp.Sub(prev.Timestamp).Hours() / 24)
		if days > maxCalendarGapDays {
			gaps = append(gaps, Gap{
				Instrument: cur.Instrument,
				From:       prev.Timestamp,
				To:         cur.Timestamp,
				Days:       days,
			})
		}
	}
	return gaps
}
