package risk

import (
	"sync"
	"time"
)

var (
	tzOnce sync.Once
	tzNY   *time.Location
)

// exchangeTZ returns the CME floor timezone. Loading the IANA zone keeps DST
// transitions correct; a fixed UTC offset would drift twice a year.
func exchangeTZ() *time.Location {
	tzOnce.Do(func() {
		loc, err := time.LoadLocation("America/New_York")
		if err != nil {
			loc = time.FixedZone("ET", -5*3600)
		}
		tzNY = loc
	})
	return tzNY
}

// sessionOpen reports whether t (already in exchange time) falls inside the
// selected session window.
//
// RTH: Mon-Fri 09:30-16:00.
// ETH: the CME Globex week, Sunday 18:00 through Friday 17:00, minus the
// daily 17:00-18:00 maintenance break.
// 24H: always open.
func sessionOpen(session TradingHours, t time.Time) bool {
	switch session {
	case Hours24H:
		return true
	case HoursRTH:
		wd := t.Weekday()
		if wd == time.Saturday || wd == time.Sunday {
			return false
		}
		minutes := t.Hour()*60 + t.Minute()
		return minutes >= 9*60+30 && minutes < 16*60
	case HoursETH:
		wd := t.Weekday()
		hour := t.Hour()
		switch wd {
		case time.Saturday:
			return false
		case time.Sunday:
			return hour >= 18
		case time.Friday:
			return hour < 17
		default:
			// Mon-Thu: closed only during the maintenance hour.
			return hour != 17
		}
	default:
		return false
	}
}
