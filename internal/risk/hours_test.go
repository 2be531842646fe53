package risk

import (
	"testing"
	"time"
)

func etTime(t *testing.T, y int, m time.Month, d, hour, min int) time.Time {
	t.Helper()
	return time.Date(y, m, d, hour, min, 0, 0, exchangeTZ())
}

func TestSessionOpenRTH(t *testing.T) {
	cases := []struct {
		name string
		at   time.Time
		want bool
	}{
		{"wednesday mid-session", etTime(t, 2026, time.August, 26, 10, 0), true},
		{"open boundary inclusive", etTime(t, 2026, time.August, 26, 9, 30), true},
		{"one minute before open", etTime(t, 2026, time.August, 26, 9, 29), false},
		{"close boundary exclusive", etTime(t, 2026, time.August, 26, 16, 0), false},
		{"saturday", etTime(t, 2026, time.August, 22, 11, 0), false},
		{"sunday", etTime(t, 2026, time.August, 23, 11, 0), false},
	}
	for _, tc := range cases {
		if got := sessionOpen(HoursRTH, tc.at); got != tc.want {
			t.Errorf("%s: sessionOpen(RTH, %v) = %v, want %v", tc.name, tc.at, got, tc.want)
		}
	}
}

func TestSessionOpenETH(t *testing.T) {
	cases := []struct {
		name string
		at   time.Time
		want bool
	}{
		{"weekday overnight", etTime(t, 2026, time.August, 26, 2, 0), true},
		{"maintenance break", etTime(t, 2026, time.August, 26, 17, 30), false},
		{"after maintenance", etTime(t, 2026, time.August, 26, 18, 30), true},
		{"friday before close", etTime(t, 2026, time.August, 28, 16, 59), true},
		{"friday after close", etTime(t, 2026, time.August, 28, 17, 1), false},
		{"saturday", etTime(t, 2026, time.August, 22, 12, 0), false},
		{"sunday before reopen", etTime(t, 2026, time.August, 23, 17, 0), false},
		{"sunday after reopen", etTime(t, 2026, time.August, 23, 19, 0), true},
	}
	for _, tc := range cases {
		if got := sessionOpen(HoursETH, tc.at); got != tc.want {
			t.Errorf("%s: sessionOpen(ETH, %v) = %v, want %v", tc.name, tc.at, got, tc.want)
		}
	}
}

func TestSessionOpen24H(t *testing.T) {
	if !sessionOpen(Hours24H, etTime(t, 2026, time.August, 22, 3, 0)) {
		t.Error("24H session must always be open")
	}
}

func TestExchangeTZHandlesDST(t *testing.T) {
	// 13:30 UTC is 09:30 in New York during daylight saving but 08:30 in
	// winter. A fixed UTC offset would get one of these wrong.
	summer := time.Date(2026, time.July, 8, 13, 30, 0, 0, time.UTC).In(exchangeTZ())
	if !sessionOpen(HoursRTH, summer) {
		t.Errorf("summer 13:30 UTC should be inside RTH, local %v", summer)
	}
	winter := time.Date(2026, time.January, 7, 13, 30, 0, 0, time.UTC).In(exchangeTZ())
	if sessionOpen(HoursRTH, winter) {
		t.Errorf("winter 13:30 UTC should be before RTH open, local %v", winter)
	}
}
