// Package billing holds the pure calendar math of the accounting core:
// proration amounts, billing-window boundaries and recurring-schedule
// next-run dates. Everything here computes on UTC calendar days and has no
// I/O; the scheduler and batch services feed it persisted state.
package billing

import (
	"math"
	"time"
)

// DateLayout is the wire format for date-only values.
const DateLayout = "2006-01-02"

// DaysInMonth returns the number of calendar days in the given month.
func DaysInMonth(year int, month time.Month) int {
	// day 0 of the next month is the last day of this one
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// Round2 rounds to two decimals, half away from zero.
func Round2(x float64) float64 {
	return math.Round(x*100) / 100
}

// DateOnly truncates a time to its UTC calendar date.
func DateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// TodayInTimezone derives the calendar date of the instant `now` in the given
// IANA timezone, returned as midnight UTC. 02:00 UTC is still "yesterday" in
// US Eastern; schedulers must evaluate fire dates in the org's local day.
func TodayInTimezone(now time.Time, tz string) (time.Time, error) {
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return time.Time{}, err
	}
	local := now.In(loc)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, time.UTC), nil
}

// ISOWeekday maps a date to ISO-8601 weekday numbering (Monday=1..Sunday=7).
func ISOWeekday(t time.Time) int {
	wd := int(t.Weekday()) // Go: Sunday=0
	if wd == 0 {
		return 7
	}
	return wd
}

// IsQuarterStart reports whether the date is Jan/Apr/Jul/Oct 1. The
// scheduler and the billing-window generator share this boundary rule and
// must agree.
func IsQuarterStart(t time.Time) bool {
	return t.Day() == 1 && (t.Month()-1)%3 == 0
}

// IsYearStart reports whether the date is January 1.
func IsYearStart(t time.Time) bool {
	return t.Day() == 1 && t.Month() == time.January
}
