package billing

import (
	"time"

	"github.com/rentfolio/ledger-core/internal/domain"
)

// ApplyRolloverPolicy resolves an anchor day against the actual days of the
// target month. Every policy currently clamps an out-of-range day to the
// month's last day: the clamp is the only contractually verified behavior,
// and skip / next-business-day semantics are deliberately not guessed.
func ApplyRolloverPolicy(year int, month time.Month, day int, policy domain.RolloverPolicy) time.Time {
	dim := DaysInMonth(year, month)
	if day > dim {
		day = dim
	}
	if day < 1 {
		day = 1
	}
	_ = policy
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

// ComputeNextRunDate computes when a recurring schedule next fires, evaluated
// against the org-local calendar date of `now`. The second return value is
// false when the schedule does not fire: paused/ended schedules, a passed end
// date, or a quarterly/annual schedule invoked off its boundary day. "No
// fire" is an expected outcome for callers, not an error.
func ComputeNextRunDate(s domain.RecurringSchedule, timezone string, now time.Time) (time.Time, bool, error) {
	if !s.Status.CanFire() {
		return time.Time{}, false, nil
	}

	today, err := TodayInTimezone(now, timezone)
	if err != nil {
		return time.Time{}, false, err
	}
	if s.Ended(today) {
		return time.Time{}, false, nil
	}

	start := DateOnly(s.StartDate)
	base := today
	if start.After(base) {
		base = start
	}

	switch s.Frequency {
	case domain.FrequencyWeekly:
		target := s.DayOfWeek
		if target < 1 || target > 7 {
			target = 1
		}
		next := base
		for ISOWeekday(next) != target {
			next = next.AddDate(0, 0, 1)
		}
		return next, true, nil

	case domain.FrequencyMonthly:
		day := s.DayOfMonth
		if day < 1 {
			day = 1
		}
		candidate := ApplyRolloverPolicy(base.Year(), base.Month(), day, s.RolloverPolicy)
		if candidate.Before(base) {
			firstOfNext := time.Date(base.Year(), base.Month(), 1, 0, 0, 0, 0, time.UTC).AddDate(0, 1, 0)
			candidate = ApplyRolloverPolicy(firstOfNext.Year(), firstOfNext.Month(), day, s.RolloverPolicy)
		}
		return candidate, true, nil

	case domain.FrequencyQuarterly:
		// Fires only on the first day of a quarter, covering the prior quarter.
		if today.Before(start) || !IsQuarterStart(today) {
			return time.Time{}, false, nil
		}
		return today, true, nil

	case domain.FrequencyAnnually:
		if today.Before(start) || !IsYearStart(today) {
			return time.Time{}, false, nil
		}
		return today, true, nil
	}

	return time.Time{}, false, &domain.ErrValidation{Field: "frequency", Message: "unknown frequency " + string(s.Frequency)}
}
