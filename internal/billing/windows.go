package billing

import (
	"time"

	"github.com/rentfolio/ledger-core/internal/domain"
)

// Window is a computed billing period, date-only and inclusive on both ends.
type Window struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// GenerateBillingWindows returns the prior completed period(s) relative to
// asOf, using UTC calendar arithmetic:
//
//   - Monthly: the single prior calendar month.
//   - Weekly: every Monday-Sunday week whose Sunday falls in the prior
//     calendar month (4 or 5 windows).
//   - Quarterly/Annually: exactly one window when asOf sits on the quarter or
//     year boundary, otherwise none. An empty result is a valid "no billing
//     run due" outcome, not an error.
func GenerateBillingWindows(frequency domain.Frequency, asOf time.Time) []Window {
	asOf = DateOnly(asOf)

	switch frequency {
	case domain.FrequencyMonthly:
		firstOfMonth := time.Date(asOf.Year(), asOf.Month(), 1, 0, 0, 0, 0, time.UTC)
		start := firstOfMonth.AddDate(0, -1, 0)
		end := firstOfMonth.AddDate(0, 0, -1)
		return []Window{window(start, end)}

	case domain.FrequencyWeekly:
		firstOfMonth := time.Date(asOf.Year(), asOf.Month(), 1, 0, 0, 0, 0, time.UTC)
		priorMonthStart := firstOfMonth.AddDate(0, -1, 0)
		var windows []Window
		for d := priorMonthStart; d.Month() == priorMonthStart.Month(); d = d.AddDate(0, 0, 1) {
			if ISOWeekday(d) == 7 { // Sunday closes a Monday-Sunday week
				windows = append(windows, window(d.AddDate(0, 0, -6), d))
			}
		}
		return windows

	case domain.FrequencyQuarterly:
		if !IsQuarterStart(asOf) {
			return nil
		}
		start := asOf.AddDate(0, -3, 0)
		return []Window{window(start, asOf.AddDate(0, 0, -1))}

	case domain.FrequencyAnnually:
		if !IsYearStart(asOf) {
			return nil
		}
		start := asOf.AddDate(-1, 0, 0)
		return []Window{window(start, asOf.AddDate(0, 0, -1))}
	}

	return nil
}

func window(start, end time.Time) Window {
	return Window{Start: start.Format(DateLayout), End: end.Format(DateLayout)}
}
