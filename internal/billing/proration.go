package billing

import "time"

// ProrationFirstMonth computes the partial-month amount owed when a lease
// starts mid-month: the monthly amount scaled by the days remaining in the
// start month, inclusive of the start day.
//
// An unparseable date returns 0 rather than an error. Callers validate dates
// upstream; a 0 result is conservative (no charge), not silent data loss.
func ProrationFirstMonth(monthlyAmount float64, startDate string) float64 {
	start, err := time.Parse(DateLayout, startDate)
	if err != nil {
		return 0
	}
	dim := DaysInMonth(start.Year(), start.Month())
	daysRemaining := dim - start.Day() + 1
	return Round2(monthlyAmount * float64(daysRemaining) / float64(dim))
}

// ProrationLastMonth computes the partial-month amount earned up to a
// mid-month lease end. An end date on or past the last day of the month
// returns 0: the full month is already earned and no proration applies.
func ProrationLastMonth(monthlyAmount float64, endDate string) float64 {
	end, err := time.Parse(DateLayout, endDate)
	if err != nil {
		return 0
	}
	dim := DaysInMonth(end.Year(), end.Month())
	if end.Day() >= dim {
		return 0
	}
	return Round2(monthlyAmount * float64(end.Day()) / float64(dim))
}
