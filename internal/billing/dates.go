package billing

import (
	"time"

	"receivables/internal/models"
)

// DateOnly drops the time of day, keeping the calendar date as seen in t's
// own location. The result is expressed in UTC so day arithmetic is DST-free.
func DateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// OverdueDays returns max(0, asOf - dueDate) in whole calendar days.
func OverdueDays(dueDate, asOf time.Time) int {
	days := int(DateOnly(asOf).Sub(DateOnly(dueDate)).Hours() / 24)
	if days < 0 {
		return 0
	}
	return days
}

// NextBillingDate computes the billing date following from.
//
// Weekly plans move to the next anchor weekday strictly after from. Biweekly
// plans add a flat 15 days. Monthly, quarterly and yearly plans add 1, 3 or
// 12 months and then pin the day to anchor, clamped to the month's last day,
// so an anchor of 31 yields Jan 31, Feb 28/29, Mar 31.
func NextBillingDate(from time.Time, frequency models.Frequency, anchor int) time.Time {
	base := DateOnly(from)

	switch frequency {
	case models.FrequencyWeekly:
		target := time.Weekday(((anchor % 7) + 7) % 7)
		delta := (int(target) - int(base.Weekday()) + 7) % 7
		if delta == 0 {
			delta = 7
		}
		return base.AddDate(0, 0, delta)
	case models.FrequencyBiweekly:
		return base.AddDate(0, 0, 15)
	case models.FrequencyMonthly:
		return addMonthsAnchored(base, 1, anchor)
	case models.FrequencyQuarterly:
		return addMonthsAnchored(base, 3, anchor)
	case models.FrequencyYearly:
		return addMonthsAnchored(base, 12, anchor)
	default:
		return addMonthsAnchored(base, 1, anchor)
	}
}

func addMonthsAnchored(base time.Time, months, anchor int) time.Time {
	if anchor < 1 {
		anchor = base.Day()
	}
	// first of the target month never overflows
	first := time.Date(base.Year(), base.Month()+time.Month(months), 1, 0, 0, 0, 0, time.UTC)
	day := min(anchor, daysIn(first))
	return time.Date(first.Year(), first.Month(), day, 0, 0, 0, 0, time.UTC)
}

func daysIn(firstOfMonth time.Time) int {
	return firstOfMonth.AddDate(0, 1, -1).Day()
}
