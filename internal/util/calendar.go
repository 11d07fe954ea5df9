package util

import "time"

// Day returns the calendar date of t as UTC midnight. The date is taken in
// t's own location.
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ShiftDays moves a calendar day forward by n days.
func ShiftDays(t time.Time, n int) time.Time {
	return Day(t).AddDate(0, 0, n)
}

// Period is a resampling granularity for daily series.
type Period int

const (
	Daily Period = iota
	Weekly
	Monthly
	Quarterly
	Yearly
)

// String returns the period name.
func (p Period) String() string {
	switch p {
	case Daily:
		return "daily"
	case Weekly:
		return "weekly"
	case Monthly:
		return "monthly"
	case Quarterly:
		return "quarterly"
	case Yearly:
		return "yearly"
	default:
		return "unknown"
	}
}

// PeriodEnd returns the last calendar day of the period containing t, which
// labels the period's bucket. Weeks run Monday to Sunday; months, quarters and
// years are calendar periods.
func PeriodEnd(t time.Time, p Period) time.Time {
	d := Day(t)
	switch p {
	case Weekly:
		// time.Sunday == 0
		return d.AddDate(0, 0, (7-int(d.Weekday()))%7)
	case Monthly:
		return time.Date(d.Year(), d.Month()+1, 0, 0, 0, 0, 0, time.UTC)
	case Quarterly:
		qEndMonth := ((int(d.Month())-1)/3 + 1) * 3
		return time.Date(d.Year(), time.Month(qEndMonth)+1, 0, 0, 0, 0, 0, time.UTC)
	case Yearly:
		return time.Date(d.Year(), time.December, 31, 0, 0, 0, 0, time.UTC)
	default:
		return d
	}
}
