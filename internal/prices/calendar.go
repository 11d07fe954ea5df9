package prices

import (
	"fmt"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/alpaca"

	"forecaster/internal/domain"
	"forecaster/internal/util"
)

// calendarClient is the subset of *alpaca.Client used to find finished
// sessions.
type calendarClient interface {
	GetCalendar(req alpaca.GetCalendarRequest) ([]alpaca.CalendarDay, error)
}

// Daily bars, extended hours included, are final once this New York time
// has passed.
const (
	settleHour   = 20
	settleMinute = 5
)

// latestFinishedDay returns the most recent trading day whose session has
// settled, as UTC midnight. With a nil calendar it falls back to the clock:
// today after the settle time, otherwise yesterday. Weekends and holidays
// then simply have no bars.
func latestFinishedDay(cal calendarClient, now time.Time, loc *time.Location) (time.Time, error) {
	now = now.In(loc)
	today := util.Day(now)
	settled := now.After(time.Date(now.Year(), now.Month(), now.Day(), settleHour, settleMinute, 0, 0, loc))

	if cal == nil {
		if settled {
			return today, nil
		}
		return today.AddDate(0, 0, -1), nil
	}

	days, err := cal.GetCalendar(alpaca.GetCalendarRequest{
		Start: now.AddDate(0, 0, -7),
		End:   now,
	})
	if err != nil {
		return time.Time{}, fmt.Errorf("GetCalendar: %w", err)
	}

	for i := len(days) - 1; i >= 0; i-- {
		d, err := domain.ParseDate(days[i].Date)
		if err != nil {
			continue
		}
		if d.After(today) || (d.Equal(today) && !settled) {
			continue
		}
		return d, nil
	}
	return time.Time{}, fmt.Errorf("no finished trading day in the calendar week before %s", today.Format(domain.DateLayout))
}
