// Package calendar implements the working-time model: a holiday calendar and
// a business-hours engine that measures and projects working minutes.
package calendar

import (
	"fmt"
	"time"
)

// Holiday is a single non-working date. Observed overrides the calendar date
// when a holiday is moved (e.g. weekend holidays observed on Monday). Partial
// holidays carry a reduced working window instead of a full closure.
type Holiday struct {
	Date     time.Time
	Observed *time.Time
	Name     string
	Partial  *PartialHours
}

// PartialHours is the reduced working window on a partial holiday.
type PartialHours struct {
	Start string // HH:MM
	End   string // HH:MM
}

// HolidayCalendar answers date-level working/non-working questions. The set is
// configuration: immutable once constructed.
type HolidayCalendar struct {
	byDate  map[string]Holiday
	workDay func(time.Weekday) bool
}

// NewHolidayCalendar indexes holidays by calendar date and observed date.
// workDay reports whether a weekday belongs to the configured work week; a nil
// workDay treats Monday through Friday as working days.
func NewHolidayCalendar(holidays []Holiday, workDay func(time.Weekday) bool) *HolidayCalendar {
	if workDay == nil {
		workDay = func(d time.Weekday) bool {
			return d >= time.Monday && d <= time.Friday
		}
	}
	c := &HolidayCalendar{
		byDate:  make(map[string]Holiday, len(holidays)*2),
		workDay: workDay,
	}
	for _, h := range holidays {
		c.byDate[dateKey(h.Date)] = h
		if h.Observed != nil {
			c.byDate[dateKey(*h.Observed)] = h
		}
	}
	return c
}

// IsHoliday reports whether the date (time of day ignored) is a holiday or an
// observed holiday.
func (c *HolidayCalendar) IsHoliday(date time.Time) bool {
	_, ok := c.byDate[dateKey(date)]
	return ok
}

// IsPartialHoliday reports whether the date is a holiday with a reduced
// working window.
func (c *HolidayCalendar) IsPartialHoliday(date time.Time) bool {
	h, ok := c.byDate[dateKey(date)]
	return ok && h.Partial != nil
}

// PartialHours returns the reduced window for a partial holiday. Referencing a
// partial holiday that defines no window is a configuration error.
func (c *HolidayCalendar) PartialHours(date time.Time) (PartialHours, error) {
	h, ok := c.byDate[dateKey(date)]
	if !ok {
		return PartialHours{}, &ConfigError{Reason: fmt.Sprintf("no holiday on %s", dateKey(date))}
	}
	if h.Partial == nil {
		return PartialHours{}, &ConfigError{Reason: fmt.Sprintf("holiday %q on %s has no partial hours window", h.Name, dateKey(date))}
	}
	return *h.Partial, nil
}

// HolidayName returns the name of the holiday on date, if any.
func (c *HolidayCalendar) HolidayName(date time.Time) (string, bool) {
	h, ok := c.byDate[dateKey(date)]
	if !ok {
		return "", false
	}
	return h.Name, true
}

// NextBusinessDay returns the smallest date strictly after date that is
// neither a holiday nor outside the work week. The walk is capped so broken
// configuration fails instead of spinning.
func (c *HolidayCalendar) NextBusinessDay(date time.Time) (time.Time, error) {
	d := truncateToDay(date)
	for i := 0; i < maxDayWalk; i++ {
		d = d.AddDate(0, 0, 1)
		if !c.IsHoliday(d) && c.workDay(d.Weekday()) {
			return d, nil
		}
	}
	return time.Time{}, &ConfigError{Reason: fmt.Sprintf("no business day within %d days after %s", maxDayWalk, dateKey(date))}
}

func dateKey(t time.Time) string {
	return t.Format("2006-01-02")
}

func truncateToDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
