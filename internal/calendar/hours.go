package calendar

import (
	"fmt"
	"regexp"
	"time"
)

// maxDayWalk caps every forward day-by-day search so a configuration with no
// eligible working day fails instead of looping forever.
const maxDayWalk = 400

var timeOfDayPattern = regexp.MustCompile(`^([01][0-9]|2[0-3]):[0-5][0-9]$`)

// HoursConfig describes the working window of a deployment. Days use ISO
// numbering, 1=Monday through 7=Sunday. A StartDay greater than EndDay wraps
// across the weekend (e.g. 6..2 is Saturday through Tuesday).
type HoursConfig struct {
	Timezone   string
	StartDay   int
	EndDay     int
	DayStart   string // HH:MM
	DayEnd     string // HH:MM
	LunchStart string // HH:MM, optional
	LunchEnd   string // HH:MM, optional
}

type minuteOfDay int

// Engine answers working-time questions for one HoursConfig and holiday set.
type Engine struct {
	cfg      HoursConfig
	cal      *HolidayCalendar
	loc      *time.Location
	dayStart minuteOfDay
	dayEnd   minuteOfDay
	lunch    bool
	lunchLo  minuteOfDay
	lunchHi  minuteOfDay
}

// NewEngine validates the configuration and binds it to a holiday set. Invalid
// configuration returns a ConfigError; there is no partial construction.
func NewEngine(cfg HoursConfig, holidays []Holiday) (*Engine, error) {
	if cfg.StartDay < 1 || cfg.StartDay > 7 || cfg.EndDay < 1 || cfg.EndDay > 7 {
		return nil, &ConfigError{Reason: fmt.Sprintf("work week days must be 1-7, got %d..%d", cfg.StartDay, cfg.EndDay)}
	}
	if cfg.StartDay > cfg.EndDay && cfg.StartDay < 5 {
		return nil, &ConfigError{Reason: fmt.Sprintf("work week %d..%d wraps but is not a weekend-spanning pattern", cfg.StartDay, cfg.EndDay)}
	}
	loc := time.UTC
	if cfg.Timezone != "" {
		var err error
		loc, err = time.LoadLocation(cfg.Timezone)
		if err != nil {
			return nil, &ConfigError{Reason: fmt.Sprintf("unknown timezone %q", cfg.Timezone)}
		}
	}
	start, err := parseTimeOfDay(cfg.DayStart)
	if err != nil {
		return nil, err
	}
	end, err := parseTimeOfDay(cfg.DayEnd)
	if err != nil {
		return nil, err
	}
	if end <= start {
		return nil, &ConfigError{Reason: fmt.Sprintf("day end %s must be after day start %s", cfg.DayEnd, cfg.DayStart)}
	}
	e := &Engine{
		cfg:      cfg,
		loc:      loc,
		dayStart: start,
		dayEnd:   end,
	}
	if cfg.LunchStart != "" || cfg.LunchEnd != "" {
		lo, err := parseTimeOfDay(cfg.LunchStart)
		if err != nil {
			return nil, err
		}
		hi, err := parseTimeOfDay(cfg.LunchEnd)
		if err != nil {
			return nil, err
		}
		if hi <= lo || lo < start || hi > end {
			return nil, &ConfigError{Reason: fmt.Sprintf("lunch window %s-%s must sit inside the working day", cfg.LunchStart, cfg.LunchEnd)}
		}
		e.lunch = true
		e.lunchLo = lo
		e.lunchHi = hi
	}
	e.cal = NewHolidayCalendar(holidays, e.isWorkDay)
	return e, nil
}

// Calendar exposes the bound holiday calendar.
func (e *Engine) Calendar() *HolidayCalendar { return e.cal }

// Location exposes the configured timezone.
func (e *Engine) Location() *time.Location { return e.loc }

func (e *Engine) isWorkDay(d time.Weekday) bool {
	iso := isoWeekday(d)
	if e.cfg.StartDay <= e.cfg.EndDay {
		return iso >= e.cfg.StartDay && iso <= e.cfg.EndDay
	}
	return iso >= e.cfg.StartDay || iso <= e.cfg.EndDay
}

// dayWindow resolves the working window for one calendar day: the regular
// window, the reduced window on a partial holiday, or no window at all.
func (e *Engine) dayWindow(day time.Time) (lo, hi minuteOfDay, open bool, err error) {
	if !e.isWorkDay(day.Weekday()) {
		return 0, 0, false, nil
	}
	if !e.cal.IsHoliday(day) {
		return e.dayStart, e.dayEnd, true, nil
	}
	if !e.cal.IsPartialHoliday(day) {
		return 0, 0, false, nil
	}
	ph, err := e.cal.PartialHours(day)
	if err != nil {
		return 0, 0, false, err
	}
	lo, err = parseTimeOfDay(ph.Start)
	if err != nil {
		return 0, 0, false, err
	}
	hi, err = parseTimeOfDay(ph.End)
	if err != nil {
		return 0, 0, false, err
	}
	if hi <= lo {
		return 0, 0, false, &ConfigError{Reason: fmt.Sprintf("partial holiday window %s-%s on %s is empty", ph.Start, ph.End, dateKey(day))}
	}
	return lo, hi, true, nil
}

// IsBusinessHour reports whether the instant falls inside working time:
// an eligible weekday, not a (full) holiday, inside the daily window and
// outside the lunch break.
func (e *Engine) IsBusinessHour(t time.Time) bool {
	t = t.In(e.loc)
	lo, hi, open, err := e.dayWindow(t)
	if err != nil || !open {
		return false
	}
	m := minuteOf(t)
	if m < lo || m >= hi {
		return false
	}
	if e.lunch && m >= e.lunchLo && m < e.lunchHi {
		return false
	}
	return true
}

// NextBusinessStart returns the next instant at or after t that is a business
// hour. It walks forward day by day, jumping to the day's opening time, and
// fails with a CalcError if no eligible day exists within the search cap.
func (e *Engine) NextBusinessStart(t time.Time) (time.Time, error) {
	cur := t.In(e.loc).Truncate(time.Minute)
	for i := 0; i < maxDayWalk; i++ {
		lo, hi, open, err := e.dayWindow(cur)
		if err != nil {
			return time.Time{}, err
		}
		if open {
			m := minuteOf(cur)
			inLunch := e.lunch && m >= e.lunchLo && m < e.lunchHi
			switch {
			case m < lo:
				return atMinute(cur, lo), nil
			case inLunch && e.lunchHi < hi:
				return atMinute(cur, e.lunchHi), nil
			case !inLunch && m < hi:
				return cur, nil
			}
		}
		cur = truncateToDay(cur).AddDate(0, 0, 1)
	}
	return time.Time{}, &CalcError{Reason: fmt.Sprintf("no business hours within %d days of %s", maxDayWalk, t.Format(time.RFC3339))}
}

// BusinessMinutesBetween counts whole business minutes inside [start, end),
// returning 0 when end is not after start. The scan is per-day with window
// arithmetic, so multi-month spans stay cheap.
func (e *Engine) BusinessMinutesBetween(start, end time.Time) (int, error) {
	start = start.In(e.loc).Truncate(time.Minute)
	end = end.In(e.loc).Truncate(time.Minute)
	if !end.After(start) {
		return 0, nil
	}
	total := 0
	day := truncateToDay(start)
	for i := 0; !day.After(end); i++ {
		if i > maxDayWalk+int(end.Sub(start)/(24*time.Hour)) {
			return 0, &CalcError{Reason: "business minute scan exceeded day cap"}
		}
		lo, hi, open, err := e.dayWindow(day)
		if err != nil {
			return 0, err
		}
		if open {
			segments := [][2]minuteOfDay{{lo, hi}}
			if e.lunch && e.lunchLo >= lo && e.lunchHi <= hi {
				segments = [][2]minuteOfDay{{lo, e.lunchLo}, {e.lunchHi, hi}}
			}
			for _, seg := range segments {
				segStart := atMinute(day, seg[0])
				segEnd := atMinute(day, seg[1])
				if segStart.Before(start) {
					segStart = start
				}
				if segEnd.After(end) {
					segEnd = end
				}
				if segEnd.After(segStart) {
					total += int(segEnd.Sub(segStart) / time.Minute)
				}
			}
		}
		day = day.AddDate(0, 0, 1)
	}
	return total, nil
}

// AddBusinessMinutes projects start forward by target business minutes. A
// non-business start is first rolled forward to the next business opening;
// a non-positive target returns start unchanged.
func (e *Engine) AddBusinessMinutes(start time.Time, target int) (time.Time, error) {
	if target <= 0 {
		return start, nil
	}
	cur, err := e.NextBusinessStart(start)
	if err != nil {
		return time.Time{}, err
	}
	remaining := target
	for i := 0; i < maxDayWalk*2; i++ {
		segEnd, err := e.segmentEnd(cur)
		if err != nil {
			return time.Time{}, err
		}
		available := int(segEnd.Sub(cur) / time.Minute)
		if remaining <= available {
			return cur.Add(time.Duration(remaining) * time.Minute), nil
		}
		remaining -= available
		cur, err = e.NextBusinessStart(segEnd)
		if err != nil {
			return time.Time{}, err
		}
	}
	return time.Time{}, &CalcError{Reason: fmt.Sprintf("could not place %d business minutes within the search cap", target)}
}

// segmentEnd returns the end of the contiguous working segment containing t,
// which must be a business hour.
func (e *Engine) segmentEnd(t time.Time) (time.Time, error) {
	_, hi, open, err := e.dayWindow(t)
	if err != nil {
		return time.Time{}, err
	}
	if !open {
		return time.Time{}, &CalcError{Reason: fmt.Sprintf("%s is not inside a working day", t.Format(time.RFC3339))}
	}
	m := minuteOf(t)
	if e.lunch && m < e.lunchLo && e.lunchLo < hi {
		return atMinute(t, e.lunchLo), nil
	}
	return atMinute(t, hi), nil
}

func parseTimeOfDay(s string) (minuteOfDay, error) {
	if !timeOfDayPattern.MatchString(s) {
		return 0, &ConfigError{Reason: fmt.Sprintf("time %q is not HH:MM", s)}
	}
	h := int(s[0]-'0')*10 + int(s[1]-'0')
	m := int(s[3]-'0')*10 + int(s[4]-'0')
	return minuteOfDay(h*60 + m), nil
}

func minuteOf(t time.Time) minuteOfDay {
	return minuteOfDay(t.Hour()*60 + t.Minute())
}

func atMinute(day time.Time, m minuteOfDay) time.Time {
	return time.Date(day.Year(), day.Month(), day.Day(), int(m)/60, int(m)%60, 0, 0, day.Location())
}

func isoWeekday(d time.Weekday) int {
	if d == time.Sunday {
		return 7
	}
	return int(d)
}
