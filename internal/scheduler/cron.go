// Package scheduler provides the periodic task runner behind escalation
// sweeps: cron parsing, per-task timeout and retry, re-entrancy guards and a
// supervised registry of running tasks.
package scheduler

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// nextRunBound caps the minute-by-minute scan for the next cron match at one
// year; an expression with no match inside the bound is an error, never an
// endless loop.
const nextRunBound = 366 * 24 * 60

// CronSchedule is a parsed 5-field cron expression. Each field is the set of
// accepted values.
type CronSchedule struct {
	Minutes     map[int]bool
	Hours       map[int]bool
	DaysOfMonth map[int]bool
	Months      map[int]bool
	DaysOfWeek  map[int]bool // 0=Sunday

	domStar bool
	dowStar bool
}

type cronField struct {
	name string
	min  int
	max  int
}

var cronFields = [5]cronField{
	{"minute", 0, 59},
	{"hour", 0, 23},
	{"day-of-month", 1, 31},
	{"month", 1, 12},
	{"day-of-week", 0, 7}, // 7 normalizes to 0
}

// ParseCron parses the 5-field form (minute hour day-of-month month
// day-of-week) with wildcards, ranges, steps and comma lists.
func ParseCron(expr string) (*CronSchedule, error) {
	parts := strings.Fields(expr)
	if len(parts) != 5 {
		return nil, fmt.Errorf("cron %q: want 5 fields, got %d", expr, len(parts))
	}
	sets := make([]map[int]bool, 5)
	for i, part := range parts {
		set, err := parseCronField(part, cronFields[i])
		if err != nil {
			return nil, fmt.Errorf("cron %q: %w", expr, err)
		}
		sets[i] = set
	}
	s := &CronSchedule{
		Minutes:     sets[0],
		Hours:       sets[1],
		DaysOfMonth: sets[2],
		Months:      sets[3],
		DaysOfWeek:  normalizeSunday(sets[4]),
		domStar:     parts[2] == "*",
		dowStar:     parts[4] == "*",
	}
	return s, nil
}

func parseCronField(spec string, f cronField) (map[int]bool, error) {
	set := make(map[int]bool)
	for _, item := range strings.Split(spec, ",") {
		lo, hi, step := f.min, f.max, 1
		rangePart := item
		if idx := strings.IndexByte(item, '/'); idx >= 0 {
			rangePart = item[:idx]
			n, err := strconv.Atoi(item[idx+1:])
			if err != nil || n <= 0 {
				return nil, fmt.Errorf("%s: bad step in %q", f.name, item)
			}
			step = n
		}
		switch {
		case rangePart == "*":
			// full range
		case strings.Contains(rangePart, "-"):
			bounds := strings.SplitN(rangePart, "-", 2)
			a, err1 := strconv.Atoi(bounds[0])
			b, err2 := strconv.Atoi(bounds[1])
			if err1 != nil || err2 != nil {
				return nil, fmt.Errorf("%s: bad range %q", f.name, item)
			}
			lo, hi = a, b
		default:
			n, err := strconv.Atoi(rangePart)
			if err != nil {
				return nil, fmt.Errorf("%s: bad value %q", f.name, item)
			}
			lo, hi = n, n
		}
		if lo < f.min || hi > f.max || lo > hi {
			return nil, fmt.Errorf("%s: %q outside %d-%d", f.name, item, f.min, f.max)
		}
		for v := lo; v <= hi; v += step {
			set[v] = true
		}
	}
	return set, nil
}

func normalizeSunday(dow map[int]bool) map[int]bool {
	if dow[7] {
		delete(dow, 7)
		dow[0] = true
	}
	return dow
}

// Matches reports whether the instant satisfies the schedule. Day-of-month
// and day-of-week follow cron convention: when both are restricted, either
// matching suffices.
func (s *CronSchedule) Matches(t time.Time) bool {
	if !s.Minutes[t.Minute()] || !s.Hours[t.Hour()] || !s.Months[int(t.Month())] {
		return false
	}
	domOK := s.DaysOfMonth[t.Day()]
	dowOK := s.DaysOfWeek[int(t.Weekday())]
	if !s.domStar && !s.dowStar {
		return domOK || dowOK
	}
	return domOK && dowOK
}

// Next returns the first matching instant strictly after t, scanning forward
// minute by minute bounded to one year.
func (s *CronSchedule) Next(t time.Time) (time.Time, error) {
	cur := t.Truncate(time.Minute)
	for i := 0; i < nextRunBound; i++ {
		cur = cur.Add(time.Minute)
		if s.Matches(cur) {
			return cur, nil
		}
	}
	return time.Time{}, fmt.Errorf("cron: no run within one year after %s", t.Format(time.RFC3339))
}
