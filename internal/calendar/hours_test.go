package calendar

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func mustEngine(t *testing.T, cfg HoursConfig, holidays []Holiday) *Engine {
	t.Helper()
	e, err := NewEngine(cfg, holidays)
	require.NoError(t, err)
	return e
}

func weekdayConfig() HoursConfig {
	return HoursConfig{
		Timezone: "UTC",
		StartDay: 1,
		EndDay:   5,
		DayStart: "09:00",
		DayEnd:   "17:00",
	}
}

// 2024-01-08 is a Monday.
func jan(day, hour, min int) time.Time {
	return time.Date(2024, time.January, day, hour, min, 0, 0, time.UTC)
}

func TestNewEngineValidation(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*HoursConfig)
	}{
		{"start day out of range", func(c *HoursConfig) { c.StartDay = 0 }},
		{"end day out of range", func(c *HoursConfig) { c.EndDay = 8 }},
		{"bad wrap pattern", func(c *HoursConfig) { c.StartDay = 3; c.EndDay = 2 }},
		{"bad start time", func(c *HoursConfig) { c.DayStart = "9am" }},
		{"bad end time", func(c *HoursConfig) { c.DayEnd = "25:00" }},
		{"end before start", func(c *HoursConfig) { c.DayStart = "17:00"; c.DayEnd = "09:00" }},
		{"lunch outside day", func(c *HoursConfig) { c.LunchStart = "08:00"; c.LunchEnd = "08:30" }},
		{"unknown timezone", func(c *HoursConfig) { c.Timezone = "Mars/Olympus" }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := weekdayConfig()
			tc.mutate(&cfg)
			_, err := NewEngine(cfg, nil)
			require.Error(t, err)
			var cfgErr *ConfigError
			require.ErrorAs(t, err, &cfgErr)
		})
	}
}

func TestNewEngineAcceptsWeekendSpanningWeek(t *testing.T) {
	cfg := weekdayConfig()
	cfg.StartDay = 6 // Saturday..Tuesday
	cfg.EndDay = 2
	e := mustEngine(t, cfg, nil)

	require.True(t, e.IsBusinessHour(jan(13, 10, 0)))  // Saturday
	require.True(t, e.IsBusinessHour(jan(15, 10, 0)))  // Monday
	require.False(t, e.IsBusinessHour(jan(10, 10, 0))) // Wednesday
}

func TestIsBusinessHour(t *testing.T) {
	e := mustEngine(t, weekdayConfig(), nil)

	require.True(t, e.IsBusinessHour(jan(8, 10, 0)))   // Monday 10:00
	require.False(t, e.IsBusinessHour(jan(6, 10, 0)))  // Saturday
	require.False(t, e.IsBusinessHour(jan(8, 8, 0)))   // before opening
	require.False(t, e.IsBusinessHour(jan(8, 17, 0)))  // at close
	require.True(t, e.IsBusinessHour(jan(8, 16, 59)))  // last working minute
}

func TestIsBusinessHourLunchBreak(t *testing.T) {
	cfg := weekdayConfig()
	cfg.LunchStart = "12:00"
	cfg.LunchEnd = "13:00"
	e := mustEngine(t, cfg, nil)

	require.True(t, e.IsBusinessHour(jan(8, 11, 59)))
	require.False(t, e.IsBusinessHour(jan(8, 12, 0)))
	require.False(t, e.IsBusinessHour(jan(8, 12, 30)))
	require.True(t, e.IsBusinessHour(jan(8, 13, 0)))
}

func TestIsBusinessHourHoliday(t *testing.T) {
	e := mustEngine(t, weekdayConfig(), []Holiday{{Date: jan(8, 0, 0), Name: "Founders Day"}})
	require.False(t, e.IsBusinessHour(jan(8, 10, 0)))
	require.True(t, e.IsBusinessHour(jan(9, 10, 0)))
}

func TestPartialHolidayWindow(t *testing.T) {
	holidays := []Holiday{{
		Date:    jan(8, 0, 0),
		Name:    "Inventory Day",
		Partial: &PartialHours{Start: "09:00", End: "12:00"},
	}}
	e := mustEngine(t, weekdayConfig(), holidays)

	require.True(t, e.IsBusinessHour(jan(8, 10, 0)))
	require.False(t, e.IsBusinessHour(jan(8, 14, 0)))

	mins, err := e.BusinessMinutesBetween(jan(8, 9, 0), jan(8, 17, 0))
	require.NoError(t, err)
	require.Equal(t, 180, mins)
}

func TestBusinessMinutesBetween(t *testing.T) {
	e := mustEngine(t, weekdayConfig(), nil)

	mins, err := e.BusinessMinutesBetween(jan(8, 9, 0), jan(8, 10, 0))
	require.NoError(t, err)
	require.Equal(t, 60, mins)

	// Friday afternoon across the weekend into Monday morning.
	mins, err = e.BusinessMinutesBetween(jan(12, 16, 0), jan(15, 10, 0))
	require.NoError(t, err)
	require.Equal(t, 120, mins)

	// end <= start yields zero.
	mins, err = e.BusinessMinutesBetween(jan(8, 10, 0), jan(8, 10, 0))
	require.NoError(t, err)
	require.Equal(t, 0, mins)

	mins, err = e.BusinessMinutesBetween(jan(8, 10, 0), jan(8, 9, 0))
	require.NoError(t, err)
	require.Equal(t, 0, mins)
}

func TestBusinessMinutesBetweenSkipsLunchAndWeekend(t *testing.T) {
	cfg := weekdayConfig()
	cfg.LunchStart = "12:00"
	cfg.LunchEnd = "13:00"
	e := mustEngine(t, cfg, nil)

	// Full Friday (7h net of lunch) plus first Monday hour.
	mins, err := e.BusinessMinutesBetween(jan(12, 9, 0), jan(15, 10, 0))
	require.NoError(t, err)
	require.Equal(t, 7*60+60, mins)
}

func TestAddBusinessMinutes(t *testing.T) {
	e := mustEngine(t, weekdayConfig(), nil)

	// 30 minutes left on Friday, the remaining hour lands Monday morning.
	got, err := e.AddBusinessMinutes(jan(12, 16, 30), 90)
	require.NoError(t, err)
	require.Equal(t, jan(15, 10, 0), got)

	// Non-positive target returns the input unchanged.
	got, err = e.AddBusinessMinutes(jan(12, 16, 30), 0)
	require.NoError(t, err)
	require.Equal(t, jan(12, 16, 30), got)

	// A weekend start rolls forward to Monday opening first.
	got, err = e.AddBusinessMinutes(jan(13, 11, 0), 30)
	require.NoError(t, err)
	require.Equal(t, jan(15, 9, 30), got)
}

func TestAddBusinessMinutesSkipsHolidayMonday(t *testing.T) {
	e := mustEngine(t, weekdayConfig(), []Holiday{{Date: jan(15, 0, 0), Name: "Founders Day"}})

	got, err := e.AddBusinessMinutes(jan(12, 16, 30), 90)
	require.NoError(t, err)
	require.Equal(t, jan(16, 10, 0), got)
}

func TestNextBusinessStart(t *testing.T) {
	cfg := weekdayConfig()
	cfg.LunchStart = "12:00"
	cfg.LunchEnd = "13:00"
	e := mustEngine(t, cfg, nil)

	cases := []struct {
		name string
		in   time.Time
		want time.Time
	}{
		{"already working", jan(8, 10, 0), jan(8, 10, 0)},
		{"before opening", jan(8, 7, 0), jan(8, 9, 0)},
		{"during lunch", jan(8, 12, 15), jan(8, 13, 0)},
		{"after close", jan(8, 18, 0), jan(9, 9, 0)},
		{"saturday", jan(13, 11, 0), jan(15, 9, 0)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := e.NextBusinessStart(tc.in)
			require.NoError(t, err)
			require.Equal(t, tc.want, got)
		})
	}
}
