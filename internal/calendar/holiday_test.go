package calendar

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHolidayCalendarObservedDate(t *testing.T) {
	observed := jan(15, 0, 0) // the Monday after
	cal := NewHolidayCalendar([]Holiday{{
		Date:     jan(13, 0, 0), // Saturday
		Observed: &observed,
		Name:     "Founders Day",
	}}, nil)

	require.True(t, cal.IsHoliday(jan(13, 0, 0)))
	require.True(t, cal.IsHoliday(jan(15, 0, 0)))
	require.False(t, cal.IsHoliday(jan(16, 0, 0)))

	name, ok := cal.HolidayName(jan(15, 0, 0))
	require.True(t, ok)
	require.Equal(t, "Founders Day", name)
}

func TestHolidayCalendarIgnoresTimeOfDay(t *testing.T) {
	cal := NewHolidayCalendar([]Holiday{{Date: jan(8, 0, 0)}}, nil)
	require.True(t, cal.IsHoliday(jan(8, 15, 42)))
}

func TestPartialHoursMissingWindow(t *testing.T) {
	cal := NewHolidayCalendar([]Holiday{{Date: jan(8, 0, 0), Name: "Stocktake"}}, nil)

	require.False(t, cal.IsPartialHoliday(jan(8, 0, 0)))
	_, err := cal.PartialHours(jan(8, 0, 0))
	require.Error(t, err)
	var cfgErr *ConfigError
	require.ErrorAs(t, err, &cfgErr)
}

func TestNextBusinessDay(t *testing.T) {
	cal := NewHolidayCalendar([]Holiday{{Date: jan(15, 0, 0)}}, nil)

	// Friday -> Monday is a holiday -> Tuesday.
	next, err := cal.NextBusinessDay(jan(12, 10, 0))
	require.NoError(t, err)
	require.Equal(t, jan(16, 0, 0), next)

	// Midweek simply advances one day.
	next, err = cal.NextBusinessDay(jan(9, 0, 0))
	require.NoError(t, err)
	require.Equal(t, jan(10, 0, 0), next)
}
