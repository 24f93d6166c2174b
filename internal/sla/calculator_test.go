package sla

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/clearway-fin/clearway/internal/calendar"
)

// 2024-01-08 is a Monday.
func jan(day, hour, min int) time.Time {
	return time.Date(2024, time.January, day, hour, min, 0, 0, time.UTC)
}

func testPolicy(holidays []calendar.Holiday) Policy {
	return Policy{
		ResponseTargetMinutes:   60,
		ResolutionTargetMinutes: 480,
		Priorities: map[string]PriorityRule{
			StandardPriority: {Multiplier: 1.0, MaxBreachMinutes: 120},
			"critical":       {Multiplier: 0.25, MaxBreachMinutes: 30},
			"low":            {Multiplier: 2.0, MaxBreachMinutes: 480},
		},
		Hours: calendar.HoursConfig{
			Timezone: "UTC",
			StartDay: 1,
			EndDay:   5,
			DayStart: "09:00",
			DayEnd:   "17:00",
		},
		Holidays: holidays,
	}
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestNewCalculatorRequiresStandardPriority(t *testing.T) {
	p := testPolicy(nil)
	delete(p.Priorities, StandardPriority)
	_, err := NewCalculator(p, nil)
	require.Error(t, err)
}

func TestResponseDeadlineCriticalMultiplier(t *testing.T) {
	calc, err := NewCalculator(testPolicy(nil), fixedClock(jan(8, 9, 0)))
	require.NoError(t, err)

	res, err := calc.ResponseDeadline(jan(8, 9, 0), "critical")
	require.NoError(t, err)
	require.Equal(t, jan(8, 9, 15), res.Deadline)
	require.Equal(t, 15, res.TargetMinutes)
	require.False(t, res.Breached)
	require.Equal(t, 15, res.RemainingMinutes)
}

func TestResponseDeadlineUnknownPriorityFallsBackToStandard(t *testing.T) {
	calc, err := NewCalculator(testPolicy(nil), fixedClock(jan(8, 9, 30)))
	require.NoError(t, err)

	res, err := calc.ResponseDeadline(jan(8, 9, 0), "does-not-exist")
	require.NoError(t, err)
	require.Equal(t, jan(8, 10, 0), res.Deadline)
	require.Equal(t, 60, res.TargetMinutes)
	require.Equal(t, 30, res.ElapsedBusinessMinutes)
	require.Equal(t, 30, res.RemainingMinutes)
}

func TestResponseDeadlineBreached(t *testing.T) {
	calc, err := NewCalculator(testPolicy(nil), fixedClock(jan(8, 11, 0)))
	require.NoError(t, err)

	res, err := calc.ResponseDeadline(jan(8, 9, 0), StandardPriority)
	require.NoError(t, err)
	require.True(t, res.Breached)
	require.Equal(t, 0, res.RemainingMinutes)
	require.Equal(t, 120, res.ElapsedBusinessMinutes)
	require.Equal(t, 120, res.ElapsedCalendarMinutes)
}

func TestDeadlineRollsOverWeekend(t *testing.T) {
	// Friday 16:30 + 90 standard minutes lands Monday 10:00.
	p := testPolicy(nil)
	p.ResponseTargetMinutes = 90
	calc, err := NewCalculator(p, fixedClock(jan(12, 16, 30)))
	require.NoError(t, err)

	res, err := calc.ResponseDeadline(jan(12, 16, 30), StandardPriority)
	require.NoError(t, err)
	require.Equal(t, jan(15, 10, 0), res.Deadline)
}

func TestResultReportsHolidaysInInterval(t *testing.T) {
	holidays := []calendar.Holiday{{Date: jan(9, 0, 0), Name: "Founders Day"}}
	calc, err := NewCalculator(testPolicy(holidays), fixedClock(jan(10, 12, 0)))
	require.NoError(t, err)

	res, err := calc.ResolutionDeadline(jan(8, 9, 0), StandardPriority)
	require.NoError(t, err)
	require.Equal(t, []string{"Founders Day"}, res.Holidays)
	// The holiday Tuesday contributes no business minutes.
	require.Equal(t, 8*60+3*60, res.ElapsedBusinessMinutes)
}

func TestResponseDeadlineRejectsZeroInstant(t *testing.T) {
	calc, err := NewCalculator(testPolicy(nil), nil)
	require.NoError(t, err)

	_, err = calc.ResponseDeadline(time.Time{}, StandardPriority)
	var calcErr *CalcError
	require.ErrorAs(t, err, &calcErr)
}

func TestWithinSLA(t *testing.T) {
	calc, err := NewCalculator(testPolicy(nil), nil)
	require.NoError(t, err)

	cases := []struct {
		name     string
		now      time.Time
		priority string
		want     Status
	}{
		{"fresh", jan(8, 9, 30), StandardPriority, Status{WithinResponse: true, WithinResolution: true}},
		{"response blown", jan(8, 11, 0), StandardPriority, Status{WithinResponse: false, WithinResolution: true}},
		{"both blown", jan(10, 9, 0), StandardPriority, Status{WithinResponse: false, WithinResolution: false}},
		{"critical shrinks targets", jan(8, 9, 30), "critical", Status{WithinResponse: false, WithinResolution: true}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := calc.WithinSLA(jan(8, 9, 0), tc.now, tc.priority)
			require.NoError(t, err)
			require.Equal(t, tc.want, got)
		})
	}
}

// WithinSLA is referentially transparent: repeated calls with identical inputs
// agree.
func TestWithinSLAPure(t *testing.T) {
	calc, err := NewCalculator(testPolicy(nil), nil)
	require.NoError(t, err)

	first, err := calc.WithinSLA(jan(8, 9, 0), jan(8, 12, 0), "low")
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		again, err := calc.WithinSLA(jan(8, 9, 0), jan(8, 12, 0), "low")
		require.NoError(t, err)
		require.Equal(t, first, again)
	}
}
