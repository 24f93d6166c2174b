package app

import (
	"testing"

	"github.com/stretchr/testify/require"
)

const sampleSettings = `
business_hours:
  timezone: America/New_York
  start_day: 1
  end_day: 5
  day_start: "09:00"
  day_end: "17:30"
  lunch_start: "12:00"
  lunch_end: "13:00"
holidays:
  - date: 2024-12-25
    name: Christmas Day
  - date: 2024-12-24
    name: Christmas Eve
    partial:
      start: "09:00"
      end: "12:00"
sla:
  response_target_minutes: 480
  resolution_target_minutes: 2400
  priorities:
    critical:
      multiplier: 0.25
      max_breach_minutes: 60
    high:
      multiplier: 0.5
    standard:
      multiplier: 1.0
    low:
      multiplier: 2.0
routing:
  default:
    - role: CLERK
      ceiling: 10000
    - role: MANAGER
      ceiling: 50000
    - role: FIN_MANAGER
      ceiling: 200000
    - role: EXEC
      ceiling: 0
  departments:
    CAPEX:
      - role: MANAGER
        ceiling: 25000
      - role: EXEC
        ceiling: 0
`

func TestParseSettings(t *testing.T) {
	s, err := ParseSettings([]byte(sampleSettings))
	require.NoError(t, err)

	hours := s.Hours()
	require.Equal(t, "America/New_York", hours.Timezone)
	require.Equal(t, 1, hours.StartDay)
	require.Equal(t, "17:30", hours.DayEnd)

	holidays, err := s.HolidayList()
	require.NoError(t, err)
	require.Len(t, holidays, 2)
	require.Equal(t, "Christmas Eve", holidays[1].Name)
	require.NotNil(t, holidays[1].Partial)
	require.Equal(t, "12:00", holidays[1].Partial.End)

	policy, err := s.Policy()
	require.NoError(t, err)
	require.Equal(t, 480, policy.ResponseTargetMinutes)
	require.InDelta(t, 0.25, policy.Priorities["critical"].Multiplier, 1e-9)

	chain, err := s.ChainConfig()
	require.NoError(t, err)
	require.Len(t, chain.Default, 4)
	require.Equal(t, "EXEC", chain.Default[3].Role)
	require.Zero(t, chain.Default[3].Ceiling)
	require.Len(t, chain.Departments["CAPEX"], 2)
}

func TestParseSettingsRejectsBadChain(t *testing.T) {
	s, err := ParseSettings([]byte(`
business_hours:
  start_day: 1
  end_day: 5
  day_start: "09:00"
  day_end: "17:00"
routing:
  default:
    - role: MANAGER
      ceiling: 50000
    - role: CLERK
      ceiling: 10000
`))
	require.NoError(t, err)

	_, err = s.ChainConfig()
	require.Error(t, err)
}

func TestParseSettingsRejectsBadHolidayDate(t *testing.T) {
	s, err := ParseSettings([]byte(`
holidays:
  - date: 25-12-2024
    name: Christmas Day
`))
	require.NoError(t, err)

	_, err = s.HolidayList()
	require.Error(t, err)
}
