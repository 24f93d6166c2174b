package app

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/clearway-fin/clearway/internal/calendar"
	"github.com/clearway-fin/clearway/internal/routing"
	"github.com/clearway-fin/clearway/internal/sla"
)

// Settings is the YAML-backed deployment configuration: business hours,
// holidays, SLA targets and the approval chain tiers. Everything here is
// immutable once loaded.
type Settings struct {
	BusinessHours hoursSettings   `yaml:"business_hours"`
	Holidays      []holidayEntry  `yaml:"holidays"`
	SLA           slaSettings     `yaml:"sla"`
	Routing       routingSettings `yaml:"routing"`
}

type hoursSettings struct {
	Timezone   string `yaml:"timezone"`
	StartDay   int    `yaml:"start_day"`
	EndDay     int    `yaml:"end_day"`
	DayStart   string `yaml:"day_start"`
	DayEnd     string `yaml:"day_end"`
	LunchStart string `yaml:"lunch_start"`
	LunchEnd   string `yaml:"lunch_end"`
}

type holidayEntry struct {
	Date     string        `yaml:"date"`
	Name     string        `yaml:"name"`
	Observed string        `yaml:"observed"`
	Partial  *partialEntry `yaml:"partial"`
}

type partialEntry struct {
	Start string `yaml:"start"`
	End   string `yaml:"end"`
}

type slaSettings struct {
	ResponseTargetMinutes   int                      `yaml:"response_target_minutes"`
	ResolutionTargetMinutes int                      `yaml:"resolution_target_minutes"`
	Priorities              map[string]priorityEntry `yaml:"priorities"`
}

type priorityEntry struct {
	Multiplier       float64 `yaml:"multiplier"`
	MaxBreachMinutes int     `yaml:"max_breach_minutes"`
}

type routingSettings struct {
	Default     []tierEntry            `yaml:"default"`
	Departments map[string][]tierEntry `yaml:"departments"`
}

type tierEntry struct {
	Role    string  `yaml:"role"`
	Ceiling float64 `yaml:"ceiling"`
}

// LoadSettings reads and parses the settings file.
func LoadSettings(path string) (*Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("app: read settings: %w", err)
	}
	return ParseSettings(data)
}

// ParseSettings decodes settings from YAML.
func ParseSettings(data []byte) (*Settings, error) {
	var s Settings
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("app: parse settings: %w", err)
	}
	return &s, nil
}

// Hours converts the business hours section.
func (s *Settings) Hours() calendar.HoursConfig {
	return calendar.HoursConfig{
		Timezone:   s.BusinessHours.Timezone,
		StartDay:   s.BusinessHours.StartDay,
		EndDay:     s.BusinessHours.EndDay,
		DayStart:   s.BusinessHours.DayStart,
		DayEnd:     s.BusinessHours.DayEnd,
		LunchStart: s.BusinessHours.LunchStart,
		LunchEnd:   s.BusinessHours.LunchEnd,
	}
}

// HolidayList converts the holiday section. Dates use the 2006-01-02 layout
// in the calendar's timezone.
func (s *Settings) HolidayList() ([]calendar.Holiday, error) {
	loc := time.UTC
	if s.BusinessHours.Timezone != "" {
		parsed, err := time.LoadLocation(s.BusinessHours.Timezone)
		if err != nil {
			return nil, fmt.Errorf("app: settings timezone: %w", err)
		}
		loc = parsed
	}

	out := make([]calendar.Holiday, 0, len(s.Holidays))
	for _, h := range s.Holidays {
		date, err := time.ParseInLocation("2006-01-02", h.Date, loc)
		if err != nil {
			return nil, fmt.Errorf("app: holiday %q: %w", h.Name, err)
		}
		holiday := calendar.Holiday{Date: date, Name: h.Name}
		if h.Observed != "" {
			observed, err := time.ParseInLocation("2006-01-02", h.Observed, loc)
			if err != nil {
				return nil, fmt.Errorf("app: holiday %q observed: %w", h.Name, err)
			}
			holiday.Observed = &observed
		}
		if h.Partial != nil {
			holiday.Partial = &calendar.PartialHours{Start: h.Partial.Start, End: h.Partial.End}
		}
		out = append(out, holiday)
	}
	return out, nil
}

// Policy assembles the SLA policy from the settings.
func (s *Settings) Policy() (sla.Policy, error) {
	holidays, err := s.HolidayList()
	if err != nil {
		return sla.Policy{}, err
	}
	priorities := make(map[string]sla.PriorityRule, len(s.SLA.Priorities))
	for name, p := range s.SLA.Priorities {
		priorities[name] = sla.PriorityRule{
			Multiplier:       p.Multiplier,
			MaxBreachMinutes: p.MaxBreachMinutes,
		}
	}
	policy := sla.Policy{
		ResponseTargetMinutes:   s.SLA.ResponseTargetMinutes,
		ResolutionTargetMinutes: s.SLA.ResolutionTargetMinutes,
		Priorities:              priorities,
		Hours:                   s.Hours(),
		Holidays:                holidays,
	}
	if err := policy.Validate(); err != nil {
		return sla.Policy{}, err
	}
	return policy, nil
}

// ChainConfig assembles the approval tier configuration.
func (s *Settings) ChainConfig() (routing.ChainConfig, error) {
	convert := func(entries []tierEntry) []routing.Tier {
		tiers := make([]routing.Tier, 0, len(entries))
		for _, e := range entries {
			tiers = append(tiers, routing.Tier{Role: e.Role, Ceiling: e.Ceiling})
		}
		return tiers
	}

	cfg := routing.ChainConfig{Default: convert(s.Routing.Default)}
	if len(s.Routing.Departments) > 0 {
		cfg.Departments = make(map[string][]routing.Tier, len(s.Routing.Departments))
		for dept, entries := range s.Routing.Departments {
			cfg.Departments[dept] = convert(entries)
		}
	}
	if err := cfg.Validate(); err != nil {
		return routing.ChainConfig{}, err
	}
	return cfg, nil
}
