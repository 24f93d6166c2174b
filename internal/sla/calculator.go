package sla

import (
	"fmt"
	"math"
	"time"

	"github.com/clearway-fin/clearway/internal/calendar"
)

// CalcError indicates an invalid instant passed into the calculator.
type CalcError struct {
	Reason string
}

func (e *CalcError) Error() string {
	return fmt.Sprintf("sla: %s", e.Reason)
}

// Result describes one deadline computation at a point in time.
type Result struct {
	Deadline               time.Time
	TargetMinutes          int
	ElapsedBusinessMinutes int
	ElapsedCalendarMinutes int
	Holidays               []string
	Breached               bool
	RemainingMinutes       int
}

// Status pairs the two SLA booleans returned by WithinSLA.
type Status struct {
	WithinResponse   bool
	WithinResolution bool
}

// Calculator evaluates a single Policy. It is pure given an injected clock:
// identical inputs and policy produce identical results.
type Calculator struct {
	policy Policy
	engine *calendar.Engine
	now    func() time.Time
}

// NewCalculator validates the policy and binds its business-hours engine.
// clock defaults to time.Now.
func NewCalculator(policy Policy, clock func() time.Time) (*Calculator, error) {
	if err := policy.Validate(); err != nil {
		return nil, err
	}
	engine, err := calendar.NewEngine(policy.Hours, policy.Holidays)
	if err != nil {
		return nil, err
	}
	if clock == nil {
		clock = time.Now
	}
	return &Calculator{policy: policy, engine: engine, now: clock}, nil
}

// Engine exposes the bound business-hours engine for callers that need raw
// working-time arithmetic.
func (c *Calculator) Engine() *calendar.Engine { return c.engine }

// ResponseDeadline computes the response deadline for a stage created at
// createdAt under the given priority.
func (c *Calculator) ResponseDeadline(createdAt time.Time, priority string) (Result, error) {
	return c.deadline(createdAt, priority, c.policy.ResponseTargetMinutes)
}

// ResolutionDeadline computes the resolution deadline for a stage created at
// createdAt under the given priority.
func (c *Calculator) ResolutionDeadline(createdAt time.Time, priority string) (Result, error) {
	return c.deadline(createdAt, priority, c.policy.ResolutionTargetMinutes)
}

func (c *Calculator) deadline(createdAt time.Time, priority string, baseMinutes int) (Result, error) {
	if createdAt.IsZero() {
		return Result{}, &CalcError{Reason: "createdAt must be a valid instant"}
	}
	target := scaledTarget(baseMinutes, c.policy.rule(priority))
	deadline, err := c.engine.AddBusinessMinutes(createdAt, target)
	if err != nil {
		return Result{}, err
	}
	now := c.now()
	elapsed, err := c.engine.BusinessMinutesBetween(createdAt, now)
	if err != nil {
		return Result{}, err
	}
	res := Result{
		Deadline:               deadline,
		TargetMinutes:          target,
		ElapsedBusinessMinutes: elapsed,
		ElapsedCalendarMinutes: calendarMinutes(createdAt, now),
		Holidays:               c.holidaysWithin(createdAt, now),
		Breached:               now.After(deadline),
		RemainingMinutes:       max(0, target-elapsed),
	}
	return res, nil
}

// WithinSLA reports whether a stage created at createdAt is still within its
// response and resolution targets as of now. It mutates nothing.
func (c *Calculator) WithinSLA(createdAt, now time.Time, priority string) (Status, error) {
	if createdAt.IsZero() || now.IsZero() {
		return Status{}, &CalcError{Reason: "createdAt and now must be valid instants"}
	}
	rule := c.policy.rule(priority)
	elapsed, err := c.engine.BusinessMinutesBetween(createdAt, now)
	if err != nil {
		return Status{}, err
	}
	return Status{
		WithinResponse:   elapsed <= scaledTarget(c.policy.ResponseTargetMinutes, rule),
		WithinResolution: elapsed <= scaledTarget(c.policy.ResolutionTargetMinutes, rule),
	}, nil
}

// holidaysWithin lists holiday names falling inside [from, to].
func (c *Calculator) holidaysWithin(from, to time.Time) []string {
	if !to.After(from) {
		return nil
	}
	var names []string
	cal := c.engine.Calendar()
	for day := from.In(c.engine.Location()); !day.After(to); day = day.AddDate(0, 0, 1) {
		if name, ok := cal.HolidayName(day); ok {
			names = append(names, name)
		}
	}
	return names
}

// scaledTarget applies the priority multiplier and rounds to whole minutes.
func scaledTarget(baseMinutes int, rule PriorityRule) int {
	return int(math.Round(float64(baseMinutes) * rule.Multiplier))
}

func calendarMinutes(from, to time.Time) int {
	if !to.After(from) {
		return 0
	}
	return int(to.Sub(from) / time.Minute)
}
