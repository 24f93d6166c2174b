// Package sla computes response and resolution deadlines in business time and
// reports breach status for in-flight approval stages.
package sla

import (
	"fmt"

	"github.com/clearway-fin/clearway/internal/calendar"
)

// StandardPriority is the fallback entry every policy must define.
const StandardPriority = "standard"

// PriorityRule scales the base targets for one invoice priority.
type PriorityRule struct {
	Multiplier       float64
	MaxBreachMinutes int
}

// Policy is the SLA configuration for one deployment: base targets in business
// minutes plus per-priority scaling, bound to a business-hours setup.
type Policy struct {
	ResponseTargetMinutes   int
	ResolutionTargetMinutes int
	Priorities              map[string]PriorityRule
	Hours                   calendar.HoursConfig
	Holidays                []calendar.Holiday
}

// Validate checks the parts of a policy that cannot be defaulted.
func (p Policy) Validate() error {
	if p.ResponseTargetMinutes <= 0 || p.ResolutionTargetMinutes <= 0 {
		return &calendar.ConfigError{Reason: "sla targets must be positive"}
	}
	if _, ok := p.Priorities[StandardPriority]; !ok {
		return &calendar.ConfigError{Reason: fmt.Sprintf("sla policy must define a %q priority", StandardPriority)}
	}
	for name, rule := range p.Priorities {
		if rule.Multiplier <= 0 {
			return &calendar.ConfigError{Reason: fmt.Sprintf("priority %q multiplier must be positive", name)}
		}
	}
	return nil
}

// rule resolves the priority entry, falling back to the standard one.
func (p Policy) rule(priority string) PriorityRule {
	if r, ok := p.Priorities[priority]; ok {
		return r
	}
	return p.Priorities[StandardPriority]
}
