// Package routing determines the approval chain for an invoice and resolves
// each tier to a concrete, least-loaded approver.
package routing

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrEmptyChain indicates the tier configuration produced no chain.
	ErrEmptyChain = errors.New("routing: no approval chain could be built")
)

// NoApproverError indicates no eligible approver (including backup) exists for
// a tier.
type NoApproverError struct {
	Role string
}

func (e *NoApproverError) Error() string {
	return fmt.Sprintf("routing: no approver available for tier %s", e.Role)
}

// Tier is one role step in an approval chain. Ceiling is the maximum invoice
// amount the role may authorize; zero means unlimited.
type Tier struct {
	Role    string
	Ceiling float64
}

// Covers reports whether the tier's authority covers the amount.
func (t Tier) Covers(amount float64) bool {
	return t.Ceiling == 0 || amount <= t.Ceiling
}

// Approver is a user in an approval context.
type Approver struct {
	ID            int64
	Name          string
	Role          string
	ApprovalLimit float64 // zero means unlimited
	Workload      int
	MaxWorkload   int // zero means uncapped
	Active        bool
	OnLeave       bool
	CreatedAt     time.Time
}

// Eligible reports whether the approver can take a stage for the amount.
func (a Approver) Eligible(role string, amount float64) bool {
	if !a.Active || a.OnLeave || a.Role != role {
		return false
	}
	if a.ApprovalLimit != 0 && amount > a.ApprovalLimit {
		return false
	}
	if a.MaxWorkload != 0 && a.Workload >= a.MaxWorkload {
		return false
	}
	return true
}

// ChainConfig holds the static tier lists: a default list plus optional
// department-specific substitutes. Lists are ordered lowest ceiling first with
// any unlimited tier last.
type ChainConfig struct {
	Default     []Tier
	Departments map[string][]Tier
}

// Validate rejects configurations that cannot route anything.
func (c ChainConfig) Validate() error {
	if len(c.Default) == 0 {
		return errors.New("routing: default tier list must not be empty")
	}
	check := func(name string, tiers []Tier) error {
		var prev float64
		for i, t := range tiers {
			if t.Role == "" {
				return fmt.Errorf("routing: %s tier %d has no role", name, i+1)
			}
			if t.Ceiling == 0 {
				if i != len(tiers)-1 {
					return fmt.Errorf("routing: %s tier %s is unlimited but not last", name, t.Role)
				}
				continue
			}
			if t.Ceiling <= prev {
				return fmt.Errorf("routing: %s tiers must be ordered by ascending ceiling", name)
			}
			prev = t.Ceiling
		}
		return nil
	}
	if err := check("default", c.Default); err != nil {
		return err
	}
	for dept, tiers := range c.Departments {
		if err := check(dept, tiers); err != nil {
			return err
		}
	}
	return nil
}

func (c ChainConfig) tiersFor(department string) []Tier {
	if tiers, ok := c.Departments[department]; ok && len(tiers) > 0 {
		return tiers
	}
	return c.Default
}
