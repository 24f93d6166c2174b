package routing

import (
	"context"
	"sort"
)

// Directory is the approver lookup the balancer routes against.
type Directory interface {
	ListByRole(ctx context.Context, role string) ([]Approver, error)
	// BackupForRole returns the designated backup approver for a tier role,
	// or false when none is configured.
	BackupForRole(ctx context.Context, role string) (Approver, bool, error)
	// CountActiveAssignments counts approvals currently ACTIVE for the
	// approver; workload is always derived from this, never incremented.
	CountActiveAssignments(ctx context.Context, approverID int64) (int, error)
	SetWorkload(ctx context.Context, approverID int64, workload int) error
}

// Balancer resolves tiers to concrete approvers using workload-balanced
// selection.
type Balancer struct {
	dir Directory
}

// NewBalancer constructs a Balancer over a Directory.
func NewBalancer(dir Directory) *Balancer {
	return &Balancer{dir: dir}
}

// ApproverForTier selects the least-loaded eligible approver for the tier and
// invoice amount. Ties break deterministically on the oldest account, then the
// lowest ID. When nobody in the tier is eligible the configured backup is
// consulted before giving up with a NoApproverError.
func (b *Balancer) ApproverForTier(ctx context.Context, tier Tier, amount float64) (Approver, error) {
	candidates, err := b.dir.ListByRole(ctx, tier.Role)
	if err != nil {
		return Approver{}, err
	}
	eligible := candidates[:0:0]
	for _, a := range candidates {
		if a.Eligible(tier.Role, amount) {
			eligible = append(eligible, a)
		}
	}
	if len(eligible) > 0 {
		sort.Slice(eligible, func(i, j int) bool {
			if eligible[i].Workload != eligible[j].Workload {
				return eligible[i].Workload < eligible[j].Workload
			}
			if !eligible[i].CreatedAt.Equal(eligible[j].CreatedAt) {
				return eligible[i].CreatedAt.Before(eligible[j].CreatedAt)
			}
			return eligible[i].ID < eligible[j].ID
		})
		return eligible[0], nil
	}
	backup, ok, err := b.dir.BackupForRole(ctx, tier.Role)
	if err != nil {
		return Approver{}, err
	}
	if ok && backup.Active && !backup.OnLeave {
		return backup, nil
	}
	return Approver{}, &NoApproverError{Role: tier.Role}
}

// RecalculateWorkload recomputes the approver's workload as the live count of
// ACTIVE assignments and stores it. The derived count cannot drift under
// partial failures the way an incremented counter can.
func (b *Balancer) RecalculateWorkload(ctx context.Context, approverID int64) (int, error) {
	n, err := b.dir.CountActiveAssignments(ctx, approverID)
	if err != nil {
		return 0, err
	}
	if err := b.dir.SetWorkload(ctx, approverID, n); err != nil {
		return 0, err
	}
	return n, nil
}
