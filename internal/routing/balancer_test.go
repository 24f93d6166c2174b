package routing

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type memoryDirectory struct {
	approvers map[int64]Approver
	backups   map[string]int64
	active    map[int64]int
}

func newMemoryDirectory() *memoryDirectory {
	return &memoryDirectory{
		approvers: make(map[int64]Approver),
		backups:   make(map[string]int64),
		active:    make(map[int64]int),
	}
}

func (d *memoryDirectory) add(a Approver) {
	d.approvers[a.ID] = a
}

func (d *memoryDirectory) ListByRole(ctx context.Context, role string) ([]Approver, error) {
	var out []Approver
	for _, a := range d.approvers {
		if a.Role == role {
			out = append(out, a)
		}
	}
	return out, nil
}

func (d *memoryDirectory) BackupForRole(ctx context.Context, role string) (Approver, bool, error) {
	id, ok := d.backups[role]
	if !ok {
		return Approver{}, false, nil
	}
	return d.approvers[id], true, nil
}

func (d *memoryDirectory) CountActiveAssignments(ctx context.Context, approverID int64) (int, error) {
	return d.active[approverID], nil
}

func (d *memoryDirectory) SetWorkload(ctx context.Context, approverID int64, workload int) error {
	a := d.approvers[approverID]
	a.Workload = workload
	d.approvers[approverID] = a
	return nil
}

func day(n int) time.Time {
	return time.Date(2023, time.March, n, 0, 0, 0, 0, time.UTC)
}

func TestApproverForTierPicksLeastLoaded(t *testing.T) {
	dir := newMemoryDirectory()
	dir.add(Approver{ID: 1, Role: "MANAGER", Workload: 3, Active: true, CreatedAt: day(1)})
	dir.add(Approver{ID: 2, Role: "MANAGER", Workload: 1, Active: true, CreatedAt: day(2)})
	dir.add(Approver{ID: 3, Role: "MANAGER", Workload: 2, Active: true, CreatedAt: day(3)})

	b := NewBalancer(dir)
	got, err := b.ApproverForTier(context.Background(), Tier{Role: "MANAGER", Ceiling: 50_000}, 20_000)
	require.NoError(t, err)
	require.Equal(t, int64(2), got.ID)
}

func TestApproverForTierTieBreaksOnOldestAccount(t *testing.T) {
	dir := newMemoryDirectory()
	dir.add(Approver{ID: 7, Role: "MANAGER", Workload: 1, Active: true, CreatedAt: day(9)})
	dir.add(Approver{ID: 4, Role: "MANAGER", Workload: 1, Active: true, CreatedAt: day(2)})

	b := NewBalancer(dir)
	got, err := b.ApproverForTier(context.Background(), Tier{Role: "MANAGER", Ceiling: 50_000}, 20_000)
	require.NoError(t, err)
	require.Equal(t, int64(4), got.ID)
}

func TestApproverForTierFiltersIneligible(t *testing.T) {
	dir := newMemoryDirectory()
	dir.add(Approver{ID: 1, Role: "MANAGER", Active: false, CreatedAt: day(1)})
	dir.add(Approver{ID: 2, Role: "MANAGER", Active: true, OnLeave: true, CreatedAt: day(2)})
	dir.add(Approver{ID: 3, Role: "MANAGER", Active: true, ApprovalLimit: 5_000, CreatedAt: day(3)})
	dir.add(Approver{ID: 4, Role: "MANAGER", Active: true, Workload: 5, MaxWorkload: 5, CreatedAt: day(4)})
	dir.add(Approver{ID: 5, Role: "MANAGER", Active: true, Workload: 9, CreatedAt: day(5)})

	b := NewBalancer(dir)
	got, err := b.ApproverForTier(context.Background(), Tier{Role: "MANAGER", Ceiling: 50_000}, 20_000)
	require.NoError(t, err)
	require.Equal(t, int64(5), got.ID)
}

func TestApproverForTierFallsBackToBackup(t *testing.T) {
	dir := newMemoryDirectory()
	dir.add(Approver{ID: 1, Role: "MANAGER", Active: true, OnLeave: true, CreatedAt: day(1)})
	dir.add(Approver{ID: 2, Role: "FIN_MANAGER", Active: true, CreatedAt: day(2)})
	dir.backups["MANAGER"] = 2

	b := NewBalancer(dir)
	got, err := b.ApproverForTier(context.Background(), Tier{Role: "MANAGER", Ceiling: 50_000}, 20_000)
	require.NoError(t, err)
	require.Equal(t, int64(2), got.ID)
}

func TestApproverForTierNoApprover(t *testing.T) {
	dir := newMemoryDirectory()
	b := NewBalancer(dir)

	_, err := b.ApproverForTier(context.Background(), Tier{Role: "EXEC"}, 500_000)
	var noApprover *NoApproverError
	require.ErrorAs(t, err, &noApprover)
	require.Equal(t, "EXEC", noApprover.Role)
	require.Contains(t, err.Error(), "no approver available for tier EXEC")
}

func TestRecalculateWorkloadDerivesCount(t *testing.T) {
	dir := newMemoryDirectory()
	dir.add(Approver{ID: 1, Role: "MANAGER", Workload: 99, Active: true, CreatedAt: day(1)})
	dir.active[1] = 2

	b := NewBalancer(dir)
	n, err := b.RecalculateWorkload(context.Background(), 1)
	require.NoError(t, err)
	require.Equal(t, 2, n)
	require.Equal(t, 2, dir.approvers[1].Workload)
}
