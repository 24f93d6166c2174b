package workflow

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func (f *fixture) addActiveApproval(id, invoiceID int64, deadline *time.Time) {
	approverID := int64(10)
	f.repo.approvals[id] = Approval{
		ID:          id,
		InvoiceID:   invoiceID,
		Sequence:    1,
		TotalStages: 1,
		Role:        "CLERK",
		ApproverID:  &approverID,
		Status:      ApprovalActive,
		SLADeadline: deadline,
	}
}

func TestSLAAgingBuckets(t *testing.T) {
	f := newFixture(t)
	// Fixture clock is Monday 10:00; business day runs 09:00-17:00,
	// so 420 business minutes remain today.
	breached := f.now.Add(-time.Hour)
	under1h := f.now.Add(30 * time.Minute)
	under4h := f.now.Add(3 * time.Hour)
	under8h := time.Date(2024, time.January, 9, 9, 30, 0, 0, time.UTC)  // 450 min
	beyond8h := time.Date(2024, time.January, 9, 17, 0, 0, 0, time.UTC) // 900 min

	f.addActiveApproval(1, 101, &breached)
	f.addActiveApproval(2, 102, &under1h)
	f.addActiveApproval(3, 103, &under4h)
	f.addActiveApproval(4, 104, &under8h)
	f.addActiveApproval(5, 105, &beyond8h)
	f.addActiveApproval(6, 106, nil) // no fixed deadline, skipped

	bucket, err := f.service.SLAAging(context.Background(), f.now)
	require.NoError(t, err)

	require.Equal(t, 5, bucket.Total)
	require.Equal(t, 1, bucket.Breached)
	require.Equal(t, 1, bucket.Under1H)
	require.Equal(t, 1, bucket.Under4H)
	require.Equal(t, 1, bucket.Under8H)
	require.Equal(t, 1, bucket.Beyond8H)
}

func TestSLAAgingEmpty(t *testing.T) {
	f := newFixture(t)

	bucket, err := f.service.SLAAging(context.Background(), f.now)
	require.NoError(t, err)
	require.Equal(t, SLAAgingBucket{}, bucket)
}
