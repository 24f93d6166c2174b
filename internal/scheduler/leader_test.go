package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newLeaseClient(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestLeaseSingleHolder(t *testing.T) {
	_, client := newLeaseClient(t)
	ctx := context.Background()

	a := NewLease(client, "scheduler:leader", time.Minute)
	b := NewLease(client, "scheduler:leader", time.Minute)

	ok, err := a.Acquire(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = b.Acquire(ctx)
	require.NoError(t, err)
	require.False(t, ok)

	// The holder refreshes without losing the lease.
	ok, err = a.Acquire(ctx)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestLeaseReleaseHandsOver(t *testing.T) {
	_, client := newLeaseClient(t)
	ctx := context.Background()

	a := NewLease(client, "scheduler:leader", time.Minute)
	b := NewLease(client, "scheduler:leader", time.Minute)

	ok, err := a.Acquire(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	require.NoError(t, a.Release(ctx))

	ok, err = b.Acquire(ctx)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestLeaseReleaseByNonHolderIsNoop(t *testing.T) {
	_, client := newLeaseClient(t)
	ctx := context.Background()

	a := NewLease(client, "scheduler:leader", time.Minute)
	b := NewLease(client, "scheduler:leader", time.Minute)

	ok, err := a.Acquire(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, b.Release(ctx))

	// a still holds the lease.
	ok, err = a.Acquire(ctx)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestLeaseExpiryAllowsTakeover(t *testing.T) {
	mr, client := newLeaseClient(t)
	ctx := context.Background()

	a := NewLease(client, "scheduler:leader", time.Second)
	b := NewLease(client, "scheduler:leader", time.Second)

	ok, err := a.Acquire(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	mr.FastForward(2 * time.Second)

	ok, err = b.Acquire(ctx)
	require.NoError(t, err)
	require.True(t, ok)
}
