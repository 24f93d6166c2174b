package scheduler

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Lease is a Redis-backed leader lease. One deployment runs several replicas
// of the worker binary, but only the lease holder executes escalation ticks;
// the lease fences duplicate schedulers, it does not distribute work.
type Lease struct {
	client *redis.Client
	key    string
	ttl    time.Duration
	holder string
}

// NewLease constructs a lease on the given key. TTL defaults to one minute.
func NewLease(client *redis.Client, key string, ttl time.Duration) *Lease {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &Lease{
		client: client,
		key:    key,
		ttl:    ttl,
		holder: uuid.NewString(),
	}
}

// Acquire tries to take or refresh the lease. It returns true when this
// process holds the lease after the call.
func (l *Lease) Acquire(ctx context.Context) (bool, error) {
	ok, err := l.client.SetNX(ctx, l.key, l.holder, l.ttl).Result()
	if err != nil {
		return false, err
	}
	if ok {
		return true, nil
	}
	current, err := l.client.Get(ctx, l.key).Result()
	if err != nil {
		if err == redis.Nil {
			return false, nil
		}
		return false, err
	}
	if current != l.holder {
		return false, nil
	}
	// Still ours; push the expiry out.
	if err := l.client.Expire(ctx, l.key, l.ttl).Err(); err != nil {
		return false, err
	}
	return true, nil
}

var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

// Release drops the lease if this process still holds it.
func (l *Lease) Release(ctx context.Context) error {
	return releaseScript.Run(ctx, l.client, []string{l.key}, l.holder).Err()
}
