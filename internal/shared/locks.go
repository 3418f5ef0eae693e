package shared

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// VendorLockKey builds redis keys for vendor settlement critical sections.
func VendorLockKey(vendorID int64) string {
	return fmt.Sprintf("ap:vendor:%d:settle", vendorID)
}

// ErrLockHeld indicates another settlement for the vendor is in flight.
var ErrLockHeld = fmt.Errorf("%w: vendor settlement already in progress", ErrStateConflict)

// VendorLock serializes payment posting and reversal per vendor. Two sessions
// against the same vendor's bills must not interleave their amount-due checks.
type VendorLock struct {
	client *redis.Client
	ttl    time.Duration
}

// NewVendorLock constructs a VendorLock with the given hold TTL.
func NewVendorLock(client *redis.Client, ttl time.Duration) *VendorLock {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &VendorLock{client: client, ttl: ttl}
}

// Acquire takes the per-vendor lock and returns a release func. When no redis
// client is configured the lock degrades to a no-op, leaving serialization to
// the database row locks.
func (l *VendorLock) Acquire(ctx context.Context, vendorID int64) (func(), error) {
	if l == nil || l.client == nil {
		return func() {}, nil
	}
	key := VendorLockKey(vendorID)
	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("shared: acquire vendor lock: %w", err)
	}
	if !ok {
		return nil, ErrLockHeld
	}
	release := func() {
		// Only delete our own token; an expired lock may have been retaken.
		const unlock = `if redis.call("get", KEYS[1]) == ARGV[1] then return redis.call("del", KEYS[1]) else return 0 end`
		_ = l.client.Eval(context.Background(), unlock, []string{key}, token).Err()
	}
	return release, nil
}
