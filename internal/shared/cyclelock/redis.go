// Package cyclelock serializes workflow mutations of one allocation cycle
// across service instances.
package cyclelock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"
)

// ErrLocked means another instance holds the cycle.
var ErrLocked = errors.New("allocation cycle is locked")

// Locker hands out short lived per cycle locks.
type Locker struct {
	client *redislock.Client
	ttl    time.Duration
}

func New(rdb *redis.Client, ttl time.Duration) *Locker {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &Locker{client: redislock.New(rdb), ttl: ttl}
}

// Key is the redis key of a cycle.
func Key(month, year int) string {
	return fmt.Sprintf("lock:allocation:%04d-%02d", year, month)
}

// Acquire obtains the cycle lock. The returned release func is safe to call
// once. ErrLocked is returned when another holder owns the lock.
func (l *Locker) Acquire(ctx context.Context, month, year int) (func(), error) {
	lock, err := l.client.Obtain(ctx, Key(month, year), l.ttl, nil)
	if errors.Is(err, redislock.ErrNotObtained) {
		return nil, ErrLocked
	}
	if err != nil {
		return nil, fmt.Errorf("obtain cycle lock: %w", err)
	}
	return func() {
		// a detached context so a cancelled request still frees the lock
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		lock.Release(ctx)
	}, nil
}
