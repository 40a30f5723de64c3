package sweeper

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Lease elects at most one sweeping instance per interval.
type Lease interface {
	Acquire(ctx context.Context, ttl time.Duration) (bool, error)
}

type soleLease struct{}

// Sole is the lease for single-instance deployments: always granted.
func Sole() Lease { return soleLease{} }

func (soleLease) Acquire(context.Context, time.Duration) (bool, error) { return true, nil }

// RedisLease grants the lease to whichever instance sets the key first. The
// key is never deleted; it simply expires, so a crashed leader cannot keep it.
type RedisLease struct {
	client redis.Cmdable
	key    string
	owner  string
}

func NewRedisLease(client redis.Cmdable, key, owner string) *RedisLease {
	return &RedisLease{client: client, key: key, owner: owner}
}

func (l *RedisLease) Acquire(ctx context.Context, ttl time.Duration) (bool, error) {
	ok, err := l.client.SetNX(ctx, l.key, l.owner, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("acquire sweeper lease: %w", err)
	}
	return ok, nil
}
