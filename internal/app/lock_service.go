package app

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/cimillas/ultimate-ticket/services/core/internal/clock"
	"github.com/cimillas/ultimate-ticket/services/core/internal/domain"
	"github.com/cimillas/ultimate-ticket/services/core/internal/events"
	"github.com/cimillas/ultimate-ticket/services/core/internal/metrics"
	"github.com/cimillas/ultimate-ticket/services/core/internal/storage"
)

// LockService issues and releases short-lived holds on one unit of a
// resource's capacity. Expiry is lazy: a lock past its ExpiresAt simply stops
// counting.
type LockService struct {
	base
	ttl time.Duration
}

func NewLockService(store storage.Store, clk clock.Clock, opts ...Option) *LockService {
	b, o := newBase(store, clk, "locks", opts)
	return &LockService{base: b, ttl: o.lockTTL}
}

type AcquireInput struct {
	ResourceID string
	HolderID   string
}

func (in AcquireInput) validate() error {
	if in.ResourceID == "" {
		return invalid("resourceId is required")
	}
	if in.HolderID == "" {
		return invalid("holderId is required")
	}
	return nil
}

type acquirePlan struct {
	lock   domain.Lock
	reused bool
}

// Acquire returns the holder's active lock on the resource if there is one,
// otherwise creates a new lock when capacity allows.
func (s *LockService) Acquire(ctx context.Context, in AcquireInput) (lock domain.Lock, err error) {
	if err := in.validate(); err != nil {
		return domain.Lock{}, err
	}

	ctx, span := s.startSpan(ctx, "LockService.Acquire",
		attribute.String("resource.id", in.ResourceID),
		attribute.String("holder.id", in.HolderID),
	)
	defer func() { endSpan(span, err) }()

	plan, err := storage.Run(ctx, s.store, s.retry, "acquire",
		func(ctx context.Context, r storage.Reader) (acquirePlan, error) {
			now := s.clock.Now()
			res, err := r.GetResource(ctx, in.ResourceID)
			if err != nil {
				return acquirePlan{}, err
			}
			existing, err := r.FindActiveLock(ctx, in.ResourceID, in.HolderID, now)
			if err != nil {
				return acquirePlan{}, err
			}
			if existing != nil {
				return acquirePlan{lock: *existing, reused: true}, nil
			}
			active, err := r.CountActiveLocks(ctx, in.ResourceID, now)
			if err != nil {
				return acquirePlan{}, err
			}
			if domain.Available(res, active) <= 0 {
				return acquirePlan{}, domain.ErrResourceExhausted
			}
			return acquirePlan{lock: domain.Lock{
				ID:         newID(),
				ResourceID: in.ResourceID,
				HolderID:   in.HolderID,
				CreatedAt:  now,
				ExpiresAt:  now.Add(s.ttl),
			}}, nil
		},
		func(ctx context.Context, w storage.Writer, p acquirePlan) error {
			if p.reused {
				return nil
			}
			return w.CreateLock(ctx, p.lock)
		},
	)
	if err != nil {
		outcome := "error"
		if errors.Is(err, domain.ErrResourceExhausted) {
			outcome = "exhausted"
		}
		metrics.TrackLockOperation("acquire", outcome)
		return domain.Lock{}, err
	}

	span.SetAttributes(attribute.String("lock.id", plan.lock.ID), attribute.Bool("lock.reused", plan.reused))
	if plan.reused {
		metrics.TrackLockOperation("acquire", "reused")
		return plan.lock, nil
	}

	metrics.TrackLockOperation("acquire", "created")
	s.logger.Debug("lock acquired",
		zap.String("lock_id", plan.lock.ID),
		zap.String("resource_id", plan.lock.ResourceID),
		zap.String("holder_id", plan.lock.HolderID),
		zap.Time("expires_at", plan.lock.ExpiresAt),
	)
	s.publish(ctx, events.Event{
		Type: events.LockAcquired,
		Key:  plan.lock.ResourceID,
		At:   plan.lock.CreatedAt,
		Payload: events.LockAcquiredPayload{
			LockID:     plan.lock.ID,
			ResourceID: plan.lock.ResourceID,
			HolderID:   plan.lock.HolderID,
			ExpiresAt:  plan.lock.ExpiresAt,
		},
	})
	return plan.lock, nil
}

// ReleaseInput names either a lock id or a (resource, holder) pair.
type ReleaseInput struct {
	LockID     string
	ResourceID string
	HolderID   string
}

func (in ReleaseInput) validate() error {
	if in.LockID != "" {
		return nil
	}
	if in.ResourceID == "" || in.HolderID == "" {
		return invalid("lockId or resourceId and holderId are required")
	}
	return nil
}

// Release deletes the matching lock records. Releasing a lock that does not
// exist succeeds.
func (s *LockService) Release(ctx context.Context, in ReleaseInput) (err error) {
	if err := in.validate(); err != nil {
		return err
	}

	ctx, span := s.startSpan(ctx, "LockService.Release",
		attribute.String("lock.id", in.LockID),
		attribute.String("resource.id", in.ResourceID),
		attribute.String("holder.id", in.HolderID),
	)
	defer func() { endSpan(span, err) }()

	_, err = storage.Run(ctx, s.store, s.retry, "release", noRead,
		func(ctx context.Context, w storage.Writer, _ struct{}) error {
			if in.LockID != "" {
				return w.DeleteLock(ctx, in.LockID)
			}
			return w.DeleteHolderLocks(ctx, in.ResourceID, in.HolderID)
		},
	)
	if err != nil {
		metrics.TrackLockOperation("release", "error")
		return err
	}
	metrics.TrackLockOperation("release", "released")
	return nil
}

// Availability is a point-in-time view of a resource's capacity.
type Availability struct {
	ResourceID  string
	Capacity    int
	Registered  int
	ActiveLocks int
	Available   int
}

// Available reports capacity minus registrations minus active locks. The
// figure is advisory: gated writes recompute it inside their own transaction.
func (s *LockService) Available(ctx context.Context, resourceID string) (Availability, error) {
	if resourceID == "" {
		return Availability{}, invalid("resourceId is required")
	}
	return storage.Run(ctx, s.store, s.retry, "available",
		func(ctx context.Context, r storage.Reader) (Availability, error) {
			res, err := r.PeekResource(ctx, resourceID)
			if err != nil {
				return Availability{}, err
			}
			active, err := r.CountActiveLocks(ctx, resourceID, s.clock.Now())
			if err != nil {
				return Availability{}, err
			}
			return Availability{
				ResourceID:  res.ID,
				Capacity:    res.Capacity,
				Registered:  res.Registered,
				ActiveLocks: active,
				Available:   domain.Available(res, active),
			}, nil
		},
		nil,
	)
}
