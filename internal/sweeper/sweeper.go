// Package sweeper deletes expired lock records. Expired locks never count
// against capacity, so the sweeper only bounds storage growth.
package sweeper

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/cimillas/ultimate-ticket/services/core/internal/clock"
	"github.com/cimillas/ultimate-ticket/services/core/internal/domain"
	"github.com/cimillas/ultimate-ticket/services/core/internal/metrics"
	"github.com/cimillas/ultimate-ticket/services/core/internal/storage"
)

const defaultBatch = 500

type Sweeper struct {
	store    storage.Store
	clock    clock.Clock
	lease    Lease
	retry    storage.RetryPolicy
	interval time.Duration
	batch    int
	logger   *zap.Logger
}

type Option func(*Sweeper)

func WithLease(l Lease) Option {
	return func(s *Sweeper) {
		if l != nil {
			s.lease = l
		}
	}
}

func WithBatch(n int) Option {
	return func(s *Sweeper) {
		if n > 0 {
			s.batch = n
		}
	}
}

func WithRetryPolicy(p storage.RetryPolicy) Option {
	return func(s *Sweeper) {
		if p.MaxAttempts > 0 {
			s.retry = p
		}
	}
}

func New(store storage.Store, clk clock.Clock, interval time.Duration, logger *zap.Logger, opts ...Option) *Sweeper {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Sweeper{
		store:    store,
		clock:    clk,
		lease:    Sole(),
		retry:    storage.DefaultRetryPolicy(),
		interval: interval,
		batch:    defaultBatch,
		logger:   logger.Named("sweeper"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run sweeps every interval until ctx is done.
func (s *Sweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Info("sweeper started", zap.Duration("interval", s.interval))
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("sweeper stopped")
			return nil
		case <-ticker.C:
			if _, err := s.SweepOnce(ctx); err != nil && !errors.Is(err, context.Canceled) {
				s.logger.Warn("sweep failed", zap.Error(err))
			}
		}
	}
}

// SweepOnce removes up to one batch of expired locks if this instance holds
// the lease. It returns how many were removed.
func (s *Sweeper) SweepOnce(ctx context.Context) (int, error) {
	leader, err := s.lease.Acquire(ctx, s.leaseTTL())
	if err != nil {
		return 0, err
	}
	if !leader {
		s.logger.Debug("not the sweep leader, skipping")
		return 0, nil
	}

	expired, err := storage.Run(ctx, s.store, s.retry, "sweep",
		func(ctx context.Context, r storage.Reader) ([]domain.Lock, error) {
			return r.ListExpiredLocks(ctx, s.clock.Now(), s.batch)
		},
		func(ctx context.Context, w storage.Writer, locks []domain.Lock) error {
			for _, l := range locks {
				if err := w.DeleteLock(ctx, l.ID); err != nil {
					return err
				}
			}
			return nil
		},
	)
	if err != nil {
		return 0, err
	}

	metrics.TrackSweep(len(expired))
	if len(expired) > 0 {
		s.logger.Info("expired locks removed", zap.Int("count", len(expired)))
	}
	return len(expired), nil
}

// leaseTTL is shorter than the interval so the next tick can elect anew.
func (s *Sweeper) leaseTTL() time.Duration {
	ttl := s.interval / 2
	if ttl < time.Second {
		ttl = time.Second
	}
	return ttl
}
