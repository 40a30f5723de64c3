package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/cimillas/ultimate-ticket/services/core/internal/domain"
	"github.com/cimillas/ultimate-ticket/services/core/internal/metrics"
)

// ReadFunc loads everything a transaction needs and returns it as a value
// the write phase consumes.
type ReadFunc[C any] func(ctx context.Context, r Reader) (C, error)

// WriteFunc applies the transaction's mutations using only what was read.
type WriteFunc[C any] func(ctx context.Context, w Writer, c C) error

// RetryPolicy bounds how often a conflicting transaction is replayed.
type RetryPolicy struct {
	MaxAttempts     int
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:     5,
		InitialInterval: 10 * time.Millisecond,
		MaxInterval:     250 * time.Millisecond,
	}
}

// Run executes read then write as one transaction against s. On
// domain.ErrTransactionConflict the whole transaction is replayed from the read
// phase with fresh data. When attempts run out the result is
// domain.ErrUnavailable. Any other error is returned as is, without retry.
// A nil write makes the transaction read-only.
func Run[C any](ctx context.Context, s Store, p RetryPolicy, op string, read ReadFunc[C], write WriteFunc[C]) (C, error) {
	attempts := 0
	attempt := func() (C, error) {
		attempts++
		var out C
		err := s.Attempt(ctx, func(ctx context.Context, r Reader, w Writer) error {
			c, err := read(ctx, r)
			if err != nil {
				return err
			}
			out = c
			if write == nil {
				return nil
			}
			return write(ctx, w, c)
		})
		if err == nil {
			return out, nil
		}
		if errors.Is(err, domain.ErrTransactionConflict) {
			metrics.TxConflicts.WithLabelValues(op).Inc()
			return out, err
		}
		return out, backoff.Permanent(err)
	}

	out, err := backoff.RetryWithData(attempt, p.backOff(ctx))
	if err != nil {
		if errors.Is(err, domain.ErrTransactionConflict) {
			metrics.TxExhausted.WithLabelValues(op).Inc()
			return out, fmt.Errorf("%w: %s gave up after %d attempts", domain.ErrUnavailable, op, attempts)
		}
		return out, err
	}
	return out, nil
}

func (p RetryPolicy) backOff(ctx context.Context) backoff.BackOff {
	eb := backoff.NewExponentialBackOff()
	if p.InitialInterval > 0 {
		eb.InitialInterval = p.InitialInterval
	}
	if p.MaxInterval > 0 {
		eb.MaxInterval = p.MaxInterval
	}
	eb.MaxElapsedTime = 0
	eb.Reset()

	retries := p.MaxAttempts - 1
	if retries < 0 {
		retries = 0
	}
	return backoff.WithContext(backoff.WithMaxRetries(eb, uint64(retries)), ctx)
}
