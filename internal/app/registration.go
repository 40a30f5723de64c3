package app

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/cimillas/ultimate-ticket/services/core/internal/domain"
	"github.com/cimillas/ultimate-ticket/services/core/internal/events"
	"github.com/cimillas/ultimate-ticket/services/core/internal/metrics"
	"github.com/cimillas/ultimate-ticket/services/core/internal/storage"
)

type RegistrationInput struct {
	ResourceID string
	HolderID   string
	PaymentID  string
}

func (in RegistrationInput) validate() error {
	if in.ResourceID == "" || in.HolderID == "" || in.PaymentID == "" {
		return invalid("resourceId, holderId and paymentId are required")
	}
	return nil
}

type RegistrationResult struct {
	Registration domain.Registration
	// Created is false when the payment had already been registered.
	Created bool
	// FromLock is true when the holder's active lock was converted.
	FromLock bool
}

type registrationPlan struct {
	reg      domain.Registration
	existing bool
	lock     *domain.Lock
}

// CommitRegistration turns a paid reservation into a registration. The
// holder's active lock, if any, is consumed; without one the unit is taken
// only when the resource still has free capacity. Committing the same
// payment twice returns the first registration.
func (c *Coordinator) CommitRegistration(ctx context.Context, in RegistrationInput) (res RegistrationResult, err error) {
	if err := in.validate(); err != nil {
		return RegistrationResult{}, err
	}

	ctx, span := c.startSpan(ctx, "Coordinator.CommitRegistration",
		attribute.String("resource.id", in.ResourceID),
		attribute.String("holder.id", in.HolderID),
		attribute.String("payment.id", in.PaymentID),
	)
	defer func() { endSpan(span, err) }()

	plan, err := storage.Run(ctx, c.store, c.retry, "commit_registration",
		func(ctx context.Context, r storage.Reader) (registrationPlan, error) {
			now := c.clock.Now()
			resource, err := r.GetResource(ctx, in.ResourceID)
			if err != nil {
				return registrationPlan{}, err
			}
			existing, err := r.FindRegistration(ctx, in.ResourceID, in.HolderID, in.PaymentID)
			if err != nil {
				return registrationPlan{}, err
			}
			if existing != nil {
				return registrationPlan{reg: *existing, existing: true}, nil
			}

			lock, err := r.FindActiveLock(ctx, in.ResourceID, in.HolderID, now)
			if err != nil {
				return registrationPlan{}, err
			}
			if lock == nil {
				active, err := r.CountActiveLocks(ctx, in.ResourceID, now)
				if err != nil {
					return registrationPlan{}, err
				}
				if domain.Available(resource, active) < 1 {
					return registrationPlan{}, domain.ErrResourceExhausted
				}
			}

			return registrationPlan{
				lock: lock,
				reg: domain.Registration{
					ID:         newID(),
					ResourceID: in.ResourceID,
					HolderID:   in.HolderID,
					PaymentID:  in.PaymentID,
					Status:     domain.RegistrationActive,
					CreatedAt:  now,
				},
			}, nil
		},
		func(ctx context.Context, w storage.Writer, p registrationPlan) error {
			if p.existing {
				return nil
			}
			if err := w.CreateRegistration(ctx, p.reg); err != nil {
				return err
			}
			if err := w.AdjustRegistered(ctx, p.reg.ResourceID, 1); err != nil {
				return err
			}
			return w.DeleteHolderLocks(ctx, p.reg.ResourceID, p.reg.HolderID)
		},
	)
	if err != nil {
		return RegistrationResult{}, err
	}
	if plan.existing {
		return RegistrationResult{Registration: plan.reg}, nil
	}

	if plan.lock != nil {
		metrics.TrackLockOperation("convert", "converted")
		metrics.TrackLockHeld(plan.reg.CreatedAt.Sub(plan.lock.CreatedAt))
	}
	c.logger.Info("registration committed",
		zap.String("registration_id", plan.reg.ID),
		zap.String("resource_id", plan.reg.ResourceID),
		zap.String("holder_id", plan.reg.HolderID),
		zap.Bool("from_lock", plan.lock != nil),
	)
	c.publish(ctx, events.Event{
		Type: events.RegistrationCommitted,
		Key:  plan.reg.ResourceID,
		At:   plan.reg.CreatedAt,
		Payload: events.RegistrationPayload{
			RegistrationID: plan.reg.ID,
			ResourceID:     plan.reg.ResourceID,
			HolderID:       plan.reg.HolderID,
			PaymentID:      plan.reg.PaymentID,
		},
	})
	return RegistrationResult{Registration: plan.reg, Created: true, FromLock: plan.lock != nil}, nil
}

// CancelRegistration releases a committed unit back to the resource.
// Canceling an already canceled registration is a no-op.
func (c *Coordinator) CancelRegistration(ctx context.Context, registrationID string) (err error) {
	if registrationID == "" {
		return invalid("registrationId is required")
	}

	ctx, span := c.startSpan(ctx, "Coordinator.CancelRegistration", attribute.String("registration.id", registrationID))
	defer func() { endSpan(span, err) }()

	type cancelPlan struct {
		reg     domain.Registration
		changed bool
	}

	plan, err := storage.Run(ctx, c.store, c.retry, "cancel_registration",
		func(ctx context.Context, r storage.Reader) (cancelPlan, error) {
			reg, err := r.GetRegistration(ctx, registrationID)
			if err != nil {
				return cancelPlan{}, err
			}
			switch reg.Status {
			case domain.RegistrationCanceled:
				return cancelPlan{reg: reg}, nil
			case domain.RegistrationActive:
				return cancelPlan{reg: reg, changed: true}, nil
			default:
				return cancelPlan{}, fmt.Errorf("registration %s has status %q: %w", reg.ID, reg.Status, domain.ErrInvalidState)
			}
		},
		func(ctx context.Context, w storage.Writer, p cancelPlan) error {
			if !p.changed {
				return nil
			}
			if err := w.SetRegistrationStatus(ctx, p.reg.ID, domain.RegistrationCanceled); err != nil {
				return err
			}
			return w.AdjustRegistered(ctx, p.reg.ResourceID, -1)
		},
	)
	if err != nil {
		return err
	}
	if !plan.changed {
		return nil
	}

	c.logger.Info("registration canceled",
		zap.String("registration_id", plan.reg.ID),
		zap.String("resource_id", plan.reg.ResourceID),
	)
	c.publish(ctx, events.Event{
		Type: events.RegistrationCanceled,
		Key:  plan.reg.ResourceID,
		Payload: events.RegistrationPayload{
			RegistrationID: plan.reg.ID,
			ResourceID:     plan.reg.ResourceID,
			HolderID:       plan.reg.HolderID,
		},
	})
	return nil
}
