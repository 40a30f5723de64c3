package app

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cimillas/ultimate-ticket/services/core/internal/clock"
	"github.com/cimillas/ultimate-ticket/services/core/internal/domain"
	"github.com/cimillas/ultimate-ticket/services/core/internal/events"
	"github.com/cimillas/ultimate-ticket/services/core/internal/storage/memory"
)

func TestCoordinator_CommitRegistration(t *testing.T) {
	ctx := context.Background()

	t.Run("converts the holder's lock", func(t *testing.T) {
		store := memory.New()
		seedResource(t, store, "event-1", 1, 0)
		clk := clock.NewManual(t0)
		locks := NewLockService(store, clk)
		c := NewCoordinator(store, clk)

		_, err := locks.Acquire(ctx, AcquireInput{ResourceID: "event-1", HolderID: "alice"})
		require.NoError(t, err)
		clk.Advance(2 * time.Minute)

		res, err := c.CommitRegistration(ctx, RegistrationInput{ResourceID: "event-1", HolderID: "alice", PaymentID: "pay-1"})
		require.NoError(t, err)
		assert.True(t, res.Created)
		assert.True(t, res.FromLock)
		assert.Equal(t, domain.RegistrationActive, res.Registration.Status)

		r, _ := store.Resource("event-1")
		assert.Equal(t, 1, r.Registered)
		assert.Empty(t, store.Locks("event-1"))

		avail, err := locks.Available(ctx, "event-1")
		require.NoError(t, err)
		assert.Equal(t, 0, avail.Available)
	})

	t.Run("takes free capacity without a lock", func(t *testing.T) {
		store := memory.New()
		seedResource(t, store, "event-1", 2, 0)
		c := NewCoordinator(store, clock.NewFixed(t0))

		res, err := c.CommitRegistration(ctx, RegistrationInput{ResourceID: "event-1", HolderID: "alice", PaymentID: "pay-1"})
		require.NoError(t, err)
		assert.False(t, res.FromLock)

		r, _ := store.Resource("event-1")
		assert.Equal(t, 1, r.Registered)
	})

	t.Run("refuses when other holders have the capacity locked", func(t *testing.T) {
		store := memory.New()
		seedResource(t, store, "event-1", 1, 0)
		locks := NewLockService(store, clock.NewFixed(t0))
		c := NewCoordinator(store, clock.NewFixed(t0))

		_, err := locks.Acquire(ctx, AcquireInput{ResourceID: "event-1", HolderID: "bob"})
		require.NoError(t, err)

		_, err = c.CommitRegistration(ctx, RegistrationInput{ResourceID: "event-1", HolderID: "alice", PaymentID: "pay-1"})
		require.ErrorIs(t, err, domain.ErrResourceExhausted)

		r, _ := store.Resource("event-1")
		assert.Zero(t, r.Registered)
	})

	t.Run("same payment twice registers once", func(t *testing.T) {
		store := memory.New()
		seedResource(t, store, "event-1", 5, 0)
		pub := &recordingPublisher{}
		c := NewCoordinator(store, clock.NewFixed(t0), WithPublisher(pub))
		in := RegistrationInput{ResourceID: "event-1", HolderID: "alice", PaymentID: "pay-1"}

		first, err := c.CommitRegistration(ctx, in)
		require.NoError(t, err)
		second, err := c.CommitRegistration(ctx, in)
		require.NoError(t, err)

		assert.False(t, second.Created)
		assert.Equal(t, first.Registration.ID, second.Registration.ID)
		r, _ := store.Resource("event-1")
		assert.Equal(t, 1, r.Registered)
		assert.Equal(t, []events.Type{events.RegistrationCommitted}, pub.types())
	})

	t.Run("unknown resource", func(t *testing.T) {
		c := NewCoordinator(memory.New(), clock.NewFixed(t0))
		_, err := c.CommitRegistration(ctx, RegistrationInput{ResourceID: "nope", HolderID: "alice", PaymentID: "pay-1"})
		require.ErrorIs(t, err, domain.ErrResourceNotFound)
	})
}

func TestCoordinator_CancelRegistration(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	seedResource(t, store, "event-1", 1, 0)
	c := NewCoordinator(store, clock.NewFixed(t0))

	res, err := c.CommitRegistration(ctx, RegistrationInput{ResourceID: "event-1", HolderID: "alice", PaymentID: "pay-1"})
	require.NoError(t, err)

	require.NoError(t, c.CancelRegistration(ctx, res.Registration.ID))
	require.NoError(t, c.CancelRegistration(ctx, res.Registration.ID))

	r, _ := store.Resource("event-1")
	assert.Zero(t, r.Registered)
	regs := store.Registrations("event-1")
	require.Len(t, regs, 1)
	assert.Equal(t, domain.RegistrationCanceled, regs[0].Status)

	err = c.CancelRegistration(ctx, "missing")
	require.ErrorIs(t, err, domain.ErrRegistrationNotFound)
}
