package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cimillas/ultimate-ticket/services/core/internal/domain"
	"github.com/cimillas/ultimate-ticket/services/core/internal/storage"
)

var base = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func seedResource(t *testing.T, s *Store, r domain.Resource) {
	t.Helper()
	err := s.Attempt(context.Background(), func(ctx context.Context, _ storage.Reader, w storage.Writer) error {
		return w.CreateResource(ctx, r)
	})
	require.NoError(t, err)
}

func TestAttemptDetectsConflictOnLockSet(t *testing.T) {
	s := New()
	seedResource(t, s, domain.Resource{ID: "r1", Capacity: 1})

	ctx := context.Background()
	err := s.Attempt(ctx, func(ctx context.Context, r storage.Reader, w storage.Writer) error {
		n, err := r.CountActiveLocks(ctx, "r1", base)
		require.NoError(t, err)
		require.Equal(t, 0, n)

		// A concurrent transaction commits a lock between our read and commit.
		inner := s.Attempt(ctx, func(ctx context.Context, _ storage.Reader, w storage.Writer) error {
			return w.CreateLock(ctx, domain.Lock{ID: "other", ResourceID: "r1", HolderID: "b", CreatedAt: base, ExpiresAt: base.Add(time.Minute)})
		})
		require.NoError(t, inner)

		return w.CreateLock(ctx, domain.Lock{ID: "mine", ResourceID: "r1", HolderID: "a", CreatedAt: base, ExpiresAt: base.Add(time.Minute)})
	})
	require.ErrorIs(t, err, domain.ErrTransactionConflict)

	locks := s.Locks("r1")
	require.Len(t, locks, 1)
	assert.Equal(t, "other", locks[0].ID)
}

func TestAttemptUnrelatedWritesDoNotConflict(t *testing.T) {
	s := New()
	seedResource(t, s, domain.Resource{ID: "r1", Capacity: 1})
	seedResource(t, s, domain.Resource{ID: "r2", Capacity: 1})

	ctx := context.Background()
	err := s.Attempt(ctx, func(ctx context.Context, r storage.Reader, w storage.Writer) error {
		_, err := r.CountActiveLocks(ctx, "r1", base)
		require.NoError(t, err)

		inner := s.Attempt(ctx, func(ctx context.Context, _ storage.Reader, w storage.Writer) error {
			return w.CreateLock(ctx, domain.Lock{ID: "l2", ResourceID: "r2", HolderID: "b", CreatedAt: base, ExpiresAt: base.Add(time.Minute)})
		})
		require.NoError(t, inner)

		return w.CreateLock(ctx, domain.Lock{ID: "l1", ResourceID: "r1", HolderID: "a", CreatedAt: base, ExpiresAt: base.Add(time.Minute)})
	})
	require.NoError(t, err)
	assert.Len(t, s.Locks("r1"), 1)
	assert.Len(t, s.Locks("r2"), 1)
}

func TestAttemptRollsBackOnFailedOp(t *testing.T) {
	s := New()
	seedResource(t, s, domain.Resource{ID: "r1", Capacity: 1, Registered: 1})

	err := s.Attempt(context.Background(), func(ctx context.Context, _ storage.Reader, w storage.Writer) error {
		require.NoError(t, w.CreateLock(ctx, domain.Lock{ID: "l1", ResourceID: "r1", HolderID: "a", CreatedAt: base, ExpiresAt: base.Add(time.Minute)}))
		// Pushes registered past capacity.
		return w.AdjustRegistered(ctx, "r1", 1)
	})
	require.ErrorIs(t, err, domain.ErrInvalidState)

	assert.Empty(t, s.Locks("r1"))
	r, ok := s.Resource("r1")
	require.True(t, ok)
	assert.Equal(t, 1, r.Registered)
}

func TestAttemptFnErrorDiscardsWrites(t *testing.T) {
	s := New()
	seedResource(t, s, domain.Resource{ID: "r1", Capacity: 3})

	err := s.Attempt(context.Background(), func(ctx context.Context, _ storage.Reader, w storage.Writer) error {
		require.NoError(t, w.CreateLock(ctx, domain.Lock{ID: "l1", ResourceID: "r1", HolderID: "a", CreatedAt: base, ExpiresAt: base.Add(time.Minute)}))
		return domain.ErrResourceExhausted
	})
	require.ErrorIs(t, err, domain.ErrResourceExhausted)
	assert.Empty(t, s.Locks("r1"))
}

func TestReaderQueries(t *testing.T) {
	s := New()
	seedResource(t, s, domain.Resource{ID: "r1", Capacity: 3})
	s.PutLock(domain.Lock{ID: "old", ResourceID: "r1", HolderID: "a", CreatedAt: base.Add(-time.Hour), ExpiresAt: base.Add(-time.Minute)})
	s.PutLock(domain.Lock{ID: "live", ResourceID: "r1", HolderID: "a", CreatedAt: base, ExpiresAt: base.Add(time.Minute)})
	s.PutLock(domain.Lock{ID: "edge", ResourceID: "r1", HolderID: "c", CreatedAt: base, ExpiresAt: base})

	ctx := context.Background()
	err := s.Attempt(ctx, func(ctx context.Context, r storage.Reader, _ storage.Writer) error {
		n, err := r.CountActiveLocks(ctx, "r1", base)
		require.NoError(t, err)
		assert.Equal(t, 1, n, "a lock expiring exactly now is not active")

		l, err := r.FindActiveLock(ctx, "r1", "a", base)
		require.NoError(t, err)
		require.NotNil(t, l)
		assert.Equal(t, "live", l.ID)

		l, err = r.FindActiveLock(ctx, "r1", "c", base)
		require.NoError(t, err)
		assert.Nil(t, l)

		expired, err := r.ListExpiredLocks(ctx, base, 1)
		require.NoError(t, err)
		require.Len(t, expired, 1)
		assert.Equal(t, "old", expired[0].ID)

		_, err = r.GetResource(ctx, "missing")
		assert.ErrorIs(t, err, domain.ErrResourceNotFound)
		_, err = r.GetOrder(ctx, "missing")
		assert.ErrorIs(t, err, domain.ErrOrderNotFound)
		_, err = r.GetRegistration(ctx, "missing")
		assert.ErrorIs(t, err, domain.ErrRegistrationNotFound)

		items, err := r.GetStockItems(ctx, []string{"nope"})
		require.NoError(t, err)
		assert.Empty(t, items)
		return nil
	})
	require.NoError(t, err)
}

func TestDeleteLockIsIdempotent(t *testing.T) {
	s := New()
	s.PutLock(domain.Lock{ID: "l1", ResourceID: "r1", HolderID: "a", CreatedAt: base, ExpiresAt: base.Add(time.Minute)})

	for i := 0; i < 2; i++ {
		err := s.Attempt(context.Background(), func(ctx context.Context, _ storage.Reader, w storage.Writer) error {
			return w.DeleteLock(ctx, "l1")
		})
		require.NoError(t, err)
	}
	assert.Empty(t, s.Locks("r1"))
}

func TestCreateShipmentOncePerOrder(t *testing.T) {
	s := New()
	create := func(id string) error {
		return s.Attempt(context.Background(), func(ctx context.Context, _ storage.Reader, w storage.Writer) error {
			return w.CreateShipment(ctx, domain.Shipment{ID: id, OrderID: "o1", Status: domain.ShipmentNew})
		})
	}
	require.NoError(t, create("s1"))
	require.ErrorIs(t, create("s2"), domain.ErrAlreadyExists)
	assert.Len(t, s.ShipmentsForOrder("o1"), 1)
}

func TestCreateShipmentRejectsUnknownStatus(t *testing.T) {
	s := New()
	err := s.Attempt(context.Background(), func(ctx context.Context, _ storage.Reader, w storage.Writer) error {
		return w.CreateShipment(ctx, domain.Shipment{ID: "s1", OrderID: "o1", Status: "LOST"})
	})
	require.ErrorIs(t, err, domain.ErrInvalidInput)
	assert.Empty(t, s.ShipmentsForOrder("o1"))
}

func TestAttemptHonoursCanceledContext(t *testing.T) {
	s := New()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	called := false
	err := s.Attempt(ctx, func(context.Context, storage.Reader, storage.Writer) error {
		called = true
		return nil
	})
	require.ErrorIs(t, err, context.Canceled)
	assert.False(t, called)
}
