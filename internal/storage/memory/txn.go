package memory

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/cimillas/ultimate-ticket/services/core/internal/domain"
	"github.com/cimillas/ultimate-ticket/services/core/internal/storage"
)

// op is a buffered write. apply runs under the store's write lock and returns
// an undo so a failing op can roll back the ones before it.
type op struct {
	keys  []string
	apply func(s *Store) (undo func(), err error)
}

type txn struct {
	store *Store
	reads map[string]uint64
	ops   []op
}

func (t *txn) observe(keys ...string) {
	for _, key := range keys {
		if _, ok := t.reads[key]; ok {
			continue
		}
		t.reads[key] = t.store.versions[key]
	}
}

func (t *txn) write(apply func(s *Store) (func(), error), keys ...string) error {
	t.ops = append(t.ops, op{keys: keys, apply: apply})
	return nil
}

func noop() {}

// Reader

func (t *txn) GetResource(_ context.Context, id string) (domain.Resource, error) {
	s := t.store
	s.mu.RLock()
	defer s.mu.RUnlock()
	t.observe(resourceKey(id))
	r, ok := s.resources[id]
	if !ok {
		return domain.Resource{}, domain.ErrResourceNotFound
	}
	return r, nil
}

// PeekResource is GetResource: the memory store never blocks readers, and the
// read is still validated at commit.
func (t *txn) PeekResource(ctx context.Context, id string) (domain.Resource, error) {
	return t.GetResource(ctx, id)
}

func (t *txn) FindActiveLock(_ context.Context, resourceID, holderID string, now time.Time) (*domain.Lock, error) {
	s := t.store
	s.mu.RLock()
	defer s.mu.RUnlock()
	t.observe(lockSetKey(resourceID))
	var found *domain.Lock
	for _, l := range s.locks {
		if l.ResourceID != resourceID || l.HolderID != holderID || !l.Active(now) {
			continue
		}
		if found == nil || l.CreatedAt.Before(found.CreatedAt) {
			l := l
			found = &l
		}
	}
	return found, nil
}

func (t *txn) CountActiveLocks(_ context.Context, resourceID string, now time.Time) (int, error) {
	s := t.store
	s.mu.RLock()
	defer s.mu.RUnlock()
	t.observe(lockSetKey(resourceID))
	n := 0
	for _, l := range s.locks {
		if l.ResourceID == resourceID && l.Active(now) {
			n++
		}
	}
	return n, nil
}

func (t *txn) ListExpiredLocks(_ context.Context, now time.Time, limit int) ([]domain.Lock, error) {
	s := t.store
	s.mu.RLock()
	defer s.mu.RUnlock()
	t.observe(allLocksKey)
	var out []domain.Lock
	for _, l := range s.locks {
		if !l.Active(now) {
			out = append(out, l)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ExpiresAt.Before(out[j].ExpiresAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (t *txn) FindRegistration(_ context.Context, resourceID, holderID, paymentID string) (*domain.Registration, error) {
	s := t.store
	s.mu.RLock()
	defer s.mu.RUnlock()
	t.observe(regSetKey(resourceID))
	for _, r := range s.regs {
		if r.ResourceID == resourceID && r.HolderID == holderID && r.PaymentID == paymentID {
			r := r
			return &r, nil
		}
	}
	return nil, nil
}

func (t *txn) GetRegistration(_ context.Context, id string) (domain.Registration, error) {
	s := t.store
	s.mu.RLock()
	defer s.mu.RUnlock()
	t.observe(regKey(id))
	r, ok := s.regs[id]
	if !ok {
		return domain.Registration{}, domain.ErrRegistrationNotFound
	}
	return r, nil
}

func (t *txn) GetOrder(_ context.Context, id string) (domain.Order, error) {
	s := t.store
	s.mu.RLock()
	defer s.mu.RUnlock()
	t.observe(orderKey(id))
	o, ok := s.orders[id]
	if !ok {
		return domain.Order{}, domain.ErrOrderNotFound
	}
	o.Items = append([]domain.OrderItem(nil), o.Items...)
	return o, nil
}

func (t *txn) GetStockItems(_ context.Context, ids []string) (map[string]domain.StockItem, error) {
	s := t.store
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]domain.StockItem, len(ids))
	for _, id := range ids {
		t.observe(stockKey(id))
		if item, ok := s.stock[id]; ok {
			out[id] = item
		}
	}
	return out, nil
}

// Writer

func (t *txn) CreateResource(_ context.Context, r domain.Resource) error {
	return t.write(func(s *Store) (func(), error) {
		if _, ok := s.resources[r.ID]; ok {
			return nil, fmt.Errorf("resource %s: %w", r.ID, domain.ErrAlreadyExists)
		}
		s.resources[r.ID] = r
		return func() { delete(s.resources, r.ID) }, nil
	}, resourceKey(r.ID))
}

func (t *txn) UpsertStockItem(_ context.Context, item domain.StockItem) error {
	return t.write(func(s *Store) (func(), error) {
		prev, existed := s.stock[item.ID]
		s.stock[item.ID] = item
		return func() {
			if existed {
				s.stock[item.ID] = prev
			} else {
				delete(s.stock, item.ID)
			}
		}, nil
	}, stockKey(item.ID))
}

func (t *txn) CreateOrder(_ context.Context, o domain.Order) error {
	o.Items = append([]domain.OrderItem(nil), o.Items...)
	return t.write(func(s *Store) (func(), error) {
		if _, ok := s.orders[o.ID]; ok {
			return nil, fmt.Errorf("order %s: %w", o.ID, domain.ErrAlreadyExists)
		}
		s.orders[o.ID] = o
		return func() { delete(s.orders, o.ID) }, nil
	}, orderKey(o.ID))
}

func (t *txn) CreateLock(_ context.Context, l domain.Lock) error {
	return t.write(func(s *Store) (func(), error) {
		s.locks[l.ID] = l
		return func() { delete(s.locks, l.ID) }, nil
	}, lockSetKey(l.ResourceID), allLocksKey)
}

func (t *txn) DeleteLock(_ context.Context, id string) error {
	// The resource is unknown until apply time, so the lock set key is bumped
	// from inside apply.
	return t.write(func(s *Store) (func(), error) {
		l, ok := s.locks[id]
		if !ok {
			return noop, nil
		}
		delete(s.locks, id)
		s.versions[lockSetKey(l.ResourceID)]++
		return func() {
			s.locks[id] = l
			s.versions[lockSetKey(l.ResourceID)]--
		}, nil
	}, allLocksKey)
}

func (t *txn) DeleteHolderLocks(_ context.Context, resourceID, holderID string) error {
	return t.write(func(s *Store) (func(), error) {
		removed := make(map[string]domain.Lock)
		for id, l := range s.locks {
			if l.ResourceID == resourceID && l.HolderID == holderID {
				removed[id] = l
				delete(s.locks, id)
			}
		}
		return func() {
			for id, l := range removed {
				s.locks[id] = l
			}
		}, nil
	}, lockSetKey(resourceID), allLocksKey)
}

func (t *txn) CreateRegistration(_ context.Context, reg domain.Registration) error {
	return t.write(func(s *Store) (func(), error) {
		for _, existing := range s.regs {
			if existing.ResourceID == reg.ResourceID && existing.HolderID == reg.HolderID && existing.PaymentID == reg.PaymentID {
				return nil, fmt.Errorf("registration for payment %s: %w", reg.PaymentID, domain.ErrAlreadyExists)
			}
		}
		s.regs[reg.ID] = reg
		return func() { delete(s.regs, reg.ID) }, nil
	}, regSetKey(reg.ResourceID), regKey(reg.ID))
}

func (t *txn) SetRegistrationStatus(_ context.Context, id string, status domain.RegistrationStatus) error {
	return t.write(func(s *Store) (func(), error) {
		prev, ok := s.regs[id]
		if !ok {
			return nil, domain.ErrRegistrationNotFound
		}
		next := prev
		next.Status = status
		s.regs[id] = next
		s.versions[regSetKey(prev.ResourceID)]++
		return func() {
			s.regs[id] = prev
			s.versions[regSetKey(prev.ResourceID)]--
		}, nil
	}, regKey(id))
}

func (t *txn) AdjustRegistered(_ context.Context, resourceID string, delta int) error {
	return t.write(func(s *Store) (func(), error) {
		prev, ok := s.resources[resourceID]
		if !ok {
			return nil, domain.ErrResourceNotFound
		}
		next := prev
		next.Registered += delta
		if next.Registered < 0 || next.Registered > next.Capacity {
			return nil, fmt.Errorf("registered %d outside [0,%d]: %w", next.Registered, next.Capacity, domain.ErrInvalidState)
		}
		s.resources[resourceID] = next
		return func() { s.resources[resourceID] = prev }, nil
	}, resourceKey(resourceID))
}

func (t *txn) AdjustStock(_ context.Context, productID string, stockDelta, salesDelta int) error {
	return t.write(func(s *Store) (func(), error) {
		prev, ok := s.stock[productID]
		if !ok {
			return nil, fmt.Errorf("stock item %s: %w", productID, domain.ErrInvalidState)
		}
		next := prev
		next.Stock += stockDelta
		next.Sales += salesDelta
		s.stock[productID] = next
		return func() { s.stock[productID] = prev }, nil
	}, stockKey(productID))
}

func (t *txn) CreateShipment(_ context.Context, sh domain.Shipment) error {
	if !sh.Status.Valid() {
		return fmt.Errorf("shipment status %q: %w", sh.Status, domain.ErrInvalidInput)
	}
	return t.write(func(s *Store) (func(), error) {
		for _, existing := range s.shipments {
			if existing.OrderID == sh.OrderID {
				return nil, fmt.Errorf("shipment for order %s: %w", sh.OrderID, domain.ErrAlreadyExists)
			}
		}
		s.shipments[sh.ID] = sh
		return func() { delete(s.shipments, sh.ID) }, nil
	}, shipmentKey(sh.OrderID))
}

func (t *txn) MarkOrderShipped(_ context.Context, orderID string, u storage.ShippedUpdate) error {
	return t.write(func(s *Store) (func(), error) {
		prev, ok := s.orders[orderID]
		if !ok {
			return nil, domain.ErrOrderNotFound
		}
		next := prev
		next.Status = domain.OrderShipped
		next.ShipmentID = u.ShipmentID
		next.ShipmentStatus = u.ShipmentStatus
		// The flag only ever moves from false to true.
		next.InventoryDeducted = prev.InventoryDeducted || u.InventoryDeducted
		next.UpdatedAt = u.At
		s.orders[orderID] = next
		return func() { s.orders[orderID] = prev }, nil
	}, orderKey(orderID))
}

func (t *txn) SetOrderPayment(_ context.Context, orderID, paymentID string, at time.Time) error {
	return t.write(func(s *Store) (func(), error) {
		prev, ok := s.orders[orderID]
		if !ok {
			return nil, domain.ErrOrderNotFound
		}
		next := prev
		next.PaymentID = paymentID
		next.UpdatedAt = at
		s.orders[orderID] = next
		return func() { s.orders[orderID] = prev }, nil
	}, orderKey(orderID))
}
