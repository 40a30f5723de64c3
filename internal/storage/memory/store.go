// Package memory is an in-process transactional store with optimistic
// concurrency control. Every read records the version of what it looked at;
// a commit fails with domain.ErrTransactionConflict if any of those versions
// moved, which gives the same retry semantics as a serializable database.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/cimillas/ultimate-ticket/services/core/internal/domain"
	"github.com/cimillas/ultimate-ticket/services/core/internal/storage"
)

type Store struct {
	mu        sync.RWMutex
	resources map[string]domain.Resource
	locks     map[string]domain.Lock
	regs      map[string]domain.Registration
	stock     map[string]domain.StockItem
	orders    map[string]domain.Order
	shipments map[string]domain.Shipment
	versions  map[string]uint64
}

func New() *Store {
	return &Store{
		resources: make(map[string]domain.Resource),
		locks:     make(map[string]domain.Lock),
		regs:      make(map[string]domain.Registration),
		stock:     make(map[string]domain.StockItem),
		orders:    make(map[string]domain.Order),
		shipments: make(map[string]domain.Shipment),
		versions:  make(map[string]uint64),
	}
}

var _ storage.Store = (*Store)(nil)

func (s *Store) Attempt(ctx context.Context, fn func(ctx context.Context, r storage.Reader, w storage.Writer) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	tx := &txn{store: s, reads: make(map[string]uint64)}
	if err := fn(ctx, tx, tx); err != nil {
		// A decision taken on reads that have since moved is retried rather
		// than reported.
		if !s.consistent(tx) {
			return domain.ErrTransactionConflict
		}
		return err
	}
	return s.commit(ctx, tx)
}

func (s *Store) consistent(tx *txn) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.validLocked(tx)
}

func (s *Store) validLocked(tx *txn) bool {
	for key, seen := range tx.reads {
		if s.versions[key] != seen {
			return false
		}
	}
	return true
}

func (s *Store) commit(ctx context.Context, tx *txn) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(tx.ops) == 0 {
		if !s.consistent(tx) {
			return domain.ErrTransactionConflict
		}
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.validLocked(tx) {
		return domain.ErrTransactionConflict
	}

	undos := make([]func(), 0, len(tx.ops))
	for _, o := range tx.ops {
		undo, err := o.apply(s)
		if err != nil {
			for i := len(undos) - 1; i >= 0; i-- {
				undos[i]()
			}
			return err
		}
		undos = append(undos, undo)
	}
	for _, o := range tx.ops {
		for _, key := range o.keys {
			s.versions[key]++
		}
	}
	return nil
}

// Version keys. Index keys cover queries so that a concurrent insert into the
// queried set invalidates the reader.
func resourceKey(id string) string        { return "resource/" + id }
func lockSetKey(resourceID string) string { return "locks/" + resourceID }
func regSetKey(resourceID string) string  { return "registrations/" + resourceID }
func regKey(id string) string             { return "registration/" + id }
func stockKey(id string) string           { return "stock/" + id }
func orderKey(id string) string           { return "order/" + id }
func shipmentKey(orderID string) string   { return "shipment/" + orderID }

const allLocksKey = "locks"

// Snapshot helpers, used for seeding and assertions outside transactions.

func (s *Store) Resource(id string) (domain.Resource, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.resources[id]
	return r, ok
}

func (s *Store) StockItem(id string) (domain.StockItem, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	item, ok := s.stock[id]
	return item, ok
}

func (s *Store) Order(id string) (domain.Order, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	o, ok := s.orders[id]
	if ok {
		o.Items = append([]domain.OrderItem(nil), o.Items...)
	}
	return o, ok
}

// Locks returns every stored lock record for a resource, expired or not,
// ordered by creation time.
func (s *Store) Locks(resourceID string) []domain.Lock {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.Lock
	for _, l := range s.locks {
		if l.ResourceID == resourceID {
			out = append(out, l)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

func (s *Store) Registrations(resourceID string) []domain.Registration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.Registration
	for _, r := range s.regs {
		if r.ResourceID == resourceID {
			out = append(out, r)
		}
	}
	return out
}

func (s *Store) ShipmentsForOrder(orderID string) []domain.Shipment {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.Shipment
	for _, sh := range s.shipments {
		if sh.OrderID == orderID {
			out = append(out, sh)
		}
	}
	return out
}

// PutOrder stores an order as is, bypassing transaction checks.
func (s *Store) PutOrder(o domain.Order) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o.Items = append([]domain.OrderItem(nil), o.Items...)
	s.orders[o.ID] = o
	s.versions[orderKey(o.ID)]++
}

// PutLock stores a lock as is, bypassing transaction checks.
func (s *Store) PutLock(l domain.Lock) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.locks[l.ID] = l
	s.versions[lockSetKey(l.ResourceID)]++
	s.versions[allLocksKey]++
}
