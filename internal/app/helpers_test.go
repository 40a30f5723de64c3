package app

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/cimillas/ultimate-ticket/services/core/internal/domain"
	"github.com/cimillas/ultimate-ticket/services/core/internal/events"
	"github.com/cimillas/ultimate-ticket/services/core/internal/storage"
	"github.com/cimillas/ultimate-ticket/services/core/internal/storage/memory"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// fastRetry keeps contention tests quick while leaving room for every
// conflicting writer to be replayed.
var fastRetry = storage.RetryPolicy{MaxAttempts: 50, InitialInterval: time.Microsecond, MaxInterval: time.Millisecond}

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, e events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return p.err
}

func (p *recordingPublisher) Close() error { return nil }

func (p *recordingPublisher) types() []events.Type {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]events.Type, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}

func seed(t *testing.T, s *memory.Store, fn func(ctx context.Context, w storage.Writer) error) {
	t.Helper()
	err := s.Attempt(context.Background(), func(ctx context.Context, _ storage.Reader, w storage.Writer) error {
		return fn(ctx, w)
	})
	require.NoError(t, err)
}

func seedResource(t *testing.T, s *memory.Store, id string, capacity, registered int) {
	t.Helper()
	seed(t, s, func(ctx context.Context, w storage.Writer) error {
		return w.CreateResource(ctx, domain.Resource{ID: id, Capacity: capacity, Registered: registered})
	})
}

func seedStock(t *testing.T, s *memory.Store, id string, stock int) {
	t.Helper()
	seed(t, s, func(ctx context.Context, w storage.Writer) error {
		return w.UpsertStockItem(ctx, domain.StockItem{ID: id, Stock: stock})
	})
}

func seedOrder(t *testing.T, s *memory.Store, o domain.Order) {
	t.Helper()
	if o.Status == "" {
		o.Status = domain.OrderPending
	}
	seed(t, s, func(ctx context.Context, w storage.Writer) error {
		return w.CreateOrder(ctx, o)
	})
}
