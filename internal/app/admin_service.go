package app

import (
	"context"

	"go.uber.org/zap"

	"github.com/cimillas/ultimate-ticket/services/core/internal/clock"
	"github.com/cimillas/ultimate-ticket/services/core/internal/domain"
	"github.com/cimillas/ultimate-ticket/services/core/internal/storage"
)

// AdminService seeds the records the reservation and shipment flows work on.
// Callers are assumed to be authorized.
type AdminService struct {
	base
}

func NewAdminService(store storage.Store, clk clock.Clock, opts ...Option) *AdminService {
	b, _ := newBase(store, clk, "admin", opts)
	return &AdminService{base: b}
}

type CreateResourceInput struct {
	ID       string
	Name     string
	Capacity int
}

func (s *AdminService) CreateResource(ctx context.Context, in CreateResourceInput) (domain.Resource, error) {
	if in.Capacity < 0 {
		return domain.Resource{}, invalid("capacity must not be negative")
	}
	r := domain.Resource{ID: in.ID, Name: in.Name, Capacity: in.Capacity}
	if r.ID == "" {
		r.ID = newID()
	}

	_, err := storage.Run(ctx, s.store, s.retry, "create_resource", noRead,
		func(ctx context.Context, w storage.Writer, _ struct{}) error {
			return w.CreateResource(ctx, r)
		},
	)
	if err != nil {
		return domain.Resource{}, err
	}
	s.logger.Info("resource created", zap.String("resource_id", r.ID), zap.Int("capacity", r.Capacity))
	return r, nil
}

type UpsertProductInput struct {
	ID    string
	Name  string
	Stock int
}

// UpsertProduct sets a product's stock level. Sales already recorded are kept.
func (s *AdminService) UpsertProduct(ctx context.Context, in UpsertProductInput) (domain.StockItem, error) {
	if in.ID == "" {
		return domain.StockItem{}, invalid("id is required")
	}
	if in.Stock < 0 {
		return domain.StockItem{}, invalid("stock must not be negative")
	}

	item, err := storage.Run(ctx, s.store, s.retry, "upsert_product",
		func(ctx context.Context, r storage.Reader) (domain.StockItem, error) {
			existing, err := r.GetStockItems(ctx, []string{in.ID})
			if err != nil {
				return domain.StockItem{}, err
			}
			item := domain.StockItem{ID: in.ID, Name: in.Name, Stock: in.Stock}
			if prev, ok := existing[in.ID]; ok {
				item.Sales = prev.Sales
			}
			return item, nil
		},
		func(ctx context.Context, w storage.Writer, item domain.StockItem) error {
			return w.UpsertStockItem(ctx, item)
		},
	)
	if err != nil {
		return domain.StockItem{}, err
	}
	return item, nil
}

type CreateOrderInput struct {
	ID    string
	Items []domain.OrderItem
}

func (s *AdminService) CreateOrder(ctx context.Context, in CreateOrderInput) (domain.Order, error) {
	for i, item := range in.Items {
		if item.ProductID == "" {
			return domain.Order{}, invalid("items[%d].productId is required", i)
		}
		if item.Quantity <= 0 {
			return domain.Order{}, invalid("items[%d].quantity must be positive", i)
		}
	}

	now := s.clock.Now()
	o := domain.Order{
		ID:        in.ID,
		Items:     append([]domain.OrderItem(nil), in.Items...),
		Status:    domain.OrderPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if o.ID == "" {
		o.ID = newID()
	}

	_, err := storage.Run(ctx, s.store, s.retry, "create_order", noRead,
		func(ctx context.Context, w storage.Writer, _ struct{}) error {
			return w.CreateOrder(ctx, o)
		},
	)
	if err != nil {
		return domain.Order{}, err
	}
	s.logger.Info("order created", zap.String("order_id", o.ID), zap.Int("items", len(o.Items)))
	return o, nil
}
