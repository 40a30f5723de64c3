package app

import (
	"context"
	"fmt"
	"sort"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/cimillas/ultimate-ticket/services/core/internal/clock"
	"github.com/cimillas/ultimate-ticket/services/core/internal/domain"
	"github.com/cimillas/ultimate-ticket/services/core/internal/events"
	"github.com/cimillas/ultimate-ticket/services/core/internal/metrics"
	"github.com/cimillas/ultimate-ticket/services/core/internal/storage"
)

// Coordinator owns every mutation of the shared counters: stock and sales on
// shipment, and a resource's registered count on registration commit or
// cancel.
type Coordinator struct {
	base
	stockPolicy StockPolicy
}

func NewCoordinator(store storage.Store, clk clock.Clock, opts ...Option) *Coordinator {
	b, o := newBase(store, clk, "coordinator", opts)
	return &Coordinator{base: b, stockPolicy: o.stockPolicy}
}

type ShipmentInput struct {
	Courier string
	AWBCode string
	Address string
	Weight  decimal.Decimal
}

func (in ShipmentInput) validate() error {
	if in.Courier == "" {
		return invalid("courier is required")
	}
	if in.Weight.IsNegative() {
		return invalid("weight must not be negative")
	}
	return nil
}

type ShipResult struct {
	ShipmentID string
	// Created is false when the order had already been shipped and the
	// existing shipment was returned.
	Created           bool
	InventoryDeducted bool
	DeductedUnits     int
}

type shipPlan struct {
	order    domain.Order
	shipment domain.Shipment
	existing bool
	deduct   []domain.OrderItem
	missing  []string
}

func (p shipPlan) units() int {
	n := 0
	for _, item := range p.deduct {
		n += item.Quantity
	}
	return n
}

// ConvertOrderToShipment ships an order and deducts its items from stock at
// most once. The order's InventoryDeducted flag is read and set in the same
// transaction, so repeated or concurrent calls converge on one deduction and
// one shipment.
func (c *Coordinator) ConvertOrderToShipment(ctx context.Context, orderID string, in ShipmentInput) (res ShipResult, err error) {
	if orderID == "" {
		return ShipResult{}, invalid("orderId is required")
	}
	if err := in.validate(); err != nil {
		return ShipResult{}, err
	}

	ctx, span := c.startSpan(ctx, "Coordinator.ConvertOrderToShipment", attribute.String("order.id", orderID))
	defer func() { endSpan(span, err) }()

	plan, err := storage.Run(ctx, c.store, c.retry, "ship",
		func(ctx context.Context, r storage.Reader) (shipPlan, error) {
			return c.planShipment(ctx, r, orderID, in)
		},
		func(ctx context.Context, w storage.Writer, p shipPlan) error {
			if p.existing {
				return nil
			}
			if err := w.CreateShipment(ctx, p.shipment); err != nil {
				return err
			}
			for _, item := range p.deduct {
				if err := w.AdjustStock(ctx, item.ProductID, -item.Quantity, item.Quantity); err != nil {
					return err
				}
			}
			return w.MarkOrderShipped(ctx, p.order.ID, storage.ShippedUpdate{
				ShipmentID:        p.shipment.ID,
				ShipmentStatus:    p.shipment.Status,
				InventoryDeducted: len(p.deduct) > 0,
				At:                p.shipment.CreatedAt,
			})
		},
	)
	if err != nil {
		metrics.TrackShipment("error", 0)
		return ShipResult{}, err
	}

	for _, id := range plan.missing {
		c.logger.Warn("stock item missing, skipped deduction",
			zap.String("order_id", orderID),
			zap.String("product_id", id),
		)
	}

	if plan.existing {
		metrics.TrackShipment("existing", 0)
		return ShipResult{
			ShipmentID:        plan.order.ShipmentID,
			InventoryDeducted: plan.order.InventoryDeducted,
		}, nil
	}

	res = ShipResult{
		ShipmentID:        plan.shipment.ID,
		Created:           true,
		InventoryDeducted: plan.order.InventoryDeducted || len(plan.deduct) > 0,
		DeductedUnits:     plan.units(),
	}
	metrics.TrackShipment("created", res.DeductedUnits)
	span.SetAttributes(attribute.String("shipment.id", res.ShipmentID), attribute.Int("stock.deducted_units", res.DeductedUnits))
	c.logger.Info("order shipped",
		zap.String("order_id", orderID),
		zap.String("shipment_id", res.ShipmentID),
		zap.Int("deducted_units", res.DeductedUnits),
		zap.Bool("inventory_deducted", res.InventoryDeducted),
	)
	c.publish(ctx, events.Event{
		Type: events.OrderShipped,
		Key:  orderID,
		At:   plan.shipment.CreatedAt,
		Payload: events.OrderShippedPayload{
			OrderID:           orderID,
			ShipmentID:        res.ShipmentID,
			Courier:           plan.shipment.Courier,
			InventoryDeducted: res.InventoryDeducted,
		},
	})
	return res, nil
}

func (c *Coordinator) planShipment(ctx context.Context, r storage.Reader, orderID string, in ShipmentInput) (shipPlan, error) {
	order, err := r.GetOrder(ctx, orderID)
	if err != nil {
		return shipPlan{}, err
	}

	switch order.Status {
	case domain.OrderCanceled:
		return shipPlan{}, fmt.Errorf("order %s is canceled: %w", orderID, domain.ErrInvalidState)
	case domain.OrderShipped:
		if order.ShipmentID == "" {
			return shipPlan{}, fmt.Errorf("order %s shipped without shipment: %w", orderID, domain.ErrInvalidState)
		}
		return shipPlan{order: order, existing: true}, nil
	case domain.OrderPending:
	default:
		return shipPlan{}, fmt.Errorf("order %s has status %q: %w", orderID, order.Status, domain.ErrInvalidState)
	}

	now := c.clock.Now()
	plan := shipPlan{
		order: order,
		shipment: domain.Shipment{
			ID:        newID(),
			OrderID:   orderID,
			Courier:   in.Courier,
			AWBCode:   in.AWBCode,
			Address:   in.Address,
			Weight:    in.Weight,
			Status:    domain.ShipmentNew,
			CreatedAt: now,
			UpdatedAt: now,
		},
	}
	if order.InventoryDeducted || len(order.Items) == 0 {
		return plan, nil
	}

	needed := make(map[string]int, len(order.Items))
	for _, item := range order.Items {
		needed[item.ProductID] += item.Quantity
	}
	ids := make([]string, 0, len(needed))
	for id := range needed {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	stock, err := r.GetStockItems(ctx, ids)
	if err != nil {
		return shipPlan{}, err
	}

	for _, id := range ids {
		item, ok := stock[id]
		if !ok {
			plan.missing = append(plan.missing, id)
			continue
		}
		if c.stockPolicy == StockPolicyStrict && item.Stock < needed[id] {
			return shipPlan{}, fmt.Errorf("product %s has %d in stock, order needs %d: %w",
				id, item.Stock, needed[id], domain.ErrInsufficientStock)
		}
		plan.deduct = append(plan.deduct, domain.OrderItem{ProductID: id, Quantity: needed[id]})
	}
	return plan, nil
}

// RecordOrderPayment stores a verified payment id on a pending order.
// Recording the same id again is a no-op.
func (c *Coordinator) RecordOrderPayment(ctx context.Context, orderID, paymentID string) (order domain.Order, err error) {
	if orderID == "" || paymentID == "" {
		return domain.Order{}, invalid("orderId and paymentId are required")
	}

	ctx, span := c.startSpan(ctx, "Coordinator.RecordOrderPayment",
		attribute.String("order.id", orderID),
		attribute.String("payment.id", paymentID),
	)
	defer func() { endSpan(span, err) }()

	type paymentPlan struct {
		order   domain.Order
		changed bool
	}

	plan, err := storage.Run(ctx, c.store, c.retry, "record_payment",
		func(ctx context.Context, r storage.Reader) (paymentPlan, error) {
			o, err := r.GetOrder(ctx, orderID)
			if err != nil {
				return paymentPlan{}, err
			}
			if o.PaymentID == paymentID {
				return paymentPlan{order: o}, nil
			}
			if o.PaymentID != "" {
				return paymentPlan{}, fmt.Errorf("order %s already paid by %s: %w", orderID, o.PaymentID, domain.ErrInvalidState)
			}
			if o.Status != domain.OrderPending {
				return paymentPlan{}, fmt.Errorf("order %s has status %q: %w", orderID, o.Status, domain.ErrInvalidState)
			}
			o.PaymentID = paymentID
			o.UpdatedAt = c.clock.Now()
			return paymentPlan{order: o, changed: true}, nil
		},
		func(ctx context.Context, w storage.Writer, p paymentPlan) error {
			if !p.changed {
				return nil
			}
			return w.SetOrderPayment(ctx, p.order.ID, p.order.PaymentID, p.order.UpdatedAt)
		},
	)
	if err != nil {
		return domain.Order{}, err
	}
	if plan.changed {
		c.logger.Info("order payment recorded", zap.String("order_id", orderID), zap.String("payment_id", paymentID))
	}
	return plan.order, nil
}
