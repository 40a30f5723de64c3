package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/cimillas/ultimate-ticket/services/core/internal/domain"
	"github.com/cimillas/ultimate-ticket/services/core/internal/storage"
)

func (q *queries) CreateResource(ctx context.Context, r domain.Resource) error {
	const stmt = `INSERT INTO resources (id, name, capacity, registered) VALUES ($1, $2, $3, $4)`
	if _, err := q.tx.Exec(ctx, stmt, r.ID, r.Name, r.Capacity, r.Registered); err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("resource %s: %w", r.ID, domain.ErrAlreadyExists)
		}
		if isCheckViolation(err) {
			return fmt.Errorf("resource %s: %w", r.ID, domain.ErrInvalidInput)
		}
		return fmt.Errorf("create resource: %w", err)
	}
	return nil
}

func (q *queries) UpsertStockItem(ctx context.Context, item domain.StockItem) error {
	const stmt = `
INSERT INTO stock_items (id, name, stock, sales)
VALUES ($1, $2, $3, $4)
ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, stock = EXCLUDED.stock, sales = EXCLUDED.sales`
	if _, err := q.tx.Exec(ctx, stmt, item.ID, item.Name, item.Stock, item.Sales); err != nil {
		return fmt.Errorf("upsert stock item: %w", err)
	}
	return nil
}

func (q *queries) CreateOrder(ctx context.Context, o domain.Order) error {
	const stmt = `
INSERT INTO orders (id, status, inventory_deducted, shipment_id, shipment_status, payment_id, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	_, err := q.tx.Exec(ctx, stmt,
		o.ID,
		o.Status,
		o.InventoryDeducted,
		o.ShipmentID,
		o.ShipmentStatus,
		o.PaymentID,
		o.CreatedAt,
		o.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("order %s: %w", o.ID, domain.ErrAlreadyExists)
		}
		return fmt.Errorf("create order: %w", err)
	}

	const itemStmt = `INSERT INTO order_items (order_id, position, product_id, quantity) VALUES ($1, $2, $3, $4)`
	for i, item := range o.Items {
		if _, err := q.tx.Exec(ctx, itemStmt, o.ID, i, item.ProductID, item.Quantity); err != nil {
			if isCheckViolation(err) {
				return fmt.Errorf("order item %d: %w", i, domain.ErrInvalidInput)
			}
			return fmt.Errorf("create order item: %w", err)
		}
	}
	return nil
}

func (q *queries) CreateLock(ctx context.Context, l domain.Lock) error {
	const stmt = `
INSERT INTO locks (id, resource_id, holder_id, created_at, expires_at)
VALUES ($1, $2, $3, $4, $5)`
	if _, err := q.tx.Exec(ctx, stmt, l.ID, l.ResourceID, l.HolderID, l.CreatedAt, l.ExpiresAt); err != nil {
		if isForeignKeyViolation(err) {
			return domain.ErrResourceNotFound
		}
		return fmt.Errorf("create lock: %w", err)
	}
	return nil
}

func (q *queries) DeleteLock(ctx context.Context, id string) error {
	if _, err := q.tx.Exec(ctx, `DELETE FROM locks WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete lock: %w", err)
	}
	return nil
}

func (q *queries) DeleteHolderLocks(ctx context.Context, resourceID, holderID string) error {
	const stmt = `DELETE FROM locks WHERE resource_id = $1 AND holder_id = $2`
	if _, err := q.tx.Exec(ctx, stmt, resourceID, holderID); err != nil {
		return fmt.Errorf("delete holder locks: %w", err)
	}
	return nil
}

func (q *queries) CreateRegistration(ctx context.Context, reg domain.Registration) error {
	const stmt = `
INSERT INTO registrations (id, resource_id, holder_id, payment_id, status, created_at)
VALUES ($1, $2, $3, $4, $5, $6)`
	_, err := q.tx.Exec(ctx, stmt, reg.ID, reg.ResourceID, reg.HolderID, reg.PaymentID, reg.Status, reg.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("registration for payment %s: %w", reg.PaymentID, domain.ErrAlreadyExists)
		}
		return fmt.Errorf("create registration: %w", err)
	}
	return nil
}

func (q *queries) SetRegistrationStatus(ctx context.Context, id string, status domain.RegistrationStatus) error {
	tag, err := q.tx.Exec(ctx, `UPDATE registrations SET status = $2 WHERE id = $1`, id, status)
	if err != nil {
		return fmt.Errorf("update registration status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrRegistrationNotFound
	}
	return nil
}

func (q *queries) AdjustRegistered(ctx context.Context, resourceID string, delta int) error {
	const stmt = `UPDATE resources SET registered = registered + $2 WHERE id = $1`
	tag, err := q.tx.Exec(ctx, stmt, resourceID, delta)
	if err != nil {
		if isCheckViolation(err) {
			return fmt.Errorf("adjust registered by %d: %w", delta, domain.ErrInvalidState)
		}
		return fmt.Errorf("adjust registered: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrResourceNotFound
	}
	return nil
}

func (q *queries) AdjustStock(ctx context.Context, productID string, stockDelta, salesDelta int) error {
	const stmt = `UPDATE stock_items SET stock = stock + $2, sales = sales + $3 WHERE id = $1`
	tag, err := q.tx.Exec(ctx, stmt, productID, stockDelta, salesDelta)
	if err != nil {
		return fmt.Errorf("adjust stock: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("stock item %s: %w", productID, domain.ErrInvalidState)
	}
	return nil
}

func (q *queries) CreateShipment(ctx context.Context, sh domain.Shipment) error {
	if !sh.Status.Valid() {
		return fmt.Errorf("shipment status %q: %w", sh.Status, domain.ErrInvalidInput)
	}
	const stmt = `
INSERT INTO shipments (id, order_id, courier, awb_code, address, weight, status, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`
	_, err := q.tx.Exec(ctx, stmt,
		sh.ID,
		sh.OrderID,
		sh.Courier,
		sh.AWBCode,
		sh.Address,
		sh.Weight,
		sh.Status,
		sh.CreatedAt,
		sh.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("shipment for order %s: %w", sh.OrderID, domain.ErrAlreadyExists)
		}
		if isCheckViolation(err) {
			return fmt.Errorf("create shipment: %w", domain.ErrInvalidInput)
		}
		return fmt.Errorf("create shipment: %w", err)
	}
	return nil
}

func (q *queries) MarkOrderShipped(ctx context.Context, orderID string, u storage.ShippedUpdate) error {
	const stmt = `
UPDATE orders
SET status = $2,
    shipment_id = $3,
    shipment_status = $4,
    inventory_deducted = inventory_deducted OR $5,
    updated_at = $6
WHERE id = $1`
	tag, err := q.tx.Exec(ctx, stmt, orderID, domain.OrderShipped, u.ShipmentID, u.ShipmentStatus, u.InventoryDeducted, u.At)
	if err != nil {
		return fmt.Errorf("mark order shipped: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrOrderNotFound
	}
	return nil
}

func (q *queries) SetOrderPayment(ctx context.Context, orderID, paymentID string, at time.Time) error {
	const stmt = `UPDATE orders SET payment_id = $2, updated_at = $3 WHERE id = $1`
	tag, err := q.tx.Exec(ctx, stmt, orderID, paymentID, at)
	if err != nil {
		return fmt.Errorf("set order payment: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrOrderNotFound
	}
	return nil
}
