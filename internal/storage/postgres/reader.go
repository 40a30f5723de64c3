package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/cimillas/ultimate-ticket/services/core/internal/domain"
)

type queries struct {
	tx pgx.Tx
}

func (q *queries) GetResource(ctx context.Context, id string) (domain.Resource, error) {
	return q.resource(ctx, `SELECT id, name, capacity, registered FROM resources WHERE id = $1 FOR UPDATE`, id)
}

func (q *queries) PeekResource(ctx context.Context, id string) (domain.Resource, error) {
	return q.resource(ctx, `SELECT id, name, capacity, registered FROM resources WHERE id = $1`, id)
}

func (q *queries) resource(ctx context.Context, query, id string) (domain.Resource, error) {
	var r domain.Resource
	err := q.tx.QueryRow(ctx, query, id).Scan(&r.ID, &r.Name, &r.Capacity, &r.Registered)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Resource{}, domain.ErrResourceNotFound
		}
		return domain.Resource{}, fmt.Errorf("get resource: %w", err)
	}
	return r, nil
}

func (q *queries) FindActiveLock(ctx context.Context, resourceID, holderID string, now time.Time) (*domain.Lock, error) {
	const query = `
SELECT id, resource_id, holder_id, created_at, expires_at
FROM locks
WHERE resource_id = $1 AND holder_id = $2 AND expires_at > $3
ORDER BY created_at ASC
LIMIT 1`

	var l domain.Lock
	err := q.tx.QueryRow(ctx, query, resourceID, holderID, now).
		Scan(&l.ID, &l.ResourceID, &l.HolderID, &l.CreatedAt, &l.ExpiresAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("find active lock: %w", err)
	}
	return &l, nil
}

func (q *queries) CountActiveLocks(ctx context.Context, resourceID string, now time.Time) (int, error) {
	const query = `SELECT COUNT(*) FROM locks WHERE resource_id = $1 AND expires_at > $2`
	var n int
	if err := q.tx.QueryRow(ctx, query, resourceID, now).Scan(&n); err != nil {
		return 0, fmt.Errorf("count active locks: %w", err)
	}
	return n, nil
}

func (q *queries) ListExpiredLocks(ctx context.Context, now time.Time, limit int) ([]domain.Lock, error) {
	const query = `
SELECT id, resource_id, holder_id, created_at, expires_at
FROM locks
WHERE expires_at <= $1
ORDER BY expires_at ASC
LIMIT $2`

	rows, err := q.tx.Query(ctx, query, now, limit)
	if err != nil {
		return nil, fmt.Errorf("list expired locks: %w", err)
	}
	defer rows.Close()

	var locks []domain.Lock
	for rows.Next() {
		var l domain.Lock
		if err := rows.Scan(&l.ID, &l.ResourceID, &l.HolderID, &l.CreatedAt, &l.ExpiresAt); err != nil {
			return nil, fmt.Errorf("scan lock: %w", err)
		}
		locks = append(locks, l)
	}
	if rows.Err() != nil {
		return nil, fmt.Errorf("iterate locks: %w", rows.Err())
	}
	return locks, nil
}

func (q *queries) FindRegistration(ctx context.Context, resourceID, holderID, paymentID string) (*domain.Registration, error) {
	const query = `
SELECT id, resource_id, holder_id, payment_id, status, created_at
FROM registrations
WHERE resource_id = $1 AND holder_id = $2 AND payment_id = $3`

	reg, err := scanRegistration(q.tx.QueryRow(ctx, query, resourceID, holderID, paymentID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("find registration: %w", err)
	}
	return &reg, nil
}

func (q *queries) GetRegistration(ctx context.Context, id string) (domain.Registration, error) {
	const query = `
SELECT id, resource_id, holder_id, payment_id, status, created_at
FROM registrations
WHERE id = $1
FOR UPDATE`

	reg, err := scanRegistration(q.tx.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Registration{}, domain.ErrRegistrationNotFound
		}
		return domain.Registration{}, fmt.Errorf("get registration: %w", err)
	}
	return reg, nil
}

func scanRegistration(row pgx.Row) (domain.Registration, error) {
	var reg domain.Registration
	var status string
	if err := row.Scan(&reg.ID, &reg.ResourceID, &reg.HolderID, &reg.PaymentID, &status, &reg.CreatedAt); err != nil {
		return domain.Registration{}, err
	}
	reg.Status = domain.RegistrationStatus(status)
	return reg, nil
}

func (q *queries) GetOrder(ctx context.Context, id string) (domain.Order, error) {
	const query = `
SELECT id, status, inventory_deducted, shipment_id, shipment_status, payment_id, created_at, updated_at
FROM orders
WHERE id = $1
FOR UPDATE`

	var o domain.Order
	var status, shipmentStatus string
	err := q.tx.QueryRow(ctx, query, id).Scan(
		&o.ID, &status, &o.InventoryDeducted, &o.ShipmentID, &shipmentStatus, &o.PaymentID, &o.CreatedAt, &o.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Order{}, domain.ErrOrderNotFound
		}
		return domain.Order{}, fmt.Errorf("get order: %w", err)
	}
	o.Status = domain.OrderStatus(status)
	o.ShipmentStatus = domain.ShipmentStatus(shipmentStatus)

	const itemsQuery = `SELECT product_id, quantity FROM order_items WHERE order_id = $1 ORDER BY position ASC`
	rows, err := q.tx.Query(ctx, itemsQuery, id)
	if err != nil {
		return domain.Order{}, fmt.Errorf("get order items: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var item domain.OrderItem
		if err := rows.Scan(&item.ProductID, &item.Quantity); err != nil {
			return domain.Order{}, fmt.Errorf("scan order item: %w", err)
		}
		o.Items = append(o.Items, item)
	}
	if rows.Err() != nil {
		return domain.Order{}, fmt.Errorf("iterate order items: %w", rows.Err())
	}
	return o, nil
}

func (q *queries) GetStockItems(ctx context.Context, ids []string) (map[string]domain.StockItem, error) {
	// Locked in id order so two transactions touching the same products
	// cannot deadlock on each other.
	const query = `
SELECT id, name, stock, sales
FROM stock_items
WHERE id = ANY($1)
ORDER BY id
FOR UPDATE`

	rows, err := q.tx.Query(ctx, query, ids)
	if err != nil {
		return nil, fmt.Errorf("get stock items: %w", err)
	}
	defer rows.Close()

	items := make(map[string]domain.StockItem, len(ids))
	for rows.Next() {
		var item domain.StockItem
		if err := rows.Scan(&item.ID, &item.Name, &item.Stock, &item.Sales); err != nil {
			return nil, fmt.Errorf("scan stock item: %w", err)
		}
		items[item.ID] = item
	}
	if rows.Err() != nil {
		return nil, fmt.Errorf("iterate stock items: %w", rows.Err())
	}
	return items, nil
}
