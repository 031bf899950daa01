package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/GO-Commerce-Platform/fulfillment/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// OrderRepository persists order headers and their immutable item snapshots.
type OrderRepository struct {
	pool *pgxpool.Pool
}

func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{pool: pool}
}

func (r *OrderRepository) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return withTx(ctx, r.pool, fn)
}

// CreateOrder writes the order header and all items. Callers wrap it in
// WithTx so the order appears atomically or not at all.
func (r *OrderRepository) CreateOrder(ctx context.Context, order domain.Order) error {
	const headerStmt = `
INSERT INTO orders
	(id, store_id, order_number, customer_id, status, subtotal, tax, shipping, discount, total,
	 shipping_address, billing_address, order_date, version)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`

	shippingJSON, err := json.Marshal(order.ShippingAddress)
	if err != nil {
		return fmt.Errorf("marshal shipping address: %w", err)
	}
	billingJSON, err := json.Marshal(order.BillingAddress)
	if err != nil {
		return fmt.Errorf("marshal billing address: %w", err)
	}

	_, err = r.exec(ctx, headerStmt,
		order.ID,
		order.StoreID,
		order.OrderNumber,
		order.CustomerID,
		order.Status,
		order.Subtotal,
		order.Tax,
		order.Shipping,
		order.Discount,
		order.Total,
		shippingJSON,
		billingJSON,
		order.OrderDate,
		order.Version,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("order number %s taken: %w", order.OrderNumber, domain.ErrInvalidID)
		}
		return fmt.Errorf("create order: %w", err)
	}

	const itemStmt = `
INSERT INTO order_items (id, order_id, product_id, product_name, sku, quantity, unit_price, total_price)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	for _, item := range order.Items {
		if _, err := r.exec(ctx, itemStmt,
			item.ID, order.ID, item.ProductID, item.ProductName, item.SKU,
			item.Quantity, item.UnitPrice, item.TotalPrice,
		); err != nil {
			return fmt.Errorf("create order item: %w", err)
		}
	}
	return nil
}

func (r *OrderRepository) GetOrder(ctx context.Context, storeID, orderID string) (domain.Order, error) {
	return r.getOrder(ctx, storeID, orderID, false)
}

// GetOrderForUpdate locks the order row for the enclosing transaction so
// status transitions and refund checks serialize per order.
func (r *OrderRepository) GetOrderForUpdate(ctx context.Context, storeID, orderID string) (domain.Order, error) {
	return r.getOrder(ctx, storeID, orderID, true)
}

func (r *OrderRepository) getOrder(ctx context.Context, storeID, orderID string, forUpdate bool) (domain.Order, error) {
	query := `
SELECT id, store_id, order_number, customer_id, status, subtotal, tax, shipping, discount, total,
	shipping_address, billing_address, order_date, shipped_date, delivered_date, version
FROM orders
WHERE id = $1 AND store_id = $2`
	if forUpdate {
		query += ` FOR UPDATE`
	}

	var o domain.Order
	var shippingJSON, billingJSON []byte
	err := r.queryRow(ctx, query, orderID, storeID).Scan(
		&o.ID, &o.StoreID, &o.OrderNumber, &o.CustomerID, &o.Status,
		&o.Subtotal, &o.Tax, &o.Shipping, &o.Discount, &o.Total,
		&shippingJSON, &billingJSON, &o.OrderDate, &o.ShippedDate, &o.DeliveredDate, &o.Version,
	)
	if err != nil {
		if isInvalidUUID(err) {
			return domain.Order{}, domain.ErrInvalidID
		}
		if err == pgx.ErrNoRows {
			return domain.Order{}, domain.ErrOrderNotFound
		}
		return domain.Order{}, fmt.Errorf("get order: %w", err)
	}
	if err := json.Unmarshal(shippingJSON, &o.ShippingAddress); err != nil {
		return domain.Order{}, fmt.Errorf("unmarshal shipping address: %w", err)
	}
	if err := json.Unmarshal(billingJSON, &o.BillingAddress); err != nil {
		return domain.Order{}, fmt.Errorf("unmarshal billing address: %w", err)
	}

	items, err := r.listItems(ctx, o.ID)
	if err != nil {
		return domain.Order{}, err
	}
	o.Items = items
	return o, nil
}

func (r *OrderRepository) listItems(ctx context.Context, orderID string) ([]domain.OrderItem, error) {
	const query = `
SELECT id, order_id, product_id, product_name, sku, quantity, unit_price, total_price
FROM order_items
WHERE order_id = $1
ORDER BY product_name`

	rows, err := r.query(ctx, query, orderID)
	if err != nil {
		return nil, fmt.Errorf("list order items: %w", err)
	}
	defer rows.Close()

	var items []domain.OrderItem
	for rows.Next() {
		var it domain.OrderItem
		if err := rows.Scan(&it.ID, &it.OrderID, &it.ProductID, &it.ProductName,
			&it.SKU, &it.Quantity, &it.UnitPrice, &it.TotalPrice); err != nil {
			return nil, fmt.Errorf("scan order item: %w", err)
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

// UpdateOrderStatus writes status and date stamps with an optimistic version
// check. Zero rows on an existing order means a concurrent writer won.
func (r *OrderRepository) UpdateOrderStatus(ctx context.Context, order domain.Order) error {
	const stmt = `
UPDATE orders
SET status = $4, shipped_date = $5, delivered_date = $6, version = version + 1
WHERE id = $1 AND store_id = $2 AND version = $3`

	tag, err := r.exec(ctx, stmt,
		order.ID, order.StoreID, order.Version,
		order.Status, order.ShippedDate, order.DeliveredDate,
	)
	if err != nil {
		return fmt.Errorf("update order status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrVersionConflict
	}
	return nil
}

func (r *OrderRepository) exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	if tx := txFromContext(ctx); tx != nil {
		return tx.Exec(ctx, sql, args...)
	}
	return r.pool.Exec(ctx, sql, args...)
}

func (r *OrderRepository) queryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	if tx := txFromContext(ctx); tx != nil {
		return tx.QueryRow(ctx, sql, args...)
	}
	return r.pool.QueryRow(ctx, sql, args...)
}

func (r *OrderRepository) query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	if tx := txFromContext(ctx); tx != nil {
		return tx.Query(ctx, sql, args...)
	}
	return r.pool.Query(ctx, sql, args...)
}
