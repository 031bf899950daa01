package postgres

import (
	"context"
	"fmt"

	"github.com/GO-Commerce-Platform/fulfillment/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// RefundRepository persists the refund ledger.
type RefundRepository struct {
	pool *pgxpool.Pool
}

func NewRefundRepository(pool *pgxpool.Pool) *RefundRepository {
	return &RefundRepository{pool: pool}
}

func (r *RefundRepository) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return withTx(ctx, r.pool, fn)
}

func (r *RefundRepository) GetOrderForUpdate(ctx context.Context, storeID, orderID string) (domain.Order, error) {
	orders := OrderRepository{pool: r.pool}
	return orders.GetOrderForUpdate(ctx, storeID, orderID)
}

func (r *RefundRepository) InsertRefund(ctx context.Context, refund domain.Refund) error {
	const stmt = `
INSERT INTO refunds (id, store_id, order_id, type, amount, reason, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err := r.exec(ctx, stmt,
		refund.ID,
		refund.StoreID,
		refund.OrderID,
		refund.Type,
		refund.Amount,
		refund.Reason,
		refund.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert refund: %w", err)
	}
	return nil
}

// SumRefunds totals all prior refunds for an order.
func (r *RefundRepository) SumRefunds(ctx context.Context, storeID, orderID string) (decimal.Decimal, error) {
	const query = `SELECT COALESCE(SUM(amount), 0) FROM refunds WHERE store_id = $1 AND order_id = $2`

	var total decimal.Decimal
	if err := r.queryRow(ctx, query, storeID, orderID).Scan(&total); err != nil {
		return decimal.Zero, fmt.Errorf("sum refunds: %w", err)
	}
	return total, nil
}

func (r *RefundRepository) ListRefunds(ctx context.Context, storeID, orderID string) ([]domain.Refund, error) {
	const query = `
SELECT id, store_id, order_id, type, amount, reason, created_at
FROM refunds
WHERE store_id = $1 AND order_id = $2
ORDER BY created_at`

	rows, err := r.query(ctx, query, storeID, orderID)
	if err != nil {
		return nil, fmt.Errorf("list refunds: %w", err)
	}
	defer rows.Close()

	var out []domain.Refund
	for rows.Next() {
		var rf domain.Refund
		if err := rows.Scan(&rf.ID, &rf.StoreID, &rf.OrderID, &rf.Type, &rf.Amount, &rf.Reason, &rf.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan refund: %w", err)
		}
		out = append(out, rf)
	}
	return out, rows.Err()
}

func (r *RefundRepository) exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	if tx := txFromContext(ctx); tx != nil {
		return tx.Exec(ctx, sql, args...)
	}
	return r.pool.Exec(ctx, sql, args...)
}

func (r *RefundRepository) queryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	if tx := txFromContext(ctx); tx != nil {
		return tx.QueryRow(ctx, sql, args...)
	}
	return r.pool.QueryRow(ctx, sql, args...)
}

func (r *RefundRepository) query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	if tx := txFromContext(ctx); tx != nil {
		return tx.Query(ctx, sql, args...)
	}
	return r.pool.Query(ctx, sql, args...)
}
