package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/GO-Commerce-Platform/fulfillment/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// CartRepository backs the cart-provider collaborator. The fulfillment saga
// depends only on the app.CartProvider interface; this is the default
// implementation.
type CartRepository struct {
	pool *pgxpool.Pool
}

func NewCartRepository(pool *pgxpool.Pool) *CartRepository {
	return &CartRepository{pool: pool}
}

func (r *CartRepository) GetCartByID(ctx context.Context, storeID, cartID string) (domain.Cart, error) {
	const query = `SELECT id, store_id, customer_id, status, expires_at FROM carts WHERE id = $1 AND store_id = $2`

	var c domain.Cart
	var expiresAt *time.Time
	err := r.queryRow(ctx, query, cartID, storeID).Scan(&c.ID, &c.StoreID, &c.CustomerID, &c.Status, &expiresAt)
	if err != nil {
		if isInvalidUUID(err) {
			return domain.Cart{}, domain.ErrInvalidID
		}
		if err == pgx.ErrNoRows {
			return domain.Cart{}, domain.ErrCartNotFound
		}
		return domain.Cart{}, fmt.Errorf("get cart: %w", err)
	}
	if expiresAt != nil {
		c.ExpiresAt = *expiresAt
	}

	const itemQuery = `
SELECT product_id, quantity, unit_price
FROM cart_items
WHERE cart_id = $1`

	rows, err := r.query(ctx, itemQuery, cartID)
	if err != nil {
		return domain.Cart{}, fmt.Errorf("list cart items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var it domain.CartItem
		if err := rows.Scan(&it.ProductID, &it.Quantity, &it.UnitPrice); err != nil {
			return domain.Cart{}, fmt.Errorf("scan cart item: %w", err)
		}
		c.Items = append(c.Items, it)
	}
	return c, rows.Err()
}

// ClearCart empties the cart and marks it checked out.
func (r *CartRepository) ClearCart(ctx context.Context, storeID, cartID string) error {
	return withTx(ctx, r.pool, func(txCtx context.Context) error {
		if _, err := r.exec(txCtx, `DELETE FROM cart_items WHERE cart_id = $1`, cartID); err != nil {
			return fmt.Errorf("clear cart items: %w", err)
		}
		tag, err := r.exec(txCtx,
			`UPDATE carts SET status = 'checked_out', updated_at = NOW() WHERE id = $1 AND store_id = $2`,
			cartID, storeID)
		if err != nil {
			return fmt.Errorf("mark cart checked out: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return domain.ErrCartNotFound
		}
		return nil
	})
}

func (r *CartRepository) exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	if tx := txFromContext(ctx); tx != nil {
		return tx.Exec(ctx, sql, args...)
	}
	return r.pool.Exec(ctx, sql, args...)
}

func (r *CartRepository) queryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	if tx := txFromContext(ctx); tx != nil {
		return tx.QueryRow(ctx, sql, args...)
	}
	return r.pool.QueryRow(ctx, sql, args...)
}

func (r *CartRepository) query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	if tx := txFromContext(ctx); tx != nil {
		return tx.Query(ctx, sql, args...)
	}
	return r.pool.Query(ctx, sql, args...)
}
