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

// StockRepository persists product quantities and the append-only
// adjustment ledger.
type StockRepository struct {
	pool *pgxpool.Pool
}

func NewStockRepository(pool *pgxpool.Pool) *StockRepository {
	return &StockRepository{pool: pool}
}

func (r *StockRepository) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return withTx(ctx, r.pool, fn)
}

const productColumns = `id, store_id, name, sku, price, quantity, low_stock_threshold, track_inventory, updated_at`

func (r *StockRepository) GetProduct(ctx context.Context, storeID, productID string) (domain.Product, error) {
	query := `SELECT ` + productColumns + ` FROM products WHERE id = $1 AND store_id = $2`
	return r.scanProduct(r.queryRow(ctx, query, productID, storeID))
}

// GetProductForUpdate locks the product row for the remainder of the
// enclosing transaction. Concurrent mutations on the same product serialize
// here.
func (r *StockRepository) GetProductForUpdate(ctx context.Context, storeID, productID string) (domain.Product, error) {
	query := `SELECT ` + productColumns + ` FROM products WHERE id = $1 AND store_id = $2 FOR UPDATE`
	return r.scanProduct(r.queryRow(ctx, query, productID, storeID))
}

func (r *StockRepository) scanProduct(row pgx.Row) (domain.Product, error) {
	var p domain.Product
	err := row.Scan(&p.ID, &p.StoreID, &p.Name, &p.SKU, &p.Price, &p.Quantity,
		&p.LowStockThreshold, &p.TrackInventory, &p.UpdatedAt)
	if err != nil {
		if isInvalidUUID(err) {
			return domain.Product{}, domain.ErrInvalidID
		}
		if err == pgx.ErrNoRows {
			return domain.Product{}, domain.ErrProductNotFound
		}
		return domain.Product{}, fmt.Errorf("get product: %w", err)
	}
	return p, nil
}

func (r *StockRepository) UpdateProductQuantity(ctx context.Context, storeID, productID string, quantity int, updatedAt time.Time) error {
	const stmt = `UPDATE products SET quantity = $3, updated_at = $4 WHERE id = $1 AND store_id = $2`

	tag, err := r.exec(ctx, stmt, productID, storeID, quantity, updatedAt)
	if err != nil {
		if isCheckViolation(err) {
			return domain.ErrInsufficientStock
		}
		return fmt.Errorf("update product quantity: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrProductNotFound
	}
	return nil
}

func (r *StockRepository) InsertAdjustment(ctx context.Context, adj domain.InventoryAdjustment) error {
	const stmt = `
INSERT INTO inventory_adjustments
	(id, store_id, product_id, type, quantity, previous_quantity, new_quantity, reason, reference, notes, adjusted_by, adjusted_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`

	_, err := r.exec(ctx, stmt,
		adj.ID,
		adj.StoreID,
		adj.ProductID,
		adj.Type,
		adj.Quantity,
		adj.PreviousQuantity,
		adj.NewQuantity,
		adj.Reason,
		adj.Reference,
		adj.Notes,
		adj.AdjustedBy,
		adj.AdjustedAt,
	)
	if err != nil {
		return fmt.Errorf("insert adjustment: %w", err)
	}
	return nil
}

func (r *StockRepository) ListAdjustments(ctx context.Context, storeID, productID string, limit int) ([]domain.InventoryAdjustment, error) {
	const query = `
SELECT id, store_id, product_id, type, quantity, previous_quantity, new_quantity, reason, reference, notes, adjusted_by, adjusted_at
FROM inventory_adjustments
WHERE store_id = $1 AND product_id = $2
ORDER BY adjusted_at DESC
LIMIT $3`

	rows, err := r.query(ctx, query, storeID, productID, limit)
	if err != nil {
		return nil, fmt.Errorf("list adjustments: %w", err)
	}
	defer rows.Close()

	var out []domain.InventoryAdjustment
	for rows.Next() {
		var a domain.InventoryAdjustment
		if err := rows.Scan(&a.ID, &a.StoreID, &a.ProductID, &a.Type, &a.Quantity,
			&a.PreviousQuantity, &a.NewQuantity, &a.Reason, &a.Reference, &a.Notes,
			&a.AdjustedBy, &a.AdjustedAt); err != nil {
			return nil, fmt.Errorf("scan adjustment: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (r *StockRepository) SumActiveReservations(ctx context.Context, storeID, productID string, now time.Time) (int, error) {
	const query = `
SELECT COALESCE(SUM(quantity), 0)
FROM stock_reservations
WHERE store_id = $1 AND product_id = $2 AND status = 'active' AND expires_at > $3`

	var total int
	if err := r.queryRow(ctx, query, storeID, productID, now).Scan(&total); err != nil {
		return 0, fmt.Errorf("sum active reservations: %w", err)
	}
	return total, nil
}

func (r *StockRepository) exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	if tx := txFromContext(ctx); tx != nil {
		return tx.Exec(ctx, sql, args...)
	}
	return r.pool.Exec(ctx, sql, args...)
}

func (r *StockRepository) queryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	if tx := txFromContext(ctx); tx != nil {
		return tx.QueryRow(ctx, sql, args...)
	}
	return r.pool.QueryRow(ctx, sql, args...)
}

func (r *StockRepository) query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	if tx := txFromContext(ctx); tx != nil {
		return tx.Query(ctx, sql, args...)
	}
	return r.pool.Query(ctx, sql, args...)
}
