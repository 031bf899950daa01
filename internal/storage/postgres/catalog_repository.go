package postgres

import (
	"context"
	"fmt"

	"github.com/GO-Commerce-Platform/fulfillment/internal/domain"
	"github.com/jackc/pgx/v5/pgxpool"
)

// CatalogRepository covers the read side of the product catalog the
// fulfillment flow needs (name/sku/price snapshots) plus a minimal create
// surface for seeding stores.
type CatalogRepository struct {
	pool *pgxpool.Pool
}

func NewCatalogRepository(pool *pgxpool.Pool) *CatalogRepository {
	return &CatalogRepository{pool: pool}
}

func (r *CatalogRepository) CreateProduct(ctx context.Context, p domain.Product) error {
	const stmt = `
INSERT INTO products (id, store_id, name, sku, price, quantity, low_stock_threshold, track_inventory, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	_, err := r.pool.Exec(ctx, stmt,
		p.ID, p.StoreID, p.Name, p.SKU, p.Price, p.Quantity,
		p.LowStockThreshold, p.TrackInventory, p.UpdatedAt)
	if err != nil {
		if isInvalidUUID(err) {
			return domain.ErrInvalidID
		}
		if isUniqueViolation(err) {
			return fmt.Errorf("sku %s taken for store %s: %w", p.SKU, p.StoreID, domain.ErrInvalidID)
		}
		return fmt.Errorf("create product: %w", err)
	}
	return nil
}

func (r *CatalogRepository) GetProduct(ctx context.Context, storeID, productID string) (domain.Product, error) {
	stock := StockRepository{pool: r.pool}
	return stock.GetProduct(ctx, storeID, productID)
}

func (r *CatalogRepository) ListProducts(ctx context.Context, storeID string) ([]domain.Product, error) {
	query := `SELECT ` + productColumns + ` FROM products WHERE store_id = $1 ORDER BY name`

	rows, err := r.pool.Query(ctx, query, storeID)
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	defer rows.Close()

	var products []domain.Product
	for rows.Next() {
		var p domain.Product
		if err := rows.Scan(&p.ID, &p.StoreID, &p.Name, &p.SKU, &p.Price, &p.Quantity,
			&p.LowStockThreshold, &p.TrackInventory, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		products = append(products, p)
	}
	if rows.Err() != nil {
		return nil, fmt.Errorf("iterate products: %w", rows.Err())
	}
	return products, nil
}
