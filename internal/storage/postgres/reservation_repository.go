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

// ReservationRepository persists time-boxed stock holds. Status transitions
// are compare-and-set on the current status so concurrent confirm, release
// and expire calls never double-apply.
type ReservationRepository struct {
	pool *pgxpool.Pool
}

func NewReservationRepository(pool *pgxpool.Pool) *ReservationRepository {
	return &ReservationRepository{pool: pool}
}

func (r *ReservationRepository) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return withTx(ctx, r.pool, fn)
}

const reservationColumns = `id, store_id, product_id, quantity, status, reserved_at, expires_at, reserved_by, reference, notes, updated_at`

func (r *ReservationRepository) GetReservation(ctx context.Context, storeID, id string) (domain.StockReservation, error) {
	query := `SELECT ` + reservationColumns + ` FROM stock_reservations WHERE id = $1 AND store_id = $2`

	var res domain.StockReservation
	err := r.queryRow(ctx, query, id, storeID).Scan(&res.ID, &res.StoreID, &res.ProductID,
		&res.Quantity, &res.Status, &res.ReservedAt, &res.ExpiresAt, &res.ReservedBy,
		&res.Reference, &res.Notes, &res.UpdatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return domain.StockReservation{}, domain.ErrReservationNotFound
		}
		return domain.StockReservation{}, fmt.Errorf("get reservation: %w", err)
	}
	return res, nil
}

func (r *ReservationRepository) CreateReservation(ctx context.Context, res domain.StockReservation) error {
	const stmt = `
INSERT INTO stock_reservations
	(id, store_id, product_id, quantity, status, reserved_at, expires_at, reserved_by, reference, notes, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	_, err := r.exec(ctx, stmt,
		res.ID,
		res.StoreID,
		res.ProductID,
		res.Quantity,
		res.Status,
		res.ReservedAt,
		res.ExpiresAt,
		res.ReservedBy,
		res.Reference,
		res.Notes,
		res.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrReservationConflict
		}
		if isInvalidUUID(err) {
			return domain.ErrInvalidID
		}
		return fmt.Errorf("create reservation: %w", err)
	}
	return nil
}

// CasStatus flips a reservation from one status to another and reports
// whether the swap applied. A false return with a nil error means the row
// exists but was not in the expected status (or, for confirm, had lapsed).
func (r *ReservationRepository) CasStatus(ctx context.Context, storeID, id string, from, to domain.ReservationStatus, now time.Time, requireUnexpired bool) (bool, error) {
	stmt := `
UPDATE stock_reservations
SET status = $4, updated_at = $5
WHERE id = $1 AND store_id = $2 AND status = $3`
	args := []any{id, storeID, from, to, now}
	if requireUnexpired {
		stmt += ` AND expires_at > $5`
	}

	tag, err := r.exec(ctx, stmt, args...)
	if err != nil {
		return false, fmt.Errorf("cas reservation status: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// ExpireBatch flips up to limit lapsed active reservations to expired and
// returns how many were flipped. The status predicate keeps concurrent
// sweepers from double-expiring a row.
func (r *ReservationRepository) ExpireBatch(ctx context.Context, now time.Time, limit int) (int, error) {
	const stmt = `
UPDATE stock_reservations
SET status = 'expired', updated_at = $1
WHERE id IN (
	SELECT id FROM stock_reservations
	WHERE status = 'active' AND expires_at <= $1
	ORDER BY expires_at
	LIMIT $2
	FOR UPDATE SKIP LOCKED
)
AND status = 'active'`

	tag, err := r.exec(ctx, stmt, now, limit)
	if err != nil {
		return 0, fmt.Errorf("expire reservations: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

func (r *ReservationRepository) SumActiveReservations(ctx context.Context, storeID, productID string, now time.Time) (int, error) {
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

func (r *ReservationRepository) GetProductForUpdate(ctx context.Context, storeID, productID string) (domain.Product, error) {
	query := `SELECT ` + productColumns + ` FROM products WHERE id = $1 AND store_id = $2 FOR UPDATE`

	var p domain.Product
	err := r.queryRow(ctx, query, productID, storeID).Scan(&p.ID, &p.StoreID, &p.Name, &p.SKU,
		&p.Price, &p.Quantity, &p.LowStockThreshold, &p.TrackInventory, &p.UpdatedAt)
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

func (r *ReservationRepository) exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	if tx := txFromContext(ctx); tx != nil {
		return tx.Exec(ctx, sql, args...)
	}
	return r.pool.Exec(ctx, sql, args...)
}

func (r *ReservationRepository) queryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	if tx := txFromContext(ctx); tx != nil {
		return tx.QueryRow(ctx, sql, args...)
	}
	return r.pool.QueryRow(ctx, sql, args...)
}
