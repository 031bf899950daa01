package app

import (
	"context"
	"time"

	"github.com/GO-Commerce-Platform/fulfillment/internal/clock"
	"github.com/GO-Commerce-Platform/fulfillment/internal/domain"
)

type ReservationRepository interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
	GetProductForUpdate(ctx context.Context, storeID, productID string) (domain.Product, error)
	GetReservation(ctx context.Context, storeID, id string) (domain.StockReservation, error)
	CreateReservation(ctx context.Context, res domain.StockReservation) error
	CasStatus(ctx context.Context, storeID, id string, from, to domain.ReservationStatus, now time.Time, requireUnexpired bool) (bool, error)
	ExpireBatch(ctx context.Context, now time.Time, limit int) (int, error)
	SumActiveReservations(ctx context.Context, storeID, productID string, now time.Time) (int, error)
}

// ReservationService manages time-boxed holds against product stock.
// Creation validates availability under a product row lock; all status
// transitions are compare-and-set.
type ReservationService struct {
	repo  ReservationRepository
	clock clock.Clock
	ttl   time.Duration
}

const defaultReservationTTL = 15 * time.Minute

func NewReservationService(repo ReservationRepository, clk clock.Clock, opts ...ReservationServiceOption) *ReservationService {
	svc := &ReservationService{
		repo:  repo,
		clock: clk,
		ttl:   defaultReservationTTL,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

type ReservationServiceOption func(*ReservationService)

// WithReservationTTL overrides the default TTL for new reservations.
func WithReservationTTL(d time.Duration) ReservationServiceOption {
	return func(s *ReservationService) {
		if d > 0 {
			s.ttl = d
		}
	}
}

type CreateReservationInput struct {
	ReservationID string
	StoreID       string
	ProductID     string
	Quantity      int
	// TTL of zero uses the service default.
	TTL        time.Duration
	ReservedBy string
	Reference  string
	Notes      string
}

// Create places a hold. The product row stays locked while availability
// (base quantity minus active reservations) is checked, so two concurrent
// checkouts on the same product serialize here and cannot oversell. A
// duplicate reservation id fails with ErrReservationConflict.
func (s *ReservationService) Create(ctx context.Context, in CreateReservationInput) (domain.StockReservation, error) {
	if in.ReservationID == "" {
		return domain.StockReservation{}, domain.ErrInvalidID
	}
	if in.Quantity <= 0 {
		return domain.StockReservation{}, domain.ErrInvalidQuantity
	}

	ttl := in.TTL
	if ttl <= 0 {
		ttl = s.ttl
	}

	now := s.clock.Now()
	var result domain.StockReservation

	err := s.repo.WithTx(ctx, func(txCtx context.Context) error {
		product, err := s.repo.GetProductForUpdate(txCtx, in.StoreID, in.ProductID)
		if err != nil {
			return err
		}

		if product.TrackInventory {
			reserved, err := s.repo.SumActiveReservations(txCtx, in.StoreID, in.ProductID, now)
			if err != nil {
				return err
			}
			if in.Quantity > product.Quantity-reserved {
				return domain.ErrInsufficientStock
			}
		}

		res := domain.StockReservation{
			ID:         in.ReservationID,
			StoreID:    in.StoreID,
			ProductID:  in.ProductID,
			Quantity:   in.Quantity,
			Status:     domain.ReservationStatusActive,
			ReservedAt: now,
			ExpiresAt:  now.Add(ttl),
			ReservedBy: in.ReservedBy,
			Reference:  in.Reference,
			Notes:      in.Notes,
			UpdatedAt:  now,
		}
		if err := s.repo.CreateReservation(txCtx, res); err != nil {
			return err
		}

		result = res
		return nil
	})
	if err != nil {
		return domain.StockReservation{}, err
	}
	return result, nil
}

// Confirm flips an unexpired ACTIVE reservation to CONFIRMED. A reservation
// already in a terminal state (or past its TTL) fails with
// ErrReservationConflict.
func (s *ReservationService) Confirm(ctx context.Context, storeID, id string) (domain.StockReservation, error) {
	now := s.clock.Now()

	swapped, err := s.repo.CasStatus(ctx, storeID, id,
		domain.ReservationStatusActive, domain.ReservationStatusConfirmed, now, true)
	if err != nil {
		return domain.StockReservation{}, err
	}
	if !swapped {
		if _, err := s.repo.GetReservation(ctx, storeID, id); err != nil {
			return domain.StockReservation{}, err
		}
		return domain.StockReservation{}, domain.ErrReservationConflict
	}
	return s.repo.GetReservation(ctx, storeID, id)
}

// Release flips an ACTIVE reservation to RELEASED. Releasing a reservation
// that is already terminal is a no-op, not an error.
func (s *ReservationService) Release(ctx context.Context, storeID, id string) error {
	swapped, err := s.repo.CasStatus(ctx, storeID, id,
		domain.ReservationStatusActive, domain.ReservationStatusReleased, s.clock.Now(), false)
	if err != nil {
		return err
	}
	if !swapped {
		if _, err := s.repo.GetReservation(ctx, storeID, id); err != nil {
			return err
		}
	}
	return nil
}

// ExpireSweep flips up to batchLimit lapsed ACTIVE reservations to EXPIRED
// and returns the count. Invoked only by the background sweeper, never
// inline with a user request.
func (s *ReservationService) ExpireSweep(ctx context.Context, batchLimit int) (int, error) {
	if batchLimit <= 0 {
		batchLimit = 100
	}
	return s.repo.ExpireBatch(ctx, s.clock.Now(), batchLimit)
}

// TotalReserved sums the quantities of ACTIVE, non-expired reservations for
// a product.
func (s *ReservationService) TotalReserved(ctx context.Context, storeID, productID string) (int, error) {
	return s.repo.SumActiveReservations(ctx, storeID, productID, s.clock.Now())
}

// Get returns one reservation.
func (s *ReservationService) Get(ctx context.Context, storeID, id string) (domain.StockReservation, error) {
	return s.repo.GetReservation(ctx, storeID, id)
}
