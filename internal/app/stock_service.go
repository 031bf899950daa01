package app

import (
	"context"
	"time"

	"github.com/GO-Commerce-Platform/fulfillment/internal/clock"
	"github.com/GO-Commerce-Platform/fulfillment/internal/domain"
	"github.com/GO-Commerce-Platform/fulfillment/internal/eventbus"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type StockRepository interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
	GetProduct(ctx context.Context, storeID, productID string) (domain.Product, error)
	GetProductForUpdate(ctx context.Context, storeID, productID string) (domain.Product, error)
	UpdateProductQuantity(ctx context.Context, storeID, productID string, quantity int, updatedAt time.Time) error
	InsertAdjustment(ctx context.Context, adj domain.InventoryAdjustment) error
	SumActiveReservations(ctx context.Context, storeID, productID string, now time.Time) (int, error)
}

// EventPublisher is satisfied by *eventbus.Publisher; a nil publisher
// is a no-op.
type EventPublisher interface {
	Publish(ctx context.Context, routingKey string, payload any) error
}

// StockService owns every product quantity mutation. Each mutation locks the
// product row, applies the new quantity and appends exactly one audit row,
// all in one transaction.
type StockService struct {
	repo   StockRepository
	clock  clock.Clock
	events EventPublisher
	logger zerolog.Logger
}

func NewStockService(repo StockRepository, clk clock.Clock, events EventPublisher, logger zerolog.Logger) *StockService {
	return &StockService{
		repo:   repo,
		clock:  clk,
		events: events,
		logger: logger,
	}
}

type AdjustmentInput struct {
	StoreID    string
	ProductID  string
	Type       domain.AdjustmentType
	Quantity   int
	Reason     string
	Reference  string
	Notes      string
	AdjustedBy string
}

// HasSufficientStock reports whether qty can be taken from current stock.
// Products that do not track inventory always have sufficient stock.
func (s *StockService) HasSufficientStock(ctx context.Context, storeID, productID string, qty int) (bool, error) {
	if qty <= 0 {
		return false, domain.ErrInvalidQuantity
	}
	product, err := s.repo.GetProduct(ctx, storeID, productID)
	if err != nil {
		return false, err
	}
	if !product.TrackInventory {
		return true, nil
	}
	return product.Quantity >= qty, nil
}

// Availability returns base quantity minus the sum of active reservations.
// Untracked products report their raw quantity.
func (s *StockService) Availability(ctx context.Context, storeID, productID string) (int, error) {
	product, err := s.repo.GetProduct(ctx, storeID, productID)
	if err != nil {
		return 0, err
	}
	if !product.TrackInventory {
		return product.Quantity, nil
	}
	reserved, err := s.repo.SumActiveReservations(ctx, storeID, productID, s.clock.Now())
	if err != nil {
		return 0, err
	}
	return product.Quantity - reserved, nil
}

// RecordAdjustment applies one signed quantity change and its audit row
// atomically. A result below zero is rejected with ErrInsufficientStock and
// nothing is written.
func (s *StockService) RecordAdjustment(ctx context.Context, in AdjustmentInput) (domain.InventoryAdjustment, error) {
	var adj domain.InventoryAdjustment
	var alert *eventbus.LowStockAlert

	err := s.repo.WithTx(ctx, func(txCtx context.Context) error {
		var err error
		adj, alert, err = s.applyAdjustment(txCtx, in)
		return err
	})
	if err != nil {
		return domain.InventoryAdjustment{}, err
	}

	s.publishLowStock(ctx, alert)
	return adj, nil
}

// BulkAdjust applies a batch of adjustments in order inside one transaction;
// any failure rolls back the whole batch.
func (s *StockService) BulkAdjust(ctx context.Context, storeID string, inputs []AdjustmentInput) ([]domain.InventoryAdjustment, error) {
	if len(inputs) == 0 {
		return nil, nil
	}

	adjustments := make([]domain.InventoryAdjustment, 0, len(inputs))
	var alerts []*eventbus.LowStockAlert

	err := s.repo.WithTx(ctx, func(txCtx context.Context) error {
		for _, in := range inputs {
			in.StoreID = storeID
			adj, alert, err := s.applyAdjustment(txCtx, in)
			if err != nil {
				return err
			}
			adjustments = append(adjustments, adj)
			if alert != nil {
				alerts = append(alerts, alert)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	for _, alert := range alerts {
		s.publishLowStock(ctx, alert)
	}
	return adjustments, nil
}

func (s *StockService) applyAdjustment(ctx context.Context, in AdjustmentInput) (domain.InventoryAdjustment, *eventbus.LowStockAlert, error) {
	if in.Quantity < 0 || (in.Type != domain.AdjustmentSet && in.Quantity == 0) {
		return domain.InventoryAdjustment{}, nil, domain.ErrInvalidQuantity
	}

	product, err := s.repo.GetProductForUpdate(ctx, in.StoreID, in.ProductID)
	if err != nil {
		return domain.InventoryAdjustment{}, nil, err
	}

	newQuantity := product.Quantity
	switch in.Type {
	case domain.AdjustmentIncrease:
		newQuantity = product.Quantity + in.Quantity
	case domain.AdjustmentDecrease:
		newQuantity = product.Quantity - in.Quantity
	case domain.AdjustmentSet:
		newQuantity = in.Quantity
	default:
		return domain.InventoryAdjustment{}, nil, domain.ErrInvalidQuantity
	}
	if newQuantity < 0 {
		return domain.InventoryAdjustment{}, nil, domain.ErrInsufficientStock
	}

	now := s.clock.Now()
	if err := s.repo.UpdateProductQuantity(ctx, in.StoreID, in.ProductID, newQuantity, now); err != nil {
		return domain.InventoryAdjustment{}, nil, err
	}

	adj := domain.InventoryAdjustment{
		ID:               uuid.NewString(),
		StoreID:          in.StoreID,
		ProductID:        in.ProductID,
		Type:             in.Type,
		Quantity:         in.Quantity,
		PreviousQuantity: product.Quantity,
		NewQuantity:      newQuantity,
		Reason:           in.Reason,
		Reference:        in.Reference,
		Notes:            in.Notes,
		AdjustedBy:       in.AdjustedBy,
		AdjustedAt:       now,
	}
	if err := s.repo.InsertAdjustment(ctx, adj); err != nil {
		return domain.InventoryAdjustment{}, nil, err
	}

	var alert *eventbus.LowStockAlert
	if product.TrackInventory && newQuantity <= product.LowStockThreshold {
		alert = &eventbus.LowStockAlert{
			StoreID:   in.StoreID,
			ProductID: in.ProductID,
			SKU:       product.SKU,
			Quantity:  newQuantity,
			Threshold: product.LowStockThreshold,
			Timestamp: now,
		}
	}
	return adj, alert, nil
}

func (s *StockService) publishLowStock(ctx context.Context, alert *eventbus.LowStockAlert) {
	if alert == nil || s.events == nil {
		return
	}
	if err := s.events.Publish(ctx, eventbus.RoutingKeyLowStock, alert); err != nil {
		s.logger.Warn().Err(err).
			Str("product_id", alert.ProductID).
			Int("quantity", alert.Quantity).
			Msg("failed to publish low stock alert")
	}
}
