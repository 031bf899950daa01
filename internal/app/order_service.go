package app

import (
	"context"
	"time"

	"github.com/GO-Commerce-Platform/fulfillment/internal/clock"
	"github.com/GO-Commerce-Platform/fulfillment/internal/domain"
	"github.com/rs/zerolog"
)

type OrderStateRepository interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
	GetOrder(ctx context.Context, storeID, orderID string) (domain.Order, error)
	GetOrderForUpdate(ctx context.Context, storeID, orderID string) (domain.Order, error)
	UpdateOrderStatus(ctx context.Context, order domain.Order) error
}

// OrderService drives the order lifecycle. Transitions outside the
// allow-list fail with ErrInvalidTransition and leave the order unchanged;
// cancelling a non-shipped order restores inventory through the stock
// ledger, one compensating increase per line.
type OrderService struct {
	repo   OrderStateRepository
	stock  StockLedger
	clock  clock.Clock
	logger zerolog.Logger
}

func NewOrderService(repo OrderStateRepository, stock StockLedger, clk clock.Clock, logger zerolog.Logger) *OrderService {
	return &OrderService{
		repo:   repo,
		stock:  stock,
		clock:  clk,
		logger: logger,
	}
}

func (s *OrderService) GetOrder(ctx context.Context, storeID, orderID string) (domain.Order, error) {
	return s.repo.GetOrder(ctx, storeID, orderID)
}

// UpdateStatus moves an order along the lifecycle. Re-invoking a transition
// that is already satisfied is a no-op, not an error.
func (s *OrderService) UpdateStatus(ctx context.Context, storeID, orderID string, next domain.OrderStatus) (domain.Order, error) {
	if next == domain.OrderStatusCancelled {
		return s.Cancel(ctx, storeID, orderID, "")
	}
	return s.transition(ctx, storeID, orderID, next, nil)
}

// MarkShipped transitions to SHIPPED and stamps the shipped date. A zero
// time stamps the current instant.
func (s *OrderService) MarkShipped(ctx context.Context, storeID, orderID string, when time.Time) (domain.Order, error) {
	return s.transition(ctx, storeID, orderID, domain.OrderStatusShipped, &when)
}

// MarkDelivered transitions to DELIVERED and stamps the delivered date.
func (s *OrderService) MarkDelivered(ctx context.Context, storeID, orderID string, when time.Time) (domain.Order, error) {
	return s.transition(ctx, storeID, orderID, domain.OrderStatusDelivered, &when)
}

// Cancel moves the order to CANCELLED and issues one compensating increase
// per order line, each referencing the order number, restoring stock to its
// pre-order level. The status write and the restock commit together.
func (s *OrderService) Cancel(ctx context.Context, storeID, orderID, reason string) (domain.Order, error) {
	var result domain.Order

	err := s.repo.WithTx(ctx, func(txCtx context.Context) error {
		order, err := s.repo.GetOrderForUpdate(txCtx, storeID, orderID)
		if err != nil {
			return err
		}
		if order.Status == domain.OrderStatusCancelled {
			result = order
			return nil
		}
		if !order.Status.CanTransitionTo(domain.OrderStatusCancelled) {
			return domain.ErrInvalidTransition
		}

		order.Status = domain.OrderStatusCancelled
		if err := s.repo.UpdateOrderStatus(txCtx, order); err != nil {
			return err
		}
		order.Version++

		for _, item := range order.Items {
			if _, err := s.stock.RecordAdjustment(txCtx, AdjustmentInput{
				StoreID:    storeID,
				ProductID:  item.ProductID,
				Type:       domain.AdjustmentIncrease,
				Quantity:   item.Quantity,
				Reason:     "Order cancellation",
				Reference:  order.OrderNumber,
				Notes:      reason,
				AdjustedBy: order.CustomerID,
			}); err != nil {
				return err
			}
		}

		result = order
		return nil
	})
	if err != nil {
		return domain.Order{}, err
	}

	s.logger.Info().
		Str("order_number", result.OrderNumber).
		Str("reason", reason).
		Msg("order cancelled, inventory restored")
	return result, nil
}

func (s *OrderService) transition(ctx context.Context, storeID, orderID string, next domain.OrderStatus, when *time.Time) (domain.Order, error) {
	now := s.clock.Now()
	var result domain.Order

	err := s.repo.WithTx(ctx, func(txCtx context.Context) error {
		order, err := s.repo.GetOrderForUpdate(txCtx, storeID, orderID)
		if err != nil {
			return err
		}

		if order.Status == next {
			result = order
			return nil
		}
		if !order.Status.CanTransitionTo(next) {
			return domain.ErrInvalidTransition
		}

		order.Status = next
		switch next {
		case domain.OrderStatusShipped:
			if order.ShippedDate == nil {
				order.ShippedDate = stampTime(when, now)
			}
		case domain.OrderStatusDelivered:
			if order.DeliveredDate == nil {
				order.DeliveredDate = stampTime(when, now)
			}
		}

		if err := s.repo.UpdateOrderStatus(txCtx, order); err != nil {
			return err
		}
		order.Version++

		result = order
		return nil
	})
	if err != nil {
		return domain.Order{}, err
	}
	return result, nil
}

func stampTime(when *time.Time, fallback time.Time) *time.Time {
	if when != nil && !when.IsZero() {
		t := when.UTC()
		return &t
	}
	return &fallback
}
