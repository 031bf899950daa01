package app

import (
	"context"
	"time"

	"github.com/GO-Commerce-Platform/fulfillment/internal/clock"
	"github.com/GO-Commerce-Platform/fulfillment/internal/domain"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type RefundRepository interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
	GetOrderForUpdate(ctx context.Context, storeID, orderID string) (domain.Order, error)
	InsertRefund(ctx context.Context, refund domain.Refund) error
	SumRefunds(ctx context.Context, storeID, orderID string) (decimal.Decimal, error)
	ListRefunds(ctx context.Context, storeID, orderID string) ([]domain.Refund, error)
}

// refundWindow bounds refunds on delivered orders, counted from the
// delivered date.
const refundWindow = 30 * 24 * time.Hour

// RefundService computes refundable amounts against the persisted refund
// ledger: each refund is capped by order total minus all prior refunds,
// checked with the order row locked.
type RefundService struct {
	repo  RefundRepository
	clock clock.Clock
}

func NewRefundService(repo RefundRepository, clk clock.Clock) *RefundService {
	return &RefundService{
		repo:  repo,
		clock: clk,
	}
}

type RefundItemInput struct {
	ProductID string
	Quantity  int
}

type CreateRefundInput struct {
	StoreID string
	OrderID string
	Type    domain.RefundType
	// Amount applies to partial refunds; zero with Items set sums
	// unit price × quantity over the named order items instead.
	Amount decimal.Decimal
	Items  []RefundItemInput
	Reason string
}

func (s *RefundService) CreateRefund(ctx context.Context, in CreateRefundInput) (domain.Refund, error) {
	now := s.clock.Now()
	var result domain.Refund

	err := s.repo.WithTx(ctx, func(txCtx context.Context) error {
		order, err := s.repo.GetOrderForUpdate(txCtx, in.StoreID, in.OrderID)
		if err != nil {
			return err
		}

		switch order.Status {
		case domain.OrderStatusDelivered:
			if order.DeliveredDate == nil || now.Sub(*order.DeliveredDate) > refundWindow {
				return domain.ErrRefundWindowClosed
			}
		case domain.OrderStatusCancelled:
		default:
			return domain.ErrOrderNotRefundable
		}

		amount, err := s.resolveAmount(in, order)
		if err != nil {
			return err
		}

		prior, err := s.repo.SumRefunds(txCtx, in.StoreID, in.OrderID)
		if err != nil {
			return err
		}
		if amount.GreaterThan(order.Total.Sub(prior)) {
			return domain.ErrRefundExceedsTotal
		}

		refund := domain.Refund{
			ID:        uuid.NewString(),
			StoreID:   in.StoreID,
			OrderID:   in.OrderID,
			Type:      in.Type,
			Amount:    amount,
			Reason:    in.Reason,
			CreatedAt: now,
		}
		if err := s.repo.InsertRefund(txCtx, refund); err != nil {
			return err
		}

		result = refund
		return nil
	})
	if err != nil {
		return domain.Refund{}, err
	}
	return result, nil
}

// ListRefunds returns an order's refund ledger, oldest first.
func (s *RefundService) ListRefunds(ctx context.Context, storeID, orderID string) ([]domain.Refund, error) {
	return s.repo.ListRefunds(ctx, storeID, orderID)
}

func (s *RefundService) resolveAmount(in CreateRefundInput, order domain.Order) (decimal.Decimal, error) {
	switch in.Type {
	case domain.RefundTypeFull:
		return order.Total, nil
	case domain.RefundTypePartial:
		if in.Amount.IsPositive() {
			return in.Amount, nil
		}
		if len(in.Items) == 0 {
			return decimal.Zero, domain.ErrInvalidAmount
		}
		return sumItemRefund(in.Items, order.Items)
	default:
		return decimal.Zero, domain.ErrInvalidAmount
	}
}

func sumItemRefund(requested []RefundItemInput, items []domain.OrderItem) (decimal.Decimal, error) {
	byProduct := make(map[string]domain.OrderItem, len(items))
	for _, it := range items {
		byProduct[it.ProductID] = it
	}

	total := decimal.Zero
	for _, req := range requested {
		item, ok := byProduct[req.ProductID]
		if !ok {
			return decimal.Zero, domain.ErrOrderItemNotFound
		}
		if req.Quantity <= 0 || req.Quantity > item.Quantity {
			return decimal.Zero, domain.ErrInvalidQuantity
		}
		total = total.Add(item.UnitPrice.Mul(decimal.NewFromInt(int64(req.Quantity))))
	}
	if !total.IsPositive() {
		return decimal.Zero, domain.ErrInvalidAmount
	}
	return total, nil
}
