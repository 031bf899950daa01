package app

import (
	"context"
	"fmt"
	"time"

	"github.com/GO-Commerce-Platform/fulfillment/internal/clock"
	"github.com/GO-Commerce-Platform/fulfillment/internal/domain"
	"github.com/GO-Commerce-Platform/fulfillment/internal/eventbus"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// CartProvider is the external cart collaborator.
type CartProvider interface {
	GetCartByID(ctx context.Context, storeID, cartID string) (domain.Cart, error)
	ClearCart(ctx context.Context, storeID, cartID string) error
}

// CatalogLookup resolves product name/sku/price for order-item snapshots.
type CatalogLookup interface {
	GetProduct(ctx context.Context, storeID, productID string) (domain.Product, error)
}

// StockLedger is the slice of StockService the saga and state machine use.
type StockLedger interface {
	HasSufficientStock(ctx context.Context, storeID, productID string, qty int) (bool, error)
	RecordAdjustment(ctx context.Context, in AdjustmentInput) (domain.InventoryAdjustment, error)
}

// ReservationStore is the slice of ReservationService the saga uses.
type ReservationStore interface {
	Create(ctx context.Context, in CreateReservationInput) (domain.StockReservation, error)
	Confirm(ctx context.Context, storeID, id string) (domain.StockReservation, error)
	Release(ctx context.Context, storeID, id string) error
}

type FulfillmentOrderRepository interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
	CreateOrder(ctx context.Context, order domain.Order) error
}

// FulfillmentService turns a cart into a committed order: validate, check
// stock, reserve, persist, confirm, clear. Reservations created in a failed
// attempt are released in reverse order before the error propagates, so a
// failure before order persistence leaves no trace.
type FulfillmentService struct {
	carts        CartProvider
	catalog      CatalogLookup
	stock        StockLedger
	reservations ReservationStore
	orders       FulfillmentOrderRepository
	events       EventPublisher
	clock        clock.Clock
	logger       zerolog.Logger
}

func NewFulfillmentService(
	carts CartProvider,
	catalog CatalogLookup,
	stock StockLedger,
	reservations ReservationStore,
	orders FulfillmentOrderRepository,
	events EventPublisher,
	clk clock.Clock,
	logger zerolog.Logger,
) *FulfillmentService {
	return &FulfillmentService{
		carts:        carts,
		catalog:      catalog,
		stock:        stock,
		reservations: reservations,
		orders:       orders,
		events:       events,
		clock:        clk,
		logger:       logger,
	}
}

type CreateOrderInput struct {
	StoreID         string
	CartID          string
	CustomerID      string
	ShippingAddress domain.Address
	BillingAddress  domain.Address
	ClearCartAfter  bool
}

// CreateOrderFromCart runs the fulfillment flow.
func (s *FulfillmentService) CreateOrderFromCart(ctx context.Context, in CreateOrderInput) (domain.Order, error) {
	now := s.clock.Now()

	// Step 1: validate the cart snapshot. No side effects yet.
	cart, err := s.carts.GetCartByID(ctx, in.StoreID, in.CartID)
	if err != nil {
		return domain.Order{}, err
	}
	if !cart.IsActive() {
		return domain.Order{}, domain.ErrCartNotActive
	}
	if cart.IsEmpty() {
		return domain.Order{}, domain.ErrCartEmpty
	}
	if cart.IsExpired(now) {
		return domain.Order{}, domain.ErrCartExpired
	}
	if cart.CustomerID != in.CustomerID {
		return domain.Order{}, domain.ErrCartOwnership
	}

	// Step 2: fail-fast stock check before creating any hold.
	for _, item := range cart.Items {
		ok, err := s.stock.HasSufficientStock(ctx, in.StoreID, item.ProductID, item.Quantity)
		if err != nil {
			return domain.Order{}, err
		}
		if !ok {
			return domain.Order{}, fmt.Errorf("product %s: %w", item.ProductID, domain.ErrInsufficientStock)
		}
	}

	// Step 3: one reservation per line, keyed by attempt id + product id so
	// resubmissions never double-hold. Any failure releases everything this
	// attempt created.
	attemptID := uuid.NewString()
	held := make([]domain.StockReservation, 0, len(cart.Items))
	for _, item := range cart.Items {
		res, err := s.reservations.Create(ctx, CreateReservationInput{
			ReservationID: attemptID + ":" + item.ProductID,
			StoreID:       in.StoreID,
			ProductID:     item.ProductID,
			Quantity:      item.Quantity,
			ReservedBy:    in.CustomerID,
			Reference:     in.CartID,
		})
		if err != nil {
			s.releaseHeld(ctx, in.StoreID, held)
			return domain.Order{}, err
		}
		held = append(held, res)
	}

	// Step 4: persist header and items as one atomic unit.
	order, err := s.buildOrder(ctx, in, cart, now)
	if err != nil {
		s.releaseHeld(ctx, in.StoreID, held)
		return domain.Order{}, err
	}
	if err := s.orders.WithTx(ctx, func(txCtx context.Context) error {
		return s.orders.CreateOrder(txCtx, order)
	}); err != nil {
		s.releaseHeld(ctx, in.StoreID, held)
		return domain.Order{}, err
	}

	// Step 5: confirm holds and decrement stock. The order is already
	// committed; a failure here is logged and left to the TTL sweep rather
	// than unwinding the order.
	for _, res := range held {
		if _, err := s.reservations.Confirm(ctx, in.StoreID, res.ID); err != nil {
			s.logger.Warn().Err(err).
				Str("order_number", order.OrderNumber).
				Str("reservation_id", res.ID).
				Msg("reservation confirm failed after order persisted")
			continue
		}
		if _, err := s.stock.RecordAdjustment(ctx, AdjustmentInput{
			StoreID:    in.StoreID,
			ProductID:  res.ProductID,
			Type:       domain.AdjustmentDecrease,
			Quantity:   res.Quantity,
			Reason:     "Order fulfillment",
			Reference:  order.OrderNumber,
			AdjustedBy: in.CustomerID,
		}); err != nil {
			s.logger.Warn().Err(err).
				Str("order_number", order.OrderNumber).
				Str("reservation_id", res.ID).
				Msg("stock decrement failed after reservation confirm")
		}
	}

	if s.events != nil {
		if err := s.events.Publish(ctx, eventbus.RoutingKeyOrderCreated, eventbus.OrderCreated{
			StoreID:     order.StoreID,
			OrderID:     order.ID,
			OrderNumber: order.OrderNumber,
			CustomerID:  order.CustomerID,
			Total:       order.Total.String(),
			Timestamp:   now,
		}); err != nil {
			s.logger.Warn().Err(err).Str("order_number", order.OrderNumber).Msg("failed to publish order created event")
		}
	}

	// Step 6: clearing the cart is best-effort and never undoes the order.
	if in.ClearCartAfter {
		if err := s.carts.ClearCart(ctx, in.StoreID, in.CartID); err != nil {
			s.logger.Warn().Err(err).
				Str("cart_id", in.CartID).
				Str("order_number", order.OrderNumber).
				Msg("failed to clear cart after order creation")
		}
	}

	return order, nil
}

func (s *FulfillmentService) buildOrder(ctx context.Context, in CreateOrderInput, cart domain.Cart, now time.Time) (domain.Order, error) {
	orderID := uuid.NewString()
	items := make([]domain.OrderItem, 0, len(cart.Items))
	subtotal := decimal.Zero

	for _, line := range cart.Items {
		product, err := s.catalog.GetProduct(ctx, in.StoreID, line.ProductID)
		if err != nil {
			return domain.Order{}, err
		}

		unitPrice := line.UnitPrice
		if unitPrice.IsZero() {
			unitPrice = product.Price
		}
		totalPrice := unitPrice.Mul(decimal.NewFromInt(int64(line.Quantity)))

		items = append(items, domain.OrderItem{
			ID:          uuid.NewString(),
			OrderID:     orderID,
			ProductID:   line.ProductID,
			ProductName: product.Name,
			SKU:         product.SKU,
			Quantity:    line.Quantity,
			UnitPrice:   unitPrice,
			TotalPrice:  totalPrice,
		})
		subtotal = subtotal.Add(totalPrice)
	}

	// Tax, shipping and discounts come from external services at their
	// extension points; they enter the order as zero here.
	return domain.Order{
		ID:              orderID,
		StoreID:         in.StoreID,
		OrderNumber:     generateOrderNumber(now),
		CustomerID:      in.CustomerID,
		Status:          domain.OrderStatusPending,
		Subtotal:        subtotal,
		Tax:             decimal.Zero,
		Shipping:        decimal.Zero,
		Discount:        decimal.Zero,
		Total:           subtotal,
		ShippingAddress: in.ShippingAddress,
		BillingAddress:  in.BillingAddress,
		OrderDate:       now,
		Version:         1,
		Items:           items,
	}, nil
}

// releaseHeld compensates a failed attempt by releasing reservations in
// reverse creation order. Release errors are logged; the triggering error
// still propagates to the caller.
func (s *FulfillmentService) releaseHeld(ctx context.Context, storeID string, held []domain.StockReservation) {
	for i := len(held) - 1; i >= 0; i-- {
		if err := s.reservations.Release(ctx, storeID, held[i].ID); err != nil {
			s.logger.Error().Err(err).
				Str("reservation_id", held[i].ID).
				Msg("failed to release reservation during compensation")
		}
	}
}

func generateOrderNumber(now time.Time) string {
	return fmt.Sprintf("ORD-%d", now.UnixNano())
}
