package app

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/GO-Commerce-Platform/fulfillment/internal/domain"
	"github.com/GO-Commerce-Platform/fulfillment/internal/eventbus"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// fulfillEnv wires the fulfillment saga over in-memory collaborators, with
// real stock and reservation services sharing one inventory.
type fulfillEnv struct {
	inv          *fakeInventory
	carts        *fakeCartStore
	orders       *fakeOrderStore
	events       *fakePublisher
	stock        *StockService
	reservations *ReservationService
	clk          *stepClock
	svc          *FulfillmentService
}

func newFulfillEnv(products ...domain.Product) *fulfillEnv {
	env := &fulfillEnv{
		inv:    newFakeInventory(products...),
		carts:  &fakeCartStore{carts: make(map[string]domain.Cart)},
		orders: &fakeOrderStore{orders: make(map[string]domain.Order)},
		events: &fakePublisher{},
		clk:    &stepClock{now: time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)},
	}
	env.stock = NewStockService(env.inv, env.clk, env.events, zerolog.Nop())
	env.reservations = NewReservationService(env.inv, env.clk)
	env.svc = NewFulfillmentService(
		env.carts, env.inv, env.stock, env.reservations,
		env.orders, env.events, env.clk, zerolog.Nop(),
	)
	return env
}

func (e *fulfillEnv) addCart(cart domain.Cart) {
	e.carts.carts[cart.ID] = cart
}

func (e *fulfillEnv) activeReservations() int {
	n := 0
	for _, r := range e.inv.reservations {
		if r.Status == domain.ReservationStatusActive {
			n++
		}
	}
	return n
}

func TestFulfillmentService_CreateOrderFromCart(t *testing.T) {
	t.Parallel()

	input := CreateOrderInput{
		StoreID:    "store-1",
		CartID:     "cart-1",
		CustomerID: "cust-1",
		ShippingAddress: domain.Address{
			Name: "Jo Doe", Line1: "1 Main St", City: "Lisbon", PostalCode: "1000", Country: "PT",
		},
		ClearCartAfter: true,
	}

	t.Run("happy path commits order and decrements stock", func(t *testing.T) {
		env := newFulfillEnv(domain.Product{
			ID: "prod-1", StoreID: "store-1", Name: "Mug", SKU: "MUG-1",
			Price: money("10.00"), Quantity: 5, LowStockThreshold: 2, TrackInventory: true,
		})
		env.addCart(domain.Cart{
			ID: "cart-1", StoreID: "store-1", CustomerID: "cust-1", Status: domain.CartStatusActive,
			Items: []domain.CartItem{{ProductID: "prod-1", Quantity: 2, UnitPrice: money("12.50")}},
		})

		order, err := env.svc.CreateOrderFromCart(context.Background(), input)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}

		if order.Status != domain.OrderStatusPending {
			t.Fatalf("expected pending order, got %s", order.Status)
		}
		if !order.Total.Equal(money("25.00")) {
			t.Fatalf("expected total 25.00, got %s", order.Total)
		}
		if len(order.Items) != 1 || order.Items[0].ProductName != "Mug" || order.Items[0].SKU != "MUG-1" {
			t.Fatalf("expected snapshot of catalog name and sku, got %+v", order.Items)
		}
		if _, ok := env.orders.orders[order.ID]; !ok {
			t.Fatalf("expected order persisted")
		}

		if got := env.inv.products["prod-1"].Quantity; got != 3 {
			t.Fatalf("expected stock 3 after fulfillment, got %d", got)
		}
		for _, r := range env.inv.reservations {
			if r.Status != domain.ReservationStatusConfirmed {
				t.Fatalf("expected reservation confirmed, got %s", r.Status)
			}
		}
		if len(env.inv.adjustments) != 1 {
			t.Fatalf("expected one audit row, got %d", len(env.inv.adjustments))
		}
		adj := env.inv.adjustments[0]
		if adj.Type != domain.AdjustmentDecrease || adj.Reference != order.OrderNumber {
			t.Fatalf("expected decrease referencing %s, got %+v", order.OrderNumber, adj)
		}

		var sawOrderCreated bool
		for _, ev := range env.events.published {
			if ev.routingKey == eventbus.RoutingKeyOrderCreated {
				sawOrderCreated = true
			}
		}
		if !sawOrderCreated {
			t.Fatalf("expected order created event")
		}
		if len(env.carts.cleared) != 1 || env.carts.cleared[0] != "cart-1" {
			t.Fatalf("expected cart cleared, got %v", env.carts.cleared)
		}
	})

	t.Run("insufficient stock fails before any hold", func(t *testing.T) {
		env := newFulfillEnv(domain.Product{
			ID: "prod-1", StoreID: "store-1", Price: money("10.00"), Quantity: 3, TrackInventory: true,
		})
		env.addCart(domain.Cart{
			ID: "cart-1", StoreID: "store-1", CustomerID: "cust-1", Status: domain.CartStatusActive,
			Items: []domain.CartItem{{ProductID: "prod-1", Quantity: 10}},
		})

		_, err := env.svc.CreateOrderFromCart(context.Background(), input)
		if !errors.Is(err, domain.ErrInsufficientStock) {
			t.Fatalf("expected ErrInsufficientStock, got %v", err)
		}
		if got := env.inv.products["prod-1"].Quantity; got != 3 {
			t.Fatalf("expected stock untouched, got %d", got)
		}
		if len(env.inv.reservations) != 0 {
			t.Fatalf("expected no reservations, got %d", len(env.inv.reservations))
		}
		if len(env.orders.orders) != 0 {
			t.Fatalf("expected no orders, got %d", len(env.orders.orders))
		}
	})

	t.Run("cart validation", func(t *testing.T) {
		cases := []struct {
			name string
			cart *domain.Cart
			in   CreateOrderInput
			want error
		}{
			{name: "missing cart", cart: nil, in: input, want: domain.ErrCartNotFound},
			{
				name: "inactive cart",
				cart: &domain.Cart{ID: "cart-1", StoreID: "store-1", CustomerID: "cust-1",
					Status: domain.CartStatusCheckedOut,
					Items:  []domain.CartItem{{ProductID: "prod-1", Quantity: 1}}},
				in: input, want: domain.ErrCartNotActive,
			},
			{
				name: "empty cart",
				cart: &domain.Cart{ID: "cart-1", StoreID: "store-1", CustomerID: "cust-1",
					Status: domain.CartStatusActive},
				in: input, want: domain.ErrCartEmpty,
			},
			{
				name: "expired cart",
				cart: &domain.Cart{ID: "cart-1", StoreID: "store-1", CustomerID: "cust-1",
					Status:    domain.CartStatusActive,
					ExpiresAt: time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC),
					Items:     []domain.CartItem{{ProductID: "prod-1", Quantity: 1}}},
				in: input, want: domain.ErrCartExpired,
			},
			{
				name: "wrong customer",
				cart: &domain.Cart{ID: "cart-1", StoreID: "store-1", CustomerID: "someone-else",
					Status: domain.CartStatusActive,
					Items:  []domain.CartItem{{ProductID: "prod-1", Quantity: 1}}},
				in: input, want: domain.ErrCartOwnership,
			},
		}

		for _, tc := range cases {
			t.Run(tc.name, func(t *testing.T) {
				env := newFulfillEnv(domain.Product{
					ID: "prod-1", StoreID: "store-1", Price: money("10.00"), Quantity: 5, TrackInventory: true,
				})
				if tc.cart != nil {
					env.addCart(*tc.cart)
				}

				_, err := env.svc.CreateOrderFromCart(context.Background(), tc.in)
				if !errors.Is(err, tc.want) {
					t.Fatalf("expected %v, got %v", tc.want, err)
				}
				if len(env.inv.reservations) != 0 || len(env.orders.orders) != 0 {
					t.Fatalf("expected validation failure to leave no trace")
				}
			})
		}
	})

	t.Run("mid-attempt reservation failure releases earlier holds", func(t *testing.T) {
		env := newFulfillEnv(
			domain.Product{ID: "prod-a", StoreID: "store-1", Price: money("5.00"), Quantity: 5, TrackInventory: true},
			domain.Product{ID: "prod-b", StoreID: "store-1", Price: money("5.00"), Quantity: 5, TrackInventory: true},
		)
		// An existing hold makes prod-b pass the raw stock check but fail
		// the availability check under lock.
		env.inv.reservations["other"] = domain.StockReservation{
			ID: "other", StoreID: "store-1", ProductID: "prod-b", Quantity: 4,
			Status: domain.ReservationStatusActive, ExpiresAt: env.clk.now.Add(time.Hour),
		}
		env.addCart(domain.Cart{
			ID: "cart-1", StoreID: "store-1", CustomerID: "cust-1", Status: domain.CartStatusActive,
			Items: []domain.CartItem{
				{ProductID: "prod-a", Quantity: 2},
				{ProductID: "prod-b", Quantity: 3},
			},
		})

		_, err := env.svc.CreateOrderFromCart(context.Background(), input)
		if !errors.Is(err, domain.ErrInsufficientStock) {
			t.Fatalf("expected ErrInsufficientStock, got %v", err)
		}
		if env.activeReservations() != 1 {
			t.Fatalf("expected only the pre-existing hold active, got %d", env.activeReservations())
		}
		for id, r := range env.inv.reservations {
			if id != "other" && r.Status != domain.ReservationStatusReleased {
				t.Fatalf("expected attempt hold %s released, got %s", id, r.Status)
			}
		}
		if len(env.orders.orders) != 0 {
			t.Fatalf("expected no order persisted")
		}
	})

	t.Run("order persist failure releases holds", func(t *testing.T) {
		env := newFulfillEnv(domain.Product{
			ID: "prod-1", StoreID: "store-1", Price: money("10.00"), Quantity: 5, TrackInventory: true,
		})
		env.addCart(domain.Cart{
			ID: "cart-1", StoreID: "store-1", CustomerID: "cust-1", Status: domain.CartStatusActive,
			Items: []domain.CartItem{{ProductID: "prod-1", Quantity: 2}},
		})
		env.orders.createErr = errors.New("insert failed")

		if _, err := env.svc.CreateOrderFromCart(context.Background(), input); err == nil {
			t.Fatalf("expected error")
		}
		if env.activeReservations() != 0 {
			t.Fatalf("expected no active holds after compensation")
		}
		if got := env.inv.products["prod-1"].Quantity; got != 5 {
			t.Fatalf("expected stock untouched, got %d", got)
		}
	})

	t.Run("confirm failure after persist keeps the order", func(t *testing.T) {
		env := newFulfillEnv(domain.Product{
			ID: "prod-1", StoreID: "store-1", Price: money("10.00"), Quantity: 5, TrackInventory: true,
		})
		env.addCart(domain.Cart{
			ID: "cart-1", StoreID: "store-1", CustomerID: "cust-1", Status: domain.CartStatusActive,
			Items: []domain.CartItem{{ProductID: "prod-1", Quantity: 2}},
		})
		env.svc = NewFulfillmentService(
			env.carts, env.inv, env.stock,
			failingConfirmStore{ReservationService: env.reservations},
			env.orders, env.events, env.clk, zerolog.Nop(),
		)

		order, err := env.svc.CreateOrderFromCart(context.Background(), input)
		if err != nil {
			t.Fatalf("expected order to survive confirm failure, got %v", err)
		}
		if _, ok := env.orders.orders[order.ID]; !ok {
			t.Fatalf("expected order persisted")
		}
		// No confirm, no decrement; the hold lapses via TTL.
		if got := env.inv.products["prod-1"].Quantity; got != 5 {
			t.Fatalf("expected stock untouched, got %d", got)
		}
	})

	t.Run("cart clear failure does not undo the order", func(t *testing.T) {
		env := newFulfillEnv(domain.Product{
			ID: "prod-1", StoreID: "store-1", Price: money("10.00"), Quantity: 5, TrackInventory: true,
		})
		env.addCart(domain.Cart{
			ID: "cart-1", StoreID: "store-1", CustomerID: "cust-1", Status: domain.CartStatusActive,
			Items: []domain.CartItem{{ProductID: "prod-1", Quantity: 1}},
		})
		env.carts.clearErr = errors.New("cart service down")

		order, err := env.svc.CreateOrderFromCart(context.Background(), input)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if _, ok := env.orders.orders[order.ID]; !ok {
			t.Fatalf("expected order persisted")
		}
	})

	t.Run("cart price falls back to catalog price", func(t *testing.T) {
		env := newFulfillEnv(domain.Product{
			ID: "prod-1", StoreID: "store-1", Name: "Mug", SKU: "MUG-1",
			Price: money("9.99"), Quantity: 5, TrackInventory: true,
		})
		env.addCart(domain.Cart{
			ID: "cart-1", StoreID: "store-1", CustomerID: "cust-1", Status: domain.CartStatusActive,
			Items: []domain.CartItem{{ProductID: "prod-1", Quantity: 2, UnitPrice: decimal.Zero}},
		})

		order, err := env.svc.CreateOrderFromCart(context.Background(), input)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if !order.Items[0].UnitPrice.Equal(money("9.99")) {
			t.Fatalf("expected catalog price, got %s", order.Items[0].UnitPrice)
		}
		if !order.Total.Equal(money("19.98")) {
			t.Fatalf("expected total 19.98, got %s", order.Total)
		}
	})
}

// TestFulfillmentService_CancelRoundTrip walks reserve → confirm → cancel
// and checks stock lands back at its pre-order level.
func TestFulfillmentService_CancelRoundTrip(t *testing.T) {
	t.Parallel()

	env := newFulfillEnv(domain.Product{
		ID: "prod-1", StoreID: "store-1", Name: "Mug", SKU: "MUG-1",
		Price: money("10.00"), Quantity: 5, TrackInventory: true,
	})
	env.addCart(domain.Cart{
		ID: "cart-1", StoreID: "store-1", CustomerID: "cust-1", Status: domain.CartStatusActive,
		Items: []domain.CartItem{{ProductID: "prod-1", Quantity: 2}},
	})

	order, err := env.svc.CreateOrderFromCart(context.Background(), CreateOrderInput{
		StoreID: "store-1", CartID: "cart-1", CustomerID: "cust-1",
	})
	if err != nil {
		t.Fatalf("create order failed: %v", err)
	}
	if got := env.inv.products["prod-1"].Quantity; got != 3 {
		t.Fatalf("expected stock 3 after order, got %d", got)
	}

	orderSvc := NewOrderService(env.orders, env.stock, env.clk, zerolog.Nop())
	cancelled, err := orderSvc.Cancel(context.Background(), "store-1", order.ID, "changed my mind")
	if err != nil {
		t.Fatalf("cancel failed: %v", err)
	}
	if cancelled.Status != domain.OrderStatusCancelled {
		t.Fatalf("expected cancelled, got %s", cancelled.Status)
	}
	if got := env.inv.products["prod-1"].Quantity; got != 5 {
		t.Fatalf("expected stock restored to 5, got %d", got)
	}

	var sawIncrease bool
	for _, adj := range env.inv.adjustments {
		if adj.Type == domain.AdjustmentIncrease && adj.Reference == order.OrderNumber {
			sawIncrease = true
		}
	}
	if !sawIncrease {
		t.Fatalf("expected a compensating increase referencing %s", order.OrderNumber)
	}
}

type fakeCartStore struct {
	carts    map[string]domain.Cart
	cleared  []string
	clearErr error
}

func (f *fakeCartStore) GetCartByID(_ context.Context, storeID, cartID string) (domain.Cart, error) {
	cart, ok := f.carts[cartID]
	if !ok || cart.StoreID != storeID {
		return domain.Cart{}, domain.ErrCartNotFound
	}
	return cart, nil
}

func (f *fakeCartStore) ClearCart(_ context.Context, storeID, cartID string) error {
	if f.clearErr != nil {
		return f.clearErr
	}
	cart, ok := f.carts[cartID]
	if !ok || cart.StoreID != storeID {
		return domain.ErrCartNotFound
	}
	cart.Status = domain.CartStatusCheckedOut
	cart.Items = nil
	f.carts[cartID] = cart
	f.cleared = append(f.cleared, cartID)
	return nil
}

type fakeOrderStore struct {
	orders    map[string]domain.Order
	createErr error
}

func (f *fakeOrderStore) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

func (f *fakeOrderStore) CreateOrder(_ context.Context, order domain.Order) error {
	if f.createErr != nil {
		return f.createErr
	}
	f.orders[order.ID] = order
	return nil
}

func (f *fakeOrderStore) GetOrder(_ context.Context, storeID, orderID string) (domain.Order, error) {
	order, ok := f.orders[orderID]
	if !ok || order.StoreID != storeID {
		return domain.Order{}, domain.ErrOrderNotFound
	}
	return order, nil
}

func (f *fakeOrderStore) GetOrderForUpdate(ctx context.Context, storeID, orderID string) (domain.Order, error) {
	return f.GetOrder(ctx, storeID, orderID)
}

func (f *fakeOrderStore) UpdateOrderStatus(_ context.Context, order domain.Order) error {
	stored, ok := f.orders[order.ID]
	if !ok || stored.StoreID != order.StoreID {
		return domain.ErrOrderNotFound
	}
	if stored.Version != order.Version {
		return domain.ErrVersionConflict
	}
	order.Version++
	f.orders[order.ID] = order
	return nil
}

// failingConfirmStore reserves and releases normally but never confirms.
type failingConfirmStore struct {
	*ReservationService
}

func (f failingConfirmStore) Confirm(context.Context, string, string) (domain.StockReservation, error) {
	return domain.StockReservation{}, domain.ErrReservationConflict
}
