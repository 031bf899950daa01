package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type OrderStatus string

const (
	OrderStatusPending    OrderStatus = "pending"
	OrderStatusConfirmed  OrderStatus = "confirmed"
	OrderStatusProcessing OrderStatus = "processing"
	OrderStatusShipped    OrderStatus = "shipped"
	OrderStatusDelivered  OrderStatus = "delivered"
	OrderStatusCancelled  OrderStatus = "cancelled"
)

// orderTransitions is the lifecycle allow-list. Absent edges are illegal.
var orderTransitions = map[OrderStatus][]OrderStatus{
	OrderStatusPending:    {OrderStatusConfirmed, OrderStatusCancelled},
	OrderStatusConfirmed:  {OrderStatusProcessing, OrderStatusCancelled},
	OrderStatusProcessing: {OrderStatusShipped, OrderStatusCancelled},
	OrderStatusShipped:    {OrderStatusDelivered},
}

// CanTransitionTo reports whether the edge s→next is in the allow-list.
func (s OrderStatus) CanTransitionTo(next OrderStatus) bool {
	for _, allowed := range orderTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transitions exist from s.
func (s OrderStatus) IsTerminal() bool {
	return len(orderTransitions[s]) == 0
}

// Address is an immutable snapshot taken at order creation.
type Address struct {
	Name       string
	Line1      string
	Line2      string
	City       string
	State      string
	PostalCode string
	Country    string
}

// Order is created once at the end of a successful fulfillment run and
// mutated only through the order state machine afterwards. Version backs
// optimistic concurrency on status writes.
type Order struct {
	ID              string
	StoreID         string
	OrderNumber     string
	CustomerID      string
	Status          OrderStatus
	Subtotal        decimal.Decimal
	Tax             decimal.Decimal
	Shipping        decimal.Decimal
	Discount        decimal.Decimal
	Total           decimal.Decimal
	ShippingAddress Address
	BillingAddress  Address
	OrderDate       time.Time
	ShippedDate     *time.Time
	DeliveredDate   *time.Time
	Version         int64
	Items           []OrderItem
}

// OrderItem freezes product name, sku and price at order creation so later
// catalog edits never alter historical orders.
type OrderItem struct {
	ID          string
	OrderID     string
	ProductID   string
	ProductName string
	SKU         string
	Quantity    int
	UnitPrice   decimal.Decimal
	TotalPrice  decimal.Decimal
}
