package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type CartStatus string

const (
	CartStatusActive     CartStatus = "active"
	CartStatusCheckedOut CartStatus = "checked_out"
	CartStatusAbandoned  CartStatus = "abandoned"
)

// Cart is the checkout-time snapshot returned by the cart provider.
type Cart struct {
	ID         string
	StoreID    string
	CustomerID string
	Status     CartStatus
	ExpiresAt  time.Time
	Items      []CartItem
}

type CartItem struct {
	ProductID string
	Quantity  int
	UnitPrice decimal.Decimal
}

func (c Cart) IsActive() bool {
	return c.Status == CartStatusActive
}

func (c Cart) IsExpired(now time.Time) bool {
	return !c.ExpiresAt.IsZero() && !c.ExpiresAt.After(now)
}

func (c Cart) IsEmpty() bool {
	return len(c.Items) == 0
}
