package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Product carries the stock-relevant slice of a catalog product. Quantity is
// mutated only through the stock ledger.
type Product struct {
	ID                string
	StoreID           string
	Name              string
	SKU               string
	Price             decimal.Decimal
	Quantity          int
	LowStockThreshold int
	TrackInventory    bool
	UpdatedAt         time.Time
}

// LowOnStock reports whether the product is at or below its threshold.
// Always false for products that do not track inventory.
func (p Product) LowOnStock() bool {
	return p.TrackInventory && p.Quantity <= p.LowStockThreshold
}
