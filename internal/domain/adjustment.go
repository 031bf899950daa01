package domain

import "time"

type AdjustmentType string

const (
	AdjustmentIncrease AdjustmentType = "increase"
	AdjustmentDecrease AdjustmentType = "decrease"
	AdjustmentSet      AdjustmentType = "set"
)

// InventoryAdjustment is one append-only audit row. Exactly one row exists
// per quantity mutation of a product.
type InventoryAdjustment struct {
	ID               string
	StoreID          string
	ProductID        string
	Type             AdjustmentType
	Quantity         int
	PreviousQuantity int
	NewQuantity      int
	Reason           string
	Reference        string
	Notes            string
	AdjustedBy       string
	AdjustedAt       time.Time
}
