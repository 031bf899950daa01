package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type RefundType string

const (
	RefundTypeFull    RefundType = "full"
	RefundTypePartial RefundType = "partial"
)

// Refund is one row of the refund ledger; the sum of a given order's refunds
// bounds the next refundable amount.
type Refund struct {
	ID        string
	StoreID   string
	OrderID   string
	Type      RefundType
	Amount    decimal.Decimal
	Reason    string
	CreatedAt time.Time
}
