package domain

import "errors"

var (
	ErrProductNotFound     = errors.New("product not found")
	ErrCartNotFound        = errors.New("cart not found")
	ErrOrderNotFound       = errors.New("order not found")
	ErrOrderItemNotFound   = errors.New("order item not found")
	ErrReservationNotFound = errors.New("reservation not found")

	ErrCartNotActive = errors.New("cart is not active")
	ErrCartExpired   = errors.New("cart has expired")
	ErrCartEmpty     = errors.New("cart is empty")
	ErrCartOwnership = errors.New("cart does not belong to customer")

	ErrInsufficientStock   = errors.New("insufficient stock")
	ErrReservationConflict = errors.New("reservation conflict")
	ErrInvalidTransition   = errors.New("invalid order status transition")
	ErrVersionConflict     = errors.New("order modified concurrently")

	ErrOrderNotRefundable = errors.New("order is not refundable")
	ErrRefundWindowClosed = errors.New("refund window has closed")
	ErrRefundExceedsTotal = errors.New("refund exceeds remaining refundable amount")

	ErrInvalidQuantity = errors.New("invalid quantity")
	ErrInvalidAmount   = errors.New("invalid amount")
	ErrInvalidID       = errors.New("invalid id")
)
