package domain

import "time"

type ReservationStatus string

const (
	ReservationStatusActive    ReservationStatus = "active"
	ReservationStatusConfirmed ReservationStatus = "confirmed"
	ReservationStatusReleased  ReservationStatus = "released"
	ReservationStatusExpired   ReservationStatus = "expired"
)

// StockReservation is a time-boxed hold against a product's stock.
// The id is caller-supplied and unique; active→{confirmed,released,expired}
// transitions are one-way and terminal.
type StockReservation struct {
	ID         string
	StoreID    string
	ProductID  string
	Quantity   int
	Status     ReservationStatus
	ReservedAt time.Time
	ExpiresAt  time.Time
	ReservedBy string
	Reference  string
	Notes      string
	UpdatedAt  time.Time
}
