package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type OrderBooking struct {
	CartItemID string  `json:"cartItemId"`
	BookingID  string  `json:"bookingId"`
	Slot       SlotRef `json:"slot"`
}

type Order struct {
	ID              string
	Owner           OwnerKey
	SagaID          string
	PaymentIntentID string
	Total           decimal.Decimal
	Bookings        []OrderBooking
	CreatedAt       time.Time
}

// NewOrderBookings pairs successful booking results with the slots of the items they booked.
func NewOrderBookings(items []CartItem, results []BookingResult) []OrderBooking {
	slots := make(map[string]SlotRef, len(items))
	for _, item := range items {
		slots[item.ID] = item.Slot
	}
	out := make([]OrderBooking, 0, len(results))
	for _, r := range results {
		id, ok := r.BookingID()
		if !ok {
			continue
		}
		out = append(out, OrderBooking{CartItemID: r.CartItemID, BookingID: id, Slot: slots[r.CartItemID]})
	}
	return out
}
