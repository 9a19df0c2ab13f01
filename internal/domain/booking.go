package domain

import (
	"encoding/json"
	"errors"
)

// BookingOutcome is either Booked or BookingFailed.
type BookingOutcome interface {
	isBookingOutcome()
}

type Booked struct {
	BookingID string
}

type BookingFailed struct {
	Reason string
}

func (Booked) isBookingOutcome()        {}
func (BookingFailed) isBookingOutcome() {}

type BookingResult struct {
	CartItemID string
	Outcome    BookingOutcome
}

func (r BookingResult) IsSuccess() bool {
	_, ok := r.Outcome.(Booked)
	return ok
}

func (r BookingResult) BookingID() (string, bool) {
	b, ok := r.Outcome.(Booked)
	return b.BookingID, ok
}

func (r BookingResult) ErrorMessage() string {
	if f, ok := r.Outcome.(BookingFailed); ok {
		return f.Reason
	}
	return ""
}

type bookingResultJSON struct {
	CartItemID   string `json:"cartItemId"`
	BookingID    string `json:"bookingId,omitempty"`
	IsSuccess    bool   `json:"isSuccess"`
	ErrorMessage string `json:"errorMessage,omitempty"`
}

func (r BookingResult) MarshalJSON() ([]byte, error) {
	out := bookingResultJSON{CartItemID: r.CartItemID}
	switch o := r.Outcome.(type) {
	case Booked:
		out.BookingID = o.BookingID
		out.IsSuccess = true
	case BookingFailed:
		out.ErrorMessage = o.Reason
	default:
		return nil, errors.New("booking result has no outcome")
	}
	return json.Marshal(out)
}

func (r *BookingResult) UnmarshalJSON(data []byte) error {
	var in bookingResultJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	r.CartItemID = in.CartItemID
	if in.IsSuccess {
		r.Outcome = Booked{BookingID: in.BookingID}
	} else {
		r.Outcome = BookingFailed{Reason: in.ErrorMessage}
	}
	return nil
}

// AllBooked is false for an empty batch.
func AllBooked(results []BookingResult) bool {
	if len(results) == 0 {
		return false
	}
	for _, r := range results {
		if !r.IsSuccess() {
			return false
		}
	}
	return true
}
