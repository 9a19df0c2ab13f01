package domain

import (
	"fmt"
	"time"
)

type SagaFlow string

const (
	SagaFlowPayThenBook   SagaFlow = "pay_then_book"
	SagaFlowBookThenClear SagaFlow = "book_then_clear"
)

type SagaState string

const (
	SagaValidating           SagaState = "Validating"
	SagaInvalid              SagaState = "Invalid"
	SagaValid                SagaState = "Valid"
	SagaAuthorizingPayment   SagaState = "AuthorizingPayment"
	SagaPaymentFailed        SagaState = "PaymentFailed"
	SagaPaymentAuthorized    SagaState = "PaymentAuthorized"
	SagaBookingAll           SagaState = "BookingAll"
	SagaAllBooked            SagaState = "AllBooked"
	SagaCapturing            SagaState = "Capturing"
	SagaCaptured             SagaState = "Captured"
	SagaPartialOrFullFailure SagaState = "PartialOrFullFailure"
	SagaCompensating         SagaState = "Compensating"
	SagaFailed               SagaState = "Failed"
	SagaCompleted            SagaState = "Completed"
)

var sagaTransitions = map[SagaState][]SagaState{
	SagaValidating:           {SagaInvalid, SagaValid, SagaFailed},
	SagaValid:                {SagaAuthorizingPayment, SagaBookingAll, SagaFailed},
	SagaAuthorizingPayment:   {SagaPaymentFailed, SagaPaymentAuthorized, SagaFailed},
	SagaPaymentAuthorized:    {SagaBookingAll, SagaCompensating},
	SagaBookingAll:           {SagaAllBooked, SagaPartialOrFullFailure, SagaCompensating},
	SagaAllBooked:            {SagaCapturing, SagaCompleted, SagaCompensating},
	SagaCapturing:            {SagaCaptured, SagaPartialOrFullFailure},
	SagaCaptured:             {SagaCompleted},
	SagaPartialOrFullFailure: {SagaCompensating},
	SagaCompensating:         {SagaFailed},
}

func (s SagaState) Terminal() bool {
	switch s {
	case SagaInvalid, SagaPaymentFailed, SagaFailed, SagaCompleted:
		return true
	}
	return false
}

func (s SagaState) CanTransition(to SagaState) bool {
	for _, next := range sagaTransitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

// Saga is the durable log record of one checkout attempt.
type Saga struct {
	ID              string
	Owner           OwnerKey
	Email           string
	Flow            SagaFlow
	State           SagaState
	PaymentIntentID string
	ItemIDs         []string
	Bookings        []BookingResult
	OrderID         string
	Error           string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

func NewSaga(id string, owner OwnerKey, email string, flow SagaFlow, itemIDs []string) *Saga {
	now := time.Now()
	return &Saga{
		ID:        id,
		Owner:     owner,
		Email:     email,
		Flow:      flow,
		State:     SagaValidating,
		ItemIDs:   itemIDs,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Transition moves the saga to the next state, rejecting moves the state machine does not allow.
func (s *Saga) Transition(to SagaState) error {
	if !s.State.CanTransition(to) {
		return fmt.Errorf("saga %s: illegal transition %s -> %s", s.ID, s.State, to)
	}
	s.State = to
	s.UpdatedAt = time.Now()
	return nil
}

func (s *Saga) SucceededBookings() []BookingResult {
	out := make([]BookingResult, 0, len(s.Bookings))
	for _, b := range s.Bookings {
		if b.IsSuccess() {
			out = append(out, b)
		}
	}
	return out
}
