package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSaga_PayThenBookHappyPath(t *testing.T) {
	saga := NewSaga("s1", OwnerKey{UserID: "u"}, "u@example.com", SagaFlowPayThenBook, []string{"a"})
	assert.Equal(t, SagaValidating, saga.State)

	for _, next := range []SagaState{
		SagaValid, SagaAuthorizingPayment, SagaPaymentAuthorized, SagaBookingAll,
		SagaAllBooked, SagaCapturing, SagaCaptured, SagaCompleted,
	} {
		require.NoError(t, saga.Transition(next), "to %s", next)
	}
	assert.True(t, saga.State.Terminal())
}

func TestSaga_IllegalTransitions(t *testing.T) {
	testCases := []struct {
		from SagaState
		to   SagaState
	}{
		{SagaValidating, SagaBookingAll},
		{SagaInvalid, SagaValid},
		{SagaPaymentFailed, SagaBookingAll},
		{SagaCaptured, SagaCompensating},
		{SagaCompleted, SagaFailed},
		{SagaFailed, SagaCompensating},
	}

	for _, tc := range testCases {
		t.Run(string(tc.from)+"->"+string(tc.to), func(t *testing.T) {
			saga := &Saga{ID: "s", State: tc.from}
			err := saga.Transition(tc.to)
			assert.Error(t, err)
			assert.Equal(t, tc.from, saga.State)
		})
	}
}

func TestSagaState_Terminal(t *testing.T) {
	terminal := []SagaState{SagaInvalid, SagaPaymentFailed, SagaFailed, SagaCompleted}
	for _, s := range terminal {
		assert.True(t, s.Terminal(), s)
	}
	for _, s := range []SagaState{SagaValidating, SagaBookingAll, SagaCaptured, SagaCompensating} {
		assert.False(t, s.Terminal(), s)
	}
}

func TestSaga_SucceededBookings(t *testing.T) {
	saga := &Saga{Bookings: []BookingResult{
		{CartItemID: "a", Outcome: Booked{BookingID: "1"}},
		{CartItemID: "b", Outcome: BookingFailed{Reason: "x"}},
	}}
	got := saga.SucceededBookings()
	require.Len(t, got, 1)
	assert.Equal(t, "a", got[0].CartItemID)
}
