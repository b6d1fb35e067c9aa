package checkout

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTransition_Allowed(t *testing.T) {
	tests := []struct {
		from  State
		event EventType
		to    State
	}{
		{Idle, EventSubmit, ValidatingInput},
		{ValidatingInput, EventInputInvalid, Idle},
		{ValidatingInput, EventInputValid, CreatingOrder},
		{CreatingOrder, EventOrderCreated, AwaitingWidget},
		{CreatingOrder, EventOrderRejected, Failed},
		{CreatingOrder, EventAbandon, Cancelled},
		{AwaitingWidget, EventWidgetSucceeded, VerifyingPayment},
		{AwaitingWidget, EventWidgetFailed, Failed},
		{AwaitingWidget, EventWidgetDismissed, Cancelled},
		{AwaitingWidget, EventWidgetUnavailable, Failed},
		{AwaitingWidget, EventAbandon, Cancelled},
		{VerifyingPayment, EventPaymentVerified, Succeeded},
		{VerifyingPayment, EventVerificationRejected, Failed},
		{Failed, EventSubmit, ValidatingInput},
		{Cancelled, EventSubmit, ValidatingInput},
	}

	for _, tt := range tests {
		t.Run(tt.from.String()+"/"+tt.event.String(), func(t *testing.T) {
			to, ok := Transition(tt.from, tt.event)
			assert.True(t, ok)
			assert.Equal(t, tt.to, to)
		})
	}
}

func TestTransition_Rejected(t *testing.T) {
	tests := []struct {
		from  State
		event EventType
	}{
		{Succeeded, EventSubmit},
		{AwaitingWidget, EventSubmit},
		{VerifyingPayment, EventAbandon},
		{VerifyingPayment, EventWidgetDismissed},
		{Idle, EventPaymentVerified},
		{CreatingOrder, EventWidgetSucceeded},
		{Succeeded, EventVerificationRejected},
		{Cancelled, EventPaymentVerified},
	}

	for _, tt := range tests {
		t.Run(tt.from.String()+"/"+tt.event.String(), func(t *testing.T) {
			_, ok := Transition(tt.from, tt.event)
			assert.False(t, ok)
		})
	}
}

func TestState_Predicates(t *testing.T) {
	for _, s := range []State{Succeeded, Failed, Cancelled} {
		assert.True(t, s.Terminal(), s.String())
		assert.False(t, s.InFlight(), s.String())
	}
	for _, s := range []State{ValidatingInput, CreatingOrder, AwaitingWidget, VerifyingPayment} {
		assert.True(t, s.InFlight(), s.String())
		assert.False(t, s.Terminal(), s.String())
	}
	assert.False(t, Idle.InFlight())
	assert.Equal(t, "State(42)", State(42).String())
	assert.Equal(t, "EventType(0)", EventType(0).String())
}
