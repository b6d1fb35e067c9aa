package checkout

import "fmt"

// State is where a purchase attempt stands
type State int

const (
	Idle State = iota
	ValidatingInput
	CreatingOrder
	AwaitingWidget
	VerifyingPayment
	Succeeded
	Failed
	Cancelled
)

var stateNames = [...]string{
	Idle:             "Idle",
	ValidatingInput:  "ValidatingInput",
	CreatingOrder:    "CreatingOrder",
	AwaitingWidget:   "AwaitingWidget",
	VerifyingPayment: "VerifyingPayment",
	Succeeded:        "Succeeded",
	Failed:           "Failed",
	Cancelled:        "Cancelled",
}

func (s State) String() string {
	if s >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Terminal reports whether the attempt is over.
func (s State) Terminal() bool {
	return s == Succeeded || s == Failed || s == Cancelled
}

// InFlight reports whether a second attempt must not start.
func (s State) InFlight() bool {
	return s == ValidatingInput || s == CreatingOrder || s == AwaitingWidget || s == VerifyingPayment
}

type EventType int

const (
	EventSubmit EventType = iota + 1
	EventInputInvalid
	EventInputValid
	EventOrderCreated
	EventOrderRejected
	EventWidgetUnavailable
	EventWidgetSucceeded
	EventWidgetFailed
	EventWidgetDismissed
	EventPaymentVerified
	EventVerificationRejected
	EventAbandon
)

var eventNames = map[EventType]string{
	EventSubmit:               "Submit",
	EventInputInvalid:         "InputInvalid",
	EventInputValid:           "InputValid",
	EventOrderCreated:         "OrderCreated",
	EventOrderRejected:        "OrderRejected",
	EventWidgetUnavailable:    "WidgetUnavailable",
	EventWidgetSucceeded:      "WidgetSucceeded",
	EventWidgetFailed:         "WidgetFailed",
	EventWidgetDismissed:      "WidgetDismissed",
	EventPaymentVerified:      "PaymentVerified",
	EventVerificationRejected: "VerificationRejected",
	EventAbandon:              "Abandon",
}

func (e EventType) String() string {
	if name, ok := eventNames[e]; ok {
		return name
	}
	return fmt.Sprintf("EventType(%d)", int(e))
}

type transitionKey struct {
	from  State
	event EventType
}

var transitions = map[transitionKey]State{
	{Idle, EventSubmit}:      ValidatingInput,
	{Failed, EventSubmit}:    ValidatingInput,
	{Cancelled, EventSubmit}: ValidatingInput,

	{ValidatingInput, EventInputInvalid}: Idle,
	{ValidatingInput, EventInputValid}:   CreatingOrder,

	{CreatingOrder, EventOrderCreated}:  AwaitingWidget,
	{CreatingOrder, EventOrderRejected}: Failed,
	{CreatingOrder, EventAbandon}:       Cancelled,

	{AwaitingWidget, EventWidgetUnavailable}: Failed,
	{AwaitingWidget, EventWidgetSucceeded}:   VerifyingPayment,
	{AwaitingWidget, EventWidgetFailed}:      Failed,
	{AwaitingWidget, EventWidgetDismissed}:   Cancelled,
	{AwaitingWidget, EventAbandon}:           Cancelled,

	{VerifyingPayment, EventPaymentVerified}:      Succeeded,
	{VerifyingPayment, EventVerificationRejected}: Failed,
}

// Transition returns the state that follows from on event, and false when
// the event is not allowed there. It has no side effects.
func Transition(from State, event EventType) (State, bool) {
	to, ok := transitions[transitionKey{from, event}]
	return to, ok
}
