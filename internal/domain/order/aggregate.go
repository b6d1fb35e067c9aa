package order

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/example/glam-checkout/internal/infrastructure/store"
)

const AggregateType = "Order"

type Status string

const (
	StatusCreated         Status = "Created"
	StatusAwaitingPayment Status = "AwaitingPayment"
	StatusVerified        Status = "Verified"
	StatusFailed          Status = "Failed"
	StatusCancelled       Status = "Cancelled"
)

// validTransitions defines allowed state transitions
var validTransitions = map[Status][]Status{
	StatusCreated:         {StatusAwaitingPayment, StatusFailed, StatusCancelled},
	StatusAwaitingPayment: {StatusVerified, StatusFailed, StatusCancelled},
	StatusVerified:        {}, // terminal state
	StatusFailed:          {}, // terminal state
	StatusCancelled:       {}, // terminal state
}

// IsTerminal reports whether no further transition is possible
func (s Status) IsTerminal() bool {
	return len(validTransitions[s]) == 0
}

// CanTransitionTo checks if the order can transition to the target status
func (o *Order) CanTransitionTo(target Status) bool {
	allowed, exists := validTransitions[o.Status]
	if !exists {
		return false
	}
	for _, s := range allowed {
		if s == target {
			return true
		}
	}
	return false
}

// transitionError returns an appropriate error for an invalid transition
func (o *Order) transitionError(target Status) error {
	switch {
	case o.Status == StatusVerified:
		return ErrAlreadyVerified
	case o.Status.IsTerminal():
		return fmt.Errorf("%w: order is %s", ErrOrderClosed, o.Status)
	default:
		return fmt.Errorf("%w: cannot transition from %s to %s", ErrInvalidStatus, o.Status, target)
	}
}

// Order is the authoritative record of one purchase, keyed by the processor order reference
type Order struct {
	Ref           string           `json:"ref"`
	ID            string           `json:"id"`
	Items         []LineItem       `json:"items"`
	Amount        int64            `json:"amount"`
	Currency      string           `json:"currency"`
	Buyer         Buyer            `json:"buyer"`
	Status        Status           `json:"status"`
	Attempts      []PaymentAttempt `json:"attempts"`
	FailureReason string           `json:"failure_reason,omitempty"`
	CreatedAt     time.Time        `json:"created_at"`
	ExpiresAt     time.Time        `json:"expires_at"`
	VerifiedAt    *time.Time       `json:"verified_at,omitempty"`
	UpdatedAt     time.Time        `json:"updated_at"`
	Version       int              `json:"version"`
}

// Aggregate interface implementation
func (o *Order) GetID() string    { return o.Ref }
func (o *Order) GetVersion() int  { return o.Version }
func (o *Order) SetVersion(v int) { o.Version = v }

// ConfirmedAttempt returns the attempt that verified the order.
func (o *Order) ConfirmedAttempt() (PaymentAttempt, bool) {
	for _, a := range o.Attempts {
		if a.Outcome == OutcomeConfirmed {
			return a, true
		}
	}
	return PaymentAttempt{}, false
}

// ApplyEvent applies a single event to the order state (implements aggregate.Aggregate)
func (o *Order) ApplyEvent(event store.Event) error {
	switch event.EventType {
	case EventOrderCreated:
		var data OrderCreated
		if err := json.Unmarshal(event.Data, &data); err != nil {
			return err
		}
		o.Ref = data.OrderRef
		o.ID = data.OrderID
		o.Items = data.Items
		o.Amount = data.Amount
		o.Currency = data.Currency
		o.Buyer = data.Buyer
		o.Status = StatusCreated
		o.CreatedAt = data.CreatedAt
		o.UpdatedAt = data.CreatedAt
	case EventOrderAwaitingPayment:
		var data OrderAwaitingPayment
		if err := json.Unmarshal(event.Data, &data); err != nil {
			return err
		}
		if err := o.moveTo(StatusAwaitingPayment); err != nil {
			return err
		}
		o.ExpiresAt = data.ExpiresAt
		o.UpdatedAt = data.At
	case EventPaymentAttemptRecorded:
		var data PaymentAttemptRecorded
		if err := json.Unmarshal(event.Data, &data); err != nil {
			return err
		}
		o.Attempts = append(o.Attempts, data.Attempt)
		o.UpdatedAt = data.Attempt.RecordedAt
	case EventOrderVerified:
		var data OrderVerified
		if err := json.Unmarshal(event.Data, &data); err != nil {
			return err
		}
		if err := o.moveTo(StatusVerified); err != nil {
			return err
		}
		o.Attempts = append(o.Attempts, data.Attempt)
		verifiedAt := data.VerifiedAt
		o.VerifiedAt = &verifiedAt
		o.UpdatedAt = data.VerifiedAt
	case EventOrderFailed:
		var data OrderFailed
		if err := json.Unmarshal(event.Data, &data); err != nil {
			return err
		}
		if err := o.moveTo(StatusFailed); err != nil {
			return err
		}
		if data.Attempt != nil {
			o.Attempts = append(o.Attempts, *data.Attempt)
		}
		o.FailureReason = data.Reason
		o.UpdatedAt = data.FailedAt
	case EventOrderCancelled:
		var data OrderCancelled
		if err := json.Unmarshal(event.Data, &data); err != nil {
			return err
		}
		if err := o.moveTo(StatusCancelled); err != nil {
			return err
		}
		o.FailureReason = data.Reason
		o.UpdatedAt = data.CancelledAt
	default:
		return fmt.Errorf("unknown order event %q", event.EventType)
	}
	o.Version = event.Version
	return nil
}

func (o *Order) moveTo(target Status) error {
	if !o.CanTransitionTo(target) {
		return o.transitionError(target)
	}
	o.Status = target
	return nil
}
