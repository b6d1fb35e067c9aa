// Package widget abstracts the processor's hosted checkout widget behind a
// single Open call that reports how the buyer left it.
package widget

import (
	"context"
	"errors"
	"fmt"
)

// ErrLoad matches every *LoadError.
var ErrLoad = errors.New("checkout widget could not be loaded")

// LoadError means the widget script could not be fetched. The buyer may retry.
type LoadError struct {
	Err error
}

func (e *LoadError) Error() string { return fmt.Sprintf("%v: %v", ErrLoad, e.Err) }

func (e *LoadError) Unwrap() error { return e.Err }

func (e *LoadError) Is(target error) bool { return target == ErrLoad }

type Prefill struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Contact string `json:"contact"`
}

type Theme struct {
	Color string `json:"color,omitempty"`
}

// Config is what the widget is constructed with. Amount and OrderRef come
// from the Order Service, never from the cart.
type Config struct {
	Key         string  `json:"key"`
	Amount      int64   `json:"amount"`
	Currency    string  `json:"currency"`
	OrderRef    string  `json:"order_id"`
	Name        string  `json:"name,omitempty"`
	Description string  `json:"description,omitempty"`
	Prefill     Prefill `json:"prefill"`
	Theme       Theme   `json:"theme"`
}

type Result int

const (
	Succeeded Result = iota + 1
	Failed
	Dismissed
)

func (r Result) String() string {
	switch r {
	case Succeeded:
		return "succeeded"
	case Failed:
		return "failed"
	case Dismissed:
		return "dismissed"
	}
	return fmt.Sprintf("Result(%d)", int(r))
}

// Outcome is the single callback the widget fired. The success fields are
// untrusted until the Order Service verifies them.
type Outcome struct {
	Result     Result
	OrderRef   string
	PaymentRef string
	Signature  string
	// Description is the processor's reason for a failed payment.
	Description string
}

// Widget opens the checkout for one order and blocks until the buyer pays,
// the processor reports a failure, the buyer dismisses it, or ctx ends.
type Widget interface {
	Open(ctx context.Context, cfg Config) (Outcome, error)
}
