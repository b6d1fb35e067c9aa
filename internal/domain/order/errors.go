package order

import (
	"errors"
	"fmt"
)

var (
	ErrOrderNotFound        = errors.New("order not found")
	ErrEmptyOrder           = errors.New("order must have at least one item")
	ErrInvalidStatus        = errors.New("invalid order status transition")
	ErrOrderClosed          = errors.New("order is no longer payable")
	ErrAlreadyVerified      = errors.New("order is already paid")
	ErrSignatureInvalid     = errors.New("payment signature is invalid")
	ErrAmountMismatch       = errors.New("payment does not match the order amount")
	ErrPaymentNotSettled    = errors.New("processor did not settle the payment")
	ErrUnknownProduct       = errors.New("product is not in the catalog")
	ErrPriceChanged         = errors.New("product price has changed")
	ErrTotalChanged         = errors.New("cart total has changed")
	ErrCurrencyNotSupported = errors.New("currency is not supported")
	ErrInvalidInput         = errors.New("invalid input")
	ErrTooManyConflicts     = errors.New("order kept changing during the update")
)

// Kind classifies failures for callers. It maps to HTTP status codes and
// decides what the buyer is told.
type Kind string

const (
	KindValidation         Kind = "validation"
	KindCatalog            Kind = "catalog"
	KindUnknownOrder       Kind = "unknown_order"
	KindVerificationFailed Kind = "verification_failed"
	KindAmountMismatch     Kind = "amount_mismatch"
	KindConflict           Kind = "conflict"
	KindInternal           Kind = "internal"
)

// SecuritySensitive reports whether failures of this kind are fraud signals.
func (k Kind) SecuritySensitive() bool {
	switch k {
	case KindUnknownOrder, KindVerificationFailed, KindAmountMismatch:
		return true
	}
	return false
}

// Error is a classified Order Service failure
type Error struct {
	Kind    Kind
	Message string
	Details map[string]string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

func newError(kind Kind, err error, message string) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// KindOf returns the Kind of err, or KindInternal for unclassified errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// DetailsOf returns field-level details attached to err, if any.
func DetailsOf(err error) map[string]string {
	var e *Error
	if errors.As(err, &e) {
		return e.Details
	}
	return nil
}
