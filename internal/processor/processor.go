// Package processor talks to the external payment processor.
package processor

import (
	"context"
	"errors"
)

// Razorpay payment states.
const (
	PaymentCreated    = "created"
	PaymentAuthorized = "authorized"
	PaymentCaptured   = "captured"
	PaymentFailed     = "failed"
	PaymentRefunded   = "refunded"
)

var (
	ErrUnavailable     = errors.New("payment processor unavailable")
	ErrPaymentNotFound = errors.New("payment not found")
)

type OrderRequest struct {
	Amount   int64
	Currency string
	Receipt  string
	Notes    map[string]string
}

// Order is the processor's view of a payable order
type Order struct {
	ID       string
	Amount   int64
	Currency string
	Receipt  string
	Status   string
}

// Payment is one payment attempt as reported by the processor
type Payment struct {
	ID               string
	OrderID          string
	Amount           int64
	Currency         string
	Status           string
	ErrorDescription string
}

// Settled reports whether the processor holds the buyer's money for this payment.
func (p *Payment) Settled() bool {
	return p.Status == PaymentAuthorized || p.Status == PaymentCaptured
}

// Gateway is the server-side processor capability
type Gateway interface {
	// KeyID is the public key handed to the checkout widget.
	KeyID() string
	CreateOrder(ctx context.Context, req OrderRequest) (*Order, error)
	FetchPayment(ctx context.Context, paymentID string) (*Payment, error)
}
