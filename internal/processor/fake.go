package processor

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/example/glam-checkout/internal/signature"
)

// Fake is an in-memory processor. It signs callbacks with the same secret the
// Order Service verifies with, so tests can drive full payment flows.
type Fake struct {
	mu       sync.Mutex
	keyID    string
	secret   string
	orders   map[string]*Order
	payments map[string]*Payment

	CreateErr error
	FetchErr  error
}

func NewFake(keyID, secret string) *Fake {
	return &Fake{
		keyID:    keyID,
		secret:   secret,
		orders:   make(map[string]*Order),
		payments: make(map[string]*Payment),
	}
}

func (f *Fake) KeyID() string { return f.keyID }

func (f *Fake) CreateOrder(ctx context.Context, req OrderRequest) (*Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.CreateErr != nil {
		return nil, f.CreateErr
	}
	o := &Order{
		ID:       newID("order_"),
		Amount:   req.Amount,
		Currency: req.Currency,
		Receipt:  req.Receipt,
		Status:   "created",
	}
	f.orders[o.ID] = o
	c := *o
	return &c, nil
}

func (f *Fake) FetchPayment(ctx context.Context, paymentID string) (*Payment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.FetchErr != nil {
		return nil, f.FetchErr
	}
	p, ok := f.payments[paymentID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrPaymentNotFound, paymentID)
	}
	c := *p
	return &c, nil
}

// Callback is what the widget hands back after a successful payment
type Callback struct {
	OrderRef   string
	PaymentRef string
	Signature  string
}

// Pay settles the full order amount and returns a correctly signed callback.
func (f *Fake) Pay(orderRef string) (Callback, error) {
	f.mu.Lock()
	o, ok := f.orders[orderRef]
	f.mu.Unlock()
	if !ok {
		return Callback{}, fmt.Errorf("unknown processor order %s", orderRef)
	}
	return f.PayAmount(orderRef, o.Amount, o.Currency), nil
}

// PayAmount settles an arbitrary amount against orderRef, as a tampered
// checkout would.
func (f *Fake) PayAmount(orderRef string, amount int64, currency string) Callback {
	f.mu.Lock()
	defer f.mu.Unlock()
	p := &Payment{
		ID:       newID("pay_"),
		OrderID:  orderRef,
		Amount:   amount,
		Currency: currency,
		Status:   PaymentCaptured,
	}
	f.payments[p.ID] = p
	return Callback{
		OrderRef:   orderRef,
		PaymentRef: p.ID,
		Signature:  signature.Sign(f.secret, orderRef, p.ID),
	}
}

// Decline records a failed payment against orderRef.
func (f *Fake) Decline(orderRef, description string) *Payment {
	f.mu.Lock()
	defer f.mu.Unlock()
	p := &Payment{
		ID:               newID("pay_"),
		OrderID:          orderRef,
		Status:           PaymentFailed,
		ErrorDescription: description,
	}
	if o, ok := f.orders[orderRef]; ok {
		p.Amount = o.Amount
		p.Currency = o.Currency
	}
	f.payments[p.ID] = p
	c := *p
	return &c
}

// Order returns the processor-side order.
func (f *Fake) Order(orderRef string) (Order, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.orders[orderRef]
	if !ok {
		return Order{}, false
	}
	return *o, true
}

func newID(prefix string) string {
	return prefix + strings.ReplaceAll(uuid.NewString(), "-", "")[:14]
}
