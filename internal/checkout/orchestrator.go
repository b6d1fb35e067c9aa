// Package checkout drives one buyer's purchase attempt from the pay action to
// a verified payment, or to a failure the buyer can act on.
package checkout

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/example/glam-checkout/internal/checkout/widget"
	"github.com/example/glam-checkout/internal/domain/order"
	"github.com/example/glam-checkout/internal/logging"
	"github.com/example/glam-checkout/internal/orderclient"
)

const (
	cancelTimeout   = 10 * time.Second
	widgetQueueSize = 4

	reasonAbandoned = "buyer_abandoned"
)

// OrderAPI is the Order Service as seen from the buyer's side
type OrderAPI interface {
	CreateOrder(ctx context.Context, req order.CreateRequest) (*orderclient.CreatedOrder, error)
	VerifyPayment(ctx context.Context, cb order.Callback) (*orderclient.Verification, error)
	CancelOrder(ctx context.Context, orderID, checkoutToken, reason string) error
}

// WidgetSource hands out the loaded checkout widget
type WidgetSource interface {
	Get(ctx context.Context) (widget.Widget, error)
}

// CartReleaser empties the cart once its payment is confirmed
type CartReleaser interface {
	Release(ctx context.Context, cartID string) error
}

// Branding is passed through to the widget.
type Branding struct {
	Name        string
	Description string
	ThemeColor  string
}

type Deps struct {
	Orders   OrderAPI
	Widgets  WidgetSource
	Cart     CartReleaser
	Branding Branding
}

// Purchase is what the buyer submits with the pay action.
type Purchase struct {
	Items    []order.ItemRequest
	Currency string
	// CartTotal is the total the cart showed. It is only sent so the Order
	// Service can detect drift; the amount charged is the service's.
	CartTotal int64
	Customer  order.CustomerRequest
}

// Result is how an attempt ended.
type Result struct {
	State     State
	OrderID   string
	OrderRef  string
	PaymentID string
	Amount    int64
	Currency  string
	Failure   *Failure
}

// Step is one applied transition.
type Step struct {
	From  State
	Event EventType
	To    State
}

// Orchestrator runs purchase attempts for a single cart, one at a time.
type Orchestrator struct {
	cartID string
	deps   Deps
	logger zerolog.Logger

	mu      sync.Mutex
	state   State
	active  *attempt
	history []Step
}

type attempt struct {
	ctx    context.Context
	cancel context.CancelFunc
	// events queues widget callbacks for the attempt's run loop.
	events chan widgetEvent

	// guarded by Orchestrator.mu
	orderID   string
	orderRef  string
	token     string
	abandoned bool
}

type widgetEvent struct {
	outcome widget.Outcome
	err     error
	// own marks the result of this attempt's widget Open call.
	own bool
}

func (a *attempt) push(ev widgetEvent) bool {
	select {
	case a.events <- ev:
		return true
	default:
		return false
	}
}

func New(cartID string, deps Deps) *Orchestrator {
	return &Orchestrator{
		cartID: cartID,
		deps:   deps,
		logger: logging.Component("checkout").With().Str("cart_id", cartID).Logger(),
	}
}

// State returns the current state.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// History returns every transition applied so far.
func (o *Orchestrator) History() []Step {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]Step(nil), o.history...)
}

// Pay runs one purchase attempt to its end. Buyer-facing failures are
// reported in the Result; errors are returned for input problems and for
// attempts that may not start.
func (o *Orchestrator) Pay(ctx context.Context, p Purchase) (*Result, error) {
	att, err := o.begin(ctx)
	if err != nil {
		return nil, err
	}
	defer o.end(att)

	if fields := validatePurchase(p); len(fields) > 0 {
		o.fire(att, EventInputInvalid)
		return &Result{State: Idle}, &InputError{Fields: fields}
	}
	o.fire(att, EventInputValid)

	created, err := o.deps.Orders.CreateOrder(att.ctx, order.CreateRequest{
		Amount:   p.CartTotal,
		Currency: p.Currency,
		Items:    p.Items,
		Customer: p.Customer,
	})
	if o.abandoned(att) {
		if err == nil {
			o.cancelOrder(ctx, created.OrderID, created.CheckoutToken)
		}
		return o.result(att, nil), nil
	}
	if err != nil {
		return o.fail(att, EventOrderRejected, createFailure(err)), nil
	}

	o.mu.Lock()
	att.orderID, att.orderRef, att.token = created.OrderID, created.OrderRef, created.CheckoutToken
	o.mu.Unlock()
	o.fire(att, EventOrderCreated)
	logger := o.logger.With().Str("order_ref", created.OrderRef).Logger()
	logger.Info().Int64("amount", created.Amount).Str("currency", created.Currency).Msg("order created")

	w, err := o.deps.Widgets.Get(att.ctx)
	if o.abandoned(att) {
		o.cancelOrder(ctx, created.OrderID, created.CheckoutToken)
		return o.result(att, nil), nil
	}
	if err != nil {
		logger.Warn().Err(err).Msg("checkout widget unavailable")
		return o.fail(att, EventWidgetUnavailable, &Failure{
			Kind:      FailureWidgetLoad,
			Message:   "We couldn't open the payment window. Please try again.",
			Retryable: true,
		}), nil
	}

	go func() {
		out, err := w.Open(att.ctx, o.widgetConfig(created, p.Customer))
		att.push(widgetEvent{outcome: out, err: err, own: true})
	}()

	cb, res := o.awaitWidget(ctx, att, created, &logger)
	if res != nil {
		return res, nil
	}
	return o.verify(att, created, cb, &logger), nil
}

// awaitWidget consumes widget callbacks until one belongs to the attempt.
// It returns either the success callback or the final result.
func (o *Orchestrator) awaitWidget(ctx context.Context, att *attempt, created *orderclient.CreatedOrder, logger *zerolog.Logger) (order.Callback, *Result) {
	for {
		var ev widgetEvent
		select {
		case ev = <-att.events:
		case <-att.ctx.Done():
		}

		// Abandoned, or the caller went away.
		if att.ctx.Err() != nil {
			o.abandon(att)
			o.cancelOrder(ctx, created.OrderID, created.CheckoutToken)
			return order.Callback{}, o.result(att, nil)
		}

		if ev.err != nil {
			logger.Warn().Err(ev.err).Msg("checkout widget failed")
			return order.Callback{}, o.fail(att, EventWidgetUnavailable, &Failure{
				Kind:      FailureWidgetLoad,
				Message:   "The payment window closed unexpectedly. Please try again.",
				Retryable: true,
			})
		}

		if ev.outcome.OrderRef != created.OrderRef {
			o.logStale(ev.outcome, created.OrderRef)
			if !ev.own {
				continue
			}
			// The attempt's own widget answered for another order and will
			// not answer again.
			return order.Callback{}, o.fail(att, EventWidgetFailed, &Failure{
				Kind:           FailureVerification,
				Message:        supportMessage(created.OrderID, ev.outcome.PaymentRef),
				ContactSupport: true,
			})
		}

		switch ev.outcome.Result {
		case widget.Dismissed:
			o.fire(att, EventWidgetDismissed)
			logger.Info().Msg("buyer dismissed the checkout")
			return order.Callback{}, o.result(att, nil)

		case widget.Failed:
			logger.Info().Str("payment_ref", ev.outcome.PaymentRef).Str("description", ev.outcome.Description).
				Msg("processor reported a failed payment")
			return order.Callback{}, o.fail(att, EventWidgetFailed, processorFailure(ev.outcome.Description))

		case widget.Succeeded:
			o.fire(att, EventWidgetSucceeded)
			return order.Callback{
				OrderRef:   ev.outcome.OrderRef,
				PaymentRef: ev.outcome.PaymentRef,
				Signature:  ev.outcome.Signature,
			}, nil
		}

		logger.Warn().Int("result", int(ev.outcome.Result)).Msg("ignoring unknown widget result")
	}
}

func (o *Orchestrator) verify(att *attempt, created *orderclient.CreatedOrder, cb order.Callback, logger *zerolog.Logger) *Result {
	verification, err := o.deps.Orders.VerifyPayment(att.ctx, cb)
	if err != nil {
		f := verifyFailure(err, created.OrderID, cb.PaymentRef)
		if order.Kind(f.Kind).SecuritySensitive() {
			logging.SecurityAlert(logger).Err(err).Str("payment_ref", cb.PaymentRef).Msg("payment verification rejected")
		} else {
			logger.Error().Err(err).Str("payment_ref", cb.PaymentRef).Msg("payment verification did not complete")
		}
		return o.fail(att, EventVerificationRejected, f)
	}

	o.fire(att, EventPaymentVerified)
	logger.Info().Str("payment_ref", verification.PaymentID).Msg("payment confirmed")

	if o.deps.Cart != nil {
		if err := o.deps.Cart.Release(att.ctx, o.cartID); err != nil {
			logger.Error().Err(err).Msg("failed to release cart")
		}
	}

	res := o.result(att, nil)
	res.PaymentID = verification.PaymentID
	res.Amount = verification.Amount
	res.Currency = verification.Currency
	return res
}

// Abandon gives up the attempt in progress so a new one can start. The
// order, if one was created, is cancelled. An attempt that is verifying a
// payment cannot be abandoned.
func (o *Orchestrator) Abandon() error {
	o.mu.Lock()
	att := o.active
	if att == nil || !o.state.InFlight() {
		o.mu.Unlock()
		return ErrNoActiveAttempt
	}
	if _, ok := Transition(o.state, EventAbandon); !ok {
		state := o.state
		o.mu.Unlock()
		return fmt.Errorf("%w: attempt is %s", ErrAttemptInProgress, state)
	}
	o.applyLocked(EventAbandon)
	att.abandoned = true
	o.mu.Unlock()

	att.cancel()
	o.logger.Info().Msg("payment attempt abandoned")
	return nil
}

// Deliver hands a widget callback received out of band to the active
// attempt. Callbacks for any other order are discarded.
func (o *Orchestrator) Deliver(out widget.Outcome) error {
	o.mu.Lock()
	att := o.active
	var activeRef string
	if att != nil && o.state == AwaitingWidget {
		activeRef = att.orderRef
	}
	o.mu.Unlock()

	if activeRef == "" || out.OrderRef != activeRef {
		o.logStale(out, activeRef)
		return ErrStaleCallback
	}
	if !att.push(widgetEvent{outcome: out}) {
		return ErrStaleCallback
	}
	return nil
}

func (o *Orchestrator) begin(ctx context.Context) (*attempt, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	switch {
	case o.state.InFlight():
		return nil, ErrAttemptInProgress
	case o.state == Succeeded:
		return nil, ErrAlreadyPaid
	}

	attCtx, cancel := context.WithCancel(ctx)
	att := &attempt{ctx: attCtx, cancel: cancel, events: make(chan widgetEvent, widgetQueueSize)}
	o.active = att
	o.applyLocked(EventSubmit)
	return att, nil
}

func (o *Orchestrator) end(att *attempt) {
	att.cancel()
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.active == att {
		o.active = nil
	}
}

// fire applies event for att. Events of an abandoned attempt are dropped.
func (o *Orchestrator) fire(att *attempt, event EventType) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.active != att || att.abandoned {
		return false
	}
	return o.applyLocked(event)
}

func (o *Orchestrator) applyLocked(event EventType) bool {
	from := o.state
	to, ok := Transition(from, event)
	if !ok {
		o.logger.Error().Err(ErrInvalidTransition).Str("state", from.String()).Str("event", event.String()).Msg("event rejected")
		return false
	}
	o.state = to
	o.history = append(o.history, Step{From: from, Event: event, To: to})
	o.logger.Debug().Str("from", from.String()).Str("event", event.String()).Str("to", to.String()).Msg("transition")
	return true
}

func (o *Orchestrator) abandoned(att *attempt) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return att.abandoned
}

// abandon cancels an attempt whose caller went away.
func (o *Orchestrator) abandon(att *attempt) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.active == att && !att.abandoned {
		o.applyLocked(EventAbandon)
		att.abandoned = true
	}
}

func (o *Orchestrator) fail(att *attempt, event EventType, f *Failure) *Result {
	o.fire(att, event)
	return o.result(att, f)
}

func (o *Orchestrator) result(att *attempt, f *Failure) *Result {
	o.mu.Lock()
	defer o.mu.Unlock()
	return &Result{
		State:    o.state,
		OrderID:  att.orderID,
		OrderRef: att.orderRef,
		Failure:  f,
	}
}

func (o *Orchestrator) cancelOrder(ctx context.Context, orderID, token string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cancelTimeout)
	defer cancel()
	if err := o.deps.Orders.CancelOrder(ctx, orderID, token, reasonAbandoned); err != nil {
		o.logger.Warn().Err(err).Str("order_id", orderID).Msg("failed to cancel abandoned order")
	}
}

func (o *Orchestrator) logStale(out widget.Outcome, activeRef string) {
	logging.SecurityAlert(&o.logger).
		Err(ErrStaleCallback).
		Str("callback_order_ref", out.OrderRef).
		Str("active_order_ref", activeRef).
		Str("payment_ref", out.PaymentRef).
		Str("result", out.Result.String()).
		Msg("discarded widget callback")
}

func (o *Orchestrator) widgetConfig(created *orderclient.CreatedOrder, c order.CustomerRequest) widget.Config {
	return widget.Config{
		Key:         created.Key,
		Amount:      created.Amount,
		Currency:    created.Currency,
		OrderRef:    created.OrderRef,
		Name:        o.deps.Branding.Name,
		Description: o.deps.Branding.Description,
		Prefill: widget.Prefill{
			Name:    c.Name,
			Email:   c.Email,
			Contact: c.Phone,
		},
		Theme: widget.Theme{Color: o.deps.Branding.ThemeColor},
	}
}

// validatePurchase catches what can be fixed without asking the server.
func validatePurchase(p Purchase) map[string]string {
	fields := make(map[string]string)
	if strings.TrimSpace(p.Customer.Name) == "" {
		fields["customer.name"] = "is required"
	}
	switch email := strings.TrimSpace(p.Customer.Email); {
	case email == "":
		fields["customer.email"] = "is required"
	default:
		if _, err := mail.ParseAddress(email); err != nil {
			fields["customer.email"] = "must be a valid email address"
		}
	}
	if strings.TrimSpace(p.Customer.Phone) == "" {
		fields["customer.phone"] = "is required"
	}
	if len(p.Items) == 0 {
		fields["items"] = "cart is empty"
	}
	return fields
}

func createFailure(err error) *Failure {
	var details map[string]string
	var apiErr *orderclient.APIError
	if errors.As(err, &apiErr) {
		details = apiErr.Details
	}

	switch orderclient.KindOf(err) {
	case order.KindValidation:
		return &Failure{
			Kind:      FailureValidation,
			Message:   "Please check your details and try again.",
			Details:   details,
			Retryable: true,
		}
	case order.KindCatalog:
		return &Failure{
			Kind:      FailureCatalog,
			Message:   "Some items in your cart have changed. Please review your cart and try again.",
			Details:   details,
			Retryable: true,
		}
	}
	return &Failure{
		Kind:      FailureServiceUnavailable,
		Message:   "We couldn't start your payment. Please try again in a moment.",
		Retryable: true,
	}
}

func processorFailure(description string) *Failure {
	msg := "Your payment did not go through. Please try again or use a different payment method."
	if d := strings.TrimSpace(description); d != "" {
		msg = d + ". Please try again or use a different payment method."
	}
	return &Failure{Kind: FailureProcessor, Message: msg, Retryable: true}
}

func verifyFailure(err error, orderID, paymentRef string) *Failure {
	kind := FailureServiceUnavailable
	switch orderclient.KindOf(err) {
	case order.KindVerificationFailed, order.KindValidation:
		kind = FailureVerification
	case order.KindAmountMismatch:
		kind = FailureAmountMismatch
	case order.KindUnknownOrder:
		kind = FailureUnknownOrder
	}
	return &Failure{
		Kind:           kind,
		Message:        supportMessage(orderID, paymentRef),
		ContactSupport: true,
	}
}

func supportMessage(orderID, paymentRef string) string {
	msg := "We couldn't confirm your payment. If money was deducted, please contact support with order " + orderID
	if paymentRef != "" {
		msg += " and payment " + paymentRef
	}
	return msg + ". Please don't pay again."
}
