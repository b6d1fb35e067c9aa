package order

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/example/glam-checkout/internal/catalog"
	"github.com/example/glam-checkout/internal/domain/aggregate"
	"github.com/example/glam-checkout/internal/infrastructure/store"
	"github.com/example/glam-checkout/internal/logging"
	"github.com/example/glam-checkout/internal/processor"
	"github.com/example/glam-checkout/internal/signature"
)

const (
	maxConflictRetries  = 3
	maxRecordedAttempts = 50
	maxDetailLength     = 256
	// maxLineQuantity matches the per-line quantity rule on ItemRequest.
	maxLineQuantity = 100

	ReasonBuyerCancelled = "buyer_cancelled"
)

type Config struct {
	// KeySecret is the processor secret that signs payment callbacks.
	KeySecret       string
	DefaultCurrency string
	Expiry          time.Duration
}

// CreateResult is what the buyer needs to open the checkout widget
type CreateResult struct {
	OrderID   string
	OrderRef  string
	Amount    int64
	Currency  string
	Key       string
	ExpiresAt time.Time
}

// VerificationResult describes the confirmed payment of an order
type VerificationResult struct {
	OrderRef   string
	OrderID    string
	PaymentRef string
	Amount     int64
	Currency   string
	VerifiedAt time.Time
	// Replayed is set when the order had already been verified earlier.
	Replayed bool
}

type Service struct {
	eventStore store.EventStoreInterface
	catalog    catalog.Source
	gateway    processor.Gateway
	cfg        Config
	validate   *validator.Validate
	locks      *refLocks
	now        func() time.Time
	logger     zerolog.Logger
}

func NewService(es store.EventStoreInterface, cat catalog.Source, gw processor.Gateway, cfg Config) *Service {
	if cfg.DefaultCurrency == "" {
		cfg.DefaultCurrency = "INR"
	}
	if cfg.Expiry <= 0 {
		cfg.Expiry = 30 * time.Minute
	}
	return &Service{
		eventStore: es,
		catalog:    cat,
		gateway:    gw,
		cfg:        cfg,
		validate:   NewValidator(),
		locks:      newRefLocks(),
		now:        func() time.Time { return time.Now().UTC() },
		logger:     logging.Component("order"),
	}
}

// loadOrder loads an order by replaying events, using snapshot if available
func (s *Service) loadOrder(ctx context.Context, ref string) (*Order, error) {
	order, found, err := aggregate.LoadAggregate(ctx, s.eventStore, ref, func() *Order {
		return &Order{}
	})
	if err != nil {
		return nil, newError(KindInternal, err, "could not load the order")
	}
	if !found {
		return nil, newError(KindUnknownOrder, ErrOrderNotFound, "order not found")
	}
	return order, nil
}

// Get returns the current state of an order.
func (s *Service) Get(ctx context.Context, ref string) (*Order, error) {
	return s.loadOrder(ctx, ref)
}

// Create reprices the cart from the catalog, registers the order with the
// processor and persists it as AwaitingPayment.
func (s *Service) Create(ctx context.Context, req CreateRequest) (*CreateResult, error) {
	req.normalize()
	if err := s.validate.Struct(req); err != nil {
		return nil, validationError(err)
	}

	snap, err := s.catalog.Snapshot(ctx)
	if err != nil {
		return nil, newError(KindInternal, err, "the catalog is unavailable")
	}

	currency := req.Currency
	if currency == "" {
		currency = s.cfg.DefaultCurrency
	}
	if currency != snap.Currency {
		e := newError(KindValidation, fmt.Errorf("%w: %s", ErrCurrencyNotSupported, currency), "currency is not supported")
		e.Details = map[string]string{"currency": "must be " + snap.Currency}
		return nil, e
	}

	items, total, err := reprice(snap, req.Items)
	if err != nil {
		return nil, err
	}
	if total <= 0 {
		e := newError(KindValidation, ErrEmptyOrder, "order total must be positive")
		e.Details = map[string]string{"amount": "must be greater than 0"}
		return nil, e
	}
	if req.Amount != 0 && req.Amount != total {
		e := newError(KindCatalog, ErrTotalChanged, "your cart has changed, please review it")
		e.Details = map[string]string{"amount": fmt.Sprintf("expected %d", total)}
		return nil, e
	}

	orderID := uuid.NewString()
	buyer := req.buyer()
	pOrder, err := s.gateway.CreateOrder(ctx, processor.OrderRequest{
		Amount:   total,
		Currency: currency,
		Receipt:  orderID,
		Notes:    map[string]string{"order_id": orderID, "buyer_email": buyer.Email},
	})
	if err != nil {
		return nil, newError(KindInternal, err, "could not reach the payment processor")
	}
	if pOrder.Amount != total || !strings.EqualFold(pOrder.Currency, currency) {
		return nil, newError(KindInternal,
			fmt.Errorf("processor order %s is %d %s, expected %d %s", pOrder.ID, pOrder.Amount, pOrder.Currency, total, currency),
			"the payment processor returned an inconsistent order")
	}

	now := s.now()
	expiresAt := now.Add(s.cfg.Expiry)
	_, err = s.eventStore.Append(ctx, pOrder.ID, AggregateType, 0,
		store.NewEvent{Type: EventOrderCreated, Data: OrderCreated{
			OrderRef:  pOrder.ID,
			OrderID:   orderID,
			Items:     items,
			Amount:    total,
			Currency:  currency,
			Buyer:     buyer,
			CreatedAt: now,
		}},
		store.NewEvent{Type: EventOrderAwaitingPayment, Data: OrderAwaitingPayment{
			OrderRef:  pOrder.ID,
			ExpiresAt: expiresAt,
			At:        now,
		}},
	)
	if err != nil {
		return nil, newError(KindInternal, err, "could not save the order")
	}

	s.logger.Info().
		Str("order_ref", pOrder.ID).
		Str("order_id", orderID).
		Int64("amount", total).
		Str("currency", currency).
		Int("items", len(items)).
		Msg("order created")

	return &CreateResult{
		OrderID:   orderID,
		OrderRef:  pOrder.ID,
		Amount:    total,
		Currency:  currency,
		Key:       s.gateway.KeyID(),
		ExpiresAt: expiresAt,
	}, nil
}

// reprice replaces client prices with catalog prices. Every unknown product
// or stale price is reported, not just the first. Lines for the same product
// are summed into one, and the sum is held to maxLineQuantity.
func reprice(snap *catalog.Snapshot, reqItems []ItemRequest) ([]LineItem, int64, error) {
	details := map[string]string{}
	var cause error
	items := make([]LineItem, 0, len(reqItems))
	index := make(map[string]int, len(reqItems))
	var total int64

	for i, it := range reqItems {
		p, err := snap.Lookup(string(it.ProductID))
		if err != nil {
			details[fmt.Sprintf("items[%d].productId", i)] = "is not available"
			cause = ErrUnknownProduct
			continue
		}
		if it.Price != p.Price {
			details[fmt.Sprintf("items[%d].price", i)] = fmt.Sprintf("is now %d", p.Price)
			if cause == nil {
				cause = ErrPriceChanged
			}
			continue
		}
		line := p.Price * int64(it.Quantity)
		if p.Price != 0 && (line/p.Price != int64(it.Quantity) || total > math.MaxInt64-line) {
			e := newError(KindValidation, ErrInvalidInput, "order total is too large")
			e.Details = map[string]string{"amount": "is too large"}
			return nil, 0, e
		}
		total += line
		if j, ok := index[p.ID]; ok {
			items[j].Quantity += it.Quantity
			if items[j].Quantity > maxLineQuantity {
				e := newError(KindValidation, ErrInvalidInput, "too many of one product in the cart")
				e.Details = map[string]string{
					fmt.Sprintf("items[%d].quantity", i): fmt.Sprintf("must be at most %d in total for this product", maxLineQuantity),
				}
				return nil, 0, e
			}
			continue
		}
		index[p.ID] = len(items)
		items = append(items, LineItem{
			ProductID: p.ID,
			Name:      p.Name,
			UnitPrice: p.Price,
			Quantity:  it.Quantity,
		})
	}

	if cause != nil {
		e := newError(KindCatalog, cause, "some items in your cart have changed, please refresh it")
		e.Details = details
		return nil, 0, e
	}
	return items, total, nil
}

// update loads the order under its lock and appends whatever decide returns.
// A concurrent writer elsewhere forces a fresh load and a second decision.
// decide may return events together with an error; both take effect.
func (s *Service) update(ctx context.Context, ref string, decide func(o *Order) ([]store.NewEvent, error)) (*Order, error) {
	unlock, err := s.locks.Lock(ctx, ref)
	if err != nil {
		return nil, newError(KindInternal, err, "request cancelled")
	}
	defer unlock()

	for attempt := 0; attempt < maxConflictRetries; attempt++ {
		o, err := s.loadOrder(ctx, ref)
		if err != nil {
			return nil, err
		}

		events, decideErr := decide(o)
		if len(events) == 0 {
			return o, decideErr
		}

		previous := o.Version
		stored, err := s.eventStore.Append(ctx, ref, AggregateType, o.Version, events...)
		if errors.Is(err, store.ErrConcurrencyConflict) {
			s.logger.Debug().Str("order_ref", ref).Int("attempt", attempt+1).Msg("order changed concurrently, retrying")
			continue
		}
		if err != nil {
			return nil, newError(KindInternal, err, "could not save the order")
		}
		if err := aggregate.Apply(o, stored); err != nil {
			return nil, newError(KindInternal, err, "could not apply order events")
		}
		if err := aggregate.MaybeCreateSnapshot(ctx, s.eventStore, o, AggregateType, previous); err != nil {
			s.logger.Warn().Err(err).Str("order_ref", ref).Msg("snapshot failed")
		}
		return o, decideErr
	}
	return nil, newError(KindConflict, ErrTooManyConflicts, "the order is busy, please retry")
}

// recordAttempt returns the event for an audit-only attempt. Routine
// failures stop being recorded once the order holds maxRecordedAttempts;
// fraud-relevant outcomes are always recorded.
func recordAttempt(o *Order, attempt PaymentAttempt) []store.NewEvent {
	if !attempt.Outcome.SecuritySensitive() && len(o.Attempts) >= maxRecordedAttempts {
		return nil
	}
	return []store.NewEvent{{
		Type: EventPaymentAttemptRecorded,
		Data: PaymentAttemptRecorded{OrderRef: o.Ref, Attempt: attempt},
	}}
}

// Verify checks a payment callback and, when the signature and the
// processor's record both match the order, marks it Verified.
func (s *Service) Verify(ctx context.Context, cb Callback) (*VerificationResult, error) {
	cb.OrderRef = strings.TrimSpace(cb.OrderRef)
	cb.PaymentRef = strings.TrimSpace(cb.PaymentRef)
	cb.Signature = strings.TrimSpace(cb.Signature)
	if err := s.validate.Struct(cb); err != nil {
		return nil, validationError(err)
	}

	logger := s.logger.With().Str("order_ref", cb.OrderRef).Str("payment_ref", cb.PaymentRef).Logger()

	var result *VerificationResult
	_, err := s.update(ctx, cb.OrderRef, func(o *Order) ([]store.NewEvent, error) {
		result = nil

		switch o.Status {
		case StatusVerified:
			confirmed, _ := o.ConfirmedAttempt()
			if confirmed.PaymentRef != cb.PaymentRef {
				logging.SecurityAlert(&logger).
					Str("confirmed_payment_ref", confirmed.PaymentRef).
					Msg("callback for an already verified order carries a different payment")
			}
			result = verificationResult(o, confirmed, true)
			return nil, nil
		case StatusAwaitingPayment:
		default:
			return nil, newError(KindVerificationFailed,
				fmt.Errorf("%w: order is %s", ErrOrderClosed, o.Status),
				"this order can no longer be paid")
		}

		now := s.now()
		attempt := PaymentAttempt{
			PaymentRef: cb.PaymentRef,
			Signature:  cb.Signature,
			RecordedAt: now,
		}

		if !signature.Verify(s.cfg.KeySecret, cb.OrderRef, cb.PaymentRef, cb.Signature) {
			attempt.Outcome = OutcomeSignatureInvalid
			return recordAttempt(o, attempt), newError(KindVerificationFailed, ErrSignatureInvalid,
				"payment could not be verified")
		}

		payment, err := s.gateway.FetchPayment(ctx, cb.PaymentRef)
		if err != nil {
			return nil, newError(KindInternal, err, "could not confirm the payment with the processor")
		}

		if mismatch := paymentMismatch(o, payment); mismatch != "" {
			attempt.Outcome = OutcomeAmountMismatch
			attempt.Detail = mismatch
			failed := store.NewEvent{
				Type: EventOrderFailed,
				Data: OrderFailed{OrderRef: o.Ref, Reason: ReasonAmountMismatch, Attempt: &attempt, FailedAt: now},
			}
			return []store.NewEvent{failed}, newError(KindAmountMismatch,
				fmt.Errorf("%w: %s", ErrAmountMismatch, mismatch), "payment does not match the order")
		}

		if !payment.Settled() {
			attempt.Outcome = OutcomeProcessorReportedFailure
			attempt.Detail = truncate(strings.TrimSpace(payment.Status+" "+payment.ErrorDescription), maxDetailLength)
			return recordAttempt(o, attempt), newError(KindVerificationFailed,
				fmt.Errorf("%w: status %s", ErrPaymentNotSettled, payment.Status),
				"payment was not completed")
		}

		attempt.Outcome = OutcomeConfirmed
		result = &VerificationResult{
			OrderRef:   o.Ref,
			OrderID:    o.ID,
			PaymentRef: cb.PaymentRef,
			Amount:     o.Amount,
			Currency:   o.Currency,
			VerifiedAt: now,
		}
		return []store.NewEvent{{
			Type: EventOrderVerified,
			Data: OrderVerified{
				OrderRef:   o.Ref,
				Attempt:    attempt,
				Amount:     o.Amount,
				Currency:   o.Currency,
				VerifiedAt: now,
			},
		}}, nil
	})
	if err != nil {
		s.logVerifyFailure(&logger, err)
		return nil, err
	}

	if result.Replayed {
		logger.Info().Msg("payment verification replayed")
	} else {
		logger.Info().Int64("amount", result.Amount).Str("currency", result.Currency).Msg("payment verified")
	}
	return result, nil
}

func verificationResult(o *Order, attempt PaymentAttempt, replayed bool) *VerificationResult {
	r := &VerificationResult{
		OrderRef:   o.Ref,
		OrderID:    o.ID,
		PaymentRef: attempt.PaymentRef,
		Amount:     o.Amount,
		Currency:   o.Currency,
		Replayed:   replayed,
	}
	if o.VerifiedAt != nil {
		r.VerifiedAt = *o.VerifiedAt
	}
	return r
}

// paymentMismatch compares the processor's payment with the order and
// describes the first difference.
func paymentMismatch(o *Order, p *processor.Payment) string {
	switch {
	case p.OrderID != o.Ref:
		return fmt.Sprintf("payment belongs to order %q", p.OrderID)
	case p.Amount != o.Amount:
		return fmt.Sprintf("paid %d, expected %d", p.Amount, o.Amount)
	case !strings.EqualFold(p.Currency, o.Currency):
		return fmt.Sprintf("paid in %s, expected %s", p.Currency, o.Currency)
	}
	return ""
}

func (s *Service) logVerifyFailure(logger *zerolog.Logger, err error) {
	kind := KindOf(err)
	switch {
	case kind.SecuritySensitive():
		logging.SecurityAlert(logger).Err(err).Str("kind", string(kind)).Msg("payment verification rejected")
	case kind == KindInternal:
		logger.Error().Err(err).Msg("payment verification errored")
	default:
		logger.Warn().Err(err).Str("kind", string(kind)).Msg("payment verification refused")
	}
}

// Cancel moves an unpaid order to Cancelled. Cancelling twice is not an error.
func (s *Service) Cancel(ctx context.Context, ref, reason string) error {
	if reason == "" {
		reason = ReasonBuyerCancelled
	}
	_, err := s.update(ctx, ref, func(o *Order) ([]store.NewEvent, error) {
		switch o.Status {
		case StatusCancelled:
			return nil, nil
		case StatusVerified:
			return nil, newError(KindConflict, ErrAlreadyVerified, "the order has already been paid")
		case StatusFailed:
			return nil, newError(KindConflict, fmt.Errorf("%w: order is %s", ErrOrderClosed, o.Status), "the order is already closed")
		}
		now := s.now()
		events := recordAttempt(o, PaymentAttempt{Outcome: OutcomeBuyerCancelled, Detail: reason, RecordedAt: now})
		return append(events, store.NewEvent{
			Type: EventOrderCancelled,
			Data: OrderCancelled{OrderRef: o.Ref, Reason: reason, CancelledAt: now},
		}), nil
	})
	if err != nil {
		return err
	}
	s.logger.Info().Str("order_ref", ref).Str("reason", reason).Msg("order cancelled")
	return nil
}

// RecordFailure keeps a processor-reported failure on the order for audit.
// The order stays payable so the buyer can retry with another method.
func (s *Service) RecordFailure(ctx context.Context, report FailureReport) error {
	report.OrderRef = strings.TrimSpace(report.OrderRef)
	if err := s.validate.Struct(report); err != nil {
		return validationError(err)
	}
	_, err := s.update(ctx, report.OrderRef, func(o *Order) ([]store.NewEvent, error) {
		if o.Status != StatusAwaitingPayment {
			return nil, nil
		}
		return recordAttempt(o, PaymentAttempt{
			PaymentRef: report.PaymentRef,
			Outcome:    OutcomeProcessorReportedFailure,
			Detail:     truncate(report.Description, maxDetailLength),
			RecordedAt: s.now(),
		}), nil
	})
	if err != nil {
		return err
	}
	s.logger.Info().Str("order_ref", report.OrderRef).Str("payment_ref", report.PaymentRef).Msg("processor failure recorded")
	return nil
}

// Expire fails an AwaitingPayment order whose payment window has closed.
// It reports whether the order was expired by this call.
func (s *Service) Expire(ctx context.Context, ref string) (bool, error) {
	expired := false
	_, err := s.update(ctx, ref, func(o *Order) ([]store.NewEvent, error) {
		expired = false
		if o.Status != StatusAwaitingPayment || s.now().Before(o.ExpiresAt) {
			return nil, nil
		}
		expired = true
		return []store.NewEvent{{
			Type: EventOrderFailed,
			Data: OrderFailed{OrderRef: o.Ref, Reason: ReasonExpired, FailedAt: s.now()},
		}}, nil
	})
	if err != nil {
		return false, err
	}
	return expired, nil
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
