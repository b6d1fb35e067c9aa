package checkout

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/glam-checkout/internal/api"
	"github.com/example/glam-checkout/internal/api/middleware"
	"github.com/example/glam-checkout/internal/auth"
	"github.com/example/glam-checkout/internal/catalog"
	"github.com/example/glam-checkout/internal/checkout/widget"
	"github.com/example/glam-checkout/internal/domain/order"
	"github.com/example/glam-checkout/internal/infrastructure/store"
	"github.com/example/glam-checkout/internal/orderclient"
	"github.com/example/glam-checkout/internal/processor"
	"github.com/example/glam-checkout/internal/projection"
	"github.com/example/glam-checkout/internal/signature"
)

const testSecret = "rzp_test_secret"

type cancelCall struct {
	OrderID, Token, Reason string
}

// stubAPI plays the Order Service: order "order_abc" for 499900 INR, and a
// verify that checks the signature like the real one.
type stubAPI struct {
	CreateErr   error
	VerifyErr   error
	VerifyGate  chan struct{}
	CreateDelay time.Duration

	mu       sync.Mutex
	creates  []order.CreateRequest
	verifies []order.Callback
	cancels  []cancelCall
}

func (s *stubAPI) CreateOrder(ctx context.Context, req order.CreateRequest) (*orderclient.CreatedOrder, error) {
	s.mu.Lock()
	s.creates = append(s.creates, req)
	s.mu.Unlock()

	if s.CreateDelay > 0 {
		select {
		case <-time.After(s.CreateDelay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if s.CreateErr != nil {
		return nil, s.CreateErr
	}
	return &orderclient.CreatedOrder{
		OrderID:       "id-abc",
		OrderRef:      "order_abc",
		Amount:        499900,
		Currency:      "INR",
		Key:           "rzp_test_key",
		CheckoutToken: "checkout-token",
	}, nil
}

func (s *stubAPI) VerifyPayment(ctx context.Context, cb order.Callback) (*orderclient.Verification, error) {
	s.mu.Lock()
	s.verifies = append(s.verifies, cb)
	s.mu.Unlock()

	if s.VerifyGate != nil {
		<-s.VerifyGate
	}
	if s.VerifyErr != nil {
		return nil, s.VerifyErr
	}
	if !signature.Verify(testSecret, cb.OrderRef, cb.PaymentRef, cb.Signature) {
		return nil, &orderclient.APIError{Status: http.StatusUnprocessableEntity, Kind: order.KindVerificationFailed, Message: "payment could not be verified"}
	}
	return &orderclient.Verification{
		OrderID:    "id-abc",
		OrderRef:   cb.OrderRef,
		PaymentID:  cb.PaymentRef,
		Amount:     499900,
		Currency:   "INR",
		VerifiedAt: time.Now(),
	}, nil
}

func (s *stubAPI) CancelOrder(ctx context.Context, orderID, checkoutToken, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancels = append(s.cancels, cancelCall{orderID, checkoutToken, reason})
	return nil
}

func (s *stubAPI) counts() (creates, verifies, cancels int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.creates), len(s.verifies), len(s.cancels)
}

type recordingCart struct {
	mu       sync.Mutex
	released []string
}

func (c *recordingCart) Release(ctx context.Context, cartID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.released = append(c.released, cartID)
	return nil
}

func (c *recordingCart) Released() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.released...)
}

func paySigned(paymentRef string) func(ctx context.Context, cfg widget.Config) (widget.Outcome, error) {
	return func(ctx context.Context, cfg widget.Config) (widget.Outcome, error) {
		return widget.Outcome{
			Result:     widget.Succeeded,
			OrderRef:   cfg.OrderRef,
			PaymentRef: paymentRef,
			Signature:  signature.Sign(testSecret, cfg.OrderRef, paymentRef),
		}, nil
	}
}

type fixture struct {
	api    *stubAPI
	widget *widget.Fake
	loads  *atomic.Int32
	cart   *recordingCart
	orch   *Orchestrator
}

func newFixture() *fixture {
	f := &fixture{api: &stubAPI{}, widget: &widget.Fake{}, loads: &atomic.Int32{}, cart: &recordingCart{}}
	loader := widget.NewLoader(func(ctx context.Context) (widget.Widget, error) {
		f.loads.Add(1)
		return f.widget, nil
	})
	f.orch = New("cart-1", Deps{
		Orders:   f.api,
		Widgets:  loader,
		Cart:     f.cart,
		Branding: Branding{Name: "Glam Essentials", Description: "Payment for your order", ThemeColor: "#8B5CF6"},
	})
	return f
}

func purchase() Purchase {
	return Purchase{
		Currency:  "INR",
		CartTotal: 499900,
		Items: []order.ItemRequest{
			{ProductID: "2", Price: 149900, Quantity: 1},
			{ProductID: "3", Price: 260100, Quantity: 1},
			{ProductID: "1", Price: 89900, Quantity: 1},
		},
		Customer: order.CustomerRequest{Name: "Asha Rao", Email: "asha@example.com", Phone: "9876543210"},
	}
}

func payAsync(o *Orchestrator, ctx context.Context, p Purchase) chan *Result {
	done := make(chan *Result, 1)
	go func() {
		res, err := o.Pay(ctx, p)
		if err != nil {
			res = nil
		}
		done <- res
	}()
	return done
}

func waitForState(t *testing.T, o *Orchestrator, s State) {
	t.Helper()
	require.Eventually(t, func() bool { return o.State() == s }, time.Second, 2*time.Millisecond, "want %s, have %s", s, o.State())
}

func receive(t *testing.T, done chan *Result) *Result {
	t.Helper()
	select {
	case res := <-done:
		require.NotNil(t, res)
		return res
	case <-time.After(2 * time.Second):
		t.Fatal("payment attempt did not finish")
		return nil
	}
}

// ============================================
// Scenario Tests
// ============================================

func TestPay_ScenarioA_VerifiedPayment(t *testing.T) {
	f := newFixture()
	f.widget.Respond = paySigned("pay_123")

	res, err := f.orch.Pay(context.Background(), purchase())

	require.NoError(t, err)
	assert.Equal(t, Succeeded, res.State)
	assert.Equal(t, "order_abc", res.OrderRef)
	assert.Equal(t, "pay_123", res.PaymentID)
	assert.Equal(t, int64(499900), res.Amount)
	assert.Equal(t, "INR", res.Currency)
	assert.Nil(t, res.Failure)
	assert.Equal(t, []string{"cart-1"}, f.cart.Released())

	require.Len(t, f.api.verifies, 1)
	assert.Equal(t, order.Callback{
		OrderRef:   "order_abc",
		PaymentRef: "pay_123",
		Signature:  signature.Sign(testSecret, "order_abc", "pay_123"),
	}, f.api.verifies[0])

	opened := f.widget.Opened()
	require.Len(t, opened, 1)
	assert.Equal(t, widget.Config{
		Key:         "rzp_test_key",
		Amount:      499900,
		Currency:    "INR",
		OrderRef:    "order_abc",
		Name:        "Glam Essentials",
		Description: "Payment for your order",
		Prefill:     widget.Prefill{Name: "Asha Rao", Email: "asha@example.com", Contact: "9876543210"},
		Theme:       widget.Theme{Color: "#8B5CF6"},
	}, opened[0])

	states := []State{}
	for _, step := range f.orch.History() {
		states = append(states, step.To)
	}
	assert.Equal(t, []State{ValidatingInput, CreatingOrder, AwaitingWidget, VerifyingPayment, Succeeded}, states)
}

func TestPay_ScenarioB_BuyerDismisses(t *testing.T) {
	f := newFixture()
	f.widget.Respond = widget.Dismiss

	res, err := f.orch.Pay(context.Background(), purchase())

	require.NoError(t, err)
	assert.Equal(t, Cancelled, res.State)
	assert.Nil(t, res.Failure)
	_, verifies, cancels := f.api.counts()
	assert.Zero(t, verifies)
	assert.Zero(t, cancels, "a dismissed order is left to expire")
	assert.Empty(t, f.cart.Released())
}

func TestPay_ScenarioC_EmptyNameMakesNoCall(t *testing.T) {
	f := newFixture()
	p := purchase()
	p.Customer.Name = "  "

	res, err := f.orch.Pay(context.Background(), p)

	var inputErr *InputError
	require.ErrorAs(t, err, &inputErr)
	assert.Equal(t, "is required", inputErr.Fields["customer.name"])
	assert.Equal(t, Idle, res.State)
	assert.Equal(t, Idle, f.orch.State())
	creates, _, _ := f.api.counts()
	assert.Zero(t, creates)
	assert.Zero(t, f.loads.Load())
}

func TestPay_InputErrors(t *testing.T) {
	f := newFixture()
	p := purchase()
	p.Items = nil
	p.Customer = order.CustomerRequest{Name: "Asha", Email: "not-an-email"}

	_, err := f.orch.Pay(context.Background(), p)

	var inputErr *InputError
	require.ErrorAs(t, err, &inputErr)
	assert.Equal(t, map[string]string{
		"customer.email": "must be a valid email address",
		"customer.phone": "is required",
		"items":          "cart is empty",
	}, inputErr.Fields)
	assert.Equal(t, "invalid buyer input: customer.email, customer.phone, items", inputErr.Error())
}

func TestPay_UsesServiceAmountNotCartTotal(t *testing.T) {
	f := newFixture()
	f.widget.Respond = widget.Dismiss
	p := purchase()
	p.CartTotal = 100

	_, err := f.orch.Pay(context.Background(), p)

	require.NoError(t, err)
	assert.Equal(t, int64(100), f.api.creates[0].Amount)
	assert.Equal(t, int64(499900), f.widget.Opened()[0].Amount)
}

// ============================================
// Failure Tests
// ============================================

func TestPay_CreateRejected(t *testing.T) {
	tests := []struct {
		name string
		err  error
		kind FailureKind
	}{
		{"catalog", &orderclient.APIError{Status: 409, Kind: order.KindCatalog, Details: map[string]string{"items[0].price": "changed"}}, FailureCatalog},
		{"validation", &orderclient.APIError{Status: 400, Kind: order.KindValidation}, FailureValidation},
		{"unreachable", orderclient.ErrUnavailable, FailureServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			f.api.CreateErr = tt.err

			res, err := f.orch.Pay(context.Background(), purchase())

			require.NoError(t, err)
			assert.Equal(t, Failed, res.State)
			require.NotNil(t, res.Failure)
			assert.Equal(t, tt.kind, res.Failure.Kind)
			assert.True(t, res.Failure.Retryable)
			assert.False(t, res.Failure.ContactSupport)
			assert.Zero(t, f.loads.Load())
		})
	}
}

func TestPay_CatalogFailureCarriesDetails(t *testing.T) {
	f := newFixture()
	f.api.CreateErr = &orderclient.APIError{Status: 409, Kind: order.KindCatalog, Details: map[string]string{"items[0].price": "price changed"}}

	res, _ := f.orch.Pay(context.Background(), purchase())

	assert.Equal(t, "price changed", res.Failure.Details["items[0].price"])
}

func TestPay_RetryAfterFailure(t *testing.T) {
	f := newFixture()
	f.api.CreateErr = &orderclient.APIError{Status: 409, Kind: order.KindCatalog}
	res, err := f.orch.Pay(context.Background(), purchase())
	require.NoError(t, err)
	require.Equal(t, Failed, res.State)

	f.api.CreateErr = nil
	f.widget.Respond = paySigned("pay_123")
	res, err = f.orch.Pay(context.Background(), purchase())

	require.NoError(t, err)
	assert.Equal(t, Succeeded, res.State)
	creates, _, _ := f.api.counts()
	assert.Equal(t, 2, creates)
}

func TestPay_ProcessorFailure(t *testing.T) {
	f := newFixture()
	f.widget.Respond = widget.Decline("Card declined by issuer")

	res, err := f.orch.Pay(context.Background(), purchase())

	require.NoError(t, err)
	assert.Equal(t, Failed, res.State)
	assert.Equal(t, FailureProcessor, res.Failure.Kind)
	assert.True(t, res.Failure.Retryable)
	assert.Contains(t, res.Failure.Message, "Card declined by issuer")
	_, verifies, _ := f.api.counts()
	assert.Zero(t, verifies)
}

func TestPay_VerificationRejected(t *testing.T) {
	tests := []struct {
		name string
		err  error
		kind FailureKind
	}{
		{"signature", &orderclient.APIError{Status: 422, Kind: order.KindVerificationFailed}, FailureVerification},
		{"amount", &orderclient.APIError{Status: 422, Kind: order.KindAmountMismatch}, FailureAmountMismatch},
		{"unknown order", &orderclient.APIError{Status: 404, Kind: order.KindUnknownOrder}, FailureUnknownOrder},
		{"service down", orderclient.ErrUnavailable, FailureServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			f.widget.Respond = paySigned("pay_123")
			f.api.VerifyErr = tt.err

			res, err := f.orch.Pay(context.Background(), purchase())

			require.NoError(t, err)
			assert.Equal(t, Failed, res.State)
			assert.Equal(t, tt.kind, res.Failure.Kind)
			assert.True(t, res.Failure.ContactSupport)
			assert.False(t, res.Failure.Retryable)
			assert.Contains(t, res.Failure.Message, "id-abc")
			assert.Contains(t, res.Failure.Message, "pay_123")
			assert.Empty(t, f.cart.Released())
			_, verifies, _ := f.api.counts()
			assert.Equal(t, 1, verifies, "never retried automatically")
		})
	}
}

func TestPay_ForgedSignatureFails(t *testing.T) {
	f := newFixture()
	f.widget.Respond = func(ctx context.Context, cfg widget.Config) (widget.Outcome, error) {
		return widget.Outcome{Result: widget.Succeeded, OrderRef: cfg.OrderRef, PaymentRef: "pay_123", Signature: "forged"}, nil
	}

	res, err := f.orch.Pay(context.Background(), purchase())

	require.NoError(t, err)
	assert.Equal(t, Failed, res.State)
	assert.Equal(t, FailureVerification, res.Failure.Kind)
}

func TestPay_WidgetLoadFails(t *testing.T) {
	f := newFixture()
	f.orch.deps.Widgets = widget.NewLoader(func(ctx context.Context) (widget.Widget, error) {
		return nil, errors.New("script blocked")
	})

	res, err := f.orch.Pay(context.Background(), purchase())

	require.NoError(t, err)
	assert.Equal(t, Failed, res.State)
	assert.Equal(t, FailureWidgetLoad, res.Failure.Kind)
	assert.True(t, res.Failure.Retryable)
	assert.Equal(t, "order_abc", res.OrderRef)
}

func TestPay_WidgetErrors(t *testing.T) {
	f := newFixture()
	f.widget.Respond = func(ctx context.Context, cfg widget.Config) (widget.Outcome, error) {
		return widget.Outcome{}, errors.New("popup blocked")
	}

	res, err := f.orch.Pay(context.Background(), purchase())

	require.NoError(t, err)
	assert.Equal(t, Failed, res.State)
	assert.Equal(t, FailureWidgetLoad, res.Failure.Kind)
}

// ============================================
// Attempt Lifecycle Tests
// ============================================

func TestPay_SecondAttemptRejectedWhileInFlight(t *testing.T) {
	f := newFixture()
	done := payAsync(f.orch, context.Background(), purchase())
	waitForState(t, f.orch, AwaitingWidget)

	_, err := f.orch.Pay(context.Background(), purchase())
	assert.ErrorIs(t, err, ErrAttemptInProgress)

	require.NoError(t, f.orch.Abandon())
	res := receive(t, done)

	assert.Equal(t, Cancelled, res.State)
	require.Len(t, f.api.cancels, 1)
	assert.Equal(t, cancelCall{OrderID: "id-abc", Token: "checkout-token", Reason: reasonAbandoned}, f.api.cancels[0])

	f.widget.Respond = paySigned("pay_456")
	res, err = f.orch.Pay(context.Background(), purchase())
	require.NoError(t, err)
	assert.Equal(t, Succeeded, res.State)
	creates, _, _ := f.api.counts()
	assert.Equal(t, 2, creates)
}

func TestAbandon_WhileCreatingOrder(t *testing.T) {
	f := newFixture()
	f.api.CreateDelay = time.Second
	done := payAsync(f.orch, context.Background(), purchase())
	waitForState(t, f.orch, CreatingOrder)

	require.NoError(t, f.orch.Abandon())
	res := receive(t, done)

	assert.Equal(t, Cancelled, res.State)
	assert.Zero(t, f.loads.Load())
}

func TestAbandon_RefusedWhileVerifying(t *testing.T) {
	f := newFixture()
	f.widget.Respond = paySigned("pay_123")
	f.api.VerifyGate = make(chan struct{})
	done := payAsync(f.orch, context.Background(), purchase())
	waitForState(t, f.orch, VerifyingPayment)

	err := f.orch.Abandon()
	assert.ErrorIs(t, err, ErrAttemptInProgress)

	close(f.api.VerifyGate)
	res := receive(t, done)
	assert.Equal(t, Succeeded, res.State)
}

func TestAbandon_NothingInProgress(t *testing.T) {
	f := newFixture()
	assert.ErrorIs(t, f.orch.Abandon(), ErrNoActiveAttempt)
}

func TestPay_CallerGoesAway(t *testing.T) {
	f := newFixture()
	ctx, cancel := context.WithCancel(context.Background())
	done := payAsync(f.orch, ctx, purchase())
	waitForState(t, f.orch, AwaitingWidget)

	cancel()
	res := receive(t, done)

	assert.Equal(t, Cancelled, res.State)
	_, _, cancels := f.api.counts()
	assert.Equal(t, 1, cancels)
}

func TestPay_AlreadyPaid(t *testing.T) {
	f := newFixture()
	f.widget.Respond = paySigned("pay_123")
	_, err := f.orch.Pay(context.Background(), purchase())
	require.NoError(t, err)

	_, err = f.orch.Pay(context.Background(), purchase())

	assert.ErrorIs(t, err, ErrAlreadyPaid)
}

// ============================================
// Callback Correlation Tests
// ============================================

func TestDeliver_StaleCallbackIsDiscarded(t *testing.T) {
	f := newFixture()
	done := payAsync(f.orch, context.Background(), purchase())
	waitForState(t, f.orch, AwaitingWidget)

	stale := widget.Outcome{
		Result:     widget.Succeeded,
		OrderRef:   "order_previous",
		PaymentRef: "pay_old",
		Signature:  signature.Sign(testSecret, "order_previous", "pay_old"),
	}
	assert.ErrorIs(t, f.orch.Deliver(stale), ErrStaleCallback)
	assert.Equal(t, AwaitingWidget, f.orch.State())

	require.NoError(t, f.orch.Deliver(widget.Outcome{
		Result:     widget.Succeeded,
		OrderRef:   "order_abc",
		PaymentRef: "pay_123",
		Signature:  signature.Sign(testSecret, "order_abc", "pay_123"),
	}))
	res := receive(t, done)

	assert.Equal(t, Succeeded, res.State)
	require.Len(t, f.api.verifies, 1)
	assert.Equal(t, "order_abc", f.api.verifies[0].OrderRef)
}

func TestDeliver_NoActiveAttempt(t *testing.T) {
	f := newFixture()

	err := f.orch.Deliver(widget.Outcome{Result: widget.Succeeded, OrderRef: "order_abc"})

	assert.ErrorIs(t, err, ErrStaleCallback)
}

func TestPay_OwnWidgetAnswersForAnotherOrder(t *testing.T) {
	f := newFixture()
	f.widget.Respond = func(ctx context.Context, cfg widget.Config) (widget.Outcome, error) {
		return widget.Outcome{Result: widget.Succeeded, OrderRef: "order_other", PaymentRef: "pay_9"}, nil
	}

	res, err := f.orch.Pay(context.Background(), purchase())

	require.NoError(t, err)
	assert.Equal(t, Failed, res.State)
	assert.True(t, res.Failure.ContactSupport)
	_, verifies, _ := f.api.counts()
	assert.Zero(t, verifies)
}

// ============================================
// Shared Widget Tests
// ============================================

func TestPay_WidgetLoadedOnceAcrossCarts(t *testing.T) {
	var loads atomic.Int32
	fake := &widget.Fake{Respond: paySigned("pay_123")}
	loader := widget.NewLoader(func(ctx context.Context) (widget.Widget, error) {
		loads.Add(1)
		time.Sleep(20 * time.Millisecond)
		return fake, nil
	})
	registry := NewRegistry(Deps{Orders: &stubAPI{}, Widgets: loader})

	var wg sync.WaitGroup
	for _, cart := range []string{"cart-1", "cart-2", "cart-3", "cart-4", "cart-5"} {
		wg.Add(1)
		go func(cart string) {
			defer wg.Done()
			res, err := registry.For(cart).Pay(context.Background(), purchase())
			if assert.NoError(t, err) {
				assert.Equal(t, Succeeded, res.State)
			}
		}(cart)
	}
	wg.Wait()

	assert.Equal(t, int32(1), loads.Load())
	assert.Len(t, fake.Opened(), 5)
}

func TestRegistry_SameCartSameOrchestrator(t *testing.T) {
	registry := NewRegistry(Deps{})

	assert.Same(t, registry.For("cart-1"), registry.For("cart-1"))
	assert.NotSame(t, registry.For("cart-1"), registry.For("cart-2"))
}

// ============================================
// End-to-End Tests
// ============================================

func newOrderService(t *testing.T) (*orderclient.Client, *processor.Fake, *store.ReadStore) {
	t.Helper()
	readStore := store.NewReadStore()
	eventStore := store.NewEventStore(projection.NewInlinePublisher(projection.NewProjector(readStore)))
	gateway := processor.NewFake("rzp_test_key", testSecret)
	cat := catalog.NewMemoryCatalog("INR",
		catalog.Product{ID: "1", Name: "Velvet Matte Lipstick", Price: 89900, Active: true},
		catalog.Product{ID: "2", Name: "Hydrating Rose Serum", Price: 149900, Active: true},
		catalog.Product{ID: "3", Name: "Kohl Eyeliner", Price: 260100, Active: true},
	)
	service := order.NewService(eventStore, cat, gateway, order.Config{KeySecret: testSecret})
	tokens := auth.NewCheckoutTokenService("checkout-token-secret-for-tests-only", "glam-checkout", time.Hour)
	server := httptest.NewServer(api.NewRouter(api.NewHandlers(service, readStore, tokens), middleware.NewIPRateLimiter(1000, 1000)))
	t.Cleanup(server.Close)
	return orderclient.New(server.URL, server.Client()), gateway, readStore
}

func TestEndToEnd_PaymentVerified(t *testing.T) {
	client, gateway, readStore := newOrderService(t)
	fake := &widget.Fake{Respond: func(ctx context.Context, cfg widget.Config) (widget.Outcome, error) {
		cb, err := gateway.Pay(cfg.OrderRef)
		if err != nil {
			return widget.Outcome{}, err
		}
		return widget.Outcome{Result: widget.Succeeded, OrderRef: cb.OrderRef, PaymentRef: cb.PaymentRef, Signature: cb.Signature}, nil
	}}
	cart := &recordingCart{}
	orch := New("cart-e2e", Deps{
		Orders:  client,
		Widgets: widget.NewLoader(func(ctx context.Context) (widget.Widget, error) { return fake, nil }),
		Cart:    cart,
	})

	res, err := orch.Pay(context.Background(), purchase())

	require.NoError(t, err)
	require.Equal(t, Succeeded, res.State, "failure: %+v", res.Failure)
	assert.Equal(t, int64(499900), res.Amount)
	o, err := readStore.GetOrder(context.Background(), res.OrderRef)
	require.NoError(t, err)
	assert.Equal(t, string(order.StatusVerified), o.Status)
	assert.Equal(t, res.PaymentID, o.PaymentRef)
	assert.Equal(t, []string{"cart-e2e"}, cart.Released())
}

func TestEndToEnd_DismissLeavesOrderAwaiting(t *testing.T) {
	client, _, readStore := newOrderService(t)
	orch := New("cart-e2e", Deps{
		Orders:  client,
		Widgets: widget.NewLoader(func(ctx context.Context) (widget.Widget, error) { return &widget.Fake{Respond: widget.Dismiss}, nil }),
	})

	res, err := orch.Pay(context.Background(), purchase())

	require.NoError(t, err)
	assert.Equal(t, Cancelled, res.State)
	o, err := readStore.GetOrder(context.Background(), res.OrderRef)
	require.NoError(t, err)
	assert.Equal(t, string(order.StatusAwaitingPayment), o.Status)
}

func TestEndToEnd_AbandonCancelsOrder(t *testing.T) {
	client, _, readStore := newOrderService(t)
	orch := New("cart-e2e", Deps{
		Orders:  client,
		Widgets: widget.NewLoader(func(ctx context.Context) (widget.Widget, error) { return &widget.Fake{}, nil }),
	})
	done := payAsync(orch, context.Background(), purchase())
	waitForState(t, orch, AwaitingWidget)

	require.NoError(t, orch.Abandon())
	res := receive(t, done)

	assert.Equal(t, Cancelled, res.State)
	o, err := readStore.GetOrder(context.Background(), res.OrderRef)
	require.NoError(t, err)
	assert.Equal(t, string(order.StatusCancelled), o.Status)
}
