package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/example/glam-checkout/internal/checkout"
	"github.com/example/glam-checkout/internal/checkout/widget"
	"github.com/example/glam-checkout/internal/config"
	"github.com/example/glam-checkout/internal/domain/order"
	"github.com/example/glam-checkout/internal/logging"
	"github.com/example/glam-checkout/internal/orderclient"
)

func main() {
	var (
		items    = flag.String("items", "1:1", "cart lines as productID:quantity, comma separated")
		currency = flag.String("currency", "", "currency code; the service default when empty")
		total    = flag.Int64("total", 0, "cart total in minor units, sent for drift detection")
		name     = flag.String("name", os.Getenv("BUYER_NAME"), "buyer name")
		email    = flag.String("email", os.Getenv("BUYER_EMAIL"), "buyer email")
		phone    = flag.String("phone", os.Getenv("BUYER_PHONE"), "buyer phone")
		address  = flag.String("address", "", "delivery address")
		cartID   = flag.String("cart", "cli-cart", "cart identifier")
	)
	flag.Parse()

	cfg, err := config.Load(".env")
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}
	logger := logging.Setup("checkout", cfg.LogLevel, cfg.LogPretty)

	lines, err := parseItems(*items)
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid -items")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	client := newSessionOrders(orderclient.New(cfg.Checkout.APIURL, nil))
	hosted := widget.NewHosted(widget.HostedConfig{
		ScriptURL: cfg.Checkout.WidgetScriptURL,
		PublicURL: cfg.Checkout.PublicURL,
		Present: func(url string) {
			fmt.Fprintf(os.Stdout, "Open %s in your browser to pay.\n", url)
		},
		OnFailure: func(ctx context.Context, orderRef, paymentRef, description string) {
			report := order.FailureReport{OrderRef: orderRef, PaymentRef: paymentRef, Description: description}
			if err := client.ReportFailure(ctx, report); err != nil {
				logger.Warn().Err(err).Str("order_ref", orderRef).Msg("failed to report payment failure")
			}
		},
	})

	server := &http.Server{
		Addr:              cfg.Checkout.Addr,
		Handler:           hosted.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logger.Info().Str("addr", cfg.Checkout.Addr).Msg("checkout pages listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("checkout server failed")
		}
	}()
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Orders.ShutdownGracePeriod)
		defer shutdownCancel()
		server.Shutdown(shutdownCtx)
	}()

	orchestrator := checkout.New(*cartID, checkout.Deps{
		Orders:  client,
		Widgets: widget.NewLoader(hosted.Loader(nil)),
		Cart:    cartLog{logger: logger},
		Branding: checkout.Branding{
			Name:        cfg.Merchant.Name,
			Description: cfg.Merchant.Description,
			ThemeColor:  cfg.Merchant.ThemeColor,
		},
	})

	result, err := orchestrator.Pay(ctx, checkout.Purchase{
		Items:     lines,
		Currency:  *currency,
		CartTotal: *total,
		Customer: order.CustomerRequest{
			Name:    *name,
			Email:   *email,
			Phone:   *phone,
			Address: deliveryAddress(*address),
		},
	})
	if err != nil {
		var inputErr *checkout.InputError
		if errors.As(err, &inputErr) {
			fmt.Fprintf(os.Stderr, "Please check: %s\n", inputErr.Error())
			os.Exit(2)
		}
		logger.Fatal().Err(err).Msg("checkout could not start")
	}

	report(result)
	if result.State != checkout.Succeeded {
		os.Exit(1)
	}
}

func report(result *checkout.Result) {
	switch result.State {
	case checkout.Succeeded:
		fmt.Fprintf(os.Stdout, "Payment confirmed. Order %s, payment %s.\n", result.OrderRef, result.PaymentID)
	case checkout.Cancelled:
		fmt.Fprintln(os.Stdout, "Checkout cancelled. Your cart is unchanged.")
	default:
		if result.Failure != nil {
			fmt.Fprintln(os.Stdout, result.Failure.Message)
			if result.Failure.Retryable {
				fmt.Fprintln(os.Stdout, "You can try again.")
			}
		}
	}
}

func deliveryAddress(line string) *order.AddressRequest {
	if line == "" {
		return nil
	}
	return &order.AddressRequest{Address: line}
}

// parseItems reads "1:2,3:1" into cart lines.
func parseItems(raw string) ([]order.ItemRequest, error) {
	var lines []order.ItemRequest
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, qty, found := strings.Cut(part, ":")
		quantity := 1
		if found {
			n, err := strconv.Atoi(qty)
			if err != nil {
				return nil, fmt.Errorf("quantity in %q: %w", part, err)
			}
			quantity = n
		}
		lines = append(lines, order.ItemRequest{ProductID: order.ProductID(id), Quantity: quantity})
	}
	if len(lines) == 0 {
		return nil, errors.New("no items")
	}
	return lines, nil
}

// cartLog stands in for the storefront cart: there is nothing to empty in a
// one-shot CLI, so release is only recorded.
type cartLog struct {
	logger zerolog.Logger
}

func (c cartLog) Release(ctx context.Context, cartID string) error {
	c.logger.Info().Str("cart_id", cartID).Msg("cart released")
	return nil
}

// orderAPI is the Order Service client surface this CLI drives.
type orderAPI interface {
	checkout.OrderAPI
	ReportFailure(ctx context.Context, checkoutToken string, report order.FailureReport) error
}

var errNoSession = errors.New("no checkout session for order")

// sessionOrders remembers the checkout token of every order it creates so
// failures the widget reports later can be sent on the buyer's session.
type sessionOrders struct {
	orderAPI

	mu     sync.Mutex
	tokens map[string]string
}

func newSessionOrders(api orderAPI) *sessionOrders {
	return &sessionOrders{orderAPI: api, tokens: make(map[string]string)}
}

func (s *sessionOrders) CreateOrder(ctx context.Context, req order.CreateRequest) (*orderclient.CreatedOrder, error) {
	created, err := s.orderAPI.CreateOrder(ctx, req)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.tokens[created.OrderRef] = created.CheckoutToken
	s.mu.Unlock()
	return created, nil
}

func (s *sessionOrders) ReportFailure(ctx context.Context, report order.FailureReport) error {
	s.mu.Lock()
	token, ok := s.tokens[report.OrderRef]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w %s", errNoSession, report.OrderRef)
	}
	return s.orderAPI.ReportFailure(ctx, token, report)
}
