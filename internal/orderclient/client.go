// Package orderclient calls the Order Service over HTTP on behalf of the
// checkout orchestrator.
package orderclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/example/glam-checkout/internal/domain/order"
)

const defaultTimeout = 25 * time.Second

// ErrUnavailable is returned when the Order Service could not be reached or
// answered with something that is not an API response.
var ErrUnavailable = errors.New("order service unavailable")

// APIError is a structured failure reported by the Order Service
type APIError struct {
	Status  int
	Kind    order.Kind
	Message string
	Details map[string]string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("order service: %d %s: %s", e.Status, e.Kind, e.Message)
}

// KindOf returns the kind carried by an APIError, or internal otherwise.
func KindOf(err error) order.Kind {
	var e *APIError
	if errors.As(err, &e) && e.Kind != "" {
		return e.Kind
	}
	return order.KindInternal
}

// CreatedOrder is the Order Service's answer to a create request. Amount is
// the authoritative total to charge and display.
type CreatedOrder struct {
	OrderID       string
	OrderRef      string
	Amount        int64
	Currency      string
	Key           string
	CheckoutToken string
	ExpiresAt     time.Time
}

// Verification is a confirmed payment
type Verification struct {
	OrderID    string    `json:"orderId"`
	OrderRef   string    `json:"orderRef"`
	PaymentID  string    `json:"paymentId"`
	Amount     int64     `json:"amount"`
	Currency   string    `json:"currency"`
	VerifiedAt time.Time `json:"verifiedAt"`
}

type Client struct {
	baseURL    string
	httpClient *http.Client
}

// New returns a client for the Order Service at baseURL. A nil httpClient
// gets a client with a conservative timeout.
func New(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultTimeout}
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
	}
}

func (c *Client) CreateOrder(ctx context.Context, req order.CreateRequest) (*CreatedOrder, error) {
	var res struct {
		OrderID string `json:"orderId"`
		Order   struct {
			ID       string `json:"id"`
			Amount   int64  `json:"amount"`
			Currency string `json:"currency"`
		} `json:"order"`
		Key           string    `json:"key"`
		CheckoutToken string    `json:"checkoutToken"`
		ExpiresAt     time.Time `json:"expiresAt"`
	}
	if err := c.post(ctx, "/api/orders/create", "", req, &res); err != nil {
		return nil, err
	}
	if res.Order.ID == "" || res.Order.Amount <= 0 {
		return nil, fmt.Errorf("%w: create response is missing the order", ErrUnavailable)
	}
	return &CreatedOrder{
		OrderID:       res.OrderID,
		OrderRef:      res.Order.ID,
		Amount:        res.Order.Amount,
		Currency:      res.Order.Currency,
		Key:           res.Key,
		CheckoutToken: res.CheckoutToken,
		ExpiresAt:     res.ExpiresAt,
	}, nil
}

func (c *Client) VerifyPayment(ctx context.Context, cb order.Callback) (*Verification, error) {
	var res Verification
	if err := c.post(ctx, "/api/orders/verify", "", cb, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// ReportFailure records a processor-reported failure against the order the
// checkout token was issued for.
func (c *Client) ReportFailure(ctx context.Context, checkoutToken string, report order.FailureReport) error {
	return c.post(ctx, "/api/orders/failure", checkoutToken, report, nil)
}

// CancelOrder cancels the order identified by orderID using the checkout
// token issued when it was created.
func (c *Client) CancelOrder(ctx context.Context, orderID, checkoutToken, reason string) error {
	body := map[string]string{"orderId": orderID, "reason": reason}
	return c.post(ctx, "/api/orders/cancel", checkoutToken, body, nil)
}

func (c *Client) post(ctx context.Context, path, token string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("failed to encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("%w: reading response: %v", ErrUnavailable, err)
	}

	var envelope struct {
		Success bool              `json:"success"`
		Error   string            `json:"error"`
		Details map[string]string `json:"details"`
		Kind    string            `json:"kind"`
	}
	if err := json.Unmarshal(respBody, &envelope); err != nil {
		return fmt.Errorf("%w: status %d with a non-JSON body", ErrUnavailable, resp.StatusCode)
	}

	if resp.StatusCode >= 300 || !envelope.Success {
		kind := order.Kind(envelope.Kind)
		if kind == "" {
			kind = order.KindInternal
		}
		return &APIError{
			Status:  resp.StatusCode,
			Kind:    kind,
			Message: envelope.Error,
			Details: envelope.Details,
		}
	}

	if out != nil {
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("%w: decoding response: %v", ErrUnavailable, err)
		}
	}
	return nil
}
