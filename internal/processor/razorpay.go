package processor

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/razorpay/razorpay-go"
)

// orderAPI and paymentAPI mirror the SDK resources used here
type orderAPI interface {
	Create(data map[string]interface{}, extraHeaders map[string]string) (map[string]interface{}, error)
}

type paymentAPI interface {
	Fetch(paymentID string, queryParams map[string]interface{}, extraHeaders map[string]string) (map[string]interface{}, error)
}

// RazorpayGateway implements Gateway with the Razorpay SDK
type RazorpayGateway struct {
	keyID    string
	orders   orderAPI
	payments paymentAPI
}

func NewRazorpayGateway(keyID, keySecret string) *RazorpayGateway {
	client := razorpay.NewClient(keyID, keySecret)
	return &RazorpayGateway{
		keyID:    keyID,
		orders:   client.Order,
		payments: client.Payment,
	}
}

func (g *RazorpayGateway) KeyID() string { return g.keyID }

// CreateOrder registers the order with Razorpay; the SDK has no context support,
// so cancellation is only honoured before the call.
func (g *RazorpayGateway) CreateOrder(ctx context.Context, req OrderRequest) (*Order, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data := map[string]interface{}{
		"amount":   req.Amount,
		"currency": req.Currency,
		"receipt":  req.Receipt,
	}
	if len(req.Notes) > 0 {
		notes := make(map[string]interface{}, len(req.Notes))
		for k, v := range req.Notes {
			notes[k] = v
		}
		data["notes"] = notes
	}

	body, err := g.orders.Create(data, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: create order: %v", ErrUnavailable, err)
	}

	order := &Order{
		ID:       stringField(body, "id"),
		Currency: stringField(body, "currency"),
		Receipt:  stringField(body, "receipt"),
		Status:   stringField(body, "status"),
	}
	if order.Amount, err = int64Field(body, "amount"); err != nil {
		return nil, err
	}
	if order.ID == "" {
		return nil, fmt.Errorf("%w: create order returned no id", ErrUnavailable)
	}
	return order, nil
}

func (g *RazorpayGateway) FetchPayment(ctx context.Context, paymentID string) (*Payment, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	body, err := g.payments.Fetch(paymentID, nil, nil)
	if err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "does not exist") {
			return nil, fmt.Errorf("%w: %s", ErrPaymentNotFound, paymentID)
		}
		return nil, fmt.Errorf("%w: fetch payment: %v", ErrUnavailable, err)
	}

	payment := &Payment{
		ID:               stringField(body, "id"),
		OrderID:          stringField(body, "order_id"),
		Currency:         stringField(body, "currency"),
		Status:           stringField(body, "status"),
		ErrorDescription: stringField(body, "error_description"),
	}
	if payment.Amount, err = int64Field(body, "amount"); err != nil {
		return nil, err
	}
	return payment, nil
}

func stringField(m map[string]interface{}, key string) string {
	if v, ok := m[key].(string); ok {
		return v
	}
	return ""
}

// int64Field accepts the numeric shapes a decoded JSON body can carry.
func int64Field(m map[string]interface{}, key string) (int64, error) {
	switch v := m[key].(type) {
	case float64:
		return int64(v), nil
	case int64:
		return v, nil
	case int:
		return int64(v), nil
	case json.Number:
		return v.Int64()
	case string:
		return strconv.ParseInt(v, 10, 64)
	case nil:
		return 0, fmt.Errorf("processor response missing %q", key)
	default:
		return 0, fmt.Errorf("processor response field %q has type %T", key, v)
	}
}
