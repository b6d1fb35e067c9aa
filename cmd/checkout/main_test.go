package main

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/glam-checkout/internal/domain/order"
	"github.com/example/glam-checkout/internal/orderclient"
)

func TestParseItems(t *testing.T) {
	lines, err := parseItems("1:2, 3 ,2:1,")

	require.NoError(t, err)
	assert.Equal(t, []order.ItemRequest{
		{ProductID: "1", Quantity: 2},
		{ProductID: "3", Quantity: 1},
		{ProductID: "2", Quantity: 1},
	}, lines)
}

func TestParseItems_Invalid(t *testing.T) {
	_, err := parseItems("1:two")
	assert.Error(t, err)

	_, err = parseItems(" , ")
	assert.Error(t, err)
}

func TestDeliveryAddress(t *testing.T) {
	assert.Nil(t, deliveryAddress(""))
	assert.Equal(t, "12 MG Road, Pune", deliveryAddress("12 MG Road, Pune").Address)
}

type recordingOrders struct {
	orderAPI
	created  *orderclient.CreatedOrder
	tokens   []string
	reported []order.FailureReport
}

func (r *recordingOrders) CreateOrder(ctx context.Context, req order.CreateRequest) (*orderclient.CreatedOrder, error) {
	return r.created, nil
}

func (r *recordingOrders) ReportFailure(ctx context.Context, checkoutToken string, report order.FailureReport) error {
	r.tokens = append(r.tokens, checkoutToken)
	r.reported = append(r.reported, report)
	return nil
}

func TestSessionOrders_ReportsWithCheckoutToken(t *testing.T) {
	api := &recordingOrders{created: &orderclient.CreatedOrder{OrderRef: "order_abc", CheckoutToken: "tok_abc"}}
	orders := newSessionOrders(api)
	ctx := context.Background()

	_, err := orders.CreateOrder(ctx, order.CreateRequest{})
	require.NoError(t, err)
	require.NoError(t, orders.ReportFailure(ctx, order.FailureReport{OrderRef: "order_abc", Description: "declined"}))

	assert.Equal(t, []string{"tok_abc"}, api.tokens)
	require.Len(t, api.reported, 1)
	assert.Equal(t, "declined", api.reported[0].Description)
}

func TestSessionOrders_UnknownOrder(t *testing.T) {
	api := &recordingOrders{}
	orders := newSessionOrders(api)

	err := orders.ReportFailure(context.Background(), order.FailureReport{OrderRef: "order_other"})

	assert.ErrorIs(t, err, errNoSession)
	assert.Empty(t, api.reported)
}
