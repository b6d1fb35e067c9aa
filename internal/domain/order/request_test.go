package order

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProductID_UnmarshalJSON(t *testing.T) {
	tests := []struct {
		raw    string
		expect ProductID
		ok     bool
	}{
		{`"sku-1"`, "sku-1", true},
		{`7`, "7", true},
		{`12345678901`, "12345678901", true},
		{`true`, "", false},
		{`{"id":1}`, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			var id ProductID
			err := json.Unmarshal([]byte(tt.raw), &id)
			if !tt.ok {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expect, id)
		})
	}
}

func TestValidator_Phone(t *testing.T) {
	v := NewValidator()
	type holder struct {
		Phone string `json:"phone" validate:"phone"`
	}

	for _, phone := range []string{"9876543210", "+91 98765 43210", "(020) 2612-3456"} {
		assert.NoError(t, v.Struct(holder{Phone: phone}), phone)
	}
	for _, phone := range []string{"12345", "phone", "+91 98765 43210 99999 11"} {
		assert.Error(t, v.Struct(holder{Phone: phone}), phone)
	}
}

func TestValidationError_Details(t *testing.T) {
	v := NewValidator()
	req := CreateRequest{
		Items:    []ItemRequest{{ProductID: "1", Quantity: 101}},
		Customer: CustomerRequest{Name: "Asha", Email: "asha@", Phone: "9876543210"},
	}

	err := validationError(v.Struct(req))

	assert.Equal(t, KindValidation, err.Kind)
	assert.ErrorIs(t, err, ErrInvalidInput)
	assert.Equal(t, "must be at most 100", err.Details["items[0].quantity"])
	assert.Equal(t, "must be a valid email address", err.Details["customer.email"])
	assert.NotContains(t, err.Details, "customer.name")
}

func TestCallback_JSONFieldNames(t *testing.T) {
	body := `{"razorpay_order_id":"order_1","razorpay_payment_id":"pay_1","razorpay_signature":"abc"}`

	var cb Callback
	require.NoError(t, json.Unmarshal([]byte(body), &cb))

	assert.Equal(t, Callback{OrderRef: "order_1", PaymentRef: "pay_1", Signature: "abc"}, cb)
}

func TestCreateRequest_Normalize(t *testing.T) {
	req := CreateRequest{
		Currency: " inr ",
		Items:    []ItemRequest{{ProductID: " 1 "}},
		Customer: CustomerRequest{Name: " Asha ", Email: " asha@example.com "},
	}

	req.normalize()

	assert.Equal(t, "INR", req.Currency)
	assert.Equal(t, ProductID("1"), req.Items[0].ProductID)
	assert.Equal(t, "Asha", req.Customer.Name)
	assert.Equal(t, "asha@example.com", req.Customer.Email)
	assert.Nil(t, req.buyer().Address)
}
