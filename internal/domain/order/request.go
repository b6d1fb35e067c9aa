package order

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
)

// ProductID accepts both JSON strings and numbers, since storefront carts
// use numeric product ids.
type ProductID string

func (p *ProductID) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*p = ProductID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("productId must be a string or number: %w", err)
	}
	*p = ProductID(n.String())
	return nil
}

type ItemRequest struct {
	ProductID ProductID `json:"productId" validate:"required"`
	Name      string    `json:"name"`
	Price     int64     `json:"price" validate:"gte=0"`
	Quantity  int       `json:"quantity" validate:"gte=1,lte=100"`
}

type AddressRequest struct {
	Country string `json:"country" validate:"omitempty,max=64"`
	State   string `json:"state" validate:"omitempty,max=64"`
	City    string `json:"city" validate:"omitempty,max=64"`
	ZipCode string `json:"zipCode" validate:"omitempty,max=16"`
	Address string `json:"address" validate:"omitempty,max=256"`
}

type CustomerRequest struct {
	Name    string          `json:"name" validate:"required,max=100"`
	Email   string          `json:"email" validate:"required,email,max=254"`
	Phone   string          `json:"phone" validate:"required,phone"`
	Address *AddressRequest `json:"address,omitempty"`
}

// CreateRequest is the buyer's cart and contact details. Amount is the
// client's own total and is only used to detect a stale cart.
type CreateRequest struct {
	Amount   int64           `json:"amount" validate:"gte=0"`
	Currency string          `json:"currency" validate:"omitempty,iso4217"`
	Items    []ItemRequest   `json:"items" validate:"required,min=1,dive"`
	Customer CustomerRequest `json:"customer"`
}

// Callback is the processor's success handshake relayed by the buyer's browser
type Callback struct {
	OrderRef   string `json:"razorpay_order_id" validate:"required,max=64"`
	PaymentRef string `json:"razorpay_payment_id" validate:"required,max=64"`
	Signature  string `json:"razorpay_signature" validate:"required,max=128"`
}

// FailureReport is a processor-side failure relayed by the buyer's browser
type FailureReport struct {
	OrderRef    string `json:"razorpay_order_id" validate:"required,max=64"`
	PaymentRef  string `json:"razorpay_payment_id" validate:"omitempty,max=64"`
	Description string `json:"description" validate:"max=512"`
}

func (r *CreateRequest) normalize() {
	r.Currency = strings.ToUpper(strings.TrimSpace(r.Currency))
	r.Customer.Name = strings.TrimSpace(r.Customer.Name)
	r.Customer.Email = strings.TrimSpace(r.Customer.Email)
	r.Customer.Phone = strings.TrimSpace(r.Customer.Phone)
	for i := range r.Items {
		r.Items[i].ProductID = ProductID(strings.TrimSpace(string(r.Items[i].ProductID)))
	}
}

func (r *CreateRequest) buyer() Buyer {
	b := Buyer{
		Name:  r.Customer.Name,
		Email: r.Customer.Email,
		Phone: r.Customer.Phone,
	}
	if a := r.Customer.Address; a != nil {
		b.Address = &Address{
			Country: a.Country,
			State:   a.State,
			City:    a.City,
			ZipCode: a.ZipCode,
			Address: a.Address,
		}
	}
	return b
}

var phonePattern = regexp.MustCompile(`^\+?[0-9]{7,15}$`)

// NewValidator returns a validator that reports json field names and knows the phone rule.
func NewValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("phone", func(fl validator.FieldLevel) bool {
		cleaned := strings.NewReplacer(" ", "", "-", "", "(", "", ")", "").Replace(fl.Field().String())
		return phonePattern.MatchString(cleaned)
	})
	return v
}

// validationError turns validator output into field-level details keyed by json path.
func validationError(err error) *Error {
	details := map[string]string{}
	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) {
		for _, fe := range fieldErrs {
			details[fieldPath(fe.Namespace())] = fieldMessage(fe)
		}
	} else {
		details["request"] = err.Error()
	}
	e := newError(KindValidation, ErrInvalidInput, "please check the highlighted fields")
	e.Details = details
	return e
}

// fieldPath drops the struct name that prefixes a validator namespace.
func fieldPath(namespace string) string {
	if i := strings.Index(namespace, "."); i >= 0 {
		return namespace[i+1:]
	}
	return namespace
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "email":
		return "must be a valid email address"
	case "phone":
		return "must be a valid phone number"
	case "iso4217":
		return "must be an ISO 4217 currency code"
	case "min":
		return fmt.Sprintf("must contain at least %s", fe.Param())
	case "gte":
		return fmt.Sprintf("must be at least %s", fe.Param())
	case "lte", "max":
		return fmt.Sprintf("must be at most %s", fe.Param())
	default:
		return fmt.Sprintf("failed %s validation", fe.Tag())
	}
}
