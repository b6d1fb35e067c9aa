package readmodel

import "time"

// OrderItemReadModel represents a repriced line of an order
type OrderItemReadModel struct {
	ProductID string `json:"product_id" db:"product_id"`
	Name      string `json:"name" db:"name"`
	Quantity  int    `json:"quantity" db:"quantity"`
	Price     int64  `json:"price" db:"price"`
}

// PaymentAttemptReadModel is one recorded callback or failure report
type PaymentAttemptReadModel struct {
	PaymentRef string    `json:"payment_ref,omitempty"`
	Outcome    string    `json:"outcome"`
	Detail     string    `json:"detail,omitempty"`
	RecordedAt time.Time `json:"recorded_at"`
}

// OrderReadModel is the read model for orders, keyed by the order reference
type OrderReadModel struct {
	Ref           string                    `json:"order_ref" db:"order_ref"`
	ID            string                    `json:"order_id" db:"order_id"`
	Items         []OrderItemReadModel      `json:"items" db:"-"`
	Amount        int64                     `json:"amount" db:"amount"`
	Currency      string                    `json:"currency" db:"currency"`
	BuyerName     string                    `json:"buyer_name" db:"buyer_name"`
	BuyerEmail    string                    `json:"buyer_email" db:"buyer_email"`
	BuyerPhone    string                    `json:"buyer_phone" db:"buyer_phone"`
	Status        string                    `json:"status" db:"status"`
	PaymentRef    string                    `json:"payment_ref,omitempty" db:"payment_ref"`
	FailureReason string                    `json:"failure_reason,omitempty" db:"failure_reason"`
	Attempts      []PaymentAttemptReadModel `json:"attempts" db:"-"`
	CreatedAt     time.Time                 `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time                 `json:"updated_at" db:"updated_at"`
	VerifiedAt    *time.Time                `json:"verified_at,omitempty" db:"verified_at"`

	// Version is the last order event folded into this row.
	Version int `json:"version" db:"version"`
}

// Clone returns a deep copy so callers cannot mutate stored state.
func (o *OrderReadModel) Clone() *OrderReadModel {
	c := *o
	c.Items = append([]OrderItemReadModel(nil), o.Items...)
	c.Attempts = append([]PaymentAttemptReadModel(nil), o.Attempts...)
	if o.VerifiedAt != nil {
		t := *o.VerifiedAt
		c.VerifiedAt = &t
	}
	return &c
}
