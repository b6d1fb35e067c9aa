package order

import "time"

const (
	EventOrderCreated           = "OrderCreated"
	EventOrderAwaitingPayment   = "OrderAwaitingPayment"
	EventPaymentAttemptRecorded = "PaymentAttemptRecorded"
	EventOrderVerified          = "OrderVerified"
	EventOrderFailed            = "OrderFailed"
	EventOrderCancelled         = "OrderCancelled"
)

// LineItem is a catalog-priced order line
type LineItem struct {
	ProductID string `json:"product_id"`
	Name      string `json:"name"`
	UnitPrice int64  `json:"unit_price"`
	Quantity  int    `json:"quantity"`
}

type Address struct {
	Country string `json:"country,omitempty"`
	State   string `json:"state,omitempty"`
	City    string `json:"city,omitempty"`
	ZipCode string `json:"zip_code,omitempty"`
	Address string `json:"address,omitempty"`
}

type Buyer struct {
	Name    string   `json:"name"`
	Email   string   `json:"email"`
	Phone   string   `json:"phone"`
	Address *Address `json:"address,omitempty"`
}

type Outcome string

const (
	OutcomePending                  Outcome = "Pending"
	OutcomeConfirmed                Outcome = "Confirmed"
	OutcomeSignatureInvalid         Outcome = "SignatureInvalid"
	OutcomeProcessorReportedFailure Outcome = "ProcessorReportedFailure"
	OutcomeBuyerCancelled           Outcome = "BuyerCancelled"
	OutcomeAmountMismatch           Outcome = "AmountMismatch"
)

// SecuritySensitive reports whether the outcome is evidence of tampering.
func (o Outcome) SecuritySensitive() bool {
	return o == OutcomeSignatureInvalid || o == OutcomeAmountMismatch
}

// PaymentAttempt is kept on the order for audit, including after it is terminal
type PaymentAttempt struct {
	PaymentRef string    `json:"payment_ref,omitempty"`
	Signature  string    `json:"signature,omitempty"`
	Outcome    Outcome   `json:"outcome"`
	Detail     string    `json:"detail,omitempty"`
	RecordedAt time.Time `json:"recorded_at"`
}

type OrderCreated struct {
	OrderRef  string     `json:"order_ref"`
	OrderID   string     `json:"order_id"`
	Items     []LineItem `json:"items"`
	Amount    int64      `json:"amount"`
	Currency  string     `json:"currency"`
	Buyer     Buyer      `json:"buyer"`
	CreatedAt time.Time  `json:"created_at"`
}

type OrderAwaitingPayment struct {
	OrderRef  string    `json:"order_ref"`
	ExpiresAt time.Time `json:"expires_at"`
	At        time.Time `json:"at"`
}

type PaymentAttemptRecorded struct {
	OrderRef string         `json:"order_ref"`
	Attempt  PaymentAttempt `json:"attempt"`
}

type OrderVerified struct {
	OrderRef   string         `json:"order_ref"`
	Attempt    PaymentAttempt `json:"attempt"`
	Amount     int64          `json:"amount"`
	Currency   string         `json:"currency"`
	VerifiedAt time.Time      `json:"verified_at"`
}

type OrderFailed struct {
	OrderRef string          `json:"order_ref"`
	Reason   string          `json:"reason"`
	Attempt  *PaymentAttempt `json:"attempt,omitempty"`
	FailedAt time.Time       `json:"failed_at"`
}

type OrderCancelled struct {
	OrderRef    string    `json:"order_ref"`
	Reason      string    `json:"reason"`
	CancelledAt time.Time `json:"cancelled_at"`
}

// Failure reasons carried by OrderFailed.
const (
	ReasonAmountMismatch = "amount_mismatch"
	ReasonExpired        = "expired"
)
