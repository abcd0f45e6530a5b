package gateway

import (
	"context"

	"github.com/shopspring/decimal"
)

// Checkout session payment status as reported by the gateway.
const (
	PaymentStatusPaid   = "paid"
	PaymentStatusUnpaid = "unpaid"
)

// Payment intent status as reported by the gateway.
const (
	IntentStatusSucceeded = "succeeded"
	IntentStatusPending   = "pending"
	IntentStatusFailed    = "failed"
)

type CheckoutSessionParams struct {
	Amount     decimal.Decimal
	Currency   string
	CustomerID string
	SuccessURL string
	CancelURL  string

	// Metadata is echoed back by the gateway on completion. It is the only
	// way to correlate an asynchronous gateway event with a contract.
	Metadata map[string]string
}

type CheckoutSession struct {
	ID              string
	URL             string
	PaymentIntentID string
	PaymentStatus   string
	AmountTotal     decimal.Decimal
	Currency        string
	Metadata        map[string]string
}

type PaymentIntent struct {
	ID       string
	Status   string
	ChargeID string
	Amount   decimal.Decimal
	Currency string
}

type RefundParams struct {
	PaymentIntentID string
	Amount          decimal.Decimal
	Reason          string
}

type RefundResult struct {
	ID     string
	Status string
	Amount decimal.Decimal
}

// Gateway is the boundary to the external card-processing provider. The
// implementation is chosen once at process start; business logic never
// branches on which one it got.
type Gateway interface {
	CreateCheckoutSession(ctx context.Context, p CheckoutSessionParams) (*CheckoutSession, error)
	RetrieveSession(ctx context.Context, sessionID string) (*CheckoutSession, error)
	RetrievePaymentIntent(ctx context.Context, intentID string) (*PaymentIntent, error)
	Refund(ctx context.Context, p RefundParams) (*RefundResult, error)
	EnsureCustomer(ctx context.Context, ownerID, email string) (string, error)
	AttachPaymentMethod(ctx context.Context, customerID, paymentMethodID string) error
}
