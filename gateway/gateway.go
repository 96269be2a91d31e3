package gateway

import (
	"context"
	"errors"
	"math"
)

var (
	// ErrUnavailable wraps transport failures and timeouts talking to the
	// payment provider. Callers surface it instead of hanging the request.
	ErrUnavailable = errors.New("payment gateway unavailable")

	// ErrSignatureInvalid is returned when a webhook payload does not carry a
	// valid signature. No mutation may be applied after this error.
	ErrSignatureInvalid = errors.New("webhook signature invalid")
)

// Intent and session statuses as reported by the provider.
const (
	IntentSucceeded  = "succeeded"
	IntentProcessing = "processing"
	IntentCanceled   = "canceled"

	SessionPaid = "paid"

	EventCheckoutCompleted = "checkout.session.completed"
)

// All monetary amounts cross the gateway boundary in integer minor units
// (cents). Decimal amounts exist only on our side of the boundary.

func MinorUnits(amount float64) int64 {
	return int64(math.Round(amount * 100))
}

func FromMinorUnits(n int64) float64 {
	return float64(n) / 100
}

type SessionParams struct {
	Amount      int64 // minor units
	Currency    string
	Name        string
	Description string
	SuccessURL  string
	CancelURL   string
	Metadata    map[string]string
}

type IntentParams struct {
	Amount   int64 // minor units
	Currency string
	Metadata map[string]string
}

type CheckoutSession struct {
	ID              string            `json:"id"`
	URL             string            `json:"url"`
	PaymentIntentID string            `json:"payment_intent"`
	PaymentStatus   string            `json:"payment_status"`
	Status          string            `json:"status"`
	AmountTotal     int64             `json:"amount_total"`
	Currency        string            `json:"currency"`
	Metadata        map[string]string `json:"metadata"`
}

type PaymentIntent struct {
	ID           string            `json:"id"`
	ClientSecret string            `json:"client_secret"`
	Status       string            `json:"status"`
	Amount       int64             `json:"amount"`
	Currency     string            `json:"currency"`
	Metadata     map[string]string `json:"metadata"`
}

// PaymentGateway is the outbound contract with the payment provider. The
// settlement engine depends on this interface; tests substitute a fake.
type PaymentGateway interface {
	CreateCheckoutSession(ctx context.Context, p SessionParams) (*CheckoutSession, error)
	CreatePaymentIntent(ctx context.Context, p IntentParams) (*PaymentIntent, error)
	RetrievePaymentIntent(ctx context.Context, id string) (*PaymentIntent, error)
	RetrieveCheckoutSession(ctx context.Context, id string) (*CheckoutSession, error)
}
