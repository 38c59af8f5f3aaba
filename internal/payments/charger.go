package payments

import (
	"context"
	"errors"
	"time"
)

// Status enumerates the normalised payment states shared across providers.
type Status string

const (
	// StatusPending indicates the payment is awaiting customer action or PSP confirmation.
	StatusPending Status = "pending"
	// StatusSucceeded indicates the PSP reports the payment as successfully captured.
	StatusSucceeded Status = "succeeded"
	// StatusFailed indicates the PSP reports a failure and no further action is possible.
	StatusFailed Status = "failed"
)

// ErrPaymentDeclined is returned when the PSP rejects the charge.
var ErrPaymentDeclined = errors.New("payments: declined")

// ChargeRequest captures the payload required to charge a card at checkout.
type ChargeRequest struct {
	Amount          int64
	Currency        string
	PaymentMethodID string
	CustomerEmail   string
	IdempotencyKey  string
	Metadata        map[string]string
}

// Charge normalises PSP specific fields for storage alongside the order.
type Charge struct {
	IntentID  string
	Provider  string
	Status    Status
	Amount    int64
	Currency  string
	CreatedAt time.Time
}

// RefundRequest defines a PSP refund attempt.
type RefundRequest struct {
	IntentID       string
	Amount         *int64
	Reason         string
	IdempotencyKey string
}

// Charger defines the contract for PSP adapters to implement.
type Charger interface {
	Charge(ctx context.Context, req ChargeRequest) (Charge, error)
	Refund(ctx context.Context, req RefundRequest) (Charge, error)
}
