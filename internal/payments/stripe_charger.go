package payments

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v78"
	"github.com/stripe/stripe-go/v78/client"
)

// StripeLogger defines the logging contract for Stripe operations.
type StripeLogger func(ctx context.Context, event string, fields map[string]any)

type stripeIntentAPI interface {
	New(params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
}

type stripeRefundAPI interface {
	New(params *stripe.RefundParams) (*stripe.Refund, error)
}

// StripeChargerConfig configures the StripeCharger.
type StripeChargerConfig struct {
	APIKey  string
	Logger  StripeLogger
	Clock   func() time.Time
	Intents stripeIntentAPI
	Refunds stripeRefundAPI
}

// StripeCharger implements Charger by creating and confirming Payment
// Intents in a single call.
type StripeCharger struct {
	intents stripeIntentAPI
	refunds stripeRefundAPI
	clock   func() time.Time
	logger  StripeLogger
}

// NewStripeCharger constructs a Stripe-backed Charger.
func NewStripeCharger(cfg StripeChargerConfig) (*StripeCharger, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" && (cfg.Intents == nil || cfg.Refunds == nil) {
		return nil, errors.New("stripe: api key is required")
	}

	intents := cfg.Intents
	refunds := cfg.Refunds
	if intents == nil || refunds == nil {
		sc := client.New(apiKey, nil)
		intents = sc.PaymentIntents
		refunds = sc.Refunds
	}

	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &StripeCharger{
		intents: intents,
		refunds: refunds,
		clock:   func() time.Time { return clock().UTC() },
		logger:  logger,
	}, nil
}

// Charge creates and immediately confirms a Payment Intent for the given
// payment method.
func (c *StripeCharger) Charge(ctx context.Context, req ChargeRequest) (Charge, error) {
	if c == nil || c.intents == nil {
		return Charge{}, errors.New("stripe: charger not initialised")
	}
	if req.Amount <= 0 {
		return Charge{}, errors.New("stripe: amount must be positive")
	}
	method := strings.TrimSpace(req.PaymentMethodID)
	if method == "" {
		return Charge{}, errors.New("stripe: payment method is required")
	}

	params := &stripe.PaymentIntentParams{
		Amount:        stripe.Int64(req.Amount),
		Currency:      stripe.String(strings.ToLower(req.Currency)),
		PaymentMethod: stripe.String(method),
		Confirm:       stripe.Bool(true),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled:        stripe.Bool(true),
			AllowRedirects: stripe.String(string(stripe.PaymentIntentAutomaticPaymentMethodsAllowRedirectsNever)),
		},
	}
	params.Context = ctx
	if key := strings.TrimSpace(req.IdempotencyKey); key != "" {
		params.SetIdempotencyKey(key)
	}
	if email := strings.TrimSpace(req.CustomerEmail); email != "" {
		params.ReceiptEmail = stripe.String(email)
	}
	if len(req.Metadata) > 0 {
		params.Metadata = make(map[string]string, len(req.Metadata))
		for k, v := range req.Metadata {
			params.Metadata[k] = v
		}
	}

	intent, err := c.intents.New(params)
	if err != nil {
		var stripeErr *stripe.Error
		if errors.As(err, &stripeErr) && stripeErr.Type == stripe.ErrorTypeCard {
			c.logger(ctx, "payments.stripe.declined", map[string]any{
				"code": string(stripeErr.Code),
			})
			return Charge{}, ErrPaymentDeclined
		}
		return Charge{}, fmt.Errorf("stripe: create payment intent: %w", err)
	}

	c.logger(ctx, "payments.stripe.intent.created", map[string]any{
		"paymentIntent": intent.ID,
		"status":        intent.Status,
	})

	charge := stripeCharge(intent, c.clock())
	if charge.Status == StatusFailed {
		return charge, ErrPaymentDeclined
	}
	return charge, nil
}

// Refund reverses a previously captured Payment Intent.
func (c *StripeCharger) Refund(ctx context.Context, req RefundRequest) (Charge, error) {
	if c == nil || c.refunds == nil {
		return Charge{}, errors.New("stripe: charger not initialised")
	}
	intentID := strings.TrimSpace(req.IntentID)
	if intentID == "" {
		return Charge{}, errors.New("stripe: intent id is required")
	}

	params := &stripe.RefundParams{
		PaymentIntent: stripe.String(intentID),
	}
	params.Context = ctx
	if key := strings.TrimSpace(req.IdempotencyKey); key != "" {
		params.SetIdempotencyKey(key)
	}
	if req.Amount != nil {
		params.Amount = stripe.Int64(*req.Amount)
	}
	if reason := mapStripeRefundReason(req.Reason); reason != "" {
		params.Reason = stripe.String(reason)
	}

	refund, err := c.refunds.New(params)
	if err != nil {
		return Charge{}, fmt.Errorf("stripe: refund payment intent: %w", err)
	}

	c.logger(ctx, "payments.stripe.intent.refunded", map[string]any{
		"paymentIntent": intentID,
		"refund":        refund.ID,
	})

	return Charge{
		IntentID:  intentID,
		Provider:  "stripe",
		Status:    StatusSucceeded,
		Amount:    refund.Amount,
		Currency:  strings.ToUpper(string(refund.Currency)),
		CreatedAt: c.clock(),
	}, nil
}

func stripeCharge(intent *stripe.PaymentIntent, now time.Time) Charge {
	if intent == nil {
		return Charge{}
	}

	status := StatusPending
	switch intent.Status {
	case stripe.PaymentIntentStatusSucceeded:
		status = StatusSucceeded
	case stripe.PaymentIntentStatusCanceled:
		status = StatusFailed
	}

	return Charge{
		IntentID:  intent.ID,
		Provider:  "stripe",
		Status:    status,
		Amount:    intent.Amount,
		Currency:  strings.ToUpper(string(intent.Currency)),
		CreatedAt: now,
	}
}

func mapStripeRefundReason(reason string) string {
	switch strings.ToLower(strings.TrimSpace(reason)) {
	case string(stripe.RefundReasonDuplicate):
		return string(stripe.RefundReasonDuplicate)
	case string(stripe.RefundReasonFraudulent):
		return string(stripe.RefundReasonFraudulent)
	case string(stripe.RefundReasonRequestedByCustomer):
		return string(stripe.RefundReasonRequestedByCustomer)
	default:
		return ""
	}
}

var _ Charger = (*StripeCharger)(nil)
