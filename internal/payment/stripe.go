package payment

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v81"
	"github.com/stripe/stripe-go/v81/client"
	"go.uber.org/zap"
)

// StripeGateway charges through Stripe PaymentIntents.
type StripeGateway struct {
	api    *client.API
	logger *zap.Logger
}

func NewStripeGateway(secretKey string, logger *zap.Logger) *StripeGateway {
	api := &client.API{}
	api.Init(secretKey, nil)
	return &StripeGateway{api: api, logger: logger}
}

// NewStripeGatewayWithBackends targets custom backends (tests, stripe-mock).
func NewStripeGatewayWithBackends(secretKey string, backends *stripe.Backends, logger *zap.Logger) *StripeGateway {
	api := &client.API{}
	api.Init(secretKey, backends)
	return &StripeGateway{api: api, logger: logger}
}

func (g *StripeGateway) Name() string { return "stripe" }

func (g *StripeGateway) Charge(ctx context.Context, c Charge) (Result, error) {
	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(MinorUnits(c.Amount)),
		Currency: stripe.String(strings.ToLower(c.Currency)),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled:        stripe.Bool(true),
			AllowRedirects: stripe.String("never"),
		},
	}
	params.Context = ctx
	if c.Description != "" {
		params.Description = stripe.String(c.Description)
	}
	if c.PaymentMethodID != "" {
		params.PaymentMethod = stripe.String(c.PaymentMethodID)
		params.Confirm = stripe.Bool(true)
	}
	if c.OrderID != "" {
		params.AddMetadata("order_id", c.OrderID)
	}
	if c.IdempotencyKey != "" {
		params.SetIdempotencyKey(c.IdempotencyKey)
	}

	pi, err := g.api.PaymentIntents.New(params)
	if err != nil {
		g.logger.Error("stripe charge failed", zap.String("order_id", c.OrderID), zap.Error(err))
		return Result{}, fmt.Errorf("stripe: create payment intent: %w", err)
	}
	return intentResult(pi), nil
}

func (g *StripeGateway) Status(ctx context.Context, transactionID string) (Result, error) {
	params := &stripe.PaymentIntentParams{}
	params.Context = ctx
	pi, err := g.api.PaymentIntents.Get(transactionID, params)
	if err != nil {
		return Result{}, fmt.Errorf("stripe: get payment intent: %w", err)
	}
	return intentResult(pi), nil
}

func (g *StripeGateway) Refund(ctx context.Context, transactionID string, amount decimal.Decimal) error {
	params := &stripe.RefundParams{
		PaymentIntent: stripe.String(transactionID),
		Amount:        stripe.Int64(MinorUnits(amount)),
	}
	params.Context = ctx
	r, err := g.api.Refunds.New(params)
	if err != nil {
		return fmt.Errorf("stripe: refund: %w", err)
	}
	g.logger.Info("stripe refund created", zap.String("refund_id", r.ID), zap.String("payment_intent", transactionID))
	return nil
}

func intentResult(pi *stripe.PaymentIntent) Result {
	res := Result{TransactionID: pi.ID}
	switch pi.Status {
	case stripe.PaymentIntentStatusSucceeded:
		res.Status = StatusCompleted
	case stripe.PaymentIntentStatusCanceled:
		res.Status = StatusFailed
		res.FailureReason = string(pi.CancellationReason)
	default:
		res.Status = StatusPending
	}
	if pi.LastPaymentError != nil && pi.LastPaymentError.Msg != "" {
		res.FailureReason = pi.LastPaymentError.Msg
	}
	return res
}
