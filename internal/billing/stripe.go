package billing

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/client"
)

type StripeConfig struct {
	SecretKey     string
	Currency      string
	PaymentMethod string
}

// StripeGateway charges through PaymentIntents and reverses through Refunds.
type StripeGateway struct {
	api           *client.API
	currency      string
	paymentMethod string
}

func NewStripeGateway(cfg StripeConfig) (*StripeGateway, error) {
	if strings.TrimSpace(cfg.SecretKey) == "" {
		return nil, errors.New("stripe secret key is required")
	}
	currency := strings.ToLower(cfg.Currency)
	if currency == "" {
		currency = string(stripe.CurrencyUSD)
	}
	pm := cfg.PaymentMethod
	if pm == "" {
		pm = "pm_card_visa"
	}

	sc := &client.API{}
	sc.Init(cfg.SecretKey, nil)
	return &StripeGateway{api: sc, currency: currency, paymentMethod: pm}, nil
}

func (g *StripeGateway) Charge(ctx context.Context, req GatewayRequest) (GatewayAck, error) {
	if req.Refund {
		return g.refund(ctx, req)
	}

	params := &stripe.PaymentIntentParams{
		Amount:        stripe.Int64(req.Amount),
		Currency:      stripe.String(g.currency),
		Description:   stripe.String(req.Description),
		PaymentMethod: stripe.String(g.paymentMethod),
		Confirm:       stripe.Bool(true),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled:        stripe.Bool(true),
			AllowRedirects: stripe.String("never"),
		},
	}
	params.Context = ctx
	params.IdempotencyKey = stripe.String(req.IdempotencyKey)

	pi, err := g.api.PaymentIntents.New(params)
	if err != nil {
		return GatewayAck{}, fmt.Errorf("stripe payment intent: %w", err)
	}
	if pi.Status != stripe.PaymentIntentStatusSucceeded {
		return GatewayAck{}, fmt.Errorf("stripe payment intent %s ended in status %s", pi.ID, pi.Status)
	}
	return GatewayAck{Reference: pi.ID}, nil
}

func (g *StripeGateway) refund(ctx context.Context, req GatewayRequest) (GatewayAck, error) {
	if req.OriginalRef == "" {
		return GatewayAck{}, errors.New("stripe refund needs the original payment intent")
	}

	params := &stripe.RefundParams{
		PaymentIntent: stripe.String(req.OriginalRef),
		Amount:        stripe.Int64(req.Amount),
	}
	params.Context = ctx
	params.IdempotencyKey = stripe.String(req.IdempotencyKey)

	re, err := g.api.Refunds.New(params)
	if err != nil {
		return GatewayAck{}, fmt.Errorf("stripe refund: %w", err)
	}
	return GatewayAck{Reference: re.ID}, nil
}
