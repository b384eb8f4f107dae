package payments

import (
	"context"

	"github.com/stripe/stripe-go/v84"
	"github.com/stripe/stripe-go/v84/checkout/session"
)

// Gateway is the subset of Stripe Checkout used by payment reconciliation.
type Gateway interface {
	GetSession(ctx context.Context, id string) (*stripe.CheckoutSession, error)
	ListLineItems(ctx context.Context, sessionID string) ([]*stripe.LineItem, error)
	CreateSession(ctx context.Context, params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)
}

type stripeGateway struct{}

// NewStripeGateway uses the package-level Stripe key configured by pkg/stripe.NewClient.
func NewStripeGateway() Gateway {
	return &stripeGateway{}
}

func (g *stripeGateway) GetSession(ctx context.Context, id string) (*stripe.CheckoutSession, error) {
	params := &stripe.CheckoutSessionParams{}
	params.Context = ctx
	return session.Get(id, params)
}

// ListLineItems returns at most two items; verification only needs to know
// whether there is exactly one.
func (g *stripeGateway) ListLineItems(ctx context.Context, sessionID string) ([]*stripe.LineItem, error) {
	params := &stripe.CheckoutSessionListLineItemsParams{Session: stripe.String(sessionID)}
	params.Context = ctx
	params.Limit = stripe.Int64(2)

	var items []*stripe.LineItem
	iter := session.ListLineItems(params)
	for iter.Next() {
		items = append(items, iter.LineItem())
		if len(items) > 1 {
			break
		}
	}
	if err := iter.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

func (g *stripeGateway) CreateSession(ctx context.Context, params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error) {
	if params != nil {
		params.Context = ctx
	}
	return session.New(params)
}

type unavailableGateway struct {
	err error
}

// NewUnavailableGateway fails every call with err. cmd/api uses it when Stripe
// is not configured so checkout reports the misconfiguration on use.
func NewUnavailableGateway(err error) Gateway {
	return unavailableGateway{err: err}
}

func (g unavailableGateway) GetSession(context.Context, string) (*stripe.CheckoutSession, error) {
	return nil, g.err
}

func (g unavailableGateway) ListLineItems(context.Context, string) ([]*stripe.LineItem, error) {
	return nil, g.err
}

func (g unavailableGateway) CreateSession(context.Context, *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error) {
	return nil, g.err
}
