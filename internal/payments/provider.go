// Package payments creates iDEAL payment links through Stripe and applies
// Stripe webhook events to payment links and subscriptions.
package payments

import (
	"context"
	"fmt"
	"strconv"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
)

const defaultProductName = "Betaling"

// LinkRequest describes a one-off payment link.
type LinkRequest struct {
	AmountCents int64
	Description string
	Phone       string
	AccountID   string
}

// CreatedLink is what the provider returns for a new payment link.
type CreatedLink struct {
	ID  string
	URL string
}

// Provider creates hosted payment links.
type Provider interface {
	CreatePaymentLink(ctx context.Context, req LinkRequest) (*CreatedLink, error)
}

// StripeProvider creates a product, a EUR price and a payment link accepting
// iDEAL and card, redirecting to the app after completion.
type StripeProvider struct {
	api         *client.API
	redirectURL string
}

// NewStripeProvider uses the default Stripe backends when backends is nil.
func NewStripeProvider(secretKey, appURL string, backends *stripe.Backends) *StripeProvider {
	return &StripeProvider{
		api:         client.New(secretKey, backends),
		redirectURL: appURL + "/betaald?success=true",
	}
}

func (p *StripeProvider) CreatePaymentLink(ctx context.Context, req LinkRequest) (*CreatedLink, error) {
	name := req.Description
	if name == "" {
		name = defaultProductName
	}

	productParams := &stripe.ProductParams{Name: stripe.String(name)}
	productParams.Context = ctx
	product, err := p.api.Products.New(productParams)
	if err != nil {
		return nil, fmt.Errorf("create stripe product: %w", err)
	}

	priceParams := &stripe.PriceParams{
		Product:    stripe.String(product.ID),
		UnitAmount: stripe.Int64(req.AmountCents),
		Currency:   stripe.String(string(stripe.CurrencyEUR)),
	}
	priceParams.Context = ctx
	price, err := p.api.Prices.New(priceParams)
	if err != nil {
		return nil, fmt.Errorf("create stripe price: %w", err)
	}

	linkParams := &stripe.PaymentLinkParams{
		LineItems: []*stripe.PaymentLinkLineItemParams{
			{Price: stripe.String(price.ID), Quantity: stripe.Int64(1)},
		},
		PaymentMethodTypes: stripe.StringSlice([]string{"ideal", "card"}),
		AfterCompletion: &stripe.PaymentLinkAfterCompletionParams{
			Type: stripe.String("redirect"),
			Redirect: &stripe.PaymentLinkAfterCompletionRedirectParams{
				URL: stripe.String(p.redirectURL),
			},
		},
	}
	linkParams.Context = ctx
	linkParams.AddMetadata("amount_cents", strconv.FormatInt(req.AmountCents, 10))
	linkParams.AddMetadata("description", req.Description)
	linkParams.AddMetadata("phone", req.Phone)
	linkParams.AddMetadata("account_id", req.AccountID)

	link, err := p.api.PaymentLinks.New(linkParams)
	if err != nil {
		return nil, fmt.Errorf("create stripe payment link: %w", err)
	}
	return &CreatedLink{ID: link.ID, URL: link.URL}, nil
}
