package infrastructure

import (
	"context"

	"github.com/stripe/stripe-go/v79"
	checkoutsession "github.com/stripe/stripe-go/v79/checkout/session"

	"zia_backend/internal/interfaces"
)

// StripeClient creates hosted checkout sessions. The core only needs the
// resulting URL to embed in a ui event.
type StripeClient struct {
	successURL string
	cancelURL  string
}

func NewStripeClient(secretKey, successURL, cancelURL string) *StripeClient {
	stripe.Key = secretKey
	if successURL == "" {
		successURL = "https://zia.app/gracias"
	}
	if cancelURL == "" {
		cancelURL = "https://zia.app/"
	}
	return &StripeClient{successURL: successURL, cancelURL: cancelURL}
}

func (s *StripeClient) CreateCheckoutSession(_ context.Context, priceID, mode, sessionID, tenantSlug string) (string, error) {
	checkoutMode := stripe.CheckoutSessionModePayment
	if mode == "subscription" {
		checkoutMode = stripe.CheckoutSessionModeSubscription
	}

	params := &stripe.CheckoutSessionParams{
		Mode: stripe.String(string(checkoutMode)),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				Price:    stripe.String(priceID),
				Quantity: stripe.Int64(1),
			},
		},
		SuccessURL:        stripe.String(s.successURL),
		CancelURL:         stripe.String(s.cancelURL),
		ClientReferenceID: stripe.String(sessionID),
	}
	params.AddMetadata("tenant_slug", tenantSlug)

	sess, err := checkoutsession.New(params)
	if err != nil {
		return "", err
	}
	return sess.URL, nil
}

var _ interfaces.CheckoutProvider = (*StripeClient)(nil)
