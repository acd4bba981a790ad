// Package payments wraps stripe-go for the fare hold/capture/release
// flow around a trip: hold on driver accept, capture on completion,
// release on cancellation.
package payments

import (
	"context"

	stripe "github.com/stripe/stripe-go/v74"
	"github.com/stripe/stripe-go/v74/paymentintent"
)

type StripeHolds struct{}

// NewStripeHolds initializes the stripe client with the given API key.
func NewStripeHolds(apiKey string) *StripeHolds {
	stripe.Key = apiKey
	return &StripeHolds{}
}

// Hold creates a PaymentIntent with capture_method=manual to reserve the
// estimated fare. Returns the PaymentIntent ID on success.
func (s *StripeHolds) Hold(ctx context.Context, amount int64, currency, customerID string) (string, error) {
	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(amount),
		Currency: stripe.String(currency),
	}
	if customerID != "" {
		params.Customer = stripe.String(customerID)
	}
	params.CaptureMethod = stripe.String(string(stripe.PaymentIntentCaptureMethodManual))
	pi, err := paymentintent.New(params)
	if err != nil {
		return "", err
	}
	return pi.ID, nil
}

// Capture finalizes a previously-held PaymentIntent after trip completion.
func (s *StripeHolds) Capture(ctx context.Context, holdID string) error {
	_, err := paymentintent.Capture(holdID, nil)
	return err
}

// Release cancels the hold, e.g. when the trip is cancelled.
func (s *StripeHolds) Release(ctx context.Context, holdID string) error {
	_, err := paymentintent.Cancel(holdID, nil)
	return err
}
