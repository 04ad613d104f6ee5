package rest

import (
	"context"
	"fmt"
	"net/http"

	"storefront-sync/internal/checkout"
)

// CreateCheckoutSession calls the checkout edge function.
func (c *Client) CreateCheckoutSession(ctx context.Context, accessToken string, in checkout.Request) (*checkout.Result, error) {
	req, err := c.newRequest(ctx, http.MethodPost, pathCheckout, nil, in, accessToken)
	if err != nil {
		return nil, fmt.Errorf("creating checkout request: %w", err)
	}

	var result checkout.Result
	if err := c.do(req, serviceCheckout, &result); err != nil {
		return nil, err
	}
	return &result, nil
}
