package checkout

import (
	"context"
	"errors"
)

// MockEndpoint implements Endpoint for testing.
type MockEndpoint struct {
	CreateCheckoutSessionFunc func(ctx context.Context, accessToken string, req Request) (*Result, error)
}

// CreateCheckoutSession calls the configured function or fails.
func (m *MockEndpoint) CreateCheckoutSession(ctx context.Context, accessToken string, req Request) (*Result, error) {
	if m.CreateCheckoutSessionFunc != nil {
		return m.CreateCheckoutSessionFunc(ctx, accessToken, req)
	}
	return nil, errors.New("CreateCheckoutSession not configured")
}

var _ Endpoint = (*MockEndpoint)(nil)
