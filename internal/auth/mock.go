package auth

import (
	"context"
	"errors"

	"storefront-sync/internal/model"
)

// MockEndpoint implements Endpoint for testing.
// Each method can be configured via function fields.
type MockEndpoint struct {
	SignUpFunc         func(ctx context.Context, email, password string) (*model.AuthResult, error)
	SignInFunc         func(ctx context.Context, email, password string) (*model.AuthResult, error)
	RefreshSessionFunc func(ctx context.Context, refreshToken string) (*model.Session, error)
	SetSessionFunc     func(ctx context.Context, accessToken, refreshToken string) (*model.Session, error)
	SignOutFunc        func(ctx context.Context, accessToken string, scope SignOutScope) error
}

var errNotConfigured = errors.New("mock method not configured")

// SignUp calls the configured SignUpFunc or rejects the credentials.
func (m *MockEndpoint) SignUp(ctx context.Context, email, password string) (*model.AuthResult, error) {
	if m.SignUpFunc != nil {
		return m.SignUpFunc(ctx, email, password)
	}
	return nil, model.NewAuthError("SIGN_UP_FAILED", "sign-up rejected", errNotConfigured)
}

// SignInWithPassword calls the configured SignInFunc or rejects the credentials.
func (m *MockEndpoint) SignInWithPassword(ctx context.Context, email, password string) (*model.AuthResult, error) {
	if m.SignInFunc != nil {
		return m.SignInFunc(ctx, email, password)
	}
	return nil, model.NewAuthError("INVALID_CREDENTIALS", "invalid login credentials", errNotConfigured)
}

// RefreshSession calls the configured RefreshSessionFunc or rejects the token.
func (m *MockEndpoint) RefreshSession(ctx context.Context, refreshToken string) (*model.Session, error) {
	if m.RefreshSessionFunc != nil {
		return m.RefreshSessionFunc(ctx, refreshToken)
	}
	return nil, model.NewAuthError("INVALID_REFRESH_TOKEN", "refresh token rejected", errNotConfigured)
}

// SetSession calls the configured SetSessionFunc or rejects the tokens.
func (m *MockEndpoint) SetSession(ctx context.Context, accessToken, refreshToken string) (*model.Session, error) {
	if m.SetSessionFunc != nil {
		return m.SetSessionFunc(ctx, accessToken, refreshToken)
	}
	return nil, model.NewAuthError("INVALID_SESSION", "session rejected", errNotConfigured)
}

// SignOut calls the configured SignOutFunc or succeeds.
func (m *MockEndpoint) SignOut(ctx context.Context, accessToken string, scope SignOutScope) error {
	if m.SignOutFunc != nil {
		return m.SignOutFunc(ctx, accessToken, scope)
	}
	return nil
}

// MockProfileStore implements ProfileStore for testing.
type MockProfileStore struct {
	GetProfileFunc    func(ctx context.Context, accessToken, userID string) (ProfileLookup, error)
	InsertProfileFunc func(ctx context.Context, accessToken string, p Profile) error
}

// GetProfile calls the configured GetProfileFunc or reports NotFound.
func (m *MockProfileStore) GetProfile(ctx context.Context, accessToken, userID string) (ProfileLookup, error) {
	if m.GetProfileFunc != nil {
		return m.GetProfileFunc(ctx, accessToken, userID)
	}
	return ProfileLookup{Status: NotFound}, nil
}

// InsertProfile calls the configured InsertProfileFunc or succeeds.
func (m *MockProfileStore) InsertProfile(ctx context.Context, accessToken string, p Profile) error {
	if m.InsertProfileFunc != nil {
		return m.InsertProfileFunc(ctx, accessToken, p)
	}
	return nil
}

// Compile-time interface checks.
var (
	_ Endpoint     = (*MockEndpoint)(nil)
	_ ProfileStore = (*MockProfileStore)(nil)
)
