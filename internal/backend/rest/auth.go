package rest

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"storefront-sync/internal/auth"
	"storefront-sync/internal/model"
)

// tokenResponse is returned by sign-up, password sign-in and refresh. Sign-up
// with email confirmation enabled returns the bare user instead.
type tokenResponse struct {
	AccessToken  string   `json:"access_token"`
	RefreshToken string   `json:"refresh_token"`
	ExpiresIn    int64    `json:"expires_in"`
	ExpiresAt    int64    `json:"expires_at"`
	User         *userDTO `json:"user"`

	// Bare user fields.
	ID    string `json:"id"`
	Email string `json:"email"`
}

type userDTO struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

type credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// SignUp registers a new account.
func (c *Client) SignUp(ctx context.Context, email, password string) (*model.AuthResult, error) {
	req, err := c.newRequest(ctx, http.MethodPost, pathSignUp, nil, credentials{email, password}, "")
	if err != nil {
		return nil, fmt.Errorf("creating sign-up request: %w", err)
	}

	var resp tokenResponse
	if err := c.do(req, serviceAuth, &resp); err != nil {
		return nil, err
	}
	return resp.result()
}

// SignInWithPassword exchanges email and password for a session.
func (c *Client) SignInWithPassword(ctx context.Context, email, password string) (*model.AuthResult, error) {
	query := url.Values{"grant_type": {"password"}}
	req, err := c.newRequest(ctx, http.MethodPost, pathToken, query, credentials{email, password}, "")
	if err != nil {
		return nil, fmt.Errorf("creating sign-in request: %w", err)
	}

	var resp tokenResponse
	if err := c.do(req, serviceAuth, &resp); err != nil {
		return nil, err
	}
	result, err := resp.result()
	if err != nil {
		return nil, err
	}
	if result.Session == nil {
		return nil, model.NewAuthError("NO_SESSION", "sign-in returned no session", nil)
	}
	return result, nil
}

// RefreshSession exchanges a refresh token for a new session.
func (c *Client) RefreshSession(ctx context.Context, refreshToken string) (*model.Session, error) {
	if refreshToken == "" {
		return nil, model.NewAuthError("REFRESH_TOKEN_MISSING", "no refresh token", nil)
	}
	query := url.Values{"grant_type": {"refresh_token"}}
	body := map[string]string{"refresh_token": refreshToken}
	req, err := c.newRequest(ctx, http.MethodPost, pathToken, query, body, "")
	if err != nil {
		return nil, fmt.Errorf("creating refresh request: %w", err)
	}

	var resp tokenResponse
	if err := c.do(req, serviceAuth, &resp); err != nil {
		return nil, err
	}
	result, err := resp.result()
	if err != nil {
		return nil, err
	}
	if result.Session == nil {
		return nil, model.NewAuthError("NO_SESSION", "refresh returned no session", nil)
	}
	return result.Session, nil
}

// SetSession adopts a token pair obtained elsewhere. The access token is
// validated against the user endpoint; an expired one is refreshed.
func (c *Client) SetSession(ctx context.Context, accessToken, refreshToken string) (*model.Session, error) {
	if accessToken == "" {
		return nil, model.NewAuthError("ACCESS_TOKEN_MISSING", "no access token", nil)
	}

	expiresAt, ok := tokenExpiry(accessToken)
	if !ok || time.Now().Unix() >= expiresAt {
		return c.RefreshSession(ctx, refreshToken)
	}

	req, err := c.newRequest(ctx, http.MethodGet, pathUser, nil, nil, accessToken)
	if err != nil {
		return nil, fmt.Errorf("creating user request: %w", err)
	}
	var user userDTO
	if err := c.do(req, serviceAuth, &user); err != nil {
		return nil, err
	}
	if user.ID == "" {
		return nil, model.NewAuthError("INVALID_TOKEN", "token has no user", nil)
	}

	return &model.Session{
		UserID:       user.ID,
		Email:        user.Email,
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		ExpiresAt:    expiresAt,
	}, nil
}

// SignOut revokes the session on the backend.
func (c *Client) SignOut(ctx context.Context, accessToken string, scope auth.SignOutScope) error {
	if scope == "" {
		scope = auth.ScopeLocal
	}
	query := url.Values{"scope": {string(scope)}}
	req, err := c.newRequest(ctx, http.MethodPost, pathLogout, query, nil, accessToken)
	if err != nil {
		return fmt.Errorf("creating sign-out request: %w", err)
	}
	return c.do(req, serviceAuth, nil)
}

func (r tokenResponse) result() (*model.AuthResult, error) {
	user := model.User{ID: r.ID, Email: r.Email}
	if r.User != nil {
		user = model.User{ID: r.User.ID, Email: r.User.Email}
	}
	if user.ID == "" {
		return nil, model.NewUpstreamError(serviceAuth, http.StatusOK, fmt.Errorf("response has no user"))
	}

	result := &model.AuthResult{User: user}
	if r.AccessToken == "" {
		return result, nil
	}

	expiresAt := r.ExpiresAt
	if expiresAt == 0 && r.ExpiresIn > 0 {
		expiresAt = time.Now().Unix() + r.ExpiresIn
	}
	result.Session = &model.Session{
		UserID:       user.ID,
		Email:        user.Email,
		AccessToken:  r.AccessToken,
		RefreshToken: r.RefreshToken,
		ExpiresAt:    expiresAt,
	}
	return result, nil
}

// tokenExpiry reads the exp claim of a JWT access token without verifying it.
// The backend verifies the signature on every call.
func tokenExpiry(token string) (int64, bool) {
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return 0, false
	}
	payload, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		return 0, false
	}
	var claims struct {
		Exp int64 `json:"exp"`
	}
	if err := json.Unmarshal(payload, &claims); err != nil || claims.Exp == 0 {
		return 0, false
	}
	return claims.Exp, true
}
