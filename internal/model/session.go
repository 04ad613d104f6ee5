// Package model defines the data structures shared by the session manager,
// the cart/wishlist reconcilers and the checkout dispatcher.
package model

import "time"

// Session is an authenticated backend session.
// Owned exclusively by the session manager; other components receive copies.
type Session struct {
	UserID       string `json:"user_id"`
	Email        string `json:"email,omitempty"`
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresAt    int64  `json:"expires_at"` // epoch seconds
	RememberMe   bool   `json:"remember_me"`
}

// Expiry returns the access token expiry as a time.
func (s *Session) Expiry() time.Time {
	return time.Unix(s.ExpiresAt, 0)
}

// Expired reports whether the access token has expired at now.
func (s *Session) Expired(now time.Time) bool {
	return !now.Before(s.Expiry())
}

// Clone returns a copy safe to hand outside the owning component.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	c := *s
	return &c
}

// User is the identity returned alongside a session by the auth endpoint.
type User struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

// AuthResult is the response of sign-up and sign-in.
// Session may be nil on sign-up when the backend requires email confirmation.
type AuthResult struct {
	User    User
	Session *Session
}

// AuthEvent names an auth state change.
type AuthEvent string

const (
	EventInitialSession AuthEvent = "INITIAL_SESSION"
	EventSignedIn       AuthEvent = "SIGNED_IN"
	EventSignedOut      AuthEvent = "SIGNED_OUT"
	EventTokenRefreshed AuthEvent = "TOKEN_REFRESHED"
)

// AuthStateChange is an auth event together with the session it carries.
// Session is nil for SIGNED_OUT and for INITIAL_SESSION with no stored session.
type AuthStateChange struct {
	Event   AuthEvent
	Session *Session
}

// SessionChange describes a transition observed by session listeners.
type SessionChange struct {
	Event    AuthEvent
	Previous *Session
	Current  *Session

	// Explicit is true when the user deliberately signed out.
	Explicit bool
}

// PreviousUserID returns the user id before the change, or "" for guest.
func (c SessionChange) PreviousUserID() string {
	if c.Previous == nil {
		return ""
	}
	return c.Previous.UserID
}

// CurrentUserID returns the user id after the change, or "" for guest.
func (c SessionChange) CurrentUserID() string {
	if c.Current == nil {
		return ""
	}
	return c.Current.UserID
}

// UserChanged reports whether the owning identity differs across the change.
func (c SessionChange) UserChanged() bool {
	return c.PreviousUserID() != c.CurrentUserID()
}
