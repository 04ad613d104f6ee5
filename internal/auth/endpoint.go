package auth

import (
	"context"
	"errors"

	"storefront-sync/internal/model"
)

// SignOutScope selects which sessions the backend revokes.
type SignOutScope string

const (
	ScopeLocal  SignOutScope = "local"  // This session only
	ScopeGlobal SignOutScope = "global" // Every session of the user
)

// Endpoint is the hosted auth backend.
// Credential rejection and invalid refresh tokens are reported as *model.Error
// wrapping model.ErrAuth; anything else is a transport failure.
type Endpoint interface {
	SignUp(ctx context.Context, email, password string) (*model.AuthResult, error)
	SignInWithPassword(ctx context.Context, email, password string) (*model.AuthResult, error)
	RefreshSession(ctx context.Context, refreshToken string) (*model.Session, error)

	// SetSession adopts tokens obtained elsewhere (another tab or device).
	SetSession(ctx context.Context, accessToken, refreshToken string) (*model.Session, error)

	SignOut(ctx context.Context, accessToken string, scope SignOutScope) error
}

// Profile is the backing user-profile record.
type Profile struct {
	UserID      string `json:"id"`
	Email       string `json:"email"`
	DisplayName string `json:"display_name,omitempty"`
	Phone       string `json:"phone,omitempty"`
}

// ProfileDefaults seed a new profile on sign-up.
type ProfileDefaults struct {
	DisplayName string
	Phone       string
}

// LookupStatus distinguishes a found profile from a missing one.
type LookupStatus int

const (
	NotFound LookupStatus = iota
	Found
)

// ProfileLookup is the result of a profile fetch. NotFound is a normal branch,
// not an error.
type ProfileLookup struct {
	Status  LookupStatus
	Profile *Profile
}

// ErrProfileExists is returned by InsertProfile when the uniqueness constraint
// rejected a duplicate. Ensure treats it as success.
var ErrProfileExists = errors.New("profile already exists")

// ProfileStore reads and creates profile records.
type ProfileStore interface {
	GetProfile(ctx context.Context, accessToken, userID string) (ProfileLookup, error)
	InsertProfile(ctx context.Context, accessToken string, p Profile) error
}
