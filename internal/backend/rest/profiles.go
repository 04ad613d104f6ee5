package rest

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"storefront-sync/internal/auth"
)

const pathProfiles = pathRows + "profiles"

// GetProfile looks up the profile of userID. A missing row is NotFound, not
// an error.
func (c *Client) GetProfile(ctx context.Context, accessToken, userID string) (auth.ProfileLookup, error) {
	query := url.Values{
		"select": {"*"},
		"id":     {"eq." + userID},
	}
	req, err := c.newRequest(ctx, http.MethodGet, pathProfiles, query, nil, accessToken)
	if err != nil {
		return auth.ProfileLookup{}, fmt.Errorf("creating profile request: %w", err)
	}

	var rows []auth.Profile
	if err := c.do(req, serviceRows, &rows); err != nil {
		return auth.ProfileLookup{}, err
	}
	if len(rows) == 0 {
		return auth.ProfileLookup{Status: auth.NotFound}, nil
	}
	return auth.ProfileLookup{Status: auth.Found, Profile: &rows[0]}, nil
}

// InsertProfile creates a profile row. A unique violation is reported as
// auth.ErrProfileExists.
func (c *Client) InsertProfile(ctx context.Context, accessToken string, p auth.Profile) error {
	req, err := c.newRequest(ctx, http.MethodPost, pathProfiles, nil, p, accessToken)
	if err != nil {
		return fmt.Errorf("creating profile insert request: %w", err)
	}
	req.Header.Set("Prefer", "return=minimal")

	if err := c.do(req, serviceRows, nil); err != nil {
		if isUniqueViolation(err) {
			return auth.ErrProfileExists
		}
		return err
	}
	return nil
}
