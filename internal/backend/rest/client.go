// Package rest is the HTTP client for the hosted storefront backend: the auth
// service, the row API for cart, wishlist and profile tables, and the edge
// function that creates checkout sessions.
package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/dunglas/httpsfv"

	"storefront-sync/internal/auth"
	"storefront-sync/internal/checkout"
	"storefront-sync/internal/collection"
	"storefront-sync/internal/model"
	"storefront-sync/internal/transport"
)

// =============================================================================
// HOSTED BACKEND CLIENT
// =============================================================================
//
// Every request carries the project's anon key in the apikey header. Calls made
// on behalf of a signed-in user add the user's access token as a Bearer token;
// row-level security on the backend scopes rows to that user, and every row
// query additionally filters on user_id.
// =============================================================================

const (
	pathSignUp   = "/auth/v1/signup"
	pathToken    = "/auth/v1/token"
	pathUser     = "/auth/v1/user"
	pathLogout   = "/auth/v1/logout"
	pathRows     = "/rest/v1/"
	pathCheckout = "/functions/v1/create-checkout-session"

	userAgent = "storefront-sync/1.0"

	serviceAuth     = "auth"
	serviceRows     = "rows"
	serviceCheckout = "checkout"

	defaultTimeout = 30 * time.Second
)

// Config configures the backend client.
type Config struct {
	BaseURL string
	AnonKey string

	// Timeout bounds each request. Default: 30s.
	Timeout time.Duration

	// ChromeTLS presents a browser TLS fingerprint to the backend.
	ChromeTLS bool

	// HTTPClient overrides the client built from Timeout and ChromeTLS.
	HTTPClient *http.Client
}

// Client talks to the hosted backend.
// Implements auth.Endpoint, auth.ProfileStore, collection.Endpoint and
// checkout.Endpoint.
type Client struct {
	httpClient *http.Client
	baseURL    string
	anonKey    string
}

var (
	_ auth.Endpoint       = (*Client)(nil)
	_ auth.ProfileStore   = (*Client)(nil)
	_ collection.Endpoint = (*Client)(nil)
	_ checkout.Endpoint   = (*Client)(nil)
)

// New creates a backend client.
func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("backend URL is required")
	}
	if _, err := url.Parse(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("invalid backend URL: %w", err)
	}
	if cfg.AnonKey == "" {
		return nil, fmt.Errorf("backend anon key is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
		if cfg.ChromeTLS {
			httpClient.Transport = transport.NewChromeTransport(cfg.Timeout)
		}
	}

	return &Client{
		httpClient: httpClient,
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		anonKey:    cfg.AnonKey,
	}, nil
}

// === HTTP Helpers ===

// newRequest creates a JSON request. accessToken may be empty for calls made
// before a session exists; the anon key is sent as the bearer then.
func (c *Client) newRequest(ctx context.Context, method, path string, query url.Values, body any, accessToken string) (*http.Request, error) {
	var bodyReader io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshaling request: %w", err)
		}
		bodyReader = bytes.NewReader(jsonBody)
	}

	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, target, bodyReader)
	if err != nil {
		return nil, err
	}

	if accessToken == "" {
		accessToken = c.anonKey
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("apikey", c.anonKey)
	req.Header.Set("Authorization", "Bearer "+accessToken)

	return req, nil
}

// do executes the request and decodes the response into result.
// service names the backend part in errors ("auth", "rows", "checkout").
func (c *Client) do(req *http.Request, service string, result any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return model.NewUpstreamError(service, 0, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return model.NewUpstreamError(service, 0, fmt.Errorf("reading response: %w", err))
	}

	if resp.StatusCode >= 400 {
		return parseError(service, resp, body)
	}

	if result != nil && len(body) > 0 {
		if err := json.Unmarshal(body, result); err != nil {
			return model.NewUpstreamError(service, resp.StatusCode, fmt.Errorf("parsing response: %w", err))
		}
	}
	return nil
}

// errorBody covers the error shapes of the auth service, the row API and
// edge functions.
type errorBody struct {
	Code             any    `json:"code"` // number from auth, string from rows
	ErrorCode        string `json:"error_code"`
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
	Message          string `json:"message"`
	Msg              string `json:"msg"`
	Details          string `json:"details"`
}

func (e errorBody) text() string {
	for _, s := range []string{e.Msg, e.Message, e.ErrorDescription, e.Error} {
		if s != "" {
			return s
		}
	}
	return ""
}

// parseError converts a backend error response to *model.Error.
// 4xx responses from the auth service are credential problems; everything
// else is an upstream failure that keeps the status code for classification.
func parseError(service string, resp *http.Response, body []byte) error {
	var eb errorBody
	_ = json.Unmarshal(body, &eb) // Best effort parse

	msg := eb.text()
	if msg == "" {
		msg = http.StatusText(resp.StatusCode)
	}
	cause := fmt.Errorf("status %d: %s", resp.StatusCode, msg)

	if service == serviceAuth && resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
		code := "AUTH_ERROR"
		if eb.ErrorCode != "" {
			code = strings.ToUpper(eb.ErrorCode)
		}
		e := model.NewAuthError(code, msg, cause)
		e.StatusCode = resp.StatusCode
		return e
	}

	e := model.NewUpstreamError(service, resp.StatusCode, &rowError{code: codeString(eb.Code), cause: cause})
	if resp.StatusCode == http.StatusTooManyRequests {
		e.RetryAfter = retryAfter(resp.Header)
	}
	return e
}

func codeString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.Itoa(int(t))
	}
	return ""
}

// rowError carries the database error code reported by the row API
// (e.g. 23505 for a unique violation).
type rowError struct {
	code  string
	cause error
}

func (e *rowError) Error() string { return e.cause.Error() }
func (e *rowError) Unwrap() error { return e.cause }

// isUniqueViolation reports whether err is a 409 from the row API.
func isUniqueViolation(err error) bool {
	var re *rowError
	if errors.As(err, &re) && re.code == "23505" {
		return true
	}
	var me *model.Error
	return errors.As(err, &me) && me.StatusCode == http.StatusConflict
}

// retryAfter reads the backoff window announced with a 429.
// Prefers the structured RateLimit header ("default";r=0;t=30), then Retry-After.
func retryAfter(h http.Header) time.Duration {
	if v := h.Get("RateLimit"); v != "" {
		if list, err := httpsfv.UnmarshalList([]string{v}); err == nil {
			for _, member := range list {
				item, ok := member.(httpsfv.Item)
				if !ok || item.Params == nil {
					continue
				}
				if t, ok := item.Params.Get("t"); ok {
					if secs, ok := t.(int64); ok && secs >= 0 {
						return time.Duration(secs) * time.Second
					}
				}
			}
		}
	}
	if v := h.Get("Retry-After"); v != "" {
		if secs, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && secs >= 0 {
			return time.Duration(secs) * time.Second
		}
	}
	return 0
}
