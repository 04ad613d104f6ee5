// Package handler provides the HTTP and MCP surface of the storefront sync
// service: session, cart, wishlist and checkout operations.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"storefront-sync/internal/auth"
	"storefront-sync/internal/checkout"
	"storefront-sync/internal/collection"
	"storefront-sync/internal/model"
)

// Sessions is the session manager as seen by the handlers.
// Implemented by auth.Manager.
type Sessions interface {
	SignUp(ctx context.Context, email, password string, defaults auth.ProfileDefaults) (*model.AuthResult, error)
	SignIn(ctx context.Context, email, password string, rememberMe bool) (*model.Session, error)
	SignOut(ctx context.Context)
	Current() *model.Session
	State() auth.State
	Profile(ctx context.Context) (*auth.Profile, error)
}

// Collection is a cart or wishlist as seen by the handlers.
// Implemented by collection.Reconciler.
type Collection interface {
	Add(ctx context.Context, in collection.AddInput) (model.LineItem, error)
	UpdateQuantity(ctx context.Context, itemID string, quantity int) error
	Remove(ctx context.Context, itemID string) error
	Clear(ctx context.Context) error
	Toggle(ctx context.Context, in collection.AddInput) (bool, error)
	Refresh(ctx context.Context) error
	Snapshot() model.Snapshot
	Contains(productID, variantID string) bool
}

// Checkout creates checkout sessions. Implemented by checkout.Dispatcher.
type Checkout interface {
	CreateCheckout(ctx context.Context, discountCode string) (*checkout.Result, error)
}

// Status reports whether the change feed is connected. Optional.
type Status interface {
	Connected() bool
}

var (
	_ Sessions   = (*auth.Manager)(nil)
	_ Collection = (*collection.Reconciler)(nil)
	_ Checkout   = (*checkout.Dispatcher)(nil)
)

// Config holds handler dependencies.
type Config struct {
	Sessions Sessions
	Cart     Collection
	Wishlist Collection
	Checkout Checkout
	Realtime Status
	Logger   *slog.Logger
}

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	sessions Sessions
	cart     Collection
	wishlist Collection
	checkout Checkout
	realtime Status
	logger   *slog.Logger
}

// New creates a Handler.
func New(cfg Config) *Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		sessions: cfg.Sessions,
		cart:     cfg.Cart,
		wishlist: cfg.Wishlist,
		checkout: cfg.Checkout,
		realtime: cfg.Realtime,
		logger:   logger,
	}
}

// RegisterRoutes registers all HTTP routes with the given ServeMux.
// Uses Go 1.22+ method routing patterns.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	// Session
	mux.HandleFunc("GET /session", h.handleGetSession)
	mux.HandleFunc("POST /session", h.handleSignIn)
	mux.HandleFunc("POST /session/signup", h.handleSignUp)
	mux.HandleFunc("DELETE /session", h.handleSignOut)
	mux.HandleFunc("GET /profile", h.handleGetProfile)

	// Cart
	mux.HandleFunc("GET /cart", h.handleGetCollection(h.cart))
	mux.HandleFunc("POST /cart/items", h.handleAddItem(h.cart))
	mux.HandleFunc("PATCH /cart/items/{id}", h.handleUpdateQuantity)
	mux.HandleFunc("DELETE /cart/items/{id}", h.handleRemoveItem(h.cart))
	mux.HandleFunc("DELETE /cart", h.handleClear(h.cart))
	mux.HandleFunc("POST /cart/refresh", h.handleRefresh(h.cart))
	mux.HandleFunc("GET /cart/contains", h.handleContains(h.cart))

	// Wishlist
	mux.HandleFunc("GET /wishlist", h.handleGetCollection(h.wishlist))
	mux.HandleFunc("POST /wishlist/items", h.handleAddItem(h.wishlist))
	mux.HandleFunc("POST /wishlist/toggle", h.handleToggle)
	mux.HandleFunc("DELETE /wishlist/items/{id}", h.handleRemoveItem(h.wishlist))
	mux.HandleFunc("DELETE /wishlist", h.handleClear(h.wishlist))
	mux.HandleFunc("POST /wishlist/refresh", h.handleRefresh(h.wishlist))
	mux.HandleFunc("GET /wishlist/contains", h.handleContains(h.wishlist))

	// Checkout
	mux.HandleFunc("POST /checkout", h.handleCreateCheckout)

	// MCP transport - JSON-RPC endpoint using official MCP SDK
	mux.Handle("/mcp", h.NewMCPHandler())

	// Health check
	mux.HandleFunc("GET /health", h.handleHealth)
	mux.HandleFunc("GET /healthz", h.handleHealth)
}

// === Response Helpers ===

// writeJSON sends a JSON response with the given status code.
func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode response", slog.String("error", err.Error()))
	}
}

// writeError sends an error response, extracting status/code from model.Error
// if present. Uses errors.As() to unwrap error chains.
func (h *Handler) writeError(w http.ResponseWriter, err error) {
	var merr *model.Error
	if !errors.As(err, &merr) {
		if errors.Is(err, collection.ErrClosed) {
			merr = &model.Error{Code: "UNAVAILABLE", Message: "service is shutting down", Retryable: true}
		} else {
			merr = &model.Error{Code: "INTERNAL_ERROR", Message: "an internal error occurred"}
			h.logger.Error("internal error", slog.String("error", err.Error()))
		}
	}

	if merr.RetryAfter > 0 {
		secs := int(merr.RetryAfter.Seconds())
		if secs < 1 {
			secs = 1
		}
		w.Header().Set("Retry-After", strconv.Itoa(secs))
	}

	h.writeJSON(w, statusFor(err, merr), errorResponse{
		Error: errorBody{
			Code:      merr.Code,
			Message:   merr.Message,
			Retryable: merr.Retryable,
		},
	})
}

// statusFor maps an error class to the HTTP status returned to clients.
func statusFor(err error, merr *model.Error) int {
	switch {
	case errors.Is(err, model.ErrValidation):
		if merr.Code == "VALIDATION_ERROR" {
			return http.StatusBadRequest
		}
		return http.StatusUnprocessableEntity // CART_EMPTY, VARIANT_REQUIRED
	case errors.Is(err, model.ErrAuth):
		return http.StatusUnauthorized
	case errors.Is(err, model.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, model.ErrCheckout):
		switch merr.Failure {
		case model.CheckoutTimeout:
			return http.StatusGatewayTimeout
		case model.CheckoutUnavailable:
			return http.StatusServiceUnavailable
		default:
			return http.StatusBadGateway
		}
	case errors.Is(err, model.ErrRemoteOperation):
		if merr.StatusCode == http.StatusTooManyRequests {
			return http.StatusTooManyRequests
		}
		return http.StatusBadGateway
	case errors.Is(err, collection.ErrClosed):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// errorResponse is the JSON structure for error responses.
type errorResponse struct {
	Error errorBody `json:"error"`
}

type errorBody struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable,omitempty"`
}

// MaxRequestBodySize limits JSON request bodies to 1MB to prevent DoS.
const MaxRequestBodySize = 1 << 20 // 1MB

// decodeJSON reads JSON from request body into v.
// Limits body size to MaxRequestBodySize to prevent memory exhaustion.
// Returns a validation error if decoding fails.
func decodeJSON(r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(nil, r.Body, MaxRequestBodySize)

	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		// Don't expose internal error details to client
		return model.NewValidationError("body", "invalid JSON")
	}
	return nil
}
