// Package checkout turns the signed-in user's cart into one external checkout
// request and hands the resulting payment URL to a navigator.
package checkout

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"syscall"

	"storefront-sync/internal/model"
)

// Line is one entry of the checkout payload.
type Line struct {
	ProductID string `json:"productId"`
	VariantID string `json:"variantId"`
	Quantity  int    `json:"quantity"`
}

// Request is sent to the checkout endpoint.
type Request struct {
	Lines        []Line `json:"items"`
	DiscountCode string `json:"discountCode,omitempty"`
}

// Result is the hosted payment page returned by the checkout endpoint.
type Result struct {
	URL       string `json:"url"`
	SessionID string `json:"sessionId"`
}

// Endpoint creates hosted checkout sessions.
type Endpoint interface {
	CreateCheckoutSession(ctx context.Context, accessToken string, req Request) (*Result, error)
}

// Navigator performs the redirect to the payment page.
type Navigator interface {
	Navigate(ctx context.Context, url string) error
}

// NavigatorFunc adapts a function to Navigator.
type NavigatorFunc func(ctx context.Context, url string) error

// Navigate calls f.
func (f NavigatorFunc) Navigate(ctx context.Context, url string) error {
	return f(ctx, url)
}

// SessionSource exposes the live session.
type SessionSource interface {
	Current() *model.Session
}

// CartSource exposes the current cart projection.
type CartSource interface {
	Snapshot() model.Snapshot
}

// Config holds dispatcher dependencies.
type Config struct {
	Sessions  SessionSource
	Cart      CartSource
	Endpoint  Endpoint
	Navigator Navigator
	Logger    *slog.Logger
}

// Dispatcher creates checkout sessions. It never mutates the cart.
type Dispatcher struct {
	sessions  SessionSource
	cart      CartSource
	endpoint  Endpoint
	navigator Navigator
	logger    *slog.Logger
}

// New creates a dispatcher.
func New(cfg Config) (*Dispatcher, error) {
	if cfg.Sessions == nil {
		return nil, fmt.Errorf("session source is required")
	}
	if cfg.Cart == nil {
		return nil, fmt.Errorf("cart source is required")
	}
	if cfg.Endpoint == nil {
		return nil, fmt.Errorf("checkout endpoint is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Dispatcher{
		sessions:  cfg.Sessions,
		cart:      cfg.Cart,
		endpoint:  cfg.Endpoint,
		navigator: cfg.Navigator,
		logger:    cfg.Logger,
	}, nil
}

// CreateCheckout validates preconditions, creates a checkout session for the
// current cart and navigates to it.
//
// Precondition failures return before the endpoint is called. Endpoint
// failures are classified into a checkout error with a user-facing message.
func (d *Dispatcher) CreateCheckout(ctx context.Context, discountCode string) (*Result, error) {
	session := d.sessions.Current()
	if session == nil || session.UserID == "" {
		return nil, model.NewSignInRequiredError("check out")
	}

	snap := d.cart.Snapshot()
	if !snap.HasItems {
		return nil, model.NewPreconditionError("CART_EMPTY", "your cart is empty")
	}

	req := Request{DiscountCode: discountCode, Lines: make([]Line, 0, len(snap.Items))}
	for _, item := range snap.Items {
		if item.VariantID == "" {
			return nil, model.NewPreconditionError("VARIANT_REQUIRED",
				fmt.Sprintf("select a size and color for %s", productName(item)))
		}
		req.Lines = append(req.Lines, Line{
			ProductID: item.ProductID,
			VariantID: item.VariantID,
			Quantity:  item.Quantity,
		})
	}

	d.logger.InfoContext(ctx, "creating checkout session",
		slog.String("user_id", session.UserID),
		slog.Int("lines", len(req.Lines)),
		slog.Int64("subtotal", snap.Subtotal),
		slog.Bool("has_discount", discountCode != ""),
	)

	result, err := d.endpoint.CreateCheckoutSession(ctx, session.AccessToken, req)
	if err != nil {
		cerr := model.NewCheckoutError(Classify(ctx, err), err)
		d.logger.WarnContext(ctx, "checkout failed",
			slog.String("user_id", session.UserID),
			slog.String("failure", string(cerr.Failure)),
			slog.String("error", err.Error()),
		)
		return nil, cerr
	}
	if result == nil || result.URL == "" {
		return nil, model.NewCheckoutError(model.CheckoutGeneric, errors.New("checkout endpoint returned no url"))
	}

	d.logger.InfoContext(ctx, "checkout session created",
		slog.String("user_id", session.UserID),
		slog.String("session_id", result.SessionID),
	)

	if d.navigator != nil {
		if err := d.navigator.Navigate(ctx, result.URL); err != nil {
			return result, model.NewCheckoutError(model.CheckoutGeneric, fmt.Errorf("navigate: %w", err))
		}
	}
	return result, nil
}

// Classify maps an endpoint failure to a checkout failure class.
func Classify(ctx context.Context, err error) model.CheckoutFailure {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return model.CheckoutTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return model.CheckoutTimeout
	}

	var apiErr *model.Error
	if errors.As(err, &apiErr) {
		switch apiErr.StatusCode {
		case http.StatusRequestTimeout, http.StatusGatewayTimeout:
			return model.CheckoutTimeout
		case http.StatusNotFound, http.StatusTooManyRequests, http.StatusBadGateway, http.StatusServiceUnavailable:
			return model.CheckoutUnavailable
		}
	}

	if errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET) {
		return model.CheckoutUnavailable
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return model.CheckoutUnavailable
	}
	return model.CheckoutGeneric
}

func productName(item model.LineItem) string {
	if item.Product != nil && item.Product.Name != "" {
		return item.Product.Name
	}
	return item.ProductID
}
