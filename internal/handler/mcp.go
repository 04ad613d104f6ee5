// MCP transport handler using the official MCP Go SDK.
// Exposes session, cart, wishlist and checkout operations as MCP tools.
package handler

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"storefront-sync/internal/model"
)

// === MCP Tool Input Types ===

// EmptyInput is the input of tools that take no arguments.
type EmptyInput struct{}

// SignInInput is the input schema for the sign_in tool.
type SignInInput struct {
	Email      string `json:"email" jsonschema:"account email"`
	Password   string `json:"password" jsonschema:"account password"`
	RememberMe bool   `json:"remember_me,omitempty" jsonschema:"keep the session across restarts"`
}

// AddItemInput is the input schema for add_to_cart and toggle_wishlist.
type AddItemInput struct {
	ProductID string                 `json:"product_id" jsonschema:"product ID"`
	VariantID string                 `json:"variant_id,omitempty" jsonschema:"variant ID (size/color)"`
	Quantity  int                    `json:"quantity,omitempty" jsonschema:"quantity to add (cart only, default 1)"`
	Product   *model.ProductSnapshot `json:"product,omitempty" jsonschema:"product details shown in the cart"`
	Variant   *model.VariantSnapshot `json:"variant,omitempty" jsonschema:"variant details shown in the cart"`
}

// UpdateQuantityInput is the input schema for update_cart_item.
type UpdateQuantityInput struct {
	ItemID   string `json:"item_id" jsonschema:"cart item ID"`
	Quantity int    `json:"quantity" jsonschema:"new quantity; zero or less removes the item"`
}

// RemoveItemInput is the input schema for remove_cart_item.
type RemoveItemInput struct {
	ItemID string `json:"item_id" jsonschema:"cart item ID"`
}

// CheckoutInput is the input schema for create_checkout.
type CheckoutInput struct {
	DiscountCode string `json:"discount_code,omitempty" jsonschema:"discount code to apply"`
}

// NewMCPServer creates an MCP server with the storefront tools registered.
// The server exposes the same operations as the REST API but via MCP protocol.
func (h *Handler) NewMCPServer() *mcp.Server {
	server := mcp.NewServer(
		&mcp.Implementation{
			Name:    "storefront-sync",
			Version: "1.0.0",
		},
		&mcp.ServerOptions{
			Instructions: "Storefront cart, wishlist and session operations. " +
				"Guest carts merge into the account on sign-in; checkout requires a signed-in user.",
		},
	)

	// Session
	mcp.AddTool(server, &mcp.Tool{
		Name:        "session_status",
		Description: "Show whether a user is signed in.",
	}, h.mcpSessionStatus)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "sign_in",
		Description: "Sign in with email and password. Guest cart and wishlist items are merged into the account.",
	}, h.mcpSignIn)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "sign_out",
		Description: "Sign out. Local account data is cleared; the guest cart is kept.",
	}, h.mcpSignOut)

	// Cart
	mcp.AddTool(server, &mcp.Tool{
		Name:        "view_cart",
		Description: "Show cart items, item count and subtotal in cents.",
	}, h.mcpViewCart)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "add_to_cart",
		Description: "Add a product to the cart. Adding the same product and variant again increases the quantity.",
	}, h.mcpAddToCart)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "update_cart_item",
		Description: "Set the quantity of a cart item. Zero or less removes it.",
	}, h.mcpUpdateCartItem)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "remove_cart_item",
		Description: "Remove an item from the cart.",
	}, h.mcpRemoveCartItem)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "clear_cart",
		Description: "Remove every item from the cart.",
	}, h.mcpClearCart)

	// Wishlist
	mcp.AddTool(server, &mcp.Tool{
		Name:        "view_wishlist",
		Description: "Show wishlist items.",
	}, h.mcpViewWishlist)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "toggle_wishlist",
		Description: "Add a product to the wishlist, or remove it if already there.",
	}, h.mcpToggleWishlist)

	// Checkout
	mcp.AddTool(server, &mcp.Tool{
		Name:        "create_checkout",
		Description: "Create a hosted checkout session for the cart and return its URL. Every item needs a variant.",
	}, h.mcpCreateCheckout)

	return server
}

// NewMCPHandler returns an HTTP handler for the MCP endpoint.
// Mount this at /mcp on your mux.
func (h *Handler) NewMCPHandler() http.Handler {
	server := h.NewMCPServer()
	return mcp.NewStreamableHTTPHandler(
		func(r *http.Request) *mcp.Server { return server },
		nil,
	)
}

// === Tool Handlers ===
// Outputs are untyped: snapshots carry timestamps, which the inferred output
// schema would not describe as strings.

func (h *Handler) mcpSessionStatus(ctx context.Context, req *mcp.CallToolRequest, _ EmptyInput) (*mcp.CallToolResult, any, error) {
	return nil, sessionResponse(h.sessions.State(), h.sessions.Current()), nil
}

func (h *Handler) mcpSignIn(ctx context.Context, req *mcp.CallToolRequest, input SignInInput) (*mcp.CallToolResult, any, error) {
	s, err := h.sessions.SignIn(ctx, input.Email, input.Password, input.RememberMe)
	if err != nil {
		return nil, nil, h.mcpError(err)
	}
	return nil, sessionResponse(h.sessions.State(), s), nil
}

func (h *Handler) mcpSignOut(ctx context.Context, req *mcp.CallToolRequest, _ EmptyInput) (*mcp.CallToolResult, any, error) {
	h.sessions.SignOut(ctx)
	return nil, sessionResponse(h.sessions.State(), h.sessions.Current()), nil
}

func (h *Handler) mcpViewCart(ctx context.Context, req *mcp.CallToolRequest, _ EmptyInput) (*mcp.CallToolResult, any, error) {
	return nil, h.cart.Snapshot(), nil
}

func (h *Handler) mcpAddToCart(ctx context.Context, req *mcp.CallToolRequest, input AddItemInput) (*mcp.CallToolResult, any, error) {
	item, err := h.cart.Add(ctx, AddItemRequest(input).input())
	if err != nil {
		return nil, nil, h.mcpError(err)
	}
	return nil, item, nil
}

func (h *Handler) mcpUpdateCartItem(ctx context.Context, req *mcp.CallToolRequest, input UpdateQuantityInput) (*mcp.CallToolResult, any, error) {
	if input.ItemID == "" {
		return nil, nil, fmt.Errorf("item_id is required")
	}
	if err := h.cart.UpdateQuantity(ctx, input.ItemID, input.Quantity); err != nil {
		return nil, nil, h.mcpError(err)
	}
	return nil, h.cart.Snapshot(), nil
}

func (h *Handler) mcpRemoveCartItem(ctx context.Context, req *mcp.CallToolRequest, input RemoveItemInput) (*mcp.CallToolResult, any, error) {
	if input.ItemID == "" {
		return nil, nil, fmt.Errorf("item_id is required")
	}
	if err := h.cart.Remove(ctx, input.ItemID); err != nil {
		return nil, nil, h.mcpError(err)
	}
	return nil, h.cart.Snapshot(), nil
}

func (h *Handler) mcpClearCart(ctx context.Context, req *mcp.CallToolRequest, _ EmptyInput) (*mcp.CallToolResult, any, error) {
	if err := h.cart.Clear(ctx); err != nil {
		return nil, nil, h.mcpError(err)
	}
	return nil, h.cart.Snapshot(), nil
}

func (h *Handler) mcpViewWishlist(ctx context.Context, req *mcp.CallToolRequest, _ EmptyInput) (*mcp.CallToolResult, any, error) {
	return nil, h.wishlist.Snapshot(), nil
}

func (h *Handler) mcpToggleWishlist(ctx context.Context, req *mcp.CallToolRequest, input AddItemInput) (*mcp.CallToolResult, any, error) {
	in, err := h.wishlist.Toggle(ctx, AddItemRequest(input).input())
	if err != nil {
		return nil, nil, h.mcpError(err)
	}
	return nil, ToggleResponse{InWishlist: in, Wishlist: h.wishlist.Snapshot()}, nil
}

func (h *Handler) mcpCreateCheckout(ctx context.Context, req *mcp.CallToolRequest, input CheckoutInput) (*mcp.CallToolResult, any, error) {
	result, err := h.checkout.CreateCheckout(ctx, input.DiscountCode)
	if err != nil {
		return nil, nil, h.mcpError(err)
	}
	return nil, result, nil
}

// mcpError converts domain errors to MCP-friendly errors.
func (h *Handler) mcpError(err error) error {
	var merr *model.Error
	if errors.As(err, &merr) {
		return fmt.Errorf("%s: %s", merr.Code, merr.Message)
	}
	// Don't leak internal error details
	h.logger.Error("mcp internal error", "error", err.Error())
	return fmt.Errorf("internal error")
}
