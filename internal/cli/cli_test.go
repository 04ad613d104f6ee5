package cli

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storefront-sync/internal/handler"
	"storefront-sync/internal/model"
)

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	require.NotNil(t, cmd)
	assert.Equal(t, "storefront", cmd.Use)
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand()
	paths := [][]string{
		{"serve"},
		{"session", "status"}, {"session", "signin"}, {"session", "signup"}, {"session", "signout"},
		{"cart", "show"}, {"cart", "add"}, {"cart", "set-qty"}, {"cart", "remove"}, {"cart", "clear"}, {"cart", "refresh"},
		{"wishlist", "show"}, {"wishlist", "toggle"}, {"wishlist", "remove"}, {"wishlist", "clear"},
		{"checkout"},
	}

	for _, path := range paths {
		sub, _, err := cmd.Find(path)
		require.NoError(t, err, "command %v should exist", path)
		assert.Equal(t, path[len(path)-1], sub.Name())
	}
}

func TestGlobalFlags(t *testing.T) {
	t.Setenv("STOREFRONT_URL", "")
	cmd := NewRootCommand()

	server := cmd.PersistentFlags().Lookup("server")
	require.NotNil(t, server)
	assert.Equal(t, defaultServer, server.DefValue)

	format := cmd.PersistentFlags().Lookup("format")
	require.NotNil(t, format)
	assert.Equal(t, "text", format.DefValue)

	quiet := cmd.PersistentFlags().Lookup("quiet")
	require.NotNil(t, quiet)
	assert.Equal(t, "q", quiet.Shorthand)
}

func TestInvalidFormat(t *testing.T) {
	_, err := execute(t, "http://unused", "--format", "xml", "cart", "show")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid format")
}

// recorded is the last request seen by the fake service.
type recorded struct {
	method string
	path   string
	body   []byte
}

func fakeService(t *testing.T, status int, resp any) (*httptest.Server, *recorded) {
	t.Helper()
	rec := &recorded{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec.method = r.Method
		rec.path = r.URL.Path
		rec.body, _ = io.ReadAll(r.Body)
		if resp == nil {
			w.WriteHeader(status)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		json.NewEncoder(w).Encode(resp)
	}))
	t.Cleanup(srv.Close)
	return srv, rec
}

func execute(t *testing.T, server string, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{"--server", server, "--no-color"}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func sampleCart() model.Snapshot {
	price := int64(4990)
	return model.Project([]model.LineItem{{
		ID:         "item-1",
		ProductID:  "p1",
		VariantID:  "v1",
		Quantity:   2,
		PriceAtAdd: &price,
		Product:    &model.ProductSnapshot{ID: "p1", Name: "Linen Shirt", BasePrice: 4990},
		Variant:    &model.VariantSnapshot{ID: "v1", Size: "M"},
	}})
}

func TestCartShow(t *testing.T) {
	srv, rec := fakeService(t, http.StatusOK, sampleCart())

	out, err := execute(t, srv.URL, "cart", "show")
	require.NoError(t, err)

	assert.Equal(t, http.MethodGet, rec.method)
	assert.Equal(t, "/cart", rec.path)
	assert.Contains(t, out, "Linen Shirt (M) x2  99.80")
	assert.Contains(t, out, "Subtotal: 99.80 (2 items)")
}

func TestCartShowJSON(t *testing.T) {
	srv, _ := fakeService(t, http.StatusOK, sampleCart())

	out, err := execute(t, srv.URL, "--format", "json", "cart", "show")
	require.NoError(t, err)

	var snap model.Snapshot
	require.NoError(t, json.Unmarshal([]byte(out), &snap))
	assert.Equal(t, int64(9980), snap.Subtotal)
}

func TestCartAdd(t *testing.T) {
	srv, rec := fakeService(t, http.StatusCreated, model.LineItem{ID: "item-9", ProductID: "p1", Quantity: 2})

	out, err := execute(t, srv.URL, "-q", "cart", "add",
		"--product", "p1", "--variant", "v1", "--qty", "2", "--name", "Linen Shirt", "--price", "49.90", "--size", "M")
	require.NoError(t, err)
	assert.Equal(t, "item-9\n", out)

	assert.Equal(t, "/cart/items", rec.path)
	var req handler.AddItemRequest
	require.NoError(t, json.Unmarshal(rec.body, &req))
	assert.Equal(t, "v1", req.VariantID)
	assert.Equal(t, 2, req.Quantity)
	require.NotNil(t, req.Product)
	assert.Equal(t, int64(4990), req.Product.BasePrice)
	require.NotNil(t, req.Variant)
	assert.Equal(t, "M", req.Variant.Size)
}

func TestCartSetQtyRejectsNonNumber(t *testing.T) {
	_, err := execute(t, "http://unused", "cart", "set-qty", "item-1", "two")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid quantity")
}

func TestCartSetQty(t *testing.T) {
	srv, rec := fakeService(t, http.StatusOK, model.Snapshot{})

	_, err := execute(t, srv.URL, "cart", "set-qty", "item-1", "0")
	require.NoError(t, err)

	assert.Equal(t, http.MethodPatch, rec.method)
	assert.Equal(t, "/cart/items/item-1", rec.path)
	assert.JSONEq(t, `{"quantity":0}`, string(rec.body))
}

func TestWishlistToggle(t *testing.T) {
	srv, rec := fakeService(t, http.StatusOK, handler.ToggleResponse{InWishlist: true})

	out, err := execute(t, srv.URL, "wishlist", "toggle", "--product", "p2", "--name", "Scarf")
	require.NoError(t, err)

	assert.Equal(t, "/wishlist/toggle", rec.path)
	assert.Contains(t, out, "Added p2 to wishlist")
}

func TestSessionSignIn(t *testing.T) {
	srv, rec := fakeService(t, http.StatusOK, handler.SessionResponse{
		State: "authenticated", SignedIn: true, UserID: "u1", Email: "a@example.com",
	})
	t.Setenv("STOREFRONT_PASSWORD", "from-env")

	out, err := execute(t, srv.URL, "session", "signin", "--email", "a@example.com", "--remember")
	require.NoError(t, err)
	assert.Contains(t, out, "Signed in as a@example.com")

	var req handler.SignInRequest
	require.NoError(t, json.Unmarshal(rec.body, &req))
	assert.Equal(t, "from-env", req.Password)
	assert.True(t, req.RememberMe)
}

func TestSessionSignInRequiresPassword(t *testing.T) {
	t.Setenv("STOREFRONT_PASSWORD", "")
	_, err := execute(t, "http://unused", "session", "signin", "--email", "a@example.com")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "password required")
}

func TestSessionSignOut(t *testing.T) {
	srv, rec := fakeService(t, http.StatusNoContent, nil)

	out, err := execute(t, srv.URL, "session", "signout")
	require.NoError(t, err)
	assert.Equal(t, http.MethodDelete, rec.method)
	assert.Contains(t, out, "Signed out")
}

func TestCheckoutQuiet(t *testing.T) {
	srv, rec := fakeService(t, http.StatusCreated, map[string]string{
		"url": "https://pay.example/s/1", "sessionId": "cs_1",
	})

	out, err := execute(t, srv.URL, "-q", "checkout", "--discount", "10OFF")
	require.NoError(t, err)
	assert.Equal(t, "https://pay.example/s/1\n", out)
	assert.JSONEq(t, `{"discount_code":"10OFF"}`, string(rec.body))
}

func TestCheckoutWithoutDiscountSendsNoBody(t *testing.T) {
	srv, rec := fakeService(t, http.StatusCreated, map[string]string{"url": "https://pay.example/s/2"})

	_, err := execute(t, srv.URL, "checkout")
	require.NoError(t, err)
	assert.Empty(t, rec.body)
}

func TestAPIErrorDecoded(t *testing.T) {
	srv, _ := fakeService(t, http.StatusUnprocessableEntity, map[string]any{
		"error": map[string]any{"code": "CART_EMPTY", "message": "your cart is empty"},
	})

	_, err := execute(t, srv.URL, "checkout")
	require.Error(t, err)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnprocessableEntity, apiErr.Status)
	assert.Equal(t, "CART_EMPTY", apiErr.Code)
	assert.Equal(t, "your cart is empty", apiErr.Message)
}
