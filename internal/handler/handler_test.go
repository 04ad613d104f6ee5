package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"storefront-sync/internal/auth"
	"storefront-sync/internal/checkout"
	"storefront-sync/internal/collection"
	"storefront-sync/internal/model"
)

// === Mocks ===

type mockSessions struct {
	SignUpFunc  func(ctx context.Context, email, password string, defaults auth.ProfileDefaults) (*model.AuthResult, error)
	SignInFunc  func(ctx context.Context, email, password string, rememberMe bool) (*model.Session, error)
	SignOutFunc func(ctx context.Context)
	ProfileFunc func(ctx context.Context) (*auth.Profile, error)

	session *model.Session
	state   auth.State
}

func (m *mockSessions) SignUp(ctx context.Context, email, password string, defaults auth.ProfileDefaults) (*model.AuthResult, error) {
	if m.SignUpFunc != nil {
		return m.SignUpFunc(ctx, email, password, defaults)
	}
	return nil, errors.New("SignUp not implemented")
}

func (m *mockSessions) SignIn(ctx context.Context, email, password string, rememberMe bool) (*model.Session, error) {
	if m.SignInFunc != nil {
		return m.SignInFunc(ctx, email, password, rememberMe)
	}
	return nil, errors.New("SignIn not implemented")
}

func (m *mockSessions) SignOut(ctx context.Context) {
	if m.SignOutFunc != nil {
		m.SignOutFunc(ctx)
	}
	m.session = nil
	m.state = auth.Unauthenticated
}

func (m *mockSessions) Current() *model.Session { return m.session }
func (m *mockSessions) State() auth.State       { return m.state }

func (m *mockSessions) Profile(ctx context.Context) (*auth.Profile, error) {
	if m.ProfileFunc != nil {
		return m.ProfileFunc(ctx)
	}
	return nil, errors.New("Profile not implemented")
}

type mockCollection struct {
	AddFunc            func(ctx context.Context, in collection.AddInput) (model.LineItem, error)
	UpdateQuantityFunc func(ctx context.Context, itemID string, quantity int) error
	RemoveFunc         func(ctx context.Context, itemID string) error
	ClearFunc          func(ctx context.Context) error
	ToggleFunc         func(ctx context.Context, in collection.AddInput) (bool, error)
	RefreshFunc        func(ctx context.Context) error

	items []model.LineItem
}

func (m *mockCollection) Add(ctx context.Context, in collection.AddInput) (model.LineItem, error) {
	if m.AddFunc != nil {
		return m.AddFunc(ctx, in)
	}
	return model.LineItem{}, errors.New("Add not implemented")
}

func (m *mockCollection) UpdateQuantity(ctx context.Context, itemID string, quantity int) error {
	if m.UpdateQuantityFunc != nil {
		return m.UpdateQuantityFunc(ctx, itemID, quantity)
	}
	return errors.New("UpdateQuantity not implemented")
}

func (m *mockCollection) Remove(ctx context.Context, itemID string) error {
	if m.RemoveFunc != nil {
		return m.RemoveFunc(ctx, itemID)
	}
	return errors.New("Remove not implemented")
}

func (m *mockCollection) Clear(ctx context.Context) error {
	if m.ClearFunc != nil {
		return m.ClearFunc(ctx)
	}
	return errors.New("Clear not implemented")
}

func (m *mockCollection) Toggle(ctx context.Context, in collection.AddInput) (bool, error) {
	if m.ToggleFunc != nil {
		return m.ToggleFunc(ctx, in)
	}
	return false, errors.New("Toggle not implemented")
}

func (m *mockCollection) Refresh(ctx context.Context) error {
	if m.RefreshFunc != nil {
		return m.RefreshFunc(ctx)
	}
	return nil
}

func (m *mockCollection) Snapshot() model.Snapshot { return model.Project(m.items) }

func (m *mockCollection) Contains(productID, variantID string) bool {
	for _, it := range m.items {
		if it.ProductID == productID && it.VariantID == variantID {
			return true
		}
	}
	return false
}

type mockCheckout struct {
	CreateCheckoutFunc func(ctx context.Context, discountCode string) (*checkout.Result, error)
}

func (m *mockCheckout) CreateCheckout(ctx context.Context, discountCode string) (*checkout.Result, error) {
	if m.CreateCheckoutFunc != nil {
		return m.CreateCheckoutFunc(ctx, discountCode)
	}
	return nil, errors.New("CreateCheckout not implemented")
}

var (
	_ Sessions   = (*mockSessions)(nil)
	_ Collection = (*mockCollection)(nil)
	_ Checkout   = (*mockCheckout)(nil)
)

type fakeStatus bool

func (s fakeStatus) Connected() bool { return bool(s) }

// === Fixture ===

type fixture struct {
	sessions *mockSessions
	cart     *mockCollection
	wishlist *mockCollection
	checkout *mockCheckout
}

func newFixture() *fixture {
	return &fixture{
		sessions: &mockSessions{},
		cart:     &mockCollection{},
		wishlist: &mockCollection{},
		checkout: &mockCheckout{},
	}
}

func (f *fixture) mux() (*Handler, *http.ServeMux) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := New(Config{
		Sessions: f.sessions,
		Cart:     f.cart,
		Wishlist: f.wishlist,
		Checkout: f.checkout,
		Realtime: fakeStatus(true),
		Logger:   logger,
	})
	mux := http.NewServeMux()
	h.RegisterRoutes(mux)
	return h, mux
}

func serve(mux *http.ServeMux, method, path string, body any) *httptest.ResponseRecorder {
	var r io.Reader
	if body != nil {
		b, _ := json.Marshal(body)
		r = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, r)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)
	return w
}

// getErrorCode extracts the error code from an error response.
func getErrorCode(body []byte) string {
	var resp errorResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return ""
	}
	return resp.Error.Code
}

func price(c int64) *int64 { return &c }

// === Tests ===

func TestHandleHealth(t *testing.T) {
	f := newFixture()
	f.sessions.state = auth.Authenticated
	_, mux := f.mux()

	w := serve(mux, "GET", "/health", nil)

	if w.Code != http.StatusOK {
		t.Errorf("Status = %d, want %d", w.Code, http.StatusOK)
	}

	var resp healthResponse
	json.NewDecoder(w.Body).Decode(&resp)
	if resp.Status != "ok" {
		t.Errorf("Status = %s, want ok", resp.Status)
	}
	if resp.Session != "authenticated" {
		t.Errorf("Session = %s, want authenticated", resp.Session)
	}
	if resp.Realtime == nil || !*resp.Realtime {
		t.Errorf("Realtime = %v, want true", resp.Realtime)
	}
}

func TestHandleGetSession(t *testing.T) {
	f := newFixture()
	f.sessions.state = auth.Authenticated
	f.sessions.session = &model.Session{
		UserID: "u1", Email: "a@example.com", AccessToken: "secret-token",
		ExpiresAt: time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC).Unix(), RememberMe: true,
	}
	_, mux := f.mux()

	w := serve(mux, "GET", "/session", nil)

	if w.Code != http.StatusOK {
		t.Fatalf("Status = %d, want %d", w.Code, http.StatusOK)
	}
	if bytes.Contains(w.Body.Bytes(), []byte("secret-token")) {
		t.Error("session response leaks the access token")
	}

	var resp SessionResponse
	json.NewDecoder(w.Body).Decode(&resp)
	if !resp.SignedIn || resp.UserID != "u1" || !resp.RememberMe {
		t.Errorf("resp = %+v", resp)
	}
	if resp.ExpiresAt == nil || resp.ExpiresAt.Hour() != 12 {
		t.Errorf("ExpiresAt = %v", resp.ExpiresAt)
	}
}

func TestHandleSignIn(t *testing.T) {
	f := newFixture()
	var gotEmail string
	var gotRemember bool
	f.sessions.SignInFunc = func(ctx context.Context, email, password string, rememberMe bool) (*model.Session, error) {
		gotEmail, gotRemember = email, rememberMe
		f.sessions.state = auth.Authenticated
		return &model.Session{UserID: "u1", Email: email}, nil
	}
	_, mux := f.mux()

	w := serve(mux, "POST", "/session", SignInRequest{Email: "a@example.com", Password: "pw123456", RememberMe: true})

	if w.Code != http.StatusOK {
		t.Fatalf("Status = %d, want %d\nBody: %s", w.Code, http.StatusOK, w.Body.String())
	}
	if gotEmail != "a@example.com" || !gotRemember {
		t.Errorf("SignIn called with %q remember=%v", gotEmail, gotRemember)
	}

	var resp SessionResponse
	json.NewDecoder(w.Body).Decode(&resp)
	if resp.State != "authenticated" || resp.UserID != "u1" {
		t.Errorf("resp = %+v", resp)
	}
}

func TestHandleSignInRejected(t *testing.T) {
	f := newFixture()
	f.sessions.SignInFunc = func(ctx context.Context, email, password string, rememberMe bool) (*model.Session, error) {
		return nil, model.NewAuthError("INVALID_CREDENTIALS", "invalid login credentials", nil)
	}
	_, mux := f.mux()

	w := serve(mux, "POST", "/session", SignInRequest{Email: "a@example.com", Password: "wrong"})

	if w.Code != http.StatusUnauthorized {
		t.Errorf("Status = %d, want %d", w.Code, http.StatusUnauthorized)
	}
	if code := getErrorCode(w.Body.Bytes()); code != "INVALID_CREDENTIALS" {
		t.Errorf("Error code = %s, want INVALID_CREDENTIALS", code)
	}
}

func TestHandleSignInInvalidJSON(t *testing.T) {
	_, mux := newFixture().mux()

	req := httptest.NewRequest("POST", "/session", bytes.NewReader([]byte("{not json")))
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("Status = %d, want %d", w.Code, http.StatusBadRequest)
	}
	if code := getErrorCode(w.Body.Bytes()); code != "VALIDATION_ERROR" {
		t.Errorf("Error code = %s, want VALIDATION_ERROR", code)
	}
}

func TestHandleSignUp(t *testing.T) {
	tests := []struct {
		name         string
		session      *model.Session
		wantSignedIn bool
	}{
		{name: "signed in immediately", session: &model.Session{UserID: "u1"}, wantSignedIn: true},
		{name: "confirmation pending", session: nil, wantSignedIn: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			var gotDefaults auth.ProfileDefaults
			f.sessions.SignUpFunc = func(ctx context.Context, email, password string, defaults auth.ProfileDefaults) (*model.AuthResult, error) {
				gotDefaults = defaults
				return &model.AuthResult{User: model.User{ID: "u1", Email: email}, Session: tt.session}, nil
			}
			_, mux := f.mux()

			w := serve(mux, "POST", "/session/signup", SignUpRequest{
				Email: "a@example.com", Password: "pw123456", DisplayName: "Ada",
			})

			if w.Code != http.StatusCreated {
				t.Fatalf("Status = %d, want %d", w.Code, http.StatusCreated)
			}
			if gotDefaults.DisplayName != "Ada" {
				t.Errorf("DisplayName = %q, want Ada", gotDefaults.DisplayName)
			}
			var resp SessionResponse
			json.NewDecoder(w.Body).Decode(&resp)
			if resp.SignedIn != tt.wantSignedIn {
				t.Errorf("SignedIn = %v, want %v", resp.SignedIn, tt.wantSignedIn)
			}
		})
	}
}

func TestHandleSignOut(t *testing.T) {
	f := newFixture()
	called := false
	f.sessions.session = &model.Session{UserID: "u1"}
	f.sessions.SignOutFunc = func(ctx context.Context) { called = true }
	_, mux := f.mux()

	w := serve(mux, "DELETE", "/session", nil)

	if w.Code != http.StatusNoContent {
		t.Errorf("Status = %d, want %d", w.Code, http.StatusNoContent)
	}
	if !called {
		t.Error("SignOut not called")
	}
}

func TestHandleGetProfileSignedOut(t *testing.T) {
	f := newFixture()
	f.sessions.ProfileFunc = func(ctx context.Context) (*auth.Profile, error) {
		return nil, model.NewSignInRequiredError("view your profile")
	}
	_, mux := f.mux()

	w := serve(mux, "GET", "/profile", nil)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("Status = %d, want %d", w.Code, http.StatusUnauthorized)
	}
	if code := getErrorCode(w.Body.Bytes()); code != "SIGN_IN_REQUIRED" {
		t.Errorf("Error code = %s, want SIGN_IN_REQUIRED", code)
	}
}

func TestHandleGetCart(t *testing.T) {
	f := newFixture()
	f.cart.items = []model.LineItem{
		{ID: "a", ProductID: "p1", Quantity: 2, PriceAtAdd: price(1000)},
		{ID: "b", ProductID: "p2", VariantID: "v2", Quantity: 1, PriceAtAdd: price(550)},
	}
	_, mux := f.mux()

	w := serve(mux, "GET", "/cart", nil)

	if w.Code != http.StatusOK {
		t.Fatalf("Status = %d, want %d", w.Code, http.StatusOK)
	}
	var snap model.Snapshot
	json.NewDecoder(w.Body).Decode(&snap)
	if snap.Subtotal != 2550 || snap.ItemCount != 3 || !snap.HasItems {
		t.Errorf("snapshot = %+v", snap)
	}
}

func TestHandleAddItem(t *testing.T) {
	f := newFixture()
	var got collection.AddInput
	f.cart.AddFunc = func(ctx context.Context, in collection.AddInput) (model.LineItem, error) {
		got = in
		return model.LineItem{ID: "item-1", ProductID: in.ProductID, VariantID: in.VariantID, Quantity: in.Quantity}, nil
	}
	_, mux := f.mux()

	w := serve(mux, "POST", "/cart/items", AddItemRequest{
		ProductID: "p1", VariantID: "v1", Quantity: 2,
		Product: &model.ProductSnapshot{ID: "p1", Name: "Tee", BasePrice: 1999},
	})

	if w.Code != http.StatusCreated {
		t.Fatalf("Status = %d, want %d\nBody: %s", w.Code, http.StatusCreated, w.Body.String())
	}
	if got.ProductID != "p1" || got.VariantID != "v1" || got.Quantity != 2 || got.Product == nil {
		t.Errorf("Add input = %+v", got)
	}

	var item model.LineItem
	json.NewDecoder(w.Body).Decode(&item)
	if item.ID != "item-1" {
		t.Errorf("ID = %s, want item-1", item.ID)
	}
}

func TestHandleAddItemErrors(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"validation", model.NewValidationError("product_id", "required"), http.StatusBadRequest, "VALIDATION_ERROR"},
		{"remote", model.NewRemoteError("add cart item", errors.New("boom")), http.StatusBadGateway, "REMOTE_ERROR"},
		{"rate limited", model.NewUpstreamError("rows", 429, errors.New("slow down")), http.StatusTooManyRequests, "UPSTREAM_ERROR"},
		{"closed", collection.ErrClosed, http.StatusServiceUnavailable, "UNAVAILABLE"},
		{"unexpected", errors.New("kaboom"), http.StatusInternalServerError, "INTERNAL_ERROR"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			f.cart.AddFunc = func(ctx context.Context, in collection.AddInput) (model.LineItem, error) {
				return model.LineItem{}, tt.err
			}
			_, mux := f.mux()

			w := serve(mux, "POST", "/cart/items", AddItemRequest{ProductID: "p1"})

			if w.Code != tt.wantStatus {
				t.Errorf("Status = %d, want %d", w.Code, tt.wantStatus)
			}
			if code := getErrorCode(w.Body.Bytes()); code != tt.wantCode {
				t.Errorf("Error code = %s, want %s", code, tt.wantCode)
			}
		})
	}
}

func TestHandleUpdateQuantity(t *testing.T) {
	f := newFixture()
	var gotID string
	var gotQty int
	f.cart.UpdateQuantityFunc = func(ctx context.Context, itemID string, quantity int) error {
		gotID, gotQty = itemID, quantity
		return nil
	}
	_, mux := f.mux()

	zero := 0
	w := serve(mux, "PATCH", "/cart/items/item-7", UpdateQuantityRequest{Quantity: &zero})

	if w.Code != http.StatusOK {
		t.Fatalf("Status = %d, want %d", w.Code, http.StatusOK)
	}
	if gotID != "item-7" || gotQty != 0 {
		t.Errorf("UpdateQuantity(%q, %d)", gotID, gotQty)
	}
}

func TestHandleUpdateQuantityMissing(t *testing.T) {
	_, mux := newFixture().mux()

	w := serve(mux, "PATCH", "/cart/items/item-7", map[string]any{})

	if w.Code != http.StatusBadRequest {
		t.Errorf("Status = %d, want %d", w.Code, http.StatusBadRequest)
	}
}

func TestHandleRemoveItemNotFound(t *testing.T) {
	f := newFixture()
	f.wishlist.RemoveFunc = func(ctx context.Context, itemID string) error {
		return model.NewNotFoundError("wishlist item")
	}
	_, mux := f.mux()

	w := serve(mux, "DELETE", "/wishlist/items/missing", nil)

	if w.Code != http.StatusNotFound {
		t.Errorf("Status = %d, want %d", w.Code, http.StatusNotFound)
	}
}

func TestHandleClearAndRefresh(t *testing.T) {
	f := newFixture()
	cleared, refreshed := false, false
	f.cart.ClearFunc = func(ctx context.Context) error { cleared = true; return nil }
	f.cart.RefreshFunc = func(ctx context.Context) error { refreshed = true; return nil }
	_, mux := f.mux()

	if w := serve(mux, "DELETE", "/cart", nil); w.Code != http.StatusOK {
		t.Errorf("clear status = %d", w.Code)
	}
	if w := serve(mux, "POST", "/cart/refresh", nil); w.Code != http.StatusOK {
		t.Errorf("refresh status = %d", w.Code)
	}
	if !cleared || !refreshed {
		t.Errorf("cleared=%v refreshed=%v", cleared, refreshed)
	}
}

func TestHandleToggle(t *testing.T) {
	f := newFixture()
	f.wishlist.ToggleFunc = func(ctx context.Context, in collection.AddInput) (bool, error) {
		f.wishlist.items = append(f.wishlist.items, model.LineItem{ID: "w1", ProductID: in.ProductID, Quantity: 1})
		return true, nil
	}
	_, mux := f.mux()

	w := serve(mux, "POST", "/wishlist/toggle", AddItemRequest{ProductID: "p9"})

	if w.Code != http.StatusOK {
		t.Fatalf("Status = %d, want %d", w.Code, http.StatusOK)
	}
	var resp ToggleResponse
	json.NewDecoder(w.Body).Decode(&resp)
	if !resp.InWishlist || resp.Wishlist.ItemCount != 1 {
		t.Errorf("resp = %+v", resp)
	}
}

func TestHandleContains(t *testing.T) {
	f := newFixture()
	f.cart.items = []model.LineItem{{ID: "c1", ProductID: "p1", VariantID: "v1", Quantity: 1}}
	_, mux := f.mux()

	tests := []struct {
		name string
		path string
		want bool
	}{
		{"present", "/cart/contains?product_id=p1&variant_id=v1", true},
		{"other variant", "/cart/contains?product_id=p1&variant_id=v2", false},
		{"wishlist empty", "/wishlist/contains?product_id=p1", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := serve(mux, "GET", tt.path, nil)
			if w.Code != http.StatusOK {
				t.Fatalf("Status = %d, want %d", w.Code, http.StatusOK)
			}
			var resp ContainsResponse
			json.NewDecoder(w.Body).Decode(&resp)
			if resp.Contains != tt.want {
				t.Errorf("Contains = %v, want %v", resp.Contains, tt.want)
			}
		})
	}

	w := serve(mux, "GET", "/cart/contains", nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("missing product_id: Status = %d, want %d", w.Code, http.StatusBadRequest)
	}
	if code := getErrorCode(w.Body.Bytes()); code != "VALIDATION_ERROR" {
		t.Errorf("code = %q", code)
	}
}

func TestHandleCreateCheckout(t *testing.T) {
	f := newFixture()
	var gotCode string
	f.checkout.CreateCheckoutFunc = func(ctx context.Context, discountCode string) (*checkout.Result, error) {
		gotCode = discountCode
		return &checkout.Result{URL: "https://pay.example/s/1", SessionID: "cs_1"}, nil
	}
	_, mux := f.mux()

	w := serve(mux, "POST", "/checkout", CreateCheckoutRequest{DiscountCode: "SAVE10"})

	if w.Code != http.StatusCreated {
		t.Fatalf("Status = %d, want %d", w.Code, http.StatusCreated)
	}
	if gotCode != "SAVE10" {
		t.Errorf("discount code = %q, want SAVE10", gotCode)
	}
	var res checkout.Result
	json.NewDecoder(w.Body).Decode(&res)
	if res.URL != "https://pay.example/s/1" {
		t.Errorf("URL = %s", res.URL)
	}
}

func TestHandleCreateCheckoutNoBody(t *testing.T) {
	f := newFixture()
	f.checkout.CreateCheckoutFunc = func(ctx context.Context, discountCode string) (*checkout.Result, error) {
		return &checkout.Result{URL: "https://pay.example/s/2"}, nil
	}
	_, mux := f.mux()

	w := serve(mux, "POST", "/checkout", nil)

	if w.Code != http.StatusCreated {
		t.Errorf("Status = %d, want %d\nBody: %s", w.Code, http.StatusCreated, w.Body.String())
	}
}

func TestHandleCreateCheckoutErrors(t *testing.T) {
	tests := []struct {
		err        error
		wantStatus int
		wantCode   string
	}{
		{model.NewSignInRequiredError("check out"), http.StatusUnauthorized, "SIGN_IN_REQUIRED"},
		{model.NewPreconditionError("CART_EMPTY", "your cart is empty"), http.StatusUnprocessableEntity, "CART_EMPTY"},
		{model.NewPreconditionError("VARIANT_REQUIRED", "select a size"), http.StatusUnprocessableEntity, "VARIANT_REQUIRED"},
		{model.NewCheckoutError(model.CheckoutTimeout, context.DeadlineExceeded), http.StatusGatewayTimeout, "CHECKOUT_TIMEOUT"},
		{model.NewCheckoutError(model.CheckoutUnavailable, errors.New("503")), http.StatusServiceUnavailable, "CHECKOUT_UNAVAILABLE"},
		{model.NewCheckoutError(model.CheckoutGeneric, errors.New("bad")), http.StatusBadGateway, "CHECKOUT_GENERIC"},
	}

	for _, tt := range tests {
		t.Run(tt.wantCode, func(t *testing.T) {
			f := newFixture()
			f.checkout.CreateCheckoutFunc = func(ctx context.Context, discountCode string) (*checkout.Result, error) {
				return nil, tt.err
			}
			_, mux := f.mux()

			w := serve(mux, "POST", "/checkout", nil)

			if w.Code != tt.wantStatus {
				t.Errorf("Status = %d, want %d", w.Code, tt.wantStatus)
			}
			if code := getErrorCode(w.Body.Bytes()); code != tt.wantCode {
				t.Errorf("Error code = %s, want %s", code, tt.wantCode)
			}
		})
	}
}

func TestWriteErrorRetryAfter(t *testing.T) {
	h, _ := newFixture().mux()
	err := model.NewUpstreamError("rows", 429, errors.New("limited"))
	err.RetryAfter = 1500 * time.Millisecond

	w := httptest.NewRecorder()
	h.writeError(w, fmt.Errorf("add: %w", err))

	if w.Code != http.StatusTooManyRequests {
		t.Errorf("Status = %d, want %d", w.Code, http.StatusTooManyRequests)
	}
	if got := w.Header().Get("Retry-After"); got != "1" {
		t.Errorf("Retry-After = %q, want 1", got)
	}
	var resp errorResponse
	json.Unmarshal(w.Body.Bytes(), &resp)
	if !resp.Error.Retryable {
		t.Error("Retryable = false, want true")
	}
}
