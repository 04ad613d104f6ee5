package app

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storefront-sync/internal/auth"
	"storefront-sync/internal/checkout"
	"storefront-sync/internal/clock"
	"storefront-sync/internal/collection"
	"storefront-sync/internal/config"
	"storefront-sync/internal/localstore"
	"storefront-sync/internal/model"
)

var t0 = time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)

// remoteCollections is an in-memory stand-in for the hosted tables.
type remoteCollections struct {
	mu    sync.Mutex
	items map[collection.Kind]map[string][]model.LineItem
}

func newRemote() *remoteCollections {
	return &remoteCollections{items: make(map[collection.Kind]map[string][]model.LineItem)}
}

func (rc *remoteCollections) endpoint() *collection.MockEndpoint {
	return &collection.MockEndpoint{
		FetchAllFunc: func(_ context.Context, kind collection.Kind, owner collection.Owner) ([]model.LineItem, error) {
			rc.mu.Lock()
			defer rc.mu.Unlock()
			return append([]model.LineItem(nil), rc.items[kind][owner.UserID]...), nil
		},
		InsertFunc: func(_ context.Context, kind collection.Kind, owner collection.Owner, item model.LineItem) (model.LineItem, error) {
			rc.mu.Lock()
			defer rc.mu.Unlock()
			if rc.items[kind] == nil {
				rc.items[kind] = make(map[string][]model.LineItem)
			}
			rc.items[kind][owner.UserID] = append(rc.items[kind][owner.UserID], item)
			return item, nil
		},
	}
}

func (rc *remoteCollections) count(kind collection.Kind, userID string) int {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	return len(rc.items[kind][userID])
}

func testConfig() *config.Config {
	return &config.Config{
		Environment:       "development",
		Namespace:         "shop",
		CollectionBackend: config.BackendREST,
		Backend: config.BackendConfig{
			URL:     "https://backend.example",
			AnonKey: "anon",
		},
	}
}

func signInAs(userID string) func(context.Context, string, string) (*model.AuthResult, error) {
	return func(_ context.Context, email, _ string) (*model.AuthResult, error) {
		return &model.AuthResult{
			User: model.User{ID: userID, Email: email},
			Session: &model.Session{
				UserID:       userID,
				Email:        email,
				AccessToken:  "access-" + userID,
				RefreshToken: "refresh-" + userID,
				ExpiresAt:    t0.Add(time.Hour).Unix(),
			},
		}, nil
	}
}

func cartInput(productID, variantID string, qty int) collection.AddInput {
	return collection.AddInput{
		ProductID: productID,
		VariantID: variantID,
		Quantity:  qty,
		Product:   &model.ProductSnapshot{ID: productID, Name: "Product " + productID, BasePrice: 1500},
		Variant:   &model.VariantSnapshot{ID: variantID, Size: "M"},
	}
}

type fixture struct {
	app      *App
	remote   *remoteCollections
	authEP   *auth.MockEndpoint
	checkout *checkout.MockEndpoint
	durable  *localstore.Memory
}

func newFixture(t *testing.T, durable *localstore.Memory) *fixture {
	t.Helper()
	if durable == nil {
		durable = localstore.NewMemory()
	}
	f := &fixture{
		remote:   newRemote(),
		authEP:   &auth.MockEndpoint{},
		checkout: &checkout.MockEndpoint{},
		durable:  durable,
	}
	a, err := New(context.Background(), testConfig(), slog.New(slog.NewTextHandler(io.Discard, nil)), Deps{
		Clock:              clock.NewFake(t0),
		AuthEndpoint:       f.authEP,
		Profiles:           &auth.MockProfileStore{},
		CollectionEndpoint: f.remote.endpoint(),
		CheckoutEndpoint:   f.checkout,
		Durable:            durable,
	})
	require.NoError(t, err)
	t.Cleanup(func() { a.Close() })
	f.app = a
	return f
}

func TestNewRequiresConfig(t *testing.T) {
	_, err := New(context.Background(), nil, nil, Deps{})
	require.Error(t, err)
}

func TestNewWithoutRealtime(t *testing.T) {
	f := newFixture(t, nil)
	assert.Nil(t, f.app.Feed)
	assert.NotNil(t, f.app.Sessions)
	assert.NotNil(t, f.app.Cart)
	assert.NotNil(t, f.app.Wishlist)
	assert.NotNil(t, f.app.Checkout)
}

func TestGuestCartSurvivesRestart(t *testing.T) {
	ctx := context.Background()
	durable := localstore.NewMemory()

	first := newFixture(t, durable)
	first.app.Start(ctx)
	_, err := first.app.Cart.Add(ctx, cartInput("p1", "v1", 2))
	require.NoError(t, err)
	require.NoError(t, first.app.Close())

	second := newFixture(t, durable)
	second.app.Start(ctx)

	snap := second.app.Cart.Snapshot()
	assert.Equal(t, 2, snap.ItemCount)
	assert.Equal(t, int64(3000), snap.Subtotal)
}

func TestSignInMergesGuestItems(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	f.authEP.SignInFunc = signInAs("u1")
	f.app.Start(ctx)

	_, err := f.app.Cart.Add(ctx, cartInput("p1", "v1", 1))
	require.NoError(t, err)
	_, err = f.app.Wishlist.Add(ctx, collection.AddInput{
		ProductID: "p2",
		Product:   &model.ProductSnapshot{ID: "p2", Name: "Scarf", BasePrice: 900},
	})
	require.NoError(t, err)

	_, err = f.app.Sessions.SignIn(ctx, "shopper@example.com", "secret-pw", true)
	require.NoError(t, err)

	assert.Equal(t, 1, f.remote.count(collection.KindCart, "u1"))
	assert.Equal(t, 1, f.remote.count(collection.KindWishlist, "u1"))
	assert.Equal(t, 1, f.app.Cart.Snapshot().ItemCount)
	assert.Equal(t, 1, f.app.Wishlist.Snapshot().ItemCount)

	keys := localstore.NewKeys("shop")
	_, ok, err := f.durable.Get(ctx, keys.Guest(string(collection.KindCart)))
	require.NoError(t, err)
	assert.False(t, ok, "guest cart should be cleared after merge")
}

func TestCheckoutUsesSignedInCart(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	f.authEP.SignInFunc = signInAs("u1")

	var gotToken string
	var gotReq checkout.Request
	f.checkout.CreateCheckoutSessionFunc = func(_ context.Context, accessToken string, req checkout.Request) (*checkout.Result, error) {
		gotToken, gotReq = accessToken, req
		return &checkout.Result{URL: "https://pay.example/s/1", SessionID: "cs_1"}, nil
	}
	f.app.Start(ctx)

	_, err := f.app.Sessions.SignIn(ctx, "shopper@example.com", "secret-pw", false)
	require.NoError(t, err)
	_, err = f.app.Cart.Add(ctx, cartInput("p1", "v1", 3))
	require.NoError(t, err)

	res, err := f.app.Checkout.CreateCheckout(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, "https://pay.example/s/1", res.URL)
	assert.Equal(t, "access-u1", gotToken)
	require.Len(t, gotReq.Lines, 1)
	assert.Equal(t, checkout.Line{ProductID: "p1", VariantID: "v1", Quantity: 3}, gotReq.Lines[0])
}

func TestSignOutReturnsToEmptyGuestCart(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	f.authEP.SignInFunc = signInAs("u1")
	f.app.Start(ctx)

	_, err := f.app.Sessions.SignIn(ctx, "shopper@example.com", "secret-pw", true)
	require.NoError(t, err)
	_, err = f.app.Cart.Add(ctx, cartInput("p1", "v1", 1))
	require.NoError(t, err)

	f.app.Sessions.SignOut(ctx)

	assert.Nil(t, f.app.Sessions.Current())
	assert.Equal(t, 0, f.app.Cart.Snapshot().ItemCount)
}

func TestCloseIsIdempotent(t *testing.T) {
	f := newFixture(t, nil)
	f.app.Start(context.Background())
	require.NoError(t, f.app.Close())
	require.NoError(t, f.app.Close())
}

func TestMergeLimiter(t *testing.T) {
	cfg := testConfig()
	assert.Nil(t, mergeLimiter(cfg))

	cfg.MergeRate = 4
	l := mergeLimiter(cfg)
	require.NotNil(t, l)
	assert.Equal(t, 1, l.Burst())

	cfg.MergeBurst = 8
	assert.Equal(t, 8, mergeLimiter(cfg).Burst())
}
