package collection

import (
	"context"

	"storefront-sync/internal/model"
	"storefront-sync/internal/reconcile"
)

// Kind selects the cart or the wishlist.
type Kind string

const (
	KindCart     Kind = "cart"
	KindWishlist Kind = "wishlist"
)

// mergeMode is the upsert rule for a kind: carts add quantities, wishlists
// keep the existing entry.
func (k Kind) mergeMode() reconcile.Mode {
	if k == KindWishlist {
		return reconcile.ModeKeepExisting
	}
	return reconcile.ModeSum
}

// Owner scopes remote calls to one signed-in user.
type Owner struct {
	UserID      string
	AccessToken string
}

// Endpoint is the remote CRUD surface for cart and wishlist rows.
// Every call is scoped by owner. Upserts are done by the caller with
// fetch-then-branch, so no native upsert is required.
type Endpoint interface {
	FetchAll(ctx context.Context, kind Kind, owner Owner) ([]model.LineItem, error)

	// Insert stores item and returns it with its remote-assigned id.
	Insert(ctx context.Context, kind Kind, owner Owner, item model.LineItem) (model.LineItem, error)

	UpdateQuantity(ctx context.Context, kind Kind, owner Owner, itemID string, quantity int) error
	Delete(ctx context.Context, kind Kind, owner Owner, itemID string) error
	DeleteAll(ctx context.Context, kind Kind, owner Owner) error
}

// SessionSource exposes the live session. Implemented by auth.Manager.
type SessionSource interface {
	Current() *model.Session
}

// MockEndpoint implements Endpoint for testing.
// Each method can be configured via function fields.
type MockEndpoint struct {
	FetchAllFunc       func(ctx context.Context, kind Kind, owner Owner) ([]model.LineItem, error)
	InsertFunc         func(ctx context.Context, kind Kind, owner Owner, item model.LineItem) (model.LineItem, error)
	UpdateQuantityFunc func(ctx context.Context, kind Kind, owner Owner, itemID string, quantity int) error
	DeleteFunc         func(ctx context.Context, kind Kind, owner Owner, itemID string) error
	DeleteAllFunc      func(ctx context.Context, kind Kind, owner Owner) error
}

// FetchAll calls the configured FetchAllFunc or returns an empty list.
func (m *MockEndpoint) FetchAll(ctx context.Context, kind Kind, owner Owner) ([]model.LineItem, error) {
	if m.FetchAllFunc != nil {
		return m.FetchAllFunc(ctx, kind, owner)
	}
	return nil, nil
}

// Insert calls the configured InsertFunc or echoes the item.
func (m *MockEndpoint) Insert(ctx context.Context, kind Kind, owner Owner, item model.LineItem) (model.LineItem, error) {
	if m.InsertFunc != nil {
		return m.InsertFunc(ctx, kind, owner, item)
	}
	return item, nil
}

// UpdateQuantity calls the configured UpdateQuantityFunc or succeeds.
func (m *MockEndpoint) UpdateQuantity(ctx context.Context, kind Kind, owner Owner, itemID string, quantity int) error {
	if m.UpdateQuantityFunc != nil {
		return m.UpdateQuantityFunc(ctx, kind, owner, itemID, quantity)
	}
	return nil
}

// Delete calls the configured DeleteFunc or succeeds.
func (m *MockEndpoint) Delete(ctx context.Context, kind Kind, owner Owner, itemID string) error {
	if m.DeleteFunc != nil {
		return m.DeleteFunc(ctx, kind, owner, itemID)
	}
	return nil
}

// DeleteAll calls the configured DeleteAllFunc or succeeds.
func (m *MockEndpoint) DeleteAll(ctx context.Context, kind Kind, owner Owner) error {
	if m.DeleteAllFunc != nil {
		return m.DeleteAllFunc(ctx, kind, owner)
	}
	return nil
}

var _ Endpoint = (*MockEndpoint)(nil)
