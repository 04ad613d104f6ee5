// Package fsstore implements the collection endpoint and the profile store on
// Firestore.
//
// Collection design:
//   - collections: carts, wishlists (docId: user id), profiles (docId: user id)
//   - cart/wishlist fields: items (map itemId -> item), updatedAt
package fsstore

import (
	"context"
	"fmt"
	"sort"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/google/uuid"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"storefront-sync/internal/auth"
	"storefront-sync/internal/collection"
	"storefront-sync/internal/model"
)

// Store is a Firestore-backed collection endpoint and profile store.
type Store struct {
	client *firestore.Client
	newID  func() string
	now    func() time.Time
}

var (
	_ collection.Endpoint = (*Store)(nil)
	_ auth.ProfileStore   = (*Store)(nil)
)

// Open creates a Firestore client for projectID. FIRESTORE_EMULATOR_HOST is
// honored by the client library.
func Open(ctx context.Context, projectID string, opts ...option.ClientOption) (*Store, error) {
	client, err := firestore.NewClient(ctx, projectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating firestore client: %w", err)
	}
	return New(client), nil
}

// New wraps an existing client.
func New(client *firestore.Client) *Store {
	return &Store{
		client: client,
		newID:  uuid.NewString,
		now:    time.Now,
	}
}

// Close releases the client.
func (s *Store) Close() error {
	return s.client.Close()
}

func (s *Store) doc(kind collection.Kind, userID string) *firestore.DocumentRef {
	name := "carts"
	if kind == collection.KindWishlist {
		name = "wishlists"
	}
	return s.client.Collection(name).Doc(userID)
}

// FetchAll returns the owner's items, oldest first. A missing document is an
// empty collection.
func (s *Store) FetchAll(ctx context.Context, kind collection.Kind, owner collection.Owner) ([]model.LineItem, error) {
	snap, err := s.doc(kind, owner.UserID).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, nil
		}
		return nil, err
	}

	var d collectionDoc
	if err := snap.DataTo(&d); err != nil {
		return nil, fmt.Errorf("decoding %s document: %w", kind, err)
	}
	return d.lineItems(kind, owner.UserID), nil
}

// Insert adds item. An existing (product, variant) key gains the quantity in
// a cart and is returned unchanged in a wishlist.
func (s *Store) Insert(ctx context.Context, kind collection.Kind, owner collection.Owner, item model.LineItem) (model.LineItem, error) {
	ref := s.doc(kind, owner.UserID)
	var out model.LineItem

	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		d, err := readDoc(tx, ref)
		if err != nil {
			return err
		}

		for id, existing := range d.Items {
			if existing.ProductID != item.ProductID || existing.VariantID != item.VariantID {
				continue
			}
			if kind == collection.KindCart {
				existing.Quantity += item.Quantity
				d.Items[id] = existing
			}
			d.UpdatedAt = s.now().UTC()
			out = existing.lineItem(id, owner.UserID)
			return tx.Set(ref, d)
		}

		id := s.newID()
		doc := itemDocFrom(item)
		if doc.AddedAt.IsZero() {
			doc.AddedAt = s.now().UTC()
		}
		d.Items[id] = doc
		d.UpdatedAt = s.now().UTC()
		out = doc.lineItem(id, owner.UserID)
		return tx.Set(ref, d)
	})
	if err != nil {
		return model.LineItem{}, err
	}
	return out, nil
}

// UpdateQuantity sets the quantity of one item.
func (s *Store) UpdateQuantity(ctx context.Context, kind collection.Kind, owner collection.Owner, itemID string, quantity int) error {
	ref := s.doc(kind, owner.UserID)
	return s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		d, err := readDoc(tx, ref)
		if err != nil {
			return err
		}
		existing, ok := d.Items[itemID]
		if !ok {
			return model.NewNotFoundError(string(kind) + " item")
		}
		existing.Quantity = quantity
		d.Items[itemID] = existing
		d.UpdatedAt = s.now().UTC()
		return tx.Set(ref, d)
	})
}

// Delete removes one item. Deleting a missing item is not an error.
func (s *Store) Delete(ctx context.Context, kind collection.Kind, owner collection.Owner, itemID string) error {
	_, err := s.doc(kind, owner.UserID).Update(ctx, []firestore.Update{
		{FieldPath: firestore.FieldPath{"items", itemID}, Value: firestore.Delete},
		{Path: "updatedAt", Value: s.now().UTC()},
	})
	if status.Code(err) == codes.NotFound {
		return nil
	}
	return err
}

// DeleteAll removes the owner's document.
func (s *Store) DeleteAll(ctx context.Context, kind collection.Kind, owner collection.Owner) error {
	_, err := s.doc(kind, owner.UserID).Delete(ctx)
	return err
}

// GetProfile looks up a profile by user id.
func (s *Store) GetProfile(ctx context.Context, _ string, userID string) (auth.ProfileLookup, error) {
	snap, err := s.client.Collection("profiles").Doc(userID).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return auth.ProfileLookup{Status: auth.NotFound}, nil
		}
		return auth.ProfileLookup{}, err
	}
	var d profileDoc
	if err := snap.DataTo(&d); err != nil {
		return auth.ProfileLookup{}, fmt.Errorf("decoding profile: %w", err)
	}
	return auth.ProfileLookup{Status: auth.Found, Profile: &auth.Profile{
		UserID:      userID,
		Email:       d.Email,
		DisplayName: d.DisplayName,
		Phone:       d.Phone,
	}}, nil
}

// InsertProfile creates a profile document. An existing document is
// auth.ErrProfileExists.
func (s *Store) InsertProfile(ctx context.Context, _ string, p auth.Profile) error {
	_, err := s.client.Collection("profiles").Doc(p.UserID).Create(ctx, profileDoc{
		Email:       p.Email,
		DisplayName: p.DisplayName,
		Phone:       p.Phone,
		CreatedAt:   s.now().UTC(),
	})
	if status.Code(err) == codes.AlreadyExists {
		return auth.ErrProfileExists
	}
	return err
}

func readDoc(tx *firestore.Transaction, ref *firestore.DocumentRef) (collectionDoc, error) {
	d := collectionDoc{Items: map[string]itemDoc{}}
	snap, err := tx.Get(ref)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return d, nil
		}
		return d, err
	}
	if err := snap.DataTo(&d); err != nil {
		return d, fmt.Errorf("decoding document: %w", err)
	}
	if d.Items == nil {
		d.Items = map[string]itemDoc{}
	}
	return d, nil
}

// -----------------------------------------
// Firestore DTO
// -----------------------------------------

type collectionDoc struct {
	Items     map[string]itemDoc `firestore:"items"`
	UpdatedAt time.Time          `firestore:"updatedAt"`
}

type itemDoc struct {
	ProductID  string                 `firestore:"productId"`
	VariantID  string                 `firestore:"variantId"`
	Quantity   int                    `firestore:"quantity"`
	PriceAtAdd *int64                 `firestore:"priceAtAdd"`
	AddedAt    time.Time              `firestore:"addedAt"`
	Product    *model.ProductSnapshot `firestore:"product"`
	Variant    *model.VariantSnapshot `firestore:"variant"`
}

type profileDoc struct {
	Email       string    `firestore:"email"`
	DisplayName string    `firestore:"displayName"`
	Phone       string    `firestore:"phone"`
	CreatedAt   time.Time `firestore:"createdAt"`
}

func itemDocFrom(item model.LineItem) itemDoc {
	return itemDoc{
		ProductID:  item.ProductID,
		VariantID:  item.VariantID,
		Quantity:   item.Quantity,
		PriceAtAdd: item.PriceAtAdd,
		AddedAt:    item.AddedAt,
		Product:    item.Product,
		Variant:    item.Variant,
	}
}

func (d itemDoc) lineItem(id, ownerID string) model.LineItem {
	return model.LineItem{
		ID:         id,
		OwnerID:    ownerID,
		ProductID:  d.ProductID,
		VariantID:  d.VariantID,
		Quantity:   d.Quantity,
		PriceAtAdd: d.PriceAtAdd,
		AddedAt:    d.AddedAt.UTC(),
		Product:    d.Product,
		Variant:    d.Variant,
	}
}

// lineItems converts the items map, ordered by add time then id.
func (d collectionDoc) lineItems(kind collection.Kind, ownerID string) []model.LineItem {
	defaults := model.Defaults{OwnerID: ownerID}
	if kind == collection.KindWishlist {
		defaults.FixedQuantity = 1
	}

	items := make([]model.LineItem, 0, len(d.Items))
	for id, doc := range d.Items {
		item, err := model.NewLineItem(model.LineItemInput{
			ID:         id,
			OwnerID:    ownerID,
			ProductID:  doc.ProductID,
			VariantID:  doc.VariantID,
			Quantity:   doc.Quantity,
			PriceAtAdd: doc.PriceAtAdd,
			AddedAt:    doc.AddedAt.UTC(),
			Product:    doc.Product,
			Variant:    doc.Variant,
		}, defaults)
		if err != nil {
			continue
		}
		items = append(items, item)
	}
	sort.Slice(items, func(i, j int) bool {
		if !items[i].AddedAt.Equal(items[j].AddedAt) {
			return items[i].AddedAt.Before(items[j].AddedAt)
		}
		return items[i].ID < items[j].ID
	})
	return items
}
