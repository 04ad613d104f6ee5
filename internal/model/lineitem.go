package model

import (
	"strings"
	"time"
)

// ProductSnapshot is the denormalized product data stored with a line item.
type ProductSnapshot struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Image     string `json:"image,omitempty"`
	BasePrice int64  `json:"base_price"` // cents
	Stock     int    `json:"stock"`
}

// VariantSnapshot is the denormalized variant (size/color) data stored with a line item.
type VariantSnapshot struct {
	ID    string `json:"id"`
	Name  string `json:"name,omitempty"`
	Size  string `json:"size,omitempty"`
	Color string `json:"color,omitempty"`
	Price *int64 `json:"price,omitempty"` // cents; nil inherits the product base price
	Stock int    `json:"stock"`
}

// LineItem is one entry in a cart or wishlist.
// Uniqueness key is (ProductID, VariantID) within one owner's collection.
type LineItem struct {
	ID string `json:"id"`

	// OwnerID is empty for guest-owned items.
	OwnerID string `json:"owner_id,omitempty"`

	ProductID string `json:"product_id"`
	VariantID string `json:"variant_id,omitempty"`

	// Quantity is always 1 for wishlist entries.
	Quantity int `json:"quantity"`

	PriceAtAdd *int64    `json:"price_at_add,omitempty"` // cents
	AddedAt    time.Time `json:"added_at"`

	Product *ProductSnapshot `json:"product,omitempty"`
	Variant *VariantSnapshot `json:"variant,omitempty"`
}

// Key returns the uniqueness key of the item.
func (li LineItem) Key() ItemKey {
	return ItemKey{ProductID: li.ProductID, VariantID: li.VariantID}
}

// UnitPrice resolves the price used for totals: price at time of add,
// then variant price, then product base price.
func (li LineItem) UnitPrice() int64 {
	if li.PriceAtAdd != nil {
		return *li.PriceAtAdd
	}
	if li.Variant != nil && li.Variant.Price != nil {
		return *li.Variant.Price
	}
	if li.Product != nil {
		return li.Product.BasePrice
	}
	return 0
}

// ItemKey identifies a line item within one owner's collection.
type ItemKey struct {
	ProductID string
	VariantID string
}

// String renders the key as productID or productID:variantID.
func (k ItemKey) String() string {
	if k.VariantID == "" {
		return k.ProductID
	}
	return k.ProductID + ":" + k.VariantID
}

// LineItemInput is the partial data a line item is built from: an add-to-cart
// call, a stored guest entry or a remote row.
type LineItemInput struct {
	ID         string
	OwnerID    string
	ProductID  string
	VariantID  string
	Quantity   int
	PriceAtAdd *int64
	AddedAt    time.Time
	Product    *ProductSnapshot
	Variant    *VariantSnapshot
}

// Defaults are the named fill rules applied by NewLineItem.
type Defaults struct {
	// NewID generates ids for items that arrive without one (guest adds).
	NewID func() string

	// Now stamps AddedAt when the input has none.
	Now func() time.Time

	// OwnerID is applied when the input has no owner.
	OwnerID string

	// MinQuantity replaces quantities below it. Wishlists use FixedQuantity instead.
	MinQuantity int

	// FixedQuantity, when positive, overrides the input quantity.
	FixedQuantity int

	// CapturePrice fills PriceAtAdd from the variant or product snapshot.
	CapturePrice bool
}

// NewLineItem builds a fully-populated LineItem from partial input.
// Returns a validation error if the product id is missing.
func NewLineItem(in LineItemInput, d Defaults) (LineItem, error) {
	productID := strings.TrimSpace(in.ProductID)
	if productID == "" {
		return LineItem{}, NewValidationError("product_id", "required")
	}

	item := LineItem{
		ID:         in.ID,
		OwnerID:    in.OwnerID,
		ProductID:  productID,
		VariantID:  strings.TrimSpace(in.VariantID),
		Quantity:   in.Quantity,
		PriceAtAdd: in.PriceAtAdd,
		AddedAt:    in.AddedAt,
		Product:    in.Product,
		Variant:    in.Variant,
	}

	if item.ID == "" && d.NewID != nil {
		item.ID = d.NewID()
	}
	if item.OwnerID == "" {
		item.OwnerID = d.OwnerID
	}
	if item.AddedAt.IsZero() && d.Now != nil {
		item.AddedAt = d.Now().UTC()
	}

	switch {
	case d.FixedQuantity > 0:
		item.Quantity = d.FixedQuantity
	case item.Quantity < d.MinQuantity:
		item.Quantity = d.MinQuantity
	}

	if item.PriceAtAdd == nil && d.CapturePrice {
		if item.Variant != nil && item.Variant.Price != nil {
			p := *item.Variant.Price
			item.PriceAtAdd = &p
		} else if item.Product != nil {
			p := item.Product.BasePrice
			item.PriceAtAdd = &p
		}
	}

	return item, nil
}

// Price returns a pointer to a copy of cents, for optional price fields.
func Price(cents int64) *int64 {
	return &cents
}
