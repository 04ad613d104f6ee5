package rest

import (
	"bytes"
	"strings"
	"time"

	"storefront-sync/internal/collection"
	"storefront-sync/internal/model"
)

// decimal is a numeric column in major units ("49.90" or 49.9), held as cents.
type decimal int64

func (d *decimal) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(bytes.TrimSpace(b)), `"`)
	*d = decimal(model.ParseCents(s))
	return nil
}

func (d decimal) MarshalJSON() ([]byte, error) {
	return []byte(model.FormatCents(int64(d))), nil
}

func (d *decimal) cents() *int64 {
	if d == nil {
		return nil
	}
	return model.Price(int64(*d))
}

type productRow struct {
	ID       string  `json:"id"`
	Name     string  `json:"name"`
	ImageURL string  `json:"image_url"`
	Price    decimal `json:"price"`
	Stock    int     `json:"stock"`
}

type variantRow struct {
	ID    string   `json:"id"`
	Name  string   `json:"name"`
	Size  string   `json:"size"`
	Color string   `json:"color"`
	Price *decimal `json:"price"`
	Stock int      `json:"stock"`
}

// itemRow is a cart_items or wishlist_items row with its product and variant
// embedded.
type itemRow struct {
	ID         string      `json:"id,omitempty"`
	UserID     string      `json:"user_id"`
	ProductID  string      `json:"product_id"`
	VariantID  *string     `json:"variant_id,omitempty"`
	Quantity   *int        `json:"quantity,omitempty"`
	PriceAtAdd *decimal    `json:"price_at_add,omitempty"`
	CreatedAt  *time.Time  `json:"created_at,omitempty"`
	Product    *productRow `json:"product,omitempty"`
	Variant    *variantRow `json:"variant,omitempty"`
}

const itemSelect = "*,product:products(id,name,image_url,price,stock),variant:product_variants(id,name,size,color,price,stock)"

func table(kind collection.Kind) string {
	if kind == collection.KindWishlist {
		return "wishlist_items"
	}
	return "cart_items"
}

// lineItem converts a row. Rows without a product id cannot be represented
// and report false.
func (r itemRow) lineItem(kind collection.Kind) (model.LineItem, bool) {
	in := model.LineItemInput{
		ID:         r.ID,
		OwnerID:    r.UserID,
		ProductID:  r.ProductID,
		PriceAtAdd: r.PriceAtAdd.cents(),
	}
	if r.VariantID != nil {
		in.VariantID = *r.VariantID
	}
	if r.Quantity != nil {
		in.Quantity = *r.Quantity
	}
	if r.CreatedAt != nil {
		in.AddedAt = r.CreatedAt.UTC()
	}
	if r.Product != nil {
		in.Product = &model.ProductSnapshot{
			ID:        r.Product.ID,
			Name:      r.Product.Name,
			Image:     r.Product.ImageURL,
			BasePrice: int64(r.Product.Price),
			Stock:     r.Product.Stock,
		}
	}
	if r.Variant != nil {
		in.Variant = &model.VariantSnapshot{
			ID:    r.Variant.ID,
			Name:  r.Variant.Name,
			Size:  r.Variant.Size,
			Color: r.Variant.Color,
			Price: r.Variant.Price.cents(),
			Stock: r.Variant.Stock,
		}
	}

	d := model.Defaults{}
	if kind == collection.KindWishlist {
		d.FixedQuantity = 1
	}
	item, err := model.NewLineItem(in, d)
	if err != nil {
		return model.LineItem{}, false
	}
	return item, true
}

// insertRow builds the row written for item. Embedded snapshots are not
// written; the backend joins them on read.
func insertRow(kind collection.Kind, owner collection.Owner, item model.LineItem) itemRow {
	row := itemRow{
		UserID:    owner.UserID,
		ProductID: item.ProductID,
	}
	if item.VariantID != "" {
		v := item.VariantID
		row.VariantID = &v
	}
	if kind == collection.KindCart {
		q := item.Quantity
		row.Quantity = &q
		if item.PriceAtAdd != nil {
			p := decimal(*item.PriceAtAdd)
			row.PriceAtAdd = &p
		}
	}
	return row
}
