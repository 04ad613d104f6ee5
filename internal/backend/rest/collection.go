package rest

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"storefront-sync/internal/collection"
	"storefront-sync/internal/model"
)

// FetchAll returns every row of the owner's collection, oldest first.
func (c *Client) FetchAll(ctx context.Context, kind collection.Kind, owner collection.Owner) ([]model.LineItem, error) {
	query := url.Values{
		"select":  {itemSelect},
		"user_id": {"eq." + owner.UserID},
		"order":   {"created_at.asc"},
	}
	req, err := c.newRequest(ctx, http.MethodGet, pathRows+table(kind), query, nil, owner.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("creating fetch request: %w", err)
	}

	var rows []itemRow
	if err := c.do(req, serviceRows, &rows); err != nil {
		return nil, err
	}

	items := make([]model.LineItem, 0, len(rows))
	for _, row := range rows {
		if item, ok := row.lineItem(kind); ok {
			items = append(items, item)
		}
	}
	return items, nil
}

// Insert writes item and returns it with the row id and timestamp assigned
// by the backend. The snapshots of item are kept.
func (c *Client) Insert(ctx context.Context, kind collection.Kind, owner collection.Owner, item model.LineItem) (model.LineItem, error) {
	req, err := c.newRequest(ctx, http.MethodPost, pathRows+table(kind), nil, insertRow(kind, owner, item), owner.AccessToken)
	if err != nil {
		return model.LineItem{}, fmt.Errorf("creating insert request: %w", err)
	}
	req.Header.Set("Prefer", "return=representation")

	var rows []itemRow
	if err := c.do(req, serviceRows, &rows); err != nil {
		return model.LineItem{}, err
	}
	if len(rows) == 0 || rows[0].ID == "" {
		return model.LineItem{}, model.NewUpstreamError(serviceRows, http.StatusCreated, fmt.Errorf("insert returned no row"))
	}

	item.ID = rows[0].ID
	item.OwnerID = owner.UserID
	if rows[0].CreatedAt != nil {
		item.AddedAt = rows[0].CreatedAt.UTC()
	}
	return item, nil
}

// UpdateQuantity sets the quantity of one cart row.
func (c *Client) UpdateQuantity(ctx context.Context, kind collection.Kind, owner collection.Owner, itemID string, quantity int) error {
	query := url.Values{
		"id":      {"eq." + itemID},
		"user_id": {"eq." + owner.UserID},
	}
	body := map[string]int{"quantity": quantity}
	req, err := c.newRequest(ctx, http.MethodPatch, pathRows+table(kind), query, body, owner.AccessToken)
	if err != nil {
		return fmt.Errorf("creating update request: %w", err)
	}
	req.Header.Set("Prefer", "return=minimal")
	return c.do(req, serviceRows, nil)
}

// Delete removes one row.
func (c *Client) Delete(ctx context.Context, kind collection.Kind, owner collection.Owner, itemID string) error {
	query := url.Values{
		"id":      {"eq." + itemID},
		"user_id": {"eq." + owner.UserID},
	}
	req, err := c.newRequest(ctx, http.MethodDelete, pathRows+table(kind), query, nil, owner.AccessToken)
	if err != nil {
		return fmt.Errorf("creating delete request: %w", err)
	}
	return c.do(req, serviceRows, nil)
}

// DeleteAll removes every row of the owner's collection.
func (c *Client) DeleteAll(ctx context.Context, kind collection.Kind, owner collection.Owner) error {
	query := url.Values{"user_id": {"eq." + owner.UserID}}
	req, err := c.newRequest(ctx, http.MethodDelete, pathRows+table(kind), query, nil, owner.AccessToken)
	if err != nil {
		return fmt.Errorf("creating clear request: %w", err)
	}
	return c.do(req, serviceRows, nil)
}
