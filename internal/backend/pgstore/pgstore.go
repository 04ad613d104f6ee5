// Package pgstore implements the collection endpoint and the profile store
// directly on Postgres, for deployments that run their own database instead
// of the hosted row API.
package pgstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"storefront-sync/internal/auth"
	"storefront-sync/internal/collection"
	"storefront-sync/internal/model"
)

const schema = `
CREATE TABLE IF NOT EXISTS profiles (
	id           TEXT PRIMARY KEY,
	email        TEXT NOT NULL DEFAULT '',
	display_name TEXT NOT NULL DEFAULT '',
	phone        TEXT NOT NULL DEFAULT '',
	created_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS cart_items (
	id           UUID PRIMARY KEY DEFAULT gen_random_uuid(),
	user_id      TEXT NOT NULL,
	product_id   TEXT NOT NULL,
	variant_id   TEXT NOT NULL DEFAULT '',
	quantity     INTEGER NOT NULL CHECK (quantity >= 1),
	price_at_add BIGINT,
	product      JSONB,
	variant      JSONB,
	created_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (user_id, product_id, variant_id)
);

CREATE TABLE IF NOT EXISTS wishlist_items (
	id           UUID PRIMARY KEY DEFAULT gen_random_uuid(),
	user_id      TEXT NOT NULL,
	product_id   TEXT NOT NULL,
	variant_id   TEXT NOT NULL DEFAULT '',
	quantity     INTEGER NOT NULL DEFAULT 1,
	price_at_add BIGINT,
	product      JSONB,
	variant      JSONB,
	created_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (user_id, product_id, variant_id)
);
`

// Store is a Postgres-backed collection endpoint and profile store.
type Store struct {
	pool *pgxpool.Pool
}

var (
	_ collection.Endpoint = (*Store)(nil)
	_ auth.ProfileStore   = (*Store)(nil)
)

// Open connects to databaseURL and verifies the connection.
func Open(ctx context.Context, databaseURL string) (*Store, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connecting to postgres: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging postgres: %w", err)
	}
	return New(pool), nil
}

// New wraps an existing pool.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Migrate creates the tables if they do not exist.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("migrating schema: %w", err)
	}
	return nil
}

// Close releases the pool.
func (s *Store) Close() {
	s.pool.Close()
}

func table(kind collection.Kind) string {
	if kind == collection.KindWishlist {
		return "wishlist_items"
	}
	return "cart_items"
}

// FetchAll returns the owner's rows, oldest first.
func (s *Store) FetchAll(ctx context.Context, kind collection.Kind, owner collection.Owner) ([]model.LineItem, error) {
	q := `SELECT id::text, user_id, product_id, variant_id, quantity, price_at_add, product, variant, created_at
		FROM ` + table(kind) + ` WHERE user_id = $1 ORDER BY created_at, id`

	rows, err := s.pool.Query(ctx, q, owner.UserID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []model.LineItem
	for rows.Next() {
		var (
			in               model.LineItemInput
			product, variant []byte
		)
		if err := rows.Scan(&in.ID, &in.OwnerID, &in.ProductID, &in.VariantID, &in.Quantity,
			&in.PriceAtAdd, &product, &variant, &in.AddedAt); err != nil {
			return nil, err
		}
		if in.Product, err = decodeSnapshot[model.ProductSnapshot](product); err != nil {
			return nil, fmt.Errorf("decoding product of %s: %w", in.ID, err)
		}
		if in.Variant, err = decodeSnapshot[model.VariantSnapshot](variant); err != nil {
			return nil, fmt.Errorf("decoding variant of %s: %w", in.ID, err)
		}
		in.AddedAt = in.AddedAt.UTC()

		item, err := model.NewLineItem(in, model.Defaults{})
		if err != nil {
			continue
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// Insert writes item. Inserting a key that already exists adds the quantity
// for carts and keeps the existing row for wishlists.
func (s *Store) Insert(ctx context.Context, kind collection.Kind, owner collection.Owner, item model.LineItem) (model.LineItem, error) {
	product, err := encodeSnapshot(item.Product)
	if err != nil {
		return model.LineItem{}, err
	}
	variant, err := encodeSnapshot(item.Variant)
	if err != nil {
		return model.LineItem{}, err
	}

	onConflict := `DO UPDATE SET quantity = ` + table(kind) + `.quantity + EXCLUDED.quantity`
	if kind == collection.KindWishlist {
		onConflict = `DO UPDATE SET user_id = EXCLUDED.user_id`
	}
	q := `INSERT INTO ` + table(kind) + ` (user_id, product_id, variant_id, quantity, price_at_add, product, variant)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (user_id, product_id, variant_id) ` + onConflict + `
		RETURNING id::text, quantity, created_at`

	err = s.pool.QueryRow(ctx, q, owner.UserID, item.ProductID, item.VariantID, item.Quantity,
		item.PriceAtAdd, product, variant).Scan(&item.ID, &item.Quantity, &item.AddedAt)
	if err != nil {
		return model.LineItem{}, err
	}
	item.OwnerID = owner.UserID
	item.AddedAt = item.AddedAt.UTC()
	return item, nil
}

// UpdateQuantity sets the quantity of one row.
func (s *Store) UpdateQuantity(ctx context.Context, kind collection.Kind, owner collection.Owner, itemID string, quantity int) error {
	tag, err := s.pool.Exec(ctx, `UPDATE `+table(kind)+` SET quantity = $1 WHERE id::text = $2 AND user_id = $3`,
		quantity, itemID, owner.UserID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return model.NewNotFoundError(string(kind) + " item")
	}
	return nil
}

// Delete removes one row. Deleting a missing row is not an error.
func (s *Store) Delete(ctx context.Context, kind collection.Kind, owner collection.Owner, itemID string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM `+table(kind)+` WHERE id::text = $1 AND user_id = $2`, itemID, owner.UserID)
	return err
}

// DeleteAll removes every row of the owner.
func (s *Store) DeleteAll(ctx context.Context, kind collection.Kind, owner collection.Owner) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM `+table(kind)+` WHERE user_id = $1`, owner.UserID)
	return err
}

// GetProfile looks up a profile by user id.
func (s *Store) GetProfile(ctx context.Context, _ string, userID string) (auth.ProfileLookup, error) {
	var p auth.Profile
	err := s.pool.QueryRow(ctx, `SELECT id, email, display_name, phone FROM profiles WHERE id = $1`, userID).
		Scan(&p.UserID, &p.Email, &p.DisplayName, &p.Phone)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return auth.ProfileLookup{Status: auth.NotFound}, nil
		}
		return auth.ProfileLookup{}, err
	}
	return auth.ProfileLookup{Status: auth.Found, Profile: &p}, nil
}

// InsertProfile creates a profile. A duplicate id is auth.ErrProfileExists.
func (s *Store) InsertProfile(ctx context.Context, _ string, p auth.Profile) error {
	_, err := s.pool.Exec(ctx, `INSERT INTO profiles (id, email, display_name, phone) VALUES ($1, $2, $3, $4)`,
		p.UserID, p.Email, p.DisplayName, p.Phone)
	if isUniqueViolation(err) {
		return auth.ErrProfileExists
	}
	return err
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func encodeSnapshot[T any](v *T) ([]byte, error) {
	if v == nil {
		return nil, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encoding snapshot: %w", err)
	}
	return b, nil
}

func decodeSnapshot[T any](b []byte) (*T, error) {
	if len(b) == 0 {
		return nil, nil
	}
	var v T
	if err := json.Unmarshal(b, &v); err != nil {
		return nil, err
	}
	return &v, nil
}
