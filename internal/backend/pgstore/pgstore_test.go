package pgstore

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storefront-sync/internal/collection"
	"storefront-sync/internal/model"
)

func TestTable(t *testing.T) {
	assert.Equal(t, "cart_items", table(collection.KindCart))
	assert.Equal(t, "wishlist_items", table(collection.KindWishlist))
}

func TestIsUniqueViolation(t *testing.T) {
	assert.True(t, isUniqueViolation(fmt.Errorf("insert: %w", &pgconn.PgError{Code: "23505"})))
	assert.False(t, isUniqueViolation(&pgconn.PgError{Code: "23503"}))
	assert.False(t, isUniqueViolation(errors.New("boom")))
	assert.False(t, isUniqueViolation(nil))
}

func TestSnapshotCodec(t *testing.T) {
	in := &model.VariantSnapshot{ID: "v1", Size: "L", Price: model.Price(2500)}
	b, err := encodeSnapshot(in)
	require.NoError(t, err)

	out, err := decodeSnapshot[model.VariantSnapshot](b)
	require.NoError(t, err)
	assert.Equal(t, in, out)

	b, err = encodeSnapshot[model.ProductSnapshot](nil)
	require.NoError(t, err)
	assert.Nil(t, b)

	empty, err := decodeSnapshot[model.ProductSnapshot](nil)
	require.NoError(t, err)
	assert.Nil(t, empty)
}
