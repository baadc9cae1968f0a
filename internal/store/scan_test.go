package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPrefixed(t *testing.T) {
	assert.Equal(t, "p.id, p.name", prefixed("p", "id,\n\tname"))
}

func TestSlugify(t *testing.T) {
	assert.Equal(t, "dry-fruits-nuts", Slugify("  Dry Fruits & Nuts "))
	assert.Equal(t, "abc-123", Slugify("ABC--123!"))
}

func TestEscapeLike(t *testing.T) {
	assert.Equal(t, `50\% off\_x`, escapeLike("50% off_x"))
}

func TestBuildProductWhere(t *testing.T) {
	cat := int64(3)
	where, args := buildProductWhere(ProductFilter{CategoryID: &cat, Query: "rice"})
	assert.Equal(t, " WHERE is_active AND category_id = $1 AND (name ILIKE $2 OR sku ILIKE $2)", where)
	assert.Equal(t, []interface{}{int64(3), "%rice%"}, args)

	where, args = buildProductWhere(ProductFilter{IncludeInactive: true})
	assert.Empty(t, where)
	assert.Empty(t, args)
}
