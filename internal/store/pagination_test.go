package store

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPageRequestNormalize(t *testing.T) {
	p := PageRequest{Page: 0, PageSize: 500}.Normalize()
	assert.Equal(t, 1, p.Page)
	assert.Equal(t, DefaultPageSize, p.PageSize)

	p = PageRequest{Page: 3, PageSize: 10}.Normalize()
	assert.Equal(t, 20, p.Offset())
}

func TestNewOffsetPage(t *testing.T) {
	page := newOffsetPage([]int{1, 2}, 25, PageRequest{Page: 2, PageSize: 10})
	assert.Equal(t, 3, page.TotalPages)
	assert.True(t, page.HasMore)

	last := newOffsetPage([]int{1}, 25, PageRequest{Page: 3, PageSize: 10})
	assert.False(t, last.HasMore)

	empty := newOffsetPage([]int{}, 0, PageRequest{Page: 1, PageSize: 10})
	assert.Equal(t, 0, empty.TotalPages)
	assert.False(t, empty.HasMore)
}

func TestCursorRoundTrip(t *testing.T) {
	in := Cursor{CreatedAt: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC), ID: 99}

	out, err := DecodeCursor(EncodeCursor(in))
	require.NoError(t, err)
	assert.True(t, in.CreatedAt.Equal(out.CreatedAt))
	assert.Equal(t, in.ID, out.ID)
}

func TestDecodeCursorEmptyStartsAtNewest(t *testing.T) {
	c, err := DecodeCursor("")
	require.NoError(t, err)
	assert.True(t, c.CreatedAt.After(time.Now()))
}

func TestDecodeCursorInvalid(t *testing.T) {
	_, err := DecodeCursor("%%%")
	assert.ErrorIs(t, err, ErrInvalidCursor)
}

func TestClampLimit(t *testing.T) {
	assert.Equal(t, DefaultPageSize, clampLimit(0))
	assert.Equal(t, DefaultPageSize, clampLimit(1000))
	assert.Equal(t, 5, clampLimit(5))
}
