package catalog

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cat := Default()
	items := cat.Items()
	require.Len(t, items, 4)

	prices := map[string]int64{
		"battle-pass":    1000,
		"legendary-skin": 2000,
		"gem-pack":       499,
		"starter-bundle": 1499,
	}
	for _, item := range items {
		want, ok := prices[item.ID]
		require.True(t, ok, "unexpected item %q", item.ID)
		assert.Equal(t, want, item.Price)
		assert.NotEmpty(t, item.Name)
		assert.NotEmpty(t, item.Description)
	}
}

func TestGet(t *testing.T) {
	cat := Default()

	item, err := cat.Get("gem-pack")
	require.NoError(t, err)
	assert.Equal(t, "Gem Pack", item.Name)
	assert.Equal(t, int64(499), item.Price)

	_, err = cat.Get("nonexistent")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestItems_ReturnsCopy(t *testing.T) {
	cat := Default()

	items := cat.Items()
	items[0].Price = 1

	fresh := cat.Items()
	assert.NotEqual(t, int64(1), fresh[0].Price)
}
