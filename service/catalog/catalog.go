// Package catalog holds the storefront's fixed item list. The engine never
// interprets items; it only sees the label and price the purchase flow
// resolves here.
package catalog

import (
	"errors"
	"fmt"
)

// ErrNotFound indicates the requested item id is not in the catalog.
var ErrNotFound = errors.New("item not found")

// Item is one purchasable storefront entry. Price is in cents.
type Item struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Price       int64  `json:"price"`
	Popular     bool   `json:"popular,omitempty"`
}

// Catalog is a fixed, read-only item list.
type Catalog struct {
	items []Item
	byID  map[string]Item
}

// New creates a catalog from the given items.
func New(items []Item) *Catalog {
	byID := make(map[string]Item, len(items))
	for _, item := range items {
		byID[item.ID] = item
	}
	return &Catalog{items: items, byID: byID}
}

// Default returns the storefront's stock catalog.
func Default() *Catalog {
	return New([]Item{
		{
			ID:          "battle-pass",
			Name:        "Battle Pass",
			Description: "Season 12 Premium Pass",
			Price:       1000,
			Popular:     true,
		},
		{
			ID:          "legendary-skin",
			Name:        "Legendary Skin",
			Description: "Cosmic Warrior Bundle",
			Price:       2000,
		},
		{
			ID:          "gem-pack",
			Name:        "Gem Pack",
			Description: "500 Gems + Bonus",
			Price:       499,
		},
		{
			ID:          "starter-bundle",
			Name:        "Starter Bundle",
			Description: "Everything you need",
			Price:       1499,
		},
	})
}

// Items returns the catalog entries in display order.
func (c *Catalog) Items() []Item {
	items := make([]Item, len(c.items))
	copy(items, c.items)
	return items
}

// Get looks up an item by id.
func (c *Catalog) Get(id string) (Item, error) {
	item, ok := c.byID[id]
	if !ok {
		return Item{}, fmt.Errorf("%w: %q", ErrNotFound, id)
	}
	return item, nil
}
