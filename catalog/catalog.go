// Package catalog resolves marketplace product ids to virtual items.
//
// The catalog is loaded once from an Assets bundle and is read-only to the
// purchase engine, except for marketplace metadata merged in after an
// inventory query.
package catalog

import (
	"errors"
	"fmt"
	"sync"

	"github.com/xraph/iap/item"
)

var (
	// ErrItemNotFound is returned when no item has the requested id.
	ErrItemNotFound = errors.New("catalog: item not found")
	// ErrProductNotFound is returned when no item is listed under a product id.
	ErrProductNotFound = errors.New("catalog: no item for product id")
	// ErrDuplicate is returned when two items share an id or product id.
	ErrDuplicate = errors.New("catalog: duplicate")
)

// Assets is a versioned bundle of item definitions.
type Assets struct {
	Version int         `json:"version" yaml:"version"`
	Items   []item.Item `json:"items"   yaml:"-"`
}

// Catalog is an in-memory, concurrency-safe item catalog.
type Catalog struct {
	mu        sync.RWMutex
	version   int
	items     map[string]*item.Item
	byProduct map[string]string
	order     []string
}

// New creates an empty catalog.
func New() *Catalog {
	return &Catalog{
		items:     make(map[string]*item.Item),
		byProduct: make(map[string]string),
	}
}

// Load validates assets and replaces the catalog contents with them.
// On error the catalog is left unchanged.
func (c *Catalog) Load(a Assets) error {
	items := make(map[string]*item.Item, len(a.Items))
	byProduct := make(map[string]string, len(a.Items))
	order := make([]string, 0, len(a.Items))

	for _, it := range a.Items {
		if err := it.Validate(); err != nil {
			return err
		}
		if _, ok := items[it.ID]; ok {
			return fmt.Errorf("%w: item id %q", ErrDuplicate, it.ID)
		}
		cp := it.Clone()
		items[it.ID] = &cp
		order = append(order, it.ID)

		if pid := it.ProductID(); pid != "" {
			if other, ok := byProduct[pid]; ok {
				return fmt.Errorf("%w: product id %q used by %q and %q", ErrDuplicate, pid, other, it.ID)
			}
			byProduct[pid] = it.ID
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.version = a.Version
	c.items = items
	c.byProduct = byProduct
	c.order = order
	return nil
}

// Version returns the version of the loaded assets.
func (c *Catalog) Version() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.version
}

// Item returns a copy of the item with the given id.
func (c *Catalog) Item(itemID string) (item.Item, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	it, ok := c.items[itemID]
	if !ok {
		return item.Item{}, fmt.Errorf("%w: %s", ErrItemNotFound, itemID)
	}
	return it.Clone(), nil
}

// ItemByProductID returns a copy of the item listed under productID.
func (c *Catalog) ItemByProductID(productID string) (item.Item, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	itemID, ok := c.byProduct[productID]
	if !ok {
		return item.Item{}, fmt.Errorf("%w: %s", ErrProductNotFound, productID)
	}
	return c.items[itemID].Clone(), nil
}

// Items returns copies of all items in load order.
func (c *Catalog) Items() []item.Item {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]item.Item, 0, len(c.order))
	for _, itemID := range c.order {
		out = append(out, c.items[itemID].Clone())
	}
	return out
}

// ProductIDs returns the product ids of every market-priced item in load order.
func (c *Catalog) ProductIDs() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]string, 0, len(c.byProduct))
	for _, itemID := range c.order {
		if pid := c.items[itemID].ProductID(); pid != "" {
			out = append(out, pid)
		}
	}
	return out
}

// ApplyDetails merges marketplace metadata into the listing for
// d.ProductID and returns a copy of the updated listing.
func (c *Catalog) ApplyDetails(d item.MarketDetails) (item.Listing, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	itemID, ok := c.byProduct[d.ProductID]
	if !ok {
		return item.Listing{}, fmt.Errorf("%w: %s", ErrProductNotFound, d.ProductID)
	}
	l := c.items[itemID].Purchase.Market
	l.Apply(d)
	return *l, nil
}
