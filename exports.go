package iap

import (
	"github.com/xraph/iap/billing"
	"github.com/xraph/iap/catalog"
	"github.com/xraph/iap/item"
	"github.com/xraph/iap/types"
)

// Re-export common types for convenience so users don't have to import the
// subpackages for everyday use.

// Item is re-exported from the item package.
type Item = item.Item

// Listing is re-exported from the item package.
type Listing = item.Listing

// Assets is re-exported from the catalog package.
type Assets = catalog.Assets

// Purchase is re-exported from the billing package.
type Purchase = billing.Purchase

// Price is re-exported from the types package.
type Price = types.Price

// Entity is re-exported from the types package.
type Entity = types.Entity

// Re-export item kinds
const (
	KindConsumable    = item.KindConsumable
	KindNonConsumable = item.KindNonConsumable
)

// Re-export constructors
var (
	NewEntity      = types.NewEntity
	PriceFromMinor = types.PriceFromMinor
	LoadAssetsFile = catalog.LoadFile
)
