// Package item defines purchasable virtual items and their marketplace
// listings.
//
// An Item is a tagged variant: its Kind decides how ownership is tracked
// (a counter for consumables, a flag for non-consumables) and its
// PurchaseType decides how it is paid for (through the marketplace or with
// another virtual currency).
package item

import (
	"errors"
	"fmt"
	"strings"

	"github.com/xraph/iap/types"
)

// ErrInvalid is wrapped by every validation failure in this package.
var ErrInvalid = errors.New("item: invalid")

// Kind is the ownership variant of an item.
type Kind int

const (
	// KindConsumable items are counted; each purchase adds one unit and the
	// purchase must be consumed with the marketplace afterwards.
	KindConsumable Kind = iota + 1
	// KindNonConsumable items are owned at most once.
	KindNonConsumable
)

// String returns the canonical name of the kind.
func (k Kind) String() string {
	switch k {
	case KindConsumable:
		return "consumable"
	case KindNonConsumable:
		return "non_consumable"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// ParseKind parses a kind name as produced by Kind.String.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "consumable":
		return KindConsumable, nil
	case "non_consumable", "nonconsumable", "non-consumable":
		return KindNonConsumable, nil
	default:
		return 0, fmt.Errorf("%w: unknown kind %q", ErrInvalid, s)
	}
}

// Managed is the marketplace management type of a listing.
type Managed string

const (
	ManagedManaged      Managed = "MANAGED"
	ManagedUnmanaged    Managed = "UNMANAGED"
	ManagedSubscription Managed = "SUBSCRIPTION"
)

// ParseManaged parses a management type, defaulting to UNMANAGED when empty.
func ParseManaged(s string) (Managed, error) {
	switch Managed(strings.ToUpper(strings.TrimSpace(s))) {
	case "", ManagedUnmanaged:
		return ManagedUnmanaged, nil
	case ManagedManaged:
		return ManagedManaged, nil
	case ManagedSubscription:
		return ManagedSubscription, nil
	default:
		return "", fmt.Errorf("%w: unknown managed type %q", ErrInvalid, s)
	}
}

// Listing is the marketplace side of an item. The Market* fields are
// populated from inventory queries and are empty until the first refresh.
type Listing struct {
	ProductID string      `json:"product_id"`
	Managed   Managed     `json:"managed"`
	Price     types.Price `json:"price"`

	MarketTitle       string      `json:"market_title,omitempty"`
	MarketDescription string      `json:"market_description,omitempty"`
	MarketPriceText   string      `json:"market_price_text,omitempty"`
	MarketCurrency    string      `json:"market_currency,omitempty"`
	MarketPrice       types.Price `json:"market_price"`
}

// MarketDetails is the listing metadata a marketplace returns for a product.
type MarketDetails struct {
	ProductID   string `json:"product_id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	PriceText   string `json:"price_text"`
	Currency    string `json:"currency"`
	PriceMicros int64  `json:"price_micros"`
}

// Apply copies marketplace metadata onto the listing.
func (l *Listing) Apply(d MarketDetails) {
	l.MarketTitle = d.Title
	l.MarketDescription = d.Description
	l.MarketPriceText = d.PriceText
	l.MarketCurrency = d.Currency
	l.MarketPrice = types.PriceFromMicros(d.PriceMicros, d.Currency)
}

// CurrencyPrice prices an item in another virtual currency.
type CurrencyPrice struct {
	CurrencyItemID string `json:"currency_item_id"`
	Amount         int    `json:"amount"`
}

// PurchaseType says how an item is paid for. Exactly one field is set.
type PurchaseType struct {
	Market   *Listing       `json:"market,omitempty"`
	Currency *CurrencyPrice `json:"currency,omitempty"`
}

// Item is a purchasable virtual item.
type Item struct {
	ID          string       `json:"id"`
	Name        string       `json:"name"`
	Description string       `json:"description,omitempty"`
	Kind        Kind         `json:"kind"`
	Purchase    PurchaseType `json:"purchase"`
}

// Listing returns the item's marketplace listing, if it has one.
func (i Item) Listing() (*Listing, bool) {
	if i.Purchase.Market == nil {
		return nil, false
	}
	return i.Purchase.Market, true
}

// ProductID returns the marketplace product id or "" for currency-priced items.
func (i Item) ProductID() string {
	if l, ok := i.Listing(); ok {
		return l.ProductID
	}
	return ""
}

// Consumable reports whether the item is a consumable.
func (i Item) Consumable() bool { return i.Kind == KindConsumable }

// Clone returns a deep copy so callers cannot mutate catalog state.
func (i Item) Clone() Item {
	out := i
	if i.Purchase.Market != nil {
		l := *i.Purchase.Market
		out.Purchase.Market = &l
	}
	if i.Purchase.Currency != nil {
		c := *i.Purchase.Currency
		out.Purchase.Currency = &c
	}
	return out
}

// Validate checks the item's structural invariants.
func (i Item) Validate() error {
	if strings.TrimSpace(i.ID) == "" {
		return fmt.Errorf("%w: id is required", ErrInvalid)
	}
	if i.Kind != KindConsumable && i.Kind != KindNonConsumable {
		return fmt.Errorf("%w: %s: unknown kind %d", ErrInvalid, i.ID, int(i.Kind))
	}

	market, currency := i.Purchase.Market != nil, i.Purchase.Currency != nil
	switch {
	case market == currency:
		return fmt.Errorf("%w: %s: exactly one purchase type must be set", ErrInvalid, i.ID)
	case market:
		l := i.Purchase.Market
		if strings.TrimSpace(l.ProductID) == "" {
			return fmt.Errorf("%w: %s: product id is required", ErrInvalid, i.ID)
		}
		if l.Managed == ManagedManaged && i.Kind != KindNonConsumable {
			return fmt.Errorf("%w: %s: MANAGED listings must be non-consumable", ErrInvalid, i.ID)
		}
	case currency:
		if i.Purchase.Currency.CurrencyItemID == "" || i.Purchase.Currency.Amount <= 0 {
			return fmt.Errorf("%w: %s: currency price needs an item and a positive amount", ErrInvalid, i.ID)
		}
	}
	return nil
}
