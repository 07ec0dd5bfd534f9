package catalog_test

import (
	"errors"
	"strings"
	"testing"

	"github.com/xraph/iap/catalog"
	"github.com/xraph/iap/item"
)

const bundle = `
version: 3
items:
  - id: gem_pack_small
    name: Small Gem Pack
    kind: consumable
    market:
      product_id: com.example.gems.small
      price_micros: 990000
      currency: usd
  - id: remove_ads
    name: Remove Ads
    kind: non_consumable
    market:
      product_id: com.example.noads
      managed: MANAGED
      price_micros: 2990000
      currency: usd
  - id: sword
    name: Sword
    kind: non_consumable
    currency_price:
      item_id: gem_pack_small
      amount: 5
`

func loaded(t *testing.T) *catalog.Catalog {
	t.Helper()
	a, err := catalog.DecodeYAML(strings.NewReader(bundle))
	if err != nil {
		t.Fatalf("DecodeYAML: %v", err)
	}
	c := catalog.New()
	if err := c.Load(a); err != nil {
		t.Fatalf("Load: %v", err)
	}
	return c
}

func TestDecodeAndLoad(t *testing.T) {
	c := loaded(t)

	if c.Version() != 3 {
		t.Errorf("Version: got %d, want 3", c.Version())
	}
	if got := len(c.Items()); got != 3 {
		t.Errorf("Items: got %d, want 3", got)
	}

	pids := c.ProductIDs()
	want := []string{"com.example.gems.small", "com.example.noads"}
	if len(pids) != len(want) {
		t.Fatalf("ProductIDs: got %v, want %v", pids, want)
	}
	for i := range want {
		if pids[i] != want[i] {
			t.Errorf("ProductIDs[%d]: got %q, want %q", i, pids[i], want[i])
		}
	}
}

func TestLookup(t *testing.T) {
	c := loaded(t)

	tests := []struct {
		name    string
		lookup  func() (item.Item, error)
		wantID  string
		wantErr error
	}{
		{"by product", func() (item.Item, error) { return c.ItemByProductID("com.example.noads") }, "remove_ads", nil},
		{"by id", func() (item.Item, error) { return c.Item("sword") }, "sword", nil},
		{"unknown product", func() (item.Item, error) { return c.ItemByProductID("com.example.ghost") }, "", catalog.ErrProductNotFound},
		{"unknown id", func() (item.Item, error) { return c.Item("ghost") }, "", catalog.ErrItemNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			it, err := tt.lookup()
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("got error %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if it.ID != tt.wantID {
				t.Errorf("got %q, want %q", it.ID, tt.wantID)
			}
		})
	}
}

func TestApplyDetails(t *testing.T) {
	c := loaded(t)

	l, err := c.ApplyDetails(item.MarketDetails{
		ProductID: "com.example.gems.small",
		Title:     "Small Gems",
		PriceText: "€0.89",
		Currency:  "EUR",
	})
	if err != nil {
		t.Fatalf("ApplyDetails: %v", err)
	}
	if l.MarketTitle != "Small Gems" {
		t.Errorf("returned listing: got %q", l.MarketTitle)
	}

	it, _ := c.Item("gem_pack_small")
	if it.Purchase.Market.MarketPriceText != "€0.89" {
		t.Errorf("catalog listing not updated: %+v", it.Purchase.Market)
	}

	if _, err := c.ApplyDetails(item.MarketDetails{ProductID: "nope"}); !errors.Is(err, catalog.ErrProductNotFound) {
		t.Errorf("expected ErrProductNotFound, got %v", err)
	}
}

func TestLoadRejects(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"managed consumable", `
items:
  - id: a
    kind: consumable
    market: {product_id: p, managed: MANAGED}
`},
		{"duplicate product", `
items:
  - id: a
    kind: consumable
    market: {product_id: p}
  - id: b
    kind: consumable
    market: {product_id: p}
`},
		{"unknown field", `
items:
  - id: a
    kind: consumable
    colour: red
    market: {product_id: p}
`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, err := catalog.DecodeYAML(strings.NewReader(tt.yaml))
			if err == nil {
				err = catalog.New().Load(a)
			}
			if err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestLoadLeavesCatalogOnError(t *testing.T) {
	c := loaded(t)
	bad := catalog.Assets{Items: []item.Item{{ID: "broken"}}}
	if err := c.Load(bad); err == nil {
		t.Fatal("expected error")
	}
	if len(c.Items()) != 3 {
		t.Error("catalog changed after failed load")
	}
}
