package catalog

import (
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/xraph/iap/item"
	"github.com/xraph/iap/types"
)

// assetsFile is the on-disk layout of an assets bundle.
//
//	version: 3
//	items:
//	  - id: gem_pack_small
//	    name: Small Gem Pack
//	    kind: consumable
//	    market:
//	      product_id: com.example.gems.small
//	      managed: UNMANAGED
//	      price_micros: 990000
//	      currency: usd
type assetsFile struct {
	Version int        `yaml:"version"`
	Items   []itemFile `yaml:"items"`
}

type itemFile struct {
	ID          string        `yaml:"id"`
	Name        string        `yaml:"name"`
	Description string        `yaml:"description"`
	Kind        string        `yaml:"kind"`
	Market      *marketFile   `yaml:"market"`
	Currency    *currencyFile `yaml:"currency_price"`
}

type marketFile struct {
	ProductID   string `yaml:"product_id"`
	Managed     string `yaml:"managed"`
	PriceMicros int64  `yaml:"price_micros"`
	Currency    string `yaml:"currency"`
}

type currencyFile struct {
	ItemID string `yaml:"item_id"`
	Amount int    `yaml:"amount"`
}

// DecodeYAML reads an assets bundle in YAML form.
func DecodeYAML(r io.Reader) (Assets, error) {
	var f assetsFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		return Assets{}, fmt.Errorf("catalog: decode yaml: %w", err)
	}

	a := Assets{Version: f.Version, Items: make([]item.Item, 0, len(f.Items))}
	for i, fi := range f.Items {
		it, err := fi.toItem()
		if err != nil {
			return Assets{}, fmt.Errorf("catalog: items[%d]: %w", i, err)
		}
		a.Items = append(a.Items, it)
	}
	return a, nil
}

// LoadFile reads a YAML assets bundle from path.
func LoadFile(path string) (Assets, error) {
	f, err := os.Open(path)
	if err != nil {
		return Assets{}, fmt.Errorf("catalog: open %s: %w", path, err)
	}
	defer f.Close()

	return DecodeYAML(f)
}

func (fi itemFile) toItem() (item.Item, error) {
	kind, err := item.ParseKind(fi.Kind)
	if err != nil {
		return item.Item{}, err
	}

	it := item.Item{
		ID:          fi.ID,
		Name:        fi.Name,
		Description: fi.Description,
		Kind:        kind,
	}

	if fi.Market != nil {
		managed, err := item.ParseManaged(fi.Market.Managed)
		if err != nil {
			return item.Item{}, err
		}
		it.Purchase.Market = &item.Listing{
			ProductID: fi.Market.ProductID,
			Managed:   managed,
			Price:     types.PriceFromMicros(fi.Market.PriceMicros, fi.Market.Currency),
		}
	}
	if fi.Currency != nil {
		it.Purchase.Currency = &item.CurrencyPrice{
			CurrencyItemID: fi.Currency.ItemID,
			Amount:         fi.Currency.Amount,
		}
	}

	return it, it.Validate()
}
