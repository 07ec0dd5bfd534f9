package iap_test

import (
	"context"
	"log"
	"log/slog"
	"strings"
	"testing"

	"github.com/xraph/iap"
	"github.com/xraph/iap/billing/sim"
	"github.com/xraph/iap/catalog"
	"github.com/xraph/iap/store/memory"
	"github.com/xraph/iap/types"
)

const quickStartCatalog = `
version: 1
items:
  - id: gems_small
    name: Small gem pack
    kind: consumable
    market:
      product_id: com.example.gems.small
      managed: UNMANAGED
      price_micros: 990000
      currency: usd
  - id: no_ads
    name: Remove ads
    kind: non_consumable
    market:
      product_id: com.example.noads
      managed: MANAGED
      price_micros: 2990000
      currency: usd
`

// TestDocumentationExamples verifies that all examples in the documentation compile
func TestDocumentationExamples(t *testing.T) {
	// Test Quick Start example from the package docs
	t.Run("QuickStartExample", func(t *testing.T) {
		// Simulated marketplace for demo, use a real backend in production
		backend := sim.New(sim.WithLogger(slog.New(slog.DiscardHandler)))

		o, err := iap.New(memory.New(),
			iap.WithBackend(backend),
			iap.WithLogger(slog.New(slog.DiscardHandler)),
		)
		if err != nil {
			t.Fatal(err)
		}

		ctx := context.Background()
		if err := o.Start(ctx); err != nil {
			t.Fatal(err)
		}
		defer o.Stop()

		assets, err := catalog.DecodeYAML(strings.NewReader(quickStartCatalog))
		if err != nil {
			t.Fatal(err)
		}
		if !o.Initialize(ctx, assets, "public-key", "custom-secret") {
			t.Fatal("initialization failed")
		}

		started, err := o.Buy(ctx, "com.example.gems.small", "order-42")
		if err != nil {
			t.Fatal(err)
		}
		backend.Wait()

		gems, err := o.Balance(ctx, "gems_small")
		if err != nil {
			t.Fatal(err)
		}
		log.Printf("purchase started: %v, gems owned: %d\n", started, gems)
		if gems != 1 {
			t.Errorf("gems owned: got %d, want 1", gems)
		}
	})

	// Test Price type examples
	t.Run("PriceExamples", func(t *testing.T) {
		// Constructors
		_ = types.PriceFromMinor(199, "usd")          // $1.99
		_ = types.PriceFromMicros(120_000_000, "jpy") // ¥120

		// Formatting
		p := iap.PriceFromMinor(99, "eur")
		if p.String() != "€0.99" {
			t.Errorf("String: got %q", p.String())
		}
		_ = p.FormatMajor() // "0.99"
	})
}
