package iap_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/xraph/iap/billing"
	"github.com/xraph/iap/billing/sim"
	"github.com/xraph/iap/event"
	"github.com/xraph/iap/history"
)

func TestRefreshInventoryDetails(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, []sim.Option{
		sim.WithDetails(
			billing.SkuDetails{ProductID: gemPack, Title: "Gems", PriceText: "$1.99", Currency: "USD", PriceMicros: 1_990_000},
			billing.SkuDetails{ProductID: removeAds, Title: "No ads", PriceText: "$4.99", Currency: "USD", PriceMicros: 4_990_000},
		),
		sim.WithStrayDetails(billing.SkuDetails{ProductID: "retired_product", Title: "Gone"}),
	})

	if !h.o.Initialize(ctx, testAssets(), "pk-test", "secret-test") {
		t.Fatalf("Initialize failed: %+v", h.rec.all())
	}
	h.sim.Wait()

	e := h.rec.first(event.MarketItemsRefreshed)
	if e == nil {
		t.Fatal("no MarketItemsRefreshed event")
	}
	if len(e.Listings) != 2 {
		t.Errorf("listings: got %d, want 2", len(e.Listings))
	}
	if got := h.rec.count(event.UnexpectedError); got != 0 {
		t.Errorf("UnexpectedError events: got %d, want 0", got)
	}

	it, err := h.o.Item(gemPack)
	if err != nil {
		t.Fatal(err)
	}
	l := it.Purchase.Market
	if l.MarketTitle != "Gems" || l.MarketPriceText != "$1.99" {
		t.Errorf("listing not refreshed: %+v", l)
	}
}

func TestRefreshInventoryEmpty(t *testing.T) {
	h := newHarness(t, nil)
	h.initialize(t)

	h.o.RefreshInventory(context.Background(), false)
	h.sim.Wait()

	if got := h.rec.count(event.RestoreStarted); got != 1 {
		t.Errorf("RestoreStarted events: got %d, want 1", got)
	}
	if got := h.rec.count(event.RestoreFinished); got != 0 {
		t.Errorf("RestoreFinished events: got %d, want 0", got)
	}
	if got := h.rec.count(event.MarketItemsRefreshed); got != 0 {
		t.Errorf("MarketItemsRefreshed events: got %d, want 0", got)
	}
}

func TestRefreshInventoryOwned(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil)
	h.initialize(t)

	if _, err := h.o.ResetBalance(ctx, gemPack, 2); err != nil {
		t.Fatal(err)
	}
	h.sim.AddOwned(billing.Purchase{ProductID: removeAds, Token: "tok-ads", OrderID: "GPA.1", State: billing.StatePurchased})
	h.sim.AddOwned(billing.Purchase{ProductID: gemPack, Token: "tok-gem", OrderID: "GPA.2", State: billing.StateRefunded})

	h.o.RefreshInventory(ctx, false)
	h.sim.Wait()

	e := h.rec.first(event.RestoreFinished)
	if e == nil || !e.Success {
		t.Fatalf("restore finished event: %+v", e)
	}
	if got := h.rec.count(event.RestoreFinished); got != 1 {
		t.Errorf("RestoreFinished events: got %d, want 1", got)
	}
	if n := h.balance(t, removeAds); n != 1 {
		t.Errorf("remove_ads balance: got %d, want 1", n)
	}
	if n := h.balance(t, gemPack); n != 1 {
		t.Errorf("gem balance: got %d, want 1", n)
	}
	if got := h.rec.count(event.MarketRefund); got != 1 {
		t.Errorf("MarketRefund events: got %d, want 1", got)
	}
}

func TestConcurrentRestoreGrantsOnce(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil)
	h.initialize(t)

	h.sim.AddOwned(billing.Purchase{ProductID: removeAds, Token: "tok-ads", OrderID: "GPA.9", State: billing.StatePurchased})

	const restores = 50
	var wg sync.WaitGroup
	for range restores {
		wg.Add(1)
		go func() {
			defer wg.Done()
			h.o.RefreshInventory(ctx, false)
		}()
	}
	wg.Wait()
	h.sim.Wait()

	if got := h.rec.count(event.ItemPurchased); got != 1 {
		t.Errorf("ItemPurchased events: got %d, want 1", got)
	}
	if got := h.rec.count(event.MarketPurchase); got != 1 {
		t.Errorf("MarketPurchase events: got %d, want 1", got)
	}
	if got := h.rec.count(event.RestoreFinished); got != restores {
		t.Errorf("RestoreFinished events: got %d, want %d", got, restores)
	}
	if n := h.balance(t, removeAds); n != 1 {
		t.Errorf("balance: got %d, want 1", n)
	}
	entries, err := h.o.History(ctx, history.ListOpts{ItemID: removeAds})
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Errorf("history entries: got %d, want 1", len(entries))
	}
}

func TestRefreshInventoryConsumesOwnedConsumable(t *testing.T) {
	h := newHarness(t, nil)
	h.initialize(t)

	h.sim.AddOwned(billing.Purchase{ProductID: gemPack, Token: "tok-gem", OrderID: "GPA.3", State: billing.StatePurchased})
	h.o.RefreshInventory(context.Background(), false)
	h.sim.Wait()

	if n := h.balance(t, gemPack); n != 1 {
		t.Errorf("balance: got %d, want 1", n)
	}
	if len(h.sim.Consumed()) != 1 || len(h.sim.Owned()) != 0 {
		t.Errorf("consumed %d, still owned %d", len(h.sim.Consumed()), len(h.sim.Owned()))
	}
}

func TestRefreshInventoryQueryFailure(t *testing.T) {
	h := newHarness(t, nil)
	h.initialize(t)

	h.sim.SetQueryError(errors.New("inventory unavailable"))
	h.o.RefreshInventory(context.Background(), true)
	h.sim.Wait()

	e := h.rec.first(event.RestoreFinished)
	if e == nil || e.Success {
		t.Errorf("restore finished event: %+v", e)
	}
	u := h.rec.first(event.UnexpectedError)
	if u == nil || u.Message != "inventory unavailable" {
		t.Errorf("unexpected error event: %+v", u)
	}
}

func TestRefreshInventoryBillingNotSupported(t *testing.T) {
	h := newHarness(t, nil)
	h.initialize(t)

	h.sim.SetInitError(errors.New("no billing service"))
	h.o.RefreshInventory(context.Background(), true)
	h.sim.Wait()

	if got := h.rec.count(event.BillingNotSupported); got != 1 {
		t.Errorf("BillingNotSupported events: got %d, want 1", got)
	}
	if got := h.rec.count(event.RestoreStarted); got != 0 {
		t.Errorf("RestoreStarted events: got %d, want 0", got)
	}
}

func TestBackground(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil)
	h.initialize(t)

	h.o.StartBackground(ctx)
	h.sim.Wait()
	if got := h.rec.count(event.BackendStarted); got != 1 {
		t.Fatalf("BackendStarted events: got %d, want 1", got)
	}

	// The running background service is reused without a new start event.
	h.buy(t, gemPack)
	if got := h.rec.count(event.BackendStarted); got != 1 {
		t.Errorf("BackendStarted events after buy: got %d, want 1", got)
	}

	h.o.StartBackground(ctx)
	h.sim.Wait()
	if got := h.rec.count(event.BackendStarted); got != 1 {
		t.Errorf("BackendStarted events after restart: got %d, want 1", got)
	}

	h.o.StopBackground(ctx)
	h.sim.Wait()
	if got := h.rec.count(event.BackendStopped); got != 1 {
		t.Errorf("BackendStopped events: got %d, want 1", got)
	}
}
