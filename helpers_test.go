package iap_test

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/xraph/iap"
	"github.com/xraph/iap/billing/sim"
	"github.com/xraph/iap/catalog"
	"github.com/xraph/iap/event"
	"github.com/xraph/iap/item"
	"github.com/xraph/iap/store/memory"
	"github.com/xraph/iap/types"
)

const (
	gemPack   = "gem_pack_small"
	removeAds = "remove_ads"
)

func testAssets() catalog.Assets {
	return catalog.Assets{
		Version: 3,
		Items: []item.Item{
			{
				ID:   gemPack,
				Name: "Small gem pack",
				Kind: item.KindConsumable,
				Purchase: item.PurchaseType{Market: &item.Listing{
					ProductID: gemPack,
					Managed:   item.ManagedUnmanaged,
					Price:     types.PriceFromMinor(199, "usd"),
				}},
			},
			{
				ID:   removeAds,
				Name: "Remove ads",
				Kind: item.KindNonConsumable,
				Purchase: item.PurchaseType{Market: &item.Listing{
					ProductID: removeAds,
					Managed:   item.ManagedManaged,
					Price:     types.PriceFromMinor(499, "usd"),
				}},
			},
		},
	}
}

// recorder is a listener that keeps every published event in order.
type recorder struct {
	mu     sync.Mutex
	events []*event.Event
}

func (r *recorder) Name() string { return "recorder" }

func (r *recorder) OnEvent(_ context.Context, e *event.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func (r *recorder) all() []*event.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*event.Event(nil), r.events...)
}

// only returns the types of recorded events that are in want, in order.
func (r *recorder) only(want ...event.Type) []event.Type {
	keep := make(map[event.Type]bool, len(want))
	for _, w := range want {
		keep[w] = true
	}
	var out []event.Type
	for _, e := range r.all() {
		if keep[e.Type] {
			out = append(out, e.Type)
		}
	}
	return out
}

func (r *recorder) count(t event.Type) int {
	return len(r.only(t))
}

func (r *recorder) first(t event.Type) *event.Event {
	for _, e := range r.all() {
		if e.Type == t {
			return e
		}
	}
	return nil
}

func (r *recorder) reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
}

type harness struct {
	o     *iap.Orchestrator
	sim   *sim.Backend
	rec   *recorder
	store *memory.Store
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newHarness(t *testing.T, simOpts []sim.Option, opts ...iap.Option) *harness {
	t.Helper()

	h := &harness{
		sim:   sim.New(append([]sim.Option{sim.WithLogger(discardLogger())}, simOpts...)...),
		rec:   &recorder{},
		store: memory.New(),
	}

	base := []iap.Option{
		iap.WithLogger(discardLogger()),
		iap.WithBackend(h.sim),
		iap.WithPlugin(h.rec),
	}
	o, err := iap.New(h.store, append(base, opts...)...)
	if err != nil {
		t.Fatalf("iap.New: %v", err)
	}
	h.o = o
	return h
}

// initialize runs a successful Initialize, waits for the startup restore
// and clears the recorded events.
func (h *harness) initialize(t *testing.T) {
	t.Helper()
	if !h.o.Initialize(context.Background(), testAssets(), "pk-test", "secret-test") {
		t.Fatalf("Initialize failed: %+v", h.rec.all())
	}
	h.sim.Wait()
	h.rec.reset()
}

// buy starts a purchase and waits for the backend to settle.
func (h *harness) buy(t *testing.T, productID string) {
	t.Helper()
	started, err := h.o.Buy(context.Background(), productID, "payload-"+productID)
	if err != nil {
		t.Fatalf("Buy(%s): %v", productID, err)
	}
	if !started {
		t.Fatalf("Buy(%s) did not start", productID)
	}
	h.sim.Wait()
}

func (h *harness) balance(t *testing.T, itemID string) int {
	t.Helper()
	n, err := h.o.Balance(context.Background(), itemID)
	if err != nil {
		t.Fatalf("Balance(%s): %v", itemID, err)
	}
	return n
}
