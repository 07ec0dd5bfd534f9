// Package iap provides an in-app purchase engine for Go applications.
//
// iap mediates purchases of virtual items through a marketplace billing
// backend and keeps a durable ledger of what the user owns, even though the
// backend is asynchronous, partially failing and may report duplicate or
// out-of-order results. It provides:
//
//   - Initialization gating with obscured persistence of marketplace keys
//   - Purchase flows with once-only result continuations
//   - Idempotent crediting of non-consumables and counted consumables
//   - Consumption of single-use purchases after they are credited
//   - Startup reconciliation of unconsumed purchases and refunds
//   - Optional receipt verification before a purchase is granted
//   - Plugin hooks and event listeners for every step
//
// # Quick Start
//
// Create an orchestrator over a store and a billing backend:
//
//	import (
//	    "github.com/xraph/iap"
//	    "github.com/xraph/iap/billing/sim"
//	    "github.com/xraph/iap/store/memory"
//	)
//
//	o, err := iap.New(memory.New(),
//	    iap.WithBackend(sim.New()),
//	    iap.WithLogger(slog.Default()),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	if err := o.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer o.Stop()
//
//	assets, err := iap.LoadAssetsFile("catalog.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if !o.Initialize(ctx, assets, publicKey, secret) {
//	    log.Fatal("initialization failed")
//	}
//
// # Purchases
//
// Buy returns as soon as the purchase has been handed to the backend. The
// outcome is published to plugins:
//
//	started, err := o.Buy(ctx, "gem_pack_small", "payload")
//
// For a successful purchase the events arrive in a fixed order:
// MarketPurchase, then the ledger grant, then ItemPurchased, then the
// consume request for consumables. A non-consumable that is already owned
// is never granted twice.
//
// # Refunds
//
// Refunded and canceled purchases debit one unit unless friendly refunds
// are enabled with WithFriendlyRefunds. The MarketRefund event is published
// in both cases.
//
// # Failures
//
// Backend connectivity failures publish BillingNotSupported. Everything
// else that goes wrong, such as a product id missing from the catalog or a
// rejected consume, publishes UnexpectedError. Only calling Buy without a
// stored public key is reported to the caller, as ErrInvalidState.
//
// # TypeID
//
// Flows, events and history records use TypeIDs:
//
//	flow_01h2xcejqtf2nbrexx3vqjhp41  // Purchase flow
//	evt_01h2xcejqtf2nbrexx3vqjhp41   // Published event
//	rec_01h455vb4pex5vsknk084sn02q   // History record
package iap
