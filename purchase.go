package iap

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/xraph/iap/billing"
	"github.com/xraph/iap/history"
	"github.com/xraph/iap/id"
	"github.com/xraph/iap/item"
	"github.com/xraph/iap/types"
)

// ──────────────────────────────────────────────────
// Purchase flow
// ──────────────────────────────────────────────────

// Buy starts a marketplace purchase of productID. It returns
// ErrInvalidState when no public key has been stored and ErrNotInitialized
// before Initialize has succeeded. Otherwise it reports whether the
// purchase was started; the outcome arrives later as events.
func (o *Orchestrator) Buy(ctx context.Context, productID, payload string) (bool, error) {
	key, err := o.settings.PublicKey(ctx)
	if err != nil {
		return false, fmt.Errorf("iap: read public key: %w", err)
	}
	if key == "" {
		o.logger.Error("iap: no public key configured, purchases are disabled")
		return false, ErrInvalidState
	}
	if !o.initialized.Load() {
		o.logger.Error("iap: purchase requested before initialization", "product_id", productID)
		return false, ErrNotInitialized
	}

	it, err := o.catalog.ItemByProductID(productID)
	if err != nil {
		o.unexpected(ctx, fmt.Sprintf("couldn't find a purchasable item associated with %s", productID))
		return false, nil
	}
	if o.backend == nil {
		o.unexpected(ctx, ErrNoBackend.Error())
		return false, nil
	}

	ctx = context.WithoutCancel(ctx)
	o.whenBackendReady(ctx, "buy", func() {
		err := o.launcher.Launch(productID, payload, func(h billing.Host) bool {
			return o.BuyInner(ctx, h, productID, payload)
		})
		if err != nil {
			o.unexpected(ctx, fmt.Sprintf("launch purchase of %s: %v", it.ID, err))
		}
	})
	return true, nil
}

// BuyInner runs the purchase of productID on host once the host is open.
// Launchers call it; it reports whether a flow is being started. When it
// returns false the launcher should close the host.
func (o *Orchestrator) BuyInner(ctx context.Context, host billing.Host, productID, payload string) bool {
	it, err := o.catalog.ItemByProductID(productID)
	if err != nil {
		o.unexpected(ctx, fmt.Sprintf("couldn't find a purchasable item associated with %s", productID))
		return false
	}
	if o.backend == nil {
		o.unexpected(ctx, ErrNoBackend.Error())
		return false
	}

	o.whenBackendReady(ctx, "buy_inner", func() {
		flow := o.flows.open(host.ID())
		onResult := billing.OnceResult(o.logger, "launch_purchase", func(r billing.Result) {
			defer host.Finish()
			o.flows.close(host.ID(), flow)
			o.handleResult(ctx, r, true)
		})

		if err := o.backend.LaunchPurchase(host, productID, onResult, payload); err != nil {
			o.flows.close(host.ID(), flow)
			host.Finish()
			o.unexpected(ctx, fmt.Sprintf("launch purchase of %s: %v", it.ID, err))
			return
		}

		o.logger.Debug("purchase flow started",
			"item_id", it.ID,
			"product_id", productID,
			"host", host.ID(),
			"flow_id", flow.String(),
		)
		o.plugins.EmitPurchaseStarted(ctx, it)
	})
	return true
}

// whenBackendReady initializes the backend and runs then once it is ready.
// Initialization failures are reported as billing not supported.
func (o *Orchestrator) whenBackendReady(ctx context.Context, op string, then func()) {
	ready, fail := billing.Settle[bool](o.logger, op+".initialize",
		func(alreadyStarted bool) {
			if !alreadyStarted {
				o.notifyBackendStarted(ctx)
			}
			then()
		},
		func(err error) {
			o.billingNotSupported(ctx, err)
		},
	)
	o.backend.Initialize(ready, fail)
}

func (o *Orchestrator) notifyBackendStarted(ctx context.Context) {
	o.plugins.EmitBillingSupported(ctx)
	o.plugins.EmitBackendStarted(ctx)
}

// ──────────────────────────────────────────────────
// Result handling
// ──────────────────────────────────────────────────

// handleResult applies the result of a purchase attempt. live is false for
// purchases replayed from an inventory query.
func (o *Orchestrator) handleResult(ctx context.Context, r billing.Result, live bool) {
	switch r.Outcome {
	case billing.OutcomeSuccess:
		if r.Purchase == nil {
			o.unexpected(ctx, "purchase result without a purchase record")
			return
		}
		if live && o.validator != nil && r.Purchase.State == billing.StatePurchased {
			o.verifyPurchase(ctx, *r.Purchase)
			return
		}
		o.applyPurchase(ctx, *r.Purchase)

	case billing.OutcomeCancelled:
		o.handleCancelled(ctx, r.Purchase)

	case billing.OutcomeAlreadyOwned:
		if r.Purchase == nil {
			o.logger.Debug("already owned result without a purchase record")
			return
		}
		o.logger.Debug("item was not consumed, consuming it if consumable",
			"product_id", r.Purchase.ProductID,
		)
		o.consumeIfConsumable(ctx, *r.Purchase)

	case billing.OutcomeFailed:
		msg := "purchase failed"
		if r.Err != nil {
			msg = r.Err.Error()
		}
		o.unexpected(ctx, msg)

	default:
		o.unexpected(ctx, fmt.Sprintf("unknown purchase outcome %s", r.Outcome))
	}
}

// applyPurchase grants or refunds p depending on its state.
func (o *Orchestrator) applyPurchase(ctx context.Context, p billing.Purchase) {
	it, err := o.catalog.ItemByProductID(p.ProductID)
	if err != nil {
		o.unexpected(ctx, "couldn't find the sku of a product after purchase or query-inventory",
			"product_id", p.ProductID,
		)
		return
	}

	switch {
	case p.State == billing.StatePurchased:
		if o.grant(ctx, it, p) {
			o.consumeIfConsumable(ctx, p)
		}
	case p.State.IsRefund():
		o.refund(ctx, it, p)
	default:
		o.unexpected(ctx, fmt.Sprintf("unknown purchase state %s", p.State), "product_id", p.ProductID)
	}
}

// grant credits one unit of it. It reports whether the grant happened; an
// owned non-consumable is left untouched and publishes nothing. The owned
// flag is set with a compare-and-set, so orchestrators sharing a store
// grant a non-consumable once.
func (o *Orchestrator) grant(ctx context.Context, it item.Item, p billing.Purchase) bool {
	defer o.locks.lock(it.ID)()

	if !it.Consumable() {
		owned, err := o.ledger.Owned(ctx, it)
		if err != nil {
			o.unexpected(ctx, fmt.Sprintf("read ownership of %s: %v", it.ID, err))
			return false
		}
		if owned {
			o.logger.Debug("non-consumable already owned, ignoring purchase",
				"item_id", it.ID,
				"order_id", p.OrderID,
			)
			return false
		}
	}

	o.plugins.EmitMarketPurchase(ctx, it, p)

	balance, granted, err := o.ledger.Grant(ctx, it)
	if err != nil {
		o.unexpected(ctx, fmt.Sprintf("grant %s: %v", it.ID, err))
		return false
	}
	if !granted {
		// Another writer on the same store set the owned flag first.
		o.logger.Debug("non-consumable granted elsewhere, ignoring purchase",
			"item_id", it.ID,
			"order_id", p.OrderID,
		)
		return false
	}
	o.record(ctx, it, p, history.ActionGranted, balance)

	o.plugins.EmitItemPurchased(ctx, it)
	return true
}

// refund debits one unit of it unless friendly refunds are enabled. The
// refund event is published either way.
func (o *Orchestrator) refund(ctx context.Context, it item.Item, p billing.Purchase) {
	defer o.locks.lock(it.ID)()

	o.logger.Debug("purchase refunded",
		"item_id", it.ID,
		"state", p.State.String(),
		"friendly", o.friendlyRefunds,
	)

	var (
		balance int
		err     error
	)
	if o.friendlyRefunds {
		balance, err = o.ledger.Balance(ctx, it)
	} else {
		balance, err = o.ledger.Take(ctx, it, 1)
	}
	if err != nil {
		o.unexpected(ctx, fmt.Sprintf("refund %s: %v", it.ID, err))
	} else {
		o.record(ctx, it, p, history.ActionRefunded, balance)
	}

	o.plugins.EmitMarketRefund(ctx, it, p)
}

func (o *Orchestrator) handleCancelled(ctx context.Context, p *billing.Purchase) {
	if p == nil {
		o.unexpected(ctx, "")
		return
	}
	it, err := o.catalog.ItemByProductID(p.ProductID)
	if err != nil {
		o.unexpected(ctx, "", "product_id", p.ProductID, "error", err)
		return
	}
	o.plugins.EmitPurchaseCancelled(ctx, it)
}

// consumeIfConsumable asks the backend to consume p when its item is a
// consumable. A consume failure leaves the ledger as it is.
func (o *Orchestrator) consumeIfConsumable(ctx context.Context, p billing.Purchase) {
	it, err := o.catalog.ItemByProductID(p.ProductID)
	if err != nil {
		o.unexpected(ctx, "", "product_id", p.ProductID, "error", err)
		return
	}
	if !it.Consumable() {
		return
	}

	onDone, onFail := billing.Settle[billing.Purchase](o.logger, "consume",
		func(done billing.Purchase) {
			balance, _ := o.ledger.Balance(ctx, it) //nolint:errcheck // journal only
			o.record(ctx, it, done, history.ActionConsumed, balance)
		},
		func(err error) {
			o.logger.Debug("error while consuming", "product_id", p.ProductID, "error", err)
			o.unexpected(ctx, err.Error(), "error", fmt.Errorf("%w: %w", ErrConsumeFailed, err))
		},
	)
	o.backend.Consume(p, onDone, onFail)
}

// ──────────────────────────────────────────────────
// Receipt verification
// ──────────────────────────────────────────────────

// verifyPurchase runs p through the validator and applies it once approved.
func (o *Orchestrator) verifyPurchase(ctx context.Context, p billing.Purchase) {
	it, err := o.catalog.ItemByProductID(p.ProductID)
	if err != nil {
		o.unexpected(ctx, "couldn't find the sku of a product after purchase or query-inventory",
			"product_id", p.ProductID,
		)
		return
	}

	o.plugins.EmitPurchaseVerification(ctx, it, p)

	var fired atomic.Bool
	o.validator.Verify(ctx, p, func(approved bool, err error) {
		if !fired.CompareAndSwap(false, true) {
			o.logger.Warn("billing: continuation invoked more than once", "continuation", "verify")
			return
		}
		if err != nil || !approved {
			balance, _ := o.ledger.Balance(ctx, it) //nolint:errcheck // journal only
			o.record(ctx, it, p, history.ActionRejected, balance)
			o.unexpected(ctx, fmt.Sprintf("%v: order %s", ErrPurchaseRejected, p.OrderID), "error", err)
			return
		}
		o.applyPurchase(ctx, p)
	})
}

// record journals an ownership change. Failures are logged and never
// interrupt the purchase.
func (o *Orchestrator) record(ctx context.Context, it item.Item, p billing.Purchase, action history.Action, balance int) {
	e := &history.Entry{
		Entity:    types.NewEntity(),
		ID:        id.NewRecordID(),
		ItemID:    it.ID,
		ProductID: p.ProductID,
		Action:    action,
		Token:     p.Token,
		OrderID:   p.OrderID,
		Payload:   p.Payload,
		Balance:   balance,
	}
	if err := o.store.RecordEntry(ctx, e); err != nil {
		o.logger.Warn("failed to record purchase history",
			"item_id", it.ID,
			"action", string(action),
			"error", err,
		)
	}
}
