package iap

import (
	"context"

	"github.com/xraph/iap/billing"
	"github.com/xraph/iap/item"
)

// RefreshInventory reconciles the ledger with the purchases the marketplace
// reports as owned and, when refreshMarketDetails is set, merges listing
// metadata into the catalog. It returns immediately.
func (o *Orchestrator) RefreshInventory(ctx context.Context, refreshMarketDetails bool) {
	if o.backend == nil {
		o.unexpected(ctx, ErrNoBackend.Error())
		return
	}

	ctx = context.WithoutCancel(ctx)
	o.whenBackendReady(ctx, "refresh_inventory", func() {
		o.logger.Debug("billing ready, reconciling owned purchases and refunds")

		onSuccess, onFail := billing.SettleInventory(o.logger, "query_inventory",
			func(owned []billing.Purchase, details []billing.SkuDetails) {
				o.reconcile(ctx, owned, details)
			},
			func(err error) {
				o.plugins.EmitRestoreFinished(ctx, false)
				o.unexpected(ctx, err.Error())
			},
		)

		o.plugins.EmitRestoreStarted(ctx)
		o.backend.QueryInventory(refreshMarketDetails, o.catalog.ProductIDs(), onSuccess, onFail)
	})
}

// reconcile replays owned purchases through result handling and applies
// listing details to the catalog.
func (o *Orchestrator) reconcile(ctx context.Context, owned []billing.Purchase, details []billing.SkuDetails) {
	if len(owned) > 0 {
		for _, p := range owned {
			o.logger.Debug("got owned item", "product_id", p.ProductID)
			o.handleResult(ctx, billing.Result{Outcome: billing.OutcomeSuccess, Purchase: &p}, false)
		}
		o.plugins.EmitRestoreFinished(ctx, true)
	}

	if len(details) > 0 {
		listings := make([]item.Listing, 0, len(details))
		for _, d := range details {
			l, err := o.catalog.ApplyDetails(d)
			if err != nil {
				o.logger.Error("couldn't find a purchasable item for listing",
					"product_id", d.ProductID,
					"error", err,
				)
				continue
			}
			o.logger.Debug("got item details",
				"product_id", d.ProductID,
				"title", d.Title,
				"price", d.PriceText,
			)
			listings = append(listings, l)
		}
		o.plugins.EmitMarketItemsRefreshed(ctx, listings)
	}
}

// StartBackground keeps the billing service connected between operations.
func (o *Orchestrator) StartBackground(ctx context.Context) {
	if o.backend == nil {
		o.unexpected(ctx, ErrNoBackend.Error())
		return
	}

	ctx = context.WithoutCancel(ctx)
	ready, fail := billing.Settle[bool](o.logger, "start_background",
		func(alreadyStarted bool) {
			if alreadyStarted {
				o.logger.Debug("billing service was already running in background")
				return
			}
			o.notifyBackendStarted(ctx)
			o.logger.Debug("started billing service in background")
		},
		func(err error) {
			o.logger.Error("couldn't start billing service in background", "error", err)
		},
	)
	o.backend.StartBackground(ready, fail)
}

// StopBackground releases the background billing connection.
func (o *Orchestrator) StopBackground(ctx context.Context) {
	if o.backend == nil {
		o.unexpected(ctx, ErrNoBackend.Error())
		return
	}

	ctx = context.WithoutCancel(ctx)
	ready, fail := billing.Settle[bool](o.logger, "stop_background",
		func(bool) {
			o.plugins.EmitBackendStopped(ctx)
			o.logger.Debug("stopped billing service in background")
		},
		func(err error) {
			o.logger.Error("couldn't stop billing service in background", "error", err)
		},
	)
	o.backend.StopBackground(ready, fail)
}
