// Package plugin provides the event fan-out of the purchase engine.
// Plugins subscribe by implementing any of the hook interfaces below; the
// Registry discovers them on registration and dispatches every event to each
// subscriber in registration order.
package plugin

import (
	"context"

	"github.com/xraph/iap/billing"
	"github.com/xraph/iap/event"
	"github.com/xraph/iap/item"
)

// Plugin is the base interface that all plugins must implement.
type Plugin interface {
	Name() string
}

// ──────────────────────────────────────────────────
// Lifecycle hooks
// ──────────────────────────────────────────────────

// OnInit is called when the engine starts.
type OnInit interface {
	Plugin
	OnInit(ctx context.Context, engine any) error
}

// OnShutdown is called when the engine stops.
type OnShutdown interface {
	Plugin
	OnShutdown(ctx context.Context) error
}

// ──────────────────────────────────────────────────
// Billing service hooks
// ──────────────────────────────────────────────────

// OnOrchestratorInitialized is called once the engine has been initialized.
type OnOrchestratorInitialized interface {
	Plugin
	OnOrchestratorInitialized(ctx context.Context) error
}

// OnBillingSupported is called when the backend connected.
type OnBillingSupported interface {
	Plugin
	OnBillingSupported(ctx context.Context) error
}

// OnBillingNotSupported is called when the backend could not connect.
type OnBillingNotSupported interface {
	Plugin
	OnBillingNotSupported(ctx context.Context) error
}

// OnBackendStarted is called when the backend service started.
type OnBackendStarted interface {
	Plugin
	OnBackendStarted(ctx context.Context) error
}

// OnBackendStopped is called when the background service connection was released.
type OnBackendStopped interface {
	Plugin
	OnBackendStopped(ctx context.Context) error
}

// ──────────────────────────────────────────────────
// Restore hooks
// ──────────────────────────────────────────────────

// OnRestoreStarted is called before an inventory query starts.
type OnRestoreStarted interface {
	Plugin
	OnRestoreStarted(ctx context.Context) error
}

// OnRestoreFinished is called after owned purchases have been processed,
// or with success false when the query failed.
type OnRestoreFinished interface {
	Plugin
	OnRestoreFinished(ctx context.Context, success bool) error
}

// OnMarketItemsRefreshed is called with listings updated from the marketplace.
type OnMarketItemsRefreshed interface {
	Plugin
	OnMarketItemsRefreshed(ctx context.Context, listings []item.Listing) error
}

// ──────────────────────────────────────────────────
// Purchase hooks
// ──────────────────────────────────────────────────

// OnPurchaseStarted is called when a purchase flow was launched.
type OnPurchaseStarted interface {
	Plugin
	OnPurchaseStarted(ctx context.Context, it item.Item) error
}

// OnMarketPurchase is called when the marketplace reported a purchase,
// before the item is credited.
type OnMarketPurchase interface {
	Plugin
	OnMarketPurchase(ctx context.Context, it item.Item, p billing.Purchase) error
}

// OnPurchaseVerification is called when a receipt is handed to the validator.
type OnPurchaseVerification interface {
	Plugin
	OnPurchaseVerification(ctx context.Context, it item.Item, p billing.Purchase) error
}

// OnItemPurchased is called after the item has been credited.
type OnItemPurchased interface {
	Plugin
	OnItemPurchased(ctx context.Context, it item.Item) error
}

// OnPurchaseCancelled is called when the user backed out of a purchase.
type OnPurchaseCancelled interface {
	Plugin
	OnPurchaseCancelled(ctx context.Context, it item.Item) error
}

// OnMarketRefund is called when the marketplace reported a refund.
type OnMarketRefund interface {
	Plugin
	OnMarketRefund(ctx context.Context, it item.Item, p billing.Purchase) error
}

// OnUnexpectedError is called for every unexpected failure. message may be empty.
type OnUnexpectedError interface {
	Plugin
	OnUnexpectedError(ctx context.Context, message string) error
}

// ──────────────────────────────────────────────────
// Generic listeners
// ──────────────────────────────────────────────────

// Listener receives every event as an envelope, after the typed hooks.
type Listener interface {
	Plugin
	OnEvent(ctx context.Context, e *event.Event) error
}
