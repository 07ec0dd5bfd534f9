// Package observability provides a metrics extension for the purchase
// engine that records event counts via a MetricFactory.
package observability

import (
	"context"

	"github.com/xraph/iap/billing"
	"github.com/xraph/iap/item"
	"github.com/xraph/iap/plugin"
)

// Ensure MetricsExtension implements required interfaces.
var (
	_ plugin.Plugin                 = (*MetricsExtension)(nil)
	_ plugin.OnInit                 = (*MetricsExtension)(nil)
	_ plugin.OnBillingSupported     = (*MetricsExtension)(nil)
	_ plugin.OnBillingNotSupported  = (*MetricsExtension)(nil)
	_ plugin.OnRestoreFinished      = (*MetricsExtension)(nil)
	_ plugin.OnMarketItemsRefreshed = (*MetricsExtension)(nil)
	_ plugin.OnPurchaseStarted      = (*MetricsExtension)(nil)
	_ plugin.OnMarketPurchase       = (*MetricsExtension)(nil)
	_ plugin.OnPurchaseVerification = (*MetricsExtension)(nil)
	_ plugin.OnItemPurchased        = (*MetricsExtension)(nil)
	_ plugin.OnPurchaseCancelled    = (*MetricsExtension)(nil)
	_ plugin.OnMarketRefund         = (*MetricsExtension)(nil)
	_ plugin.OnUnexpectedError      = (*MetricsExtension)(nil)
)

// Counter interface for metric counters.
type Counter interface {
	Inc()
	Add(float64)
}

// Histogram interface for metric histograms.
type Histogram interface {
	Observe(float64)
}

// MetricFactory creates metrics.
type MetricFactory interface {
	Counter(name string) Counter
	Histogram(name string) Histogram
}

// MetricsExtension records system-wide purchase metrics.
// Register it as a plugin to automatically track purchase metrics.
type MetricsExtension struct {
	factory MetricFactory

	// Billing service metrics
	BillingSupported   Counter
	BillingUnavailable Counter

	// Restore metrics
	RestoreSucceeded Counter
	RestoreFailed    Counter
	ListingsRefresh  Histogram

	// Purchase metrics
	PurchaseStarted   Counter
	MarketPurchases   Counter
	Verifications     Counter
	ItemsGranted      Counter
	PurchaseCancelled Counter
	Refunds           Counter
	PurchaseValue     Histogram

	// Error metrics
	UnexpectedErrors Counter
}

// NewMetricsExtension creates a MetricsExtension with the provided MetricFactory.
func NewMetricsExtension(factory MetricFactory) *MetricsExtension {
	return &MetricsExtension{
		factory: factory,

		BillingSupported:   factory.Counter("iap.billing.supported"),
		BillingUnavailable: factory.Counter("iap.billing.unavailable"),

		RestoreSucceeded: factory.Counter("iap.restore.succeeded"),
		RestoreFailed:    factory.Counter("iap.restore.failed"),
		ListingsRefresh:  factory.Histogram("iap.restore.listings"),

		PurchaseStarted:   factory.Counter("iap.purchase.started"),
		MarketPurchases:   factory.Counter("iap.purchase.market"),
		Verifications:     factory.Counter("iap.purchase.verifications"),
		ItemsGranted:      factory.Counter("iap.item.granted"),
		PurchaseCancelled: factory.Counter("iap.purchase.cancelled"),
		Refunds:           factory.Counter("iap.purchase.refunded"),
		PurchaseValue:     factory.Histogram("iap.purchase.value_major"),

		UnexpectedErrors: factory.Counter("iap.errors.unexpected"),
	}
}

// Name implements plugin.Plugin.
func (m *MetricsExtension) Name() string { return "observability-metrics" }

// OnInit implements plugin.OnInit.
func (m *MetricsExtension) OnInit(_ context.Context, _ any) error {
	return nil
}

// ──────────────────────────────────────────────────
// Billing service hooks
// ──────────────────────────────────────────────────

// OnBillingSupported implements plugin.OnBillingSupported.
func (m *MetricsExtension) OnBillingSupported(_ context.Context) error {
	m.BillingSupported.Inc()
	return nil
}

// OnBillingNotSupported implements plugin.OnBillingNotSupported.
func (m *MetricsExtension) OnBillingNotSupported(_ context.Context) error {
	m.BillingUnavailable.Inc()
	return nil
}

// ──────────────────────────────────────────────────
// Restore hooks
// ──────────────────────────────────────────────────

// OnRestoreFinished implements plugin.OnRestoreFinished.
func (m *MetricsExtension) OnRestoreFinished(_ context.Context, success bool) error {
	if success {
		m.RestoreSucceeded.Inc()
	} else {
		m.RestoreFailed.Inc()
	}
	return nil
}

// OnMarketItemsRefreshed implements plugin.OnMarketItemsRefreshed.
func (m *MetricsExtension) OnMarketItemsRefreshed(_ context.Context, listings []item.Listing) error {
	m.ListingsRefresh.Observe(float64(len(listings)))
	return nil
}

// ──────────────────────────────────────────────────
// Purchase hooks
// ──────────────────────────────────────────────────

// OnPurchaseStarted implements plugin.OnPurchaseStarted.
func (m *MetricsExtension) OnPurchaseStarted(_ context.Context, _ item.Item) error {
	m.PurchaseStarted.Inc()
	return nil
}

// OnMarketPurchase implements plugin.OnMarketPurchase.
func (m *MetricsExtension) OnMarketPurchase(_ context.Context, it item.Item, _ billing.Purchase) error {
	m.MarketPurchases.Inc()
	if l := it.Purchase.Market; l != nil && !l.Price.IsZero() {
		m.PurchaseValue.Observe(l.Price.Major())
	}
	return nil
}

// OnPurchaseVerification implements plugin.OnPurchaseVerification.
func (m *MetricsExtension) OnPurchaseVerification(_ context.Context, _ item.Item, _ billing.Purchase) error {
	m.Verifications.Inc()
	return nil
}

// OnItemPurchased implements plugin.OnItemPurchased.
func (m *MetricsExtension) OnItemPurchased(_ context.Context, _ item.Item) error {
	m.ItemsGranted.Inc()
	return nil
}

// OnPurchaseCancelled implements plugin.OnPurchaseCancelled.
func (m *MetricsExtension) OnPurchaseCancelled(_ context.Context, _ item.Item) error {
	m.PurchaseCancelled.Inc()
	return nil
}

// OnMarketRefund implements plugin.OnMarketRefund.
func (m *MetricsExtension) OnMarketRefund(_ context.Context, _ item.Item, _ billing.Purchase) error {
	m.Refunds.Inc()
	return nil
}

// OnUnexpectedError implements plugin.OnUnexpectedError.
func (m *MetricsExtension) OnUnexpectedError(_ context.Context, _ string) error {
	m.UnexpectedErrors.Inc()
	return nil
}
