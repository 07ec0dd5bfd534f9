// Package audithook bridges purchase engine events to an audit trail backend.
//
// It defines a local Recorder interface so the package does not import
// Chronicle directly. Callers inject a RecorderFunc adapter that bridges
// to Chronicle at wiring time.
package audithook

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/xraph/iap/billing"
	"github.com/xraph/iap/item"
	"github.com/xraph/iap/plugin"
)

// Compile-time interface checks.
var (
	_ plugin.Plugin                    = (*Extension)(nil)
	_ plugin.OnOrchestratorInitialized = (*Extension)(nil)
	_ plugin.OnBillingNotSupported     = (*Extension)(nil)
	_ plugin.OnRestoreStarted          = (*Extension)(nil)
	_ plugin.OnRestoreFinished         = (*Extension)(nil)
	_ plugin.OnPurchaseStarted         = (*Extension)(nil)
	_ plugin.OnMarketPurchase          = (*Extension)(nil)
	_ plugin.OnPurchaseVerification    = (*Extension)(nil)
	_ plugin.OnItemPurchased           = (*Extension)(nil)
	_ plugin.OnPurchaseCancelled       = (*Extension)(nil)
	_ plugin.OnMarketRefund            = (*Extension)(nil)
	_ plugin.OnUnexpectedError         = (*Extension)(nil)
)

// Recorder is the interface that audit backends must implement.
// This matches chronicle.Emitter but is defined locally so that the
// audit_hook package does not import Chronicle directly. Callers inject
// the concrete *chronicle.Chronicle at wiring time.
type Recorder interface {
	Record(ctx context.Context, event *AuditEvent) error
}

// AuditEvent is a local representation of an audit event.
// It mirrors chronicle/audit.Event but avoids a module dependency.
type AuditEvent struct {
	Action     string         `json:"action"`
	Resource   string         `json:"resource"`
	Category   string         `json:"category"`
	ResourceID string         `json:"resource_id,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	Outcome    string         `json:"outcome"`
	Severity   string         `json:"severity"`
	Reason     string         `json:"reason,omitempty"`
}

// RecorderFunc is an adapter to use a plain function as a Recorder.
type RecorderFunc func(ctx context.Context, event *AuditEvent) error

// Record implements Recorder.
func (f RecorderFunc) Record(ctx context.Context, event *AuditEvent) error {
	return f(ctx, event)
}

// Extension bridges purchase engine events to an audit trail backend.
type Extension struct {
	recorder Recorder
	enabled  map[string]bool // nil = all enabled
	logger   *slog.Logger
}

// New creates an Extension that emits audit events through the provided Recorder.
func New(r Recorder, opts ...Option) *Extension {
	e := &Extension{
		recorder: r,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Name implements plugin.Plugin.
func (e *Extension) Name() string { return "audit-hook" }

// ──────────────────────────────────────────────────
// Service hooks
// ──────────────────────────────────────────────────

// OnOrchestratorInitialized implements plugin.OnOrchestratorInitialized.
func (e *Extension) OnOrchestratorInitialized(ctx context.Context) error {
	return e.record(ctx, ActionOrchestratorInitialized, SeverityInfo, OutcomeSuccess,
		ResourceOrchestrator, "", CategoryLifecycle, nil,
	)
}

// OnBillingNotSupported implements plugin.OnBillingNotSupported.
func (e *Extension) OnBillingNotSupported(ctx context.Context) error {
	return e.record(ctx, ActionBillingUnavailable, SeverityWarning, OutcomeFailure,
		ResourceBilling, "", CategoryLifecycle, nil,
	)
}

// ──────────────────────────────────────────────────
// Restore hooks
// ──────────────────────────────────────────────────

// OnRestoreStarted implements plugin.OnRestoreStarted.
func (e *Extension) OnRestoreStarted(ctx context.Context) error {
	return e.record(ctx, ActionRestoreStarted, SeverityInfo, OutcomeSuccess,
		ResourceInventory, "", CategoryOwnership, nil,
	)
}

// OnRestoreFinished implements plugin.OnRestoreFinished.
func (e *Extension) OnRestoreFinished(ctx context.Context, success bool) error {
	outcome, severity := OutcomeSuccess, SeverityInfo
	if !success {
		outcome, severity = OutcomeFailure, SeverityError
	}
	return e.record(ctx, ActionRestoreFinished, severity, outcome,
		ResourceInventory, "", CategoryOwnership, nil,
	)
}

// ──────────────────────────────────────────────────
// Purchase hooks
// ──────────────────────────────────────────────────

// OnPurchaseStarted implements plugin.OnPurchaseStarted.
func (e *Extension) OnPurchaseStarted(ctx context.Context, it item.Item) error {
	return e.record(ctx, ActionPurchaseStarted, SeverityInfo, OutcomeSuccess,
		ResourceItem, it.ID, CategoryPayment, nil,
		"product_id", it.ProductID(),
	)
}

// OnMarketPurchase implements plugin.OnMarketPurchase.
func (e *Extension) OnMarketPurchase(ctx context.Context, it item.Item, p billing.Purchase) error {
	return e.record(ctx, ActionPurchaseReported, SeverityInfo, OutcomeSuccess,
		ResourcePurchase, p.OrderID, CategoryPayment, nil,
		purchaseMeta(it, p)...,
	)
}

// OnPurchaseVerification implements plugin.OnPurchaseVerification.
func (e *Extension) OnPurchaseVerification(ctx context.Context, it item.Item, p billing.Purchase) error {
	return e.record(ctx, ActionPurchaseVerifying, SeverityInfo, OutcomeSuccess,
		ResourcePurchase, p.OrderID, CategoryIntegrity, nil,
		purchaseMeta(it, p)...,
	)
}

// OnItemPurchased implements plugin.OnItemPurchased.
func (e *Extension) OnItemPurchased(ctx context.Context, it item.Item) error {
	return e.record(ctx, ActionItemGranted, SeverityInfo, OutcomeSuccess,
		ResourceItem, it.ID, CategoryOwnership, nil,
		"kind", it.Kind.String(),
	)
}

// OnPurchaseCancelled implements plugin.OnPurchaseCancelled.
func (e *Extension) OnPurchaseCancelled(ctx context.Context, it item.Item) error {
	return e.record(ctx, ActionPurchaseCancelled, SeverityInfo, OutcomeFailure,
		ResourceItem, it.ID, CategoryPayment, nil,
	)
}

// OnMarketRefund implements plugin.OnMarketRefund.
func (e *Extension) OnMarketRefund(ctx context.Context, it item.Item, p billing.Purchase) error {
	return e.record(ctx, ActionPurchaseRefunded, SeverityWarning, OutcomeSuccess,
		ResourcePurchase, p.OrderID, CategoryPayment, nil,
		append(purchaseMeta(it, p), "state", p.State.String())...,
	)
}

// OnUnexpectedError implements plugin.OnUnexpectedError.
func (e *Extension) OnUnexpectedError(ctx context.Context, message string) error {
	var err error
	if message != "" {
		err = errors.New(message)
	}
	return e.record(ctx, ActionUnexpectedError, SeverityError, OutcomeFailure,
		ResourceOrchestrator, "", CategoryIntegrity, err,
	)
}

func purchaseMeta(it item.Item, p billing.Purchase) []any {
	return []any{
		"item_id", it.ID,
		"product_id", p.ProductID,
		"token", p.Token,
	}
}

// ──────────────────────────────────────────────────
// Internal helpers
// ──────────────────────────────────────────────────

// record builds and sends an audit event if the action is enabled.
func (e *Extension) record(
	ctx context.Context,
	action, severity, outcome string,
	resource, resourceID, category string,
	err error,
	kvPairs ...any,
) error {
	if e.enabled != nil && !e.enabled[action] {
		return nil
	}

	meta := make(map[string]any, len(kvPairs)/2+1)
	for i := 0; i+1 < len(kvPairs); i += 2 {
		key, ok := kvPairs[i].(string)
		if !ok {
			key = fmt.Sprintf("%v", kvPairs[i])
		}
		meta[key] = kvPairs[i+1]
	}

	var reason string
	if err != nil {
		reason = err.Error()
		meta["error"] = err.Error()
	}

	evt := &AuditEvent{
		Action:     action,
		Resource:   resource,
		Category:   category,
		ResourceID: resourceID,
		Metadata:   meta,
		Outcome:    outcome,
		Severity:   severity,
		Reason:     reason,
	}

	if recErr := e.recorder.Record(ctx, evt); recErr != nil {
		e.logger.Warn("audit_hook: failed to record audit event",
			"action", action,
			"resource_id", resourceID,
			"error", recErr,
		)
	}
	return nil
}
