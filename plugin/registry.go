package plugin

import (
	"context"
	"fmt"
	"log/slog"
	"reflect"
	"sync"
	"time"

	"github.com/xraph/iap/billing"
	"github.com/xraph/iap/event"
	"github.com/xraph/iap/item"
)

// DefaultTimeout bounds a single hook invocation.
const DefaultTimeout = 5 * time.Second

// Registry manages all registered plugins and provides efficient dispatch.
// Hook implementations are discovered once at registration.
type Registry struct {
	mu      sync.RWMutex
	plugins []Plugin
	logger  *slog.Logger
	timeout time.Duration

	// Type-cached plugin lists for efficient dispatch
	onInit                    []OnInit
	onShutdown                []OnShutdown
	onOrchestratorInitialized []OnOrchestratorInitialized
	onBillingSupported        []OnBillingSupported
	onBillingNotSupported     []OnBillingNotSupported
	onBackendStarted          []OnBackendStarted
	onBackendStopped          []OnBackendStopped
	onRestoreStarted          []OnRestoreStarted
	onRestoreFinished         []OnRestoreFinished
	onMarketItemsRefreshed    []OnMarketItemsRefreshed
	onPurchaseStarted         []OnPurchaseStarted
	onMarketPurchase          []OnMarketPurchase
	onPurchaseVerification    []OnPurchaseVerification
	onItemPurchased           []OnItemPurchased
	onPurchaseCancelled       []OnPurchaseCancelled
	onMarketRefund            []OnMarketRefund
	onUnexpectedError         []OnUnexpectedError
	listeners                 []Listener
}

// NewRegistry creates a new plugin registry.
func NewRegistry() *Registry {
	return &Registry{
		logger:  slog.Default(),
		timeout: DefaultTimeout,
	}
}

// WithLogger sets the logger for the registry.
func (r *Registry) WithLogger(logger *slog.Logger) *Registry {
	r.logger = logger
	return r
}

// WithTimeout sets the per-hook timeout. Zero keeps the default.
func (r *Registry) WithTimeout(d time.Duration) *Registry {
	if d > 0 {
		r.timeout = d
	}
	return r
}

// Register adds a plugin to the registry and caches its interfaces.
func (r *Registry) Register(p Plugin) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.plugins {
		if existing.Name() == p.Name() {
			return fmt.Errorf("plugin: duplicate registration: %s", p.Name())
		}
	}

	r.plugins = append(r.plugins, p)

	if v, ok := p.(OnInit); ok {
		r.onInit = append(r.onInit, v)
	}
	if v, ok := p.(OnShutdown); ok {
		r.onShutdown = append(r.onShutdown, v)
	}
	if v, ok := p.(OnOrchestratorInitialized); ok {
		r.onOrchestratorInitialized = append(r.onOrchestratorInitialized, v)
	}
	if v, ok := p.(OnBillingSupported); ok {
		r.onBillingSupported = append(r.onBillingSupported, v)
	}
	if v, ok := p.(OnBillingNotSupported); ok {
		r.onBillingNotSupported = append(r.onBillingNotSupported, v)
	}
	if v, ok := p.(OnBackendStarted); ok {
		r.onBackendStarted = append(r.onBackendStarted, v)
	}
	if v, ok := p.(OnBackendStopped); ok {
		r.onBackendStopped = append(r.onBackendStopped, v)
	}
	if v, ok := p.(OnRestoreStarted); ok {
		r.onRestoreStarted = append(r.onRestoreStarted, v)
	}
	if v, ok := p.(OnRestoreFinished); ok {
		r.onRestoreFinished = append(r.onRestoreFinished, v)
	}
	if v, ok := p.(OnMarketItemsRefreshed); ok {
		r.onMarketItemsRefreshed = append(r.onMarketItemsRefreshed, v)
	}
	if v, ok := p.(OnPurchaseStarted); ok {
		r.onPurchaseStarted = append(r.onPurchaseStarted, v)
	}
	if v, ok := p.(OnMarketPurchase); ok {
		r.onMarketPurchase = append(r.onMarketPurchase, v)
	}
	if v, ok := p.(OnPurchaseVerification); ok {
		r.onPurchaseVerification = append(r.onPurchaseVerification, v)
	}
	if v, ok := p.(OnItemPurchased); ok {
		r.onItemPurchased = append(r.onItemPurchased, v)
	}
	if v, ok := p.(OnPurchaseCancelled); ok {
		r.onPurchaseCancelled = append(r.onPurchaseCancelled, v)
	}
	if v, ok := p.(OnMarketRefund); ok {
		r.onMarketRefund = append(r.onMarketRefund, v)
	}
	if v, ok := p.(OnUnexpectedError); ok {
		r.onUnexpectedError = append(r.onUnexpectedError, v)
	}
	if v, ok := p.(Listener); ok {
		r.listeners = append(r.listeners, v)
	}

	r.logger.Info("plugin registered",
		"name", p.Name(),
		"interfaces", implementedInterfaces(p),
	)

	return nil
}

var hookInterfaces = []struct {
	name string
	typ  reflect.Type
}{
	{"OnInit", reflect.TypeOf((*OnInit)(nil)).Elem()},
	{"OnShutdown", reflect.TypeOf((*OnShutdown)(nil)).Elem()},
	{"OnMarketPurchase", reflect.TypeOf((*OnMarketPurchase)(nil)).Elem()},
	{"OnItemPurchased", reflect.TypeOf((*OnItemPurchased)(nil)).Elem()},
	{"OnMarketRefund", reflect.TypeOf((*OnMarketRefund)(nil)).Elem()},
	{"OnRestoreFinished", reflect.TypeOf((*OnRestoreFinished)(nil)).Elem()},
	{"OnUnexpectedError", reflect.TypeOf((*OnUnexpectedError)(nil)).Elem()},
	{"Listener", reflect.TypeOf((*Listener)(nil)).Elem()},
}

// implementedInterfaces returns the main hook interfaces implemented by p.
func implementedInterfaces(p Plugin) []string {
	var out []string
	v := reflect.TypeOf(p)
	for _, h := range hookInterfaces {
		if v.Implements(h.typ) {
			out = append(out, h.name)
		}
	}
	return out
}

// Get returns a plugin by name.
func (r *Registry) Get(name string) Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, p := range r.plugins {
		if p.Name() == name {
			return p
		}
	}
	return nil
}

// List returns all registered plugins.
func (r *Registry) List() []Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]Plugin, len(r.plugins))
	copy(result, r.plugins)
	return result
}

// Count returns the number of registered plugins.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.plugins)
}

// ──────────────────────────────────────────────────
// Event emission methods
// ──────────────────────────────────────────────────

// EmitInit calls OnInit for all plugins that implement it.
func (r *Registry) EmitInit(ctx context.Context, engine any) {
	r.mu.RLock()
	plugins := r.onInit
	r.mu.RUnlock()

	dispatch(r, ctx, "OnInit", plugins, func(p OnInit) error { return p.OnInit(ctx, engine) })
}

// EmitShutdown calls OnShutdown for all plugins that implement it.
func (r *Registry) EmitShutdown(ctx context.Context) {
	r.mu.RLock()
	plugins := r.onShutdown
	r.mu.RUnlock()

	dispatch(r, ctx, "OnShutdown", plugins, func(p OnShutdown) error { return p.OnShutdown(ctx) })
}

// EmitOrchestratorInitialized emits an initialized event.
func (r *Registry) EmitOrchestratorInitialized(ctx context.Context) {
	r.mu.RLock()
	plugins := r.onOrchestratorInitialized
	r.mu.RUnlock()

	dispatch(r, ctx, "OnOrchestratorInitialized", plugins, func(p OnOrchestratorInitialized) error {
		return p.OnOrchestratorInitialized(ctx)
	})
	r.broadcast(ctx, event.New(event.OrchestratorInitialized))
}

// EmitBillingSupported emits a billing supported event.
func (r *Registry) EmitBillingSupported(ctx context.Context) {
	r.mu.RLock()
	plugins := r.onBillingSupported
	r.mu.RUnlock()

	dispatch(r, ctx, "OnBillingSupported", plugins, func(p OnBillingSupported) error {
		return p.OnBillingSupported(ctx)
	})
	r.broadcast(ctx, event.New(event.BillingSupported))
}

// EmitBillingNotSupported emits a billing not supported event.
func (r *Registry) EmitBillingNotSupported(ctx context.Context) {
	r.mu.RLock()
	plugins := r.onBillingNotSupported
	r.mu.RUnlock()

	dispatch(r, ctx, "OnBillingNotSupported", plugins, func(p OnBillingNotSupported) error {
		return p.OnBillingNotSupported(ctx)
	})
	r.broadcast(ctx, event.New(event.BillingNotSupported))
}

// EmitBackendStarted emits a backend started event.
func (r *Registry) EmitBackendStarted(ctx context.Context) {
	r.mu.RLock()
	plugins := r.onBackendStarted
	r.mu.RUnlock()

	dispatch(r, ctx, "OnBackendStarted", plugins, func(p OnBackendStarted) error {
		return p.OnBackendStarted(ctx)
	})
	r.broadcast(ctx, event.New(event.BackendStarted))
}

// EmitBackendStopped emits a backend stopped event.
func (r *Registry) EmitBackendStopped(ctx context.Context) {
	r.mu.RLock()
	plugins := r.onBackendStopped
	r.mu.RUnlock()

	dispatch(r, ctx, "OnBackendStopped", plugins, func(p OnBackendStopped) error {
		return p.OnBackendStopped(ctx)
	})
	r.broadcast(ctx, event.New(event.BackendStopped))
}

// EmitRestoreStarted emits a restore started event.
func (r *Registry) EmitRestoreStarted(ctx context.Context) {
	r.mu.RLock()
	plugins := r.onRestoreStarted
	r.mu.RUnlock()

	dispatch(r, ctx, "OnRestoreStarted", plugins, func(p OnRestoreStarted) error {
		return p.OnRestoreStarted(ctx)
	})
	r.broadcast(ctx, event.New(event.RestoreStarted))
}

// EmitRestoreFinished emits a restore finished event.
func (r *Registry) EmitRestoreFinished(ctx context.Context, success bool) {
	r.mu.RLock()
	plugins := r.onRestoreFinished
	r.mu.RUnlock()

	dispatch(r, ctx, "OnRestoreFinished", plugins, func(p OnRestoreFinished) error {
		return p.OnRestoreFinished(ctx, success)
	})
	e := event.New(event.RestoreFinished)
	e.Success = success
	r.broadcast(ctx, e)
}

// EmitMarketItemsRefreshed emits a market items refreshed event.
func (r *Registry) EmitMarketItemsRefreshed(ctx context.Context, listings []item.Listing) {
	r.mu.RLock()
	plugins := r.onMarketItemsRefreshed
	r.mu.RUnlock()

	dispatch(r, ctx, "OnMarketItemsRefreshed", plugins, func(p OnMarketItemsRefreshed) error {
		return p.OnMarketItemsRefreshed(ctx, listings)
	})
	e := event.New(event.MarketItemsRefreshed)
	e.Listings = listings
	r.broadcast(ctx, e)
}

// EmitPurchaseStarted emits a purchase started event.
func (r *Registry) EmitPurchaseStarted(ctx context.Context, it item.Item) {
	r.mu.RLock()
	plugins := r.onPurchaseStarted
	r.mu.RUnlock()

	dispatch(r, ctx, "OnPurchaseStarted", plugins, func(p OnPurchaseStarted) error {
		return p.OnPurchaseStarted(ctx, it)
	})
	r.broadcast(ctx, event.ForItem(event.PurchaseStarted, it))
}

// EmitMarketPurchase emits a market purchase event.
func (r *Registry) EmitMarketPurchase(ctx context.Context, it item.Item, purchase billing.Purchase) {
	r.mu.RLock()
	plugins := r.onMarketPurchase
	r.mu.RUnlock()

	dispatch(r, ctx, "OnMarketPurchase", plugins, func(p OnMarketPurchase) error {
		return p.OnMarketPurchase(ctx, it, purchase)
	})
	r.broadcast(ctx, withPurchase(event.ForItem(event.MarketPurchase, it), purchase))
}

// EmitPurchaseVerification emits a purchase verification event.
func (r *Registry) EmitPurchaseVerification(ctx context.Context, it item.Item, purchase billing.Purchase) {
	r.mu.RLock()
	plugins := r.onPurchaseVerification
	r.mu.RUnlock()

	dispatch(r, ctx, "OnPurchaseVerification", plugins, func(p OnPurchaseVerification) error {
		return p.OnPurchaseVerification(ctx, it, purchase)
	})
	r.broadcast(ctx, withPurchase(event.ForItem(event.PurchaseVerification, it), purchase))
}

// EmitItemPurchased emits an item purchased event.
func (r *Registry) EmitItemPurchased(ctx context.Context, it item.Item) {
	r.mu.RLock()
	plugins := r.onItemPurchased
	r.mu.RUnlock()

	dispatch(r, ctx, "OnItemPurchased", plugins, func(p OnItemPurchased) error {
		return p.OnItemPurchased(ctx, it)
	})
	r.broadcast(ctx, event.ForItem(event.ItemPurchased, it))
}

// EmitPurchaseCancelled emits a purchase cancelled event.
func (r *Registry) EmitPurchaseCancelled(ctx context.Context, it item.Item) {
	r.mu.RLock()
	plugins := r.onPurchaseCancelled
	r.mu.RUnlock()

	dispatch(r, ctx, "OnPurchaseCancelled", plugins, func(p OnPurchaseCancelled) error {
		return p.OnPurchaseCancelled(ctx, it)
	})
	r.broadcast(ctx, event.ForItem(event.PurchaseCancelled, it))
}

// EmitMarketRefund emits a market refund event.
func (r *Registry) EmitMarketRefund(ctx context.Context, it item.Item, purchase billing.Purchase) {
	r.mu.RLock()
	plugins := r.onMarketRefund
	r.mu.RUnlock()

	dispatch(r, ctx, "OnMarketRefund", plugins, func(p OnMarketRefund) error {
		return p.OnMarketRefund(ctx, it, purchase)
	})
	r.broadcast(ctx, withPurchase(event.ForItem(event.MarketRefund, it), purchase))
}

// EmitUnexpectedError emits an unexpected error event.
func (r *Registry) EmitUnexpectedError(ctx context.Context, message string) {
	r.mu.RLock()
	plugins := r.onUnexpectedError
	r.mu.RUnlock()

	dispatch(r, ctx, "OnUnexpectedError", plugins, func(p OnUnexpectedError) error {
		return p.OnUnexpectedError(ctx, message)
	})
	e := event.New(event.UnexpectedError)
	e.Message = message
	r.broadcast(ctx, e)
}

// broadcast delivers e to every generic listener.
func (r *Registry) broadcast(ctx context.Context, e *event.Event) {
	r.mu.RLock()
	listeners := r.listeners
	r.mu.RUnlock()

	dispatch(r, ctx, "OnEvent", listeners, func(l Listener) error { return l.OnEvent(ctx, e) })
}

func withPurchase(e *event.Event, p billing.Purchase) *event.Event {
	e.Payload = p.Payload
	e.Token = p.Token
	e.OrderID = p.OrderID
	return e
}

// dispatch calls fn for each plugin in order, logging failures.
func dispatch[T Plugin](r *Registry, ctx context.Context, hook string, plugins []T, fn func(T) error) {
	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return fn(p)
		}); err != nil {
			r.logger.Warn("plugin hook failed",
				"hook", hook,
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// callWithTimeout calls a plugin function with a timeout.
// Plugins should never block the purchase pipeline.
func (r *Registry) callWithTimeout(ctx context.Context, pluginName string, fn func() error) error {
	done := make(chan error, 1)

	go func() {
		done <- fn()
	}()

	timer := time.NewTimer(r.timeout)
	defer timer.Stop()

	select {
	case err := <-done:
		return err
	case <-timer.C:
		return fmt.Errorf("plugin timeout: %s", pluginName)
	case <-ctx.Done():
		return ctx.Err()
	}
}
