package iap

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/xraph/iap/billing"
	"github.com/xraph/iap/catalog"
	"github.com/xraph/iap/history"
	"github.com/xraph/iap/item"
	"github.com/xraph/iap/ownership"
	"github.com/xraph/iap/plugin"
	"github.com/xraph/iap/settings"
	"github.com/xraph/iap/store"
	"github.com/xraph/iap/verify"
)

// DefaultSeed is the obscuring seed used when none is configured.
const DefaultSeed = "iap"

// Orchestrator is the purchase engine. It mediates purchases through a
// billing backend and keeps the local ownership ledger in step with what
// the marketplace reports.
type Orchestrator struct {
	store    store.Store
	catalog  *catalog.Catalog
	ledger   *ownership.Ledger
	settings *settings.Settings
	plugins  *plugin.Registry
	logger   *slog.Logger

	backend   billing.Backend
	launcher  billing.Launcher
	validator verify.Validator

	// Configuration
	friendlyRefunds bool
	seed            string
	skipMigrate     bool

	initMu      sync.Mutex
	initialized atomic.Bool

	locks keyedMutex
	flows *flowTable
}

// New creates a new Orchestrator over s.
func New(s store.Store, opts ...Option) (*Orchestrator, error) {
	o := &Orchestrator{
		store:    s,
		catalog:  catalog.New(),
		ledger:   ownership.NewLedger(s),
		plugins:  plugin.NewRegistry(),
		logger:   slog.Default(),
		launcher: billing.InlineLauncher{},
		seed:     DefaultSeed,
		flows:    newFlowTable(),
	}

	for _, opt := range opts {
		opt(o)
	}

	st, err := settings.New(s, o.seed)
	if err != nil {
		return nil, err
	}
	o.settings = st

	return o, nil
}

// Option configures an Orchestrator instance.
type Option func(*Orchestrator)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) {
		o.logger = logger
		o.plugins.WithLogger(logger)
	}
}

// WithPlugin registers a plugin.
func WithPlugin(p plugin.Plugin) Option {
	return func(o *Orchestrator) {
		_ = o.plugins.Register(p) //nolint:errcheck // best-effort plugin registration during init
	}
}

// WithHookTimeout bounds every plugin hook invocation.
func WithHookTimeout(d time.Duration) Option {
	return func(o *Orchestrator) {
		o.plugins.WithTimeout(d)
	}
}

// WithBackend sets the marketplace billing backend.
func WithBackend(b billing.Backend) Option {
	return func(o *Orchestrator) {
		o.backend = b
	}
}

// WithLauncher sets the launcher that opens a host for each purchase.
// The default runs purchases on an inline host.
func WithLauncher(l billing.Launcher) Option {
	return func(o *Orchestrator) {
		o.launcher = l
	}
}

// WithCatalog shares an existing catalog with the orchestrator.
func WithCatalog(c *catalog.Catalog) Option {
	return func(o *Orchestrator) {
		o.catalog = c
	}
}

// WithFriendlyRefunds keeps refunded items in the ledger.
func WithFriendlyRefunds(enabled bool) Option {
	return func(o *Orchestrator) {
		o.friendlyRefunds = enabled
	}
}

// WithValidator verifies receipts of live purchases before they are granted.
func WithValidator(v verify.Validator) Option {
	return func(o *Orchestrator) {
		o.validator = v
	}
}

// WithoutMigrate makes Start skip store migration. Plugins are still
// initialized.
func WithoutMigrate() Option {
	return func(o *Orchestrator) {
		o.skipMigrate = true
	}
}

// WithObscuringSeed sets the seed the persisted settings are obscured with.
func WithObscuringSeed(seed string) Option {
	return func(o *Orchestrator) {
		if seed != "" {
			o.seed = seed
		}
	}
}

// Start migrates the store, unless WithoutMigrate was given, and
// initializes plugins.
func (o *Orchestrator) Start(ctx context.Context) error {
	if !o.skipMigrate {
		if err := o.store.Migrate(ctx); err != nil {
			return fmt.Errorf("%w: %w", ErrMigrationFailed, err)
		}
	}

	o.plugins.EmitInit(ctx, o)

	o.logger.Info("iap orchestrator started",
		"plugins", o.plugins.Count(),
		"friendly_refunds", o.friendlyRefunds,
		"validator", o.validator != nil,
	)
	return nil
}

// Stop shuts down plugins and closes the store.
func (o *Orchestrator) Stop() error {
	ctx := context.Background()
	o.plugins.EmitShutdown(ctx)

	return o.store.Close()
}

// ──────────────────────────────────────────────────
// Initialization
// ──────────────────────────────────────────────────

// Initialize loads the catalog, persists the marketplace public key and
// custom secret and starts reconciling the inventory. Empty arguments keep
// the previously stored values. It reports whether initialization
// succeeded; every failure is also published as an unexpected error.
// Only the first successful call has any effect.
func (o *Orchestrator) Initialize(ctx context.Context, assets catalog.Assets, publicKey, secret string) bool {
	o.initMu.Lock()
	defer o.initMu.Unlock()

	if o.initialized.Load() {
		o.unexpected(ctx, ErrAlreadyInitialized.Error())
		return false
	}
	if o.backend == nil {
		o.unexpected(ctx, ErrNoBackend.Error())
		return false
	}

	ok, err := o.hasSetting(ctx, publicKey, o.settings.PublicKey)
	if err != nil || !ok {
		o.unexpected(ctx, firstErr(err, ErrMissingPublicKey).Error())
		return false
	}
	ok, err = o.hasSetting(ctx, secret, o.settings.CustomSecret)
	if err != nil || !ok {
		o.unexpected(ctx, firstErr(err, ErrMissingSecret).Error())
		return false
	}

	if err := o.catalog.Load(assets); err != nil {
		o.unexpected(ctx, fmt.Sprintf("load catalog: %v", err))
		return false
	}

	var errs MultiError
	if publicKey != "" {
		errs.Add(o.settings.SetPublicKey(ctx, publicKey))
	}
	if secret != "" {
		errs.Add(o.settings.SetCustomSecret(ctx, secret))
	}
	errs.Add(o.settings.SetAssetsVersion(ctx, assets.Version))
	if err := errs.ErrorOrNil(); err != nil {
		o.unexpected(ctx, fmt.Sprintf("persist settings: %v", err))
		return false
	}

	o.RefreshInventory(ctx, true)

	o.initialized.Store(true)
	o.plugins.EmitOrchestratorInitialized(ctx)

	o.logger.Info("iap orchestrator initialized",
		"assets_version", assets.Version,
		"items", len(assets.Items),
	)
	return true
}

// IsInitialized reports whether Initialize has succeeded.
func (o *Orchestrator) IsInitialized() bool {
	return o.initialized.Load()
}

// hasSetting reports whether a value is supplied or already stored.
func (o *Orchestrator) hasSetting(ctx context.Context, supplied string, stored func(context.Context) (string, error)) (bool, error) {
	if supplied != "" {
		return true, nil
	}
	v, err := stored(ctx)
	if err != nil {
		return false, err
	}
	return v != "", nil
}

// ──────────────────────────────────────────────────
// Catalog and ownership
// ──────────────────────────────────────────────────

// Catalog returns the item catalog.
func (o *Orchestrator) Catalog() *catalog.Catalog { return o.catalog }

// Plugins returns the plugin registry.
func (o *Orchestrator) Plugins() *plugin.Registry { return o.plugins }

// Store returns the underlying store.
func (o *Orchestrator) Store() store.Store { return o.store }

// Settings returns the persisted engine settings.
func (o *Orchestrator) Settings() *settings.Settings { return o.settings }

// Items returns every catalog item.
func (o *Orchestrator) Items() []item.Item { return o.catalog.Items() }

// Item returns the catalog item with the given id.
func (o *Orchestrator) Item(itemID string) (item.Item, error) { return o.catalog.Item(itemID) }

// Balance returns the balance of an item. Non-consumables report 1 when owned.
func (o *Orchestrator) Balance(ctx context.Context, itemID string) (int, error) {
	it, err := o.catalog.Item(itemID)
	if err != nil {
		return 0, err
	}
	return o.ledger.Balance(ctx, it)
}

// Give credits amount units of an item outside of any purchase.
func (o *Orchestrator) Give(ctx context.Context, itemID string, amount int) (int, error) {
	it, err := o.catalog.Item(itemID)
	if err != nil {
		return 0, err
	}
	defer o.locks.lock(it.ID)()
	return o.ledger.Give(ctx, it, amount)
}

// Take debits amount units of an item. Balances never drop below zero.
func (o *Orchestrator) Take(ctx context.Context, itemID string, amount int) (int, error) {
	it, err := o.catalog.Item(itemID)
	if err != nil {
		return 0, err
	}
	defer o.locks.lock(it.ID)()
	return o.ledger.Take(ctx, it, amount)
}

// ResetBalance overwrites the balance of an item.
func (o *Orchestrator) ResetBalance(ctx context.Context, itemID string, balance int) (int, error) {
	it, err := o.catalog.Item(itemID)
	if err != nil {
		return 0, err
	}
	defer o.locks.lock(it.ID)()
	return o.ledger.Reset(ctx, it, balance)
}

// CanBuy reports whether an item may be purchased again.
func (o *Orchestrator) CanBuy(ctx context.Context, itemID string) (bool, error) {
	it, err := o.catalog.Item(itemID)
	if err != nil {
		return false, err
	}
	return o.ledger.CanBuy(ctx, it)
}

// History lists journaled ownership changes, newest first.
func (o *Orchestrator) History(ctx context.Context, opts history.ListOpts) ([]*history.Entry, error) {
	return o.store.ListEntries(ctx, opts)
}

// ──────────────────────────────────────────────────
// Failure sinks
// ──────────────────────────────────────────────────

// billingNotSupported reports a backend that cannot be reached. It is an
// expected operating condition and never escalates to an unexpected error.
func (o *Orchestrator) billingNotSupported(ctx context.Context, err error) {
	o.logger.Debug("no connectivity with the billing service", "error", err)
	o.plugins.EmitBillingNotSupported(ctx)
}

// unexpected logs and publishes an unexpected error.
func (o *Orchestrator) unexpected(ctx context.Context, message string, args ...any) {
	o.logger.Error("iap: unexpected error", append([]any{"message", message}, args...)...)
	o.plugins.EmitUnexpectedError(ctx, message)
}

func firstErr(errs ...error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

// keyedMutex serializes work per key.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// lock acquires the mutex for key and returns its unlock function.
func (k *keyedMutex) lock(key string) func() {
	k.mu.Lock()
	if k.locks == nil {
		k.locks = make(map[string]*sync.Mutex)
	}
	m, ok := k.locks[key]
	if !ok {
		m = &sync.Mutex{}
		k.locks[key] = m
	}
	k.mu.Unlock()

	m.Lock()
	return m.Unlock
}
