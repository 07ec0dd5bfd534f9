package extension

import (
	"time"

	"github.com/xraph/grove"

	"github.com/xraph/iap"
	"github.com/xraph/iap/billing"
	"github.com/xraph/iap/plugin"
	"github.com/xraph/iap/store"
)

// Option configures the IAP Forge extension.
type Option func(*Extension)

// WithStore sets the store for the orchestrator.
func WithStore(s store.Store) Option {
	return func(e *Extension) {
		e.store = s
	}
}

// WithBackend sets the marketplace billing backend.
func WithBackend(b billing.Backend) Option {
	return func(e *Extension) {
		e.iapOpts = append(e.iapOpts, iap.WithBackend(b))
	}
}

// WithIAPOption passes an iap.Option through to the underlying orchestrator.
func WithIAPOption(opt iap.Option) Option {
	return func(e *Extension) {
		e.iapOpts = append(e.iapOpts, opt)
	}
}

// WithPlugin registers an orchestrator plugin.
func WithPlugin(p plugin.Plugin) Option {
	return func(e *Extension) {
		e.iapOpts = append(e.iapOpts, iap.WithPlugin(p))
	}
}

// WithConfig sets the Forge extension configuration.
func WithConfig(cfg Config) Option {
	return func(e *Extension) { e.config = cfg }
}

// WithDisableMigrate prevents auto-migration on start.
func WithDisableMigrate() Option {
	return func(e *Extension) { e.config.DisableMigrate = true }
}

// WithRequireConfig requires config to be present in YAML files.
// If true and no config is found, Register returns an error.
func WithRequireConfig(require bool) Option {
	return func(e *Extension) { e.config.RequireConfig = require }
}

// WithFriendlyRefunds keeps refunded items in the ledger.
func WithFriendlyRefunds() Option {
	return func(e *Extension) { e.config.FriendlyRefunds = true }
}

// WithAutoInitialize initializes the orchestrator from the catalog at
// assetsFile during Start.
func WithAutoInitialize(assetsFile, publicKey, secret string) Option {
	return func(e *Extension) {
		e.config.AutoInitialize = true
		e.config.AssetsFile = assetsFile
		e.config.PublicKey = publicKey
		e.config.Secret = secret
	}
}

// WithHookTimeout bounds every plugin hook invocation.
func WithHookTimeout(d time.Duration) Option {
	return func(e *Extension) { e.config.HookTimeout = d }
}

// WithGroveDatabase builds the store over db. driver selects the backend
// ("postgres", "sqlite" or "mongo"); empty uses the configured StoreDriver.
func WithGroveDatabase(db *grove.DB, driver string) Option {
	return func(e *Extension) {
		e.groveDB = db
		if driver != "" {
			e.config.StoreDriver = driver
		}
	}
}
