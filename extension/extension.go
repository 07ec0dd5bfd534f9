// Package extension provides the Forge extension adapter for the IAP
// orchestrator.
//
// It implements the forge.Extension interface to integrate the purchase
// engine into a Forge application with DI registration and lifecycle
// management.
//
// Configuration can be provided programmatically via Option functions
// or via YAML configuration files under "extensions.iap" or "iap" keys.
package extension

import (
	"context"
	"errors"
	"fmt"

	"github.com/xraph/forge"
	"github.com/xraph/grove"
	"github.com/xraph/vessel"

	"github.com/xraph/iap"
	"github.com/xraph/iap/catalog"
	"github.com/xraph/iap/store"
	"github.com/xraph/iap/store/memory"
	"github.com/xraph/iap/store/mongo"
	"github.com/xraph/iap/store/postgres"
	"github.com/xraph/iap/store/sqlite"
)

// ExtensionName is the name registered with Forge.
const ExtensionName = "iap"

// ExtensionDescription is the human-readable description.
const ExtensionDescription = "In-app purchase orchestrator"

// ExtensionVersion is the semantic version.
const ExtensionVersion = "0.1.0"

// Ensure Extension implements forge.Extension at compile time.
var _ forge.Extension = (*Extension)(nil)

// Extension adapts the IAP orchestrator as a Forge extension.
type Extension struct {
	*forge.BaseExtension

	config  Config
	engine  *iap.Orchestrator
	store   store.Store
	groveDB *grove.DB
	iapOpts []iap.Option
}

// New creates a new IAP Forge extension with the given options.
func New(opts ...Option) *Extension {
	e := &Extension{
		BaseExtension: forge.NewBaseExtension(ExtensionName, ExtensionVersion, ExtensionDescription),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Engine returns the underlying orchestrator.
// This is nil until Register is called.
func (e *Extension) Engine() *iap.Orchestrator { return e.engine }

// Register implements [forge.Extension]. It loads configuration,
// builds the orchestrator, and registers it in the DI container.
func (e *Extension) Register(fapp forge.App) error {
	if err := e.BaseExtension.Register(fapp); err != nil {
		return err
	}

	if err := e.loadConfiguration(); err != nil {
		return err
	}

	if e.store == nil {
		s, err := e.buildStore()
		if err != nil {
			return err
		}
		e.store = s
	}

	eng, err := iap.New(e.store, e.buildIAPOpts()...)
	if err != nil {
		return fmt.Errorf("iap: create orchestrator: %w", err)
	}
	e.engine = eng

	return vessel.Provide(fapp.Container(), func() (*iap.Orchestrator, error) {
		return e.engine, nil
	})
}

// Start implements [forge.Extension].
func (e *Extension) Start(ctx context.Context) error {
	if e.engine == nil {
		return errors.New("iap: extension not initialized")
	}

	if err := e.engine.Start(ctx); err != nil {
		return err
	}

	if e.config.AutoInitialize {
		if err := e.initialize(ctx); err != nil {
			return err
		}
	}

	e.MarkStarted()
	return nil
}

// Stop implements [forge.Extension].
func (e *Extension) Stop(_ context.Context) error {
	if e.engine != nil {
		if err := e.engine.Stop(); err != nil {
			e.MarkStopped()
			return err
		}
	}
	e.MarkStopped()
	return nil
}

// Health implements [forge.Extension].
func (e *Extension) Health(ctx context.Context) error {
	if e.store == nil {
		return errors.New("iap: store not initialized")
	}
	return e.store.Ping(ctx)
}

func (e *Extension) initialize(ctx context.Context) error {
	if e.config.AssetsFile == "" {
		return errors.New("iap: auto_initialize requires assets_file")
	}
	assets, err := catalog.LoadFile(e.config.AssetsFile)
	if err != nil {
		return err
	}
	if !e.engine.Initialize(ctx, assets, e.config.PublicKey, e.config.Secret) {
		return errors.New("iap: orchestrator initialization failed")
	}
	return nil
}

// buildStore picks the store backend. Without a grove database the
// extension keeps purchases in memory.
func (e *Extension) buildStore() (store.Store, error) {
	if e.groveDB == nil {
		return memory.New(), nil
	}
	switch e.config.StoreDriver {
	case "postgres", "pg":
		return postgres.New(e.groveDB), nil
	case "sqlite":
		return sqlite.New(e.groveDB), nil
	case "mongo", "mongodb":
		return mongo.New(e.groveDB), nil
	default:
		return nil, fmt.Errorf("iap: unknown store driver %q", e.config.StoreDriver)
	}
}

// buildIAPOpts constructs iap.Option values from the resolved config.
func (e *Extension) buildIAPOpts() []iap.Option {
	opts := []iap.Option{
		iap.WithFriendlyRefunds(e.config.FriendlyRefunds),
	}
	if e.config.HookTimeout > 0 {
		opts = append(opts, iap.WithHookTimeout(e.config.HookTimeout))
	}
	if e.config.DisableMigrate {
		opts = append(opts, iap.WithoutMigrate())
	}
	if e.config.ObscuringSeed != "" {
		opts = append(opts, iap.WithObscuringSeed(e.config.ObscuringSeed))
	}

	// Append any pass-through options.
	return append(opts, e.iapOpts...)
}

// --- Config Loading (mirrors grove/shield extension pattern) ---

// loadConfiguration loads config from YAML files or programmatic sources.
func (e *Extension) loadConfiguration() error {
	programmaticConfig := e.config

	fileConfig, configLoaded := e.tryLoadFromConfigFile()

	if !configLoaded {
		if programmaticConfig.RequireConfig {
			return errors.New("iap: configuration is required but not found in config files; " +
				"ensure 'extensions.iap' or 'iap' key exists in your config")
		}
		e.config = e.mergeWithDefaults(programmaticConfig)
	} else {
		e.config = e.mergeConfigurations(fileConfig, programmaticConfig)
	}

	e.Logger().Debug("iap: configuration loaded",
		forge.F("disable_migrate", e.config.DisableMigrate),
		forge.F("friendly_refunds", e.config.FriendlyRefunds),
		forge.F("auto_initialize", e.config.AutoInitialize),
		forge.F("assets_file", e.config.AssetsFile),
		forge.F("hook_timeout", e.config.HookTimeout),
		forge.F("store_driver", e.config.StoreDriver),
	)

	return nil
}

// tryLoadFromConfigFile attempts to load config from YAML files.
func (e *Extension) tryLoadFromConfigFile() (Config, bool) {
	cm := e.App().Config()
	var cfg Config

	for _, key := range []string{"extensions.iap", "iap"} {
		if !cm.IsSet(key) {
			continue
		}
		if err := cm.Bind(key, &cfg); err == nil {
			e.Logger().Debug("iap: loaded config from file", forge.F("key", key))
			return cfg, true
		}
		e.Logger().Warn("iap: failed to bind config",
			forge.F("key", key),
			forge.F("error", "bind failed"),
		)
	}

	return Config{}, false
}

// mergeWithDefaults fills zero-valued fields with defaults.
func (e *Extension) mergeWithDefaults(cfg Config) Config {
	defaults := DefaultConfig()
	if cfg.HookTimeout == 0 {
		cfg.HookTimeout = defaults.HookTimeout
	}
	if cfg.StoreDriver == "" {
		cfg.StoreDriver = defaults.StoreDriver
	}
	return cfg
}

// mergeConfigurations merges YAML config with programmatic options.
// YAML config takes precedence for most fields; programmatic bool flags fill gaps.
func (e *Extension) mergeConfigurations(yamlConfig, programmaticConfig Config) Config {
	if programmaticConfig.DisableMigrate {
		yamlConfig.DisableMigrate = true
	}
	if programmaticConfig.FriendlyRefunds {
		yamlConfig.FriendlyRefunds = true
	}
	if programmaticConfig.AutoInitialize {
		yamlConfig.AutoInitialize = true
	}

	fill := func(dst *string, src string) {
		if *dst == "" && src != "" {
			*dst = src
		}
	}
	fill(&yamlConfig.AssetsFile, programmaticConfig.AssetsFile)
	fill(&yamlConfig.PublicKey, programmaticConfig.PublicKey)
	fill(&yamlConfig.Secret, programmaticConfig.Secret)
	fill(&yamlConfig.ObscuringSeed, programmaticConfig.ObscuringSeed)
	fill(&yamlConfig.StoreDriver, programmaticConfig.StoreDriver)

	if yamlConfig.HookTimeout == 0 && programmaticConfig.HookTimeout != 0 {
		yamlConfig.HookTimeout = programmaticConfig.HookTimeout
	}

	return e.mergeWithDefaults(yamlConfig)
}
