package extension

import "time"

// Config holds the IAP extension configuration.
// Fields can be set programmatically via Option functions or loaded from
// YAML configuration files (under "extensions.iap" or "iap" keys).
type Config struct {
	// DisableMigrate prevents auto-migration on start.
	DisableMigrate bool `json:"disable_migrate" mapstructure:"disable_migrate" yaml:"disable_migrate"`

	// FriendlyRefunds keeps refunded items in the ledger.
	FriendlyRefunds bool `json:"friendly_refunds" mapstructure:"friendly_refunds" yaml:"friendly_refunds"`

	// AssetsFile is the path of the YAML catalog loaded on start.
	AssetsFile string `json:"assets_file" mapstructure:"assets_file" yaml:"assets_file"`

	// AutoInitialize initializes the orchestrator from AssetsFile, PublicKey
	// and Secret during Start.
	AutoInitialize bool `json:"auto_initialize" mapstructure:"auto_initialize" yaml:"auto_initialize"`

	// PublicKey is the marketplace public key. Empty keeps the stored key.
	PublicKey string `json:"public_key" mapstructure:"public_key" yaml:"public_key"`

	// Secret is the custom secret. Empty keeps the stored secret.
	Secret string `json:"secret" mapstructure:"secret" yaml:"secret"`

	// HookTimeout bounds every plugin hook invocation (default: 5s).
	HookTimeout time.Duration `json:"hook_timeout" mapstructure:"hook_timeout" yaml:"hook_timeout"`

	// ObscuringSeed is the seed persisted settings are obscured with.
	ObscuringSeed string `json:"obscuring_seed" mapstructure:"obscuring_seed" yaml:"obscuring_seed"`

	// StoreDriver selects the store built over a grove database passed
	// with WithGroveDatabase: "postgres", "sqlite" or "mongo".
	StoreDriver string `json:"store_driver" mapstructure:"store_driver" yaml:"store_driver"`

	// RequireConfig requires config to be present in YAML files.
	// If true and no config is found, Register returns an error.
	RequireConfig bool `json:"-" yaml:"-"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		HookTimeout: 5 * time.Second,
		StoreDriver: "postgres",
	}
}
