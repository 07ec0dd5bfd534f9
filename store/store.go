package store

import (
	"context"

	"github.com/xraph/iap/history"
	"github.com/xraph/iap/ownership"
	"github.com/xraph/iap/settings"
)

// Store is the unified storage interface of the purchase engine.
// Methods are declared explicitly rather than by embedding so that each
// backend lists its full surface in one place.
type Store interface {
	// Ownership methods
	Balance(ctx context.Context, itemID string) (int, error)
	AddBalance(ctx context.Context, itemID string, delta int) (int, error)
	SetBalance(ctx context.Context, itemID string, balance int) (int, error)
	Owned(ctx context.Context, itemID string) (bool, error)
	SetOwned(ctx context.Context, itemID string, owned bool) (bool, error)

	// Settings methods
	GetSetting(ctx context.Context, key string) (string, error)
	SetSetting(ctx context.Context, key, value string) error

	// History methods
	RecordEntry(ctx context.Context, e *history.Entry) error
	ListEntries(ctx context.Context, opts history.ListOpts) ([]*history.Entry, error)

	// Core methods
	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}

// compile-time checks that Store satisfies the component interfaces.
var (
	_ ownership.Store = Store(nil)
	_ settings.Store  = Store(nil)
	_ history.Store   = Store(nil)
)
