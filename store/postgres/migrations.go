package postgres

import (
	"context"

	"github.com/xraph/grove/migrate"
)

// Migrations is the grove migration group for the purchase store (PostgreSQL).
var Migrations = migrate.NewGroup("iap")

func init() {
	Migrations.MustRegister(
		&migrate.Migration{
			Name:    "create_iap_balances",
			Version: "20260101000001",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS iap_balances (
    item_id    TEXT PRIMARY KEY,
    balance    INTEGER NOT NULL DEFAULT 0 CHECK (balance >= 0),
    owned      BOOLEAN NOT NULL DEFAULT FALSE,
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS iap_balances`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_iap_settings",
			Version: "20260101000002",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS iap_settings (
    name       TEXT PRIMARY KEY,
    value      TEXT NOT NULL DEFAULT '',
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS iap_settings`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_iap_history",
			Version: "20260101000003",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS iap_history (
    id         TEXT PRIMARY KEY,
    item_id    TEXT NOT NULL DEFAULT '',
    product_id TEXT NOT NULL DEFAULT '',
    action     TEXT NOT NULL DEFAULT '',
    token      TEXT NOT NULL DEFAULT '',
    order_id   TEXT NOT NULL DEFAULT '',
    payload    TEXT NOT NULL DEFAULT '',
    balance    INTEGER NOT NULL DEFAULT 0,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_iap_history_item ON iap_history (item_id, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_iap_history_action ON iap_history (action, created_at DESC);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS iap_history`)
				return err
			},
		},
	)
}
