package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/pgdriver"
	_ "github.com/xraph/grove/drivers/pgdriver/pgmigrate"
	"github.com/xraph/grove/migrate"

	"github.com/xraph/iap/history"
	"github.com/xraph/iap/settings"
	iapstore "github.com/xraph/iap/store"
)

// compile-time interface check
var _ iapstore.Store = (*Store)(nil)

// Store implements store.Store using PostgreSQL via Grove ORM.
type Store struct {
	db *grove.DB
	pg *pgdriver.PgDB
}

// New creates a new PostgreSQL store backed by Grove ORM.
func New(db *grove.DB) *Store {
	return &Store{
		db: db,
		pg: pgdriver.Unwrap(db),
	}
}

// DB returns the underlying grove database for direct access.
func (s *Store) DB() *grove.DB { return s.db }

// Migrate creates the required tables and indexes using the grove orchestrator.
func (s *Store) Migrate(ctx context.Context) error {
	executor, err := migrate.NewExecutorFor(s.pg)
	if err != nil {
		return fmt.Errorf("iap/postgres: create migration executor: %w", err)
	}
	orch := migrate.NewOrchestrator(executor, Migrations)
	if _, err := orch.Migrate(ctx); err != nil {
		return fmt.Errorf("iap/postgres: migration failed: %w", err)
	}
	return nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// ==================== Ownership Store ====================

func (s *Store) Balance(ctx context.Context, itemID string) (int, error) {
	m := new(balanceModel)
	err := s.pg.NewSelect(m).
		Where("item_id = $1", itemID).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return 0, nil
		}
		return 0, err
	}
	return m.Balance, nil
}

func (s *Store) AddBalance(ctx context.Context, itemID string, delta int) (int, error) {
	var balance int
	err := s.pg.NewRaw(`
		INSERT INTO iap_balances (item_id, balance, owned, updated_at)
		VALUES ($1, GREATEST($2::int, 0), FALSE, $3)
		ON CONFLICT (item_id) DO UPDATE
		SET balance = GREATEST(iap_balances.balance + $2::int, 0), updated_at = EXCLUDED.updated_at
		RETURNING balance
	`, itemID, delta, now()).Scan(ctx, &balance)
	if err != nil {
		return 0, err
	}
	return balance, nil
}

func (s *Store) SetBalance(ctx context.Context, itemID string, balance int) (int, error) {
	m := &balanceModel{
		ItemID:    itemID,
		Balance:   max(balance, 0),
		UpdatedAt: now(),
	}
	_, err := s.pg.NewInsert(m).
		OnConflict("(item_id) DO UPDATE").
		Set("balance = EXCLUDED.balance").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	if err != nil {
		return 0, err
	}
	return m.Balance, nil
}

func (s *Store) Owned(ctx context.Context, itemID string) (bool, error) {
	m := new(balanceModel)
	err := s.pg.NewSelect(m).
		Where("item_id = $1", itemID).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return false, nil
		}
		return false, err
	}
	return m.Owned, nil
}

// SetOwned reports a change only when the stored flag actually differs.
// A missing row counts as not owned.
func (s *Store) SetOwned(ctx context.Context, itemID string, owned bool) (bool, error) {
	var prev sql.NullBool
	err := s.pg.NewRaw(`
		WITH old AS (
			SELECT owned FROM iap_balances WHERE item_id = $1 FOR UPDATE
		), upsert AS (
			INSERT INTO iap_balances (item_id, balance, owned, updated_at)
			VALUES ($1, 0, $2, $3)
			ON CONFLICT (item_id) DO UPDATE
			SET owned = EXCLUDED.owned, updated_at = EXCLUDED.updated_at
			RETURNING item_id
		)
		SELECT (SELECT owned FROM old) FROM upsert
	`, itemID, owned, now()).Scan(ctx, &prev)
	if err != nil {
		return false, err
	}
	return prev.Bool != owned, nil
}

// ==================== Settings Store ====================

func (s *Store) GetSetting(ctx context.Context, key string) (string, error) {
	m := new(settingModel)
	err := s.pg.NewSelect(m).
		Where("name = $1", key).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return "", settings.ErrNotFound
		}
		return "", err
	}
	return m.Value, nil
}

func (s *Store) SetSetting(ctx context.Context, key, value string) error {
	m := &settingModel{Name: key, Value: value, UpdatedAt: now()}
	_, err := s.pg.NewInsert(m).
		OnConflict("(name) DO UPDATE").
		Set("value = EXCLUDED.value").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	return err
}

// ==================== History Store ====================

func (s *Store) RecordEntry(ctx context.Context, e *history.Entry) error {
	m := toEntryModel(e)
	_, err := s.pg.NewInsert(m).Exec(ctx)
	return err
}

func (s *Store) ListEntries(ctx context.Context, opts history.ListOpts) ([]*history.Entry, error) {
	var models []entryModel
	q := s.pg.NewSelect(&models)

	argIdx := 1
	if opts.ItemID != "" {
		q = q.Where(fmt.Sprintf("item_id = $%d", argIdx), opts.ItemID)
		argIdx++
	}
	if opts.Action != "" {
		q = q.Where(fmt.Sprintf("action = $%d", argIdx), string(opts.Action))
	}
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}
	q = q.OrderExpr("created_at DESC, id DESC")

	if err := q.Scan(ctx); err != nil {
		return nil, err
	}

	result := make([]*history.Entry, len(models))
	for i := range models {
		e, err := fromEntryModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = e
	}
	return result, nil
}

// ==================== Helpers ====================

// now returns the current UTC time.
func now() time.Time {
	return time.Now().UTC()
}

// isNoRows checks for the standard sql.ErrNoRows sentinel.
func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
