package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/sqlitedriver"
	_ "github.com/xraph/grove/drivers/sqlitedriver/sqlitemigrate"
	"github.com/xraph/grove/migrate"

	"github.com/xraph/iap/history"
	"github.com/xraph/iap/settings"
	iapstore "github.com/xraph/iap/store"
)

// compile-time interface check
var _ iapstore.Store = (*Store)(nil)

// Store implements store.Store using SQLite via Grove ORM.
type Store struct {
	db  *grove.DB
	sdb *sqlitedriver.SqliteDB
}

// New creates a new SQLite store backed by Grove ORM.
func New(db *grove.DB) *Store {
	return &Store{
		db:  db,
		sdb: sqlitedriver.Unwrap(db),
	}
}

// DB returns the underlying grove database for direct access.
func (s *Store) DB() *grove.DB { return s.db }

// Migrate creates the required tables and indexes using the grove orchestrator.
func (s *Store) Migrate(ctx context.Context) error {
	executor, err := migrate.NewExecutorFor(s.sdb)
	if err != nil {
		return fmt.Errorf("iap/sqlite: create migration executor: %w", err)
	}
	orch := migrate.NewOrchestrator(executor, Migrations)
	if _, err := orch.Migrate(ctx); err != nil {
		return fmt.Errorf("iap/sqlite: migration failed: %w", err)
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
	err := s.sdb.NewSelect(m).
		Where("item_id = ?", itemID).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return 0, nil
		}
		return 0, err
	}
	return m.Balance, nil
}

// AddBalance applies delta in a single upsert so concurrent grants on the
// same item never lose an update.
func (s *Store) AddBalance(ctx context.Context, itemID string, delta int) (int, error) {
	var balance int
	err := s.sdb.NewRaw(`
		INSERT INTO iap_balances (item_id, balance, owned, updated_at)
		VALUES (?, MAX(?, 0), 0, ?)
		ON CONFLICT (item_id) DO UPDATE
		SET balance = MAX(iap_balances.balance + ?, 0), updated_at = excluded.updated_at
		RETURNING balance
	`, itemID, delta, now(), delta).Scan(ctx, &balance)
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
	_, err := s.sdb.NewInsert(m).
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
	err := s.sdb.NewSelect(m).
		Where("item_id = ?", itemID).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return false, nil
		}
		return false, err
	}
	return m.Owned, nil
}

// SetOwned flips the owned flag with a conditional update, inserting the
// row when it does not exist yet. The affected row count tells whether the
// flag actually changed.
func (s *Store) SetOwned(ctx context.Context, itemID string, owned bool) (bool, error) {
	for range 2 {
		changed, err := s.flipOwned(ctx, itemID, owned)
		if err != nil || changed || !owned {
			return changed, err
		}

		res, err := s.sdb.NewInsert(&balanceModel{ItemID: itemID, Owned: true, UpdatedAt: now()}).
			OnConflict("(item_id) DO NOTHING").
			Exec(ctx)
		if err != nil {
			return false, err
		}
		rows, err := res.RowsAffected()
		if err != nil {
			return false, err
		}
		if rows > 0 {
			return true, nil
		}
		// Lost the insert race; the row now exists, so the update decides.
	}
	return false, nil
}

func (s *Store) flipOwned(ctx context.Context, itemID string, owned bool) (bool, error) {
	res, err := s.sdb.NewUpdate((*balanceModel)(nil)).
		Set("owned = ?", owned).
		Set("updated_at = ?", now()).
		Where("item_id = ?", itemID).
		Where("owned != ?", owned).
		Exec(ctx)
	if err != nil {
		return false, err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return rows > 0, nil
}

// ==================== Settings Store ====================

func (s *Store) GetSetting(ctx context.Context, key string) (string, error) {
	m := new(settingModel)
	err := s.sdb.NewSelect(m).
		Where("name = ?", key).
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
	_, err := s.sdb.NewInsert(m).
		OnConflict("(name) DO UPDATE").
		Set("value = EXCLUDED.value").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	return err
}

// ==================== History Store ====================

func (s *Store) RecordEntry(ctx context.Context, e *history.Entry) error {
	m := toEntryModel(e)
	_, err := s.sdb.NewInsert(m).Exec(ctx)
	return err
}

func (s *Store) ListEntries(ctx context.Context, opts history.ListOpts) ([]*history.Entry, error) {
	var models []entryModel
	q := s.sdb.NewSelect(&models)

	if opts.ItemID != "" {
		q = q.Where("item_id = ?", opts.ItemID)
	}
	if opts.Action != "" {
		q = q.Where("action = ?", string(opts.Action))
	}
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		// SQLite only accepts OFFSET after a LIMIT.
		if opts.Limit <= 0 {
			q = q.Limit(math.MaxInt)
		}
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
