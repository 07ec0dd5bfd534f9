package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/mongodriver"

	"github.com/xraph/iap/history"
	"github.com/xraph/iap/settings"
	iapstore "github.com/xraph/iap/store"
)

// Collection name constants.
const (
	colBalances = "iap_balances"
	colSettings = "iap_settings"
	colHistory  = "iap_history"
)

// compile-time interface check
var _ iapstore.Store = (*Store)(nil)

// Store implements store.Store using MongoDB via Grove ORM.
type Store struct {
	db  *grove.DB
	mdb *mongodriver.MongoDB
}

// New creates a new MongoDB store backed by Grove ORM.
func New(db *grove.DB) *Store {
	return &Store{
		db:  db,
		mdb: mongodriver.Unwrap(db),
	}
}

// DB returns the underlying grove database for direct access.
func (s *Store) DB() *grove.DB { return s.db }

// Migrate creates indexes for all purchase collections.
func (s *Store) Migrate(ctx context.Context) error {
	indexes := migrationIndexes()

	for col, models := range indexes {
		if len(models) == 0 {
			continue
		}
		_, err := s.mdb.Collection(col).Indexes().CreateMany(ctx, models)
		if err != nil {
			return fmt.Errorf("iap/mongo: migrate %s indexes: %w", col, err)
		}
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
	var m balanceModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"_id": itemID}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("iap/mongo: get balance: %w", err)
	}
	return m.Balance, nil
}

// AddBalance uses a pipeline update so the add and the clamp at zero happen
// in one server-side operation.
func (s *Store) AddBalance(ctx context.Context, itemID string, delta int) (int, error) {
	update := bson.A{
		bson.M{"$set": bson.M{
			"balance": bson.M{"$max": bson.A{
				bson.M{"$add": bson.A{bson.M{"$ifNull": bson.A{"$balance", 0}}, delta}},
				0,
			}},
			"owned":      bson.M{"$ifNull": bson.A{"$owned", false}},
			"updated_at": now(),
		}},
	}
	opts := options.FindOneAndUpdate().
		SetUpsert(true).
		SetReturnDocument(options.After)

	var m balanceModel
	err := s.mdb.Collection(colBalances).
		FindOneAndUpdate(ctx, bson.M{"_id": itemID}, update, opts).
		Decode(&m)
	if err != nil {
		return 0, fmt.Errorf("iap/mongo: add balance: %w", err)
	}
	return m.Balance, nil
}

func (s *Store) SetBalance(ctx context.Context, itemID string, balance int) (int, error) {
	balance = max(balance, 0)
	_, err := s.mdb.NewUpdate((*balanceModel)(nil)).
		Filter(bson.M{"_id": itemID}).
		SetUpdate(bson.M{"$set": bson.M{
			"balance":    balance,
			"updated_at": now(),
		}}).
		Upsert().
		Exec(ctx)
	if err != nil {
		return 0, fmt.Errorf("iap/mongo: set balance: %w", err)
	}
	return balance, nil
}

func (s *Store) Owned(ctx context.Context, itemID string) (bool, error) {
	var m balanceModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"_id": itemID}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return false, nil
		}
		return false, fmt.Errorf("iap/mongo: get owned: %w", err)
	}
	return m.Owned, nil
}

// SetOwned returns the document as it was before the update to report
// whether the flag changed.
func (s *Store) SetOwned(ctx context.Context, itemID string, owned bool) (bool, error) {
	update := bson.M{
		"$set":         bson.M{"owned": owned, "updated_at": now()},
		"$setOnInsert": bson.M{"balance": 0},
	}
	opts := options.FindOneAndUpdate().
		SetUpsert(true).
		SetReturnDocument(options.Before)

	var prev balanceModel
	err := s.mdb.Collection(colBalances).
		FindOneAndUpdate(ctx, bson.M{"_id": itemID}, update, opts).
		Decode(&prev)
	if err != nil {
		if isNoDocuments(err) {
			return owned, nil
		}
		return false, fmt.Errorf("iap/mongo: set owned: %w", err)
	}
	return prev.Owned != owned, nil
}

// ==================== Settings Store ====================

func (s *Store) GetSetting(ctx context.Context, key string) (string, error) {
	var m settingModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"_id": key}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return "", settings.ErrNotFound
		}
		return "", fmt.Errorf("iap/mongo: get setting: %w", err)
	}
	return m.Value, nil
}

func (s *Store) SetSetting(ctx context.Context, key, value string) error {
	_, err := s.mdb.NewUpdate((*settingModel)(nil)).
		Filter(bson.M{"_id": key}).
		SetUpdate(bson.M{"$set": bson.M{
			"value":      value,
			"updated_at": now(),
		}}).
		Upsert().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("iap/mongo: set setting: %w", err)
	}
	return nil
}

// ==================== History Store ====================

func (s *Store) RecordEntry(ctx context.Context, e *history.Entry) error {
	m := toEntryModel(e)
	_, err := s.mdb.NewInsert(m).Exec(ctx)
	if err != nil {
		return fmt.Errorf("iap/mongo: record entry: %w", err)
	}
	return nil
}

func (s *Store) ListEntries(ctx context.Context, opts history.ListOpts) ([]*history.Entry, error) {
	var models []entryModel

	filter := bson.M{}
	if opts.ItemID != "" {
		filter["item_id"] = opts.ItemID
	}
	if opts.Action != "" {
		filter["action"] = string(opts.Action)
	}

	q := s.mdb.NewFind(&models).
		Filter(filter).
		Sort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}})

	if opts.Limit > 0 {
		q = q.Limit(int64(opts.Limit))
	}
	if opts.Offset > 0 {
		q = q.Skip(int64(opts.Offset))
	}

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("iap/mongo: list entries: %w", err)
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

// isNoDocuments checks if an error wraps mongo.ErrNoDocuments.
func isNoDocuments(err error) bool {
	return errors.Is(err, mongo.ErrNoDocuments)
}

// migrationIndexes returns the index definitions for all purchase collections.
func migrationIndexes() map[string][]mongo.IndexModel {
	return map[string][]mongo.IndexModel{
		colHistory: {
			{Keys: bson.D{{Key: "item_id", Value: 1}, {Key: "created_at", Value: -1}}},
			{Keys: bson.D{{Key: "action", Value: 1}, {Key: "created_at", Value: -1}}},
			{
				Keys:    bson.D{{Key: "token", Value: 1}, {Key: "action", Value: 1}},
				Options: options.Index().SetSparse(true),
			},
		},
	}
}
