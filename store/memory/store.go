package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/xraph/iap"
	"github.com/xraph/iap/history"
	"github.com/xraph/iap/settings"
	iapstore "github.com/xraph/iap/store"
)

// compile-time interface check
var _ iapstore.Store = (*Store)(nil)

// Store implements store.Store in process memory. A single mutex makes
// every method atomic.
type Store struct {
	mu     sync.RWMutex
	closed bool

	// Ownership storage
	balances map[string]int
	owned    map[string]bool

	// Settings storage
	settings map[string]string

	// History storage, in insertion order
	entries []*history.Entry
}

// New creates an empty in-memory store.
func New() *Store {
	return &Store{
		balances: make(map[string]int),
		owned:    make(map[string]bool),
		settings: make(map[string]string),
	}
}

// ==================== Ownership Store ====================

func (s *Store) Balance(_ context.Context, itemID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return 0, iap.ErrStoreClosed
	}
	return s.balances[itemID], nil
}

func (s *Store) AddBalance(_ context.Context, itemID string, delta int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return 0, iap.ErrStoreClosed
	}
	s.balances[itemID] = max(s.balances[itemID]+delta, 0)
	return s.balances[itemID], nil
}

func (s *Store) SetBalance(_ context.Context, itemID string, balance int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return 0, iap.ErrStoreClosed
	}
	s.balances[itemID] = max(balance, 0)
	return s.balances[itemID], nil
}

func (s *Store) Owned(_ context.Context, itemID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return false, iap.ErrStoreClosed
	}
	return s.owned[itemID], nil
}

func (s *Store) SetOwned(_ context.Context, itemID string, owned bool) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return false, iap.ErrStoreClosed
	}
	changed := s.owned[itemID] != owned
	s.owned[itemID] = owned
	return changed, nil
}

// ==================== Settings Store ====================

func (s *Store) GetSetting(_ context.Context, key string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return "", iap.ErrStoreClosed
	}
	v, ok := s.settings[key]
	if !ok {
		return "", settings.ErrNotFound
	}
	return v, nil
}

func (s *Store) SetSetting(_ context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return iap.ErrStoreClosed
	}
	s.settings[key] = value
	return nil
}

// ==================== History Store ====================

func (s *Store) RecordEntry(_ context.Context, e *history.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return iap.ErrStoreClosed
	}
	cp := *e
	s.entries = append(s.entries, &cp)
	return nil
}

func (s *Store) ListEntries(_ context.Context, opts history.ListOpts) ([]*history.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, iap.ErrStoreClosed
	}

	var result []*history.Entry
	for _, e := range s.entries {
		if opts.ItemID != "" && e.ItemID != opts.ItemID {
			continue
		}
		if opts.Action != "" && e.Action != opts.Action {
			continue
		}
		cp := *e
		result = append(result, &cp)
	}

	// Newest first. Entries sharing a timestamp keep reverse insertion order.
	for i, j := 0, len(result)-1; i < j; i, j = i+1, j-1 {
		result[i], result[j] = result[j], result[i]
	}
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})

	if opts.Offset > 0 {
		if opts.Offset >= len(result) {
			return []*history.Entry{}, nil
		}
		result = result[opts.Offset:]
	}
	if opts.Limit > 0 && opts.Limit < len(result) {
		result = result[:opts.Limit]
	}
	return result, nil
}

// ==================== Core ====================

// Migrate is a no-op for the memory store.
func (s *Store) Migrate(context.Context) error { return nil }

// Ping reports whether the store is open.
func (s *Store) Ping(context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return iap.ErrStoreClosed
	}
	return nil
}

// Close marks the store closed. Further calls fail with ErrStoreClosed.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	return nil
}
