// Package ownership tracks what the user owns.
//
// Consumables keep a balance; non-consumables keep an owned flag. The
// Ledger dispatches give, take and reset to the strategy for each item kind
// and relies on the Store for per-item atomicity.
package ownership

import (
	"context"
	"errors"
	"fmt"

	"github.com/xraph/iap/item"
)

// ErrUnknownKind is returned for items whose kind has no strategy.
var ErrUnknownKind = errors.New("ownership: unknown item kind")

// Store persists balances and owned flags. Every method is atomic per item.
type Store interface {
	// Balance returns the balance of itemID, zero when never set.
	Balance(ctx context.Context, itemID string) (int, error)
	// AddBalance adds delta to the balance, clamping the result at zero,
	// and returns the new balance.
	AddBalance(ctx context.Context, itemID string, delta int) (int, error)
	// SetBalance overwrites the balance, clamping at zero.
	SetBalance(ctx context.Context, itemID string, balance int) (int, error)
	// Owned reports the owned flag of itemID, false when never set.
	Owned(ctx context.Context, itemID string) (bool, error)
	// SetOwned sets the owned flag and reports whether it changed.
	SetOwned(ctx context.Context, itemID string, owned bool) (bool, error)
}

// strategy implements ownership for one item kind.
type strategy interface {
	grant(ctx context.Context, s Store, itemID string) (int, bool, error)
	give(ctx context.Context, s Store, itemID string, amount int) (int, error)
	take(ctx context.Context, s Store, itemID string, amount int) (int, error)
	reset(ctx context.Context, s Store, itemID string, balance int) (int, error)
	balance(ctx context.Context, s Store, itemID string) (int, error)
	canBuy(ctx context.Context, s Store, itemID string) (bool, error)
}

// Ledger applies ownership changes through the strategy of each item kind.
type Ledger struct {
	store      Store
	strategies map[item.Kind]strategy
}

// NewLedger creates a Ledger over s.
func NewLedger(s Store) *Ledger {
	return &Ledger{
		store: s,
		strategies: map[item.Kind]strategy{
			item.KindConsumable:    consumable{},
			item.KindNonConsumable: nonConsumable{},
		},
	}
}

func (l *Ledger) strategy(it item.Item) (strategy, error) {
	st, ok := l.strategies[it.Kind]
	if !ok {
		return nil, fmt.Errorf("%w: %s (%s)", ErrUnknownKind, it.ID, it.Kind)
	}
	return st, nil
}

// Give credits amount units of it and returns the new balance.
func (l *Ledger) Give(ctx context.Context, it item.Item, amount int) (int, error) {
	st, err := l.strategy(it)
	if err != nil {
		return 0, err
	}
	return st.give(ctx, l.store, it.ID, amount)
}

// Grant credits one purchased unit of it and returns the new balance.
// For non-consumables the owned flag is set with a compare-and-set, and
// granted is false when the item was already owned.
func (l *Ledger) Grant(ctx context.Context, it item.Item) (balance int, granted bool, err error) {
	st, err := l.strategy(it)
	if err != nil {
		return 0, false, err
	}
	return st.grant(ctx, l.store, it.ID)
}

// Take debits amount units of it and returns the new balance.
func (l *Ledger) Take(ctx context.Context, it item.Item, amount int) (int, error) {
	st, err := l.strategy(it)
	if err != nil {
		return 0, err
	}
	return st.take(ctx, l.store, it.ID, amount)
}

// Reset overwrites the balance of it.
func (l *Ledger) Reset(ctx context.Context, it item.Item, balance int) (int, error) {
	st, err := l.strategy(it)
	if err != nil {
		return 0, err
	}
	return st.reset(ctx, l.store, it.ID, balance)
}

// Balance returns the balance of it. Non-consumables report 1 when owned.
func (l *Ledger) Balance(ctx context.Context, it item.Item) (int, error) {
	st, err := l.strategy(it)
	if err != nil {
		return 0, err
	}
	return st.balance(ctx, l.store, it.ID)
}

// CanBuy reports whether it may be purchased again.
func (l *Ledger) CanBuy(ctx context.Context, it item.Item) (bool, error) {
	st, err := l.strategy(it)
	if err != nil {
		return false, err
	}
	return st.canBuy(ctx, l.store, it.ID)
}

// Owned reports whether the user holds at least one unit of it.
func (l *Ledger) Owned(ctx context.Context, it item.Item) (bool, error) {
	n, err := l.Balance(ctx, it)
	return n > 0, err
}

// ──────────────────────────────────────────────────
// Strategies
// ──────────────────────────────────────────────────

type consumable struct{}

func (consumable) grant(ctx context.Context, s Store, itemID string) (int, bool, error) {
	n, err := s.AddBalance(ctx, itemID, 1)
	if err != nil {
		return 0, false, err
	}
	return n, true, nil
}

func (consumable) give(ctx context.Context, s Store, itemID string, amount int) (int, error) {
	return s.AddBalance(ctx, itemID, amount)
}

func (consumable) take(ctx context.Context, s Store, itemID string, amount int) (int, error) {
	return s.AddBalance(ctx, itemID, -amount)
}

func (consumable) reset(ctx context.Context, s Store, itemID string, balance int) (int, error) {
	return s.SetBalance(ctx, itemID, balance)
}

func (consumable) balance(ctx context.Context, s Store, itemID string) (int, error) {
	return s.Balance(ctx, itemID)
}

func (consumable) canBuy(context.Context, Store, string) (bool, error) {
	return true, nil
}

type nonConsumable struct{}

func (nonConsumable) grant(ctx context.Context, s Store, itemID string) (int, bool, error) {
	changed, err := s.SetOwned(ctx, itemID, true)
	if err != nil {
		return 0, false, err
	}
	return 1, changed, nil
}

func (nonConsumable) give(ctx context.Context, s Store, itemID string, _ int) (int, error) {
	if _, err := s.SetOwned(ctx, itemID, true); err != nil {
		return 0, err
	}
	return 1, nil
}

func (nonConsumable) take(ctx context.Context, s Store, itemID string, _ int) (int, error) {
	if _, err := s.SetOwned(ctx, itemID, false); err != nil {
		return 0, err
	}
	return 0, nil
}

func (nonConsumable) reset(ctx context.Context, s Store, itemID string, balance int) (int, error) {
	owned := balance > 0
	if _, err := s.SetOwned(ctx, itemID, owned); err != nil {
		return 0, err
	}
	if owned {
		return 1, nil
	}
	return 0, nil
}

func (nonConsumable) balance(ctx context.Context, s Store, itemID string) (int, error) {
	owned, err := s.Owned(ctx, itemID)
	if err != nil || !owned {
		return 0, err
	}
	return 1, nil
}

func (nonConsumable) canBuy(ctx context.Context, s Store, itemID string) (bool, error) {
	owned, err := s.Owned(ctx, itemID)
	if err != nil {
		return false, err
	}
	return !owned, nil
}
