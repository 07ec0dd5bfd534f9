package sqlite_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/sqlitedriver"

	"github.com/xraph/iap/history"
	"github.com/xraph/iap/id"
	"github.com/xraph/iap/settings"
	"github.com/xraph/iap/store/sqlite"
	"github.com/xraph/iap/types"
)

func newStore(t *testing.T) *sqlite.Store {
	t.Helper()
	ctx := context.Background()

	drv := sqlitedriver.New()
	if err := drv.Open(ctx, filepath.Join(t.TempDir(), "iap.db")); err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	db, err := grove.Open(drv)
	if err != nil {
		t.Fatalf("grove.Open: %v", err)
	}

	s := sqlite.New(db)
	t.Cleanup(func() { _ = s.Close() })

	if err := s.Migrate(ctx); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	return s
}

func TestMigrateTwice(t *testing.T) {
	s := newStore(t)
	if err := s.Migrate(context.Background()); err != nil {
		t.Fatalf("second Migrate: %v", err)
	}
	if err := s.Ping(context.Background()); err != nil {
		t.Fatalf("Ping: %v", err)
	}
}

func TestBalances(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	if got, err := s.Balance(ctx, "gems"); err != nil || got != 0 {
		t.Fatalf("unset balance: %d, %v", got, err)
	}

	tests := []struct {
		name  string
		delta int
		want  int
	}{
		{"add", 1, 1},
		{"add more", 2, 3},
		{"overdraw", -10, 0},
		{"add again", 4, 4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.AddBalance(ctx, "gems", tt.delta)
			if err != nil {
				t.Fatalf("AddBalance: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %d, want %d", got, tt.want)
			}
		})
	}

	if got, err := s.Balance(ctx, "gems"); err != nil || got != 4 {
		t.Errorf("Balance: %d, %v, want 4", got, err)
	}

	if got, err := s.SetBalance(ctx, "gems", 5); err != nil || got != 5 {
		t.Fatalf("SetBalance: %d, %v", got, err)
	}
	if got, err := s.SetBalance(ctx, "gems", -2); err != nil || got != 0 {
		t.Fatalf("SetBalance below zero: %d, %v", got, err)
	}
	if got, err := s.Balance(ctx, "gems"); err != nil || got != 0 {
		t.Errorf("Balance after reset: %d, %v, want 0", got, err)
	}
}

func TestSetOwnedReportsChange(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	steps := []struct {
		owned       bool
		wantChanged bool
	}{
		{true, true},
		{true, false},
		{false, true},
		{false, false},
		{true, true},
	}
	for i, st := range steps {
		changed, err := s.SetOwned(ctx, "noads", st.owned)
		if err != nil {
			t.Fatalf("step %d: %v", i, err)
		}
		if changed != st.wantChanged {
			t.Errorf("step %d: changed = %v, want %v", i, changed, st.wantChanged)
		}
		owned, err := s.Owned(ctx, "noads")
		if err != nil {
			t.Fatalf("step %d: Owned: %v", i, err)
		}
		if owned != st.owned {
			t.Errorf("step %d: owned = %v, want %v", i, owned, st.owned)
		}
	}

	if owned, err := s.Owned(ctx, "never"); err != nil || owned {
		t.Errorf("unset item: %v, %v", owned, err)
	}
}

func TestSettings(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	if _, err := s.GetSetting(ctx, "missing"); !errors.Is(err, settings.ErrNotFound) {
		t.Errorf("got %v, want settings.ErrNotFound", err)
	}

	if err := s.SetSetting(ctx, "k", "v1"); err != nil {
		t.Fatalf("SetSetting: %v", err)
	}
	if err := s.SetSetting(ctx, "k", "v2"); err != nil {
		t.Fatalf("SetSetting overwrite: %v", err)
	}
	if got, err := s.GetSetting(ctx, "k"); err != nil || got != "v2" {
		t.Errorf("GetSetting = %q, %v, want v2", got, err)
	}

	obscured, err := settings.New(s, "device-1")
	if err != nil {
		t.Fatal(err)
	}
	if err := obscured.SetPublicKey(ctx, "MIIBIjANBg"); err != nil {
		t.Fatal(err)
	}
	if got, err := obscured.PublicKey(ctx); err != nil || got != "MIIBIjANBg" {
		t.Errorf("PublicKey = %q, %v", got, err)
	}
}

func TestListEntries(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	var ids []id.ID
	for i, itemID := range []string{"gems", "noads", "gems"} {
		e := &history.Entry{
			Entity:    types.Entity{CreatedAt: base.Add(time.Duration(i) * time.Minute)},
			ID:        id.NewRecordID(),
			ItemID:    itemID,
			ProductID: "com.example." + itemID,
			Action:    history.ActionGranted,
			Token:     "tok",
			Balance:   i + 1,
		}
		if err := s.RecordEntry(ctx, e); err != nil {
			t.Fatalf("RecordEntry: %v", err)
		}
		ids = append(ids, e.ID)
	}

	all, err := s.ListEntries(ctx, history.ListOpts{})
	if err != nil {
		t.Fatalf("ListEntries: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("entries: got %d, want 3", len(all))
	}
	for i, want := range []id.ID{ids[2], ids[1], ids[0]} {
		if all[i].ID.String() != want.String() {
			t.Errorf("entry %d: got %s, want %s (newest first)", i, all[i].ID, want)
		}
	}
	if all[0].Balance != 3 || all[0].ProductID != "com.example.gems" {
		t.Errorf("newest entry: %+v", all[0])
	}

	gems, err := s.ListEntries(ctx, history.ListOpts{ItemID: "gems", Limit: 1})
	if err != nil {
		t.Fatal(err)
	}
	if len(gems) != 1 || gems[0].ID.String() != ids[2].String() {
		t.Errorf("filtered: %+v", gems)
	}

	page, err := s.ListEntries(ctx, history.ListOpts{Offset: 1})
	if err != nil {
		t.Fatalf("offset without limit: %v", err)
	}
	if len(page) != 2 || page[0].ID.String() != ids[1].String() {
		t.Errorf("offset page: %+v", page)
	}

	refunds, err := s.ListEntries(ctx, history.ListOpts{Action: history.ActionRefunded})
	if err != nil || len(refunds) != 0 {
		t.Errorf("refunds: %+v, %v", refunds, err)
	}
}
