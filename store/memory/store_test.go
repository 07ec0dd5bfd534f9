package memory_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/xraph/iap"
	"github.com/xraph/iap/history"
	"github.com/xraph/iap/id"
	"github.com/xraph/iap/item"
	"github.com/xraph/iap/ownership"
	"github.com/xraph/iap/settings"
	"github.com/xraph/iap/store/memory"
	"github.com/xraph/iap/types"
)

func TestAddBalanceClampsAtZero(t *testing.T) {
	ctx := context.Background()
	s := memory.New()

	tests := []struct {
		name  string
		delta int
		want  int
	}{
		{"add", 3, 3},
		{"sub", -1, 2},
		{"overdraw", -10, 0},
		{"add again", 1, 1},
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
}

func TestConcurrentGive(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	l := ownership.NewLedger(s)
	gems := item.Item{ID: "gems", Kind: item.KindConsumable}

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = l.Give(ctx, gems, 1)
		}()
	}
	wg.Wait()

	if got, _ := l.Balance(ctx, gems); got != 100 {
		t.Errorf("balance: got %d, want 100", got)
	}
}

func TestSetOwnedReportsChange(t *testing.T) {
	ctx := context.Background()
	s := memory.New()

	steps := []struct {
		owned       bool
		wantChanged bool
	}{
		{true, true},
		{true, false},
		{false, true},
		{false, false},
	}
	for i, st := range steps {
		changed, err := s.SetOwned(ctx, "noads", st.owned)
		if err != nil {
			t.Fatalf("step %d: %v", i, err)
		}
		if changed != st.wantChanged {
			t.Errorf("step %d: changed = %v, want %v", i, changed, st.wantChanged)
		}
	}
}

func TestSettings(t *testing.T) {
	ctx := context.Background()
	s := memory.New()

	if _, err := s.GetSetting(ctx, "missing"); !errors.Is(err, settings.ErrNotFound) {
		t.Errorf("got %v, want settings.ErrNotFound", err)
	}

	obscured, err := settings.New(s, "device-1")
	if err != nil {
		t.Fatalf("settings.New: %v", err)
	}
	if err := obscured.SetPublicKey(ctx, "MIIBIjANBg"); err != nil {
		t.Fatalf("SetPublicKey: %v", err)
	}

	raw, _ := s.GetSetting(ctx, settings.KeyPublicKey)
	if raw == "MIIBIjANBg" || raw == "" {
		t.Errorf("value stored in the clear: %q", raw)
	}

	got, err := obscured.PublicKey(ctx)
	if err != nil || got != "MIIBIjANBg" {
		t.Errorf("PublicKey = %q, %v", got, err)
	}

	other, _ := settings.New(s, "device-2")
	if _, err := other.PublicKey(ctx); err == nil {
		t.Error("expected error reading with a different seed")
	}
}

func TestListEntries(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	for i, itemID := range []string{"gems", "noads", "gems"} {
		e := &history.Entry{
			Entity: types.Entity{CreatedAt: base.Add(time.Duration(i) * time.Minute)},
			ID:     id.NewRecordID(),
			ItemID: itemID,
			Action: history.ActionGranted,
		}
		if err := s.RecordEntry(ctx, e); err != nil {
			t.Fatalf("RecordEntry: %v", err)
		}
	}

	all, _ := s.ListEntries(ctx, history.ListOpts{})
	if len(all) != 3 || !all[0].CreatedAt.Equal(base.Add(2*time.Minute)) {
		t.Errorf("expected newest first, got %+v", all)
	}

	gems, _ := s.ListEntries(ctx, history.ListOpts{ItemID: "gems", Limit: 1})
	if len(gems) != 1 || gems[0].ItemID != "gems" {
		t.Errorf("filtered: %+v", gems)
	}

	past, _ := s.ListEntries(ctx, history.ListOpts{Offset: 5})
	if len(past) != 0 {
		t.Errorf("offset past end: %+v", past)
	}
}

func TestClosed(t *testing.T) {
	s := memory.New()
	_ = s.Close()
	if err := s.Ping(context.Background()); !errors.Is(err, iap.ErrStoreClosed) {
		t.Errorf("Ping: got %v, want ErrStoreClosed", err)
	}
	if _, err := s.AddBalance(context.Background(), "x", 1); !errors.Is(err, iap.ErrStoreClosed) {
		t.Errorf("AddBalance: got %v, want ErrStoreClosed", err)
	}
}
