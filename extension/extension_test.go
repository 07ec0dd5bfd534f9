package extension

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/xraph/iap"
	"github.com/xraph/iap/store/memory"
)

func TestMergeConfigurations(t *testing.T) {
	e := New()

	yamlCfg := Config{AssetsFile: "catalog.yaml", HookTimeout: time.Second}
	progCfg := Config{
		AssetsFile:      "ignored.yaml",
		PublicKey:       "pk",
		FriendlyRefunds: true,
		StoreDriver:     "sqlite",
	}

	got := e.mergeConfigurations(yamlCfg, progCfg)
	if got.AssetsFile != "catalog.yaml" {
		t.Errorf("AssetsFile: got %q, want catalog.yaml", got.AssetsFile)
	}
	if got.PublicKey != "pk" {
		t.Errorf("PublicKey: got %q, want pk", got.PublicKey)
	}
	if !got.FriendlyRefunds {
		t.Error("FriendlyRefunds not carried over")
	}
	if got.HookTimeout != time.Second {
		t.Errorf("HookTimeout: got %v, want 1s", got.HookTimeout)
	}
	if got.StoreDriver != "sqlite" {
		t.Errorf("StoreDriver: got %q, want sqlite", got.StoreDriver)
	}
}

func TestMergeWithDefaults(t *testing.T) {
	e := New()
	got := e.mergeWithDefaults(Config{})
	want := DefaultConfig()
	if got.HookTimeout != want.HookTimeout || got.StoreDriver != want.StoreDriver {
		t.Errorf("got %+v, want defaults %+v", got, want)
	}
}

func TestOptions(t *testing.T) {
	s := memory.New()
	e := New(
		WithStore(s),
		WithDisableMigrate(),
		WithFriendlyRefunds(),
		WithAutoInitialize("assets.yaml", "pk", "secret"),
		WithHookTimeout(2*time.Second),
	)

	if e.store != s {
		t.Error("store not set")
	}
	cfg := e.config
	if !cfg.DisableMigrate || !cfg.FriendlyRefunds || !cfg.AutoInitialize {
		t.Errorf("flags not set: %+v", cfg)
	}
	if cfg.AssetsFile != "assets.yaml" || cfg.PublicKey != "pk" || cfg.Secret != "secret" {
		t.Errorf("initialization config: %+v", cfg)
	}
	if cfg.HookTimeout != 2*time.Second {
		t.Errorf("HookTimeout: got %v", cfg.HookTimeout)
	}
}

func TestBuildStore(t *testing.T) {
	e := New()
	s, err := e.buildStore()
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := s.(*memory.Store); !ok {
		t.Errorf("store without grove database: got %T, want *memory.Store", s)
	}
}

type readOnlyStore struct {
	*memory.Store
}

func (readOnlyStore) Migrate(context.Context) error { return errors.New("read-only database") }

type initHook struct {
	inits atomic.Int32
}

func (h *initHook) Name() string { return "init-hook" }

func (h *initHook) OnInit(context.Context, any) error {
	h.inits.Add(1)
	return nil
}

func TestStartWithDisabledMigrate(t *testing.T) {
	hook := &initHook{}
	e := New(WithDisableMigrate(), WithPlugin(hook))
	e.config = e.mergeWithDefaults(e.config)

	eng, err := iap.New(readOnlyStore{memory.New()}, e.buildIAPOpts()...)
	if err != nil {
		t.Fatal(err)
	}
	e.engine = eng

	if err := e.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if got := hook.inits.Load(); got != 1 {
		t.Errorf("OnInit calls: got %d, want 1", got)
	}
}
