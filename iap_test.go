package iap_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/xraph/iap"
	"github.com/xraph/iap/billing/sim"
	"github.com/xraph/iap/event"
	"github.com/xraph/iap/settings"
	"github.com/xraph/iap/store/memory"
)

func TestInitialize(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil)

	if h.o.IsInitialized() {
		t.Fatal("initialized before Initialize")
	}
	if !h.o.Initialize(ctx, testAssets(), "pk-test", "secret-test") {
		t.Fatalf("Initialize failed: %+v", h.rec.all())
	}
	h.sim.Wait()

	if !h.o.IsInitialized() {
		t.Error("IsInitialized = false after success")
	}
	if got := h.rec.count(event.OrchestratorInitialized); got != 1 {
		t.Errorf("OrchestratorInitialized events: got %d, want 1", got)
	}
	if got := h.rec.count(event.RestoreStarted); got != 1 {
		t.Errorf("RestoreStarted events: got %d, want 1", got)
	}

	if v, _ := h.o.Settings().AssetsVersion(ctx); v != 3 {
		t.Errorf("assets version: got %d, want 3", v)
	}
	if len(h.o.Items()) != 2 {
		t.Errorf("catalog items: got %d, want 2", len(h.o.Items()))
	}
}

func TestInitializeTwice(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil)
	h.initialize(t)

	if h.o.Initialize(ctx, testAssets(), "pk-other", "secret-other") {
		t.Fatal("second Initialize succeeded")
	}

	if got := h.rec.count(event.UnexpectedError); got != 1 {
		t.Errorf("UnexpectedError events: got %d, want 1", got)
	}
	if got := h.rec.count(event.OrchestratorInitialized); got != 0 {
		t.Errorf("OrchestratorInitialized events: got %d, want 0", got)
	}
	if key, _ := h.o.Settings().PublicKey(ctx); key != "pk-test" {
		t.Errorf("public key changed to %q", key)
	}
	if secret, _ := h.o.Settings().CustomSecret(ctx); secret != "secret-test" {
		t.Errorf("secret changed to %q", secret)
	}
}

func TestInitializeFailures(t *testing.T) {
	tests := []struct {
		name      string
		noBackend bool
		key       string
		secret    string
		want      string
	}{
		{name: "no backend", noBackend: true, key: "pk", secret: "s", want: iap.ErrNoBackend.Error()},
		{name: "no public key", secret: "s", want: iap.ErrMissingPublicKey.Error()},
		{name: "no secret", key: "pk", want: iap.ErrMissingSecret.Error()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := &recorder{}
			opts := []iap.Option{iap.WithLogger(discardLogger()), iap.WithPlugin(rec)}
			if !tt.noBackend {
				opts = append(opts, iap.WithBackend(sim.New()))
			}
			o, err := iap.New(memory.New(), opts...)
			if err != nil {
				t.Fatal(err)
			}

			if o.Initialize(context.Background(), testAssets(), tt.key, tt.secret) {
				t.Fatal("Initialize succeeded")
			}
			if o.IsInitialized() {
				t.Error("initialized after failure")
			}
			e := rec.first(event.UnexpectedError)
			if e == nil || e.Message != tt.want {
				t.Errorf("unexpected error event: %+v, want message %q", e, tt.want)
			}
		})
	}
}

func TestInitializeKeepsStoredSettings(t *testing.T) {
	ctx := context.Background()
	s := memory.New()

	b1 := sim.New(sim.WithLogger(discardLogger()))
	first, err := iap.New(s, iap.WithLogger(discardLogger()), iap.WithBackend(b1))
	if err != nil {
		t.Fatal(err)
	}
	if !first.Initialize(ctx, testAssets(), "pk-stored", "secret-stored") {
		t.Fatal("first Initialize failed")
	}
	b1.Wait()

	// A restart with empty arguments reuses what the first run stored.
	b2 := sim.New(sim.WithLogger(discardLogger()))
	second, err := iap.New(s, iap.WithLogger(discardLogger()), iap.WithBackend(b2))
	if err != nil {
		t.Fatal(err)
	}
	if !second.Initialize(ctx, testAssets(), "", "") {
		t.Fatal("Initialize with stored settings failed")
	}
	b2.Wait()
	if key, _ := second.Settings().PublicKey(ctx); key != "pk-stored" {
		t.Errorf("public key: got %q, want pk-stored", key)
	}

	raw, err := s.GetSetting(ctx, settings.KeyPublicKey)
	if err != nil || raw == "pk-stored" {
		t.Errorf("public key not obscured at rest: %q, %v", raw, err)
	}
}

func TestInitializeRejectsBadCatalog(t *testing.T) {
	h := newHarness(t, nil)
	assets := testAssets()
	assets.Items = append(assets.Items, assets.Items[0])

	if h.o.Initialize(context.Background(), assets, "pk", "s") {
		t.Fatal("Initialize accepted duplicate items")
	}
	if h.o.IsInitialized() {
		t.Error("initialized after catalog failure")
	}
}

func TestStartStop(t *testing.T) {
	s := memory.New()
	o, err := iap.New(s, iap.WithLogger(discardLogger()))
	if err != nil {
		t.Fatal(err)
	}
	if err := o.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := o.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if err := s.Ping(context.Background()); !errors.Is(err, iap.ErrStoreClosed) {
		t.Errorf("store still open after Stop: %v", err)
	}
}

func TestOwnershipOperations(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil)
	h.initialize(t)

	if n, _ := h.o.Give(ctx, gemPack, 5); n != 5 {
		t.Errorf("Give: got %d, want 5", n)
	}
	if n, _ := h.o.Take(ctx, gemPack, 2); n != 3 {
		t.Errorf("Take: got %d, want 3", n)
	}
	if n, _ := h.o.ResetBalance(ctx, gemPack, 10); n != 10 {
		t.Errorf("ResetBalance: got %d, want 10", n)
	}

	if ok, _ := h.o.CanBuy(ctx, removeAds); !ok {
		t.Error("CanBuy(remove_ads) = false before purchase")
	}
	_, _ = h.o.Give(ctx, removeAds, 1)
	if ok, _ := h.o.CanBuy(ctx, removeAds); ok {
		t.Error("CanBuy(remove_ads) = true while owned")
	}

	if _, err := h.o.Balance(ctx, "missing"); !iap.IsNotFound(err) {
		t.Errorf("Balance(missing): got %v, want not found", err)
	}
}

type brokenMigrations struct {
	*memory.Store
}

func (brokenMigrations) Migrate(context.Context) error { return errors.New("no schema access") }

type initCounter struct {
	inits atomic.Int32
}

func (c *initCounter) Name() string { return "init-counter" }

func (c *initCounter) OnInit(context.Context, any) error {
	c.inits.Add(1)
	return nil
}

func TestStartMigration(t *testing.T) {
	tests := []struct {
		name      string
		opts      []iap.Option
		wantErr   error
		wantInits int32
	}{
		{"migrates", nil, iap.ErrMigrationFailed, 0},
		{"without migrate", []iap.Option{iap.WithoutMigrate()}, nil, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := &initCounter{}
			opts := append([]iap.Option{iap.WithLogger(discardLogger()), iap.WithPlugin(c)}, tt.opts...)
			o, err := iap.New(brokenMigrations{memory.New()}, opts...)
			if err != nil {
				t.Fatal(err)
			}

			err = o.Start(context.Background())
			if tt.wantErr == nil && err != nil {
				t.Fatalf("Start: %v", err)
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Fatalf("Start: got %v, want %v", err, tt.wantErr)
			}
			if got := c.inits.Load(); got != tt.wantInits {
				t.Errorf("OnInit calls: got %d, want %d", got, tt.wantInits)
			}
		})
	}
}
