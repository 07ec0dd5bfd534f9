package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"

	"github.com/xraph/iap"
	"github.com/xraph/iap/billing/sim"
	"github.com/xraph/iap/catalog"
	"github.com/xraph/iap/event"
	"github.com/xraph/iap/plugin"
	"github.com/xraph/iap/store/memory"
	"github.com/xraph/iap/verify"
)

// printer writes every event as a JSON line.
type printer struct {
	mu  sync.Mutex
	enc *json.Encoder
}

var _ plugin.Listener = (*printer)(nil)

func newPrinter(w io.Writer) *printer {
	return &printer{enc: json.NewEncoder(w)}
}

func (p *printer) Name() string { return "iapsim-printer" }

func (p *printer) OnEvent(_ context.Context, e *event.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.enc.Encode(e)
}

// session is an orchestrator wired to a simulated marketplace.
type session struct {
	o       *iap.Orchestrator
	backend *sim.Backend
}

// newSession builds the orchestrator for sc and initializes it.
func newSession(ctx context.Context, sc *scenario, logger *slog.Logger, plugins ...plugin.Plugin) (*session, error) {
	assets, err := catalog.LoadFile(sc.Assets)
	if err != nil {
		return nil, err
	}

	backend := sim.New(append([]sim.Option{sim.WithLogger(logger)}, sc.simOptions()...)...)
	if err := sc.script(backend); err != nil {
		return nil, err
	}

	opts := []iap.Option{
		iap.WithLogger(logger),
		iap.WithBackend(backend),
		iap.WithFriendlyRefunds(sc.FriendlyRefunds),
	}
	if sc.Verify {
		opts = append(opts, iap.WithValidator(verify.HMAC{Secret: sc.SigningSecret}))
	}
	for _, p := range plugins {
		opts = append(opts, iap.WithPlugin(p))
	}

	o, err := iap.New(memory.New(), opts...)
	if err != nil {
		return nil, err
	}
	if err := o.Start(ctx); err != nil {
		return nil, err
	}
	if !o.Initialize(ctx, assets, sc.PublicKey, sc.Secret) {
		return nil, errors.New("orchestrator initialization failed, see the error.unexpected event")
	}
	backend.Wait()

	return &session{o: o, backend: backend}, nil
}

// balances returns the balance of every catalog item.
func (s *session) balances(ctx context.Context) (map[string]int, error) {
	out := make(map[string]int)
	for _, it := range s.o.Items() {
		n, err := s.o.Balance(ctx, it.ID)
		if err != nil {
			return nil, err
		}
		out[it.ID] = n
	}
	return out, nil
}
