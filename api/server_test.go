package api_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/xraph/iap"
	"github.com/xraph/iap/api"
	"github.com/xraph/iap/billing/sim"
	"github.com/xraph/iap/catalog"
	"github.com/xraph/iap/item"
	"github.com/xraph/iap/observability"
	"github.com/xraph/iap/store/memory"
	"github.com/xraph/iap/types"
)

type fixture struct {
	srv     *httptest.Server
	o       *iap.Orchestrator
	backend *sim.Backend
}

func newFixture(t *testing.T, initialize bool) *fixture {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	reg := prometheus.NewRegistry()

	backend := sim.New(sim.WithLogger(logger))
	o, err := iap.New(memory.New(),
		iap.WithLogger(logger),
		iap.WithBackend(backend),
		iap.WithPlugin(observability.NewMetricsExtension(observability.NewPrometheusFactory(reg))),
	)
	if err != nil {
		t.Fatal(err)
	}

	if initialize {
		assets := catalog.Assets{Version: 1, Items: []item.Item{{
			ID:   "gems",
			Name: "Gems",
			Kind: item.KindConsumable,
			Purchase: item.PurchaseType{Market: &item.Listing{
				ProductID: "com.example.gems",
				Managed:   item.ManagedUnmanaged,
				Price:     types.PriceFromMinor(199, "usd"),
			}},
		}}}
		if !o.Initialize(context.Background(), assets, "pk", "secret") {
			t.Fatal("Initialize failed")
		}
		backend.Wait()
	}

	s := api.NewServer(o)
	s.EnableMetrics(reg)
	srv := httptest.NewServer(s.Handler())
	t.Cleanup(srv.Close)

	return &fixture{srv: srv, o: o, backend: backend}
}

func (f *fixture) do(t *testing.T, method, path, body string) (*http.Response, map[string]any) {
	t.Helper()
	req, err := http.NewRequest(method, f.srv.URL+path, strings.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	var out map[string]any
	if strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			t.Fatalf("decode %s %s: %v", method, path, err)
		}
	}
	return resp, out
}

func TestPurchaseOverHTTP(t *testing.T) {
	f := newFixture(t, true)

	resp, _ := f.do(t, http.MethodPost, "/purchases", `{"product_id":"com.example.gems","payload":"p1"}`)
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("POST /purchases: got %d, want 202", resp.StatusCode)
	}
	f.backend.Wait()

	resp, body := f.do(t, http.MethodGet, "/items/gems", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("GET /items/gems: got %d", resp.StatusCode)
	}
	if body["balance"] != float64(1) {
		t.Errorf("balance: got %v, want 1", body["balance"])
	}

	_, body = f.do(t, http.MethodGet, "/history?item_id=gems&action=granted", "")
	entries, _ := body["entries"].([]any)
	if len(entries) != 1 {
		t.Errorf("history entries: got %d, want 1", len(entries))
	}

	resp, _ = f.do(t, http.MethodGet, "/metrics", "")
	if resp.StatusCode != http.StatusOK {
		t.Errorf("GET /metrics: got %d", resp.StatusCode)
	}
}

func TestErrorsOverHTTP(t *testing.T) {
	tests := []struct {
		name       string
		initialize bool
		method     string
		path       string
		body       string
		want       int
	}{
		{"unknown item", true, http.MethodGet, "/items/missing", "", http.StatusNotFound},
		{"unknown product", true, http.MethodPost, "/purchases", `{"product_id":"nope"}`, http.StatusUnprocessableEntity},
		{"missing product", true, http.MethodPost, "/purchases", `{}`, http.StatusBadRequest},
		{"bad limit", true, http.MethodGet, "/history?limit=x", "", http.StatusBadRequest},
		{"no public key", false, http.MethodPost, "/purchases", `{"product_id":"com.example.gems"}`, http.StatusConflict},
		{"restore before init", false, http.MethodPost, "/restore", "", http.StatusConflict},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, tt.initialize)
			resp, body := f.do(t, tt.method, tt.path, tt.body)
			if resp.StatusCode != tt.want {
				t.Errorf("status: got %d, want %d (%v)", resp.StatusCode, tt.want, body)
			}
			if _, ok := body["error"]; !ok {
				t.Errorf("body has no error: %v", body)
			}
		})
	}
}

func TestListAndRestore(t *testing.T) {
	f := newFixture(t, true)

	resp, body := f.do(t, http.MethodGet, "/items", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("GET /items: got %d", resp.StatusCode)
	}
	if items, _ := body["items"].([]any); len(items) != 1 {
		t.Errorf("items: got %v", body["items"])
	}

	resp, _ = f.do(t, http.MethodPost, "/restore", `{"refresh_details":true}`)
	if resp.StatusCode != http.StatusAccepted {
		t.Errorf("POST /restore: got %d, want 202", resp.StatusCode)
	}
	f.backend.Wait()

	resp, body = f.do(t, http.MethodGet, "/health", "")
	if resp.StatusCode != http.StatusOK || body["initialized"] != true {
		t.Errorf("GET /health: %d %v", resp.StatusCode, body)
	}
}
