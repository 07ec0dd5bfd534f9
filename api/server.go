// Package api exposes the purchase engine over HTTP.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/xraph/iap"
	"github.com/xraph/iap/history"
	"github.com/xraph/iap/item"
)

// Server is the HTTP API of an orchestrator.
type Server struct {
	o        *iap.Orchestrator
	gatherer prometheus.Gatherer
}

// NewServer creates a server over o.
func NewServer(o *iap.Orchestrator) *Server {
	return &Server{o: o}
}

// EnableMetrics serves the metrics of g on /metrics.
func (s *Server) EnableMetrics(g prometheus.Gatherer) { s.gatherer = g }

// Handler returns the chi router with all routes mounted.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	r.Get("/health", s.handleHealth)

	r.Route("/items", func(r chi.Router) {
		r.Get("/", s.handleListItems)
		r.Get("/{itemID}", s.handleGetItem)
	})
	r.Get("/history", s.handleHistory)
	r.Post("/purchases", s.handleBuy)
	r.Post("/restore", s.handleRestore)

	if s.gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}

	return r
}

type itemView struct {
	item.Item
	Balance int `json:"balance"`
}

type buyRequest struct {
	ProductID string `json:"product_id"`
	Payload   string `json:"payload"`
}

type restoreRequest struct {
	RefreshDetails bool `json:"refresh_details"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.o.Store().Ping(r.Context()); err != nil {
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":      "ok",
		"initialized": s.o.IsInitialized(),
	})
}

func (s *Server) handleListItems(w http.ResponseWriter, r *http.Request) {
	items := s.o.Items()
	out := make([]itemView, 0, len(items))
	for _, it := range items {
		balance, err := s.o.Balance(r.Context(), it.ID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		out = append(out, itemView{Item: it, Balance: balance})
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": out})
}

func (s *Server) handleGetItem(w http.ResponseWriter, r *http.Request) {
	itemID := chi.URLParam(r, "itemID")
	it, err := s.o.Item(itemID)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	balance, err := s.o.Balance(r.Context(), itemID)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, itemView{Item: it, Balance: balance})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	opts := history.ListOpts{
		ItemID: q.Get("item_id"),
		Action: history.Action(q.Get("action")),
	}
	for name, dst := range map[string]*int{"limit": &opts.Limit, "offset": &opts.Offset} {
		v := q.Get(name)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "invalid "+name)
			return
		}
		*dst = n
	}

	entries, err := s.o.History(r.Context(), opts)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}

func (s *Server) handleBuy(w http.ResponseWriter, r *http.Request) {
	var req buyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ProductID == "" {
		writeError(w, http.StatusBadRequest, "product_id is required")
		return
	}

	started, err := s.o.Buy(r.Context(), req.ProductID, req.Payload)
	switch {
	case errors.Is(err, iap.ErrInvalidState), errors.Is(err, iap.ErrNotInitialized):
		writeError(w, http.StatusConflict, err.Error())
		return
	case err != nil:
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	case !started:
		writeError(w, http.StatusUnprocessableEntity, "purchase of "+req.ProductID+" could not be started")
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"started": true, "product_id": req.ProductID})
}

func (s *Server) handleRestore(w http.ResponseWriter, r *http.Request) {
	var req restoreRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}
	if !s.o.IsInitialized() {
		writeError(w, http.StatusConflict, iap.ErrNotInitialized.Error())
		return
	}
	s.o.RefreshInventory(r.Context(), req.RefreshDetails)
	writeJSON(w, http.StatusAccepted, map[string]any{"started": true})
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v) //nolint:errcheck // client went away
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{
		"error": map[string]any{
			"message": msg,
			"type":    "error",
		},
	})
}

func writeStoreError(w http.ResponseWriter, err error) {
	if iap.IsNotFound(err) {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeError(w, http.StatusInternalServerError, err.Error())
}
