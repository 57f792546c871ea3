// Package server exposes the engine over HTTP: the WebSocket endpoint for
// real-time alerts plus REST surfaces for stats, demo triggers, and unlock
// lookups.
package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/arboretum/alert-engine/internal/detector"
	"github.com/arboretum/alert-engine/internal/eligibility"
	"github.com/arboretum/alert-engine/internal/metrics"
	"github.com/arboretum/alert-engine/internal/registry"
	"github.com/arboretum/alert-engine/internal/unlock"
	"github.com/arboretum/alert-engine/internal/users"
)

// Server carries the handler dependencies.
type Server struct {
	registry  *registry.Registry
	directory users.Directory
	evaluator *eligibility.Evaluator
	detector  *detector.Detector
	unlocks   unlock.Store
}

func New(reg *registry.Registry, directory users.Directory, evaluator *eligibility.Evaluator, det *detector.Detector, unlocks unlock.Store) *Server {
	return &Server{
		registry:  reg,
		directory: directory,
		evaluator: evaluator,
		detector:  det,
		unlocks:   unlocks,
	}
}

// Router builds the chi router with the full endpoint surface.
func (s *Server) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(metrics.Middleware)

	// CORS middleware for frontend cross-origin requests.
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
			if r.Method == "OPTIONS" {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	})

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok","service":"alert-engine"}`))
	})

	// Prometheus metrics endpoint.
	r.Handle("/metrics", metrics.Handler())

	r.Route("/ws", func(r chi.Router) {
		// WebSocket endpoint for real-time opportunity alerts.
		r.Get("/opportunities", s.handleWS)
		r.Get("/stats", s.handleStats)
		r.Post("/broadcast/demo", s.handleBroadcastDemo)
	})

	r.Route("/unlocks", func(r chi.Router) {
		r.Get("/check/{opportunityID}", s.handleCheckUnlock)
		r.Get("/user/{wallet}", s.handleWalletUnlocks)
	})

	return r
}

// handleStats reports connection counts at GET /ws/stats.
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	identified, anonymous := s.registry.Snapshot()
	writeJSON(w, http.StatusOK, map[string]any{
		"authenticated_connections":    identified,
		"anonymous_connections":        anonymous,
		"total_connections":            identified + anonymous,
		"demo_opportunities_available": s.detector.DemoCount(),
	})
}

// handleBroadcastDemo pushes a random demo opportunity to all connections.
func (s *Server) handleBroadcastDemo(w http.ResponseWriter, r *http.Request) {
	s.detector.BroadcastDemo(r.Context())
	writeJSON(w, http.StatusOK, map[string]any{
		"message": "Demo opportunity broadcasted",
		"status":  "success",
	})
}

// handleCheckUnlock reports whether a wallet has unlocked an opportunity.
func (s *Server) handleCheckUnlock(w http.ResponseWriter, r *http.Request) {
	opportunityID := chi.URLParam(r, "opportunityID")
	wallet := r.URL.Query().Get("wallet")
	if wallet == "" {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "wallet query parameter required"})
		return
	}

	rec, err := s.unlocks.Get(r.Context(), opportunityID, wallet)
	if errors.Is(err, unlock.ErrNotFound) {
		writeJSON(w, http.StatusOK, map[string]any{"unlocked": false})
		return
	}
	if err != nil {
		slog.Error("unlock lookup failed", "opportunity", opportunityID, "err", err)
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "unlock lookup failed"})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"unlocked": true,
		"record":   rec,
	})
}

// handleWalletUnlocks lists a wallet's unlock history, oldest first.
func (s *Server) handleWalletUnlocks(w http.ResponseWriter, r *http.Request) {
	wallet := chi.URLParam(r, "wallet")

	records, err := s.unlocks.ByWallet(r.Context(), wallet)
	if err != nil {
		slog.Error("wallet unlock listing failed", "wallet", wallet, "err", err)
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "unlock listing failed"})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"wallet":  wallet,
		"count":   len(records),
		"unlocks": records,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("response encoding failed", "err", err)
	}
}

// HTTPServer wraps the router in a server with sane timeouts. WebSocket
// upgrades bypass the write timeout, so it only covers the REST surface.
func (s *Server) HTTPServer(port string) *http.Server {
	return &http.Server{
		Addr:        ":" + port,
		Handler:     s.Router(),
		ReadTimeout: 10 * time.Second,
		IdleTimeout: 60 * time.Second,
	}
}
