// Package web exposes the inbound submission endpoint called by the channel
// adapters, the read-only chart API and the operator recompute trigger.
package web

import (
	"encoding/json"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"rz-top100-srv/internal/chart"
	"rz-top100-srv/internal/ledger"
)

type Server struct {
	ledger     *ledger.Service
	aggregator *chart.Aggregator
	reader     *chart.Reader
	totpSecret string
	logger     zerolog.Logger
}

func NewServer(l *ledger.Service, agg *chart.Aggregator, reader *chart.Reader, totpSecret string, logger zerolog.Logger) *Server {
	return &Server{
		ledger:     l,
		aggregator: agg,
		reader:     reader,
		totpSecret: totpSecret,
		logger:     logger,
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(s.recoveryMiddleware)
	r.Use(s.requestLogger)

	r.Get("/healthz", s.handleHealth)

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/votes", s.handleSubmit)
		r.Get("/chart/today", s.handleChartToday)
		r.Get("/chart/weekly", s.handleChartWeekly)
		r.Get("/chart/{day}", s.handleChartDay)
		r.Post("/admin/recompute", s.handleRecompute)
	})

	return r
}

func (s *Server) recoveryMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				s.logger.Error().Interface("panic", err).Bytes("stack", debug.Stack()).Msg("handler panic")
				http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		started := time.Now()
		next.ServeHTTP(w, r)
		s.logger.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Dur("took", time.Since(started)).
			Msg("request")
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
