// Package server exposes the refresh pipeline over HTTP: a trigger
// endpoint, a live status event stream, health and metrics.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/refreshbot/extract-refresher/pipeline"
)

// Refresher starts one refresh run. It is satisfied by the pipeline runner.
type Refresher interface {
	Run(ctx context.Context, queryText string) (*pipeline.Report, error)
}

// Server hosts the HTTP surface of the refresher.
type Server struct {
	refresher Refresher
	hub       *Hub
	logger    *zap.Logger
	gatherer  prometheus.Gatherer
	router    chi.Router
}

type refreshRequest struct {
	QueryText string `json:"query_text"`
}

type refreshResponse struct {
	RunID     string `json:"run_id"`
	State     string `json:"state"`
	Rows      int    `json:"rows"`
	Published bool   `json:"published"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// New builds the HTTP server around a refresher and an event hub. The
// gatherer may be nil, in which case the default prometheus registry is
// exposed on /metrics.
func New(refresher Refresher, hub *Hub, logger *zap.Logger, gatherer prometheus.Gatherer) *Server {
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	s := &Server{
		refresher: refresher,
		hub:       hub,
		logger:    logger,
		gatherer:  gatherer,
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	r.Route("/api", func(r chi.Router) {
		r.Post("/refresh", s.handleRefresh)
		r.Get("/events", s.handleEvents)
	})
	s.router = r
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// ListenAndServe blocks serving HTTP until the context is cancelled, then
// shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", zap.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleRefresh triggers a run synchronously. While a run is active further
// requests are turned away with 409 rather than queued.
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}
	if req.QueryText == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "query_text is required"})
		return
	}

	report, err := s.refresher.Run(r.Context(), req.QueryText)
	if errors.Is(err, pipeline.ErrRunInProgress) {
		writeJSON(w, http.StatusConflict, errorResponse{Error: err.Error()})
		return
	}
	if err != nil {
		s.logger.Error("refresh request failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, refreshResponse{
		RunID:     report.RunID,
		State:     report.State.String(),
		Rows:      report.Rows,
		Published: report.Published,
	})
}

// handleEvents streams status messages as server-sent events until the
// client disconnects.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "streaming unsupported"})
		return
	}

	messages, cancel := s.hub.Subscribe()
	defer cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case msg, open := <-messages:
			if !open {
				return
			}
			fmt.Fprintf(w, "data: %s\n\n", msg)
			flusher.Flush()
		}
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
