package http

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/couchcryptid/f1-live-leaderboard/internal/domain"
	"github.com/couchcryptid/f1-live-leaderboard/internal/live"
	"github.com/couchcryptid/f1-live-leaderboard/internal/render"
	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
)

// SignalSource reports the live-session signal.
type SignalSource interface {
	State() live.SignalState
}

// SnapshotSource returns the current leaderboard.
type SnapshotSource interface {
	Snapshot() domain.Snapshot
}

// Options wires the server to the live leaderboard.
type Options struct {
	Addr           string
	Ready          sharedobs.ReadinessChecker
	Signal         SignalSource
	Board          SnapshotSource
	Stream         http.Handler // serves GET /ws/live when set
	AllowedOrigins []string
}

// Server exposes health, readiness, metrics, and the live leaderboard view.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// LiveResponse is the body of GET /api/live.
type LiveResponse struct {
	Signal live.SignalState `json:"signal"`
	render.View
}

// NewServer creates an HTTP server with /healthz, /readyz, /metrics,
// /api/live and, when a stream handler is given, /ws/live.
func NewServer(opts Options, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", sharedobs.LivenessHandler())
	mux.HandleFunc("GET /readyz", sharedobs.ReadinessHandler(opts.Ready))
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("GET /api/live", handleLive(opts.Signal, opts.Board))
	if opts.Stream != nil {
		mux.Handle("GET /ws/live", opts.Stream)
	}

	handler := cors.New(cors.Options{
		AllowedOrigins: opts.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}).Handler(mux)

	return &Server{
		httpServer: &http.Server{
			Addr:         opts.Addr,
			Handler:      handler,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		logger: logger,
	}
}

// Start begins listening. Returns http.ErrServerClosed on graceful shutdown.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully drains connections within the given context deadline.
// Hijacked WebSocket connections are not tracked and must be closed separately.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// ServeHTTP delegates to the underlying handler, useful for testing.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.httpServer.Handler.ServeHTTP(w, r)
}

func handleLive(signal SignalSource, board SnapshotSource) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Cache-Control", "no-store")
		writeJSON(w, http.StatusOK, LiveResponse{
			Signal: signal.State(),
			View:   render.NewView(board.Snapshot()),
		})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck // best-effort response
}
