// Package httpapi is the thin net/http facade in front of the
// orchestrator: it exposes chat history and streaming-turn endpoints
// alongside health and metrics endpoints.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/lumenai/conduit/internal/chatstore"
	"github.com/lumenai/conduit/internal/mcpregistry"
	"github.com/lumenai/conduit/internal/observability"
	"github.com/lumenai/conduit/internal/orchestrator"
)

// Config configures the Server.
type Config struct {
	Addr         string
	Store        chatstore.Store
	Orchestrator *orchestrator.Orchestrator
	Registry     *mcpregistry.Registry
	Model        string
	Metrics      *observability.Metrics
	Logger       *slog.Logger

	// RequestLogger, if set, is used to emit one correlated log line per
	// request via observability.AddRequestID/WithContext. Falls back to a
	// plain logger derived from Logger when nil.
	RequestLogger *observability.Logger
}

// Server is the HTTP facade: it owns an http.Server and the ServeMux
// wiring, and starts/stops alongside the process.
type Server struct {
	cfg       Config
	logger    *slog.Logger
	reqLogger *observability.Logger
	server    *http.Server
	listener  net.Listener
	started   time.Time
}

// New builds a Server from cfg. Listen must be called to start serving.
func New(cfg Config) *Server {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	reqLogger := cfg.RequestLogger
	if reqLogger == nil {
		reqLogger = observability.NewLogger(observability.LogConfig{})
	}
	return &Server{
		cfg:       cfg,
		logger:    cfg.Logger.With("component", "httpapi"),
		reqLogger: reqLogger.WithFields("component", "httpapi"),
	}
}

// Start begins listening on cfg.Addr and serving in the background. It
// returns once the listener is established; serving errors after that
// point are logged, not returned.
func (s *Server) Start(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", s.handleHealthz)
	mux.HandleFunc("/v1/chats/", s.withRequestID(s.withMetrics(s.handleChats)))

	listener, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("http listen: %w", err)
	}

	s.server = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	s.listener = listener
	s.started = time.Now()

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("http server error", "error", err)
		}
	}()

	s.logger.Info("starting http server", "addr", s.cfg.Addr)
	return nil
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

func (s *Server) withMetrics(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.cfg.Metrics == nil {
			next(w, r)
			return
		}
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next(rec, r)
		s.cfg.Metrics.RecordHTTPRequest(r.Method, r.URL.Path, fmt.Sprintf("%d", rec.status), time.Since(start).Seconds())
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// withRequestID stamps every request with a correlation ID, echoes it back
// on the response, and logs entry/exit through the observability.Logger so
// downstream handlers' log lines can be tied to a single request.
func (s *Server) withRequestID(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := observability.AddRequestID(r.Context(), uuid.New().String())
		r = r.WithContext(ctx)
		w.Header().Set("X-Request-Id", observability.GetRequestID(ctx))

		log := s.reqLogger.WithContext(ctx)
		start := time.Now()
		log.Info(ctx, "request started", "method", r.Method, "path", r.URL.Path)
		next(w, r)
		log.Info(ctx, "request completed", "method", r.Method, "path", r.URL.Path, "duration_ms", time.Since(start).Milliseconds())
	}
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	response := map[string]any{
		"status":     "ok",
		"uptime_sec": int(time.Since(s.started).Seconds()),
	}
	data, err := json.Marshal(response)
	if err != nil {
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if _, err := w.Write(data); err != nil {
		s.logger.Debug("healthz write failed", "error", err)
	}
}
