package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"voxbrief/internal/config"
	"voxbrief/internal/logging"
	"voxbrief/internal/metrics"
	"voxbrief/internal/session"
)

// Controller is the command and observation surface the server drives.
type Controller interface {
	LoadModel(ctx context.Context) error
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	SetCredential(credential string)
	Snapshot() session.Snapshot
	Subscribe() (<-chan session.Snapshot, func())
}

// ChunkSink receives binary audio chunks sent by the page.
type ChunkSink interface {
	Push(chunk []byte) error
}

// Server serves the presentation API.
type Server struct {
	cfg      config.Server
	ctrl     Controller
	sink     ChunkSink
	logger   *slog.Logger
	metrics  *metrics.Metrics
	gatherer prometheus.Gatherer
	upgrader websocket.Upgrader

	// ctx bounds background model loads; Start replaces it with the serve
	// context.
	ctx      context.Context
	router   chi.Router
	listener net.Listener
	server   *http.Server
}

// Option customizes the server.
type Option func(*Server)

// WithLogger sets the server logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logging.NewComponentLogger(logger, "server")
	}
}

// WithMetrics records request metrics into m and serves gatherer on
// /metrics when the server config enables it.
func WithMetrics(m *metrics.Metrics, gatherer prometheus.Gatherer) Option {
	return func(s *Server) {
		s.metrics = m
		s.gatherer = gatherer
	}
}

// New builds the router. sink may be nil when the page cannot stream audio.
func New(cfg config.Server, ctrl Controller, sink ChunkSink, opts ...Option) *Server {
	s := &Server{
		cfg:    cfg,
		ctrl:   ctrl,
		sink:   sink,
		logger: logging.NewComponentLogger(nil, "server"),
		ctx:    context.Background(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     s.checkOrigin,
	}
	s.router = s.routes()
	return s
}

func (s *Server) routes() chi.Router {
	router := chi.NewRouter()
	router.Use(middleware.Recoverer)
	router.Use(s.observe)
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.allowedOrigins(),
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-ID"},
		ExposedHeaders: []string{"X-Request-ID"},
		MaxAge:         300,
	}))

	router.Get("/healthz", s.handleHealth)
	router.Route("/api", func(api chi.Router) {
		api.Get("/state", s.handleState)
		api.Post("/model", s.handleLoadModel)
		api.Post("/start", s.handleStart)
		api.Post("/stop", s.handleStop)
		api.Put("/credential", s.handleCredential)
	})
	router.Get("/ws", s.handleWebsocket)
	if s.cfg.Metrics && s.gatherer != nil {
		router.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}
	return router
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start listens on the configured bind address and serves until ctx ends.
func (s *Server) Start(ctx context.Context) error {
	bind := strings.TrimSpace(s.cfg.Bind)
	if bind == "" {
		return fmt.Errorf("server bind address is empty")
	}
	listener, err := net.Listen("tcp", bind)
	if err != nil {
		return fmt.Errorf("server listen: %w", err)
	}
	s.listener = listener
	s.ctx = ctx
	s.server = &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("server error", logging.Error(err))
		}
	}()
	go func() {
		<-ctx.Done()
		s.Stop()
	}()

	s.logger.Info("server listening",
		logging.String(logging.FieldEventType, "server_listening"),
		logging.String("address", listener.Addr().String()),
	)
	return nil
}

// Addr reports the bound address once Start succeeded.
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Stop shuts the server down, waiting briefly for in-flight requests.
func (s *Server) Stop() {
	if s.server == nil {
		return
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = s.server.Shutdown(shutdownCtx)
}

func (s *Server) allowedOrigins() []string {
	if len(s.cfg.AllowedOrigins) == 0 {
		return []string{"*"}
	}
	return s.cfg.AllowedOrigins
}

func (s *Server) checkOrigin(r *http.Request) bool {
	origin := strings.TrimSpace(r.Header.Get("Origin"))
	if origin == "" {
		return true
	}
	for _, allowed := range s.allowedOrigins() {
		if allowed == "*" || strings.EqualFold(allowed, origin) {
			return true
		}
	}
	return false
}

// loadModel (re)loads the transcription model in the background. Progress and
// failures reach the page through state snapshots; the controller logs them.
func (s *Server) loadModel() {
	ctx := s.ctx
	go func() {
		_ = s.ctrl.LoadModel(ctx)
	}()
}
