package http

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/fredcamaral/deckforge/internal/adapters/secondary/monitoring"
	"github.com/fredcamaral/deckforge/internal/domain/entities"
	"github.com/fredcamaral/deckforge/internal/domain/ports"
)

// RequestLimiter decides whether a client may make another request
type RequestLimiter interface {
	Allow(ctx context.Context, key string) (ports.RateDecision, error)
}

// Dependencies are the services the HTTP server routes requests to
type Dependencies struct {
	Generation ports.GenerationService
	Images     ports.ImageService
	Sanitizer  ports.HTMLSanitizer
	Extractor  ports.SlideExtractor
	Catalog    ports.TemplateCatalog
	// Limiter is optional; without it the provider routes are not limited
	Limiter RequestLimiter
	// Metrics is optional; nil disables /metrics
	Metrics *monitoring.Metrics
	Logger  *zap.Logger
	Version string
}

// Server implements the HTTPServer interface
type Server struct {
	generation ports.GenerationService
	images     ports.ImageService
	sanitizer  ports.HTMLSanitizer
	extractor  ports.SlideExtractor
	catalog    ports.TemplateCatalog
	limiter    RequestLimiter
	metrics    *monitoring.Metrics
	logger     *zap.Logger
	version    string

	config         *entities.ServerConfig
	trustedProxies []*net.IPNet
	connMgr        *ConnectionManager

	mu       sync.RWMutex
	server   *http.Server
	listener net.Listener
	running  bool
}

// NewServer creates a new HTTP server
// config must not be nil - use config.GetDefaultConfig().Server if needed
func NewServer(config *entities.ServerConfig, deps Dependencies) *Server {
	if config == nil {
		panic("server config cannot be nil - provide a valid ServerConfig")
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	version := deps.Version
	if version == "" {
		version = "dev"
	}

	logger = logger.With(zap.String("component", "http"))

	trusted, err := config.GetTrustedProxies()
	if err != nil {
		logger.Warn("ignoring trusted proxies", zap.Error(err))
		trusted = nil
	}

	return &Server{
		generation: deps.Generation,
		images:     deps.Images,
		sanitizer:  deps.Sanitizer,
		extractor:  deps.Extractor,
		catalog:    deps.Catalog,
		limiter:    deps.Limiter,
		metrics:    deps.Metrics,
		logger:     logger,
		version:    version,
		config:     config,
		connMgr:    NewConnectionManager(),

		trustedProxies: trusted,
	}
}

// Start binds the listener and serves in the background
func (s *Server) Start(ctx context.Context, port int, host string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return errors.New("server already running")
	}

	addr := net.JoinHostPort(host, strconv.Itoa(port))
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", addr, err)
	}

	s.server = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       s.config.GetReadTimeout(),
		WriteTimeout:      s.config.GetWriteTimeout(),
		IdleTimeout:       60 * time.Second,
		// Requests inherit ctx, so cancelling it aborts in-flight streams
		BaseContext: func(net.Listener) context.Context {
			return ctx
		},
	}
	s.listener = listener
	s.running = true

	srv := s.server
	go func() {
		s.logger.Info("HTTP server starting", zap.String("addr", listener.Addr().String()))
		if err := srv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("HTTP server error", zap.Error(err))
		}
	}()

	return nil
}

// Stop cancels active chat streams and gracefully stops the HTTP server
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return errors.New("server not running")
	}

	s.connMgr.CloseAll()

	shutdownCtx, cancel := context.WithTimeout(ctx, s.config.GetShutdownTimeout())
	defer cancel()

	if err := s.server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	s.running = false
	s.logger.Info("HTTP server stopped")
	return nil
}

// IsRunning returns whether the server is currently running
func (s *Server) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

// Addr returns the bound listener address, or an empty string before Start
func (s *Server) Addr() string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Handler builds the routed handler with the full middleware chain
func (s *Server) Handler() http.Handler {
	router := s.setupRoutes()

	c := cors.New(cors.Options{
		AllowedOrigins:   s.config.GetCORSOrigins(),
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Content-Type", "Accept", requestIDHeader},
		ExposedHeaders:   []string{requestIDHeader, "X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset", "Retry-After"},
		AllowCredentials: false,
		MaxAge:           300,
	})

	// Applied outermost first: recovery -> logging -> metrics -> security -> CORS
	handler := c.Handler(router)
	handler = securityHeadersMiddleware(handler)
	handler = s.metricsMiddleware(handler, router)
	handler = s.loggingMiddleware(handler)
	handler = s.recoveryMiddleware(handler)

	return handler
}

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() *mux.Router {
	router := mux.NewRouter()
	router.NotFoundHandler = http.HandlerFunc(s.handleNotFound)
	router.MethodNotAllowedHandler = http.HandlerFunc(s.handleMethodNotAllowed)

	api := router.PathPrefix("/api").Subrouter()
	api.NotFoundHandler = router.NotFoundHandler
	api.MethodNotAllowedHandler = router.MethodNotAllowedHandler

	// LLM-backed generation
	api.HandleFunc("/generate-queries", s.handleGenerateQueries).Methods(http.MethodPost)
	api.HandleFunc("/generate-slides", s.handleGenerateSlides).Methods(http.MethodPost)
	api.HandleFunc("/chat", s.handleChat).Methods(http.MethodPost)
	api.HandleFunc("/chat/ws", s.handleChatWebSocket).Methods(http.MethodGet)

	// Image providers and matching
	api.Handle("/pixabay", s.rateLimited(s.handleProviderSearch(entities.ProviderPixabay))).Methods(http.MethodPost)
	api.Handle("/wikimedia", s.rateLimited(s.handleProviderSearch(entities.ProviderWikimedia))).Methods(http.MethodPost)
	api.Handle("/match-images", s.rateLimited(s.handleMatchImages)).Methods(http.MethodPost)

	// Markup utilities
	api.HandleFunc("/sanitize", s.handleSanitize).Methods(http.MethodPost)
	api.HandleFunc("/extract-slides", s.handleExtractSlides).Methods(http.MethodPost)
	api.HandleFunc("/convertd", s.handleConvertDataURL).Methods(http.MethodPost)
	api.HandleFunc("/templates", s.handleTemplates).Methods(http.MethodGet)

	// Operations
	router.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	router.Handle("/metrics", s.metrics.Handler()).Methods(http.MethodGet)

	return router
}

// Ensure Server implements ports.HTTPServer
var _ ports.HTTPServer = (*Server)(nil)
