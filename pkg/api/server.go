// Package api serves a read-mostly HTTP view of the object store.
package api

import (
	"context"
	stderr "errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/volstore/volstore/internal/metrics"
	"github.com/volstore/volstore/pkg/errors"
	"github.com/volstore/volstore/pkg/types"
)

// Server exposes an ObjectStore over HTTP.
type Server struct {
	httpServer *http.Server
	engine     *gin.Engine
	store      types.ObjectStore
	metrics    *metrics.Collector
	config     ServerConfig
	logger     zerolog.Logger
}

// ServerConfig configures the API server
type ServerConfig struct {
	// Address to bind the server to (e.g., ":8080")
	Address string `yaml:"address" json:"address"`

	ReadTimeout  time.Duration `yaml:"read_timeout" json:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout" json:"write_timeout"`
	IdleTimeout  time.Duration `yaml:"idle_timeout" json:"idle_timeout"`

	// ShutdownTimeout bounds the graceful shutdown in Run.
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" json:"shutdown_timeout"`

	// AllowedOrigins for CORS; "*" allows any origin and an empty list
	// disables CORS.
	AllowedOrigins []string `yaml:"allowed_origins" json:"allowed_origins"`

	// Debug keeps gin in debug mode (route dumps on stdout). Otherwise a
	// process still in gin's default debug mode is switched to release mode.
	Debug bool `yaml:"debug" json:"debug"`
}

// DefaultServerConfig returns default server configuration
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Address:        ":8080",
		ReadTimeout:     30 * time.Second,
		WriteTimeout:    5 * time.Minute,
		IdleTimeout:     120 * time.Second,
		ShutdownTimeout: 30 * time.Second,
		AllowedOrigins:  []string{"*"},
	}
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithMetrics mounts the collector's Prometheus handler at /metrics and its
// operation summaries at /v1/metrics/summary.
func WithMetrics(c *metrics.Collector) Option {
	return func(s *Server) {
		if c != nil && c.Enabled() {
			s.metrics = c
		}
	}
}

// NewServer creates a new API server
func NewServer(config ServerConfig, store types.ObjectStore, opts ...Option) *Server {
	s := &Server{
		store:  store,
		config: config,
		logger: zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With().Str("component", "api").Logger()

	if !config.Debug && gin.Mode() == gin.DebugMode {
		gin.SetMode(gin.ReleaseMode)
	}
	s.engine = gin.New()
	s.engine.Use(requestID(), s.accessLog(), s.recovery())
	if c, ok := corsConfig(config.AllowedOrigins); ok {
		s.engine.Use(cors.New(c))
	}
	s.routes()

	s.httpServer = &http.Server{
		Addr:              config.Address,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       config.ReadTimeout,
		WriteTimeout:      config.WriteTimeout,
		IdleTimeout:       config.IdleTimeout,
	}
	return s
}

func (s *Server) routes() {
	s.engine.GET("/health", s.handleHealth)

	v1 := s.engine.Group("/v1")
	{
		v1.GET("/info", s.handleInfo)
		v1.GET("/stats", s.handleStats)
		v1.GET("/objects", s.handleList)
		v1.HEAD("/objects/*key", s.handleExists)
		v1.DELETE("/objects/*key", s.handleDelete)
		v1.GET("/url/*key", s.handleURL)
	}

	if s.metrics != nil {
		s.engine.GET("/metrics", gin.WrapH(s.metrics.Handler()))
		v1.GET("/metrics/summary", s.handleMetricsSummary)
	}
}

// Handler returns the HTTP handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.logger.Info().Str("address", s.config.Address).Msg("Starting API server")
	return s.httpServer.ListenAndServe()
}

// Run serves until ctx ends and then shuts down gracefully. A failure to
// bind or serve is returned as soon as it happens.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- s.Start()
	}()

	select {
	case err := <-errCh:
		return s.serveError(err)
	case <-ctx.Done():
	}

	timeout := s.config.ShutdownTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := s.Shutdown(shutdownCtx); err != nil {
		return errors.Wrap(errors.ErrCodeOperationFailed, "API server shutdown failed", err).WithComponent("api")
	}
	return s.serveError(<-errCh)
}

func (s *Server) serveError(err error) error {
	if err == nil || stderr.Is(err, http.ErrServerClosed) {
		return nil
	}
	s.logger.Error().Err(err).Str("address", s.config.Address).Msg("API server failed")
	return errors.Wrap(errors.ErrCodeOperationFailed, "API server failed", err).
		WithComponent("api").
		WithContext("address", s.config.Address)
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info().Msg("Shutting down API server")
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleHealth(c *gin.Context) {
	if err := s.store.HealthCheck(c.Request.Context()); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status":    "unavailable",
			"error":     err.Error(),
			"code":      errors.CodeOf(err),
			"timestamp": time.Now().Format(time.RFC3339),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"timestamp": time.Now().Format(time.RFC3339),
	})
}

func (s *Server) handleInfo(c *gin.Context) {
	info, err := s.store.Info(c.Request.Context())
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, info)
}

func (s *Server) handleStats(c *gin.Context) {
	stats, err := s.store.Stats(c.Request.Context(), c.Query("prefix"))
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (s *Server) handleMetricsSummary(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"uptime":     s.metrics.Uptime().String(),
		"operations": s.metrics.Snapshot(),
	})
}

func (s *Server) handleList(c *gin.Context) {
	prefix := c.Query("prefix")
	objects, err := s.store.ListObjects(c.Request.Context(), prefix)
	if err != nil {
		s.respondError(c, err)
		return
	}
	if objects == nil {
		objects = []types.ObjectInfo{}
	}
	c.JSON(http.StatusOK, gin.H{
		"prefix":  prefix,
		"objects": objects,
		"count":   len(objects),
	})
}

func (s *Server) handleExists(c *gin.Context) {
	key, ok := objectKey(c)
	if !ok {
		c.Status(http.StatusBadRequest)
		return
	}
	exists, err := s.store.Exists(c.Request.Context(), key)
	switch {
	case err != nil:
		c.Status(errors.HTTPStatusOf(err))
	case exists:
		c.Status(http.StatusOK)
	default:
		c.Status(http.StatusNotFound)
	}
}

func (s *Server) handleDelete(c *gin.Context) {
	key, ok := objectKey(c)
	if !ok {
		s.respondError(c, errors.NewError(errors.ErrCodePathInvalid, "object key is required"))
		return
	}
	if err := s.store.Delete(c.Request.Context(), key); err != nil {
		s.respondError(c, err)
		return
	}
	s.logger.Info().Str("key", key).Str("request_id", c.GetString(requestIDKey)).Msg("Object deleted")
	c.Status(http.StatusNoContent)
}

func (s *Server) handleURL(c *gin.Context) {
	key, ok := objectKey(c)
	if !ok {
		s.respondError(c, errors.NewError(errors.ErrCodePathInvalid, "object key is required"))
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"key": key,
		"url": s.store.URL(key),
		"uri": s.store.URI(key),
	})
}

func objectKey(c *gin.Context) (string, bool) {
	key := strings.TrimPrefix(c.Param("key"), "/")
	return key, key != ""
}

func (s *Server) respondError(c *gin.Context, err error) {
	status := errors.HTTPStatusOf(err)
	event := s.logger.Warn()
	if status >= http.StatusInternalServerError {
		event = s.logger.Error()
	}
	event.Err(err).
		Str("request_id", c.GetString(requestIDKey)).
		Str("path", c.Request.URL.Path).
		Int("status", status).
		Msg("Request failed")

	c.JSON(status, gin.H{
		"error":      err.Error(),
		"code":       errors.CodeOf(err),
		"request_id": c.GetString(requestIDKey),
		"timestamp":  time.Now().Format(time.RFC3339),
	})
}
