// Package storeapi is the HTTP surface of the durable store: it accepts
// forwarded readings and answers per-city time-range queries.
package storeapi

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/okian/gridedge/internal/adapters/repository"
	"github.com/okian/gridedge/pkg/logger"
	"github.com/okian/gridedge/pkg/metrics"
)

const (
	defaultHours   = 24
	requestTimeout = 10 * time.Second
)

// Server bundles router and dependencies for the store API.
type Server struct {
	store  repository.Store
	engine *gin.Engine
	logger logger.Logger
	now    func() time.Time
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithClock overrides the clock used to resolve ?hours= windows.
func WithClock(now func() time.Time) Option {
	return func(s *Server) {
		if now != nil {
			s.now = now
		}
	}
}

// New constructs a server with routes and middleware.
func New(store repository.Store, opts ...Option) *Server {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()

	s := &Server{store: store, engine: engine, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = logger.Get().Named("storeapi")
	}

	engine.Use(gin.Recovery())
	engine.Use(s.observe())
	s.registerRoutes()
	return s
}

// Engine exposes the underlying gin engine (for tests).
func (s *Server) Engine() *gin.Engine {
	return s.engine
}

// Run serves on addr and blocks until ctx is done, then shuts down.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()
	s.logger.Info(ctx, "store listening", logger.String("addr", addr))

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) registerRoutes() {
	s.engine.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy"})
	})
	s.engine.GET("/metrics", gin.WrapH(promhttp.HandlerFor(metrics.GetRegistry(), promhttp.HandlerOpts{})))
	s.engine.POST("/store_data", s.handleStoreData)
	s.engine.GET("/city_stats/:city", s.handleCityStats)
}

// observe logs each request and records it in the HTTP metrics.
func (s *Server) observe() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		elapsed := time.Since(start)
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		metrics.RecordHTTPRequest("store"+route, c.Request.Method, strconv.Itoa(status), float64(elapsed.Milliseconds()))
		if status >= http.StatusBadRequest {
			metrics.RecordErrorByComponent("storeapi", strconv.Itoa(status))
		}
		s.logger.Debug(c.Request.Context(), "request served",
			logger.String("method", c.Request.Method),
			logger.String("route", route),
			logger.Int("status", status),
			logger.Duration("elapsed", elapsed),
			logger.String("request_id", c.GetHeader("X-Request-ID")),
		)
	}
}
