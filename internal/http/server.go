package http

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/bluereef/baymonitor/internal/config"
	"github.com/bluereef/baymonitor/internal/query"
	"github.com/bluereef/baymonitor/internal/store"
)

// Server bundles router and dependencies for the observation API.
type Server struct {
	cfg     config.Config
	store   store.RecordStore
	filters query.Builder
	engine  *gin.Engine
}

// New constructs a server with routes and middleware.
func New(cfg config.Config, st store.RecordStore) *Server {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(gin.Logger())
	engine.Use(corsMiddleware())

	server := &Server{
		cfg:     cfg,
		store:   st,
		filters: query.NewBuilder(cfg.DefaultLimit, cfg.MaxLimit),
		engine:  engine,
	}
	server.registerRoutes()
	return server
}

// Engine exposes the underlying gin engine (for tests).
func (s *Server) Engine() *gin.Engine {
	return s.engine
}

// Run starts the HTTP server and blocks until shutdown.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:    s.cfg.ListenAddr(),
		Handler: s.engine,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

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
	// Health stays outside auth: it must answer 200 even when degraded.
	s.engine.GET("/health", s.handleHealth)

	api := s.engine.Group("/api")
	if s.cfg.BearerToken != "" {
		api.Use(bearerAuthMiddleware(s.cfg.BearerToken))
	}
	api.GET("/observations", s.handleObservations)
	api.GET("/stats", s.handleStats)
	api.GET("/outliers", s.handleOutliers)
	api.POST("/upload", s.handleUpload)
}

// storeCtx bounds a store round trip with the configured timeout.
func (s *Server) storeCtx(c *gin.Context) (context.Context, context.CancelFunc) {
	timeout := s.cfg.StoreTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return context.WithTimeout(c.Request.Context(), timeout)
}

func bearerAuthMiddleware(expected string) gin.HandlerFunc {
	return func(c *gin.Context) {
		auth := c.GetHeader("Authorization")
		if !strings.HasPrefix(auth, "Bearer ") {
			c.AbortWithStatus(http.StatusUnauthorized)
			return
		}
		token := strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))
		if token != expected {
			c.AbortWithStatus(http.StatusUnauthorized)
			return
		}
		c.Next()
	}
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
