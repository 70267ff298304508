// Package http serves the skatepedia REST API and the live screen streams.
package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/skatepedia/internal/catalog"
	"github.com/fyrsmithlabs/skatepedia/internal/logging"
	"github.com/fyrsmithlabs/skatepedia/internal/media"
	"github.com/fyrsmithlabs/skatepedia/internal/posts"
	"github.com/fyrsmithlabs/skatepedia/internal/pros"
	"github.com/fyrsmithlabs/skatepedia/internal/screens"
	"github.com/fyrsmithlabs/skatepedia/internal/tricks"
	"github.com/fyrsmithlabs/skatepedia/internal/users"
	"github.com/fyrsmithlabs/skatepedia/pkg/auth"
)

// Services are the domain services behind the API.
type Services struct {
	Posts   *posts.Service
	Tricks  *tricks.Service
	Users   *users.Service
	Pros    *pros.Service
	Catalog *catalog.Catalog
	Screens *screens.Registry
	Media   *media.Store
}

func (s Services) validate() error {
	var missing []string
	if s.Posts == nil {
		missing = append(missing, "posts")
	}
	if s.Tricks == nil {
		missing = append(missing, "tricks")
	}
	if s.Users == nil {
		missing = append(missing, "users")
	}
	if s.Pros == nil {
		missing = append(missing, "pros")
	}
	if s.Catalog == nil {
		missing = append(missing, "catalog")
	}
	if s.Screens == nil {
		missing = append(missing, "screens")
	}
	if s.Media == nil {
		missing = append(missing, "media")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing services: %s", strings.Join(missing, ", "))
	}
	return nil
}

// Config holds HTTP server configuration.
type Config struct {
	Host string
	Port int

	// Heartbeat is the SSE keepalive interval.
	Heartbeat time.Duration

	// Auth configures the bearer token check on /v1 routes.
	Auth auth.Config

	// Health reports backend health for /health. Nil means always healthy.
	Health func() error

	// Metrics is mounted at /metrics when set.
	Metrics http.Handler
}

// Server provides HTTP endpoints for skatepedia.
type Server struct {
	echo    *echo.Echo
	svc     Services
	logger  *zap.Logger
	log     *logging.Logger
	config  *Config
	metrics *HTTPMetrics
}

// NewServer creates a new HTTP server.
func NewServer(svc Services, logger *zap.Logger, cfg *Config) (*Server, error) {
	if err := svc.validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required for request tracking and debugging")
	}
	if cfg == nil {
		cfg = &Config{
			Host: "localhost",
			Port: 8080,
		}
	}
	if cfg.Heartbeat <= 0 {
		cfg.Heartbeat = 30 * time.Second
	}
	if cfg.Auth.Verifier == nil && !cfg.Auth.TrustHeader {
		return nil, fmt.Errorf("auth verifier is required unless header trust is enabled")
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	s := &Server{
		echo:    e,
		svc:     svc,
		logger:  logger,
		log:     logging.New(logger),
		config:  cfg,
		metrics: NewHTTPMetrics(logger),
	}
	e.HTTPErrorHandler = s.handleError

	// Middleware
	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(s.metrics.MetricsMiddleware())
	e.Use(s.requestLogger)

	s.registerRoutes()

	return s, nil
}

// registerRoutes sets up the HTTP endpoints.
func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)
	if s.config.Metrics != nil {
		s.echo.GET("/metrics", echo.WrapHandler(s.config.Metrics))
	}
	s.echo.GET("/media/*", s.handleMedia)

	v1 := s.echo.Group("/v1", auth.Middleware(s.config.Auth), withUserContext)

	v1.GET("/catalog", s.handleCatalog)

	v1.POST("/users", s.handleCreateUser)
	v1.GET("/users/me", s.handleGetMe)
	v1.DELETE("/users/me", s.handleDeleteMe)
	v1.GET("/users/:id", s.handleGetUser)
	v1.GET("/users/:id/posts", s.handleUserPosts)

	v1.POST("/posts", s.handleCreatePost)
	v1.GET("/posts/:id", s.handleGetPost)
	v1.DELETE("/posts/:id", s.handleDeletePost)
	v1.POST("/posts/:id/likes", s.handleLike)
	v1.GET("/posts/:id/likes", s.handleLikeCount)
	v1.POST("/posts/:id/comments", s.handleAddComment)
	v1.GET("/posts/:id/comments/count", s.handleCommentCount)

	v1.POST("/trick-items", s.handleAddTrickItem)
	v1.GET("/trick-items", s.handleListTrickItems)
	v1.GET("/trick-items/:id", s.handleGetTrickItem)
	v1.PATCH("/trick-items/:id", s.handleUpdateNotes)
	v1.DELETE("/trick-items/:id", s.handleDeleteTrickItem)
	v1.GET("/trick-items/:id/compare", s.handleCompare)

	v1.GET("/pros", s.handleListPros)
	v1.POST("/pros", s.handleAddPro)
	v1.GET("/pros/lookup", s.handleProByName)
	v1.GET("/pros/:id", s.handleGetPro)
	v1.GET("/pros/:id/videos/:trick", s.handleProVideo)
	v1.PUT("/pros/:id/videos/:trick", s.handleUploadProVideo)
	v1.POST("/pros/:id/videos/:trick/register", s.handleRegisterProVideo)

	v1.POST("/screens", s.handleOpenScreen)
	v1.GET("/screens/:id", s.handleGetScreen)
	v1.PUT("/screens/:id/filter", s.handleSwitchScreen)
	v1.POST("/screens/:id/more", s.handleLoadMore)
	v1.DELETE("/screens/:id", s.handleCloseScreen)
	v1.GET("/screens/:id/events", s.handleScreenEvents)
}

// requestLogger puts the request id and a logger into the request context
// and logs every request once it completes.
func (s *Server) requestLogger(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		req := c.Request()
		ctx := logging.WithRequestID(req.Context(), c.Response().Header().Get(echo.HeaderXRequestID))
		c.SetRequest(req.WithContext(logging.WithLogger(ctx, s.log)))

		start := time.Now()
		if err := next(c); err != nil {
			c.Error(err)
		}

		s.log.Info(c.Request().Context(), "http request",
			zap.String("method", req.Method),
			zap.String("route", c.Path()),
			zap.Int("status", c.Response().Status),
			zap.Duration("duration", time.Since(start)),
		)
		return nil
	}
}

// withUserContext copies the authenticated user id into the request context
// for log correlation.
func withUserContext(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if id, ok := auth.UserID(c); ok {
			c.SetRequest(c.Request().WithContext(logging.WithUserID(c.Request().Context(), id)))
		}
		return next(c)
	}
}

// HealthResponse is the response body for GET /health.
type HealthResponse struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// handleHealth reports whether the backend is reachable.
func (s *Server) handleHealth(c echo.Context) error {
	if s.config.Health != nil {
		if err := s.config.Health(); err != nil {
			return c.JSON(http.StatusServiceUnavailable, HealthResponse{Status: "degraded", Error: err.Error()})
		}
	}
	return c.JSON(http.StatusOK, HealthResponse{Status: "ok"})
}

// Echo returns the underlying Echo instance.
func (s *Server) Echo() *echo.Echo {
	return s.echo
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.logger.Info("starting http server", zap.String("addr", addr))
	if err := s.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down http server")
	return s.echo.Shutdown(ctx)
}

// userID returns the authenticated caller. Routes under /v1 always have one.
func userID(c echo.Context) (string, error) {
	id, ok := auth.UserID(c)
	if !ok {
		return "", echo.NewHTTPError(http.StatusUnauthorized, "not authenticated")
	}
	return id, nil
}
