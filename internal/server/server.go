// Package server exposes the operational HTTP surface: health, metrics
// and a token-guarded ops API for enqueueing jobs and resolving pending
// actions out of band.
package server

import (
	"context"
	"crypto/subtle"
	"fmt"
	"log"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/adpilot-bot/adpilot/config"
	"github.com/adpilot-bot/adpilot/internal/action"
	"github.com/adpilot-bot/adpilot/internal/queue/streams"
	"github.com/adpilot-bot/adpilot/internal/store"
)

// ActionAPI is the action-manager surface the ops endpoints drive.
type ActionAPI interface {
	Execute(ctx context.Context, actionID string) (action.Result, error)
	Reject(ctx context.Context, actionID string) (action.Result, error)
}

// StoreAPI is the store surface the ops endpoints read.
type StoreAPI interface {
	ListActionsByStatus(ctx context.Context, status string) ([]store.PendingAction, error)
}

// Publisher enqueues jobs onto the streams.
type Publisher interface {
	PublishJSON(ctx context.Context, stream, eventType string, payload interface{}, opts ...streams.PublishOption) (string, error)
}

// Deps bundles the server's collaborators.
type Deps struct {
	Actions   ActionAPI
	Store     StoreAPI
	Publisher Publisher
	Logger    *log.Logger
}

// Server is the ops HTTP server.
type Server struct {
	e      *echo.Echo
	cfg    config.ServerConfig
	queues config.QueueConfig
	deps   Deps
	logger *log.Logger
}

// New builds the server and mounts its routes.
func New(cfg config.ServerConfig, queues config.QueueConfig, deps Deps) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = log.New(log.Writer(), "[HTTP] ", log.LstdFlags)
	}

	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())
	e.HTTPErrorHandler = func(err error, c echo.Context) {
		code := http.StatusInternalServerError
		msg := err.Error()
		if he, ok := err.(*echo.HTTPError); ok {
			code = he.Code
			if he.Message != nil {
				msg = fmt.Sprint(he.Message)
			}
		}
		req := c.Request()
		logger.Printf("%d %s %s from %s: %v", code, req.Method, req.URL.Path, c.RealIP(), err)
		if !c.Response().Committed {
			_ = c.JSON(code, map[string]interface{}{"error": msg})
		}
	}

	s := &Server{e: e, cfg: cfg, queues: queues.Normalize(), deps: deps, logger: logger}

	e.GET("/healthz", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	if cfg.EnableOps {
		ops := e.Group("/ops", s.requireToken)
		s.registerOps(ops)
	}
	return s
}

// Start blocks serving HTTP until Shutdown.
func (s *Server) Start() error {
	addr := s.cfg.Address
	if addr == "" {
		addr = ":8080"
	}
	s.logger.Printf("listening on %s", addr)
	return s.e.Start(addr)
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.e.Shutdown(ctx)
}

// requireToken guards ops endpoints with the static bearer token.
func (s *Server) requireToken(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if s.cfg.OpsToken == "" {
			return echo.NewHTTPError(http.StatusForbidden, "ops token not configured")
		}
		header := c.Request().Header.Get("Authorization")
		token := strings.TrimPrefix(header, "Bearer ")
		if token == header || subtle.ConstantTimeCompare([]byte(token), []byte(s.cfg.OpsToken)) != 1 {
			return echo.NewHTTPError(http.StatusUnauthorized, "invalid token")
		}
		return next(c)
	}
}
