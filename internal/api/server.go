// Package api exposes the governed request path and the management API over
// HTTP.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/router-for-me/ModelGovernor/internal/config"
	"github.com/router-for-me/ModelGovernor/internal/governor"
	log "github.com/sirupsen/logrus"
)

// Pinger probes the persistence backend. The store satisfies it; a nil
// Pinger means the service runs without persistence.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Server is the HTTP front of the governor.
type Server struct {
	engine *gin.Engine
	http   *http.Server
}

// NewServer builds the gin engine and registers all routes.
func NewServer(cfg *config.Config, g *governor.Governor, pinger Pinger) *Server {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())

	handler := NewHandler(g)

	// Request path: no auth here, callers are internal services.
	v1 := engine.Group("/v1")
	v1.POST("/authorize", handler.Authorize)
	v1.POST("/execute", handler.Execute)

	// Management path.
	v0 := engine.Group("/v0")
	v0.Use(managementAuthMiddleware(cfg.Security))
	v0.GET("/health", handler.Health)
	v0.GET("/alerts", handler.Alerts)
	v0.POST("/alerts/:id/resolve", handler.ResolveAlert)
	v0.PUT("/limits/:scope", handler.SetLimits)
	v0.GET("/usage/:scope", handler.Usage)

	// Liveness probe. With persistence configured it also checks database
	// connectivity.
	engine.GET("/healthz", func(c *gin.Context) {
		if pinger != nil {
			if errPing := pinger.Ping(c.Request.Context()); errPing != nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "error": errPing.Error()})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	return &Server{
		engine: engine,
		http: &http.Server{
			Addr:              cfg.Server.Addr,
			Handler:           engine,
			ReadHeaderTimeout: 10 * time.Second,
		},
	}
}

// Engine exposes the underlying gin engine for tests.
func (s *Server) Engine() *gin.Engine {
	return s.engine
}

// Run serves until the listener fails or Shutdown is called.
func (s *Server) Run() error {
	if s == nil {
		return nil
	}
	log.Infof("api: listening on %s", s.http.Addr)
	if errServe := s.http.ListenAndServe(); errServe != nil && errServe != http.ErrServerClosed {
		return errServe
	}
	return nil
}

// Shutdown drains in-flight requests and stops the listener.
func (s *Server) Shutdown(ctx context.Context) error {
	if s == nil {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	return s.http.Shutdown(ctx)
}
