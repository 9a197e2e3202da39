// Package api serves the read-only HTTP status surface of a running
// simulation: health, run status, recent decisions and Prometheus
// metrics. It never mutates engine state.
package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"qde/internal/engine"
	"qde/internal/logger"
)

// Server wraps the HTTP surface around an engine.
type Server struct {
	engine *engine.Engine
	log    logger.Logger
	http   *http.Server
}

// NewServer builds the router and server for addr.
func NewServer(addr string, eng *engine.Engine, log logger.Logger) *Server {
	if log == nil {
		log = logger.NewNopLogger()
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	s := &Server{
		engine: eng,
		log:    log,
		http: &http.Server{
			Addr:         addr,
			Handler:      router,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
		},
	}

	router.GET("/health", s.handleHealth)
	router.GET("/status", s.handleStatus)
	router.GET("/decisions", s.handleDecisions)
	router.GET("/audit", s.handleAudit)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return s
}

// Start listens until the server is shut down. ErrServerClosed is
// swallowed; anything else is returned.
func (s *Server) Start() error {
	s.log.Info("api listening", "addr", s.http.Addr)
	if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"run_id": s.engine.RunID(),
		"time":   time.Now().UTC(),
	})
}

func (s *Server) handleStatus(c *gin.Context) {
	c.JSON(http.StatusOK, s.engine.Status())
}

func (s *Server) handleDecisions(c *gin.Context) {
	limit := parseLimit(c.Query("limit"), 50)
	c.JSON(http.StatusOK, gin.H{
		"decisions": s.engine.Decisions(limit),
	})
}

func (s *Server) handleAudit(c *gin.Context) {
	limit := parseLimit(c.Query("limit"), 100)
	c.JSON(http.StatusOK, gin.H{
		"records": s.engine.AuditLog().Recent(limit),
	})
}

func parseLimit(raw string, fallback int) int {
	if raw == "" {
		return fallback
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit <= 0 {
		return fallback
	}
	return limit
}
