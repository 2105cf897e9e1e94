// Package api serves the workflow engine over HTTP.
package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/roach88/oilflow/internal/engine"
	"github.com/roach88/oilflow/internal/workflow"
)

// Server routes HTTP requests to an Engine.
type Server struct {
	engine *engine.Engine
	router *gin.Engine
}

// New builds the router. The caller keeps ownership of e.
func New(e *engine.Engine) *Server {
	gin.SetMode(gin.ReleaseMode)
	s := &Server{engine: e, router: gin.New()}
	s.router.Use(gin.Recovery(), s.observe())
	s.routes()
	return s
}

// Handler returns the server as an http.Handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() {
	r := s.router
	r.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	r.GET("/metrics", gin.WrapH(s.engine.Metrics().Handler()))

	api := r.Group("/api")
	api.GET("/stages", s.listStages)
	api.GET("/stages/:stage/pending", s.pending)
	api.POST("/stages/:stage/advance", s.advance)
	api.POST("/orders", s.punch)
	api.GET("/orders/:id", s.order)
	api.POST("/handoff", s.takeHandoff)
	api.GET("/side-lists/:name", s.sideList)
	api.GET("/dashboard", s.dashboard)
	api.GET("/history", s.history)
	api.POST("/replay", s.replay)
	api.POST("/cache/rebuild", s.rebuildCache)
}

// observe logs each request and records it in the metrics registry.
func (s *Server) observe() gin.HandlerFunc {
	m := s.engine.Metrics()
	return func(c *gin.Context) {
		start := time.Now()
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}

		c.Next()

		status := c.Writer.Status()
		elapsed := time.Since(start)
		m.HTTPRequests.WithLabelValues(c.Request.Method, route, strconv.Itoa(status)).Inc()
		m.HTTPDuration.WithLabelValues(c.Request.Method, route).Observe(elapsed.Seconds())
		slog.Debug("http request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", status,
			"duration", elapsed,
		)
	}
}

// errorBody is the JSON shape of every error response.
type errorBody struct {
	Error string                  `json:"error"`
	Code  workflow.ValidationCode `json:"code,omitempty"`
	Field string                  `json:"field,omitempty"`
}

// fail maps err onto a status code and writes it.
func fail(c *gin.Context, err error) {
	var ve *workflow.ValidationError
	switch {
	case errors.As(err, &ve):
		c.JSON(http.StatusUnprocessableEntity, errorBody{Error: ve.Message, Code: ve.Code, Field: ve.Field})
	case errors.Is(err, workflow.ErrBusy):
		c.JSON(http.StatusConflict, errorBody{Error: err.Error()})
	case errors.Is(err, workflow.ErrUnknownStage), engine.IsNotFound(err):
		c.JSON(http.StatusNotFound, errorBody{Error: err.Error()})
	default:
		slog.Error("request failed", "path", c.Request.URL.Path, "error", err)
		c.JSON(http.StatusInternalServerError, errorBody{Error: "internal error"})
	}
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, errorBody{Error: err.Error()})
}
