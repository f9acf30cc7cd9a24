// Package api exposes the engine's inbound channels over HTTP.
//
// The routes are a thin transport: message bodies are handed to the engine
// unparsed and the engine's Reply is returned as JSON. Only the shown
// notifications in the tray are served directly.
package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/roach88/duewatch/internal/engine"
	"github.com/roach88/duewatch/internal/notify"
)

// Engine is the part of *engine.Engine the routes use.
type Engine interface {
	Post(ctx context.Context, raw []byte) (engine.Reply, error)
	Push(ctx context.Context, raw []byte) (engine.Reply, error)
	Instance() string
	Active() bool
	QueueLen() int
}

// DefaultTimeout bounds how long a request waits for the engine's reply.
const DefaultTimeout = 10 * time.Second

// Server serves the HTTP routes.
type Server struct {
	engine  Engine
	tray    *notify.Tray
	router  *gin.Engine
	timeout time.Duration
}

// NewServer registers the routes. tray may be nil, in which case the
// notification routes report an empty tray.
func NewServer(e Engine, tray *notify.Tray) *Server {
	s := &Server{
		engine:  e,
		tray:    tray,
		router:  gin.New(),
		timeout: DefaultTimeout,
	}
	s.router.Use(gin.Recovery())
	s.router.Use(requestLogger())
	s.routes()
	return s
}

func (s *Server) routes() {
	s.router.GET("/healthz", s.health)

	v1 := s.router.Group("/v1")
	{
		v1.POST("/messages", s.postMessage)
		v1.POST("/push", s.postPush)
		v1.GET("/notifications", s.listNotifications)
		v1.DELETE("/notifications/:tag", s.closeNotification)
	}
}

// Handler returns the router.
func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("http listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		slog.Info("http stopped")
		return nil
	}
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":   "ok",
		"instance": s.engine.Instance(),
		"active":   s.engine.Active(),
		"queued":   s.engine.QueueLen(),
	})
}

func (s *Server) postMessage(c *gin.Context) {
	s.forward(c, s.engine.Post)
}

func (s *Server) postPush(c *gin.Context) {
	s.forward(c, s.engine.Push)
}

// forward hands the raw request body to the engine and writes its reply.
func (s *Server) forward(c *gin.Context, send func(context.Context, []byte) (engine.Reply, error)) {
	raw, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": "failed to read body"})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), s.timeout)
	defer cancel()

	reply, err := send(ctx, raw)
	if err != nil {
		slog.Warn("engine did not reply", "path", c.FullPath(), "error", err)
		c.JSON(http.StatusServiceUnavailable, gin.H{"ok": false, "error": err.Error()})
		return
	}
	c.JSON(statusFor(reply), reply)
}

// statusFor maps a reply to an HTTP status.
func statusFor(r engine.Reply) int {
	if r.OK {
		return http.StatusOK
	}
	switch r.Code {
	case engine.ErrCodeMalformed, engine.ErrCodeUnknownCommand:
		return http.StatusBadRequest
	case engine.ErrCodeNotActive:
		return http.StatusConflict
	case engine.ErrCodeHandlerFailed:
		return http.StatusInternalServerError
	default:
		return http.StatusServiceUnavailable
	}
}

func (s *Server) listNotifications(c *gin.Context) {
	shown := []notify.Notification{}
	if s.tray != nil {
		shown = s.tray.List()
	}
	c.JSON(http.StatusOK, gin.H{"notifications": shown})
}

func (s *Server) closeNotification(c *gin.Context) {
	if s.tray == nil || !s.tray.Close(c.Param("tag")) {
		c.JSON(http.StatusNotFound, gin.H{"error": "notification not found"})
		return
	}
	c.Status(http.StatusNoContent)
}

// requestLogger logs each request through slog.
func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		slog.Debug("http request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration", time.Since(start).String(),
		)
	}
}
