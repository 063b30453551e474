// Package dashboard serves the chat engine over HTTP: a JSON API, a
// server-sent escalation feed and a minimal chat page.
package dashboard

import (
	"context"
	"embed"
	"fmt"
	"html/template"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/zulandar/helpline/internal/engine"
	"github.com/zulandar/helpline/internal/session"
)

//go:embed templates/*.html
var templatesFS embed.FS

// StartOpts holds configuration for the dashboard server.
type StartOpts struct {
	Engine   *engine.Engine
	Sessions *session.Manager
	Events   *engine.Broker // optional; enables /api/events
	Port     int
	Out      io.Writer
	Logger   *zap.Logger

	// Heartbeat is the SSE keep-alive interval; defaults to 15s.
	Heartbeat time.Duration
}

// NewRouter builds the gin router without starting a server.
func NewRouter(opts StartOpts) (*gin.Engine, error) {
	if opts.Engine == nil {
		return nil, fmt.Errorf("dashboard: engine is required")
	}
	if opts.Sessions == nil {
		return nil, fmt.Errorf("dashboard: session manager is required")
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Heartbeat <= 0 {
		opts.Heartbeat = 15 * time.Second
	}

	router := gin.New()
	router.Use(gin.Recovery(), requestLogger(opts.Logger))

	tmpl, err := parseTemplates()
	if err != nil {
		return nil, fmt.Errorf("dashboard: %w", err)
	}
	router.SetHTMLTemplate(tmpl)

	registerRoutes(router, &api{
		engine:    opts.Engine,
		sessions:  opts.Sessions,
		events:    opts.Events,
		log:       opts.Logger,
		heartbeat: opts.Heartbeat,
		now:       time.Now,
	})
	return router, nil
}

// Start launches the dashboard HTTP server. It blocks until ctx is cancelled,
// then shuts down gracefully.
func Start(ctx context.Context, opts StartOpts) error {
	if opts.Port <= 0 {
		opts.Port = 8080
	}

	gin.SetMode(gin.ReleaseMode)
	router, err := NewRouter(opts)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", opts.Port),
		Handler: router,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	if opts.Out != nil {
		fmt.Fprintf(opts.Out, "Helpline API running at http://localhost:%d\n", opts.Port)
	}

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("dashboard: %w", err)
	}
	return nil
}

// parseTemplates loads the embedded HTML templates.
func parseTemplates() (*template.Template, error) {
	tmpl, err := template.ParseFS(templatesFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("parse templates: %w", err)
	}
	return tmpl, nil
}

// requestLogger logs one line per request.
func requestLogger(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Debug("http request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("elapsed", time.Since(start)))
	}
}
