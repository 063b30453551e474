package dashboard

import (
	"bytes"
	"errors"
	"net/http"
	"time"
	"unicode/utf8"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/zulandar/helpline/internal/dialogue"
	"github.com/zulandar/helpline/internal/engine"
	"github.com/zulandar/helpline/internal/session"
	"github.com/zulandar/helpline/internal/ticket"
)

// maxMessageLen bounds the bytes of a user message passed to the engine.
// Longer text is cut, not rejected.
const maxMessageLen = 4000

// clipText cuts s to at most n bytes without splitting a UTF-8 sequence.
func clipText(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

type api struct {
	engine    *engine.Engine
	sessions  *session.Manager
	events    *engine.Broker
	log       *zap.Logger
	heartbeat time.Duration
	now       func() time.Time
}

// registerRoutes sets up all routes on the Gin router.
func registerRoutes(router *gin.Engine, a *api) {
	router.GET("/", a.handleIndex())
	router.GET("/healthz", a.handleHealth())

	g := router.Group("/api")
	g.POST("/sessions", a.handleCreateSession())
	g.POST("/sessions/:id/messages", a.handleMessage())
	g.GET("/sessions/:id/history", a.handleHistory())
	g.DELETE("/sessions/:id/history", a.handleClear())
	g.GET("/sessions/:id/export", a.handleExport())
	g.GET("/sessions/:id/stats", a.handleSessionStats())
	g.GET("/stats", a.handleStats())
	g.GET("/events", a.handleSSE())
}

type createSessionResponse struct {
	ID             string                 `json:"id"`
	Welcome        string                 `json:"welcome"`
	QuickQuestions []engine.QuickQuestion `json:"quick_questions"`
}

type messageRequest struct {
	Text string `json:"text"`
}

type stateView struct {
	Mode          string `json:"mode"`
	FallbackCount int    `json:"fallback_count"`
	OrderNumber   string `json:"order_number,omitempty"`
}

type messageResponse struct {
	Reply  dialogue.Reply `json:"reply"`
	State  stateView      `json:"state"`
	Ticket *ticket.Ref    `json:"ticket,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (a *api) handleIndex() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.HTML(http.StatusOK, "index.html", gin.H{
			"Welcome":        a.engine.Welcome(),
			"QuickQuestions": a.engine.QuickQuestions(),
		})
	}
}

func (a *api) handleHealth() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":    "ok",
			"variant":   a.engine.Variant(),
			"records":   a.engine.KnowledgeSize(),
			"sessions":  a.sessions.Len(),
			"timestamp": a.now().UTC().Format(time.RFC3339),
		})
	}
}

func (a *api) handleCreateSession() gin.HandlerFunc {
	return func(c *gin.Context) {
		s := a.sessions.Create()
		c.JSON(http.StatusCreated, createSessionResponse{
			ID:             s.ID(),
			Welcome:        a.engine.Welcome(),
			QuickQuestions: a.engine.QuickQuestions(),
		})
	}
}

func (a *api) handleMessage() gin.HandlerFunc {
	return func(c *gin.Context) {
		s, ok := a.lookup(c)
		if !ok {
			return
		}
		var req messageRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid JSON body"})
			return
		}
		// Empty and oversized text still get a turn; the dialogue machine
		// answers them with its fallback replies.
		out, err := a.engine.Turn(c.Request.Context(), s, clipText(req.Text, maxMessageLen))
		if err != nil {
			a.log.Warn("turn aborted", zap.String("session", s.ID()), zap.Error(err))
			c.JSON(http.StatusServiceUnavailable, errorResponse{Error: "request cancelled"})
			return
		}
		c.JSON(http.StatusOK, messageResponse{
			Reply: out.Reply,
			State: stateView{
				Mode:          out.State.Mode.String(),
				FallbackCount: out.State.FallbackCount,
				OrderNumber:   out.State.CapturedOrderNumber,
			},
			Ticket: out.Ticket,
		})
	}
}

func (a *api) handleHistory() gin.HandlerFunc {
	return func(c *gin.Context) {
		s, ok := a.lookup(c)
		if !ok {
			return
		}
		c.JSON(http.StatusOK, gin.H{"id": s.ID(), "turns": s.Turns()})
	}
}

func (a *api) handleClear() gin.HandlerFunc {
	return func(c *gin.Context) {
		s, ok := a.lookup(c)
		if !ok {
			return
		}
		s.Clear()
		c.Status(http.StatusNoContent)
	}
}

func (a *api) handleExport() gin.HandlerFunc {
	return func(c *gin.Context) {
		s, ok := a.lookup(c)
		if !ok {
			return
		}
		var buf bytes.Buffer
		if err := s.ExportCSV(&buf); err != nil {
			a.log.Error("export failed", zap.String("session", s.ID()), zap.Error(err))
			c.JSON(http.StatusInternalServerError, errorResponse{Error: "export failed"})
			return
		}
		c.Header("Content-Disposition", `attachment; filename="`+session.ExportFilename(a.now())+`"`)
		c.Data(http.StatusOK, "text/csv; charset=utf-8", buf.Bytes())
	}
}

func (a *api) handleSessionStats() gin.HandlerFunc {
	return func(c *gin.Context) {
		s, ok := a.lookup(c)
		if !ok {
			return
		}
		c.JSON(http.StatusOK, s.Stats())
	}
}

func (a *api) handleStats() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, a.sessions.Stats())
	}
}

// lookup resolves :id or writes a 404.
func (a *api) lookup(c *gin.Context) (*session.Session, bool) {
	s, err := a.sessions.Get(c.Param("id"))
	if errors.Is(err, session.ErrNotFound) {
		c.JSON(http.StatusNotFound, errorResponse{Error: "session not found"})
		return nil, false
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, errorResponse{Error: err.Error()})
		return nil, false
	}
	return s, true
}
