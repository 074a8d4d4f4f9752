// Package server exposes the REST and WebSocket surface. REST mutations
// run the same guarded pipeline as WebSocket events; each HTTP request
// gets a one-shot owner token so its locks cannot outlive it.
package server

import (
	"errors"
	"net/http"
	"time"

	ginzap "github.com/gin-contrib/zap"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/AnirudhanSS/kanban-app-sub000/internal/session"
	"github.com/AnirudhanSS/kanban-app-sub000/pkg/collab"
)

// userHeader authenticates REST calls. Verifying identity tokens is an
// upstream gateway concern; the header carries the already-authenticated
// user id.
const userHeader = "X-User-ID"

// Server holds the HTTP surface dependencies.
type Server struct {
	svc       *session.Service
	ws        *session.Handler
	ticketTTL time.Duration
	log       *zap.Logger
}

// New builds the HTTP surface on top of the shared mutation service.
func New(svc *session.Service, ws *session.Handler, ticketTTL time.Duration, log *zap.Logger) *Server {
	return &Server{svc: svc, ws: ws, ticketTTL: ticketTTL, log: log}
}

// Router assembles the gin engine with logging and recovery middleware.
func (s *Server) Router() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(ginzap.Ginzap(s.log, time.RFC3339, true))
	r.Use(ginzap.RecoveryWithZap(s.log, true))

	r.GET("/healthz", s.health)
	r.GET("/ws", s.serveWS)

	api := r.Group("/api/v1")
	{
		api.POST("/tickets", s.createTicket)
		api.POST("/boards", s.createBoard)
		api.GET("/boards/:board", s.getBoard)
		api.POST("/boards/:board/columns", s.createColumn)
		api.GET("/boards/:board/online", s.listOnline)
		api.GET("/boards/:board/audit", s.listAudit)
		api.POST("/columns/:column/cards", s.createCard)
		api.PATCH("/cards/:card", s.updateCard)
		api.POST("/cards/:card/move", s.moveCard)
		api.DELETE("/cards/:card", s.deleteCard)
	}
	return r
}

// statusFor maps pipeline errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case collab.IsNotFound(err):
		return http.StatusNotFound
	case collab.IsVersionConflict(err), collab.IsPositionCollision(err):
		return http.StatusConflict
	case collab.IsLockHeld(err):
		return http.StatusLocked
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) abortWithError(c *gin.Context, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		s.log.Error("request failed",
			zap.String("path", c.FullPath()), zap.Error(err))
		c.JSON(status, gin.H{"error": "internal error"})
		return
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

// requireUser extracts the authenticated user id or aborts with 401.
func requireUser(c *gin.Context) (string, bool) {
	userID := c.GetHeader(userHeader)
	if userID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing " + userHeader + " header"})
		return "", false
	}
	return userID, true
}

// requestOwner is the lock owner token for a single HTTP request.
func requestOwner() string {
	return "req:" + uuid.New().String()
}

func (s *Server) health(c *gin.Context) {
	if err := s.svc.Collab().Ping(c.Request.Context()); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) createTicket(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	ticket, err := s.svc.Collab().CreateTicket(c.Request.Context(), userID, s.ticketTTL)
	if err != nil {
		s.abortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"ticket": ticket})
}

// serveWS redeems a one-time connection ticket and upgrades the socket.
// Tickets keep credentials out of the upgrade URL's query string on the
// client side: the ticket is single-use and expires within seconds.
func (s *Server) serveWS(c *gin.Context) {
	ticket := c.Query("ticket")
	if ticket == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing ticket"})
		return
	}
	userID, err := s.svc.Collab().ConsumeTicket(c.Request.Context(), ticket)
	if err != nil {
		if errors.Is(err, collab.ErrNotFound) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid or expired ticket"})
			return
		}
		s.abortWithError(c, err)
		return
	}
	if err := s.ws.ServeWS(c.Writer, c.Request, userID); err != nil {
		s.log.Warn("websocket upgrade failed", zap.Error(err))
	}
}
