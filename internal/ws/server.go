// Package ws owns the WebSocket sessions: one state machine per socket,
// pumping frames between the connection, the hub and the services.
package ws

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"startuphub-comms/internal/auth"
	"startuphub-comms/internal/hub"
	"startuphub-comms/internal/presence"
	"startuphub-comms/internal/service"
	"startuphub-comms/internal/wire"
	comms_errors "startuphub-comms/pkg/errors"
)

// Application close codes. 1000/1009/1011 come from RFC 6455.
const (
	CloseNotAllowed   = 4003
	CloseSessionLimit = 4004
	CloseBackpressure = 4008
)

const (
	// DefaultWriteTimeout is the per-send deadline; missing it is fatal to
	// the session.
	DefaultWriteTimeout = 5 * time.Second
	// DefaultMaxFrameBytes caps an inbound frame.
	DefaultMaxFrameBytes = 64 * 1024
	// DefaultRateBurst and DefaultRateSustained bound inbound frame rate.
	DefaultRateBurst     = 20
	DefaultRateSustained = 5
)

// Limits tunes per-session resource bounds; zero values take the defaults.
type Limits struct {
	WriteTimeout       time.Duration
	MaxFrameBytes      int64
	RateBurst          int
	RateSustained      int
	MaxSessionsPerUser int
}

func (l Limits) withDefaults() Limits {
	if l.WriteTimeout <= 0 {
		l.WriteTimeout = DefaultWriteTimeout
	}
	if l.MaxFrameBytes <= 0 {
		l.MaxFrameBytes = DefaultMaxFrameBytes
	}
	if l.RateBurst <= 0 {
		l.RateBurst = DefaultRateBurst
	}
	if l.RateSustained <= 0 {
		l.RateSustained = DefaultRateSustained
	}
	if l.MaxSessionsPerUser <= 0 {
		l.MaxSessionsPerUser = DefaultMaxSessionsPerUser
	}
	return l
}

// Server upgrades HTTP requests into chat and call sessions.
type Server struct {
	chat     *service.ChatService
	calls    *service.CallService
	hub      *hub.Hub
	presence *presence.Tracker
	gateway  auth.Gateway
	logger   *zap.Logger
	limits   Limits
	registry *registry
	upgrader websocket.Upgrader
}

func NewServer(chat *service.ChatService, calls *service.CallService, h *hub.Hub, tr *presence.Tracker, gw auth.Gateway, logger *zap.Logger, limits Limits) *Server {
	limits = limits.withDefaults()
	return &Server{
		chat:     chat,
		calls:    calls,
		hub:      h,
		presence: tr,
		gateway:  gw,
		logger:   logger,
		limits:   limits,
		registry: newRegistry(limits.MaxSessionsPerUser),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// Browser clients carry the token in the query string; origin
			// policy is enforced upstream.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

// ChatHandler serves /ws/chat/:room_id.
func (s *Server) ChatHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		roomID, err := uuid.Parse(c.Param("room_id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": gin.H{"kind": "invalid_frame", "message": "bad room id"}})
			return
		}
		conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			return
		}
		userID, err := s.gateway.Authenticate(c.Request)
		if err != nil {
			closeWith(conn, CloseNotAllowed, "authentication failed", s.limits.WriteTimeout)
			conn.Close()
			return
		}
		newChatSession(s, conn, roomID, userID).run(c.Request.Context())
	}
}

// CallHandler serves /ws/call/:call_id.
func (s *Server) CallHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		callID, err := uuid.Parse(c.Param("call_id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": gin.H{"kind": "invalid_frame", "message": "bad call id"}})
			return
		}
		conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			return
		}
		userID, err := s.gateway.Authenticate(c.Request)
		if err != nil {
			closeWith(conn, CloseNotAllowed, "authentication failed", s.limits.WriteTimeout)
			conn.Close()
			return
		}
		newCallSession(s, conn, callID, userID).run(c.Request.Context())
	}
}

// closeWith sends a close frame with the given code. Best effort.
func closeWith(conn *websocket.Conn, code int, reason string, timeout time.Duration) {
	msg := websocket.FormatCloseMessage(code, reason)
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(timeout))
}

// errorFrame renders an operational error back to the offending client.
func errorFrame(err error) []byte {
	return wire.Error(comms_errors.Kind(err), err.Error(), time.Now().UTC())
}
