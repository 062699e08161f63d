// Package httpapi is the REST surface: thin handlers over the services, with
// identity-gateway auth and prometheus instrumentation.
package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"startuphub-comms/internal/auth"
	"startuphub-comms/internal/observability"
	"startuphub-comms/internal/service"
	"startuphub-comms/internal/ws"
)

// API bundles the handlers' collaborators.
type API struct {
	chat   *service.ChatService
	calls  *service.CallService
	logger *zap.Logger
}

func New(chat *service.ChatService, calls *service.CallService, logger *zap.Logger) *API {
	return &API{chat: chat, calls: calls, logger: logger}
}

// Router builds the gin engine: REST endpoints, WebSocket upgrades, health
// and metrics.
func (a *API) Router(gw auth.Gateway, sockets *ws.Server) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(requestIDMiddleware())
	r.Use(loggingMiddleware(a.logger))
	r.Use(observability.HTTPMetricsMiddleware())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// WebSocket endpoints authenticate inside the upgrade, so the token can
	// also arrive via the query string.
	r.GET("/ws/chat/:room_id", sockets.ChatHandler())
	r.GET("/ws/call/:call_id", sockets.CallHandler())

	authed := r.Group("/", authMiddleware(gw))
	{
		authed.POST("/rooms", a.createRoom)
		authed.GET("/rooms", a.listRooms)
		authed.POST("/rooms/:id/participants", a.addParticipants)
		authed.DELETE("/rooms/:id/participants/me", a.leaveRoom)
		authed.GET("/rooms/:id/messages", a.listMessages)
		authed.POST("/rooms/:id/messages", a.sendMessage)
		authed.POST("/rooms/:id/read", a.markRead)

		authed.POST("/calls", a.createCall)
		authed.POST("/calls/:id/join", a.joinCall)
		authed.POST("/calls/:id/end", a.endCall)
	}

	return r
}
