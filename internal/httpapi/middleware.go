package httpapi

import (
	"crypto/rand"
	"encoding/hex"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"startuphub-comms/internal/auth"
	comms_errors "startuphub-comms/pkg/errors"
)

const userIDKey = "auth_user_id"

// requestIDMiddleware tags every request with an id, honoring one supplied
// by the caller.
func requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader("X-Request-Id")
		if requestID == "" {
			requestID = newRequestID()
		}
		c.Writer.Header().Set("X-Request-Id", requestID)
		c.Set("request_id", requestID)
		c.Next()
	}
}

func newRequestID() string {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return ""
	}
	return hex.EncodeToString(buf)
}

// loggingMiddleware emits one structured line per request.
func loggingMiddleware(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		method := c.Request.Method

		c.Next()

		log.Info("http request",
			zap.String("method", method),
			zap.String("path", path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("request_id", c.GetString("request_id")))
	}
}

// authMiddleware resolves the caller through the identity gateway and stores
// the user id on the request context.
func authMiddleware(gw auth.Gateway) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, err := gw.Authenticate(c.Request)
		if err != nil {
			fail(c, comms_errors.ErrUnauthorized)
			c.Abort()
			return
		}
		c.Set(userIDKey, userID)
		c.Next()
	}
}

func currentUser(c *gin.Context) uuid.UUID {
	id, _ := c.Get(userIDKey)
	userID, _ := id.(uuid.UUID)
	return userID
}
