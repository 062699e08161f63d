package httpapi

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	comms_errors "startuphub-comms/pkg/errors"
)

type createRoomRequest struct {
	Name         string      `json:"name"`
	IsGroup      bool        `json:"is_group"`
	Participants []uuid.UUID `json:"participants"`
}

type addParticipantsRequest struct {
	UserIDs []uuid.UUID `json:"user_ids" binding:"required"`
}

type sendMessageRequest struct {
	Content string `json:"content" binding:"required"`
}

type createCallRequest struct {
	ChatRoomID         *uuid.UUID `json:"chat_room_id"`
	MaxParticipants    int        `json:"max_participants"`
	IsRecordingEnabled bool       `json:"is_recording_enabled"`
}

func respond(c *gin.Context, status int, data any) {
	c.JSON(status, gin.H{"data": data})
}

func fail(c *gin.Context, err error) {
	c.JSON(comms_errors.HTTPStatus(err), gin.H{
		"error": gin.H{
			"kind":    comms_errors.Kind(err),
			"message": err.Error(),
		},
	})
}
