package httpapi

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	comms_errors "startuphub-comms/pkg/errors"
)

func (a *API) createRoom(c *gin.Context) {
	var req createRoomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, fmt.Errorf("%w: %s", comms_errors.ErrInvalidInput, err))
		return
	}
	room, err := a.chat.CreateRoom(c.Request.Context(), req.Name, req.IsGroup, currentUser(c), req.Participants)
	if err != nil {
		fail(c, err)
		return
	}
	respond(c, http.StatusCreated, room)
}

func (a *API) listRooms(c *gin.Context) {
	rooms, err := a.chat.ListRooms(c.Request.Context(), currentUser(c))
	if err != nil {
		fail(c, err)
		return
	}
	respond(c, http.StatusOK, rooms)
}

func (a *API) addParticipants(c *gin.Context) {
	roomID, err := parseID(c, "id")
	if err != nil {
		fail(c, err)
		return
	}
	var req addParticipantsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, fmt.Errorf("%w: %s", comms_errors.ErrInvalidInput, err))
		return
	}
	added, err := a.chat.AddParticipants(c.Request.Context(), roomID, currentUser(c), req.UserIDs)
	if err != nil {
		fail(c, err)
		return
	}
	respond(c, http.StatusOK, gin.H{"added": added})
}

func (a *API) leaveRoom(c *gin.Context) {
	roomID, err := parseID(c, "id")
	if err != nil {
		fail(c, err)
		return
	}
	if err := a.chat.LeaveRoom(c.Request.Context(), roomID, currentUser(c)); err != nil {
		fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (a *API) listMessages(c *gin.Context) {
	roomID, err := parseID(c, "id")
	if err != nil {
		fail(c, err)
		return
	}
	userID := currentUser(c)
	member, err := a.chat.Membership(c.Request.Context(), roomID, userID)
	if err != nil {
		fail(c, err)
		return
	}
	if !member {
		fail(c, comms_errors.ErrForbidden)
		return
	}

	var beforeID *uuid.UUID
	if raw := c.Query("before"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			fail(c, fmt.Errorf("bad before id: %w", comms_errors.ErrInvalidInput))
			return
		}
		beforeID = &id
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))

	msgs, err := a.chat.History(c.Request.Context(), roomID, beforeID, limit)
	if err != nil {
		fail(c, err)
		return
	}
	respond(c, http.StatusOK, msgs)
}

func (a *API) sendMessage(c *gin.Context) {
	roomID, err := parseID(c, "id")
	if err != nil {
		fail(c, err)
		return
	}
	userID := currentUser(c)
	member, err := a.chat.Membership(c.Request.Context(), roomID, userID)
	if err != nil {
		fail(c, err)
		return
	}
	if !member {
		fail(c, comms_errors.ErrForbidden)
		return
	}

	var req sendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, fmt.Errorf("%w: %s", comms_errors.ErrInvalidInput, err))
		return
	}
	msg, err := a.chat.SendMessage(c.Request.Context(), roomID, userID, req.Content)
	if err != nil {
		fail(c, err)
		return
	}
	respond(c, http.StatusCreated, msg)
}

func (a *API) markRead(c *gin.Context) {
	roomID, err := parseID(c, "id")
	if err != nil {
		fail(c, err)
		return
	}
	if err := a.chat.MarkRead(c.Request.Context(), roomID, currentUser(c)); err != nil {
		fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (a *API) createCall(c *gin.Context) {
	var req createCallRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, fmt.Errorf("%w: %s", comms_errors.ErrInvalidInput, err))
		return
	}
	userID := currentUser(c)
	if req.ChatRoomID != nil {
		member, err := a.chat.Membership(c.Request.Context(), *req.ChatRoomID, userID)
		if err != nil {
			fail(c, err)
			return
		}
		if !member {
			fail(c, comms_errors.ErrForbidden)
			return
		}
	}
	call, err := a.calls.CreateCall(c.Request.Context(), req.ChatRoomID, userID, req.MaxParticipants, req.IsRecordingEnabled)
	if err != nil {
		fail(c, err)
		return
	}
	respond(c, http.StatusCreated, call)
}

func (a *API) joinCall(c *gin.Context) {
	callID, err := parseID(c, "id")
	if err != nil {
		fail(c, err)
		return
	}
	part, err := a.calls.JoinCall(c.Request.Context(), callID, currentUser(c))
	if err != nil {
		fail(c, err)
		return
	}
	respond(c, http.StatusOK, part)
}

func (a *API) endCall(c *gin.Context) {
	callID, err := parseID(c, "id")
	if err != nil {
		fail(c, err)
		return
	}
	if err := a.calls.EndCall(c.Request.Context(), callID, currentUser(c)); err != nil {
		fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func parseID(c *gin.Context, param string) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param(param))
	if err != nil {
		return uuid.Nil, fmt.Errorf("bad %s: %w", param, comms_errors.ErrInvalidInput)
	}
	return id, nil
}
