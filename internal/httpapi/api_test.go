package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"startuphub-comms/internal/auth"
	"startuphub-comms/internal/hub"
	"startuphub-comms/internal/presence"
	"startuphub-comms/internal/service"
	"startuphub-comms/internal/store"
	"startuphub-comms/internal/ws"
)

type apiFixture struct {
	router  *gin.Engine
	gateway *auth.JWTGateway
	store   *store.Mem
	hub     *hub.Hub
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	st := store.NewMem(store.Limits{})
	h := hub.New(zap.NewNop(), hub.Options{})
	tr := presence.NewTracker(0)
	log := zap.NewNop()
	gw := auth.NewJWTGateway("test-secret")

	chat := service.NewChatService(st, h, tr, log, service.ChatOptions{})
	calls := service.NewCallService(st, h, tr, log, 0)
	sockets := ws.NewServer(chat, calls, h, tr, gw, log, ws.Limits{})

	api := New(chat, calls, log)
	return &apiFixture{
		router:  api.Router(gw, sockets),
		gateway: gw,
		store:   st,
		hub:     h,
	}
}

func (f *apiFixture) do(t *testing.T, user uuid.UUID, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if user != uuid.Nil {
		token, err := f.gateway.IssueToken(user)
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func decodeData(t *testing.T, rec *httptest.ResponseRecorder, out any) {
	t.Helper()
	var envelope struct {
		Data json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	require.NoError(t, json.Unmarshal(envelope.Data, out))
}

func TestUnauthenticatedRejected(t *testing.T) {
	f := newAPIFixture(t)
	rec := f.do(t, uuid.Nil, http.MethodGet, "/rooms", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), `"kind":"unauthenticated"`)
}

func TestRoomLifecycle(t *testing.T) {
	f := newAPIFixture(t)
	a, b := uuid.New(), uuid.New()

	rec := f.do(t, a, http.MethodPost, "/rooms", gin.H{
		"name":         "founders",
		"participants": []uuid.UUID{b},
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	var room struct {
		ID uuid.UUID `json:"id"`
	}
	decodeData(t, rec, &room)
	require.NotEqual(t, uuid.Nil, room.ID)

	rec = f.do(t, a, http.MethodGet, "/rooms", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var rooms []struct {
		ID          uuid.UUID `json:"id"`
		UnreadCount int       `json:"unread_count"`
	}
	decodeData(t, rec, &rooms)
	require.Len(t, rooms, 1)
	assert.Equal(t, room.ID, rooms[0].ID)

	rec = f.do(t, b, http.MethodDelete, fmt.Sprintf("/rooms/%s/participants/me", room.ID), nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = f.do(t, b, http.MethodGet, "/rooms", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	rooms = nil
	decodeData(t, rec, &rooms)
	assert.Empty(t, rooms)
}

func TestMessageSendAndHistory(t *testing.T) {
	f := newAPIFixture(t)
	a, b := uuid.New(), uuid.New()

	room, err := f.store.CreateRoom(context.Background(), "r", false, a, []uuid.UUID{b})
	require.NoError(t, err)

	rec := f.do(t, a, http.MethodPost, fmt.Sprintf("/rooms/%s/messages", room.ID), gin.H{"content": "hello"})
	require.Equal(t, http.StatusCreated, rec.Code)

	var msg struct {
		ID      uuid.UUID `json:"id"`
		Content string    `json:"content"`
	}
	decodeData(t, rec, &msg)
	assert.Equal(t, "hello", msg.Content)

	rec = f.do(t, b, http.MethodGet, fmt.Sprintf("/rooms/%s/messages?limit=10", room.ID), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var msgs []struct {
		ID uuid.UUID `json:"id"`
	}
	decodeData(t, rec, &msgs)
	require.Len(t, msgs, 1)
	assert.Equal(t, msg.ID, msgs[0].ID)

	// Outsiders see neither history nor a send path.
	stranger := uuid.New()
	rec = f.do(t, stranger, http.MethodGet, fmt.Sprintf("/rooms/%s/messages", room.ID), nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	rec = f.do(t, stranger, http.MethodPost, fmt.Sprintf("/rooms/%s/messages", room.ID), gin.H{"content": "hi"})
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestMarkReadEndpoint(t *testing.T) {
	f := newAPIFixture(t)
	a, b := uuid.New(), uuid.New()
	ctx := context.Background()

	room, err := f.store.CreateRoom(ctx, "r", false, a, []uuid.UUID{b})
	require.NoError(t, err)
	_, _, err = f.store.InsertMessage(ctx, room.ID, a, "hi")
	require.NoError(t, err)

	rec := f.do(t, b, http.MethodPost, fmt.Sprintf("/rooms/%s/read", room.ID), nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	count, err := f.store.UnreadCount(ctx, room.ID, b)
	require.NoError(t, err)
	assert.Equal(t, 0, count)

	// Non-participants cannot mark a foreign room read.
	rec = f.do(t, uuid.New(), http.MethodPost, fmt.Sprintf("/rooms/%s/read", room.ID), nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestCallLifecycle(t *testing.T) {
	f := newAPIFixture(t)
	a, b := uuid.New(), uuid.New()
	ctx := context.Background()

	room, err := f.store.CreateRoom(ctx, "r", false, a, []uuid.UUID{b})
	require.NoError(t, err)

	rec := f.do(t, a, http.MethodPost, "/calls", gin.H{"chat_room_id": room.ID})
	require.Equal(t, http.StatusCreated, rec.Code)
	var call struct {
		ID       uuid.UUID `json:"id"`
		IsActive bool      `json:"is_active"`
	}
	decodeData(t, rec, &call)
	assert.True(t, call.IsActive)

	rec = f.do(t, b, http.MethodPost, fmt.Sprintf("/calls/%s/join", call.ID), nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(t, a, http.MethodPost, fmt.Sprintf("/calls/%s/end", call.ID), nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	got, err := f.store.GetCallRoom(ctx, call.ID)
	require.NoError(t, err)
	assert.False(t, got.IsActive)

	// Joining after the end conflicts.
	rec = f.do(t, uuid.New(), http.MethodPost, fmt.Sprintf("/calls/%s/join", call.ID), nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestEndCallForbiddenForNonParticipants(t *testing.T) {
	f := newAPIFixture(t)
	a := uuid.New()
	ctx := context.Background()

	call, err := f.store.CreateCallRoom(ctx, nil, a, 0, false)
	require.NoError(t, err)

	rec := f.do(t, uuid.New(), http.MethodPost, fmt.Sprintf("/calls/%s/end", call.ID), nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	got, err := f.store.GetCallRoom(ctx, call.ID)
	require.NoError(t, err)
	assert.True(t, got.IsActive)
}

func TestCreateCallRequiresRoomMembership(t *testing.T) {
	f := newAPIFixture(t)
	a := uuid.New()

	room, err := f.store.CreateRoom(context.Background(), "r", false, a, nil)
	require.NoError(t, err)

	rec := f.do(t, uuid.New(), http.MethodPost, "/calls", gin.H{"chat_room_id": room.ID})
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestHealthz(t *testing.T) {
	f := newAPIFixture(t)
	rec := f.do(t, uuid.Nil, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestBadIDsRejected(t *testing.T) {
	f := newAPIFixture(t)
	rec := f.do(t, uuid.New(), http.MethodGet, "/rooms/not-a-uuid/messages", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
