package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"startuphub-comms/internal/hub"
	"startuphub-comms/internal/presence"
	"startuphub-comms/internal/store"
	comms_errors "startuphub-comms/pkg/errors"
)

type chatFixture struct {
	svc   *ChatService
	store *store.Mem
	hub   *hub.Hub
}

func newChatFixture(t *testing.T) *chatFixture {
	t.Helper()
	st := store.NewMem(store.Limits{})
	h := hub.New(zap.NewNop(), hub.Options{})
	tr := presence.NewTracker(0)
	return &chatFixture{
		svc:   NewChatService(st, h, tr, zap.NewNop(), ChatOptions{}),
		store: st,
		hub:   h,
	}
}

func (f *chatFixture) room(t *testing.T, users ...uuid.UUID) uuid.UUID {
	t.Helper()
	require.NotEmpty(t, users)
	room, err := f.svc.CreateRoom(context.Background(), "room", false, users[0], users[1:])
	require.NoError(t, err)
	return room.ID
}

func recv(t *testing.T, sub *hub.Subscription) []byte {
	t.Helper()
	select {
	case f := <-sub.Frames():
		return f
	case <-time.After(time.Second):
		t.Fatal("no frame delivered")
		return nil
	}
}

func TestSendMessageFansOut(t *testing.T) {
	f := newChatFixture(t)
	a, b, c := uuid.New(), uuid.New(), uuid.New()
	roomID := f.room(t, a, b, c)
	ctx := context.Background()

	roomSubB := f.hub.Subscribe(hub.RoomChannel(roomID))
	roomSubC := f.hub.Subscribe(hub.RoomChannel(roomID))
	alertB := f.hub.Subscribe(hub.UserChannel(b))
	alertC := f.hub.Subscribe(hub.UserChannel(c))
	alertA := f.hub.Subscribe(hub.UserChannel(a))

	msg, err := f.svc.SendMessage(ctx, roomID, a, "hi")
	require.NoError(t, err)

	assert.Contains(t, string(recv(t, roomSubB)), `"content":"hi"`)
	assert.Contains(t, string(recv(t, roomSubC)), `"content":"hi"`)
	assert.Contains(t, string(recv(t, alertB)), msg.ID.String())
	assert.Contains(t, string(recv(t, alertC)), msg.ID.String())

	// The sender never gets their own alert.
	select {
	case frame := <-alertA.Frames():
		t.Fatalf("sender received own notification: %q", frame)
	case <-time.After(50 * time.Millisecond):
	}

	for user, want := range map[uuid.UUID]int{a: 0, b: 1, c: 1} {
		count, err := f.svc.UnreadCount(ctx, roomID, user)
		require.NoError(t, err)
		assert.Equal(t, want, count, "unread for %s", user)
	}
}

func TestMarkReadIdempotent(t *testing.T) {
	f := newChatFixture(t)
	a, b := uuid.New(), uuid.New()
	roomID := f.room(t, a, b)
	ctx := context.Background()

	_, err := f.svc.SendMessage(ctx, roomID, a, "hi")
	require.NoError(t, err)

	roomSub := f.hub.Subscribe(hub.RoomChannel(roomID))

	require.NoError(t, f.svc.MarkRead(ctx, roomID, b))
	count, err := f.svc.UnreadCount(ctx, roomID, b)
	require.NoError(t, err)
	assert.Equal(t, 0, count)
	assert.Contains(t, string(recv(t, roomSub)), `"type":"read.status"`)

	// A second mark-read is harmless and still broadcasts.
	require.NoError(t, f.svc.MarkRead(ctx, roomID, b))
	assert.Contains(t, string(recv(t, roomSub)), `"type":"read.status"`)
}

func TestMarkReadPreservesReadAt(t *testing.T) {
	f := newChatFixture(t)
	a, b := uuid.New(), uuid.New()
	roomID := f.room(t, a, b)
	ctx := context.Background()

	msg, _, err := f.store.InsertMessage(ctx, roomID, a, "hi")
	require.NoError(t, err)

	first := time.Now().UTC()
	require.NoError(t, f.store.MarkRead(ctx, roomID, b, first))

	receipts, err := f.store.Receipts(ctx, msg.ID)
	require.NoError(t, err)
	require.Len(t, receipts, 1)
	require.True(t, receipts[0].IsRead)
	require.NotNil(t, receipts[0].ReadAt)
	assert.Equal(t, first, *receipts[0].ReadAt)

	// A later re-issue flips nothing and leaves read_at where it was.
	require.NoError(t, f.store.MarkRead(ctx, roomID, b, first.Add(time.Minute)))

	receipts, err = f.store.Receipts(ctx, msg.ID)
	require.NoError(t, err)
	require.Len(t, receipts, 1)
	require.NotNil(t, receipts[0].ReadAt)
	assert.Equal(t, first, *receipts[0].ReadAt)
}

func TestMarkReadNonParticipant(t *testing.T) {
	f := newChatFixture(t)
	a, stranger := uuid.New(), uuid.New()
	roomID := f.room(t, a)

	err := f.svc.MarkRead(context.Background(), roomID, stranger)
	assert.ErrorIs(t, err, comms_errors.ErrForbidden)
}

func TestSendMessageContentBounds(t *testing.T) {
	f := newChatFixture(t)
	a := uuid.New()
	roomID := f.room(t, a)
	ctx := context.Background()

	_, err := f.svc.SendMessage(ctx, roomID, a, "")
	assert.ErrorIs(t, err, comms_errors.ErrInvalidInput)

	_, err = f.svc.SendMessage(ctx, roomID, a, strings.Repeat("x", 4097))
	assert.ErrorIs(t, err, comms_errors.ErrInvalidInput)

	_, err = f.svc.SendMessage(ctx, roomID, a, strings.Repeat("x", 4096))
	assert.NoError(t, err)
}

func TestGroupFlagFlipsOnceAndSticks(t *testing.T) {
	f := newChatFixture(t)
	a, b, c := uuid.New(), uuid.New(), uuid.New()
	roomID := f.room(t, a, b)
	ctx := context.Background()

	room, err := f.store.GetRoom(ctx, roomID)
	require.NoError(t, err)
	assert.False(t, room.IsGroup)

	_, err = f.svc.AddParticipants(ctx, roomID, a, []uuid.UUID{c})
	require.NoError(t, err)
	room, err = f.store.GetRoom(ctx, roomID)
	require.NoError(t, err)
	assert.True(t, room.IsGroup)

	// Dropping back to two members does not clear the flag.
	require.NoError(t, f.svc.LeaveRoom(ctx, roomID, c))
	room, err = f.store.GetRoom(ctx, roomID)
	require.NoError(t, err)
	assert.True(t, room.IsGroup)
}

func TestAddParticipantsRequiresMembership(t *testing.T) {
	f := newChatFixture(t)
	a, stranger := uuid.New(), uuid.New()
	roomID := f.room(t, a)

	_, err := f.svc.AddParticipants(context.Background(), roomID, stranger, []uuid.UUID{uuid.New()})
	assert.ErrorIs(t, err, comms_errors.ErrForbidden)
}

func TestListRoomsOrderAndUnread(t *testing.T) {
	f := newChatFixture(t)
	a, b := uuid.New(), uuid.New()
	first := f.room(t, a, b)
	second := f.room(t, a, b)
	ctx := context.Background()

	_, err := f.svc.SendMessage(ctx, second, b, "newer room first")
	require.NoError(t, err)
	time.Sleep(2 * time.Millisecond)
	_, err = f.svc.SendMessage(ctx, first, b, "now this one is newest")
	require.NoError(t, err)

	rooms, err := f.svc.ListRooms(ctx, a)
	require.NoError(t, err)
	require.Len(t, rooms, 2)
	assert.Equal(t, first, rooms[0].ID)
	assert.Equal(t, 1, rooms[0].UnreadCount)
	assert.Equal(t, "now this one is newest", rooms[0].LastPreview)
}

func TestInitiateCallCreatesRoomMessageAndNotification(t *testing.T) {
	f := newChatFixture(t)
	a, b := uuid.New(), uuid.New()
	roomID := f.room(t, a, b)
	ctx := context.Background()

	roomSub := f.hub.Subscribe(hub.RoomChannel(roomID))

	call, err := f.svc.InitiateCall(ctx, roomID, a)
	require.NoError(t, err)
	assert.True(t, call.IsActive)
	require.NotNil(t, call.ChatRoomID)
	assert.Equal(t, roomID, *call.ChatRoomID)

	ok, err := f.store.IsCallParticipant(ctx, call.ID, a)
	require.NoError(t, err)
	assert.True(t, ok)

	msgs, err := f.svc.History(ctx, roomID, nil, 10)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "Started a video call", msgs[0].Content)

	// chat.message then the started notification, in publish order.
	assert.Contains(t, string(recv(t, roomSub)), `"type":"chat.message"`)
	assert.Contains(t, string(recv(t, roomSub)), `"type":"notification.video_call_started"`)
}

func TestInviteToCall(t *testing.T) {
	f := newChatFixture(t)
	a, b, stranger := uuid.New(), uuid.New(), uuid.New()
	roomID := f.room(t, a, b)
	ctx := context.Background()

	call, err := f.svc.InitiateCall(ctx, roomID, a)
	require.NoError(t, err)

	recipientSub := f.hub.Subscribe(hub.UserChannel(b))
	require.NoError(t, f.svc.InviteToCall(ctx, roomID, a, b, call.ID))
	assert.Contains(t, string(recv(t, recipientSub)), `"type":"notification.video_call_invitation"`)

	err = f.svc.InviteToCall(ctx, roomID, a, stranger, call.ID)
	assert.ErrorIs(t, err, comms_errors.ErrNotFound)
}
