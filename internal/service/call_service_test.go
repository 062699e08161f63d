package service

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"startuphub-comms/internal/hub"
	"startuphub-comms/internal/presence"
	"startuphub-comms/internal/store"
	"startuphub-comms/internal/wire"
	comms_errors "startuphub-comms/pkg/errors"
)

type callFixture struct {
	svc      *CallService
	store    *store.Mem
	hub      *hub.Hub
	presence *presence.Tracker
}

func newCallFixture(t *testing.T) *callFixture {
	t.Helper()
	st := store.NewMem(store.Limits{})
	h := hub.New(zap.NewNop(), hub.Options{})
	tr := presence.NewTracker(0)
	return &callFixture{
		svc:      NewCallService(st, h, tr, zap.NewNop(), 0),
		store:    st,
		hub:      h,
		presence: tr,
	}
}

func TestSignalForwardsVerbatimWithoutPersisting(t *testing.T) {
	f := newCallFixture(t)
	a, b := uuid.New(), uuid.New()
	ctx := context.Background()

	call, err := f.svc.CreateCall(ctx, nil, a, 0, false)
	require.NoError(t, err)
	_, err = f.svc.JoinCall(ctx, call.ID, b)
	require.NoError(t, err)

	sub := f.hub.Subscribe(hub.RoomChannel(call.ID))

	require.NoError(t, f.svc.Signal(call.ID, a, wire.TypeSendOffer, json.RawMessage(`"X"`)))

	frame := recv(t, sub)
	var got map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(frame, &got))
	assert.JSONEq(t, `"offer"`, string(got["type"]))
	assert.JSONEq(t, `"X"`, string(got["sdp"]))
	assert.JSONEq(t, `"`+a.String()+`"`, string(got["sender_id"]))

	// Nothing about the SDP reaches the store.
	parts, err := f.store.CallParticipants(ctx, call.ID)
	require.NoError(t, err)
	for _, p := range parts {
		assert.False(t, p.AudioMuted)
		assert.False(t, p.VideoMuted)
	}
}

func TestSignalRejectsUnknownType(t *testing.T) {
	f := newCallFixture(t)
	err := f.svc.Signal(uuid.New(), uuid.New(), "chat.message", json.RawMessage(`{}`))
	assert.ErrorIs(t, err, comms_errors.ErrInvalidInput)
}

func TestSetMuteBroadcastsStatus(t *testing.T) {
	f := newCallFixture(t)
	a := uuid.New()
	ctx := context.Background()

	call, err := f.svc.CreateCall(ctx, nil, a, 0, false)
	require.NoError(t, err)

	sub := f.hub.Subscribe(hub.RoomChannel(call.ID))

	require.NoError(t, f.svc.SetMute(ctx, call.ID, a, store.TrackAudio, true))
	assert.Contains(t, string(recv(t, sub)), `"type":"audio_status"`)

	require.NoError(t, f.svc.SetMute(ctx, call.ID, a, store.TrackVideo, true))
	assert.Contains(t, string(recv(t, sub)), `"type":"video_status"`)

	parts, err := f.store.CallParticipants(ctx, call.ID)
	require.NoError(t, err)
	require.Len(t, parts, 1)
	assert.True(t, parts[0].AudioMuted)
	assert.True(t, parts[0].VideoMuted)
}

func TestEndCallFlipsInactiveAndNotifies(t *testing.T) {
	f := newCallFixture(t)
	a := uuid.New()
	ctx := context.Background()

	call, err := f.svc.CreateCall(ctx, nil, a, 0, false)
	require.NoError(t, err)

	sub := f.hub.Subscribe(hub.RoomChannel(call.ID))
	require.NoError(t, f.svc.EndCall(ctx, call.ID, a))
	assert.Contains(t, string(recv(t, sub)), `"type":"notification.video_call_ended"`)

	got, err := f.store.GetCallRoom(ctx, call.ID)
	require.NoError(t, err)
	assert.False(t, got.IsActive)

	// Ending again is a no-op, not an error.
	require.NoError(t, f.svc.EndCall(ctx, call.ID, a))

	// And joins are rejected once ended.
	_, err = f.svc.JoinCall(ctx, call.ID, uuid.New())
	assert.ErrorIs(t, err, comms_errors.ErrCallEnded)
}

func TestEndCallRequiresParticipation(t *testing.T) {
	f := newCallFixture(t)
	a, stranger := uuid.New(), uuid.New()
	ctx := context.Background()

	call, err := f.svc.CreateCall(ctx, nil, a, 0, false)
	require.NoError(t, err)

	err = f.svc.EndCall(ctx, call.ID, stranger)
	assert.ErrorIs(t, err, comms_errors.ErrForbidden)

	// The call survives the attempt.
	got, err := f.store.GetCallRoom(ctx, call.ID)
	require.NoError(t, err)
	assert.True(t, got.IsActive)

	assert.ErrorIs(t, f.svc.EndCall(ctx, uuid.New(), a), comms_errors.ErrNotFound)
}

func TestAdmission(t *testing.T) {
	f := newCallFixture(t)
	a, stranger := uuid.New(), uuid.New()
	ctx := context.Background()

	call, err := f.svc.CreateCall(ctx, nil, a, 0, false)
	require.NoError(t, err)

	assert.NoError(t, f.svc.Admission(ctx, call.ID, a))
	assert.ErrorIs(t, f.svc.Admission(ctx, call.ID, stranger), comms_errors.ErrForbidden)
	assert.ErrorIs(t, f.svc.Admission(ctx, uuid.New(), a), comms_errors.ErrNotFound)

	require.NoError(t, f.svc.EndCall(ctx, call.ID, a))
	assert.ErrorIs(t, f.svc.Admission(ctx, call.ID, a), comms_errors.ErrCallEnded)
}

func TestJoinCallEnforcesCap(t *testing.T) {
	st := store.NewMem(store.Limits{MaxCallParticipants: 2})
	h := hub.New(zap.NewNop(), hub.Options{})
	tr := presence.NewTracker(0)
	svc := NewCallService(st, h, tr, zap.NewNop(), 0)
	ctx := context.Background()

	call, err := svc.CreateCall(ctx, nil, uuid.New(), 0, false)
	require.NoError(t, err)

	second := uuid.New()
	_, err = svc.JoinCall(ctx, call.ID, second)
	require.NoError(t, err)

	_, err = svc.JoinCall(ctx, call.ID, uuid.New())
	assert.ErrorIs(t, err, comms_errors.ErrRoomFull)

	// Rejoining an admitted user does not count against the cap.
	_, err = svc.JoinCall(ctx, call.ID, second)
	assert.NoError(t, err)
}

func TestActiveParticipantsFiltersByPresence(t *testing.T) {
	f := newCallFixture(t)
	a, b := uuid.New(), uuid.New()
	ctx := context.Background()

	call, err := f.svc.CreateCall(ctx, nil, a, 0, false)
	require.NoError(t, err)
	_, err = f.svc.JoinCall(ctx, call.ID, b)
	require.NoError(t, err)

	now := time.Now()
	f.presence.SetClock(func() time.Time { return now })
	f.presence.Touch(call.ID, a)
	f.presence.Touch(call.ID, b)

	parts, err := f.svc.ActiveParticipants(ctx, call.ID)
	require.NoError(t, err)
	assert.Len(t, parts, 2)

	// A goes silent past the window; only B remains active.
	now = now.Add(40 * time.Second)
	f.presence.Touch(call.ID, b)

	parts, err = f.svc.ActiveParticipants(ctx, call.ID)
	require.NoError(t, err)
	require.Len(t, parts, 1)
	assert.Equal(t, b, parts[0].UserID)
}
