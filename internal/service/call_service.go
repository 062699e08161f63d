package service

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"startuphub-comms/internal/domain"
	"startuphub-comms/internal/hub"
	"startuphub-comms/internal/presence"
	"startuphub-comms/internal/store"
	"startuphub-comms/internal/wire"
	comms_errors "startuphub-comms/pkg/errors"
)

// CallService brokers WebRTC signaling and call-room state. Signaling
// payloads pass through untouched and are never persisted.
type CallService struct {
	store    store.Store
	hub      *hub.Hub
	presence *presence.Tracker
	logger   *zap.Logger

	storeTimeout time.Duration
	now          func() time.Time
}

func NewCallService(st store.Store, h *hub.Hub, tr *presence.Tracker, logger *zap.Logger, storeTimeout time.Duration) *CallService {
	if storeTimeout <= 0 {
		storeTimeout = DefaultStoreTimeout
	}
	return &CallService{
		store:        st,
		hub:          h,
		presence:     tr,
		logger:       logger,
		storeTimeout: storeTimeout,
		now:          time.Now,
	}
}

func (s *CallService) storeCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.storeTimeout)
}

// Admission gates a call session's JOINING state: the user must already hold
// a participant row and the call must still be active.
func (s *CallService) Admission(ctx context.Context, callID, userID uuid.UUID) error {
	sctx, cancel := s.storeCtx(ctx)
	defer cancel()

	call, err := s.store.GetCallRoom(sctx, callID)
	if err != nil {
		return err
	}
	if !call.IsActive {
		return comms_errors.ErrCallEnded
	}
	ok, err := s.store.IsCallParticipant(sctx, callID, userID)
	if err != nil {
		return err
	}
	if !ok {
		return comms_errors.ErrForbidden
	}
	return nil
}

// CreateCall creates a call room with the creator admitted.
func (s *CallService) CreateCall(ctx context.Context, chatRoomID *uuid.UUID, creator uuid.UUID, maxParticipants int, recording bool) (domain.CallRoom, error) {
	sctx, cancel := s.storeCtx(ctx)
	defer cancel()
	return s.store.CreateCallRoom(sctx, chatRoomID, creator, maxParticipants, recording)
}

// JoinCall admits a user, enforcing the participant cap, and announces them
// on the call channel.
func (s *CallService) JoinCall(ctx context.Context, callID, userID uuid.UUID) (domain.CallParticipant, error) {
	sctx, cancel := s.storeCtx(ctx)
	defer cancel()
	part, err := s.store.JoinCall(sctx, callID, userID)
	if err != nil {
		return domain.CallParticipant{}, err
	}
	s.hub.Publish(hub.RoomChannel(callID), wire.PresenceStatus(callID, userID, true, s.now().UTC()))
	return part, nil
}

// LeaveCall drops a user's participant row and announces the departure.
func (s *CallService) LeaveCall(ctx context.Context, callID, userID uuid.UUID) error {
	sctx, cancel := s.storeCtx(ctx)
	defer cancel()
	if err := s.store.LeaveCall(sctx, callID, userID); err != nil {
		return err
	}
	s.presence.Remove(callID, userID)
	s.hub.Publish(hub.RoomChannel(callID), wire.PresenceStatus(callID, userID, false, s.now().UTC()))
	return nil
}

// Signal forwards one signaling frame to every session on the call. The
// payload is opaque: no SDP or ICE parsing, no persistence.
func (s *CallService) Signal(callID, senderID uuid.UUID, frameType string, payload json.RawMessage) error {
	ts := s.now().UTC()
	var frame []byte
	switch frameType {
	case wire.TypeSendOffer:
		frame = wire.Offer(senderID, payload, ts)
	case wire.TypeSendAnswer:
		frame = wire.Answer(senderID, payload, ts)
	case wire.TypeSendICECandidate:
		frame = wire.ICECandidate(senderID, payload, ts)
	default:
		return comms_errors.ErrInvalidInput
	}
	s.hub.Publish(hub.RoomChannel(callID), frame)
	return nil
}

// SetMute records the mute flag and broadcasts audio_status or video_status.
func (s *CallService) SetMute(ctx context.Context, callID, userID uuid.UUID, track store.Track, muted bool) error {
	sctx, cancel := s.storeCtx(ctx)
	defer cancel()
	if err := s.store.SetMute(sctx, callID, userID, track, muted); err != nil {
		return err
	}
	frameType := wire.TypeAudioStatus
	if track == store.TrackVideo {
		frameType = wire.TypeVideoStatus
	}
	s.hub.Publish(hub.RoomChannel(callID), wire.MuteStatus(frameType, callID, userID, muted, s.now().UTC()))
	return nil
}

// ActiveParticipants returns the participants whose presence is fresh.
func (s *CallService) ActiveParticipants(ctx context.Context, callID uuid.UUID) ([]wire.ParticipantInfo, error) {
	sctx, cancel := s.storeCtx(ctx)
	defer cancel()
	parts, err := s.store.CallParticipants(sctx, callID)
	if err != nil {
		return nil, err
	}
	var out []wire.ParticipantInfo
	for _, p := range parts {
		if !s.presence.IsOnline(callID, p.UserID) {
			continue
		}
		out = append(out, wire.ParticipantInfo{
			UserID:     p.UserID,
			JoinedAt:   p.JoinedAt,
			AudioMuted: p.AudioMuted,
			VideoMuted: p.VideoMuted,
		})
	}
	return out, nil
}

// EndCall flips the call inactive and broadcasts the ended notification.
// Only participants may end a call. Ending an already-ended call is a no-op
// that still notifies.
func (s *CallService) EndCall(ctx context.Context, callID, endedBy uuid.UUID) error {
	sctx, cancel := s.storeCtx(ctx)
	defer cancel()
	ok, err := s.store.IsCallParticipant(sctx, callID, endedBy)
	if err != nil {
		return err
	}
	if !ok {
		// A missing call stays a not-found, not a forbidden.
		if _, err := s.store.GetCallRoom(sctx, callID); err != nil {
			return err
		}
		return comms_errors.ErrForbidden
	}
	if err := s.store.EndCall(sctx, callID); err != nil {
		return err
	}
	s.hub.Publish(hub.RoomChannel(callID), wire.VideoCallEnded(callID, endedBy, s.now().UTC()))
	s.logger.Info("call ended",
		zap.String("call_id", callID.String()),
		zap.String("ended_by", endedBy.String()))
	return nil
}
