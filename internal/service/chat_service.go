package service

import (
	"context"
	"fmt"
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

// DefaultStoreTimeout bounds every store call made on behalf of a client.
const DefaultStoreTimeout = 2 * time.Second

// DefaultMaxContentBytes bounds chat message content.
const DefaultMaxContentBytes = 4096

// ChatService implements the chat verbs once, shared by WebSocket sessions
// and the REST handlers.
type ChatService struct {
	store    store.Store
	hub      *hub.Hub
	presence *presence.Tracker
	logger   *zap.Logger

	storeTimeout time.Duration
	maxContent   int
	now          func() time.Time
}

// ChatOptions tunes a ChatService; zero values take the defaults.
type ChatOptions struct {
	StoreTimeout    time.Duration
	MaxContentBytes int
}

func NewChatService(st store.Store, h *hub.Hub, tr *presence.Tracker, logger *zap.Logger, opts ChatOptions) *ChatService {
	if opts.StoreTimeout <= 0 {
		opts.StoreTimeout = DefaultStoreTimeout
	}
	if opts.MaxContentBytes <= 0 {
		opts.MaxContentBytes = DefaultMaxContentBytes
	}
	return &ChatService{
		store:        st,
		hub:          h,
		presence:     tr,
		logger:       logger,
		storeTimeout: opts.StoreTimeout,
		maxContent:   opts.MaxContentBytes,
		now:          time.Now,
	}
}

func (s *ChatService) storeCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.storeTimeout)
}

// Membership reports whether user belongs to room. Sessions gate JOINING on it.
func (s *ChatService) Membership(ctx context.Context, roomID, userID uuid.UUID) (bool, error) {
	ctx, cancel := s.storeCtx(ctx)
	defer cancel()
	return s.store.IsParticipant(ctx, roomID, userID)
}

// SendMessage persists the message with its receipts, broadcasts it on the
// room channel and alerts every recipient's user channel. The sender never
// receives their own alert.
func (s *ChatService) SendMessage(ctx context.Context, roomID, senderID uuid.UUID, content string) (domain.Message, error) {
	if n := len(content); n == 0 || n > s.maxContent {
		return domain.Message{}, fmt.Errorf("content length %d: %w", n, comms_errors.ErrInvalidInput)
	}

	sctx, cancel := s.storeCtx(ctx)
	defer cancel()
	msg, receipts, err := s.store.InsertMessage(sctx, roomID, senderID, content)
	if err != nil {
		return domain.Message{}, err
	}

	ts := s.now().UTC()
	s.hub.Publish(hub.RoomChannel(roomID), wire.ChatMessage(msg, ts))
	alert := wire.NewMessage(msg, ts)
	for _, rc := range receipts {
		s.hub.Publish(hub.UserChannel(rc.RecipientID), alert)
	}
	return msg, nil
}

// MarkRead flips the caller's unread receipts in the room and broadcasts
// read.status. Re-issuing is harmless and still broadcasts.
func (s *ChatService) MarkRead(ctx context.Context, roomID, userID uuid.UUID) error {
	at := s.now().UTC()
	sctx, cancel := s.storeCtx(ctx)
	defer cancel()
	if err := s.store.MarkRead(sctx, roomID, userID, at); err != nil {
		return err
	}
	s.hub.Publish(hub.RoomChannel(roomID), wire.ReadStatus(roomID, userID, at))
	return nil
}

// Typing broadcasts a typing indicator. Nothing is persisted.
func (s *ChatService) Typing(roomID, userID uuid.UUID, isTyping bool) {
	s.hub.Publish(hub.RoomChannel(roomID), wire.TypingStatus(roomID, userID, isTyping, s.now().UTC()))
}

// UnreadCount reads the caller's unread count in a room.
func (s *ChatService) UnreadCount(ctx context.Context, roomID, userID uuid.UUID) (int, error) {
	sctx, cancel := s.storeCtx(ctx)
	defer cancel()
	return s.store.UnreadCount(sctx, roomID, userID)
}

// History pages message history, newest first.
func (s *ChatService) History(ctx context.Context, roomID uuid.UUID, beforeID *uuid.UUID, limit int) ([]domain.Message, error) {
	sctx, cancel := s.storeCtx(ctx)
	defer cancel()
	return s.store.RecentMessages(sctx, roomID, beforeID, limit)
}

// CreateRoom creates a room owned by the caller.
func (s *ChatService) CreateRoom(ctx context.Context, name string, isGroup bool, creator uuid.UUID, members []uuid.UUID) (domain.Room, error) {
	sctx, cancel := s.storeCtx(ctx)
	defer cancel()
	return s.store.CreateRoom(sctx, name, isGroup, creator, members)
}

// ListRooms lists the caller's rooms with unread counts and previews.
func (s *ChatService) ListRooms(ctx context.Context, userID uuid.UUID) ([]domain.RoomSummary, error) {
	sctx, cancel := s.storeCtx(ctx)
	defer cancel()
	return s.store.ListRooms(sctx, userID)
}

// AddParticipants admits users to a room; only an existing participant may
// add. Each admitted user's channel gets a presence.status so open sessions
// learn about the membership change without polling.
func (s *ChatService) AddParticipants(ctx context.Context, roomID, actor uuid.UUID, userIDs []uuid.UUID) ([]uuid.UUID, error) {
	member, err := s.Membership(ctx, roomID, actor)
	if err != nil {
		return nil, err
	}
	if !member {
		return nil, comms_errors.ErrForbidden
	}

	sctx, cancel := s.storeCtx(ctx)
	defer cancel()
	added, err := s.store.AddParticipants(sctx, roomID, userIDs)
	if err != nil {
		return nil, err
	}

	ts := s.now().UTC()
	for _, u := range added {
		s.hub.Publish(hub.RoomChannel(roomID), wire.PresenceStatus(roomID, u, false, ts))
	}
	return added, nil
}

// LeaveRoom removes the caller's own membership.
func (s *ChatService) LeaveRoom(ctx context.Context, roomID, userID uuid.UUID) error {
	sctx, cancel := s.storeCtx(ctx)
	defer cancel()
	if err := s.store.RemoveParticipant(sctx, roomID, userID); err != nil {
		return err
	}
	s.presence.Remove(roomID, userID)
	s.hub.Publish(hub.RoomChannel(roomID), wire.PresenceStatus(roomID, userID, false, s.now().UTC()))
	return nil
}

// InitiateCall starts a video call from a chat room: a CallRoom linked to the
// room, the initiator as first participant, a synthetic chat message, and a
// room-wide started notification.
func (s *ChatService) InitiateCall(ctx context.Context, roomID, userID uuid.UUID) (domain.CallRoom, error) {
	member, err := s.Membership(ctx, roomID, userID)
	if err != nil {
		return domain.CallRoom{}, err
	}
	if !member {
		return domain.CallRoom{}, comms_errors.ErrForbidden
	}

	sctx, cancel := s.storeCtx(ctx)
	defer cancel()
	call, err := s.store.CreateCallRoom(sctx, &roomID, userID, 0, false)
	if err != nil {
		return domain.CallRoom{}, err
	}

	if _, err := s.SendMessage(ctx, roomID, userID, "Started a video call"); err != nil {
		s.logger.Warn("call start message not recorded",
			zap.String("call_id", call.ID.String()), zap.Error(err))
	}
	s.hub.Publish(hub.RoomChannel(roomID), wire.VideoCallStarted(call.ID, roomID, userID, s.now().UTC()))
	return call, nil
}

// InviteToCall invites a fellow room member to a running call. The recipient
// gets a direct notification and the room an informational copy.
func (s *ChatService) InviteToCall(ctx context.Context, roomID, senderID, recipientID, callID uuid.UUID) error {
	member, err := s.Membership(ctx, roomID, recipientID)
	if err != nil {
		return err
	}
	if !member {
		return fmt.Errorf("recipient not in room: %w", comms_errors.ErrNotFound)
	}

	sctx, cancel := s.storeCtx(ctx)
	defer cancel()
	call, err := s.store.GetCallRoom(sctx, callID)
	if err != nil {
		return err
	}
	if !call.IsActive {
		return comms_errors.ErrCallEnded
	}

	if _, err := s.SendMessage(ctx, roomID, senderID, "Invited a teammate to the video call"); err != nil {
		s.logger.Warn("call invite message not recorded",
			zap.String("call_id", callID.String()), zap.Error(err))
	}
	ts := s.now().UTC()
	frame := wire.VideoCallInvitation(callID, roomID, senderID, recipientID, ts)
	s.hub.Publish(hub.UserChannel(recipientID), frame)
	s.hub.Publish(hub.RoomChannel(roomID), frame)
	return nil
}
