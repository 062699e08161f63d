package ws

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"startuphub-comms/internal/hub"
	"startuphub-comms/internal/observability"
	"startuphub-comms/internal/wire"
	comms_errors "startuphub-comms/pkg/errors"
)

// chatSession is one chat socket. Inbound frames are processed sequentially
// on the read loop; outbound frames are written by a single writer goroutine
// fed by the hub subscriptions and the session's own queue.
type chatSession struct {
	srv    *Server
	conn   *websocket.Conn
	roomID uuid.UUID
	userID uuid.UUID

	roomSub *hub.Subscription
	userSub *hub.Subscription
	out     chan []byte
	done    chan struct{}
	once    sync.Once
	limiter *rateLimiter
	log     *zap.Logger
}

func newChatSession(srv *Server, conn *websocket.Conn, roomID, userID uuid.UUID) *chatSession {
	return &chatSession{
		srv:     srv,
		conn:    conn,
		roomID:  roomID,
		userID:  userID,
		out:     make(chan []byte, 32),
		done:    make(chan struct{}),
		limiter: newRateLimiter(srv.limits.RateBurst, srv.limits.RateSustained),
		log: srv.logger.With(
			zap.String("room_id", roomID.String()),
			zap.String("user_id", userID.String())),
	}
}

// stop closes the session exactly once: close frame, then the socket, then
// the writer signal.
func (s *chatSession) stop(code int, reason string) {
	s.once.Do(func() {
		closeWith(s.conn, code, reason, s.srv.limits.WriteTimeout)
		s.conn.Close()
		close(s.done)
	})
}

// CloseOverLimit is invoked by the registry when a newer session pushes this
// one over the per-user cap.
func (s *chatSession) CloseOverLimit() {
	s.stop(CloseSessionLimit, "session limit exceeded")
}

func (s *chatSession) run(ctx context.Context) {
	member, err := s.srv.chat.Membership(ctx, s.roomID, s.userID)
	if err != nil {
		s.log.Warn("membership check failed", zap.Error(err))
		s.stop(websocket.CloseInternalServerErr, "membership check failed")
		return
	}
	if !member {
		s.stop(CloseNotAllowed, "not a participant")
		return
	}

	// Subscribe before the unread snapshot: a message arriving in between is
	// delivered live and double-counts at worst, which clients de-duplicate
	// by message id. The reverse order loses messages.
	s.roomSub = s.srv.hub.Subscribe(hub.RoomChannel(s.roomID))
	s.userSub = s.srv.hub.Subscribe(hub.UserChannel(s.userID))
	s.srv.registry.add(s.userID, s)
	observability.IncWSActive("chat")

	defer func() {
		if r := recover(); r != nil {
			s.log.Error("chat session panic", zap.Any("panic", r))
		}
		s.srv.hub.Unsubscribe(s.roomSub)
		s.srv.hub.Unsubscribe(s.userSub)
		s.srv.registry.remove(s.userID, s)
		s.srv.presence.Remove(s.roomID, s.userID)
		s.srv.hub.Publish(hub.RoomChannel(s.roomID),
			wire.PresenceStatus(s.roomID, s.userID, false, time.Now().UTC()))
		s.stop(websocket.CloseNormalClosure, "")
		observability.DecWSActive("chat")
	}()

	count, err := s.srv.chat.UnreadCount(ctx, s.roomID, s.userID)
	if err != nil {
		s.log.Warn("unread snapshot failed", zap.Error(err))
		s.stop(websocket.CloseInternalServerErr, "store unavailable")
		return
	}
	s.send(wire.UnreadCount(s.roomID, count, time.Now().UTC()))

	s.srv.presence.Touch(s.roomID, s.userID)
	s.srv.hub.Publish(hub.RoomChannel(s.roomID),
		wire.PresenceStatus(s.roomID, s.userID, true, time.Now().UTC()))

	go s.writeLoop()
	s.readLoop(ctx)
}

// send queues a frame for the session's own socket. Dropping under a full
// queue is acceptable: these are advisory frames and the hub path has its
// own backpressure handling.
func (s *chatSession) send(frame []byte) {
	select {
	case s.out <- frame:
	default:
		s.log.Warn("session queue full, frame dropped")
	}
}

func (s *chatSession) writeLoop() {
	for {
		var frame []byte
		select {
		case <-s.done:
			return
		case frame = <-s.out:
		case frame = <-s.roomSub.Frames():
		case frame = <-s.userSub.Frames():
		case <-s.roomSub.Done():
			s.closeForSub(s.roomSub)
			return
		case <-s.userSub.Done():
			s.closeForSub(s.userSub)
			return
		}

		_ = s.conn.SetWriteDeadline(time.Now().Add(s.srv.limits.WriteTimeout))
		if err := s.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
			s.stop(websocket.CloseInternalServerErr, "write failed")
			return
		}
	}
}

func (s *chatSession) closeForSub(sub *hub.Subscription) {
	if errors.Is(sub.Err(), comms_errors.ErrQueueFull) {
		s.stop(CloseBackpressure, "backpressure eviction")
		return
	}
	s.stop(websocket.CloseNormalClosure, "")
}

func (s *chatSession) readLoop(ctx context.Context) {
	s.conn.SetReadLimit(s.srv.limits.MaxFrameBytes)
	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			// Oversize frames get the 1009 close from the read limit.
			if errors.Is(err, websocket.ErrReadLimit) {
				s.stop(websocket.CloseMessageTooBig, "frame too large")
			}
			return
		}

		s.srv.presence.Touch(s.roomID, s.userID)

		in, ok := wire.Decode(data)
		if !ok {
			s.send(errorFrame(comms_errors.ErrInvalidInput))
			continue
		}
		observability.IncWSFrame("chat", in.Type)

		if !s.limiter.allow() {
			s.send(errorFrame(comms_errors.ErrRateLimited))
			continue
		}

		if err := s.handle(ctx, in); err != nil {
			if comms_errors.Internal(err) {
				s.log.Error("frame handling failed", zap.String("type", in.Type), zap.Error(err))
				s.stop(websocket.CloseInternalServerErr, "internal error")
				return
			}
			s.send(errorFrame(err))
		}
	}
}

func (s *chatSession) handle(ctx context.Context, in wire.Inbound) error {
	switch in.Type {
	case wire.TypeChatMessage:
		_, err := s.srv.chat.SendMessage(ctx, s.roomID, s.userID, in.Content)
		return err
	case wire.TypeTypingStatus:
		s.srv.chat.Typing(s.roomID, s.userID, in.IsTyping)
		return nil
	case wire.TypeMarkRead:
		return s.srv.chat.MarkRead(ctx, s.roomID, s.userID)
	case wire.TypePing:
		s.send(wire.Pong(time.Now().UTC()))
		return nil
	case wire.TypeInitiateVideoCall:
		_, err := s.srv.chat.InitiateCall(ctx, s.roomID, s.userID)
		return err
	case wire.TypeInviteToVideoCall:
		if in.RecipientID == uuid.Nil || in.CallID == uuid.Nil {
			return comms_errors.ErrInvalidInput
		}
		return s.srv.chat.InviteToCall(ctx, s.roomID, s.userID, in.RecipientID, in.CallID)
	default:
		return comms_errors.ErrInvalidInput
	}
}
