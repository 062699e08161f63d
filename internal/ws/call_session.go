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
	"startuphub-comms/internal/store"
	"startuphub-comms/internal/wire"
	comms_errors "startuphub-comms/pkg/errors"
)

// callSession is one call socket. Signaling frames pass through to the call
// channel untouched; only mute flags and call lifecycle touch the store.
type callSession struct {
	srv    *Server
	conn   *websocket.Conn
	callID uuid.UUID
	userID uuid.UUID

	callSub *hub.Subscription
	out     chan []byte
	done    chan struct{}
	once    sync.Once
	limiter *rateLimiter
	log     *zap.Logger
}

func newCallSession(srv *Server, conn *websocket.Conn, callID, userID uuid.UUID) *callSession {
	return &callSession{
		srv:     srv,
		conn:    conn,
		callID:  callID,
		userID:  userID,
		out:     make(chan []byte, 32),
		done:    make(chan struct{}),
		limiter: newRateLimiter(srv.limits.RateBurst, srv.limits.RateSustained),
		log: srv.logger.With(
			zap.String("call_id", callID.String()),
			zap.String("user_id", userID.String())),
	}
}

func (s *callSession) stop(code int, reason string) {
	s.once.Do(func() {
		closeWith(s.conn, code, reason, s.srv.limits.WriteTimeout)
		s.conn.Close()
		close(s.done)
	})
}

func (s *callSession) CloseOverLimit() {
	s.stop(CloseSessionLimit, "session limit exceeded")
}

func (s *callSession) run(ctx context.Context) {
	if err := s.srv.calls.Admission(ctx, s.callID, s.userID); err != nil {
		switch comms_errors.Kind(err) {
		case "forbidden", "not_found", "conflict":
			s.stop(CloseNotAllowed, "not admitted to call")
		default:
			s.log.Warn("call admission failed", zap.Error(err))
			s.stop(websocket.CloseInternalServerErr, "admission check failed")
		}
		return
	}

	s.callSub = s.srv.hub.Subscribe(hub.RoomChannel(s.callID))
	s.srv.registry.add(s.userID, s)
	observability.IncWSActive("call")

	defer func() {
		if r := recover(); r != nil {
			s.log.Error("call session panic", zap.Any("panic", r))
		}
		s.srv.hub.Unsubscribe(s.callSub)
		s.srv.registry.remove(s.userID, s)
		s.srv.presence.Remove(s.callID, s.userID)
		s.srv.hub.Publish(hub.RoomChannel(s.callID),
			wire.PresenceStatus(s.callID, s.userID, false, time.Now().UTC()))
		s.stop(websocket.CloseNormalClosure, "")
		observability.DecWSActive("call")
	}()

	s.srv.presence.Touch(s.callID, s.userID)
	s.srv.hub.Publish(hub.RoomChannel(s.callID),
		wire.PresenceStatus(s.callID, s.userID, true, time.Now().UTC()))

	go s.writeLoop()
	s.readLoop(ctx)
}

func (s *callSession) send(frame []byte) {
	select {
	case s.out <- frame:
	default:
		s.log.Warn("session queue full, frame dropped")
	}
}

func (s *callSession) writeLoop() {
	for {
		var frame []byte
		select {
		case <-s.done:
			return
		case frame = <-s.out:
		case frame = <-s.callSub.Frames():
		case <-s.callSub.Done():
			if errors.Is(s.callSub.Err(), comms_errors.ErrQueueFull) {
				s.stop(CloseBackpressure, "backpressure eviction")
			} else {
				s.stop(websocket.CloseNormalClosure, "")
			}
			return
		}

		_ = s.conn.SetWriteDeadline(time.Now().Add(s.srv.limits.WriteTimeout))
		if err := s.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
			s.stop(websocket.CloseInternalServerErr, "write failed")
			return
		}
	}
}

func (s *callSession) readLoop(ctx context.Context) {
	s.conn.SetReadLimit(s.srv.limits.MaxFrameBytes)
	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			if errors.Is(err, websocket.ErrReadLimit) {
				s.stop(websocket.CloseMessageTooBig, "frame too large")
			}
			return
		}

		s.srv.presence.Touch(s.callID, s.userID)

		in, ok := wire.Decode(data)
		if !ok {
			s.send(errorFrame(comms_errors.ErrInvalidInput))
			continue
		}
		observability.IncWSFrame("call", in.Type)

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

func (s *callSession) handle(ctx context.Context, in wire.Inbound) error {
	switch in.Type {
	case wire.TypeSendOffer, wire.TypeSendAnswer:
		if len(in.SDP) == 0 {
			return comms_errors.ErrInvalidInput
		}
		return s.srv.calls.Signal(s.callID, s.userID, in.Type, in.SDP)
	case wire.TypeSendICECandidate:
		if len(in.Candidate) == 0 {
			return comms_errors.ErrInvalidInput
		}
		return s.srv.calls.Signal(s.callID, s.userID, in.Type, in.Candidate)
	case wire.TypeMuteAudio:
		return s.srv.calls.SetMute(ctx, s.callID, s.userID, store.TrackAudio, in.Muted)
	case wire.TypeMuteVideo:
		return s.srv.calls.SetMute(ctx, s.callID, s.userID, store.TrackVideo, in.Muted)
	case wire.TypeRequestParticipants:
		parts, err := s.srv.calls.ActiveParticipants(ctx, s.callID)
		if err != nil {
			return err
		}
		s.send(wire.ParticipantsList(s.callID, parts, time.Now().UTC()))
		return nil
	case wire.TypeEndCall:
		return s.srv.calls.EndCall(ctx, s.callID, s.userID)
	case wire.TypePing:
		s.send(wire.Pong(time.Now().UTC()))
		return nil
	default:
		return comms_errors.ErrInvalidInput
	}
}
