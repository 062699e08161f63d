// Package wire defines the JSON frame vocabulary spoken on the WebSocket
// endpoints and published through the hub. Every frame is an object with a
// required "type" field; server-emitted frames add a "timestamp".
package wire

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"startuphub-comms/internal/domain"
)

// Client-to-server frame types.
const (
	TypeChatMessage       = "chat.message"
	TypeTypingStatus      = "typing.status"
	TypeMarkRead          = "mark.read"
	TypePing              = "ping"
	TypeInitiateVideoCall = "initiate_video_call"
	TypeInviteToVideoCall = "invite_to_video_call"

	TypeSendOffer           = "send_offer"
	TypeSendAnswer          = "send_answer"
	TypeSendICECandidate    = "send_ice_candidate"
	TypeMuteAudio           = "mute_audio"
	TypeMuteVideo           = "mute_video"
	TypeRequestParticipants = "request_participants"
	TypeEndCall             = "end_call"
)

// Server-to-client frame types.
const (
	TypePong                = "pong"
	TypeUnreadCount         = "unread.count"
	TypeReadStatus          = "read.status"
	TypePresenceStatus      = "presence.status"
	TypeNewMessage          = "notification.new_message"
	TypeVideoCallStarted    = "notification.video_call_started"
	TypeVideoCallInvitation = "notification.video_call_invitation"
	TypeVideoCallEnded      = "notification.video_call_ended"
	TypeError               = "error"

	TypeOffer            = "offer"
	TypeAnswer           = "answer"
	TypeICECandidate     = "ice_candidate"
	TypeAudioStatus      = "audio_status"
	TypeVideoStatus      = "video_status"
	TypeParticipantsList = "participants_list"
)

// Inbound is the decoded envelope of a client frame. Only the fields for the
// given Type are meaningful; signaling payloads stay raw and are never parsed.
type Inbound struct {
	Type        string          `json:"type"`
	Content     string          `json:"content,omitempty"`
	IsTyping    bool            `json:"is_typing,omitempty"`
	RecipientID uuid.UUID       `json:"recipient_id,omitempty"`
	CallID      uuid.UUID       `json:"call_id,omitempty"`
	SDP         json.RawMessage `json:"sdp,omitempty"`
	Candidate   json.RawMessage `json:"candidate,omitempty"`
	Muted       bool            `json:"muted,omitempty"`
}

// Decode parses a client frame. A missing type is the caller's invalid_frame.
func Decode(data []byte) (Inbound, bool) {
	var in Inbound
	if err := json.Unmarshal(data, &in); err != nil || in.Type == "" {
		return Inbound{}, false
	}
	return in, true
}

func marshal(v any) []byte {
	b, err := json.Marshal(v)
	if err != nil {
		// All frame types below marshal unconditionally.
		panic(err)
	}
	return b
}

// ChatMessage is the room broadcast of a persisted message.
func ChatMessage(msg domain.Message, ts time.Time) []byte {
	return marshal(struct {
		Type      string    `json:"type"`
		ID        uuid.UUID `json:"id"`
		RoomID    uuid.UUID `json:"room_id"`
		SenderID  uuid.UUID `json:"sender_id"`
		Content   string    `json:"content"`
		SentAt    time.Time `json:"sent_at"`
		Timestamp time.Time `json:"timestamp"`
	}{TypeChatMessage, msg.ID, msg.RoomID, msg.SenderID, msg.Content, msg.SentAt, ts})
}

func TypingStatus(roomID, userID uuid.UUID, isTyping bool, ts time.Time) []byte {
	return marshal(struct {
		Type      string    `json:"type"`
		RoomID    uuid.UUID `json:"room_id"`
		UserID    uuid.UUID `json:"user_id"`
		IsTyping  bool      `json:"is_typing"`
		Timestamp time.Time `json:"timestamp"`
	}{TypeTypingStatus, roomID, userID, isTyping, ts})
}

func UnreadCount(roomID uuid.UUID, count int, ts time.Time) []byte {
	return marshal(struct {
		Type      string    `json:"type"`
		RoomID    uuid.UUID `json:"room_id"`
		Count     int       `json:"count"`
		Timestamp time.Time `json:"timestamp"`
	}{TypeUnreadCount, roomID, count, ts})
}

func ReadStatus(roomID, userID uuid.UUID, ts time.Time) []byte {
	return marshal(struct {
		Type      string    `json:"type"`
		RoomID    uuid.UUID `json:"room_id"`
		UserID    uuid.UUID `json:"user_id"`
		Timestamp time.Time `json:"timestamp"`
	}{TypeReadStatus, roomID, userID, ts})
}

// NewMessage is the per-recipient alert carrying a bounded preview, never
// sent to the message's author.
func NewMessage(msg domain.Message, ts time.Time) []byte {
	return marshal(struct {
		Type      string    `json:"type"`
		MessageID uuid.UUID `json:"message_id"`
		RoomID    uuid.UUID `json:"room_id"`
		SenderID  uuid.UUID `json:"sender_id"`
		Preview   string    `json:"preview"`
		Timestamp time.Time `json:"timestamp"`
	}{TypeNewMessage, msg.ID, msg.RoomID, msg.SenderID, msg.Preview(), ts})
}

func PresenceStatus(roomID, userID uuid.UUID, online bool, ts time.Time) []byte {
	return marshal(struct {
		Type      string    `json:"type"`
		RoomID    uuid.UUID `json:"room_id"`
		UserID    uuid.UUID `json:"user_id"`
		Online    bool      `json:"online"`
		Timestamp time.Time `json:"timestamp"`
	}{TypePresenceStatus, roomID, userID, online, ts})
}

func VideoCallStarted(callID, roomID, startedBy uuid.UUID, ts time.Time) []byte {
	return marshal(struct {
		Type      string    `json:"type"`
		CallID    uuid.UUID `json:"call_id"`
		RoomID    uuid.UUID `json:"room_id"`
		StartedBy uuid.UUID `json:"started_by"`
		Timestamp time.Time `json:"timestamp"`
	}{TypeVideoCallStarted, callID, roomID, startedBy, ts})
}

func VideoCallInvitation(callID, roomID, senderID, recipientID uuid.UUID, ts time.Time) []byte {
	return marshal(struct {
		Type        string    `json:"type"`
		CallID      uuid.UUID `json:"call_id"`
		RoomID      uuid.UUID `json:"room_id"`
		SenderID    uuid.UUID `json:"sender_id"`
		RecipientID uuid.UUID `json:"recipient_id"`
		Timestamp   time.Time `json:"timestamp"`
	}{TypeVideoCallInvitation, callID, roomID, senderID, recipientID, ts})
}

func VideoCallEnded(callID, endedBy uuid.UUID, ts time.Time) []byte {
	return marshal(struct {
		Type      string    `json:"type"`
		CallID    uuid.UUID `json:"call_id"`
		EndedBy   uuid.UUID `json:"ended_by"`
		Timestamp time.Time `json:"timestamp"`
	}{TypeVideoCallEnded, callID, endedBy, ts})
}

func Pong(ts time.Time) []byte {
	return marshal(struct {
		Type      string    `json:"type"`
		Timestamp time.Time `json:"timestamp"`
	}{TypePong, ts})
}

func Error(kind, message string, ts time.Time) []byte {
	return marshal(struct {
		Type      string    `json:"type"`
		Kind      string    `json:"kind"`
		Message   string    `json:"message"`
		Timestamp time.Time `json:"timestamp"`
	}{TypeError, kind, message, ts})
}

// Offer, Answer and ICECandidate wrap verbatim signaling payloads; the server
// attaches the sender and forwards without inspecting the body.
func Offer(senderID uuid.UUID, sdp json.RawMessage, ts time.Time) []byte {
	return signalSDP(TypeOffer, senderID, sdp, ts)
}

func Answer(senderID uuid.UUID, sdp json.RawMessage, ts time.Time) []byte {
	return signalSDP(TypeAnswer, senderID, sdp, ts)
}

func ICECandidate(senderID uuid.UUID, candidate json.RawMessage, ts time.Time) []byte {
	return marshal(struct {
		Type      string          `json:"type"`
		SenderID  uuid.UUID       `json:"sender_id"`
		Candidate json.RawMessage `json:"candidate"`
		Timestamp time.Time       `json:"timestamp"`
	}{TypeICECandidate, senderID, candidate, ts})
}

func signalSDP(frameType string, senderID uuid.UUID, sdp json.RawMessage, ts time.Time) []byte {
	return marshal(struct {
		Type      string          `json:"type"`
		SenderID  uuid.UUID       `json:"sender_id"`
		SDP       json.RawMessage `json:"sdp"`
		Timestamp time.Time       `json:"timestamp"`
	}{frameType, senderID, sdp, ts})
}

// MuteStatus renders audio_status or video_status.
func MuteStatus(frameType string, callID, userID uuid.UUID, muted bool, ts time.Time) []byte {
	return marshal(struct {
		Type      string    `json:"type"`
		CallID    uuid.UUID `json:"call_id"`
		UserID    uuid.UUID `json:"user_id"`
		Muted     bool      `json:"muted"`
		Timestamp time.Time `json:"timestamp"`
	}{frameType, callID, userID, muted, ts})
}

// ParticipantInfo is one entry of a participants_list response.
type ParticipantInfo struct {
	UserID     uuid.UUID `json:"user_id"`
	JoinedAt   time.Time `json:"joined_at"`
	AudioMuted bool      `json:"audio_muted"`
	VideoMuted bool      `json:"video_muted"`
}

func ParticipantsList(callID uuid.UUID, participants []ParticipantInfo, ts time.Time) []byte {
	if participants == nil {
		participants = []ParticipantInfo{}
	}
	return marshal(struct {
		Type         string            `json:"type"`
		CallID       uuid.UUID         `json:"call_id"`
		Participants []ParticipantInfo `json:"participants"`
		Timestamp    time.Time         `json:"timestamp"`
	}{TypeParticipantsList, callID, participants, ts})
}
