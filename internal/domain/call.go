package domain

import (
	"time"

	"github.com/google/uuid"
)

// CallRoom is the signaling scope of a video call. It may reference the chat
// room it was started from. is_active flips to false exactly once, on end_call.
type CallRoom struct {
	ID                 uuid.UUID  `json:"id"`
	ChatRoomID         *uuid.UUID `json:"chat_room_id,omitempty"`
	CreatedBy          uuid.UUID  `json:"created_by"`
	IsActive           bool       `json:"is_active"`
	MaxParticipants    int        `json:"max_participants"`
	IsRecordingEnabled bool       `json:"is_recording_enabled"`
	CreatedAt          time.Time  `json:"created_at"`
}

// CallParticipant mirrors Participant for call rooms, plus mute flags.
type CallParticipant struct {
	CallID       uuid.UUID `json:"call_id"`
	UserID       uuid.UUID `json:"user_id"`
	JoinedAt     time.Time `json:"joined_at"`
	LastActiveAt time.Time `json:"last_active_at"`
	AudioMuted   bool      `json:"audio_muted"`
	VideoMuted   bool      `json:"video_muted"`
}
