package domain

import (
	"time"

	"github.com/google/uuid"
)

// Room is the persistent scope of a chat and the unit of hub broadcast.
// updated_at advances on every message insert.
type Room struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	IsGroup   bool      `json:"is_group"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Participant is a (room, user) membership row; the gate for join/publish.
type Participant struct {
	RoomID       uuid.UUID  `json:"room_id"`
	UserID       uuid.UUID  `json:"user_id"`
	JoinedAt     time.Time  `json:"joined_at"`
	LastReadAt   *time.Time `json:"last_read_at,omitempty"`
	LastActiveAt *time.Time `json:"last_active_at,omitempty"`
}

// RoomSummary is a room as listed for a caller: ordered by recency, with the
// caller's unread count and a preview of the newest message.
type RoomSummary struct {
	Room
	UnreadCount int    `json:"unread_count"`
	LastPreview string `json:"last_message_preview,omitempty"`
}
