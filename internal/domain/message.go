package domain

import (
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

// PreviewLength is the number of characters carried in new-message
// notifications and room listings.
const PreviewLength = 50

// Message is immutable once written. IDs are UUIDv7 so that sorting by id is
// sorting by send time.
type Message struct {
	ID       uuid.UUID `json:"id"`
	RoomID   uuid.UUID `json:"room_id"`
	SenderID uuid.UUID `json:"sender_id"`
	Content  string    `json:"content"`
	SentAt   time.Time `json:"sent_at"`
}

// Preview returns the truncated content used in notifications.
func (m Message) Preview() string {
	return Truncate(m.Content, PreviewLength)
}

// Truncate shortens s to at most n runes without splitting a rune.
func Truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n])
}

// Receipt is per-recipient read state for a single message. It transitions
// once, unread to read, and never back.
type Receipt struct {
	MessageID   uuid.UUID  `json:"message_id"`
	RecipientID uuid.UUID  `json:"recipient_id"`
	IsRead      bool       `json:"is_read"`
	ReadAt      *time.Time `json:"read_at,omitempty"`
}
