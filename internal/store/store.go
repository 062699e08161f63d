package store

import (
	"context"
	"time"

	"github.com/google/uuid"

	"startuphub-comms/internal/domain"
)

// Track selects which media track a mute update applies to.
type Track string

const (
	TrackAudio Track = "audio"
	TrackVideo Track = "video"
)

// RoomStore manages rooms and their membership rows.
type RoomStore interface {
	// CreateRoom creates a room with the creator and initial members as
	// participants. is_group is forced on when membership exceeds two.
	CreateRoom(ctx context.Context, name string, isGroup bool, creator uuid.UUID, members []uuid.UUID) (domain.Room, error)
	GetRoom(ctx context.Context, roomID uuid.UUID) (domain.Room, error)
	// AddParticipants is idempotent and returns only the users actually added.
	// Membership above two promotes the room to a group, permanently.
	AddParticipants(ctx context.Context, roomID uuid.UUID, userIDs []uuid.UUID) ([]uuid.UUID, error)
	// RemoveParticipant deletes the membership row; receipts are preserved.
	RemoveParticipant(ctx context.Context, roomID, userID uuid.UUID) error
	IsParticipant(ctx context.Context, roomID, userID uuid.UUID) (bool, error)
	Participants(ctx context.Context, roomID uuid.UUID) ([]domain.Participant, error)
	// ListRooms returns the caller's rooms ordered by updated_at descending,
	// with unread counts and last-message previews.
	ListRooms(ctx context.Context, userID uuid.UUID) ([]domain.RoomSummary, error)
}

// MessageStore manages messages and read receipts.
type MessageStore interface {
	// InsertMessage writes the message, one unread receipt per current
	// participant except the sender, and bumps the room's updated_at, all in
	// one transaction. The participant set is snapshotted inside that
	// transaction so a concurrent join/leave cannot split the fan-out.
	InsertMessage(ctx context.Context, roomID, senderID uuid.UUID, content string) (domain.Message, []domain.Receipt, error)
	// MarkRead advances the participant's last_read_at and flips all their
	// unread receipts in the room, in one transaction. Idempotent: re-issuing
	// does not touch read_at of already-read receipts.
	MarkRead(ctx context.Context, roomID, userID uuid.UUID, at time.Time) error
	UnreadCount(ctx context.Context, roomID, userID uuid.UUID) (int, error)
	// Receipts returns a message's receipts, one per recipient.
	Receipts(ctx context.Context, messageID uuid.UUID) ([]domain.Receipt, error)
	// RecentMessages pages history descending by message id. beforeID nil
	// starts from the newest; limit is clamped to MaxHistoryPage.
	RecentMessages(ctx context.Context, roomID uuid.UUID, beforeID *uuid.UUID, limit int) ([]domain.Message, error)
}

// MaxHistoryPage bounds a single history read.
const MaxHistoryPage = 200

// CallStore manages call rooms and their participants.
type CallStore interface {
	CreateCallRoom(ctx context.Context, chatRoomID *uuid.UUID, creator uuid.UUID, maxParticipants int, recording bool) (domain.CallRoom, error)
	GetCallRoom(ctx context.Context, callID uuid.UUID) (domain.CallRoom, error)
	// JoinCall admits a user to an active call, enforcing max_participants.
	// Rejoining refreshes last_active_at.
	JoinCall(ctx context.Context, callID, userID uuid.UUID) (domain.CallParticipant, error)
	LeaveCall(ctx context.Context, callID, userID uuid.UUID) error
	IsCallParticipant(ctx context.Context, callID, userID uuid.UUID) (bool, error)
	CallParticipants(ctx context.Context, callID uuid.UUID) ([]domain.CallParticipant, error)
	SetMute(ctx context.Context, callID, userID uuid.UUID, track Track, muted bool) error
	// EndCall flips is_active to false. Ending an already-ended call is a
	// no-op.
	EndCall(ctx context.Context, callID uuid.UUID) error
}

// Store is the durable state of the communication plane.
type Store interface {
	RoomStore
	MessageStore
	CallStore
}

// Limits are the membership caps the store enforces.
type Limits struct {
	MaxRoomParticipants int
	MaxCallParticipants int
}

// DefaultLimits match the reference configuration.
var DefaultLimits = Limits{
	MaxRoomParticipants: 500,
	MaxCallParticipants: 20,
}

// NewMessageID allocates a time-sortable message id and the matching sent_at.
func NewMessageID() (uuid.UUID, time.Time, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.Nil, time.Time{}, err
	}
	sec, nsec := id.Time().UnixTime()
	return id, time.Unix(sec, nsec).UTC(), nil
}
