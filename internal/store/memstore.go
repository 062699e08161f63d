package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"startuphub-comms/internal/domain"
	comms_errors "startuphub-comms/pkg/errors"
)

// Mem is an in-memory Store with the same semantics as Postgres. It backs
// service and transport tests that do not want a database.
type Mem struct {
	mu     sync.Mutex
	limits Limits

	rooms        map[uuid.UUID]*domain.Room
	participants map[uuid.UUID]map[uuid.UUID]*domain.Participant
	messages     map[uuid.UUID][]domain.Message
	receipts     map[uuid.UUID]map[uuid.UUID]*domain.Receipt

	calls     map[uuid.UUID]*domain.CallRoom
	callParts map[uuid.UUID]map[uuid.UUID]*domain.CallParticipant
}

func NewMem(limits Limits) *Mem {
	if limits.MaxRoomParticipants <= 0 {
		limits.MaxRoomParticipants = DefaultLimits.MaxRoomParticipants
	}
	if limits.MaxCallParticipants <= 0 {
		limits.MaxCallParticipants = DefaultLimits.MaxCallParticipants
	}
	return &Mem{
		limits:       limits,
		rooms:        make(map[uuid.UUID]*domain.Room),
		participants: make(map[uuid.UUID]map[uuid.UUID]*domain.Participant),
		messages:     make(map[uuid.UUID][]domain.Message),
		receipts:     make(map[uuid.UUID]map[uuid.UUID]*domain.Receipt),
		calls:        make(map[uuid.UUID]*domain.CallRoom),
		callParts:    make(map[uuid.UUID]map[uuid.UUID]*domain.CallParticipant),
	}
}

func (m *Mem) CreateRoom(_ context.Context, name string, isGroup bool, creator uuid.UUID, members []uuid.UUID) (domain.Room, error) {
	users := dedupeWith(creator, members)
	if len(users) > m.limits.MaxRoomParticipants {
		return domain.Room{}, comms_errors.ErrRoomFull
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now().UTC()
	room := domain.Room{
		ID:        uuid.New(),
		Name:      name,
		IsGroup:   isGroup || len(users) > 2,
		CreatedAt: now,
		UpdatedAt: now,
	}
	m.rooms[room.ID] = &room
	m.participants[room.ID] = make(map[uuid.UUID]*domain.Participant, len(users))
	for _, u := range users {
		m.participants[room.ID][u] = &domain.Participant{RoomID: room.ID, UserID: u, JoinedAt: now}
	}
	return room, nil
}

func (m *Mem) GetRoom(_ context.Context, roomID uuid.UUID) (domain.Room, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	room, ok := m.rooms[roomID]
	if !ok {
		return domain.Room{}, comms_errors.ErrNotFound
	}
	return *room, nil
}

func (m *Mem) AddParticipants(_ context.Context, roomID uuid.UUID, userIDs []uuid.UUID) ([]uuid.UUID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	room, ok := m.rooms[roomID]
	if !ok {
		return nil, comms_errors.ErrNotFound
	}
	current := m.participants[roomID]

	var added []uuid.UUID
	for _, u := range dedupe(userIDs) {
		if _, exists := current[u]; !exists {
			added = append(added, u)
		}
	}
	if len(current)+len(added) > m.limits.MaxRoomParticipants {
		return nil, comms_errors.ErrRoomFull
	}

	now := time.Now().UTC()
	for _, u := range added {
		current[u] = &domain.Participant{RoomID: roomID, UserID: u, JoinedAt: now}
	}
	if len(current) > 2 {
		room.IsGroup = true
	}
	return added, nil
}

func (m *Mem) RemoveParticipant(_ context.Context, roomID, userID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	parts, ok := m.participants[roomID]
	if !ok {
		return comms_errors.ErrNotFound
	}
	if _, exists := parts[userID]; !exists {
		return comms_errors.ErrNotFound
	}
	delete(parts, userID)
	return nil
}

func (m *Mem) IsParticipant(_ context.Context, roomID, userID uuid.UUID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.participants[roomID][userID]
	return ok, nil
}

func (m *Mem) Participants(_ context.Context, roomID uuid.UUID) ([]domain.Participant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	parts, ok := m.participants[roomID]
	if !ok {
		return nil, comms_errors.ErrNotFound
	}
	out := make([]domain.Participant, 0, len(parts))
	for _, p := range parts {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].JoinedAt.Before(out[j].JoinedAt) })
	return out, nil
}

func (m *Mem) ListRooms(_ context.Context, userID uuid.UUID) ([]domain.RoomSummary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []domain.RoomSummary
	for roomID, parts := range m.participants {
		if _, ok := parts[userID]; !ok {
			continue
		}
		rs := domain.RoomSummary{Room: *m.rooms[roomID]}
		rs.UnreadCount = m.unreadLocked(roomID, userID)
		if msgs := m.messages[roomID]; len(msgs) > 0 {
			rs.LastPreview = msgs[len(msgs)-1].Preview()
		}
		out = append(out, rs)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	return out, nil
}

func (m *Mem) InsertMessage(_ context.Context, roomID, senderID uuid.UUID, content string) (domain.Message, []domain.Receipt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	room, ok := m.rooms[roomID]
	if !ok {
		return domain.Message{}, nil, comms_errors.ErrNotFound
	}

	id, sentAt, err := NewMessageID()
	if err != nil {
		return domain.Message{}, nil, err
	}
	msg := domain.Message{ID: id, RoomID: roomID, SenderID: senderID, Content: content, SentAt: sentAt}
	m.messages[roomID] = append(m.messages[roomID], msg)
	room.UpdatedAt = sentAt

	var receipts []domain.Receipt
	byRecipient := make(map[uuid.UUID]*domain.Receipt)
	for u := range m.participants[roomID] {
		if u == senderID {
			continue
		}
		rc := &domain.Receipt{MessageID: id, RecipientID: u}
		byRecipient[u] = rc
		receipts = append(receipts, *rc)
	}
	m.receipts[id] = byRecipient
	return msg, receipts, nil
}

func (m *Mem) MarkRead(_ context.Context, roomID, userID uuid.UUID, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	part, ok := m.participants[roomID][userID]
	if !ok {
		return comms_errors.ErrForbidden
	}
	if part.LastReadAt == nil || part.LastReadAt.Before(at) {
		t := at
		part.LastReadAt = &t
	}
	for _, msg := range m.messages[roomID] {
		if rc, ok := m.receipts[msg.ID][userID]; ok && !rc.IsRead {
			t := at
			rc.IsRead = true
			rc.ReadAt = &t
		}
	}
	return nil
}

func (m *Mem) UnreadCount(_ context.Context, roomID, userID uuid.UUID) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.unreadLocked(roomID, userID), nil
}

func (m *Mem) Receipts(_ context.Context, messageID uuid.UUID) ([]domain.Receipt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	byRecipient := m.receipts[messageID]
	out := make([]domain.Receipt, 0, len(byRecipient))
	for _, rc := range byRecipient {
		out = append(out, *rc)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].RecipientID.String() < out[j].RecipientID.String()
	})
	return out, nil
}

func (m *Mem) unreadLocked(roomID, userID uuid.UUID) int {
	count := 0
	for _, msg := range m.messages[roomID] {
		if rc, ok := m.receipts[msg.ID][userID]; ok && !rc.IsRead {
			count++
		}
	}
	return count
}

func (m *Mem) RecentMessages(_ context.Context, roomID uuid.UUID, beforeID *uuid.UUID, limit int) ([]domain.Message, error) {
	if limit <= 0 || limit > MaxHistoryPage {
		limit = MaxHistoryPage
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	msgs := m.messages[roomID]
	var out []domain.Message
	for i := len(msgs) - 1; i >= 0 && len(out) < limit; i-- {
		if beforeID != nil && msgs[i].ID.String() >= beforeID.String() {
			continue
		}
		out = append(out, msgs[i])
	}
	return out, nil
}

func (m *Mem) CreateCallRoom(_ context.Context, chatRoomID *uuid.UUID, creator uuid.UUID, maxParticipants int, recording bool) (domain.CallRoom, error) {
	if maxParticipants <= 0 || maxParticipants > m.limits.MaxCallParticipants {
		maxParticipants = m.limits.MaxCallParticipants
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now().UTC()
	call := domain.CallRoom{
		ID:                 uuid.New(),
		ChatRoomID:         chatRoomID,
		CreatedBy:          creator,
		IsActive:           true,
		MaxParticipants:    maxParticipants,
		IsRecordingEnabled: recording,
		CreatedAt:          now,
	}
	m.calls[call.ID] = &call
	m.callParts[call.ID] = map[uuid.UUID]*domain.CallParticipant{
		creator: {CallID: call.ID, UserID: creator, JoinedAt: now, LastActiveAt: now},
	}
	return call, nil
}

func (m *Mem) GetCallRoom(_ context.Context, callID uuid.UUID) (domain.CallRoom, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	call, ok := m.calls[callID]
	if !ok {
		return domain.CallRoom{}, comms_errors.ErrNotFound
	}
	return *call, nil
}

func (m *Mem) JoinCall(_ context.Context, callID, userID uuid.UUID) (domain.CallParticipant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	call, ok := m.calls[callID]
	if !ok {
		return domain.CallParticipant{}, comms_errors.ErrNotFound
	}
	if !call.IsActive {
		return domain.CallParticipant{}, comms_errors.ErrCallEnded
	}

	now := time.Now().UTC()
	parts := m.callParts[callID]
	if cp, ok := parts[userID]; ok {
		cp.LastActiveAt = now
		return *cp, nil
	}
	if len(parts) >= call.MaxParticipants {
		return domain.CallParticipant{}, comms_errors.ErrRoomFull
	}
	cp := &domain.CallParticipant{CallID: callID, UserID: userID, JoinedAt: now, LastActiveAt: now}
	parts[userID] = cp
	return *cp, nil
}

func (m *Mem) LeaveCall(_ context.Context, callID, userID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	parts, ok := m.callParts[callID]
	if !ok {
		return comms_errors.ErrNotFound
	}
	if _, exists := parts[userID]; !exists {
		return comms_errors.ErrNotFound
	}
	delete(parts, userID)
	return nil
}

func (m *Mem) IsCallParticipant(_ context.Context, callID, userID uuid.UUID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.callParts[callID][userID]
	return ok, nil
}

func (m *Mem) CallParticipants(_ context.Context, callID uuid.UUID) ([]domain.CallParticipant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	parts, ok := m.callParts[callID]
	if !ok {
		return nil, comms_errors.ErrNotFound
	}
	out := make([]domain.CallParticipant, 0, len(parts))
	for _, cp := range parts {
		out = append(out, *cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].JoinedAt.Before(out[j].JoinedAt) })
	return out, nil
}

func (m *Mem) SetMute(_ context.Context, callID, userID uuid.UUID, track Track, muted bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp, ok := m.callParts[callID][userID]
	if !ok {
		return comms_errors.ErrNotFound
	}
	if track == TrackVideo {
		cp.VideoMuted = muted
	} else {
		cp.AudioMuted = muted
	}
	cp.LastActiveAt = time.Now().UTC()
	return nil
}

func (m *Mem) EndCall(_ context.Context, callID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	call, ok := m.calls[callID]
	if !ok {
		return comms_errors.ErrNotFound
	}
	call.IsActive = false
	return nil
}
