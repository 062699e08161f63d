package presence

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// DefaultWindow is the freshness window: a user is online in a room iff their
// last activity is within it.
const DefaultWindow = 30 * time.Second

// Tracker keeps per-room liveness for the sessions this process holds.
// It is advisory and process-local; durable last_active lives in the store.
type Tracker struct {
	window time.Duration
	now    func() time.Time

	mu    sync.RWMutex
	rooms map[uuid.UUID]*roomPresence
}

type roomPresence struct {
	mu         sync.Mutex
	lastActive map[uuid.UUID]time.Time
}

// NewTracker creates a tracker with the given window (DefaultWindow if <= 0).
func NewTracker(window time.Duration) *Tracker {
	if window <= 0 {
		window = DefaultWindow
	}
	return &Tracker{
		window: window,
		now:    time.Now,
		rooms:  make(map[uuid.UUID]*roomPresence),
	}
}

func (t *Tracker) room(roomID uuid.UUID) *roomPresence {
	t.mu.RLock()
	rp, ok := t.rooms[roomID]
	t.mu.RUnlock()
	if ok {
		return rp
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if rp, ok = t.rooms[roomID]; !ok {
		rp = &roomPresence{lastActive: make(map[uuid.UUID]time.Time)}
		t.rooms[roomID] = rp
	}
	return rp
}

// Touch records activity for a user in a room.
func (t *Tracker) Touch(roomID, userID uuid.UUID) {
	rp := t.room(roomID)
	rp.mu.Lock()
	rp.lastActive[userID] = t.now()
	rp.mu.Unlock()
}

// Remove drops a user's presence entry, typically on session close.
func (t *Tracker) Remove(roomID, userID uuid.UUID) {
	t.mu.RLock()
	rp, ok := t.rooms[roomID]
	t.mu.RUnlock()
	if !ok {
		return
	}
	rp.mu.Lock()
	delete(rp.lastActive, userID)
	rp.mu.Unlock()
}

// IsOnline reports whether the user was active in the room within the window.
func (t *Tracker) IsOnline(roomID, userID uuid.UUID) bool {
	t.mu.RLock()
	rp, ok := t.rooms[roomID]
	t.mu.RUnlock()
	if !ok {
		return false
	}
	rp.mu.Lock()
	defer rp.mu.Unlock()
	last, ok := rp.lastActive[userID]
	return ok && t.now().Sub(last) <= t.window
}

// Online returns the users active in the room within the window, sorted for
// deterministic output.
func (t *Tracker) Online(roomID uuid.UUID) []uuid.UUID {
	t.mu.RLock()
	rp, ok := t.rooms[roomID]
	t.mu.RUnlock()
	if !ok {
		return nil
	}
	cutoff := t.now().Add(-t.window)
	rp.mu.Lock()
	users := make([]uuid.UUID, 0, len(rp.lastActive))
	for userID, last := range rp.lastActive {
		if !last.Before(cutoff) {
			users = append(users, userID)
		}
	}
	rp.mu.Unlock()
	sort.Slice(users, func(i, j int) bool {
		return users[i].String() < users[j].String()
	})
	return users
}

// SetClock overrides the time source. Tests only.
func (t *Tracker) SetClock(now func() time.Time) { t.now = now }
