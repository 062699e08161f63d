package ws

import (
	"sync"

	"github.com/google/uuid"
)

// DefaultMaxSessionsPerUser caps concurrent sockets per user.
const DefaultMaxSessionsPerUser = 8

// closer is what the registry holds per live session. CloseOverLimit must be
// safe to call from another session's goroutine.
type closer interface {
	CloseOverLimit()
}

// registry tracks live sessions per user and enforces the session cap: when
// a user opens one socket too many, the oldest is told to close.
type registry struct {
	mu       sync.Mutex
	max      int
	sessions map[uuid.UUID][]closer
}

func newRegistry(max int) *registry {
	if max <= 0 {
		max = DefaultMaxSessionsPerUser
	}
	return &registry{max: max, sessions: make(map[uuid.UUID][]closer)}
}

// add registers a session. If the cap is exceeded, the user's oldest session
// is evicted.
func (r *registry) add(userID uuid.UUID, c closer) {
	var evicted closer

	r.mu.Lock()
	list := append(r.sessions[userID], c)
	if len(list) > r.max {
		evicted = list[0]
		list = list[1:]
	}
	r.sessions[userID] = list
	r.mu.Unlock()

	if evicted != nil {
		evicted.CloseOverLimit()
	}
}

func (r *registry) remove(userID uuid.UUID, c closer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	list := r.sessions[userID]
	for i, s := range list {
		if s == c {
			list = append(list[:i], list[i+1:]...)
			break
		}
	}
	if len(list) == 0 {
		delete(r.sessions, userID)
	} else {
		r.sessions[userID] = list
	}
}

// count reports a user's live session count. For tests and diagnostics.
func (r *registry) count(userID uuid.UUID) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions[userID])
}
