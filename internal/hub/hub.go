package hub

import (
	"fmt"
	"hash/fnv"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"startuphub-comms/internal/observability"
)

// Shard count is fixed for the lifetime of the process.
const shardCount = 64

const (
	// DefaultQueueDepth is the bound on a subscriber's frame queue.
	DefaultQueueDepth = 256
	// DefaultPublishGrace is how long a publish waits on a full queue before
	// the subscriber is evicted.
	DefaultPublishGrace = 50 * time.Millisecond
)

// RoomChannel names the broadcast channel of a chat or call room.
func RoomChannel(roomID uuid.UUID) string {
	return fmt.Sprintf("room:%s", roomID)
}

// UserChannel names a user's direct-notification channel.
func UserChannel(userID uuid.UUID) string {
	return fmt.Sprintf("user:%s", userID)
}

// relay is the optional cross-process fan-out hook (see Bridge).
type relay interface {
	publishRemote(channel string, payload []byte)
}

// Hub is the in-process publish/subscribe fabric. Delivery is best-effort and
// non-durable: a subscriber whose queue stays full past the grace period is
// evicted, and recovery is re-reading history from the store.
type Hub struct {
	shards     [shardCount]*shard
	queueDepth int
	grace      time.Duration
	logger     *zap.Logger

	mu    sync.RWMutex
	relay relay
}

type shard struct {
	mu       sync.RWMutex
	channels map[string]map[*Subscription]struct{}
}

// Options tunes the hub; zero values take the defaults.
type Options struct {
	QueueDepth   int
	PublishGrace time.Duration
}

// New creates a hub.
func New(logger *zap.Logger, opts Options) *Hub {
	if opts.QueueDepth <= 0 {
		opts.QueueDepth = DefaultQueueDepth
	}
	if opts.PublishGrace <= 0 {
		opts.PublishGrace = DefaultPublishGrace
	}
	h := &Hub{
		queueDepth: opts.QueueDepth,
		grace:      opts.PublishGrace,
		logger:     logger,
	}
	for i := range h.shards {
		h.shards[i] = &shard{channels: make(map[string]map[*Subscription]struct{})}
	}
	return h
}

func (h *Hub) shardFor(channel string) *shard {
	f := fnv.New32a()
	f.Write([]byte(channel))
	return h.shards[f.Sum32()%shardCount]
}

// Subscribe registers a new subscriber on a channel and returns its handle.
func (h *Hub) Subscribe(channel string) *Subscription {
	sub := newSubscription(channel, h.queueDepth)
	s := h.shardFor(channel)
	s.mu.Lock()
	if _, ok := s.channels[channel]; !ok {
		s.channels[channel] = make(map[*Subscription]struct{})
	}
	s.channels[channel][sub] = struct{}{}
	s.mu.Unlock()
	return sub
}

// Unsubscribe cancels a subscription. Safe to call more than once.
func (h *Hub) Unsubscribe(sub *Subscription) {
	h.remove(sub, ReasonCancelled)
}

func (h *Hub) remove(sub *Subscription, reason CloseReason) {
	sub.close(reason)
	s := h.shardFor(sub.channel)
	s.mu.Lock()
	if subs, ok := s.channels[sub.channel]; ok {
		delete(subs, sub)
		if len(subs) == 0 {
			delete(s.channels, sub.channel)
		}
	}
	s.mu.Unlock()
}

// Publish delivers payload to every current subscriber of channel, in order
// per publisher. A subscriber that cannot accept the frame within the grace
// period is evicted and signalled with ReasonBackpressure.
func (h *Hub) Publish(channel string, payload []byte) {
	h.publishLocal(channel, payload)

	h.mu.RLock()
	r := h.relay
	h.mu.RUnlock()
	if r != nil {
		r.publishRemote(channel, payload)
	}
	observability.IncHubPublished()
}

func (h *Hub) publishLocal(channel string, payload []byte) {
	s := h.shardFor(channel)
	s.mu.RLock()
	subs := make([]*Subscription, 0, len(s.channels[channel]))
	for sub := range s.channels[channel] {
		subs = append(subs, sub)
	}
	s.mu.RUnlock()

	for _, sub := range subs {
		if sub.closed() {
			continue
		}
		select {
		case sub.frames <- payload:
			observability.IncHubDelivered()
			continue
		default:
		}

		// Queue full: bounded wait, then evict.
		timer := time.NewTimer(h.grace)
		select {
		case sub.frames <- payload:
			timer.Stop()
			observability.IncHubDelivered()
		case <-sub.done:
			timer.Stop()
		case <-timer.C:
			h.remove(sub, ReasonBackpressure)
			observability.IncHubEvicted()
			if h.logger != nil {
				h.logger.Warn("subscriber evicted on backpressure",
					zap.String("channel", channel))
			}
		}
	}
}

// Subscribers reports the current subscriber count of a channel.
// For diagnostics only.
func (h *Hub) Subscribers(channel string) int {
	s := h.shardFor(channel)
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.channels[channel])
}

func (h *Hub) setRelay(r relay) {
	h.mu.Lock()
	h.relay = r
	h.mu.Unlock()
}
