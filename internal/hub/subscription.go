package hub

import (
	"sync"
	"sync/atomic"

	comms_errors "startuphub-comms/pkg/errors"
)

// CloseReason reports why a subscription stopped receiving frames.
type CloseReason int32

const (
	// ReasonNone means the subscription is still live.
	ReasonNone CloseReason = iota
	// ReasonCancelled means the owner unsubscribed.
	ReasonCancelled
	// ReasonBackpressure means the hub evicted the subscription because its
	// queue stayed full past the publish grace period.
	ReasonBackpressure
)

// Subscription is one subscriber's handle on a channel. The owning session
// reads frames from Frames and watches Done for eviction; it holds the handle
// only for cancellation, so there is no object cycle with the hub.
type Subscription struct {
	channel string
	frames  chan []byte
	done    chan struct{}
	once    sync.Once
	reason  atomic.Int32
}

func newSubscription(channel string, depth int) *Subscription {
	return &Subscription{
		channel: channel,
		frames:  make(chan []byte, depth),
		done:    make(chan struct{}),
	}
}

// Channel returns the channel name this subscription is attached to.
func (s *Subscription) Channel() string { return s.channel }

// Frames is the stream of published payloads, in publish order per publisher.
func (s *Subscription) Frames() <-chan []byte { return s.frames }

// Done is closed when the subscription is cancelled or evicted.
func (s *Subscription) Done() <-chan struct{} { return s.done }

// Reason reports why Done closed; ReasonNone while live.
func (s *Subscription) Reason() CloseReason {
	return CloseReason(s.reason.Load())
}

// Err maps the close reason to an error: ErrQueueFull after a backpressure
// eviction, nil for a live subscription or a plain unsubscribe.
func (s *Subscription) Err() error {
	if s.Reason() == ReasonBackpressure {
		return comms_errors.ErrQueueFull
	}
	return nil
}

func (s *Subscription) close(reason CloseReason) {
	s.once.Do(func() {
		s.reason.Store(int32(reason))
		close(s.done)
	})
}

func (s *Subscription) closed() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}
