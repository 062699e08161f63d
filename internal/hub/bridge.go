package hub

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// bridgePattern matches every hub channel this process may care about.
const bridgePattern = "comms:*"

// envelope wraps a relayed frame. Origin suppresses echo: a process ignores
// frames it relayed itself.
type envelope struct {
	Origin  string          `json:"origin"`
	Channel string          `json:"channel"`
	Payload json.RawMessage `json:"payload"`
}

// Bridge relays hub frames across processes over Redis pub/sub so that
// multiple instances behave as one logical hub. Presence stays process-local;
// only frames travel.
type Bridge struct {
	client *goredis.Client
	hub    *Hub
	origin string
	logger *zap.Logger
	cancel context.CancelFunc
}

// NewBridge wires a hub to Redis. Call Run to start relaying.
func NewBridge(client *goredis.Client, h *Hub, logger *zap.Logger) *Bridge {
	b := &Bridge{
		client: client,
		hub:    h,
		origin: uuid.NewString(),
		logger: logger,
	}
	h.setRelay(b)
	return b
}

// Run subscribes to the relay pattern and republishes inbound frames into the
// local hub. It returns when ctx is cancelled.
func (b *Bridge) Run(ctx context.Context) error {
	ctx, b.cancel = context.WithCancel(ctx)
	pubsub := b.client.PSubscribe(ctx, bridgePattern)
	defer pubsub.Close()

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var env envelope
			if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
				b.logger.Warn("bridge: malformed envelope", zap.Error(err))
				continue
			}
			if env.Origin == b.origin {
				continue
			}
			b.hub.publishLocal(env.Channel, env.Payload)
		}
	}
}

// Stop cancels the relay loop.
func (b *Bridge) Stop() {
	if b.cancel != nil {
		b.cancel()
	}
}

func (b *Bridge) publishRemote(channel string, payload []byte) {
	env := envelope{Origin: b.origin, Channel: channel, Payload: payload}
	data, err := json.Marshal(env)
	if err != nil {
		return
	}
	if err := b.client.Publish(context.Background(), "comms:"+channel, data).Err(); err != nil {
		b.logger.Warn("bridge: publish failed",
			zap.String("channel", channel), zap.Error(err))
	}
}
