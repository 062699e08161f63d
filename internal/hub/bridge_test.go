package hub

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newBridgePair(t *testing.T) (*Hub, *Bridge, *goredis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	h := New(zap.NewNop(), Options{})
	b := NewBridge(client, h, zap.NewNop())
	return h, b, client
}

func TestBridgePublishesEnvelope(t *testing.T) {
	h, _, client := newBridgePair(t)
	ch := RoomChannel(uuid.New())

	ctx := context.Background()
	pubsub := client.Subscribe(ctx, "comms:"+ch)
	defer pubsub.Close()
	_, err := pubsub.Receive(ctx)
	require.NoError(t, err)

	h.Publish(ch, []byte(`{"type":"ping"}`))

	select {
	case msg := <-pubsub.Channel():
		var env envelope
		require.NoError(t, json.Unmarshal([]byte(msg.Payload), &env))
		assert.Equal(t, ch, env.Channel)
		assert.NotEmpty(t, env.Origin)
		assert.JSONEq(t, `{"type":"ping"}`, string(env.Payload))
	case <-time.After(2 * time.Second):
		t.Fatal("no relayed message")
	}
}

func TestBridgeDeliversRemoteFrames(t *testing.T) {
	h, b, client := newBridgePair(t)
	ch := RoomChannel(uuid.New())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go b.Run(ctx)

	sub := h.Subscribe(ch)
	defer h.Unsubscribe(sub)

	// A frame from another process carries a foreign origin.
	env := envelope{Origin: uuid.NewString(), Channel: ch, Payload: []byte(`{"type":"pong"}`)}
	data, err := json.Marshal(env)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		require.NoError(t, client.Publish(ctx, "comms:"+ch, data).Err())
		select {
		case frame := <-sub.Frames():
			assert.JSONEq(t, `{"type":"pong"}`, string(frame))
			return true
		case <-time.After(50 * time.Millisecond):
			return false
		}
	}, 2*time.Second, 10*time.Millisecond)
}

func TestBridgeSuppressesOwnEcho(t *testing.T) {
	h, b, _ := newBridgePair(t)
	ch := RoomChannel(uuid.New())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go b.Run(ctx)
	time.Sleep(50 * time.Millisecond)

	sub := h.Subscribe(ch)
	defer h.Unsubscribe(sub)

	// A local publish is delivered once, directly; the relayed copy must be
	// ignored when it comes back.
	h.Publish(ch, []byte(`{"type":"ping"}`))

	<-sub.Frames()
	select {
	case frame := <-sub.Frames():
		t.Fatalf("echoed frame delivered twice: %q", frame)
	case <-time.After(200 * time.Millisecond):
	}
}
