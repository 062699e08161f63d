package wire

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"startuphub-comms/internal/domain"
)

func TestDecode(t *testing.T) {
	in, ok := Decode([]byte(`{"type":"chat.message","content":"hi"}`))
	require.True(t, ok)
	assert.Equal(t, TypeChatMessage, in.Type)
	assert.Equal(t, "hi", in.Content)

	_, ok = Decode([]byte(`{"content":"no type"}`))
	assert.False(t, ok)

	_, ok = Decode([]byte(`not json`))
	assert.False(t, ok)
}

func TestDecodeKeepsSignalingRaw(t *testing.T) {
	in, ok := Decode([]byte(`{"type":"send_offer","sdp":{"v":"0","blob":"X"}}`))
	require.True(t, ok)
	assert.JSONEq(t, `{"v":"0","blob":"X"}`, string(in.SDP))
}

func TestChatMessageFrame(t *testing.T) {
	msg := domain.Message{
		ID:       uuid.New(),
		RoomID:   uuid.New(),
		SenderID: uuid.New(),
		Content:  "hello",
		SentAt:   time.Now().UTC(),
	}
	frame := ChatMessage(msg, time.Now().UTC())

	var got map[string]any
	require.NoError(t, json.Unmarshal(frame, &got))
	assert.Equal(t, TypeChatMessage, got["type"])
	assert.Equal(t, msg.ID.String(), got["id"])
	assert.Equal(t, "hello", got["content"])
	assert.NotEmpty(t, got["timestamp"])
}

func TestNewMessagePreviewBounded(t *testing.T) {
	long := make([]rune, 0, 120)
	for i := 0; i < 120; i++ {
		long = append(long, 'ä')
	}
	msg := domain.Message{ID: uuid.New(), RoomID: uuid.New(), SenderID: uuid.New(), Content: string(long)}
	frame := NewMessage(msg, time.Now().UTC())

	var got struct {
		Preview string `json:"preview"`
	}
	require.NoError(t, json.Unmarshal(frame, &got))
	assert.Equal(t, domain.PreviewLength, len([]rune(got.Preview)))
}

func TestOfferCarriesVerbatimPayload(t *testing.T) {
	sender := uuid.New()
	frame := Offer(sender, json.RawMessage(`{"sdp":"X","weird":[1,2]}`), time.Now().UTC())

	var got map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(frame, &got))
	assert.JSONEq(t, `"offer"`, string(got["type"]))
	assert.JSONEq(t, `{"sdp":"X","weird":[1,2]}`, string(got["sdp"]))
	assert.JSONEq(t, `"`+sender.String()+`"`, string(got["sender_id"]))
}

func TestParticipantsListNeverNull(t *testing.T) {
	frame := ParticipantsList(uuid.New(), nil, time.Now().UTC())

	var got struct {
		Participants []ParticipantInfo `json:"participants"`
	}
	require.NoError(t, json.Unmarshal(frame, &got))
	assert.NotNil(t, got.Participants)
	assert.Empty(t, got.Participants)
}
