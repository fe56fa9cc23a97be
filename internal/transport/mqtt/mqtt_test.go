package mqtt

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nadzzz/turnout/internal/message"
)

type fakeToken struct {
	err error
}

func (t *fakeToken) Wait() bool                     { return true }
func (t *fakeToken) WaitTimeout(time.Duration) bool { return true }
func (t *fakeToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}
func (t *fakeToken) Error() error { return t.err }

type published struct {
	topic   string
	payload []byte
}

type fakeClient struct {
	pahomqtt.Client
	publishErr error
	messages   []published
}

func (f *fakeClient) Publish(topic string, _ byte, _ bool, payload interface{}) pahomqtt.Token {
	f.messages = append(f.messages, published{topic: topic, payload: payload.([]byte)})
	return &fakeToken{err: f.publishErr}
}

func TestDecodeQueryJSON(t *testing.T) {
	q := decodeQuery([]byte(`{"id":"q-7","source":"satellite-kitchen","text":"zapni světlo","asr_confidence":0.8}`))

	assert.Equal(t, "q-7", q.ID)
	assert.Equal(t, "satellite-kitchen", q.Source)
	assert.Equal(t, "zapni světlo", q.Text)
	assert.InDelta(t, 0.8, q.ASRConfidence, 0.0001)
}

func TestDecodeQueryBareUtterance(t *testing.T) {
	q := decodeQuery([]byte("zapni světlo"))

	assert.Equal(t, "zapni světlo", q.Text)
	assert.Equal(t, "mqtt", q.Source)
}

func TestDecodeQueryDefaultsSource(t *testing.T) {
	q := decodeQuery([]byte(`{"text":"ahoj"}`))
	assert.Equal(t, "mqtt", q.Source)
}

func TestAnswerPublishesToAnswerTopic(t *testing.T) {
	client := &fakeClient{}
	tr := New("tcp://localhost:1883", "turnout/ask", "turnout/answer")
	tr.client = client

	handler := func(_ context.Context, q *message.Query) (*message.Answer, error) {
		return &message.Answer{QueryID: q.ID, Text: "Rozsvítil jsem světlo.", Backend: "local", Success: true}, nil
	}

	tr.answer(context.Background(), handler, []byte(`{"id":"q-9","text":"zapni světlo"}`))

	require.Len(t, client.messages, 1)
	assert.Equal(t, "turnout/answer", client.messages[0].topic)

	var answer message.Answer
	require.NoError(t, json.Unmarshal(client.messages[0].payload, &answer))
	assert.Equal(t, "q-9", answer.QueryID)
	assert.Equal(t, "Rozsvítil jsem světlo.", answer.Text)
	assert.True(t, answer.Success)
}

func TestAnswerSkipsPublishOnHandlerError(t *testing.T) {
	client := &fakeClient{}
	tr := New("tcp://localhost:1883", "turnout/ask", "turnout/answer")
	tr.client = client

	handler := func(context.Context, *message.Query) (*message.Answer, error) {
		return nil, context.Canceled
	}

	tr.answer(context.Background(), handler, []byte("zapni světlo"))
	assert.Empty(t, client.messages)
}
