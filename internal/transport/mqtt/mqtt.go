// Package mqtt implements the MQTT transport for turnout.
//
// MQTT is well-suited for satellite speakers and lightweight pub/sub
// integrations. The transport subscribes to the configured ask topic and
// publishes every answer on the answer topic; payloads are JSON queries,
// with bare UTF-8 utterances accepted as a convenience.
package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"github.com/nadzzz/turnout/internal/message"
	"github.com/nadzzz/turnout/internal/transport"
)

const (
	connectTimeout  = 10 * time.Second
	publishTimeout  = 5 * time.Second
	disconnectQuiet = 250 // milliseconds paho waits for in-flight work

	// qosAtLeastOnce: a lost answer is worse than a duplicated one for a
	// voice assistant.
	qosAtLeastOnce = 1
)

// Transport implements transport.Transport over MQTT.
type Transport struct {
	broker      string
	askTopic    string
	answerTopic string
	client      pahomqtt.Client
}

// New creates a new MQTT transport.
func New(broker, askTopic, answerTopic string) *Transport {
	return &Transport{broker: broker, askTopic: askTopic, answerTopic: answerTopic}
}

// Name returns the transport identifier.
func (t *Transport) Name() string { return "mqtt" }

// Listen connects to the MQTT broker, subscribes to the ask topic and
// dispatches every incoming query to the handler. It blocks until the
// context is cancelled.
func (t *Transport) Listen(ctx context.Context, handler transport.Handler) error {
	onMessage := func(_ pahomqtt.Client, m pahomqtt.Message) {
		// Paho delivers messages on its own goroutine; answering in a new
		// one keeps slow backends from blocking the inbound stream.
		go t.answer(ctx, handler, m.Payload())
	}

	opts := pahomqtt.NewClientOptions().
		AddBroker(t.broker).
		SetClientID("turnout-" + uuid.NewString()[:8]).
		SetAutoReconnect(true).
		SetConnectTimeout(connectTimeout).
		SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
			slog.Warn("mqtt connection lost", "error", err)
		}).
		SetOnConnectHandler(func(c pahomqtt.Client) {
			// Runs on every (re)connect so the subscription survives
			// broker restarts.
			if token := c.Subscribe(t.askTopic, qosAtLeastOnce, onMessage); token.Wait() && token.Error() != nil {
				slog.Error("mqtt subscribe failed", "topic", t.askTopic, "error", token.Error())
				return
			}
			slog.Info("mqtt subscribed", "topic", t.askTopic)
		})

	t.client = pahomqtt.NewClient(opts)

	token := t.client.Connect()
	if !token.WaitTimeout(connectTimeout) {
		return fmt.Errorf("mqtt connect: timeout after %s", connectTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt connect: %w", err)
	}

	slog.Info("mqtt transport listening",
		"broker", t.broker, "ask_topic", t.askTopic, "answer_topic", t.answerTopic)

	<-ctx.Done()
	slog.Info("mqtt transport shutting down")
	t.client.Disconnect(disconnectQuiet)
	return nil
}

// answer runs one ask payload through the handler and publishes the result.
func (t *Transport) answer(ctx context.Context, handler transport.Handler, payload []byte) {
	q := decodeQuery(payload)

	answer, err := handler(ctx, &q)
	if err != nil {
		slog.Error("mqtt ask failed", "error", err)
		return
	}

	out, err := json.Marshal(answer)
	if err != nil {
		slog.Error("mqtt answer marshal failed", "error", err)
		return
	}

	token := t.client.Publish(t.answerTopic, qosAtLeastOnce, false, out)
	if !token.WaitTimeout(publishTimeout) {
		slog.Error("mqtt publish timed out", "topic", t.answerTopic)
		return
	}
	if err := token.Error(); err != nil {
		slog.Error("mqtt publish failed", "topic", t.answerTopic, "error", err)
		return
	}
	slog.Debug("mqtt answer published", "topic", t.answerTopic, "query_id", answer.QueryID)
}

// decodeQuery parses an ask payload. JSON payloads carry the full query
// shape; anything else is treated as a bare utterance.
func decodeQuery(payload []byte) message.Query {
	var q message.Query
	if err := json.Unmarshal(payload, &q); err != nil {
		q = message.Query{Text: string(payload)}
	}
	if q.Source == "" {
		q.Source = "mqtt"
	}
	return q
}

// Close disconnects from the MQTT broker.
func (t *Transport) Close() error {
	if t.client != nil && t.client.IsConnected() {
		t.client.Disconnect(disconnectQuiet)
	}
	return nil
}
