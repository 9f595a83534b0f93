package events

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/redis/go-redis/v9"

	"github.com/followup/ticket-service/internal/domain"
)

type fakeToken struct {
	err      error
	complete bool
}

func (t *fakeToken) Wait() bool { return t.complete }
func (t *fakeToken) WaitTimeout(time.Duration) bool { return t.complete }
func (t *fakeToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}
func (t *fakeToken) Error() error { return t.err }

type published struct {
	topic   string
	qos     byte
	payload []byte
}

// fakeMQTT only implements Publish; other methods panic through the nil
// embedded interface.
type fakeMQTT struct {
	mqtt.Client
	token *fakeToken
	sent  []published
}

func (c *fakeMQTT) Publish(topic string, qos byte, _ bool, payload interface{}) mqtt.Token {
	c.sent = append(c.sent, published{topic: topic, qos: qos, payload: payload.([]byte)})
	return c.token
}

func sampleEvent() Event {
	return Event{
		ID:        "evt-1",
		Type:      EventTicketEscalated,
		TicketID:  "t-1",
		Actor:     domain.ActorSnapshot{UserID: "u-1", Role: domain.RoleAgent},
		Timestamp: time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC),
		Payload:   TicketEscalatedPayload{FromLevel: 3, ToLevel: 4, Priority: domain.TicketPriorityHigh},
	}
}

func TestMQTTPublisherTopicsAndPayload(t *testing.T) {
	client := &fakeMQTT{token: &fakeToken{complete: true}}
	publisher := NewMQTTPublisher(client, "followup/tickets")

	if err := publisher.Handle(context.Background(), sampleEvent()); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if len(client.sent) != 1 {
		t.Fatalf("expected one publish, got %d", len(client.sent))
	}
	msg := client.sent[0]
	if msg.topic != "followup/tickets/ticket_escalated" || msg.qos != 1 {
		t.Errorf("got topic %q qos %d", msg.topic, msg.qos)
	}
	var decoded map[string]any
	if err := json.Unmarshal(msg.payload, &decoded); err != nil {
		t.Fatalf("payload is not JSON: %v", err)
	}
	if decoded["ticket_id"] != "t-1" || decoded["type"] != "ticket_escalated" {
		t.Errorf("unexpected payload %s", msg.payload)
	}
}

func TestMQTTPublisherReportsFailures(t *testing.T) {
	timedOut := NewMQTTPublisher(&fakeMQTT{token: &fakeToken{complete: false}}, "p")
	if err := timedOut.Handle(context.Background(), sampleEvent()); err == nil {
		t.Error("expected timeout error")
	}

	brokerErr := errors.New("not authorized")
	rejected := NewMQTTPublisher(&fakeMQTT{token: &fakeToken{complete: true, err: brokerErr}}, "p")
	if err := rejected.Handle(context.Background(), sampleEvent()); !errors.Is(err, brokerErr) {
		t.Errorf("got %v, want %v", err, brokerErr)
	}
}

func TestRedisPublisher(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	client := redis.NewClient(&redis.Options{Addr: addr})
	defer client.Close()

	sub := client.Subscribe(ctx, "followup:test-events")
	defer sub.Close()
	if _, err := sub.Receive(ctx); err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	if err := NewRedisPublisher(client, "followup:test-events").Handle(ctx, sampleEvent()); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	msg, err := sub.ReceiveMessage(ctx)
	if err != nil {
		t.Fatalf("ReceiveMessage: %v", err)
	}
	var got Event
	if err := json.Unmarshal([]byte(msg.Payload), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.ID != "evt-1" || got.Type != EventTicketEscalated {
		t.Errorf("got %+v", got)
	}
}
