package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/redis/go-redis/v9"
)

// RedisPublisher forwards events to a Redis pub/sub channel.
type RedisPublisher struct {
	client  *redis.Client
	channel string
}

// NewRedisPublisher returns a sink publishing to channel.
func NewRedisPublisher(client *redis.Client, channel string) *RedisPublisher {
	return &RedisPublisher{client: client, channel: channel}
}

// Handle implements EventHandler.
func (p *RedisPublisher) Handle(ctx context.Context, event Event) error {
	body, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return p.client.Publish(ctx, p.channel, body).Err()
}

// MQTTPublisher forwards events to "<prefix>/<event type>" topics.
type MQTTPublisher struct {
	client      mqtt.Client
	topicPrefix string
	timeout     time.Duration
}

// NewMQTTPublisher returns a sink publishing with QoS 1.
func NewMQTTPublisher(client mqtt.Client, topicPrefix string) *MQTTPublisher {
	return &MQTTPublisher{client: client, topicPrefix: topicPrefix, timeout: 5 * time.Second}
}

// Topic returns the topic an event type is published to.
func (p *MQTTPublisher) Topic(eventType EventType) string {
	return fmt.Sprintf("%s/%s", p.topicPrefix, eventType)
}

// Handle implements EventHandler.
func (p *MQTTPublisher) Handle(_ context.Context, event Event) error {
	body, err := json.Marshal(event)
	if err != nil {
		return err
	}
	token := p.client.Publish(p.Topic(event.Type), 1, false, body)
	if !token.WaitTimeout(p.timeout) {
		return fmt.Errorf("mqtt publish %s timed out", event.Type)
	}
	return token.Error()
}
