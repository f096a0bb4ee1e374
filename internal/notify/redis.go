package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"
)

const (
	// Stream consumed by the delivery worker
	DefaultStream = "studieo:notifications"
	// Pub/sub channel feeding the realtime event endpoint
	DefaultChannel = "studieo:application-events"
)

// RedisDispatcher queues events on a Redis stream for the delivery worker
// and mirrors them on a pub/sub channel for the realtime feed
type RedisDispatcher struct {
	client  *redis.Client
	stream  string
	channel string
}

// NewRedisDispatcher creates a new Redis-backed dispatcher
func NewRedisDispatcher(address, password string, db int) (*RedisDispatcher, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     address,
		Password: password,
		DB:       db,
	})

	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &RedisDispatcher{
		client:  client,
		stream:  DefaultStream,
		channel: DefaultChannel,
	}, nil
}

// Dispatch queues one event. Each event is its own stream entry, so a
// failing delivery is retried or dropped in isolation.
func (d *RedisDispatcher) Dispatch(ctx context.Context, ev Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	err = d.client.XAdd(ctx, &redis.XAddArgs{
		Stream: d.stream,
		Values: map[string]interface{}{
			"type":    string(ev.Type),
			"payload": payload,
		},
	}).Err()
	if err != nil {
		return fmt.Errorf("failed to queue event: %w", err)
	}

	// Mirror on pub/sub for the websocket feed. Best-effort: the queued
	// delivery is the one that matters.
	if err := d.client.Publish(ctx, d.channel, payload).Err(); err != nil {
		slog.Warn("failed to publish event", "error", err, "type", ev.Type)
	}

	return nil
}

// Subscribe returns a pub/sub subscription on the event channel
func (d *RedisDispatcher) Subscribe(ctx context.Context) *redis.PubSub {
	return d.client.Subscribe(ctx, d.channel)
}

// Client exposes the underlying Redis client for the delivery worker
func (d *RedisDispatcher) Client() *redis.Client {
	return d.client
}

// Stream returns the stream key events are queued on
func (d *RedisDispatcher) Stream() string {
	return d.stream
}

// Close closes the Redis connection
func (d *RedisDispatcher) Close() error {
	return d.client.Close()
}
