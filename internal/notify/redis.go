package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisDispatcher publishes billing events to a Redis pub/sub channel.
// Notification workers (email, SMS) subscribe on the other end.
type RedisDispatcher struct {
	client  *redis.Client
	channel string
	logger  *zap.Logger
}

// NewRedisDispatcher connects to Redis and verifies the connection
func NewRedisDispatcher(addr, password string, db int, channel string, logger *zap.Logger) (*RedisDispatcher, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &RedisDispatcher{
		client:  client,
		channel: channel,
		logger:  logger,
	}, nil
}

// Publish sends the event as JSON. Errors are returned for the caller to
// log; a lost notification is never retried.
func (d *RedisDispatcher) Publish(ctx context.Context, event Event) error {
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now()
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	if err := d.client.Publish(ctx, d.channel, payload).Err(); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}

	d.logger.Debug("Published billing event",
		zap.String("type", string(event.Type)),
		zap.String("channel", d.channel))

	return nil
}

// Close releases the Redis connection
func (d *RedisDispatcher) Close() error {
	return d.client.Close()
}
