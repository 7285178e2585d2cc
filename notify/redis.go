package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// DefaultChannel is the pub/sub channel RedisSink publishes to.
const DefaultChannel = "zipcheck:notifications"

// RedisSink publishes events as JSON on a Redis pub/sub channel.
type RedisSink struct {
	client  redis.Cmdable
	channel string
}

// NewRedisSink returns a sink publishing to channel. An empty channel
// means DefaultChannel.
func NewRedisSink(client redis.Cmdable, channel string) *RedisSink {
	if channel == "" {
		channel = DefaultChannel
	}
	return &RedisSink{client: client, channel: channel}
}

// Send publishes e.
func (s *RedisSink) Send(ctx context.Context, e *Event) error {
	body, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("zipcheck/notify: encode event: %w", err)
	}
	if err := s.client.Publish(ctx, s.channel, body).Err(); err != nil {
		return fmt.Errorf("zipcheck/notify: publish: %w", err)
	}
	return nil
}
