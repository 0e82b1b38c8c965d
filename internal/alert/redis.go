package alert

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/go-redis/redis/v8"

	"github.com/railwatch-data/railwatch/internal/monitoring"
)

// RedisChannel publishes alerts to a Redis pub/sub channel so external
// consumers (control-room dashboards, downstream services) can subscribe.
// It registers as the "redis" channel. A publisher that never connected
// silently drops messages instead of failing the dispatch.
type RedisChannel struct {
	client  *redis.Client
	channel string
	enabled bool

	mu sync.Mutex
}

// NewRedisChannel creates an unconnected publisher for the given pub/sub
// channel name.
func NewRedisChannel(channel string) *RedisChannel {
	return &RedisChannel{channel: channel}
}

// Name returns "redis".
func (c *RedisChannel) Name() string { return "redis" }

// Connect establishes the Redis connection.
func (c *RedisChannel) Connect(ctx context.Context, addr string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		c.enabled = false
		return fmt.Errorf("connect redis at %s: %w", addr, err)
	}
	c.client = client
	c.enabled = true
	monitoring.Logf("redis: connected to %s, publishing on %q", addr, c.channel)
	return nil
}

// Send publishes the alert as JSON. Without a connection this is a no-op.
func (c *RedisChannel) Send(ctx context.Context, msg Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.enabled || c.client == nil {
		return nil
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal alert %s: %w", msg.Incident.ID, err)
	}
	if err := c.client.Publish(ctx, c.channel, data).Err(); err != nil {
		return fmt.Errorf("publish alert %s: %w", msg.Incident.ID, err)
	}
	return nil
}

// Close closes the Redis connection.
func (c *RedisChannel) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.client == nil {
		return nil
	}
	err := c.client.Close()
	c.client = nil
	c.enabled = false
	return err
}
