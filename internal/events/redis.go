package events

import (
	"context"
	"encoding/json"
	"fmt"

	"storefront/internal/config"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// redisPublisher is the subset of *redis.Client used for fan-out.
type redisPublisher interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
}

// envelope is the wire shape published to redis channels.
type envelope struct {
	Name    Name  `json:"name"`
	Payload Event `json:"payload"`
}

// RedisFanout publishes locally and mirrors every event to a redis channel
// named "<prefix>:<event name>" so other instances can relay it.
type RedisFanout struct {
	local  Publisher
	client redisPublisher
	prefix string
	logger zerolog.Logger
}

// NewRedisFanout wraps local with redis mirroring.
func NewRedisFanout(local Publisher, client redisPublisher, prefix string, logger zerolog.Logger) *RedisFanout {
	return &RedisFanout{
		local:  local,
		client: client,
		prefix: prefix,
		logger: logger.With().Str("component", "redis-fanout").Logger(),
	}
}

// Channel returns the redis channel for an event name.
func (f *RedisFanout) Channel(name Name) string {
	return fmt.Sprintf("%s:%s", f.prefix, name)
}

// Publish delivers locally first; redis failures are logged, never returned.
func (f *RedisFanout) Publish(ctx context.Context, e Event) {
	f.local.Publish(ctx, e)

	payload, err := json.Marshal(envelope{Name: e.EventName(), Payload: e})
	if err != nil {
		f.logger.Error().Err(err).Str("event", string(e.EventName())).Msg("failed to encode event")
		return
	}

	if err := f.client.Publish(ctx, f.Channel(e.EventName()), payload).Err(); err != nil {
		f.logger.Warn().
			Err(err).
			Str("channel", f.Channel(e.EventName())).
			Msg("failed to mirror event to redis")
	}
}

// NewRedisClient connects to redis and verifies the connection.
func NewRedisClient(ctx context.Context, cfg config.RedisConfig, logger zerolog.Logger) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to ping redis at %s: %w", cfg.Addr, err)
	}

	logger.Info().Str("addr", cfg.Addr).Msg("redis connection established")

	return client, nil
}
