package output

import (
	"context"
	"encoding/json"
	"fmt"

	redis "github.com/redis/go-redis/v9"
)

// historyLen bounds the transcript list kept next to the channel.
const historyLen = 100

// RedisClient is the subset of *redis.Client the sink uses.
type RedisClient interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
	LPush(ctx context.Context, key string, values ...interface{}) *redis.IntCmd
	LTrim(ctx context.Context, key string, start, stop int64) *redis.StatusCmd
}

// Redis publishes transcripts as JSON on a channel and keeps the most recent
// ones in the list "<channel>:history".
type Redis struct {
	client  RedisClient
	channel string
}

// NewRedis connects lazily to addr.
func NewRedis(addr, channel string) (*Redis, *redis.Client) {
	client := redis.NewClient(&redis.Options{Addr: addr})
	return NewRedisWithClient(client, channel), client
}

// NewRedisWithClient wraps an existing client.
func NewRedisWithClient(client RedisClient, channel string) *Redis {
	return &Redis{client: client, channel: channel}
}

func (r *Redis) Deliver(ctx context.Context, t Transcript) error {
	payload, err := json.Marshal(t)
	if err != nil {
		return err
	}
	if err := r.client.Publish(ctx, r.channel, payload).Err(); err != nil {
		return fmt.Errorf("redis PUBLISH %s: %w", r.channel, err)
	}
	key := r.channel + ":history"
	if err := r.client.LPush(ctx, key, payload).Err(); err != nil {
		return fmt.Errorf("redis LPUSH %s: %w", key, err)
	}
	if err := r.client.LTrim(ctx, key, 0, historyLen-1).Err(); err != nil {
		return fmt.Errorf("redis LTRIM %s: %w", key, err)
	}
	return nil
}
