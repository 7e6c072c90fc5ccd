package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// RedisQueue backs the priority lanes with three Redis lists. A single BLPOP
// across the lane keys in priority order gives strict lane precedence with
// FIFO submission order within a lane.
type RedisQueue struct {
	client *redis.Client
}

var _ Queue = (*RedisQueue)(nil)

func NewRedisQueue(redisURL string) (*RedisQueue, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}

	client := redis.NewClient(opts)

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &RedisQueue{client: client}, nil
}

func (q *RedisQueue) Close() error {
	return q.client.Close()
}

func (q *RedisQueue) Enqueue(ctx context.Context, env *Envelope) error {
	env.EnqueuedAt = time.Now()

	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("failed to marshal envelope: %w", err)
	}

	return q.client.RPush(ctx, string(LaneFor(env.Priority)), data).Err()
}

func (q *RedisQueue) Dequeue(ctx context.Context, timeout time.Duration) (*Envelope, error) {
	keys := make([]string, len(lanes))
	for i, lane := range lanes {
		keys[i] = string(lane)
	}

	result, err := q.client.BLPop(ctx, timeout, keys...).Result()
	if err == redis.Nil {
		return nil, nil // No job available
	}
	if err != nil {
		return nil, fmt.Errorf("failed to dequeue: %w", err)
	}

	if len(result) != 2 {
		return nil, fmt.Errorf("unexpected redis response")
	}

	var env Envelope
	if err := json.Unmarshal([]byte(result[1]), &env); err != nil {
		return nil, fmt.Errorf("failed to unmarshal envelope: %w", err)
	}

	return &env, nil
}

func (q *RedisQueue) Len(ctx context.Context, lane Lane) (int64, error) {
	return q.client.LLen(ctx, string(lane)).Result()
}
