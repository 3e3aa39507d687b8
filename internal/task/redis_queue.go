package task

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultRedisQueue is the list used when none is configured.
const DefaultRedisQueue = "stellar:tasks"

// RedisQueue is a task queue on a redis list. The client is shared with
// the redis satellite and is not closed by the queue.
type RedisQueue struct {
	client *redis.Client
	queue  string
	wait   time.Duration
}

// NewRedisQueue builds a queue on client.
func NewRedisQueue(client *redis.Client, queue string, blockWait time.Duration) (*RedisQueue, error) {
	if client == nil {
		return nil, errors.New("redis task queue needs a client")
	}
	if queue == "" {
		queue = DefaultRedisQueue
	}
	if blockWait <= 0 {
		blockWait = 5 * time.Second
	}
	return &RedisQueue{client: client, queue: queue, wait: blockWait}, nil
}

// Publish pushes taskID onto the list.
func (q *RedisQueue) Publish(ctx context.Context, taskID string) error {
	if err := q.client.LPush(ctx, q.queue, taskID).Err(); err != nil {
		return fmt.Errorf("redis publish task: %w", err)
	}
	return nil
}

// Consume pops ids with BRPOP. A failed handler pushes the id back.
func (q *RedisQueue) Consume(ctx context.Context, workerCount int, handler Handler) error {
	if workerCount <= 0 {
		workerCount = 1
	}
	errCh := make(chan error, workerCount)
	for i := 0; i < workerCount; i++ {
		go func() {
			for {
				if ctx.Err() != nil {
					errCh <- ctx.Err()
					return
				}
				values, err := q.client.BRPop(ctx, q.wait, q.queue).Result()
				if err != nil {
					if errors.Is(err, redis.Nil) {
						continue
					}
					if errors.Is(err, context.Canceled) || errors.Is(err, redis.ErrClosed) {
						errCh <- err
						return
					}
					errCh <- fmt.Errorf("redis pop task: %w", err)
					return
				}
				if len(values) != 2 {
					continue
				}
				taskID := values[1]
				if handlerErr := handler(ctx, taskID); handlerErr != nil {
					_ = q.client.RPush(ctx, q.queue, taskID).Err()
				}
			}
		}()
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

// Close is a no-op; the client outlives the queue.
func (q *RedisQueue) Close() error {
	return nil
}
