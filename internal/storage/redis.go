package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"anchorsync/pkg"
	"anchorsync/src/logger"
)

const (
	DefaultRedisKey     = "anchorsync:tasks"
	DefaultRedisChannel = "anchorsync:tasks:changed"
)

// NewRedisClient parses url and verifies the server answers
func NewRedisClient(ctx context.Context, url string) (*redis.Client, error) {
	if url == "" {
		return nil, fmt.Errorf("redis url is required")
	}

	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	// Test connection
	if _, err := client.Ping(ctx).Result(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return client, nil
}

// RedisTaskRepository stores task records as JSON in one hash and announces
// every change on a pub/sub channel. Subscribers reload the whole hash per
// announcement, so delivery is snapshot-replace and survives lost messages.
type RedisTaskRepository struct {
	client  *redis.Client
	key     string
	channel string
}

// NewRedisTaskRepository wraps a connected client; empty key or channel use defaults
func NewRedisTaskRepository(client *redis.Client, key, channel string) *RedisTaskRepository {
	if key == "" {
		key = DefaultRedisKey
	}
	if channel == "" {
		channel = DefaultRedisChannel
	}
	return &RedisTaskRepository{client: client, key: key, channel: channel}
}

func (r *RedisTaskRepository) Subscribe(ctx context.Context) (Subscription, error) {
	pubsub := r.client.Subscribe(ctx, r.channel)
	// wait for the subscription to be confirmed so no change is missed after the initial load
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, fmt.Errorf("failed to subscribe to %s: %w", r.channel, err)
	}

	initial, err := r.List(ctx)
	if err != nil {
		pubsub.Close()
		return nil, err
	}

	listenCtx, stop := context.WithCancel(context.WithoutCancel(ctx))
	sub := newMailbox(func() {
		stop()
		pubsub.Close()
	})
	sub.offer(initial)
	context.AfterFunc(ctx, sub.Cancel)

	go func() {
		for msg := range pubsub.Channel() {
			tasks, err := r.List(listenCtx)
			if err != nil {
				if listenCtx.Err() != nil {
					return
				}
				logger.Warn().Err(err).Str("backend", "redis").Str("payload", msg.Payload).Msg("failed to reload tasks after change")
				continue
			}
			sub.offer(tasks)
		}
	}()

	return sub, nil
}

func (r *RedisTaskRepository) List(ctx context.Context) ([]pkg.Task, error) {
	fields, err := r.client.HGetAll(ctx, r.key).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}
	raws := make([]rawRecord, 0, len(fields))
	for id, v := range fields {
		raws = append(raws, rawRecord{key: id, data: []byte(v)})
	}
	return decodeTasks("redis", raws), nil
}

func (r *RedisTaskRepository) Create(ctx context.Context, task pkg.Task) (pkg.Task, error) {
	task, err := prepareCreate(task)
	if err != nil {
		return pkg.Task{}, err
	}
	data, err := encodeTask(task)
	if err != nil {
		return pkg.Task{}, err
	}

	created, err := r.client.HSetNX(ctx, r.key, task.ID, data).Result()
	if err != nil {
		return pkg.Task{}, fmt.Errorf("failed to create task: %w", err)
	}
	if !created {
		return pkg.Task{}, fmt.Errorf("task %s already exists", task.ID)
	}
	return task, r.announce(ctx, "create", task.ID)
}

func (r *RedisTaskRepository) Update(ctx context.Context, task pkg.Task) error {
	if task.ID == "" {
		return nil
	}
	if err := task.Validate(); err != nil {
		return err
	}
	data, err := encodeTask(task)
	if err != nil {
		return err
	}

	if err := r.client.HSet(ctx, r.key, task.ID, data).Err(); err != nil {
		return fmt.Errorf("failed to update task %s: %w", task.ID, err)
	}
	return r.announce(ctx, "update", task.ID)
}

func (r *RedisTaskRepository) Delete(ctx context.Context, task pkg.Task) error {
	if task.ID == "" {
		return nil
	}
	if err := r.client.HDel(ctx, r.key, task.ID).Err(); err != nil {
		return fmt.Errorf("failed to delete task %s: %w", task.ID, err)
	}
	return r.announce(ctx, "delete", task.ID)
}

// Close closes the Redis connection
func (r *RedisTaskRepository) Close() error {
	if err := r.client.Close(); err != nil && !errors.Is(err, redis.ErrClosed) {
		return err
	}
	return nil
}

func (r *RedisTaskRepository) announce(ctx context.Context, op, id string) error {
	if err := r.client.Publish(ctx, r.channel, op+":"+id).Err(); err != nil {
		return fmt.Errorf("failed to announce %s of %s: %w", op, id, err)
	}
	return nil
}
