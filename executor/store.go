// Package executor implements the asynchronous task pipeline: the
// Redis-backed task store and pending queue, and the worker-pool
// executor that drains the queue and drives model inference.
//
// This file implements core.TaskStore and core.TaskQueue on Redis.
// Task records are zstd-compressed JSON stored with SET ... EX so the
// TTL is refreshed on every write; the pending queue is a Redis list
// written with LPUSH and drained with BRPOP.
package executor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/klauspost/compress/zstd"

	"github.com/itsneelabh/infergate/core"
)

// DefaultQueueKey is the Redis list holding the ids of tasks awaiting a
// worker.
const DefaultQueueKey = "PENDING_QUEUE"

// RedisTaskStore implements core.TaskStore and core.TaskQueue.
// The key for a task record is the task id itself.
type RedisTaskStore struct {
	client *redis.Client
	config RedisTaskStoreConfig
	logger core.Logger

	encoder *zstd.Encoder
	decoder *zstd.Decoder
}

// RedisTaskStoreConfig configures the Redis task store.
type RedisTaskStoreConfig struct {
	// QueueKey is the Redis list used as the pending queue.
	// Default: PENDING_QUEUE
	QueueKey string `json:"queue_key"`

	// Expiration is the TTL applied on every task write.
	// Default: 1 hour
	Expiration time.Duration `json:"expiration"`

	// Logger is an optional logger for store operations
	Logger core.Logger `json:"-"`
}

// DefaultRedisTaskStoreConfig returns default configuration.
func DefaultRedisTaskStoreConfig() RedisTaskStoreConfig {
	return RedisTaskStoreConfig{
		QueueKey:   DefaultQueueKey,
		Expiration: 1 * time.Hour,
	}
}

// NewRedisTaskStore creates a new Redis-backed task store.
// The client should already be connected to Redis.
func NewRedisTaskStore(client *redis.Client, config *RedisTaskStoreConfig) *RedisTaskStore {
	if config == nil {
		defaultConfig := DefaultRedisTaskStoreConfig()
		config = &defaultConfig
	}
	if config.QueueKey == "" {
		config.QueueKey = DefaultQueueKey
	}
	if config.Expiration <= 0 {
		config.Expiration = 1 * time.Hour
	}

	// Both are safe for concurrent use via EncodeAll/DecodeAll.
	encoder, _ := zstd.NewWriter(nil)
	decoder, _ := zstd.NewReader(nil)

	s := &RedisTaskStore{
		client:  client,
		config:  *config,
		logger:  config.Logger,
		encoder: encoder,
		decoder: decoder,
	}

	if s.logger == nil {
		s.logger = &core.NoOpLogger{}
	} else if cal, ok := s.logger.(core.ComponentAwareLogger); ok {
		s.logger = cal.WithComponent("executor/store")
	}

	return s
}

// Set serializes, compresses and stores the task under its id,
// refreshing the TTL.
func (s *RedisTaskStore) Set(ctx context.Context, task *core.Task) error {
	if task == nil {
		return fmt.Errorf("task cannot be nil")
	}
	if task.ID == "" {
		return fmt.Errorf("task ID cannot be empty")
	}

	data, err := json.Marshal(task)
	if err != nil {
		s.logger.ErrorWithContext(ctx, "Failed to serialize task", map[string]interface{}{
			"task_id": task.ID,
			"error":   err.Error(),
		})
		return fmt.Errorf("failed to serialize task: %w", err)
	}

	return s.SetRaw(ctx, task.ID, s.encoder.EncodeAll(data, nil))
}

// SetRaw stores an already-compressed payload under id with the full
// TTL. The streaming finalizer uses this to persist the record it built
// chunk by chunk.
func (s *RedisTaskStore) SetRaw(ctx context.Context, id string, value []byte) error {
	if id == "" {
		return fmt.Errorf("task ID cannot be empty")
	}

	if err := s.client.Set(ctx, id, value, s.config.Expiration).Err(); err != nil {
		s.logger.ErrorWithContext(ctx, "Failed to store task", map[string]interface{}{
			"task_id": id,
			"error":   err.Error(),
		})
		return fmt.Errorf("failed to store task: %w", err)
	}

	s.logger.DebugWithContext(ctx, "Task stored", map[string]interface{}{
		"task_id": id,
		"bytes":   len(value),
	})
	return nil
}

// Get returns the task stored under id, or (nil, nil) when the key is
// absent or its TTL has expired.
func (s *RedisTaskStore) Get(ctx context.Context, id string) (*core.Task, error) {
	if id == "" {
		return nil, fmt.Errorf("task ID cannot be empty")
	}

	value, err := s.client.Get(ctx, id).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		s.logger.ErrorWithContext(ctx, "Failed to get task", map[string]interface{}{
			"task_id": id,
			"error":   err.Error(),
		})
		return nil, fmt.Errorf("failed to get task: %w", err)
	}

	data, err := s.decoder.DecodeAll(value, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to decompress task %s: %w", id, err)
	}

	// Records written by the legacy streaming producer can carry raw
	// newlines inside JSON string literals; re-escape them before
	// parsing. Harmless on compact self-written records.
	data = bytes.ReplaceAll(data, []byte("\n"), []byte(`\n`))

	var task core.Task
	if err := json.Unmarshal(data, &task); err != nil {
		s.logger.ErrorWithContext(ctx, "Failed to deserialize task", map[string]interface{}{
			"task_id": id,
			"error":   err.Error(),
		})
		return nil, fmt.Errorf("failed to deserialize task %s: %w", id, err)
	}

	return &task, nil
}

// Enqueue pushes a task id onto the pending queue.
func (s *RedisTaskStore) Enqueue(ctx context.Context, id string) error {
	if id == "" {
		return fmt.Errorf("task ID cannot be empty")
	}

	if err := s.client.LPush(ctx, s.config.QueueKey, id).Err(); err != nil {
		s.logger.ErrorWithContext(ctx, "Failed to enqueue task", map[string]interface{}{
			"task_id":   id,
			"queue_key": s.config.QueueKey,
			"error":     err.Error(),
		})
		return fmt.Errorf("failed to enqueue task: %w", err)
	}
	return nil
}

// Dequeue blocks up to timeout for the next task id. Returns ("", nil)
// when the timeout elapses with no work, which signals an idle worker
// that it may exit.
func (s *RedisTaskStore) Dequeue(ctx context.Context, timeout time.Duration) (string, error) {
	result, err := s.client.BRPop(ctx, timeout, s.config.QueueKey).Result()
	if err != nil {
		if err == redis.Nil {
			return "", nil
		}
		return "", fmt.Errorf("failed to dequeue task: %w", err)
	}
	// BRPOP returns [key, value].
	if len(result) != 2 {
		return "", fmt.Errorf("unexpected BRPOP reply: %v", result)
	}
	return result[1], nil
}

// Close releases the zstd codec resources.
// The Redis client is managed externally and is not closed.
func (s *RedisTaskStore) Close() error {
	s.decoder.Close()
	return s.encoder.Close()
}
