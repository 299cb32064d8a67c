package saga

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// RunLock guards against concurrent executions of the same workflow instance.
// No two executions of one workflow_id may interleave; the second acquirer is
// rejected with ErrWorkflowLocked.
type RunLock interface {
	Acquire(ctx context.Context, tenantID, workflowID string, ttl time.Duration) (token string, err error)
	Release(ctx context.Context, tenantID, workflowID, token string) error
}

// NoopLock is a lock that does nothing, for single-process deployments where
// the event bus already serializes executions per workflow.
type NoopLock struct{}

func (l *NoopLock) Acquire(_ context.Context, _, _ string, _ time.Duration) (string, error) {
	return "noop", nil
}

func (l *NoopLock) Release(_ context.Context, _, _, _ string) error {
	return nil
}

var _ RunLock = (*NoopLock)(nil)

// RedisLock implements RunLock on a shared Redis instance so that workers on
// different hosts cannot run the same workflow concurrently.
type RedisLock struct {
	client *redis.Client
}

// NewRedisLock creates a RunLock backed by the given Redis URL.
func NewRedisLock(redisURL string) (*RedisLock, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}

	return &RedisLock{client: redis.NewClient(opts)}, nil
}

func lockKey(tenantID, workflowID string) string {
	return "sagaflow:run-lock:" + tenantID + ":" + workflowID
}

func (l *RedisLock) Acquire(ctx context.Context, tenantID, workflowID string, ttl time.Duration) (string, error) {
	token := uuid.New().String()

	acquired, err := l.client.SetNX(ctx, lockKey(tenantID, workflowID), token, ttl).Result()
	if err != nil {
		return "", fmt.Errorf("failed to acquire run lock: %w", err)
	}

	if !acquired {
		return "", ErrWorkflowLocked
	}

	return token, nil
}

// releaseScript deletes the lock only if the caller still holds it.
var releaseScript = redis.NewScript(`
	if redis.call("get", KEYS[1]) == ARGV[1] then
		return redis.call("del", KEYS[1])
	end
	return 0
`)

func (l *RedisLock) Release(ctx context.Context, tenantID, workflowID, token string) error {
	err := releaseScript.Run(ctx, l.client, []string{lockKey(tenantID, workflowID)}, token).Err()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("failed to release run lock: %w", err)
	}

	return nil
}

// Close releases the underlying Redis connection.
func (l *RedisLock) Close() error {
	return l.client.Close()
}

var _ RunLock = (*RedisLock)(nil)
