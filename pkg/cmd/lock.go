package cmd

import (
	"fmt"

	"github.com/ispforge/sagaflow/pkg/saga"
)

// NewRunLock returns a Redis-backed run lock when a URL is configured, or a
// no-op lock for single-process deployments.
func NewRunLock(redisURL string) (saga.RunLock, error) {
	if redisURL == "" {
		return &saga.NoopLock{}, nil
	}

	lock, err := saga.NewRedisLock(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create redis run lock: %w", err)
	}

	return lock, nil
}
