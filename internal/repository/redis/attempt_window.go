package redis

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/Kaushals112/shadow-aiims-defender/internal/client"
	"github.com/Kaushals112/shadow-aiims-defender/internal/util"
)

const attemptWindowPrefix = "login_attempts:"

// AttemptWindow is the Redis-backed brute-force window, for deployments
// running more than one decoy instance behind a balancer. It keeps one ZSET
// per identity scored by attempt time and offers the same Register/Count
// contract as the in-memory window.
type AttemptWindow struct {
	client *client.RedisClient
	window time.Duration
}

// NewAttemptWindow creates a Redis sliding window of the given span.
func NewAttemptWindow(rc *client.RedisClient, window time.Duration) *AttemptWindow {
	return &AttemptWindow{client: rc, window: window}
}

// registerScript atomically prunes expired attempts, records the new one,
// and returns the in-window count.
const registerScript = `
    local key = KEYS[1]
    local now = tonumber(ARGV[1])
    local window_start = tonumber(ARGV[2])
    local ttl = tonumber(ARGV[3])

    redis.call('ZREMRANGEBYSCORE', key, '-inf', window_start)
    redis.call('ZADD', key, now, ARGV[4])
    redis.call('EXPIRE', key, ttl)
    return redis.call('ZCARD', key)
`

// countScript prunes and counts without recording.
const countScript = `
    local key = KEYS[1]
    local window_start = tonumber(ARGV[1])

    redis.call('ZREMRANGEBYSCORE', key, '-inf', window_start)
    return redis.call('ZCARD', key)
`

// Register records one attempt for the identity at now and returns the
// attempt count inside the window, including this one.
func (w *AttemptWindow) Register(ctx context.Context, identity string, now time.Time) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	key := attemptWindowPrefix + identity
	member := fmt.Sprintf("%d", now.UnixNano())
	result, err := w.client.Eval(ctx, registerScript, []string{key},
		now.UnixMilli(), now.Add(-w.window).UnixMilli(), int(w.window.Seconds())+1, member)
	if err != nil {
		util.Error("failed to register login attempt",
			zap.String("identity", identity),
			zap.Error(err))
		return 0, fmt.Errorf("failed to register login attempt: %w", err)
	}

	count, ok := result.(int64)
	if !ok {
		return 0, fmt.Errorf("unexpected result from attempt window script")
	}
	return int(count), nil
}

// Count returns the attempt count inside the window ending at now.
func (w *AttemptWindow) Count(ctx context.Context, identity string, now time.Time) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	key := attemptWindowPrefix + identity
	result, err := w.client.Eval(ctx, countScript, []string{key},
		now.Add(-w.window).UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("failed to count login attempts: %w", err)
	}
	count, ok := result.(int64)
	if !ok {
		return 0, fmt.Errorf("unexpected result from attempt window script")
	}
	return int(count), nil
}

// Reset drops the identity's window.
func (w *AttemptWindow) Reset(ctx context.Context, identity string) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := w.client.Del(ctx, attemptWindowPrefix+identity); err != nil {
		return fmt.Errorf("failed to reset attempt window: %w", err)
	}
	return nil
}
