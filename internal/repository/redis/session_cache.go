package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/Kaushals112/shadow-aiims-defender/internal/client"
	"github.com/Kaushals112/shadow-aiims-defender/internal/models"
	"github.com/Kaushals112/shadow-aiims-defender/internal/util"
)

const sessionPrefix = "decoy_session:"

// SessionCache mirrors tracker session records into Redis so the monitoring
// surface of a multi-instance deployment can read them from any node. The
// in-process tracker stays authoritative; this cache is write-through and
// best-effort.
type SessionCache struct {
	client *client.RedisClient
	ttl    time.Duration
}

// NewSessionCache creates the cache. Records expire on their own after ttl
// so ended sessions eventually vanish even if an instance dies mid-write.
func NewSessionCache(rc *client.RedisClient, ttl time.Duration) *SessionCache {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &SessionCache{client: rc, ttl: ttl}
}

// MirrorSession satisfies the service mirror contract.
func (c *SessionCache) MirrorSession(ctx context.Context, rec models.SessionRecord) error {
	return c.Put(ctx, rec)
}

// Put stores or overwrites a session record.
func (c *SessionCache) Put(ctx context.Context, rec models.SessionRecord) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to encode session record: %w", err)
	}
	if err := c.client.Set(ctx, sessionPrefix+rec.SessionID, data, c.ttl); err != nil {
		util.Error("failed to cache session record",
			zap.String("session_id", rec.SessionID),
			zap.Error(err))
		return fmt.Errorf("failed to cache session record: %w", err)
	}
	return nil
}

// Get fetches a cached session record.
func (c *SessionCache) Get(ctx context.Context, sessionID string) (*models.SessionRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	raw, err := c.client.Get(ctx, sessionPrefix+sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to read cached session: %w", err)
	}
	var rec models.SessionRecord
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		return nil, fmt.Errorf("failed to decode cached session: %w", err)
	}
	return &rec, nil
}

// Delete removes a session record from the cache.
func (c *SessionCache) Delete(ctx context.Context, sessionID string) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return c.client.Del(ctx, sessionPrefix+sessionID)
}
