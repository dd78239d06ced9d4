package bucketing

import (
	"hash"
	"sync"
	"time"

	"github.com/spaolacci/murmur3"
)

// DefaultEventBuckets is the ClickHouse partition fan-out for the event
// archive.
const DefaultEventBuckets = 64

// Manager assigns stable hash buckets to sessions and events so the archive
// tables can partition hot writes.
type Manager struct {
	eventBuckets int
	hasherPool   sync.Pool
}

// NewManager creates a bucketing manager with the given fan-out. Zero or
// negative falls back to DefaultEventBuckets.
func NewManager(eventBuckets int) *Manager {
	if eventBuckets <= 0 {
		eventBuckets = DefaultEventBuckets
	}
	m := &Manager{eventBuckets: eventBuckets}
	m.hasherPool = sync.Pool{
		New: func() interface{} { return murmur3.New64() },
	}
	return m
}

// EventBucket returns a consistent bucket (0..eventBuckets-1) for a session
// identifier, so one session's events land in one partition.
func (m *Manager) EventBucket(sessionID string) int {
	h := m.hasherPool.Get().(hash.Hash64)
	defer m.hasherPool.Put(h)

	h.Reset()
	_, _ = h.Write([]byte(sessionID))
	return int(h.Sum64() % uint64(m.eventBuckets))
}

// DateBucket returns the UTC date partition key for an event timestamp.
func (m *Manager) DateBucket(ts time.Time) string {
	return ts.UTC().Format("2006-01-02")
}

// TimeBucket truncates now to a window boundary, for windowed counters.
func (m *Manager) TimeBucket(now time.Time, windowSeconds int) int64 {
	if windowSeconds <= 0 {
		windowSeconds = 60
	}
	return now.Unix() / int64(windowSeconds) * int64(windowSeconds)
}
