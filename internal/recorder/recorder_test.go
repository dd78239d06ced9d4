package recorder

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Kaushals112/shadow-aiims-defender/internal/models"
)

type captureSink struct {
	mu     sync.Mutex
	events []models.AttackEvent
}

func (s *captureSink) Name() string { return "capture" }

func (s *captureSink) Publish(_ context.Context, event models.AttackEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return nil
}

type failingSink struct{}

func (failingSink) Name() string { return "failing" }

func (failingSink) Publish(context.Context, models.AttackEvent) error {
	return errors.New("sink down")
}

type failingStore struct{ MemoryStore }

func (s *failingStore) Append(context.Context, models.AttackEvent) error {
	return errors.New("store down")
}

func appendRawLine(t *testing.T, path, line string) {
	t.Helper()
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND, 0o644)
	require.NoError(t, err)
	_, err = f.WriteString(line)
	require.NoError(t, err)
	require.NoError(t, f.Close())
}

func TestRecordFillsIDAndTimestamp(t *testing.T) {
	r := New(NewMemoryStore(), zap.NewNop())

	id, err := r.Record(context.Background(), models.AttackEvent{
		SessionID: "sess_1",
		EventKind: models.EventLoginAttempt,
	})
	require.NoError(t, err)
	require.NotEmpty(t, id)

	events, err := r.Store().All(context.Background())
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, id, events[0].EventID)
	assert.False(t, events[0].OccurredAt.IsZero())
}

func TestRecordPreservesOrderPerSession(t *testing.T) {
	r := New(NewMemoryStore(), zap.NewNop())
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		_, err := r.Record(ctx, models.AttackEvent{
			SessionID: "sess_1",
			EventKind: models.EventPageVisit,
			Payload:   fmt.Sprintf("page-%d", i),
		})
		require.NoError(t, err)
	}

	events, err := r.Store().EventsForSession(ctx, "sess_1")
	require.NoError(t, err)
	require.Len(t, events, 10)
	for i, e := range events {
		assert.Equal(t, fmt.Sprintf("page-%d", i), e.Payload)
	}
}

func TestRecordConcurrentAppendsLoseNothing(t *testing.T) {
	r := New(NewMemoryStore(), zap.NewNop())
	ctx := context.Background()

	const workers = 16
	const perWorker = 50

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				_, err := r.Record(ctx, models.AttackEvent{
					SessionID: fmt.Sprintf("sess_%d", w),
					EventKind: models.EventSearchPerformed,
				})
				assert.NoError(t, err)
			}
		}(w)
	}
	wg.Wait()

	count, err := r.Store().Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, workers*perWorker, count)

	for w := 0; w < workers; w++ {
		events, err := r.Store().EventsForSession(ctx, fmt.Sprintf("sess_%d", w))
		require.NoError(t, err)
		assert.Len(t, events, perWorker)
	}
}

func TestRecordFansOutToSinks(t *testing.T) {
	sink := &captureSink{}
	r := New(NewMemoryStore(), zap.NewNop(), sink)

	id, err := r.Record(context.Background(), models.AttackEvent{
		SessionID: "sess_1",
		EventKind: models.EventSQLInjectionAttempt,
		Payload:   `' OR 1=1`,
	})
	require.NoError(t, err)

	require.Len(t, sink.events, 1)
	assert.Equal(t, id, sink.events[0].EventID)
}

func TestRecordFailingSinkDoesNotFailRecord(t *testing.T) {
	capture := &captureSink{}
	r := New(NewMemoryStore(), zap.NewNop(), failingSink{}, capture)
	ctx := context.Background()

	_, err := r.Record(ctx, models.AttackEvent{
		SessionID: "sess_1",
		EventKind: models.EventXSSAttempt,
	})
	require.NoError(t, err)

	count, err := r.Store().Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
	assert.Len(t, capture.events, 1, "later sinks still receive the event")
}

func TestRecordStoreFailureReturnsError(t *testing.T) {
	r := New(&failingStore{}, zap.NewNop())

	id, err := r.Record(context.Background(), models.AttackEvent{
		SessionID: "sess_1",
		EventKind: models.EventLoginAttempt,
	})
	assert.Error(t, err)
	assert.NotEmpty(t, id, "the assigned event ID is still reported")
}

func TestMemoryStoreEventsByKind(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	for _, kind := range []models.EventKind{
		models.EventLoginAttempt,
		models.EventSQLInjectionAttempt,
		models.EventLoginAttempt,
	} {
		require.NoError(t, store.Append(ctx, models.AttackEvent{EventID: "x", EventKind: kind}))
	}

	attempts, err := store.EventsByKind(ctx, models.EventLoginAttempt)
	require.NoError(t, err)
	assert.Len(t, attempts, 2)
}

func TestFileStoreReplay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.jsonl")
	ctx := context.Background()

	store, err := NewFileStore(path)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		require.NoError(t, store.Append(ctx, models.AttackEvent{
			EventID:   fmt.Sprintf("evt-%d", i),
			SessionID: "sess_1",
			EventKind: models.EventPageVisit,
		}))
	}
	require.NoError(t, store.Close())

	reopened, err := NewFileStore(path)
	require.NoError(t, err)
	defer reopened.Close()

	events, err := reopened.All(ctx)
	require.NoError(t, err)
	require.Len(t, events, 3)
	for i, e := range events {
		assert.Equal(t, fmt.Sprintf("evt-%d", i), e.EventID)
	}

	// Appends after replay land behind the replayed records.
	require.NoError(t, reopened.Append(ctx, models.AttackEvent{
		EventID:   "evt-3",
		SessionID: "sess_1",
		EventKind: models.EventLogout,
	}))
	count, err := reopened.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, count)
}

func TestFileStoreSkipsTornLine(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.jsonl")
	ctx := context.Background()

	store, err := NewFileStore(path)
	require.NoError(t, err)
	require.NoError(t, store.Append(ctx, models.AttackEvent{
		EventID:   "evt-0",
		SessionID: "sess_1",
		EventKind: models.EventPageVisit,
	}))
	require.NoError(t, store.Close())

	appendRawLine(t, path, `{"event_id":"evt-torn","session_`)

	reopened, err := NewFileStore(path)
	require.NoError(t, err)
	defer reopened.Close()

	count, err := reopened.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}
