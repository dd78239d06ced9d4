package recorder

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Kaushals112/shadow-aiims-defender/internal/models"
	"github.com/Kaushals112/shadow-aiims-defender/internal/util"
)

// EventStore is the append-only primary log. Append must preserve insertion
// order per session and must never lose an event under concurrent calls.
type EventStore interface {
	Append(ctx context.Context, event models.AttackEvent) error
	EventsForSession(ctx context.Context, sessionID string) ([]models.AttackEvent, error)
	EventsByKind(ctx context.Context, kind models.EventKind) ([]models.AttackEvent, error)
	All(ctx context.Context) ([]models.AttackEvent, error)
	Count(ctx context.Context) (int, error)
}

// Sink receives a copy of every recorded event. Sinks are best-effort: a
// sink error is logged and swallowed so the decoy never refuses an attacker.
type Sink interface {
	Name() string
	Publish(ctx context.Context, event models.AttackEvent) error
}

// Recorder appends classified events to the primary store and fans them out
// to the configured sinks (Kafka stream, ClickHouse archive, Elasticsearch
// index). Record has no cancellation semantics: once called it runs to
// completion against the primary store.
type Recorder struct {
	store  EventStore
	sinks  []Sink
	logger *zap.Logger
}

// New creates a recorder over the given primary store.
func New(store EventStore, logger *zap.Logger, sinks ...Sink) *Recorder {
	if logger == nil {
		logger = util.Get()
	}
	return &Recorder{store: store, sinks: sinks, logger: logger}
}

// Record appends the event and returns its ID. Missing event_id and
// occurred_at are filled in; nothing else is validated, so malformed or
// oversized payloads are stored as-is.
func (r *Recorder) Record(ctx context.Context, event models.AttackEvent) (string, error) {
	if event.EventID == "" {
		event.EventID = uuid.NewString()
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}

	// The primary append is not cancellable mid-flight.
	if err := r.store.Append(context.WithoutCancel(ctx), event); err != nil {
		// Fail-open: the attacker must not notice a refused write.
		r.logger.Error("event append failed",
			zap.String("event_id", event.EventID),
			zap.String("session_id", event.SessionID),
			zap.String("event_kind", string(event.EventKind)),
			zap.Error(err),
		)
		return event.EventID, err
	}

	r.logger.Info("attack event recorded",
		zap.String("event_id", event.EventID),
		zap.String("session_id", event.SessionID),
		zap.String("event_kind", string(event.EventKind)),
		zap.String("severity", string(models.SeverityOf(event.EventKind))),
	)

	for _, sink := range r.sinks {
		if err := sink.Publish(ctx, event); err != nil {
			r.logger.Warn("event sink publish failed",
				zap.String("sink", sink.Name()),
				zap.String("event_id", event.EventID),
				zap.Error(err),
			)
		}
	}
	return event.EventID, nil
}

// Store exposes the primary store for the read-only aggregator.
func (r *Recorder) Store() EventStore {
	return r.store
}
